// Package container provides dependency injection and lifecycle management
// for the deed approval service.
package container

import (
	"fmt"
	"time"

	"github.com/garyjia/deed-approval/internal/domain/entity"
	"github.com/garyjia/deed-approval/pkg/utils"
)

// Config holds all configuration for the Container.
// It aggregates configurations for all subsystems.
type Config struct {
	// Database configuration
	Database DatabaseConfig

	// Workflow engine tuning
	Workflow WorkflowConfig

	// Storage configuration
	Storage StorageConfig

	// Lark notification configuration
	Lark LarkConfig

	// Server configuration
	Server ServerConfig

	// Auth configuration
	Auth AuthConfig

	// Accounts are upserted into the account directory at startup
	Accounts []entity.Account
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Path to SQLite database file
	Path string

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int

	// ConnMaxLifetime is the maximum connection lifetime
	ConnMaxLifetime time.Duration

	// BusyTimeout bounds how long sqlite waits on a locked database
	BusyTimeout time.Duration
}

// WorkflowConfig holds approval engine settings.
type WorkflowConfig struct {
	// StorageTimeout bounds every storage call of an operation
	StorageTimeout time.Duration

	// LegacyFanout limits concurrent legacy collection reads
	LegacyFanout int

	// LegacyListCap limits records read per legacy collection
	LegacyListCap int

	// ListDefaultLimit applies when a listing has no limit
	ListDefaultLimit int

	// AuditPageSize is the page size used when reading an audit trail
	AuditPageSize int

	// NotifyTimeout bounds each asynchronous notification handler
	NotifyTimeout time.Duration
}

// StorageConfig holds file storage settings.
type StorageConfig struct {
	// ReportDir receives rendered final report documents
	ReportDir string
}

// LarkConfig holds Lark API settings.
type LarkConfig struct {
	// Enabled switches notifications from the log to Lark messages
	Enabled bool

	// AppID is the Lark application ID
	AppID string

	// AppSecret is the Lark application secret
	AppSecret string
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Mode         string
}

// AuthConfig holds bearer token verification settings.
type AuthConfig struct {
	// JWTSecret is the HS256 signing secret shared with the token issuer
	JWTSecret string

	// Issuer is the expected iss claim; empty accepts any issuer
	Issuer string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:            "data/deeds.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			BusyTimeout:     5 * time.Second,
		},
		Workflow: WorkflowConfig{
			StorageTimeout:   5 * time.Second,
			LegacyFanout:     4,
			LegacyListCap:    500,
			ListDefaultLimit: 50,
			AuditPageSize:    200,
			NotifyTimeout:    10 * time.Second,
		},
		Storage: StorageConfig{
			ReportDir: "data/reports",
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			Mode:         "release",
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Storage.ReportDir == "" {
		return fmt.Errorf("reports.output_dir is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}

	if c.Lark.Enabled {
		if c.Lark.AppID == "" {
			return fmt.Errorf("lark.app_id is required when lark is enabled")
		}
		if c.Lark.AppSecret == "" {
			return fmt.Errorf("lark.app_secret is required when lark is enabled")
		}
	}

	if c.Workflow.StorageTimeout <= 0 {
		return fmt.Errorf("workflow.storage_timeout must be positive")
	}

	for i, acc := range c.Accounts {
		if acc.ID == "" {
			return fmt.Errorf("accounts[%d].id is required", i)
		}
		if !acc.Role.IsValid() {
			return fmt.Errorf("accounts[%d].role %q is not a known role", i, acc.Role)
		}
		if acc.Email != "" {
			if err := utils.ValidateEmail(acc.Email); err != nil {
				return fmt.Errorf("accounts[%d]: %w", i, err)
			}
		}
	}

	return nil
}
