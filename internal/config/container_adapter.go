package config

import (
	"github.com/garyjia/deed-approval/internal/container"
	"github.com/garyjia/deed-approval/internal/domain/entity"
	"github.com/garyjia/deed-approval/internal/interfaces/http"
	"github.com/garyjia/deed-approval/pkg/utils"
)

// ToContainerConfig converts the application Config to a container.Config.
// This provides a bridge between the file-based config loaded by viper
// and the container's configuration structure.
func (c *Config) ToContainerConfig() *container.Config {
	accounts := make([]entity.Account, 0, len(c.Accounts))
	for _, a := range c.Accounts {
		accounts = append(accounts, entity.Account{
			ID:         a.ID,
			Name:       a.Name,
			Email:      a.Email,
			Role:       entity.Role(a.Role),
			Active:     a.Active,
			LarkOpenID: a.LarkOpenID,
		})
	}

	return &container.Config{
		Database: container.DatabaseConfig{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
			BusyTimeout:     c.Database.BusyTimeout,
		},
		Workflow: container.WorkflowConfig{
			StorageTimeout:   c.Workflow.StorageTimeout,
			LegacyFanout:     c.Workflow.LegacyFanout,
			LegacyListCap:    c.Workflow.LegacyListCap,
			ListDefaultLimit: c.Workflow.ListDefaultLimit,
			AuditPageSize:    c.Workflow.AuditPageSize,
			NotifyTimeout:    c.Workflow.NotifyTimeout,
		},
		Storage: container.StorageConfig{
			ReportDir: c.Reports.OutputDir,
		},
		Lark: container.LarkConfig{
			Enabled:   c.Lark.Enabled,
			AppID:     c.Lark.AppID,
			AppSecret: c.Lark.AppSecret,
		},
		Server: container.ServerConfig{
			Host:         c.Server.Host,
			Port:         c.Server.Port,
			ReadTimeout:  c.Server.ReadTimeout,
			WriteTimeout: c.Server.WriteTimeout,
			Mode:         c.Server.Mode,
		},
		Auth: container.AuthConfig{
			JWTSecret: c.Auth.JWTSecret,
			Issuer:    c.Auth.Issuer,
		},
		Accounts: accounts,
	}
}

// ToServerConfig converts the server section for the HTTP adapter
func (c *Config) ToServerConfig() http.ServerConfig {
	return http.ServerConfig{
		Host:            c.Server.Host,
		Port:            c.Server.Port,
		ReadTimeout:     c.Server.ReadTimeout,
		WriteTimeout:    c.Server.WriteTimeout,
		ShutdownTimeout: c.Server.ShutdownTimeout,
		Mode:            c.Server.Mode,
	}
}

// ToLoggerConfig converts the logger section for utils.NewLogger
func (c *Config) ToLoggerConfig() utils.LoggerConfig {
	return utils.LoggerConfig{
		Level:      c.Logger.Level,
		OutputPath: c.Logger.OutputPath,
		Format:     c.Logger.Format,
	}
}
