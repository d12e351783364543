package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/deed-approval/internal/domain/entity"
)

const sampleYAML = `
server:
  port: 9090
  mode: debug
database:
  path: /tmp/deeds-test.db
workflow:
  storage_timeout: 2s
  legacy_fanout: 2
auth:
  jwt_secret: from-file
  issuer: deeds
lark:
  enabled: true
  app_id: cli_123
  app_secret: shh
accounts:
  - id: s1
    name: Stage One
    role: staff1
    active: true
    lark_open_id: ou_1
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func noEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

// unsetForTest clears a variable and restores it when the test ends
func unsetForTest(t *testing.T, key string) {
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
}

func TestLoad_FileAndDefaults(t *testing.T) {
	unsetForTest(t, "JWT_SECRET")
	unsetForTest(t, "AUTH_JWT_SECRET")

	cfg, err := Load(writeFile(t, "config.yaml", sampleYAML), noEnvFile(t))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Server.Mode)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 2*time.Second, cfg.Workflow.StorageTimeout)
	assert.Equal(t, 2, cfg.Workflow.LegacyFanout)
	assert.Equal(t, 500, cfg.Workflow.LegacyListCap)
	assert.Equal(t, "from-file", cfg.Auth.JWTSecret)
	assert.Equal(t, "data/reports", cfg.Reports.OutputDir)
	assert.True(t, cfg.Lark.Enabled)
	require.Len(t, cfg.Accounts, 1)
	assert.Equal(t, "ou_1", cfg.Accounts[0].LarkOpenID)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("SERVER_PORT", "7070")

	cfg, err := Load(writeFile(t, "config.yaml", sampleYAML), noEnvFile(t))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestLoad_DotEnvFile(t *testing.T) {
	unsetForTest(t, "JWT_SECRET")
	unsetForTest(t, "AUTH_JWT_SECRET")

	envFile := writeFile(t, ".env", "JWT_SECRET=from-dotenv\n")
	cfg, err := Load("", envFile)
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Auth.JWTSecret)
	assert.Equal(t, "data/deeds.db", cfg.Database.Path)
	assert.False(t, cfg.Lark.Enabled)
}

func TestLoad_Errors(t *testing.T) {
	unsetForTest(t, "JWT_SECRET")
	unsetForTest(t, "AUTH_JWT_SECRET")

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), noEnvFile(t))
	assert.ErrorContains(t, err, "failed to read config file")

	_, err = Load("", noEnvFile(t))
	assert.ErrorContains(t, err, "auth.jwt_secret is required")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:   ServerConfig{Port: 8080},
			Database: DatabaseConfig{Path: "x.db"},
			Auth:     AuthConfig{JWTSecret: "s"},
			Reports:  ReportsConfig{OutputDir: "reports"},
			Logger:   LoggerConfig{Format: "json"},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"valid", func(*Config) {}, ""},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"lark missing app id", func(c *Config) { c.Lark.Enabled = true }, "lark.app_id"},
		{"unknown log format", func(c *Config) { c.Logger.Format = "xml" }, "logger.format"},
		{"missing output dir", func(c *Config) { c.Reports.OutputDir = "" }, "reports.output_dir"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestToContainerConfig(t *testing.T) {
	cfg := &Config{
		Database: DatabaseConfig{Path: "x.db", MaxOpenConns: 3},
		Workflow: WorkflowConfig{StorageTimeout: time.Second, LegacyListCap: 10},
		Auth:     AuthConfig{JWTSecret: "s", Issuer: "deeds"},
		Reports:  ReportsConfig{OutputDir: "out"},
		Accounts: []AccountConfig{{ID: "s2", Role: "staff2", Active: true}},
	}

	cc := cfg.ToContainerConfig()
	assert.Equal(t, "x.db", cc.Database.Path)
	assert.Equal(t, 3, cc.Database.MaxOpenConns)
	assert.Equal(t, time.Second, cc.Workflow.StorageTimeout)
	assert.Equal(t, 10, cc.Workflow.LegacyListCap)
	assert.Equal(t, "out", cc.Storage.ReportDir)
	assert.Equal(t, "deeds", cc.Auth.Issuer)
	require.Len(t, cc.Accounts, 1)
	assert.Equal(t, entity.RoleStaff2, cc.Accounts[0].Role)
	assert.NoError(t, cc.Validate())
}
