package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.yaml")
	yamlBody := `
server:
  port: 9000
  read_timeout: 5s
auth:
  jwt_secret: "` + testSecret + `"
  admin_emails: ["ops@example.com"]
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o600))

	t.Setenv("VITALSYNC_SERVER_PORT", "9100")
	t.Setenv("VITALSYNC_CORS_ALLOWED_ORIGINS", "https://app.example.com,https://admin.example.com")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port, "env overrides file")
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout, "file overrides default")
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout, "default kept")
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, []string{"https://app.example.com", "https://admin.example.com"}, cfg.CORS.AllowedOrigins)
	assert.True(t, cfg.Auth.IsAdminEmail(" OPS@example.com "))
	assert.False(t, cfg.Auth.IsAdminEmail("user@example.com"))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}

func TestLoadEnvParseError(t *testing.T) {
	t.Setenv("VITALSYNC_AUTH_JWT_SECRET", testSecret)
	t.Setenv("VITALSYNC_SERVER_PORT", "not-a-port")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env:")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"ok", func(*Config) {}, ""},
		{"short secret", func(c *Config) { c.Auth.JWTSecret = "short" }, "jwt_secret"},
		{"postgres without dsn", func(c *Config) { c.Database.Driver = "postgres" }, "database.dsn"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mongo" }, "not supported"},
		{"s3 without bucket", func(c *Config) { c.Uploads.Backend = "s3" }, "s3_bucket"},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"rate limit zero", func(c *Config) { c.RateLimit.Burst = 0 }, "rate_limit"},
		{"reminders without schedule", func(c *Config) { c.Reminders.Schedule = " " }, "reminders.schedule"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Auth.JWTSecret = testSecret
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestServerAddr(t *testing.T) {
	assert.Equal(t, "127.0.0.1:8080", ServerConfig{Host: "127.0.0.1", Port: 8080}.Addr())
}
