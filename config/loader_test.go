package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsOnly(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 24*time.Hour, cfg.Session.TTL)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  http_port: 9000
database:
  driver: sqlite
  name: ":memory:"
engine:
  max_hops_per_mission: 10
session:
  ttl: 1h
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.HTTPPort)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, ":memory:", cfg.Database.Name)
	assert.Equal(t, 10, cfg.Engine.MaxHopsPerMission)
	assert.Equal(t, time.Hour, cfg.Session.TTL)

	// 未覆盖的保持默认值
	assert.Equal(t, 9091, cfg.Server.MetricsPort)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/nonexistent/config.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  http_port: 9000\n"), 0o600))

	t.Setenv("MISSIONFLOW_SERVER_HTTP_PORT", "9100")
	t.Setenv("MISSIONFLOW_ENGINE_DEFAULT_TOOL_TIMEOUT", "45s")
	t.Setenv("MISSIONFLOW_LOG_OUTPUT_PATHS", "stdout, /var/log/missionflow.log")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.HTTPPort)
	assert.Equal(t, 45*time.Second, cfg.Engine.DefaultToolTimeout)
	assert.Equal(t, []string{"stdout", "/var/log/missionflow.log"}, cfg.Log.OutputPaths)
}

func TestLoad_CustomEnvPrefix(t *testing.T) {
	t.Setenv("MF_DATABASE_DRIVER", "mysql")

	cfg, err := NewLoader().WithEnvPrefix("MF").Load()
	require.NoError(t, err)
	assert.Equal(t, "mysql", cfg.Database.Driver)
}

func TestLoad_ValidatorRejects(t *testing.T) {
	_, err := NewLoader().
		WithValidator(func(c *Config) error {
			return assert.AnError
		}).
		Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config validation failed")
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())

	cfg.Server.HTTPPort = 0
	cfg.Database.Driver = "oracle"
	cfg.Engine.MaxStepsPerHop = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid HTTP port")
	assert.Contains(t, err.Error(), "database driver")
	assert.Contains(t, err.Error(), "max_steps_per_hop")
}

func TestDatabaseConfig_DSN(t *testing.T) {
	pg := DatabaseConfig{Driver: "postgres", Host: "db", Port: 5432, User: "mf", Password: "pw", Name: "missions", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=mf password=pw dbname=missions sslmode=disable", pg.DSN())

	my := DatabaseConfig{Driver: "mysql", Host: "db", Port: 3306, User: "mf", Password: "pw", Name: "missions"}
	assert.Equal(t, "mf:pw@tcp(db:3306)/missions?parseTime=true", my.DSN())

	lite := DatabaseConfig{Driver: "sqlite", Name: "missions.db"}
	assert.Equal(t, "missions.db", lite.DSN())

	unknown := DatabaseConfig{Driver: "oracle"}
	assert.Empty(t, unknown.DSN())
}
