package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_AppliesDefaultsAndParsesDurations(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "9000"
resolution:
  staleness_sla: 30s
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "9000", cfg.Server.Port)
	require.Equal(t, 30*time.Second, cfg.Resolution.StalenessSLA)
	require.Equal(t, 5*time.Second, cfg.Resolution.VacantTTL)
	require.Equal(t, "redis", cfg.Resolution.Backend)
	require.Equal(t, "org_audit_logs", cfg.Elasticsearch.AuditIndex)
	require.Equal(t, "mysql", cfg.Database.Driver)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoad_RejectsNonPositiveSLA(t *testing.T) {
	path := writeConfig(t, `
resolution:
  staleness_sla: 0s
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_EnvOverride(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: mysql
`)
	t.Setenv("ORGAUTH_DATABASE_DRIVER", "sqlite")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "sqlite", cfg.Database.Driver)
}
