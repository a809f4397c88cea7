package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"org-authority-go/pkg/token"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	body := strings.Join([]string{
		"database:",
		"  driver: sqlite",
		"  sqlite:",
		"    path: " + filepath.Join(dir, "org.db"),
		"jwt:",
		"  secret: cli-secret",
		"resolution:",
		"  backend: memory",
		"",
	}, "\n")
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestTokenCommand(t *testing.T) {
	cfg := writeConfig(t)
	out, err := run(t, "--config", cfg, "token", "--user", "hr-1", "--company", "acme", "--ttl", "1h")
	require.NoError(t, err)

	claims, err := token.NewJWTManager("cli-secret", time.Hour).VerifyToken(strings.TrimSpace(out))
	require.NoError(t, err)
	require.Equal(t, "hr-1", claims.UserID)
	require.Equal(t, "acme", claims.CompanyID)
}

func TestMigrateThenSweepAndResolve(t *testing.T) {
	cfg := writeConfig(t)

	out, err := run(t, "--config", cfg, "migrate")
	require.NoError(t, err)
	var migrated migrateOutput
	require.NoError(t, json.Unmarshal([]byte(out), &migrated))
	require.Equal(t, "sqlite", migrated.Driver)

	out, err = run(t, "--config", cfg, "sweep-delegations")
	require.NoError(t, err)
	var swept sweepOutput
	require.NoError(t, json.Unmarshal([]byte(out), &swept))
	require.Zero(t, swept.Expired)

	_, err = run(t, "--config", cfg, "resolve", "missing-position", "--company", "acme")
	require.Error(t, err)

	_, err = run(t, "--config", cfg, "resolve", "p1", "--company", "acme", "--as-of", "yesterday")
	require.Error(t, err)
}

func TestRequiredFlags(t *testing.T) {
	cfg := writeConfig(t)
	_, err := run(t, "--config", cfg, "history", "p1")
	require.Error(t, err)
}
