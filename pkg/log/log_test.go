package log

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitWritesToOutputPath(t *testing.T) {
	dir := t.TempDir()
	Init("debug", "json", dir)
	defer func() { Init("error", "json", "") }()

	Infow("[Test] resolved", "position", "p1", "user", "alice")
	Sync()

	raw, err := os.ReadFile(filepath.Join(dir, "org-authority.log"))
	require.NoError(t, err)
	require.Contains(t, string(raw), `"position":"p1"`)
	require.Contains(t, string(raw), "[Test] resolved")
}

func TestUnknownLevelFallsBackToInfo(t *testing.T) {
	dir := t.TempDir()
	Init("verbose", "json", dir)
	defer func() { Init("error", "json", "") }()

	Debugf("hidden %d", 1)
	Infof("shown %d", 2)
	Sync()

	raw, err := os.ReadFile(filepath.Join(dir, "org-authority.log"))
	require.NoError(t, err)
	require.NotContains(t, string(raw), "hidden 1")
	require.Contains(t, string(raw), "shown 2")
}
