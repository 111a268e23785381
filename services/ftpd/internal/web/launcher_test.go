package web

import (
	"bytes"
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLauncherSubstitutesRoot(t *testing.T) {
	l, err := NewLauncher("php --server 0.0.0.0:8000 --docroot {root}", "/srv/www", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"php", "--server", "0.0.0.0:8000", "--docroot", "/srv/www"}, l.Args())
}

func TestNewLauncherValidates(t *testing.T) {
	_, err := NewLauncher("   ", "/srv/www", nil)
	assert.Error(t, err)
	_, err = NewLauncher("php", "", nil)
	assert.Error(t, err)
}

func TestLauncherReportsUnexpectedExit(t *testing.T) {
	l, err := NewLauncher("true", t.TempDir(), log.New(io.Discard, "", 0))
	require.NoError(t, err)

	var ready atomic.Bool
	err = l.Run(context.Background(), &ready)
	assert.Error(t, err)
	assert.False(t, ready.Load())
}

func TestLauncherStopsOnCancel(t *testing.T) {
	l, err := NewLauncher("sleep 30", t.TempDir(), log.New(io.Discard, "", 0))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	var ready atomic.Bool
	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(ctx, &ready) }()

	require.Eventually(t, ready.Load, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("launcher did not stop")
	}
}

func TestLauncherMissingBinary(t *testing.T) {
	l, err := NewLauncher("definitely-not-a-real-binary-xyz", t.TempDir(), log.New(io.Discard, "", 0))
	require.NoError(t, err)

	var ready atomic.Bool
	assert.Error(t, l.Run(context.Background(), &ready))
}

func runScript(t *testing.T, script string) (string, error) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "web.sh")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))

	var logs bytes.Buffer
	l, err := NewLauncher("sh "+path, dir, log.New(&logs, "", 0))
	require.NoError(t, err)

	var ready atomic.Bool
	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(context.Background(), &ready) }()

	select {
	case err := <-errCh:
		return logs.String(), err
	case <-time.After(10 * time.Second):
		t.Fatal("launcher blocked on child output")
		return "", nil
	}
}

func TestLauncherLogsLongLines(t *testing.T) {
	logs, err := runScript(t, "head -c 200000 /dev/zero | tr '\\0' x\necho\necho after\nexit 3\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exit status 3")
	assert.Contains(t, logs, strings.Repeat("x", 200000))
	assert.Contains(t, logs, "web: after")
}

func TestLauncherDrainsOversizedOutput(t *testing.T) {
	logs, err := runScript(t, "head -c 3000000 /dev/zero | tr '\\0' x\necho\nhead -c 200000 /dev/zero\nexit 3\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exit status 3")
	assert.Contains(t, logs, "output no longer logged")
}
