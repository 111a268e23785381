package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootListsCommands(t *testing.T) {
	out, err := execute(t, "--help")
	require.NoError(t, err)
	for _, name := range []string{"bundles", "package", "tidy", "xml2cotcot"} {
		assert.Contains(t, out, name)
	}
}

func TestPackageDebianWritesFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "debian")
	out, err := execute(t, "package", "debian", "--version", "5.2", "--output", dir,
		"--maintainer", "Jane Doe <jane@example.org>", "--change", "Live results over FTP.")
	require.NoError(t, err)
	assert.Contains(t, out, filepath.Join(dir, "control"))

	changelog, err := os.ReadFile(filepath.Join(dir, "changelog"))
	require.NoError(t, err)
	assert.Contains(t, string(changelog), "  * Live results over FTP.\n")
}

func TestPackageDebianRequiresVersion(t *testing.T) {
	_, err := execute(t, "package", "debian", "--output", t.TempDir())
	require.Error(t, err)
}

func TestXML2CotcotRequiresArgument(t *testing.T) {
	_, err := execute(t, "xml2cotcot")
	require.Error(t, err)
}

func TestTidyRejectsMissingSources(t *testing.T) {
	_, err := execute(t, "tidy", "--sources", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
}
