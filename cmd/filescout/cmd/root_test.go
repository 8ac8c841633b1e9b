package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filescout/filescout/pkg/version"
)

func TestRootRegistersCommands(t *testing.T) {
	root := NewRootCmd()

	names := make(map[string]bool)
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "index", "search", "ask", "status", "version"} {
		assert.True(t, names[want], "missing command %q", want)
	}
}

func TestVersionCommandShort(t *testing.T) {
	t.Setenv("FILESCOUT_DATA_DIR", t.TempDir())

	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"version", "--short"})

	require.NoError(t, root.Execute())
	assert.Equal(t, version.Version, strings.TrimSpace(out.String()))
}

func TestGlobalFlagsOverrideConfig(t *testing.T) {
	dataDir := t.TempDir()

	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"version", "--short", "--data-dir", dataDir, "--log-level", "debug"})

	require.NoError(t, root.Execute())
	assert.Equal(t, dataDir, cfg.DataDir)
	assert.Equal(t, "debug", cfg.Logging.Level)
}
