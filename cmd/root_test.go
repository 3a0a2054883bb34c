package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	expected := []string{"ingest", "backfill", "history", "summary", "import", "export", "check", "serve"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "copper-cli", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)

	boot := serveCmd.Flags().Lookup("ingest-on-start")
	require.NotNil(t, boot)
	assert.Equal(t, "true", boot.DefValue)
}

func TestBackfillCommand_Flags(t *testing.T) {
	flag := backfillCmd.Flags().Lookup("material")
	require.NotNil(t, flag, "backfill command should have --material flag")
	assert.Equal(t, "", flag.DefValue)
}

func TestImportCommand_Flags(t *testing.T) {
	for _, name := range []string{"file", "material", "sheet", "dry-run"} {
		assert.NotNil(t, importCmd.Flags().Lookup(name), "import should have --%s flag", name)
	}
}

func TestHistoryCommand_Flags(t *testing.T) {
	for _, name := range []string{"region", "limit", "json"} {
		assert.NotNil(t, historyCmd.Flags().Lookup(name), "history should have --%s flag", name)
	}
}
