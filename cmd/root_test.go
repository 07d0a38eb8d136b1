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

	for _, want := range []string{
		"serve", "migrate", "status", "ingest", "replay", "export",
		"hypothesis", "journey", "versions", "outcome",
		"correlations", "override", "conflicts", "metrics",
	} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}

func TestRootCommand_Help(t *testing.T) {
	rootCmd.SetArgs([]string{"--help"})
	require.NoError(t, rootCmd.Execute())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "exactly10!", truncate("exactly10!", 10))
	assert.Equal(t, "this is...", truncate("this is far too long", 10))
}

func TestParseClientID(t *testing.T) {
	id, err := parseClientID("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	_, err = parseClientID("forty-two")
	assert.Error(t, err)
}
