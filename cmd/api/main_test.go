package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := newRootCommand()
	for _, name := range []string{"serve", "seed-prompts", "import-script", "export", "project"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
	cmd, _, err := root.Find([]string{"project", "add-member"})
	require.NoError(t, err)
	assert.Equal(t, "user", cmd.Flag("role").DefValue)
}

func TestParseID(t *testing.T) {
	id, err := parseID("12")
	require.NoError(t, err)
	assert.EqualValues(t, 12, id)

	for _, raw := range []string{"", "0", "-3", "abc"} {
		_, err := parseID(raw)
		assert.Error(t, err, raw)
	}
}
