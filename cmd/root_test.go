package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-cli/internal/config"
)

func TestApplyLogFlags(t *testing.T) {
	lc := config.LogConfig{Level: "info", Format: "json"}

	applyLogFlags(&lc, "", "")
	assert.Equal(t, config.LogConfig{Level: "info", Format: "json"}, lc)

	applyLogFlags(&lc, "debug", "console")
	assert.Equal(t, config.LogConfig{Level: "debug", Format: "console"}, lc)
}

func TestRootCommands(t *testing.T) {
	for _, name := range []string{"run", "seed", "serve", "prospects", "handoff", "suppress"} {
		cmd, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
	for _, flag := range []string{"config", "log-level", "log-format"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(flag), flag)
	}
}

func TestSeedClearsByDefault(t *testing.T) {
	f := seedCmd.Flags().Lookup("clear")
	require.NotNil(t, f)
	assert.Equal(t, "true", f.DefValue)
}
