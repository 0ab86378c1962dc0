package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoot(t *testing.T) {
	cmd := Root()

	require.NotNil(t, cmd)
	assert.Equal(t, "stackforge", cmd.Use)
	assert.True(t, cmd.SilenceUsage)
}

func TestRoot_HasSubcommands(t *testing.T) {
	cmd := Root()

	subcommands := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		subcommands[sub.Name()] = true
	}

	for _, expected := range []string{"plan", "apply", "destroy", "outputs", "unlock", "version"} {
		assert.True(t, subcommands[expected], "Expected subcommand %s not found", expected)
	}
	assert.Len(t, cmd.Commands(), 6)
}

func TestCommonFlags(t *testing.T) {
	for _, cmd := range []*cobraCommand{
		{"plan", Plan().Flags().Lookup},
		{"apply", Apply().Flags().Lookup},
		{"destroy", Destroy().Flags().Lookup},
		{"outputs", Outputs().Flags().Lookup},
		{"unlock", Unlock().Flags().Lookup},
	} {
		t.Run(cmd.name, func(t *testing.T) {
			config := cmd.lookup("config")
			require.NotNil(t, config)
			assert.Equal(t, "c", config.Shorthand)
			assert.Equal(t, "", config.DefValue)

			logFormat := cmd.lookup("log-format")
			require.NotNil(t, logFormat)
			assert.Equal(t, "text", logFormat.DefValue)

			assert.NotNil(t, cmd.lookup("lock-mode"))
			assert.NotNil(t, cmd.lookup("metrics-file"))
		})
	}
}
