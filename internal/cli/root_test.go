package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "marketctl", cmd.Use)
	assert.Contains(t, cmd.Long, "marketplace ledger")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"user"},
		{"products"},
		{"act"},
		{"scenario"},
		{"devnet", "init"},
		{"devnet", "register"},
		{"devnet", "accounts"},
		{"devnet", "journal"},
		{"devnet", "serve"},
	}

	for _, path := range commands {
		t.Run(path[len(path)-1], func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err)
			require.NotNil(t, subCmd)
			assert.Equal(t, path[len(path)-1], subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	for _, name := range []string{"config", "account"} {
		flag := cmd.PersistentFlags().Lookup(name)
		require.NotNil(t, flag, name)
		assert.Equal(t, "", flag.DefValue)
	}
}

func TestActCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	actCmd, _, err := cmd.Find([]string{"act"})
	require.NoError(t, err)

	for _, name := range []string{"amount", "description", "dev", "rev", "domain", "freelancer"} {
		assert.NotNil(t, actCmd.Flags().Lookup(name), name)
	}
	for _, a := range []string{"create", "assign_evaluator", "evaluator_decline"} {
		assert.Contains(t, actCmd.Long, a)
	}
}

func TestRegisterCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	regCmd, _, err := cmd.Find([]string{"devnet", "register"})
	require.NoError(t, err)

	assert.Equal(t, "web", regCmd.Flags().Lookup("domain").DefValue)
	assert.Equal(t, "0", regCmd.Flags().Lookup("balance").DefValue)
}

func TestInvalidFormat(t *testing.T) {
	isolateConfig(t)
	_, _, err := execute(t, "--format", "xml", "user")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), `invalid format "xml"`)
}

func TestInvalidConfig(t *testing.T) {
	isolateConfig(t)
	t.Setenv("MARKET_GAS", "lots")
	_, _, err := execute(t, "user")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load config")
}

func TestIsValidFormat(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))
	assert.False(t, isValidFormat("yaml"))
	assert.False(t, isValidFormat(""))
}
