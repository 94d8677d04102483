package logflags

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupRejectsUnknownSubsystem(t *testing.T) {
	err := Setup("not-a-real-subsystem")
	require.Error(t, err)
}

func TestSetupSkipsBlankEntries(t *testing.T) {
	err := Setup(" , ,processor, ")
	require.NoError(t, err)
	require.True(t, enabled[processorLogger])
}

func TestLoggerDisabledBySubsystemDiscardsOutput(t *testing.T) {
	entry := logger(unwindLogger)
	require.Equal(t, "unwind", entry.Data["layer"])
	require.NotEqual(t, root, entry.Logger, "a disabled subsystem must not share the root logger")
}

func TestLoggerEnabledBySubsystemUsesRoot(t *testing.T) {
	require.NoError(t, Setup(symbolizeLogger))
	entry := logger(symbolizeLogger)
	require.Same(t, root, entry.Logger)
}
