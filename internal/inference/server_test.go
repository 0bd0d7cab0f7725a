package inference

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFreePort(t *testing.T) {
	t.Parallel()

	port, err := FreePort()
	require.NoError(t, err)
	assert.Greater(t, port, 0)
	assert.LessOrEqual(t, port, 65535)
}

func TestSupervisorStopBeforeStart(t *testing.T) {
	t.Parallel()

	s := &Supervisor{}
	// Stop on a never-started supervisor must be a safe no-op.
	s.Stop()
	s.Stop()
	assert.Equal(t, StateStopped, s.State())
}
