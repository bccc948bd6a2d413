package gridsim

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trafficflow/internal/config"
	"trafficflow/internal/logger"
	"trafficflow/internal/model"
	"trafficflow/internal/service/segmentation"
	"trafficflow/internal/service/source"
)

func newSim() *Sim {
	return New(800, 600, config.DefaultCalibration())
}

func stepN(t *testing.T, s *Sim, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, s.Step())
	}
}

func TestSignalProgram(t *testing.T) {
	s := newSim()

	stepN(t, s, 1)
	ns, _ := s.SignalState(SignalNorthSouth)
	we, _ := s.SignalState(SignalWestEast)
	assert.Equal(t, "GG", ns)
	assert.Equal(t, "rr", we)

	stepN(t, s, 20) // step 21
	ns, _ = s.SignalState(SignalNorthSouth)
	assert.Equal(t, "yy", ns)

	stepN(t, s, 4) // step 25
	ns, _ = s.SignalState(SignalNorthSouth)
	we, _ = s.SignalState(SignalWestEast)
	assert.Equal(t, "rr", ns)
	assert.Equal(t, "GG", we)

	_, err := s.SignalState("nope")
	assert.Error(t, err)
}

func TestQueuesBuildOnRed(t *testing.T) {
	s := newSim()
	stepN(t, s, 20)

	q := s.Queues()
	// west-east is red for the first phase, north-south drains
	assert.Equal(t, 5, q[model.LaneLeft])
	assert.Equal(t, 4, q[model.LaneRight])
	assert.Zero(t, q[model.LaneTop])
	assert.Zero(t, q[model.LaneBottom])
}

func TestQueuesAreCapped(t *testing.T) {
	s := newSim()
	stepN(t, s, 500)

	for lane, n := range s.Queues() {
		assert.LessOrEqual(t, n, s.capacity[lane], lane)
	}
}

func TestRenderedFrameMatchesQueues(t *testing.T) {
	s := newSim()
	segmenter := segmentation.NewSegmenterService(config.DefaultCalibration(), logger.Discard())

	for _, steps := range []int{20, 24, 40, 90} {
		stepN(t, s, steps)

		frame, err := s.Render()
		require.NoError(t, err)

		counts, err := segmenter.CountVehicles(frame)
		require.NoError(t, err)
		assert.Equal(t, s.Queues(), counts)
	}
}

func TestScreenshot(t *testing.T) {
	s := newSim()
	stepN(t, s, 10)

	boundary, err := s.NetBoundary()
	require.NoError(t, err)
	assert.Equal(t, source.Boundary{MaxX: 800, MaxY: 600}, boundary)

	dest := filepath.Join(t.TempDir(), "shot.png")
	require.NoError(t, s.Screenshot(boundary, dest))

	info, err := os.Stat(dest)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	assert.Error(t, s.Screenshot(source.Boundary{}, dest))
}

func TestClosed(t *testing.T) {
	s := newSim()
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Step(), ErrClosed)
	_, err := s.SignalIDs()
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.Render()
	assert.ErrorIs(t, err, ErrClosed)
}
