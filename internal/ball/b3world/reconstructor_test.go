package b3world

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wicket-data/trajectory.report/internal/ball"
	"github.com/wicket-data/trajectory.report/internal/ball/b1obs"
	"github.com/wicket-data/trajectory.report/internal/ball/b2smooth"
)

func testConfig() Config {
	return Config{
		ImageWidthPx:   960,
		ImageHeightPx:  540,
		PitchLengthM:   20.12,
		LateralSpanM:   3.0,
		ReleaseHeightM: 1.6,
		ImpactHeightM:  0.2,
		BallRadiusM:    0.036,
	}
}

// filteredTrack builds FilteredStates directly, bypassing the smoother.
func filteredTrack(n int, x0, y0, vx, vy, fps float64) []b2smooth.FilteredState {
	states := make([]b2smooth.FilteredState, n)
	for i := 0; i < n; i++ {
		t := float64(i) / fps
		states[i] = b2smooth.FilteredState{
			FrameIndex: i,
			Timestamp:  t,
			Pos:        [2]float64{x0 + vx*t, y0 + vy*t},
			Vel:        [2]float64{vx, vy},
			Observed:   true,
		}
	}
	return states
}

// ---------------------------------------------------------------------------
// Planar mapping
// ---------------------------------------------------------------------------

func TestReconstructPlanarMapping(t *testing.T) {
	t.Parallel()

	r, err := NewReconstructor(testConfig())
	require.NoError(t, err)

	states := []b2smooth.FilteredState{
		{FrameIndex: 0, Timestamp: 0.0, Pos: [2]float64{480, 0}},   // image centre x, top row
		{FrameIndex: 1, Timestamp: 0.5, Pos: [2]float64{0, 270}},   // left edge, mid row
		{FrameIndex: 2, Timestamp: 1.0, Pos: [2]float64{960, 540}}, // right edge, bottom row
	}

	ws, err := r.Reconstruct(states, nil)
	require.NoError(t, err)
	require.Len(t, ws, 3)

	// Image centre x maps to zero lateral offset; top row is the full
	// pitch length from the stump plane.
	assert.InDelta(t, 0.0, ws[0].Pos[1], 1e-9)
	assert.InDelta(t, 20.12, ws[0].Pos[0], 1e-9)

	// Left edge maps to -span/2, mid row to half the pitch length.
	assert.InDelta(t, -1.5, ws[1].Pos[1], 1e-9)
	assert.InDelta(t, 10.06, ws[1].Pos[0], 1e-9)

	// Right edge maps to +span/2, bottom row to the stump plane.
	assert.InDelta(t, 1.5, ws[2].Pos[1], 1e-9)
	assert.InDelta(t, 0.0, ws[2].Pos[0], 1e-9)
}

func TestReconstructHeightProfile(t *testing.T) {
	t.Parallel()

	r, err := NewReconstructor(testConfig())
	require.NoError(t, err)

	states := filteredTrack(5, 100, 50, 200, 100, 30)
	ws, err := r.Reconstruct(states, nil)
	require.NoError(t, err)
	require.Len(t, ws, 5)

	// Linear height profile from release to impact across the track.
	assert.InDelta(t, 1.6, ws[0].Pos[2], 1e-9)
	assert.InDelta(t, 0.9, ws[2].Pos[2], 1e-9)
	assert.InDelta(t, 0.2, ws[4].Pos[2], 1e-9)
}

func TestReconstructHeightNeverNegative(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.ReleaseHeightM = 0
	cfg.ImpactHeightM = 0
	r, err := NewReconstructor(cfg)
	require.NoError(t, err)

	ws, err := r.Reconstruct(filteredTrack(10, 100, 50, 200, 100, 30), nil)
	require.NoError(t, err)
	for _, w := range ws {
		assert.GreaterOrEqual(t, w.Pos[2], 0.0)
	}
}

// ---------------------------------------------------------------------------
// Velocities
// ---------------------------------------------------------------------------

func TestReconstructFiniteDifferenceVelocities(t *testing.T) {
	t.Parallel()

	r, err := NewReconstructor(testConfig())
	require.NoError(t, err)

	// Constant pixel velocity maps to constant world velocity under the
	// affine planar transform, so every finite difference agrees.
	states := filteredTrack(30, 100, 500, 120, -12, 30)
	ws, err := r.Reconstruct(states, nil)
	require.NoError(t, err)

	wantVy := 120.0 / 960 * 3.0             // lateral from pixel x
	wantVx := -(-12.0) / 540 * 20.12        // along from pixel y, inverted axis
	wantVz := (0.2 - 1.6) / ws[29].Timestamp // height profile slope

	for _, w := range ws {
		assert.InDelta(t, wantVx, w.Vel[0], 1e-6)
		assert.InDelta(t, wantVy, w.Vel[1], 1e-6)
		assert.InDelta(t, wantVz, w.Vel[2], 1e-6)
	}
}

func TestReconstructSingleStateZeroVelocity(t *testing.T) {
	t.Parallel()

	r, err := NewReconstructor(testConfig())
	require.NoError(t, err)

	ws, err := r.Reconstruct(filteredTrack(1, 480, 270, 0, 0, 30), nil)
	require.NoError(t, err)
	require.Len(t, ws, 1)
	assert.Equal(t, [3]float64{}, ws[0].Vel)
}

func TestReconstructNonIncreasingTimestamps(t *testing.T) {
	t.Parallel()

	r, err := NewReconstructor(testConfig())
	require.NoError(t, err)

	states := filteredTrack(3, 100, 100, 50, 50, 30)
	states[2].Timestamp = states[1].Timestamp

	_, err = r.Reconstruct(states, nil)
	var merr *ball.MalformedInputError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, 2, merr.Frame)
}

// ---------------------------------------------------------------------------
// Depth channels
// ---------------------------------------------------------------------------

func TestReconstructPinholeDepth(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.FocalLengthPx = 1000
	cfg.CameraHeightM = 2.0
	r, err := NewReconstructor(cfg)
	require.NoError(t, err)

	depth := 5.0
	obs := []b1obs.Observation{
		{FrameIndex: 0, Timestamp: 0, X: 480, Y: 270, Depth: &depth, Confidence: 1, Detected: true},
	}
	states := []b2smooth.FilteredState{
		{FrameIndex: 0, Timestamp: 0, Pos: [2]float64{480, 270}},
	}

	ws, err := r.Reconstruct(states, obs)
	require.NoError(t, err)
	require.Len(t, ws, 1)

	// Principal point at depth 5: zero lateral, camera height, 5 m
	// short of the full pitch length.
	assert.InDelta(t, 20.12-5.0, ws[0].Pos[0], 1e-9)
	assert.InDelta(t, 0.0, ws[0].Pos[1], 1e-9)
	assert.InDelta(t, 2.0, ws[0].Pos[2], 1e-9)
}

func TestReconstructApparentSizeAnchor(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.FocalLengthPx = 1000
	cfg.CameraHeightM = 2.0
	r, err := NewReconstructor(cfg)
	require.NoError(t, err)

	// radius_px = f * R / d, so 7.2 px puts the ball at 5 m.
	obs := []b1obs.Observation{
		{FrameIndex: 0, Timestamp: 0, X: 480, Y: 270, RadiusPx: 7.2, Confidence: 1, Detected: true},
	}
	states := []b2smooth.FilteredState{
		{FrameIndex: 0, Timestamp: 0, Pos: [2]float64{480, 270}},
	}

	ws, err := r.Reconstruct(states, obs)
	require.NoError(t, err)
	assert.InDelta(t, 20.12-5.0, ws[0].Pos[0], 1e-6)
}

func TestReconstructApparentSizeSpeedClamp(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.FocalLengthPx = 1000
	cfg.CameraHeightM = 2.0
	r, err := NewReconstructor(cfg)
	require.NoError(t, err)

	// Second frame's radius collapses, implying an impossible 10 m jump
	// in 1/30 s. The depth step must be clamped to maxPlausibleSpeedMps.
	obs := []b1obs.Observation{
		{FrameIndex: 0, Timestamp: 0, X: 480, Y: 270, RadiusPx: 7.2, Confidence: 1, Detected: true},
		{FrameIndex: 1, Timestamp: 1.0 / 30, X: 480, Y: 270, RadiusPx: 2.4, Confidence: 1, Detected: true},
	}
	states := []b2smooth.FilteredState{
		{FrameIndex: 0, Timestamp: 0, Pos: [2]float64{480, 270}},
		{FrameIndex: 1, Timestamp: 1.0 / 30, Pos: [2]float64{480, 270}},
	}

	ws, err := r.Reconstruct(states, obs)
	require.NoError(t, err)

	d0 := 20.12 - ws[0].Pos[0]
	d1 := 20.12 - ws[1].Pos[0]
	assert.InDelta(t, 5.0, d0, 1e-6)
	assert.InDelta(t, 5.0+maxPlausibleSpeedMps/30, d1, 1e-6)
}

func TestReconstructMissedFramesFallBackToPlanar(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.FocalLengthPx = 1000
	cfg.CameraHeightM = 2.0
	r, err := NewReconstructor(cfg)
	require.NoError(t, err)

	// Gap frame has no observation, so it takes the planar path while
	// its neighbours use the apparent-size anchor.
	obs := []b1obs.Observation{
		{FrameIndex: 0, Timestamp: 0, X: 480, Y: 270, RadiusPx: 7.2, Confidence: 1, Detected: true},
		{FrameIndex: 2, Timestamp: 2.0 / 30, X: 480, Y: 270, RadiusPx: 7.2, Confidence: 1, Detected: true},
	}
	states := []b2smooth.FilteredState{
		{FrameIndex: 0, Timestamp: 0, Pos: [2]float64{480, 270}},
		{FrameIndex: 1, Timestamp: 1.0 / 30, Pos: [2]float64{480, 270}},
		{FrameIndex: 2, Timestamp: 2.0 / 30, Pos: [2]float64{480, 270}},
	}

	ws, err := r.Reconstruct(states, obs)
	require.NoError(t, err)
	require.Len(t, ws, 3)

	// Planar frame: image centre x is zero lateral, mid row is half the
	// pitch length from the stump plane.
	assert.InDelta(t, 10.06, ws[1].Pos[0], 1e-9)
	assert.InDelta(t, 20.12-5.0, ws[0].Pos[0], 1e-6)
	assert.InDelta(t, 20.12-5.0, ws[2].Pos[0], 1e-6)
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

func TestNewReconstructorValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero image width", func(c *Config) { c.ImageWidthPx = 0 }},
		{"zero image height", func(c *Config) { c.ImageHeightPx = 0 }},
		{"zero pitch length", func(c *Config) { c.PitchLengthM = 0 }},
		{"negative lateral span", func(c *Config) { c.LateralSpanM = -1 }},
		{"zero ball radius", func(c *Config) { c.BallRadiusM = 0 }},
		{"negative release height", func(c *Config) { c.ReleaseHeightM = -0.1 }},
		{"negative focal length", func(c *Config) { c.FocalLengthPx = -500 }},
		{"focal length without camera height", func(c *Config) { c.FocalLengthPx = 1000; c.CameraHeightM = 0 }},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := testConfig()
			tt.mutate(&cfg)
			_, err := NewReconstructor(cfg)
			var cerr *ball.ConfigurationError
			assert.True(t, errors.As(err, &cerr), "want ConfigurationError, got %v", err)
		})
	}
}

func TestReconstructEmptyInput(t *testing.T) {
	t.Parallel()

	r, err := NewReconstructor(testConfig())
	require.NoError(t, err)

	_, err = r.Reconstruct(nil, nil)
	var ierr *ball.InsufficientDataError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, "reconstructor", ierr.Stage)
}
