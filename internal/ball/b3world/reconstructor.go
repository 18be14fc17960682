package b3world

import (
	"fmt"
	"math"

	"github.com/wicket-data/trajectory.report/internal/ball"
	"github.com/wicket-data/trajectory.report/internal/ball/b1obs"
	"github.com/wicket-data/trajectory.report/internal/ball/b2smooth"
	"github.com/wicket-data/trajectory.report/internal/config"
)

// maxPlausibleSpeedMps bounds the per-frame depth change accepted from
// the apparent-size anchor. Faster than any recorded delivery; jumps
// implying more than this are detector radius noise, not motion.
const maxPlausibleSpeedMps = 55.0

// Config holds the camera/scene parameters.
type Config struct {
	ImageWidthPx   float64
	ImageHeightPx  float64
	PitchLengthM   float64 // stump plane to the far crease in the image
	LateralSpanM   float64 // lateral extent covered by the image width at the pitch
	ReleaseHeightM float64 // assumed height at the first tracked frame
	ImpactHeightM  float64 // assumed height near the stump plane
	BallRadiusM    float64
	FocalLengthPx  float64 // 0 disables the pinhole depth paths
	CameraHeightM  float64 // camera height above the pitch, used with FocalLengthPx
}

// ConfigFromTuning builds a reconstructor Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		ImageWidthPx:   cfg.GetImageWidthPx(),
		ImageHeightPx:  cfg.GetImageHeightPx(),
		PitchLengthM:   cfg.GetPitchLengthM(),
		LateralSpanM:   cfg.GetLateralSpanM(),
		ReleaseHeightM: cfg.GetReleaseHeightM(),
		ImpactHeightM:  cfg.GetImpactHeightM(),
		BallRadiusM:    cfg.GetBallRadiusM(),
		FocalLengthPx:  cfg.GetFocalLengthPx(),
		CameraHeightM:  cfg.GetCameraHeightM(),
	}
}

// WorldState is one reconstructed 3D sample. Never mutated after the
// reconstructor emits it.
type WorldState struct {
	Timestamp float64
	Pos       [3]float64 // x along pitch, y lateral, z height
	Vel       [3]float64
}

// Reconstructor converts FilteredStates to WorldStates. Construction
// validates the configuration so a bad camera setup fails before any
// frame is processed.
type Reconstructor struct {
	cfg Config
}

// NewReconstructor validates cfg and returns a reconstructor.
// Missing or non-positive required parameters are a
// *ball.ConfigurationError.
func NewReconstructor(cfg Config) (*Reconstructor, error) {
	required := map[string]float64{
		"image_width_px":  cfg.ImageWidthPx,
		"image_height_px": cfg.ImageHeightPx,
		"pitch_length_m":  cfg.PitchLengthM,
		"lateral_span_m":  cfg.LateralSpanM,
		"ball_radius_m":   cfg.BallRadiusM,
	}
	for field, v := range required {
		if v <= 0 {
			return nil, &ball.ConfigurationError{Field: field, Reason: fmt.Sprintf("must be positive, got %f", v)}
		}
	}
	if cfg.ReleaseHeightM < 0 || cfg.ImpactHeightM < 0 {
		return nil, &ball.ConfigurationError{Field: "release_height_m/impact_height_m", Reason: "must be non-negative"}
	}
	if cfg.FocalLengthPx < 0 {
		return nil, &ball.ConfigurationError{Field: "focal_length_px", Reason: fmt.Sprintf("must be non-negative, got %f", cfg.FocalLengthPx)}
	}
	if cfg.FocalLengthPx > 0 && cfg.CameraHeightM <= 0 {
		return nil, &ball.ConfigurationError{Field: "camera_height_m", Reason: "required when focal_length_px is set"}
	}
	return &Reconstructor{cfg: cfg}, nil
}

// Reconstruct produces one WorldState per FilteredState. The raw
// observations supply the optional depth and apparent-size channels;
// they are matched to states by frame index and may be nil when the
// stream is purely monocular.
func (r *Reconstructor) Reconstruct(states []b2smooth.FilteredState, obs []b1obs.Observation) ([]WorldState, error) {
	if len(states) == 0 {
		return nil, &ball.InsufficientDataError{Stage: "reconstructor", Have: 0, Need: 1}
	}

	byFrame := make(map[int]b1obs.Observation, len(obs))
	for _, o := range obs {
		byFrame[o.FrameIndex] = o
	}

	out := make([]WorldState, len(states))
	prevDepth := math.NaN()
	prevTs := 0.0
	for i, s := range states {
		o, hasObs := byFrame[s.FrameIndex]

		var pos [3]float64
		switch {
		case hasObs && o.Depth != nil && r.cfg.FocalLengthPx > 0:
			// Depth-augmented detector: direct pinhole transform from
			// the camera frame into the world frame.
			pos = r.pinhole(s.Pos[0], s.Pos[1], *o.Depth)
		case hasObs && o.Detected && o.RadiusPx > 0 && r.cfg.FocalLengthPx > 0:
			// Monocular with tracked apparent size: the known physical
			// radius anchors the depth estimate. Frame-to-frame depth
			// change is clamped to a plausible speed, a consistency
			// check against the motion model rather than a joint
			// optimisation.
			depth := r.cfg.FocalLengthPx * r.cfg.BallRadiusM / o.RadiusPx
			if !math.IsNaN(prevDepth) {
				dt := s.Timestamp - prevTs
				if dt > 0 {
					maxStep := maxPlausibleSpeedMps * dt
					if depth > prevDepth+maxStep {
						depth = prevDepth + maxStep
					} else if depth < prevDepth-maxStep {
						depth = prevDepth - maxStep
					}
				}
			}
			prevDepth = depth
			prevTs = s.Timestamp
			pos = r.pinhole(s.Pos[0], s.Pos[1], depth)
		default:
			// Pure monocular: planar mapping with the assumed height
			// profile between release and impact.
			frac := 0.0
			if len(states) > 1 {
				frac = float64(i) / float64(len(states)-1)
			}
			pos = r.planar(s.Pos[0], s.Pos[1], frac)
		}

		// Height invariant: the ball centre cannot sit below the pitch
		// surface beyond the radius tolerance.
		if pos[2] < 0 {
			pos[2] = 0
		}

		out[i] = WorldState{Timestamp: s.Timestamp, Pos: pos}
	}

	// Velocities by finite difference of consecutive reconstructed
	// positions, never copied from the smoother's internal velocity
	// parameterisation.
	for i := 0; len(out) > 1 && i < len(out); i++ {
		j, k := i, i+1
		if i == len(out)-1 {
			j, k = i-1, i
		}
		dt := out[k].Timestamp - out[j].Timestamp
		if dt <= 0 {
			return nil, &ball.MalformedInputError{Frame: states[k].FrameIndex, Reason: "non-increasing timestamps"}
		}
		for a := 0; a < 3; a++ {
			out[i].Vel[a] = (out[k].Pos[a] - out[j].Pos[a]) / dt
		}
	}

	return out, nil
}

// planar maps an image-plane point into the world frame using the
// scene-constraint heuristic: image x spans the configured lateral
// extent, image y spans the pitch length (top of image farthest from
// the stump plane), height follows the linear release→impact profile.
func (r *Reconstructor) planar(px, py, frac float64) [3]float64 {
	lateral := (px/r.cfg.ImageWidthPx)*r.cfg.LateralSpanM - r.cfg.LateralSpanM/2
	along := (1 - py/r.cfg.ImageHeightPx) * r.cfg.PitchLengthM
	height := r.cfg.ReleaseHeightM + (r.cfg.ImpactHeightM-r.cfg.ReleaseHeightM)*frac
	return [3]float64{along, lateral, height}
}

// pinhole maps an image-plane point at a known camera-frame depth into
// the world frame. The camera sits above the bowler's end crease at
// the configured height, optical axis level along the pitch toward the
// stump plane.
func (r *Reconstructor) pinhole(px, py, depth float64) [3]float64 {
	cx := r.cfg.ImageWidthPx / 2
	cy := r.cfg.ImageHeightPx / 2
	lateral := (px - cx) / r.cfg.FocalLengthPx * depth
	height := r.cfg.CameraHeightM - (py-cy)/r.cfg.FocalLengthPx*depth
	along := r.cfg.PitchLengthM - depth
	return [3]float64{along, lateral, height}
}
