package b5verdict

import (
	"fmt"

	"github.com/wicket-data/trajectory.report/internal/ball"
	"github.com/wicket-data/trajectory.report/internal/ball/b4flight"
	"github.com/wicket-data/trajectory.report/internal/config"
)

// crossingTimeTolerance is the bisection half-interval at which the
// stump-plane crossing time is accepted.
const crossingTimeTolerance = 1e-9

// crossingSearchStep is the coarse step used to bracket the crossing
// before bisection refines it.
const crossingSearchStep = 1e-3

// Verdict is the tri-state outcome of a trajectory evaluation.
type Verdict string

const (
	VerdictHitting  Verdict = "hitting"
	VerdictMissing  Verdict = "missing"
	VerdictMarginal Verdict = "marginal"
)

// TargetVolume is the wicket cross-section at the stump plane. The
// box bounds the three stump cylinders; the ball radius widens it so
// the test is on the ball centre.
type TargetVolume struct {
	StumpPlaneX float64 // along-pitch coordinate of the stump plane
	CenterY     float64 // lateral centre of the middle stump
	HalfWidth   float64 // outer edge of the off/leg stumps from centre
	Height      float64 // top of the stumps above the pitch
	StumpRadius float64
	BallRadius  float64
}

// TargetFromTuning builds the wicket geometry from a loaded
// TuningConfig. The stump plane sits at the world origin.
func TargetFromTuning(cfg *config.TuningConfig) TargetVolume {
	return TargetVolume{
		StumpPlaneX: 0,
		CenterY:     0,
		HalfWidth:   cfg.GetStumpHalfWidthM(),
		Height:      cfg.GetStumpHeightM(),
		StumpRadius: cfg.GetStumpRadiusM(),
		BallRadius:  cfg.GetBallRadiusM(),
	}
}

func (v TargetVolume) validate() error {
	if v.HalfWidth <= 0 {
		return &ball.ConfigurationError{Field: "stump_half_width_m", Reason: "must be positive"}
	}
	if v.Height <= 0 {
		return &ball.ConfigurationError{Field: "stump_height_m", Reason: "must be positive"}
	}
	if v.BallRadius <= 0 {
		return &ball.ConfigurationError{Field: "ball_radius_m", Reason: "must be positive"}
	}
	return nil
}

// Decision is the terminal artifact of a run.
type Decision struct {
	Verdict Verdict `json:"verdict"`
	// ImpactTime is the absolute time of the stump-plane crossing.
	ImpactTime float64 `json:"impact_time"`
	// ImpactPoint is the ball centre at the crossing.
	ImpactPoint [3]float64 `json:"impact_point"`
	// ImpactHeight duplicates ImpactPoint[2] for direct consumption.
	ImpactHeight float64 `json:"impact_height"`
	// Margin is the signed distance from the volume edge, positive
	// inside.
	Margin float64 `json:"margin"`
}

// Evaluate solves the stump-plane crossing on the predicted trajectory
// and classifies the impact point against the target volume.
//
// Margin is the signed distance of the ball centre from the nearest
// edge of the radius-widened target box: positive inside, negative
// outside. The verdict is marginal when |Margin| <= tolerance.
//
// A trajectory that never reaches the stump plane within its budget is
// an *ball.ImplausibleTrajectoryError.
func Evaluate(seg *b4flight.TrajectorySegment, target TargetVolume, tolerance float64) (Decision, error) {
	if err := target.validate(); err != nil {
		return Decision{}, err
	}
	if tolerance < 0 {
		return Decision{}, &ball.ConfigurationError{Field: "margin_tolerance_m", Reason: "must be non-negative"}
	}

	impactTime, err := crossingTime(seg, target.StumpPlaneX)
	if err != nil {
		return Decision{}, err
	}
	impact := seg.PositionAt(impactTime)

	// Signed distance to the widened box: the binding constraint is
	// whichever edge the centre is closest to crossing.
	lateral := (target.HalfWidth + target.BallRadius) - abs(impact[1]-target.CenterY)
	vertical := (target.Height + target.BallRadius) - impact[2]
	margin := lateral
	if vertical < margin {
		margin = vertical
	}

	verdict := VerdictMarginal
	switch {
	case margin > tolerance:
		verdict = VerdictHitting
	case margin < -tolerance:
		verdict = VerdictMissing
	}

	return Decision{
		Verdict:      verdict,
		ImpactTime:   impactTime,
		ImpactPoint:  impact,
		ImpactHeight: impact[2],
		Margin:       margin,
	}, nil
}

// crossingTime finds the first time the along-pitch coordinate reaches
// the stump plane. The trajectory is monotone toward the plane within
// each arc, so a coarse bracket plus bisection is exact enough.
func crossingTime(seg *b4flight.TrajectorySegment, planeX float64) (float64, error) {
	start, end := seg.LaunchTime, seg.EndTime()

	short := func(t float64) bool {
		return seg.PositionAt(t)[0] > planeX
	}

	if !short(start) {
		// Already at or past the plane at launch.
		return start, nil
	}

	prev := start
	for t := start + crossingSearchStep; t <= end; t += crossingSearchStep {
		if !short(t) {
			lo, hi := prev, t
			for hi-lo > crossingTimeTolerance {
				mid := (lo + hi) / 2
				if short(mid) {
					lo = mid
				} else {
					hi = mid
				}
			}
			return (lo + hi) / 2, nil
		}
		prev = t
	}
	if !short(end) {
		lo, hi := prev, end
		for hi-lo > crossingTimeTolerance {
			mid := (lo + hi) / 2
			if short(mid) {
				lo = mid
			} else {
				hi = mid
			}
		}
		return (lo + hi) / 2, nil
	}
	return 0, &ball.ImplausibleTrajectoryError{
		Stage:  "verdict",
		Reason: fmt.Sprintf("trajectory stops %.3f m short of the stump plane within the extrapolation budget", seg.PositionAt(end)[0]-planeX),
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
