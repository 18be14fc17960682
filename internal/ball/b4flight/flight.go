package b4flight

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/wicket-data/trajectory.report/internal/ball"
	"github.com/wicket-data/trajectory.report/internal/ball/b3world"
	"github.com/wicket-data/trajectory.report/internal/config"
)

// bounceSearchStep is the coarse step used to bracket a bounce before
// bisection refines it.
const bounceSearchStep = 1e-3

// DragModel selects the aerodynamic model applied during
// extrapolation.
type DragModel string

const (
	DragNone   DragModel = "none"
	DragLinear DragModel = "linear"
)

// Config holds the predictor parameters.
type Config struct {
	GravityMps2        float64
	DragModel          DragModel
	DragCoefficient    float64 // per-second decay rate, linear model only
	Restitution        float64 // vertical speed ratio retained across a bounce
	BounceFriction     float64 // horizontal speed ratio retained across a bounce
	FitWindowFrames    int
	MinForwardSpeedMps float64
	MaxExtrapolationS  float64
	MaxBounces         int
	BallRadiusM        float64
	// ConvergenceTolerance is the bisection half-interval, in seconds,
	// at which a bounce time is accepted.
	ConvergenceTolerance float64
}

// ConfigFromTuning builds a predictor Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		GravityMps2:          cfg.GetGravityMps2(),
		DragModel:            DragModel(cfg.GetDragModel()),
		DragCoefficient:      cfg.GetDragCoefficient(),
		Restitution:          cfg.GetRestitution(),
		BounceFriction:       cfg.GetBounceFriction(),
		FitWindowFrames:      cfg.GetFitWindowFrames(),
		MinForwardSpeedMps:   cfg.GetMinForwardSpeedMps(),
		MaxExtrapolationS:    cfg.GetMaxExtrapolationS(),
		MaxBounces:           cfg.GetMaxBounces(),
		BallRadiusM:          cfg.GetBallRadiusM(),
		ConvergenceTolerance: cfg.GetConvergenceTolerance(),
	}
}

func (c Config) validate() error {
	switch c.DragModel {
	case DragNone, DragLinear:
	default:
		return &ball.ConfigurationError{Field: "drag_model", Reason: fmt.Sprintf("unknown model %q", c.DragModel)}
	}
	if c.DragModel == DragLinear && c.DragCoefficient <= 0 {
		return &ball.ConfigurationError{Field: "drag_coefficient", Reason: "must be positive for the linear model"}
	}
	if c.Restitution <= 0 || c.Restitution >= 1 {
		return &ball.ConfigurationError{Field: "restitution", Reason: fmt.Sprintf("must be in (0,1), got %f", c.Restitution)}
	}
	if c.BounceFriction <= 0 || c.BounceFriction > 1 {
		return &ball.ConfigurationError{Field: "bounce_friction", Reason: fmt.Sprintf("must be in (0,1], got %f", c.BounceFriction)}
	}
	if c.FitWindowFrames < 2 {
		return &ball.ConfigurationError{Field: "fit_window_frames", Reason: "must be at least 2"}
	}
	if c.MaxExtrapolationS <= 0 {
		return &ball.ConfigurationError{Field: "max_extrapolation_s", Reason: "must be positive"}
	}
	if c.MaxBounces < 0 {
		return &ball.ConfigurationError{Field: "max_bounces", Reason: "must be non-negative"}
	}
	if c.BallRadiusM <= 0 {
		return &ball.ConfigurationError{Field: "ball_radius_m", Reason: "must be positive"}
	}
	if c.ConvergenceTolerance <= 0 {
		return &ball.ConfigurationError{Field: "convergence_tolerance", Reason: "must be positive"}
	}
	return nil
}

// PhysicsArc is one closed-form flight phase between bounces. All
// evaluation is analytic, so two calls with the same argument always
// return the same value.
type PhysicsArc struct {
	T0       float64    // absolute start time
	Duration float64    // arc length in seconds; the final arc runs to the budget
	P0       [3]float64 // position at T0
	V0       [3]float64 // velocity at T0
	Gravity  float64
	DragK    float64 // 0 means no drag
}

// PositionAt evaluates the arc at dt seconds past T0.
func (a PhysicsArc) PositionAt(dt float64) [3]float64 {
	if a.DragK == 0 {
		return [3]float64{
			a.P0[0] + a.V0[0]*dt,
			a.P0[1] + a.V0[1]*dt,
			a.P0[2] + a.V0[2]*dt - 0.5*a.Gravity*dt*dt,
		}
	}
	k := a.DragK
	decay := (1 - math.Exp(-k*dt)) / k
	return [3]float64{
		a.P0[0] + a.V0[0]*decay,
		a.P0[1] + a.V0[1]*decay,
		a.P0[2] + (a.V0[2]+a.Gravity/k)*decay - a.Gravity/k*dt,
	}
}

// VelocityAt evaluates the arc velocity at dt seconds past T0.
func (a PhysicsArc) VelocityAt(dt float64) [3]float64 {
	if a.DragK == 0 {
		return [3]float64{a.V0[0], a.V0[1], a.V0[2] - a.Gravity*dt}
	}
	k := a.DragK
	e := math.Exp(-k * dt)
	return [3]float64{
		a.V0[0] * e,
		a.V0[1] * e,
		(a.V0[2]+a.Gravity/k)*e - a.Gravity/k,
	}
}

// TrajectorySegment is the predicted flight: one or more arcs chained
// by bounces, valid from LaunchTime for up to the extrapolation budget.
type TrajectorySegment struct {
	Arcs       []PhysicsArc
	LaunchTime float64
	BallRadius float64
}

// BounceEvent records one ground contact: where and when the ball
// pitched and the velocity change across the contact.
type BounceEvent struct {
	Time     float64
	Pos      [3]float64
	Incoming [3]float64
	Outgoing [3]float64
}

// Bounces lists the ground contacts the prediction contains, in time
// order. An empty slice means full-toss flight to the budget.
func (s *TrajectorySegment) Bounces() []BounceEvent {
	events := make([]BounceEvent, 0, len(s.Arcs)-1)
	for i := 0; i < len(s.Arcs)-1; i++ {
		in, out := s.Arcs[i], s.Arcs[i+1]
		events = append(events, BounceEvent{
			Time:     out.T0,
			Pos:      out.P0,
			Incoming: in.VelocityAt(in.Duration),
			Outgoing: out.V0,
		})
	}
	return events
}

// EndTime is the last instant the segment covers.
func (s *TrajectorySegment) EndTime() float64 {
	last := s.Arcs[len(s.Arcs)-1]
	return last.T0 + last.Duration
}

// arcAt picks the arc covering the absolute time t. Times before the
// launch evaluate on the first arc; times past the budget on the last.
func (s *TrajectorySegment) arcAt(t float64) PhysicsArc {
	for _, a := range s.Arcs[:len(s.Arcs)-1] {
		if t < a.T0+a.Duration {
			return a
		}
	}
	return s.Arcs[len(s.Arcs)-1]
}

// PositionAt evaluates the predicted position at absolute time t.
func (s *TrajectorySegment) PositionAt(t float64) [3]float64 {
	a := s.arcAt(t)
	return a.PositionAt(t - a.T0)
}

// VelocityAt evaluates the predicted velocity at absolute time t.
func (s *TrajectorySegment) VelocityAt(t float64) [3]float64 {
	a := s.arcAt(t)
	return a.VelocityAt(t - a.T0)
}

// Predict fits a launch state to the last FitWindowFrames world states
// and extrapolates it forward, chaining bounce arcs up to MaxBounces
// within the MaxExtrapolationS budget.
//
// Fewer than two states is an *ball.InsufficientDataError. A launch
// state moving away from the stump plane, or slower along the pitch
// than MinForwardSpeedMps, is an *ball.ImplausibleTrajectoryError.
func Predict(cfg Config, states []b3world.WorldState) (*TrajectorySegment, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if len(states) < 2 {
		return nil, &ball.InsufficientDataError{Stage: "predictor", Have: len(states), Need: 2}
	}

	window := states
	if len(window) > cfg.FitWindowFrames {
		window = window[len(window)-cfg.FitWindowFrames:]
	}

	p0, v0, launch, err := fitLaunch(cfg.GravityMps2, window)
	if err != nil {
		return nil, err
	}

	// The ball travels toward the stump plane at x=0, so the along-pitch
	// velocity must be negative and fast enough to matter.
	forward := -v0[0]
	if forward <= 0 {
		return nil, &ball.ImplausibleTrajectoryError{Stage: "predictor", Reason: "launch velocity points away from the stump plane"}
	}
	if forward < cfg.MinForwardSpeedMps {
		return nil, &ball.ImplausibleTrajectoryError{
			Stage:  "predictor",
			Reason: fmt.Sprintf("forward speed %.3f m/s below minimum %.3f m/s", forward, cfg.MinForwardSpeedMps),
		}
	}

	dragK := 0.0
	if cfg.DragModel == DragLinear {
		dragK = cfg.DragCoefficient
	}

	seg := &TrajectorySegment{LaunchTime: launch, BallRadius: cfg.BallRadiusM}
	arc := PhysicsArc{T0: launch, P0: p0, V0: v0, Gravity: cfg.GravityMps2, DragK: dragK}
	remaining := cfg.MaxExtrapolationS

	for bounce := 0; ; bounce++ {
		hit, ok := findBounce(arc, cfg.BallRadiusM, remaining, cfg.ConvergenceTolerance)
		if !ok || bounce >= cfg.MaxBounces {
			arc.Duration = remaining
			seg.Arcs = append(seg.Arcs, arc)
			return seg, nil
		}

		arc.Duration = hit
		seg.Arcs = append(seg.Arcs, arc)
		remaining -= hit

		pos := arc.PositionAt(hit)
		vel := arc.VelocityAt(hit)
		pos[2] = cfg.BallRadiusM
		arc = PhysicsArc{
			T0:      arc.T0 + hit,
			P0:      pos,
			V0:      [3]float64{vel[0] * cfg.BounceFriction, vel[1] * cfg.BounceFriction, -vel[2] * cfg.Restitution},
			Gravity: cfg.GravityMps2,
			DragK:   dragK,
		}
	}
}

// fitLaunch runs a weighted least-squares line fit over the window,
// with gravity removed from the height channel first, and returns the
// position and velocity evaluated at the window's last timestamp.
func fitLaunch(gravity float64, window []b3world.WorldState) (p0, v0 [3]float64, launch float64, err error) {
	n := len(window)
	t0 := window[0].Timestamp
	taus := make([]float64, n)
	weights := make([]float64, n)
	for i, w := range window {
		taus[i] = w.Timestamp - t0
		if i > 0 && taus[i] <= taus[i-1] {
			return p0, v0, 0, &ball.MalformedInputError{Reason: "non-increasing timestamps in fit window"}
		}
		// Later samples dominate the fit; the launch state describes
		// the end of the observed track, not its middle.
		weights[i] = float64(i + 1)
	}

	launch = window[n-1].Timestamp
	tauEnd := taus[n-1]

	ch := make([]float64, n)
	for axis := 0; axis < 3; axis++ {
		for i, w := range window {
			ch[i] = w.Pos[axis]
			if axis == 2 {
				ch[i] += 0.5 * gravity * taus[i] * taus[i]
			}
		}
		alpha, beta := stat.LinearRegression(taus, ch, weights, false)
		if math.IsNaN(alpha) || math.IsInf(alpha, 0) || math.IsNaN(beta) || math.IsInf(beta, 0) {
			return p0, v0, 0, &ball.ImplausibleTrajectoryError{Stage: "predictor", Reason: "degenerate launch fit"}
		}
		p0[axis] = alpha + beta*tauEnd
		v0[axis] = beta
		if axis == 2 {
			p0[axis] -= 0.5 * gravity * tauEnd * tauEnd
			v0[axis] -= gravity * tauEnd
		}
	}
	return p0, v0, launch, nil
}

// findBounce locates the first descending crossing of the contact
// plane z=radius within budget seconds of the arc start. Coarse
// stepping brackets the crossing, bisection refines it.
func findBounce(a PhysicsArc, radius, budget, tol float64) (float64, bool) {
	above := func(dt float64) bool {
		return a.PositionAt(dt)[2] > radius
	}

	// A launch already at or below the plane only bounces if it is
	// descending; otherwise it climbs away and the next crossing is
	// found by the scan.
	prev := 0.0
	prevAbove := above(0)
	if !prevAbove && a.VelocityAt(0)[2] >= 0 {
		for prev < budget && !above(prev) {
			prev += bounceSearchStep
		}
		if prev >= budget {
			return 0, false
		}
		prevAbove = true
	}

	for t := prev + bounceSearchStep; t <= budget; t += bounceSearchStep {
		nowAbove := above(t)
		if prevAbove && !nowAbove {
			lo, hi := prev, t
			for hi-lo > tol {
				mid := (lo + hi) / 2
				if above(mid) {
					lo = mid
				} else {
					hi = mid
				}
			}
			return (lo + hi) / 2, true
		}
		prev, prevAbove = t, nowAbove
	}
	return 0, false
}
