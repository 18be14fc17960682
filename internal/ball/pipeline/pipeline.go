package pipeline

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/wicket-data/trajectory.report/internal/ball/b1obs"
	"github.com/wicket-data/trajectory.report/internal/ball/b2smooth"
	"github.com/wicket-data/trajectory.report/internal/ball/b3world"
	"github.com/wicket-data/trajectory.report/internal/ball/b4flight"
	"github.com/wicket-data/trajectory.report/internal/ball/b5verdict"
	"github.com/wicket-data/trajectory.report/internal/config"
	"github.com/wicket-data/trajectory.report/internal/monitoring"
)

// Result carries everything a single run produced. Intermediate stage
// outputs are retained so persistence and export never re-run a stage.
type Result struct {
	RunID       string
	Filtered    []b2smooth.FilteredState
	WorldStates []b3world.WorldState
	Segment     *b4flight.TrajectorySegment
	Decision    b5verdict.Decision
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return "run_" + uuid.New().String()
}

// Run executes the full stage chain on a loaded observation stream.
// Stages run strictly in order and each failure aborts the run with
// the stage name wrapped around the typed layer error.
func Run(cfg *config.TuningConfig, obs []b1obs.Observation) (*Result, error) {
	res := &Result{RunID: NewRunID()}

	monitoring.Logf("pipeline: run %s starting with %d observations (%d detected)",
		res.RunID, len(obs), b1obs.DetectedCount(obs))

	filtered, err := b2smooth.Smooth(b2smooth.ConfigFromTuning(cfg), obs)
	if err != nil {
		return nil, fmt.Errorf("smoother: %w", err)
	}
	res.Filtered = filtered

	rec, err := b3world.NewReconstructor(b3world.ConfigFromTuning(cfg))
	if err != nil {
		return nil, fmt.Errorf("reconstructor: %w", err)
	}
	world, err := rec.Reconstruct(filtered, obs)
	if err != nil {
		return nil, fmt.Errorf("reconstructor: %w", err)
	}
	res.WorldStates = world

	seg, err := b4flight.Predict(b4flight.ConfigFromTuning(cfg), world)
	if err != nil {
		return nil, fmt.Errorf("predictor: %w", err)
	}
	res.Segment = seg

	decision, err := b5verdict.Evaluate(seg, b5verdict.TargetFromTuning(cfg), cfg.GetMarginToleranceM())
	if err != nil {
		return nil, fmt.Errorf("verdict: %w", err)
	}
	res.Decision = decision

	monitoring.Logf("pipeline: run %s verdict=%s impact=(%.3f, %.3f, %.3f) margin=%.3fm bounces=%d",
		res.RunID, decision.Verdict,
		decision.ImpactPoint[0], decision.ImpactPoint[1], decision.ImpactPoint[2],
		decision.Margin, len(seg.Bounces()))

	return res, nil
}

// RunFile loads an observation file and runs the pipeline on it.
func RunFile(cfg *config.TuningConfig, path string) (*Result, error) {
	obs, err := b1obs.LoadFile(path, cfg.GetFrameRate())
	if err != nil {
		return nil, fmt.Errorf("observations: %w", err)
	}
	return Run(cfg, obs)
}
