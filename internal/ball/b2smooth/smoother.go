package b2smooth

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/wicket-data/trajectory.report/internal/ball"
	"github.com/wicket-data/trajectory.report/internal/ball/b1obs"
	"github.com/wicket-data/trajectory.report/internal/config"
)

// stateDim is the filter state [x, y, vx, vy]; measDim the measured [x, y].
const (
	stateDim = 4
	measDim  = 2
)

// Config holds the smoother tuning parameters.
type Config struct {
	ProcessNoisePos    float64 // position process noise σ², dt-normalised
	ProcessNoiseVel    float64 // velocity process noise σ², dt-normalised
	MeasurementNoise   float64 // measurement noise σ² (pixel variance)
	InitialPosVariance float64
	InitialVelVariance float64
	MinConfidence      float64 // observations below this are treated as missed
	MaxConsecutiveMisses int   // gap budget before the track is declared lost
}

// ConfigFromTuning builds a smoother Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		ProcessNoisePos:      cfg.GetProcessNoisePos(),
		ProcessNoiseVel:      cfg.GetProcessNoiseVel(),
		MeasurementNoise:     cfg.GetMeasurementNoise(),
		InitialPosVariance:   cfg.GetInitialPosVariance(),
		InitialVelVariance:   cfg.GetInitialVelVariance(),
		MinConfidence:        cfg.GetMinConfidence(),
		MaxConsecutiveMisses: cfg.GetMaxConsecutiveMisses(),
	}
}

// FilteredState is the smoothed per-frame estimate. Never mutated after
// the smoother emits it.
type FilteredState struct {
	FrameIndex int
	Timestamp  float64
	Pos        [2]float64
	Vel        [2]float64
	Cov        *mat.SymDense // 4x4, positive semi-definite
	Observed   bool          // true when a detection was fused at this frame
}

// filter carries the running Kalman state between frames.
type filter struct {
	cfg Config
	x   *mat.VecDense // [x y vx vy]
	p   *mat.Dense    // 4x4 covariance
}

func newFilter(cfg Config, obs b1obs.Observation) *filter {
	x := mat.NewVecDense(stateDim, []float64{obs.X, obs.Y, 0, 0})
	p := mat.NewDense(stateDim, stateDim, nil)
	p.Set(0, 0, cfg.InitialPosVariance)
	p.Set(1, 1, cfg.InitialPosVariance)
	p.Set(2, 2, cfg.InitialVelVariance)
	p.Set(3, 3, cfg.InitialVelVariance)
	return &filter{cfg: cfg, x: x, p: p}
}

// predict propagates the state by dt under the constant-velocity model
// and grows the covariance by the dt-scaled process noise.
func (f *filter) predict(dt float64) {
	if dt <= 0 {
		return
	}

	// F = [1 0 dt 0; 0 1 0 dt; 0 0 1 0; 0 0 0 1]
	fm := mat.NewDense(stateDim, stateDim, []float64{
		1, 0, dt, 0,
		0, 1, 0, dt,
		0, 0, 1, 0,
		0, 0, 0, 1,
	})

	var fx mat.VecDense
	fx.MulVec(fm, f.x)
	f.x.CopyVec(&fx)

	// P = F P Fᵀ + Q
	var fp, fpft mat.Dense
	fp.Mul(fm, f.p)
	fpft.Mul(&fp, fm.T())
	f.p.Copy(&fpft)
	f.p.Set(0, 0, f.p.At(0, 0)+f.cfg.ProcessNoisePos*dt)
	f.p.Set(1, 1, f.p.At(1, 1)+f.cfg.ProcessNoisePos*dt)
	f.p.Set(2, 2, f.p.At(2, 2)+f.cfg.ProcessNoiseVel*dt)
	f.p.Set(3, 3, f.p.At(3, 3)+f.cfg.ProcessNoiseVel*dt)
	f.symmetrize()
}

// update fuses a position measurement using the Joseph-form covariance
// update, which keeps P symmetric positive semi-definite under
// floating-point accumulation. The plain (I-KH)P form is not used: its
// asymmetric rounding is a correctness bug for long runs, not a
// tolerable approximation.
func (f *filter) update(zx, zy float64) error {
	h := mat.NewDense(measDim, stateDim, []float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
	})
	r := mat.NewDense(measDim, measDim, []float64{
		f.cfg.MeasurementNoise, 0,
		0, f.cfg.MeasurementNoise,
	})

	// Innovation y = z - H x
	z := mat.NewVecDense(measDim, []float64{zx, zy})
	var hx, y mat.VecDense
	hx.MulVec(h, f.x)
	y.SubVec(z, &hx)

	// S = H P Hᵀ + R
	var hp, s mat.Dense
	hp.Mul(h, f.p)
	s.Mul(&hp, h.T())
	s.Add(&s, r)

	var sInv mat.Dense
	if err := sInv.Inverse(&s); err != nil {
		return fmt.Errorf("singular innovation covariance: %w", err)
	}

	// K = P Hᵀ S⁻¹
	var pht, k mat.Dense
	pht.Mul(f.p, h.T())
	k.Mul(&pht, &sInv)

	// x = x + K y
	var ky mat.VecDense
	ky.MulVec(&k, &y)
	f.x.AddVec(f.x, &ky)

	// Joseph form: P = (I-KH) P (I-KH)ᵀ + K R Kᵀ
	var kh, a mat.Dense
	kh.Mul(&k, h)
	a.Scale(-1, &kh)
	for i := 0; i < stateDim; i++ {
		a.Set(i, i, a.At(i, i)+1)
	}
	var ap, apat, kr, krkt mat.Dense
	ap.Mul(&a, f.p)
	apat.Mul(&ap, a.T())
	kr.Mul(&k, r)
	krkt.Mul(&kr, k.T())
	f.p.Add(&apat, &krkt)
	f.symmetrize()

	return nil
}

// symmetrize replaces P with (P+Pᵀ)/2 to cancel rounding drift.
func (f *filter) symmetrize() {
	var pt mat.Dense
	pt.CloneFrom(f.p.T())
	f.p.Add(f.p, &pt)
	f.p.Scale(0.5, f.p)
}

func (f *filter) finite() bool {
	for i := 0; i < stateDim; i++ {
		if v := f.x.AtVec(i); math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
		if v := f.p.At(i, i); math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (f *filter) snapshot(frame int, ts float64, observed bool) FilteredState {
	cov := mat.NewSymDense(stateDim, nil)
	for i := 0; i < stateDim; i++ {
		for j := i; j < stateDim; j++ {
			cov.SetSym(i, j, (f.p.At(i, j)+f.p.At(j, i))/2)
		}
	}
	return FilteredState{
		FrameIndex: frame,
		Timestamp:  ts,
		Pos:        [2]float64{f.x.AtVec(0), f.x.AtVec(1)},
		Vel:        [2]float64{f.x.AtVec(2), f.x.AtVec(3)},
		Cov:        cov,
		Observed:   observed,
	}
}

// Smooth filters the observation stream and returns one FilteredState
// per frame index from the first to the last record, filling record
// gaps by prediction. A stream with no usable detection is
// *ball.InsufficientDataError; a run of consecutive missed frames
// longer than the configured budget is *ball.TrackLostError.
func Smooth(cfg Config, obs []b1obs.Observation) ([]FilteredState, error) {
	if cfg.MaxConsecutiveMisses < 1 {
		return nil, &ball.ConfigurationError{Field: "max_consecutive_misses", Reason: "must be at least 1"}
	}

	usable := func(o b1obs.Observation) bool {
		return o.Detected && o.Confidence >= cfg.MinConfidence
	}

	firstIdx := -1
	for i, o := range obs {
		if usable(o) {
			firstIdx = i
			break
		}
	}
	if firstIdx < 0 {
		return nil, &ball.InsufficientDataError{Stage: "smoother", Have: 0, Need: 1}
	}

	f := newFilter(cfg, obs[firstIdx])

	firstFrame := obs[0].FrameIndex
	lastFrame := obs[len(obs)-1].FrameIndex
	out := make([]FilteredState, 0, lastFrame-firstFrame+1)

	// Frames before the first detection cannot be propagated backwards;
	// they carry the initialised state with the initial covariance.
	for i := 0; i < firstIdx; i++ {
		o := obs[i]
		out = append(out, f.snapshot(o.FrameIndex, o.Timestamp, false))
		// Fill implicit gap frames up to the next record.
		out = append(out, fillGap(f, o, obs[i+1], false)...)
	}

	out = append(out, f.snapshot(obs[firstIdx].FrameIndex, obs[firstIdx].Timestamp, true))

	misses := 0
	gapStart := 0
	prev := obs[firstIdx]
	for i := firstIdx + 1; i < len(obs); i++ {
		o := obs[i]

		// Implicit gap frames (missing records) count toward the miss
		// budget like explicit undetected records.
		gapFrames := o.FrameIndex - prev.FrameIndex - 1
		if gapFrames > 0 {
			if misses == 0 {
				gapStart = prev.FrameIndex + 1
			}
			misses += gapFrames
			if misses > cfg.MaxConsecutiveMisses {
				return nil, &ball.TrackLostError{GapStartFrame: gapStart, GapFrames: misses, MaxGapFrames: cfg.MaxConsecutiveMisses}
			}
			out = append(out, fillGap(f, prev, o, true)...)
		}

		f.predict(o.Timestamp - prevGapTimestamp(prev, o))

		if usable(o) {
			if err := f.update(o.X, o.Y); err != nil {
				return nil, fmt.Errorf("smoother: frame %d: %w", o.FrameIndex, err)
			}
			misses = 0
		} else {
			if misses == 0 {
				gapStart = o.FrameIndex
			}
			misses++
			if misses > cfg.MaxConsecutiveMisses {
				return nil, &ball.TrackLostError{GapStartFrame: gapStart, GapFrames: misses, MaxGapFrames: cfg.MaxConsecutiveMisses}
			}
		}

		if !f.finite() {
			return nil, fmt.Errorf("smoother: non-finite state at frame %d", o.FrameIndex)
		}

		out = append(out, f.snapshot(o.FrameIndex, o.Timestamp, usable(o)))
		prev = o
	}

	return out, nil
}

// fillGap emits predicted states for the implicit frame indices between
// two consecutive records, advancing the filter when advance is true
// (i.e. after initialisation). Timestamps are interpolated linearly.
func fillGap(f *filter, from, to b1obs.Observation, advance bool) []FilteredState {
	n := to.FrameIndex - from.FrameIndex - 1
	if n <= 0 {
		return nil
	}
	dt := (to.Timestamp - from.Timestamp) / float64(to.FrameIndex-from.FrameIndex)
	states := make([]FilteredState, 0, n)
	for k := 1; k <= n; k++ {
		if advance {
			f.predict(dt)
		}
		ts := from.Timestamp + dt*float64(k)
		states = append(states, f.snapshot(from.FrameIndex+k, ts, false))
	}
	return states
}

// prevGapTimestamp returns the timestamp the filter was last advanced
// to: when fillGap ran between from and to, the filter already sits one
// sub-step short of to.
func prevGapTimestamp(from, to b1obs.Observation) float64 {
	gap := to.FrameIndex - from.FrameIndex
	if gap <= 1 {
		return from.Timestamp
	}
	dt := (to.Timestamp - from.Timestamp) / float64(gap)
	return to.Timestamp - dt
}
