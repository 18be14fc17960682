package ball

import "fmt"

// The pipeline surfaces five failure classes. None of them is ever
// downgraded to a default decision: a failed stage aborts the run and
// the caller decides whether to retry with relaxed thresholds.

// MalformedInputError reports an observation stream that violates the
// input schema or its ordering invariants (duplicate or regressing
// frame indices, out-of-range confidence, empty record list).
type MalformedInputError struct {
	Frame  int // offending frame index, -1 when not frame-specific
	Reason string
}

func (e *MalformedInputError) Error() string {
	if e.Frame >= 0 {
		return fmt.Sprintf("malformed input at frame %d: %s", e.Frame, e.Reason)
	}
	return fmt.Sprintf("malformed input: %s", e.Reason)
}

// InsufficientDataError reports that a stage has too few valid
// observations or states to produce a meaningful estimate.
type InsufficientDataError struct {
	Stage string
	Have  int
	Need  int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("%s: insufficient data: have %d, need at least %d", e.Stage, e.Have, e.Need)
}

// TrackLostError reports a gap of consecutive missed detections longer
// than the configured tolerance. Surfaced distinctly from
// InsufficientDataError so callers can tell "never tracked" apart from
// "lost mid-flight".
type TrackLostError struct {
	GapStartFrame int // first frame of the gap
	GapFrames     int // length of the gap in frames
	MaxGapFrames  int // configured tolerance that was exceeded
}

func (e *TrackLostError) Error() string {
	return fmt.Sprintf("track lost: %d consecutive missed frames from frame %d (max %d)",
		e.GapFrames, e.GapStartFrame, e.MaxGapFrames)
}

// ConfigurationError reports missing, invalid or unrecognized
// configuration. It is raised before any stage runs.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("configuration error: %s", e.Reason)
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// ImplausibleTrajectoryError reports a physics fit outside the
// configured sanity bounds (e.g. forward speed below the minimum, or a
// trajectory that never reaches the stump plane).
type ImplausibleTrajectoryError struct {
	Stage  string
	Reason string
}

func (e *ImplausibleTrajectoryError) Error() string {
	return fmt.Sprintf("%s: implausible trajectory: %s", e.Stage, e.Reason)
}
