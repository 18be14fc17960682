// Package b4flight fits a launch state to the tail of a reconstructed
// track and extrapolates the flight forward under gravity, optional
// linear drag, and bounce. The output is a piecewise-analytic
// trajectory segment that downstream consumers can evaluate at any
// time without re-running the prediction.
package b4flight
