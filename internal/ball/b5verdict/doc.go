// Package b5verdict evaluates a predicted trajectory against the
// wicket volume and returns the terminal Hitting / Missing / Marginal
// decision with the projected impact point. Evaluation is a pure
// function of the trajectory and the target geometry.
package b5verdict
