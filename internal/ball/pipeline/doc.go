// Package pipeline composes the ball layers into a single run:
// observations in, decision out. It imports the layer packages and is
// never imported by them.
package pipeline
