// Package ball holds the shared error taxonomy for the ball-tracking
// pipeline. The processing layers live in sub-packages:
//
//	b1obs     observation stream decoding and validation
//	b2smooth  recursive Kalman smoothing of the 2D track
//	b3world   3D world-frame reconstruction
//	b4flight  physics extrapolation to the stump plane
//	b5verdict wicket intersection and verdict
//	pipeline  composition root (imports the layers; never imported by them)
//
// Data flows strictly forward: each layer consumes only the finalized
// output of its predecessor and fully owns its own output collection.
package ball
