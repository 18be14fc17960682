// Package b2smooth runs a constant-velocity Kalman filter over the raw
// observation stream and emits one smoothed state per frame index in
// the stream's range, including frames with no detection (filled by
// prediction). The filter is inherently sequential: each state depends
// on the previous one, so a single run is never parallelised.
package b2smooth
