// Package b1obs decodes and validates the observation stream produced
// by the upstream detector: one record per tracked frame, ordered by
// frame index. It is the input boundary of the pipeline; records are
// read-only once loaded.
package b1obs
