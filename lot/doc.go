// Package lot names the lots of a cohort group and tracks which of them have
// completed.
//
// A lot is complete iff its marker file, "{dir}/{name}_final.done", exists.
// Markers are zero-byte files created by the lot job once all of its outputs
// are durably written, so the output directory is the only record of progress:
// a scheduler that restarts rebuilds its state by scanning it.
package lot
