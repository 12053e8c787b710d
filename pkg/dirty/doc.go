// Package dirty provides the dirty-region bitmap consumed by the copy engine.
//
// A Bitmap covers a byte range [0, Size) with one bit per granularity-sized
// region. A set bit means the region still needs to be copied. All offsets
// and lengths are in bytes; partial regions are widened to whole bits.
//
// The bitmap is safe for concurrent use. Callers that need a consistent view
// across several calls must provide their own serialisation.
package dirty
