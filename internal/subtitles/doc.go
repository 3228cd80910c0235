// Package subtitles models transcript segments and reads and writes them in
// the SRT text format.
//
// Segments are immutable values: each pipeline stage derives an updated copy
// via the With* methods so earlier copies can be handed to other goroutines
// without synchronisation. The SRT decoder is tolerant by default and skips
// malformed blocks; ParseOptions.Strict turns the first malformed block into
// an error instead.
package subtitles
