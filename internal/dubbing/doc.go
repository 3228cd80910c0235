// Package dubbing fits synthesized voice clips into subtitle slots and mixes
// them over an attenuated copy of the original audio track.
//
// Clips that overrun their slot by at most OverrunTolerance play at natural
// length. Longer clips are cut to the slot; no time-stretching is applied.
package dubbing
