// Package services defines shared utilities consumed by the pipeline
// orchestrator and the stage engine adapters.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, stage names, and media paths for
//     logging and tracing.
//   - Structured error markers plus the Wrap helper that classify failures
//     into the kinds surfaced in pipeline error events.
//   - Subpackages wrapping the external tools each stage engine shells out to
//     (ffmpeg, the transcription command, translation, speech synthesis).
//
// Use these helpers when wiring new stage logic so operational behaviour (error
// classification, observability) stays uniform across the pipeline.
package services
