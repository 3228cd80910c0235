// Package pipeline drives a media file through extraction, transcription,
// per-segment translation, optional voice synthesis and optional mixing.
//
// An Orchestrator owns the stage engines, the artifact cache and the
// single-flight registry. Each run executes on its own goroutine and reports
// through a Sink: progress updates, one event per enriched segment in index
// order, and a terminal result, error or cancelled event. Progress values for
// a run never decrease.
//
// Optional stages degrade instead of failing: a translator that cannot start
// leaves every translated text equal to the original, and a synthesizer that
// cannot start leaves segments without audio. Only an unreadable input or a
// failed transcription aborts a run.
package pipeline
