// Package api wires configuration into ready-to-use services for the CLI and
// the HTTP server, and converts internal records into display-friendly views.
//
// # Wiring
//
// BuildEngines: config -> engines.Set with the ffmpeg extractor, the
// transcription command, and the translator and synthesizer when enabled.
//
// OpenCache / OpenHistory: validated stores, or sentinel errors when the
// feature is disabled or unconfigured.
//
// NewOrchestrator: the pipeline with cache, history, ntfy notifier, mixer and
// parameter snapshot taken from config.
//
// # Views
//
// CacheEntryView and HistoryView are flat records with pre-formatted fields
// for tables and YAML reports.
package api
