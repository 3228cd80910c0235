// Package main hosts the subflow CLI entrypoint and command graph.
//
// The Cobra command tree runs the subtitle pipeline in-process ("process"),
// exposes it over HTTP and WebSocket ("serve"), and offers maintenance for the
// artifact cache, run history and configuration. Wiring lives in
// internal/api so commands stay declarative.
package main
