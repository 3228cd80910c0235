// Package config loads, normalizes, and validates subflow configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// SUBFLOW_FFMPEG. The Config type centralizes the knobs each stage engine, the
// result cache, and the HTTP service need, so the orchestrator receives a
// single read-only settings snapshot per run.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical enum values, and clear validation errors.
package config
