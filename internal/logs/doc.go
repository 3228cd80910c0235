// Package logs reads the subflow log file for `subflow logs`.
//
// Tail returns the last N lines or everything after a byte offset, optionally
// waiting for new lines, and can keep only the lines mentioning one run.
package logs
