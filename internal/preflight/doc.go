// Package preflight provides readiness checks for the directories, databases
// and external programs subflow depends on.
//
// The "subflow doctor" command prints RunAll; "subflow serve" runs it at
// startup and logs failures as warnings so a misconfigured host is visible
// before the first request arrives.
//
// Checks are gated by config: disabled features are skipped.
package preflight
