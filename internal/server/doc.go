// Package server exposes the pipeline over HTTP and WebSocket.
//
// Clients submit runs with POST /api/runs, poll state and buffered events,
// cancel with DELETE, and follow a run live on /ws/runs/:id, which replays
// the buffered events before streaming new ones in order.
package server
