// Package broadcast pushes replication events to observers.
//
// The hub fans events out over WebSocket with best-effort delivery:
// each observer gets a fixed-size ring that drops its oldest entries
// when the observer reads too slowly, so one stalled consumer never
// backpressures the replication path. An optional Kafka sink mirrors
// the same events onto a topic for offline consumers.
package broadcast
