// Package feed implements the Leader Feed Ingestor.
//
// The ingestor:
//   - Maintains one WebSocket subscription per active leader account
//   - Reconnects with exponential backoff (never gives up; a dead feed
//     silently stops all replication)
//   - Normalizes raw trade events into model.LeaderTrade values
//   - Drops and counts malformed events, never fatally
//
// Admission (deduplication) is deliberately NOT done here: a reconnection
// storm re-delivering events must still pass through the engine's single
// dedup gate.
package feed
