// Package model defines shared data types used across the replication engine.
//
// Conventions:
//   - Prices and sizes: decimal.Decimal (exact arithmetic, no float drift)
//   - Exchange timestamps: int64 microseconds since Unix epoch
//   - Local timestamps: time.Time
//   - IDs: string for exchange-assigned identifiers, uuid.UUID for
//     internally generated ones
package model
