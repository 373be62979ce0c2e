// Package snapshot implements the latest-value cache shared by the stream
// decoder (producer) and the board, mirror and health endpoints (consumers).
//
// The Store:
//   - Merges partial UpdateEvents into one Snapshot per symbol, last write wins
//   - Applies each event atomically under a single mutex
//   - Returns independent copies from every read
//   - Never performs I/O or calls out while holding the lock
package snapshot
