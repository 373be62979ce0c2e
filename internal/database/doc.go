// Package database opens the stores the snapshot mirror writes to.
//
// Either store is optional:
//   - PostgreSQL: latest_quotes, one row per symbol
//   - Redis: quote:<symbol> keys plus a quotes.<symbol> channel
package database
