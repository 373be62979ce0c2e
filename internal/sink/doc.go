// Package sink mirrors the latest snapshots into external stores.
//
// A Mirror polls the snapshot store for symbols changed since its last pass
// and hands them to each Sink. Every sink keeps its own cursor, which only
// advances after a successful write, so a failed write is retried with the
// next pass.
package sink
