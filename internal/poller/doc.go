// Package poller fetches REST quotes on an interval and feeds them to the
// snapshot store.
//
// The poller:
//   - Requests quotes for every configured symbol in batches
//   - Runs batches concurrently, bounded by Concurrency
//   - Tags events with the REST_QUOTES service
//   - Fills the board before the stream delivers, and while it reconnects
package poller
