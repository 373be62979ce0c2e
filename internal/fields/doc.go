// Package fields maps streamer field identifiers to display names.
//
// Level-one services identify each attribute by a small numeric code sent as a
// JSON object key ("0", "1", ...). A Catalog is built once from config and is
// immutable afterwards, so it can be shared across goroutines without locking.
//
// Identifier "0" always names the symbol itself.
package fields
