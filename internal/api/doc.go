// Package api is the broker REST client.
//
// Endpoints used:
//   - GET /trader/v1/userPreference   streamer socket URL and account identifiers
//   - GET /marketdata/v1/quotes       level-one quotes for a symbol list
//
// Requests carry the OAuth bearer token from a TokenSource, are paced by a
// token-bucket limiter and retried on 5xx, 408 and 429 responses.
package api
