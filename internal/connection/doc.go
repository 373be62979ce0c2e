// Package connection implements the streamer session.
//
// The session:
//   - Fetches the streamer endpoint and account identifiers over REST
//   - Holds one WebSocket connection to the streamer
//   - Logs in with the current OAuth access token and subscribes the
//     configured level-one services
//   - Reconnects with exponential backoff, logging in and subscribing again
//   - Forwards data and heartbeat frames to the stream decoder through a
//     growable queue; command responses are matched to their requests here
package connection
