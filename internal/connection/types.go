package connection

import (
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no ping)")
	ErrTimeout         = errors.New("operation timeout")
	ErrAlreadyClosed   = errors.New("already closed")
	ErrLoginFailed     = errors.New("streamer login rejected")
	ErrSubscribeFailed = errors.New("streamer subscription rejected")
	ErrConnectionLost  = errors.New("connection lost before response")
)

// Streamer services and commands.
const (
	ServiceAdmin            = "ADMIN"
	ServiceLevelOneEquities = "LEVELONE_EQUITIES"
	ServiceLevelOneFutures  = "LEVELONE_FUTURES"

	CommandLogin  = "LOGIN"
	CommandLogout = "LOGOUT"
	CommandSubs   = "SUBS"
)

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// RawMessage is a frame handed from the session to the stream decoder.
type RawMessage struct {
	Data       []byte
	ReceivedAt time.Time
}

// Request is one streamer command.
type Request struct {
	Service    string            `json:"service"`
	Command    string            `json:"command"`
	RequestID  string            `json:"requestid"`
	CustomerID string            `json:"SchwabClientCustomerId"`
	CorrelID   string            `json:"SchwabClientCorrelId"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// RequestBatch is the envelope the streamer expects for outbound commands.
type RequestBatch struct {
	Requests []Request `json:"requests"`
}

// Response is a command acknowledgement from the streamer.
type Response struct {
	Service   string          `json:"service"`
	Command   string          `json:"command"`
	RequestID string          `json:"requestid"`
	CorrelID  string          `json:"SchwabClientCorrelId"`
	Timestamp int64           `json:"timestamp"`
	Content   ResponseContent `json:"content"`
}

// ResponseContent carries the result code; 0 means success.
type ResponseContent struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// responseFrame is used to pick command responses out of the stream.
type responseFrame struct {
	Response []Response `json:"response"`
}

// Subscription is one SUBS request: a service, its keys and field list.
type Subscription struct {
	Service string
	Keys    []string
	Fields  string // comma-joined field identifiers
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL          string        // Streamer socket URL
	PingInterval time.Duration // How often to send a keepalive ping
	PingTimeout  time.Duration // Max silence before considering connection stale
	WriteTimeout time.Duration // Write deadline for sends
	BufferSize   int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		PingInterval: 15 * time.Second,
		PingTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Second,
		BufferSize:   4096,
	}
}

// SessionConfig configures the streamer session.
type SessionConfig struct {
	Subscriptions     []Subscription
	LoginTimeout      time.Duration // Timeout for the LOGIN response
	SubscribeTimeout  time.Duration // Timeout for each SUBS response
	ReconnectBaseWait time.Duration // Base wait time for reconnection
	ReconnectMaxWait  time.Duration // Max wait time for reconnection
	QueueSize         int           // Initial capacity of the output queue
	QueueMaxSize      int           // Output queue ceiling (0 = unbounded)
	Client            ClientConfig  // URL is filled from streamer info
}

// DefaultSessionConfig returns sensible defaults.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		LoginTimeout:      10 * time.Second,
		SubscribeTimeout:  10 * time.Second,
		ReconnectBaseWait: 1 * time.Second,
		ReconnectMaxWait:  60 * time.Second,
		QueueSize:         1024,
		QueueMaxSize:      65536,
		Client:            DefaultClientConfig(),
	}
}
