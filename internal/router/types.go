package router

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/rickgao/quoteboard/internal/connection"
	"github.com/rickgao/quoteboard/internal/model"
	"github.com/rickgao/quoteboard/internal/queue"
)

// ErrUnknownFrame is returned by Decode for a JSON object with none of the
// known payload members.
var ErrUnknownFrame = errors.New("frame has no data, notify or response")

// CommandSubs is the only data command whose records reach the store.
const CommandSubs = "SUBS"

// Ingester accepts decoded update events. *snapshot.Store implements it.
type Ingester interface {
	Ingest(ev model.UpdateEvent)
}

// Frame is the decoded content of one streamer frame.
type Frame struct {
	Events        []model.UpdateEvent
	Heartbeats    []time.Time
	Responses     []connection.Response
	SkippedItems  int // data items with a command other than SUBS
	SkippedValues int // null, object, array or malformed field values
}

// RouterStats contains runtime statistics.
type RouterStats struct {
	MessagesReceived int64
	EventsRouted     int64
	ParseErrors      int64
	UnknownMessages  int64
	Heartbeats       int64
	Responses        int64
	SkippedItems     int64
	SkippedValues    int64
	LastHeartbeat    time.Time
	Input            queue.BufferStats
}

// Wire types for JSON parsing

// frameWire is the outer streamer frame.
type frameWire struct {
	Data     []dataWire            `json:"data"`
	Notify   []notifyWire          `json:"notify"`
	Response []connection.Response `json:"response"`
}

// dataWire is one service payload inside a data frame.
type dataWire struct {
	Service   string                       `json:"service"`
	Command   string                       `json:"command"`
	Timestamp int64                        `json:"timestamp"` // epoch millis
	Content   []map[string]json.RawMessage `json:"content"`
}

// notifyWire is a heartbeat notification. Heartbeat is epoch millis as a string.
type notifyWire struct {
	Heartbeat string `json:"heartbeat"`
}
