package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/rickgao/quoteboard/internal/connection"
	"github.com/rickgao/quoteboard/internal/model"
	"github.com/rickgao/quoteboard/internal/queue"
)

// keyMember is the record member that carries the symbol.
const keyMember = "key"

// Router decodes raw streamer frames and feeds update events to an Ingester.
type Router interface {
	// Start begins routing messages from the input buffer.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the router.
	Stop(ctx context.Context) error

	// Stats returns current router statistics.
	Stats() RouterStats
}

// router is the internal implementation.
type router struct {
	logger *slog.Logger

	// Input from the streamer session
	input *queue.GrowableBuffer[connection.RawMessage]

	// Output
	sink Ingester

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu              sync.RWMutex
	received        int64
	routed          int64
	parseErrors     int64
	unknownMessages int64
	heartbeats      int64
	responses       int64
	skippedItems    int64
	skippedValues   int64
	lastHeartbeat   time.Time
}

// NewRouter creates a router reading from input and writing to sink.
func NewRouter(input *queue.GrowableBuffer[connection.RawMessage], sink Ingester, logger *slog.Logger) Router {
	if logger == nil {
		logger = slog.Default()
	}

	return &router{
		logger: logger,
		input:  input,
		sink:   sink,
	}
}

// Start begins routing messages.
func (r *router) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go r.routeLoop()

	r.logger.Info("message router started")
	return nil
}

// Stop gracefully shuts down the router. The input buffer belongs to the
// session and is left open.
func (r *router) Stop(ctx context.Context) error {
	r.logger.Info("stopping message router")

	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("message router stopped")
	case <-ctx.Done():
		r.logger.Warn("message router stop timed out")
	}

	return nil
}

// Stats returns current statistics.
func (r *router) Stats() RouterStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return RouterStats{
		MessagesReceived: r.received,
		EventsRouted:     r.routed,
		ParseErrors:      r.parseErrors,
		UnknownMessages:  r.unknownMessages,
		Heartbeats:       r.heartbeats,
		Responses:        r.responses,
		SkippedItems:     r.skippedItems,
		SkippedValues:    r.skippedValues,
		LastHeartbeat:    r.lastHeartbeat,
		Input:            r.input.Stats(),
	}
}

// routeLoop is the main routing goroutine.
func (r *router) routeLoop() {
	defer r.wg.Done()

	for {
		raw, ok := r.input.ReceiveContext(r.ctx)
		if !ok {
			if r.ctx.Err() == nil {
				r.logger.Info("input buffer closed")
			}
			return
		}
		r.route(raw)
	}
}

// route decodes a single frame and ingests its events.
func (r *router) route(raw connection.RawMessage) {
	r.mu.Lock()
	r.received++
	r.mu.Unlock()

	frame, err := Decode(raw.Data, raw.ReceivedAt)
	if err != nil {
		r.mu.Lock()
		if errors.Is(err, ErrUnknownFrame) {
			r.unknownMessages++
		} else {
			r.parseErrors++
		}
		r.mu.Unlock()
		r.logger.Warn("dropping undecodable frame", "error", err, "bytes", len(raw.Data))
		return
	}

	for _, ev := range frame.Events {
		r.sink.Ingest(ev)
	}

	for _, resp := range frame.Responses {
		if resp.Content.Code != 0 {
			r.logger.Warn("streamer command rejected",
				"service", resp.Service,
				"command", resp.Command,
				"code", resp.Content.Code,
				"msg", resp.Content.Msg,
			)
			continue
		}
		r.logger.Debug("streamer command acknowledged", "service", resp.Service, "command", resp.Command)
	}

	if frame.SkippedValues > 0 {
		r.logger.Debug("skipped non-scalar field values", "count", frame.SkippedValues)
	}

	r.mu.Lock()
	r.routed += int64(len(frame.Events))
	r.responses += int64(len(frame.Responses))
	r.heartbeats += int64(len(frame.Heartbeats))
	for _, hb := range frame.Heartbeats {
		if hb.After(r.lastHeartbeat) {
			r.lastHeartbeat = hb
		}
	}
	r.skippedItems += int64(frame.SkippedItems)
	r.skippedValues += int64(frame.SkippedValues)
	r.mu.Unlock()
}

// Decode parses one streamer frame. One frame may carry records for many
// symbols; each record becomes one UpdateEvent stamped with receivedAt.
func Decode(data []byte, receivedAt time.Time) (Frame, error) {
	var wire frameWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	if wire.Data == nil && wire.Notify == nil && wire.Response == nil {
		return Frame{}, ErrUnknownFrame
	}

	frame := Frame{Responses: wire.Response}

	for _, item := range wire.Data {
		if item.Command != CommandSubs {
			frame.SkippedItems++
			continue
		}
		for _, record := range item.Content {
			ev, skipped := recordEvent(item.Service, record, receivedAt)
			frame.Events = append(frame.Events, ev)
			frame.SkippedValues += skipped
		}
	}

	for _, n := range wire.Notify {
		if n.Heartbeat == "" {
			continue
		}
		ms, err := strconv.ParseInt(n.Heartbeat, 10, 64)
		if err != nil {
			frame.Heartbeats = append(frame.Heartbeats, receivedAt)
			continue
		}
		frame.Heartbeats = append(frame.Heartbeats, time.UnixMilli(ms))
	}

	return frame, nil
}

// recordEvent converts one content record into an UpdateEvent. A missing or
// non-string key yields an empty symbol, which the store rejects.
func recordEvent(service string, record map[string]json.RawMessage, receivedAt time.Time) (model.UpdateEvent, int) {
	ev := model.UpdateEvent{
		Service:    service,
		Fields:     make(map[string]model.Value, len(record)),
		ReceivedAt: receivedAt,
	}

	skipped := 0
	for member, raw := range record {
		if member == keyMember {
			var symbol string
			if err := json.Unmarshal(raw, &symbol); err == nil {
				ev.Symbol = symbol
			}
			continue
		}
		v, err := model.ParseJSON(raw)
		if err != nil {
			skipped++
			continue
		}
		ev.Fields[member] = v
	}
	return ev, skipped
}
