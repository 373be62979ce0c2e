package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/rickgao/quoteboard/internal/model"
)

// Source reports snapshots changed after a sequence. *snapshot.Store
// implements it.
type Source interface {
	ChangedSince(seq uint64) (map[string]model.Snapshot, uint64)
}

// Sink writes one batch of changed snapshots.
type Sink interface {
	Name() string
	Write(ctx context.Context, batch Batch) error
}

// Batch is the set of snapshots changed since a sink's last write.
type Batch struct {
	InstanceID string
	Seq        uint64
	At         time.Time
	Snapshots  map[string]model.Snapshot
}

// Symbols returns the batch symbols in sorted order.
func (b Batch) Symbols() []string {
	out := make([]string, 0, len(b.Snapshots))
	for sym := range b.Snapshots {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Quote is the JSON document written for one symbol.
type Quote struct {
	Symbol     string         `json:"symbol"`
	Fields     model.Snapshot `json:"fields"`
	InstanceID string         `json:"instance_id"`
	Seq        uint64         `json:"seq"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// encodeFields renders a snapshot as a JSON object.
func encodeFields(snap model.Snapshot) ([]byte, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode fields: %w", err)
	}
	return data, nil
}

// encodeQuote renders one symbol of a batch as a Quote document.
func encodeQuote(b Batch, symbol string) ([]byte, error) {
	data, err := json.Marshal(Quote{
		Symbol:     symbol,
		Fields:     b.Snapshots[symbol],
		InstanceID: b.InstanceID,
		Seq:        b.Seq,
		UpdatedAt:  b.At,
	})
	if err != nil {
		return nil, fmt.Errorf("encode quote %s: %w", symbol, err)
	}
	return data, nil
}

// SinkStats holds counters for one sink.
type SinkStats struct {
	Writes  int64
	Symbols int64
	Errors  int64
	Cursor  uint64
	LastErr string
}

// MirrorStats holds counters for every sink, keyed by sink name.
type MirrorStats struct {
	Passes int64
	Sinks  map[string]SinkStats
}
