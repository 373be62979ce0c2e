package api

import (
	"time"

	"github.com/rickgao/quoteboard/internal/fields"
	"github.com/rickgao/quoteboard/internal/model"
)

// ServiceRESTQuotes tags update events built from REST quotes.
const ServiceRESTQuotes = "REST_QUOTES"

// quoteFieldIDs maps REST quote members to the streamer field identifiers
// shared by the equity and futures level-one services.
var quoteFieldIDs = map[string]string{
	"bidPrice":    fields.IDBidPrice,
	"askPrice":    fields.IDAskPrice,
	"lastPrice":   fields.IDLastPrice,
	"bidSize":     fields.IDBidSize,
	"askSize":     fields.IDAskSize,
	"totalVolume": fields.IDVolume,
}

// Event converts a REST quote into an update event carrying streamer field
// identifiers. Members without a mapping, and non-scalar values, are dropped.
func (q QuoteEntry) Event(receivedAt time.Time) model.UpdateEvent {
	ev := model.UpdateEvent{
		Symbol:     q.Symbol,
		Service:    ServiceRESTQuotes,
		Fields:     make(map[string]model.Value, len(quoteFieldIDs)),
		ReceivedAt: receivedAt,
	}
	for member, raw := range q.Quote {
		id, ok := quoteFieldIDs[member]
		if !ok {
			continue
		}
		v, err := model.ParseJSON(raw)
		if err != nil {
			continue
		}
		ev.Fields[id] = v
	}
	return ev
}
