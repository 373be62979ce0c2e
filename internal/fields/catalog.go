package fields

import (
	"sort"
	"strconv"
	"strings"
)

// Well-known level-one identifiers.
const (
	IDSymbol    = "0"
	IDBidPrice  = "1"
	IDAskPrice  = "2"
	IDLastPrice = "3"
	IDBidSize   = "4"
	IDAskSize   = "5"
	IDVolume    = "8"
)

// Well-known field names.
const (
	Symbol    = "Symbol"
	BidPrice  = "Bid Price"
	AskPrice  = "Ask Price"
	LastPrice = "Last Price"
	BidSize   = "Bid Size"
	AskSize   = "Ask Size"
	Volume    = "Total Volume"
)

// Catalog is an immutable identifier -> name table.
type Catalog struct {
	names map[string]string
	ids   []string // sorted, see sortIDs
}

// LevelOneDefaults returns the minimal table every board subscribes to.
func LevelOneDefaults() map[string]string {
	return map[string]string{
		IDSymbol:    Symbol,
		IDBidPrice:  BidPrice,
		IDAskPrice:  AskPrice,
		IDLastPrice: LastPrice,
	}
}

// New builds a Catalog from the given table. The input is copied.
// If "0" is missing it is seeded as "Symbol".
func New(table map[string]string) *Catalog {
	names := make(map[string]string, len(table)+1)
	for id, name := range table {
		id = strings.TrimSpace(id)
		if id == "" || name == "" {
			continue
		}
		names[id] = name
	}
	if _, ok := names[IDSymbol]; !ok {
		names[IDSymbol] = Symbol
	}

	ids := make([]string, 0, len(names))
	for id := range names {
		ids = append(ids, id)
	}
	sortIDs(ids)

	return &Catalog{names: names, ids: ids}
}

// Merge returns a new Catalog with extra layered over base.
func Merge(base, extra map[string]string) *Catalog {
	table := make(map[string]string, len(base)+len(extra))
	for id, name := range base {
		table[id] = name
	}
	for id, name := range extra {
		table[id] = name
	}
	return New(table)
}

// Resolve returns the name for id. A miss is normal: the field is simply not tracked.
func (c *Catalog) Resolve(id string) (string, bool) {
	name, ok := c.names[id]
	return name, ok
}

// SymbolField returns the name under which a snapshot stores its own symbol.
func (c *Catalog) SymbolField() string {
	return c.names[IDSymbol]
}

// Len returns the number of identifiers.
func (c *Catalog) Len() int {
	return len(c.names)
}

// IDs returns the identifiers in numeric order, non-numeric ones last.
func (c *Catalog) IDs() []string {
	out := make([]string, len(c.ids))
	copy(out, c.ids)
	return out
}

// Map returns a copy of the table.
func (c *Catalog) Map() map[string]string {
	out := make(map[string]string, len(c.names))
	for id, name := range c.names {
		out[id] = name
	}
	return out
}

// FieldList returns the comma-joined identifiers for a SUBS request.
func (c *Catalog) FieldList() string {
	return strings.Join(c.ids, ",")
}

func sortIDs(ids []string) {
	sort.Slice(ids, func(i, j int) bool {
		a, aErr := strconv.Atoi(ids[i])
		b, bErr := strconv.Atoi(ids[j])
		switch {
		case aErr == nil && bErr == nil:
			return a < b
		case aErr == nil:
			return true
		case bErr == nil:
			return false
		default:
			return ids[i] < ids[j]
		}
	})
}
