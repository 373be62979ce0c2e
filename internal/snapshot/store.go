package snapshot

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/rickgao/quoteboard/internal/fields"
	"github.com/rickgao/quoteboard/internal/model"
)

// StoreStats contains store counters.
type StoreStats struct {
	Symbols       int
	Applied       int64  // events merged
	Rejected      int64  // events discarded (no symbol)
	IgnoredFields int64  // field identifiers not in the catalog
	Seq           uint64 // bumped once per applied event
}

// entry is one symbol's snapshot plus the sequence of its last change.
type entry struct {
	fields  model.Snapshot
	version uint64
}

// Store is the concurrent symbol -> Snapshot cache.
type Store struct {
	catalog *fields.Catalog
	logger  *slog.Logger

	// mu guards everything below, including each entry's field map.
	mu      sync.Mutex
	symbols map[string]*entry
	seq     uint64

	applied       int64
	rejected      int64
	ignoredFields int64
}

// NewStore creates an empty Store that resolves identifiers through catalog.
func NewStore(catalog *fields.Catalog, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if catalog == nil {
		catalog = fields.New(fields.LevelOneDefaults())
	}

	return &Store{
		catalog: catalog,
		logger:  logger,
		symbols: make(map[string]*entry),
	}
}

// Ingest merges one update into the symbol's snapshot.
// Events without a symbol are logged and dropped. Identifiers the catalog
// does not know are skipped.
func (s *Store) Ingest(ev model.UpdateEvent) {
	if ev.Symbol == "" {
		s.mu.Lock()
		s.rejected++
		s.mu.Unlock()

		s.logger.Warn("discarding update without symbol",
			"service", ev.Service,
			"fields", len(ev.Fields),
		)
		return
	}

	// Resolve outside the lock; the catalog is immutable.
	type resolved struct {
		name  string
		value model.Value
	}
	updates := make([]resolved, 0, len(ev.Fields))
	var ignored int64
	for id, v := range ev.Fields {
		name, ok := s.catalog.Resolve(id)
		if !ok || !v.IsValid() {
			ignored++
			continue
		}
		updates = append(updates, resolved{name: name, value: v})
	}

	s.mu.Lock()
	e, ok := s.symbols[ev.Symbol]
	if !ok {
		e = &entry{
			fields: model.Snapshot{s.catalog.SymbolField(): model.String(ev.Symbol)},
		}
		s.symbols[ev.Symbol] = e
	}
	for _, u := range updates {
		e.fields[u.name] = u.value
	}
	s.seq++
	e.version = s.seq
	s.applied++
	s.ignoredFields += ignored
	s.mu.Unlock()

	s.logger.Debug("applied update",
		"symbol", ev.Symbol,
		"service", ev.Service,
		"fields", len(updates),
		"ignored", ignored,
		"created", !ok,
	)
}

// Read returns a copy of the symbol's snapshot, or false if no update has
// arrived for it.
func (s *Store) Read(symbol string) (model.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.symbols[symbol]
	if !ok {
		return nil, false
	}
	return e.fields.Clone(), true
}

// ReadAll returns a copy of every tracked snapshot.
func (s *Store) ReadAll() map[string]model.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]model.Snapshot, len(s.symbols))
	for sym, e := range s.symbols {
		out[sym] = e.fields.Clone()
	}
	return out
}

// ChangedSince returns copies of the snapshots changed after seq, and the
// current sequence to pass on the next call.
func (s *Store) ChangedSince(seq uint64) (map[string]model.Snapshot, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]model.Snapshot)
	for sym, e := range s.symbols {
		if e.version > seq {
			out[sym] = e.fields.Clone()
		}
	}
	return out, s.seq
}

// FieldNames returns a copy of the identifier -> name table.
func (s *Store) FieldNames() map[string]string {
	return s.catalog.Map()
}

// Catalog returns the store's field catalog. It is immutable.
func (s *Store) Catalog() *fields.Catalog {
	return s.catalog
}

// Symbols returns the tracked symbols in sorted order.
func (s *Store) Symbols() []string {
	s.mu.Lock()
	out := make([]string, 0, len(s.symbols))
	for sym := range s.symbols {
		out = append(out, sym)
	}
	s.mu.Unlock()

	sort.Strings(out)
	return out
}

// Len returns the number of tracked symbols.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.symbols)
}

// Stats returns store counters.
func (s *Store) Stats() StoreStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return StoreStats{
		Symbols:       len(s.symbols),
		Applied:       s.applied,
		Rejected:      s.rejected,
		IgnoredFields: s.ignoredFields,
		Seq:           s.seq,
	}
}
