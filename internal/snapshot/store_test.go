package snapshot

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/rickgao/quoteboard/internal/fields"
	"github.com/rickgao/quoteboard/internal/model"
)

func newTestStore() *Store {
	return NewStore(fields.New(fields.LevelOneDefaults()), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func update(symbol string, kv ...any) model.UpdateEvent {
	ev := model.UpdateEvent{Symbol: symbol, Fields: make(map[string]model.Value)}
	for i := 0; i+1 < len(kv); i += 2 {
		v, err := model.FromAny(kv[i+1])
		if err != nil {
			panic(err)
		}
		ev.Fields[kv[i].(string)] = v
	}
	return ev
}

func assertSnapshot(t *testing.T, got, want model.Snapshot) {
	t.Helper()
	if len(got) != len(want) {
		t.Errorf("snapshot has %d fields, want %d: %v", len(got), len(want), got)
	}
	for name, w := range want {
		g, ok := got[name]
		if !ok {
			t.Errorf("missing field %q", name)
			continue
		}
		if !g.Equal(w) {
			t.Errorf("%s = %v, want %v", name, g, w)
		}
	}
}

func TestStore_MergeScenario(t *testing.T) {
	s := newTestStore()

	s.Ingest(update("AAPL", "0", "AAPL", "1", 150.25))
	s.Ingest(update("AAPL", "2", 150.30))

	got, ok := s.Read("AAPL")
	if !ok {
		t.Fatal("AAPL not found")
	}
	assertSnapshot(t, got, model.Snapshot{
		"Symbol":    model.String("AAPL"),
		"Bid Price": model.Float(150.25),
		"Ask Price": model.Float(150.30),
	})
}

func TestStore_LastWriteWins(t *testing.T) {
	s := newTestStore()

	s.Ingest(update("ES", "1", 5000.25, "2", 5000.50))
	s.Ingest(update("ES", "1", 5000.00))
	s.Ingest(update("ES", "3", 5000.25))
	s.Ingest(update("ES", "1", 4999.75))

	got, _ := s.Read("ES")
	assertSnapshot(t, got, model.Snapshot{
		"Symbol":     model.String("ES"),
		"Bid Price":  model.Float(4999.75),
		"Ask Price":  model.Float(5000.50),
		"Last Price": model.Float(5000.25),
	})
}

func TestStore_SeedsSymbolOnCreate(t *testing.T) {
	s := newTestStore()

	s.Ingest(update("/ES", "3", 5001))

	got, ok := s.Read("/ES")
	if !ok {
		t.Fatal("/ES not found")
	}
	if v, _ := got.Get("Symbol"); !v.Equal(model.String("/ES")) {
		t.Errorf("Symbol = %v, want /ES", v)
	}
}

func TestStore_SeedsCustomSymbolField(t *testing.T) {
	s := NewStore(fields.New(map[string]string{"0": "Ticker", "1": "Bid"}), nil)

	s.Ingest(update("MSFT", "1", 400))

	got, _ := s.Read("MSFT")
	assertSnapshot(t, got, model.Snapshot{
		"Ticker": model.String("MSFT"),
		"Bid":    model.Int(400),
	})
}

func TestStore_EmptySymbolRejected(t *testing.T) {
	var buf bytes.Buffer
	s := NewStore(fields.New(fields.LevelOneDefaults()), slog.New(slog.NewTextHandler(&buf, nil)))

	s.Ingest(update("", "1", 10))

	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
	if _, ok := s.Read(""); ok {
		t.Error("symbol \"\" must not be created")
	}
	stats := s.Stats()
	if stats.Rejected != 1 {
		t.Errorf("Rejected = %d, want 1", stats.Rejected)
	}
	if stats.Applied != 0 {
		t.Errorf("Applied = %d, want 0", stats.Applied)
	}
	if !strings.Contains(buf.String(), "level=WARN") {
		t.Errorf("expected a warning log, got %q", buf.String())
	}
}

func TestStore_UnknownFieldsIgnored(t *testing.T) {
	s := newTestStore()

	s.Ingest(update("TSLA",
		"1", 250.10,
		"42", 7,
		"delayed", false,
		"assetMainType", "EQUITY",
	))

	got, ok := s.Read("TSLA")
	if !ok {
		t.Fatal("TSLA not found")
	}
	assertSnapshot(t, got, model.Snapshot{
		"Symbol":    model.String("TSLA"),
		"Bid Price": model.Float(250.10),
	})

	if stats := s.Stats(); stats.IgnoredFields != 3 {
		t.Errorf("IgnoredFields = %d, want 3", stats.IgnoredFields)
	}
}

func TestStore_OnlyUnknownFieldsStillCreatesSnapshot(t *testing.T) {
	s := newTestStore()

	s.Ingest(update("PLTR", "99", 1))

	got, ok := s.Read("PLTR")
	if !ok {
		t.Fatal("PLTR not found")
	}
	assertSnapshot(t, got, model.Snapshot{"Symbol": model.String("PLTR")})
}

func TestStore_InvalidValueSkipped(t *testing.T) {
	s := newTestStore()

	ev := update("AMD", "1", 100)
	ev.Fields["2"] = model.Value{}
	s.Ingest(ev)

	got, _ := s.Read("AMD")
	if _, ok := got.Get("Ask Price"); ok {
		t.Error("zero Value should not be stored")
	}
}

func TestStore_ReadAbsent(t *testing.T) {
	s := newTestStore()

	snap, ok := s.Read("NVDA")
	if ok {
		t.Error("expected NVDA to be absent")
	}
	if snap != nil {
		t.Errorf("snapshot = %v, want nil", snap)
	}

	s.Ingest(update("NVDA", "1", 900))
	snap, _ = s.Read("NVDA")
	if got := snap.Text("Last Price", "N/A"); got != "N/A" {
		t.Errorf("Text(Last Price) = %q, want N/A", got)
	}
}

func TestStore_ReadCopyIndependence(t *testing.T) {
	s := newTestStore()
	s.Ingest(update("AAPL", "1", 150.25))

	first, _ := s.Read("AAPL")
	first["Bid Price"] = model.Float(1)
	first["Injected"] = model.String("x")
	delete(first, "Symbol")

	second, _ := s.Read("AAPL")
	assertSnapshot(t, second, model.Snapshot{
		"Symbol":    model.String("AAPL"),
		"Bid Price": model.Float(150.25),
	})

	// A previously returned copy must not observe later updates.
	s.Ingest(update("AAPL", "1", 151))
	if v, _ := second.Get("Bid Price"); !v.Equal(model.Float(150.25)) {
		t.Errorf("old copy Bid Price = %v, want 150.25", v)
	}
}

func TestStore_ReadAllCopyIndependence(t *testing.T) {
	s := newTestStore()
	s.Ingest(update("NQ", "1", 18000))
	s.Ingest(update("ES", "1", 5000))

	all := s.ReadAll()
	if len(all) != 2 {
		t.Fatalf("len(ReadAll()) = %d, want 2", len(all))
	}
	all["NQ"]["Bid Price"] = model.Float(0)
	delete(all, "ES")
	all["FAKE"] = model.Snapshot{}

	again := s.ReadAll()
	if len(again) != 2 {
		t.Errorf("len(ReadAll()) = %d, want 2", len(again))
	}
	if v, _ := again["NQ"].Get("Bid Price"); !v.Equal(model.Int(18000)) {
		t.Errorf("NQ Bid Price = %v, want 18000", v)
	}
	if _, ok := s.Read("FAKE"); ok {
		t.Error("FAKE must not appear in the store")
	}
}

func TestStore_FieldNamesIsCopy(t *testing.T) {
	s := newTestStore()

	names := s.FieldNames()
	names["1"] = "Mutated"

	if got := s.FieldNames()["1"]; got != fields.BidPrice {
		t.Errorf("FieldNames()[1] = %q, want %q", got, fields.BidPrice)
	}
}

func TestStore_ConcurrentDisjointFields(t *testing.T) {
	const producers = 8
	const updates = 500

	table := map[string]string{"0": "Symbol"}
	for p := 0; p < producers; p++ {
		table[fmt.Sprint(10+p)] = fmt.Sprintf("F%d", p)
	}
	s := NewStore(fields.New(table), slog.New(slog.NewTextHandler(io.Discard, nil)))

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			id := fmt.Sprint(10 + p)
			for i := 0; i < updates; i++ {
				s.Ingest(update("NQ", id, i))
			}
		}(p)
	}

	// Concurrent readers must always see whole updates.
	stop := make(chan struct{})
	var readers sync.WaitGroup
	readers.Add(1)
	go func() {
		defer readers.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			if snap, ok := s.Read("NQ"); ok {
				if v, _ := snap.Get("Symbol"); !v.Equal(model.String("NQ")) {
					t.Errorf("Symbol = %v during concurrent reads", v)
					return
				}
			}
			s.ReadAll()
		}
	}()

	wg.Wait()
	close(stop)
	readers.Wait()

	got, ok := s.Read("NQ")
	if !ok {
		t.Fatal("NQ not found")
	}
	if len(got) != producers+1 {
		t.Errorf("field count = %d, want %d", len(got), producers+1)
	}
	for p := 0; p < producers; p++ {
		name := fmt.Sprintf("F%d", p)
		if v, _ := got.Get(name); !v.Equal(model.Int(updates - 1)) {
			t.Errorf("%s = %v, want %d", name, v, updates-1)
		}
	}
	if stats := s.Stats(); stats.Applied != producers*updates {
		t.Errorf("Applied = %d, want %d", stats.Applied, producers*updates)
	}
}

func TestStore_ConcurrentSymbolsIndependent(t *testing.T) {
	s := newTestStore()

	var wg sync.WaitGroup
	for _, sym := range []string{"NQ", "ES"} {
		wg.Add(1)
		go func(sym string) {
			defer wg.Done()
			base := 18000
			if sym == "ES" {
				base = 5000
			}
			for i := 0; i <= 200; i++ {
				s.Ingest(update(sym, "1", base+i))
				s.Ingest(update(sym, "2", base+i+1))
			}
		}(sym)
	}
	wg.Wait()

	all := s.ReadAll()
	assertSnapshot(t, all["NQ"], model.Snapshot{
		"Symbol":    model.String("NQ"),
		"Bid Price": model.Int(18200),
		"Ask Price": model.Int(18201),
	})
	assertSnapshot(t, all["ES"], model.Snapshot{
		"Symbol":    model.String("ES"),
		"Bid Price": model.Int(5200),
		"Ask Price": model.Int(5201),
	})
}

func TestStore_ChangedSince(t *testing.T) {
	s := newTestStore()

	changed, seq := s.ChangedSince(0)
	if len(changed) != 0 || seq != 0 {
		t.Fatalf("ChangedSince(0) on empty store = %v, %d", changed, seq)
	}

	s.Ingest(update("AAPL", "1", 1))
	s.Ingest(update("MSFT", "1", 2))

	changed, seq = s.ChangedSince(0)
	if len(changed) != 2 {
		t.Errorf("len(changed) = %d, want 2", len(changed))
	}
	if seq != 2 {
		t.Errorf("seq = %d, want 2", seq)
	}

	s.Ingest(update("MSFT", "2", 3))

	changed, seq = s.ChangedSince(seq)
	if len(changed) != 1 {
		t.Fatalf("len(changed) = %d, want 1", len(changed))
	}
	if _, ok := changed["MSFT"]; !ok {
		t.Error("expected MSFT in changed set")
	}
	if seq != 3 {
		t.Errorf("seq = %d, want 3", seq)
	}

	changed, _ = s.ChangedSince(seq)
	if len(changed) != 0 {
		t.Errorf("len(changed) = %d, want 0", len(changed))
	}
}

func TestStore_SymbolsSorted(t *testing.T) {
	s := newTestStore()
	for _, sym := range []string{"TSLA", "/ES", "AAPL"} {
		s.Ingest(update(sym, "1", 1))
	}

	got := strings.Join(s.Symbols(), ",")
	if got != "/ES,AAPL,TSLA" {
		t.Errorf("Symbols() = %q, want %q", got, "/ES,AAPL,TSLA")
	}
}
