package display

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rickgao/quoteboard/internal/fields"
	"github.com/rickgao/quoteboard/internal/model"
)

const (
	title       = "--- Real-time Market Data ---"
	ruleWidth   = 60
	placeholder = "N/A"
	waiting     = "Waiting for data..."
	stopHint    = "(Press Ctrl+C to stop)"
	timeLayout  = "2006-01-02 15:04:05"
	clearScreen = "\033[H\033[2J"
)

// Alignment values for Column.Align.
const (
	AlignLeft  = "<"
	AlignRight = ">"
)

// Reader returns the latest snapshot for a symbol. *snapshot.Store
// implements it.
type Reader interface {
	Read(symbol string) (model.Snapshot, bool)
}

// Column is one board column. Field is a snapshot field name.
type Column struct {
	Field  string
	Header string
	Width  int
	Align  string
}

// Config holds board settings.
type Config struct {
	Symbols         []string
	Columns         []Column
	RefreshInterval time.Duration
	ClearScreen     bool
}

// DefaultColumns returns Symbol, Bid, Ask and Last.
func DefaultColumns() []Column {
	return []Column{
		{Field: fields.Symbol, Header: "Symbol", Width: 10, Align: AlignLeft},
		{Field: fields.BidPrice, Header: "Bid", Width: 12, Align: AlignRight},
		{Field: fields.AskPrice, Header: "Ask", Width: 12, Align: AlignRight},
		{Field: fields.LastPrice, Header: "Last", Width: 12, Align: AlignRight},
	}
}

// Board periodically renders snapshots for a fixed symbol list.
type Board struct {
	cfg    Config
	store  Reader
	out    io.Writer
	logger *slog.Logger
	now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	frames int64
}

// New creates a board writing to out. Duplicate symbols are shown once, at
// their first position.
func New(cfg Config, store Reader, out io.Writer, logger *slog.Logger) *Board {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Columns) == 0 {
		cfg.Columns = DefaultColumns()
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 500 * time.Millisecond
	}
	cfg.Symbols = dedupe(cfg.Symbols)

	return &Board{
		cfg:    cfg,
		store:  store,
		out:    out,
		logger: logger,
		now:    time.Now,
	}
}

// Symbols returns the rendered symbol list.
func (b *Board) Symbols() []string {
	return append([]string(nil), b.cfg.Symbols...)
}

// Frames returns how many frames have been written.
func (b *Board) Frames() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.frames
}

// Start begins the refresh loop.
func (b *Board) Start(ctx context.Context) error {
	b.ctx, b.cancel = context.WithCancel(ctx)

	b.wg.Add(1)
	go b.run()

	b.logger.Info("display started",
		"symbols", len(b.cfg.Symbols),
		"refresh", b.cfg.RefreshInterval,
	)
	return nil
}

// Stop signals the loop and waits for it to finish the current frame.
func (b *Board) Stop(ctx context.Context) error {
	if b.cancel != nil {
		b.cancel()
	}

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.logger.Info("display stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Board) run() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		if err := b.Render(b.out); err != nil {
			b.logger.Error("render failed", "error", err)
		}

		select {
		case <-b.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Render writes one frame to w.
func (b *Board) Render(w io.Writer) error {
	frame := b.Frame(b.now())
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}

	b.mu.Lock()
	b.frames++
	b.mu.Unlock()
	return nil
}

// Frame builds one frame. Store reads happen here, before any output.
func (b *Board) Frame(now time.Time) []byte {
	var buf bytes.Buffer

	if b.cfg.ClearScreen {
		buf.WriteString(clearScreen)
	}
	buf.WriteString(title + "\n")
	buf.WriteString(strings.Repeat("-", ruleWidth) + "\n")

	for _, col := range b.cfg.Columns {
		buf.WriteString(pad(col.Header, col.Width, col.Align))
	}
	buf.WriteByte('\n')
	for _, col := range b.cfg.Columns {
		buf.WriteString(strings.Repeat("-", col.Width))
	}
	buf.WriteByte('\n')

	for _, symbol := range b.cfg.Symbols {
		snap, ok := b.store.Read(symbol)
		if !ok {
			b.writeWaiting(&buf, symbol)
			continue
		}
		for _, col := range b.cfg.Columns {
			buf.WriteString(pad(snap.Text(col.Field, placeholder), col.Width, col.Align))
		}
		buf.WriteByte('\n')
	}

	buf.WriteString(strings.Repeat("-", ruleWidth) + "\n")
	buf.WriteString("Last updated: " + now.Format(timeLayout) + "\n")
	buf.WriteString(stopHint + "\n")

	return buf.Bytes()
}

// writeWaiting renders a symbol that has no snapshot yet: the symbol in the
// first column, then the waiting text across the rest.
func (b *Board) writeWaiting(buf *bytes.Buffer, symbol string) {
	first := b.cfg.Columns[0]
	rest := 0
	for _, col := range b.cfg.Columns[1:] {
		rest += col.Width
	}
	buf.WriteString(pad(symbol, first.Width, first.Align))
	buf.WriteString(pad(waiting, rest, AlignLeft))
	buf.WriteByte('\n')
}

// pad aligns s within width. Longer values are not truncated.
func pad(s string, width int, align string) string {
	if align == AlignLeft {
		return fmt.Sprintf("%-*s", width, s)
	}
	return fmt.Sprintf("%*s", width, s)
}

func dedupe(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
