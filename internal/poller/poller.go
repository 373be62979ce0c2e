package poller

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/quoteboard/internal/api"
	"github.com/rickgao/quoteboard/internal/model"
)

// QuoteSource fetches REST quotes. *api.Client implements it.
type QuoteSource interface {
	Quotes(ctx context.Context, symbols []string) (map[string]api.QuoteEntry, error)
}

// Ingester receives converted quotes. *snapshot.Store implements it.
type Ingester interface {
	Ingest(ev model.UpdateEvent)
}

// Config holds poller configuration.
type Config struct {
	Interval    time.Duration // Poll interval (default: 5s)
	Timeout     time.Duration // Per-request timeout (default: 10s)
	BatchSize   int           // Symbols per request (default: 50)
	Concurrency int           // Max concurrent requests (default: 4)

	// Standby reports whether a fresher source (the live stream) is
	// delivering. Cycles are skipped while it returns true. Nil polls always.
	Standby func() bool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:    5 * time.Second,
		Timeout:     10 * time.Second,
		BatchSize:   50,
		Concurrency: 4,
	}
}

// Stats reports poller activity.
type Stats struct {
	Cycles   int64
	Requests int64
	Errors   int64
	Ingested int64
	Skipped  int64 // cycles skipped on standby
	LastPoll time.Time
}

// Poller periodically fetches quotes via the REST API.
type Poller struct {
	cfg     Config
	client  QuoteSource
	symbols []string
	sink    Ingester
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	cycles   atomic.Int64
	requests atomic.Int64
	errors   atomic.Int64
	ingested atomic.Int64
	skipped  atomic.Int64
	lastPoll atomic.Int64 // unix nanos
}

// New creates a new Poller. Zero config values take their defaults.
func New(cfg Config, client QuoteSource, symbols []string, sink Ingester, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = defaults.Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaults.Concurrency
	}

	return &Poller{
		cfg:     cfg,
		client:  client,
		symbols: append([]string(nil), symbols...),
		sink:    sink,
		logger:  logger,
	}
}

// Start begins the polling loop.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("quote poller started",
		"interval", p.cfg.Interval,
		"symbols", len(p.symbols),
		"batch_size", p.cfg.BatchSize,
	)

	return nil
}

// Stop gracefully shuts down the poller.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("quote poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns current statistics.
func (p *Poller) Stats() Stats {
	s := Stats{
		Cycles:   p.cycles.Load(),
		Requests: p.requests.Load(),
		Errors:   p.errors.Load(),
		Ingested: p.ingested.Load(),
		Skipped:  p.skipped.Load(),
	}
	if ns := p.lastPoll.Load(); ns != 0 {
		s.LastPoll = time.Unix(0, ns)
	}
	return s
}

// run is the main polling loop.
func (p *Poller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	// Poll immediately on start.
	p.pollAll()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.pollAll()
		}
	}
}

// pollAll fetches every batch concurrently.
func (p *Poller) pollAll() {
	if len(p.symbols) == 0 {
		p.logger.Debug("no symbols to poll")
		return
	}
	if p.cfg.Standby != nil && p.cfg.Standby() {
		p.skipped.Add(1)
		p.logger.Debug("stream live, skipping poll cycle")
		return
	}

	start := time.Now()
	batches := Batches(p.symbols, p.cfg.BatchSize)

	// Semaphore for bounded concurrency.
	sem := make(chan struct{}, p.cfg.Concurrency)
	var wg sync.WaitGroup
	var quotes, failed atomic.Int64

	for _, batch := range batches {
		wg.Add(1)
		go func(symbols []string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-p.ctx.Done():
				return
			}

			n, err := p.pollBatch(symbols)
			if err != nil {
				if p.ctx.Err() == nil {
					p.logger.Warn("failed to poll quotes",
						"symbols", len(symbols),
						"first", symbols[0],
						"err", err,
					)
				}
				failed.Add(1)
				return
			}
			quotes.Add(int64(n))
		}(batch)
	}

	wg.Wait()

	p.cycles.Add(1)
	p.lastPoll.Store(time.Now().UnixNano())

	p.logger.Debug("poll cycle complete",
		"batches", len(batches),
		"quotes", quotes.Load(),
		"errors", failed.Load(),
		"duration", time.Since(start),
	)
}

// pollBatch fetches one batch and ingests each quote.
func (p *Poller) pollBatch(symbols []string) (int, error) {
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.Timeout)
	defer cancel()

	p.requests.Add(1)
	entries, err := p.client.Quotes(ctx, symbols)
	if err != nil {
		p.errors.Add(1)
		return 0, err
	}

	receivedAt := time.Now()
	n := 0
	for _, entry := range entries {
		ev := entry.Event(receivedAt)
		if len(ev.Fields) == 0 {
			continue
		}
		p.sink.Ingest(ev)
		n++
	}
	p.ingested.Add(int64(n))
	return n, nil
}

// Batches splits symbols into consecutive groups of at most size.
func Batches(symbols []string, size int) [][]string {
	if size <= 0 {
		size = len(symbols)
	}
	var out [][]string
	for start := 0; start < len(symbols); start += size {
		end := min(start+size, len(symbols))
		out = append(out, symbols[start:end])
	}
	return out
}
