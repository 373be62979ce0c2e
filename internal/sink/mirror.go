package sink

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Config holds mirror settings.
type Config struct {
	InstanceID string
	Interval   time.Duration // default 1s
	Timeout    time.Duration // per write, default 5s
}

// sinkState is one sink plus its cursor.
type sinkState struct {
	sink  Sink
	stats SinkStats
}

// Mirror copies changed snapshots to sinks on an interval.
type Mirror struct {
	cfg    Config
	source Source
	logger *slog.Logger
	now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// mu serializes passes and guards stats.
	mu     sync.Mutex
	sinks  []*sinkState
	passes int64
}

// NewMirror creates a mirror over source writing to sinks.
func NewMirror(cfg Config, source Source, sinks []Sink, logger *slog.Logger) *Mirror {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	states := make([]*sinkState, 0, len(sinks))
	for _, s := range sinks {
		states = append(states, &sinkState{sink: s})
	}

	return &Mirror{
		cfg:    cfg,
		source: source,
		logger: logger,
		now:    time.Now,
		sinks:  states,
	}
}

// Start begins mirroring.
func (m *Mirror) Start(ctx context.Context) error {
	m.ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(1)
	go m.run()

	names := make([]string, 0, len(m.sinks))
	for _, s := range m.sinks {
		names = append(names, s.sink.Name())
	}
	m.logger.Info("snapshot mirror started",
		"interval", m.cfg.Interval,
		"sinks", names,
		"instance_id", m.cfg.InstanceID,
	)
	return nil
}

// Stop halts the loop and runs a final pass.
func (m *Mirror) Stop(ctx context.Context) error {
	m.logger.Info("stopping snapshot mirror")

	if m.cancel != nil {
		m.cancel()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("snapshot mirror stop timed out")
		return ctx.Err()
	}

	// Final flush
	m.Flush(ctx)

	m.logger.Info("snapshot mirror stopped")
	return nil
}

// Stats returns current counters.
func (m *Mirror) Stats() MirrorStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := MirrorStats{
		Passes: m.passes,
		Sinks:  make(map[string]SinkStats, len(m.sinks)),
	}
	for _, s := range m.sinks {
		out.Sinks[s.sink.Name()] = s.stats
	}
	return out
}

func (m *Mirror) run() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.Flush(m.ctx)
		}
	}
}

// Flush runs one pass: each sink receives what changed since its cursor.
func (m *Mirror) Flush(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.passes++
	for _, s := range m.sinks {
		m.flushSink(ctx, s)
	}
}

// flushSink writes one sink's pending changes. Called with mu held; the
// store lock is not held during the write.
func (m *Mirror) flushSink(ctx context.Context, s *sinkState) {
	changed, seq := m.source.ChangedSince(s.stats.Cursor)
	if len(changed) == 0 {
		s.stats.Cursor = seq
		return
	}

	batch := Batch{
		InstanceID: m.cfg.InstanceID,
		Seq:        seq,
		At:         m.now(),
		Snapshots:  changed,
	}

	wctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	start := time.Now()
	if err := s.sink.Write(wctx, batch); err != nil {
		s.stats.Errors++
		s.stats.LastErr = err.Error()
		m.logger.Error("mirror write failed",
			"sink", s.sink.Name(),
			"symbols", len(changed),
			"error", err,
		)
		return
	}

	s.stats.Cursor = seq
	s.stats.Writes++
	s.stats.Symbols += int64(len(changed))
	s.stats.LastErr = ""

	m.logger.Debug("mirrored snapshots",
		"sink", s.sink.Name(),
		"symbols", len(changed),
		"seq", seq,
		"duration", time.Since(start),
	)
}
