package sink

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const upsertQuote = `
	INSERT INTO latest_quotes (symbol, fields, instance_id, seq, updated_at)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (symbol) DO UPDATE SET
		fields      = EXCLUDED.fields,
		instance_id = EXCLUDED.instance_id,
		seq         = EXCLUDED.seq,
		updated_at  = EXCLUDED.updated_at
`

// BatchSender sends a pgx batch. *pgxpool.Pool implements it.
type BatchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// PostgresSink upserts one latest_quotes row per changed symbol.
type PostgresSink struct {
	db BatchSender
}

// NewPostgresSink creates a sink writing through db.
func NewPostgresSink(db BatchSender) *PostgresSink {
	return &PostgresSink{db: db}
}

// Name implements Sink.
func (s *PostgresSink) Name() string { return "postgres" }

// Write upserts every snapshot in the batch.
func (s *PostgresSink) Write(ctx context.Context, b Batch) error {
	symbols := b.Symbols()

	batch := &pgx.Batch{}
	for _, sym := range symbols {
		doc, err := encodeFields(b.Snapshots[sym])
		if err != nil {
			return err
		}
		batch.Queue(upsertQuote, sym, doc, b.InstanceID, int64(b.Seq), b.At)
	}

	results := s.db.SendBatch(ctx, batch)
	defer results.Close()

	for _, sym := range symbols {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upsert %s: %w", sym, err)
		}
	}
	return nil
}
