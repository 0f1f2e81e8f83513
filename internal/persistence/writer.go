package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"levengine/internal/event"
)

// RecordRow is one row in operation_log.records.
type RecordRow struct {
	Sequence       int64
	RecordType     string
	IdempotencyKey string
	Asset          string
	Payload        []byte // JSON-encoded record
	Timestamp      time.Time
}

// RowFromEnvelope flattens an engine envelope into its storage shape.
func RowFromEnvelope(env event.Envelope) RecordRow {
	return RecordRow{
		Sequence:       env.Sequence,
		RecordType:     env.RecordType.String(),
		IdempotencyKey: env.IdempotencyKey,
		Asset:          env.Asset,
		Payload:        env.Payload,
		Timestamp:      env.Timestamp,
	}
}

// OperationLogWriter batch-writes operation records to Postgres.
// Multi-row INSERT keeps the writer portable; switch to pgx CopyFrom
// if throughput ever demands it.
type OperationLogWriter struct {
	db *sql.DB
}

func NewOperationLogWriter(db *sql.DB) *OperationLogWriter {
	return &OperationLogWriter{db: db}
}

// WriteBatch inserts rows into operation_log.records inside the given
// transaction. Conflicting sequences are skipped, which makes replays
// after a crash idempotent.
func (w *OperationLogWriter) WriteBatch(ctx context.Context, tx *sql.Tx, rows []RecordRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO operation_log.records
		(sequence, record_type, idempotency_key, asset, payload, timestamp)
		VALUES `

	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*6)

	for i, r := range rows {
		base := i * 6
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6,
		))
		args = append(args,
			r.Sequence, r.RecordType, r.IdempotencyKey, r.Asset, r.Payload, r.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// LastSequence returns the highest persisted sequence, or 0 on an
// empty log. The engine resumes numbering from here on restart.
func (w *OperationLogWriter) LastSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := w.db.QueryRowContext(ctx,
		`SELECT MAX(sequence) FROM operation_log.records`,
	).Scan(&seq)
	if err != nil {
		return 0, err
	}
	return seq.Int64, nil
}
