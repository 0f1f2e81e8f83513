package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"levengine/internal/event"
)

func TestWriteBatch_MultiRowInsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	ts := time.Unix(1_700_000_000, 0)
	rows := []RecordRow{
		{Sequence: 1, RecordType: "pool_supplied", IdempotencyKey: "a", Asset: "USDC", Payload: []byte(`{}`), Timestamp: ts},
		{Sequence: 2, RecordType: "position_opened", IdempotencyKey: "b", Asset: "SOL", Payload: []byte(`{}`), Timestamp: ts},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO operation_log\.records .+ ON CONFLICT \(sequence\) DO NOTHING`).
		WithArgs(
			int64(1), "pool_supplied", "a", "USDC", []byte(`{}`), ts,
			int64(2), "position_opened", "b", "SOL", []byte(`{}`), ts,
		).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	ctx := context.Background()
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	w := NewOperationLogWriter(db)
	if err := w.WriteBatch(ctx, tx, rows); err != nil {
		t.Fatalf("write batch: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestWriteBatch_EmptyIsNoop(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	ctx := context.Background()
	tx, _ := db.BeginTx(ctx, nil)

	w := NewOperationLogWriter(db)
	if err := w.WriteBatch(ctx, tx, nil); err != nil {
		t.Fatalf("empty batch should not error: %v", err)
	}
	tx.Rollback()

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestLastSequence(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT MAX\(sequence\) FROM operation_log\.records`).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(int64(42)))

	w := NewOperationLogWriter(db)
	seq, err := w.LastSequence(context.Background())
	if err != nil {
		t.Fatalf("last sequence: %v", err)
	}
	if seq != 42 {
		t.Errorf("got %d, want 42", seq)
	}
}

func TestRowFromEnvelope(t *testing.T) {
	ts := time.Unix(1_700_000_000, 0)
	env := event.Envelope{
		Sequence:       7,
		IdempotencyKey: "op-7",
		RecordType:     event.RecordTypePositionClosed,
		Asset:          "SOL",
		Timestamp:      ts,
		Payload:        []byte(`{"debt_repaid":1500000}`),
	}

	row := RowFromEnvelope(env)
	if row.Sequence != 7 || row.RecordType != "position_closed" || row.Asset != "SOL" {
		t.Errorf("unexpected row: %+v", row)
	}
	if row.IdempotencyKey != "op-7" || !row.Timestamp.Equal(ts) {
		t.Errorf("unexpected row: %+v", row)
	}
}
