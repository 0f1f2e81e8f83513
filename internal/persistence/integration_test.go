package persistence_test

import (
	"context"
	"testing"
	"time"

	"levengine/internal/persistence"
	"levengine/internal/testutil"
)

func TestOperationLog_RoundTrip(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	if err := persistence.NewMigrator(db, "../../migrations").Up(ctx); err != nil {
		t.Fatalf("migrate up: %v", err)
	}

	ts := time.Now().UTC()
	rows := []persistence.RecordRow{
		{Sequence: 1, RecordType: "pool_supplied", IdempotencyKey: "it-1", Asset: "USDC", Payload: []byte(`{"amount":1}`), Timestamp: ts},
		{Sequence: 2, RecordType: "position_opened", IdempotencyKey: "it-2", Asset: "SOL", Payload: []byte(`{"debt_amount":2}`), Timestamp: ts},
	}

	w := persistence.NewOperationLogWriter(db)
	write := func() {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			t.Fatalf("begin: %v", err)
		}
		if err := w.WriteBatch(ctx, tx, rows); err != nil {
			tx.Rollback()
			t.Fatalf("write batch: %v", err)
		}
		if err := tx.Commit(); err != nil {
			t.Fatalf("commit: %v", err)
		}
	}

	write()
	// Replaying the same batch is a no-op thanks to the sequence conflict.
	write()

	seq, err := w.LastSequence(ctx)
	if err != nil {
		t.Fatalf("last sequence: %v", err)
	}
	if seq != 2 {
		t.Errorf("last sequence: got %d, want 2", seq)
	}

	var count int
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM operation_log.records`,
	).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Errorf("row count: got %d, want 2", count)
	}
}
