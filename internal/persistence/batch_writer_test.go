package persistence

import (
	"testing"
	"time"

	"market-gateway/pkg/db"
)

func TestBatchWriterFlushesBySize(t *testing.T) {
	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer database.Close()
	if _, err := database.DB.Exec(`CREATE TABLE kv (k TEXT PRIMARY KEY, v TEXT)`); err != nil {
		t.Fatalf("create: %v", err)
	}

	bw := NewBatchWriter(database, 2, time.Hour, nil)
	bw.WriteQuery(`INSERT INTO kv (k, v) VALUES (?, ?)`, "a", "1")
	if got := bw.Pending(); got != 1 {
		t.Fatalf("pending = %d, want 1", got)
	}
	bw.WriteQuery(`INSERT INTO kv (k, v) VALUES (?, ?)`, "b", "2")
	if got := bw.Pending(); got != 0 {
		t.Fatalf("pending after size flush = %d, want 0", got)
	}

	bw.WriteQuery(`INSERT INTO kv (k, v) VALUES (?, ?)`, "c", "3")
	if err := bw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	bw.Close()

	var n int
	if err := database.DB.QueryRow(`SELECT COUNT(*) FROM kv`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Fatalf("rows = %d, want 3", n)
	}
	if m := bw.GetMetrics(); m.TotalBatches != 2 || m.TotalWrites != 3 {
		t.Fatalf("metrics = %+v", m)
	}
}

func TestBatchWriterRollsBackFailedBatch(t *testing.T) {
	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer database.Close()

	bw := NewBatchWriter(database, 10, time.Hour, nil)
	defer bw.Close()
	bw.WriteQuery(`INSERT INTO missing_table (x) VALUES (?)`, 1)
	if err := bw.Flush(); err == nil {
		t.Fatal("expected flush error")
	}
	if m := bw.GetMetrics(); m.TotalErrors != 1 {
		t.Fatalf("errors = %d, want 1", m.TotalErrors)
	}
}
