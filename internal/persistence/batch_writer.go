package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"market-gateway/internal/monitor"
	"market-gateway/pkg/db"
	"market-gateway/pkg/logger"
)

const flushTimeout = 5 * time.Second

// WriteOp is one journal statement with ? placeholders.
type WriteOp struct {
	Query string
	Args  []any
}

// BatchWriter queues journal writes and commits them in one transaction
// once maxSize ops are queued or every interval.
type BatchWriter struct {
	db       *db.Database
	maxSize  int
	interval time.Duration
	log      *zap.Logger

	mu      sync.Mutex
	queued  []WriteOp
	flushMu sync.Mutex

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	writes    atomic.Uint64
	batches   atomic.Uint64
	failures  atomic.Uint64
	lastSize  atomic.Int64
	lastFlush atomic.Int64
}

// BatchWriterMetrics is reported on the gateway status endpoint.
type BatchWriterMetrics struct {
	TotalWrites   uint64    `json:"total_writes"`
	TotalBatches  uint64    `json:"total_batches"`
	TotalErrors   uint64    `json:"total_errors"`
	LastBatchSize int       `json:"last_batch_size"`
	LastFlushTime time.Time `json:"last_flush_time"`
}

func NewBatchWriter(database *db.Database, maxSize int, interval time.Duration, log *zap.Logger) *BatchWriter {
	if maxSize <= 0 {
		maxSize = 50
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	bw := &BatchWriter{
		db:       database,
		maxSize:  maxSize,
		interval: interval,
		log:      logger.OrNop(log).Named("batch_writer"),
		queued:   make([]WriteOp, 0, maxSize),
		stop:     make(chan struct{}),
	}
	bw.wg.Add(1)
	go bw.loop()
	return bw
}

// Write queues op and flushes inline when the batch is full.
func (bw *BatchWriter) Write(op WriteOp) {
	bw.mu.Lock()
	bw.queued = append(bw.queued, op)
	full := len(bw.queued) >= bw.maxSize
	bw.mu.Unlock()

	if full {
		if err := bw.Flush(); err != nil {
			bw.log.Warn("size-triggered flush failed", zap.Error(err))
		}
	}
}

func (bw *BatchWriter) WriteQuery(query string, args ...any) {
	bw.Write(WriteOp{Query: query, Args: args})
}

// Flush commits everything queued so far. A failed batch is rolled back
// and discarded.
func (bw *BatchWriter) Flush() error {
	bw.flushMu.Lock()
	defer bw.flushMu.Unlock()

	bw.mu.Lock()
	ops := bw.queued
	if len(ops) == 0 {
		bw.mu.Unlock()
		return nil
	}
	bw.queued = make([]WriteOp, 0, bw.maxSize)
	bw.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	bw.writes.Add(uint64(len(ops)))
	bw.batches.Add(1)
	bw.lastSize.Store(int64(len(ops)))
	bw.lastFlush.Store(time.Now().UnixNano())

	if err := bw.commit(ctx, ops); err != nil {
		bw.failures.Add(1)
		monitor.Default.IncrementErrors()
		bw.log.Error("journal batch dropped", zap.Int("ops", len(ops)), zap.Error(err))
		return err
	}
	bw.log.Debug("journal batch committed", zap.Int("ops", len(ops)))
	return nil
}

func (bw *BatchWriter) commit(ctx context.Context, ops []WriteOp) error {
	tx, err := bw.db.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// one prepared statement per distinct query in the batch
	stmts := make(map[string]*sql.Stmt)
	for _, op := range ops {
		stmt, ok := stmts[op.Query]
		if !ok {
			stmt, err = tx.PrepareContext(ctx, bw.db.Rebind(op.Query))
			if err != nil {
				return fmt.Errorf("prepare: %w", err)
			}
			defer stmt.Close()
			stmts[op.Query] = stmt
		}
		if _, err := stmt.ExecContext(ctx, op.Args...); err != nil {
			return fmt.Errorf("exec: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (bw *BatchWriter) loop() {
	defer bw.wg.Done()
	ticker := time.NewTicker(bw.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := bw.Flush(); err != nil {
				bw.log.Warn("timed flush failed", zap.Error(err))
			}
		case <-bw.stop:
			if err := bw.Flush(); err != nil {
				bw.log.Warn("final flush failed", zap.Error(err))
			}
			return
		}
	}
}

// Pending returns the number of queued ops.
func (bw *BatchWriter) Pending() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.queued)
}

func (bw *BatchWriter) GetMetrics() BatchWriterMetrics {
	m := BatchWriterMetrics{
		TotalWrites:   bw.writes.Load(),
		TotalBatches:  bw.batches.Load(),
		TotalErrors:   bw.failures.Load(),
		LastBatchSize: int(bw.lastSize.Load()),
	}
	if ns := bw.lastFlush.Load(); ns != 0 {
		m.LastFlushTime = time.Unix(0, ns)
	}
	return m
}

// Close flushes the queue and stops the flusher. Safe to call twice.
func (bw *BatchWriter) Close() error {
	bw.stopOnce.Do(func() { close(bw.stop) })
	bw.wg.Wait()
	return nil
}
