package instrument

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"crm-backend/internal/store"
)

// AuditBuffer collects audit entries in memory and periodically flushes them
// to the _audit_events table in a batch insert.
type AuditBuffer struct {
	mu      sync.Mutex
	entries []AuditEntry
	db      *sql.DB
	dialect store.Dialect
	log     logr.Logger
	maxSize int
	ticker  *time.Ticker
	done    chan struct{}
	stopped sync.Once
}

// NewAuditBuffer creates a buffer that flushes on a timer or when full.
func NewAuditBuffer(db *sql.DB, dialect store.Dialect, log logr.Logger, maxSize int, flushIntervalMs int) *AuditBuffer {
	if maxSize < 1 {
		maxSize = 100
	}
	if flushIntervalMs < 1 {
		flushIntervalMs = 1000
	}
	ab := &AuditBuffer{
		db:      db,
		dialect: dialect,
		log:     log.WithName("audit"),
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	ab.ticker = time.NewTicker(time.Duration(flushIntervalMs) * time.Millisecond)
	go ab.run()
	return ab
}

func (ab *AuditBuffer) run() {
	for {
		select {
		case <-ab.done:
			return
		case <-ab.ticker.C:
			ab.Flush()
		}
	}
}

// Record adds an entry to the buffer. If the buffer is full, a flush
// is triggered asynchronously.
func (ab *AuditBuffer) Record(_ context.Context, e AuditEntry) {
	ab.mu.Lock()
	ab.entries = append(ab.entries, e)
	shouldFlush := len(ab.entries) >= ab.maxSize
	ab.mu.Unlock()
	if shouldFlush {
		go ab.Flush()
	}
}

// Pending returns the number of entries not yet flushed.
func (ab *AuditBuffer) Pending() int {
	ab.mu.Lock()
	defer ab.mu.Unlock()
	return len(ab.entries)
}

// Flush writes all buffered entries to the database in a single batch insert.
func (ab *AuditBuffer) Flush() {
	ab.mu.Lock()
	if len(ab.entries) == 0 {
		ab.mu.Unlock()
		return
	}
	batch := ab.entries
	ab.entries = nil
	ab.mu.Unlock()

	ctx := context.Background()
	tx, err := ab.db.BeginTx(ctx, nil)
	if err != nil {
		ab.log.Error(err, "begin tx", "dropped", len(batch))
		return
	}

	if stmt := ab.dialect.SyncCommitOff(); stmt != "" {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			tx.Rollback()
			ab.log.Error(err, "set sync commit", "dropped", len(batch))
			return
		}
	}

	cols := []string{"method", "resource", "record_ids", "actor", "created_at"}
	pb := ab.dialect.NewParamBuilder()
	var rows []string
	for _, e := range batch {
		ids, _ := json.Marshal(e.IDs)
		ph := []string{
			pb.Add(e.Method),
			pb.Add(e.Resource),
			pb.Add(string(ids)),
			pb.Add(e.Actor),
			pb.Add(e.Timestamp.UTC().Format(time.RFC3339)),
		}
		rows = append(rows, "("+strings.Join(ph, ",")+")")
	}

	sqlStr := fmt.Sprintf("INSERT INTO _audit_events (%s) VALUES %s", strings.Join(cols, ","), strings.Join(rows, ","))
	if _, err := tx.ExecContext(ctx, sqlStr, pb.Params()...); err != nil {
		tx.Rollback()
		ab.log.Error(err, "insert", "dropped", len(batch))
		return
	}

	if err := tx.Commit(); err != nil {
		ab.log.Error(err, "commit", "dropped", len(batch))
	}
}

// Stop halts the background ticker and flushes remaining entries.
func (ab *AuditBuffer) Stop() {
	ab.stopped.Do(func() {
		ab.ticker.Stop()
		close(ab.done)
		ab.Flush()
	})
}
