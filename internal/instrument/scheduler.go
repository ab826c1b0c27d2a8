package instrument

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-logr/logr"

	"crm-backend/internal/store"
)

// CleanupScheduler prunes expired audit events on a fixed interval.
type CleanupScheduler struct {
	db            *sql.DB
	dialect       store.Dialect
	log           logr.Logger
	retentionDays int
	interval      time.Duration

	ticker *time.Ticker
	done   chan struct{}
}

func NewCleanupScheduler(db *sql.DB, dialect store.Dialect, log logr.Logger, retentionDays int, interval time.Duration) *CleanupScheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &CleanupScheduler{
		db:            db,
		dialect:       dialect,
		log:           log,
		retentionDays: retentionDays,
		interval:      interval,
	}
}

// Start runs one cleanup immediately and then one per interval.
// A non-positive retention disables the scheduler.
func (s *CleanupScheduler) Start() {
	if s.retentionDays <= 0 {
		return
	}
	s.done = make(chan struct{})
	s.ticker = time.NewTicker(s.interval)
	go s.run()
	s.log.Info("audit cleanup scheduler started", "interval", s.interval, "retention_days", s.retentionDays)
}

// Stop halts the ticker.
func (s *CleanupScheduler) Stop() {
	if s.ticker != nil {
		s.ticker.Stop()
	}
	if s.done != nil {
		close(s.done)
	}
}

func (s *CleanupScheduler) run() {
	s.cleanup()
	for {
		select {
		case <-s.done:
			return
		case <-s.ticker.C:
			s.cleanup()
		}
	}
}

func (s *CleanupScheduler) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if _, err := CleanupOldAuditEvents(ctx, s.db, s.dialect, s.log, s.retentionDays); err != nil {
		s.log.Error(err, "audit cleanup failed")
	}
}
