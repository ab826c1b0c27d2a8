package instrument

import (
	"context"
	"time"

	"github.com/go-logr/logr"
)

// AuditEntry records a successful write on a delete operation or a sensitive resource.
type AuditEntry struct {
	Method    string    `json:"method"`
	Resource  string    `json:"resource"`
	IDs       []any     `json:"ids"`
	Actor     string    `json:"actor,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// AuditSink receives audit entries. Implementations must not block the caller
// for long and must be safe for concurrent use.
type AuditSink interface {
	Record(ctx context.Context, entry AuditEntry)
}

// LogSink writes audit entries to a logger only.
type LogSink struct {
	Log logr.Logger
}

func (s LogSink) Record(_ context.Context, e AuditEntry) {
	s.Log.Info("audit", "method", e.Method, "resource", e.Resource, "ids", e.IDs, "actor", e.Actor, "timestamp", e.Timestamp)
}

// MultiSink fans an entry out to several sinks.
type MultiSink []AuditSink

func (m MultiSink) Record(ctx context.Context, e AuditEntry) {
	for _, s := range m {
		s.Record(ctx, e)
	}
}
