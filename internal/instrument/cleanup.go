package instrument

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-logr/logr"

	"crm-backend/internal/store"
)

// CleanupOldAuditEvents deletes audit events older than retentionDays.
func CleanupOldAuditEvents(ctx context.Context, db *sql.DB, dialect store.Dialect, log logr.Logger, retentionDays int) (int64, error) {
	pb := dialect.NewParamBuilder()
	whereExpr := dialect.IntervalDeleteExpr("created_at", pb, fmt.Sprintf("%d", retentionDays))
	sqlStr := fmt.Sprintf("DELETE FROM _audit_events WHERE %s", whereExpr)
	n, err := store.Exec(ctx, db, sqlStr, pb.Params()...)
	if err != nil {
		return 0, fmt.Errorf("audit cleanup: %w", err)
	}
	if n > 0 {
		log.Info("audit cleanup", "deleted", n, "retention_days", retentionDays)
	}
	return n, nil
}
