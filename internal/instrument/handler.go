package instrument

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"crm-backend/internal/store"
)

// AuditHandler exposes REST endpoints for querying audit events.
type AuditHandler struct {
	db      *sql.DB
	dialect store.Dialect
}

// NewAuditHandler creates an AuditHandler backed by the given db and dialect.
func NewAuditHandler(db *sql.DB, dialect store.Dialect) *AuditHandler {
	return &AuditHandler{db: db, dialect: dialect}
}

// List handles GET /_audit: audit events with filters (admin only).
func (h *AuditHandler) List(c *fiber.Ctx) error {
	ctx := c.UserContext()

	pb := h.dialect.NewParamBuilder()
	var conditions []string
	for _, col := range []string{"method", "resource", "actor"} {
		if v := c.Query(col); v != "" {
			conditions = append(conditions, fmt.Sprintf("%s = %s", col, pb.Add(v)))
		}
	}
	if v := c.Query("from"); v != "" {
		conditions = append(conditions, fmt.Sprintf("created_at >= %s", pb.Add(v)))
	}
	if v := c.Query("to"); v != "" {
		conditions = append(conditions, fmt.Sprintf("created_at <= %s", pb.Add(v)))
	}

	page, _ := strconv.Atoi(c.Query("page", "1"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(c.Query("per_page", "50"))
	if perPage < 1 {
		perPage = 50
	}
	if perPage > 100 {
		perPage = 100
	}
	offset := (page - 1) * perPage

	orderBy := "created_at DESC"
	if c.Query("sort") == "created_at" {
		orderBy = "created_at ASC"
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	countRow, err := store.QueryRow(ctx, h.db, "SELECT COUNT(*) as count FROM _audit_events"+whereClause, pb.Params()...)
	if err != nil {
		return fmt.Errorf("count audit events: %w", err)
	}
	total := toInt(countRow["count"])

	dataSQL := fmt.Sprintf(
		"SELECT id, method, resource, record_ids, actor, created_at FROM _audit_events%s ORDER BY %s LIMIT %s OFFSET %s",
		whereClause, orderBy, pb.Add(perPage), pb.Add(offset),
	)
	rows, err := store.QueryRows(ctx, h.db, dataSQL, pb.Params()...)
	if err != nil {
		return fmt.Errorf("list audit events: %w", err)
	}
	if rows == nil {
		rows = []map[string]any{}
	}

	return c.JSON(fiber.Map{
		"data": rows,
		"pagination": fiber.Map{
			"page":     page,
			"per_page": perPage,
			"total":    total,
		},
	})
}

// Stats handles GET /_audit/stats: counts per resource (admin only).
func (h *AuditHandler) Stats(c *fiber.Ctx) error {
	ctx := c.UserContext()

	pb := h.dialect.NewParamBuilder()
	whereClause := ""
	if v := c.Query("from"); v != "" {
		whereClause = fmt.Sprintf(" WHERE created_at >= %s", pb.Add(v))
	}

	deleteCount := h.dialect.FilterCountExpr("method IN ('delete', 'deleteMany')")
	sqlStr := fmt.Sprintf(
		"SELECT resource, COUNT(*) as count, %s as delete_count FROM _audit_events%s GROUP BY resource ORDER BY count DESC",
		deleteCount, whereClause,
	)
	rows, err := store.QueryRows(ctx, h.db, sqlStr, pb.Params()...)
	if err != nil {
		return fmt.Errorf("audit stats: %w", err)
	}

	byResource := make([]fiber.Map, 0, len(rows))
	total := 0
	for _, row := range rows {
		n := toInt(row["count"])
		total += n
		byResource = append(byResource, fiber.Map{
			"resource":     row["resource"],
			"count":        n,
			"delete_count": toInt(row["delete_count"]),
		})
	}

	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"total_events": total,
			"by_resource":  byResource,
		},
	})
}

// toInt safely converts various numeric types to int.
func toInt(v any) int {
	switch val := v.(type) {
	case int:
		return val
	case int32:
		return int(val)
	case int64:
		return int(val)
	case float64:
		return int(val)
	case string:
		n, _ := strconv.Atoi(val)
		return n
	default:
		return 0
	}
}
