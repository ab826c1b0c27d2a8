package metadata

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/go-logr/logr"
)

// QueryRules reads every stored rule, active or not, ordered by resource and
// priority. Rows with an invalid definition are logged and skipped.
func QueryRules(ctx context.Context, db *sql.DB, log logr.Logger) ([]*Rule, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT id, resource, hook, definition, priority, active FROM _rules ORDER BY resource, priority, id")
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	defer rows.Close()

	var rules []*Rule
	for rows.Next() {
		var r Rule
		var hook sql.NullString
		var defJSON []byte
		if err := rows.Scan(&r.ID, &r.Resource, &hook, &defJSON, &r.Priority, &r.Active); err != nil {
			return nil, fmt.Errorf("scan rule row: %w", err)
		}
		r.Hook = hook.String
		if err := json.Unmarshal(defJSON, &r.Definition); err != nil {
			log.Error(err, "skipping rule with invalid definition", "rule", r.ID)
			continue
		}
		rules = append(rules, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rules: %w", err)
	}
	return rules, nil
}

// KnownRules drops rules that target a resource missing from the registry.
func KnownRules(reg *Registry, rules []*Rule, log logr.Logger) []*Rule {
	out := make([]*Rule, 0, len(rules))
	for _, r := range rules {
		if reg.GetResource(r.Resource) == nil {
			log.Info("skipping rule for unknown resource", "rule", r.ID, "resource", r.Resource)
			continue
		}
		out = append(out, r)
	}
	return out
}

// LoadRules reads active rules from the _rules table and adds them to the
// registry on top of the built-in ones.
func LoadRules(ctx context.Context, db *sql.DB, reg *Registry, log logr.Logger) error {
	stored, err := QueryRules(ctx, db, log)
	if err != nil {
		return err
	}
	rules := KnownRules(reg, stored, log)
	reg.AddRules(rules)
	log.Info("loaded rules", "count", len(rules))
	return nil
}
