package admin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"crm-backend/internal/engine"
	"crm-backend/internal/metadata"
	"crm-backend/internal/store"
)

// Handler serves the resource catalog and manages the stored validation
// rules. Every rule write reloads the registry, so the change applies to the
// next create or update.
type Handler struct {
	store    *store.Store
	registry *metadata.Registry
	log      logr.Logger
}

func NewHandler(s *store.Store, reg *metadata.Registry, log logr.Logger) *Handler {
	return &Handler{store: s, registry: reg, log: log}
}

func RegisterAdminRoutes(app *fiber.App, h *Handler, middleware ...fiber.Handler) {
	admin := app.Group("/api/_admin", middleware...)

	admin.Get("/resources", h.ListResources)
	admin.Get("/resources/:name", h.GetResource)

	admin.Get("/rules", h.ListRules)
	admin.Post("/rules", h.CreateRule)
	admin.Put("/rules/:id", h.UpdateRule)
	admin.Delete("/rules/:id", h.DeleteRule)
}

// --- Resource Endpoints ---

func (h *Handler) ListResources(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.registry.AllResources()})
}

func (h *Handler) GetResource(c *fiber.Ctx) error {
	name := c.Params("name")
	res := h.registry.GetResource(name)
	if res == nil {
		return engine.UnknownResourceError(name)
	}
	rules := h.registry.GetRules(name, "create")
	for _, r := range h.registry.GetRules(name, "update") {
		if r.Hook != "" {
			rules = append(rules, r)
		}
	}
	if rules == nil {
		rules = []*metadata.Rule{}
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"resource": res,
		"schema":   res.JSONSchema(),
		"rules":    rules,
	}})
}

// --- Rule Endpoints ---

// ruleInput is the request body of rule writes. Active defaults to true.
type ruleInput struct {
	ID         string                  `json:"id"`
	Resource   string                  `json:"resource"`
	Hook       string                  `json:"hook"`
	Definition metadata.RuleDefinition `json:"definition"`
	Priority   int                     `json:"priority"`
	Active     *bool                   `json:"active"`
}

func (in *ruleInput) rule() *metadata.Rule {
	active := in.Active == nil || *in.Active
	return &metadata.Rule{
		ID:         in.ID,
		Resource:   in.Resource,
		Hook:       in.Hook,
		Definition: in.Definition,
		Priority:   in.Priority,
		Active:     active,
	}
}

func (h *Handler) ListRules(c *fiber.Ctx) error {
	rules, err := metadata.QueryRules(c.UserContext(), h.store.DB, h.log)
	if err != nil {
		return err
	}
	if rules == nil {
		rules = []*metadata.Rule{}
	}
	return c.JSON(fiber.Map{"data": rules})
}

func (h *Handler) CreateRule(c *fiber.Ctx) error {
	var in ruleInput
	if err := c.BodyParser(&in); err != nil {
		return engine.NewAppError("INVALID_PAYLOAD", 400, "Invalid JSON body")
	}
	if in.ID == "" {
		in.ID = uuid.New().String()
	}
	rule := in.rule()
	if err := validateRule(rule, h.registry); err != nil {
		return err
	}
	for _, builtin := range metadata.CRMRules() {
		if builtin.ID == rule.ID {
			return engine.ConflictError("Rule id is reserved: " + rule.ID)
		}
	}

	ctx := c.UserContext()
	pb := h.store.Dialect.NewParamBuilder()
	if _, err := store.QueryRow(ctx, h.store.DB, "SELECT id FROM _rules WHERE id = "+pb.Add(rule.ID), pb.Params()...); err == nil {
		return engine.ConflictError("Rule already exists: " + rule.ID)
	}

	defJSON, err := json.Marshal(rule.Definition)
	if err != nil {
		return fmt.Errorf("marshal rule definition: %w", err)
	}
	pb = h.store.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("INSERT INTO _rules (id, resource, hook, definition, priority, active) VALUES (%s, %s, %s, %s, %s, %s)",
		pb.Add(rule.ID), pb.Add(rule.Resource), pb.Add(nullable(rule.Hook)), pb.Add(string(defJSON)), pb.Add(rule.Priority), pb.Add(rule.Active))
	if _, err := store.Exec(ctx, h.store.DB, sqlStr, pb.Params()...); err != nil {
		return fmt.Errorf("insert rule: %w", err)
	}

	if err := h.reload(ctx); err != nil {
		return err
	}
	return c.Status(201).JSON(fiber.Map{"data": rule})
}

func (h *Handler) UpdateRule(c *fiber.Ctx) error {
	id := c.Params("id")
	var in ruleInput
	if err := c.BodyParser(&in); err != nil {
		return engine.NewAppError("INVALID_PAYLOAD", 400, "Invalid JSON body")
	}
	in.ID = id
	rule := in.rule()
	if err := validateRule(rule, h.registry); err != nil {
		return err
	}

	defJSON, err := json.Marshal(rule.Definition)
	if err != nil {
		return fmt.Errorf("marshal rule definition: %w", err)
	}
	ctx := c.UserContext()
	pb := h.store.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("UPDATE _rules SET resource = %s, hook = %s, definition = %s, priority = %s, active = %s, updated_at = %s WHERE id = %s",
		pb.Add(rule.Resource), pb.Add(nullable(rule.Hook)), pb.Add(string(defJSON)), pb.Add(rule.Priority), pb.Add(rule.Active),
		h.store.Dialect.NowExpr(), pb.Add(id))
	n, err := store.Exec(ctx, h.store.DB, sqlStr, pb.Params()...)
	if err != nil {
		return fmt.Errorf("update rule: %w", err)
	}
	if n == 0 {
		return engine.NotFoundError("rule", id)
	}

	if err := h.reload(ctx); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": rule})
}

func (h *Handler) DeleteRule(c *fiber.Ctx) error {
	id := c.Params("id")
	ctx := c.UserContext()
	pb := h.store.Dialect.NewParamBuilder()
	n, err := store.Exec(ctx, h.store.DB, "DELETE FROM _rules WHERE id = "+pb.Add(id), pb.Params()...)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	if n == 0 {
		return engine.NotFoundError("rule", id)
	}

	if err := h.reload(ctx); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"id": id, "deleted": true}})
}

// reload rebuilds the registry rules from the built-in set and the table.
func (h *Handler) reload(ctx context.Context) error {
	stored, err := metadata.QueryRules(ctx, h.store.DB, h.log)
	if err != nil {
		return err
	}
	h.registry.LoadRules(append(metadata.CRMRules(), metadata.KnownRules(h.registry, stored, h.log)...))
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// --- Validation ---

func validateRule(r *metadata.Rule, reg *metadata.Registry) error {
	var details []engine.ErrorDetail
	if r.Resource == "" {
		details = append(details, engine.ErrorDetail{Field: "resource", Rule: "required", Message: "Resource is required"})
	} else if reg.GetResource(r.Resource) == nil {
		details = append(details, engine.ErrorDetail{Field: "resource", Rule: "exists", Message: "Unknown resource: " + r.Resource})
	}
	switch r.Hook {
	case "", "create", "update":
	default:
		details = append(details, engine.ErrorDetail{Field: "hook", Rule: "enum", Message: "Hook must be create, update or empty"})
	}
	if r.Definition.Expression == "" {
		details = append(details, engine.ErrorDetail{Field: "definition.expression", Rule: "required", Message: "Expression is required"})
	} else if _, err := engine.CompileExpression(r.Definition.Expression); err != nil {
		details = append(details, engine.ErrorDetail{Field: "definition.expression", Rule: "compile", Message: err.Error()})
	}
	if len(details) > 0 {
		return engine.ValidationError(details)
	}
	return nil
}
