package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-logr/logr/testr"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-backend/internal/engine"
	"crm-backend/internal/metadata"
	"crm-backend/internal/store"
)

type adminServer struct {
	app *fiber.App
	reg *metadata.Registry
}

func newAdminServer(t *testing.T) *adminServer {
	t.Helper()
	ctx := context.Background()
	s, err := store.Open(ctx, "sqlite", ":memory:", 1)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	require.NoError(t, s.Bootstrap(ctx, nil))

	reg := metadata.NewCRMRegistry()
	log := testr.New(t)
	app := fiber.New(fiber.Config{ErrorHandler: engine.ErrorHandler(log)})
	RegisterAdminRoutes(app, NewHandler(s, reg, log))
	return &adminServer{app: app, reg: reg}
}

func (s *adminServer) call(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func ruleIDs(rules []*metadata.Rule) []string {
	ids := make([]string, len(rules))
	for i, r := range rules {
		ids[i] = r.ID
	}
	return ids
}

func TestResources(t *testing.T) {
	s := newAdminServer(t)

	status, body := s.call(t, http.MethodGet, "/api/_admin/resources", nil)
	require.Equal(t, http.StatusOK, status)
	list := body["data"].([]any)
	assert.Len(t, list, len(s.reg.AllResources()))
	assert.Equal(t, metadata.Activities, list[0].(map[string]any)["name"])

	status, body = s.call(t, http.MethodGet, "/api/_admin/resources/opportunities", nil)
	require.Equal(t, http.StatusOK, status)
	data := body["data"].(map[string]any)
	assert.Equal(t, "object", data["schema"].(map[string]any)["type"])
	rules := data["rules"].([]any)
	require.Len(t, rules, 1)
	assert.Equal(t, "opportunities.loss_reason", rules[0].(map[string]any)["id"])

	status, body = s.call(t, http.MethodGet, "/api/_admin/resources/widgets", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "UNKNOWN_RESOURCE", body["error"].(map[string]any)["code"])
}

func TestRuleLifecycle(t *testing.T) {
	s := newAdminServer(t)

	rule := map[string]any{
		"id":       "contacts.email",
		"resource": "contacts",
		"hook":     "create",
		"definition": map[string]any{
			"field":      "email",
			"expression": `record.email == nil`,
			"message":    "Email is required",
		},
	}
	status, body := s.call(t, http.MethodPost, "/api/_admin/rules", rule)
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, true, body["data"].(map[string]any)["active"])
	assert.Equal(t, []string{"contacts.email"}, ruleIDs(s.reg.GetRules(metadata.Contacts, "create")))
	assert.Empty(t, s.reg.GetRules(metadata.Contacts, "update"))
	assert.Equal(t, []string{"opportunities.loss_reason"}, ruleIDs(s.reg.GetRules(metadata.Opportunities, "create")),
		"built-in rules survive a reload")

	status, body = s.call(t, http.MethodPost, "/api/_admin/rules", rule)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "CONFLICT", body["error"].(map[string]any)["code"])

	status, body = s.call(t, http.MethodGet, "/api/_admin/rules", nil)
	require.Equal(t, http.StatusOK, status)
	stored := body["data"].([]any)
	require.Len(t, stored, 1)
	assert.Equal(t, "Email is required", stored[0].(map[string]any)["definition"].(map[string]any)["message"])

	rule["active"] = false
	status, _ = s.call(t, http.MethodPut, "/api/_admin/rules/contacts.email", rule)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, s.reg.GetRules(metadata.Contacts, "create"))

	status, _ = s.call(t, http.MethodPut, "/api/_admin/rules/missing", rule)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = s.call(t, http.MethodDelete, "/api/_admin/rules/contacts.email", nil)
	require.Equal(t, http.StatusOK, status)
	status, body = s.call(t, http.MethodGet, "/api/_admin/rules", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []any{}, body["data"])

	status, _ = s.call(t, http.MethodDelete, "/api/_admin/rules/contacts.email", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestCreateRule_GeneratesID(t *testing.T) {
	s := newAdminServer(t)

	status, body := s.call(t, http.MethodPost, "/api/_admin/rules", map[string]any{
		"resource":   "tags",
		"definition": map[string]any{"expression": `record.name == "x"`},
	})
	require.Equal(t, http.StatusCreated, status, body)
	id := body["data"].(map[string]any)["id"].(string)
	assert.Len(t, id, 36)
	assert.Equal(t, []string{id}, ruleIDs(s.reg.GetRules(metadata.Tags, "update")))
}

func TestCreateRule_Rejects(t *testing.T) {
	s := newAdminServer(t)

	status, body := s.call(t, http.MethodPost, "/api/_admin/rules", map[string]any{
		"resource":   "widgets",
		"hook":       "delete",
		"definition": map[string]any{"expression": "record.("},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	errs := body["body"].(map[string]any)["errors"].(map[string]any)
	assert.Contains(t, errs, "resource")
	assert.Contains(t, errs, "hook")
	assert.Contains(t, errs, "definition.expression")

	status, body = s.call(t, http.MethodPost, "/api/_admin/rules", map[string]any{
		"id":         "opportunities.loss_reason",
		"resource":   "opportunities",
		"definition": map[string]any{"expression": "true"},
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "Rule id is reserved: opportunities.loss_reason", body["error"].(map[string]any)["message"])
}
