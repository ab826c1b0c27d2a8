package engine

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"crm-backend/internal/metadata"
	"crm-backend/internal/provider"
)

// Handler serves the data provider over REST.
type Handler struct {
	data     *ResourceProvider
	registry *metadata.Registry
	now      func() time.Time
}

func NewHandler(data *ResourceProvider, reg *metadata.Registry) *Handler {
	return &Handler{data: data, registry: reg, now: time.Now}
}

// writeBody is the envelope accepted by write endpoints. A body without a
// "data" object is treated as the record itself.
type writeBody struct {
	Data         provider.Record `json:"data"`
	PreviousData provider.Record `json:"previousData"`
	IDs          []any           `json:"ids"`
	Meta         provider.Meta   `json:"meta"`
}

// List handles GET /api/:resource
func (h *Handler) List(c *fiber.Ctx) error {
	name, res, err := h.resolveResource(c)
	if err != nil {
		return h.fail(c, err)
	}

	q := ParseListQuery(c, res)
	result, err := h.data.GetList(c.UserContext(), name, provider.GetListParams{
		Pagination: q.Pagination,
		Sort:       q.Sort,
		Filter:     q.Filter,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(listResponse(result, q.Pagination))
}

// GetByID handles GET /api/:resource/:id
func (h *Handler) GetByID(c *fiber.Ctx) error {
	name, _, err := h.resolveResource(c)
	if err != nil {
		return h.fail(c, err)
	}

	id := ParseID(c.Params("id"))
	result, err := h.data.GetOne(c.UserContext(), name, provider.GetOneParams{ID: id})
	if err != nil {
		if IsNoRowsError(err) {
			return respondError(c, NotFoundError(name, id))
		}
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"data": result.Data})
}

// GetMany handles POST /api/:resource/_many with {"ids": [...]}
func (h *Handler) GetMany(c *fiber.Ctx) error {
	name, _, err := h.resolveResource(c)
	if err != nil {
		return h.fail(c, err)
	}

	body, err := parseWriteBody(c)
	if err != nil {
		return h.fail(c, err)
	}
	result, err := h.data.GetMany(c.UserContext(), name, provider.GetManyParams{IDs: body.IDs, Meta: body.Meta})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"data": nonNilRecords(result.Data)})
}

// GetManyReference handles GET /api/:resource/by/:target/:id
func (h *Handler) GetManyReference(c *fiber.Ctx) error {
	name, res, err := h.resolveResource(c)
	if err != nil {
		return h.fail(c, err)
	}

	q := ParseListQuery(c, res)
	result, err := h.data.GetManyReference(c.UserContext(), name, provider.GetManyReferenceParams{
		Target:     utils.CopyString(c.Params("target")),
		ID:         ParseID(c.Params("id")),
		Pagination: q.Pagination,
		Sort:       q.Sort,
		Filter:     q.Filter,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(listResponse(result, q.Pagination))
}

// Create handles POST /api/:resource
func (h *Handler) Create(c *fiber.Ctx) error {
	name, _, err := h.resolveResource(c)
	if err != nil {
		return h.fail(c, err)
	}

	body, err := parseWriteBody(c)
	if err != nil {
		return h.fail(c, err)
	}
	result, err := h.data.Create(c.UserContext(), name, provider.CreateParams{Data: body.Data, Meta: body.Meta})
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": result.Data})
}

// Update handles PUT /api/:resource/:id
func (h *Handler) Update(c *fiber.Ctx) error {
	name, _, err := h.resolveResource(c)
	if err != nil {
		return h.fail(c, err)
	}

	body, err := parseWriteBody(c)
	if err != nil {
		return h.fail(c, err)
	}
	result, err := h.data.Update(c.UserContext(), name, provider.UpdateParams{
		ID:           ParseID(c.Params("id")),
		Data:         body.Data,
		PreviousData: body.PreviousData,
		Meta:         body.Meta,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"data": result.Data})
}

// UpdateMany handles PUT /api/:resource with {"ids": [...], "data": {...}}
func (h *Handler) UpdateMany(c *fiber.Ctx) error {
	name, _, err := h.resolveResource(c)
	if err != nil {
		return h.fail(c, err)
	}

	body, err := parseWriteBody(c)
	if err != nil {
		return h.fail(c, err)
	}
	result, err := h.data.UpdateMany(c.UserContext(), name, provider.UpdateManyParams{IDs: body.IDs, Data: body.Data, Meta: body.Meta})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"data": nonNilIDs(result.Data)})
}

// Delete handles DELETE /api/:resource/:id
func (h *Handler) Delete(c *fiber.Ctx) error {
	name, _, err := h.resolveResource(c)
	if err != nil {
		return h.fail(c, err)
	}

	body, err := parseWriteBody(c)
	if err != nil {
		return h.fail(c, err)
	}
	result, err := h.data.Delete(c.UserContext(), name, provider.DeleteParams{
		ID:           ParseID(c.Params("id")),
		PreviousData: body.PreviousData,
		Meta:         body.Meta,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"data": result.Data})
}

// DeleteMany handles DELETE /api/:resource with {"ids": [...]}
func (h *Handler) DeleteMany(c *fiber.Ctx) error {
	name, _, err := h.resolveResource(c)
	if err != nil {
		return h.fail(c, err)
	}

	body, err := parseWriteBody(c)
	if err != nil {
		return h.fail(c, err)
	}
	result, err := h.data.DeleteMany(c.UserContext(), name, provider.DeleteManyParams{IDs: body.IDs, Meta: body.Meta})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"data": nonNilIDs(result.Data)})
}

// TaskUrgency handles GET /api/tasks/_urgency?today=YYYY-MM-DD. Completed
// tasks are excluded.
func (h *Handler) TaskUrgency(c *fiber.Ctx) error {
	today := h.now()
	if s := c.Query("today"); s != "" {
		d, ok := ParseDay(s)
		if !ok {
			return respondError(c, FieldError("today", "Invalid date, expected YYYY-MM-DD"))
		}
		today = d
	}

	result, err := h.data.GetList(c.UserContext(), metadata.Tasks, provider.GetListParams{
		Pagination: provider.Pagination{Page: 1, PerPage: maxPerPage},
		Sort:       provider.Sort{Field: "due_date", Order: "ASC"},
	})
	if err != nil {
		return h.fail(c, err)
	}
	open := make([]provider.Record, 0, len(result.Data))
	for _, t := range result.Data {
		if done, _ := t["completed"].(bool); !done {
			open = append(open, t)
		}
	}
	return c.JSON(fiber.Map{"data": GroupTasksByUrgency(open, today)})
}

// resolveResource accepts registered resources and tasks.
func (h *Handler) resolveResource(c *fiber.Ctx) (string, *metadata.Resource, error) {
	name := utils.CopyString(c.Params("resource"))
	if res := h.registry.GetResource(name); res != nil {
		return name, res, nil
	}
	if h.data.Has(name) {
		return name, h.registry.GetResource(metadata.Activities), nil
	}
	return "", nil, UnknownResourceError(name)
}

func parseWriteBody(c *fiber.Ctx) (*writeBody, error) {
	body := &writeBody{}
	raw := c.Body()
	if len(raw) == 0 {
		return body, nil
	}

	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, NewAppError("INVALID_PAYLOAD", 400, "Invalid JSON body")
	}
	if _, enveloped := generic["data"].(map[string]any); enveloped || generic["ids"] != nil || generic["previousData"] != nil {
		if err := json.Unmarshal(raw, body); err != nil {
			return nil, NewAppError("INVALID_PAYLOAD", 400, "Invalid JSON body")
		}
		return body, nil
	}
	body.Data = provider.Record(generic)
	return body, nil
}

func listResponse(result *provider.ListResult, p provider.Pagination) fiber.Map {
	return fiber.Map{
		"data":  nonNilRecords(result.Data),
		"total": result.Total,
		"meta": fiber.Map{
			"page":     p.Page,
			"per_page": p.PerPage,
			"total":    result.Total,
		},
	}
}

func respondError(c *fiber.Ctx, appErr *AppError) error {
	return c.Status(appErr.Status).JSON(NewErrorResponse(appErr))
}

// fail renders known error shapes and hands the rest to the app's error handler.
func (h *Handler) fail(c *fiber.Ctx, err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return respondError(c, appErr)
	}

	var dbErr *provider.DBError
	if errors.As(err, &dbErr) {
		switch dbErr.Code {
		case provider.CodeNoRows:
			return respondError(c, NewAppError("NOT_FOUND", 404, dbErr.Message))
		case "23505":
			msg := "A record with this value already exists"
			if dbErr.Details != "" {
				msg = dbErr.Details
			}
			return respondError(c, ConflictError(msg))
		case "40001":
			return respondError(c, ConflictError(dbErr.Message))
		}
	}

	if errors.Is(err, provider.ErrRPCUnsupported) || errors.Is(err, provider.ErrFilterWriteUnsupported) {
		return respondError(c, NewAppError("NOT_IMPLEMENTED", 501, err.Error()))
	}
	return err
}
