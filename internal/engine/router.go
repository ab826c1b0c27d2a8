package engine

import (
	"errors"

	"github.com/go-logr/logr"
	"github.com/gofiber/fiber/v2"
)

func RegisterDynamicRoutes(app *fiber.App, h *Handler, middleware ...fiber.Handler) {
	api := app.Group("/api", middleware...)

	api.Get("/tasks/_urgency", h.TaskUrgency)

	api.Get("/:resource", h.List)
	api.Post("/:resource", h.Create)
	api.Put("/:resource", h.UpdateMany)
	api.Delete("/:resource", h.DeleteMany)
	api.Post("/:resource/_many", h.GetMany)
	api.Get("/:resource/by/:target/:id", h.GetManyReference)
	api.Get("/:resource/:id", h.GetByID)
	api.Put("/:resource/:id", h.Update)
	api.Delete("/:resource/:id", h.Delete)
}

// RegisterFileRoutes mounts the attachment endpoints. It must run before
// RegisterDynamicRoutes so that /api/_storage is not taken for a resource.
func RegisterFileRoutes(app *fiber.App, h *FileHandler, middleware ...fiber.Handler) {
	files := app.Group("/api/_storage", middleware...)
	files.Post("/:bucket", h.Upload)
	files.Get("/:bucket/*", h.Serve)
	files.Delete("/:bucket/*", h.Delete)
}

// ErrorHandler renders AppErrors in the API's error shape and hides
// everything else behind a generic 500.
func ErrorHandler(log logr.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var appErr *AppError
		if errors.As(err, &appErr) {
			return c.Status(appErr.Status).JSON(NewErrorResponse(appErr))
		}

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return c.Status(fiberErr.Code).JSON(ErrorResponse{
				Error: &AppError{Code: "HTTP_ERROR", Message: fiberErr.Message},
			})
		}

		log.Error(err, "unhandled request error", "method", c.Method(), "path", c.Path())
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error: &AppError{
				Code:    "INTERNAL_ERROR",
				Message: "Internal server error",
			},
		})
	}
}
