package engine

import (
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"path"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"crm-backend/internal/metadata"
	"crm-backend/internal/provider"
	"crm-backend/internal/storage"
)

// FileHandler serves attachment uploads through the provider's object storage.
type FileHandler struct {
	storage provider.ObjectStorage
	maxSize int64
}

func NewFileHandler(s provider.ObjectStorage, maxSize int64) *FileHandler {
	return &FileHandler{storage: s, maxSize: maxSize}
}

// Upload handles POST /api/_storage/:bucket. The object path comes from the
// "path" form value, or is generated as <uuid>/<filename>.
func (h *FileHandler) Upload(c *fiber.Ctx) error {
	bucket := c.Params("bucket")
	file, err := c.FormFile("file")
	if err != nil {
		return respondError(c, NewAppError("INVALID_PAYLOAD", 400, "Missing file in form data"))
	}

	if h.maxSize > 0 && file.Size > h.maxSize {
		msg := fmt.Sprintf("File too large: %d bytes (max %d)", file.Size, h.maxSize)
		return respondError(c, NewAppError("FILE_TOO_LARGE", 413, msg))
	}

	src, err := file.Open()
	if err != nil {
		return fmt.Errorf("open uploaded file: %w", err)
	}
	defer src.Close()

	objectPath := strings.TrimPrefix(c.FormValue("path"), "/")
	if objectPath == "" {
		objectPath = uuid.New().String() + "/" + path.Base(file.Filename)
	}
	mimeType := file.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	key, err := h.storage.Upload(c.UserContext(), bucket, objectPath, src)
	if err != nil {
		return h.storageError(c, err, bucket, objectPath)
	}

	data := fiber.Map{
		"key":       key,
		"bucket":    bucket,
		"path":      objectPath,
		"filename":  file.Filename,
		"size":      file.Size,
		"mime_type": mimeType,
		"url":       h.storage.PublicURL(bucket, objectPath),
	}
	if user := metadata.UserFromContext(c.UserContext()); user != nil {
		data["uploaded_by"] = user.ID
	}
	return c.Status(201).JSON(fiber.Map{"data": data})
}

// Serve handles GET /api/_storage/:bucket/*.
func (h *FileHandler) Serve(c *fiber.Ctx) error {
	bucket, objectPath := c.Params("bucket"), c.Params("*")

	reader, err := h.storage.Download(c.UserContext(), bucket, objectPath)
	if err != nil {
		return h.storageError(c, err, bucket, objectPath)
	}

	mimeType := mime.TypeByExtension(path.Ext(objectPath))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	c.Set("Content-Type", mimeType)
	c.Set("Content-Disposition", fmt.Sprintf(`inline; filename="%s"`, path.Base(objectPath)))

	// SendStream closes the reader once the body is written.
	return c.SendStream(reader)
}

// Delete handles DELETE /api/_storage/:bucket/*. Missing objects are not an error.
func (h *FileHandler) Delete(c *fiber.Ctx) error {
	bucket, objectPath := c.Params("bucket"), c.Params("*")
	if err := h.storage.Remove(c.UserContext(), bucket, objectPath); err != nil {
		return h.storageError(c, err, bucket, objectPath)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"deleted": true}})
}

func (h *FileHandler) storageError(c *fiber.Ctx, err error, bucket, objectPath string) error {
	switch {
	case errors.Is(err, storage.ErrInvalidPath):
		return respondError(c, NewAppError("INVALID_PAYLOAD", 400, err.Error()))
	case errors.Is(err, fs.ErrNotExist):
		return respondError(c, NewAppError("NOT_FOUND", 404, fmt.Sprintf("File %s/%s not found", bucket, objectPath)))
	}
	return fmt.Errorf("storage %s/%s: %w", bucket, objectPath, err)
}
