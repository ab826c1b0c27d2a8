package engine_test

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-logr/logr"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-backend/internal/engine"
	"crm-backend/internal/storage"
)

func newFileApp(t *testing.T, maxSize int64) *fiber.App {
	t.Helper()
	app := fiber.New(fiber.Config{ErrorHandler: engine.ErrorHandler(logr.Discard())})
	h := engine.NewFileHandler(storage.NewLocalStorage(t.TempDir(), "/files"), maxSize)
	engine.RegisterFileRoutes(app, h)
	return app
}

func uploadRequest(t *testing.T, bucket, filename, objectPath, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if objectPath != "" {
		require.NoError(t, w.WriteField("path", objectPath))
	}
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = io.WriteString(part, content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/_storage/"+bucket, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestFileHandler_UploadServeDelete(t *testing.T) {
	app := newFileApp(t, 1024)

	resp, err := app.Test(uploadRequest(t, "attachments", "notes.txt", "contact_notes/7/notes.txt", "call back monday"), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	data := decode(t, resp)["data"].(map[string]any)
	assert.Equal(t, "attachments/contact_notes/7/notes.txt", data["key"])
	assert.Equal(t, "/files/attachments/contact_notes/7/notes.txt", data["url"])
	assert.Equal(t, float64(len("call back monday")), data["size"])

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/_storage/attachments/contact_notes/7/notes.txt", nil), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/plain")
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "call back monday", string(body))

	resp, err = app.Test(httptest.NewRequest(http.MethodDelete, "/api/_storage/attachments/contact_notes/7/notes.txt", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/_storage/attachments/contact_notes/7/notes.txt", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", errorCode(decode(t, resp)))
}

func TestFileHandler_GeneratedPath(t *testing.T) {
	app := newFileApp(t, 0)

	resp, err := app.Test(uploadRequest(t, "avatars", "sam.png", "", "png"), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	data := decode(t, resp)["data"].(map[string]any)
	assert.Regexp(t, `^[0-9a-f-]{36}/sam\.png$`, data["path"])
	assert.Equal(t, "sam.png", data["filename"])
}

func TestFileHandler_Rejects(t *testing.T) {
	app := newFileApp(t, 4)

	resp, err := app.Test(uploadRequest(t, "attachments", "big.txt", "", "too large"), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	assert.Equal(t, "FILE_TOO_LARGE", errorCode(decode(t, resp)))

	req := httptest.NewRequest(http.MethodPost, "/api/_storage/attachments", bytes.NewReader([]byte("{}")))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_PAYLOAD", errorCode(decode(t, resp)))

	resp, err = app.Test(uploadRequest(t, "attachments", "a.txt", "..", "x"), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}
