package api

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"docufi/store"
	"docufi/types"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func statusApp(t *testing.T, doc types.Document) *fiber.App {
	t.Helper()
	mem := store.NewMemoryStore()
	require.NoError(t, mem.SaveDocument(context.Background(), doc))

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Get("/documents/:id/status", NewDocumentHandler(nil, mem).HandleStatus)
	return app
}

func getStatus(t *testing.T, app *fiber.App, id uuid.UUID) map[string]any {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest("GET", "/documents/"+id.String()+"/status", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestHandleStatusEmbeddedDocument(t *testing.T) {
	doc := types.Document{
		ID:             uuid.New(),
		Status:         types.StatusEmbedded,
		ChunkCount:     4,
		EmbeddingCount: 4,
	}
	body := getStatus(t, statusApp(t, doc), doc.ID)

	assert.Equal(t, true, body["is_processed"])
	assert.Equal(t, true, body["is_embedded"])
	assert.Equal(t, float64(100), body["progress_percentage"])
	assert.NotContains(t, body, "processing_error")
}

func TestHandleStatusFailedDocument(t *testing.T) {
	doc := types.Document{
		ID:              uuid.New(),
		Status:          types.StatusFailed,
		ProcessingError: "embedding chunks 0-3 failed",
	}
	body := getStatus(t, statusApp(t, doc), doc.ID)

	assert.Equal(t, false, body["is_processed"])
	assert.Equal(t, false, body["is_embedded"])
	assert.Equal(t, "embedding chunks 0-3 failed", body["processing_error"])
}
