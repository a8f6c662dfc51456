package api

import (
	"fmt"
	"io"

	"docufi/ingest"
	"docufi/store"
	"docufi/types"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type DocumentHandler struct {
	pipeline *ingest.Pipeline
	store    store.DocumentStorer
}

func NewDocumentHandler(pipeline *ingest.Pipeline, storer store.DocumentStorer) *DocumentHandler {
	return &DocumentHandler{
		pipeline: pipeline,
		store:    storer,
	}
}

func (h *DocumentHandler) HandleUpload(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return ErrBadRequest()
	}

	f, err := file.Open()
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return err
	}

	doc, err := h.pipeline.Ingest(c.Context(), file.Filename, file.Header.Get("Content-Type"), data)
	if err != nil {
		return err
	}
	fmt.Printf("[UPLOAD] File %s accepted as document %s\n", file.Filename, doc.ID)

	return c.Status(fiber.StatusCreated).JSON(doc)
}

func (h *DocumentHandler) HandleList(c *fiber.Ctx) error {
	docs, err := h.store.ListDocuments(c.Context())
	if err != nil {
		return err
	}

	total := len(docs)
	offset := c.QueryInt("offset", 0)
	limit := c.QueryInt("limit", 0)
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	docs = docs[offset:]
	if limit > 0 && limit < len(docs) {
		docs = docs[:limit]
	}
	return c.JSON(fiber.Map{"documents": docs, "count": len(docs), "total": total})
}

func (h *DocumentHandler) HandleGet(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrInvalidID()
	}

	doc, err := h.store.GetDocumentByID(c.Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(doc)
}

// HandleStatus reports the pipeline position of a document, including
// the derived progress percentage.
func (h *DocumentHandler) HandleStatus(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrInvalidID()
	}

	doc, err := h.store.GetDocumentByID(c.Context(), id)
	if err != nil {
		return err
	}

	resp := fiber.Map{
		"document_id":         doc.ID,
		"status":              doc.Status,
		"progress_percentage": doc.Progress(),
		"chunk_count":         doc.ChunkCount,
		"embedding_count":     doc.EmbeddingCount,
		"is_processed":        doc.Status.Processed(),
		"is_embedded":         doc.Status.Embedded(),
	}
	if doc.Status == types.StatusFailed {
		resp["processing_error"] = doc.ProcessingError
	}
	return c.JSON(resp)
}

func (h *DocumentHandler) HandleDelete(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrInvalidID()
	}

	if err := h.pipeline.Delete(c.Context(), id); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"result": "deleted", "document_id": id})
}
