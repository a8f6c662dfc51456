package api

import (
	"docufi/store"
	"docufi/types"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type CheckHandler struct {
	store store.Storer
}

func NewCheckHandler(storer store.Storer) *CheckHandler {
	return &CheckHandler{store: storer}
}

func (h *CheckHandler) HandleHealthy(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"result": "ok"})
}

// HandleStats reports corpus-wide counters.
func (h *CheckHandler) HandleStats(c *fiber.Ctx) error {
	docs, err := h.store.ListDocuments(c.Context())
	if err != nil {
		return err
	}
	tasks, err := h.store.ListTasks(c.Context(), "")
	if err != nil {
		return err
	}
	sessions, err := h.store.ListSessions(c.Context(), uuid.NullUUID{})
	if err != nil {
		return err
	}

	embedded, failed := 0, 0
	for _, d := range docs {
		switch d.Status {
		case types.StatusEmbedded:
			embedded++
		case types.StatusFailed:
			failed++
		}
	}

	return c.JSON(fiber.Map{
		"documents": fiber.Map{
			"total":    len(docs),
			"embedded": embedded,
			"failed":   failed,
		},
		"research_tasks": len(tasks),
		"chat_sessions":  len(sessions),
	})
}
