package api

import (
	"docufi/app/agent"
	"docufi/store"
	"docufi/types"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type ChatHandler struct {
	agent *agent.ChatAgent
	store store.SessionStorer
}

func NewChatHandler(chatAgent *agent.ChatAgent, storer store.SessionStorer) *ChatHandler {
	return &ChatHandler{
		agent: chatAgent,
		store: storer,
	}
}

func (h *ChatHandler) HandleChat(c *fiber.Ctx) error {
	var params types.ChatParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return types.NewValidationError(errors)
	}

	result, err := h.agent.Chat(c.Context(), params)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"session_id": result.Session.ID,
		"message":    result.Message,
	})
}

func (h *ChatHandler) HandleCreateSession(c *fiber.Ctx) error {
	var params types.SessionParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return types.NewValidationError(errors)
	}

	session, err := h.agent.CreateSession(c.Context(), params)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(session)
}

func (h *ChatHandler) HandleListSessions(c *fiber.Ctx) error {
	var docID uuid.NullUUID
	if raw := c.Query("document_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return ErrInvalidID()
		}
		docID = uuid.NullUUID{UUID: id, Valid: true}
	}

	sessions, err := h.store.ListSessions(c.Context(), docID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"sessions": sessions, "count": len(sessions)})
}

func (h *ChatHandler) HandleGetSession(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrInvalidID()
	}

	session, err := h.store.GetSessionByID(c.Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(session)
}

// HandleHistory returns the chronological message log of a session.
func (h *ChatHandler) HandleHistory(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrInvalidID()
	}

	if _, err := h.store.GetSessionByID(c.Context(), id); err != nil {
		return err
	}

	limit := c.QueryInt("limit", 0)
	messages, err := h.store.SessionHistory(c.Context(), id, limit)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"session_id": id, "messages": messages, "count": len(messages)})
}
