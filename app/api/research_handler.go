package api

import (
	"docufi/app/agent"
	"docufi/store"
	"docufi/types"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type ResearchHandler struct {
	orchestrator *agent.Orchestrator
	store        store.TaskStorer
}

func NewResearchHandler(orchestrator *agent.Orchestrator, storer store.TaskStorer) *ResearchHandler {
	return &ResearchHandler{
		orchestrator: orchestrator,
		store:        storer,
	}
}

// HandleStart queues a research task for an embedded document and
// returns it in state pending. Progress is polled via HandleGet.
func (h *ResearchHandler) HandleStart(c *fiber.Ctx) error {
	docID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrInvalidID()
	}

	var params types.ResearchParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return types.NewValidationError(errors)
	}

	task, err := h.orchestrator.Start(c.Context(), docID, params)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(task)
}

func (h *ResearchHandler) HandleGet(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrInvalidID()
	}

	task, err := h.store.GetTaskByID(c.Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(task)
}

func (h *ResearchHandler) HandleList(c *fiber.Ctx) error {
	status := types.TaskStatus(c.Query("status"))
	switch status {
	case "", types.TaskPending, types.TaskInProgress, types.TaskCompleted, types.TaskFailed:
	default:
		return types.NewValidationError(map[string]string{"status": "unknown task status"})
	}

	tasks, err := h.store.ListTasks(c.Context(), status)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"tasks": tasks, "count": len(tasks)})
}
