package api

import (
	"docufi/types"

	"github.com/gofiber/fiber/v2"
)

type ConfigHandler struct {
	cfg types.Config
}

func NewConfigHandler(cfg types.Config) *ConfigHandler {
	return &ConfigHandler{cfg: cfg}
}

// HandleGetConfig reports the effective pipeline tunables, secrets
// excluded.
func (h *ConfigHandler) HandleGetConfig(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"max_file_size":       h.cfg.MaxFileSize,
		"chunk_size":          h.cfg.ChunkSize,
		"chunk_overlap":       h.cfg.ChunkOverlap,
		"embed_batch_size":    h.cfg.EmbedBatchSize,
		"embed_retries":       h.cfg.EmbedRetries,
		"search_top_k":        h.cfg.TopK,
		"min_relevance":       h.cfg.MinRelevance,
		"chat_history_window": h.cfg.HistoryWindow,
		"workers":             h.cfg.Workers,
		"call_timeout":        h.cfg.CallTimeout.String(),
	})
}
