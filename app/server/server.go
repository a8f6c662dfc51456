package server

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"
	"time"

	"docufi/app/agent"
	"docufi/app/api"
	"docufi/app/middleware"
	"docufi/ingest"
	"docufi/model"
	"docufi/search"
	"docufi/store"
	"docufi/types"
	"docufi/worker"

	"github.com/gofiber/fiber/v2"
)

var config = fiber.Config{
	ErrorHandler: api.ErrorHandler,
	BodyLimit:    64 * 1024 * 1024,
}

type Server struct {
	listenAddr string
	logger     *slog.Logger

	app   *fiber.App
	pool  *worker.Pool
	store *store.PostgresStore
}

func NewServer(addr string) *Server {
	return &Server{
		listenAddr: addr,
		logger:     slog.Default(),
	}
}

func (s *Server) Run() {
	ctx := context.Background()
	cfg := types.ConfigFromEnv()

	port, _ := strconv.Atoi(os.Getenv("PG_PORT"))
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		os.Getenv("PG_HOST"), port, os.Getenv("PG_USER"), os.Getenv("PG_PASS"), os.Getenv("PG_DB_NAME"))
	pg, err := store.NewPostgresStore(ctx, connStr)
	if err != nil {
		log.Fatal("error to connect to Postgres database", err)
		return
	}
	s.store = pg

	if err := pg.Init(ctx); err != nil {
		log.Fatal("error to create tables", err)
		return
	}

	var (
		parser   = model.NewConvertClient(cfg.CallTimeout)
		embedder = model.NewOpenAIEmbedder(cfg.CallTimeout, cfg.EmbedBatchSize)
		llm      = model.NewOpenAIClient(cfg.CallTimeout)
		pool     = worker.NewPool(cfg.Workers)

		enricher     = ingest.NewEnricher(llm, pg)
		pipeline     = ingest.NewPipeline(cfg, pg, pg, parser, embedder, enricher, pool)
		retriever    = search.NewRetriever(embedder, pg)
		orchestrator = agent.NewOrchestrator(cfg, pg, pg, retriever, llm, pool)
		chatAgent    = agent.NewChatAgent(cfg, pg, pg, retriever, llm)
	)
	s.pool = pool

	var (
		app             = fiber.New(config)
		checkHandler    = api.NewCheckHandler(pg)
		configHandler   = api.NewConfigHandler(cfg)
		documentHandler = api.NewDocumentHandler(pipeline, pg)
		researchHandler = api.NewResearchHandler(orchestrator, pg)
		chatHandler     = api.NewChatHandler(chatAgent, pg)

		check = app.Group("/check")
		apiv1 = app.Group("/api/v1")
	)
	s.app = app

	app.Use(middleware.RequestLogger(s.logger))

	check.Get("/healthy", checkHandler.HandleHealthy)
	check.Get("/config", configHandler.HandleGetConfig)

	apiv1.Get("/system/stats", checkHandler.HandleStats)

	apiv1.Post("/documents", documentHandler.HandleUpload)
	apiv1.Get("/documents", documentHandler.HandleList)
	apiv1.Get("/documents/:id", documentHandler.HandleGet)
	apiv1.Get("/documents/:id/status", documentHandler.HandleStatus)
	apiv1.Delete("/documents/:id", documentHandler.HandleDelete)

	apiv1.Post("/documents/:id/research", researchHandler.HandleStart)
	apiv1.Get("/research", researchHandler.HandleList)
	apiv1.Get("/research/:id", researchHandler.HandleGet)

	apiv1.Post("/chat", chatHandler.HandleChat)
	apiv1.Post("/chat/sessions", chatHandler.HandleCreateSession)
	apiv1.Get("/chat/sessions", chatHandler.HandleListSessions)
	apiv1.Get("/chat/sessions/:id", chatHandler.HandleGetSession)
	apiv1.Get("/chat/sessions/:id/history", chatHandler.HandleHistory)

	if err := app.Listen(s.listenAddr); err != nil {
		s.logger.Error("error to start server", "error", err.Error())
		return
	}
}

// Stop shuts the HTTP listener, then the worker pool, then the database
// pool, in that order so in-flight jobs can finish their writes.
func (s *Server) Stop() {
	if s.app != nil {
		if err := s.app.Shutdown(); err != nil {
			s.logger.Error("http shutdown failed", "error", err.Error())
		}
	}
	if s.pool != nil {
		s.pool.Shutdown(10 * time.Second)
	}
	if s.store != nil {
		s.store.Close()
	}
	s.logger.Info("server stopped")
}
