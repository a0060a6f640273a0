package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/agasthyaps/nisa-labs-sub000/internal/api"
	"github.com/agasthyaps/nisa-labs-sub000/internal/api/middleware"
	"github.com/agasthyaps/nisa-labs-sub000/internal/auth"
	"github.com/agasthyaps/nisa-labs-sub000/internal/chat"
	"github.com/agasthyaps/nisa-labs-sub000/internal/config"
	"github.com/agasthyaps/nisa-labs-sub000/internal/gate"
	"github.com/agasthyaps/nisa-labs-sub000/internal/handlers"
	"github.com/agasthyaps/nisa-labs-sub000/internal/llm"
	"github.com/agasthyaps/nisa-labs-sub000/internal/prompts"
	"github.com/agasthyaps/nisa-labs-sub000/internal/store"
	"github.com/agasthyaps/nisa-labs-sub000/internal/stream"
	"github.com/agasthyaps/nisa-labs-sub000/internal/tools"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Durable storage: Postgres when configured, SQLite otherwise
	var dataStore store.DataStore
	if cfg.DatabaseURL != "" {
		logger.Info().Msg("running database migrations...")
		if err := store.RunMigrations(ctx, cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
		pg, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		dataStore = pg
		logger.Info().Msg("connected to PostgreSQL")
	} else {
		sq, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		dataStore = sq
		logger.Info().Str("path", cfg.SQLitePath).Msg("using SQLite storage")
	}
	defer dataStore.Close()

	// Resumable stream context. Without Redis, chat degrades to one-shot
	// streaming and resume replays the persisted tail only. An unreachable
	// broker degrades the same way instead of blocking startup.
	var streams *stream.Context
	if cfg.RedisURL != "" {
		broker, err := stream.NewRedisBroker(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn().Err(err).Msg("redis connection failed, streams are not resumable")
		} else {
			defer broker.Close()
			streams = stream.NewContext(broker, logger)
			logger.Info().Msg("connected to Redis, streams are resumable")
		}
	} else {
		logger.Warn().Msg("REDIS_URL not set, streams are not resumable")
	}

	// Model provider
	provider := llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey)
	transcriber := llm.NewVisionTranscriber(provider, cfg.VisionModel)

	// Tool registry. Sheets and Drive stay unconfigured unless a backing
	// service is wired in; their tools answer with an inline error.
	promptCache := prompts.NewCache(15 * time.Minute)
	registry := tools.NewRegistry()
	registry.MustRegister(tools.WeatherTool())
	registry.MustRegister(tools.CreateDocumentTool(tools.DocumentDeps{
		Store:    dataStore,
		Provider: provider,
		Model:    cfg.ChatModel,
	}))
	registry.MustRegister(tools.UpdateDocumentTool(tools.DocumentDeps{
		Store:    dataStore,
		Provider: provider,
		Model:    cfg.ChatModel,
	}))
	registry.MustRegister(tools.SuggestionsTool(tools.DocumentDeps{
		Store:    dataStore,
		Provider: provider,
		Model:    cfg.ChatModel,
	}))
	registry.MustRegister(tools.ReadSheetTool(nil))
	registry.MustRegister(tools.UpdateSheetTool(nil))
	registry.MustRegister(tools.SearchDriveTool(nil))
	if cfg.ExpertiseRepo != "" {
		registry.MustRegister(tools.ExpertiseTool(cfg.ExpertiseRepo, cfg.ExpertiseToken, promptCache))
	}

	// Token-budget gate for the embedded surface
	budget := gate.New(gate.Caps{
		General: cfg.EmbedCapGeneral,
		CSV:     cfg.EmbedCapCSV,
		Image:   cfg.EmbedCapImage,
	})
	budget.StartSweeper(ctx, time.Hour)

	chatSvc := chat.NewService(dataStore, provider, registry, streams, transcriber, budget, chat.ModelConfig{
		Chat:      cfg.ChatModel,
		Reasoning: cfg.ReasoningModel,
		Title:     cfg.TitleModel,
	}, logger)

	authSvc := auth.NewService(dataStore)
	authMW := middleware.NewAuthMiddleware(authSvc)

	router := api.NewRouter(cfg, api.Handlers{
		Chat:     handlers.NewChatHandler(chatSvc, logger),
		MiniChat: handlers.NewMiniChatHandler(chatSvc, logger),
		History:  handlers.NewHistoryHandler(dataStore, logger),
		Vote:     handlers.NewVoteHandler(dataStore, logger),
		Auth:     handlers.NewAuthHandler(authSvc, logger),
		Health:   handlers.NewHealthHandler(dataStore, logger),
	}, authMW, logger)

	// SSE responses stream for as long as a generation runs, so no write
	// timeout; read timeout still bounds slow request bodies.
	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting chat server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	// Graceful shutdown with 30 second timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}
