package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/anna0613/linebot-control-plane/internal/adminapi"
	"github.com/anna0613/linebot-control-plane/internal/analytics"
	"github.com/anna0613/linebot-control-plane/internal/config"
	"github.com/anna0613/linebot-control-plane/internal/gateway"
	"github.com/anna0613/linebot-control-plane/internal/lineapi"
	"github.com/anna0613/linebot-control-plane/internal/llm"
	"github.com/anna0613/linebot-control-plane/internal/media"
	"github.com/anna0613/linebot-control-plane/internal/objectstore"
	"github.com/anna0613/linebot-control-plane/internal/orchestrator"
	"github.com/anna0613/linebot-control-plane/internal/outbox"
	"github.com/anna0613/linebot-control-plane/internal/retrieval"
	"github.com/anna0613/linebot-control-plane/internal/store/pg"
	"github.com/anna0613/linebot-control-plane/internal/telemetry"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook control plane (HTTP + WebSocket gateway)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer shutdownTracing(context.Background())

	db, err := pg.OpenDB(cfg.Database.PostgresDSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	bots := pg.NewBotStore(db)
	conversa := pg.NewConvoStore(db)
	know := pg.NewKnowledgeStore(db)
	templates := pg.NewLogicStore(db)

	objStore, err := objectstore.NewS3Store(ctx, cfg.ObjectStore, cfg.Gateway.PublicBaseURL)
	if err != nil {
		return fmt.Errorf("open object store: %w", err)
	}

	lineClient := lineapi.NewClient("")
	mediaWorker := media.NewWorker(lineClient, objStore, conversa, cfg.ObjectStore.Bucket, cfg.Media.MaxInflightPerBot)

	providers, defaultProvider, err := buildLLMProviders(cfg.LLM)
	if err != nil {
		return err
	}
	retryPolicy := llm.RetryPolicy{
		MaxAttempts:         cfg.LLM.MaxRetries,
		BreakerThreshold:    cfg.LLM.BreakerThreshold,
		BreakerOpenDuration: time.Duration(secondsOrDefault(cfg.LLM.BreakerOpenSeconds, 30)) * time.Second,
	}
	llmClient := llm.NewClient(defaultProvider, retryPolicy, providers...)

	var embedder retrieval.Embedder
	if oa, ok := firstOpenAI(providers); ok {
		embedder = oa
	}

	var reranker retrieval.Reranker
	if cfg.Retrieval.RerankerURL != "" {
		reranker = retrieval.NewHTTPReranker(cfg.Retrieval.RerankerURL, "")
	}

	retrievalEngine := retrieval.NewEngine(know, conversa, embedder, llmClient, reranker)

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	}
	registry := gateway.NewRegistry(rdb)
	defer registry.Close()

	analyticsSink, err := analytics.NewSink(cfg.Analytics)
	if err != nil {
		slog.Warn("analytics sink unavailable", "error", err)
	}
	defer analyticsSink.Close()

	outboxPub, err := outbox.NewPublisher(cfg.Outbox)
	if err != nil {
		slog.Warn("event outbox unavailable", "error", err)
	}
	defer outboxPub.Close()

	orch := orchestrator.New(
		bots, conversa, mediaWorker, templates, retrievalEngine, llmClient, registry, nil,
	)
	orch.SetAnalytics(analyticsSink)
	orch.SetOutbox(outboxPub)
	orch.SetRetrievalDefaults(retrievalParamsFromConfig(cfg.Retrieval))

	server := gateway.NewServer(cfg, registry, bots, nil, orch)
	server.SetLineInfoChecker(lineClient)
	server.SetAdminHandler(adminapi.New(bots, know, lineClient, cfg.Gateway.PublicBaseURL).Handler())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutdown initiated", "signal", sig)
		cancel()
	}()

	slog.Info("serving", "addr", fmt.Sprintf("%s:%d", cfg.Gateway.Host, cfg.Gateway.Port))
	return server.Start(ctx)
}

func secondsOrDefault(s, def int) int {
	if s <= 0 {
		return def
	}
	return s
}
