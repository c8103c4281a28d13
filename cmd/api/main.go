package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"media-orchestrator/internal/adapter/repo"
	"media-orchestrator/internal/dispatch"
	"media-orchestrator/internal/http/handlers"
	"media-orchestrator/internal/http/httpapi"
	"media-orchestrator/internal/infra"
	"media-orchestrator/internal/ledger"
	"media-orchestrator/internal/objstore"
	"media-orchestrator/internal/orchestrator"
	"media-orchestrator/internal/pricing"
	"media-orchestrator/internal/proxy"
	"media-orchestrator/internal/reconcile"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer pool.Close()

	var store objstore.Store
	switch cfg.StorageDriver {
	case "s3":
		store, err = objstore.NewS3Store(ctx, cfg.S3Bucket, cfg.S3Endpoint)
	default:
		store, err = objstore.NewFileStore(cfg.StoragePath, cfg.CallbackBaseURL+"/storage")
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure object storage")
	}

	orch, err := orchestrator.NewClient(orchestrator.Options{
		BaseURL:    cfg.OrchestratorBaseURL,
		Token:      cfg.OrchestratorToken,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure orchestrator client")
	}

	tasks := repo.NewTaskRepository(pool)
	manifests := repo.NewManifestRepository(pool)
	media := repo.NewMediaRepository(pool)
	channels := repo.NewChannelRepository(pool)
	pricingRepo := repo.NewPricingRepository(pool)
	proxies := repo.NewProxyRepository(pool)

	ledgerSvc := ledger.NewService(repo.NewLedgerStore(pool), logger)
	pricingResolver := pricing.NewResolver(pricingRepo)
	proxyResolver := proxy.NewResolver(proxies, cfg.DefaultProxyID)

	if rules, err := pricing.LoadRulesFile(cfg.PricingRulesPath); err != nil {
		logger.Warn().Err(err).Str("path", cfg.PricingRulesPath).Msg("pricing rules file not loaded")
	} else if err := pricing.SeedRules(ctx, pricingRepo, rules); err != nil {
		logger.Fatal().Err(err).Msg("failed to seed pricing rules")
	}

	dispatcher := dispatch.NewDispatcher(
		tasks, manifests, ledgerSvc, pricingResolver, proxyResolver,
		orch, cfg.CallbackBaseURL+"/v1/callbacks/jobs", logger,
	)
	reconciler := reconcile.NewReconciler(
		media, channels, manifests, ledgerSvc, pricingResolver,
		store, objstore.NewHTTPClient(&http.Client{Timeout: 30 * time.Second}), logger,
	)

	app := &handlers.App{
		Tasks:          tasks,
		Manifests:      manifests,
		Media:          media,
		Ledger:         ledgerSvc,
		Dispatcher:     dispatcher,
		Reconciler:     reconciler,
		Jobs:           orch,
		CallbackSecret: cfg.CallbackSecret,
		Logger:         logger,
	}

	router := httpapi.NewRouter(app, httpapi.Options{
		JWTSecret:       cfg.JWTSecret,
		RateLimitPerMin: cfg.RateLimitPerMin,
	})
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
