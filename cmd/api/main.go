package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"vesture/internal/adapter/repo"
	"vesture/internal/db"
	"vesture/internal/http/handlers"
	"vesture/internal/http/httpapi"
	"vesture/internal/infra"
	"vesture/internal/infra/geoip"
	"vesture/internal/middleware"
	"vesture/internal/payment"
	"vesture/internal/storage"
	"vesture/internal/subscription"
	"vesture/internal/token"
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

	if err := db.Ensure(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("failed to ensure schema")
	}

	users := repo.NewUserRepository(pool)
	plans := repo.NewPlanRepository(pool)
	subs := repo.NewSubscriptionRepository(pool)
	txns := repo.NewTransactionRepository(pool)
	models := repo.NewModelRepository(pool)
	tasks := repo.NewTaskRepository(pool)
	batches := repo.NewBatchRepository(pool)

	ledger := token.NewLedger(users, plans, subs)
	subMgr := subscription.NewManager(subs, plans)
	paypal := payment.NewPayPalClient(payment.PayPalOptions{
		ClientID:     cfg.PayPalClientID,
		ClientSecret: cfg.PayPalSecret,
		Environment:  cfg.PayPalEnvironment,
	})
	reconciler := payment.NewReconciler(txns, subMgr, ledger, cfg.FallbackPlanID, logger)

	store, err := storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init file store")
	}

	var countryLookup middleware.CountryLookup
	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip unavailable, currency defaults to USD")
	} else if resolver != nil {
		countryLookup = resolver.CountryCode
	}

	app := &handlers.App{
		Logger:     logger,
		Users:      users,
		Plans:      plans,
		Txns:       txns,
		Models:     models,
		Tasks:      tasks,
		Batches:    batches,
		Ledger:     ledger,
		Subs:       subMgr,
		PayPal:     paypal,
		Reconciler: reconciler,
		Store:      store,
		JWTSecret:  cfg.JWTSecret,
	}

	router := httpapi.NewRouter(app, httpapi.Options{
		JWTSecret:      cfg.JWTSecret,
		AllowedOrigins: cfg.AllowedOrigins,
		RateLimit:      cfg.RateLimitPerMin,
		CountryLookup:  countryLookup,
	})

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
