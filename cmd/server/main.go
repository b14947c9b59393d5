package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/astroline/consult-server-go/internal/billing"
	"github.com/astroline/consult-server-go/internal/config"
	"github.com/astroline/consult-server-go/internal/database"
	"github.com/astroline/consult-server-go/internal/events"
	"github.com/astroline/consult-server-go/internal/handler"
	"github.com/astroline/consult-server-go/internal/middleware"
	"github.com/astroline/consult-server-go/internal/presence"
	"github.com/astroline/consult-server-go/internal/redis"
	"github.com/astroline/consult-server-go/internal/repository"
	"github.com/astroline/consult-server-go/internal/service"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	setLogLevel(cfg.LogLevel)

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	cancel()
	log.Info().Msg("database connected")

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	userRepo := repository.NewUserRepository(db.DB)
	astrologerRepo := repository.NewAstrologerRepository(db.DB)
	requestRepo := repository.NewChatRequestRepository(db.DB)
	sessionRepo := repository.NewSessionRepository(db.DB)
	txnRepo := repository.NewTransactionRepository(db.DB)
	settlementRepo := repository.NewSettlementRepository(db.DB)
	billingRepo := repository.NewBillingRepository(db, sessionRepo, userRepo, astrologerRepo, txnRepo)

	broker := events.NewBroker(redisClient)
	defer broker.Close()

	registry := presence.NewRegistry()

	chatService := service.NewChatService(
		db, requestRepo, sessionRepo, userRepo, astrologerRepo,
		broker, registry, cfg.BillingInterval(),
	)
	walletService := service.NewWalletService(db, userRepo, txnRepo, broker)
	settlementService := service.NewSettlementService(db, astrologerRepo, settlementRepo, txnRepo)
	directoryService := service.NewDirectoryService(userRepo, astrologerRepo)

	rateLimitMiddleware := middleware.NewRedisRateLimitMiddleware(redisClient.Client, cfg.RateLimitPerMin)

	streamHandler := handler.NewStreamHandler(broker, chatService)
	chatHandler := handler.NewChatHandler(chatService, walletService, streamHandler)
	walletHandler := handler.NewWalletHandler(walletService)
	astrologerHandler := handler.NewAstrologerHandler(directoryService, settlementService, streamHandler)
	userHandler := handler.NewUserHandler(directoryService, streamHandler)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
		})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(rateLimitMiddleware.Handler)
		r.Mount("/chat", chatHandler.Routes())
		r.Mount("/wallet", walletHandler.Routes())
		r.Mount("/astrologers", astrologerHandler.Routes())
		r.Mount("/users", userHandler.Routes())
	})

	// Recovery runs before the sweep starts so sessions left active by
	// a crash are either resumed from their checkpoint or closed out
	// before any new charge is attempted.
	bootstrapper := billing.NewBootstrapper(sessionRepo, chatService, cfg.Recovery())
	bootCtx, bootCancel := context.WithTimeout(context.Background(), config.RecoveryTimeout)
	if err := bootstrapper.Run(bootCtx); err != nil {
		log.Fatal().Err(err).Msg("billing recovery failed")
	}
	bootCancel()

	sweeper := billing.NewSweeper(
		sessionRepo, billingRepo, chatService, broker,
		cfg.SweepInterval(), cfg.BillingInterval(),
	)
	sweeper.Start()
	defer sweeper.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
