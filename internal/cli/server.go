package cli

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/auth"
	"quiz-session-service/internal/config"
	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/infra/memory"
	pgstore "quiz-session-service/internal/infra/postgres"
	rediscache "quiz-session-service/internal/infra/redis"
	transport "quiz-session-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz session server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("jwt secret not configured")
	}
	verifier, err := auth.NewVerifier(cfg.Auth.JWTSecret)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var catalog app.CatalogRepository
	var admin app.CatalogAdmin
	var sessions app.SessionRepository

	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()

		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
		db := bun.NewDB(sqldb, pgdialect.New())
		defer db.Close()

		catalog = pgstore.NewCatalogLoader(pool)
		admin = pgstore.NewCatalogAdmin(db)
		sessions = pgstore.NewSessionStore(db)
	} else {
		mem := memory.NewCatalog()
		seedSampleCatalog(mem)
		catalog = mem
		admin = mem
		sessions = memory.NewSessionStore()
		log.Warn("postgres url not configured, using in-memory storage")
	}

	invalidate := func(context.Context, int64) {}
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		cache := rediscache.NewCatalogCache(redisClient, catalog, config.TTLDuration(cfg.Catalog.TTL, 10*time.Minute))
		catalog = cache
		invalidate = cache.Invalidate
	}

	service := app.NewSessionService(sessions, catalog)
	presence := app.NewPresence(log)
	defer presence.Clear()

	handler := transport.NewHandler(service, admin, invalidate, log)
	wsHandler := transport.NewWSHandler(service, presence, verifier, log)
	router := transport.NewRouter(handler, wsHandler, verifier)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.WithField("port", finalPort).Info("starting quiz session service")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("failed to start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server...")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// seedSampleCatalog loads a minimal quiz so the in-memory mode is usable
// out of the box.
func seedSampleCatalog(catalog *memory.Catalog) {
	catalog.Seed(
		[]domain.Quiz{
			{
				ID:                 1,
				Title:              "General Knowledge",
				Description:        "A short warm-up quiz",
				DurationMinutes:    10,
				PerQuestionSeconds: 30,
				RandomizeQuestions: true,
				RandomizeOptions:   true,
				IsActive:           true,
			},
		},
		[]domain.Question{
			{
				ID:     1,
				QuizID: 1,
				Text:   "What is 2 + 2?",
				Options: domain.OptionSet{
					domain.LetterA: "3",
					domain.LetterB: "4",
					domain.LetterC: "5",
					domain.LetterD: "22",
				},
				Correct:         domain.LetterB,
				Position:        1,
				TimeBonusFactor: 1.0,
			},
			{
				ID:     2,
				QuizID: 1,
				Text:   "Which planet is known as the red planet?",
				Options: domain.OptionSet{
					domain.LetterA: "Venus",
					domain.LetterB: "Jupiter",
					domain.LetterC: "Mars",
					domain.LetterD: "Saturn",
				},
				Correct:         domain.LetterC,
				Position:        2,
				TimeBonusFactor: 1.0,
			},
		},
	)
}
