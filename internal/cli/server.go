package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"asq-order-service/internal/app"
	"asq-order-service/internal/config"
	"asq-order-service/internal/domain"
	"asq-order-service/internal/infra/memory"
	"asq-order-service/internal/infra/postgres"
	infraredis "asq-order-service/internal/infra/redis"
	"asq-order-service/internal/logger"
	"asq-order-service/internal/markup"
	"asq-order-service/internal/plugin"
	transport "asq-order-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the order question server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

type questionStore interface {
	app.QuestionRepository
	app.QuestionWriter
}

type presenceStore interface {
	transport.Presence
	transport.LiveSessions
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger.Init(cfg.Log.Level)

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}
	presenceTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var source memory.QuestionSource = memory.NewStaticQuestionSource(sampleQuestions()...)
	if pool != nil {
		source = postgres.NewQuestionSource(pool)
	}

	questionTTL := config.TTLDuration(cfg.Questions.TTL, 10*time.Minute)
	var questions questionStore
	if redisClient != nil {
		questions = infraredis.NewQuestionRepository(redisClient, source, questionTTL)
	} else {
		questions = memory.NewQuestionRepository(source, questionTTL)
	}

	var store app.SubmissionStore
	switch {
	case pool != nil:
		store = postgres.NewSubmissionStore(pool)
	case redisClient != nil:
		store = infraredis.NewSubmissionStore(redisClient)
	default:
		store = memory.NewSubmissionStore()
	}

	var presence presenceStore = memory.NewPresence()
	if redisClient != nil {
		presence = infraredis.NewPresence(redisClient, presenceTTL)
	}
	hub := transport.NewHub(presence)

	var emitter app.Emitter = hub
	var bus *infraredis.EventBus
	if redisClient != nil {
		bus = infraredis.NewEventBus(redisClient, cfg.Redis.Channel)
		emitter = bus
	}

	service := app.NewOrderService(store, questions, emitter,
		app.WithDefinitions(markup.NewExtractor(), questions))
	hooks := plugin.NewRegistry()
	service.Register(hooks)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      transport.NewRouter(service, hooks, hub, presence),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("starting order service", "port", finalPort, "redis", redisClient != nil, "postgres", pool != nil)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if bus != nil {
		g.Go(func() error {
			return bus.Relay(gctx, hub, nil)
		})
	}
	g.Go(func() error {
		return hub.KeepAlive(gctx, presenceTTL/3)
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// sampleQuestions seeds the in-memory source when no database is configured.
func sampleQuestions() []domain.Question {
	return []domain.Question{
		{
			UID:            "demo-lifecycle",
			Type:           domain.QuestionType,
			PresentationID: "demo",
			Stem:           "Order the element lifecycle callbacks",
			Items:          []string{"created", "ready", "attached", "detached"},
		},
	}
}
