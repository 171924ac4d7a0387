package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"elearning-quiz-service/internal/app"
	"elearning-quiz-service/internal/auth"
	"elearning-quiz-service/internal/config"
	"elearning-quiz-service/internal/domain"
	"elearning-quiz-service/internal/infra/memory"
	pgstore "elearning-quiz-service/internal/infra/postgres"
	rediscache "elearning-quiz-service/internal/infra/redis"
	"elearning-quiz-service/internal/logger"
	"elearning-quiz-service/internal/monitoring"
	"elearning-quiz-service/internal/tracing"
	transport "elearning-quiz-service/internal/transport/http"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// store is what both the Postgres and the in-memory backends provide.
type store interface {
	memory.QuizLoader
	app.QuizCatalog
	app.ResultRepository
	app.UserRepository
	app.CourseRepository
	auth.UserLookup
	CreateUser(ctx context.Context, user domain.User) (domain.User, error)
	CreateCourse(ctx context.Context, course domain.Course) (domain.Course, error)
}

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func loadWithLogger(configPath string) (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, nil, err
	}
	log, err := logger.New(logger.Options{Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		return cfg, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, log, nil
}

// openStore connects to Postgres when configured; the returned closer is never nil.
func openStore(ctx context.Context, cfg config.Config, log *zap.Logger) (store, func(), error) {
	if cfg.Postgres.URL == "" {
		log.Warn("postgres url not configured, using in-memory store")
		mem := memory.NewStore()
		if err := seedDemo(ctx, mem, log); err != nil {
			return nil, nil, err
		}
		return mem, func() {}, nil
	}

	if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pgstore.NewStore(pool), pool.Close, nil
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, log, err := loadWithLogger(configPath)
	if err != nil {
		return err
	}
	defer log.Sync()

	if cfg.Auth.Secret == "" {
		return errors.New("auth secret not configured (auth.secret or QUIZ_AUTH_SECRET)")
	}

	if cfg.Tracing.Enabled {
		shutdownTracing, err := tracing.Init("elearning-quiz-service", cfg.Tracing.Endpoint)
		if err != nil {
			return err
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracing(sctx); err != nil {
				log.Warn("tracer shutdown", zap.Error(err))
			}
		}()
	}

	st, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var (
		quizRepo app.QuizRepository
		locker   app.Locker
	)
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		quizRepo = rediscache.NewQuizRepository(redisClient, st, quizTTL)
		locker = rediscache.NewLocker(redisClient, config.TTLDuration(cfg.Redis.LockTTL, 10*time.Second))
	} else {
		quizRepo = memory.NewQuizRepository(st, quizTTL)
		locker = memory.NewKeyedLocker()
	}

	metrics := monitoring.New()
	service := app.NewQuizService(app.Repositories{
		Quizzes: quizRepo,
		Catalog: st,
		Results: st,
		Users:   st,
		Courses: st,
	}, locker, app.WithMetrics(metrics), app.WithLogger(log.Named("quiz")))

	issuer := auth.NewIssuer(cfg.Auth.Secret, config.TTLDuration(cfg.Auth.TTL, auth.DefaultTokenTTL))
	authService := auth.NewService(st, issuer, log.Named("auth"))

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	handler := transport.NewHandler(service, authService, log.Named("http"))
	wsHandler := transport.NewWSHandler(service, cfg.Server.AllowedOrigins, log.Named("ws"))
	router := transport.NewRouter(handler, wsHandler, metrics, transport.RouterConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RateLimit:      cfg.Server.RateLimit.RPS,
		Burst:          cfg.Server.RateLimit.Burst,
	})

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info("starting quiz service", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("failed to start server", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// seedDemo gives the in-memory mode a teacher, a student and one course with a quiz.
func seedDemo(ctx context.Context, st store, log *zap.Logger) error {
	hash, err := auth.HashPassword("demo")
	if err != nil {
		return err
	}
	teacher, err := st.CreateUser(ctx, domain.User{Username: "teacher", Email: "teacher@demo.local", PasswordHash: hash, Role: domain.RoleTeacher, IsActive: true})
	if err != nil {
		return err
	}
	if _, err := st.CreateUser(ctx, domain.User{Username: "student", Email: "student@demo.local", PasswordHash: hash, Role: domain.RoleStudent, IsActive: true}); err != nil {
		return err
	}
	course, err := st.CreateCourse(ctx, domain.Course{Title: "Arithmetic", TeacherID: teacher.ID})
	if err != nil {
		return err
	}
	quiz, err := st.CreateQuiz(ctx, domain.QuizDraft{
		Title:    "Warm-up",
		CourseID: course.ID,
		Questions: []domain.QuestionDraft{
			{Prompt: "What is 2 + 2?", Options: []domain.OptionDraft{{Text: "3"}, {Text: "4", Correct: true}, {Text: "5"}}},
			{Prompt: "What is 3 * 3?", Options: []domain.OptionDraft{{Text: "6"}, {Text: "9", Correct: true}}},
		},
	})
	if err != nil {
		return err
	}
	log.Info("seeded demo data",
		zap.String("password", "demo"),
		zap.Strings("users", []string{"teacher@demo.local", "student@demo.local"}),
		zap.Int64("quiz_id", quiz.ID),
	)
	return nil
}
