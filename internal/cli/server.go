package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"vertex-exam-service/internal/app"
	"vertex-exam-service/internal/config"
	"vertex-exam-service/internal/domain"
	"vertex-exam-service/internal/infra/memory"
	pgstore "vertex-exam-service/internal/infra/postgres"
	redisstore "vertex-exam-service/internal/infra/redis"
	transport "vertex-exam-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the exam session server",
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
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	var results app.ResultStore = memory.NewResultStore(sampleQuizzes())
	if pool != nil {
		results = pgstore.NewResultStore(pool)
	}

	cacheTTL := config.TTLDuration(cfg.Quiz.CacheTTL, 10*time.Minute)
	if redisClient != nil {
		results = redisstore.NewCachingResultStore(redisClient, results, cacheTTL)
	} else {
		results = memory.NewCachingResultStore(results, cacheTTL)
	}

	var resume app.ResumeStore = memory.NewResumeStore()
	if redisClient != nil {
		resumeTTL := config.TTLDuration(cfg.Session.ResumeTTL, 24*time.Hour)
		resume = redisstore.NewResumeStore(redisClient, resumeTTL)
	}

	var engineOpts []app.Option
	if cfg.Session.DisplaySeconds > 0 {
		engineOpts = append(engineOpts, app.WithDisplayWindow(cfg.Session.DisplaySeconds))
	}
	wsHandler := transport.NewWSHandler(results, resume, engineOpts...)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting exam service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleQuizzes seeds the in-memory store for demos without a database.
func sampleQuizzes() (map[string]domain.QuizDefinition, map[string][]domain.Question) {
	quizzes := map[string]domain.QuizDefinition{
		"quiz-1": {
			ID:              "quiz-1",
			Title:           "Weekly Model Test 1",
			CourseTitle:     "General Science",
			DurationMinutes: 30,
		},
	}
	questions := map[string][]domain.Question{
		"quiz-1": {
			{
				ID: "q1", QuizID: "quiz-1", SerialNo: 1,
				Prompt:  "What is 2 + 2?",
				OptionA: "3", OptionB: "4", OptionC: "5", OptionD: "6",
				Correct: domain.ChoiceB, Mark: 1, NegativeMark: 0.25,
			},
			{
				ID: "q2", QuizID: "quiz-1", SerialNo: 2,
				Prompt:  "Which planet is known as the red planet?",
				OptionA: "Venus", OptionB: "Jupiter", OptionC: "Mars", OptionD: "Saturn",
				Correct: domain.ChoiceC, Mark: 1, NegativeMark: 0.25,
			},
			{
				ID: "q3", QuizID: "quiz-1", SerialNo: 3,
				Prompt:  "Water boils at what temperature at sea level?",
				OptionA: "90°C", OptionB: "95°C", OptionC: "100°C", OptionD: "110°C",
				Correct: domain.ChoiceC, Mark: 1, NegativeMark: 0.25,
			},
		},
	}
	return quizzes, questions
}
