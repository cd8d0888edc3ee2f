package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"studybot-backend/internal/bot"
	"studybot-backend/internal/config"
	"studybot-backend/internal/database"
	"studybot-backend/internal/handlers"
	"studybot-backend/internal/middleware"
	"studybot-backend/internal/repository"
	"studybot-backend/internal/router"
	"studybot-backend/internal/scheduler"
	"studybot-backend/internal/services"
	"studybot-backend/internal/websocket"
	"studybot-backend/internal/worker"
)

func main() {
	log.Println("🚀 Starting StudyBot Backend...")

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log.Println("✓ Environment variables loaded")

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("✗ PostgreSQL connection failed: %v", err)
	}
	defer pool.Close()
	log.Println("✓ PostgreSQL connected")

	// ──── Step 3: Initialize Redis Clients ────
	redisClients, err := database.NewRedisClients(cfg.RedisURL)
	if err != nil {
		log.Fatalf("✗ Redis connection failed: %v", err)
	}
	defer redisClients.Close()
	log.Println("✓ Redis connected")

	// ──── Step 4: Run Database Migrations ────
	if err := database.RunMigrations(pool, "migrations"); err != nil {
		log.Fatalf("✗ Database migration failed: %v", err)
	}
	log.Println("✓ Database migrations applied")

	// ──── Initialize Repositories ────
	userRepo := repository.NewUserRepo(pool)
	documentRepo := repository.NewDocumentRepo(pool)
	questionRepo := repository.NewQuestionRepo(pool)
	sessionRepo := repository.NewSessionRepo(pool)
	jobRepo := repository.NewJobRepo(pool)

	// ──── Step 5: Initialize Gemini Client ────
	geminiService, err := services.NewGeminiService(cfg.GeminiAPIKey, cfg.GeminiConcurrentReqs)
	if err != nil {
		log.Fatalf("✗ Gemini client initialization failed: %v", err)
	}
	defer geminiService.Close()
	log.Println("✓ Gemini Flash client initialized")

	fileExtractService := services.NewFileExtractService()

	// ──── Step 6: Start Question Scheduler ────
	sched := scheduler.New(sessionRepo, questionRepo, geminiService, scheduler.NewRealClock(), scheduler.Config{
		SweepInterval: cfg.SweepInterval,
		AnswerTimeout: cfg.AnswerTimeout,
		ExamPacing:    cfg.ExamPacing,
	})
	sched.Run()
	defer sched.Stop()
	log.Println("✓ Question scheduler started")

	// ──── Step 7: Start Telegram Bot ────
	tgBot, err := bot.New(
		cfg.TelegramBotToken,
		sched,
		userRepo,
		documentRepo,
		questionRepo,
		sessionRepo,
		jobRepo,
		redisClients.Queue,
		cfg.StoragePath,
	)
	if err != nil {
		log.Fatalf("✗ Telegram bot initialization failed: %v", err)
	}
	tgBot.Start()

	// ──── Step 8: Start Job Worker Pool ────
	workerPool := worker.NewPool(
		redisClients.Queue,
		geminiService,
		fileExtractService,
		documentRepo,
		questionRepo,
		jobRepo,
		tgBot,
		cfg.StoragePath,
		cfg.WorkerCount,
	)
	workerPool.Start()
	log.Printf("✓ Worker pool started (%d goroutines)", cfg.WorkerCount)

	// ──── Step 9: Start WebSocket Hub ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	wsHub := websocket.NewHub(redisClients.PubSub, jwtAuth)
	log.Println("✓ WebSocket hub started")

	// ──── Step 10: Start HTTP Server ────
	authHandler := handlers.NewAuthHandler(jwtAuth, cfg.AdminPassword)
	dashboardHandler := handlers.NewDashboardHandler(userRepo, documentRepo, questionRepo, sessionRepo, redisClients.Queue)
	jobHandler := handlers.NewJobHandler(jobRepo)

	r := router.New(jwtAuth, authHandler, dashboardHandler, jobHandler, wsHub, cfg.FrontendURL)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")
		tgBot.Stop()
		sched.Stop()
		workerPool.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("✓ StudyBot Backend ready on http://localhost:%s", cfg.Port)
	log.Printf("  API: http://localhost:%s/api/v1", cfg.Port)
	log.Printf("  WS:  ws://localhost:%s/api/v1/ws", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}
