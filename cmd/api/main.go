package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bobarin/adshot/internal/api"
	"github.com/bobarin/adshot/internal/config"
	"github.com/bobarin/adshot/internal/credits"
	"github.com/bobarin/adshot/internal/db"
	"github.com/bobarin/adshot/internal/generator"
	"github.com/bobarin/adshot/internal/queue"
	"github.com/bobarin/adshot/internal/services"
	"github.com/bobarin/adshot/internal/storage"
	"github.com/bobarin/adshot/internal/worker"
)

func main() {
	log.Println("Starting AdShot API...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to database
	database, err := db.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()
	log.Println("Connected to database")

	// Connect to Redis queue
	q, err := queue.New(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to queue: %v", err)
	}
	defer q.Close()
	log.Println("Connected to Redis queue")

	// Initialize storage gateway
	stor := storage.New(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseStorageBucket)
	log.Println("Initialized Supabase storage")

	// Initialize generation services
	geminiSvc := services.NewGeminiService(cfg.GeminiKey, cfg.GeminiImageModel)
	veoSvc := services.NewVeoService(cfg.GeminiKey, cfg.VeoModel)

	// Optional prompt enhancer — nil when no OpenAI key is configured
	var enhancer services.PromptEnhancer
	if cfg.OpenAIKey != "" {
		enhancer = services.NewOpenAIService(cfg.OpenAIKey)
		log.Println("Prompt enhancement enabled (OpenAI)")
	}

	// Credit ledger and orchestrator
	ledger := credits.NewLedger(database)
	gen := generator.New(ledger, database, stor, geminiSvc, veoSvc, generator.Options{
		Enhancer:     enhancer,
		PollInterval: cfg.VideoPollInterval,
		PollTimeout:  cfg.VideoPollTimeout,
	})

	// Create API handler
	handler := api.NewHandler(database, q, ledger, gen)
	router := api.NewRouter(handler, api.RouterConfig{
		WebhookSecret:      cfg.WebhookSecret,
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
	})

	if cfg.WebhookSecret == "" {
		log.Println("WARNING: No WEBHOOK_SECRET set — identity/payment webhook disabled")
	}

	// Start HTTP server
	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	// Start worker if enabled
	var workerCancel context.CancelFunc
	if cfg.WorkerEnabled {
		log.Println("Worker enabled, starting background video processing...")

		w := worker.New(gen, q)

		var workerCtx context.Context
		workerCtx, workerCancel = context.WithCancel(context.Background())
		go w.Start(workerCtx, cfg.MaxConcurrentJobs)
	}

	// Start server in goroutine
	go func() {
		log.Printf("API server listening on :%s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Shutdown worker
	if workerCancel != nil {
		workerCancel()
	}

	// Shutdown HTTP server
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
