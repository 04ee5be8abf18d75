package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/xiaot623/advisor/internal/adapter/llm"
	"github.com/xiaot623/advisor/internal/catalog"
	"github.com/xiaot623/advisor/internal/config"
	"github.com/xiaot623/advisor/internal/policy"
	"github.com/xiaot623/advisor/internal/repository"
	"github.com/xiaot623/advisor/internal/service"
	transporthttp "github.com/xiaot623/advisor/internal/transport/http"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if strings.EqualFold(cfg.LogLevel, "debug") {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	log.Printf("Starting advisor relay...")
	log.Printf("HTTP Port: %d", cfg.HTTPPort)
	log.Printf("Database: %s", cfg.DatabaseURL)
	log.Printf("Gemini URL: %s", cfg.GeminiBaseURL)
	log.Printf("Ollama URL: %s", cfg.OllamaURL)
	if cfg.GeminiAPIKey == "" && !cfg.MockMode() {
		log.Printf("WARN: GEMINI_API_KEY is not set; gemini providers will fail")
	}

	// Load provider table
	var cat *catalog.Catalog
	if cfg.ProvidersFile != "" {
		cat, err = catalog.Load(cfg.ProvidersFile)
	} else {
		cat, err = catalog.Default()
	}
	if err != nil {
		log.Fatalf("Failed to load providers: %v", err)
	}
	log.Printf("Loaded %d providers", len(cat.List()))

	// Initialize store
	db, err := repository.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer db.Close()

	// Initialize policy engine
	ctx := context.Background()
	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		log.Fatalf("Failed to initialize policy engine: %v", err)
	}

	// Initialize upstream clients
	generators := llm.NewGenerators(llm.Options{
		GeminiBaseURL: cfg.GeminiBaseURL,
		GeminiAPIKey:  cfg.GeminiAPIKey,
		OllamaURL:     cfg.OllamaURL,
		Timeout:       cfg.UpstreamTimeout,
		Mock:          cfg.MockMode(),
	})

	// Initialize service
	svc := service.New(cat, policyEngine, generators, db, cfg.MaxAttachmentBytes)
	if err := svc.CheckBackends(); err != nil {
		log.Fatalf("Failed to wire providers: %v", err)
	}

	server := transporthttp.NewServer(svc, cfg)

	monitorCtx, stopMonitor := context.WithCancel(ctx)
	defer stopMonitor()
	go svc.RunStaleCallMonitor(monitorCtx, cfg.StaleSweepInterval, cfg.StaleCallAfter)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	log.Printf("Relay started on port %d", cfg.HTTPPort)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down advisor relay...")
	stopMonitor()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown server gracefully: %v", err)
	}

	log.Println("Advisor relay stopped")
}
