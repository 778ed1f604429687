package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/moto-data/yard.report/internal/api"
	"github.com/moto-data/yard.report/internal/config"
	"github.com/moto-data/yard.report/internal/db"
	"github.com/moto-data/yard.report/internal/ingest"
	"github.com/moto-data/yard.report/internal/live"
	"github.com/moto-data/yard.report/internal/predict"
)

var (
	configPath = flag.String("config", "", "Path to JSON config file")
	listen     = flag.String("listen", "", "Listen address (overrides config)")
	dbPath     = flag.String("db-path", "", "SQLite database path (overrides config)")
	brokerURL  = flag.String("broker", "", "MQTT broker URL (overrides config)")
)

func main() {
	flag.Parse()

	cfg := config.Empty()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		cfg = loaded
	}
	// flags win over the file
	if *listen != "" {
		cfg.ListenAddr = listen
	}
	if *dbPath != "" {
		cfg.DBPath = dbPath
	}
	if *brokerURL != "" {
		cfg.BrokerURL = brokerURL
	}

	database, err := db.NewDB(cfg.GetDBPath())
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	hub := live.NewHub()
	defer hub.Close()

	predictor := predict.NewService(database, cfg.GetModelsDir())

	consumer := ingest.NewConsumer(cfg.GetBrokerURL(), cfg.GetTopicPrefix(),
		ingest.NewHandler(database, hub))
	consumer.SetConnectTimeout(cfg.GetConnectTimeout())

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// broker consumer routine
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("broker consumer stopped: %v", err)
			stop()
		}
		log.Print("consumer routine terminated")
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()
		apiMux := api.NewServer(database, hub, predictor, consumer, cfg.GetMinTrainingSamples()).ServeMux()
		mux.Handle("/api/", http.StripPrefix("/api", apiMux))

		server := &http.Server{
			Addr:    cfg.GetListenAddr(),
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			log.Printf("listening on %s", cfg.GetListenAddr())
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
	}()

	wg.Wait()
}
