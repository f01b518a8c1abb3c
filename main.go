package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/homefeed/listing-ingestion-service/internal/config"
	"github.com/homefeed/listing-ingestion-service/internal/feed"
	"github.com/homefeed/listing-ingestion-service/internal/images"
	"github.com/homefeed/listing-ingestion-service/internal/ingestion"
	"github.com/homefeed/listing-ingestion-service/internal/scheduler"
	"github.com/homefeed/listing-ingestion-service/internal/server"
	"github.com/homefeed/listing-ingestion-service/internal/storage"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize document store
	store, err := storage.NewMongoStorage(ctx, cfg.Storage)
	if err != nil {
		log.Fatal("Failed to initialize document store:", err)
	}

	// Initialize object store
	objects, err := storage.NewS3Storage(cfg.Images)
	if err != nil {
		log.Fatal("Failed to initialize object store:", err)
	}

	// Wire the ingestion pipeline
	tokens := feed.NewTokenClient(cfg.Feed.TokenURL, cfg.Feed.ClientID, cfg.Feed.ClientSecret, cfg.Feed.Timeout)
	fetcher := feed.NewFetcher(cfg.Feed, tokens)
	pipeline := images.NewPipeline(objects, cfg.Images.DownloadTimeout, cfg.Images.MaxWidth, cfg.Images.MaxHeight, cfg.Images.JPEGQuality)
	reconciler := images.NewReconciler(store, pipeline, cfg.Images.MaxPerListing)
	crawler := ingestion.NewService(cfg.Crawler, store, objects, fetcher, reconciler)

	if err := crawler.LoadCheckpoint(ctx); err != nil {
		log.Fatal("Failed to load crawl checkpoint:", err)
	}

	// Initialize HTTP server for status/read endpoints
	httpServer := server.NewServer(cfg.Server, store)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start HTTP server
	go func() {
		log.Printf("Starting HTTP server on port %d", cfg.Server.Port)
		if err := httpServer.Start(); err != nil {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	// Start the crawl scheduler
	crawlScheduler := scheduler.New(crawler, cfg.Crawler.Interval, cfg.Crawler.RunAtStartup)
	if err := crawlScheduler.Start(ctx); err != nil {
		log.Fatal("Failed to start scheduler:", err)
	}

	// Wait for shutdown signal
	<-sigChan
	log.Println("Shutdown signal received, gracefully shutting down...")

	// Stop scheduling new cycles; in-flight cycles run to completion
	crawler.Stop()
	crawlScheduler.Stop()

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	if err := store.Close(shutdownCtx); err != nil {
		log.Printf("Document store close error: %v", err)
	}

	log.Println("Shutdown complete")
}
