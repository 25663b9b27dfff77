package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/retailbank/accountsvc/internal/api"
	"github.com/retailbank/accountsvc/internal/client"
	"github.com/retailbank/accountsvc/internal/config"
	"github.com/retailbank/accountsvc/internal/events"
	"github.com/retailbank/accountsvc/internal/service"
	"github.com/retailbank/accountsvc/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()

	var ledger store.LedgerStore
	switch cfg.StoreDriver {
	case config.DriverMemory:
		log.Println("Using in-memory store")
		ledger = store.NewMemory()
	default:
		pg, err := store.NewPostgres(ctx, cfg.DBSource)
		if err != nil {
			log.Fatalf("Unable to connect to database: %v", err)
		}
		defer pg.Close()
		if err := pg.InitSchema(ctx); err != nil {
			log.Fatalf("Failed to initialize schema: %v", err)
		}
		ledger = pg
	}

	var publisher events.Publisher = events.Nop{}
	if cfg.AMQPURL != "" {
		rmq, err := events.NewRabbitMQ(cfg.AMQPURL)
		if err != nil {
			log.Fatalf("Failed to connect to RabbitMQ: %v", err)
		}
		defer rmq.Close()
		publisher = rmq
	}

	// Initialize layers
	accounts := service.NewAccountService(ledger, publisher)
	transfers := service.NewTransferService(ledger, publisher)
	requests := service.NewRequestService(ledger, publisher)
	customers := client.NewCustomerClient(cfg.CustomerServiceURL)

	handler := api.NewHandler(accounts, transfers, requests, customers)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server shutdown failed: %v", err)
	}

	log.Println("Server shut down successfully")
}
