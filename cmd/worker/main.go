package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"campustrace/internal/campus"
	"campustrace/internal/config"
	"campustrace/internal/queue"
	"campustrace/internal/store"
)

// Worker consumes search messages and appends audit rows.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "campustrace:searches")
	}

	repo := campus.NewRepository(db.Client)

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("audit worker started, waiting for messages...")
	for msg := range messages {
		if msg.Type != "search" {
			continue
		}

		var rec campus.SearchAudit
		if err := json.Unmarshal(msg.Body, &rec); err != nil {
			log.Printf("bad audit message, skipping: %v", err)
			continue
		}

		if err := repo.InsertSearchAudit(ctx, rec); err != nil {
			log.Printf("audit insert for %s failed: %v", rec.EntityID, err)
			continue
		}
		log.Printf("audit recorded: entity %s, %d events", rec.EntityID, rec.EventCount)

		time.Sleep(10 * time.Millisecond) // Small delay between processing
	}

	log.Println("worker stopped")
}
