package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"

	"github.com/elliewise/nametrie/internal/catalog"
	"github.com/elliewise/nametrie/internal/core"
	"github.com/elliewise/nametrie/internal/database"
	"github.com/elliewise/nametrie/internal/store"
	"github.com/elliewise/nametrie/internal/trie"
)

// The worker runs rebuilds out-of-band. The surrounding application
// publishes to names.trie.rebuild after bulk name imports; the worker
// picks the request up so the HTTP path never blocks on a long rebuild.
func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: could not load .env file: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.NewPool(ctx)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer pool.Close()

	rdb, err := database.NewRedisClient(ctx)
	if err != nil {
		log.Printf("[Worker] Redis unavailable, cache generation will not advance: %v", err)
		rdb = nil
	} else {
		defer rdb.Close()
	}

	nc, err := database.NewNatsConnection()
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer nc.Close()

	rebuilder := trie.NewRebuilder(catalog.New(pool), store.New(pool), rdb, nc.JS)

	sub, err := nc.JS.QueueSubscribeSync(trie.RebuildSubject, "trie-rebuild-workers", nats.AckExplicit())
	if err != nil {
		log.Fatalf("Failed to subscribe to %s: %v", trie.RebuildSubject, err)
	}
	defer sub.Unsubscribe()

	log.Println("[Worker] Ready. Awaiting rebuild requests...")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg, err := sub.NextMsg(time.Second)
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) {
				continue
			}
			log.Printf("[Worker] NextMsg error: %v", err)
			continue
		}

		summary, err := rebuilder.Rebuild(ctx)
		switch {
		case core.IsConflict(err):
			// A rebuild is already running and will cover this request.
			log.Printf("[Worker] Rebuild request dropped: %v", err)
		case err != nil:
			log.Printf("[Worker] Rebuild failed: %v", err)
		default:
			log.Printf("[Worker] Rebuild %s complete: %d nodes, %d names",
				summary.RunID, summary.TotalNodes, summary.TotalNames)
		}

		if err := msg.Ack(); err != nil {
			log.Printf("[Worker] Failed to ack rebuild request: %v", err)
		}
	}
}
