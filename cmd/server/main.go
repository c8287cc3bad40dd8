package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/elliewise/nametrie/internal/api/prefixtree"
	"github.com/elliewise/nametrie/internal/catalog"
	"github.com/elliewise/nametrie/internal/database"
	"github.com/elliewise/nametrie/internal/engine"
	"github.com/elliewise/nametrie/internal/store"
	"github.com/elliewise/nametrie/internal/trie"
)

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

	// Redis and NATS are optional: without them the server still answers
	// every query, it just skips caching and rebuild events.
	rdb, err := database.NewRedisClient(ctx)
	if err != nil {
		log.Printf("[Server] Redis unavailable, running without cache: %v", err)
		rdb = nil
	} else {
		defer rdb.Close()
	}

	var publisher trie.Publisher
	if nc, err := database.NewNatsConnection(); err != nil {
		log.Printf("[Server] NATS unavailable, rebuild events disabled: %v", err)
	} else {
		defer nc.Close()
		publisher = nc.JS
	}

	nodes := store.New(pool)
	names := catalog.New(pool)
	eng := engine.New(nodes, names, rdb)
	rebuilder := trie.NewRebuilder(names, nodes, rdb, publisher)

	mux := http.NewServeMux()
	prefixtree.NewServer(eng, rebuilder).Register(mux)

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8000"
	}

	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		log.Printf("[Server] Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[Server] Shutdown error: %v", err)
	}
}
