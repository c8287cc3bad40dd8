package trie

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/elliewise/nametrie/internal/core"
)

const (
	// RebuildSubject carries out-of-band rebuild requests for the worker.
	RebuildSubject = "names.trie.rebuild"
	// RebuiltSubject carries the summary of every completed rebuild.
	RebuiltSubject = "names.trie.rebuilt"
	// CacheGenerationKey versions cached query responses; bumped on rebuild.
	CacheGenerationKey = "names:trie_generation"
)

type Catalog interface {
	AllNames(ctx context.Context) ([]core.NameRecord, error)
}

type NodeWriter interface {
	ReplaceAll(ctx context.Context, nodes []core.TrieNode) error
}

type Publisher interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// Rebuilder is the only write path into the trie store. Redis and NATS are
// optional; without them rebuilds still work, they just skip cache
// invalidation and event publishing.
type Rebuilder struct {
	catalog Catalog
	store   NodeWriter
	rdb     *redis.Client
	nats    Publisher

	building atomic.Bool
}

func NewRebuilder(catalog Catalog, store NodeWriter, rdb *redis.Client, nats Publisher) *Rebuilder {
	return &Rebuilder{
		catalog: catalog,
		store:   store,
		rdb:     rdb,
		nats:    nats,
	}
}

// Rebuild snapshots the catalog, rebuilds the whole trie and atomically
// replaces the persisted node set. At most one rebuild runs at a time; a
// request arriving while one is in flight fails with a ConflictError and
// leaves the running one untouched. On any failure the previous node
// generation stays live.
func (r *Rebuilder) Rebuild(ctx context.Context) (core.BuildSummary, error) {
	if !r.building.CompareAndSwap(false, true) {
		return core.BuildSummary{}, &core.ConflictError{Reason: "a trie rebuild is already in progress"}
	}
	defer r.building.Store(false)

	runID := uuid.New().String()

	records, err := r.catalog.AllNames(ctx)
	if err != nil {
		return core.BuildSummary{}, fmt.Errorf("loading name records: %w", err)
	}

	nodes, summary := Build(records)
	summary.RunID = runID

	if err := r.store.ReplaceAll(ctx, nodes); err != nil {
		return core.BuildSummary{}, fmt.Errorf("replacing trie nodes: %w", err)
	}

	if r.rdb != nil {
		if err := r.rdb.Incr(ctx, CacheGenerationKey).Err(); err != nil {
			log.Printf("[Rebuilder] Failed to bump cache generation: %v", err)
		}
	}

	if r.nats != nil {
		if payload, err := json.Marshal(summary); err == nil {
			if _, err := r.nats.Publish(RebuiltSubject, payload); err != nil {
				log.Printf("[Rebuilder] Failed to publish rebuild event: %v", err)
			}
		}
	}

	log.Printf("[Rebuilder] Run %s: %d nodes, %d names, %d skipped in %s",
		runID, summary.TotalNodes, summary.TotalNames, summary.SkippedRecords, summary.Duration)

	return summary, nil
}
