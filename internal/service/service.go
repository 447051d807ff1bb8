// Package service implements the mutating operations of the workflow core.
// Every mutation follows the same shape: validate the proposed post-change
// state, recompute derived attributes, apply any requested status transition,
// re-check cross-entity invariants, persist atomically, then emit an audit
// event. Violations reject the mutation as a whole.
package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"example.com/backstage/services/airlogistic/internal/cache"
	"example.com/backstage/services/airlogistic/internal/domain"
	"example.com/backstage/services/airlogistic/internal/eventlog"
	"example.com/backstage/services/airlogistic/internal/search"
)

var validate = validator.New()

// Actor identifies who performs a mutation. It is threaded explicitly into
// every mutating call and recorded on every audit event.
type Actor struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	TenantID string `json:"tenant_id"`
}

// keyedLocks serializes writes per scoping key so that two concurrent
// mutations which would each individually pass a uniqueness or capacity
// check cannot both commit. Keys are per tenant+date for flight-number
// uniqueness, per flight for bin aggregate recomputation and per tenant for
// bin-code uniqueness.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[string]*sync.Mutex)}
}

// Acquire locks the named scope and returns its release function.
func (k *keyedLocks) Acquire(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// AcquireAll locks several scopes in sorted key order so callers holding
// overlapping key sets cannot deadlock. The release unlocks in reverse.
func (k *keyedLocks) AcquireAll(keys ...string) func() {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	releases := make([]func(), 0, len(sorted))
	for _, key := range sorted {
		releases = append(releases, k.Acquire(key))
	}
	return func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
}

// postEvent sends an audit entry to the sink. Fire-and-forget: sink
// failures never fail the mutation.
func postEvent(ctx context.Context, sink eventlog.Sink, actor Actor, kind, id, action, message string) {
	if sink == nil {
		return
	}
	sink.PostEvent(ctx, eventlog.Event{
		EntityKind: kind,
		EntityID:   id,
		TenantID:   actor.TenantID,
		ActorID:    actor.ID,
		ActorName:  actor.Name,
		Action:     action,
		Message:    message,
		Timestamp:  time.Now().UTC(),
	})
}

// indexEntity projects an entity into the search index, logging failures.
func indexEntity(ctx context.Context, indexer search.Indexer, kind, id string, doc interface{}) {
	if indexer == nil {
		return
	}
	if err := indexer.IndexEntity(ctx, kind, id, doc); err != nil {
		log.Warn().Err(err).Str("kind", kind).Str("id", id).Msg("Failed to index entity")
	}
}

// dropFromIndex removes a soft-deleted entity from the search index.
func dropFromIndex(ctx context.Context, indexer search.Indexer, kind, id string) {
	if indexer == nil {
		return
	}
	if err := indexer.DeleteEntity(ctx, kind, id); err != nil {
		log.Warn().Err(err).Str("kind", kind).Str("id", id).Msg("Failed to remove entity from index")
	}
}

// evictCache drops a cached entity after a mutation.
func evictCache(ctx context.Context, c cache.Client, kind, id string) {
	if c == nil {
		return
	}
	if err := c.Delete(ctx, kind, id); err != nil {
		log.Warn().Err(err).Str("kind", kind).Str("id", id).Msg("Failed to evict cache entry")
	}
}

// violationCodes extracts the codes of a violation list for metrics.
func violationCodes(violations []domain.Violation) []string {
	codes := make([]string, 0, len(violations))
	for _, v := range violations {
		codes = append(codes, v.Code)
	}
	return codes
}
