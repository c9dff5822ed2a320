package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/majo1520/IT-STOCK-sub001/cache"
	"github.com/majo1520/IT-STOCK-sub001/invalidation"
)

// SyncState tracks one locally held auxiliary record through a pass.
type SyncState int

const (
	StateUnsynced SyncState = iota
	StateSyncing
	StateSynced
)

func (s SyncState) String() string {
	switch s {
	case StateUnsynced:
		return "unsynced"
	case StateSyncing:
		return "syncing"
	case StateSynced:
		return "synced"
	default:
		return fmt.Sprintf("SyncState(%d)", int(s))
	}
}

// CodeSource is the canonical store as seen from the client process.
type CodeSource interface {
	ItemCode(ctx context.Context, id int64) (string, error)
	SetItemCode(ctx context.Context, id int64, code string) error
}

// DefaultStartupDelay is the fixed delay before the time-driven safety pass.
// The push channel gives no delivery guarantee, so this pass is the real
// consistency backstop.
const DefaultStartupDelay = 5 * time.Second

type trackedCode struct {
	value string
	state SyncState
}

// Reconciler keeps locally cached item codes consistent with the canonical
// store. It runs one reconciliation pass per trigger: any invalidation
// category received on the push channel, or the startup timer.
//
// Conflict policy is local-wins: a diverging canonical value is overwritten
// with the local one. This can discard concurrent canonical-side updates;
// it is a known limitation of the subsystem, not a consistency design.
type Reconciler struct {
	source       CodeSource
	codes        cache.CacheService
	keys         cache.KeySerializer
	startupDelay time.Duration
	log          zerolog.Logger

	// passMu serializes whole passes; mu guards the tracked map.
	passMu sync.Mutex
	mu     sync.Mutex
	local  map[int64]*trackedCode
}

// NewReconciler builds a reconciler reading canonical codes through the
// provided cache service. startupDelay <= 0 uses DefaultStartupDelay.
func NewReconciler(source CodeSource, codes cache.CacheService, keys cache.KeySerializer, logger zerolog.Logger, startupDelay time.Duration) *Reconciler {
	if startupDelay <= 0 {
		startupDelay = DefaultStartupDelay
	}
	return &Reconciler{
		source:       source,
		codes:        codes,
		keys:         keys,
		startupDelay: startupDelay,
		log:          logger.With().Str("component", "reconcile").Logger(),
		local:        make(map[int64]*trackedCode),
	}
}

// Track registers a locally held code for an item. The entry starts
// UNSYNCED and is pushed canonical-wards on the next pass.
func (r *Reconciler) Track(id int64, code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.local[id] = &trackedCode{value: code, state: StateUnsynced}
}

// State reports the sync state of a tracked item.
func (r *Reconciler) State(id int64) (SyncState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tc, ok := r.local[id]
	if !ok {
		return 0, false
	}
	return tc.state, true
}

// Start arms the time-driven trigger: one pass after the fixed startup
// delay. Event-driven passes arrive via HandleEvent regardless.
func (r *Reconciler) Start(ctx context.Context) {
	go func() {
		timer := time.NewTimer(r.startupDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			r.RunPass(ctx)
		}
	}()
}

// HandleEvent is the event-driven trigger. Every category counts: the
// categories are redundant by design, so there is nothing to distinguish.
// The cached canonical snapshot is invalidated first so the pass sees fresh
// values.
func (r *Reconciler) HandleEvent(ctx context.Context, category invalidation.Category) {
	r.invalidateCanonical(ctx)
	r.RunPass(ctx)
}

// RunPass runs one reconciliation pass over every tracked item. Passes are
// serialized: the startup timer and event triggers can fire close together,
// and an overlapping pass would double-push the same items. Per-item errors
// are logged and leave the item UNSYNCED for the next pass. There is no
// backoff or retry cap.
func (r *Reconciler) RunPass(ctx context.Context) {
	r.passMu.Lock()
	defer r.passMu.Unlock()

	for _, id := range r.pending() {
		if err := r.reconcileItem(ctx, id); err != nil {
			r.log.Warn().Err(err).Int64("item", id).Msg("reconciliation failed, will retry next pass")
		}
	}
}

func (r *Reconciler) pending() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]int64, 0, len(r.local))
	for id, tc := range r.local {
		if tc.state != StateSynced {
			ids = append(ids, id)
		}
	}
	return ids
}

func (r *Reconciler) reconcileItem(ctx context.Context, id int64) error {
	local, ok := r.transition(id, StateSyncing)
	if !ok {
		return nil
	}

	key := r.keys.SerializeKey("ItemCode", id)
	canonical, err := cache.GetOrFetch(ctx, r.codes, key, func(ctx context.Context) (string, error) {
		return r.source.ItemCode(ctx, id)
	})
	if err != nil {
		r.transition(id, StateUnsynced)
		return fmt.Errorf("fetch canonical code: %w", err)
	}

	if canonical != local {
		if err := r.source.SetItemCode(ctx, id, local); err != nil {
			r.transition(id, StateUnsynced)
			return fmt.Errorf("push local code: %w", err)
		}
		// The cached canonical value is now outdated.
		_ = r.codes.Delete(ctx, key)
		r.log.Info().Int64("item", id).Msg("canonical code overwritten with local value")
	}

	r.transition(id, StateSynced)
	return nil
}

// transition moves a tracked item to the given state and returns its local
// value. ok is false when the item is no longer tracked.
func (r *Reconciler) transition(id int64, state SyncState) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tc, ok := r.local[id]
	if !ok {
		return "", false
	}
	tc.state = state
	return tc.value, true
}

// invalidateCanonical drops every cached canonical code and returns all
// tracked items to UNSYNCED, so the next pass re-reads the canonical store
// and re-checks every item.
func (r *Reconciler) invalidateCanonical(ctx context.Context) {
	r.mu.Lock()
	ids := make([]int64, 0, len(r.local))
	for id, tc := range r.local {
		ids = append(ids, id)
		tc.state = StateUnsynced
	}
	r.mu.Unlock()

	for _, id := range ids {
		_ = r.codes.Delete(ctx, r.keys.SerializeKey("ItemCode", id))
	}
}
