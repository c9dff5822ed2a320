package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/majo1520/IT-STOCK-sub001/cache"
	"github.com/majo1520/IT-STOCK-sub001/invalidation"
)

// fakeSource is an in-memory canonical code store.
type fakeSource struct {
	mu       sync.Mutex
	codes    map[int64]string
	readErr  error
	writeErr error
	reads    int
	writes   int
}

func newFakeSource() *fakeSource {
	return &fakeSource{codes: make(map[int64]string)}
}

func (f *fakeSource) ItemCode(ctx context.Context, id int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.readErr != nil {
		return "", f.readErr
	}
	return f.codes[id], nil
}

func (f *fakeSource) SetItemCode(ctx context.Context, id int64, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	if f.writeErr != nil {
		return f.writeErr
	}
	f.codes[id] = code
	return nil
}

func (f *fakeSource) code(id int64) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.codes[id]
}

func newTestReconciler(t *testing.T, source CodeSource) *Reconciler {
	t.Helper()
	codes, err := cache.NewCacheService(cache.DefaultConfig())
	if err != nil {
		t.Fatalf("build cache: %v", err)
	}
	return NewReconciler(source, codes, cache.NewDefaultKeySerializer(), zerolog.Nop(), time.Hour)
}

func TestPassPushesLocalCode(t *testing.T) {
	source := newFakeSource()
	source.codes[1] = "stale"
	r := newTestReconciler(t, source)

	r.Track(1, "QR-LOCAL")
	if state, ok := r.State(1); !ok || state != StateUnsynced {
		t.Fatalf("initial state = %v, %v", state, ok)
	}

	r.RunPass(context.Background())

	if got := source.code(1); got != "QR-LOCAL" {
		t.Errorf("canonical code = %q, local value did not win", got)
	}
	if state, _ := r.State(1); state != StateSynced {
		t.Errorf("state = %v, want synced", state)
	}
}

func TestPassSkipsMatchingCode(t *testing.T) {
	source := newFakeSource()
	source.codes[2] = "QR-SAME"
	r := newTestReconciler(t, source)

	r.Track(2, "QR-SAME")
	r.RunPass(context.Background())

	if source.writes != 0 {
		t.Errorf("writes = %d, matching code should not be pushed", source.writes)
	}
	if state, _ := r.State(2); state != StateSynced {
		t.Errorf("state = %v, want synced", state)
	}
}

func TestSyncedItemsAreSkippedUntilInvalidated(t *testing.T) {
	source := newFakeSource()
	r := newTestReconciler(t, source)
	ctx := context.Background()

	r.Track(3, "QR-3")
	r.RunPass(ctx)
	readsAfterFirst := source.reads

	// A second pass with nothing pending touches the source not at all.
	r.RunPass(ctx)
	if source.reads != readsAfterFirst {
		t.Errorf("reads = %d, synced item was re-fetched", source.reads)
	}
}

func TestReadFailureLeavesItemUnsynced(t *testing.T) {
	source := newFakeSource()
	source.readErr = errors.New("canonical store down")
	r := newTestReconciler(t, source)
	ctx := context.Background()

	r.Track(4, "QR-4")
	r.RunPass(ctx)

	if state, _ := r.State(4); state != StateUnsynced {
		t.Fatalf("state = %v, want unsynced after read failure", state)
	}

	// The source recovers; the next pass converges.
	source.mu.Lock()
	source.readErr = nil
	source.mu.Unlock()
	r.RunPass(ctx)

	if state, _ := r.State(4); state != StateSynced {
		t.Errorf("state = %v, want synced after recovery", state)
	}
	if got := source.code(4); got != "QR-4" {
		t.Errorf("canonical code = %q", got)
	}
}

func TestWriteFailureLeavesItemUnsynced(t *testing.T) {
	source := newFakeSource()
	source.codes[5] = "stale"
	source.writeErr = errors.New("write refused")
	r := newTestReconciler(t, source)

	r.Track(5, "QR-5")
	r.RunPass(context.Background())

	if state, _ := r.State(5); state != StateUnsynced {
		t.Errorf("state = %v, want unsynced after write failure", state)
	}
	if got := source.code(5); got != "stale" {
		t.Errorf("canonical code = %q, failed write must not apply", got)
	}
}

func TestHandleEventResyncsAfterCanonicalChange(t *testing.T) {
	source := newFakeSource()
	r := newTestReconciler(t, source)
	ctx := context.Background()

	r.Track(6, "QR-6")
	r.RunPass(ctx)
	if got := source.code(6); got != "QR-6" {
		t.Fatalf("canonical code = %q after first pass", got)
	}

	// The canonical side diverges behind our back; without invalidation the
	// reconciler's cached snapshot would hide it.
	source.mu.Lock()
	source.codes[6] = "changed-elsewhere"
	source.mu.Unlock()

	r.HandleEvent(ctx, invalidation.CategoryItemUpdate)

	if got := source.code(6); got != "QR-6" {
		t.Errorf("canonical code = %q, local value did not win after event", got)
	}
	if state, _ := r.State(6); state != StateSynced {
		t.Errorf("state = %v, want synced", state)
	}
}

func TestEveryCategoryTriggersAPass(t *testing.T) {
	for _, cat := range invalidation.Categories() {
		source := newFakeSource()
		source.codes[7] = "stale"
		r := newTestReconciler(t, source)

		r.Track(7, "QR-7")
		r.HandleEvent(context.Background(), cat)

		if got := source.code(7); got != "QR-7" {
			t.Errorf("category %s: canonical code = %q", cat, got)
		}
	}
}

// gatedSource holds reads open so a pass can be kept in flight.
type gatedSource struct {
	started   chan struct{}
	startOnce sync.Once
	gate      chan struct{}
}

func (g *gatedSource) ItemCode(ctx context.Context, id int64) (string, error) {
	g.startOnce.Do(func() { close(g.started) })
	<-g.gate
	return "", nil
}

func (g *gatedSource) SetItemCode(ctx context.Context, id int64, code string) error {
	return nil
}

func TestPassesDoNotOverlap(t *testing.T) {
	src := &gatedSource{started: make(chan struct{}), gate: make(chan struct{})}
	r := newTestReconciler(t, src)
	r.Track(1, "QR-1")
	ctx := context.Background()

	firstDone := make(chan struct{})
	go func() {
		r.RunPass(ctx)
		close(firstDone)
	}()
	<-src.started

	// The startup timer and an event trigger can race; the later pass must
	// wait for the earlier one.
	secondDone := make(chan struct{})
	go func() {
		r.RunPass(ctx)
		close(secondDone)
	}()

	select {
	case <-secondDone:
		t.Fatal("second pass finished while the first was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(src.gate)
	for _, done := range []chan struct{}{firstDone, secondDone} {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("pass did not finish after the source unblocked")
		}
	}
}

func TestStartRunsDelayedPass(t *testing.T) {
	source := newFakeSource()
	source.codes[8] = "stale"

	codes, err := cache.NewCacheService(cache.DefaultConfig())
	if err != nil {
		t.Fatalf("build cache: %v", err)
	}
	r := NewReconciler(source, codes, cache.NewDefaultKeySerializer(), zerolog.Nop(), 10*time.Millisecond)
	r.Track(8, "QR-8")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if state, _ := r.State(8); state == StateSynced {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if state, _ := r.State(8); state != StateSynced {
		t.Fatalf("state = %v, delayed pass did not run", state)
	}
	if got := source.code(8); got != "QR-8" {
		t.Errorf("canonical code = %q", got)
	}
}
