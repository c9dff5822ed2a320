package itemview

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeRefresher scripts the builder's behavior for state machine tests.
type fakeRefresher struct {
	mu              sync.Mutex
	concurrentErr   error
	rebuildErr      error
	count           int
	concurrentCalls int
	rebuildCalls    int32
	rebuildGate     chan struct{} // when set, Rebuild blocks until closed
}

func (f *fakeRefresher) RefreshConcurrently(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.concurrentCalls++
	return f.concurrentErr
}

func (f *fakeRefresher) Rebuild(ctx context.Context) error {
	atomic.AddInt32(&f.rebuildCalls, 1)
	if f.rebuildGate != nil {
		select {
		case <-f.rebuildGate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rebuildErr
}

func (f *fakeRefresher) Count(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count, nil
}

func TestRefreshHappyPathSkipsRebuild(t *testing.T) {
	f := &fakeRefresher{count: 12}
	c := NewCoordinator(f, zerolog.Nop(), 0)

	res := c.Refresh(context.Background(), ModeAfterWrite)
	if !res.Success || res.Rebuilt {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.ItemCount != 12 {
		t.Errorf("ItemCount = %d", res.ItemCount)
	}
	if atomic.LoadInt32(&f.rebuildCalls) != 0 {
		t.Error("rebuild ran on the happy path")
	}
	if c.State() != StateIdle {
		t.Errorf("state = %v, want idle", c.State())
	}
}

func TestStructuralFailureFallsBackToRebuild(t *testing.T) {
	f := &fakeRefresher{concurrentErr: ErrUniqueIndexMissing, count: 7}
	c := NewCoordinator(f, zerolog.Nop(), 0)

	res := c.Refresh(context.Background(), ModeManual)
	if !res.Success {
		t.Fatalf("fallback did not recover: %+v", res)
	}
	if !res.Rebuilt {
		t.Error("result does not report the rebuild")
	}
	if res.ItemCount != 7 {
		t.Errorf("ItemCount = %d", res.ItemCount)
	}
	if res.Err != nil {
		t.Errorf("structural failure leaked to the caller: %v", res.Err)
	}
}

func TestNonStructuralFailureIsSurfaced(t *testing.T) {
	boom := errors.New("connection reset")
	f := &fakeRefresher{concurrentErr: boom}
	c := NewCoordinator(f, zerolog.Nop(), 0)

	res := c.Refresh(context.Background(), ModeAfterWrite)
	if res.Success {
		t.Fatal("refresh reported success")
	}
	if !errors.Is(res.Err, boom) {
		t.Errorf("Err = %v", res.Err)
	}
	if atomic.LoadInt32(&f.rebuildCalls) != 0 {
		t.Error("rebuild ran for a non-structural error")
	}
}

func TestRebuildFailureIsFatalForAttemptOnly(t *testing.T) {
	f := &fakeRefresher{concurrentErr: ErrViewMissing, rebuildErr: errors.New("disk full")}
	c := NewCoordinator(f, zerolog.Nop(), 0)

	res := c.Refresh(context.Background(), ModeAfterWrite)
	if res.Success {
		t.Fatal("refresh reported success")
	}
	if !res.Rebuilt {
		t.Error("result does not report the rebuild attempt")
	}
	if res.Err == nil {
		t.Fatal("rebuild failure not reported")
	}
	if c.State() != StateIdle {
		t.Errorf("state = %v, want idle after failed rebuild", c.State())
	}
}

func TestForcedModeSkipsConcurrentAttempt(t *testing.T) {
	f := &fakeRefresher{count: 3}
	c := NewCoordinator(f, zerolog.Nop(), 0)

	res := c.Refresh(context.Background(), ModeForced)
	if !res.Success || !res.Rebuilt {
		t.Fatalf("unexpected result: %+v", res)
	}
	if f.concurrentCalls != 0 {
		t.Error("forced mode ran the concurrent refresh")
	}
}

func TestConcurrentCallersShareOneRebuild(t *testing.T) {
	gate := make(chan struct{})
	f := &fakeRefresher{rebuildGate: gate, count: 5}
	c := NewCoordinator(f, zerolog.Nop(), 0)

	results := make(chan Result, 2)
	start := make(chan struct{})
	for i := 0; i < 2; i++ {
		go func() {
			<-start
			results <- c.Refresh(context.Background(), ModeForced)
		}()
	}
	close(start)

	// Wait for the first rebuild to be in flight, then admit the second
	// caller before releasing the gate.
	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt32(&f.rebuildCalls) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(gate)

	for i := 0; i < 2; i++ {
		res := <-results
		if !res.Success {
			t.Fatalf("caller %d failed: %+v", i, res)
		}
	}
	if calls := atomic.LoadInt32(&f.rebuildCalls); calls != 1 {
		t.Errorf("rebuild ran %d times, want 1", calls)
	}
}

func TestRebuildTimeoutCancelsRebuild(t *testing.T) {
	gate := make(chan struct{}) // never closed: rebuild hangs
	f := &fakeRefresher{rebuildGate: gate}
	c := NewCoordinator(f, zerolog.Nop(), 50*time.Millisecond)

	res := c.Refresh(context.Background(), ModeForced)
	if res.Success {
		t.Fatal("hung rebuild reported success")
	}
	if !errors.Is(res.Err, context.DeadlineExceeded) {
		t.Errorf("Err = %v, want deadline exceeded", res.Err)
	}
}

func TestModeStrings(t *testing.T) {
	cases := map[Mode]string{
		ModeAfterWrite: "afterWrite",
		ModeManual:     "manual",
		ModeForced:     "forced",
	}
	for mode, want := range cases {
		if got := mode.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", mode, got, want)
		}
	}
}
