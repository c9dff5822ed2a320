package itemview

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Mode says why a refresh was requested.
type Mode int

const (
	// ModeAfterWrite is the synchronous refresh after a committed mutation.
	ModeAfterWrite Mode = iota
	// ModeManual is an operator-triggered refresh.
	ModeManual
	// ModeForced skips the non-exclusive attempt and rebuilds outright.
	ModeForced
)

func (m Mode) String() string {
	switch m {
	case ModeAfterWrite:
		return "afterWrite"
	case ModeManual:
		return "manual"
	case ModeForced:
		return "forced"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// State is the coordinator's observable position in its refresh cycle.
type State int32

const (
	StateIdle State = iota
	StateRefreshing
	StateRebuilding
)

// Refresher is what the coordinator drives. Builder is the production
// implementation.
type Refresher interface {
	RefreshConcurrently(ctx context.Context) error
	Rebuild(ctx context.Context) error
	Count(ctx context.Context) (int, error)
}

// Result reports one refresh attempt. A failed rebuild leaves the projection
// stale; Err is informational for the caller/administrator and must never be
// allowed to fail the mutation that triggered the refresh.
type Result struct {
	Success   bool
	ItemCount int
	Duration  time.Duration
	Rebuilt   bool
	Err       error
}

// RefreshTimeMs is the wire form of the elapsed time.
func (r Result) RefreshTimeMs() int64 {
	return r.Duration.Milliseconds()
}

// Coordinator serializes projection refreshes. It must be invoked strictly
// after the triggering mutation's transaction has committed, never inside
// it, so the projection only ever reflects durable state.
type Coordinator struct {
	refresher      Refresher
	rebuildTimeout time.Duration
	group          singleflight.Group
	state          atomic.Int32
	log            zerolog.Logger
}

// NewCoordinator creates a Coordinator. rebuildTimeout bounds the exclusive
// rebuild; zero means unbounded (fail-open), matching the historical
// behavior.
func NewCoordinator(r Refresher, logger zerolog.Logger, rebuildTimeout time.Duration) *Coordinator {
	return &Coordinator{
		refresher:      r,
		rebuildTimeout: rebuildTimeout,
		log:            logger.With().Str("component", "refresh").Logger(),
	}
}

// State reports the current refresh-cycle state.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// Refresh runs one refresh attempt. Unless forced, the non-exclusive path is
// tried first; a structural or transient failure there falls back to the
// exclusive rebuild and is not surfaced to the caller. A rebuild failure is
// fatal for the attempt only: it is reported in the Result and the
// projection stays stale until the next attempt.
func (c *Coordinator) Refresh(ctx context.Context, mode Mode) Result {
	start := time.Now()

	if mode != ModeForced {
		c.state.Store(int32(StateRefreshing))
		err := c.refresher.RefreshConcurrently(ctx)
		if err == nil {
			c.state.Store(int32(StateIdle))
			res := Result{Success: true, Duration: time.Since(start)}
			res.ItemCount = c.countBestEffort(ctx)
			c.logAttempt(mode, res, false)
			return res
		}
		if !ShouldRebuild(err) {
			c.state.Store(int32(StateIdle))
			res := Result{Err: err, Duration: time.Since(start)}
			c.logAttempt(mode, res, false)
			return res
		}
		c.log.Info().Err(err).Str("mode", mode.String()).
			Msg("concurrent refresh failed, falling back to rebuild")
	}

	return c.rebuild(ctx, mode, start)
}

// rebuild runs the exclusive path under single-flight discipline: a caller
// arriving while a rebuild is in flight waits for and shares that rebuild's
// outcome instead of launching a second one. The in-flight rebuild runs on
// the first caller's context.
func (c *Coordinator) rebuild(ctx context.Context, mode Mode, start time.Time) Result {
	v, err, shared := c.group.Do("rebuild", func() (any, error) {
		c.state.Store(int32(StateRebuilding))
		defer c.state.Store(int32(StateIdle))

		rctx := ctx
		if c.rebuildTimeout > 0 {
			var cancel context.CancelFunc
			rctx, cancel = context.WithTimeout(ctx, c.rebuildTimeout)
			defer cancel()
		}

		if err := c.refresher.Rebuild(rctx); err != nil {
			return 0, err
		}
		n, err := c.refresher.Count(rctx)
		if err != nil {
			return 0, err
		}
		return n, nil
	})

	res := Result{Rebuilt: true, Duration: time.Since(start)}
	if err != nil {
		res.Err = fmt.Errorf("cache rebuild failed: %w", err)
	} else {
		res.Success = true
		res.ItemCount = v.(int)
	}
	c.logAttempt(mode, res, shared)
	return res
}

func (c *Coordinator) countBestEffort(ctx context.Context) int {
	n, err := c.refresher.Count(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("row count after refresh failed")
		return 0
	}
	return n
}

// logAttempt records elapsed time and resulting row count for every attempt,
// success or failure.
func (c *Coordinator) logAttempt(mode Mode, res Result, shared bool) {
	ev := c.log.Info()
	if res.Err != nil {
		ev = c.log.Error().Err(res.Err)
	}
	ev.Str("mode", mode.String()).
		Bool("success", res.Success).
		Bool("rebuilt", res.Rebuilt).
		Bool("shared", shared).
		Int("rows", res.ItemCount).
		Int64("elapsed_ms", res.RefreshTimeMs()).
		Msg("refresh attempt finished")
}
