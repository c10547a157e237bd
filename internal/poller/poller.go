// Package poller owns the rig's status polling loop.
// It is the single writer of the current snapshot and liveness; everything
// else reads them through accessors or consumes Results from the out channel.
package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/ledrig-monitor/internal/device"
	"github.com/sweeney/ledrig-monitor/internal/logic"
)

// State is the poller's lifecycle state.
type State string

const (
	StateIdle    State = "IDLE"
	StatePolling State = "POLLING"
	StateUp      State = "UP"
	StateDown    State = "DOWN"
)

const (
	DefaultInterval = 5 * time.Second
	DefaultTimeout  = 4 * time.Second
)

// Config is the runtime config the poller needs.
type Config struct {
	Interval time.Duration
	// Timeout bounds one status request.
	Timeout time.Duration
}

// Result is produced by one completed poll.
type Result struct {
	At       time.Time
	Snapshot *logic.Snapshot // nil when Liveness is DOWN
	Liveness logic.Liveness
	Faults   []logic.FaultRecord
	LEDs     logic.LedStateMap
	Err      error // non-nil means the poll failed
}

// Option customises a Poller.
type Option func(*Poller)

// WithClock replaces time.Now for result timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Poller) { p.now = now }
}

// WithTicker drives polls from tick instead of an internal time.Ticker.
func WithTicker(tick <-chan time.Time) Option {
	return func(p *Poller) { p.tick = tick }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Poller) { p.logger = l }
}

// Poller periodically fetches the rig status.
// At most one poll is in flight at any time.
type Poller struct {
	cfg    Config
	client device.Client
	now    func() time.Time
	tick   <-chan time.Time
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	inFlight   atomic.Bool
	closed     atomic.Bool
	closeOnce  sync.Once
	suppressed atomic.Int64

	mu       sync.RWMutex
	state    State
	snapshot *logic.Snapshot
	liveness logic.Liveness
	lastErr  error
	lastPoll time.Time

	// sendMu serialises delivery on out against Run clearing it, so nothing
	// is sent after Run returns and the caller closes the channel.
	sendMu  sync.Mutex
	out     chan<- Result
	outDone <-chan struct{}
}

// New creates a poller. Nothing is fetched until Run or RefreshNow.
func New(cfg Config, client device.Client, opts ...Option) (*Poller, error) {
	if client == nil {
		return nil, errors.New("poller: client required")
	}
	if cfg.Interval < 0 || cfg.Timeout < 0 {
		return nil, errors.New("poller: durations must not be negative")
	}
	if cfg.Interval == 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Poller{
		cfg:      cfg,
		client:   client,
		now:      time.Now,
		logger:   zerolog.Nop(),
		ctx:      ctx,
		cancel:   cancel,
		state:    StateIdle,
		liveness: logic.LivenessUp,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Run polls once immediately and then on every tick until ctx is cancelled
// or Close is called. Each completed poll is sent on out in completion order.
// Run waits for an in-flight poll to finish before returning.
func (p *Poller) Run(ctx context.Context, out chan<- Result) error {
	p.sendMu.Lock()
	if p.out != nil {
		p.sendMu.Unlock()
		return errors.New("poller: already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(p.ctx, cancel)
	defer stop()

	p.out = out
	p.outDone = ctx.Done()
	p.sendMu.Unlock()

	tick := p.tick
	if tick == nil {
		ticker := time.NewTicker(p.cfg.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	var wg sync.WaitGroup
	start := func() {
		if !p.acquire() {
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.poll(ctx)
		}()
	}

	p.logger.Info().Dur("interval", p.cfg.Interval).Msg("poller started")
	start()

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			p.sendMu.Lock()
			p.out = nil
			p.outDone = nil
			p.sendMu.Unlock()
			p.logger.Info().Msg("poller stopped")
			return nil
		case <-tick:
			start()
		}
	}
}

// RefreshNow performs a poll immediately, exactly as a tick would.
// It returns false without polling when a poll is already in flight or the
// poller is closed. The result is also delivered to a running Run loop.
//
// The poll itself is bounded by the configured timeout, not by ctx: ctx only
// limits how long the caller waits. A caller that gives up returns false and
// the poll completes and is delivered as usual.
func (p *Poller) RefreshNow(ctx context.Context) (Result, bool) {
	if !p.acquire() {
		return Result{}, false
	}

	type outcome struct {
		res Result
		ok  bool
	}
	done := make(chan outcome, 1)
	go func() {
		res, ok := p.poll(p.ctx)
		done <- outcome{res, ok}
	}()

	select {
	case o := <-done:
		return o.res, o.ok
	case <-ctx.Done():
		return Result{}, false
	}
}

// Close stops polling and aborts any in-flight request. After Close returns
// no further state transitions happen. Safe to call more than once.
func (p *Poller) Close() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed.Store(true)
		p.state = StateIdle
		p.mu.Unlock()
		p.cancel()
	})
}

// acquire takes the overlap guard, counting the attempt as suppressed if it
// is already held.
func (p *Poller) acquire() bool {
	if p.closed.Load() {
		return false
	}
	if !p.inFlight.CompareAndSwap(false, true) {
		n := p.suppressed.Add(1)
		p.logger.Debug().Int64("suppressed", n).Msg("poll already in flight, skipping")
		return false
	}
	return true
}

// poll runs one status request. The caller must hold the overlap guard;
// poll releases it only after the result has been delivered.
func (p *Poller) poll(ctx context.Context) (Result, bool) {
	defer p.inFlight.Store(false)

	p.mu.Lock()
	if p.closed.Load() {
		p.mu.Unlock()
		return Result{}, false
	}
	p.state = StatePolling
	p.mu.Unlock()

	reqCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	snap, err := p.client.Status(reqCtx)
	cancel()

	// Cancelled from outside rather than timed out: the rig did not fail.
	if err != nil && ctx.Err() != nil {
		p.mu.Lock()
		if !p.closed.Load() {
			p.state = p.settledState()
		}
		p.mu.Unlock()
		p.logger.Debug().Err(err).Msg("poll aborted")
		return Result{}, false
	}

	res := Result{At: p.now(), Liveness: logic.LivenessUp}
	if err != nil {
		res.Liveness = logic.LivenessDown
		res.Err = err
	} else {
		res.Snapshot = snap
	}
	res.Faults = logic.ExtractFaults(res.Snapshot, res.Liveness)
	res.LEDs = logic.DeriveLEDs(res.Snapshot)

	p.mu.Lock()
	if p.closed.Load() {
		p.mu.Unlock()
		return Result{}, false
	}
	prev := p.liveness
	p.snapshot = res.Snapshot
	p.liveness = res.Liveness
	p.lastErr = err
	p.lastPoll = res.At
	if err != nil {
		p.state = StateDown
	} else {
		p.state = StateUp
	}
	p.mu.Unlock()

	if prev != res.Liveness {
		if err != nil {
			p.logger.Warn().Err(err).Msg("rig unreachable")
		} else {
			p.logger.Info().Msg("rig reachable")
		}
	}

	res.Snapshot = res.Snapshot.Clone()
	p.deliver(res)
	return res, true
}

// settledState is the state implied by the last completed poll.
// Caller holds p.mu.
func (p *Poller) settledState() State {
	switch {
	case p.lastPoll.IsZero():
		return StateIdle
	case p.liveness == logic.LivenessDown:
		return StateDown
	default:
		return StateUp
	}
}

// deliver hands res to the running Run loop, if any. It gives up only when
// Run is stopping or the poller is closed.
func (p *Poller) deliver(res Result) {
	p.sendMu.Lock()
	defer p.sendMu.Unlock()
	if p.out == nil {
		return
	}
	select {
	case p.out <- res:
	case <-p.outDone:
	case <-p.ctx.Done():
	}
}

// Snapshot returns a copy of the latest snapshot, nil while DOWN or before
// the first successful poll.
func (p *Poller) Snapshot() *logic.Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshot.Clone()
}

// Liveness returns whether the last poll succeeded.
// It is UP before the first poll completes.
func (p *Poller) Liveness() logic.Liveness {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.liveness
}

// State returns the lifecycle state.
func (p *Poller) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// LastError returns the error of the last poll, nil if it succeeded.
func (p *Poller) LastError() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastErr
}

// LastPoll returns the completion time of the last poll.
func (p *Poller) LastPoll() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastPoll
}

// Suppressed returns how many polls were skipped because one was in flight.
func (p *Poller) Suppressed() int64 {
	return p.suppressed.Load()
}

// Interval returns the effective polling interval.
func (p *Poller) Interval() time.Duration {
	return p.cfg.Interval
}
