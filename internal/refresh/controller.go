package refresh

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/boboshow2025/TaiwanETF-Tracker/internal/models"
)

// Fetcher returns one complete snapshot or fails.
type Fetcher interface {
	Fetch(ctx context.Context) (models.Snapshot, error)
}

// Observer receives refresh outcomes, typically for metrics.
type Observer interface {
	ObserveRefresh(status Status, took time.Duration)
	ObserveSnapshot(active, passive int, fetchedAt time.Time)
}

// Transform post-processes a freshly fetched snapshot against the previous good one.
type Transform func(next, prev models.Snapshot) models.Snapshot

// Controller runs at most one fetch at a time and keeps the last good
// snapshot visible while a newer attempt is loading or after it failed.
type Controller struct {
	fetcher   Fetcher
	observer  Observer
	transform Transform
	now       func() time.Time
	log       zerolog.Logger

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup

	mu          sync.Mutex
	state       State
	beforeLoad  State
	seq         uint64
	cancel      context.CancelFunc
	idle        chan struct{}
	subscribers map[int]chan State
	nextSubID   int
	closed      bool
}

type Option func(*Controller)

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

func WithLogger(log zerolog.Logger) Option {
	return func(c *Controller) { c.log = log.With().Str("component", "refresh").Logger() }
}

func WithObserver(o Observer) Option {
	return func(c *Controller) { c.observer = o }
}

func WithTransform(t Transform) Option {
	return func(c *Controller) { c.transform = t }
}

func New(fetcher Fetcher, opts ...Option) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		fetcher:     fetcher,
		now:         time.Now,
		log:         zerolog.Nop(),
		baseCtx:     ctx,
		baseCancel:  cancel,
		state:       State{Status: StatusIdle},
		subscribers: make(map[int]chan State),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Partition returns the active and passive halves of the latest good snapshot.
func (c *Controller) Partition() (active, passive models.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Active, c.state.Passive
}

// Request starts a fetch. It returns false without doing anything when a
// fetch is already in flight or the controller is closed.
func (c *Controller) Request() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.state.Status == StatusLoading {
		return false
	}

	c.seq++
	seq := c.seq
	ctx, cancel := context.WithCancel(c.baseCtx)
	c.cancel = cancel
	c.idle = make(chan struct{})
	c.beforeLoad = c.state

	c.state = c.beforeLoad.carry(StatusLoading, seq)
	c.publishLocked()

	attempt := uuid.NewString()
	c.log.Debug().Uint64("seq", seq).Str("attempt", attempt).Msg("Refresh started")

	c.wg.Add(1)
	go c.run(ctx, seq, attempt)
	return true
}

func (c *Controller) run(ctx context.Context, seq uint64, attempt string) {
	defer c.wg.Done()

	started := c.now()
	snapshot, err := c.fetcher.Fetch(ctx)
	took := c.now().Sub(started)

	c.mu.Lock()
	defer c.mu.Unlock()

	if seq != c.seq || c.state.Status != StatusLoading {
		c.log.Debug().Uint64("seq", seq).Str("attempt", attempt).Msg("Discarding superseded refresh result")
		return
	}
	c.cancel()
	c.cancel = nil

	if err != nil {
		c.state = c.state.carry(StatusFailed, seq)
		c.state.Reason = err.Error()
		c.log.Warn().Err(err).Uint64("seq", seq).Str("attempt", attempt).Bool("stale", c.state.HasSnapshot).Msg("Refresh failed")
		if c.observer != nil {
			c.observer.ObserveRefresh(StatusFailed, took)
		}
		c.finishLocked()
		return
	}

	if c.transform != nil {
		snapshot = c.transform(snapshot, c.state.Snapshot)
	}
	fetchedAt := c.now()
	active, passive := snapshot.Partition()
	c.state = State{
		Status:      StatusReady,
		Seq:         seq,
		Snapshot:    snapshot,
		Active:      active,
		Passive:     passive,
		FetchedAt:   fetchedAt,
		HasSnapshot: true,
	}
	c.log.Info().
		Uint64("seq", seq).
		Str("attempt", attempt).
		Int("active", len(active)).
		Int("passive", len(passive)).
		Dur("took", took).
		Msg("Refresh completed")
	if c.observer != nil {
		c.observer.ObserveRefresh(StatusReady, took)
		c.observer.ObserveSnapshot(len(active), len(passive), fetchedAt)
	}
	c.finishLocked()
}

// Cancel abandons the in-flight fetch and restores the state seen before it
// was requested. Its eventual completion is discarded.
func (c *Controller) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Status != StatusLoading {
		return false
	}
	c.abandonLocked()
	c.finishLocked()
	return true
}

func (c *Controller) abandonLocked() {
	c.seq++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.state = c.beforeLoad
	c.log.Debug().Uint64("seq", c.seq).Msg("Refresh abandoned")
}

func (c *Controller) finishLocked() {
	if c.idle != nil {
		close(c.idle)
		c.idle = nil
	}
	c.publishLocked()
}

// Wait blocks until no fetch is in flight and returns the resulting state.
func (c *Controller) Wait(ctx context.Context) (State, error) {
	c.mu.Lock()
	if c.state.Status != StatusLoading {
		st := c.state
		c.mu.Unlock()
		return st, nil
	}
	idle := c.idle
	c.mu.Unlock()

	select {
	case <-idle:
		return c.State(), nil
	case <-ctx.Done():
		return c.State(), ctx.Err()
	}
}

// Subscribe registers for state transitions. The current state is delivered
// first. A slow reader loses intermediate states but always gets the latest.
func (c *Controller) Subscribe(buffer int) (<-chan State, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan State, buffer)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		close(ch)
		return ch, func() {}
	}
	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = ch
	ch <- c.state

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subscribers[id]; ok {
				delete(c.subscribers, id)
				close(sub)
			}
		})
	}
}

func (c *Controller) publishLocked() {
	for _, ch := range c.subscribers {
		select {
		case ch <- c.state:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- c.state:
			default:
			}
		}
	}
}

// Close abandons any in-flight fetch, waits for it to return and closes all
// subscriptions. Later requests are ignored.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.state.Status == StatusLoading {
		c.abandonLocked()
		c.finishLocked()
	}
	c.mu.Unlock()

	c.baseCancel()
	c.wg.Wait()

	c.mu.Lock()
	for id, ch := range c.subscribers {
		delete(c.subscribers, id)
		close(ch)
	}
	c.mu.Unlock()
}
