package refresh

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boboshow2025/TaiwanETF-Tracker/internal/models"
)

type result struct {
	snapshot models.Snapshot
	err      error
}

type call struct {
	ctx   context.Context
	reply chan result
}

// fakeFetcher hands every Fetch to the test, which decides when and how it completes.
type fakeFetcher struct {
	calls chan call
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{calls: make(chan call, 8)}
}

func (f *fakeFetcher) Fetch(ctx context.Context) (models.Snapshot, error) {
	c := call{ctx: ctx, reply: make(chan result, 1)}
	f.calls <- c
	select {
	case r := <-c.reply:
		return r.snapshot, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeFetcher) next(t *testing.T) call {
	t.Helper()
	select {
	case c := <-f.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("fetch was not started")
		return call{}
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type recordingObserver struct {
	mu        sync.Mutex
	outcomes  []Status
	snapshots int
}

func (o *recordingObserver) ObserveRefresh(status Status, _ time.Duration) {
	o.mu.Lock()
	o.outcomes = append(o.outcomes, status)
	o.mu.Unlock()
}

func (o *recordingObserver) ObserveSnapshot(_, _ int, _ time.Time) {
	o.mu.Lock()
	o.snapshots++
	o.mu.Unlock()
}

func snapshotOf(ids ...string) models.Snapshot {
	out := make(models.Snapshot, 0, len(ids))
	for i, id := range ids {
		cat := models.CategoryActive
		if i%2 == 1 {
			cat = models.CategoryPassive
		}
		out = append(out, models.FundRecord{
			ID:        models.FundID(id),
			Ticker:    "T" + id,
			Category:  cat,
			Manager:   "m",
			YTDReturn: decimal.NewFromInt(int64(i)),
		})
	}
	return out
}

func wait(t *testing.T, c *Controller) State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st, err := c.Wait(ctx)
	require.NoError(t, err)
	return st
}

func TestInitialStateIsIdle(t *testing.T) {
	c := New(newFakeFetcher())
	defer c.Close()

	st := c.State()
	assert.Equal(t, StatusIdle, st.Status)
	assert.False(t, st.HasSnapshot)
	active, passive := c.Partition()
	assert.Empty(t, active)
	assert.Empty(t, passive)
}

func TestFailureThenRetryScenario(t *testing.T) {
	f := newFakeFetcher()
	clock := &fakeClock{now: time.Date(2025, 1, 2, 9, 0, 0, 0, time.UTC)}
	obs := &recordingObserver{}
	c := New(f, WithClock(clock.Now), WithObserver(obs))
	defer c.Close()

	require.True(t, c.Request())
	assert.Equal(t, StatusLoading, c.State().Status)
	f.next(t).reply <- result{err: errors.New("network down")}

	st := wait(t, c)
	assert.Equal(t, StatusFailed, st.Status)
	assert.Equal(t, "network down", st.Reason)
	assert.False(t, st.HasSnapshot)
	assert.Nil(t, st.Snapshot)

	t2 := clock.Now().Add(time.Minute)
	clock.Set(t2)
	s2 := snapshotOf("a", "b", "c")
	require.True(t, c.Request())
	assert.Equal(t, StatusLoading, c.State().Status)
	f.next(t).reply <- result{snapshot: s2}

	st = wait(t, c)
	assert.Equal(t, StatusReady, st.Status)
	assert.Equal(t, s2, st.Snapshot)
	assert.Equal(t, t2, st.FetchedAt)
	assert.Empty(t, st.Reason)

	active, passive := c.Partition()
	assert.Len(t, active, 2)
	assert.Len(t, passive, 1)

	assert.Equal(t, []Status{StatusFailed, StatusReady}, obs.outcomes)
	assert.Equal(t, 1, obs.snapshots)
}

func TestRequestWhileLoadingIsIgnored(t *testing.T) {
	f := newFakeFetcher()
	c := New(f)
	defer c.Close()

	updates, unsubscribe := c.Subscribe(16)
	defer unsubscribe()

	require.True(t, c.Request())
	pending := f.next(t)
	for i := 0; i < 5; i++ {
		assert.False(t, c.Request())
	}
	pending.reply <- result{snapshot: snapshotOf("x")}
	wait(t, c)

	select {
	case extra := <-f.calls:
		t.Fatalf("unexpected second fetch: %+v", extra)
	default:
	}

	c.Close()
	ready := 0
	for st := range updates {
		if st.Status == StatusReady {
			ready++
		}
	}
	assert.Equal(t, 1, ready)
}

func TestFailureKeepsLastGoodSnapshot(t *testing.T) {
	f := newFakeFetcher()
	c := New(f)
	defer c.Close()

	good := snapshotOf("1", "2")
	require.True(t, c.Request())
	f.next(t).reply <- result{snapshot: good}
	readyState := wait(t, c)

	require.True(t, c.Request())
	loading := c.State()
	assert.Equal(t, StatusLoading, loading.Status)
	assert.Equal(t, good, loading.Snapshot, "snapshot stays visible while loading")
	assert.True(t, loading.Stale())

	f.next(t).reply <- result{err: errors.New("parse feed: unexpected EOF")}
	st := wait(t, c)

	assert.Equal(t, StatusFailed, st.Status)
	assert.Equal(t, good, st.Snapshot)
	assert.Equal(t, readyState.FetchedAt, st.FetchedAt)
	assert.True(t, st.HasSnapshot)
	assert.Contains(t, st.Reason, "unexpected EOF")

	active, passive := c.Partition()
	assert.Len(t, active, 1)
	assert.Len(t, passive, 1)
}

func TestCancelDiscardsLateCompletion(t *testing.T) {
	f := newFakeFetcher()
	c := New(f)

	require.True(t, c.Request())
	first := f.next(t)
	require.True(t, c.Cancel())
	assert.Equal(t, StatusIdle, c.State().Status)
	assert.False(t, c.Cancel())

	require.True(t, c.Request())
	second := f.next(t)

	first.reply <- result{snapshot: snapshotOf("old")}
	second.reply <- result{snapshot: snapshotOf("new")}
	st := wait(t, c)
	require.Equal(t, StatusReady, st.Status)

	c.Close()
	final := c.State()
	assert.Equal(t, StatusReady, final.Status)
	require.Len(t, final.Snapshot, 1)
	assert.Equal(t, models.FundID("new"), final.Snapshot[0].ID)
	assert.Equal(t, st.Seq, final.Seq)
}

func TestCancelledAttemptContextIsDone(t *testing.T) {
	f := newFakeFetcher()
	c := New(f)
	defer c.Close()

	require.True(t, c.Request())
	pending := f.next(t)
	c.Cancel()

	select {
	case <-pending.ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("fetch context was not cancelled")
	}
}

func TestTransformSeesPreviousGoodSnapshot(t *testing.T) {
	f := newFakeFetcher()
	var seenPrev []models.Snapshot
	c := New(f, WithTransform(func(next, prev models.Snapshot) models.Snapshot {
		seenPrev = append(seenPrev, prev)
		return next
	}))
	defer c.Close()

	s1 := snapshotOf("1")
	require.True(t, c.Request())
	f.next(t).reply <- result{snapshot: s1}
	wait(t, c)

	require.True(t, c.Request())
	f.next(t).reply <- result{snapshot: snapshotOf("2")}
	wait(t, c)

	require.Len(t, seenPrev, 2)
	assert.Nil(t, seenPrev[0])
	assert.Equal(t, s1, seenPrev[1])
}

func TestSubscribeReceivesTransitions(t *testing.T) {
	f := newFakeFetcher()
	c := New(f)

	updates, unsubscribe := c.Subscribe(8)
	assert.Equal(t, StatusIdle, (<-updates).Status)

	require.True(t, c.Request())
	assert.Equal(t, StatusLoading, (<-updates).Status)
	f.next(t).reply <- result{snapshot: snapshotOf("1")}
	assert.Equal(t, StatusReady, (<-updates).Status)

	unsubscribe()
	unsubscribe()
	_, open := <-updates
	assert.False(t, open)
	c.Close()
	assert.False(t, c.Request())
}

func TestSlowSubscriberGetsLatestState(t *testing.T) {
	f := newFakeFetcher()
	c := New(f)
	defer c.Close()

	updates, unsubscribe := c.Subscribe(1)
	defer unsubscribe()

	require.True(t, c.Request())
	f.next(t).reply <- result{snapshot: snapshotOf("1")}
	wait(t, c)

	st := <-updates
	assert.Equal(t, StatusReady, st.Status)
}

func TestStateCarriesPartitionOfItsSnapshot(t *testing.T) {
	f := newFakeFetcher()
	c := New(f)
	defer c.Close()

	require.True(t, c.Request())
	f.next(t).reply <- result{snapshot: snapshotOf("1", "2", "3")}
	ready := wait(t, c)

	assert.Equal(t, models.Snapshot{ready.Snapshot[0], ready.Snapshot[2]}, ready.Active)
	assert.Equal(t, models.Snapshot{ready.Snapshot[1]}, ready.Passive)
	assert.Equal(t, ready.Passive, ready.Board(models.CategoryPassive))

	require.True(t, c.Request())
	loading := c.State()
	assert.Equal(t, ready.Active, loading.Active)

	f.next(t).reply <- result{err: errors.New("fetch feed: status 502")}
	failed := wait(t, c)
	assert.Equal(t, ready.Active, failed.Active)
	assert.Equal(t, ready.Passive, failed.Passive)

	active, passive := c.Partition()
	assert.Equal(t, failed.Active, active)
	assert.Equal(t, failed.Passive, passive)
}
