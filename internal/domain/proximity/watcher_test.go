package proximity_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rpggio/geoquest/internal/domain/proximity"
	"github.com/rpggio/geoquest/internal/domain/quest"
	"github.com/rpggio/geoquest/internal/geo"
	"github.com/stretchr/testify/require"
)

var base = geo.Point{Lat: 30.3517, Lng: 76.3598}

// fakeFeed keeps quests in memory and pushes writes to open range subscriptions.
type fakeFeed struct {
	mu     sync.Mutex
	ix     *geo.Index
	quests map[string]quest.Quest
	subs   map[*fakeSub]struct{}
}

type fakeSub struct {
	feed *fakeFeed
	r    geo.Range
	ch   chan quest.Quest
	seen map[string]bool
	err  error
}

func newFakeFeed(t *testing.T) *fakeFeed {
	ix, err := geo.NewIndex(geo.DefaultPrecision)
	require.NoError(t, err)
	return &fakeFeed{ix: ix, quests: map[string]quest.Quest{}, subs: map[*fakeSub]struct{}{}}
}

func (f *fakeFeed) put(id string, p geo.Point, active bool, version int64) {
	q := quest.Quest{ID: id, Lat: p.Lat, Lng: p.Lng, CellKey: f.ix.CellKey(p), IsActive: active, Version: version, CorrectAnswer: "secret"}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.quests[id] = q
	for s := range f.subs {
		if s.r.Contains(q.CellKey) || s.seen[id] {
			s.seen[id] = true
			s.ch <- q
		}
	}
}

func (f *fakeFeed) SubscribeRange(_ context.Context, r geo.Range) (proximity.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &fakeSub{feed: f, r: r, ch: make(chan quest.Quest, 64), seen: map[string]bool{}}
	for _, q := range f.quests {
		if r.Contains(q.CellKey) {
			s.seen[q.ID] = true
			s.ch <- q
		}
	}
	f.subs[s] = struct{}{}
	return s, nil
}

func (f *fakeFeed) InRange(_ context.Context, r geo.Range) ([]quest.Quest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []quest.Quest
	for _, q := range f.quests {
		if r.Contains(q.CellKey) {
			out = append(out, q)
		}
	}
	return out, nil
}

func (f *fakeFeed) open() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *fakeFeed) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for s := range f.subs {
		s.err = err
		close(s.ch)
		delete(f.subs, s)
	}
}

func (s *fakeSub) Events() <-chan quest.Quest { return s.ch }

func (s *fakeSub) Err() error {
	s.feed.mu.Lock()
	defer s.feed.mu.Unlock()
	return s.err
}

func (s *fakeSub) Close() {
	s.feed.mu.Lock()
	defer s.feed.mu.Unlock()
	if _, ok := s.feed.subs[s]; ok {
		delete(s.feed.subs, s)
		close(s.ch)
	}
}

// quietFeed opens subscriptions that have not delivered anything yet.
type quietFeed struct{ *fakeFeed }

type quietSub struct {
	ch   chan quest.Quest
	once sync.Once
}

func (quietFeed) SubscribeRange(context.Context, geo.Range) (proximity.Subscription, error) {
	return &quietSub{ch: make(chan quest.Quest)}, nil
}

func (s *quietSub) Events() <-chan quest.Quest { return s.ch }
func (s *quietSub) Err() error                 { return nil }
func (s *quietSub) Close()                     { s.once.Do(func() { close(s.ch) }) }

func offset(p geo.Point, dLat float64) geo.Point {
	return geo.Point{Lat: p.Lat + dLat, Lng: p.Lng}
}

func waitFor(t *testing.T, wt *proximity.Watch, cond func(proximity.Snapshot) bool) proximity.Snapshot {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case s, ok := <-wt.Updates():
			require.True(t, ok, "updates closed before condition was met")
			if cond(s) {
				return s
			}
		case <-timeout:
			t.Fatal("timed out waiting for snapshot")
		}
	}
}

func ids(s proximity.Snapshot) []string {
	out := make([]string, len(s.Candidates))
	for i, c := range s.Candidates {
		out[i] = c.Quest.ID
	}
	return out
}

func TestWatch_InitialCandidates(t *testing.T) {
	feed := newFakeFeed(t)
	feed.put("near", offset(base, 0.001), true, 1)    // ~111 m
	feed.put("nearer", offset(base, 0.0005), true, 1) // ~56 m
	feed.put("outside", offset(base, 0.003), true, 1) // ~333 m
	feed.put("inactive", offset(base, 0.0002), false, 1)

	w := proximity.NewWatcher(feed, feed, feed.ix, nil)
	locations := make(chan geo.Point, 1)
	locations <- base
	wt, err := w.Watch(context.Background(), locations, 200)
	require.NoError(t, err)
	defer wt.Stop()

	snap := waitFor(t, wt, func(s proximity.Snapshot) bool { return len(s.Candidates) == 2 })
	require.Equal(t, []string{"nearer", "near"}, ids(snap))
	require.InDelta(t, 55.6, snap.Candidates[0].DistanceMeters, 1)
	require.Empty(t, snap.Candidates[0].Quest.CorrectAnswer)
	require.NoError(t, snap.Err)
}

func TestWatch_FirstSnapshotAfterMoveIsComplete(t *testing.T) {
	feed := newFakeFeed(t)
	far := offset(base, 0.05)
	feed.put("home", offset(base, 0.0005), true, 1)
	feed.put("away", offset(far, 0.0005), true, 1)

	w := proximity.NewWatcher(quietFeed{feed}, feed, feed.ix, nil)
	locations := make(chan geo.Point)
	wt, err := w.Watch(context.Background(), locations, 200)
	require.NoError(t, err)
	defer wt.Stop()

	next := func() proximity.Snapshot {
		t.Helper()
		select {
		case s := <-wt.Updates():
			return s
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for snapshot")
			return proximity.Snapshot{}
		}
	}

	locations <- base
	require.Equal(t, []string{"home"}, ids(next()))

	locations <- far
	require.Equal(t, []string{"away"}, ids(next()))
}

func TestWatch_FollowsQuestWrites(t *testing.T) {
	feed := newFakeFeed(t)
	w := proximity.NewWatcher(feed, feed, feed.ix, nil)
	locations := make(chan geo.Point, 1)
	locations <- base
	wt, err := w.Watch(context.Background(), locations, 200)
	require.NoError(t, err)
	defer wt.Stop()

	waitFor(t, wt, func(s proximity.Snapshot) bool { return len(s.Candidates) == 0 })

	feed.put("q1", offset(base, 0.001), true, 1)
	waitFor(t, wt, func(s proximity.Snapshot) bool { return s.Contains("q1") })

	feed.put("q1", offset(base, 0.001), false, 2)
	waitFor(t, wt, func(s proximity.Snapshot) bool { return !s.Contains("q1") })

	feed.put("q1", offset(base, 0.0015), true, 3)
	snap := waitFor(t, wt, func(s proximity.Snapshot) bool { return s.Contains("q1") })
	c, ok := snap.Find("q1")
	require.True(t, ok)
	require.Equal(t, int64(3), c.Quest.Version)

	// Moving out of the radius removes it.
	feed.put("q1", offset(base, 0.01), true, 4)
	waitFor(t, wt, func(s proximity.Snapshot) bool { return !s.Contains("q1") })
}

func TestWatch_ObserverMoveResubscribes(t *testing.T) {
	feed := newFakeFeed(t)
	far := offset(base, 0.05) // ~5.5 km north
	feed.put("home", offset(base, 0.001), true, 1)
	feed.put("away", offset(far, 0.001), true, 1)

	w := proximity.NewWatcher(feed, feed, feed.ix, nil)
	locations := make(chan geo.Point)
	wt, err := w.Watch(context.Background(), locations, 200)
	require.NoError(t, err)
	defer wt.Stop()

	locations <- base
	waitFor(t, wt, func(s proximity.Snapshot) bool { return s.Contains("home") })

	locations <- far
	snap := waitFor(t, wt, func(s proximity.Snapshot) bool { return s.Contains("away") })
	require.False(t, snap.Contains("home"))
	require.Len(t, feed.ix.BoundingRanges(far, 200), feed.open())
}

func TestWatch_SmallMoveBringsQuestIntoRange(t *testing.T) {
	feed := newFakeFeed(t)
	feed.put("q1", offset(base, 0.0015), true, 1) // ~167 m north

	w := proximity.NewWatcher(feed, feed, feed.ix, nil)
	locations := make(chan geo.Point)
	wt, err := w.Watch(context.Background(), locations, 100)
	require.NoError(t, err)
	defer wt.Stop()

	locations <- base
	first := waitFor(t, wt, func(proximity.Snapshot) bool { return true })
	require.False(t, first.Contains("q1"))

	locations <- offset(base, 0.001)
	snap := waitFor(t, wt, func(s proximity.Snapshot) bool { return s.Contains("q1") })
	c, ok := snap.Find("q1")
	require.True(t, ok)
	require.Less(t, c.DistanceMeters, 100.0)
}

func TestWatch_SubscriptionFailureEndsWatch(t *testing.T) {
	feed := newFakeFeed(t)
	feed.put("q1", offset(base, 0.001), true, 1)
	w := proximity.NewWatcher(feed, feed, feed.ix, nil)
	locations := make(chan geo.Point, 1)
	locations <- base
	wt, err := w.Watch(context.Background(), locations, 200)
	require.NoError(t, err)

	waitFor(t, wt, func(s proximity.Snapshot) bool { return s.Contains("q1") })

	boom := errors.New("feed lost")
	feed.fail(boom)
	snap := waitFor(t, wt, func(s proximity.Snapshot) bool { return s.Err != nil })
	require.ErrorIs(t, snap.Err, boom)
	require.Empty(t, snap.Candidates)

	select {
	case <-wt.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not end")
	}
	_, ok := <-wt.Updates()
	require.False(t, ok)
}

func TestWatch_StopReleasesSubscriptions(t *testing.T) {
	feed := newFakeFeed(t)
	w := proximity.NewWatcher(feed, feed, feed.ix, nil)
	locations := make(chan geo.Point, 1)
	locations <- base
	wt, err := w.Watch(context.Background(), locations, 200)
	require.NoError(t, err)

	waitFor(t, wt, func(proximity.Snapshot) bool { return true })
	require.Positive(t, feed.open())

	wt.Stop()
	require.Zero(t, feed.open())
	for range wt.Updates() {
		t.Fatal("no snapshot expected after stop")
	}
}

func TestWatch_ClosedLocationsEndsWatch(t *testing.T) {
	feed := newFakeFeed(t)
	w := proximity.NewWatcher(feed, feed, feed.ix, nil)
	locations := make(chan geo.Point)
	wt, err := w.Watch(context.Background(), locations, 50)
	require.NoError(t, err)

	close(locations)
	select {
	case <-wt.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not end")
	}
}

func TestWatch_InvalidRadius(t *testing.T) {
	feed := newFakeFeed(t)
	w := proximity.NewWatcher(feed, feed, feed.ix, nil)
	for _, r := range []float64{0, -5} {
		_, err := w.Watch(context.Background(), make(chan geo.Point), r)
		require.ErrorIs(t, err, proximity.ErrInvalidRadius)
	}
}

func TestNearby(t *testing.T) {
	feed := newFakeFeed(t)
	feed.put("a", offset(base, 0.0005), true, 1)
	feed.put("b", offset(base, 0.004), true, 1)
	w := proximity.NewWatcher(feed, feed, feed.ix, nil)

	got, err := w.Nearby(context.Background(), base, 300)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "a", got[0].Quest.ID)
	require.True(t, proximity.InTriggerRange(got[0], 60))
	require.False(t, proximity.InTriggerRange(got[0], 20))

	_, err = w.Nearby(context.Background(), geo.Point{Lat: 95}, 300)
	require.ErrorIs(t, err, geo.ErrInvalidPoint)
}
