package proximity

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sort"
	"time"

	"github.com/rpggio/geoquest/internal/domain/quest"
	"github.com/rpggio/geoquest/internal/geo"
	"github.com/rpggio/geoquest/internal/metrics"
)

// Watcher tracks which quests are near a moving observer.
type Watcher struct {
	feed   Feed
	reader RangeReader
	index  *geo.Index
	logger *slog.Logger
	now    func() time.Time
}

// NewWatcher creates a Watcher.
func NewWatcher(feed Feed, reader RangeReader, index *geo.Index, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Watcher{
		feed:   feed,
		reader: reader,
		index:  index,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Watch is a running proximity watch.
type Watch struct {
	updates chan Snapshot
	cancel  context.CancelFunc
	done    chan struct{}
}

// Updates delivers the latest full candidate set. Intermediate snapshots
// are replaced when the reader falls behind. The channel is closed when
// the watch ends.
func (wt *Watch) Updates() <-chan Snapshot {
	return wt.updates
}

// Stop ends the watch and waits until every subscription is released.
func (wt *Watch) Stop() {
	wt.cancel()
	<-wt.done
}

// Done is closed once the watch has ended.
func (wt *Watch) Done() <-chan struct{} {
	return wt.done
}

// Watch starts tracking the quests within radius meters of the positions
// read from locations. It ends when ctx is cancelled, Stop is called,
// locations is closed, or a subscription fails.
func (w *Watcher) Watch(ctx context.Context, locations <-chan geo.Point, radius float64) (*Watch, error) {
	if !validRadius(radius) {
		return nil, ErrInvalidRadius
	}

	ctx, cancel := context.WithCancel(ctx)
	wt := &Watch{
		updates: make(chan Snapshot, 1),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go w.run(ctx, wt, locations, radius)
	return wt, nil
}

// Nearby returns the current candidates around center without watching.
func (w *Watcher) Nearby(ctx context.Context, center geo.Point, radius float64) ([]Candidate, error) {
	if !validRadius(radius) {
		return nil, ErrInvalidRadius
	}
	if err := center.Validate(); err != nil {
		return nil, err
	}

	byID := make(map[string]Candidate)
	for _, r := range w.index.BoundingRanges(center, radius) {
		quests, err := w.reader.InRange(ctx, r)
		if err != nil {
			return nil, fmt.Errorf("querying range %s: %w", r, err)
		}
		for _, q := range quests {
			if c, ok := measure(center, q, radius); ok {
				byID[q.ID] = c
			}
		}
	}
	return sortedCandidates(byID), nil
}

type feedEvent struct {
	gen   int
	quest quest.Quest
	err   error
}

// watchState is owned by the run goroutine.
type watchState struct {
	observer *geo.Point
	ranges   []geo.Range
	subs     []Subscription
	gen      int
	genStop  chan struct{}
	known    map[string]quest.Quest
	live     map[string]Candidate
	versions map[string]int64
	last     []Candidate
	emitted  bool
}

func (w *Watcher) run(ctx context.Context, wt *Watch, locations <-chan geo.Point, radius float64) {
	metrics.ProximityWatches.Inc()
	st := &watchState{
		known:    make(map[string]quest.Quest),
		live:     make(map[string]Candidate),
		versions: make(map[string]int64),
	}
	events := make(chan feedEvent)

	defer func() {
		stopped := ctx.Err() != nil
		wt.cancel()
		st.release()
		if stopped {
			// Nothing is delivered once the caller has cancelled.
			select {
			case <-wt.updates:
			default:
			}
		}
		close(wt.updates)
		metrics.ProximityWatches.Dec()
		close(wt.done)
	}()

	fail := func(err error) {
		w.logger.Warn("proximity watch failed", "error", err)
		wt.emit(Snapshot{Candidates: []Candidate{}, Err: err, At: w.now()})
	}

	for {
		select {
		case <-ctx.Done():
			return

		case p, ok := <-locations:
			if !ok {
				return
			}
			if err := p.Validate(); err != nil {
				w.logger.Debug("ignoring invalid observer location", "error", err)
				continue
			}
			st.observer = &p

			ranges := w.index.BoundingRanges(p, radius)
			if !slices.Equal(ranges, st.ranges) {
				// Old subscriptions go before new ones are opened.
				st.release()
				st.gen++
				st.genStop = make(chan struct{})
				st.ranges = ranges
				st.retain(ranges)
				for _, r := range ranges {
					sub, err := w.feed.SubscribeRange(ctx, r)
					if err != nil {
						if ctx.Err() == nil {
							fail(fmt.Errorf("subscribing to range %s: %w", r, err))
						}
						return
					}
					st.subs = append(st.subs, sub)
					go forward(st.gen, st.genStop, sub, events)
				}
				// The subscriptions are open, so anything written after
				// this read still arrives as an event.
				if err := w.load(ctx, st, ranges); err != nil {
					if ctx.Err() == nil {
						fail(err)
					}
					return
				}
			}

			// Every quest known in the current ranges is re-measured from
			// the new position.
			clear(st.live)
			for id, q := range st.known {
				if c, ok := measure(p, q, radius); ok {
					st.live[id] = c
				}
			}
			w.emitIfChanged(wt, st)

		case ev := <-events:
			if ev.gen != st.gen {
				continue
			}
			if ev.err != nil {
				fail(ev.err)
				return
			}
			q := ev.quest
			if !st.observe(q) {
				continue
			}
			if c, ok := measure(*st.observer, q, radius); ok {
				st.live[q.ID] = c
			} else {
				delete(st.live, q.ID)
			}
			w.emitIfChanged(wt, st)
		}
	}
}

// load reads the current contents of ranges into the known set.
func (w *Watcher) load(ctx context.Context, st *watchState, ranges []geo.Range) error {
	for _, r := range ranges {
		quests, err := w.reader.InRange(ctx, r)
		if err != nil {
			return fmt.Errorf("querying range %s: %w", r, err)
		}
		for _, q := range quests {
			st.observe(q)
		}
	}
	return nil
}

// observe records q unless a newer version is already known.
func (st *watchState) observe(q quest.Quest) bool {
	if v, ok := st.versions[q.ID]; ok && q.Version < v {
		return false
	}
	st.versions[q.ID] = q.Version
	st.known[q.ID] = q
	return true
}

// retain forgets quests outside ranges. The new subscriptions re-deliver
// the rest.
func (st *watchState) retain(ranges []geo.Range) {
	for id, q := range st.known {
		if !slices.ContainsFunc(ranges, func(r geo.Range) bool { return r.Contains(q.CellKey) }) {
			delete(st.known, id)
			delete(st.versions, id)
		}
	}
}

func (st *watchState) release() {
	if st.genStop != nil {
		close(st.genStop)
		st.genStop = nil
	}
	for _, sub := range st.subs {
		sub.Close()
	}
	st.subs = nil
}

func (w *Watcher) emitIfChanged(wt *Watch, st *watchState) {
	candidates := sortedCandidates(st.live)
	if st.emitted && sameCandidates(candidates, st.last) {
		return
	}
	st.last = candidates
	st.emitted = true
	wt.emit(Snapshot{Candidates: candidates, At: w.now()})
}

// emit replaces any snapshot the reader has not taken yet. Only the run
// goroutine sends, so the second attempt always succeeds.
func (wt *Watch) emit(s Snapshot) {
	for {
		select {
		case wt.updates <- s:
			return
		default:
		}
		select {
		case <-wt.updates:
		default:
		}
	}
}

func forward(gen int, stop <-chan struct{}, sub Subscription, out chan<- feedEvent) {
	for q := range sub.Events() {
		select {
		case out <- feedEvent{gen: gen, quest: q}:
		case <-stop:
			return
		}
	}

	err := sub.Err()
	if err == nil {
		select {
		case <-stop:
			return
		default:
			err = ErrSubscriptionEnded
		}
	}
	select {
	case out <- feedEvent{gen: gen, err: err}:
	case <-stop:
	}
}

func measure(observer geo.Point, q quest.Quest, radius float64) (Candidate, bool) {
	if !q.IsActive {
		return Candidate{}, false
	}
	d := geo.Distance(observer, q.Location())
	if d > radius {
		return Candidate{}, false
	}
	return Candidate{Quest: q.Public(), DistanceMeters: d}, true
}

func sortedCandidates(byID map[string]Candidate) []Candidate {
	out := make([]Candidate, 0, len(byID))
	for _, c := range byID {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DistanceMeters != out[j].DistanceMeters {
			return out[i].DistanceMeters < out[j].DistanceMeters
		}
		return out[i].Quest.ID < out[j].Quest.ID
	})
	return out
}

func sameCandidates(a, b []Candidate) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Quest.ID != b[i].Quest.ID ||
			a[i].Quest.Version != b[i].Quest.Version ||
			a[i].DistanceMeters != b[i].DistanceMeters {
			return false
		}
	}
	return true
}

func validRadius(radius float64) bool {
	return radius > 0 && !math.IsInf(radius, 0)
}
