package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rpggio/geoquest/internal/domain/proximity"
	"github.com/rpggio/geoquest/internal/domain/quest"
	"github.com/rpggio/geoquest/internal/geo"
)

// ErrLagged is reported by a range subscription whose hub buffer overflowed.
var ErrLagged = errors.New("subscriber fell behind the change feed")

// RangeFeed serves proximity range subscriptions from a range query
// followed by the hub's quest events.
type RangeFeed struct {
	hub    *Hub
	quests proximity.RangeReader
}

// NewRangeFeed creates a RangeFeed.
func NewRangeFeed(hub *Hub, quests proximity.RangeReader) *RangeFeed {
	return &RangeFeed{hub: hub, quests: quests}
}

// SubscribeRange subscribes to the hub before reading the range so no
// write committed after the read is missed.
func (f *RangeFeed) SubscribeRange(ctx context.Context, r geo.Range) (proximity.Subscription, error) {
	hubSub := f.hub.SubscribeQuests()
	initial, err := f.quests.InRange(ctx, r)
	if err != nil {
		hubSub.Close()
		return nil, fmt.Errorf("reading quest range %s: %w", r, err)
	}

	s := &rangeSubscription{
		out:  make(chan quest.Quest),
		stop: make(chan struct{}),
	}
	go s.pump(r, initial, hubSub)
	return s, nil
}

type rangeSubscription struct {
	out      chan quest.Quest
	stop     chan struct{}
	stopOnce sync.Once

	mu  sync.Mutex
	err error
}

func (s *rangeSubscription) Events() <-chan quest.Quest {
	return s.out
}

func (s *rangeSubscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *rangeSubscription) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *rangeSubscription) pump(r geo.Range, initial []quest.Quest, hubSub *Subscription[quest.Quest]) {
	defer close(s.out)
	defer hubSub.Close()

	// Quests seen in the range are followed after they move out, so the
	// subscriber learns they left.
	inRange := make(map[string]struct{}, len(initial))
	for _, q := range initial {
		inRange[q.ID] = struct{}{}
		if !s.send(q) {
			return
		}
	}

	for {
		select {
		case <-s.stop:
			return
		case <-hubSub.Lagged():
			s.fail(ErrLagged)
			return
		case q, ok := <-hubSub.Events():
			if !ok {
				s.fail(proximity.ErrSubscriptionEnded)
				return
			}
			_, known := inRange[q.ID]
			if r.Contains(q.CellKey) {
				inRange[q.ID] = struct{}{}
			} else if known {
				delete(inRange, q.ID)
			} else {
				continue
			}
			if !s.send(q) {
				return
			}
		}
	}
}

func (s *rangeSubscription) send(q quest.Quest) bool {
	select {
	case s.out <- q:
		return true
	case <-s.stop:
		return false
	}
}

func (s *rangeSubscription) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}
