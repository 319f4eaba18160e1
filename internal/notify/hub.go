package notify

import (
	"sync"

	"github.com/rpggio/geoquest/internal/domain/quest"
	"github.com/rpggio/geoquest/internal/domain/team"
	"github.com/rpggio/geoquest/internal/metrics"
)

// DefaultBuffer is the per-subscriber event buffer.
const DefaultBuffer = 64

// Relay forwards locally published writes to other instances.
type Relay interface {
	RelayQuest(q quest.Quest)
	RelayTeam(t team.Team)
}

// Hub is an in-process pub/sub of committed quest and team writes.
// Publishing never blocks: an event that does not fit a subscriber's
// buffer is dropped and the subscriber is marked lagged.
type Hub struct {
	quests *topic[quest.Quest]
	teams  *topic[team.Team]

	mu    sync.RWMutex
	relay Relay
}

// NewHub creates a Hub. buffer <= 0 uses DefaultBuffer.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		quests: newTopic[quest.Quest]("quests", buffer),
		teams:  newTopic[team.Team]("teams", buffer),
	}
}

// SetRelay installs the cross-instance relay.
func (h *Hub) SetRelay(r Relay) {
	h.mu.Lock()
	h.relay = r
	h.mu.Unlock()
}

// PublishQuest fans a committed quest write out to local subscribers and the relay.
func (h *Hub) PublishQuest(q quest.Quest) {
	h.quests.publish(q)
	if r := h.currentRelay(); r != nil {
		r.RelayQuest(q)
	}
}

// PublishTeam fans a committed team write out to local subscribers and the relay.
func (h *Hub) PublishTeam(t team.Team) {
	h.teams.publish(t)
	if r := h.currentRelay(); r != nil {
		r.RelayTeam(t)
	}
}

// SubscribeQuests subscribes to every quest write.
func (h *Hub) SubscribeQuests() *Subscription[quest.Quest] {
	return h.quests.subscribe()
}

// SubscribeTeams subscribes to every team write.
func (h *Hub) SubscribeTeams() *Subscription[team.Team] {
	return h.teams.subscribe()
}

func (h *Hub) deliverQuest(q quest.Quest) {
	h.quests.publish(q)
}

func (h *Hub) deliverTeam(t team.Team) {
	h.teams.publish(t)
}

func (h *Hub) currentRelay() Relay {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.relay
}

// Subscription receives events from one hub topic until closed.
type Subscription[T any] struct {
	topic     *topic[T]
	events    chan T
	lagged    chan struct{}
	lagOnce   sync.Once
	closeOnce sync.Once
}

// Events is closed after Close.
func (s *Subscription[T]) Events() <-chan T {
	return s.events
}

// Lagged is closed once an event has been dropped for this subscriber.
func (s *Subscription[T]) Lagged() <-chan struct{} {
	return s.lagged
}

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription[T]) Close() {
	s.closeOnce.Do(func() {
		s.topic.unsubscribe(s)
	})
}

type topic[T any] struct {
	name   string
	buffer int

	mu   sync.RWMutex
	subs map[*Subscription[T]]struct{}
}

func newTopic[T any](name string, buffer int) *topic[T] {
	return &topic[T]{name: name, buffer: buffer, subs: make(map[*Subscription[T]]struct{})}
}

func (t *topic[T]) subscribe() *Subscription[T] {
	s := &Subscription[T]{
		topic:  t,
		events: make(chan T, t.buffer),
		lagged: make(chan struct{}),
	}
	t.mu.Lock()
	t.subs[s] = struct{}{}
	t.mu.Unlock()
	return s
}

// unsubscribe closes the channel under the write lock, so no publisher
// holding the read lock can send on it afterwards.
func (t *topic[T]) unsubscribe(s *Subscription[T]) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.subs[s]; !ok {
		return
	}
	delete(t.subs, s)
	close(s.events)
}

func (t *topic[T]) publish(v T) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for s := range t.subs {
		select {
		case s.events <- v:
		default:
			metrics.HubDroppedEvents.WithLabelValues(t.name).Inc()
			s.lagOnce.Do(func() { close(s.lagged) })
		}
	}
}

func (t *topic[T]) count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subs)
}
