package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rpggio/geoquest/internal/domain/quest"
	"github.com/rpggio/geoquest/internal/domain/team"
	"github.com/rpggio/geoquest/internal/metrics"
)

// DefaultRedisChannel carries change events between instances.
const DefaultRedisChannel = "geoquest:changes"

const (
	kindQuest = "quest"
	kindTeam  = "team"

	outboxSize     = 256
	publishTimeout = 2 * time.Second
)

type envelope struct {
	Origin string       `json:"origin"`
	Kind   string       `json:"kind"`
	Quest  *quest.Quest `json:"quest,omitempty"`
	Team   *team.Team   `json:"team,omitempty"`
}

// RedisBridge republishes local writes on a Redis channel and delivers
// writes from other instances to the local hub.
type RedisBridge struct {
	rdb     *redis.Client
	channel string
	origin  string
	hub     *Hub
	outbox  chan envelope
	logger  *slog.Logger
}

// OpenRedis connects to the Redis server at rawURL and checks it responds.
func OpenRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return rdb, nil
}

// NewRedisBridge creates a bridge and installs it as the hub's relay.
func NewRedisBridge(rdb *redis.Client, channel string, hub *Hub, logger *slog.Logger) *RedisBridge {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	b := &RedisBridge{
		rdb:     rdb,
		channel: channel,
		origin:  uuid.NewString(),
		hub:     hub,
		outbox:  make(chan envelope, outboxSize),
		logger:  logger,
	}
	hub.SetRelay(b)
	return b
}

// RelayQuest queues a quest write for other instances.
func (b *RedisBridge) RelayQuest(q quest.Quest) {
	b.enqueue(envelope{Origin: b.origin, Kind: kindQuest, Quest: &q})
}

// RelayTeam queues a team write for other instances.
func (b *RedisBridge) RelayTeam(t team.Team) {
	b.enqueue(envelope{Origin: b.origin, Kind: kindTeam, Team: &t})
}

func (b *RedisBridge) enqueue(e envelope) {
	select {
	case b.outbox <- e:
	default:
		metrics.HubDroppedEvents.WithLabelValues("redis").Inc()
		b.logger.Warn("redis outbox full, dropping change event", "kind", e.Kind)
	}
}

// Run publishes queued writes and consumes the channel until ctx ends.
func (b *RedisBridge) Run(ctx context.Context) error {
	pubsub := b.rdb.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribing to %s: %w", b.channel, err)
	}
	b.logger.Info("redis change bridge running", "channel", b.channel, "origin", b.origin)

	msgs := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-b.outbox:
			b.publish(ctx, e)
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("redis channel %s closed", b.channel)
			}
			b.handle(msg.Payload)
		}
	}
}

func (b *RedisBridge) publish(ctx context.Context, e envelope) {
	data, err := json.Marshal(e)
	if err != nil {
		b.logger.Error("encoding change event", "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := b.rdb.Publish(ctx, b.channel, data).Err(); err != nil {
		b.logger.Warn("publishing change event", "kind", e.Kind, "error", err)
	}
}

// handle delivers an event from another instance to local subscribers only.
func (b *RedisBridge) handle(payload string) {
	var e envelope
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		b.logger.Warn("decoding change event", "error", err)
		return
	}
	if e.Origin == b.origin {
		return
	}
	switch {
	case e.Kind == kindQuest && e.Quest != nil:
		b.hub.deliverQuest(*e.Quest)
	case e.Kind == kindTeam && e.Team != nil:
		b.hub.deliverTeam(*e.Team)
	default:
		b.logger.Warn("unknown change event", "kind", e.Kind)
	}
}
