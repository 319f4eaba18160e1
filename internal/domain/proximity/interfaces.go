package proximity

import (
	"context"

	"github.com/rpggio/geoquest/internal/domain/quest"
	"github.com/rpggio/geoquest/internal/geo"
)

// Subscription streams the quests of one cell key range: first every
// quest currently stored in the range, then each later write to a quest
// in (or leaving) the range. Events is closed when the subscription ends;
// Err then reports why, or nil after Close.
type Subscription interface {
	Events() <-chan quest.Quest
	Err() error
	Close()
}

// Feed opens range subscriptions.
type Feed interface {
	SubscribeRange(ctx context.Context, r geo.Range) (Subscription, error)
}

// RangeReader runs one-shot range queries by cell key.
type RangeReader interface {
	InRange(ctx context.Context, r geo.Range) ([]quest.Quest, error)
}
