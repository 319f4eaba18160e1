package assignment

import (
	"log/slog"
	"math/rand/v2"

	"github.com/rpggio/geoquest/internal/domain/team"
	"github.com/rpggio/geoquest/internal/repository"
)

// DefaultWindow is the page size used when Options.Window is unset.
const DefaultWindow = 50

// Options configures a Selector.
type Options struct {
	Window    int
	Retry     repository.RetryPolicy
	Rand      *rand.Rand
	Publisher team.Publisher
	Logger    *slog.Logger
}
