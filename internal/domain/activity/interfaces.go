package activity

import "context"

// Repository provides persistence operations for score entries.
type Repository interface {
	LogScore(ctx context.Context, entry *ScoreEntry) error
	List(ctx context.Context, opts ListOptions) ([]ScoreEntry, error)
}

// ScoreReader reads a team's stored total score.
type ScoreReader interface {
	TotalScore(ctx context.Context, teamID string) (int, error)
}
