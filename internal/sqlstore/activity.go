package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rpggio/geoquest/internal/domain/activity"
	"github.com/rpggio/geoquest/internal/repository"
)

// ActivityRepository implements the score audit log.
type ActivityRepository struct {
	db *DB
}

// NewActivityRepository creates a new ActivityRepository
func NewActivityRepository(db *DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// LogScore appends a score entry.
func (r *ActivityRepository) LogScore(ctx context.Context, entry *activity.ScoreEntry) error {
	return logScore(ctx, r.db.conn(), entry)
}

// List returns score entries oldest first.
func (r *ActivityRepository) List(ctx context.Context, opts activity.ListOptions) ([]activity.ScoreEntry, error) {
	query := `
		SELECT id, team_id, quest_id, delta, kind, reason, actor, created_at
		FROM score_log
		WHERE 1 = 1
	`
	var args []any
	if opts.TeamID != "" {
		query += ` AND team_id = ?`
		args = append(args, opts.TeamID)
	}
	if opts.Kind != nil {
		query += ` AND kind = ?`
		args = append(args, string(*opts.Kind))
	}
	query += ` ORDER BY created_at, id`
	query, args = paginate(query, args, opts.Limit, opts.Offset)

	rows, err := r.db.conn().query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list score entries: %w", err)
	}
	defer rows.Close()

	entries := []activity.ScoreEntry{}
	for rows.Next() {
		var (
			e       activity.ScoreEntry
			questID sql.NullString
			kind    string
		)
		if err := rows.Scan(&e.ID, &e.TeamID, &questID, &e.Delta, &kind, &e.Reason, &e.Actor, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan score entry: %w", err)
		}
		e.Kind = activity.Kind(kind)
		if questID.Valid {
			e.QuestID = &questID.String
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate score entries: %w", err)
	}
	return entries, nil
}

func logScore(ctx context.Context, c conn, e *activity.ScoreEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := c.exec(ctx, `
		INSERT INTO score_log (id, team_id, quest_id, delta, kind, reason, actor, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.TeamID, nullString(e.QuestID), e.Delta, string(e.Kind), e.Reason, e.Actor, e.CreatedAt.UTC())
	if err != nil {
		if isForeignKeyViolation(err) {
			return repository.ErrNotFound
		}
		return fmt.Errorf("failed to log score entry: %w", err)
	}
	return nil
}
