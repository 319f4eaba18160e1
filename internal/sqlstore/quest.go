package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rpggio/geoquest/internal/domain/quest"
	"github.com/rpggio/geoquest/internal/geo"
	"github.com/rpggio/geoquest/internal/repository"
)

const questColumns = `id, lat, lng, cell_key, hint, question, correct_answer,
	discovery_count, is_active, version, created_at, updated_at`

// QuestRepository implements quest persistence.
type QuestRepository struct {
	db *DB
}

// NewQuestRepository creates a new QuestRepository
func NewQuestRepository(db *DB) *QuestRepository {
	return &QuestRepository{db: db}
}

// Create inserts a quest.
func (r *QuestRepository) Create(ctx context.Context, q *quest.Quest) error {
	return insertQuest(ctx, r.db.conn(), q)
}

// Get loads a quest with its discovery records.
func (r *QuestRepository) Get(ctx context.Context, id string) (*quest.Quest, error) {
	return getQuest(ctx, r.db.conn(), id)
}

// Update writes quest fields if the stored version still equals expectedVersion.
func (r *QuestRepository) Update(ctx context.Context, q *quest.Quest, expectedVersion int64) error {
	return updateQuest(ctx, r.db.conn(), q, expectedVersion)
}

// List returns quests ordered by creation.
func (r *QuestRepository) List(ctx context.Context, opts quest.ListOptions) ([]quest.Quest, error) {
	query := `SELECT ` + questColumns + ` FROM quests`
	var args []any
	if opts.ActiveOnly {
		query += ` WHERE is_active = ?`
		args = append(args, true)
	}
	query += ` ORDER BY created_at, id`
	query, args = paginate(query, args, opts.Limit, opts.Offset)
	return listQuests(ctx, r.db.conn(), query, args...)
}

// InRange returns every quest, active or not, whose cell key lies in r.
// Inactive quests are included so watchers learn about deactivations.
func (r *QuestRepository) InRange(ctx context.Context, rng geo.Range) ([]quest.Quest, error) {
	query := `SELECT ` + questColumns + ` FROM quests WHERE cell_key >= ? AND cell_key < ? ORDER BY cell_key, id`
	return listQuests(ctx, r.db.conn(), query, rng.Start, rng.End)
}

// ListLeastDiscovered pages through active quests by discovery count, then
// id, strictly after the cursor.
func (r *QuestRepository) ListLeastDiscovered(ctx context.Context, limit int, after quest.DiscoveryCursor) ([]quest.Quest, error) {
	query := `SELECT ` + questColumns + ` FROM quests
		WHERE is_active = ? AND (discovery_count > ? OR (discovery_count = ? AND id > ?))
		ORDER BY discovery_count, id`
	query, args := paginate(query, []any{true, after.Count, after.Count, after.ID}, limit, 0)
	return listQuests(ctx, r.db.conn(), query, args...)
}

func insertQuest(ctx context.Context, c conn, q *quest.Quest) error {
	query := `INSERT INTO quests (` + questColumns + `) VALUES (` + placeholders(12) + `)`
	_, err := c.exec(ctx, query,
		q.ID,
		q.Lat,
		q.Lng,
		q.CellKey,
		q.Hint,
		q.Question,
		q.CorrectAnswer,
		q.DiscoveryCount,
		q.IsActive,
		q.Version,
		q.CreatedAt.UTC(),
		q.UpdatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("failed to create quest: %w", err)
	}
	return nil
}

func getQuest(ctx context.Context, c conn, id string) (*quest.Quest, error) {
	row := c.queryRow(ctx, `SELECT `+questColumns+` FROM quests WHERE id = ?`, id)
	q, err := scanQuest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get quest: %w", classify(err))
	}

	rows, err := c.query(ctx, `
		SELECT team_id, discovery_rank, discovered_at
		FROM quest_discoveries
		WHERE quest_id = ?
		ORDER BY discovery_rank
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get discoveries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var d quest.DiscoveryRecord
		if err := rows.Scan(&d.TeamID, &d.Rank, &d.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan discovery: %w", err)
		}
		q.DiscoveryTeams = append(q.DiscoveryTeams, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate discoveries: %w", err)
	}
	return &q, nil
}

func updateQuest(ctx context.Context, c conn, q *quest.Quest, expectedVersion int64) error {
	query := `
		UPDATE quests
		SET lat = ?, lng = ?, cell_key = ?, hint = ?, question = ?, correct_answer = ?,
		    discovery_count = ?, is_active = ?, version = ?, updated_at = ?
		WHERE id = ? AND version = ?
	`
	result, err := c.exec(ctx, query,
		q.Lat,
		q.Lng,
		q.CellKey,
		q.Hint,
		q.Question,
		q.CorrectAnswer,
		q.DiscoveryCount,
		q.IsActive,
		q.Version,
		q.UpdatedAt.UTC(),
		q.ID,
		expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update quest: %w", err)
	}
	return checkVersioned(ctx, c, result, "quests", q.ID)
}

func addDiscovery(ctx context.Context, c conn, questID string, d quest.DiscoveryRecord) error {
	_, err := c.exec(ctx, `
		INSERT INTO quest_discoveries (quest_id, team_id, discovery_rank, discovered_at)
		VALUES (?, ?, ?, ?)
	`, questID, d.TeamID, d.Rank, d.Timestamp.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: discovery rank %d of quest %s taken", repository.ErrConflict, d.Rank, questID)
		}
		if isForeignKeyViolation(err) {
			return repository.ErrNotFound
		}
		return fmt.Errorf("failed to add discovery: %w", err)
	}
	return nil
}

func listQuests(ctx context.Context, c conn, query string, args ...any) ([]quest.Quest, error) {
	rows, err := c.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list quests: %w", err)
	}
	defer rows.Close()

	quests := []quest.Quest{}
	for rows.Next() {
		q, err := scanQuest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan quest: %w", err)
		}
		quests = append(quests, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate quests: %w", err)
	}
	return quests, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanQuest(s scanner) (quest.Quest, error) {
	var q quest.Quest
	err := s.Scan(
		&q.ID,
		&q.Lat,
		&q.Lng,
		&q.CellKey,
		&q.Hint,
		&q.Question,
		&q.CorrectAnswer,
		&q.DiscoveryCount,
		&q.IsActive,
		&q.Version,
		&q.CreatedAt,
		&q.UpdatedAt,
	)
	return q, err
}

// checkVersioned turns a zero-row versioned UPDATE into ErrNotFound or ErrConflict.
func checkVersioned(ctx context.Context, c conn, result sql.Result, table, id string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected > 0 {
		return nil
	}

	var exists bool
	checkQuery := `SELECT EXISTS(SELECT 1 FROM ` + table + ` WHERE id = ?)`
	if err := c.queryRow(ctx, checkQuery, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check existence: %w", classify(err))
	}
	if !exists {
		return repository.ErrNotFound
	}
	return repository.ErrConflict
}

func paginate(query string, args []any, limit, offset int) (string, []any) {
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
		if offset > 0 {
			query += ` OFFSET ?`
			args = append(args, offset)
		}
	}
	return query, args
}
