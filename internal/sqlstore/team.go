package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rpggio/geoquest/internal/domain/team"
	"github.com/rpggio/geoquest/internal/repository"
)

const teamColumns = `id, name, members, total_score, wrong_answer_count,
	assignment_quest_id, assignment_hint, assignment_lat, assignment_lng, assigned_at,
	last_lat, last_lng, last_located_at, is_active, version, created_at, updated_at`

// TeamRepository implements team persistence.
type TeamRepository struct {
	db *DB
}

// NewTeamRepository creates a new TeamRepository
func NewTeamRepository(db *DB) *TeamRepository {
	return &TeamRepository{db: db}
}

// Create inserts a team.
func (r *TeamRepository) Create(ctx context.Context, t *team.Team) error {
	args, err := teamArgs(t)
	if err != nil {
		return err
	}
	query := `INSERT INTO teams (` + teamColumns + `) VALUES (` + placeholders(17) + `)`
	if _, err := r.db.conn().exec(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("failed to create team: %w", err)
	}
	return nil
}

// Get loads a team with its solved records.
func (r *TeamRepository) Get(ctx context.Context, id string) (*team.Team, error) {
	return getTeam(ctx, r.db.conn(), id)
}

// Update writes team fields if the stored version still equals expectedVersion.
func (r *TeamRepository) Update(ctx context.Context, t *team.Team, expectedVersion int64) error {
	return updateTeam(ctx, r.db.conn(), t, expectedVersion)
}

// List returns teams ordered by registration.
func (r *TeamRepository) List(ctx context.Context, opts team.ListOptions) ([]team.Team, error) {
	query := `SELECT ` + teamColumns + ` FROM teams`
	var args []any
	if opts.ActiveOnly {
		query += ` WHERE is_active = ?`
		args = append(args, true)
	}
	query += ` ORDER BY created_at, id`
	query, args = paginate(query, args, opts.Limit, opts.Offset)
	return listTeams(ctx, r.db.conn(), query, args...)
}

// TopByScore returns the n highest scoring active teams with their solved
// records. Ties go to the earlier registration, then the lower id.
func (r *TeamRepository) TopByScore(ctx context.Context, n int) ([]team.Team, error) {
	c := r.db.conn()
	query := `SELECT ` + teamColumns + ` FROM teams WHERE is_active = ?
		ORDER BY total_score DESC, created_at ASC, id ASC`
	query, args := paginate(query, []any{true}, n, 0)
	teams, err := listTeams(ctx, c, query, args...)
	if err != nil {
		return nil, err
	}
	if len(teams) == 0 {
		return teams, nil
	}

	ids := make([]any, len(teams))
	index := make(map[string]int, len(teams))
	for i, t := range teams {
		ids[i] = t.ID
		index[t.ID] = i
	}
	solves, err := listSolves(ctx, c, `team_id IN (`+placeholders(len(ids))+`)`, ids...)
	if err != nil {
		return nil, err
	}
	for _, s := range solves {
		i := index[s.teamID]
		teams[i].SolvedQuests = append(teams[i].SolvedQuests, s.rec)
	}
	return teams, nil
}

// TotalScore reads a team's stored score.
func (r *TeamRepository) TotalScore(ctx context.Context, teamID string) (int, error) {
	var total int
	err := r.db.conn().queryRow(ctx, `SELECT total_score FROM teams WHERE id = ?`, teamID).Scan(&total)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, repository.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read total score: %w", err)
	}
	return total, nil
}

func getTeam(ctx context.Context, c conn, id string) (*team.Team, error) {
	row := c.queryRow(ctx, `SELECT `+teamColumns+` FROM teams WHERE id = ?`, id)
	t, err := scanTeam(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get team: %w", classify(err))
	}

	solves, err := listSolves(ctx, c, `team_id = ?`, id)
	if err != nil {
		return nil, err
	}
	for _, s := range solves {
		t.SolvedQuests = append(t.SolvedQuests, s.rec)
	}
	return &t, nil
}

func updateTeam(ctx context.Context, c conn, t *team.Team, expectedVersion int64) error {
	args, err := teamArgs(t)
	if err != nil {
		return err
	}
	query := `
		UPDATE teams
		SET name = ?, members = ?, total_score = ?, wrong_answer_count = ?,
		    assignment_quest_id = ?, assignment_hint = ?, assignment_lat = ?, assignment_lng = ?, assigned_at = ?,
		    last_lat = ?, last_lng = ?, last_located_at = ?,
		    is_active = ?, version = ?, updated_at = ?
		WHERE id = ? AND version = ?
	`
	// teamArgs order: id first, created_at second to last.
	set := append([]any{}, args[1:15]...)
	set = append(set, args[16], t.ID, expectedVersion)

	result, err := c.exec(ctx, query, set...)
	if err != nil {
		return fmt.Errorf("failed to update team: %w", err)
	}
	return checkVersioned(ctx, c, result, "teams", t.ID)
}

func addSolve(ctx context.Context, c conn, teamID string, s team.SolvedRecord) error {
	_, err := c.exec(ctx, `
		INSERT INTO team_solves (team_id, quest_id, discovery_rank, points_earned, solved_at)
		VALUES (?, ?, ?, ?, ?)
	`, teamID, s.QuestID, s.Rank, s.PointsEarned, s.Timestamp.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: team %s already holds quest %s", repository.ErrConflict, teamID, s.QuestID)
		}
		if isForeignKeyViolation(err) {
			return repository.ErrNotFound
		}
		return fmt.Errorf("failed to add solve: %w", err)
	}
	return nil
}

type teamSolve struct {
	teamID string
	rec    team.SolvedRecord
}

func listSolves(ctx context.Context, c conn, where string, args ...any) ([]teamSolve, error) {
	rows, err := c.query(ctx, `
		SELECT team_id, quest_id, discovery_rank, points_earned, solved_at
		FROM team_solves
		WHERE `+where+`
		ORDER BY solved_at, quest_id
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list solves: %w", err)
	}
	defer rows.Close()

	var solves []teamSolve
	for rows.Next() {
		var s teamSolve
		if err := rows.Scan(&s.teamID, &s.rec.QuestID, &s.rec.Rank, &s.rec.PointsEarned, &s.rec.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan solve: %w", err)
		}
		solves = append(solves, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate solves: %w", err)
	}
	return solves, nil
}

func listTeams(ctx context.Context, c conn, query string, args ...any) ([]team.Team, error) {
	rows, err := c.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	defer rows.Close()

	teams := []team.Team{}
	for rows.Next() {
		t, err := scanTeam(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan team: %w", err)
		}
		teams = append(teams, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate teams: %w", err)
	}
	return teams, nil
}

// teamArgs returns values in teamColumns order.
func teamArgs(t *team.Team) ([]any, error) {
	members := t.Members
	if members == nil {
		members = []string{}
	}
	membersJSON, err := json.Marshal(members)
	if err != nil {
		return nil, fmt.Errorf("failed to encode members: %w", err)
	}

	var (
		assignQuest, assignHint sql.NullString
		assignLat, assignLng    sql.NullFloat64
		assignedAt              sql.NullTime
		lastLat, lastLng        sql.NullFloat64
		lastAt                  sql.NullTime
	)
	if a := t.CurrentAssignment; a != nil {
		assignQuest = sql.NullString{String: a.QuestID, Valid: true}
		assignHint = sql.NullString{String: a.Hint, Valid: true}
		assignLat = sql.NullFloat64{Float64: a.Lat, Valid: true}
		assignLng = sql.NullFloat64{Float64: a.Lng, Valid: true}
		assignedAt = sql.NullTime{Time: a.AssignedAt.UTC(), Valid: true}
	}
	if l := t.LastLocation; l != nil {
		lastLat = sql.NullFloat64{Float64: l.Lat, Valid: true}
		lastLng = sql.NullFloat64{Float64: l.Lng, Valid: true}
		lastAt = sql.NullTime{Time: l.ReportedAt.UTC(), Valid: true}
	}

	return []any{
		t.ID,
		t.Name,
		string(membersJSON),
		t.TotalScore,
		t.WrongAnswerCount,
		assignQuest,
		assignHint,
		assignLat,
		assignLng,
		assignedAt,
		lastLat,
		lastLng,
		lastAt,
		t.IsActive,
		t.Version,
		t.CreatedAt.UTC(),
		t.UpdatedAt.UTC(),
	}, nil
}

func scanTeam(s scanner) (team.Team, error) {
	var (
		t                       team.Team
		members                 string
		assignQuest, assignHint sql.NullString
		assignLat, assignLng    sql.NullFloat64
		assignedAt              sql.NullTime
		lastLat, lastLng        sql.NullFloat64
		lastAt                  sql.NullTime
	)
	err := s.Scan(
		&t.ID,
		&t.Name,
		&members,
		&t.TotalScore,
		&t.WrongAnswerCount,
		&assignQuest,
		&assignHint,
		&assignLat,
		&assignLng,
		&assignedAt,
		&lastLat,
		&lastLng,
		&lastAt,
		&t.IsActive,
		&t.Version,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return t, err
	}

	if err := json.Unmarshal([]byte(members), &t.Members); err != nil {
		return t, fmt.Errorf("failed to decode members: %w", err)
	}
	if assignQuest.Valid {
		t.CurrentAssignment = &team.Assignment{
			QuestID:    assignQuest.String,
			Hint:       assignHint.String,
			Lat:        assignLat.Float64,
			Lng:        assignLng.Float64,
			AssignedAt: assignedAt.Time,
		}
	}
	if lastLat.Valid && lastLng.Valid {
		t.LastLocation = &team.Location{Lat: lastLat.Float64, Lng: lastLng.Float64, ReportedAt: lastAt.Time}
	}
	return t, nil
}
