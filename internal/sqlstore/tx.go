package sqlstore

import (
	"context"
	"fmt"

	"github.com/rpggio/geoquest/internal/domain/activity"
	"github.com/rpggio/geoquest/internal/domain/quest"
	"github.com/rpggio/geoquest/internal/domain/team"
)

// Tx is one database transaction over quests, teams and the score log.
type Tx struct {
	c conn
}

// InTx runs fn in a transaction. It commits when fn returns nil and rolls
// back otherwise. Lock contention surfaces as repository.ErrConflict.
func (db *DB) InTx(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error {
	sqlTx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", classify(err))
	}

	if err := fn(ctx, &Tx{c: conn{q: sqlTx, dialect: db.dialect}}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", classify(err))
	}
	return nil
}

func (tx *Tx) GetQuest(ctx context.Context, id string) (*quest.Quest, error) {
	return getQuest(ctx, tx.c, id)
}

func (tx *Tx) UpdateQuest(ctx context.Context, q *quest.Quest, expectedVersion int64) error {
	return updateQuest(ctx, tx.c, q, expectedVersion)
}

func (tx *Tx) AddDiscovery(ctx context.Context, questID string, rec quest.DiscoveryRecord) error {
	return addDiscovery(ctx, tx.c, questID, rec)
}

func (tx *Tx) GetTeam(ctx context.Context, id string) (*team.Team, error) {
	return getTeam(ctx, tx.c, id)
}

func (tx *Tx) UpdateTeam(ctx context.Context, t *team.Team, expectedVersion int64) error {
	return updateTeam(ctx, tx.c, t, expectedVersion)
}

func (tx *Tx) AddSolve(ctx context.Context, teamID string, rec team.SolvedRecord) error {
	return addSolve(ctx, tx.c, teamID, rec)
}

func (tx *Tx) LogScore(ctx context.Context, entry *activity.ScoreEntry) error {
	return logScore(ctx, tx.c, entry)
}

// Transactor exposes DB transactions as the transaction interface a
// service declares.
type Transactor[T any] struct {
	db   *DB
	bind func(*Tx) T
}

// NewTransactor binds db to a service's transaction interface, e.g.
//
//	sqlstore.NewTransactor(db, func(tx *sqlstore.Tx) ledger.Tx { return tx })
func NewTransactor[T any](db *DB, bind func(*Tx) T) Transactor[T] {
	return Transactor[T]{db: db, bind: bind}
}

// InTx implements repository.Transactor.
func (t Transactor[T]) InTx(ctx context.Context, fn func(ctx context.Context, tx T) error) error {
	return t.db.InTx(ctx, func(ctx context.Context, tx *Tx) error {
		return fn(ctx, t.bind(tx))
	})
}
