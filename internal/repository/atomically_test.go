package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rpggio/geoquest/internal/repository"
	"github.com/stretchr/testify/require"
)

type fakeTx struct{ attempt int }

func countingTransactor(calls *int) repository.Transactor[*fakeTx] {
	return repository.TransactorFunc[*fakeTx](func(ctx context.Context, fn func(context.Context, *fakeTx) error) error {
		*calls++
		return fn(ctx, &fakeTx{attempt: *calls})
	})
}

var fastPolicy = repository.RetryPolicy{MaxRetries: 3, BaseBackoff: time.Microsecond, MaxBackoff: time.Millisecond}

func TestAtomically_RetriesConflictFromScratch(t *testing.T) {
	calls := 0
	var seen []int
	err := repository.Atomically(context.Background(), countingTransactor(&calls), fastPolicy,
		func(ctx context.Context, tx *fakeTx) error {
			seen = append(seen, tx.attempt)
			if tx.attempt < 3 {
				return repository.ErrConflict
			}
			return nil
		})
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3}, seen)
}

func TestAtomically_ExhaustsRetries(t *testing.T) {
	calls := 0
	err := repository.Atomically(context.Background(), countingTransactor(&calls), fastPolicy,
		func(ctx context.Context, tx *fakeTx) error {
			return repository.ErrConflict
		})
	require.ErrorIs(t, err, repository.ErrRetryExhausted)
	require.ErrorIs(t, err, repository.ErrConflict)
	require.Equal(t, fastPolicy.MaxRetries+1, calls)
}

func TestAtomically_OtherErrorsAbort(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	err := repository.Atomically(context.Background(), countingTransactor(&calls), fastPolicy,
		func(ctx context.Context, tx *fakeTx) error {
			return boom
		})
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, repository.ErrRetryExhausted)
	require.Equal(t, 1, calls)
}

func TestAtomically_StopsOnCancelledContext(t *testing.T) {
	calls := 0
	ctx, cancel := context.WithCancel(context.Background())
	policy := repository.RetryPolicy{MaxRetries: 5, BaseBackoff: time.Hour, MaxBackoff: time.Hour}
	err := repository.Atomically(ctx, countingTransactor(&calls), policy,
		func(ctx context.Context, tx *fakeTx) error {
			cancel()
			return repository.ErrConflict
		})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, calls)
}
