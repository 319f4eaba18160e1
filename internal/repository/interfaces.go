package repository

import "context"

// Transactor runs fn inside a single storage transaction. It commits when
// fn returns nil and rolls back otherwise. Implementations report lost
// optimistic concurrency races as ErrConflict.
type Transactor[T any] interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx T) error) error
}

// TransactorFunc adapts a function to the Transactor interface.
type TransactorFunc[T any] func(ctx context.Context, fn func(ctx context.Context, tx T) error) error

// InTx calls f(ctx, fn).
func (f TransactorFunc[T]) InTx(ctx context.Context, fn func(ctx context.Context, tx T) error) error {
	return f(ctx, fn)
}
