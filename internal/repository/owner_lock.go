package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/semaphore"

	"github.com/cloo-solutions/docrag/internal/domain"
)

const (
	lockPollInitialInterval = 50 * time.Millisecond
	lockPollMaxInterval     = time.Second
)

// AdvisoryOwnerLocker serializes ingestions of one owner across processes
// with a session-level advisory lock held on a dedicated pool connection.
// It uses a different lock class than ChunkRepository.LockOwner, so the
// holder can still take the transaction-scoped lock while persisting.
//
// A waiter never sits on a pool connection: it polls pg_try_advisory_lock
// and gives the connection back between attempts. Lock connections are
// also capped below the pool size, so a holder always finds a free
// connection for its persist transaction.
type AdvisoryOwnerLocker struct {
	pool    *pgxpool.Pool
	holders *semaphore.Weighted
}

// NewAdvisoryOwnerLocker lets at most half of the pool's connections hold
// owner locks at once.
func NewAdvisoryOwnerLocker(pool *pgxpool.Pool) *AdvisoryOwnerLocker {
	return NewAdvisoryOwnerLockerWithLimit(pool, int64(pool.Config().MaxConns)/2)
}

// NewAdvisoryOwnerLockerWithLimit caps concurrent lock holders at
// maxHolders, which must stay below the pool's MaxConns.
func NewAdvisoryOwnerLockerWithLimit(pool *pgxpool.Pool, maxHolders int64) *AdvisoryOwnerLocker {
	if maxHolders < 1 {
		maxHolders = 1
	}
	return &AdvisoryOwnerLocker{pool: pool, holders: semaphore.NewWeighted(maxHolders)}
}

func (l *AdvisoryOwnerLocker) Lock(ctx context.Context, owner domain.Owner) (func(), error) {
	key := owner.String()

	poll := backoff.NewExponentialBackOff()
	poll.InitialInterval = lockPollInitialInterval
	poll.MaxInterval = lockPollMaxInterval
	poll.MaxElapsedTime = 0
	poll.Reset()

	for {
		conn, err := l.tryLock(ctx, key)
		if err != nil {
			return nil, err
		}
		if conn != nil {
			return l.unlockFunc(conn, key), nil
		}

		timer := time.NewTimer(poll.NextBackOff())
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// tryLock returns a connection holding owner's lock, or nil when another
// session holds it. A nil connection keeps no holder slot.
func (l *AdvisoryOwnerLocker) tryLock(ctx context.Context, key string) (*pgxpool.Conn, error) {
	if err := l.holders.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		l.holders.Release(1)
		return nil, err
	}

	var locked bool
	err = conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1, hashtext($2))`, lockClassIngestion, key).Scan(&locked)
	if err != nil || !locked {
		conn.Release()
		l.holders.Release(1)
		return nil, err
	}
	return conn, nil
}

func (l *AdvisoryOwnerLocker) unlockFunc(conn *pgxpool.Conn, key string) func() {
	return func() {
		// ctx may already be cancelled; the unlock must still reach the server.
		if _, err := conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1, hashtext($2))`, lockClassIngestion, key); err != nil {
			slog.Warn("failed to release owner lock", slog.String("owner", key), slog.Any("error", err))
			// a connection that may still hold the lock must not go back to the pool
			_ = conn.Conn().Close(context.Background())
		}
		conn.Release()
		l.holders.Release(1)
	}
}
