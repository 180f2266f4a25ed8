package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tokenpools/internal/model"
)

const defaultStateName = "default"

// Store provides Postgres persistence for registry snapshots and events.
type Store struct {
	pool *pgxpool.Pool
	name string
}

// NewStore opens a connection pool to dsn.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool, name: defaultStateName}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// PutEventBatch inserts events, skipping ids already stored.
func (s *Store) PutEventBatch(ctx context.Context, events []model.Event) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, ev := range events {
		id, err := uuid.Parse(ev.ID)
		if err != nil {
			return fmt.Errorf("event id %q: %w", ev.ID, err)
		}
		batch.Queue(`
			INSERT INTO events (id, name, pool_id, lock_id, account, amount, ts, height, fields)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO NOTHING
		`,
			id,
			ev.Name,
			optionalInt(ev.PoolID),
			optionalInt(ev.LockID),
			ev.Account,
			optionalText(ev.Amount),
			int64(ev.Timestamp),
			int64(ev.Height),
			ev.Fields,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range events {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// SaveSnapshot replaces the stored pools, contributions and locks with snap
// in one transaction.
func (s *Store) SaveSnapshot(ctx context.Context, snap model.Snapshot) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM contributions`)
	batch.Queue(`DELETE FROM pools`)
	batch.Queue(`DELETE FROM locks`)
	for _, p := range snap.Pools {
		batch.Queue(`
			INSERT INTO pools (id, name, variant, deposit_token, reward_token, total_raised, finalized, record, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		`,
			int64(p.ID),
			p.Name,
			p.Variant,
			p.DepositToken,
			p.RewardToken,
			p.TotalRaised,
			p.Finalized,
			p,
		)
	}
	position := make(map[uint64]int)
	for _, c := range snap.Contributions {
		batch.Queue(`
			INSERT INTO contributions (pool_id, account, position, amount, record, updated_at)
			VALUES ($1, $2, $3, $4, $5, now())
		`,
			int64(c.PoolID),
			c.Account,
			position[c.PoolID],
			c.Amount,
			c,
		)
		position[c.PoolID]++
	}
	for _, l := range snap.Locks {
		batch.Queue(`
			INSERT INTO locks (id, kind, token, record, updated_at)
			VALUES ($1, $2, $3, $4, now())
		`,
			int64(l.ID),
			l.Kind,
			l.Token,
			l,
		)
	}
	batch.Queue(`
		INSERT INTO registry_state (name, snapshot_ts, height, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (name) DO UPDATE
		SET snapshot_ts = EXCLUDED.snapshot_ts, height = EXCLUDED.height, updated_at = now()
	`, s.name, int64(snap.Timestamp), int64(snap.Height))

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("snapshot statement %d: %w", i, err)
		}
	}
	if err := br.Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// LoadSnapshot reads the stored snapshot. ok is false if none was saved.
func (s *Store) LoadSnapshot(ctx context.Context) (model.Snapshot, bool, error) {
	var snap model.Snapshot
	var ts, height int64
	row := s.pool.QueryRow(ctx, `SELECT snapshot_ts, height FROM registry_state WHERE name=$1`, s.name)
	if err := row.Scan(&ts, &height); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Snapshot{}, false, nil
		}
		return model.Snapshot{}, false, err
	}
	snap.Timestamp = uint64(ts)
	snap.Height = uint64(height)

	var err error
	if snap.Pools, err = queryRecords[model.Pool](ctx, s.pool, `SELECT record FROM pools ORDER BY id`); err != nil {
		return model.Snapshot{}, false, fmt.Errorf("load pools: %w", err)
	}
	if snap.Contributions, err = queryRecords[model.Contribution](ctx, s.pool, `SELECT record FROM contributions ORDER BY pool_id, position`); err != nil {
		return model.Snapshot{}, false, fmt.Errorf("load contributions: %w", err)
	}
	if snap.Locks, err = queryRecords[model.Lock](ctx, s.pool, `SELECT record FROM locks ORDER BY id`); err != nil {
		return model.Snapshot{}, false, fmt.Errorf("load locks: %w", err)
	}
	return snap, true, nil
}

func queryRecords[T any](ctx context.Context, pool *pgxpool.Pool, sql string) ([]T, error) {
	rows, err := pool.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (T, error) {
		var rec T
		err := row.Scan(&rec)
		return rec, err
	})
}

func optionalInt(v *uint64) *int64 {
	if v == nil {
		return nil
	}
	n := int64(*v)
	return &n
}

func optionalText(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
