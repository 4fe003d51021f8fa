package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/avvvet/balance-services/internal/balancesvc/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

const (
	createBalanceTable = `
        CREATE TABLE IF NOT EXISTS player_balances (
            "user"  UUID PRIMARY KEY,
            balance NUMERIC NOT NULL
        )
    `
	createBalanceIndex = `
        CREATE INDEX IF NOT EXISTS player_balances_balance_idx
        ON player_balances (balance DESC, "user")
    `
)

// ownerLockKey is the advisory lock id held by the process serving the cache.
const ownerLockKey int64 = 0x62616c616e6365

type PostgresBalanceStore struct {
	db *pgxpool.Pool
}

func NewPostgresBalanceStore(db *pgxpool.Pool) *PostgresBalanceStore {
	return &PostgresBalanceStore{db: db}
}

// EnsureSchema creates the balance table and its ranking index if missing.
func (s *PostgresBalanceStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range []string{createBalanceTable, createBalanceIndex} {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure balance schema: %w", err)
		}
	}
	return nil
}

// AcquireOwner takes a session advisory lock so a second process pointed at
// the same table refuses to start. The lock lives until release is called or
// the connection drops.
func (s *PostgresBalanceStore) AcquireOwner(ctx context.Context) (release func(), err error) {
	conn, err := s.db.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire owner connection: %w", err)
	}

	var locked bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, ownerLockKey).Scan(&locked); err != nil {
		conn.Release()
		return nil, fmt.Errorf("take owner lock: %w", err)
	}
	if !locked {
		conn.Release()
		return nil, ErrOwnerTaken
	}

	return func() {
		if _, err := conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, ownerLockKey); err != nil {
			log.Warnf("unable to release balance owner lock: %s", err)
		}
		conn.Release()
	}, nil
}

func (s *PostgresBalanceStore) SelectAll(ctx context.Context) ([]models.StoredBalance, error) {
	var balances []models.StoredBalance
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		var err error
		balances, err = queryBalances(ctx, tx, `SELECT "user", balance FROM player_balances`)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("select all balances: %w", err)
	}
	return balances, nil
}

func (s *PostgresBalanceStore) Select(ctx context.Context, user uuid.UUID) (models.StoredBalance, bool, error) {
	var balances []models.StoredBalance
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		var err error
		balances, err = queryBalances(ctx, tx, `
            SELECT "user", balance
            FROM player_balances
            WHERE "user" = $1
        `, user)
		return err
	})
	if err != nil {
		return models.StoredBalance{}, false, fmt.Errorf("select balance %s: %w", user, err)
	}
	if len(balances) == 0 {
		return models.StoredBalance{}, false, nil
	}
	return balances[0], true, nil
}

func (s *PostgresBalanceStore) Insert(ctx context.Context, b models.StoredBalance) error {
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
            INSERT INTO player_balances ("user", balance)
            VALUES ($1, $2)
        `, b.User, b.Balance)
		return err
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: %s", ErrDuplicateUser, b.User)
		}
		return fmt.Errorf("insert balance %s: %w", b.User, err)
	}
	return nil
}

func (s *PostgresBalanceStore) Upsert(ctx context.Context, b models.StoredBalance) error {
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
            INSERT INTO player_balances ("user", balance)
            VALUES ($1, $2)
            ON CONFLICT ("user") DO UPDATE SET balance = EXCLUDED.balance
        `, b.User, b.Balance)
		return err
	})
	if err != nil {
		return fmt.Errorf("update balance %s: %w", b.User, err)
	}
	return nil
}

func (s *PostgresBalanceStore) SelectTop(ctx context.Context, n int) ([]models.StoredBalance, error) {
	if n <= 0 {
		return nil, nil
	}

	var balances []models.StoredBalance
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		var err error
		balances, err = queryBalances(ctx, tx, `
            SELECT "user", balance
            FROM player_balances
            ORDER BY balance DESC, "user" ASC
            LIMIT $1
        `, n)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("select top balances: %w", err)
	}
	return balances, nil
}

func queryBalances(ctx context.Context, tx pgx.Tx, query string, args ...any) ([]models.StoredBalance, error) {
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var balances []models.StoredBalance
	for rows.Next() {
		var b models.StoredBalance
		if err := rows.Scan(&b.User, &b.Balance); err != nil {
			return nil, err
		}
		balances = append(balances, b)
	}

	return balances, rows.Err()
}
