package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/avvvet/balance-services/internal/balancesvc/models"
	"github.com/google/uuid"
)

var (
	ErrDuplicateUser  = errors.New("balance row already exists")
	ErrUnknownBackend = errors.New("unknown balance backend")
	ErrOwnerTaken     = errors.New("balance table is owned by another instance")
)

// BalanceTable is the persistent side of the balance cache: one row per
// player, no history. Every call is its own unit of work and has committed
// (or failed) by the time it returns.
type BalanceTable interface {
	SelectAll(ctx context.Context) ([]models.StoredBalance, error)
	// Select returns the row for user; ok is false when there is none.
	Select(ctx context.Context, user uuid.UUID) (b models.StoredBalance, ok bool, err error)
	Insert(ctx context.Context, b models.StoredBalance) error
	Upsert(ctx context.Context, b models.StoredBalance) error
	// SelectTop returns at most n rows ordered by balance descending, ties
	// broken by user ascending.
	SelectTop(ctx context.Context, n int) ([]models.StoredBalance, error)
}

type Backend string

const (
	BackendPostgres Backend = "postgres"
	BackendMongo    Backend = "mongo"
	BackendMemory   Backend = "memory"
)

func ParseBackend(s string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(s))); b {
	case BackendPostgres, BackendMongo, BackendMemory:
		return b, nil
	case "":
		return BackendPostgres, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownBackend, s)
	}
}
