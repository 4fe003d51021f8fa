package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/avvvet/balance-services/internal/balancesvc/models"
	"github.com/avvvet/balance-services/internal/balancesvc/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// TopLimit is the size of the balance leaderboard.
const TopLimit = 10

var (
	ErrNotInitialized  = errors.New("balance service not initialized")
	ErrIdentityChanged = errors.New("balance transform changed the user")
)

// BalanceService serves player balances from memory and writes every change
// through to the balance table before the cache sees it.
type BalanceService struct {
	table        store.BalanceTable
	startBalance decimal.Decimal
	cache        *balanceCache
	ready        atomic.Bool
}

// NewBalanceService builds a service over table. startBalance is what a
// player holds the first time they are seen; cacheWarnSize is the entry
// count at which the cache logs a growth warning, 0 disables it.
func NewBalanceService(table store.BalanceTable, startBalance decimal.Decimal, cacheWarnSize int) *BalanceService {
	return &BalanceService{
		table:        table,
		startBalance: startBalance,
		cache:        newBalanceCache(cacheWarnSize),
	}
}

// Initialize loads every persisted balance into the cache. It must complete
// before any other call.
func (s *BalanceService) Initialize(ctx context.Context) error {
	rows, err := s.table.SelectAll(ctx)
	if err != nil {
		return fmt.Errorf("load balances: %w", err)
	}

	for _, b := range rows {
		sh := s.cache.shardFor(b.User)
		sh.mu.Lock()
		s.cache.put(sh, b)
		sh.mu.Unlock()
	}

	s.ready.Store(true)
	log.Infof("balance cache loaded with %d players", s.cache.len())
	return nil
}

func (s *BalanceService) StartBalance() decimal.Decimal {
	return s.startBalance
}

// Len reports how many players are cached.
func (s *BalanceService) Len() int {
	return s.cache.len()
}

// GetUser returns the balance of id, creating it with the start balance the
// first time id is seen.
func (s *BalanceService) GetUser(ctx context.Context, id uuid.UUID) (models.StoredBalance, error) {
	if !s.ready.Load() {
		return models.StoredBalance{}, ErrNotInitialized
	}

	sh := s.cache.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	return s.getLocked(ctx, sh, id)
}

func (s *BalanceService) getLocked(ctx context.Context, sh *cacheShard, id uuid.UUID) (models.StoredBalance, error) {
	if b, ok := sh.entries[id]; ok {
		return b, nil
	}

	b := models.NewStoredBalance(id, s.startBalance)
	err := s.table.Insert(ctx, b)
	if errors.Is(err, store.ErrDuplicateUser) {
		// the row was written outside this cache, or an earlier insert
		// committed after reporting an error
		return s.loadLocked(ctx, sh, id)
	}
	if err != nil {
		return models.StoredBalance{}, fmt.Errorf("create balance for %s: %w", id, err)
	}

	s.cache.put(sh, b)
	log.Debugf("created balance for %s at %s", id, b.Balance.StringFixed(2))
	return b, nil
}

func (s *BalanceService) loadLocked(ctx context.Context, sh *cacheShard, id uuid.UUID) (models.StoredBalance, error) {
	b, ok, err := s.table.Select(ctx, id)
	if err != nil {
		return models.StoredBalance{}, fmt.Errorf("load balance for %s: %w", id, err)
	}
	if !ok {
		return models.StoredBalance{}, fmt.Errorf("load balance for %s: row reported as duplicate but not found", id)
	}

	s.cache.put(sh, b)
	log.Warnf("balance for %s was missing from cache, loaded %s from storage", id, b.Balance.StringFixed(2))
	return b, nil
}

// UpdateUser replaces the balance of b.User. The cache only changes once the
// table write has succeeded.
func (s *BalanceService) UpdateUser(ctx context.Context, b models.StoredBalance) error {
	if !s.ready.Load() {
		return ErrNotInitialized
	}

	sh := s.cache.shardFor(b.User)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	return s.updateLocked(ctx, sh, b)
}

func (s *BalanceService) updateLocked(ctx context.Context, sh *cacheShard, b models.StoredBalance) error {
	if err := s.table.Upsert(ctx, b); err != nil {
		return fmt.Errorf("update balance for %s: %w", b.User, err)
	}

	s.cache.put(sh, b)
	return nil
}

// GetBalanceTop reads the leaderboard straight from the table, so it shows
// persisted balances only.
func (s *BalanceService) GetBalanceTop(ctx context.Context) ([]models.StoredBalance, error) {
	if !s.ready.Load() {
		return nil, ErrNotInitialized
	}

	top, err := s.table.SelectTop(ctx, TopLimit)
	if err != nil {
		return nil, fmt.Errorf("balance top: %w", err)
	}
	return top, nil
}

// ModifyUser applies fn to the current balance of id and stores the result.
// Calls for the same player run one at a time.
func (s *BalanceService) ModifyUser(ctx context.Context, id uuid.UUID, fn func(models.StoredBalance) models.StoredBalance) error {
	if !s.ready.Load() {
		return ErrNotInitialized
	}

	sh := s.cache.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	current, err := s.getLocked(ctx, sh, id)
	if err != nil {
		return err
	}

	next := fn(current)
	if next.User != id {
		return fmt.Errorf("%w: %s became %s", ErrIdentityChanged, id, next.User)
	}

	return s.updateLocked(ctx, sh, next)
}
