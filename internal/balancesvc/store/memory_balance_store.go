package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/avvvet/balance-services/internal/balancesvc/models"
	"github.com/google/uuid"
)

// MemoryBalanceStore keeps rows in process memory. It backs local runs
// without a database and the service tests.
type MemoryBalanceStore struct {
	mu   sync.Mutex
	rows map[uuid.UUID]models.StoredBalance
}

func NewMemoryBalanceStore(seed ...models.StoredBalance) *MemoryBalanceStore {
	s := &MemoryBalanceStore{rows: make(map[uuid.UUID]models.StoredBalance, len(seed))}
	for _, b := range seed {
		s.rows[b.User] = b
	}
	return s
}

func (s *MemoryBalanceStore) SelectAll(ctx context.Context) ([]models.StoredBalance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	balances := make([]models.StoredBalance, 0, len(s.rows))
	for _, b := range s.rows {
		balances = append(balances, b)
	}
	return balances, nil
}

func (s *MemoryBalanceStore) Select(ctx context.Context, user uuid.UUID) (models.StoredBalance, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.StoredBalance{}, false, err
	}
	b, ok := s.Get(user)
	return b, ok, nil
}

func (s *MemoryBalanceStore) Insert(ctx context.Context, b models.StoredBalance) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rows[b.User]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateUser, b.User)
	}
	s.rows[b.User] = b
	return nil
}

func (s *MemoryBalanceStore) Upsert(ctx context.Context, b models.StoredBalance) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rows[b.User] = b
	return nil
}

func (s *MemoryBalanceStore) SelectTop(ctx context.Context, n int) ([]models.StoredBalance, error) {
	all, err := s.SelectAll(ctx)
	if err != nil {
		return nil, err
	}

	sort.Slice(all, func(i, j int) bool {
		if c := all[i].Balance.Cmp(all[j].Balance); c != 0 {
			return c > 0
		}
		return all[i].User.String() < all[j].User.String()
	})

	if n < 0 {
		n = 0
	}
	if len(all) > n {
		all = all[:n]
	}
	return all, nil
}

// Get returns the persisted row for id, if any.
func (s *MemoryBalanceStore) Get(id uuid.UUID) (models.StoredBalance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.rows[id]
	return b, ok
}
