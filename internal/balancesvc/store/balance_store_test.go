package store

import (
	"context"
	"testing"

	"github.com/avvvet/balance-services/internal/balancesvc/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBackend(t *testing.T) {
	cases := map[string]Backend{
		"":         BackendPostgres,
		"postgres": BackendPostgres,
		" Mongo ":  BackendMongo,
		"memory":   BackendMemory,
	}
	for in, want := range cases {
		got, err := ParseBackend(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseBackend("redis")
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

func TestMemoryBalanceStore_Contract(t *testing.T) {
	runTableContract(t, NewMemoryBalanceStore())
}

func TestMemoryBalanceStore_CanceledContext(t *testing.T) {
	s := NewMemoryBalanceStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Insert(ctx, models.NewStoredBalance(uuid.New(), decimal.Zero))
	assert.ErrorIs(t, err, context.Canceled)

	_, ok := s.Get(uuid.New())
	assert.False(t, ok)
}

// runTableContract exercises a fresh, empty BalanceTable.
func runTableContract(t *testing.T, table BalanceTable) {
	t.Helper()
	ctx := context.Background()

	all, err := table.SelectAll(ctx)
	require.NoError(t, err)
	require.Empty(t, all)

	a := models.NewStoredBalance(uuid.New(), decimal.RequireFromString("100.00"))
	_, ok, err := table.Select(ctx, a.User)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, table.Insert(ctx, a))

	got, ok, err := table.Select(ctx, a.User)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, a.User, got.User)
	assert.True(t, got.Balance.Equal(a.Balance))

	err = table.Insert(ctx, a)
	assert.ErrorIs(t, err, ErrDuplicateUser)

	// upsert overwrites an existing row and creates a missing one
	require.NoError(t, table.Upsert(ctx, a.WithBalance(decimal.RequireFromString("250.50"))))
	b := models.NewStoredBalance(uuid.New(), decimal.RequireFromString("500.00"))
	require.NoError(t, table.Upsert(ctx, b))
	c := models.NewStoredBalance(uuid.New(), decimal.RequireFromString("10.00"))
	require.NoError(t, table.Upsert(ctx, c))

	all, err = table.SelectAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	top, err := table.SelectTop(ctx, 10)
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, []uuid.UUID{b.User, a.User, c.User}, []uuid.UUID{top[0].User, top[1].User, top[2].User})
	assert.Equal(t, "250.50", top[1].Balance.StringFixed(2))

	top, err = table.SelectTop(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, top, 2)

	top, err = table.SelectTop(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, top)
}
