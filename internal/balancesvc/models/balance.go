package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StoredBalance pairs a player identity with its balance. It is a value:
// changing a balance means building a new StoredBalance.
type StoredBalance struct {
	User    uuid.UUID       `json:"user_id"`
	Balance decimal.Decimal `json:"balance"`
}

func NewStoredBalance(user uuid.UUID, balance decimal.Decimal) StoredBalance {
	return StoredBalance{User: user, Balance: balance}
}

// WithBalance returns a copy of b holding balance.
func (b StoredBalance) WithBalance(balance decimal.Decimal) StoredBalance {
	return StoredBalance{User: b.User, Balance: balance}
}

// Add returns a copy of b with amount added to its balance.
func (b StoredBalance) Add(amount decimal.Decimal) StoredBalance {
	return b.WithBalance(b.Balance.Add(amount))
}
