package service

import (
	"github.com/shopspring/decimal"

	"adsledger/internal/ledger"
)

// DefaultMaxAmount caps a single credit, grant or withdrawal.
var DefaultMaxAmount = decimal.New(1_000_000, 0)

// Raw exponent bounds for a client amount. Checked before any rescaling so
// 1e5000000 never becomes a five million digit integer.
const (
	maxAmountScale  = 8
	maxAmountDigits = 15
)

// Gate holds the checks every account-facing operation passes first.
type Gate struct {
	AdminID string
	// MaxAmount is the largest amount one request may move. Zero means
	// DefaultMaxAmount.
	MaxAmount decimal.Decimal
}

// Open fails with ErrMaintenance while maintenance mode is on, unless userID
// is the administrator.
func (g Gate) Open(s *ledger.Snapshot, userID string) error {
	if s.Settings.MaintenanceMode && (g.AdminID == "" || userID != g.AdminID) {
		return ErrMaintenance
	}
	return nil
}

// Active fails with ErrForbidden for banned accounts.
func (g Gate) Active(acct *ledger.Account) error {
	if acct.IsBanned {
		return ErrForbidden
	}
	return nil
}

// Amount bounds a client-supplied amount and returns it rounded to cents.
// Sign rules are left to the caller.
func (g Gate) Amount(amount decimal.Decimal) (decimal.Decimal, error) {
	exp := amount.Exponent()
	if exp < -maxAmountScale || exp > maxAmountDigits {
		return decimal.Zero, ErrInvalidAmount
	}
	limit := g.MaxAmount
	if !limit.IsPositive() {
		limit = DefaultMaxAmount
	}
	if amount.Abs().GreaterThan(limit) {
		return decimal.Zero, ErrInvalidAmount
	}
	return ledger.Round(amount), nil
}
