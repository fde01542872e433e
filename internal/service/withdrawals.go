package service

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"adsledger/internal/ledger"
	"adsledger/internal/metrics"
)

// Destination is the payout target as entered by the user.
type Destination struct {
	Account string
	Method  string
}

type Withdrawals struct {
	ledger *ledger.Repository
	gate   Gate
}

func NewWithdrawals(repo *ledger.Repository, gate Gate) *Withdrawals {
	return &Withdrawals{ledger: repo, gate: gate}
}

// Submit holds amount from the user's balance and records a pending request
// in the same write.
func (w *Withdrawals) Submit(ctx context.Context, userID string, amount decimal.Decimal, dest Destination) (ledger.Withdrawal, decimal.Decimal, error) {
	amount, err := w.gate.Amount(amount)
	if err != nil || !amount.IsPositive() {
		return ledger.Withdrawal{}, decimal.Zero, ErrInvalidAmount
	}

	var (
		out     ledger.Withdrawal
		balance decimal.Decimal
	)
	_, err = w.ledger.Update(ctx, func(s *ledger.Snapshot) error {
		if err := w.gate.Open(s, userID); err != nil {
			return err
		}
		acct, ok := s.Account(userID)
		if !ok {
			return ledger.ErrNotFound
		}
		if err := w.gate.Active(acct); err != nil {
			return err
		}
		if acct.Balance.LessThan(amount) {
			return ErrInsufficientFunds
		}

		now := w.ledger.Now()
		acct.Balance = ledger.Round(acct.Balance.Sub(amount))
		out = ledger.Withdrawal{
			ID:        s.NextID(now),
			UserID:    userID,
			Amount:    amount,
			Account:   strings.TrimSpace(dest.Account),
			Method:    strings.TrimSpace(dest.Method),
			Status:    ledger.StatusPending,
			CreatedAt: now.UTC(),
		}
		s.PrependWithdrawal(out)
		balance = acct.Balance
		return nil
	})
	if err != nil {
		return ledger.Withdrawal{}, decimal.Zero, err
	}
	metrics.RecordWithdrawal(ledger.StatusPending)
	return out, balance, nil
}

// ParseDecision accepts the spellings the admin panel sends.
func ParseDecision(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "approve", "approved", "accept", "paid":
		return ledger.StatusApproved, nil
	case "reject", "rejected", "decline", "declined":
		return ledger.StatusRejected, nil
	}
	return "", ErrInvalidDecision
}

// Decide moves a pending request to approved or rejected. Only a pending
// request can be decided, so a refund is never paid twice.
func (w *Withdrawals) Decide(ctx context.Context, id int64, decision string) (ledger.Withdrawal, error) {
	if decision != ledger.StatusApproved && decision != ledger.StatusRejected {
		return ledger.Withdrawal{}, ErrInvalidDecision
	}

	out, err := w.ledger.UpdateWithdrawalStatus(ctx, id, decision)
	if errors.Is(err, ledger.ErrNotPending) {
		return ledger.Withdrawal{}, ErrInvalidState
	}
	if err != nil {
		return ledger.Withdrawal{}, err
	}
	metrics.RecordWithdrawal(decision)
	return out, nil
}

func (w *Withdrawals) List(ctx context.Context) ([]ledger.Withdrawal, error) {
	return w.ledger.ListWithdrawals(ctx)
}

// ListForUser is the user's own history, newest first.
func (w *Withdrawals) ListForUser(ctx context.Context, userID string) ([]ledger.Withdrawal, error) {
	snap, err := w.ledger.LoadSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	if err := w.gate.Open(snap, userID); err != nil {
		return nil, err
	}
	return snap.WithdrawalsFor(userID), nil
}
