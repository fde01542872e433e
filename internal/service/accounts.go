// Package service holds the rules for balances, withdrawals and
// administration on top of the ledger repository.
package service

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"adsledger/internal/ledger"
	"adsledger/internal/metrics"
	"adsledger/internal/notify"
)

// DefaultAdReward is the amount the mini-app credits for one watched ad.
var DefaultAdReward = decimal.RequireFromString("0.50")

const welcomeTimeout = 10 * time.Second

type AccountsConfig struct {
	Gate          Gate
	AdReward      decimal.Decimal
	ReferralBonus decimal.Decimal
	Notifier      notify.Notifier
	FrontendURL   string
	Logger        logrus.FieldLogger
}

type Accounts struct {
	ledger        *ledger.Repository
	gate          Gate
	adReward      decimal.Decimal
	referralBonus decimal.Decimal
	notifier      notify.Notifier
	frontendURL   string
	logger        logrus.FieldLogger

	pending sync.WaitGroup
}

func NewAccounts(repo *ledger.Repository, cfg AccountsConfig) *Accounts {
	if cfg.AdReward.IsZero() {
		cfg.AdReward = DefaultAdReward
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Discard{}
	}
	if cfg.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		cfg.Logger = l
	}
	return &Accounts{
		ledger:        repo,
		gate:          cfg.Gate,
		adReward:      ledger.Round(cfg.AdReward),
		referralBonus: ledger.Round(cfg.ReferralBonus),
		notifier:      cfg.Notifier,
		frontendURL:   cfg.FrontendURL,
		logger:        cfg.Logger,
	}
}

func (a *Accounts) AdReward() decimal.Decimal {
	return a.adReward
}

// GetOrCreate returns the account for userID, creating a default one on
// first sight. An existing account is returned without any write.
func (a *Accounts) GetOrCreate(ctx context.Context, userID string) (ledger.Account, error) {
	snap, err := a.ledger.LoadSnapshot(ctx)
	if err != nil {
		return ledger.Account{}, err
	}
	if err := a.gate.Open(snap, userID); err != nil {
		return ledger.Account{}, err
	}
	if acct, ok := snap.Account(userID); ok {
		if err := a.gate.Active(acct); err != nil {
			return ledger.Account{}, err
		}
		return *acct, nil
	}

	var out ledger.Account
	_, err = a.ledger.Update(ctx, func(s *ledger.Snapshot) error {
		if err := a.gate.Open(s, userID); err != nil {
			return err
		}
		acct, ok := s.Account(userID)
		if ok {
			if err := a.gate.Active(acct); err != nil {
				return err
			}
			out = *acct
			return ledger.ErrNoChange
		}
		acct = ledger.NewAccount(userID, a.ledger.Now())
		s.Users[userID] = acct
		out = *acct
		return nil
	})
	return out, err
}

// Profile carries the fields a client may sync. Nil or empty means "keep".
type Profile struct {
	DisplayName *string
	PhotoURL    *string
}

// SyncProfile creates the account if needed and overwrites the supplied
// profile fields. Banned accounts are rejected.
func (a *Accounts) SyncProfile(ctx context.Context, userID string, p Profile) (ledger.Account, error) {
	var out ledger.Account
	_, err := a.ledger.Update(ctx, func(s *ledger.Snapshot) error {
		if err := a.gate.Open(s, userID); err != nil {
			return err
		}
		acct, ok := s.Account(userID)
		if !ok {
			acct = ledger.NewAccount(userID, a.ledger.Now())
			s.Users[userID] = acct
		}
		if err := a.gate.Active(acct); err != nil {
			return err
		}
		if p.DisplayName != nil && *p.DisplayName != "" {
			acct.DisplayName = *p.DisplayName
		}
		if p.PhotoURL != nil && *p.PhotoURL != "" {
			acct.PhotoURL = *p.PhotoURL
		}
		out = *acct
		return nil
	})
	return out, err
}

// Credit adds amount to an existing account. Crediting exactly the ad reward
// also counts one watched ad.
func (a *Accounts) Credit(ctx context.Context, userID string, amount decimal.Decimal) (ledger.Account, error) {
	amount, err := a.gate.Amount(amount)
	if err != nil || amount.IsNegative() {
		return ledger.Account{}, ErrInvalidAmount
	}

	var out ledger.Account
	_, err = a.ledger.Update(ctx, func(s *ledger.Snapshot) error {
		if err := a.gate.Open(s, userID); err != nil {
			return err
		}
		acct, ok := s.Account(userID)
		if !ok {
			return ledger.ErrNotFound
		}
		if err := a.gate.Active(acct); err != nil {
			return err
		}
		acct.Balance = ledger.Round(acct.Balance.Add(amount))
		if amount.Equal(a.adReward) {
			acct.AdsWatchedToday++
			acct.AdsWatchedTotal++
		}
		out = *acct
		return nil
	})
	if err != nil {
		return ledger.Account{}, err
	}
	metrics.RecordCredit("user", amount.InexactFloat64())
	return out, nil
}

// Grant is the administrator override: an unconditional credit that skips
// the maintenance and ban checks.
func (a *Accounts) Grant(ctx context.Context, userID string, amount decimal.Decimal) (ledger.Account, error) {
	amount, err := a.gate.Amount(amount)
	if err != nil || !amount.IsPositive() {
		return ledger.Account{}, ErrInvalidAmount
	}

	var out ledger.Account
	_, err = a.ledger.Update(ctx, func(s *ledger.Snapshot) error {
		acct, ok := s.Account(userID)
		if !ok {
			return ledger.ErrNotFound
		}
		acct.Balance = ledger.Round(acct.Balance.Add(amount))
		out = *acct
		return nil
	})
	if err != nil {
		return ledger.Account{}, err
	}
	metrics.RecordCredit("admin", amount.InexactFloat64())
	return out, nil
}

func (a *Accounts) SetBan(ctx context.Context, userID string, banned bool) (ledger.Account, error) {
	var out ledger.Account
	_, err := a.ledger.Update(ctx, func(s *ledger.Snapshot) error {
		acct, ok := s.Account(userID)
		if !ok {
			return ledger.ErrNotFound
		}
		out = *acct
		if acct.IsBanned == banned {
			return ledger.ErrNoChange
		}
		acct.IsBanned = banned
		out = *acct
		return nil
	})
	return out, err
}

// Contact is a first message from the bot front door.
type Contact struct {
	UserID     string
	FirstName  string
	ReferrerID string
}

// RegisterContact creates the account on first contact and schedules the
// welcome push on every contact from an account that is not banned. It
// reports whether the account was created by this call. A failed push is
// logged and never undoes the account.
func (a *Accounts) RegisterContact(ctx context.Context, c Contact) (ledger.Account, bool, error) {
	var (
		out     ledger.Account
		created bool
	)
	_, err := a.ledger.Update(ctx, func(s *ledger.Snapshot) error {
		created = false
		if acct, ok := s.Account(c.UserID); ok {
			out = *acct
			return ledger.ErrNoChange
		}

		acct := ledger.NewAccount(c.UserID, a.ledger.Now())
		if c.FirstName != "" {
			acct.DisplayName = c.FirstName
		}
		if ref, ok := s.Account(c.ReferrerID); ok && c.ReferrerID != c.UserID {
			acct.ReferredBy = ref.ID
			ref.ReferralCount++
			if a.referralBonus.IsPositive() && !ref.IsBanned {
				ref.Balance = ledger.Round(ref.Balance.Add(a.referralBonus))
			}
		}
		s.Users[c.UserID] = acct
		out = *acct
		created = true
		return nil
	})
	if err != nil {
		return ledger.Account{}, false, err
	}

	if !out.IsBanned {
		name := c.FirstName
		if name == "" {
			name = out.DisplayName
		}
		a.welcome(out.ID, name)
	}
	return out, created, nil
}

func (a *Accounts) welcome(userID, name string) {
	msg := fmt.Sprintf("Welcome %s! Start here 👇", name)

	a.pending.Add(1)
	go func() {
		defer a.pending.Done()

		ctx, cancel := context.WithTimeout(context.Background(), welcomeTimeout)
		defer cancel()

		if err := a.notifier.Notify(ctx, userID, msg, a.frontendURL); err != nil {
			a.logger.WithError(err).WithField("user_id", userID).Warn("welcome push failed")
		}
	}()
}

// Wait blocks until scheduled welcome pushes have finished.
func (a *Accounts) Wait() {
	a.pending.Wait()
}

// ResetDailyAds zeroes the per-day ad counter of every account and returns
// how many accounts changed.
func (a *Accounts) ResetDailyAds(ctx context.Context) (int, error) {
	var reset int
	_, err := a.ledger.Update(ctx, func(s *ledger.Snapshot) error {
		reset = 0
		for _, acct := range s.Users {
			if acct.AdsWatchedToday != 0 {
				acct.AdsWatchedToday = 0
				reset++
			}
		}
		if reset == 0 {
			return ledger.ErrNoChange
		}
		return nil
	})
	return reset, err
}
