package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"adsledger/internal/kv"
	"adsledger/internal/ledger"
	"adsledger/internal/service"
)

const adminID = "1000"

type pushed struct {
	UserID, Message, URL string
}

type recordingNotifier struct {
	mu   sync.Mutex
	err  error
	sent []pushed
}

func (n *recordingNotifier) Notify(_ context.Context, userID, message, url string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, pushed{userID, message, url})
	return n.err
}

func (n *recordingNotifier) Sent() []pushed {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]pushed(nil), n.sent...)
}

var errDown = fmt.Errorf("%w: dial tcp: connection refused", kv.ErrUnavailable)

type unavailableStore struct{}

func (unavailableStore) Get(context.Context, string) ([]byte, error) {
	return nil, errDown
}

func (unavailableStore) Set(context.Context, string, []byte) error {
	return errDown
}

type fixture struct {
	store       kv.Store
	repo        *ledger.Repository
	accounts    *service.Accounts
	withdrawals *service.Withdrawals
	admin       *service.Admin
	notifier    *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithStore(t, kv.NewMemoryStore())
}

func newFixtureWithStore(t *testing.T, store kv.Store) *fixture {
	t.Helper()

	repo := ledger.NewRepository(store)
	gate := service.Gate{AdminID: adminID}
	notifier := &recordingNotifier{}
	accounts := service.NewAccounts(repo, service.AccountsConfig{
		Gate:          gate,
		ReferralBonus: decimal.RequireFromString("0.10"),
		Notifier:      notifier,
		FrontendURL:   "https://app.example",
	})
	withdrawals := service.NewWithdrawals(repo, gate)
	admin := service.NewAdmin(service.StaticAdmin(adminID), repo, accounts, withdrawals)
	t.Cleanup(accounts.Wait)

	return &fixture{
		store:       store,
		repo:        repo,
		accounts:    accounts,
		withdrawals: withdrawals,
		admin:       admin,
		notifier:    notifier,
	}
}

func (f *fixture) account(t *testing.T, id, balance string) ledger.Account {
	t.Helper()

	acct := ledger.NewAccount(id, time.Now())
	acct.Balance = decimal.RequireFromString(balance)
	require.NoError(t, f.repo.UpsertAccount(context.Background(), *acct))
	return *acct
}

func (f *fixture) balance(t *testing.T, id string) decimal.Decimal {
	t.Helper()

	acct, err := f.repo.GetAccount(context.Background(), id)
	require.NoError(t, err)
	return acct.Balance
}

func adminCreds() service.Credentials {
	return service.Credentials{AdminID: adminID}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
