package service

import (
	"context"
	"crypto/subtle"
	"encoding/json"

	"github.com/shopspring/decimal"

	"adsledger/internal/ledger"
)

// Credentials is what a caller presents for an administrative operation.
type Credentials struct {
	AdminID string
	Token   string
}

// Authorizer decides whether credentials may perform admin operations.
type Authorizer interface {
	Authorize(ctx context.Context, c Credentials) error
}

// StaticAdmin accepts exactly one administrator identifier.
type StaticAdmin string

func (id StaticAdmin) Authorize(_ context.Context, c Credentials) error {
	if id == "" || !secureCompare(c.AdminID, string(id)) {
		return ErrUnauthorized
	}
	return nil
}

// BearerToken requires a shared secret, normally sent as a bearer token.
type BearerToken string

func (t BearerToken) Authorize(_ context.Context, c Credentials) error {
	if t == "" || !secureCompare(c.Token, string(t)) {
		return ErrUnauthorized
	}
	return nil
}

// AllOf passes only when every authorizer passes.
type AllOf []Authorizer

func (all AllOf) Authorize(ctx context.Context, c Credentials) error {
	if len(all) == 0 {
		return ErrUnauthorized
	}
	for _, a := range all {
		if err := a.Authorize(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Admin is the task registry and the administrator's control surface.
// Every method except ListTasks authorizes first.
type Admin struct {
	auth        Authorizer
	ledger      *ledger.Repository
	accounts    *Accounts
	withdrawals *Withdrawals
}

func NewAdmin(auth Authorizer, repo *ledger.Repository, accounts *Accounts, withdrawals *Withdrawals) *Admin {
	return &Admin{
		auth:        auth,
		ledger:      repo,
		accounts:    accounts,
		withdrawals: withdrawals,
	}
}

func (a *Admin) Authorize(ctx context.Context, c Credentials) error {
	return a.auth.Authorize(ctx, c)
}

func (a *Admin) AddTask(ctx context.Context, c Credentials, fields map[string]json.RawMessage) (ledger.Task, error) {
	if err := a.auth.Authorize(ctx, c); err != nil {
		return ledger.Task{}, err
	}
	delete(fields, "id")
	return a.ledger.AppendTask(ctx, fields)
}

// ListTasks is the public view of the registry.
func (a *Admin) ListTasks(ctx context.Context) ([]ledger.Task, error) {
	return a.ledger.ListTasks(ctx)
}

func (a *Admin) RemoveTask(ctx context.Context, c Credentials, id int64) error {
	if err := a.auth.Authorize(ctx, c); err != nil {
		return err
	}
	return a.ledger.RemoveTaskByID(ctx, id)
}

func (a *Admin) ToggleMaintenance(ctx context.Context, c Credentials, enabled bool) error {
	if err := a.auth.Authorize(ctx, c); err != nil {
		return err
	}
	return a.ledger.SetMaintenanceMode(ctx, enabled)
}

func (a *Admin) SetBan(ctx context.Context, c Credentials, userID string, banned bool) (ledger.Account, error) {
	if err := a.auth.Authorize(ctx, c); err != nil {
		return ledger.Account{}, err
	}
	return a.accounts.SetBan(ctx, userID, banned)
}

func (a *Admin) SendMoney(ctx context.Context, c Credentials, userID string, amount decimal.Decimal) (ledger.Account, error) {
	if err := a.auth.Authorize(ctx, c); err != nil {
		return ledger.Account{}, err
	}
	return a.accounts.Grant(ctx, userID, amount)
}

func (a *Admin) HandleWithdrawal(ctx context.Context, c Credentials, id int64, decision string) (ledger.Withdrawal, error) {
	if err := a.auth.Authorize(ctx, c); err != nil {
		return ledger.Withdrawal{}, err
	}
	status, err := ParseDecision(decision)
	if err != nil {
		return ledger.Withdrawal{}, err
	}
	return a.withdrawals.Decide(ctx, id, status)
}

func (a *Admin) Withdrawals(ctx context.Context, c Credentials) ([]ledger.Withdrawal, error) {
	if err := a.auth.Authorize(ctx, c); err != nil {
		return nil, err
	}
	return a.withdrawals.List(ctx)
}
