package ledger

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const DefaultDisplayName = "Guest"

const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

func init() {
	// The mini-app reads balances as plain JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// Round brings an amount to the two decimal places the ledger stores.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

type Account struct {
	ID              string          `json:"user_id"`
	DisplayName     string          `json:"first_name"`
	PhotoURL        string          `json:"photo_url,omitempty"`
	Balance         decimal.Decimal `json:"balance"`
	AdsWatchedToday int             `json:"ads_watched_today"`
	AdsWatchedTotal int             `json:"ads_watched_total"`
	IsBanned        bool            `json:"is_banned"`
	ReferralCount   int             `json:"referral_count"`
	ReferredBy      string          `json:"referred_by,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

func NewAccount(id string, now time.Time) *Account {
	return &Account{
		ID:          id,
		DisplayName: DefaultDisplayName,
		Balance:     decimal.Zero,
		CreatedAt:   now.UTC(),
	}
}

// Task carries an id plus whatever fields the administrator supplied.
// The extra fields are round-tripped verbatim.
type Task struct {
	ID     int64
	Fields map[string]json.RawMessage
}

func (t Task) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(t.Fields)+1)
	for k, v := range t.Fields {
		out[k] = v
	}
	id, err := json.Marshal(t.ID)
	if err != nil {
		return nil, err
	}
	out["id"] = id
	return json.Marshal(out)
}

func (t *Task) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	var id int64
	if raw, ok := fields["id"]; ok {
		if err := json.Unmarshal(raw, &id); err != nil {
			return err
		}
		delete(fields, "id")
	}
	t.ID = id
	t.Fields = fields
	return nil
}

type Withdrawal struct {
	ID        int64           `json:"id"`
	UserID    string          `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
	Account   string          `json:"account"`
	Method    string          `json:"method"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	DecidedAt *time.Time      `json:"decided_at,omitempty"`
}

type Settings struct {
	MaintenanceMode bool `json:"maintenance_mode"`
}

// Snapshot is the whole ledger document.
type Snapshot struct {
	Version     int64               `json:"version"`
	Users       map[string]*Account `json:"users"`
	Tasks       []Task              `json:"global_tasks"`
	Withdrawals []Withdrawal        `json:"withdrawals"`
	Settings    Settings            `json:"settings"`
	LastID      int64               `json:"last_id"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

func NewSnapshot() *Snapshot {
	return &Snapshot{
		Users:       map[string]*Account{},
		Tasks:       []Task{},
		Withdrawals: []Withdrawal{},
	}
}

func (s *Snapshot) normalize() {
	if s.Users == nil {
		s.Users = map[string]*Account{}
	}
	if s.Tasks == nil {
		s.Tasks = []Task{}
	}
	if s.Withdrawals == nil {
		s.Withdrawals = []Withdrawal{}
	}
}

// NextID hands out millisecond timestamps, bumped past the last issued id so
// two creations in the same millisecond never collide.
func (s *Snapshot) NextID(now time.Time) int64 {
	id := now.UnixMilli()
	if id <= s.LastID {
		id = s.LastID + 1
	}
	s.LastID = id
	return id
}

func (s *Snapshot) Account(id string) (*Account, bool) {
	acct, ok := s.Users[id]
	return acct, ok
}

func (s *Snapshot) Withdrawal(id int64) (*Withdrawal, bool) {
	for i := range s.Withdrawals {
		if s.Withdrawals[i].ID == id {
			return &s.Withdrawals[i], true
		}
	}
	return nil, false
}

// PrependWithdrawal keeps the list newest first.
func (s *Snapshot) PrependWithdrawal(w Withdrawal) {
	s.Withdrawals = append([]Withdrawal{w}, s.Withdrawals...)
}

// DecideWithdrawal moves a pending request to a terminal status. A rejected
// request returns the held amount to its owner.
func (s *Snapshot) DecideWithdrawal(id int64, status string, at time.Time) (*Withdrawal, error) {
	w, ok := s.Withdrawal(id)
	if !ok {
		return nil, ErrNotFound
	}
	if w.Status != StatusPending {
		return nil, fmt.Errorf("withdrawal %d is %s: %w", id, w.Status, ErrNotPending)
	}
	if status == StatusRejected {
		acct, ok := s.Account(w.UserID)
		if !ok {
			return nil, fmt.Errorf("withdrawal %d owner %q: %w", id, w.UserID, ErrNotFound)
		}
		acct.Balance = Round(acct.Balance.Add(w.Amount))
	}
	at = at.UTC()
	w.Status = status
	w.DecidedAt = &at
	return w, nil
}

func (s *Snapshot) WithdrawalsFor(userID string) []Withdrawal {
	out := []Withdrawal{}
	for _, w := range s.Withdrawals {
		if w.UserID == userID {
			out = append(out, w)
		}
	}
	return out
}
