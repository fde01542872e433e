package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"adsledger/internal/kv"
	"adsledger/internal/metrics"
)

const (
	DefaultKey         = "ledger"
	DefaultMaxAttempts = 10
)

// Repository owns the ledger document. Every mutation is a full
// read-modify-write of that document. Mutations from one Repository are
// serialized by a mutex; when the store implements kv.Swapper the write is
// also conditional on the bytes that were read, so several processes sharing
// one store cannot lose each other's updates.
type Repository struct {
	store       kv.Store
	key         string
	timeout     time.Duration
	maxAttempts int
	now         func() time.Time
	logger      logrus.FieldLogger

	mu sync.Mutex
}

type Option func(*Repository)

func WithKey(key string) Option {
	return func(r *Repository) {
		if key != "" {
			r.key = key
		}
	}
}

// WithTimeout bounds every individual store call.
func WithTimeout(d time.Duration) Option {
	return func(r *Repository) { r.timeout = d }
}

func WithMaxAttempts(n int) Option {
	return func(r *Repository) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(r *Repository) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func NewRepository(store kv.Store, opts ...Option) *Repository {
	discard := logrus.New()
	discard.SetOutput(io.Discard)

	r := &Repository{
		store:       store,
		key:         DefaultKey,
		maxAttempts: DefaultMaxAttempts,
		now:         time.Now,
		logger:      discard,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Conditional reports whether writes are compare-and-swap protected.
func (r *Repository) Conditional() bool {
	_, ok := r.store.(kv.Swapper)
	return ok
}

func (r *Repository) Now() time.Time {
	return r.now()
}

// LoadSnapshot returns the current ledger document, or an empty one when the
// key does not exist yet.
func (r *Repository) LoadSnapshot(ctx context.Context) (*Snapshot, error) {
	_, snap, err := r.load(ctx)
	return snap, err
}

// SaveSnapshot writes snap unconditionally.
func (r *Repository) SaveSnapshot(ctx context.Context, snap *Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap.normalize()
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	ctx, cancel := r.callContext(ctx)
	defer cancel()
	if err := r.store.Set(ctx, r.key, data); err != nil {
		metrics.RecordLedgerWrite("error")
		return fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}
	metrics.RecordLedgerWrite("ok")
	return nil
}

// Update applies fn to a fresh snapshot and persists the result. fn may run
// more than once when a concurrent writer wins the race, so it must derive
// everything from the snapshot it is given. Returning ErrNoChange skips the
// write; any other error aborts with nothing persisted.
func (r *Repository) Update(ctx context.Context, fn func(*Snapshot) error) (*Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for attempt := 1; ; attempt++ {
		raw, snap, err := r.load(ctx)
		if err != nil {
			return nil, err
		}

		if err := fn(snap); err != nil {
			if errors.Is(err, ErrNoChange) {
				return snap, nil
			}
			return nil, err
		}

		snap.Version++
		snap.UpdatedAt = r.now().UTC()
		next, err := json.Marshal(snap)
		if err != nil {
			return nil, fmt.Errorf("encode ledger: %w", err)
		}

		err = r.write(ctx, raw, next)
		switch {
		case err == nil:
			metrics.RecordLedgerWrite("ok")
			return snap, nil
		case errors.Is(err, kv.ErrConflict):
			metrics.RecordLedgerWrite("conflict")
			r.logger.WithFields(logrus.Fields{
				"attempt": attempt,
				"version": snap.Version - 1,
			}).Warn("ledger write conflict")
			if attempt >= r.maxAttempts {
				return nil, ErrConflict
			}
		default:
			metrics.RecordLedgerWrite("error")
			return nil, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
		}
	}
}

func (r *Repository) load(ctx context.Context) ([]byte, *Snapshot, error) {
	ctx, cancel := r.callContext(ctx)
	defer cancel()

	raw, err := r.store.Get(ctx, r.key)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, NewSnapshot(), nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}

	snap := NewSnapshot()
	if err := json.Unmarshal(raw, snap); err != nil {
		return nil, nil, fmt.Errorf("%w: malformed ledger document: %w", ErrUpstreamUnavailable, err)
	}
	snap.normalize()
	return raw, snap, nil
}

func (r *Repository) write(ctx context.Context, old, next []byte) error {
	ctx, cancel := r.callContext(ctx)
	defer cancel()

	if sw, ok := r.store.(kv.Swapper); ok {
		return sw.CompareAndSwap(ctx, r.key, old, next)
	}
	return r.store.Set(ctx, r.key, next)
}

func (r *Repository) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

// Entity accessors. Each one is a full snapshot cycle.

func (r *Repository) GetAccount(ctx context.Context, id string) (Account, error) {
	snap, err := r.LoadSnapshot(ctx)
	if err != nil {
		return Account{}, err
	}
	acct, ok := snap.Account(id)
	if !ok {
		return Account{}, ErrNotFound
	}
	return *acct, nil
}

// UpsertAccount replaces the stored account with acct.
func (r *Repository) UpsertAccount(ctx context.Context, acct Account) error {
	_, err := r.Update(ctx, func(s *Snapshot) error {
		cp := acct
		s.Users[acct.ID] = &cp
		return nil
	})
	return err
}

func (r *Repository) AppendTask(ctx context.Context, fields map[string]json.RawMessage) (Task, error) {
	var task Task
	_, err := r.Update(ctx, func(s *Snapshot) error {
		task = Task{ID: s.NextID(r.now()), Fields: fields}
		s.Tasks = append(s.Tasks, task)
		return nil
	})
	return task, err
}

func (r *Repository) RemoveTaskByID(ctx context.Context, id int64) error {
	_, err := r.Update(ctx, func(s *Snapshot) error {
		kept := make([]Task, 0, len(s.Tasks))
		for _, t := range s.Tasks {
			if t.ID != id {
				kept = append(kept, t)
			}
		}
		if len(kept) == len(s.Tasks) {
			return ErrNotFound
		}
		s.Tasks = kept
		return nil
	})
	return err
}

func (r *Repository) ListTasks(ctx context.Context) ([]Task, error) {
	snap, err := r.LoadSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Tasks, nil
}

// PrependWithdrawal stores w at the front of the list, assigning an id when
// w has none.
func (r *Repository) PrependWithdrawal(ctx context.Context, w Withdrawal) (Withdrawal, error) {
	_, err := r.Update(ctx, func(s *Snapshot) error {
		if w.ID == 0 {
			w.ID = s.NextID(r.now())
		}
		if w.CreatedAt.IsZero() {
			w.CreatedAt = r.now().UTC()
		}
		s.PrependWithdrawal(w)
		return nil
	})
	return w, err
}

// UpdateWithdrawalStatus decides a pending withdrawal. See Snapshot.DecideWithdrawal.
func (r *Repository) UpdateWithdrawalStatus(ctx context.Context, id int64, status string) (Withdrawal, error) {
	var out Withdrawal
	_, err := r.Update(ctx, func(s *Snapshot) error {
		w, err := s.DecideWithdrawal(id, status, r.now())
		if err != nil {
			return err
		}
		out = *w
		return nil
	})
	return out, err
}

func (r *Repository) ListWithdrawals(ctx context.Context) ([]Withdrawal, error) {
	snap, err := r.LoadSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Withdrawals, nil
}

func (r *Repository) GetSettings(ctx context.Context) (Settings, error) {
	snap, err := r.LoadSnapshot(ctx)
	if err != nil {
		return Settings{}, err
	}
	return snap.Settings, nil
}

func (r *Repository) SetMaintenanceMode(ctx context.Context, enabled bool) error {
	_, err := r.Update(ctx, func(s *Snapshot) error {
		if s.Settings.MaintenanceMode == enabled {
			return ErrNoChange
		}
		s.Settings.MaintenanceMode = enabled
		return nil
	})
	return err
}
