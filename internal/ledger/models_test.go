package ledger_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adsledger/internal/ledger"
)

func TestNextIDIsMonotonicWithinOneMillisecond(t *testing.T) {
	snap := ledger.NewSnapshot()
	now := time.UnixMilli(1_700_000_000_000)

	a := snap.NextID(now)
	b := snap.NextID(now)
	c := snap.NextID(now.Add(-time.Second))

	assert.Equal(t, now.UnixMilli(), a)
	assert.Equal(t, a+1, b)
	assert.Equal(t, b+1, c)
}

func TestTaskKeepsAdminFields(t *testing.T) {
	var task ledger.Task
	require.NoError(t, json.Unmarshal([]byte(`{"id":7,"title":"Watch","reward":0.5,"link":"https://t.me/x"}`), &task))

	assert.Equal(t, int64(7), task.ID)
	assert.NotContains(t, task.Fields, "id")

	out, err := json.Marshal(task)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":7,"title":"Watch","reward":0.5,"link":"https://t.me/x"}`, string(out))
}

func TestAccountBalanceIsJSONNumber(t *testing.T) {
	acct := ledger.NewAccount("42", time.Now())
	acct.Balance = decimal.RequireFromString("0.50")

	out, err := json.Marshal(acct)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(out, &raw))
	assert.Equal(t, 0.5, raw["balance"])
	assert.Equal(t, "Guest", raw["first_name"])
	assert.Equal(t, "42", raw["user_id"])
}

func TestDecideWithdrawal(t *testing.T) {
	now := time.Now()
	snap := ledger.NewSnapshot()
	snap.Users["1"] = ledger.NewAccount("1", now)
	snap.PrependWithdrawal(ledger.Withdrawal{ID: 1, UserID: "1", Amount: decimal.RequireFromString("2.5"), Status: ledger.StatusPending})
	snap.PrependWithdrawal(ledger.Withdrawal{ID: 2, UserID: "1", Amount: decimal.RequireFromString("1"), Status: ledger.StatusPending})
	assert.Equal(t, int64(2), snap.Withdrawals[0].ID)

	w, err := snap.DecideWithdrawal(1, ledger.StatusRejected, now)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusRejected, w.Status)
	require.NotNil(t, w.DecidedAt)
	assert.True(t, snap.Users["1"].Balance.Equal(decimal.RequireFromString("2.5")))

	_, err = snap.DecideWithdrawal(1, ledger.StatusRejected, now)
	require.ErrorIs(t, err, ledger.ErrNotPending)
	assert.True(t, snap.Users["1"].Balance.Equal(decimal.RequireFromString("2.5")))

	w, err = snap.DecideWithdrawal(2, ledger.StatusApproved, now)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusApproved, w.Status)
	assert.True(t, snap.Users["1"].Balance.Equal(decimal.RequireFromString("2.5")))

	_, err = snap.DecideWithdrawal(99, ledger.StatusApproved, now)
	require.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestWithdrawalsFor(t *testing.T) {
	snap := ledger.NewSnapshot()
	snap.PrependWithdrawal(ledger.Withdrawal{ID: 1, UserID: "a"})
	snap.PrependWithdrawal(ledger.Withdrawal{ID: 2, UserID: "b"})
	snap.PrependWithdrawal(ledger.Withdrawal{ID: 3, UserID: "a"})

	got := snap.WithdrawalsFor("a")
	require.Len(t, got, 2)
	assert.Equal(t, int64(3), got[0].ID)
	assert.Empty(t, snap.WithdrawalsFor("c"))
}
