package api_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adsledger/internal/api"
	"adsledger/internal/kv"
	"adsledger/internal/ledger"
)

type userResponse struct {
	UserID          string  `json:"user_id"`
	FirstName       string  `json:"first_name"`
	PhotoURL        string  `json:"photo_url"`
	Balance         float64 `json:"balance"`
	AdsWatchedToday int     `json:"ads_watched_today"`
	AdsWatchedTotal int     `json:"ads_watched_total"`
	IsBanned        bool    `json:"is_banned"`
}

type balanceResponse struct {
	Status     string  `json:"status"`
	NewBalance float64 `json:"new_balance"`
}

func (e *testEnv) getUser(t *testing.T, id string) userResponse {
	t.Helper()

	resp := e.doRequest(t, http.MethodGet, "/api/user/"+id, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got userResponse
	decodeBody(t, resp, &got)
	return got
}

func TestUserLifecycleEndToEnd(t *testing.T) {
	env := setupTest(t)

	user := env.getUser(t, "42")
	assert.Equal(t, "42", user.UserID)
	assert.Equal(t, "Guest", user.FirstName)
	assert.Zero(t, user.Balance)

	resp := env.doRequest(t, http.MethodPost, "/api/add_balance", `{"user_id":42,"amount":0.50}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var credited balanceResponse
	decodeBody(t, resp, &credited)
	assert.Equal(t, "success", credited.Status)
	assert.Equal(t, 0.5, credited.NewBalance)

	user = env.getUser(t, "42")
	assert.Equal(t, 0.5, user.Balance)
	assert.Equal(t, 1, user.AdsWatchedToday)
	assert.Equal(t, 1, user.AdsWatchedTotal)

	resp = env.doRequest(t, http.MethodPost, "/api/withdraw", `{"user_id":"42","amount":0.50,"account":"0911","method":"telebirr"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var withdrawn withdrawResponse
	decodeBody(t, resp, &withdrawn)
	assert.Zero(t, withdrawn.NewBalance)
	assert.Zero(t, env.getUser(t, "42").Balance)

	resp = env.doRequest(t, http.MethodPost, "/api/admin/action",
		fmt.Sprintf(`{"admin_id":"%s","action":"handle_withdrawal","withdrawal_id":%d,"decision":"reject"}`, testAdminID, withdrawn.WithdrawalID))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 0.5, env.getUser(t, "42").Balance)
}

func TestGetUserDoesNotRewriteExisting(t *testing.T) {
	env := setupTest(t)
	env.getUser(t, "7")

	before, err := env.repo.LoadSnapshot(context.Background())
	require.NoError(t, err)
	env.getUser(t, "7")
	after, err := env.repo.LoadSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, before.Version, after.Version)
}

func TestSyncProfile(t *testing.T) {
	env := setupTest(t)

	resp := env.doRequest(t, http.MethodPost, "/api/user/42", `{"first_name":" Abebe ","photo_url":"https://img.example/a.jpg"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got userResponse
	decodeBody(t, resp, &got)
	assert.Equal(t, "Abebe", got.FirstName)
	assert.Equal(t, "https://img.example/a.jpg", got.PhotoURL)

	resp = env.doRequest(t, http.MethodPost, "/api/user/42", `{"first_name":""}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &got)
	assert.Equal(t, "Abebe", got.FirstName)
}

func TestAddBalanceUnknownUser(t *testing.T) {
	env := setupTest(t)

	resp := env.doRequest(t, http.MethodPost, "/api/add_balance", `{"user_id":"404","amount":0.5}`)
	env.expectError(t, resp, http.StatusNotFound, "not_found")
}

func TestAddBalanceRejectsNegative(t *testing.T) {
	env := setupTest(t)
	env.seedUser(t, "1", "1")

	resp := env.doRequest(t, http.MethodPost, "/api/add_balance", `{"user_id":"1","amount":-0.5}`)
	env.expectError(t, resp, http.StatusBadRequest, "invalid_request")
	assert.True(t, env.balance(t, "1").Equal(decimal.RequireFromString("1")))
}

func TestBannedUserIsRejected(t *testing.T) {
	env := setupTest(t)
	env.seedUser(t, "9", "3")

	resp := env.doRequest(t, http.MethodPost, "/api/admin/action", `{"admin_id":"1000","action":"ban_user","user_id":"9"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	env.expectError(t, env.doRequest(t, http.MethodGet, "/api/user/9", ""), http.StatusForbidden, "banned")
	env.expectError(t, env.doRequest(t, http.MethodPost, "/api/user/9", `{"first_name":"x"}`), http.StatusForbidden, "banned")
	env.expectError(t, env.doRequest(t, http.MethodPost, "/api/add_balance", `{"user_id":9,"amount":0.5}`), http.StatusForbidden, "banned")
	env.expectError(t, env.doRequest(t, http.MethodPost, "/api/withdraw", `{"user_id":9,"amount":1}`), http.StatusForbidden, "banned")
	assert.True(t, env.balance(t, "9").Equal(decimal.RequireFromString("3")))

	resp = env.doRequest(t, http.MethodPost, "/api/admin/action", `{"admin_id":"1000","action":"ban_user","user_id":"9","ban":false}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	env.getUser(t, "9")
}

func TestMaintenanceModeBlocksUsers(t *testing.T) {
	env := setupTest(t)
	env.seedUser(t, "5", "1")

	resp := env.doRequest(t, http.MethodPost, "/api/admin/action", `{"admin_id":"1000","action":"maintenance","enabled":true}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	before, err := env.repo.LoadSnapshot(context.Background())
	require.NoError(t, err)

	env.expectError(t, env.doRequest(t, http.MethodGet, "/api/user/new", ""), http.StatusServiceUnavailable, "maintenance")
	env.expectError(t, env.doRequest(t, http.MethodPost, "/api/add_balance", `{"user_id":5,"amount":0.5}`), http.StatusServiceUnavailable, "maintenance")

	after, err := env.repo.LoadSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, before.Version, after.Version)

	admin := env.getUser(t, testAdminID)
	assert.Equal(t, testAdminID, admin.UserID)

	resp = env.doRequest(t, http.MethodGet, "/api/settings", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var settings struct {
		MaintenanceMode bool `json:"maintenance_mode"`
	}
	decodeBody(t, resp, &settings)
	assert.True(t, settings.MaintenanceMode)

	// No "enabled" flips the current mode.
	resp = env.doRequest(t, http.MethodPost, "/api/admin/action", `{"admin_id":"1000","action":"maintenance"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	env.getUser(t, "new")
}

type downStore struct{}

var errDown = fmt.Errorf("%w: connection refused", kv.ErrUnavailable)

func (downStore) Get(context.Context, string) ([]byte, error) { return nil, errDown }
func (downStore) Set(context.Context, string, []byte) error   { return errDown }

func TestUpstreamUnavailable(t *testing.T) {
	env := setupTestWithStore(t, downStore{})

	env.expectError(t, env.doRequest(t, http.MethodGet, "/api/user/42", ""), http.StatusServiceUnavailable, "upstream_unavailable")
	env.expectError(t, env.doRequest(t, http.MethodPost, "/api/add_balance", `{"user_id":42,"amount":0.5}`), http.StatusServiceUnavailable, "upstream_unavailable")
	env.expectError(t, env.doRequest(t, http.MethodGet, "/api/tasks", ""), http.StatusServiceUnavailable, "upstream_unavailable")
}

func TestRootAndHealth(t *testing.T) {
	env := setupTest(t)

	resp := env.doRequest(t, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	text, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(text), "store connected")

	resp = env.doRequest(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	down := setupTest(t, func(o *api.Options) {
		o.Health = func(context.Context) error { return errDown }
	})
	resp = down.doRequest(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	resp = down.doRequest(t, http.MethodGet, "/", "")
	text, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(text), "NOT connected")
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupTest(t)
	env.getUser(t, "1")

	resp := env.doRequest(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	text, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(text), "adsledger_http_requests_total")
	assert.Contains(t, string(text), `route="/api/user/{id}"`)
}

func TestUnknownRoute(t *testing.T) {
	env := setupTest(t)

	env.expectError(t, env.doRequest(t, http.MethodGet, "/api/nope", ""), http.StatusNotFound, "not_found")
}

func TestMoneyRoutesRejectOversizedAmounts(t *testing.T) {
	env := setupTest(t)
	env.seedUser(t, "1", "1")

	before, err := env.store.Get(context.Background(), ledger.DefaultKey)
	require.NoError(t, err)

	for _, body := range []string{
		`{"user_id":"1","amount":1e1000000}`,
		`{"user_id":"1","amount":1e-1000000}`,
		`{"user_id":"1","amount":5000000}`,
	} {
		env.expectError(t, env.doRequest(t, http.MethodPost, "/api/add_balance", body), http.StatusBadRequest, "invalid_request")
		env.expectError(t, env.doRequest(t, http.MethodPost, "/api/withdraw", body), http.StatusBadRequest, "invalid_request")
	}

	after, err := env.store.Get(context.Background(), ledger.DefaultKey)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}
