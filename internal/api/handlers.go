package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"adsledger/internal/service"
)

type syncUserRequest struct {
	FirstName *string `json:"first_name"`
	PhotoURL  *string `json:"photo_url"`
}

type addBalanceRequest struct {
	UserID userRef          `json:"user_id"`
	Amount *decimal.Decimal `json:"amount"`
}

type withdrawRequest struct {
	UserID  userRef          `json:"user_id"`
	Amount  *decimal.Decimal `json:"amount"`
	Account string           `json:"account"`
	Method  string           `json:"method"`
}

type balanceResponse struct {
	Status     string          `json:"status"`
	NewBalance decimal.Decimal `json:"new_balance"`
}

type withdrawResponse struct {
	Status       string          `json:"status"`
	WithdrawalID int64           `json:"withdrawal_id"`
	NewBalance   decimal.Decimal `json:"new_balance"`
}

const statusSuccess = "success"

func pathUserID(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "id"))
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id := pathUserID(r)
	acct, err := s.accounts.GetOrCreate(r.Context(), id)
	if err != nil {
		s.fail(w, "user_fetch_failed", err, map[string]any{"user_id": id})
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (s *Server) handleSyncUser(w http.ResponseWriter, r *http.Request) {
	id := pathUserID(r)

	var req syncUserRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, "user_sync_failed", err, map[string]any{"user_id": id})
		return
	}

	acct, err := s.accounts.SyncProfile(r.Context(), id, service.Profile{
		DisplayName: trimmed(req.FirstName),
		PhotoURL:    trimmed(req.PhotoURL),
	})
	if err != nil {
		s.fail(w, "user_sync_failed", err, map[string]any{"user_id": id})
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (s *Server) handleUserWithdrawals(w http.ResponseWriter, r *http.Request) {
	id := pathUserID(r)
	list, err := s.withdrawals.ListForUser(r.Context(), id)
	if err != nil {
		s.fail(w, "user_withdrawals_failed", err, map[string]any{"user_id": id})
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleAddBalance(w http.ResponseWriter, r *http.Request) {
	var req addBalanceRequest
	if err := decodeJSON(r, &req); err != nil || req.UserID == "" || req.Amount == nil {
		s.fail(w, "balance_credit_failed", errInvalidRequest, nil)
		return
	}

	acct, err := s.accounts.Credit(r.Context(), req.UserID.String(), *req.Amount)
	if err != nil {
		s.fail(w, "balance_credit_failed", err, map[string]any{
			"user_id": req.UserID.String(),
			"amount":  amountField(*req.Amount),
		})
		return
	}

	s.logEvent("balance_credited", map[string]any{
		"user_id":     acct.ID,
		"amount":      req.Amount.String(),
		"new_balance": acct.Balance.String(),
	})
	writeJSON(w, http.StatusOK, balanceResponse{Status: statusSuccess, NewBalance: acct.Balance})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if err := decodeJSON(r, &req); err != nil || req.UserID == "" || req.Amount == nil {
		s.fail(w, "withdrawal_create_failed", errInvalidRequest, nil)
		return
	}

	wd, balance, err := s.withdrawals.Submit(r.Context(), req.UserID.String(), *req.Amount, service.Destination{
		Account: req.Account,
		Method:  req.Method,
	})
	if err != nil {
		s.fail(w, "withdrawal_create_failed", err, map[string]any{
			"user_id": req.UserID.String(),
			"amount":  amountField(*req.Amount),
		})
		return
	}

	s.logEvent("withdrawal_created", map[string]any{
		"withdrawal_id": wd.ID,
		"user_id":       wd.UserID,
		"amount":        wd.Amount.String(),
		"method":        wd.Method,
		"status":        wd.Status,
	})
	writeJSON(w, http.StatusOK, withdrawResponse{
		Status:       statusSuccess,
		WithdrawalID: wd.ID,
		NewBalance:   balance,
	})
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.admin.ListTasks(r.Context())
	if err != nil {
		s.fail(w, "tasks_list_failed", err, nil)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.ledger.GetSettings(r.Context())
	if err != nil {
		s.fail(w, "settings_fetch_failed", err, nil)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func trimmed(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	return &v
}

// amountField formats a rejected amount for logs without expanding its
// exponent.
func amountField(d decimal.Decimal) string {
	if e := d.Exponent(); e > 32 || e < -32 {
		return d.Coefficient().String() + "e" + strconv.Itoa(int(e))
	}
	return d.String()
}
