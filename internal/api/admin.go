package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
)

type adminActionRequest struct {
	AdminID      userRef                    `json:"admin_id"`
	Action       string                     `json:"action"`
	Task         map[string]json.RawMessage `json:"task"`
	TaskID       *int64Ref                  `json:"task_id"`
	UserID       userRef                    `json:"user_id"`
	Ban          *bool                      `json:"ban"`
	Enabled      *bool                      `json:"enabled"`
	Amount       *decimal.Decimal           `json:"amount"`
	WithdrawalID *int64Ref                  `json:"withdrawal_id"`
	Decision     string                     `json:"decision"`
}

func (s *Server) handleAdminAction(w http.ResponseWriter, r *http.Request) {
	var req adminActionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, "admin_action_failed", err, nil)
		return
	}
	action := strings.ToLower(strings.TrimSpace(req.Action))
	creds := credentials(r, req.AdminID.String())
	ctx := r.Context()
	fields := map[string]any{"action": action}

	// Authorize before looking at the payload.
	if err := s.admin.Authorize(ctx, creds); err != nil {
		s.fail(w, "admin_action_failed", err, fields)
		return
	}

	switch action {
	case "add_task":
		if len(req.Task) == 0 {
			s.fail(w, "admin_action_failed", errInvalidRequest, fields)
			return
		}
		task, err := s.admin.AddTask(ctx, creds, req.Task)
		if err != nil {
			s.fail(w, "admin_action_failed", err, fields)
			return
		}
		s.logEvent("task_added", map[string]any{"task_id": task.ID})
		writeJSON(w, http.StatusCreated, task)

	case "delete_task":
		if req.TaskID == nil {
			s.fail(w, "admin_action_failed", errInvalidRequest, fields)
			return
		}
		id := int64(*req.TaskID)
		if err := s.admin.RemoveTask(ctx, creds, id); err != nil {
			fields["task_id"] = id
			s.fail(w, "admin_action_failed", err, fields)
			return
		}
		s.logEvent("task_deleted", map[string]any{"task_id": id})
		writeJSON(w, http.StatusOK, map[string]string{"status": statusSuccess})

	case "ban_user":
		if req.UserID == "" {
			s.fail(w, "admin_action_failed", errInvalidRequest, fields)
			return
		}
		banned := req.Ban == nil || *req.Ban
		acct, err := s.admin.SetBan(ctx, creds, req.UserID.String(), banned)
		if err != nil {
			fields["user_id"] = req.UserID.String()
			s.fail(w, "admin_action_failed", err, fields)
			return
		}
		s.logEvent("user_ban_changed", map[string]any{"user_id": acct.ID, "is_banned": acct.IsBanned})
		writeJSON(w, http.StatusOK, acct)

	case "maintenance":
		enabled, err := s.maintenanceTarget(r, req.Enabled)
		if err != nil {
			s.fail(w, "admin_action_failed", err, fields)
			return
		}
		if err := s.admin.ToggleMaintenance(ctx, creds, enabled); err != nil {
			s.fail(w, "admin_action_failed", err, fields)
			return
		}
		s.logEvent("maintenance_changed", map[string]any{"maintenance_mode": enabled})
		writeJSON(w, http.StatusOK, map[string]bool{"maintenance_mode": enabled})

	case "send_money":
		if req.UserID == "" || req.Amount == nil {
			s.fail(w, "admin_action_failed", errInvalidRequest, fields)
			return
		}
		acct, err := s.admin.SendMoney(ctx, creds, req.UserID.String(), *req.Amount)
		if err != nil {
			fields["user_id"] = req.UserID.String()
			s.fail(w, "admin_action_failed", err, fields)
			return
		}
		s.logEvent("balance_granted", map[string]any{
			"user_id":     acct.ID,
			"amount":      req.Amount.String(),
			"new_balance": acct.Balance.String(),
		})
		writeJSON(w, http.StatusOK, balanceResponse{Status: statusSuccess, NewBalance: acct.Balance})

	case "handle_withdrawal":
		if req.WithdrawalID == nil {
			s.fail(w, "admin_action_failed", errInvalidRequest, fields)
			return
		}
		id := int64(*req.WithdrawalID)
		wd, err := s.admin.HandleWithdrawal(ctx, creds, id, req.Decision)
		if err != nil {
			fields["withdrawal_id"] = id
			s.fail(w, "withdrawal_decide_failed", err, fields)
			return
		}
		s.logEvent("withdrawal_decided", map[string]any{
			"withdrawal_id": wd.ID,
			"user_id":       wd.UserID,
			"status":        wd.Status,
		})
		writeJSON(w, http.StatusOK, wd)

	default:
		s.logEvent("admin_action_failed", map[string]any{"action": action, "reason": "unknown_action"})
		writeError(w, http.StatusBadRequest, "unknown_action", "unknown admin action")
	}
}

// maintenanceTarget returns the requested mode, or the opposite of the
// current one when the request does not say.
func (s *Server) maintenanceTarget(r *http.Request, enabled *bool) (bool, error) {
	if enabled != nil {
		return *enabled, nil
	}
	settings, err := s.ledger.GetSettings(r.Context())
	if err != nil {
		return false, err
	}
	return !settings.MaintenanceMode, nil
}

func (s *Server) handleAdminWithdrawals(w http.ResponseWriter, r *http.Request) {
	creds := credentials(r, strings.TrimSpace(r.URL.Query().Get("admin_id")))
	list, err := s.admin.Withdrawals(r.Context(), creds)
	if err != nil {
		s.fail(w, "withdrawals_list_failed", err, nil)
		return
	}
	writeJSON(w, http.StatusOK, list)
}
