package api

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"adsledger/internal/service"
)

// handleWebhook accepts bot updates. Anything other than a malformed body is
// acknowledged with "OK" so the gateway does not redeliver.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var update tgbotapi.Update
	if err := decodeJSON(r, &update); err != nil {
		s.logEvent("webhook_rejected", map[string]any{"reason": "invalid_request"})
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed update")
		return
	}

	if contact, ok := startContact(update.Message); ok {
		acct, created, err := s.accounts.RegisterContact(r.Context(), contact)
		if err != nil {
			status, code := errorStatus(err)
			s.logger.WithError(err).WithField("user_id", contact.UserID).Error("webhook contact failed")
			s.logEvent("contact_failed", map[string]any{
				"user_id": contact.UserID,
				"reason":  code,
				"status":  status,
			})
		} else {
			s.logEvent("contact_registered", map[string]any{
				"user_id":     acct.ID,
				"created":     created,
				"referred_by": acct.ReferredBy,
			})
		}
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "OK")
}

// startContact extracts a first contact from a "/start [referrer]" message.
func startContact(msg *tgbotapi.Message) (service.Contact, bool) {
	if msg == nil || msg.From == nil || !msg.IsCommand() || msg.Command() != "start" {
		return service.Contact{}, false
	}
	ref := strings.TrimSpace(msg.CommandArguments())
	ref = strings.TrimPrefix(ref, "ref_")
	if _, err := strconv.ParseInt(ref, 10, 64); err != nil {
		ref = ""
	}
	return service.Contact{
		UserID:     strconv.FormatInt(msg.From.ID, 10),
		FirstName:  strings.TrimSpace(msg.From.FirstName),
		ReferrerID: ref,
	}, true
}
