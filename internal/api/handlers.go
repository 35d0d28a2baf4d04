package api

import (
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lumail/lumail/internal/domain"
	"github.com/lumail/lumail/internal/mailing"
	"github.com/lumail/lumail/internal/pkg/logger"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	bulk             *mailing.BulkSender
	codec            *mailing.TokenCodec
	suppressions     *mailing.SuppressionStore
	provider         domain.ESPType
	defaultFromEmail string
	startedAt        time.Time
}

// NewHandlers creates a new Handlers instance
func NewHandlers(bulk *mailing.BulkSender, codec *mailing.TokenCodec, suppressions *mailing.SuppressionStore, provider domain.ESPType) *Handlers {
	return &Handlers{
		bulk:         bulk,
		codec:        codec,
		suppressions: suppressions,
		provider:     provider,
		startedAt:    time.Now(),
	}
}

// SetDefaultFromEmail sets the sender address applied when a send request
// omits fromEmail.
func (h *Handlers) SetDefaultFromEmail(email string) {
	h.defaultFromEmail = email
}

// sendResponse is the wire shape of a campaign send outcome.
type sendResponse struct {
	Success bool                    `json:"success"`
	Sent    int                     `json:"sent"`
	Failed  int                     `json:"failed"`
	Total   int                     `json:"total"`
	Errors  []domain.RecipientError `json:"errors,omitempty"`
}

// SendCampaign dispatches a campaign to every recipient in the request body.
func (h *Handlers) SendCampaign(w http.ResponseWriter, r *http.Request) {
	var req domain.SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.FromEmail == "" {
		req.FromEmail = h.defaultFromEmail
	}

	outcome, err := h.bulk.Send(r.Context(), &req)
	if err != nil {
		var vErr *mailing.ValidationError
		if errors.As(err, &vErr) {
			respondError(w, http.StatusBadRequest, vErr.Message)
			return
		}
		logger.Error("campaign send failed", "campaign_id", req.CampaignID, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to send campaign")
		return
	}

	respondJSON(w, http.StatusOK, sendResponse{
		// A campaign counts as delivered if anyone got it. Per-recipient
		// failures are reported in the errors list, not as an HTTP failure.
		Success: outcome.SentCount > 0,
		Sent:    outcome.SentCount,
		Failed:  outcome.FailedCount,
		Total:   outcome.TotalCount,
		Errors:  outcome.PerRecipientErrors,
	})
}

// Unsubscribe verifies the signed token from an email footer link and
// records the suppression. It answers with a human-facing HTML page.
func (h *Handlers) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		respondUnsubscribeError(w)
		return
	}

	claims, err := h.codec.Verify(token, time.Now())
	if err != nil {
		var tErr *mailing.TokenError
		if errors.As(err, &tErr) {
			logger.Info("unsubscribe token rejected", "reason", string(tErr.Reason))
		}
		respondUnsubscribeError(w)
		return
	}

	if err := h.suppressions.Suppress(r.Context(), claims.Email, claims.CampaignID); err != nil {
		logger.Error("failed to record suppression", "email", claims.Email, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to process unsubscribe")
		return
	}

	logger.Info("recipient unsubscribed",
		"email", claims.Email,
		"campaign_id", claims.CampaignID)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := unsubscribeSuccessTmpl.Execute(w, map[string]string{"Email": claims.Email}); err != nil {
		logger.Error("failed to render unsubscribe page", "email", claims.Email, "error", err)
	}
}

// ListSuppressions returns the suppression list sorted by address. The
// limit query parameter caps the page size.
func (h *Handlers) ListSuppressions(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	entries, err := h.suppressions.List(r.Context(), limit)
	if err != nil {
		logger.Error("failed to list suppressions", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list suppressions")
		return
	}

	count, err := h.suppressions.Count(r.Context())
	if err != nil {
		logger.Error("failed to count suppressions", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list suppressions")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"suppressions": entries,
		"total":        count,
	})
}

// RemoveSuppression deletes an address from the suppression list so it
// can receive campaigns again.
func (h *Handlers) RemoveSuppression(w http.ResponseWriter, r *http.Request) {
	email, err := url.PathUnescape(chi.URLParam(r, "email"))
	if err != nil || email == "" {
		respondError(w, http.StatusBadRequest, "invalid email")
		return
	}

	removed, err := h.suppressions.Remove(r.Context(), email)
	if err != nil {
		logger.Error("failed to remove suppression", "email", email, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to remove suppression")
		return
	}
	if !removed {
		respondError(w, http.StatusNotFound, "email is not suppressed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"email":   mailing.NormalizeEmail(email),
	})
}

// HealthCheck returns service liveness and the active provider.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "healthy",
		"provider": string(h.provider),
		"uptime":   time.Since(h.startedAt).Round(time.Second).String(),
	})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]interface{}{"success": false, "error": message})
}

func respondUnsubscribeError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusBadRequest)
	w.Write([]byte(unsubscribeErrorPage))
}

var unsubscribeSuccessTmpl = template.Must(template.New("unsubscribed").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>Unsubscribed</title>
  <style>
    body { font-family: -apple-system, sans-serif; background-color: #f5f5f5; margin: 0; padding: 40px 20px; }
    .card { max-width: 480px; margin: 0 auto; background: #ffffff; border-radius: 8px; padding: 40px 30px; text-align: center; box-shadow: 0 1px 3px rgba(0,0,0,0.1); }
    h1 { font-size: 22px; color: #333; }
    p { color: #666; line-height: 1.6; }
  </style>
</head>
<body>
  <div class="card">
    <h1>You're unsubscribed</h1>
    <p>{{.Email}} will no longer receive our newsletter.</p>
    <p>Changed your mind? Contact us and we'll add you back.</p>
  </div>
</body>
</html>
`))

const unsubscribeErrorPage = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>Invalid link</title>
  <style>
    body { font-family: -apple-system, sans-serif; background-color: #f5f5f5; margin: 0; padding: 40px 20px; }
    .card { max-width: 480px; margin: 0 auto; background: #ffffff; border-radius: 8px; padding: 40px 30px; text-align: center; box-shadow: 0 1px 3px rgba(0,0,0,0.1); }
    h1 { font-size: 22px; color: #333; }
    p { color: #666; line-height: 1.6; }
  </style>
</head>
<body>
  <div class="card">
    <h1>Invalid or expired unsubscribe link</h1>
    <p>This link is no longer valid. Please use the unsubscribe link from a recent email.</p>
  </div>
</body>
</html>
`
