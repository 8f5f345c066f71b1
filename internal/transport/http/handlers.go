// Package transporthttp exposes the ledger operations over HTTP. The
// host envelope assigns each call a trusted caller identity via the
// X-Caller-Id header; the transport never derives identity itself.
package transporthttp

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/kkkkikiki/donation/internal/ledger"
)

// CallerHeader carries the host-assigned caller identity.
const CallerHeader = "X-Caller-Id"

// Handler serves the ledger API.
type Handler struct {
	Ledger *ledger.Service
	Logger zerolog.Logger
}

// NewRouter builds the chi router with middleware and all routes.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID, Logger(h.Logger))

	r.Post("/v1/initialize", h.Initialize)

	r.Route("/v1/campaigns", func(r chi.Router) {
		r.Post("/", h.CreateCampaign)
		r.Get("/", h.ListCampaigns)
		r.Get("/{id}", h.GetCampaign)
		r.Patch("/{id}", h.EditCampaign)
		r.Delete("/{id}", h.DeleteCampaign)
		r.Post("/{id}/donations", h.Donate)
		r.Post("/{id}/withdraw", h.Withdraw)
	})

	r.Route("/v1/users/{identity}", func(r chi.Router) {
		r.Get("/", h.GetUserDetails)
		r.Get("/campaigns", h.GetUsersCampaigns)
	})

	return r
}

func decodeJSONStrict(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// caller extracts the host-assigned identity, or writes a problem and
// returns false.
func caller(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.Header.Get(CallerHeader)
	if id == "" {
		WriteProblem(w, http.StatusUnauthorized, "MISSING_CALLER", "caller identity header is required")
		return "", false
	}
	return id, true
}

func (h *Handler) Initialize(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	if err := h.Ledger.Initialize(r.Context(), id); err != nil {
		WriteLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "initialized"})
}

func (h *Handler) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	var in ledger.CreateCampaignInput
	if err := decodeJSONStrict(r, &in); err != nil {
		WriteProblem(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	campaignID, err := h.Ledger.CreateCampaign(r.Context(), id, in)
	if err != nil {
		WriteLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": campaignID})
}

func (h *Handler) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	campaigns, err := h.Ledger.GetCampaignsData(r.Context())
	if err != nil {
		WriteLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"campaigns": campaigns})
}

func (h *Handler) GetCampaign(w http.ResponseWriter, r *http.Request) {
	campaign, err := h.Ledger.GetCampaign(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, campaign)
}

type donationRequest struct {
	Amount int64 `json:"amount"`
}

func (h *Handler) Donate(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	var req donationRequest
	if err := decodeJSONStrict(r, &req); err != nil {
		WriteProblem(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	if err := h.Ledger.Donate(r.Context(), id, chi.URLParam(r, "id"), req.Amount); err != nil {
		WriteLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "accepted"})
}

func (h *Handler) EditCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	var in ledger.EditCampaignInput
	if err := decodeJSONStrict(r, &in); err != nil {
		WriteProblem(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	if err := h.Ledger.EditCampaign(r.Context(), id, chi.URLParam(r, "id"), in); err != nil {
		WriteLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handler) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	if err := h.Ledger.DeleteCampaign(r.Context(), id, chi.URLParam(r, "id")); err != nil {
		WriteLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	amount, err := h.Ledger.WithdrawCampaignAmount(r.Context(), id, chi.URLParam(r, "id"))
	if err != nil {
		WriteLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"amount": amount})
}

func (h *Handler) GetUsersCampaigns(w http.ResponseWriter, r *http.Request) {
	out, err := h.Ledger.GetUsersCampaigns(r.Context(), chi.URLParam(r, "identity"))
	if err != nil {
		WriteLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetUserDetails(w http.ResponseWriter, r *http.Request) {
	details, err := h.Ledger.GetUserDetails(r.Context(), chi.URLParam(r, "identity"))
	if err != nil {
		WriteLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}
