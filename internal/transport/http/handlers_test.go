package transporthttp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/kkkkikiki/donation/internal/gateway"
	"github.com/kkkkikiki/donation/internal/ledger"
	"github.com/kkkkikiki/donation/internal/store"
)

func newTestRouter(t *testing.T) (http.Handler, *gateway.Bank) {
	t.Helper()
	bank := gateway.NewBank()
	svc := ledger.New(store.NewMemory(), bank, ledger.Options{CustodyAccount: "custody"})
	router := NewRouter(&Handler{Ledger: svc, Logger: zerolog.Nop()})
	return router, bank
}

func do(t *testing.T, router http.Handler, method, path, caller, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if caller != "" {
		req.Header.Set(CallerHeader, caller)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeProblem(t *testing.T, rr *httptest.ResponseRecorder) Problem {
	t.Helper()
	if ct := rr.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Fatalf("expected problem+json content type, got %q", ct)
	}
	var p Problem
	if err := json.NewDecoder(rr.Body).Decode(&p); err != nil {
		t.Fatalf("decode problem: %v", err)
	}
	return p
}

func TestMissingCallerRejected(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := do(t, router, http.MethodPost, "/v1/initialize", "", "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	p := decodeProblem(t, rr)
	if p.Code != "MISSING_CALLER" {
		t.Fatalf("expected MISSING_CALLER, got %q", p.Code)
	}
}

func TestCampaignLifecycleOverHTTP(t *testing.T) {
	router, bank := newTestRouter(t)
	bank.Credit("dana", 1000)

	if rr := do(t, router, http.MethodPost, "/v1/initialize", "owner", ""); rr.Code != http.StatusOK {
		t.Fatalf("initialize: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	rr := do(t, router, http.MethodPost, "/v1/campaigns", "alice",
		`{"title":"Clean Water","description":"wells","goal_amount":1000,"duration":3600}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&created); err != nil || created.ID == "" {
		t.Fatalf("decode create response: %v %q", err, created.ID)
	}

	rr = do(t, router, http.MethodPost, "/v1/campaigns/"+created.ID+"/donations", "dana", `{"amount":400}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("donate: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = do(t, router, http.MethodGet, "/v1/campaigns/"+created.ID, "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", rr.Code)
	}
	var campaign struct {
		CurrentAmount int64 `json:"current_amount"`
		IsActive      bool  `json:"is_active"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&campaign); err != nil {
		t.Fatalf("decode campaign: %v", err)
	}
	if campaign.CurrentAmount != 400 || !campaign.IsActive {
		t.Fatalf("unexpected campaign state: %+v", campaign)
	}

	// Withdrawal while the campaign runs maps to 422.
	rr = do(t, router, http.MethodPost, "/v1/campaigns/"+created.ID+"/withdraw", "alice", "")
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("withdraw: expected 422, got %d", rr.Code)
	}
	if p := decodeProblem(t, rr); p.Code != string(ledger.CodeCampaignStillRunning) {
		t.Fatalf("expected CAMPAIGN_STILL_RUNNING, got %q", p.Code)
	}

	// A non-creator edit maps to 403.
	rr = do(t, router, http.MethodPatch, "/v1/campaigns/"+created.ID, "mallory", `{"is_active":false}`)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("edit: expected 403, got %d", rr.Code)
	}

	rr = do(t, router, http.MethodGet, "/v1/users/dana/", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("user details: expected 200, got %d", rr.Code)
	}
	var details struct {
		TotalDonated int64 `json:"total_donated"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&details); err != nil {
		t.Fatalf("decode details: %v", err)
	}
	if details.TotalDonated != 400 {
		t.Fatalf("expected total donated 400, got %d", details.TotalDonated)
	}
}

func TestDonateFailureMapping(t *testing.T) {
	router, _ := newTestRouter(t)

	if rr := do(t, router, http.MethodPost, "/v1/initialize", "owner", ""); rr.Code != http.StatusOK {
		t.Fatalf("initialize: %d", rr.Code)
	}

	rr := do(t, router, http.MethodPost, "/v1/campaigns/nope/donations", "dana", `{"amount":5}`)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if p := decodeProblem(t, rr); p.Code != string(ledger.CodeCampaignNotFound) {
		t.Fatalf("expected CAMPAIGN_NOT_FOUND, got %q", p.Code)
	}

	rr = do(t, router, http.MethodPost, "/v1/campaigns/nope/donations", "dana", `{"amount":5,"extra":true}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", rr.Code)
	}
}

func TestSecondInitializeConflicts(t *testing.T) {
	router, _ := newTestRouter(t)

	if rr := do(t, router, http.MethodPost, "/v1/initialize", "owner", ""); rr.Code != http.StatusOK {
		t.Fatalf("initialize: %d", rr.Code)
	}
	rr := do(t, router, http.MethodPost, "/v1/initialize", "owner", "")
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	if p := decodeProblem(t, rr); p.Code != string(ledger.CodeAlreadyInitialized) {
		t.Fatalf("expected ALREADY_INITIALIZED, got %q", p.Code)
	}
}
