package groupgift

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/billbatista/acasinha-gifts/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	svc, _ := newTestService(t)
	router := chi.NewRouter()
	router.Use(middleware.Identity)
	router.Mount("/group-gifts", NewHandler(svc, nil).Routes())

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, srv *httptest.Server, method, path, identity string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if identity != "" {
		req.Header.Set(middleware.IdentityHeader, identity)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("expected status %d, got %d", want, resp.StatusCode)
	}
}

func createOverHTTP(t *testing.T, srv *httptest.Server, identity string, target string) giftResponse {
	t.Helper()
	resp := doJSON(t, srv, http.MethodPost, "/group-gifts", identity, map[string]any{
		"title":         "Mom's birthday",
		"recipient_id":  1,
		"target_amount": json.Number(target),
		"deadline":      "2026-12-01",
	})
	expectStatus(t, resp, http.StatusCreated)
	return decodeBody[giftResponse](t, resp)
}

func TestHandlerCreate(t *testing.T) {
	srv := newTestServer(t)
	g := createOverHTTP(t, srv, "ana@example.com", "100.50")

	if g.ID == 0 {
		t.Fatal("expected an id")
	}
	if !g.TargetAmount.Equal(decimal.RequireFromString("100.50")) {
		t.Fatalf("expected target 100.50, got %s", g.TargetAmount)
	}
	if !g.RemainingAmount.Equal(g.TargetAmount) || !g.CurrentAmount.IsZero() {
		t.Fatalf("expected nothing raised, got current %s remaining %s", g.CurrentAmount, g.RemainingAmount)
	}
	if g.CreatedBy != "ana@example.com" {
		t.Fatalf("expected creator from identity header, got %q", g.CreatedBy)
	}
	if g.Deadline != "2026-12-01" || g.Status != StatusActive || g.OccasionType != DefaultOccasion {
		t.Fatalf("unexpected campaign %+v", g)
	}
	if len(g.SuggestedAmounts) != 4 {
		t.Fatalf("expected 4 suggested amounts, got %v", g.SuggestedAmounts)
	}
}

func TestHandlerCreateValidation(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name  string
		body  map[string]any
		field string
	}{
		{"missing title", map[string]any{"recipient_id": 1, "target_amount": 10}, "title"},
		{"fractional cents", map[string]any{"title": "x", "recipient_id": 1, "target_amount": json.Number("10.005")}, "target_amount"},
		{"negative target", map[string]any{"title": "x", "recipient_id": 1, "target_amount": -5}, "target_amount"},
		{"bad deadline", map[string]any{"title": "x", "recipient_id": 1, "target_amount": 10, "deadline": "next week"}, "deadline"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doJSON(t, srv, http.MethodPost, "/group-gifts", "ana@example.com", tt.body)
			expectStatus(t, resp, http.StatusBadRequest)
			body := decodeBody[map[string]string](t, resp)
			if body["field"] != tt.field {
				t.Fatalf("expected field %q, got %q", tt.field, body["field"])
			}
		})
	}
}

func TestHandlerContributions(t *testing.T) {
	srv := newTestServer(t)
	g := createOverHTTP(t, srv, "ana@example.com", "100")
	path := fmt.Sprintf("/group-gifts/%d/contributions", g.ID)

	resp := doJSON(t, srv, http.MethodPost, path, "", map[string]any{
		"name": "Bob", "email": "bob@x.com", "amount": json.Number("60"),
	})
	expectStatus(t, resp, http.StatusCreated)
	c := decodeBody[contributionResponse](t, resp)
	if c.ID == "" || !c.Amount.Equal(decimal.NewFromInt(60)) {
		t.Fatalf("unexpected contribution %+v", c)
	}

	t.Run("overfunding", func(t *testing.T) {
		resp := doJSON(t, srv, http.MethodPost, path, "", map[string]any{
			"name": "Carol", "email": "carol@x.com", "amount": json.Number("41"),
		})
		expectStatus(t, resp, http.StatusConflict)
		body := decodeBody[map[string]any](t, resp)
		if body["remaining"] != "40" {
			t.Fatalf("expected remaining 40, got %v", body["remaining"])
		}
	})

	t.Run("duplicate", func(t *testing.T) {
		resp := doJSON(t, srv, http.MethodPost, path, "", map[string]any{
			"name": "Bob", "email": "bob@x.com", "amount": json.Number("1"),
		})
		expectStatus(t, resp, http.StatusConflict)
	})

	t.Run("fractional cents", func(t *testing.T) {
		resp := doJSON(t, srv, http.MethodPost, path, "", map[string]any{
			"name": "Dan", "email": "dan@x.com", "amount": json.Number("1.001"),
		})
		expectStatus(t, resp, http.StatusBadRequest)
	})

	t.Run("invalid email", func(t *testing.T) {
		resp := doJSON(t, srv, http.MethodPost, path, "", map[string]any{
			"name": "Dan", "email": "dan", "amount": json.Number("1"),
		})
		expectStatus(t, resp, http.StatusBadRequest)
	})

	resp = doJSON(t, srv, http.MethodPost, path, "", map[string]any{
		"name": "Carol", "email": "carol@x.com", "amount": json.Number("40"),
	})
	expectStatus(t, resp, http.StatusCreated)

	resp = doJSON(t, srv, http.MethodGet, fmt.Sprintf("/group-gifts/%d", g.ID), "", nil)
	expectStatus(t, resp, http.StatusOK)
	got := decodeBody[giftResponse](t, resp)
	if got.Status != StatusCompleted || got.ProgressPercent != 100 || len(got.Contributors) != 2 {
		t.Fatalf("expected completed campaign with 2 contributors, got %+v", got)
	}
	if len(got.SuggestedAmounts) != 0 {
		t.Fatalf("expected no suggestions once funded, got %v", got.SuggestedAmounts)
	}
}

func TestHandlerNotFound(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/group-gifts/999", "/group-gifts/abc", "/group-gifts/0"} {
		resp := doJSON(t, srv, http.MethodGet, path, "", nil)
		expectStatus(t, resp, http.StatusNotFound)
	}
	resp := doJSON(t, srv, http.MethodPost, "/group-gifts/999/contributions", "", map[string]any{
		"name": "Bob", "email": "bob@x.com", "amount": 1,
	})
	expectStatus(t, resp, http.StatusNotFound)
	resp = doJSON(t, srv, http.MethodDelete, "/group-gifts/999", "", nil)
	expectStatus(t, resp, http.StatusNotFound)
}

func TestHandlerInvitations(t *testing.T) {
	srv := newTestServer(t)
	g := createOverHTTP(t, srv, "ana@example.com", "100")
	path := fmt.Sprintf("/group-gifts/%d/invitations", g.ID)

	resp := doJSON(t, srv, http.MethodPost, path, "", map[string]any{
		"invitations": []map[string]string{{"email": "alice+gifts@x.com", "name": "Alice"}, {"email": "nope"}},
	})
	expectStatus(t, resp, http.StatusOK)
	added := decodeBody[[]Invitation](t, resp)
	if len(added) != 1 || added[0].Email != "alice+gifts@x.com" || added[0].Status != InvitationPending {
		t.Fatalf("expected alice's invitation, got %+v", added)
	}

	resp = doJSON(t, srv, http.MethodPost, path, "", map[string]any{
		"invitations": []map[string]string{{"email": "alice+gifts@x.com"}},
	})
	expectStatus(t, resp, http.StatusOK)
	if again := decodeBody[[]Invitation](t, resp); len(again) != 0 {
		t.Fatalf("expected no new invitations, got %+v", again)
	}

	resp = doJSON(t, srv, http.MethodDelete, path+"/"+url.PathEscape("alice+gifts@x.com"), "", nil)
	expectStatus(t, resp, http.StatusOK)
	if body := decodeBody[map[string]bool](t, resp); !body["success"] {
		t.Fatalf("expected success, got %v", body)
	}

	resp = doJSON(t, srv, http.MethodGet, fmt.Sprintf("/group-gifts/%d", g.ID), "", nil)
	if got := decodeBody[giftResponse](t, resp); len(got.InvitedContributors) != 0 {
		t.Fatalf("expected no invitations left, got %+v", got.InvitedContributors)
	}
}

func TestHandlerUpdateRequiresCreator(t *testing.T) {
	srv := newTestServer(t)
	g := createOverHTTP(t, srv, "ana@example.com", "100")
	path := fmt.Sprintf("/group-gifts/%d", g.ID)
	body := map[string]any{"title": "Mom's 60th", "deadline": "2026-12-24"}

	resp := doJSON(t, srv, http.MethodPatch, path, "", body)
	expectStatus(t, resp, http.StatusUnauthorized)

	resp = doJSON(t, srv, http.MethodPatch, path, "bob@x.com", body)
	expectStatus(t, resp, http.StatusForbidden)

	resp = doJSON(t, srv, http.MethodPatch, path, "ana@example.com", body)
	expectStatus(t, resp, http.StatusOK)
	got := decodeBody[giftResponse](t, resp)
	if got.Title != "Mom's 60th" || got.Deadline != "2026-12-24" {
		t.Fatalf("unexpected update result %+v", got)
	}
}

func TestHandlerList(t *testing.T) {
	srv := newTestServer(t)
	first := createOverHTTP(t, srv, "ana@example.com", "100")
	second := createOverHTTP(t, srv, "bea@example.com", "50")

	resp := doJSON(t, srv, http.MethodGet, "/group-gifts", "", nil)
	expectStatus(t, resp, http.StatusOK)
	all := decodeBody[[]giftResponse](t, resp)
	if len(all) != 2 || all[0].ID != second.ID || all[1].ID != first.ID {
		t.Fatalf("expected newest first, got %+v", all)
	}

	resp = doJSON(t, srv, http.MethodGet, "/group-gifts?mine=1", "", nil)
	expectStatus(t, resp, http.StatusUnauthorized)

	resp = doJSON(t, srv, http.MethodGet, "/group-gifts?mine=1", "ana@example.com", nil)
	expectStatus(t, resp, http.StatusOK)
	mine := decodeBody[[]giftResponse](t, resp)
	if len(mine) != 1 || mine[0].ID != first.ID {
		t.Fatalf("expected only ana's campaign, got %+v", mine)
	}

	resp = doJSON(t, srv, http.MethodGet, "/group-gifts?recipient_id=x", "", nil)
	expectStatus(t, resp, http.StatusBadRequest)
}

func TestHandlerStats(t *testing.T) {
	srv := newTestServer(t)
	g := createOverHTTP(t, srv, "ana@example.com", "100")
	for _, c := range []struct{ email, amount string }{{"bob@x.com", "10"}, {"carol@x.com", "20.01"}} {
		resp := doJSON(t, srv, http.MethodPost, fmt.Sprintf("/group-gifts/%d/contributions", g.ID), "", map[string]any{
			"name": "x", "email": c.email, "amount": json.Number(c.amount),
		})
		expectStatus(t, resp, http.StatusCreated)
	}

	resp := doJSON(t, srv, http.MethodGet, "/group-gifts/stats", "", nil)
	expectStatus(t, resp, http.StatusOK)
	stats := decodeBody[statsResponse](t, resp)
	if stats.TotalGroupGifts != 1 || stats.ActiveGroupGifts != 1 || stats.TotalContributors != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if !stats.TotalAmount.Equal(decimal.RequireFromString("30.01")) {
		t.Fatalf("expected total 30.01, got %s", stats.TotalAmount)
	}
	if !stats.AverageContribution.Equal(decimal.RequireFromString("15.01")) {
		t.Fatalf("expected average 15.01, got %s", stats.AverageContribution)
	}
}

func TestHandlerRejectsAmountsBeyondRange(t *testing.T) {
	srv := newTestServer(t)
	g := createOverHTTP(t, srv, "ana@example.com", "100")

	resp := doJSON(t, srv, http.MethodPost, fmt.Sprintf("/group-gifts/%d/contributions", g.ID), "", map[string]any{
		"name": "Bob", "email": "bob@x.com", "amount": json.Number("184467440737095517.16"),
	})
	expectStatus(t, resp, http.StatusBadRequest)
	if body := decodeBody[map[string]string](t, resp); body["field"] != "amount" {
		t.Fatalf("expected amount field error, got %v", body)
	}

	resp = doJSON(t, srv, http.MethodPost, "/group-gifts", "ana@example.com", map[string]any{
		"title": "x", "recipient_id": 1, "target_amount": json.Number("92233720368547758.08"),
	})
	expectStatus(t, resp, http.StatusBadRequest)

	resp = doJSON(t, srv, http.MethodGet, fmt.Sprintf("/group-gifts/%d", g.ID), "", nil)
	if got := decodeBody[giftResponse](t, resp); !got.CurrentAmount.IsZero() || len(got.Contributors) != 0 {
		t.Fatalf("rejected amount was recorded: %+v", got)
	}
}

func TestHandlerCreateUsesCallerIdentity(t *testing.T) {
	srv := newTestServer(t)
	body := map[string]any{
		"title": "Mom's birthday", "recipient_id": 1, "target_amount": 100, "created_by": "mallory@x.com",
	}

	resp := doJSON(t, srv, http.MethodPost, "/group-gifts", "ana@example.com", body)
	expectStatus(t, resp, http.StatusCreated)
	if g := decodeBody[giftResponse](t, resp); g.CreatedBy != "ana@example.com" {
		t.Fatalf("expected creator from identity header, got %q", g.CreatedBy)
	}

	resp = doJSON(t, srv, http.MethodPost, "/group-gifts", "", body)
	expectStatus(t, resp, http.StatusCreated)
	if g := decodeBody[giftResponse](t, resp); g.CreatedBy != "mallory@x.com" {
		t.Fatalf("expected creator from body without a header, got %q", g.CreatedBy)
	}
}
