package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCurrentSubscription(t *testing.T) {
	ta := newTestApp()
	ta.seedUser("u1", 0)
	if _, err := ta.app.Subs.CreateOrRenew(context.Background(), "u1", 2); err != nil {
		t.Fatalf("CreateOrRenew() unexpected error: %v", err)
	}

	req := authedRequest(http.MethodGet, "/subscriptions/current", "u1", nil)
	rec := httptest.NewRecorder()
	ta.app.CurrentSubscription(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var got subscriptionDTO
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.PlanID != 2 || !got.Active {
		t.Fatalf("expected active plan 2, got %+v", got)
	}
	if got.PlanName != "Pro" {
		t.Fatalf("expected display name Pro, got %q", got.PlanName)
	}
}

func TestCurrentSubscriptionNone(t *testing.T) {
	ta := newTestApp()
	ta.seedUser("u1", 0)

	req := authedRequest(http.MethodGet, "/subscriptions/current", "u1", nil)
	rec := httptest.NewRecorder()
	ta.app.CurrentSubscription(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestCancelSubscription(t *testing.T) {
	ta := newTestApp()
	ta.seedUser("u1", 0)
	if _, err := ta.app.Subs.CreateOrRenew(context.Background(), "u1", 1); err != nil {
		t.Fatalf("CreateOrRenew() unexpected error: %v", err)
	}

	req := authedRequest(http.MethodPost, "/subscriptions/cancel", "u1", nil)
	rec := httptest.NewRecorder()
	ta.app.CancelSubscription(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var got subscriptionDTO
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Active {
		t.Fatalf("expected canceled subscription to be inactive, got %+v", got)
	}
	if got.Status != "canceled" {
		t.Fatalf("expected status canceled, got %q", got.Status)
	}

	// A canceled subscription no longer shows up as current.
	req = authedRequest(http.MethodGet, "/subscriptions/current", "u1", nil)
	rec = httptest.NewRecorder()
	ta.app.CurrentSubscription(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after cancel, got %d", rec.Code)
	}
}

func TestListPlans(t *testing.T) {
	ta := newTestApp()

	req := httptest.NewRequest(http.MethodGet, "/plans", nil)
	rec := httptest.NewRecorder()
	ta.app.ListPlans(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got struct {
		Items []planDTO `json:"items"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(got.Items) != 2 {
		t.Fatalf("expected 2 plans, got %d", len(got.Items))
	}
}
