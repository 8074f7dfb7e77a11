package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"vesture/internal/domain"
	"vesture/internal/middleware"
	"vesture/internal/payment"
)

// newPayPalTestServer fakes the two gateway calls the payment handlers make.
func newPayPalTestServer(t *testing.T, orderStatus string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/v1/oauth2/token":
			json.NewEncoder(w).Encode(map[string]any{"access_token": "tok", "expires_in": 3600})
		case r.URL.Path == "/v2/checkout/orders" && r.Method == http.MethodPost:
			json.NewEncoder(w).Encode(map[string]any{
				"id": "ORD-1",
				"links": []map[string]string{
					{"rel": "approve", "href": "https://paypal.example/approve/ORD-1"},
				},
			})
		case strings.HasSuffix(r.URL.Path, "/capture"):
			json.NewEncoder(w).Encode(map[string]any{
				"id":     "ORD-1",
				"status": "COMPLETED",
				"purchase_units": []map[string]any{{
					"custom_id": "user:u1|plan:2",
					"payments":  map[string]any{"captures": []map[string]any{{"id": "CAP-1"}}},
				}},
			})
		case strings.HasPrefix(r.URL.Path, "/v2/checkout/orders/"):
			json.NewEncoder(w).Encode(map[string]any{
				"id":     "ORD-1",
				"status": orderStatus,
				"purchase_units": []map[string]any{{
					"custom_id": "user:u1|plan:2",
				}},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]any{"error": "not found"})
		}
	}))
}

func (ta *testApp) withPayPal(srv *httptest.Server) {
	ta.app.PayPal = payment.NewPayPalClient(payment.PayPalOptions{
		ClientID:     "id",
		ClientSecret: "secret",
		BaseURL:      srv.URL,
		HTTPClient:   srv.Client(),
	})
}

func TestCreatePaymentOrder(t *testing.T) {
	srv := newPayPalTestServer(t, "CREATED")
	defer srv.Close()
	ta := newTestApp()
	ta.withPayPal(srv)
	ta.seedUser("u1", 0)

	rec := httptest.NewRecorder()
	req := authedRequest(http.MethodPost, "/payments/orders", "u1", strings.NewReader(`{"plan_id":2}`))
	ta.app.CreatePaymentOrder(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	var resp createOrderResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.OrderID != "ORD-1" || resp.ApprovalURL == "" {
		t.Fatalf("response = %+v, want ORD-1 with approval url", resp)
	}
	if resp.Currency != "USD" || resp.AmountCents != 1999 {
		t.Fatalf("response = %+v, want 1999 USD", resp)
	}

	txn, err := ta.txns.GetByMerchantOrderID(context.Background(), "ORD-1")
	if err != nil {
		t.Fatalf("transaction not persisted: %v", err)
	}
	if txn.Status != domain.TransactionStatusPending || txn.PlanID == nil || *txn.PlanID != 2 {
		t.Fatalf("transaction = %+v, want pending plan 2", txn)
	}
}

func TestCreatePaymentOrderIndianCurrency(t *testing.T) {
	srv := newPayPalTestServer(t, "CREATED")
	defer srv.Close()
	ta := newTestApp()
	ta.withPayPal(srv)
	ta.seedUser("u1", 0)

	req := authedRequest(http.MethodPost, "/payments/orders", "u1", strings.NewReader(`{"plan_id":2}`))
	req.Header.Set("X-Country-Code", "IN")
	rec := httptest.NewRecorder()

	// run through the country middleware so the handler sees the resolved code
	middleware.Country(nil)(http.HandlerFunc(ta.app.CreatePaymentOrder)).ServeHTTP(rec, req)

	var resp createOrderResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Currency != "INR" {
		t.Fatalf("currency = %q, want INR", resp.Currency)
	}
}

func TestCreatePaymentOrderUnknownPlan(t *testing.T) {
	ta := newTestApp()
	ta.seedUser("u1", 0)

	rec := httptest.NewRecorder()
	req := authedRequest(http.MethodPost, "/payments/orders", "u1", strings.NewReader(`{"plan_id":99}`))
	ta.app.CreatePaymentOrder(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestPaymentOrderStatusFinalizesCompleted(t *testing.T) {
	srv := newPayPalTestServer(t, "COMPLETED")
	defer srv.Close()
	ta := newTestApp()
	ta.withPayPal(srv)
	ta.seedUser("u1", 0)
	planID := int64(2)
	if _, err := ta.txns.Create(context.Background(), &domain.Transaction{
		UserID: "u1", PlanID: &planID, MerchantOrderID: "ORD-1", AmountCents: 1999, Currency: "USD",
	}); err != nil {
		t.Fatalf("seed transaction: %v", err)
	}

	rec := httptest.NewRecorder()
	req := withURLParam(authedRequest(http.MethodGet, "/payments/orders/ORD-1/status", "u1", nil), "orderID", "ORD-1")
	ta.app.PaymentOrderStatus(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var resp orderStatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.PaymentConfirmed || resp.GatewayStatus != "COMPLETED" {
		t.Fatalf("response = %+v, want confirmed COMPLETED", resp)
	}

	user, _ := ta.users.GetByID(context.Background(), "u1")
	if user.TokenBalance != 200 {
		t.Fatalf("balance = %d, want 200 after finalize", user.TokenBalance)
	}
	sub, err := ta.subs.GetByUserID(context.Background(), "u1")
	if err != nil || sub.PlanID != 2 {
		t.Fatalf("subscription = %+v (%v), want plan 2", sub, err)
	}
}

func TestPaymentOrderStatusCapturesApproved(t *testing.T) {
	srv := newPayPalTestServer(t, "APPROVED")
	defer srv.Close()
	ta := newTestApp()
	ta.withPayPal(srv)
	ta.seedUser("u1", 0)
	planID := int64(2)
	if _, err := ta.txns.Create(context.Background(), &domain.Transaction{
		UserID: "u1", PlanID: &planID, MerchantOrderID: "ORD-1", AmountCents: 1999, Currency: "USD",
	}); err != nil {
		t.Fatalf("seed transaction: %v", err)
	}

	rec := httptest.NewRecorder()
	req := withURLParam(authedRequest(http.MethodGet, "/payments/orders/ORD-1/status", "u1", nil), "orderID", "ORD-1")
	ta.app.PaymentOrderStatus(rec, req)
	var resp orderStatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.PaymentConfirmed {
		t.Fatalf("approved order was not captured and finalized: %+v", resp)
	}
	txn, _ := ta.txns.GetByMerchantOrderID(context.Background(), "ORD-1")
	if txn.GatewayTransactionID == nil || *txn.GatewayTransactionID != "CAP-1" {
		t.Fatalf("gateway txn id = %v, want CAP-1", txn.GatewayTransactionID)
	}
}

func TestPaymentOrderStatusPendingNoSideEffects(t *testing.T) {
	srv := newPayPalTestServer(t, "PAYER_ACTION_REQUIRED")
	defer srv.Close()
	ta := newTestApp()
	ta.withPayPal(srv)
	ta.seedUser("u1", 0)
	planID := int64(2)
	if _, err := ta.txns.Create(context.Background(), &domain.Transaction{
		UserID: "u1", PlanID: &planID, MerchantOrderID: "ORD-1", AmountCents: 1999, Currency: "USD",
	}); err != nil {
		t.Fatalf("seed transaction: %v", err)
	}

	rec := httptest.NewRecorder()
	req := withURLParam(authedRequest(http.MethodGet, "/payments/orders/ORD-1/status", "u1", nil), "orderID", "ORD-1")
	ta.app.PaymentOrderStatus(rec, req)
	var resp orderStatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.PaymentConfirmed {
		t.Fatalf("pending order reported confirmed")
	}
	if resp.GatewayStatus != "PAYER_ACTION_REQUIRED" {
		t.Fatalf("gateway status = %q passed through wrong", resp.GatewayStatus)
	}
	user, _ := ta.users.GetByID(context.Background(), "u1")
	if user.TokenBalance != 0 {
		t.Fatalf("balance = %d, want 0", user.TokenBalance)
	}
}

func TestPaymentWebhookCaptureCompleted(t *testing.T) {
	ta := newTestApp()
	ta.seedUser("u1", 0)
	planID := int64(2)
	if _, err := ta.txns.Create(context.Background(), &domain.Transaction{
		UserID: "u1", PlanID: &planID, MerchantOrderID: "ORD-1", AmountCents: 1999, Currency: "USD",
	}); err != nil {
		t.Fatalf("seed transaction: %v", err)
	}

	event := `{
		"event_type": "PAYMENT.CAPTURE.COMPLETED",
		"resource": {
			"id": "CAP-1",
			"custom_id": "user:u1|plan:2",
			"supplementary_data": {"related_ids": {"order_id": "ORD-1"}}
		}
	}`
	rec := httptest.NewRecorder()
	ta.app.PaymentWebhook(rec, httptest.NewRequest(http.MethodPost, "/payments/webhook", strings.NewReader(event)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	txn, _ := ta.txns.GetByMerchantOrderID(context.Background(), "ORD-1")
	if txn.Status != domain.TransactionStatusCompleted {
		t.Fatalf("transaction status = %q, want COMPLETED", txn.Status)
	}
	user, _ := ta.users.GetByID(context.Background(), "u1")
	if user.TokenBalance != 200 {
		t.Fatalf("balance = %d, want 200", user.TokenBalance)
	}
}

func TestPaymentWebhookRedelivery(t *testing.T) {
	ta := newTestApp()
	ta.seedUser("u1", 0)
	planID := int64(2)
	if _, err := ta.txns.Create(context.Background(), &domain.Transaction{
		UserID: "u1", PlanID: &planID, MerchantOrderID: "ORD-1", AmountCents: 1999, Currency: "USD",
	}); err != nil {
		t.Fatalf("seed transaction: %v", err)
	}

	event := `{
		"event_type": "PAYMENT.CAPTURE.COMPLETED",
		"resource": {
			"id": "CAP-1",
			"custom_id": "user:u1|plan:2",
			"supplementary_data": {"related_ids": {"order_id": "ORD-1"}}
		}
	}`
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		ta.app.PaymentWebhook(rec, httptest.NewRequest(http.MethodPost, "/payments/webhook", strings.NewReader(event)))
		if rec.Code != http.StatusOK {
			t.Fatalf("delivery %d status = %d, want 200", i, rec.Code)
		}
	}

	user, _ := ta.users.GetByID(context.Background(), "u1")
	if user.TokenBalance != 200 {
		t.Fatalf("balance = %d after redelivery, want single allocation of 200", user.TokenBalance)
	}
}

func TestPaymentWebhookDenied(t *testing.T) {
	ta := newTestApp()
	ta.seedUser("u1", 0)
	planID := int64(2)
	if _, err := ta.txns.Create(context.Background(), &domain.Transaction{
		UserID: "u1", PlanID: &planID, MerchantOrderID: "ORD-1", AmountCents: 1999, Currency: "USD",
	}); err != nil {
		t.Fatalf("seed transaction: %v", err)
	}

	event := `{
		"event_type": "PAYMENT.CAPTURE.DENIED",
		"resource": {
			"id": "CAP-1",
			"supplementary_data": {"related_ids": {"order_id": "ORD-1"}}
		}
	}`
	rec := httptest.NewRecorder()
	ta.app.PaymentWebhook(rec, httptest.NewRequest(http.MethodPost, "/payments/webhook", strings.NewReader(event)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	txn, _ := ta.txns.GetByMerchantOrderID(context.Background(), "ORD-1")
	if txn.Status != domain.TransactionStatusFailed {
		t.Fatalf("transaction status = %q, want FAILED", txn.Status)
	}
}

func TestPaymentWebhookUnknownEvent(t *testing.T) {
	ta := newTestApp()
	rec := httptest.NewRecorder()
	ta.app.PaymentWebhook(rec, httptest.NewRequest(http.MethodPost, "/payments/webhook",
		strings.NewReader(`{"event_type":"BILLING.SUBSCRIPTION.CREATED","resource":{}}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["processed"] != false {
		t.Fatalf("unknown event reported processed")
	}
}
