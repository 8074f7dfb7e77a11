// Package payment integrates the PayPal Orders v2 gateway and reconciles
// confirmed payments into subscriptions and token grants.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	sandboxBaseURL = "https://api-m.sandbox.paypal.com"
	prodBaseURL    = "https://api-m.paypal.com"

	// OrderStatusCompleted is the gateway's success sentinel for a
	// captured order.
	OrderStatusCompleted = "COMPLETED"
)

// PayPalOptions configures a PayPalClient.
type PayPalOptions struct {
	ClientID     string
	ClientSecret string
	Environment  string // SANDBOX or PROD
	BaseURL      string // overrides Environment when set
	ReturnURL    string
	CancelURL    string
	HTTPClient   *http.Client
	Timeout      time.Duration
}

// PayPalClient calls the PayPal Orders v2 API. Outbound calls carry a
// conservative timeout and are never retried here; the gateway redelivers
// webhooks and clients re-poll.
type PayPalClient struct {
	httpClient   *http.Client
	baseURL      string
	clientID     string
	clientSecret string
	returnURL    string
	cancelURL    string

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewPayPalClient constructs a client for the configured environment.
func NewPayPalClient(opts PayPalOptions) *PayPalClient {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		if strings.EqualFold(opts.Environment, "PROD") {
			base = prodBaseURL
		} else {
			base = sandboxBaseURL
		}
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &PayPalClient{
		httpClient:   client,
		baseURL:      base,
		clientID:     opts.ClientID,
		clientSecret: opts.ClientSecret,
		returnURL:    opts.ReturnURL,
		cancelURL:    opts.CancelURL,
	}
}

type oauthResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// getAccessToken fetches and caches the client-credentials token. The
// cached token is discarded 30 seconds before the gateway-reported expiry.
func (c *PayPalClient) getAccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.clientID, c.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("paypal: oauth request: %w", err)
	}
	defer resp.Body.Close()

	var token oauthResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return "", fmt.Errorf("paypal: decode oauth response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest || token.AccessToken == "" {
		return "", fmt.Errorf("paypal: oauth http %d", resp.StatusCode)
	}

	ttl := time.Duration(token.ExpiresIn-30) * time.Second
	if ttl < time.Minute {
		ttl = time.Minute
	}
	c.accessToken = token.AccessToken
	c.tokenExpiry = time.Now().Add(ttl)
	return c.accessToken, nil
}

// CreateOrderParams describes a checkout order to create.
type CreateOrderParams struct {
	AmountCents int64
	Currency    string
	UserID      string
	PlanID      *int64
}

// Order is the client-facing result of order creation.
type Order struct {
	OrderID     string
	ApprovalURL string
	Request     json.RawMessage
	Response    json.RawMessage
}

// CreateOrder creates a PayPal order and returns the approval link. The user
// and plan are embedded in custom_id so webhooks can be correlated even when
// the local transaction row is missing.
func (c *PayPalClient) CreateOrder(ctx context.Context, params CreateOrderParams) (*Order, error) {
	currency := params.Currency
	if currency == "" {
		currency = "USD"
	}
	planRef := "plan_0"
	planPart := ""
	if params.PlanID != nil {
		planRef = fmt.Sprintf("plan_%d", *params.PlanID)
		planPart = fmt.Sprintf("%d", *params.PlanID)
	}

	payload := map[string]any{
		"intent": "CAPTURE",
		"payment_source": map[string]any{
			"paypal": map[string]any{
				"experience_context": map[string]any{
					"return_url":  c.returnURL,
					"cancel_url":  c.cancelURL,
					"user_action": "PAY_NOW",
				},
			},
		},
		"purchase_units": []map[string]any{{
			"reference_id": planRef,
			"custom_id":    fmt.Sprintf("user:%s|plan:%s", params.UserID, planPart),
			"amount": map[string]any{
				"currency_code": currency,
				"value":         fmt.Sprintf("%d.%02d", params.AmountCents/100, params.AmountCents%100),
			},
		}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	raw, status, err := c.doAuthorized(ctx, http.MethodPost, "/v2/checkout/orders", body)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		ID    string `json:"id"`
		Links []struct {
			Rel  string `json:"rel"`
			Href string `json:"href"`
		} `json:"links"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("paypal: decode order response: %w", err)
	}
	if status >= http.StatusBadRequest || parsed.ID == "" {
		return nil, fmt.Errorf("paypal: create order http %d: %s", status, raw)
	}

	order := &Order{OrderID: parsed.ID, Request: body, Response: raw}
	for _, link := range parsed.Links {
		if link.Rel == "approve" {
			order.ApprovalURL = link.Href
			break
		}
	}
	return order, nil
}

// OrderState is the live gateway view of an order.
type OrderState struct {
	OrderID     string
	Status      string
	CustomID    string
	CaptureID   *string
	PaymentMode *string
	Raw         json.RawMessage
}

// Completed reports whether the gateway considers the order paid.
func (s OrderState) Completed() bool {
	return s.Status == OrderStatusCompleted
}

// GetOrder fetches the live order state from the gateway.
func (c *PayPalClient) GetOrder(ctx context.Context, merchantOrderID string) (*OrderState, error) {
	if merchantOrderID == "" {
		return nil, errors.New("paypal: merchant order id required")
	}
	raw, status, err := c.doAuthorized(ctx, http.MethodGet, "/v2/checkout/orders/"+merchantOrderID, nil)
	if err != nil {
		return nil, err
	}
	if status >= http.StatusBadRequest {
		return nil, fmt.Errorf("paypal: get order http %d: %s", status, raw)
	}
	return parseOrderState(raw)
}

// CaptureOrder captures an approved order.
func (c *PayPalClient) CaptureOrder(ctx context.Context, merchantOrderID string) (*OrderState, error) {
	if merchantOrderID == "" {
		return nil, errors.New("paypal: merchant order id required")
	}
	raw, status, err := c.doAuthorized(ctx, http.MethodPost, "/v2/checkout/orders/"+merchantOrderID+"/capture", nil)
	if err != nil {
		return nil, err
	}
	if status >= http.StatusBadRequest {
		return nil, fmt.Errorf("paypal: capture order http %d: %s", status, raw)
	}
	return parseOrderState(raw)
}

func parseOrderState(raw []byte) (*OrderState, error) {
	var parsed struct {
		ID            string `json:"id"`
		Status        string `json:"status"`
		PurchaseUnits []struct {
			CustomID string `json:"custom_id"`
			Payments struct {
				Captures []struct {
					ID string `json:"id"`
				} `json:"captures"`
			} `json:"payments"`
		} `json:"purchase_units"`
		PaymentSource map[string]json.RawMessage `json:"payment_source"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("paypal: decode order state: %w", err)
	}

	state := &OrderState{OrderID: parsed.ID, Status: parsed.Status, Raw: raw}
	if len(parsed.PurchaseUnits) > 0 {
		state.CustomID = parsed.PurchaseUnits[0].CustomID
		if captures := parsed.PurchaseUnits[0].Payments.Captures; len(captures) > 0 && captures[0].ID != "" {
			captureID := captures[0].ID
			state.CaptureID = &captureID
		}
	}
	for mode := range parsed.PaymentSource {
		mode := strings.ToUpper(mode)
		state.PaymentMode = &mode
		break
	}
	return state, nil
}

func (c *PayPalClient) doAuthorized(ctx context.Context, method, path string, body []byte) (json.RawMessage, int, error) {
	accessToken, err := c.getAccessToken(ctx)
	if err != nil {
		return nil, 0, err
	}

	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("paypal: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("paypal: decode response: %w", err)
	}
	return raw, resp.StatusCode, nil
}

// ParseCustomID recovers the user and plan embedded at order creation from a
// custom_id of the form "user:<id>|plan:<id>".
func ParseCustomID(customID string) (userID string, planID *int64) {
	for _, part := range strings.Split(customID, "|") {
		key, value, found := strings.Cut(part, ":")
		if !found {
			continue
		}
		switch key {
		case "user":
			userID = value
		case "plan":
			if value != "" {
				var id int64
				if _, err := fmt.Sscanf(value, "%d", &id); err == nil {
					planID = &id
				}
			}
		}
	}
	return userID, planID
}
