package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"vesture/internal/domain"
	"vesture/internal/middleware"
	"vesture/internal/payment"
)

type createOrderRequest struct {
	PlanID int64 `json:"plan_id"`
}

type createOrderResponse struct {
	OrderID     string `json:"order_id"`
	ApprovalURL string `json:"approval_url"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
}

// currencyForCountry picks the billing currency from the resolved country.
func currencyForCountry(country string) string {
	if country == "IN" {
		return "INR"
	}
	return "USD"
}

func (a *App) CreatePaymentOrder(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	plan, err := a.Plans.GetByID(r.Context(), req.PlanID)
	if err != nil {
		a.domainError(w, r, err)
		return
	}

	currency := currencyForCountry(middleware.CountryFromContext(r.Context()))
	order, err := a.PayPal.CreateOrder(r.Context(), payment.CreateOrderParams{
		AmountCents: plan.PriceCents,
		Currency:    currency,
		UserID:      userID,
		PlanID:      &plan.ID,
	})
	if err != nil {
		a.Logger.Error().Err(err).Int64("plan_id", plan.ID).Msg("create gateway order failed")
		a.error(w, http.StatusBadGateway, "gateway_error", "failed to create payment order")
		return
	}

	if _, err := a.Txns.Create(r.Context(), &domain.Transaction{
		UserID:          userID,
		PlanID:          &plan.ID,
		MerchantOrderID: order.OrderID,
		AmountCents:     plan.PriceCents,
		Currency:        currency,
		Status:          domain.TransactionStatusPending,
		RequestPayload:  order.Request,
		ResponsePayload: order.Response,
	}); err != nil {
		// The gateway order exists either way; the reconciler recovers
		// context from custom_id when this row is missing.
		a.Logger.Error().Err(err).Str("merchant_order_id", order.OrderID).Msg("persist transaction failed")
	}

	a.json(w, http.StatusCreated, createOrderResponse{
		OrderID:     order.OrderID,
		ApprovalURL: order.ApprovalURL,
		AmountCents: plan.PriceCents,
		Currency:    currency,
	})
}

type orderStatusResponse struct {
	OrderID          string `json:"order_id"`
	GatewayStatus    string `json:"gateway_status"`
	PaymentConfirmed bool   `json:"payment_confirmed"`
	AlreadyFinalized bool   `json:"already_finalized"`
	PlanID           *int64 `json:"plan_id,omitempty"`
}

// PaymentOrderStatus polls the gateway for the order state and, when the
// order is paid, drives the same finalize path the webhook uses. Approved but
// uncaptured orders are captured first.
func (a *App) PaymentOrderStatus(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	orderID := chi.URLParam(r, "orderID")

	state, err := a.PayPal.GetOrder(r.Context(), orderID)
	if err != nil {
		a.Logger.Error().Err(err).Str("merchant_order_id", orderID).Msg("gateway order lookup failed")
		a.error(w, http.StatusBadGateway, "gateway_error", "failed to fetch order status")
		return
	}
	if state.Status == "APPROVED" {
		captured, err := a.PayPal.CaptureOrder(r.Context(), orderID)
		if err != nil {
			a.Logger.Error().Err(err).Str("merchant_order_id", orderID).Msg("gateway capture failed")
		} else {
			state = captured
		}
	}

	notice := payment.NoticeFromOrderState(state, state.CustomID)
	notice.UserID = userID
	if planParam := r.URL.Query().Get("planId"); planParam != "" {
		if planID, err := strconv.ParseInt(planParam, 10, 64); err == nil {
			notice.PlanID = &planID
		}
	}

	outcome, err := a.Reconciler.Finalize(r.Context(), notice)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, orderStatusResponse{
		OrderID:          state.OrderID,
		GatewayStatus:    state.Status,
		PaymentConfirmed: outcome.PaymentConfirmed,
		AlreadyFinalized: outcome.AlreadyFinalized,
		PlanID:           outcome.PlanID,
	})
}

type paypalWebhookEvent struct {
	EventType string `json:"event_type"`
	Resource  struct {
		ID                string `json:"id"`
		Status            string `json:"status"`
		CustomID          string `json:"custom_id"`
		SupplementaryData struct {
			RelatedIDs struct {
				OrderID string `json:"order_id"`
			} `json:"related_ids"`
		} `json:"supplementary_data"`
	} `json:"resource"`
}

// PaymentWebhook normalizes PayPal webhook events into finalize notices.
// Unknown event types are acknowledged and ignored so the gateway stops
// redelivering them.
func (a *App) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	var event paypalWebhookEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid event")
		return
	}

	switch event.EventType {
	case "PAYMENT.CAPTURE.COMPLETED":
		orderID := event.Resource.SupplementaryData.RelatedIDs.OrderID
		if orderID == "" {
			orderID = event.Resource.ID
		}
		captureID := event.Resource.ID
		userID, planID := payment.ParseCustomID(event.Resource.CustomID)
		outcome, err := a.Reconciler.Finalize(r.Context(), payment.Notice{
			MerchantOrderID:      orderID,
			Success:              true,
			UserID:               userID,
			PlanID:               planID,
			GatewayTransactionID: &captureID,
			RawPayload:           raw,
		})
		if err != nil {
			a.domainError(w, r, err)
			return
		}
		a.json(w, http.StatusOK, map[string]any{
			"processed":         true,
			"already_finalized": outcome.AlreadyFinalized,
		})
	case "PAYMENT.CAPTURE.DENIED", "CHECKOUT.ORDER.DECLINED":
		orderID := event.Resource.SupplementaryData.RelatedIDs.OrderID
		if orderID == "" {
			orderID = event.Resource.ID
		}
		if err := a.Reconciler.Fail(r.Context(), orderID, raw); err != nil {
			a.Logger.Error().Err(err).Str("merchant_order_id", orderID).Msg("record gateway failure")
		}
		a.json(w, http.StatusOK, map[string]any{"processed": true})
	default:
		a.json(w, http.StatusOK, map[string]any{"processed": false})
	}
}
