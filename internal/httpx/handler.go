package httpx

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	checkoutapp "github.com/setof-commerce/order-core/internal/checkout/app"
	checkoutdomain "github.com/setof-commerce/order-core/internal/checkout/domain"
	claimapp "github.com/setof-commerce/order-core/internal/claim/app"
	claimdomain "github.com/setof-commerce/order-core/internal/claim/domain"
	"github.com/setof-commerce/order-core/internal/httpx/middlewares"
	eventapp "github.com/setof-commerce/order-core/internal/orderevent/app"
	eventdomain "github.com/setof-commerce/order-core/internal/orderevent/domain"
	"github.com/setof-commerce/order-core/internal/pkg/errs"
)

// Handler exposes the checkout pipeline over HTTP.
type Handler struct {
	checkouts *checkoutapp.Service
	claims    *claimapp.Service
	ledger    *eventapp.Recorder
}

func NewHandler(checkouts *checkoutapp.Service, claims *claimapp.Service, ledger *eventapp.Recorder) *Handler {
	return &Handler{checkouts: checkouts, claims: claims, ledger: ledger}
}

// CreateCheckout prices the items, reserves stock and persists the intent.
// The idempotency key comes from the X-Idempotency-Key header, falling back
// to the body field.
func (h *Handler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	var req CreateCheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error(), false)
		return
	}

	idempotencyKey := middlewares.IdempotencyKeyFromContext(r.Context())
	if idempotencyKey == "" {
		idempotencyKey = req.IdempotencyKey
	}

	shippingFee := decimal.Zero
	if req.ShippingFee != "" {
		var err error
		if shippingFee, err = decimal.NewFromString(req.ShippingFee); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_amount", "shipping_fee is not a decimal", false)
			return
		}
	}

	items := make([]checkoutapp.CreateItem, len(req.Items))
	for i, it := range req.Items {
		items[i] = checkoutapp.CreateItem{ProductStockID: it.ProductStockID, Quantity: it.Quantity}
	}

	chk, err := h.checkouts.Create(r.Context(), checkoutapp.CreateCommand{
		MemberID:       req.MemberID,
		IdempotencyKey: idempotencyKey,
		Items:          items,
		PaymentMethod:  req.PaymentMethod,
		PgProvider:     req.PgProvider,
		Shipping: checkoutdomain.ShippingInfo{
			ReceiverName:  req.Shipping.ReceiverName,
			ReceiverPhone: req.Shipping.ReceiverPhone,
			ZipCode:       req.Shipping.ZipCode,
			Address:       req.Shipping.Address,
			AddressDetail: req.Shipping.AddressDetail,
			Memo:          req.Shipping.Memo,
		},
		ShippingFee: shippingFee,
	})
	if err != nil {
		writeCodedError(r, w, err)
		return
	}

	writeJSON(w, http.StatusCreated, mapCheckout(chk))
}

// CompleteCheckout verifies the gateway result and turns the checkout into
// a payment and per-seller orders.
func (h *Handler) CompleteCheckout(w http.ResponseWriter, r *http.Request) {
	checkoutID := chi.URLParam(r, "id")

	var req CompleteCheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error(), false)
		return
	}
	approved, err := decimal.NewFromString(req.ApprovedAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_amount", "approved_amount is not a decimal", false)
		return
	}

	result, err := h.checkouts.Complete(r.Context(), checkoutID, req.PgTransactionID, approved)
	if err != nil {
		writeCodedError(r, w, err)
		return
	}

	writeJSON(w, http.StatusOK, CompletionResponse{
		Checkout: mapCheckout(result.Checkout),
		Payment:  mapPayment(result.Payment),
		Orders:   mapOrders(result.Orders),
	})
}

// ExpireCheckout is the manual counterpart of the background sweeper.
func (h *Handler) ExpireCheckout(w http.ResponseWriter, r *http.Request) {
	chk, err := h.checkouts.Expire(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeCodedError(r, w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapCheckout(chk))
}

// CancelCheckout aborts a pending checkout at the member's request and
// puts the reserved stock back.
func (h *Handler) CancelCheckout(w http.ResponseWriter, r *http.Request) {
	chk, err := h.checkouts.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeCodedError(r, w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapCheckout(chk))
}

func (h *Handler) GetCheckout(w http.ResponseWriter, r *http.Request) {
	chk, err := h.checkouts.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeCodedError(r, w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapCheckout(chk))
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.ledger.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeCodedError(r, w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapOrder(o))
}

// ListOrderEvents returns the order's history, newest first when
// ?order=desc.
func (h *Handler) ListOrderEvents(w http.ResponseWriter, r *http.Request) {
	desc := r.URL.Query().Get("order") == "desc"
	events, err := h.ledger.ListByOrder(r.Context(), chi.URLParam(r, "id"), desc)
	if err != nil {
		writeCodedError(r, w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapEvents(events))
}

// RecordOrderEvent appends a ledger entry on behalf of an external
// collaborator. Lifecycle entry types also move the order.
func (h *Handler) RecordOrderEvent(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	var req RecordEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error(), false)
		return
	}

	cmd := eventdomain.Command{
		OrderID:     orderID,
		Type:        eventdomain.EventType(req.EventType),
		SourceID:    req.SourceID,
		Description: req.Description,
		ActorType:   eventdomain.ActorType(req.ActorType),
		ActorID:     req.ActorID,
		Metadata:    req.Metadata,
	}
	if req.OccurredAt != nil {
		cmd.OccurredAt = *req.OccurredAt
	}

	ev, err := h.ledger.Record(r.Context(), cmd)
	if err != nil {
		writeCodedError(r, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, mapEvent(ev))
}

// RequestClaim opens a claim against an order.
func (h *Handler) RequestClaim(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	var req RequestClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error(), false)
		return
	}

	refund := decimal.Zero
	if req.RefundAmount != "" {
		var err error
		if refund, err = decimal.NewFromString(req.RefundAmount); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_amount", "refund_amount is not a decimal", false)
			return
		}
	}

	claim, err := h.claims.Request(r.Context(), claimapp.RequestCommand{
		OrderID:      orderID,
		OrderItemID:  req.OrderItemID,
		MemberID:     req.MemberID,
		Type:         claimdomain.Type(req.ClaimType),
		Reason:       req.Reason,
		Quantity:     req.Quantity,
		RefundAmount: refund,
	})
	if err != nil {
		writeCodedError(r, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, mapClaim(claim))
}

func (h *Handler) ApproveClaim(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ActorID string `json:"actor_id"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	claim, err := h.claims.Approve(r.Context(), chi.URLParam(r, "id"), req.ActorID)
	if err != nil {
		writeCodedError(r, w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapClaim(claim))
}

func (h *Handler) RejectClaim(w http.ResponseWriter, r *http.Request) {
	var req RejectClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error(), false)
		return
	}

	claim, err := h.claims.Reject(r.Context(), chi.URLParam(r, "id"), req.Reason, req.ActorID)
	if err != nil {
		writeCodedError(r, w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapClaim(claim))
}

func (h *Handler) CompleteClaim(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ActorID string `json:"actor_id"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	claim, err := h.claims.Complete(r.Context(), chi.URLParam(r, "id"), req.ActorID)
	if err != nil {
		writeCodedError(r, w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapClaim(claim))
}

func (h *Handler) GetClaim(w http.ResponseWriter, r *http.Request) {
	claim, err := h.claims.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeCodedError(r, w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapClaim(claim))
}

func (h *Handler) ListOrderClaims(w http.ResponseWriter, r *http.Request) {
	claims, err := h.claims.ListByOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeCodedError(r, w, err)
		return
	}
	out := make([]ClaimResponse, len(claims))
	for i, c := range claims {
		out[i] = mapClaim(c)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeCodedError maps the error taxonomy onto HTTP statuses. Conflicts and
// timeouts share 409 but timeouts are flagged retryable; reconciliation
// failures surface as an opaque 500.
func writeCodedError(r *http.Request, w http.ResponseWriter, err error) {
	code := errs.CodeOf(err)
	switch code {
	case errs.CodeValidation:
		writeError(w, http.StatusBadRequest, string(code), err.Error(), false)
	case errs.CodeNotFound:
		writeError(w, http.StatusNotFound, string(code), err.Error(), false)
	case errs.CodeConflict:
		writeError(w, http.StatusConflict, string(code), err.Error(), false)
	case errs.CodeTimeout:
		writeError(w, http.StatusConflict, string(code), err.Error(), true)
	case errs.CodeReconciliation:
		slog.ErrorContext(r.Context(), "reconciliation failure surfaced to client", "error", err)
		writeError(w, http.StatusInternalServerError, string(code), "processing failed, the mismatch has been recorded", false)
	default:
		slog.ErrorContext(r.Context(), "unhandled error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error", false)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string, retryable bool) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: msg, Retryable: retryable})
}
