package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/sonic7adarsh/bharat-shop-fulfillment/internal/events"
	"github.com/sonic7adarsh/bharat-shop-fulfillment/internal/gateway"
	"github.com/sonic7adarsh/bharat-shop-fulfillment/internal/models"
	"github.com/sonic7adarsh/bharat-shop-fulfillment/internal/store"
)

type apiServer struct {
	db                 *sql.DB
	gw                 gateway.Gateway
	pub                events.Publisher
	reservationTimeout time.Duration
}

func (s *apiServer) routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /variants", s.createVariant)
	mux.HandleFunc("GET /variants", s.listVariants)
	mux.HandleFunc("GET /variants/{id}", s.getVariant)
	mux.HandleFunc("GET /variants/{id}/availability", s.variantAvailability)

	mux.HandleFunc("POST /orders", s.placeOrder)
	mux.HandleFunc("GET /orders", s.listOrders)
	mux.HandleFunc("GET /orders/{id}", s.getOrder)
	mux.HandleFunc("POST /orders/{id}/capture", s.capturePayment)
	mux.HandleFunc("POST /orders/{id}/confirm", s.confirmOrder)
	mux.HandleFunc("POST /orders/{id}/pack", s.packOrder)
	mux.HandleFunc("POST /orders/{id}/ship", s.shipOrder)
	mux.HandleFunc("POST /orders/{id}/deliver", s.deliverOrder)
	mux.HandleFunc("POST /orders/{id}/cancel", s.cancelOrder)
	mux.HandleFunc("POST /orders/{id}/refunds", s.refundOrder)
	mux.HandleFunc("GET /orders/{id}/payment", s.getPayment)
	mux.HandleFunc("GET /orders/{id}/returns", s.listOrderReturns)

	mux.HandleFunc("POST /returns", s.createReturn)
	mux.HandleFunc("GET /returns/{id}", s.getReturn)
	mux.HandleFunc("POST /returns/{id}/approve", s.approveReturn)
	mux.HandleFunc("POST /returns/{id}/reject", s.rejectReturn)
	mux.HandleFunc("POST /returns/{id}/pickup", s.markPickedUp)
	mux.HandleFunc("POST /returns/{id}/inspection", s.startQualityCheck)
	mux.HandleFunc("POST /returns/{id}/inspection/complete", s.completeQualityCheck)
	mux.HandleFunc("POST /returns/{id}/refund", s.processReturnRefund)
	mux.HandleFunc("POST /returns/{id}/complete", s.completeReturn)
	mux.HandleFunc("POST /returns/{id}/images", s.attachReturnImages)

	mux.HandleFunc("POST /webhooks/gateway", s.gatewayWebhook)
}

func tenantID(r *http.Request) string {
	return r.Header.Get("X-Tenant-ID")
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

func (s *apiServer) createVariant(w http.ResponseWriter, r *http.Request) {
	tenant := tenantID(r)
	if tenant == "" {
		respondError(w, http.StatusBadRequest, "X-Tenant-ID header is required")
		return
	}

	var req struct {
		SKU   string  `json:"sku"`
		Name  string  `json:"name"`
		Price float64 `json:"price"`
		Stock int     `json:"stock"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	variant, err := store.CreateVariant(r.Context(), s.db, tenant, req.SKU, req.Name, decimal.NewFromFloat(req.Price), req.Stock)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, variant)
}

func (s *apiServer) listVariants(w http.ResponseWriter, r *http.Request) {
	tenant := tenantID(r)
	if tenant == "" {
		respondError(w, http.StatusBadRequest, "X-Tenant-ID header is required")
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	result, err := store.ListVariants(r.Context(), s.db, tenant, page, pageSize)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (s *apiServer) getVariant(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid variant ID")
		return
	}

	variant, err := store.GetVariant(r.Context(), s.db, tenantID(r), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, variant)
}

func (s *apiServer) variantAvailability(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid variant ID")
		return
	}

	available, err := store.AvailableStock(r.Context(), s.db, tenantID(r), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]int{"available": available})
}

func (s *apiServer) placeOrder(w http.ResponseWriter, r *http.Request) {
	tenant := tenantID(r)
	if tenant == "" {
		respondError(w, http.StatusBadRequest, "X-Tenant-ID header is required")
		return
	}

	var req struct {
		CustomerID string `json:"customer_id"`
		Items      []struct {
			VariantID int64 `json:"variant_id"`
			Quantity  int   `json:"quantity"`
		} `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	items := make([]store.OrderItemRequest, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, store.OrderItemRequest{
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
		})
	}

	order, err := store.PlaceOrder(r.Context(), s.db, s.gw, s.pub, store.PlaceOrderRequest{
		TenantID:           tenant,
		CustomerID:         req.CustomerID,
		Items:              items,
		ReservationTimeout: s.reservationTimeout,
	})
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, order)
}

func (s *apiServer) listOrders(w http.ResponseWriter, r *http.Request) {
	tenant := tenantID(r)
	if tenant == "" {
		respondError(w, http.StatusBadRequest, "X-Tenant-ID header is required")
		return
	}

	customerID := r.URL.Query().Get("customer_id")
	if customerID == "" {
		respondError(w, http.StatusBadRequest, "customer_id is required")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 100 {
		limit = 20
	}

	result, err := store.ListOrders(r.Context(), s.db, tenant, customerID, r.URL.Query().Get("cursor"), limit)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (s *apiServer) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid order ID")
		return
	}

	order, err := store.GetOrder(r.Context(), s.db, tenantID(r), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, order)
}

func (s *apiServer) capturePayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid order ID")
		return
	}

	var req struct {
		PaymentRef string  `json:"payment_ref"`
		Amount     float64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	payment, err := store.CapturePayment(r.Context(), s.db, s.gw, s.pub, tenantID(r), id, req.PaymentRef, decimal.NewFromFloat(req.Amount))
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, payment)
}

func (s *apiServer) confirmOrder(w http.ResponseWriter, r *http.Request) {
	s.orderTransition(w, r, store.ConfirmOrder)
}

func (s *apiServer) packOrder(w http.ResponseWriter, r *http.Request) {
	s.orderTransition(w, r, store.PackOrder)
}

func (s *apiServer) deliverOrder(w http.ResponseWriter, r *http.Request) {
	s.orderTransition(w, r, store.DeliverOrder)
}

func (s *apiServer) orderTransition(w http.ResponseWriter, r *http.Request, fn func(context.Context, *sql.DB, events.Publisher, string, int64) (*models.Order, error)) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid order ID")
		return
	}

	order, err := fn(r.Context(), s.db, s.pub, tenantID(r), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, order)
}

func (s *apiServer) shipOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid order ID")
		return
	}

	var req struct {
		Carrier        string `json:"carrier"`
		TrackingNumber string `json:"tracking_number"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	order, err := store.ShipOrder(r.Context(), s.db, s.pub, tenantID(r), id, req.Carrier, req.TrackingNumber)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, order)
}

func (s *apiServer) cancelOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid order ID")
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	order, err := store.CancelOrder(r.Context(), s.db, s.pub, tenantID(r), id, req.Reason)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, order)
}

// refundOrder issues a manual refund outside the return workflow. An absent
// amount refunds whatever remains.
func (s *apiServer) refundOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid order ID")
		return
	}

	var req struct {
		Amount *float64 `json:"amount"`
		Reason string   `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var result *store.RefundResult
	if req.Amount == nil {
		result, err = store.FullRefund(r.Context(), s.db, s.gw, s.pub, tenantID(r), id, req.Reason)
	} else {
		result, err = store.PartialRefund(r.Context(), s.db, s.gw, s.pub, tenantID(r), id, decimal.NewFromFloat(*req.Amount), req.Reason)
	}
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (s *apiServer) getPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid order ID")
		return
	}

	payment, err := store.GetPaymentByOrder(r.Context(), s.db, tenantID(r), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, payment)
}

func (s *apiServer) listOrderReturns(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid order ID")
		return
	}

	returns, err := store.ListReturnsByOrder(r.Context(), s.db, tenantID(r), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, returns)
}

func (s *apiServer) createReturn(w http.ResponseWriter, r *http.Request) {
	tenant := tenantID(r)
	if tenant == "" {
		respondError(w, http.StatusBadRequest, "X-Tenant-ID header is required")
		return
	}

	var req struct {
		OrderID int64  `json:"order_id"`
		Reason  string `json:"reason"`
		Items   []struct {
			OrderItemID int64 `json:"order_item_id"`
			Quantity    int   `json:"quantity"`
		} `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	items := make([]store.ReturnItemRequest, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, store.ReturnItemRequest{
			OrderItemID: item.OrderItemID,
			Quantity:    item.Quantity,
		})
	}

	ret, err := store.CreateReturn(r.Context(), s.db, s.pub, store.CreateReturnRequest{
		TenantID: tenant,
		OrderID:  req.OrderID,
		Reason:   req.Reason,
		Items:    items,
	})
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, ret)
}

func (s *apiServer) getReturn(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid return ID")
		return
	}

	ret, err := store.GetReturn(r.Context(), s.db, tenantID(r), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, ret)
}

func (s *apiServer) approveReturn(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid return ID")
		return
	}

	var req struct {
		ApprovedBy string `json:"approved_by"`
		Notes      string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ret, err := store.ApproveReturn(r.Context(), s.db, s.pub, tenantID(r), id, req.ApprovedBy, req.Notes)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, ret)
}

func (s *apiServer) rejectReturn(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid return ID")
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ret, err := store.RejectReturn(r.Context(), s.db, s.pub, tenantID(r), id, req.Reason)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, ret)
}

func (s *apiServer) markPickedUp(w http.ResponseWriter, r *http.Request) {
	s.returnTransition(w, r, store.MarkPickedUp)
}

func (s *apiServer) startQualityCheck(w http.ResponseWriter, r *http.Request) {
	s.returnTransition(w, r, store.StartQualityCheck)
}

func (s *apiServer) completeReturn(w http.ResponseWriter, r *http.Request) {
	s.returnTransition(w, r, store.CompleteReturn)
}

func (s *apiServer) returnTransition(w http.ResponseWriter, r *http.Request, fn func(context.Context, *sql.DB, events.Publisher, string, int64) (*models.ReturnRequest, error)) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid return ID")
		return
	}

	ret, err := fn(r.Context(), s.db, s.pub, tenantID(r), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, ret)
}

func (s *apiServer) completeQualityCheck(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid return ID")
		return
	}

	var req struct {
		Items []struct {
			ReturnItemID     int64  `json:"return_item_id"`
			Condition        string `json:"condition"`
			ApprovedQuantity int    `json:"approved_quantity"`
		} `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	verdicts := make([]store.QualityCheckItem, 0, len(req.Items))
	for _, item := range req.Items {
		verdicts = append(verdicts, store.QualityCheckItem{
			ReturnItemID:     item.ReturnItemID,
			Condition:        models.ItemCondition(item.Condition),
			ApprovedQuantity: item.ApprovedQuantity,
		})
	}

	ret, err := store.CompleteQualityCheck(r.Context(), s.db, s.pub, tenantID(r), id, verdicts)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, ret)
}

func (s *apiServer) processReturnRefund(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid return ID")
		return
	}

	ret, err := store.ProcessRefund(r.Context(), s.db, s.gw, s.pub, tenantID(r), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, ret)
}

func (s *apiServer) attachReturnImages(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid return ID")
		return
	}

	var req struct {
		Keys []string `json:"keys"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := store.AttachImages(r.Context(), s.db, tenantID(r), id, req.Keys); err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]int{"attached": len(req.Keys)})
}

// gatewayWebhook accepts capture notifications from the payment gateway. The
// signature covers the raw body.
func (s *apiServer) gatewayWebhook(w http.ResponseWriter, r *http.Request) {
	tenant := tenantID(r)
	if tenant == "" {
		respondError(w, http.StatusBadRequest, "X-Tenant-ID header is required")
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	payment, err := store.HandlePaymentCaptured(r.Context(), s.db, s.gw, s.pub, tenant, payload, r.Header.Get("X-Gateway-Signature"))
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, payment)
}

// respondStoreError maps domain errors onto HTTP status codes.
func respondStoreError(w http.ResponseWriter, err error) {
	var (
		invalidTransition *models.InvalidTransitionError
		insufficientStock *models.InsufficientStockError
		invalidReturnQty  *models.InvalidReturnQuantityError
		refundExceedsMax  *models.RefundExceedsMaxError
	)

	switch {
	case errors.Is(err, models.ErrVariantNotFound),
		errors.Is(err, models.ErrOrderNotFound),
		errors.Is(err, models.ErrOrderItemNotFound),
		errors.Is(err, models.ErrReservationNotFound),
		errors.Is(err, models.ErrPaymentNotFound),
		errors.Is(err, models.ErrReturnNotFound),
		errors.Is(err, models.ErrReturnItemNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &invalidTransition),
		errors.Is(err, models.ErrPaymentNotCompleted),
		errors.Is(err, models.ErrReturnNotEligible),
		errors.Is(err, models.ErrReturnWindowExpired),
		errors.Is(err, models.ErrReturnClosed),
		errors.Is(err, models.ErrRefundNotEligible),
		errors.Is(err, models.ErrRefundAlreadyProcessed):
		respondError(w, http.StatusConflict, err.Error())
	case errors.As(err, &insufficientStock):
		respondError(w, http.StatusConflict, err.Error())
	case errors.As(err, &invalidReturnQty),
		errors.As(err, &refundExceedsMax),
		errors.Is(err, models.ErrInvalidQuantity),
		errors.Is(err, models.ErrInvalidAmount),
		errors.Is(err, models.ErrInvalidShippingInfo),
		errors.Is(err, models.ErrIncompleteQualityCheck),
		errors.Is(err, store.ErrNoItems),
		errors.Is(err, models.ErrVariantNotActive),
		errors.Is(err, models.ErrTenantMismatch):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrInvalidSignature):
		respondError(w, http.StatusUnauthorized, err.Error())
	default:
		log.WithError(err).Error("request failed")
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.WithError(err).Error("encode response")
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
