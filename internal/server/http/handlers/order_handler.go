package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/polkiloo/orderpay/internal/domain/model"
	"github.com/polkiloo/orderpay/internal/server/http/dto"
)

// OrderHandler manages payment order endpoints.
type OrderHandler struct {
	facade OrderFacade
}

// NewOrderHandler constructs OrderHandler.
func NewOrderHandler(facade OrderFacade) *OrderHandler {
	return &OrderHandler{facade: facade}
}

// Create handles POST /api/payments/create-order.
func (h *OrderHandler) Create(c *gin.Context) {
	var req dto.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "malformed order payload")
		return
	}

	items := make([]model.Item, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, model.Item{Name: it.Name, UnitPrice: it.UnitPrice, Quantity: it.Quantity})
	}
	created, err := h.facade.CreateOrder(c.Request.Context(), CurrentPrincipal(c), model.OrderDraft{
		Amount:     req.Amount,
		Currency:   req.Currency,
		Items:      items,
		OrderType:  model.OrderType(req.OrderType),
		MerchantID: req.MerchantID,
	})
	if err != nil {
		WriteError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.CreateOrderResponse{
		ID:          created.GatewayOrder.ID,
		Amount:      created.GatewayOrder.Amount,
		Currency:    created.GatewayOrder.Currency,
		Receipt:     created.Order.Receipt,
		OrderID:     created.Order.ID,
		OrderNumber: created.Order.Number,
	})
}

// Verify handles POST /api/payments/verify-payment.
func (h *OrderHandler) Verify(c *gin.Context) {
	var req dto.VerifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "malformed verification payload")
		return
	}

	order, err := h.facade.VerifyPayment(c.Request.Context(), CurrentPrincipal(c), model.PaymentCallback{
		GatewayOrderID:   req.OrderID,
		GatewayPaymentID: req.PaymentID,
		Signature:        req.Signature,
	})
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.VerifyPaymentResponse{Success: true, OrderID: order.ID, Order: toOrderResponse(*order)})
}

// Fail handles POST /api/payments/:orderId/fail.
func (h *OrderHandler) Fail(c *gin.Context) {
	reason, ok := bindReason(c)
	if !ok {
		return
	}
	order, err := h.facade.FailOrder(c.Request.Context(), CurrentPrincipal(c), c.Param("orderId"), reason)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(*order))
}

// Cancel handles POST /api/payments/:orderId/cancel.
func (h *OrderHandler) Cancel(c *gin.Context) {
	reason, ok := bindReason(c)
	if !ok {
		return
	}
	order, err := h.facade.CancelOrder(c.Request.Context(), CurrentPrincipal(c), c.Param("orderId"), reason)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(*order))
}

// Refund handles POST /api/payments/:orderId/refund.
func (h *OrderHandler) Refund(c *gin.Context) {
	var req dto.RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "malformed refund payload")
		return
	}
	order, err := h.facade.RefundOrder(c.Request.Context(), CurrentPrincipal(c), model.RefundRequest{
		OrderID: c.Param("orderId"),
		Amount:  req.Amount,
		Reason:  req.Reason,
		Speed:   model.RefundSpeed(req.Speed),
	})
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(*order))
}

// Get handles GET /api/payments/orders/:orderId.
func (h *OrderHandler) Get(c *gin.Context) {
	order, err := h.facade.Order(c.Request.Context(), CurrentPrincipal(c), c.Param("orderId"))
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(*order))
}

// List handles GET /api/payments/orders.
func (h *OrderHandler) List(c *gin.Context) {
	orders, err := h.facade.Orders(c.Request.Context(), CurrentPrincipal(c))
	if err != nil {
		WriteError(c, err)
		return
	}
	response := make([]dto.OrderResponse, 0, len(orders))
	for _, o := range orders {
		response = append(response, toOrderResponse(o))
	}
	c.JSON(http.StatusOK, response)
}

// bindReason reads the optional {"reason"} body; an empty body is allowed.
func bindReason(c *gin.Context) (string, bool) {
	var req dto.ReasonRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "malformed reason payload")
		return "", false
	}
	return req.Reason, true
}

func toOrderResponse(order model.Order) dto.OrderResponse {
	items := make([]dto.Item, 0, len(order.Items))
	for _, it := range order.Items {
		items = append(items, dto.Item{Name: it.Name, UnitPrice: it.UnitPrice, Quantity: it.Quantity})
	}
	var refunds []dto.RefundResponse
	for _, r := range order.Refunds {
		refunds = append(refunds, dto.RefundResponse{
			RefundID:  r.RefundID,
			Amount:    r.Amount,
			Status:    r.Status,
			CreatedAt: r.CreatedAt,
			Reason:    r.Reason,
			Speed:     string(r.Speed),
		})
	}
	return dto.OrderResponse{
		ID:                 order.ID,
		GatewayOrderID:     order.GatewayOrderID,
		OrderNumber:        order.Number,
		CustomerID:         order.CustomerID,
		MerchantID:         order.MerchantID,
		Amount:             order.Amount,
		AmountRefunded:     order.AmountRefunded,
		Currency:           order.Currency,
		Status:             string(order.Status),
		OrderType:          string(order.Type),
		Items:              items,
		PaymentID:          order.PaymentID,
		Refunds:            refunds,
		FailureReason:      order.FailureReason,
		CancellationReason: order.CancellationReason,
		CancelledBy:        order.CancelledBy,
		CreatedAt:          order.CreatedAt,
		PaidAt:             order.PaidAt,
		FailedAt:           order.FailedAt,
		CancelledAt:        order.CancelledAt,
	}
}
