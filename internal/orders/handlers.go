package orders

import (
	"github.com/gin-gonic/gin"
	"github.com/orrange/orrange-api/pkg/middleware"
	"github.com/orrange/orrange-api/pkg/response"
)

// GinHandlers contains HTTP handlers for order endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

func (h *GinHandlers) identity(c *gin.Context) (string, bool) {
	identityID := middleware.IdentityID(c)
	if identityID == "" {
		response.Unauthorized(c, "Missing identity")
		return "", false
	}
	return identityID, true
}

// CreateOrderHandler handles POST requests to open a new order
func (h *GinHandlers) CreateOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		identityID, ok := h.identity(c)
		if !ok {
			return
		}

		var input CreateInput
		if err := c.ShouldBindJSON(&input); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		order, err := h.service.Create(identityID, input)
		response.Handle(c, order, err)
	}
}

// GetOrderHandler handles GET requests for a single order
func (h *GinHandlers) GetOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		identityID, ok := h.identity(c)
		if !ok {
			return
		}

		order, err := h.service.Get(identityID, c.Param("order_id"))
		response.Handle(c, order, err)
	}
}

// ListOrdersHandler handles GET requests for the caller's own orders
func (h *GinHandlers) ListOrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		identityID, ok := h.identity(c)
		if !ok {
			return
		}

		orders, err := h.service.ListMine(identityID)
		response.Handle(c, orders, err)
	}
}

// MerchantQueueHandler handles GET requests for the merchant order queue
func (h *GinHandlers) MerchantQueueHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		identityID, ok := h.identity(c)
		if !ok {
			return
		}

		queue, err := h.service.ListForMerchant(identityID)
		response.Handle(c, queue, err)
	}
}

// AcceptOrderHandler handles POST requests from merchants claiming an order
func (h *GinHandlers) AcceptOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		identityID, ok := h.identity(c)
		if !ok {
			return
		}

		// Body is optional; the UPI override defaults to the merchant's
		// registered handle.
		var request struct {
			UPIID string `json:"upi_id"`
		}
		_ = c.ShouldBindJSON(&request)

		order, err := h.service.Accept(c.Request.Context(), identityID, c.Param("order_id"), request.UPIID)
		response.Handle(c, order, err)
	}
}

// SubmitPaymentHandler handles POST requests recording the fiat payment reference
func (h *GinHandlers) SubmitPaymentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		identityID, ok := h.identity(c)
		if !ok {
			return
		}

		var request struct {
			PaymentReference string `json:"payment_reference" binding:"required"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		order, err := h.service.SubmitPayment(identityID, c.Param("order_id"), request.PaymentReference)
		response.Handle(c, order, err)
	}
}

// ConfirmPaymentHandler handles POST requests confirming fiat receipt and
// running the custodial transfer
func (h *GinHandlers) ConfirmPaymentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		identityID, ok := h.identity(c)
		if !ok {
			return
		}

		result, err := h.service.ConfirmPayment(c.Request.Context(), identityID, c.Param("order_id"))
		response.Handle(c, result, err)
	}
}

// RetryTransferHandler handles POST requests retrying a failed transfer
func (h *GinHandlers) RetryTransferHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		identityID, ok := h.identity(c)
		if !ok {
			return
		}

		result, err := h.service.RetryTransfer(c.Request.Context(), identityID, c.Param("order_id"))
		response.Handle(c, result, err)
	}
}

// CancelOrderHandler handles POST requests cancelling an unclaimed order
func (h *GinHandlers) CancelOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		identityID, ok := h.identity(c)
		if !ok {
			return
		}

		order, err := h.service.Cancel(identityID, c.Param("order_id"))
		response.Handle(c, order, err)
	}
}
