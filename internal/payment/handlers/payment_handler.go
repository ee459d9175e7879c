package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quickflux/fulfillment/internal/payment/gateway"
	"github.com/quickflux/fulfillment/internal/payment/repository"
	"github.com/quickflux/fulfillment/internal/payment/service"
	sharedHTTP "github.com/quickflux/fulfillment/internal/shared/http"
)

type PaymentHandler struct {
	paymentService *service.PaymentService
	logger         *zap.Logger
}

func NewPaymentHandler(paymentService *service.PaymentService, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
		logger:         logger,
	}
}

func (h *PaymentHandler) RegisterRoutes(app *fiber.App) {
	api := app.Group("/api/v1/payments")
	api.Post("/preauth", h.PreAuthorize)
	api.Post("/:id/capture", h.Capture)
	api.Post("/:id/void", h.Void)
	api.Get("/:id", h.GetPayment)
	app.Get("/health", h.HealthCheck)
}

// Capture is the manual trigger for a settlement, normally driven by the
// OrderCreated consumer. The optional body supplies the event context the
// consumer would have.
func (h *PaymentHandler) Capture(c *fiber.Ctx) error {
	preauthIDStr := c.Params("id")
	preauthID, err := uuid.Parse(preauthIDStr)
	if err != nil {
		return sharedHTTP.BadRequestResponse(c, "Invalid pre-authorization ID", map[string]interface{}{
			"preauth_id": preauthIDStr,
		})
	}

	var request CaptureRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&request); err != nil {
			return sharedHTTP.BadRequestResponse(c, "Invalid request body", map[string]interface{}{
				"parse_error": err.Error(),
			})
		}
	}

	if err := h.paymentService.Capture(c.Context(), preauthID, request.UserID, request.ReservationID); err != nil {
		if errors.Is(err, repository.ErrPaymentNotFound) {
			return sharedHTTP.NotFoundResponse(c, "Payment not found")
		}

		h.logger.Error("Capture failed",
			zap.String("preauth_id", preauthID.String()),
			zap.Error(err))
		return sharedHTTP.InternalServerErrorResponse(c, "Capture failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return sharedHTTP.SuccessResponse(c, "Capture processed", nil)
}

func (h *PaymentHandler) PreAuthorize(c *fiber.Ctx) error {
	var request PreAuthorizeRequest
	if err := c.BodyParser(&request); err != nil {
		return sharedHTTP.BadRequestResponse(c, "Invalid request body", map[string]interface{}{
			"parse_error": err.Error(),
		})
	}

	if request.OrderID == uuid.Nil {
		return sharedHTTP.BadRequestResponse(c, "Order ID is required", nil)
	}
	if request.Amount < 0 {
		return sharedHTTP.BadRequestResponse(c, "Invalid amount", map[string]interface{}{
			"amount": request.Amount,
		})
	}

	payment, err := h.paymentService.PreAuthorize(c.Context(), request.OrderID, request.Amount)
	if err != nil {
		if errors.Is(err, gateway.ErrPaymentDeclined) {
			return sharedHTTP.ConflictResponse(c, "Pre-authorization declined", map[string]interface{}{
				"order_id": request.OrderID.String(),
				"reason":   err.Error(),
			})
		}

		h.logger.Error("Pre-authorization failed",
			zap.String("order_id", request.OrderID.String()),
			zap.Error(err))
		return sharedHTTP.InternalServerErrorResponse(c, "Pre-authorization failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return sharedHTTP.CreatedResponse(c, "Payment pre-authorized successfully", mapPreAuth(payment))
}

func (h *PaymentHandler) Void(c *fiber.Ctx) error {
	preauthIDStr := c.Params("id")
	preauthID, err := uuid.Parse(preauthIDStr)
	if err != nil {
		return sharedHTTP.BadRequestResponse(c, "Invalid pre-authorization ID", map[string]interface{}{
			"preauth_id": preauthIDStr,
		})
	}

	if err := h.paymentService.Void(c.Context(), preauthID); err != nil {
		if errors.Is(err, repository.ErrPaymentNotFound) {
			return sharedHTTP.NotFoundResponse(c, "Payment not found")
		}

		h.logger.Error("Void failed",
			zap.String("preauth_id", preauthID.String()),
			zap.Error(err))
		return sharedHTTP.InternalServerErrorResponse(c, "Void failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return sharedHTTP.SuccessResponse(c, "Pre-authorization voided successfully", nil)
}

func (h *PaymentHandler) GetPayment(c *fiber.Ctx) error {
	preauthIDStr := c.Params("id")
	preauthID, err := uuid.Parse(preauthIDStr)
	if err != nil {
		return sharedHTTP.BadRequestResponse(c, "Invalid pre-authorization ID", map[string]interface{}{
			"preauth_id": preauthIDStr,
		})
	}

	payment, err := h.paymentService.GetPayment(preauthID)
	if err != nil {
		if errors.Is(err, repository.ErrPaymentNotFound) {
			return sharedHTTP.NotFoundResponse(c, "Payment not found")
		}
		return sharedHTTP.InternalServerErrorResponse(c, "Payment retrieval failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return sharedHTTP.SuccessResponse(c, "Payment retrieved successfully", mapPayment(payment))
}

func (h *PaymentHandler) HealthCheck(c *fiber.Ctx) error {
	return sharedHTTP.SuccessResponse(c, "Payment service is healthy", map[string]interface{}{
		"service": "payment-service",
		"status":  "healthy",
	})
}
