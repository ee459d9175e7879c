package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quickflux/fulfillment/internal/order/repository"
	"github.com/quickflux/fulfillment/internal/order/service"
	sharedHTTP "github.com/quickflux/fulfillment/internal/shared/http"
)

// OrderHandler exposes the REST surface of the order participant. The caller
// identifies itself with the X-User-Id header; reads are scoped to that user.
type OrderHandler struct {
	coordinator *service.SagaCoordinator
	logger      *zap.Logger
}

func NewOrderHandler(coordinator *service.SagaCoordinator, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		coordinator: coordinator,
		logger:      logger,
	}
}

func (h *OrderHandler) RegisterRoutes(app *fiber.App) {
	api := app.Group("/api/v1")
	api.Post("/orders", h.CreateOrder)
	api.Get("/orders", h.GetOrders)
	api.Get("/orders/:id", h.GetOrderByID)
	app.Get("/health", h.HealthCheck)
}

func (h *OrderHandler) CreateOrder(c *fiber.Ctx) error {
	userID, err := requireUserID(c)
	if err != nil {
		return sharedHTTP.BadRequestResponse(c, "Valid X-User-Id header is required", nil)
	}

	var request CreateOrderRequest
	if err := c.BodyParser(&request); err != nil {
		return sharedHTTP.BadRequestResponse(c, "Invalid request body", map[string]interface{}{
			"parse_error": err.Error(),
		})
	}

	if request.ProductID == uuid.Nil {
		return sharedHTTP.BadRequestResponse(c, "Product ID is required", nil)
	}
	if request.Quantity <= 0 {
		return sharedHTTP.BadRequestResponse(c, "Invalid quantity", map[string]interface{}{
			"quantity": request.Quantity,
		})
	}
	if request.UnitPrice < 0 {
		return sharedHTTP.BadRequestResponse(c, "Invalid unit price", map[string]interface{}{
			"unit_price": request.UnitPrice,
		})
	}

	order, err := h.coordinator.CreateOrder(c.Context(), userID, request.ProductID, request.Quantity, request.UnitPrice)
	if err != nil {
		if errors.Is(err, service.ErrInvalidOrder) {
			return sharedHTTP.BadRequestResponse(c, err.Error(), nil)
		}

		// A rejected reservation or pre-authorization is a business
		// outcome, not a server fault.
		h.logger.Warn("Order creation failed", zap.String("user_id", userID.String()), zap.Error(err))
		return sharedHTTP.ConflictResponse(c, "Order could not be fulfilled", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return sharedHTTP.CreatedResponse(c, "Order created successfully", mapOrder(order))
}

func (h *OrderHandler) GetOrderByID(c *fiber.Ctx) error {
	userID, err := requireUserID(c)
	if err != nil {
		return sharedHTTP.BadRequestResponse(c, "Valid X-User-Id header is required", nil)
	}

	orderIDStr := c.Params("id")
	orderID, err := uuid.Parse(orderIDStr)
	if err != nil {
		return sharedHTTP.BadRequestResponse(c, "Invalid order ID", map[string]interface{}{
			"order_id": orderIDStr,
		})
	}

	order, err := h.coordinator.GetOrder(orderID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return sharedHTTP.NotFoundResponse(c, "Order not found")
		}
		return sharedHTTP.InternalServerErrorResponse(c, "Order retrieval failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return sharedHTTP.SuccessResponse(c, "Order retrieved successfully", mapOrder(order))
}

func (h *OrderHandler) GetOrders(c *fiber.Ctx) error {
	userID, err := requireUserID(c)
	if err != nil {
		return sharedHTTP.BadRequestResponse(c, "Valid X-User-Id header is required", nil)
	}

	orders, err := h.coordinator.GetOrdersByUser(userID)
	if err != nil {
		return sharedHTTP.InternalServerErrorResponse(c, "Orders retrieval failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return sharedHTTP.SuccessResponse(c, "Orders retrieved successfully", map[string]interface{}{
		"orders": mapOrders(orders),
		"total":  len(orders),
	})
}

func (h *OrderHandler) HealthCheck(c *fiber.Ctx) error {
	return sharedHTTP.SuccessResponse(c, "Order service is healthy", map[string]interface{}{
		"service": "order-service",
		"status":  "healthy",
	})
}

var errMissingUserID = errors.New("missing or invalid X-User-Id header")

func requireUserID(c *fiber.Ctx) (uuid.UUID, error) {
	userID, err := uuid.Parse(c.Get("X-User-Id"))
	if err != nil || userID == uuid.Nil {
		return uuid.Nil, errMissingUserID
	}
	return userID, nil
}
