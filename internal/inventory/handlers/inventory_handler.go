package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quickflux/fulfillment/internal/inventory/domain"
	"github.com/quickflux/fulfillment/internal/inventory/repository"
	"github.com/quickflux/fulfillment/internal/inventory/service"
	sharedHTTP "github.com/quickflux/fulfillment/internal/shared/http"
)

type InventoryHandler struct {
	inventoryService *service.InventoryService
	logger           *zap.Logger
}

func NewInventoryHandler(inventoryService *service.InventoryService, logger *zap.Logger) *InventoryHandler {
	return &InventoryHandler{
		inventoryService: inventoryService,
		logger:           logger,
	}
}

func (h *InventoryHandler) RegisterRoutes(app *fiber.App) {
	api := app.Group("/api/v1/inventory")
	api.Post("/reserve", h.ReserveStock)
	api.Post("/release", h.ReleaseStock)
	api.Get("/products/:id", h.GetProduct)
	app.Get("/health", h.HealthCheck)
}

func (h *InventoryHandler) ReserveStock(c *fiber.Ctx) error {
	var request ReserveStockRequest
	if err := c.BodyParser(&request); err != nil {
		return sharedHTTP.BadRequestResponse(c, "Invalid request body", map[string]interface{}{
			"parse_error": err.Error(),
		})
	}

	if request.OrderID == uuid.Nil {
		return sharedHTTP.BadRequestResponse(c, "Order ID is required", nil)
	}
	if request.ProductID == uuid.Nil {
		return sharedHTTP.BadRequestResponse(c, "Product ID is required", nil)
	}
	if request.Quantity <= 0 {
		return sharedHTTP.BadRequestResponse(c, "Invalid quantity", map[string]interface{}{
			"quantity": request.Quantity,
		})
	}

	reservation, err := h.inventoryService.ReserveStock(request.OrderID, request.ProductID, request.Quantity)
	if err != nil {
		var insufficient *domain.InsufficientStockError
		if errors.As(err, &insufficient) {
			return sharedHTTP.ConflictResponse(c, "Insufficient stock", map[string]interface{}{
				"product_id": insufficient.ProductID.String(),
				"available":  insufficient.Available,
				"requested":  insufficient.Requested,
			})
		}
		if errors.Is(err, repository.ErrProductNotFound) {
			return sharedHTTP.NotFoundResponse(c, "Product not found")
		}

		h.logger.Error("Stock reservation failed",
			zap.String("order_id", request.OrderID.String()),
			zap.Error(err))
		return sharedHTTP.InternalServerErrorResponse(c, "Stock reservation failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return sharedHTTP.CreatedResponse(c, "Stock reserved successfully", mapReservation(reservation))
}

func (h *InventoryHandler) ReleaseStock(c *fiber.Ctx) error {
	var request ReleaseStockRequest
	if err := c.BodyParser(&request); err != nil {
		return sharedHTTP.BadRequestResponse(c, "Invalid request body", map[string]interface{}{
			"parse_error": err.Error(),
		})
	}

	if request.OrderID == uuid.Nil {
		return sharedHTTP.BadRequestResponse(c, "Order ID is required", nil)
	}

	if err := h.inventoryService.ReleaseReservation(request.OrderID); err != nil {
		h.logger.Error("Stock release failed",
			zap.String("order_id", request.OrderID.String()),
			zap.Error(err))
		return sharedHTTP.InternalServerErrorResponse(c, "Stock release failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return sharedHTTP.SuccessResponse(c, "Stock released successfully", nil)
}

func (h *InventoryHandler) GetProduct(c *fiber.Ctx) error {
	productIDStr := c.Params("id")
	productID, err := uuid.Parse(productIDStr)
	if err != nil {
		return sharedHTTP.BadRequestResponse(c, "Invalid product ID", map[string]interface{}{
			"product_id": productIDStr,
		})
	}

	product, err := h.inventoryService.GetProduct(productID)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return sharedHTTP.NotFoundResponse(c, "Product not found")
		}
		return sharedHTTP.InternalServerErrorResponse(c, "Product retrieval failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return sharedHTTP.SuccessResponse(c, "Product retrieved successfully", mapProduct(product))
}

func (h *InventoryHandler) HealthCheck(c *fiber.Ctx) error {
	return sharedHTTP.SuccessResponse(c, "Inventory service is healthy", map[string]interface{}{
		"service": "inventory-service",
		"status":  "healthy",
	})
}
