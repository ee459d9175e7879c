package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const defaultCallTimeout = 10 * time.Second

// apiEnvelope mirrors the shared APIResponse shape with a typed data field.
type apiEnvelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// HTTPInventoryClient calls the inventory participant's REST surface using
// fiber's bundled agent.
type HTTPInventoryClient struct {
	baseURL string
}

func NewHTTPInventoryClient(baseURL string) *HTTPInventoryClient {
	return &HTTPInventoryClient{baseURL: baseURL}
}

type reserveStockRequest struct {
	OrderID   uuid.UUID `json:"order_id"`
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
}

type reserveStockResponse struct {
	ReservationID uuid.UUID `json:"reservation_id"`
}

func (c *HTTPInventoryClient) ReserveStock(ctx context.Context, orderID, productID uuid.UUID, quantity int) (uuid.UUID, error) {
	body := reserveStockRequest{OrderID: orderID, ProductID: productID, Quantity: quantity}

	var data reserveStockResponse
	if err := postJSON(ctx, c.baseURL+"/api/v1/inventory/reserve", body, &data); err != nil {
		return uuid.Nil, fmt.Errorf("reserve stock call failed: %w", err)
	}
	return data.ReservationID, nil
}

type releaseStockRequest struct {
	OrderID uuid.UUID `json:"order_id"`
}

func (c *HTTPInventoryClient) ReleaseStock(ctx context.Context, orderID uuid.UUID) error {
	body := releaseStockRequest{OrderID: orderID}
	if err := postJSON(ctx, c.baseURL+"/api/v1/inventory/release", body, nil); err != nil {
		return fmt.Errorf("release stock call failed: %w", err)
	}
	return nil
}

// HTTPPaymentClient calls the payment participant's REST surface.
type HTTPPaymentClient struct {
	baseURL string
}

func NewHTTPPaymentClient(baseURL string) *HTTPPaymentClient {
	return &HTTPPaymentClient{baseURL: baseURL}
}

type preAuthRequest struct {
	OrderID uuid.UUID `json:"order_id"`
	Amount  float64   `json:"amount"`
}

func (c *HTTPPaymentClient) PreAuthorizePayment(ctx context.Context, orderID uuid.UUID, amount float64) (*PreAuthResult, error) {
	body := preAuthRequest{OrderID: orderID, Amount: amount}

	var data PreAuthResult
	if err := postJSON(ctx, c.baseURL+"/api/v1/payments/preauth", body, &data); err != nil {
		return nil, fmt.Errorf("pre-authorization call failed: %w", err)
	}
	return &data, nil
}

func (c *HTTPPaymentClient) VoidPreAuth(ctx context.Context, preauthID uuid.UUID) error {
	url := fmt.Sprintf("%s/api/v1/payments/%s/void", c.baseURL, preauthID)
	if err := postJSON(ctx, url, nil, nil); err != nil {
		return fmt.Errorf("void pre-auth call failed: %w", err)
	}
	return nil
}

func postJSON(ctx context.Context, url string, body interface{}, out interface{}) error {
	agent := fiber.Post(url)
	agent.Timeout(callTimeout(ctx))
	if body != nil {
		agent.JSON(body)
	}

	status, respBody, errs := agent.Bytes()
	if len(errs) > 0 {
		return errs[0]
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("response decode error: %w", err)
	}

	if status >= 400 || !envelope.Success {
		return fmt.Errorf("%s (status %d)", envelope.Message, status)
	}

	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("response data decode error: %w", err)
		}
	}
	return nil
}

func callTimeout(ctx context.Context) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return defaultCallTimeout
	}
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return time.Millisecond
	}
	return remaining
}
