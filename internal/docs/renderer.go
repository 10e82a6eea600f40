package docs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"example.com/safegear/services/ppe/config"
)

// Renderer produces the printable receipt for one or more deliveries.
// Rendering is stateless and has no effect on the lifecycle.
type Renderer interface {
	RenderDeliveryReceipt(ctx context.Context, deliveryIDs []uuid.UUID) ([]byte, error)
}

// httpRenderer implements Renderer against the render service
type httpRenderer struct {
	baseURL string
	client  *http.Client
}

// NewRenderer creates a new renderer client
func NewRenderer(cfg *config.RendererConfig) Renderer {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &httpRenderer{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// RenderDeliveryReceipt renders a receipt document covering the given
// deliveries
func (r *httpRenderer) RenderDeliveryReceipt(ctx context.Context, deliveryIDs []uuid.UUID) ([]byte, error) {
	payload := map[string]interface{}{
		"delivery_ids": deliveryIDs,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/v1/render/delivery-receipt", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("render service request failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("render service responded with status %d", res.StatusCode)
	}
	return io.ReadAll(res.Body)
}
