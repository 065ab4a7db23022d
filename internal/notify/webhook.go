package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/darshan-rambhia/netvault/internal/model"
	"github.com/go-resty/resty/v2"
)

// WebhookProvider sends notifications as JSON to an HTTP endpoint.
type WebhookProvider struct {
	url    string
	method string
	client *resty.Client
}

// NewWebhook creates a new webhook notification provider. headers are sent
// with every request.
func NewWebhook(url, method string, headers map[string]string) *WebhookProvider {
	if method == "" {
		method = http.MethodPost
	}
	return &WebhookProvider{
		url:    url,
		method: method,
		client: resty.New().
			SetTimeout(10 * time.Second).
			SetHeader("Content-Type", "application/json").
			SetHeaders(headers),
	}
}

func (w *WebhookProvider) Name() string { return "webhook" }

func (w *WebhookProvider) Send(ctx context.Context, n model.Notification) error {
	resp, err := w.client.R().
		SetContext(ctx).
		SetBody(n).
		Execute(w.method, w.url)
	if err != nil {
		return fmt.Errorf("webhook: send: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook: unexpected status %d", resp.StatusCode())
	}
	return nil
}
