package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/iago/licitacao-pipeline/internal/domain"
)

// Notifier delivers the terminal state of a task to its callback URL.
type Notifier interface {
	Notify(ctx context.Context, url string, payload domain.CallbackPayload) error
}

// HTTPNotifier posts the payload as JSON once, bounded by timeout.
type HTTPNotifier struct {
	client  *http.Client
	timeout time.Duration
}

func NewHTTPNotifier(timeout time.Duration, client *http.Client) *HTTPNotifier {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPNotifier{client: client, timeout: timeout}
}

func (n *HTTPNotifier) Notify(ctx context.Context, url string, payload domain.CallbackPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode callback: %w", err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	request, err := http.NewRequestWithContext(timeoutCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create callback request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := n.client.Do(request)
	if err != nil {
		return fmt.Errorf("send callback: %w", err)
	}
	defer response.Body.Close()
	_, _ = io.Copy(io.Discard, response.Body)

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return fmt.Errorf("callback status %d", response.StatusCode)
	}
	return nil
}
