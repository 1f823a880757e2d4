package fanout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/sony/gobreaker/v2"

	"eventpipe/internal/types"
)

const userAgent = "eventpipe-forwarder/1.0"

// WebhookForwarder POSTs each event as a gzip-compressed JSON body to a
// fixed URL. Calls go through a circuit breaker so an unreachable target
// costs the workers one fast failure instead of a timeout per event.
type WebhookForwarder struct {
	url     string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[int]
}

// NewWebhookForwarder builds a forwarder for url. A non-positive timeout
// defaults to 5s.
func NewWebhookForwarder(url string, timeout time.Duration) *WebhookForwarder {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return NewWebhookForwarderWithClient(url, &http.Client{Timeout: timeout})
}

// NewWebhookForwarderWithClient is NewWebhookForwarder with a caller-supplied
// HTTP client.
func NewWebhookForwarderWithClient(url string, client *http.Client) *WebhookForwarder {
	cb := gobreaker.NewCircuitBreaker[int](gobreaker.Settings{
		Name:        "webhook-forwarder",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
	})
	return &WebhookForwarder{url: url, client: client, breaker: cb}
}

// State returns the breaker state: closed, half-open or open.
func (w *WebhookForwarder) State() string {
	return w.breaker.State().String()
}

// Name and Check make the forwarder a health probe: it is unhealthy while
// the breaker is open.
func (w *WebhookForwarder) Name() string { return "webhook" }

func (w *WebhookForwarder) Check(context.Context) error {
	if w.breaker.State() == gobreaker.StateOpen {
		return types.NewAppError(types.ErrCodeUpstreamUnavailable, "circuit breaker is open", nil)
	}
	return nil
}

// Forward delivers ev once. 5xx, 429 and transport errors count against the
// breaker; any other non-2xx status is a rejection and does not.
func (w *WebhookForwarder) Forward(ctx context.Context, ev *types.Event) error {
	body, err := compress(ev)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode webhook body", err)
	}

	status, err := w.breaker.Execute(func() (int, error) {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
		if reqErr != nil {
			return 0, reqErr
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Content-Encoding", "gzip")
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("X-Event-ID", ev.ID)

		resp, doErr := w.client.Do(req)
		if doErr != nil {
			return 0, doErr
		}
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		resp.Body.Close()

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return resp.StatusCode, fmt.Errorf("webhook returned %d", resp.StatusCode)
		}
		return resp.StatusCode, nil
	})

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return types.NewAppError(types.ErrCodeUpstreamUnavailable, "circuit breaker is open; webhook unavailable", err)
		}
		return types.NewAppError(types.ErrCodeUpstreamUnavailable, "webhook delivery failed", err).
			WithDetails(map[string]any{"event_id": ev.ID, "status": status})
	}
	if status >= 300 {
		return types.NewAppError(types.ErrCodeUpstreamRejected, fmt.Sprintf("webhook rejected event with %d", status), nil).
			WithDetails(map[string]any{"event_id": ev.ID, "status": status})
	}
	return nil
}

func compress(ev *types.Event) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if err := json.NewEncoder(zw).Encode(ev); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
