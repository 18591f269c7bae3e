// Package forward relays domain frames (task and node status reports) from
// gateway connections to the coordinator API and returns its response.
package forward

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mikagit25/neurogrid-sub000/internal/auth"
)

// ErrUpstream wraps non-2xx responses from the coordinator.
var ErrUpstream = errors.New("upstream rejected request")

const maxResponseBytes = 1 << 20

// Request is one pass-through frame and who sent it.
type Request struct {
	Type         string          `json:"type"`
	ConnectionID string          `json:"connectionId"`
	Identity     *auth.Identity  `json:"identity"`
	Payload      json.RawMessage `json:"payload,omitempty"`
}

// Forwarder hands a pass-through frame to the collaborator that owns its type.
type Forwarder interface {
	Forward(ctx context.Context, req Request) (json.RawMessage, error)
}

// Func adapts a function to Forwarder.
type Func func(ctx context.Context, req Request) (json.RawMessage, error)

// Forward calls f.
func (f Func) Forward(ctx context.Context, req Request) (json.RawMessage, error) {
	return f(ctx, req)
}

// HTTPForwarder POSTs each request as JSON to <baseURL>/<type>.
type HTTPForwarder struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPForwarder creates a forwarder for the coordinator at baseURL.
func NewHTTPForwarder(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPForwarder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPForwarder{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Forward implements Forwarder.
func (f *HTTPForwarder) Forward(ctx context.Context, req Request) (json.RawMessage, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", req.Type, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+"/"+req.Type, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", req.Type, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("forward %s: %w", req.Type, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", req.Type, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		f.logger.Warn("coordinator rejected forwarded frame",
			zap.String("type", req.Type),
			zap.String("conn_id", req.ConnectionID),
			zap.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("%w: %s returned %d", ErrUpstream, req.Type, resp.StatusCode)
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		return json.RawMessage("null"), nil
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("%s response is not JSON", req.Type)
	}
	return raw, nil
}
