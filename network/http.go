package network

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/quivergql/quiver/language"
)

// HTTP is the GraphQL-over-HTTP Network implementation: one POST per
// operation, one Next event per response, then Complete. Transport
// failures, non-2xx statuses, and top-level GraphQL errors terminate the
// stream with an Error event.
type HTTP struct {
	endpoint string
	opt      httpOptions
}

type httpOptions struct {
	client  *http.Client
	headers http.Header
}

// HTTPOption configures the HTTP network layer.
type HTTPOption func(*httpOptions)

// WithClient replaces the default http.Client.
func WithClient(c *http.Client) HTTPOption {
	return func(o *httpOptions) { o.client = c }
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) HTTPOption {
	return func(o *httpOptions) { o.headers.Add(key, value) }
}

var _ Network = (*HTTP)(nil)

// NewHTTP creates an HTTP network layer for one endpoint.
func NewHTTP(endpoint string, opts ...HTTPOption) *HTTP {
	o := httpOptions{client: http.DefaultClient, headers: http.Header{}}
	for _, opt := range opts {
		opt(&o)
	}
	return &HTTP{endpoint: endpoint, opt: o}
}

type httpRequest struct {
	Query         string             `json:"query"`
	OperationName string             `json:"operationName,omitempty"`
	Variables     language.Variables `json:"variables,omitempty"`
}

// Execute returns a cold stream that POSTs the operation when subscribed.
// Disposing the subscription cancels the in-flight request.
func (h *HTTP) Execute(ctx context.Context, req *language.Request, vars language.Variables) *Stream {
	return NewStream(func(observer Observer) CancelFunc {
		ctx, cancel := context.WithCancel(ctx)
		go h.roundTrip(ctx, observer, req, vars)
		return CancelFunc(cancel)
	})
}

func (h *HTTP) roundTrip(ctx context.Context, observer Observer, req *language.Request, vars language.Variables) {
	body, err := json.Marshal(httpRequest{Query: req.Source, OperationName: req.Name, Variables: vars})
	if err != nil {
		observer.Error(fmt.Errorf("network: encode request: %w", err))
		return
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		observer.Error(fmt.Errorf("network: build request: %w", err))
		return
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, vv := range h.opt.headers {
		for _, v := range vv {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := h.opt.client.Do(httpReq)
	if err != nil {
		observer.Error(fmt.Errorf("network: %w", err))
		return
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		observer.Error(fmt.Errorf("network: read response: %w", err))
		return
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		observer.Error(fmt.Errorf("network: server returned %s", resp.Status))
		return
	}

	var payload Payload
	if err := json.Unmarshal(raw, &payload); err != nil {
		observer.Error(fmt.Errorf("network: decode response: %w", err))
		return
	}
	if payload.Data == nil && len(payload.Errors) > 0 {
		observer.Error(fmt.Errorf("network: operation failed: %s", payload.Errors[0].Message))
		return
	}
	observer.Next(&payload)
	observer.Complete()
}
