// Package mcp implements the HTTP client side of the tool-server protocol:
// agents invoke named tools through a single POST /invoke endpoint carrying
// a {tool, arguments} payload and receive a {success, result, metadata}
// envelope back.
package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ecomops/opsloop/pkg/config"
	"github.com/ecomops/opsloop/pkg/masking"
)

// DefaultTimeout bounds a single tool invocation when the config does not
// override it.
const DefaultTimeout = 15 * time.Second

// maxResponseBytes caps how much of a response body is read. Tool results are
// small aggregates; anything past this is a misbehaving server.
const maxResponseBytes = 4 << 20

// Invoker is the narrow surface agents depend on. *Client implements it;
// tests substitute recorded fakes.
type Invoker interface {
	Invoke(ctx context.Context, tool string, args map[string]any) (map[string]any, error)
}

// Client talks to the tool server over HTTP. One Client is shared by all
// agents: the underlying http.Client pools connections and is safe for
// concurrent use.
type Client struct {
	endpoint   string
	httpClient *http.Client
	masker     *masking.Service
	logger     *slog.Logger
}

// NewClient builds a Client from transport config. The API key, when set, is
// attached to every request as a bearer token via a RoundTripper wrapper so
// call sites never handle credentials. masker may be nil (masking disabled);
// when set, tool results are scrubbed before anything downstream sees them.
func NewClient(cfg config.TransportConfig, masker *masking.Service) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	httpTransport := http.DefaultTransport.(*http.Transport).Clone()
	client := &http.Client{
		Transport: httpTransport,
		Timeout:   timeout,
	}
	if cfg.APIKey != "" {
		client.Transport = &bearerTokenTransport{
			base:  client.Transport,
			token: cfg.APIKey,
		}
	}

	return &Client{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		httpClient: client,
		masker:     masker,
		logger:     slog.Default(),
	}
}

// invokeRequest is the wire shape of a tool call.
type invokeRequest struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
}

// Invoke calls the named tool and returns the decoded response envelope.
//
// Error split:
//   - the server answered and rejected the call (non-2xx status, a
//     success=false envelope, or a 2xx body that is not valid JSON) →
//     *ToolInvocationError
//   - the call never produced a server verdict (connection refused, timeout,
//     request encoding, body read) → *MCPError
//
// Agents use the split to decide between retrying and surfacing a failure.
func (c *Client) Invoke(ctx context.Context, tool string, args map[string]any) (map[string]any, error) {
	if args == nil {
		args = map[string]any{}
	}

	payload, err := json.Marshal(invokeRequest{Tool: tool, Arguments: args})
	if err != nil {
		return nil, &MCPError{Tool: tool, Op: "encode request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/invoke", bytes.NewReader(payload))
	if err != nil {
		return nil, &MCPError{Tool: tool, Op: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &MCPError{Tool: tool, Op: "post", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &MCPError{Tool: tool, Op: "read response", Err: err}
	}

	var envelope map[string]any
	if err := json.Unmarshal(body, &envelope); err != nil {
		// Non-JSON bodies show up on proxy errors and misrouted requests.
		// Keep whatever text came back so the failure is diagnosable.
		return nil, &ToolInvocationError{
			Tool:       tool,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("invalid JSON response: %s", snippet(body)),
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newInvocationError(tool, resp.StatusCode, envelope)
	}
	if success, _ := envelope["success"].(bool); !success {
		return nil, newInvocationError(tool, resp.StatusCode, envelope)
	}

	// Scrub PII and credentials before the result reaches run state or an
	// LLM prompt. MaskValue is nil-safe, so disabled masking costs nothing.
	if result, ok := envelope["result"]; ok {
		envelope["result"] = c.masker.MaskValue(result)
	}

	c.logger.Debug("Tool invoked", "tool", tool, "duration", time.Since(start))
	return envelope, nil
}

// Health probes the tool server's GET /health endpoint. Used by the startup
// probe; a failure is recorded as a system warning rather than aborting boot.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/health", nil)
	if err != nil {
		return &MCPError{Op: "build request", Err: err}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &MCPError{Op: "health probe", Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode != http.StatusOK {
		return &ToolInvocationError{
			StatusCode: resp.StatusCode,
			Message:    "tool server unhealthy",
		}
	}
	return nil
}

// Result extracts the result object from a successful envelope. Returns nil
// when the result is absent or not an object (some tools return arrays; use
// ResultList for those).
func Result(envelope map[string]any) map[string]any {
	m, _ := envelope["result"].(map[string]any)
	return m
}

// ResultList extracts a result that is an array of objects. Non-object
// elements are skipped.
func ResultList(envelope map[string]any) []map[string]any {
	raw, ok := envelope["result"].([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// snippet truncates a response body for inclusion in error messages.
func snippet(body []byte) string {
	const max = 200
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}

// bearerTokenTransport wraps an http.RoundTripper to add Authorization headers.
type bearerTokenTransport struct {
	base  http.RoundTripper
	token string
}

func (t *bearerTokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+t.token)
	return t.base.RoundTrip(req)
}
