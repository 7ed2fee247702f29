package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecomops/opsloop/pkg/config"
	"github.com/ecomops/opsloop/pkg/masking"
)

func newTestClient(url string) *Client {
	return NewClient(config.TransportConfig{
		Endpoint: url,
		APIKey:   "test-key",
		Timeout:  5 * time.Second,
	}, nil)
}

func TestInvoke_Success(t *testing.T) {
	var gotReq invokeRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/invoke", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"result":  map[string]any{"total_revenue": 1234.5},
			"metadata": map[string]any{
				"tool":        "get_sales_summary",
				"duration_ms": 12,
			},
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	envelope, err := client.Invoke(context.Background(), "get_sales_summary", map[string]any{"days": 7})
	require.NoError(t, err)

	assert.Equal(t, "get_sales_summary", gotReq.Tool)
	assert.Equal(t, float64(7), gotReq.Arguments["days"])
	assert.Equal(t, true, envelope["success"])
	assert.Equal(t, 1234.5, Result(envelope)["total_revenue"])
}

func TestInvoke_NilArgumentsEncodesEmptyObject(t *testing.T) {
	var rawBody map[string]json.RawMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&rawBody))
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "result": map[string]any{}})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Invoke(context.Background(), "list_campaigns", nil)
	require.NoError(t, err)

	// The server contract requires an object, never null.
	assert.JSONEq(t, `{}`, string(rawBody["arguments"]))
}

func TestInvoke_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"error": map[string]any{
				"type":    "query_failed",
				"message": "relation \"ordersz\" does not exist",
			},
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Invoke(context.Background(), "execute_sql_query", map[string]any{"query": "SELECT 1"})
	require.Error(t, err)

	var invErr *ToolInvocationError
	require.ErrorAs(t, err, &invErr)
	assert.Equal(t, "execute_sql_query", invErr.Tool)
	assert.Equal(t, http.StatusInternalServerError, invErr.StatusCode)
	assert.Equal(t, "query_failed", invErr.Type)
	assert.Contains(t, invErr.Message, "does not exist")
	assert.Equal(t, false, invErr.Body["success"])
}

func TestInvoke_Unauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"error":   map[string]any{"type": "unauthorized", "message": "missing or invalid API key"},
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Invoke(context.Background(), "check_stock", map[string]any{"product_id": 3})

	var invErr *ToolInvocationError
	require.ErrorAs(t, err, &invErr)
	assert.Equal(t, http.StatusUnauthorized, invErr.StatusCode)
	assert.Equal(t, "unauthorized", invErr.Type)
}

func TestInvoke_SuccessFalseOn200(t *testing.T) {
	// Some deployments report tool-level failures with a 200 status and
	// success=false. That still has to surface as an invocation error.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"error":   map[string]any{"type": "not_found", "message": "product 999 not found"},
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Invoke(context.Background(), "check_stock", map[string]any{"product_id": 999})

	var invErr *ToolInvocationError
	require.ErrorAs(t, err, &invErr)
	assert.Equal(t, http.StatusOK, invErr.StatusCode)
	assert.Equal(t, "not_found", invErr.Type)
}

func TestInvoke_MalformedJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>502 Bad Gateway</html>"))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Invoke(context.Background(), "get_sales_summary", nil)

	var invErr *ToolInvocationError
	require.ErrorAs(t, err, &invErr)
	assert.Equal(t, http.StatusOK, invErr.StatusCode)
	assert.Contains(t, invErr.Message, "invalid JSON response")
	assert.Contains(t, invErr.Message, "Bad Gateway")
}

func TestInvoke_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // connection refused from here on

	client := newTestClient(server.URL)
	_, err := client.Invoke(context.Background(), "get_sales_summary", nil)

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, "get_sales_summary", mcpErr.Tool)
	assert.NotNil(t, errors.Unwrap(mcpErr))
}

func TestInvoke_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer server.Close()

	client := NewClient(config.TransportConfig{
		Endpoint: server.URL,
		Timeout:  50 * time.Millisecond,
	}, nil)
	_, err := client.Invoke(context.Background(), "get_sales_summary", nil)

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
}

func TestInvoke_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := newTestClient(server.URL)
	_, err := client.Invoke(ctx, "get_sales_summary", nil)

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInvoke_NoAPIKeySendsNoAuthHeader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "result": map[string]any{}})
	}))
	defer server.Close()

	client := NewClient(config.TransportConfig{Endpoint: server.URL}, nil)
	_, err := client.Invoke(context.Background(), "list_campaigns", nil)
	require.NoError(t, err)
}

func TestNewClient_TrimsTrailingSlash(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/invoke", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "result": map[string]any{}})
	}))
	defer server.Close()

	client := NewClient(config.TransportConfig{Endpoint: server.URL + "/"}, nil)
	_, err := client.Invoke(context.Background(), "list_campaigns", nil)
	require.NoError(t, err)
}

func TestInvoke_MasksToolResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"result": map[string]any{
				"tickets": []any{
					map[string]any{
						"subject": "refund to jane@example.com",
						"note":    "card 4242424242424242 on file",
					},
				},
				"count": float64(1),
			},
		})
	}))
	defer server.Close()

	masker := masking.NewService(config.MaskingConfig{Enabled: true})
	client := NewClient(config.TransportConfig{Endpoint: server.URL}, masker)

	envelope, err := client.Invoke(context.Background(), "get_support_tickets", nil)
	require.NoError(t, err)

	result := Result(envelope)
	tickets := result["tickets"].([]any)
	ticket := tickets[0].(map[string]any)
	assert.Equal(t, "refund to __MASKED_EMAIL__", ticket["subject"])
	assert.Equal(t, "card __MASKED_CARD_4242__ on file", ticket["note"])
	assert.Equal(t, float64(1), result["count"])
}

func TestHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "healthy"})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	assert.NoError(t, client.Health(context.Background()))
}

func TestHealth_Unhealthy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	err := client.Health(context.Background())

	var invErr *ToolInvocationError
	require.ErrorAs(t, err, &invErr)
	assert.Equal(t, http.StatusServiceUnavailable, invErr.StatusCode)
}

func TestResultHelpers(t *testing.T) {
	envelope := map[string]any{
		"success": true,
		"result":  map[string]any{"count": float64(3)},
	}
	assert.Equal(t, float64(3), Result(envelope)["count"])
	assert.Nil(t, ResultList(envelope))

	listEnvelope := map[string]any{
		"success": true,
		"result": []any{
			map[string]any{"id": float64(1)},
			"stray string",
			map[string]any{"id": float64(2)},
		},
	}
	assert.Nil(t, Result(listEnvelope))
	items := ResultList(listEnvelope)
	require.Len(t, items, 2)
	assert.Equal(t, float64(2), items[1]["id"])
}

func TestToolInvocationError_Message(t *testing.T) {
	err := &ToolInvocationError{
		Tool:       "check_stock",
		StatusCode: 400,
		Type:       "invalid_arguments",
		Message:    "product_id is required",
	}
	assert.Equal(t, `tool check_stock: invalid_arguments: product_id is required (HTTP 400)`, err.Error())

	bare := &ToolInvocationError{StatusCode: 503, Message: "tool server unhealthy"}
	assert.Equal(t, `tool server unhealthy (HTTP 503)`, bare.Error())
}
