package slack

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecomops/opsloop/pkg/models"
)

// mockSlackAPI records chat.postMessage calls and serves a canned channel
// history for conversations.history.
type mockSlackAPI struct {
	t       *testing.T
	posts   []postedMessage
	history string
}

type postedMessage struct {
	channel  string
	blocks   string
	threadTS string
}

func (m *mockSlackAPI) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(m.t, r.ParseForm())
		w.Header().Set("Content-Type", "application/json")

		switch r.URL.Path {
		case "/chat.postMessage":
			m.posts = append(m.posts, postedMessage{
				channel:  r.Form.Get("channel"),
				blocks:   r.Form.Get("blocks"),
				threadTS: r.Form.Get("thread_ts"),
			})
			_, _ = w.Write([]byte(`{"ok":true,"channel":"C123","ts":"200.1"}`))
		case "/conversations.history":
			_, _ = w.Write([]byte(m.history))
		default:
			m.t.Errorf("unexpected Slack API call: %s", r.URL.Path)
			_, _ = w.Write([]byte(`{"ok":false,"error":"unknown_method"}`))
		}
	})
}

func newMockedService(t *testing.T, history string) (*Service, *mockSlackAPI) {
	t.Helper()
	mock := &mockSlackAPI{t: t, history: history}
	server := httptest.NewServer(mock.handler())
	t.Cleanup(server.Close)

	client := NewClientWithAPIURL("xoxb-test", "C123", server.URL+"/")
	return NewServiceWithClient(client, "https://ops.example.com"), mock
}

func TestService_NilReceiver(t *testing.T) {
	var s *Service

	// Neither call may panic.
	s.ApprovalRequested(context.Background(), "thread-1", "q", sampleActions())
	s.RunResumed(context.Background(), "thread-1", 2, 0)
}

func TestNewService(t *testing.T) {
	t.Run("returns nil when token empty", func(t *testing.T) {
		assert.Nil(t, NewService(ServiceConfig{Token: "", Channel: "C123"}))
	})

	t.Run("returns nil when channel empty", func(t *testing.T) {
		assert.Nil(t, NewService(ServiceConfig{Token: "xoxb-test", Channel: ""}))
	})

	t.Run("returns service when configured", func(t *testing.T) {
		svc := NewService(ServiceConfig{
			Token:        "xoxb-test",
			Channel:      "#ops-approvals",
			DashboardURL: "https://ops.example.com",
		})
		assert.NotNil(t, svc)
	})
}

func TestService_ApprovalRequested(t *testing.T) {
	svc, mock := newMockedService(t, `{"ok":true,"messages":[]}`)

	svc.ApprovalRequested(context.Background(), "thread-abc", "why is ROAS down?", sampleActions())

	require.Len(t, mock.posts, 1)
	post := mock.posts[0]
	assert.Equal(t, "C123", post.channel)
	assert.Empty(t, post.threadTS, "approval request starts a new message")
	assert.Contains(t, post.blocks, "thread-abc")
	assert.Contains(t, post.blocks, "restock_item")
	assert.Contains(t, post.blocks, "Approval required")
}

func TestService_RunResumed_ThreadsUnderApprovalMessage(t *testing.T) {
	history := `{"ok":true,"messages":[
		{"type":"message","text":"unrelated","ts":"100.1"},
		{"type":"message","text":"Approval required Thread: thread-abc","ts":"100.2"}
	]}`
	svc, mock := newMockedService(t, history)

	svc.RunResumed(context.Background(), "thread-abc", 2, 0)

	require.Len(t, mock.posts, 1)
	post := mock.posts[0]
	assert.Equal(t, "100.2", post.threadTS, "reply threads under the approval request")
	assert.Contains(t, post.blocks, "2 action(s) executed")
}

func TestService_RunResumed_StandaloneWhenNotFound(t *testing.T) {
	svc, mock := newMockedService(t, `{"ok":true,"messages":[{"type":"message","text":"unrelated","ts":"100.1"}]}`)

	svc.RunResumed(context.Background(), "thread-abc", 0, 1)

	require.Len(t, mock.posts, 1)
	assert.Empty(t, mock.posts[0].threadTS)
}

func TestService_FailOpenOnAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":false,"error":"channel_not_found"}`))
	}))
	t.Cleanup(server.Close)

	client := NewClientWithAPIURL("xoxb-test", "C404", server.URL+"/")
	svc := NewServiceWithClient(client, "")

	// Must not panic or return anything; errors are logged only.
	svc.ApprovalRequested(context.Background(), "thread-abc", "q", []models.PendingAction{{ID: 1, ActionType: "restock_item", Agent: "inventory"}})
	svc.RunResumed(context.Background(), "thread-abc", 1, 0)
}
