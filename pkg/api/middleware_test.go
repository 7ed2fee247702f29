package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestExtractAuthor(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{
			name:    "forwarded user wins",
			headers: map[string]string{"X-Forwarded-User": "alice", "X-Forwarded-Email": "alice@example.com"},
			want:    "alice",
		},
		{
			name:    "falls back to forwarded email",
			headers: map[string]string{"X-Forwarded-Email": "bob@example.com", "X-Remote-User": "bob"},
			want:    "bob@example.com",
		},
		{
			name:    "falls back to remote user",
			headers: map[string]string{"X-Remote-User": "carol"},
			want:    "carol",
		},
		{
			name: "default without proxy headers",
			want: "api-client",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(rec)
			c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/actions/approve/1", nil)
			for k, v := range tt.headers {
				c.Request.Header.Set(k, v)
			}

			assert.Equal(t, tt.want, extractAuthor(c))
		})
	}
}
