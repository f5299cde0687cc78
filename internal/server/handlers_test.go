package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hookbridge-systems/hookbridge/internal/model"
	"github.com/hookbridge-systems/hookbridge/internal/queue"
	"github.com/hookbridge-systems/hookbridge/internal/router"
)

func newTestHandler(t *testing.T) (*Handler, *queue.RedisQueue) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	q := queue.NewRedisQueueFromClient(client)
	return NewHandler(q, "secret-token", nil), q
}

func TestVerifyHandshake(t *testing.T) {
	h, _ := newTestHandler(t)

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "valid handshake",
			query:      "hub.mode=subscribe&hub.verify_token=secret-token&hub.challenge=12345",
			wantStatus: http.StatusOK,
			wantBody:   "12345",
		},
		{
			name:       "wrong token",
			query:      "hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345",
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "wrong mode",
			query:      "hub.mode=unsubscribe&hub.verify_token=secret-token&hub.challenge=12345",
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "missing parameters",
			query:      "",
			wantStatus: http.StatusForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/webhook?"+tt.query, nil)
			rec := httptest.NewRecorder()
			h.Receive(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, rec.Body.String())
			}
		})
	}
}

func TestVerifyEmptyConfiguredToken(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	h := NewHandler(queue.NewRedisQueueFromClient(client), "", nil)

	// An empty configured token must never verify, even against an empty
	// request token.
	req := httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=&hub.challenge=1", nil)
	rec := httptest.NewRecorder()
	h.Receive(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestIngestRoutesToQueues(t *testing.T) {
	tests := []struct {
		name      string
		payload   string
		wantQueue string
	}{
		{
			name:      "whatsapp message",
			payload:   `{"object":"whatsapp_business_account","entry":[{"id":"123","changes":[{"field":"messages","value":{"messages":[{"text":{"body":"hi"}}]}}]}]}`,
			wantQueue: router.QueueEvents,
		},
		{
			name:      "instagram message",
			payload:   `{"object":"instagram","entry":[{"id":"17841400","messaging":[{"sender":{"id":"S1"},"message":{"text":"hi"}}]}]}`,
			wantQueue: router.QueueInstagram,
		},
		{
			name:      "messenger message",
			payload:   `{"object":"page","entry":[{"id":"998877","messaging":[{"sender":{"id":"S2"},"message":{"text":"yo"}}]}]}`,
			wantQueue: router.QueueMessenger,
		},
		{
			name:      "account update",
			payload:   `{"object":"whatsapp_business_account","entry":[{"id":"123","changes":[{"field":"account_update","value":{"event":"DISABLED_UPDATE"}}]}]}`,
			wantQueue: router.QueueNonMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, q := newTestHandler(t)

			req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(tt.payload))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			h.Receive(rec, req)

			require.Equal(t, http.StatusOK, rec.Code)

			n, err := q.Len(context.Background(), tt.wantQueue)
			require.NoError(t, err)
			assert.Equal(t, int64(1), n)
		})
	}
}

func TestIngestEnvelopePreservesRaw(t *testing.T) {
	h, q := newTestHandler(t)

	// Whitespace is significant for signature-verifying destinations.
	payload := `{"object":"whatsapp_business_account", "entry":[{"id":"123","changes":[{"field":"messages","value":{}}]}]}`
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Hub-Signature-256", "sha256=abc123")
	rec := httptest.NewRecorder()
	h.Receive(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	item, err := q.Pop(context.Background(), router.QueueEvents, 0)
	require.NoError(t, err)

	var env model.Envelope
	require.NoError(t, json.Unmarshal(item, &env))
	assert.Equal(t, []byte(payload), env.Raw)
	assert.Equal(t, "sha256=abc123", env.Signature)
	assert.Equal(t, "application/json", env.ContentType)
	assert.Equal(t, "123", env.AccountID)
}

func TestIngestNonMessageKeepsBarePayload(t *testing.T) {
	h, q := newTestHandler(t)

	payload := `{"object":"whatsapp_business_account","entry":[{"id":"123","changes":[{"field":"account_update","value":{"event":"ACCOUNT_DELETED"}}]}]}`
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(payload))
	rec := httptest.NewRecorder()
	h.Receive(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	item, err := q.Pop(context.Background(), router.QueueNonMessage, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte(payload), item)
}

func TestIngestRejectsMalformedPayload(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{name: "invalid json", body: "{{nope", wantStatus: http.StatusNotFound},
		{name: "missing object", body: `{"entry":[]}`, wantStatus: http.StatusNotFound},
		{name: "empty body", body: "", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestHandler(t)

			req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(tt.body))
			rec := httptest.NewRecorder()
			h.Receive(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestReceiveMethodNotAllowed(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodDelete, "/webhook", nil)
	rec := httptest.NewRecorder()
	h.Receive(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealthAndReady(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouterWiring(t *testing.T) {
	h, _ := newTestHandler(t)
	srv := httptest.NewServer(NewRouter(h))
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
