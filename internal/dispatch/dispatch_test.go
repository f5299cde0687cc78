package dispatch

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hookbridge-systems/hookbridge/internal/model"
)

func TestDeriveEventType(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    model.EventType
		wantErr error
	}{
		{
			name:    "no status list means inbound",
			payload: `{"object":"whatsapp_business_account","entry":[{"id":"1","changes":[{"field":"messages","value":{"messages":[{"text":{"body":"hi"}}]}}]}]}`,
			want:    model.EventMessageReceived,
		},
		{
			name:    "sent status",
			payload: `{"object":"whatsapp_business_account","entry":[{"id":"1","changes":[{"field":"messages","value":{"statuses":[{"status":"sent"}]}}]}]}`,
			want:    model.EventMessageSent,
		},
		{
			name:    "delivered status",
			payload: `{"object":"whatsapp_business_account","entry":[{"id":"1","changes":[{"field":"messages","value":{"statuses":[{"status":"delivered"}]}}]}]}`,
			want:    model.EventMessageDelivered,
		},
		{
			name:    "read status",
			payload: `{"object":"whatsapp_business_account","entry":[{"id":"1","changes":[{"field":"messages","value":{"statuses":[{"status":"read"}]}}]}]}`,
			want:    model.EventMessageRead,
		},
		{
			name:    "unknown status",
			payload: `{"object":"whatsapp_business_account","entry":[{"id":"1","changes":[{"field":"messages","value":{"statuses":[{"status":"failed"}]}}]}]}`,
			wantErr: ErrUnknownStatus,
		},
		{
			name:    "messaging payload without changes",
			payload: `{"object":"instagram","entry":[{"id":"1","messaging":[{"sender":{"id":"S1"},"message":{"text":"hi"}}]}]}`,
			want:    model.EventMessageReceived,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DeriveEventType(&model.Envelope{Raw: []byte(tt.payload)})
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

type captured struct {
	body        []byte
	contentType string
	signature   string
}

func captureServer(t *testing.T, status int, sink *[]captured) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		*sink = append(*sink, captured{
			body:        body,
			contentType: r.Header.Get("Content-Type"),
			signature:   r.Header.Get(SignatureHeader),
		})
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func messageEnvelope(raw string) *model.Envelope {
	return &model.Envelope{
		ID:          "env-1",
		Channel:     model.ChannelWhatsApp,
		AccountID:   "123456",
		FieldType:   model.FieldMessages,
		Raw:         []byte(raw),
		Signature:   "sha256=deadbeef",
		ContentType: "application/json; charset=utf-8",
	}
}

func TestDispatchRawPassthrough(t *testing.T) {
	var got []captured
	srv := captureServer(t, http.StatusOK, &got)

	// Whitespace inside raw must survive byte for byte.
	raw := `{"object":"whatsapp_business_account", "entry":[{"id":"123456","changes":[{"field":"messages","value":{"messaging_product":"whatsapp"}}]}]}`
	env := messageEnvelope(raw)

	d := New(time.Second, "wp-json", nil)
	outcomes := d.Dispatch(context.Background(), env, model.EventMessageReceived, []model.Destination{
		{URL: srv.URL + "/wp-json/hook", MessageReceived: true},
	})

	require.Len(t, outcomes, 1)
	require.NoError(t, outcomes[0].Err)
	assert.True(t, outcomes[0].Raw)

	require.Len(t, got, 1)
	assert.Equal(t, []byte(raw), got[0].body)
	assert.Equal(t, "application/json; charset=utf-8", got[0].contentType)
	assert.Equal(t, "sha256=deadbeef", got[0].signature)
}

func TestDispatchJSONValue(t *testing.T) {
	var got []captured
	srv := captureServer(t, http.StatusOK, &got)

	raw := `{"object":"whatsapp_business_account","entry":[{"id":"123456","changes":[{"field":"messages","value":{"messaging_product":"whatsapp"}}]}]}`
	env := messageEnvelope(raw)

	d := New(time.Second, "wp-json", nil)
	outcomes := d.Dispatch(context.Background(), env, model.EventMessageReceived, []model.Destination{
		{URL: srv.URL + "/hooks/incoming", MessageReceived: true},
	})

	require.Len(t, outcomes, 1)
	require.NoError(t, outcomes[0].Err)
	assert.False(t, outcomes[0].Raw)

	require.Len(t, got, 1)
	assert.JSONEq(t, `{"messaging_product":"whatsapp"}`, string(got[0].body))
	assert.Equal(t, "application/json", got[0].contentType)
	assert.Empty(t, got[0].signature)
}

func TestDispatchFlagFiltering(t *testing.T) {
	var got []captured
	srv := captureServer(t, http.StatusOK, &got)

	raw := `{"object":"whatsapp_business_account","entry":[{"id":"123456","changes":[{"field":"messages","value":{"statuses":[{"status":"read"}]}}]}]}`
	env := messageEnvelope(raw)

	d := New(time.Second, "wp-json", nil)
	outcomes := d.Dispatch(context.Background(), env, model.EventMessageRead, []model.Destination{
		{URL: srv.URL + "/a", MessageReceived: true},
		{URL: srv.URL + "/b", MessageRead: true},
	})

	require.Len(t, outcomes, 1)
	assert.Equal(t, srv.URL+"/b", outcomes[0].URL)
	assert.Len(t, got, 1)
}

func TestDispatchNonMessageIgnoresFlags(t *testing.T) {
	var got []captured
	srv := captureServer(t, http.StatusOK, &got)

	env := &model.Envelope{
		Channel:     model.ChannelInstagram,
		AccountID:   "17841400",
		FieldType:   model.FieldComments,
		Raw:         []byte(`{"object":"instagram","entry":[{"id":"17841400","changes":[{"field":"comments","value":{"text":"nice"}}]}]}`),
		ContentType: "application/json",
	}

	d := New(time.Second, "wp-json", nil)
	outcomes := d.Dispatch(context.Background(), env, "", []model.Destination{
		{URL: srv.URL + "/a"},
		{URL: srv.URL + "/b"},
	})

	assert.Len(t, outcomes, 2)
	assert.Len(t, got, 2)
}

func TestDispatchFailureIsolation(t *testing.T) {
	var okBodies []captured
	okSrv := captureServer(t, http.StatusOK, &okBodies)
	var failBodies []captured
	failSrv := captureServer(t, http.StatusInternalServerError, &failBodies)

	raw := `{"object":"whatsapp_business_account","entry":[{"id":"123456","changes":[{"field":"messages","value":{"messaging_product":"whatsapp"}}]}]}`
	env := messageEnvelope(raw)

	d := New(time.Second, "wp-json", nil)
	outcomes := d.Dispatch(context.Background(), env, model.EventMessageReceived, []model.Destination{
		{URL: okSrv.URL + "/a", MessageReceived: true},
		{URL: failSrv.URL + "/b", MessageReceived: true},
		{URL: okSrv.URL + "/c", MessageReceived: true},
	})

	require.Len(t, outcomes, 3)
	assert.NoError(t, outcomes[0].Err)
	assert.Error(t, outcomes[1].Err)
	assert.NoError(t, outcomes[2].Err)
	assert.Len(t, okBodies, 2)
}

func TestDispatchUnreachableDestination(t *testing.T) {
	raw := `{"object":"whatsapp_business_account","entry":[{"id":"123456","changes":[{"field":"messages","value":{}}]}]}`
	env := messageEnvelope(raw)

	d := New(100*time.Millisecond, "wp-json", nil)
	outcomes := d.Dispatch(context.Background(), env, model.EventMessageReceived, []model.Destination{
		{URL: "http://127.0.0.1:1/hook", MessageReceived: true},
	})

	require.Len(t, outcomes, 1)
	assert.Error(t, outcomes[0].Err)
}
