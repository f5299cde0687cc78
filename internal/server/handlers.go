// Package server is the webhook ingress: it accepts provider callbacks,
// captures their exact raw bytes, and appends normalized envelopes to the
// relay queues.
package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hookbridge-systems/hookbridge/internal/dispatch"
	"github.com/hookbridge-systems/hookbridge/internal/metrics"
	"github.com/hookbridge-systems/hookbridge/internal/normalizer"
	"github.com/hookbridge-systems/hookbridge/internal/queue"
	"github.com/hookbridge-systems/hookbridge/internal/router"
)

// Handler serves the provider webhook endpoints.
type Handler struct {
	queue       queue.Queue
	verifyToken string
	logger      *slog.Logger
}

// NewHandler creates the ingress handler. verifyToken is the shared
// secret for the provider's subscription handshake.
func NewHandler(q queue.Queue, verifyToken string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{queue: q, verifyToken: verifyToken, logger: logger}
}

// Receive handles both the GET verification handshake and POST event
// callbacks on the webhook endpoints.
func (h *Handler) Receive(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.verify(w, r)
	case http.MethodPost:
		h.ingest(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// verify answers the provider's subscription handshake by echoing the
// challenge.
func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") == "subscribe" && h.verifyToken != "" && q.Get("hub.verify_token") == h.verifyToken {
		h.logger.Info("webhook verified")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(q.Get("hub.challenge")))
		return
	}
	w.WriteHeader(http.StatusForbidden)
}

// ingest captures the exact raw bytes before any parsing, normalizes the
// payload, and appends it to its queue. Signature-verifying destinations
// downstream depend on those bytes staying untouched.
func (h *Handler) ingest(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	r.Body.Close()
	if err != nil || len(raw) == 0 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	env, err := normalizer.Normalize(raw, normalizer.Metadata{
		Signature:   r.Header.Get(dispatch.SignatureHeader),
		ContentType: r.Header.Get("Content-Type"),
		ReceivedAt:  time.Now().UTC(),
	})
	if err != nil {
		metrics.EventsDropped.WithLabelValues("malformed").Inc()
		h.logger.Warn("rejecting payload", slog.Any("error", err))
		w.WriteHeader(http.StatusNotFound)
		return
	}

	queueName := router.Route(env)

	// Administrative events travel as the bare provider payload; message
	// events as the full envelope.
	item := raw
	if queueName != router.QueueNonMessage {
		item, err = json.Marshal(env)
		if err != nil {
			h.logger.Error("encode envelope failed", slog.Any("error", err))
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}

	if err := h.queue.Push(r.Context(), queueName, item); err != nil {
		h.logger.Error("queue append failed", slog.String("queue", queueName), slog.Any("error", err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	metrics.EventsIngested.WithLabelValues(queueName).Inc()
	h.logger.Info("event queued",
		slog.String("queue", queueName),
		slog.String("channel", string(env.Channel)),
		slog.String("field", string(env.FieldType)),
		slog.String("account_id", env.AccountID),
	)
	w.WriteHeader(http.StatusOK)
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// Ready reports readiness by probing the queue engine.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if _, err := h.queue.Len(r.Context(), router.QueueEvents); err != nil {
		h.logger.Error("readiness probe failed", slog.Any("error", err))
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready"))
}
