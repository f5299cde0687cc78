// Package dispatch fans one resolved event out to its subscribed
// destinations. Delivery is best-effort: one attempt per destination per
// dequeue, failures isolated per destination, nothing re-queued.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hookbridge-systems/hookbridge/internal/metrics"
	"github.com/hookbridge-systems/hookbridge/internal/model"
	"github.com/hookbridge-systems/hookbridge/internal/normalizer"
)

// ErrUnknownStatus marks a message envelope whose status value is not one
// the pipeline understands. The whole envelope is skipped: partial
// delivery is worse than a logged drop.
var ErrUnknownStatus = errors.New("unknown message status")

// SignatureHeader is forwarded verbatim on the raw passthrough path.
const SignatureHeader = "X-Hub-Signature-256"

// DeriveEventType classifies a message envelope by its status list.
// Absence of a status list means an inbound message.
func DeriveEventType(env *model.Envelope) (model.EventType, error) {
	payload, err := env.Parsed()
	if err != nil {
		return "", fmt.Errorf("decode envelope payload: %w", err)
	}

	status, ok := firstStatus(payload)
	if !ok {
		return model.EventMessageReceived, nil
	}

	switch status {
	case "sent":
		return model.EventMessageSent, nil
	case "delivered":
		return model.EventMessageDelivered, nil
	case "read":
		return model.EventMessageRead, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, status)
	}
}

// firstStatus digs out entry[0].changes[0].value.statuses[0].status.
func firstStatus(payload map[string]interface{}) (string, bool) {
	entries, ok := payload["entry"].([]interface{})
	if !ok || len(entries) == 0 {
		return "", false
	}
	entry, _ := entries[0].(map[string]interface{})
	changes, ok := entry["changes"].([]interface{})
	if !ok || len(changes) == 0 {
		return "", false
	}
	change, _ := changes[0].(map[string]interface{})
	value, _ := change["value"].(map[string]interface{})
	statuses, ok := value["statuses"].([]interface{})
	if !ok || len(statuses) == 0 {
		return "", false
	}
	first, _ := statuses[0].(map[string]interface{})
	status, ok := first["status"].(string)
	return status, ok
}

// Outcome records the result of one delivery attempt.
type Outcome struct {
	URL      string
	Raw      bool
	Status   int
	Err      error
	Duration time.Duration
}

// Dispatcher delivers events over HTTP. Destinations whose URL contains
// the raw-forward marker receive the original bytes and signature header;
// everyone else receives the derived JSON value.
type Dispatcher struct {
	client    *http.Client
	timeout   time.Duration
	rawMarker string
	logger    *slog.Logger
}

// New creates a dispatcher. timeout bounds each destination call
// independently; zero means the 10 second default.
func New(timeout time.Duration, rawMarker string, logger *slog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		client:    &http.Client{Timeout: timeout},
		timeout:   timeout,
		rawMarker: rawMarker,
		logger:    logger,
	}
}

// Dispatch attempts delivery to every destination subscribed to the
// event type. Message envelopes are gated on the per-destination flags;
// non-message envelopes go to every destination (the implicit "always"
// category). One destination's failure never affects its siblings.
func (d *Dispatcher) Dispatch(ctx context.Context, env *model.Envelope, eventType model.EventType, destinations []model.Destination) []Outcome {
	outcomes := make([]Outcome, 0, len(destinations))
	for _, dest := range destinations {
		if env.FieldType == model.FieldMessages && !dest.Wants(eventType) {
			continue
		}
		outcomes = append(outcomes, d.deliver(ctx, env, dest))
	}
	return outcomes
}

func (d *Dispatcher) deliver(ctx context.Context, env *model.Envelope, dest model.Destination) Outcome {
	start := time.Now()
	out := Outcome{URL: dest.URL}

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := d.buildRequest(callCtx, env, dest.URL, &out)
	if err != nil {
		out.Err = err
		out.Duration = time.Since(start)
		d.record(env, out)
		return out
	}

	resp, err := d.client.Do(req)
	if err != nil {
		out.Err = err
		out.Duration = time.Since(start)
		d.record(env, out)
		return out
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	out.Status = resp.StatusCode
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		out.Err = fmt.Errorf("destination returned status %d", resp.StatusCode)
	}
	out.Duration = time.Since(start)
	d.record(env, out)
	return out
}

// buildRequest chooses the transport for one destination. The raw path
// forwards the exact received bytes with the original content type and
// signature; it must never re-serialize, downstream verification depends
// on byte-exact fidelity.
func (d *Dispatcher) buildRequest(ctx context.Context, env *model.Envelope, url string, out *Outcome) (*http.Request, error) {
	if d.rawMarker != "" && strings.Contains(url, d.rawMarker) {
		out.Raw = true
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(env.Raw))
		if err != nil {
			return nil, fmt.Errorf("build raw request: %w", err)
		}
		req.Header.Set("Content-Type", env.ContentType)
		if env.Signature != "" {
			req.Header.Set(SignatureHeader, env.Signature)
		}
		return req, nil
	}

	value, err := normalizer.ExtractValue(env)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode event value: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (d *Dispatcher) record(env *model.Envelope, out Outcome) {
	if out.Err != nil {
		metrics.Deliveries.WithLabelValues("error").Inc()
		d.logger.Error("delivery failed",
			slog.String("url", out.URL),
			slog.String("account_id", env.AccountID),
			slog.Bool("raw", out.Raw),
			slog.Any("error", out.Err),
		)
		return
	}
	metrics.Deliveries.WithLabelValues("ok").Inc()
	d.logger.Info("delivered event",
		slog.String("url", out.URL),
		slog.String("account_id", env.AccountID),
		slog.Bool("raw", out.Raw),
		slog.Int("status", out.Status),
		slog.Duration("duration", out.Duration),
	)
}
