// Package worker drives the relay pipeline: it dequeues envelopes,
// resolves account state, charges billable events, and fans them out.
// A worker loop never terminates because of an envelope; only context
// cancellation stops it.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hookbridge-systems/hookbridge/internal/dispatch"
	"github.com/hookbridge-systems/hookbridge/internal/dlq"
	"github.com/hookbridge-systems/hookbridge/internal/metrics"
	"github.com/hookbridge-systems/hookbridge/internal/model"
	"github.com/hookbridge-systems/hookbridge/internal/normalizer"
	"github.com/hookbridge-systems/hookbridge/internal/queue"
	"github.com/hookbridge-systems/hookbridge/internal/resolver"
	"github.com/hookbridge-systems/hookbridge/internal/throttle"
)

// Options tunes a worker's polling behavior. Zero values take defaults;
// tests set IdleWait to a negative value to skip the empty-poll sleep.
type Options struct {
	// PopTimeout bounds the blocking pop. Zero means the 5 second default.
	PopTimeout time.Duration

	// IdleWait is the delay between empty-queue polls. Zero means the
	// 1 second default; negative disables the wait.
	IdleWait time.Duration

	// DLQ receives dropped queue items. Nil means discard.
	DLQ dlq.Writer
}

func (o *Options) applyDefaults() {
	if o.PopTimeout == 0 {
		o.PopTimeout = 5 * time.Second
	}
	if o.IdleWait == 0 {
		o.IdleWait = time.Second
	}
	if o.DLQ == nil {
		o.DLQ = dlq.Noop{}
	}
}

// Worker consumes one message queue. Workers on the same queue do not
// coordinate: the queue's pop primitive hands each envelope to exactly
// one of them.
type Worker struct {
	queue      queue.Queue
	queueName  string
	resolver   *resolver.Resolver
	throttle   *throttle.Throttle
	dispatcher *dispatch.Dispatcher
	opts       Options
	logger     *slog.Logger
}

// New creates a message worker for the named queue.
func New(q queue.Queue, queueName string, res *resolver.Resolver, thr *throttle.Throttle, disp *dispatch.Dispatcher, logger *slog.Logger, opts Options) *Worker {
	opts.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		queue:      q,
		queueName:  queueName,
		resolver:   res,
		throttle:   thr,
		dispatcher: disp,
		opts:       opts,
		logger:     logger.With(slog.String("queue", queueName)),
	}
}

// Run alternates between idle polling and processing until ctx is
// cancelled.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("worker started")
	for {
		if ctx.Err() != nil {
			w.logger.Info("worker stopped")
			return
		}

		payload, err := w.queue.Pop(ctx, w.queueName, w.opts.PopTimeout)
		if err != nil {
			if ctx.Err() != nil {
				w.logger.Info("worker stopped")
				return
			}
			w.logger.Error("queue pop failed", slog.Any("error", err))
			idleWait(ctx, w.opts.IdleWait)
			continue
		}
		if payload == nil {
			idleWait(ctx, w.opts.IdleWait)
			continue
		}

		w.processOne(ctx, payload)
	}
}

// processOne handles a single dequeued envelope. Every failure is
// terminal for this envelope only: logged, counted, optionally dead
// lettered, and the loop moves on.
func (w *Worker) processOne(ctx context.Context, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("panic while processing envelope", slog.Any("panic", r))
		}
	}()

	var env model.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		w.drop(ctx, payload, err, "malformed")
		return
	}

	// Message queues carry messages envelopes only; anything else was
	// mis-queued and must not reach the throttled delivery path.
	if env.FieldType != model.FieldMessages {
		metrics.EventsSkipped.WithLabelValues("unsupported_field").Inc()
		w.logger.Warn("non-message envelope on message queue",
			slog.String("account_id", env.AccountID),
			slog.String("field", string(env.FieldType)),
		)
		return
	}

	res, err := w.resolver.Resolve(ctx, env.AccountID)
	if err != nil {
		w.drop(ctx, payload, err, "store_unavailable")
		return
	}
	if !res.Allowed {
		metrics.EventsSkipped.WithLabelValues(res.Reason).Inc()
		w.logger.Info("skipping envelope",
			slog.String("account_id", env.AccountID),
			slog.String("reason", res.Reason),
		)
		return
	}

	eventType, err := dispatch.DeriveEventType(&env)
	if err != nil {
		w.drop(ctx, payload, err, "unknown_status")
		return
	}

	if eventType == model.EventMessageSent && w.throttle != nil {
		if err := w.throttle.ChargeSent(ctx, env.AccountID); err != nil {
			w.drop(ctx, payload, err, "store_unavailable")
			return
		}
	}

	outcomes := w.dispatcher.Dispatch(ctx, &env, eventType, res.Destinations)

	failed := 0
	for _, out := range outcomes {
		if out.Err != nil {
			failed++
		}
	}
	w.logger.Info("envelope processed",
		slog.String("account_id", env.AccountID),
		slog.String("event_type", string(eventType)),
		slog.Int("attempted", len(outcomes)),
		slog.Int("failed", failed),
	)

	if env.Channel != model.ChannelWhatsApp {
		w.logNormalized(&env)
	}
}

// logNormalized surfaces the flattened social messages for debugging.
func (w *Worker) logNormalized(env *model.Envelope) {
	messages, err := normalizer.NormalizeMessages(env)
	if err != nil {
		w.logger.Debug("could not normalize messages", slog.Any("error", err))
		return
	}
	for _, msg := range messages {
		w.logger.Debug("normalized message",
			slog.String("channel", string(msg.Channel)),
			slog.String("account_id", msg.AccountID),
			slog.String("sender_id", msg.SenderID),
			slog.String("text", msg.Text),
		)
	}
}

func (w *Worker) drop(ctx context.Context, payload []byte, cause error, reason string) {
	metrics.EventsDropped.WithLabelValues(reason).Inc()
	if cause != nil {
		w.logger.Error("dropping queue item", slog.String("reason", reason), slog.Any("error", cause))
	} else {
		w.logger.Warn("dropping queue item", slog.String("reason", reason))
	}
	if err := w.opts.DLQ.Write(ctx, w.queueName, payload, cause, reason); err != nil {
		w.logger.Error("dead letter write failed", slog.Any("error", err))
	}
}

func idleWait(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
