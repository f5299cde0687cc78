package worker

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hookbridge-systems/hookbridge/internal/dispatch"
	"github.com/hookbridge-systems/hookbridge/internal/metrics"
	"github.com/hookbridge-systems/hookbridge/internal/model"
	"github.com/hookbridge-systems/hookbridge/internal/normalizer"
	"github.com/hookbridge-systems/hookbridge/internal/queue"
	"github.com/hookbridge-systems/hookbridge/internal/repository"
	"github.com/hookbridge-systems/hookbridge/internal/resolver"
	"github.com/hookbridge-systems/hookbridge/internal/router"
)

// blockedAccountEvents remove the account outright instead of updating
// its status.
var blockedAccountEvents = map[string]struct{}{
	"ACCOUNT_DELETED":         {},
	"PARTNER_REMOVED":         {},
	"PARTNER_APP_UNINSTALLED": {},
}

// alwaysForwardFields are the social change types forwarded to every
// destination of the account, independent of per-message flags.
var alwaysForwardFields = map[model.FieldType]struct{}{
	model.FieldFeed:     {},
	model.FieldLikes:    {},
	model.FieldPosts:    {},
	model.FieldMedia:    {},
	model.FieldComments: {},
}

// AdminWorker consumes the non_message queue. Its items are bare provider
// payloads, not envelopes: field type and account id come from the
// payload's own structure. account_update events mutate account state;
// the remaining social change types fan out on the "always" category.
type AdminWorker struct {
	queue      queue.Queue
	store      repository.AccountStore
	resolver   *resolver.Resolver
	dispatcher *dispatch.Dispatcher
	opts       Options
	logger     *slog.Logger
}

// NewAdmin creates the administrative worker.
func NewAdmin(q queue.Queue, store repository.AccountStore, res *resolver.Resolver, disp *dispatch.Dispatcher, logger *slog.Logger, opts Options) *AdminWorker {
	opts.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminWorker{
		queue:      q,
		store:      store,
		resolver:   res,
		dispatcher: disp,
		opts:       opts,
		logger:     logger.With(slog.String("queue", router.QueueNonMessage)),
	}
}

// Run alternates between idle polling and processing until ctx is
// cancelled.
func (w *AdminWorker) Run(ctx context.Context) {
	w.logger.Info("admin worker started")
	for {
		if ctx.Err() != nil {
			w.logger.Info("admin worker stopped")
			return
		}

		payload, err := w.queue.Pop(ctx, router.QueueNonMessage, w.opts.PopTimeout)
		if err != nil {
			if ctx.Err() != nil {
				w.logger.Info("admin worker stopped")
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

func (w *AdminWorker) processOne(ctx context.Context, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("panic while processing payload", slog.Any("panic", r))
		}
	}()

	// Re-running the normalizer on the bare payload recovers field type
	// and account id without a second classification scheme. Account
	// lifecycle payloads may omit the object discriminator, so the
	// tolerant variant is used here.
	env, err := normalizer.NormalizeBare(payload)
	if err != nil {
		w.drop(ctx, payload, err, "malformed")
		return
	}

	switch {
	case env.FieldType == model.FieldAccountUpdate:
		w.handleAccountUpdate(ctx, env, payload)
	case isAlwaysForward(env.FieldType):
		w.fanOut(ctx, env)
	default:
		metrics.EventsSkipped.WithLabelValues("unsupported_field").Inc()
		w.logger.Warn("unsupported field type",
			slog.String("field", string(env.FieldType)),
			slog.String("account_id", env.AccountID),
		)
	}
}

// handleAccountUpdate applies a provider account lifecycle event: blocked
// events delete the account row, everything else updates its status.
func (w *AdminWorker) handleAccountUpdate(ctx context.Context, env *model.Envelope, payload []byte) {
	value, err := normalizer.ExtractValue(env)
	if err != nil {
		w.drop(ctx, payload, err, "malformed")
		return
	}
	event, _ := value["event"].(string)
	if event == "" {
		w.drop(ctx, payload, nil, "missing_event")
		return
	}

	if _, blocked := blockedAccountEvents[event]; blocked {
		err = w.store.DeleteAccount(ctx, env.AccountID)
		if errors.Is(err, repository.ErrAccountNotFound) {
			w.logger.Info("account already absent", slog.String("account_id", env.AccountID))
			return
		}
		if err != nil {
			w.drop(ctx, payload, err, "store_unavailable")
			return
		}
		w.logger.Info("account deleted",
			slog.String("account_id", env.AccountID),
			slog.String("event", event),
		)
		return
	}

	err = w.store.UpdateAccountStatus(ctx, env.AccountID, event)
	if errors.Is(err, repository.ErrAccountNotFound) {
		w.logger.Info("account not registered, status update ignored", slog.String("account_id", env.AccountID))
		return
	}
	if err != nil {
		w.drop(ctx, payload, err, "store_unavailable")
		return
	}
	w.logger.Info("account status updated",
		slog.String("account_id", env.AccountID),
		slog.String("status", event),
	)
}

// fanOut delivers an always-category event to every destination of an
// allowed account.
func (w *AdminWorker) fanOut(ctx context.Context, env *model.Envelope) {
	res, err := w.resolver.Resolve(ctx, env.AccountID)
	if err != nil {
		w.drop(ctx, env.Raw, err, "store_unavailable")
		return
	}
	if !res.Allowed {
		metrics.EventsSkipped.WithLabelValues(res.Reason).Inc()
		w.logger.Info("skipping payload",
			slog.String("account_id", env.AccountID),
			slog.String("reason", res.Reason),
		)
		return
	}

	outcomes := w.dispatcher.Dispatch(ctx, env, "", res.Destinations)
	w.logger.Info("always-category event forwarded",
		slog.String("account_id", env.AccountID),
		slog.String("field", string(env.FieldType)),
		slog.Int("attempted", len(outcomes)),
	)
}

func (w *AdminWorker) drop(ctx context.Context, payload []byte, cause error, reason string) {
	metrics.EventsDropped.WithLabelValues(reason).Inc()
	if cause != nil {
		w.logger.Error("dropping queue item", slog.String("reason", reason), slog.Any("error", cause))
	} else {
		w.logger.Warn("dropping queue item", slog.String("reason", reason))
	}
	if err := w.opts.DLQ.Write(ctx, router.QueueNonMessage, payload, cause, reason); err != nil {
		w.logger.Error("dead letter write failed", slog.Any("error", err))
	}
}

func isAlwaysForward(t model.FieldType) bool {
	_, ok := alwaysForwardFields[t]
	return ok
}
