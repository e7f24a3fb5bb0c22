package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-checkout/internal/events"
	"github.com/noah-isme/toko-checkout/internal/obs"
)

// Worker consumes events.TaskDeliver tasks and forwards them to the webhook.
type Worker struct {
	Webhook Webhook
	Logger  zerolog.Logger
}

// Register binds the worker on mux.
func (w Worker) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(events.TaskDeliver, w.ProcessTask)
}

// ProcessTask delivers one event. Rejected and malformed deliveries are not
// retried; everything else is left to asynq's retry schedule.
func (w Worker) ProcessTask(ctx context.Context, task *asynq.Task) error {
	ev, err := events.DecodeTask(task)
	if err != nil {
		obs.IncEventDelivery("unknown", "invalid")
		w.Logger.Error().Err(err).Msg("event_task_invalid")
		return err
	}
	start := time.Now()
	status, err := w.Webhook.Deliver(ctx, ev)
	logEvt := w.Logger.Info()
	result := "delivered"
	switch {
	case errors.Is(err, ErrRejected):
		result = "rejected"
		logEvt = w.Logger.Warn().Err(err)
		err = fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	case err != nil:
		result = "failed"
		logEvt = w.Logger.Warn().Err(err)
	}
	obs.IncEventDelivery(ev.Topic, result)
	logEvt.
		Str("event_id", ev.ID).
		Str("topic", ev.Topic).
		Str("session_id", ev.AggregateID).
		Int("status", status).
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Msg("event_delivery")
	return err
}
