package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"
)

// TaskDeliver is the asynq task type carrying one encoded Event.
const TaskDeliver = "checkout:event:deliver"

// DefaultQueue is the asynq queue checkout events are enqueued on.
const DefaultQueue = "checkout_events"

// TaskEnqueuer is satisfied by *asynq.Client.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// QueueNotifier hands events to the background worker through asynq. The
// event id doubles as the task id so a re-emitted event is enqueued once.
type QueueNotifier struct {
	Client   TaskEnqueuer
	Queue    string
	MaxRetry int
	Topics   []string
}

// Notify implements Notifier.
func (q QueueNotifier) Notify(ctx context.Context, event Event) error {
	if q.Client == nil {
		return nil
	}
	if len(q.Topics) > 0 && !subscribed(q.Topics, event.Topic) {
		return nil
	}
	task, err := NewTask(event)
	if err != nil {
		return err
	}
	queue := strings.TrimSpace(q.Queue)
	if queue == "" {
		queue = DefaultQueue
	}
	opts := []asynq.Option{asynq.Queue(queue), asynq.TaskID(event.ID)}
	if q.MaxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(q.MaxRetry))
	}
	if _, err := q.Client.EnqueueContext(ctx, task, opts...); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		return fmt.Errorf("enqueue %s: %w", event.Topic, err)
	}
	return nil
}

// NewTask encodes event as a TaskDeliver task.
func NewTask(event Event) (*asynq.Task, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("events: encode task: %w", err)
	}
	return asynq.NewTask(TaskDeliver, body), nil
}

// DecodeTask extracts the Event carried by a TaskDeliver task. Malformed
// payloads are wrapped with asynq.SkipRetry.
func DecodeTask(task *asynq.Task) (Event, error) {
	if task == nil || task.Type() != TaskDeliver {
		return Event{}, fmt.Errorf("events: unexpected task: %w", asynq.SkipRetry)
	}
	var ev Event
	if err := json.Unmarshal(task.Payload(), &ev); err != nil {
		return Event{}, fmt.Errorf("events: decode task: %v: %w", err, asynq.SkipRetry)
	}
	if ev.ID == "" || ev.Topic == "" {
		return Event{}, fmt.Errorf("events: task missing id or topic: %w", asynq.SkipRetry)
	}
	return ev, nil
}

func subscribed(topics []string, topic string) bool {
	for _, t := range topics {
		if t == topic {
			return true
		}
	}
	return false
}
