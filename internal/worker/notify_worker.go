package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"salonbook/internal/metrics"
	"salonbook/internal/notify"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// NotifyTask is one message to deliver. RetryCount travels with the task
// so re-enqueued tasks keep their attempt history.
type NotifyTask struct {
	Recipient  string    `json:"recipient"`
	Text       string    `json:"text"`
	RetryCount int       `json:"retry_count"`
	NotBefore  time.Time `json:"not_before,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// NotifyWorker drains the notification queue and pushes messages out.
// With redis available the queue survives restarts; without it tasks
// live in a buffered channel.
type NotifyWorker struct {
	notifier      notify.Notifier
	redis         *redis.Client
	backoff       Backoff
	queue         chan NotifyTask
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	logger        *zerolog.Logger
}

func NewNotifyWorker(notifier notify.Notifier, redisClient *redis.Client, backoff Backoff, logger *zerolog.Logger) *NotifyWorker {
	if backoff.Attempts == 0 {
		backoff.Attempts = 5
	}
	if backoff.Base == 0 {
		backoff.Base = 2 * time.Second
	}
	if backoff.Cap == 0 {
		backoff.Cap = 1 * time.Minute
	}

	return &NotifyWorker{
		notifier:      notifier,
		redis:         redisClient,
		backoff:       backoff,
		queue:         make(chan NotifyTask, 128),
		redisQueueKey: "notify:queue",
		deadLetterKey: "notify:deadletter",
		pollInterval:  2 * time.Second,
		logger:        logger,
	}
}

// Enqueue schedules a message; redis first, in-memory fallback.
func (w *NotifyWorker) Enqueue(ctx context.Context, recipient, text string) error {
	if recipient == "" {
		return errors.New("recipient is required")
	}

	task := NotifyTask{Recipient: recipient, Text: text, CreatedAt: time.Now()}

	if w.redis != nil {
		if err := w.pushRedis(ctx, task); err != nil {
			w.logger.Warn().Err(err).Msg("notify_worker: redis push failed, fallback to memory queue")
		} else {
			return nil
		}
	}

	select {
	case w.queue <- task:
	default:
		w.logger.Error().Str("recipient", recipient).Msg("notify_worker: in-memory queue full, task dropped")
		metrics.IncNotification("dropped")
	}
	return nil
}

// Start launches the main loop; stops when ctx is done.
func (w *NotifyWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("notify_worker: started")
	defer w.logger.Info().Msg("notify_worker: stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if t, ok := w.tryLocalQueue(); ok {
			w.processTask(ctx, t)
			continue
		}

		if t, ok := w.tryRedis(ctx); ok {
			w.processTask(ctx, t)
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.pollInterval):
		}
	}
}

func (w *NotifyWorker) tryLocalQueue() (NotifyTask, bool) {
	select {
	case t := <-w.queue:
		return t, true
	default:
		return NotifyTask{}, false
	}
}

func (w *NotifyWorker) tryRedis(ctx context.Context) (NotifyTask, bool) {
	if w.redis == nil {
		return NotifyTask{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, redis.Nil) {
			return NotifyTask{}, false
		}
		w.logger.Warn().Err(err).Msg("notify_worker: redis BRPOP error")
		return NotifyTask{}, false
	}
	if len(res) != 2 {
		return NotifyTask{}, false
	}
	var task NotifyTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Error().Err(err).Msg("notify_worker: decode redis task")
		return NotifyTask{}, false
	}
	return task, true
}

func (w *NotifyWorker) processTask(ctx context.Context, task NotifyTask) {
	if !task.NotBefore.IsZero() {
		if wait := time.Until(task.NotBefore); wait > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
		}
	}

	if err := w.notifier.Push(ctx, task.Recipient, task.Text); err != nil {
		w.retryOrFail(ctx, task, err)
		return
	}
	metrics.IncNotification("sent")
}

func (w *NotifyWorker) retryOrFail(ctx context.Context, task NotifyTask, cause error) {
	task.RetryCount++
	if w.backoff.Exhausted(task.RetryCount) {
		w.logger.Error().Err(cause).Str("recipient", task.Recipient).
			Int("attempts", task.RetryCount).Msg("notify_worker: giving up")
		metrics.IncNotification("failed")
		w.pushDeadLetter(ctx, task)
		return
	}

	task.NotBefore = time.Now().Add(w.backoff.Delay(task.RetryCount))
	w.logger.Warn().Err(cause).Str("recipient", task.Recipient).
		Int("attempt", task.RetryCount).Time("not_before", task.NotBefore).
		Msg("notify_worker: delivery failed, will retry")

	if w.redis != nil {
		if err := w.pushRedis(ctx, task); err == nil {
			return
		}
	}
	select {
	case w.queue <- task:
	default:
		metrics.IncNotification("dropped")
	}
}

func (w *NotifyWorker) pushRedis(ctx context.Context, task NotifyTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, w.redisQueueKey, data).Err()
}

func (w *NotifyWorker) pushDeadLetter(ctx context.Context, task NotifyTask) {
	if w.redis == nil {
		return
	}
	data, err := json.Marshal(task)
	if err != nil {
		return
	}
	if err := w.redis.LPush(ctx, w.deadLetterKey, data).Err(); err != nil {
		w.logger.Error().Err(err).Msg("notify_worker: deadletter push failed")
	}
}
