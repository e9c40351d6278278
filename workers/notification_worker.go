package workers

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"portfolio-ledger/services"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// NotificationSink stores a dequeued notification.
type NotificationSink interface {
	Deliver(ctx context.Context, job services.NotificationJob) error
}

// NotificationWorker drains the notification queue into the inbox table.
type NotificationWorker struct {
	client  *redis.Client
	queue   string
	sink    NotificationSink
	timeout time.Duration
}

func NewNotificationWorker(client *redis.Client, queue string, sink NotificationSink) *NotificationWorker {
	return &NotificationWorker{client: client, queue: queue, sink: sink, timeout: 30 * time.Second}
}

func (w *NotificationWorker) Start(ctx context.Context) {
	logrus.WithField("queue", w.queue).Info("📨 Starting notification worker")
	go func() {
		for {
			select {
			case <-ctx.Done():
				logrus.Info("⏹️ notification worker stopped")
				return
			default:
				if err := w.ProcessOne(ctx); err != nil && ctx.Err() == nil {
					logrus.WithError(err).Warn("notification dequeue failed")
					time.Sleep(time.Second)
				}
			}
		}
	}()
}

// ProcessOne waits for one job and delivers it. A malformed or undeliverable job is logged
// and dropped.
func (w *NotificationWorker) ProcessOne(ctx context.Context) error {
	result, err := w.client.BRPop(ctx, w.timeout, w.queue).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(result) < 2 {
		logrus.Warn("invalid notification payload from queue")
		return nil
	}

	var job services.NotificationJob
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		logrus.WithError(err).Warn("dropping malformed notification")
		return nil
	}
	if err := w.sink.Deliver(ctx, job); err != nil {
		logrus.WithError(err).WithField("user_id", job.UserID).Warn("dropping undeliverable notification")
	}
	return nil
}
