package services

import (
	"context"
	"encoding/json"
	"fmt"

	"portfolio-ledger/models"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NotificationJob is one queued notification.
type NotificationJob struct {
	Audience models.Audience `json:"audience"`
	UserID   string          `json:"user_id,omitempty"`
	Title    string          `json:"title"`
	Message  string          `json:"message"`
}

// NotificationService stores notifications and serves the inbox reads. It is also the
// synchronous Notifier.
type NotificationService struct {
	DB *gorm.DB
}

func NewNotificationService(db *gorm.DB) *NotificationService {
	return &NotificationService{DB: db}
}

func (s *NotificationService) Notify(ctx context.Context, userID, message, title string) error {
	return s.Deliver(ctx, NotificationJob{Audience: models.AudienceUser, UserID: userID, Title: title, Message: message})
}

func (s *NotificationService) NotifyAdmins(ctx context.Context, message, title string) error {
	return s.Deliver(ctx, NotificationJob{Audience: models.AudienceAdmin, Title: title, Message: message})
}

// Deliver writes job into the inbox table.
func (s *NotificationService) Deliver(ctx context.Context, job NotificationJob) error {
	if job.Audience == models.AudienceUser && job.UserID == "" {
		return validationf("user notification without user id")
	}
	n := &models.Notification{
		ID:       uuid.NewString(),
		UserID:   job.UserID,
		Audience: job.Audience,
		Title:    job.Title,
		Message:  job.Message,
	}
	if err := s.DB.WithContext(ctx).Create(n).Error; err != nil {
		return internal("store notification", err)
	}
	return nil
}

// List returns userID's notifications, newest first. Admins also see the admin inbox.
func (s *NotificationService) List(ctx context.Context, userID string, admin, unreadOnly bool, pq PageQuery) (Page[models.Notification], error) {
	q := s.DB.WithContext(ctx).Model(&models.Notification{})
	if admin {
		q = q.Where("user_id = ? OR audience = ?", userID, models.AudienceAdmin)
	} else {
		q = q.Where("user_id = ? AND audience = ?", userID, models.AudienceUser)
	}
	if unreadOnly {
		q = q.Where("read = ?", false)
	}
	pq.SortBy = ""
	page, err := paginate[models.Notification](q, pq, nil, "created_at")
	if err != nil {
		return page, internal("list notifications", err)
	}
	return page, nil
}

// MarkRead marks one of userID's notifications read.
func (s *NotificationService) MarkRead(ctx context.Context, userID, id string, admin bool) error {
	q := s.DB.WithContext(ctx).Model(&models.Notification{}).Where("id = ?", id)
	if admin {
		q = q.Where("user_id = ? OR audience = ?", userID, models.AudienceAdmin)
	} else {
		q = q.Where("user_id = ?", userID)
	}
	res := q.Update("read", true)
	if res.Error != nil {
		return internal("mark notification read", res.Error)
	}
	if res.RowsAffected == 0 {
		return notFoundf("notification %s not found", id)
	}
	return nil
}

// MarkAllRead marks every unread user notification of userID read.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	res := s.DB.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Update("read", true)
	if res.Error != nil {
		return 0, internal("mark notifications read", res.Error)
	}
	return res.RowsAffected, nil
}

// QueueNotifier pushes notification jobs onto a Redis list drained by the notification worker.
type QueueNotifier struct {
	Client *redis.Client
	Queue  string
}

func NewQueueNotifier(client *redis.Client, queue string) *QueueNotifier {
	return &QueueNotifier{Client: client, Queue: queue}
}

func (n *QueueNotifier) Notify(ctx context.Context, userID, message, title string) error {
	return n.push(ctx, NotificationJob{Audience: models.AudienceUser, UserID: userID, Title: title, Message: message})
}

func (n *QueueNotifier) NotifyAdmins(ctx context.Context, message, title string) error {
	return n.push(ctx, NotificationJob{Audience: models.AudienceAdmin, Title: title, Message: message})
}

func (n *QueueNotifier) push(ctx context.Context, job NotificationJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	if err := n.Client.LPush(ctx, n.Queue, body).Err(); err != nil {
		return fmt.Errorf("failed to queue notification: %w", err)
	}
	return nil
}
