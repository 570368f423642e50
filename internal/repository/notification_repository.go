package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/uniportal-api/internal/models"
)

const notificationColumns = `id, recipient, subject, text_body, html_body, status, attempts, last_error, created_at, sent_at`

// NotificationRepository stores the email outbox.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create inserts a PENDING outbox row.
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Status == "" {
		n.Status = models.NotificationStatusPending
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO notifications (` + notificationColumns + `)
	VALUES (:id, :recipient, :subject, :text_body, :html_body, :status, :attempts, :last_error, :created_at, :sent_at)`
	if _, err := r.db.NamedExecContext(ctx, query, n); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// GetByID fetches an outbox row.
func (r *NotificationRepository) GetByID(ctx context.Context, id string) (*models.Notification, error) {
	const query = `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1`
	var n models.Notification
	if err := r.db.GetContext(ctx, &n, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get notification: %w", err)
	}
	return &n, nil
}

// MarkSent records a successful delivery.
func (r *NotificationRepository) MarkSent(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE notifications SET status = $2, attempts = attempts + 1, last_error = NULL, sent_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.NotificationStatusSent, at); err != nil {
		return fmt.Errorf("mark notification sent: %w", err)
	}
	return nil
}

// MarkAttempt records a failed delivery. final moves the row to FAILED.
func (r *NotificationRepository) MarkAttempt(ctx context.Context, id string, cause string, final bool) error {
	status := models.NotificationStatusPending
	if final {
		status = models.NotificationStatusFailed
	}
	const query = `UPDATE notifications SET status = $2, attempts = attempts + 1, last_error = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, cause); err != nil {
		return fmt.Errorf("mark notification attempt: %w", err)
	}
	return nil
}

// ListPending returns PENDING rows oldest first.
func (r *NotificationRepository) ListPending(ctx context.Context, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	const query = `SELECT ` + notificationColumns + ` FROM notifications WHERE status = $1 ORDER BY created_at ASC LIMIT $2`
	var items []models.Notification
	if err := r.db.SelectContext(ctx, &items, query, models.NotificationStatusPending, limit); err != nil {
		return nil, fmt.Errorf("list pending notifications: %w", err)
	}
	return items, nil
}
