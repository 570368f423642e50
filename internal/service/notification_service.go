package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"html"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/uniportal-api/internal/models"
	"github.com/noah-isme/uniportal-api/pkg/config"
	"github.com/noah-isme/uniportal-api/pkg/jobs"
	"github.com/noah-isme/uniportal-api/pkg/mailer"
)

const markSentAttempts = 3

// Notifier receives workflow events after they are committed. Implementations
// must not block the caller on delivery and never report failures back.
// Delivery through the outbox is at-least-once: a message sent but not yet
// marked SENT is sent again by RecoverPending.
type Notifier interface {
	RegistrationSubmitted(ctx context.Context, reg *models.RegistrationSummary, submittedAt time.Time)
	RegistrationApproved(ctx context.Context, reg *models.RegistrationSummary, card *models.RegistrationCard)
	RegistrationRejected(ctx context.Context, reg *models.RegistrationSummary, reason string)
	RegistrationCancelled(ctx context.Context, reg *models.RegistrationSummary)
}

// NopNotifier discards every event.
type NopNotifier struct{}

// RegistrationSubmitted implements Notifier.
func (NopNotifier) RegistrationSubmitted(context.Context, *models.RegistrationSummary, time.Time) {}

// RegistrationApproved implements Notifier.
func (NopNotifier) RegistrationApproved(context.Context, *models.RegistrationSummary, *models.RegistrationCard) {
}

// RegistrationRejected implements Notifier.
func (NopNotifier) RegistrationRejected(context.Context, *models.RegistrationSummary, string) {}

// RegistrationCancelled implements Notifier.
func (NopNotifier) RegistrationCancelled(context.Context, *models.RegistrationSummary) {}

type notificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
	GetByID(ctx context.Context, id string) (*models.Notification, error)
	MarkSent(ctx context.Context, id string, at time.Time) error
	MarkAttempt(ctx context.Context, id string, cause string, final bool) error
	ListPending(ctx context.Context, limit int) ([]models.Notification, error)
}

type recipientDirectory interface {
	ListActiveByRole(ctx context.Context, role models.UserRole) ([]models.User, error)
}

// NotificationService writes workflow emails to the outbox and delivers them
// from a background worker queue.
type NotificationService struct {
	store   notificationStore
	users   recipientDirectory
	sender  mailer.Sender
	queue   *jobs.Queue[string]
	metrics *MetricsService
	logger  *zap.Logger
	now     func() time.Time
}

// NewNotificationService constructs the service and its worker queue.
func NewNotificationService(store notificationStore, users recipientDirectory, sender mailer.Sender, cfg config.NotificationsConfig, metrics *MetricsService, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &NotificationService{
		store:   store,
		users:   users,
		sender:  sender,
		metrics: metrics,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
	svc.queue = jobs.New("notifications", svc.Handle, jobs.Config{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return svc
}

// Start launches the delivery workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop waits for the delivery workers to exit.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// RecoverPending re-enqueues outbox rows left PENDING by a previous run.
func (s *NotificationService) RecoverPending(ctx context.Context) (int, error) {
	pending, err := s.store.ListPending(ctx, 0)
	if err != nil {
		return 0, err
	}
	enqueued := 0
	for _, n := range pending {
		if err := s.queue.Enqueue(jobs.Job[string]{Key: n.ID, Payload: n.ID}); err != nil {
			s.logger.Warn("requeue notification failed", zap.String("notification_id", n.ID), zap.Error(err))
			continue
		}
		enqueued++
	}
	return enqueued, nil
}

// RegistrationSubmitted tells every active registrar a registration awaits review.
func (s *NotificationService) RegistrationSubmitted(ctx context.Context, reg *models.RegistrationSummary, submittedAt time.Time) {
	registrars, err := s.users.ListActiveByRole(ctx, models.RoleRegistrar)
	if err != nil {
		s.logger.Error("load registrars for notification", zap.String("registration_id", reg.ID), zap.Error(err))
		return
	}
	subject := fmt.Sprintf("Registration submitted: %s (%s)", reg.StudentName, reg.SemesterName)
	text := fmt.Sprintf("%s submitted a registration for %s with %d course(s) on %s.\nPlease review it in the registrar portal.",
		reg.StudentName, reg.SemesterName, reg.CourseCount, submittedAt.Format(time.RFC1123))
	body := fmt.Sprintf("<p><strong>%s</strong> submitted a registration for <strong>%s</strong> with %d course(s) on %s.</p><p>Please review it in the registrar portal.</p>",
		html.EscapeString(reg.StudentName), html.EscapeString(reg.SemesterName), reg.CourseCount, submittedAt.Format(time.RFC1123))
	for _, registrar := range registrars {
		s.dispatch(ctx, mailer.Message{To: registrar.Email, Subject: subject, Text: text, HTML: body})
	}
}

// RegistrationApproved sends the student the issued card number.
func (s *NotificationService) RegistrationApproved(ctx context.Context, reg *models.RegistrationSummary, card *models.RegistrationCard) {
	s.dispatch(ctx, mailer.Message{
		To:      reg.StudentEmail,
		Subject: fmt.Sprintf("Registration approved for %s", reg.SemesterName),
		Text: fmt.Sprintf("Hello %s,\n\nYour registration for %s has been approved.\nRegistration card number: %s",
			reg.StudentName, reg.SemesterName, card.CardNumber),
		HTML: fmt.Sprintf("<p>Hello %s,</p><p>Your registration for <strong>%s</strong> has been approved.</p><p>Registration card number: <strong>%s</strong></p>",
			html.EscapeString(reg.StudentName), html.EscapeString(reg.SemesterName), html.EscapeString(card.CardNumber)),
	})
}

// RegistrationRejected sends the student the rejection reason.
func (s *NotificationService) RegistrationRejected(ctx context.Context, reg *models.RegistrationSummary, reason string) {
	s.dispatch(ctx, mailer.Message{
		To:      reg.StudentEmail,
		Subject: fmt.Sprintf("Registration rejected for %s", reg.SemesterName),
		Text: fmt.Sprintf("Hello %s,\n\nYour registration for %s has been rejected.\nReason: %s",
			reg.StudentName, reg.SemesterName, reason),
		HTML: fmt.Sprintf("<p>Hello %s,</p><p>Your registration for <strong>%s</strong> has been rejected.</p><p>Reason: %s</p>",
			html.EscapeString(reg.StudentName), html.EscapeString(reg.SemesterName), html.EscapeString(reason)),
	})
}

// RegistrationCancelled tells the student the registration was cancelled.
func (s *NotificationService) RegistrationCancelled(ctx context.Context, reg *models.RegistrationSummary) {
	s.dispatch(ctx, mailer.Message{
		To:      reg.StudentEmail,
		Subject: fmt.Sprintf("Registration cancelled for %s", reg.SemesterName),
		Text:    fmt.Sprintf("Hello %s,\n\nYour registration for %s has been cancelled.", reg.StudentName, reg.SemesterName),
		HTML: fmt.Sprintf("<p>Hello %s,</p><p>Your registration for <strong>%s</strong> has been cancelled.</p>",
			html.EscapeString(reg.StudentName), html.EscapeString(reg.SemesterName)),
	})
}

// Handle delivers one outbox row. It is the worker queue handler.
func (s *NotificationService) Handle(ctx context.Context, job jobs.Job[string]) error {
	id := job.Payload
	if id == "" {
		return nil
	}
	n, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("notification row missing", zap.String("notification_id", id))
			return nil
		}
		return err
	}
	if n.Status != models.NotificationStatusPending {
		return nil
	}

	sendErr := s.sender.Send(ctx, mailer.Message{To: n.Recipient, Subject: n.Subject, Text: n.TextBody, HTML: n.HTMLBody})
	if sendErr == nil {
		s.markSent(ctx, n.ID)
		s.metrics.RecordNotification("sent")
		return nil
	}

	final := job.Final
	if err := s.store.MarkAttempt(ctx, n.ID, sendErr.Error(), final); err != nil {
		s.logger.Warn("mark notification attempt failed", zap.String("notification_id", n.ID), zap.Error(err))
	}
	if final {
		s.metrics.RecordNotification("failed")
		s.logger.Error("notification delivery failed", zap.String("notification_id", n.ID), zap.String("recipient", n.Recipient), zap.Error(sendErr))
		return nil
	}
	s.metrics.RecordNotification("retry")
	return sendErr
}

// markSent retries the status update so a delivered row is not replayed.
func (s *NotificationService) markSent(ctx context.Context, id string) {
	var err error
	for attempt := 0; attempt < markSentAttempts; attempt++ {
		if err = s.store.MarkSent(ctx, id, s.now()); err == nil {
			return
		}
	}
	s.logger.Warn("mark notification sent failed, row stays pending", zap.String("notification_id", id), zap.Error(err))
}

func (s *NotificationService) dispatch(ctx context.Context, msg mailer.Message) {
	if msg.To == "" {
		return
	}
	n := &models.Notification{
		Recipient: msg.To,
		Subject:   msg.Subject,
		TextBody:  msg.Text,
		HTMLBody:  msg.HTML,
	}
	if err := s.store.Create(ctx, n); err != nil {
		s.logger.Error("write notification outbox failed", zap.String("recipient", msg.To), zap.Error(err))
		return
	}
	if err := s.queue.Enqueue(jobs.Job[string]{Key: n.ID, Payload: n.ID}); err != nil {
		s.logger.Warn("enqueue notification failed, left pending", zap.String("notification_id", n.ID), zap.Error(err))
	}
}
