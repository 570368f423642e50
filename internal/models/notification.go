package models

import "time"

// NotificationStatus tracks delivery of an outbox email.
type NotificationStatus string

const (
	NotificationStatusPending NotificationStatus = "PENDING"
	NotificationStatusSent    NotificationStatus = "SENT"
	NotificationStatusFailed  NotificationStatus = "FAILED"
)

// Notification is an outbox row consumed by the email worker.
type Notification struct {
	ID        string             `db:"id" json:"id"`
	Recipient string             `db:"recipient" json:"recipient"`
	Subject   string             `db:"subject" json:"subject"`
	TextBody  string             `db:"text_body" json:"text_body"`
	HTMLBody  string             `db:"html_body" json:"html_body"`
	Status    NotificationStatus `db:"status" json:"status"`
	Attempts  int                `db:"attempts" json:"attempts"`
	LastError *string            `db:"last_error" json:"last_error,omitempty"`
	CreatedAt time.Time          `db:"created_at" json:"created_at"`
	SentAt    *time.Time         `db:"sent_at" json:"sent_at,omitempty"`
}
