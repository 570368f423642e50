package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uniportal-api/internal/models"
)

func TestNotificationRepositoryLifecycle(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO notifications")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	n := &models.Notification{Recipient: "s@uni.test", Subject: "Approved", TextBody: "ok"}
	require.NoError(t, repo.Create(context.Background(), n))
	assert.Equal(t, models.NotificationStatusPending, n.Status)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE notifications SET status = $2, attempts = attempts + 1, last_error = $3")).
		WithArgs(n.ID, models.NotificationStatusFailed, "smtp down").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.MarkAttempt(context.Background(), n.ID, "smtp down", true))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE notifications SET status = $2, attempts = attempts + 1, last_error = NULL")).
		WithArgs(n.ID, models.NotificationStatusSent, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.MarkSent(context.Background(), n.ID, time.Now()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepositoryListPending(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	rows := sqlmock.NewRows([]string{"id", "recipient", "subject", "text_body", "html_body", "status", "attempts", "last_error", "created_at", "sent_at"}).
		AddRow("n1", "s@uni.test", "subj", "body", "", "PENDING", 1, "timeout", time.Now(), nil)
	mock.ExpectQuery(regexp.QuoteMeta("FROM notifications WHERE status = $1")).
		WithArgs(models.NotificationStatusPending, 100).
		WillReturnRows(rows)

	items, err := repo.ListPending(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.NotNil(t, items[0].LastError)
	assert.Equal(t, "timeout", *items[0].LastError)
	assert.NoError(t, mock.ExpectationsWereMet())
}
