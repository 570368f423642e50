package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uniportal-api/internal/models"
)

var registrationCols = []string{"id", "user_id", "semester_id", "status", "rejection_reason", "created_at", "updated_at"}

var summaryCols = append(append([]string{}, registrationCols...), "student_name", "student_email", "semester_name", "course_count", "total_credits")

func TestRegistrationRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO registrations")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	reg := &models.Registration{UserID: "user-1", SemesterID: "sem-1"}
	require.NoError(t, repo.Create(context.Background(), reg))
	assert.NotEmpty(t, reg.ID)
	assert.Equal(t, models.RegistrationStatusDraft, reg.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryCreateDuplicate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO registrations")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "registrations_user_semester_key"})

	err := repo.Create(context.Background(), &models.Registration{UserID: "user-1", SemesterID: "sem-1"})
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryFindByIDNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM registrations r WHERE r.id = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryAddCourseDuplicate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO course_uploads")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "course_uploads_registration_course_key"})

	err := repo.AddCourse(context.Background(), &models.CourseUpload{RegistrationID: "reg-1", CourseID: "c-1"})
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryDeleteDraftCourse(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM course_uploads cu USING registrations r")).
		WithArgs("up-1", models.RegistrationStatusDraft).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.DeleteDraftCourse(context.Background(), "up-1"))

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM course_uploads cu USING registrations r")).
		WithArgs("up-2", models.RegistrationStatusDraft).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM course_uploads WHERE id = $1)")).
		WithArgs("up-2").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	assert.ErrorIs(t, repo.DeleteDraftCourse(context.Background(), "up-2"), ErrStatusConflict)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM course_uploads cu USING registrations r")).
		WithArgs("up-3", models.RegistrationStatusDraft).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM course_uploads WHERE id = $1)")).
		WithArgs("up-3").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	assert.ErrorIs(t, repo.DeleteDraftCourse(context.Background(), "up-3"), sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositorySubmitRequiresDraft(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE registrations SET status = $2, updated_at = $3 WHERE id = $1 AND status = $4")).
		WithArgs("reg-1", models.RegistrationStatusPending, sqlmock.AnyArg(), models.RegistrationStatusDraft).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Submit(context.Background(), "reg-1", time.Now())
	assert.ErrorIs(t, err, ErrStatusConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryApproveTransaction(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE registrations SET status = $2")).
		WithArgs("reg-1", models.RegistrationStatusApproved, now, nil, models.RegistrationStatusDraft, models.RegistrationStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE course_uploads SET status = $2 WHERE registration_id = $1 AND status = $3")).
		WithArgs("reg-1", models.CourseUploadStatusApproved, models.CourseUploadStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO registration_cards")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	card := &models.RegistrationCard{UserID: "user-1", SemesterID: "sem-1", CardNumber: "REG-user-sem--1234"}
	err := repo.Approve(context.Background(), TransitionParams{
		RegistrationID: "reg-1",
		From:           []models.RegistrationStatus{models.RegistrationStatusDraft, models.RegistrationStatusPending},
		At:             now,
	}, card)
	require.NoError(t, err)
	assert.NotEmpty(t, card.ID)
	assert.Equal(t, now, card.IssuedDate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryApproveRollsBackOnStaleStatus(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE registrations SET status = $2")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Approve(context.Background(), TransitionParams{
		RegistrationID: "reg-1",
		From:           []models.RegistrationStatus{models.RegistrationStatusPending},
		At:             time.Now(),
	}, &models.RegistrationCard{UserID: "u", SemesterID: "s", CardNumber: "REG-x"})
	assert.ErrorIs(t, err, ErrStatusConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryApproveDuplicateCard(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE registrations SET status = $2")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE course_uploads")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO registration_cards")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "registration_cards_card_number_key"})
	mock.ExpectRollback()

	err := repo.Approve(context.Background(), TransitionParams{RegistrationID: "reg-1", At: time.Now()},
		&models.RegistrationCard{UserID: "u", SemesterID: "s", CardNumber: "REG-x"})
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryRejectStoresReason(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)
	now := time.Now().UTC()
	reason := "Missing prerequisite"

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE registrations SET status = $2")).
		WithArgs("reg-1", models.RegistrationStatusRejected, now, &reason, models.RegistrationStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE course_uploads SET status = $2, rejection_reason = $3")).
		WithArgs("reg-1", models.CourseUploadStatusRejected, &reason, models.CourseUploadStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.Reject(context.Background(), TransitionParams{
		RegistrationID: "reg-1",
		From:           []models.RegistrationStatus{models.RegistrationStatusPending},
		At:             now,
		Reason:         &reason,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryCancelAllUploads(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE registrations SET status = $2")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE course_uploads SET status = $2 WHERE registration_id = $1")).
		WithArgs("reg-1", models.CourseUploadStatusCancelled).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	err := repo.Cancel(context.Background(), TransitionParams{
		RegistrationID: "reg-1",
		From:           []models.RegistrationStatus{models.RegistrationStatusDraft, models.RegistrationStatusPending},
		At:             time.Now(),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryListFiltersAndCounts(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)
	now := time.Now()

	rows := sqlmock.NewRows(summaryCols).
		AddRow("reg-1", "user-1", "sem-1", "PENDING", nil, now, now, "Ana", "ana@uni.test", "Fall 2024", 2, 7)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT r.id, r.user_id")).
		WithArgs(models.RegistrationStatusPending, "sem-1").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM registrations r WHERE r.status IN ($1) AND r.semester_id = $2")).
		WithArgs(models.RegistrationStatusPending, "sem-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(21))

	items, total, err := repo.List(context.Background(), models.RegistrationFilter{
		Status:     []models.RegistrationStatus{models.RegistrationStatusPending},
		SemesterID: "sem-1",
		Page:       2,
		PageSize:   10,
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 21, total)
	assert.Equal(t, "Fall 2024", items[0].SemesterName)
	assert.Equal(t, 7, items[0].TotalCredits)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryAggregates(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT status, COUNT(*) AS count FROM registrations GROUP BY status")).
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).AddRow("DRAFT", 3).AddRow("PENDING", 2))
	byStatus, err := repo.CountByStatus(context.Background())
	require.NoError(t, err)
	require.Len(t, byStatus, 2)
	assert.Equal(t, models.RegistrationStatusDraft, byStatus[0].Status)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT r.semester_id, s.name AS semester_name, COUNT(*) AS count")).
		WillReturnRows(sqlmock.NewRows([]string{"semester_id", "semester_name", "count"}).AddRow("sem-1", "Fall 2024", 5))
	bySemester, err := repo.CountBySemester(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, bySemester[0].Count)

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY r.created_at DESC LIMIT $1")).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows(summaryCols))
	recent, err := repo.Recent(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, recent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositorySumCredits(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(SUM(c.credit_hours), 0)")).
		WithArgs("reg-1").
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(18))

	total, err := repo.SumCredits(context.Background(), "reg-1")
	require.NoError(t, err)
	assert.Equal(t, 18, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}
