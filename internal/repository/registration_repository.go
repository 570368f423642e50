package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/uniportal-api/internal/models"
)

const registrationColumns = `r.id, r.user_id, r.semester_id, r.status, r.rejection_reason, r.created_at, r.updated_at`

const summaryColumns = registrationColumns + `,
       u.full_name AS student_name, u.email AS student_email, s.name AS semester_name,
       COALESCE(cu.course_count, 0) AS course_count, COALESCE(cu.total_credits, 0) AS total_credits`

const summaryJoins = ` FROM registrations r
  JOIN users u ON u.id = r.user_id
  JOIN semesters s ON s.id = r.semester_id
  LEFT JOIN (
    SELECT x.registration_id, COUNT(*) AS course_count, SUM(c.credit_hours) AS total_credits
    FROM course_uploads x JOIN courses c ON c.id = x.course_id
    GROUP BY x.registration_id
  ) cu ON cu.registration_id = r.id`

// RegistrationRepository persists registrations, their course uploads and issued cards.
type RegistrationRepository struct {
	db *sqlx.DB
}

// NewRegistrationRepository constructs the repository.
func NewRegistrationRepository(db *sqlx.DB) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

// Create inserts a registration. A second registration for the same user and
// semester yields ErrDuplicate.
func (r *RegistrationRepository) Create(ctx context.Context, reg *models.Registration) error {
	if reg.ID == "" {
		reg.ID = uuid.NewString()
	}
	if reg.Status == "" {
		reg.Status = models.RegistrationStatusDraft
	}
	now := time.Now().UTC()
	if reg.CreatedAt.IsZero() {
		reg.CreatedAt = now
	}
	reg.UpdatedAt = now

	const query = `INSERT INTO registrations (id, user_id, semester_id, status, rejection_reason, created_at, updated_at)
	VALUES (:id, :user_id, :semester_id, :status, :rejection_reason, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, reg); err != nil {
		if _, ok := uniqueConstraint(err); ok {
			return ErrDuplicate
		}
		return fmt.Errorf("create registration: %w", err)
	}
	return nil
}

// FindByID returns a registration by identifier.
func (r *RegistrationRepository) FindByID(ctx context.Context, id string) (*models.Registration, error) {
	query := `SELECT ` + registrationColumns + ` FROM registrations r WHERE r.id = $1`
	var reg models.Registration
	if err := r.db.GetContext(ctx, &reg, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find registration: %w", err)
	}
	return &reg, nil
}

// FindByUserSemester returns the registration of a user for a semester.
func (r *RegistrationRepository) FindByUserSemester(ctx context.Context, userID, semesterID string) (*models.Registration, error) {
	query := `SELECT ` + registrationColumns + ` FROM registrations r WHERE r.user_id = $1 AND r.semester_id = $2 LIMIT 1`
	var reg models.Registration
	if err := r.db.GetContext(ctx, &reg, query, userID, semesterID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find registration by user semester: %w", err)
	}
	return &reg, nil
}

// FindSummary returns a registration joined with student, semester and course totals.
func (r *RegistrationRepository) FindSummary(ctx context.Context, id string) (*models.RegistrationSummary, error) {
	query := `SELECT ` + summaryColumns + summaryJoins + ` WHERE r.id = $1`
	var summary models.RegistrationSummary
	if err := r.db.GetContext(ctx, &summary, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find registration summary: %w", err)
	}
	return &summary, nil
}

// ListCourses returns the course uploads of a registration with course details.
func (r *RegistrationRepository) ListCourses(ctx context.Context, registrationID string) ([]models.CourseUploadDetail, error) {
	const query = `SELECT cu.id, cu.registration_id, cu.course_id, cu.user_id, cu.semester_id, cu.status, cu.rejection_reason, cu.created_at,
       c.code AS course_code, c.title AS course_title, c.credit_hours
	FROM course_uploads cu JOIN courses c ON c.id = cu.course_id
	WHERE cu.registration_id = $1
	ORDER BY cu.created_at ASC, c.code ASC`
	var courses []models.CourseUploadDetail
	if err := r.db.SelectContext(ctx, &courses, query, registrationID); err != nil {
		return nil, fmt.Errorf("list registration courses: %w", err)
	}
	return courses, nil
}

// FindCourseUpload returns a single course upload.
func (r *RegistrationRepository) FindCourseUpload(ctx context.Context, id string) (*models.CourseUpload, error) {
	const query = `SELECT id, registration_id, course_id, user_id, semester_id, status, rejection_reason, created_at
	FROM course_uploads WHERE id = $1`
	var upload models.CourseUpload
	if err := r.db.GetContext(ctx, &upload, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find course upload: %w", err)
	}
	return &upload, nil
}

// HasCourse reports whether the course is already part of the registration.
func (r *RegistrationRepository) HasCourse(ctx context.Context, registrationID, courseID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM course_uploads WHERE registration_id = $1 AND course_id = $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, registrationID, courseID); err != nil {
		return false, fmt.Errorf("check registration course: %w", err)
	}
	return exists, nil
}

// CountCourses returns the number of course uploads under a registration.
func (r *RegistrationRepository) CountCourses(ctx context.Context, registrationID string) (int, error) {
	const query = `SELECT COUNT(*) FROM course_uploads WHERE registration_id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, registrationID); err != nil {
		return 0, fmt.Errorf("count registration courses: %w", err)
	}
	return count, nil
}

// SumCredits returns the credit hours already requested in a registration.
func (r *RegistrationRepository) SumCredits(ctx context.Context, registrationID string) (int, error) {
	const query = `SELECT COALESCE(SUM(c.credit_hours), 0) FROM course_uploads cu JOIN courses c ON c.id = cu.course_id WHERE cu.registration_id = $1`
	var total int
	if err := r.db.GetContext(ctx, &total, query, registrationID); err != nil {
		return 0, fmt.Errorf("sum registration credits: %w", err)
	}
	return total, nil
}

// AddCourse inserts a course upload. Adding a course twice yields ErrDuplicate.
func (r *RegistrationRepository) AddCourse(ctx context.Context, upload *models.CourseUpload) error {
	if upload.ID == "" {
		upload.ID = uuid.NewString()
	}
	if upload.Status == "" {
		upload.Status = models.CourseUploadStatusPending
	}
	if upload.CreatedAt.IsZero() {
		upload.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO course_uploads (id, registration_id, course_id, user_id, semester_id, status, rejection_reason, created_at)
	VALUES (:id, :registration_id, :course_id, :user_id, :semester_id, :status, :rejection_reason, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, upload); err != nil {
		if _, ok := uniqueConstraint(err); ok {
			return ErrDuplicate
		}
		return fmt.Errorf("add registration course: %w", err)
	}
	return nil
}

// DeleteDraftCourse removes a course upload while its registration is still DRAFT.
// sql.ErrNoRows is returned when the row is gone, ErrStatusConflict when the
// registration left DRAFT.
func (r *RegistrationRepository) DeleteDraftCourse(ctx context.Context, uploadID string) error {
	const query = `DELETE FROM course_uploads cu USING registrations r
	WHERE cu.id = $1 AND r.id = cu.registration_id AND r.status = $2`
	result, err := r.db.ExecContext(ctx, query, uploadID, models.RegistrationStatusDraft)
	if err != nil {
		return fmt.Errorf("delete course upload: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check course upload delete rows: %w", err)
	}
	if rows > 0 {
		return nil
	}
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM course_uploads WHERE id = $1)`, uploadID); err != nil {
		return fmt.Errorf("check course upload exists: %w", err)
	}
	if !exists {
		return sql.ErrNoRows
	}
	return ErrStatusConflict
}

// Submit moves a DRAFT registration to PENDING.
func (r *RegistrationRepository) Submit(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE registrations SET status = $2, updated_at = $3 WHERE id = $1 AND status = $4`
	result, err := r.db.ExecContext(ctx, query, id, models.RegistrationStatusPending, at, models.RegistrationStatusDraft)
	if err != nil {
		return fmt.Errorf("submit registration: %w", err)
	}
	return expectOneRow(result, "submit registration")
}

// TransitionParams describes a guarded terminal transition.
type TransitionParams struct {
	RegistrationID string
	From           []models.RegistrationStatus
	At             time.Time
	Reason         *string
}

// Approve marks the registration APPROVED, approves its pending course uploads
// and issues the card in a single transaction.
func (r *RegistrationRepository) Approve(ctx context.Context, params TransitionParams, card *models.RegistrationCard) error {
	if card.ID == "" {
		card.ID = uuid.NewString()
	}
	if card.IssuedDate.IsZero() {
		card.IssuedDate = params.At
	}

	return r.withTx(ctx, "approve registration", func(tx *sqlx.Tx) error {
		if err := updateStatusTx(ctx, tx, params, models.RegistrationStatusApproved); err != nil {
			return err
		}
		const uploads = `UPDATE course_uploads SET status = $2 WHERE registration_id = $1 AND status = $3`
		if _, err := tx.ExecContext(ctx, uploads, params.RegistrationID, models.CourseUploadStatusApproved, models.CourseUploadStatusPending); err != nil {
			return fmt.Errorf("approve course uploads: %w", err)
		}
		const insertCard = `INSERT INTO registration_cards (id, user_id, semester_id, card_number, issued_date)
		VALUES (:id, :user_id, :semester_id, :card_number, :issued_date)`
		if _, err := tx.NamedExecContext(ctx, insertCard, card); err != nil {
			if _, ok := uniqueConstraint(err); ok {
				return ErrDuplicate
			}
			return fmt.Errorf("insert registration card: %w", err)
		}
		return nil
	})
}

// Reject marks the registration REJECTED with a reason and rejects its pending course uploads.
func (r *RegistrationRepository) Reject(ctx context.Context, params TransitionParams) error {
	return r.withTx(ctx, "reject registration", func(tx *sqlx.Tx) error {
		if err := updateStatusTx(ctx, tx, params, models.RegistrationStatusRejected); err != nil {
			return err
		}
		const uploads = `UPDATE course_uploads SET status = $2, rejection_reason = $3 WHERE registration_id = $1 AND status = $4`
		if _, err := tx.ExecContext(ctx, uploads, params.RegistrationID, models.CourseUploadStatusRejected, params.Reason, models.CourseUploadStatusPending); err != nil {
			return fmt.Errorf("reject course uploads: %w", err)
		}
		return nil
	})
}

// Cancel marks the registration CANCELLED and cancels every course upload under it.
func (r *RegistrationRepository) Cancel(ctx context.Context, params TransitionParams) error {
	return r.withTx(ctx, "cancel registration", func(tx *sqlx.Tx) error {
		if err := updateStatusTx(ctx, tx, params, models.RegistrationStatusCancelled); err != nil {
			return err
		}
		const uploads = `UPDATE course_uploads SET status = $2 WHERE registration_id = $1`
		if _, err := tx.ExecContext(ctx, uploads, params.RegistrationID, models.CourseUploadStatusCancelled); err != nil {
			return fmt.Errorf("cancel course uploads: %w", err)
		}
		return nil
	})
}

// List returns registration summaries matching the filter with the total count.
func (r *RegistrationRepository) List(ctx context.Context, filter models.RegistrationFilter) ([]models.RegistrationSummary, int, error) {
	conditions := make([]string, 0, 3)
	args := make([]interface{}, 0, 4)

	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("r.status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.SemesterID != "" {
		args = append(args, filter.SemesterID)
		conditions = append(conditions, fmt.Sprintf("r.semester_id = $%d", len(args)))
	}
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		conditions = append(conditions, fmt.Sprintf("r.user_id = $%d", len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	page, pageSize := normalizePage(filter.Page, filter.PageSize)
	listQuery := fmt.Sprintf("SELECT %s%s%s ORDER BY r.created_at DESC LIMIT %d OFFSET %d",
		summaryColumns, summaryJoins, where, pageSize, (page-1)*pageSize)

	var items []models.RegistrationSummary
	if err := r.db.SelectContext(ctx, &items, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list registrations: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM registrations r"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count registrations: %w", err)
	}
	return items, total, nil
}

// ListPending returns every PENDING registration, oldest first.
func (r *RegistrationRepository) ListPending(ctx context.Context) ([]models.RegistrationSummary, error) {
	query := `SELECT ` + summaryColumns + summaryJoins + ` WHERE r.status = $1 ORDER BY r.updated_at ASC`
	var items []models.RegistrationSummary
	if err := r.db.SelectContext(ctx, &items, query, models.RegistrationStatusPending); err != nil {
		return nil, fmt.Errorf("list pending registrations: %w", err)
	}
	return items, nil
}

// CountByStatus groups registrations by status.
func (r *RegistrationRepository) CountByStatus(ctx context.Context) ([]models.StatusCount, error) {
	const query = `SELECT status, COUNT(*) AS count FROM registrations GROUP BY status ORDER BY status`
	var counts []models.StatusCount
	if err := r.db.SelectContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("count registrations by status: %w", err)
	}
	return counts, nil
}

// CountBySemester groups registrations by semester.
func (r *RegistrationRepository) CountBySemester(ctx context.Context) ([]models.SemesterCount, error) {
	const query = `SELECT r.semester_id, s.name AS semester_name, COUNT(*) AS count
	FROM registrations r JOIN semesters s ON s.id = r.semester_id
	GROUP BY r.semester_id, s.name ORDER BY s.name`
	var counts []models.SemesterCount
	if err := r.db.SelectContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("count registrations by semester: %w", err)
	}
	return counts, nil
}

// Recent returns the most recently created registrations.
func (r *RegistrationRepository) Recent(ctx context.Context, limit int) ([]models.RegistrationSummary, error) {
	if limit <= 0 {
		limit = 5
	}
	query := `SELECT ` + summaryColumns + summaryJoins + ` ORDER BY r.created_at DESC LIMIT $1`
	var items []models.RegistrationSummary
	if err := r.db.SelectContext(ctx, &items, query, limit); err != nil {
		return nil, fmt.Errorf("recent registrations: %w", err)
	}
	return items, nil
}

// FindCard returns the card issued to a user for a semester.
func (r *RegistrationRepository) FindCard(ctx context.Context, userID, semesterID string) (*models.RegistrationCard, error) {
	const query = `SELECT id, user_id, semester_id, card_number, issued_date FROM registration_cards WHERE user_id = $1 AND semester_id = $2 LIMIT 1`
	var card models.RegistrationCard
	if err := r.db.GetContext(ctx, &card, query, userID, semesterID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find registration card: %w", err)
	}
	return &card, nil
}

func (r *RegistrationRepository) withTx(ctx context.Context, op string, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s: %w", op, err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback() //nolint:errcheck
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", op, err)
	}
	return nil
}

func updateStatusTx(ctx context.Context, tx *sqlx.Tx, params TransitionParams, to models.RegistrationStatus) error {
	args := []interface{}{params.RegistrationID, to, params.At, params.Reason}
	placeholders := make([]string, len(params.From))
	for i, status := range params.From {
		args = append(args, status)
		placeholders[i] = fmt.Sprintf("$%d", len(args))
	}
	query := `UPDATE registrations SET status = $2, updated_at = $3, rejection_reason = COALESCE($4, rejection_reason) WHERE id = $1`
	if len(placeholders) > 0 {
		query += fmt.Sprintf(" AND status IN (%s)", strings.Join(placeholders, ","))
	}
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update registration status: %w", err)
	}
	return expectOneRow(result, "update registration status")
}

func expectOneRow(result sql.Result, op string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check %s rows: %w", op, err)
	}
	if rows == 0 {
		return ErrStatusConflict
	}
	return nil
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}
