package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/uniportal-api/internal/models"
)

// CatalogRepository reads semester, course and payment reference data.
type CatalogRepository struct {
	db *sqlx.DB
}

// NewCatalogRepository constructs the repository.
func NewCatalogRepository(db *sqlx.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// FindSemester returns a semester by id.
func (r *CatalogRepository) FindSemester(ctx context.Context, id string) (*models.Semester, error) {
	const query = `SELECT id, name, start_date, end_date, is_active, created_at FROM semesters WHERE id = $1`
	var semester models.Semester
	if err := r.db.GetContext(ctx, &semester, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find semester: %w", err)
	}
	return &semester, nil
}

// FindCourse returns a course by id.
func (r *CatalogRepository) FindCourse(ctx context.Context, id string) (*models.Course, error) {
	const query = `SELECT id, code, title, credit_hours, created_at FROM courses WHERE id = $1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find course: %w", err)
	}
	return &course, nil
}

// LatestPayment returns the most recent payment for a user and semester.
func (r *CatalogRepository) LatestPayment(ctx context.Context, userID, semesterID string) (*models.Payment, error) {
	const query = `SELECT id, user_id, semester_id, amount, status, reference, paid_at, created_at
	FROM payments WHERE user_id = $1 AND semester_id = $2
	ORDER BY created_at DESC LIMIT 1`
	var payment models.Payment
	if err := r.db.GetContext(ctx, &payment, query, userID, semesterID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find latest payment: %w", err)
	}
	return &payment, nil
}
