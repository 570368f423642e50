package models

import "time"

// Semester is read-only reference data joined by registrations.
type Semester struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	StartDate time.Time `db:"start_date" json:"start_date"`
	EndDate   time.Time `db:"end_date" json:"end_date"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Course is read-only reference data; CreditHours feeds the registration credit cap.
type Course struct {
	ID          string    `db:"id" json:"id"`
	Code        string    `db:"code" json:"code"`
	Title       string    `db:"title" json:"title"`
	CreditHours int       `db:"credit_hours" json:"credit_hours"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Payment records a tuition payment for a (user, semester) pair.
type Payment struct {
	ID         string     `db:"id" json:"id"`
	UserID     string     `db:"user_id" json:"user_id"`
	SemesterID string     `db:"semester_id" json:"semester_id"`
	Amount     float64    `db:"amount" json:"amount"`
	Status     string     `db:"status" json:"status"`
	Reference  *string    `db:"reference" json:"reference,omitempty"`
	PaidAt     *time.Time `db:"paid_at" json:"paid_at,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}
