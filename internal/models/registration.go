package models

import "time"

// RegistrationStatus is the lifecycle state of a semester registration.
type RegistrationStatus string

const (
	RegistrationStatusDraft     RegistrationStatus = "DRAFT"
	RegistrationStatusPending   RegistrationStatus = "PENDING"
	RegistrationStatusApproved  RegistrationStatus = "APPROVED"
	RegistrationStatusRejected  RegistrationStatus = "REJECTED"
	RegistrationStatusCancelled RegistrationStatus = "CANCELLED"
)

// RegistrationStatuses lists every registration state in lifecycle order.
var RegistrationStatuses = []RegistrationStatus{
	RegistrationStatusDraft,
	RegistrationStatusPending,
	RegistrationStatusApproved,
	RegistrationStatusRejected,
	RegistrationStatusCancelled,
}

// Valid reports whether s is a known registration status.
func (s RegistrationStatus) Valid() bool {
	switch s {
	case RegistrationStatusDraft, RegistrationStatusPending, RegistrationStatusApproved,
		RegistrationStatusRejected, RegistrationStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible from s.
func (s RegistrationStatus) Terminal() bool {
	return s == RegistrationStatusApproved || s == RegistrationStatusRejected || s == RegistrationStatusCancelled
}

// CourseUploadStatus is the state of a single course request inside a registration.
type CourseUploadStatus string

const (
	CourseUploadStatusPending   CourseUploadStatus = "PENDING"
	CourseUploadStatusApproved  CourseUploadStatus = "APPROVED"
	CourseUploadStatusRejected  CourseUploadStatus = "REJECTED"
	CourseUploadStatusCancelled CourseUploadStatus = "CANCELLED"
)

// Valid reports whether s is a known course upload status.
func (s CourseUploadStatus) Valid() bool {
	switch s {
	case CourseUploadStatusPending, CourseUploadStatusApproved, CourseUploadStatusRejected, CourseUploadStatusCancelled:
		return true
	}
	return false
}

// Registration is a student's declared intent to enroll in a semester.
type Registration struct {
	ID              string             `db:"id" json:"id"`
	UserID          string             `db:"user_id" json:"user_id"`
	SemesterID      string             `db:"semester_id" json:"semester_id"`
	Status          RegistrationStatus `db:"status" json:"status"`
	RejectionReason *string            `db:"rejection_reason" json:"rejection_reason,omitempty"`
	CreatedAt       time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time          `db:"updated_at" json:"updated_at"`
}

// CourseUpload is one course enrollment request nested under a registration.
type CourseUpload struct {
	ID              string             `db:"id" json:"id"`
	RegistrationID  string             `db:"registration_id" json:"registration_id"`
	CourseID        string             `db:"course_id" json:"course_id"`
	UserID          string             `db:"user_id" json:"user_id"`
	SemesterID      string             `db:"semester_id" json:"semester_id"`
	Status          CourseUploadStatus `db:"status" json:"status"`
	RejectionReason *string            `db:"rejection_reason" json:"rejection_reason,omitempty"`
	CreatedAt       time.Time          `db:"created_at" json:"created_at"`
}

// CourseUploadDetail joins a course upload with its course reference data.
type CourseUploadDetail struct {
	CourseUpload
	CourseCode  string `db:"course_code" json:"course_code"`
	CourseTitle string `db:"course_title" json:"course_title"`
	CreditHours int    `db:"credit_hours" json:"credit_hours"`
}

// RegistrationCard is the proof-of-approval artifact issued once per approval.
type RegistrationCard struct {
	ID         string    `db:"id" json:"id"`
	UserID     string    `db:"user_id" json:"user_id"`
	SemesterID string    `db:"semester_id" json:"semester_id"`
	CardNumber string    `db:"card_number" json:"card_number"`
	IssuedDate time.Time `db:"issued_date" json:"issued_date"`
}

// RegistrationSummary is a list row joined with student and semester names.
type RegistrationSummary struct {
	Registration
	StudentName  string `db:"student_name" json:"student_name"`
	StudentEmail string `db:"student_email" json:"student_email"`
	SemesterName string `db:"semester_name" json:"semester_name"`
	CourseCount  int    `db:"course_count" json:"course_count"`
	TotalCredits int    `db:"total_credits" json:"total_credits"`
}

// RegistrationFilter constrains listing queries.
type RegistrationFilter struct {
	Status     []RegistrationStatus
	SemesterID string
	UserID     string
	Page       int
	PageSize   int
}

// StatusCount is a grouped count of registrations by status.
type StatusCount struct {
	Status RegistrationStatus `db:"status" json:"status"`
	Count  int                `db:"count" json:"count"`
}

// SemesterCount is a grouped count of registrations by semester.
type SemesterCount struct {
	SemesterID   string `db:"semester_id" json:"semester_id"`
	SemesterName string `db:"semester_name" json:"semester_name"`
	Count        int    `db:"count" json:"count"`
}
