package dto

import (
	"time"

	"github.com/noah-isme/uniportal-api/internal/models"
)

// RegisterRequest opens a DRAFT registration. Staff may register on behalf of a student.
type RegisterRequest struct {
	SemesterID string `json:"semesterId" validate:"required"`
	UserID     string `json:"userId,omitempty"`
}

// AddCourseRequest adds a course to a DRAFT registration.
type AddCourseRequest struct {
	CourseID string `json:"courseId" validate:"required"`
}

// RejectRequest carries an optional rejection reason.
type RejectRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// CardLinkRequest asks for a printable card link.
type CardLinkRequest struct {
	SemesterID string `json:"semesterId" validate:"required"`
	UserID     string `json:"userId,omitempty"`
}

// RegistrationQuery mirrors supported listing filters.
type RegistrationQuery struct {
	Status     []models.RegistrationStatus
	SemesterID string
	UserID     string
	Page       int
	PageSize   int
}

// RegistrationDetail is a registration with its courses.
type RegistrationDetail struct {
	models.RegistrationSummary
	Courses []models.CourseUploadDetail `json:"courses"`
}

// ApprovalResult is returned after a registration is approved.
type ApprovalResult struct {
	Registration *models.Registration     `json:"registration"`
	Card         *models.RegistrationCard `json:"card"`
}

// CardView is the registration card payload. Card is nil before approval so the
// registration can still be previewed.
type CardView struct {
	Card         *models.RegistrationCard    `json:"card,omitempty"`
	Registration *models.RegistrationSummary `json:"registration,omitempty"`
	Semester     *models.Semester            `json:"semester,omitempty"`
	Courses      []models.CourseUploadDetail `json:"courses"`
	Payment      *models.Payment             `json:"payment,omitempty"`
	TotalCredits int                         `json:"totalCredits"`
}

// CardLinkResponse describes a signed printable card link.
type CardLinkResponse struct {
	URL       string    `json:"url"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// RegistrationStats aggregates registration counts for dashboards.
type RegistrationStats struct {
	Total      int                          `json:"total"`
	ByStatus   []models.StatusCount         `json:"byStatus"`
	BySemester []models.SemesterCount       `json:"bySemester"`
	Recent     []models.RegistrationSummary `json:"recent"`
}
