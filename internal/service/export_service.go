package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/uniportal-api/internal/dto"
	"github.com/noah-isme/uniportal-api/internal/models"
	appErrors "github.com/noah-isme/uniportal-api/pkg/errors"
	"github.com/noah-isme/uniportal-api/pkg/export"
	"github.com/noah-isme/uniportal-api/pkg/signedlink"
)

const exportPageSize = 100

type registrationReader interface {
	List(ctx context.Context, query dto.RegistrationQuery) ([]models.RegistrationSummary, *models.Pagination, error)
	CardView(ctx context.Context, userID, semesterID string) (*dto.CardView, error)
}

type cardRenderer interface {
	Render(doc export.CardDocument) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix       string
	InstitutionName string
}

// ExportService renders registration exports: CSV listings, card PDFs and
// signed printable card links.
type ExportService struct {
	registrations registrationReader
	renderer      cardRenderer
	signer        *signedlink.Signer
	logger        *zap.Logger
	cfg           ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(registrations registrationReader, signer *signedlink.Signer, cfg ExportConfig, logger *zap.Logger, renderer cardRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if renderer == nil {
		renderer = export.NewCardRenderer()
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
	return &ExportService{
		registrations: registrations,
		renderer:      renderer,
		signer:        signer,
		logger:        logger,
		cfg:           cfg,
	}
}

// WriteRegistrationsCSV streams every registration matching query to w.
func (s *ExportService) WriteRegistrationsCSV(ctx context.Context, query dto.RegistrationQuery, w io.Writer) error {
	dataset := export.Dataset{
		Headers: []string{"Registration ID", "Student", "Email", "Semester", "Status", "Courses", "Credits", "Rejection Reason", "Created At", "Updated At"},
	}
	query.PageSize = exportPageSize
	for page := 1; ; page++ {
		query.Page = page
		items, pagination, err := s.registrations.List(ctx, query)
		if err != nil {
			return err
		}
		for _, item := range items {
			dataset.Rows = append(dataset.Rows, map[string]string{
				"Registration ID":  item.ID,
				"Student":          item.StudentName,
				"Email":            item.StudentEmail,
				"Semester":         item.SemesterName,
				"Status":           string(item.Status),
				"Courses":          fmt.Sprintf("%d", item.CourseCount),
				"Credits":          fmt.Sprintf("%d", item.TotalCredits),
				"Rejection Reason": deref(item.RejectionReason),
				"Created At":       item.CreatedAt.UTC().Format(time.RFC3339),
				"Updated At":       item.UpdatedAt.UTC().Format(time.RFC3339),
			})
		}
		if pagination == nil || page >= pagination.TotalPages {
			break
		}
	}
	if err := export.WriteCSV(w, dataset); err != nil {
		return appErrors.Internal(err, "failed to write registrations export")
	}
	return nil
}

// RenderCard renders a card view to PDF and returns the payload with a download filename.
func (s *ExportService) RenderCard(view *dto.CardView) ([]byte, string, error) {
	if view == nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "registration card not found")
	}
	doc := export.CardDocument{Institution: s.cfg.InstitutionName}
	if view.Registration != nil {
		doc.StudentName = view.Registration.StudentName
		doc.StudentEmail = view.Registration.StudentEmail
		doc.SemesterName = view.Registration.SemesterName
		doc.Status = string(view.Registration.Status)
	}
	if view.Semester != nil && doc.SemesterName == "" {
		doc.SemesterName = view.Semester.Name
	}
	if view.Card != nil {
		doc.CardNumber = view.Card.CardNumber
		issued := view.Card.IssuedDate
		doc.IssuedDate = &issued
	}
	if view.Payment != nil {
		doc.PaymentStatus = view.Payment.Status
	}
	for _, course := range view.Courses {
		doc.Courses = append(doc.Courses, export.CardCourse{
			Code:        course.CourseCode,
			Title:       course.CourseTitle,
			CreditHours: course.CreditHours,
			Status:      string(course.Status),
		})
	}

	payload, err := s.renderer.Render(doc)
	if err != nil {
		s.logger.Error("render registration card", zap.Error(err))
		return nil, "", appErrors.Internal(err, "failed to render registration card")
	}
	name := "registration-card-preview.pdf"
	if doc.CardNumber != "" {
		name = sanitizeFilename(doc.CardNumber) + ".pdf"
	}
	return payload, name, nil
}

// CreateCardLink signs a printable card link for a user and semester.
func (s *ExportService) CreateCardLink(userID, semesterID string) (*dto.CardLinkResponse, error) {
	token, expiresAt, err := s.signer.Generate(userID, semesterID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to sign card link")
	}
	return &dto.CardLinkResponse{
		URL:       fmt.Sprintf("%s/cards/%s", strings.TrimRight(s.cfg.APIPrefix, "/"), token),
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}

// ResolveCardLink validates a signed token and renders the card it grants.
func (s *ExportService) ResolveCardLink(ctx context.Context, token string) ([]byte, string, error) {
	userID, semesterID, _, err := s.signer.Parse(token)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "card link is invalid or expired")
	}
	view, err := s.registrations.CardView(ctx, userID, semesterID)
	if err != nil {
		return nil, "", err
	}
	return s.RenderCard(view)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func deref(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
