package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/uniportal-api/internal/dto"
	"github.com/noah-isme/uniportal-api/internal/models"
	appErrors "github.com/noah-isme/uniportal-api/pkg/errors"
	"github.com/noah-isme/uniportal-api/pkg/response"
)

type registrationService interface {
	RegisterForSemester(ctx context.Context, actor *models.JWTClaims, req dto.RegisterRequest) (*models.Registration, error)
	AddCourse(ctx context.Context, actor *models.JWTClaims, registrationID string, req dto.AddCourseRequest) (*models.CourseUpload, error)
	RemoveCourse(ctx context.Context, actor *models.JWTClaims, uploadID string) error
	Submit(ctx context.Context, actor *models.JWTClaims, registrationID string) (*models.Registration, error)
	Approve(ctx context.Context, actor *models.JWTClaims, registrationID string) (*dto.ApprovalResult, error)
	Reject(ctx context.Context, actor *models.JWTClaims, registrationID string, req dto.RejectRequest) (*models.Registration, error)
	Cancel(ctx context.Context, actor *models.JWTClaims, registrationID string) (*models.Registration, error)
	Detail(ctx context.Context, actor *models.JWTClaims, registrationID string) (*dto.RegistrationDetail, error)
	Mine(ctx context.Context, actor *models.JWTClaims, semesterID string) (*dto.RegistrationDetail, error)
	GetCard(ctx context.Context, actor *models.JWTClaims, userID, semesterID string) (*dto.CardView, error)
	ListPending(ctx context.Context) ([]models.RegistrationSummary, error)
	List(ctx context.Context, query dto.RegistrationQuery) ([]models.RegistrationSummary, *models.Pagination, error)
	Stats(ctx context.Context) (*dto.RegistrationStats, error)
}

type registrationExporter interface {
	WriteRegistrationsCSV(ctx context.Context, query dto.RegistrationQuery, w io.Writer) error
	RenderCard(view *dto.CardView) ([]byte, string, error)
	CreateCardLink(userID, semesterID string) (*dto.CardLinkResponse, error)
	ResolveCardLink(ctx context.Context, token string) ([]byte, string, error)
}

// RegistrationHandler exposes the semester registration workflow.
type RegistrationHandler struct {
	service  registrationService
	exporter registrationExporter
}

// NewRegistrationHandler constructs the handler.
func NewRegistrationHandler(svc registrationService, exporter registrationExporter) *RegistrationHandler {
	return &RegistrationHandler{service: svc, exporter: exporter}
}

// Register godoc
// @Summary Register for a semester
// @Description Opens a DRAFT registration. Registrars may pass userId to register on behalf of a student.
// @Tags Registrations
// @Accept json
// @Produce json
// @Param payload body dto.RegisterRequest true "Registration payload"
// @Success 201 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /registrations [post]
func (h *RegistrationHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload"))
		return
	}
	reg, err := h.service.RegisterForSemester(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, "Registered for semester", reg)
}

// AddCourse godoc
// @Summary Add a course to a draft registration
// @Tags Registrations
// @Accept json
// @Produce json
// @Param id path string true "Registration ID"
// @Param payload body dto.AddCourseRequest true "Course"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /registrations/{id}/courses [post]
func (h *RegistrationHandler) AddCourse(c *gin.Context) {
	var req dto.AddCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload"))
		return
	}
	upload, err := h.service.AddCourse(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, "Course added to registration", upload)
}

// RemoveCourse godoc
// @Summary Remove a course from a draft registration
// @Tags Registrations
// @Produce json
// @Param uploadId path string true "Course upload ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /registrations/courses/{uploadId} [delete]
func (h *RegistrationHandler) RemoveCourse(c *gin.Context) {
	if err := h.service.RemoveCourse(c.Request.Context(), claimsFromContext(c), c.Param("uploadId")); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "Course removed from registration", nil)
}

// Submit godoc
// @Summary Submit a registration for review
// @Tags Registrations
// @Produce json
// @Param id path string true "Registration ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /registrations/{id}/submit [post]
func (h *RegistrationHandler) Submit(c *gin.Context) {
	reg, err := h.service.Submit(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "Registration submitted for review", reg)
}

// Approve godoc
// @Summary Approve a registration and issue its card
// @Tags Registrations
// @Produce json
// @Param id path string true "Registration ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /registrations/{id}/approve [post]
func (h *RegistrationHandler) Approve(c *gin.Context) {
	result, err := h.service.Approve(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "Registration approved", result)
}

// Reject godoc
// @Summary Reject a registration
// @Tags Registrations
// @Accept json
// @Produce json
// @Param id path string true "Registration ID"
// @Param payload body dto.RejectRequest false "Rejection reason"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /registrations/{id}/reject [post]
func (h *RegistrationHandler) Reject(c *gin.Context) {
	var req dto.RejectRequest
	// The body is optional; an empty one falls back to the default reason.
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid rejection payload"))
		return
	}
	reg, err := h.service.Reject(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "Registration rejected", reg)
}

// Cancel godoc
// @Summary Cancel a draft or pending registration
// @Tags Registrations
// @Produce json
// @Param id path string true "Registration ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /registrations/{id}/cancel [post]
func (h *RegistrationHandler) Cancel(c *gin.Context) {
	reg, err := h.service.Cancel(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "Registration cancelled", reg)
}

// Detail godoc
// @Summary Get a registration with its courses
// @Tags Registrations
// @Produce json
// @Param id path string true "Registration ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /registrations/{id} [get]
func (h *RegistrationHandler) Detail(c *gin.Context) {
	detail, err := h.service.Detail(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Mine godoc
// @Summary Get the caller's registration for a semester
// @Tags Registrations
// @Produce json
// @Param semesterId query string true "Semester ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /registrations/me [get]
func (h *RegistrationHandler) Mine(c *gin.Context) {
	detail, err := h.service.Mine(c.Request.Context(), claimsFromContext(c), c.Query("semesterId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Card godoc
// @Summary Get a registration card
// @Description Returns the issued card, or the registration and courses as a preview before approval.
// @Tags Registration Cards
// @Produce json
// @Param semesterId query string true "Semester ID"
// @Param userId query string false "Student ID, defaults to the caller"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /registrations/card [get]
func (h *RegistrationHandler) Card(c *gin.Context) {
	view, err := h.service.GetCard(c.Request.Context(), claimsFromContext(c), c.Query("userId"), c.Query("semesterId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// CardPDF godoc
// @Summary Download a registration card as PDF
// @Tags Registration Cards
// @Produce application/pdf
// @Param semesterId query string true "Semester ID"
// @Param userId query string false "Student ID, defaults to the caller"
// @Success 200 {file} file
// @Failure 404 {object} response.Envelope
// @Router /registrations/card/pdf [get]
func (h *RegistrationHandler) CardPDF(c *gin.Context) {
	view, err := h.service.GetCard(c.Request.Context(), claimsFromContext(c), c.Query("userId"), c.Query("semesterId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	payload, filename, err := h.exporter.RenderCard(view)
	if err != nil {
		response.Error(c, err)
		return
	}
	writePDF(c, payload, filename)
}

// CardLink godoc
// @Summary Create a signed printable card link
// @Tags Registration Cards
// @Accept json
// @Produce json
// @Param payload body dto.CardLinkRequest true "Card scope"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /registrations/card/link [post]
func (h *RegistrationHandler) CardLink(c *gin.Context) {
	var req dto.CardLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "semesterId is required"))
		return
	}
	actor := claimsFromContext(c)
	view, err := h.service.GetCard(c.Request.Context(), actor, req.UserID, req.SemesterID)
	if err != nil {
		response.Error(c, err)
		return
	}
	userID := req.UserID
	if view.Registration != nil {
		userID = view.Registration.UserID
	} else if view.Card != nil {
		userID = view.Card.UserID
	}
	link, err := h.exporter.CreateCardLink(userID, req.SemesterID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, "Card link created", link)
}

// PublicCard godoc
// @Summary Download a registration card through a signed link
// @Tags Registration Cards
// @Produce application/pdf
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Router /cards/{token} [get]
func (h *RegistrationHandler) PublicCard(c *gin.Context) {
	payload, filename, err := h.exporter.ResolveCardLink(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	writePDF(c, payload, filename)
}

// Pending godoc
// @Summary List registrations awaiting review
// @Tags Registrations
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /registrations/pending [get]
func (h *RegistrationHandler) Pending(c *gin.Context) {
	items, err := h.service.ListPending(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// List godoc
// @Summary List registrations
// @Tags Registrations
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Param semesterId query string false "Semester ID"
// @Param userId query string false "Student ID"
// @Param page query int false "Page number"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /registrations [get]
func (h *RegistrationHandler) List(c *gin.Context) {
	query, err := parseRegistrationQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	items, pagination, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Stats godoc
// @Summary Registration statistics
// @Tags Registrations
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /registrations/stats [get]
func (h *RegistrationHandler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// Export godoc
// @Summary Export registrations as CSV
// @Tags Registrations
// @Produce text/csv
// @Param format query string false "Export format, only csv is supported"
// @Param status query string false "Comma separated statuses"
// @Param semesterId query string false "Semester ID"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /registrations/export [get]
func (h *RegistrationHandler) Export(c *gin.Context) {
	if format := strings.ToLower(c.DefaultQuery("format", "csv")); format != "csv" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format)))
		return
	}
	query, err := parseRegistrationQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var buf strings.Builder
	if err := h.exporter.WriteRegistrationsCSV(c.Request.Context(), query, &buf); err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="registrations.csv"`)
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "text/csv; charset=utf-8", []byte(buf.String()))
}

func parseRegistrationQuery(c *gin.Context) (dto.RegistrationQuery, error) {
	query := dto.RegistrationQuery{
		SemesterID: strings.TrimSpace(c.Query("semesterId")),
		UserID:     strings.TrimSpace(c.Query("userId")),
	}
	for _, raw := range c.QueryArray("status") {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				query.Status = append(query.Status, models.RegistrationStatus(strings.ToUpper(part)))
			}
		}
	}
	var err error
	if query.Page, err = intQuery(c, "page"); err != nil {
		return query, err
	}
	if query.PageSize, err = intQuery(c, "pageSize"); err != nil {
		return query, err
	}
	return query, nil
}

func intQuery(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s must be a positive integer", name))
	}
	return v, nil
}

func writePDF(c *gin.Context, payload []byte, filename string) {
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "application/pdf", payload)
}
