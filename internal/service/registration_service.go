package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/uniportal-api/internal/dto"
	"github.com/noah-isme/uniportal-api/internal/models"
	"github.com/noah-isme/uniportal-api/internal/repository"
	"github.com/noah-isme/uniportal-api/pkg/config"
	appErrors "github.com/noah-isme/uniportal-api/pkg/errors"
)

const (
	registrationCachePattern = "reg:*"
	registrationStatsKey     = "reg:stats"
	registrationPendingKey   = "reg:pending"

	defaultRejectReason = "Registration rejected by registrar"
	maxCardAttempts     = 3
)

// reviewableStatuses are the states from which a registration may be approved,
// rejected or cancelled.
var reviewableStatuses = []models.RegistrationStatus{
	models.RegistrationStatusDraft,
	models.RegistrationStatusPending,
}

type registrationStore interface {
	Create(ctx context.Context, reg *models.Registration) error
	FindByID(ctx context.Context, id string) (*models.Registration, error)
	FindByUserSemester(ctx context.Context, userID, semesterID string) (*models.Registration, error)
	FindSummary(ctx context.Context, id string) (*models.RegistrationSummary, error)
	ListCourses(ctx context.Context, registrationID string) ([]models.CourseUploadDetail, error)
	FindCourseUpload(ctx context.Context, id string) (*models.CourseUpload, error)
	HasCourse(ctx context.Context, registrationID, courseID string) (bool, error)
	CountCourses(ctx context.Context, registrationID string) (int, error)
	SumCredits(ctx context.Context, registrationID string) (int, error)
	AddCourse(ctx context.Context, upload *models.CourseUpload) error
	DeleteDraftCourse(ctx context.Context, uploadID string) error
	Submit(ctx context.Context, id string, at time.Time) error
	Approve(ctx context.Context, params repository.TransitionParams, card *models.RegistrationCard) error
	Reject(ctx context.Context, params repository.TransitionParams) error
	Cancel(ctx context.Context, params repository.TransitionParams) error
	List(ctx context.Context, filter models.RegistrationFilter) ([]models.RegistrationSummary, int, error)
	ListPending(ctx context.Context) ([]models.RegistrationSummary, error)
	CountByStatus(ctx context.Context) ([]models.StatusCount, error)
	CountBySemester(ctx context.Context) ([]models.SemesterCount, error)
	Recent(ctx context.Context, limit int) ([]models.RegistrationSummary, error)
	FindCard(ctx context.Context, userID, semesterID string) (*models.RegistrationCard, error)
}

type catalogReader interface {
	FindSemester(ctx context.Context, id string) (*models.Semester, error)
	FindCourse(ctx context.Context, id string) (*models.Course, error)
	LatestPayment(ctx context.Context, userID, semesterID string) (*models.Payment, error)
}

// RegistrationService runs the semester registration workflow.
type RegistrationService struct {
	store     registrationStore
	catalog   catalogReader
	notifier  Notifier
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       config.RegistrationConfig
	now       func() time.Time
}

// RegistrationServiceOption configures the service.
type RegistrationServiceOption func(*RegistrationService)

// WithRegistrationNotifier sets the notifier used after committed transitions.
func WithRegistrationNotifier(notifier Notifier) RegistrationServiceOption {
	return func(s *RegistrationService) {
		if notifier != nil {
			s.notifier = notifier
		}
	}
}

// WithRegistrationCache enables caching of pending and stats projections.
func WithRegistrationCache(cache *CacheService) RegistrationServiceOption {
	return func(s *RegistrationService) {
		s.cache = cache
	}
}

// WithRegistrationMetrics records transition counters.
func WithRegistrationMetrics(metrics *MetricsService) RegistrationServiceOption {
	return func(s *RegistrationService) {
		s.metrics = metrics
	}
}

// WithRegistrationClock overrides the time source used for transitions and card numbers.
func WithRegistrationClock(now func() time.Time) RegistrationServiceOption {
	return func(s *RegistrationService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewRegistrationService constructs the workflow service.
func NewRegistrationService(store registrationStore, catalog catalogReader, cfg config.RegistrationConfig, logger *zap.Logger, opts ...RegistrationServiceOption) *RegistrationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxCreditHours <= 0 {
		cfg.MaxCreditHours = 24
	}
	if cfg.RecentLimit <= 0 {
		cfg.RecentLimit = 5
	}
	if strings.TrimSpace(cfg.DefaultRejectNote) == "" {
		cfg.DefaultRejectNote = defaultRejectReason
	}
	svc := &RegistrationService{
		store:     store,
		catalog:   catalog,
		notifier:  NopNotifier{},
		validator: validator.New(),
		logger:    logger,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// RegisterForSemester opens a DRAFT registration for the user and semester.
func (s *RegistrationService) RegisterForSemester(ctx context.Context, actor *models.JWTClaims, req dto.RegisterRequest) (*models.Registration, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "semesterId is required")
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		userID = actor.UserID
	}
	if userID != actor.UserID && !isRegistrationStaff(actor) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "cannot register on behalf of another user")
	}

	if _, err := s.catalog.FindSemester(ctx, req.SemesterID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "semester not found")
		}
		return nil, s.internal(err, "failed to load semester")
	}

	existing, err := s.store.FindByUserSemester(ctx, userID, req.SemesterID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, s.internal(err, "failed to check existing registration")
	}
	if existing != nil {
		return nil, appErrors.ErrAlreadyRegistered
	}

	reg := &models.Registration{
		UserID:     userID,
		SemesterID: req.SemesterID,
		Status:     models.RegistrationStatusDraft,
	}
	if err := s.store.Create(ctx, reg); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.ErrAlreadyRegistered
		}
		return nil, s.internal(err, "failed to create registration")
	}
	s.metrics.RecordTransition(string(models.RegistrationStatusDraft), nil)
	s.invalidate(ctx)
	return reg, nil
}

// AddCourse adds a course to a DRAFT registration, enforcing uniqueness and the credit cap.
func (s *RegistrationService) AddCourse(ctx context.Context, actor *models.JWTClaims, registrationID string, req dto.AddCourseRequest) (*models.CourseUpload, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "courseId is required")
	}
	reg, err := s.loadRegistration(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	if err := authorizeOwner(actor, reg.UserID); err != nil {
		return nil, err
	}
	if reg.Status != models.RegistrationStatusDraft {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "courses can only be added to a draft registration")
	}

	course, err := s.catalog.FindCourse(ctx, req.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, s.internal(err, "failed to load course")
	}

	exists, err := s.store.HasCourse(ctx, reg.ID, course.ID)
	if err != nil {
		return nil, s.internal(err, "failed to check registration courses")
	}
	if exists {
		return nil, appErrors.ErrDuplicateCourse
	}

	if s.cfg.EnforceCreditLimit {
		current, err := s.store.SumCredits(ctx, reg.ID)
		if err != nil {
			return nil, s.internal(err, "failed to sum registration credits")
		}
		if current+course.CreditHours > s.cfg.MaxCreditHours {
			return nil, appErrors.Clone(appErrors.ErrCreditLimitExceeded,
				fmt.Sprintf("adding %s (%d credits) exceeds the %d credit hour limit", course.Code, course.CreditHours, s.cfg.MaxCreditHours))
		}
	}

	upload := &models.CourseUpload{
		RegistrationID: reg.ID,
		CourseID:       course.ID,
		UserID:         reg.UserID,
		SemesterID:     reg.SemesterID,
		Status:         models.CourseUploadStatusPending,
	}
	if err := s.store.AddCourse(ctx, upload); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.ErrDuplicateCourse
		}
		return nil, s.internal(err, "failed to add course")
	}
	s.invalidate(ctx)
	return upload, nil
}

// RemoveCourse deletes a course upload while its registration is still DRAFT.
func (s *RegistrationService) RemoveCourse(ctx context.Context, actor *models.JWTClaims, uploadID string) error {
	upload, err := s.store.FindCourseUpload(ctx, uploadID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "course upload not found")
		}
		return s.internal(err, "failed to load course upload")
	}
	reg, err := s.loadRegistration(ctx, upload.RegistrationID)
	if err != nil {
		return err
	}
	if err := authorizeOwner(actor, reg.UserID); err != nil {
		return err
	}
	if reg.Status != models.RegistrationStatusDraft {
		return appErrors.Clone(appErrors.ErrInvalidState, "cannot remove from a submitted registration")
	}
	if err := s.store.DeleteDraftCourse(ctx, upload.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "course upload not found")
		}
		if errors.Is(err, repository.ErrStatusConflict) {
			return appErrors.Clone(appErrors.ErrInvalidState, "cannot remove from a submitted registration")
		}
		return s.internal(err, "failed to remove course")
	}
	s.invalidate(ctx)
	return nil
}

// Submit moves a DRAFT registration with at least one course to PENDING and
// notifies registrars.
func (s *RegistrationService) Submit(ctx context.Context, actor *models.JWTClaims, registrationID string) (*models.Registration, error) {
	reg, err := s.loadRegistration(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	if err := authorizeOwner(actor, reg.UserID); err != nil {
		return nil, err
	}
	if err := s.requireCourses(ctx, reg.ID); err != nil {
		return nil, err
	}
	if reg.Status != models.RegistrationStatusDraft {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("cannot submit a %s registration", strings.ToLower(string(reg.Status))))
	}

	now := s.now()
	err = s.store.Submit(ctx, reg.ID, now)
	s.metrics.RecordTransition(string(models.RegistrationStatusPending), err)
	if err != nil {
		return nil, s.transitionError(err, "failed to submit registration")
	}
	reg.Status = models.RegistrationStatusPending
	reg.UpdatedAt = now

	s.afterTransition(ctx, reg.ID, func(summary *models.RegistrationSummary) {
		s.notifier.RegistrationSubmitted(ctx, summary, now)
	})
	return reg, nil
}

// Approve approves the registration, approves its pending courses and issues
// the registration card atomically, then notifies the student.
func (s *RegistrationService) Approve(ctx context.Context, actor *models.JWTClaims, registrationID string) (*dto.ApprovalResult, error) {
	if err := authorizeStaff(actor, "only registrars can approve registrations"); err != nil {
		return nil, err
	}
	reg, err := s.loadRegistration(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	if err := s.requireCourses(ctx, reg.ID); err != nil {
		return nil, err
	}
	if reg.Status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("registration is already %s", strings.ToLower(string(reg.Status))))
	}

	now := s.now()
	params := repository.TransitionParams{RegistrationID: reg.ID, From: reviewableStatuses, At: now}
	card := &models.RegistrationCard{UserID: reg.UserID, SemesterID: reg.SemesterID, IssuedDate: now}
	for attempt := 0; attempt < maxCardAttempts; attempt++ {
		card.CardNumber = CardNumber(reg.UserID, reg.SemesterID, now.Add(time.Duration(attempt)*time.Millisecond))
		err = s.store.Approve(ctx, params, card)
		if !errors.Is(err, repository.ErrDuplicate) {
			break
		}
		s.logger.Warn("card number collision", zap.String("registration_id", reg.ID), zap.String("card_number", card.CardNumber))
	}
	s.metrics.RecordTransition(string(models.RegistrationStatusApproved), err)
	if err != nil {
		return nil, s.transitionError(err, "failed to approve registration")
	}
	reg.Status = models.RegistrationStatusApproved
	reg.UpdatedAt = now

	s.logger.Info("registration approved",
		zap.String("registration_id", reg.ID),
		zap.String("actor_id", actor.UserID),
		zap.String("card_number", card.CardNumber))
	s.afterTransition(ctx, reg.ID, func(summary *models.RegistrationSummary) {
		s.notifier.RegistrationApproved(ctx, summary, card)
	})
	return &dto.ApprovalResult{Registration: reg, Card: card}, nil
}

// Reject rejects the registration and its pending courses with a reason.
// An empty reason falls back to the configured default.
func (s *RegistrationService) Reject(ctx context.Context, actor *models.JWTClaims, registrationID string, req dto.RejectRequest) (*models.Registration, error) {
	if err := authorizeStaff(actor, "only registrars can reject registrations"); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "reason must be at most 500 characters")
	}
	reg, err := s.loadRegistration(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	if reg.Status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("registration is already %s", strings.ToLower(string(reg.Status))))
	}

	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = s.cfg.DefaultRejectNote
	}
	now := s.now()
	err = s.store.Reject(ctx, repository.TransitionParams{RegistrationID: reg.ID, From: reviewableStatuses, At: now, Reason: &reason})
	s.metrics.RecordTransition(string(models.RegistrationStatusRejected), err)
	if err != nil {
		return nil, s.transitionError(err, "failed to reject registration")
	}
	reg.Status = models.RegistrationStatusRejected
	reg.RejectionReason = &reason
	reg.UpdatedAt = now

	s.afterTransition(ctx, reg.ID, func(summary *models.RegistrationSummary) {
		s.notifier.RegistrationRejected(ctx, summary, reason)
	})
	return reg, nil
}

// Cancel cancels a DRAFT or PENDING registration and every course under it.
// Staff may cancel any registration, students only their own.
func (s *RegistrationService) Cancel(ctx context.Context, actor *models.JWTClaims, registrationID string) (*models.Registration, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	reg, err := s.loadRegistration(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	if err := authorizeOwner(actor, reg.UserID); err != nil {
		return nil, err
	}
	if reg.Status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "cannot cancel an approved/rejected registration")
	}

	now := s.now()
	err = s.store.Cancel(ctx, repository.TransitionParams{RegistrationID: reg.ID, From: reviewableStatuses, At: now})
	s.metrics.RecordTransition(string(models.RegistrationStatusCancelled), err)
	if err != nil {
		return nil, s.transitionError(err, "failed to cancel registration")
	}
	reg.Status = models.RegistrationStatusCancelled
	reg.UpdatedAt = now

	s.afterTransition(ctx, reg.ID, func(summary *models.RegistrationSummary) {
		s.notifier.RegistrationCancelled(ctx, summary)
	})
	return reg, nil
}

// Detail returns a registration with its courses.
func (s *RegistrationService) Detail(ctx context.Context, actor *models.JWTClaims, registrationID string) (*dto.RegistrationDetail, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	summary, err := s.store.FindSummary(ctx, registrationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "registration not found")
		}
		return nil, s.internal(err, "failed to load registration")
	}
	if !canRead(actor, summary.UserID) {
		return nil, appErrors.ErrForbidden
	}
	courses, err := s.store.ListCourses(ctx, summary.ID)
	if err != nil {
		return nil, s.internal(err, "failed to load registration courses")
	}
	if courses == nil {
		courses = []models.CourseUploadDetail{}
	}
	return &dto.RegistrationDetail{RegistrationSummary: *summary, Courses: courses}, nil
}

// Mine returns the caller's registration for a semester.
func (s *RegistrationService) Mine(ctx context.Context, actor *models.JWTClaims, semesterID string) (*dto.RegistrationDetail, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if strings.TrimSpace(semesterID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "semesterId is required")
	}
	reg, err := s.store.FindByUserSemester(ctx, actor.UserID, semesterID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "registration not found")
		}
		return nil, s.internal(err, "failed to load registration")
	}
	return s.Detail(ctx, actor, reg.ID)
}

// GetCard returns the registration card for a user and semester. Before
// approval it returns the registration and courses so the card can be previewed.
func (s *RegistrationService) GetCard(ctx context.Context, actor *models.JWTClaims, userID, semesterID string) (*dto.CardView, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if strings.TrimSpace(userID) == "" {
		userID = actor.UserID
	}
	if strings.TrimSpace(semesterID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "semesterId is required")
	}
	if !canRead(actor, userID) {
		return nil, appErrors.ErrForbidden
	}
	return s.CardView(ctx, userID, semesterID)
}

// CardView assembles the card payload without authorization checks.
func (s *RegistrationService) CardView(ctx context.Context, userID, semesterID string) (*dto.CardView, error) {
	card, err := s.store.FindCard(ctx, userID, semesterID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, s.internal(err, "failed to load registration card")
	}
	reg, err := s.store.FindByUserSemester(ctx, userID, semesterID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, s.internal(err, "failed to load registration")
	}
	if card == nil && reg == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "registration card not found")
	}

	view := &dto.CardView{Card: card, Courses: []models.CourseUploadDetail{}}
	if reg != nil {
		summary, err := s.store.FindSummary(ctx, reg.ID)
		if err != nil {
			return nil, s.internal(err, "failed to load registration")
		}
		courses, err := s.store.ListCourses(ctx, reg.ID)
		if err != nil {
			return nil, s.internal(err, "failed to load registration courses")
		}
		view.Registration = summary
		if courses != nil {
			view.Courses = courses
		}
		for _, course := range view.Courses {
			view.TotalCredits += course.CreditHours
		}
	}

	semester, err := s.catalog.FindSemester(ctx, semesterID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, s.internal(err, "failed to load semester")
	}
	view.Semester = semester

	payment, err := s.catalog.LatestPayment(ctx, userID, semesterID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, s.internal(err, "failed to load payment")
	}
	view.Payment = payment
	return view, nil
}

// ListPending returns every registration awaiting review.
func (s *RegistrationService) ListPending(ctx context.Context) ([]models.RegistrationSummary, error) {
	return remember(ctx, s.cache, registrationPendingKey, func(ctx context.Context) ([]models.RegistrationSummary, error) {
		items, err := s.store.ListPending(ctx)
		if err != nil {
			return nil, s.internal(err, "failed to list pending registrations")
		}
		if items == nil {
			items = []models.RegistrationSummary{}
		}
		return items, nil
	})
}

// List returns registrations filtered by status, semester and user with pagination.
func (s *RegistrationService) List(ctx context.Context, query dto.RegistrationQuery) ([]models.RegistrationSummary, *models.Pagination, error) {
	for _, status := range query.Status {
		if !status.Valid() {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", status))
		}
	}
	page, pageSize := query.Page, query.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	items, total, err := s.store.List(ctx, models.RegistrationFilter{
		Status:     query.Status,
		SemesterID: query.SemesterID,
		UserID:     query.UserID,
		Page:       page,
		PageSize:   pageSize,
	})
	if err != nil {
		return nil, nil, s.internal(err, "failed to list registrations")
	}
	if items == nil {
		items = []models.RegistrationSummary{}
	}
	return items, models.NewPagination(page, pageSize, total), nil
}

// Stats returns registration counts grouped by status and semester plus the most recent registrations.
func (s *RegistrationService) Stats(ctx context.Context) (*dto.RegistrationStats, error) {
	return remember(ctx, s.cache, registrationStatsKey, s.loadStats)
}

func (s *RegistrationService) loadStats(ctx context.Context) (*dto.RegistrationStats, error) {
	byStatus, err := s.store.CountByStatus(ctx)
	if err != nil {
		return nil, s.internal(err, "failed to count registrations by status")
	}
	bySemester, err := s.store.CountBySemester(ctx)
	if err != nil {
		return nil, s.internal(err, "failed to count registrations by semester")
	}
	recent, err := s.store.Recent(ctx, s.cfg.RecentLimit)
	if err != nil {
		return nil, s.internal(err, "failed to load recent registrations")
	}

	stats := &dto.RegistrationStats{
		ByStatus:   fillStatusCounts(byStatus),
		BySemester: bySemester,
		Recent:     recent,
	}
	if stats.BySemester == nil {
		stats.BySemester = []models.SemesterCount{}
	}
	if stats.Recent == nil {
		stats.Recent = []models.RegistrationSummary{}
	}
	for _, c := range stats.ByStatus {
		stats.Total += c.Count
	}
	return stats, nil
}

func (s *RegistrationService) loadRegistration(ctx context.Context, id string) (*models.Registration, error) {
	reg, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "registration not found")
		}
		return nil, s.internal(err, "failed to load registration")
	}
	return reg, nil
}

func (s *RegistrationService) requireCourses(ctx context.Context, registrationID string) error {
	count, err := s.store.CountCourses(ctx, registrationID)
	if err != nil {
		return s.internal(err, "failed to count registration courses")
	}
	if count == 0 {
		return appErrors.ErrEmptyRegistration
	}
	return nil
}

// afterTransition runs once state is committed. Failures here are logged only.
func (s *RegistrationService) afterTransition(ctx context.Context, registrationID string, notify func(*models.RegistrationSummary)) {
	s.invalidate(ctx)
	summary, err := s.store.FindSummary(ctx, registrationID)
	if err != nil {
		s.logger.Warn("load registration for notification", zap.String("registration_id", registrationID), zap.Error(err))
		return
	}
	notify(summary)
}

func (s *RegistrationService) invalidate(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, registrationCachePattern); err != nil {
		s.logger.Warn("invalidate registration cache", zap.Error(err))
	}
}

func (s *RegistrationService) transitionError(err error, message string) error {
	switch {
	case errors.Is(err, repository.ErrStatusConflict):
		return appErrors.Clone(appErrors.ErrInvalidState, "registration status changed, reload and retry")
	case errors.Is(err, repository.ErrDuplicate):
		return appErrors.Clone(appErrors.ErrConflict, "could not issue a unique card number")
	default:
		return s.internal(err, message)
	}
}

func (s *RegistrationService) internal(err error, message string) error {
	s.logger.Error(message, zap.Error(err))
	return appErrors.Internal(err, message)
}

func fillStatusCounts(counts []models.StatusCount) []models.StatusCount {
	byStatus := make(map[models.RegistrationStatus]int, len(counts))
	for _, c := range counts {
		byStatus[c.Status] = c.Count
	}
	out := make([]models.StatusCount, 0, len(models.RegistrationStatuses))
	for _, status := range models.RegistrationStatuses {
		out = append(out, models.StatusCount{Status: status, Count: byStatus[status]})
	}
	return out
}

func isRegistrationStaff(actor *models.JWTClaims) bool {
	return actor != nil && (actor.Role == models.RoleAdmin || actor.Role == models.RoleRegistrar)
}

func authorizeStaff(actor *models.JWTClaims, message string) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if !isRegistrationStaff(actor) {
		return appErrors.Clone(appErrors.ErrForbidden, message)
	}
	return nil
}

func authorizeOwner(actor *models.JWTClaims, ownerID string) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if isRegistrationStaff(actor) || actor.UserID == ownerID {
		return nil
	}
	return appErrors.Clone(appErrors.ErrForbidden, "registration belongs to another user")
}

func canRead(actor *models.JWTClaims, ownerID string) bool {
	return isRegistrationStaff(actor) || actor.Role == models.RoleFaculty || actor.UserID == ownerID
}
