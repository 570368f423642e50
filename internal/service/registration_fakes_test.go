package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/noah-isme/uniportal-api/internal/models"
	"github.com/noah-isme/uniportal-api/internal/repository"
)

// memoryRegistrationStore mimics the conditional-update semantics of the
// SQL repository so workflow rules can be exercised without a database.
type memoryRegistrationStore struct {
	mu         sync.Mutex
	seq        int
	regs       map[string]*models.Registration
	uploads    map[string]*models.CourseUpload
	uploadIDs  []string
	cards      map[string]*models.RegistrationCard
	catalog    *memoryCatalog
	collisions int
	failNext   error
	// vanishOnDelete removes the upload just before DeleteDraftCourse runs,
	// as a concurrent removal would.
	vanishOnDelete bool
}

func newMemoryRegistrationStore(catalog *memoryCatalog) *memoryRegistrationStore {
	return &memoryRegistrationStore{
		regs:    map[string]*models.Registration{},
		uploads: map[string]*models.CourseUpload{},
		cards:   map[string]*models.RegistrationCard{},
		catalog: catalog,
	}
}

func (m *memoryRegistrationStore) nextID(kind string) string {
	m.seq++
	return fmt.Sprintf("%s-%04d", kind, m.seq)
}

func cardKey(userID, semesterID string) string { return userID + "|" + semesterID }

func (m *memoryRegistrationStore) Create(_ context.Context, reg *models.Registration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.regs {
		if existing.UserID == reg.UserID && existing.SemesterID == reg.SemesterID {
			return repository.ErrDuplicate
		}
	}
	reg.ID = m.nextID("reg")
	reg.CreatedAt = time.Now().UTC()
	reg.UpdatedAt = reg.CreatedAt
	cp := *reg
	m.regs[reg.ID] = &cp
	return nil
}

func (m *memoryRegistrationStore) FindByID(_ context.Context, id string) (*models.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reg, ok := m.regs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *reg
	return &cp, nil
}

func (m *memoryRegistrationStore) FindByUserSemester(_ context.Context, userID, semesterID string) (*models.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, reg := range m.regs {
		if reg.UserID == userID && reg.SemesterID == semesterID {
			cp := *reg
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memoryRegistrationStore) FindSummary(_ context.Context, id string) (*models.RegistrationSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reg, ok := m.regs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return m.summaryLocked(reg), nil
}

func (m *memoryRegistrationStore) summaryLocked(reg *models.Registration) *models.RegistrationSummary {
	summary := &models.RegistrationSummary{Registration: *reg}
	if user, ok := m.catalog.users[reg.UserID]; ok {
		summary.StudentName = user.FullName
		summary.StudentEmail = user.Email
	}
	if sem, ok := m.catalog.semesters[reg.SemesterID]; ok {
		summary.SemesterName = sem.Name
	}
	for _, id := range m.uploadIDs {
		upload := m.uploads[id]
		if upload == nil || upload.RegistrationID != reg.ID {
			continue
		}
		summary.CourseCount++
		summary.TotalCredits += m.catalog.courses[upload.CourseID].CreditHours
	}
	return summary
}

func (m *memoryRegistrationStore) ListCourses(_ context.Context, registrationID string) ([]models.CourseUploadDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.CourseUploadDetail
	for _, id := range m.uploadIDs {
		upload := m.uploads[id]
		if upload == nil || upload.RegistrationID != registrationID {
			continue
		}
		course := m.catalog.courses[upload.CourseID]
		out = append(out, models.CourseUploadDetail{
			CourseUpload: *upload,
			CourseCode:   course.Code,
			CourseTitle:  course.Title,
			CreditHours:  course.CreditHours,
		})
	}
	return out, nil
}

func (m *memoryRegistrationStore) FindCourseUpload(_ context.Context, id string) (*models.CourseUpload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	upload, ok := m.uploads[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *upload
	return &cp, nil
}

func (m *memoryRegistrationStore) HasCourse(_ context.Context, registrationID, courseID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, upload := range m.uploads {
		if upload.RegistrationID == registrationID && upload.CourseID == courseID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryRegistrationStore) CountCourses(_ context.Context, registrationID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, upload := range m.uploads {
		if upload.RegistrationID == registrationID {
			count++
		}
	}
	return count, nil
}

func (m *memoryRegistrationStore) SumCredits(_ context.Context, registrationID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, upload := range m.uploads {
		if upload.RegistrationID == registrationID {
			total += m.catalog.courses[upload.CourseID].CreditHours
		}
	}
	return total, nil
}

func (m *memoryRegistrationStore) AddCourse(_ context.Context, upload *models.CourseUpload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.uploads {
		if existing.RegistrationID == upload.RegistrationID && existing.CourseID == upload.CourseID {
			return repository.ErrDuplicate
		}
	}
	upload.ID = m.nextID("upload")
	upload.CreatedAt = time.Now().UTC()
	cp := *upload
	m.uploads[upload.ID] = &cp
	m.uploadIDs = append(m.uploadIDs, upload.ID)
	return nil
}

func (m *memoryRegistrationStore) DeleteDraftCourse(_ context.Context, uploadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.vanishOnDelete {
		m.dropUploadLocked(uploadID)
	}
	upload, ok := m.uploads[uploadID]
	if !ok {
		return sql.ErrNoRows
	}
	if reg := m.regs[upload.RegistrationID]; reg == nil || reg.Status != models.RegistrationStatusDraft {
		return repository.ErrStatusConflict
	}
	m.dropUploadLocked(uploadID)
	return nil
}

func (m *memoryRegistrationStore) dropUploadLocked(uploadID string) {
	delete(m.uploads, uploadID)
	for i, id := range m.uploadIDs {
		if id == uploadID {
			m.uploadIDs = append(m.uploadIDs[:i], m.uploadIDs[i+1:]...)
			break
		}
	}
}

func (m *memoryRegistrationStore) Submit(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	reg, ok := m.regs[id]
	if !ok || reg.Status != models.RegistrationStatusDraft {
		return repository.ErrStatusConflict
	}
	reg.Status = models.RegistrationStatusPending
	reg.UpdatedAt = at
	return nil
}

func (m *memoryRegistrationStore) transitionLocked(params repository.TransitionParams) (*models.Registration, error) {
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return nil, err
	}
	reg, ok := m.regs[params.RegistrationID]
	if !ok {
		return nil, repository.ErrStatusConflict
	}
	allowed := false
	for _, from := range params.From {
		if reg.Status == from {
			allowed = true
		}
	}
	if !allowed {
		return nil, repository.ErrStatusConflict
	}
	return reg, nil
}

func (m *memoryRegistrationStore) Approve(_ context.Context, params repository.TransitionParams, card *models.RegistrationCard) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	reg, err := m.transitionLocked(params)
	if err != nil {
		return err
	}
	if m.collisions > 0 {
		m.collisions--
		return repository.ErrDuplicate
	}
	if _, exists := m.cards[cardKey(card.UserID, card.SemesterID)]; exists {
		return repository.ErrDuplicate
	}
	reg.Status = models.RegistrationStatusApproved
	reg.UpdatedAt = params.At
	for _, upload := range m.uploads {
		if upload.RegistrationID == reg.ID && upload.Status == models.CourseUploadStatusPending {
			upload.Status = models.CourseUploadStatusApproved
		}
	}
	card.ID = m.nextID("card")
	cp := *card
	m.cards[cardKey(card.UserID, card.SemesterID)] = &cp
	return nil
}

func (m *memoryRegistrationStore) Reject(_ context.Context, params repository.TransitionParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	reg, err := m.transitionLocked(params)
	if err != nil {
		return err
	}
	reg.Status = models.RegistrationStatusRejected
	reg.RejectionReason = params.Reason
	reg.UpdatedAt = params.At
	for _, upload := range m.uploads {
		if upload.RegistrationID == reg.ID && upload.Status == models.CourseUploadStatusPending {
			upload.Status = models.CourseUploadStatusRejected
			upload.RejectionReason = params.Reason
		}
	}
	return nil
}

func (m *memoryRegistrationStore) Cancel(_ context.Context, params repository.TransitionParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	reg, err := m.transitionLocked(params)
	if err != nil {
		return err
	}
	reg.Status = models.RegistrationStatusCancelled
	reg.UpdatedAt = params.At
	for _, upload := range m.uploads {
		if upload.RegistrationID == reg.ID {
			upload.Status = models.CourseUploadStatusCancelled
		}
	}
	return nil
}

func (m *memoryRegistrationStore) sortedLocked() []*models.Registration {
	out := make([]*models.Registration, 0, len(m.regs))
	for _, reg := range m.regs {
		out = append(out, reg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (m *memoryRegistrationStore) List(_ context.Context, filter models.RegistrationFilter) ([]models.RegistrationSummary, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []models.RegistrationSummary
	for _, reg := range m.sortedLocked() {
		if len(filter.Status) > 0 {
			ok := false
			for _, status := range filter.Status {
				ok = ok || reg.Status == status
			}
			if !ok {
				continue
			}
		}
		if filter.SemesterID != "" && reg.SemesterID != filter.SemesterID {
			continue
		}
		if filter.UserID != "" && reg.UserID != filter.UserID {
			continue
		}
		matched = append(matched, *m.summaryLocked(reg))
	}
	start := (filter.Page - 1) * filter.PageSize
	if start > len(matched) {
		start = len(matched)
	}
	end := start + filter.PageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], len(matched), nil
}

func (m *memoryRegistrationStore) ListPending(ctx context.Context) ([]models.RegistrationSummary, error) {
	items, _, err := m.List(ctx, models.RegistrationFilter{
		Status:   []models.RegistrationStatus{models.RegistrationStatusPending},
		Page:     1,
		PageSize: 1000,
	})
	return items, err
}

func (m *memoryRegistrationStore) CountByStatus(_ context.Context) ([]models.StatusCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[models.RegistrationStatus]int{}
	for _, reg := range m.regs {
		counts[reg.Status]++
	}
	var out []models.StatusCount
	for status, count := range counts {
		out = append(out, models.StatusCount{Status: status, Count: count})
	}
	return out, nil
}

func (m *memoryRegistrationStore) CountBySemester(_ context.Context) ([]models.SemesterCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[string]int{}
	for _, reg := range m.regs {
		counts[reg.SemesterID]++
	}
	var out []models.SemesterCount
	for id, count := range counts {
		out = append(out, models.SemesterCount{SemesterID: id, SemesterName: m.catalog.semesters[id].Name, Count: count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SemesterID < out[j].SemesterID })
	return out, nil
}

func (m *memoryRegistrationStore) Recent(ctx context.Context, limit int) ([]models.RegistrationSummary, error) {
	items, _, err := m.List(ctx, models.RegistrationFilter{Page: 1, PageSize: limit})
	return items, err
}

func (m *memoryRegistrationStore) FindCard(_ context.Context, userID, semesterID string) (*models.RegistrationCard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	card, ok := m.cards[cardKey(userID, semesterID)]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *card
	return &cp, nil
}

func (m *memoryRegistrationStore) uploadStatuses(registrationID string) []models.CourseUploadStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.CourseUploadStatus
	for _, id := range m.uploadIDs {
		if upload := m.uploads[id]; upload != nil && upload.RegistrationID == registrationID {
			out = append(out, upload.Status)
		}
	}
	return out
}

func (m *memoryRegistrationStore) setUploadStatus(uploadID string, status models.CourseUploadStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploads[uploadID].Status = status
}

type memoryCatalog struct {
	semesters map[string]models.Semester
	courses   map[string]models.Course
	users     map[string]models.User
	payments  map[string]models.Payment
}

func newMemoryCatalog() *memoryCatalog {
	return &memoryCatalog{
		semesters: map[string]models.Semester{
			"fall2024":   {ID: "fall2024", Name: "Fall 2024", IsActive: true},
			"spring2025": {ID: "spring2025", Name: "Spring 2025"},
		},
		courses: map[string]models.Course{
			"course-cs101":  {ID: "course-cs101", Code: "CS101", Title: "Intro to Programming", CreditHours: 3},
			"course-ma201":  {ID: "course-ma201", Code: "MA201", Title: "Linear Algebra", CreditHours: 4},
			"course-ph301":  {ID: "course-ph301", Code: "PH301", Title: "Quantum Mechanics", CreditHours: 4},
			"course-cap500": {ID: "course-cap500", Code: "CAP500", Title: "Thesis", CreditHours: 20},
		},
		users: map[string]models.User{
			"alice001": {ID: "alice001", Email: "alice@uni.test", FullName: "Alice Student", Role: models.RoleStudent, Active: true},
			"bob00002": {ID: "bob00002", Email: "bob@uni.test", FullName: "Bob Student", Role: models.RoleStudent, Active: true},
		},
		payments: map[string]models.Payment{},
	}
}

func (c *memoryCatalog) FindSemester(_ context.Context, id string) (*models.Semester, error) {
	sem, ok := c.semesters[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &sem, nil
}

func (c *memoryCatalog) FindCourse(_ context.Context, id string) (*models.Course, error) {
	course, ok := c.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &course, nil
}

func (c *memoryCatalog) LatestPayment(_ context.Context, userID, semesterID string) (*models.Payment, error) {
	payment, ok := c.payments[cardKey(userID, semesterID)]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &payment, nil
}

type notifierEvent struct {
	kind   string
	regID  string
	detail string
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifierEvent
}

func (r *recordingNotifier) record(kind string, reg *models.RegistrationSummary, detail string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, notifierEvent{kind: kind, regID: reg.ID, detail: detail})
}

func (r *recordingNotifier) RegistrationSubmitted(_ context.Context, reg *models.RegistrationSummary, _ time.Time) {
	r.record("submitted", reg, reg.StudentName)
}

func (r *recordingNotifier) RegistrationApproved(_ context.Context, reg *models.RegistrationSummary, card *models.RegistrationCard) {
	r.record("approved", reg, card.CardNumber)
}

func (r *recordingNotifier) RegistrationRejected(_ context.Context, reg *models.RegistrationSummary, reason string) {
	r.record("rejected", reg, reason)
}

func (r *recordingNotifier) RegistrationCancelled(_ context.Context, reg *models.RegistrationSummary) {
	r.record("cancelled", reg, "")
}

func (r *recordingNotifier) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.kind)
	}
	return out
}
