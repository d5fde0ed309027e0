// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/class-attendance/internal/database"
)

// MockStudentReader is a mock implementation of database.StudentReader
type MockStudentReader struct {
	mu       sync.RWMutex
	students map[string]database.Student

	// Error injection
	ListByClassError error
	GetError         error
}

// NewMockStudentReader creates a new mock student reader
func NewMockStudentReader() *MockStudentReader {
	return &MockStudentReader{students: make(map[string]database.Student)}
}

// AddStudent adds a student to the mock store
func (m *MockStudentReader) AddStudent(s database.Student) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.students[s.RegNo] = s
}

// ListByClass returns the students of a class
func (m *MockStudentReader) ListByClass(ctx context.Context, classID string) ([]database.Student, error) {
	if m.ListByClassError != nil {
		return nil, m.ListByClassError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []database.Student
	for _, s := range m.students {
		if s.ClassID == classID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RegNo < out[j].RegNo })
	return out, nil
}

// Get retrieves a student by registration number
func (m *MockStudentReader) Get(ctx context.Context, regNo string) (*database.Student, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.students[regNo]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

// MockProfileWriter is a mock implementation of database.ProfileWriter
type MockProfileWriter struct {
	mu       sync.RWMutex
	profiles map[string]database.FaceProfile
	images   map[string][]string
	nextID   int64

	// Error injection
	GetError           error
	ListError          error
	GetEmbeddingsError error
	FindSimilarWDError error
	SaveError          error
	AddImageError      error
	DeleteError        error
}

// NewMockProfileWriter creates a new mock profile writer
func NewMockProfileWriter() *MockProfileWriter {
	return &MockProfileWriter{
		profiles: make(map[string]database.FaceProfile),
		images:   make(map[string][]string),
	}
}

// AddProfile adds a profile to the mock store
func (m *MockProfileWriter) AddProfile(p database.FaceProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == 0 {
		m.nextID++
		p.ID = m.nextID
	}
	m.profiles[p.RegNo] = p
}

// Images returns the image paths recorded for a student
func (m *MockProfileWriter) Images(regNo string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.images[regNo]...)
}

// Get retrieves the profile of a student
func (m *MockProfileWriter) Get(ctx context.Context, regNo string) (*database.FaceProfile, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[regNo]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// List returns all profiles ordered by registration number
func (m *MockProfileWriter) List(ctx context.Context) ([]database.FaceProfile, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]database.FaceProfile, 0, len(m.profiles))
	for _, p := range m.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RegNo < out[j].RegNo })
	return out, nil
}

// GetEmbeddings returns embeddings for the given students
func (m *MockProfileWriter) GetEmbeddings(ctx context.Context, regNos []string) (map[string][]float32, error) {
	if m.GetEmbeddingsError != nil {
		return nil, m.GetEmbeddingsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string][]float32)
	for _, regNo := range regNos {
		if p, ok := m.profiles[regNo]; ok {
			out[regNo] = p.Embedding
		}
	}
	return out, nil
}

// FindSimilarWithDistance does a brute-force cosine search
func (m *MockProfileWriter) FindSimilarWithDistance(ctx context.Context, embedding []float32, limit int, maxDistance float64) ([]database.FaceProfile, []float64, error) {
	if m.FindSimilarWDError != nil {
		return nil, nil, m.FindSimilarWDError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	type hit struct {
		p database.FaceProfile
		d float64
	}
	var hits []hit
	for _, p := range m.profiles {
		if d := database.CosineDistance(embedding, p.Embedding); d < maxDistance {
			hits = append(hits, hit{p, d})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].d < hits[j].d })
	if len(hits) > limit {
		hits = hits[:limit]
	}

	profiles := make([]database.FaceProfile, len(hits))
	distances := make([]float64, len(hits))
	for i, h := range hits {
		profiles[i] = h.p
		distances[i] = h.d
	}
	return profiles, distances, nil
}

// Save stores a profile, replacing any previous one for the student
func (m *MockProfileWriter) Save(ctx context.Context, p database.FaceProfile) (*database.FaceProfile, error) {
	if m.SaveError != nil {
		return nil, m.SaveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if old, ok := m.profiles[p.RegNo]; ok {
		p.ID = old.ID
		p.CreatedAt = old.CreatedAt
	} else {
		m.nextID++
		p.ID = m.nextID
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	m.profiles[p.RegNo] = p
	return &p, nil
}

// AddImage records an image path for a student
func (m *MockProfileWriter) AddImage(ctx context.Context, regNo, path string) error {
	if m.AddImageError != nil {
		return m.AddImageError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.images[regNo] = append(m.images[regNo], path)
	return nil
}

// Delete removes a profile and its images
func (m *MockProfileWriter) Delete(ctx context.Context, regNo string) (bool, error) {
	if m.DeleteError != nil {
		return false, m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.profiles[regNo]
	delete(m.profiles, regNo)
	delete(m.images, regNo)
	return ok, nil
}

// MockSessionWriter is a mock implementation of database.SessionWriter
type MockSessionWriter struct {
	mu       sync.RWMutex
	sessions map[int64]database.Session
	nextID   int64

	// Error injection
	GetError          error
	FindBySlotError   error
	ListInRangeError  error
	CreateError       error
	SetProofPathError error
}

// NewMockSessionWriter creates a new mock session writer
func NewMockSessionWriter() *MockSessionWriter {
	return &MockSessionWriter{sessions: make(map[int64]database.Session)}
}

// AddSession adds a session to the mock store
func (m *MockSessionWriter) AddSession(s database.Session) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == 0 {
		m.nextID++
		s.ID = m.nextID
	}
	m.nextID = max(m.nextID, s.ID)
	m.sessions[s.ID] = s
	return s.ID
}

// Count returns the number of stored sessions
func (m *MockSessionWriter) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Get retrieves a session by ID
func (m *MockSessionWriter) Get(ctx context.Context, id int64) (*database.Session, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

// FindBySlot retrieves the session of a slot
func (m *MockSessionWriter) FindBySlot(ctx context.Context, classID string, date time.Time, period int) (*database.Session, error) {
	if m.FindBySlotError != nil {
		return nil, m.FindBySlotError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sessions {
		if s.ClassID == classID && s.Period == period && sameDay(s.Date, date) {
			return &s, nil
		}
	}
	return nil, nil
}

// ListInRange returns the sessions of a class within a date range and set of periods
func (m *MockSessionWriter) ListInRange(ctx context.Context, classID string, from, to time.Time, periods []int) ([]database.Session, error) {
	if m.ListInRangeError != nil {
		return nil, m.ListInRangeError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	first, last := dayStart(from), dayStart(to)
	var out []database.Session
	for _, s := range m.sessions {
		d := dayStart(s.Date)
		if s.ClassID != classID || d.Before(first) || d.After(last) || !slices.Contains(periods, s.Period) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if !sameDay(out[i].Date, out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Period < out[j].Period
	})
	return out, nil
}

func dayStart(t time.Time) time.Time {
	y, mo, d := t.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// Create inserts a new session
func (m *MockSessionWriter) Create(ctx context.Context, s *database.Session) error {
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	s.ID = m.nextID
	s.CreatedAt = time.Now()
	m.sessions[s.ID] = *s
	return nil
}

// SetProofPath stores the proof image location
func (m *MockSessionWriter) SetProofPath(ctx context.Context, id int64, path string) error {
	if m.SetProofPathError != nil {
		return m.SetProofPathError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil
	}
	s.ProofPath = path
	m.sessions[id] = s
	return nil
}

// MockRecordWriter is a mock implementation of database.RecordWriter
type MockRecordWriter struct {
	mu      sync.RWMutex
	records map[int64]map[string]database.Record

	// Error injection
	ListBySessionError error
	UpsertError        error
}

// NewMockRecordWriter creates a new mock record writer
func NewMockRecordWriter() *MockRecordWriter {
	return &MockRecordWriter{records: make(map[int64]map[string]database.Record)}
}

// ListBySession returns the records of a session ordered by registration number
func (m *MockRecordWriter) ListBySession(ctx context.Context, sessionID int64) ([]database.Record, error) {
	if m.ListBySessionError != nil {
		return nil, m.ListBySessionError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]database.Record, 0, len(m.records[sessionID]))
	for _, r := range m.records[sessionID] {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RegNo < out[j].RegNo })
	return out, nil
}

// Upsert inserts or updates records of a session
func (m *MockRecordWriter) Upsert(ctx context.Context, sessionID int64, records []database.Record) error {
	if m.UpsertError != nil {
		return m.UpsertError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	bySession, ok := m.records[sessionID]
	if !ok {
		bySession = make(map[string]database.Record)
		m.records[sessionID] = bySession
	}
	now := time.Now()
	for _, r := range records {
		r.SessionID = sessionID
		r.UpdatedAt = now
		bySession[r.RegNo] = r
	}
	return nil
}

// MockLeaveWriter is a mock implementation of database.LeaveWriter
type MockLeaveWriter struct {
	mu        sync.RWMutex
	requests  map[int64]database.LeaveRequest
	approvals map[int64]database.LeaveApproval
	nextID    int64

	// Error injection
	GetRequestError    error
	ListApprovalsError error
	InboxError         error
	GetApprovalsError  error
	CreateRequestError error
	DecideError        error
}

// NewMockLeaveWriter creates a new mock leave writer
func NewMockLeaveWriter() *MockLeaveWriter {
	return &MockLeaveWriter{
		requests:  make(map[int64]database.LeaveRequest),
		approvals: make(map[int64]database.LeaveApproval),
	}
}

// GetRequest retrieves a leave request by ID
func (m *MockLeaveWriter) GetRequest(ctx context.Context, id int64) (*database.LeaveRequest, error) {
	if m.GetRequestError != nil {
		return nil, m.GetRequestError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

// ListApprovals returns the approvals of a request
func (m *MockLeaveWriter) ListApprovals(ctx context.Context, requestID int64) ([]database.LeaveApproval, error) {
	if m.ListApprovalsError != nil {
		return nil, m.ListApprovalsError
	}
	return m.filter(func(a database.LeaveApproval) bool { return a.RequestID == requestID }), nil
}

// Inbox returns a teacher's approvals with the given status
func (m *MockLeaveWriter) Inbox(ctx context.Context, teacherID int64, status string) ([]database.LeaveApproval, error) {
	if m.InboxError != nil {
		return nil, m.InboxError
	}
	return m.filter(func(a database.LeaveApproval) bool {
		return a.TeacherID == teacherID && a.Status == status
	}), nil
}

// GetApprovals returns the teacher's approvals among ids
func (m *MockLeaveWriter) GetApprovals(ctx context.Context, teacherID int64, ids []int64) ([]database.LeaveApproval, error) {
	if m.GetApprovalsError != nil {
		return nil, m.GetApprovalsError
	}
	return m.filter(func(a database.LeaveApproval) bool {
		return a.TeacherID == teacherID && slices.Contains(ids, a.ID)
	}), nil
}

func (m *MockLeaveWriter) filter(keep func(database.LeaveApproval) bool) []database.LeaveApproval {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []database.LeaveApproval
	for _, a := range m.approvals {
		if keep(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CreateRequest stores a request and its approvals
func (m *MockLeaveWriter) CreateRequest(ctx context.Context, req *database.LeaveRequest, approvals []database.LeaveApproval) error {
	if m.CreateRequestError != nil {
		return m.CreateRequestError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	req.ID = m.nextID
	req.CreatedAt = time.Now()
	m.requests[req.ID] = *req
	for i := range approvals {
		m.nextID++
		approvals[i].ID = m.nextID
		approvals[i].RequestID = req.ID
		m.approvals[approvals[i].ID] = approvals[i]
	}
	return nil
}

// Decide moves the teacher's pending approvals to status
func (m *MockLeaveWriter) Decide(ctx context.Context, teacherID int64, ids []int64, status string) ([]int64, error) {
	if m.DecideError != nil {
		return nil, m.DecideError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var changed []int64
	for _, id := range ids {
		a, ok := m.approvals[id]
		if !ok || a.TeacherID != teacherID || a.Status != "pending" {
			continue
		}
		a.Status = status
		a.DecidedAt = &now
		m.approvals[id] = a
		changed = append(changed, id)
	}
	slices.Sort(changed)
	return changed, nil
}
