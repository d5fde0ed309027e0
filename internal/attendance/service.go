package attendance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/kozaktomas/class-attendance/internal/annotate"
	"github.com/kozaktomas/class-attendance/internal/database"
	"github.com/kozaktomas/class-attendance/internal/facematch"
	"github.com/kozaktomas/class-attendance/internal/storage"
)

// Service runs automatic and manual attendance against the database.
type Service struct {
	Students     database.StudentReader
	Profiles     database.ProfileReader
	Sessions     database.SessionWriter
	Records      database.RecordWriter
	Store        *storage.Store
	Pipeline     *Pipeline
	ProofQuality int
}

// AutoResult is what a teacher reviews after a scan. Nothing is recorded yet.
type AutoResult struct {
	Session         *database.Session
	Scan            *Result
	Outcome         Outcome
	Students        []database.Student
	MissingProfiles []string // students without an enrolled face
}

// Roster loads the students of a class and their enrolled embeddings.
func (s *Service) Roster(ctx context.Context, classID string) ([]database.Student, *facematch.Roster, error) {
	classID = facematch.NormalizeIdentifier(classID)
	students, err := s.Students.ListByClass(ctx, classID)
	if err != nil {
		return nil, nil, fmt.Errorf("listing students: %w", err)
	}
	if len(students) == 0 {
		return nil, nil, fmt.Errorf("%w: %s", ErrNoStudents, classID)
	}

	embeddings, err := s.Profiles.GetEmbeddings(ctx, regNos(students))
	if err != nil {
		return nil, nil, fmt.Errorf("loading embeddings: %w", err)
	}
	roster, err := facematch.NewRoster(embeddings)
	if err != nil {
		if errors.Is(err, facematch.ErrEmptyRoster) {
			return nil, nil, fmt.Errorf("%w: class %s", ErrEmptyRoster, classID)
		}
		return nil, nil, err
	}
	return students, roster, nil
}

// Auto scans a classroom photo and proposes present and absent students for the slot.
// The session is created if needed and the annotated proof image is stored with it.
func (s *Service) Auto(ctx context.Context, slot Slot, imageData []byte) (*AutoResult, error) {
	slot = slot.Normalize()
	if err := slot.Validate(); err != nil {
		return nil, err
	}

	students, roster, err := s.Roster(ctx, slot.ClassID)
	if err != nil {
		return nil, err
	}

	img, err := DecodeImage(imageData)
	if err != nil {
		return nil, err
	}

	scan, err := s.Pipeline.Run(ctx, img, roster)
	if err != nil {
		return nil, err
	}

	session, err := GetOrCreateSession(ctx, s.Sessions, slot)
	if err != nil {
		return nil, err
	}

	quality := s.ProofQuality
	if quality == 0 {
		quality = annotate.DefaultQuality
	}
	proof, err := annotate.EncodeJPEG(scan.Annotated, quality)
	if err != nil {
		return nil, fmt.Errorf("encoding proof image: %w", err)
	}
	proofPath, err := s.Store.SaveProof(session.ID, proof)
	if err != nil {
		return nil, fmt.Errorf("saving proof image: %w", err)
	}
	if err := s.Sessions.SetProofPath(ctx, session.ID, proofPath); err != nil {
		return nil, fmt.Errorf("recording proof image: %w", err)
	}
	session.ProofPath = proofPath

	prior, err := s.priorStatuses(ctx, session.ID)
	if err != nil {
		return nil, err
	}

	expected := regNos(students)
	outcome := Reconcile(expected, scan.Matches, prior)
	if len(outcome.Duplicates) > 0 {
		log.Printf("Session %d: students matched by more than one face: %s",
			session.ID, strings.Join(outcome.Duplicates, ", "))
	}

	var missing []string
	enrolled := make(map[string]bool, roster.Len())
	for _, id := range roster.IDs() {
		enrolled[id] = true
	}
	for _, id := range expected {
		if !enrolled[id] {
			missing = append(missing, id)
		}
	}

	return &AutoResult{
		Session:         session,
		Scan:            scan,
		Outcome:         outcome,
		Students:        students,
		MissingProfiles: missing,
	}, nil
}

func (s *Service) priorStatuses(ctx context.Context, sessionID int64) (map[string]string, error) {
	records, err := s.Records.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("loading existing records: %w", err)
	}
	prior := make(map[string]string, len(records))
	for _, r := range records {
		prior[r.RegNo] = r.Status
	}
	return prior, nil
}

// Summary is the stored state of a session after marking.
type Summary struct {
	Session *database.Session
	Records []database.Record
	Counts  map[string]int
}

// Manual records teacher-confirmed statuses for the slot. statuses maps registration
// number to one of the Status constants.
func (s *Service) Manual(ctx context.Context, slot Slot, statuses map[string]string) (*Summary, error) {
	slot = slot.Normalize()
	if err := slot.Validate(); err != nil {
		return nil, err
	}
	if len(statuses) == 0 {
		return nil, fmt.Errorf("%w: no statuses given", ErrInvalidStatus)
	}

	students, err := s.Students.ListByClass(ctx, slot.ClassID)
	if err != nil {
		return nil, fmt.Errorf("listing students: %w", err)
	}
	if len(students) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoStudents, slot.ClassID)
	}
	inClass := make(map[string]bool, len(students))
	for _, st := range students {
		inClass[st.RegNo] = true
	}

	records := make([]database.Record, 0, len(statuses))
	for regNo, status := range statuses {
		regNo = facematch.NormalizeIdentifier(regNo)
		status = strings.ToUpper(strings.TrimSpace(status))
		if !ValidStatus(status) {
			return nil, fmt.Errorf("%w: %q for %s", ErrInvalidStatus, status, regNo)
		}
		if !inClass[regNo] {
			return nil, fmt.Errorf("%w: %s", ErrUnknownStudent, regNo)
		}
		records = append(records, database.Record{RegNo: regNo, Status: status})
	}

	session, err := GetOrCreateSession(ctx, s.Sessions, slot)
	if err != nil {
		return nil, err
	}
	if err := s.Records.Upsert(ctx, session.ID, records); err != nil {
		return nil, fmt.Errorf("saving records: %w", err)
	}
	return s.summary(ctx, session)
}

// SessionSummary returns a stored session with its records.
func (s *Service) SessionSummary(ctx context.Context, sessionID int64) (*Summary, error) {
	session, err := s.session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.summary(ctx, session)
}

// Proof returns the annotated image stored for a session.
func (s *Service) Proof(ctx context.Context, sessionID int64) ([]byte, error) {
	session, err := s.session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.ProofPath == "" {
		return nil, fmt.Errorf("%w: session %d has no proof image", ErrSessionNotFound, sessionID)
	}
	return s.Store.Read(session.ProofPath)
}

func (s *Service) session(ctx context.Context, id int64) (*database.Session, error) {
	session, err := s.Sessions.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("%w: %d", ErrSessionNotFound, id)
	}
	return session, nil
}

func (s *Service) summary(ctx context.Context, session *database.Session) (*Summary, error) {
	records, err := s.Records.ListBySession(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("loading records: %w", err)
	}
	counts := make(map[string]int, len(Statuses))
	for _, st := range Statuses {
		counts[st] = 0
	}
	for _, r := range records {
		counts[r.Status]++
	}
	return &Summary{Session: session, Records: records, Counts: counts}, nil
}

func regNos(students []database.Student) []string {
	ids := make([]string, len(students))
	for i, st := range students {
		ids[i] = st.RegNo
	}
	return ids
}
