package attendance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kozaktomas/class-attendance/internal/database"
	"github.com/kozaktomas/class-attendance/internal/facematch"
)

// Periods in a teaching day.
const (
	MinPeriod = 1
	MaxPeriod = 7
)

// Slot identifies a teaching hour. A (class, date, period) triple has at most one session.
type Slot struct {
	ClassID     string
	SubjectCode string
	TeacherID   int64
	Date        time.Time
	Period      int
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q must be YYYY-MM-DD", ErrInvalidSlot, s)
	}
	return d, nil
}

// Normalize trims the slot's codes and upper-cases the class ID the way stored
// identifiers are written.
func (s Slot) Normalize() Slot {
	s.ClassID = facematch.NormalizeIdentifier(s.ClassID)
	s.SubjectCode = strings.TrimSpace(s.SubjectCode)
	return s
}

// Validate checks that every field of the slot is set and the period is in range.
func (s Slot) Validate() error {
	switch {
	case strings.TrimSpace(s.ClassID) == "":
		return fmt.Errorf("%w: class_id is required", ErrInvalidSlot)
	case strings.TrimSpace(s.SubjectCode) == "":
		return fmt.Errorf("%w: subject_code is required", ErrInvalidSlot)
	case s.TeacherID <= 0:
		return fmt.Errorf("%w: teacher_id is required", ErrInvalidSlot)
	case s.Date.IsZero():
		return fmt.Errorf("%w: date is required", ErrInvalidSlot)
	case s.Period < MinPeriod || s.Period > MaxPeriod:
		return fmt.Errorf("%w: period %d out of range %d-%d", ErrInvalidSlot, s.Period, MinPeriod, MaxPeriod)
	}
	return nil
}

func (s Slot) day() time.Time {
	return dateOnly(s.Date)
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ResolveSlot decides whether an existing session may be reused for slot.
// A nil existing session means the slot is free and a new one must be created.
func ResolveSlot(existing *database.Session, slot Slot) (reuse bool, err error) {
	if existing == nil {
		return false, nil
	}
	if existing.TeacherID != slot.TeacherID {
		return false, fmt.Errorf("%w: period %d on %s belongs to session %d",
			ErrSlotTaken, slot.Period, slot.day().Format(time.DateOnly), existing.ID)
	}
	if existing.SubjectCode != slot.SubjectCode {
		return false, fmt.Errorf("%w: session %d is for %s, not %s",
			ErrSlotSubjectConflict, existing.ID, existing.SubjectCode, slot.SubjectCode)
	}
	return true, nil
}

// GetOrCreateSession returns the session of slot, creating it when the slot is free.
func GetOrCreateSession(ctx context.Context, sessions database.SessionWriter, slot Slot) (*database.Session, error) {
	slot = slot.Normalize()
	if err := slot.Validate(); err != nil {
		return nil, err
	}

	existing, err := sessions.FindBySlot(ctx, slot.ClassID, slot.day(), slot.Period)
	if err != nil {
		return nil, fmt.Errorf("looking up session: %w", err)
	}
	reuse, err := ResolveSlot(existing, slot)
	if err != nil {
		return nil, err
	}
	if reuse {
		return existing, nil
	}

	s := &database.Session{
		ClassID:     slot.ClassID,
		SubjectCode: slot.SubjectCode,
		TeacherID:   slot.TeacherID,
		Date:        slot.day(),
		Period:      slot.Period,
	}
	if err := sessions.Create(ctx, s); err != nil {
		// Lost a race for the slot; resolve against the winner.
		winner, findErr := sessions.FindBySlot(ctx, slot.ClassID, slot.day(), slot.Period)
		if findErr != nil || winner == nil {
			return nil, fmt.Errorf("creating session: %w", err)
		}
		if _, err := ResolveSlot(winner, slot); err != nil {
			return nil, err
		}
		return winner, nil
	}
	return s, nil
}
