package attendance

import (
	"slices"

	"github.com/kozaktomas/class-attendance/internal/facematch"
)

// Attendance statuses stored per student and session.
const (
	StatusPresent      = "P"
	StatusAbsent       = "A"
	StatusOnDuty       = "OD"
	StatusMedicalLeave = "ML"
	StatusNotTaken     = "NT"
)

// Statuses lists every valid status in display order.
var Statuses = []string{StatusPresent, StatusAbsent, StatusOnDuty, StatusMedicalLeave, StatusNotTaken}

// ValidStatus reports whether s is a known attendance status.
func ValidStatus(s string) bool {
	return slices.Contains(Statuses, s)
}

// IsLocked reports whether a status was approved by a teacher and must survive automated scans.
func IsLocked(s string) bool {
	return s == StatusOnDuty || s == StatusMedicalLeave
}

// Outcome is the result of reconciling a scan with the class roster.
// Present and Absent never contain a locked student.
type Outcome struct {
	Present    []string          `json:"present"`
	Absent     []string          `json:"absent"`
	Locked     map[string]string `json:"locked"`
	Duplicates []string          `json:"duplicates,omitempty"` // present students matched by more than one face
}

// Reconcile splits the expected students into locked, present and absent.
// prior holds the statuses already recorded for the session; only OD and ML are
// honoured, so an earlier NT is replaced by P or A. Matches for identifiers outside
// expected are ignored, and a locked student is never listed as a duplicate.
func Reconcile(expected []string, matches []facematch.MatchResult, prior map[string]string) Outcome {
	inRoster := make(map[string]bool, len(expected))
	for _, id := range expected {
		inRoster[id] = true
	}

	hits := make(map[string]int)
	for _, m := range matches {
		if m.Matched() && inRoster[m.Identity] {
			hits[m.Identity]++
		}
	}

	out := Outcome{
		Present: []string{},
		Absent:  []string{},
		Locked:  make(map[string]string),
	}
	seen := make(map[string]bool, len(expected))
	for _, id := range expected {
		if seen[id] {
			continue
		}
		seen[id] = true

		switch {
		case IsLocked(prior[id]):
			out.Locked[id] = prior[id]
		case hits[id] > 0:
			out.Present = append(out.Present, id)
			if hits[id] > 1 {
				out.Duplicates = append(out.Duplicates, id)
			}
		default:
			out.Absent = append(out.Absent, id)
		}
	}

	slices.Sort(out.Present)
	slices.Sort(out.Absent)
	slices.Sort(out.Duplicates)
	return out
}

// Records converts the outcome into records ready to be stored.
func (o Outcome) Records() map[string]string {
	statuses := make(map[string]string, len(o.Present)+len(o.Absent)+len(o.Locked))
	for _, id := range o.Present {
		statuses[id] = StatusPresent
	}
	for _, id := range o.Absent {
		statuses[id] = StatusAbsent
	}
	for id, s := range o.Locked {
		statuses[id] = s
	}
	return statuses
}
