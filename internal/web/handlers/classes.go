package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/class-attendance/internal/database"
	"github.com/kozaktomas/class-attendance/internal/facematch"
)

// ClassesHandler serves class rosters
type ClassesHandler struct {
	students database.StudentReader
	profiles database.ProfileReader
}

// NewClassesHandler creates a new classes handler
func NewClassesHandler(students database.StudentReader, profiles database.ProfileReader) *ClassesHandler {
	return &ClassesHandler{students: students, profiles: profiles}
}

// StudentResponse represents a student in API responses
type StudentResponse struct {
	RegNo    string `json:"reg_no"`
	Name     string `json:"name"`
	ClassID  string `json:"class_id"`
	Enrolled bool   `json:"enrolled"`
}

func toStudentResponses(students []database.Student) []StudentResponse {
	out := make([]StudentResponse, len(students))
	for i, s := range students {
		out[i] = StudentResponse{RegNo: s.RegNo, Name: s.Name, ClassID: s.ClassID}
	}
	return out
}

// Students lists the students of a class and whether each has an enrolled face.
func (h *ClassesHandler) Students(w http.ResponseWriter, r *http.Request) {
	classID := facematch.NormalizeIdentifier(chi.URLParam(r, "classID"))
	students, err := h.students.ListByClass(r.Context(), classID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	result := toStudentResponses(students)
	if len(students) > 0 {
		regNos := make([]string, len(students))
		for i, s := range students {
			regNos[i] = s.RegNo
		}
		embeddings, err := h.profiles.GetEmbeddings(r.Context(), regNos)
		if err != nil {
			respondServiceError(w, r, err)
			return
		}
		for i := range result {
			_, result[i].Enrolled = embeddings[result[i].RegNo]
		}
	}
	respondJSON(w, http.StatusOK, result)
}
