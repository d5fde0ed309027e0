// Package handlers provides HTTP handlers for the web API.
// Handlers are organized by resource:
//   - attendance.go: automatic scans, manual marking and proof images
//   - faces.go: face enrollment and profile management
//   - classes.go: class rosters
//   - tiles.go: tile plan preview
package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/class-attendance/internal/enroll"
)

// FacesHandler handles face enrollment endpoints
type FacesHandler struct {
	service *enroll.Service
}

// NewFacesHandler creates a new faces handler
func NewFacesHandler(svc *enroll.Service) *FacesHandler {
	return &FacesHandler{service: svc}
}

// ProfileResponse represents an enrolled face profile in API responses
type ProfileResponse struct {
	ID        int64  `json:"id"`
	RegNo     string `json:"reg_no"`
	Model     string `json:"model"`
	Dim       int    `json:"dim"`
	UpdatedAt string `json:"updated_at"`
}

// EnrollResponse is returned after a successful enrollment
type EnrollResponse struct {
	Profile    ProfileResponse    `json:"profile"`
	ImagePath  string             `json:"image_path"`
	BBox       []float64          `json:"bbox"`
	Score      float64            `json:"score"`
	Collisions []enroll.Collision `json:"collisions"`
}

// Enroll stores the face of a student from an uploaded portrait.
func (h *FacesHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	photo, err := readPhoto(w, r, "image")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	regNo := r.FormValue("reg_no")
	if regNo == "" {
		respondError(w, http.StatusBadRequest, "reg_no is required")
		return
	}

	res, err := h.service.Enroll(r.Context(), regNo, photo)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	collisions := res.Collisions
	if collisions == nil {
		collisions = []enroll.Collision{}
	}
	respondJSON(w, http.StatusCreated, EnrollResponse{
		Profile: ProfileResponse{
			ID:        res.Profile.ID,
			RegNo:     res.Profile.RegNo,
			Model:     res.Profile.Model,
			Dim:       res.Profile.Dim,
			UpdatedAt: res.Profile.UpdatedAt.Format(time.RFC3339),
		},
		ImagePath:  res.ImagePath,
		BBox:       res.Detection.BBox.Slice(),
		Score:      res.Detection.Score,
		Collisions: collisions,
	})
}

// ListProfiles returns all enrolled profiles.
func (h *FacesHandler) ListProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.service.List(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	result := make([]ProfileResponse, len(profiles))
	for i, p := range profiles {
		result[i] = ProfileResponse{
			ID:        p.ID,
			RegNo:     p.RegNo,
			Model:     p.Model,
			Dim:       p.Dim,
			UpdatedAt: p.UpdatedAt.Format(time.RFC3339),
		}
	}
	respondJSON(w, http.StatusOK, result)
}

// Delete removes the profile and photos of a student.
func (h *FacesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	regNo := chi.URLParam(r, "regNo")
	deleted, err := h.service.Delete(r.Context(), regNo)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if !deleted {
		respondError(w, http.StatusNotFound, "profile not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
