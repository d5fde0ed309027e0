// Package enroll registers the reference face of a student.
package enroll

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/kozaktomas/class-attendance/internal/annotate"
	"github.com/kozaktomas/class-attendance/internal/attendance"
	"github.com/kozaktomas/class-attendance/internal/constants"
	"github.com/kozaktomas/class-attendance/internal/database"
	"github.com/kozaktomas/class-attendance/internal/detector"
	"github.com/kozaktomas/class-attendance/internal/facematch"
	"github.com/kozaktomas/class-attendance/internal/storage"
)

var (
	ErrNoFaceDetected = errors.New("no face detected in enrollment photo")
	ErrMultipleFaces  = errors.New("enrollment photo must contain exactly one face")
	ErrUnknownStudent = errors.New("student not found")
)

// Service enrolls and removes face profiles.
type Service struct {
	Detector       detector.Detector
	Students       database.StudentReader
	Profiles       database.ProfileWriter
	Store          *storage.Store
	MatchThreshold float64
	Model          string
}

// Collision is an already enrolled student whose face resembles the new one.
type Collision struct {
	RegNo      string  `json:"reg_no"`
	Similarity float64 `json:"similarity"`
}

// Result describes a stored profile.
type Result struct {
	Profile    *database.FaceProfile
	ImagePath  string
	Detection  facematch.Detection
	Collisions []Collision
}

// Enroll detects the single face in imageData and stores it as the student's profile,
// replacing an earlier one. Similar profiles of other students are reported, not rejected.
func (s *Service) Enroll(ctx context.Context, regNo string, imageData []byte) (*Result, error) {
	regNo = facematch.NormalizeIdentifier(regNo)
	student, err := s.Students.Get(ctx, regNo)
	if err != nil {
		return nil, fmt.Errorf("loading student: %w", err)
	}
	if student == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStudent, regNo)
	}

	img, err := attendance.DecodeImage(imageData)
	if err != nil {
		return nil, err
	}

	dets, err := s.Detector.Detect(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("detecting faces: %w", err)
	}
	switch {
	case len(dets) == 0:
		return nil, ErrNoFaceDetected
	case len(dets) > 1:
		return nil, fmt.Errorf("%w: found %d", ErrMultipleFaces, len(dets))
	}
	det := dets[0]
	embedding := facematch.Normalize(det.Embedding)

	collisions, err := s.collisions(ctx, regNo, embedding)
	if err != nil {
		return nil, err
	}

	photo, err := annotate.EncodeJPEG(img, constants.EnrollPhotoQuality)
	if err != nil {
		return nil, fmt.Errorf("encoding photo: %w", err)
	}
	path, err := s.Store.SaveFace(regNo, photo)
	if err != nil {
		return nil, fmt.Errorf("saving photo: %w", err)
	}

	profile, err := s.Profiles.Save(ctx, database.FaceProfile{
		RegNo:     regNo,
		Embedding: embedding,
		Model:     s.Model,
		Dim:       len(embedding),
	})
	if err != nil {
		return nil, fmt.Errorf("saving profile: %w", err)
	}
	if err := s.Profiles.AddImage(ctx, regNo, path); err != nil {
		return nil, fmt.Errorf("recording photo: %w", err)
	}

	if len(collisions) > 0 {
		log.Printf("Enrolled %s resembles %d other profile(s), closest %s (%.2f)",
			regNo, len(collisions), collisions[0].RegNo, collisions[0].Similarity)
	}

	return &Result{Profile: profile, ImagePath: path, Detection: det, Collisions: collisions}, nil
}

func (s *Service) collisions(ctx context.Context, regNo string, embedding []float32) ([]Collision, error) {
	// Cosine distance below 1 - threshold means the matcher could confuse the two.
	similar, distances, err := s.Profiles.FindSimilarWithDistance(ctx, embedding, constants.MaxCollisions+1, 1-s.MatchThreshold)
	if err != nil {
		return nil, fmt.Errorf("searching similar profiles: %w", err)
	}

	var out []Collision
	for i, p := range similar {
		if p.RegNo == regNo {
			continue
		}
		out = append(out, Collision{RegNo: p.RegNo, Similarity: 1 - distances[i]})
		if len(out) == constants.MaxCollisions {
			break
		}
	}
	return out, nil
}

// List returns every enrolled profile.
func (s *Service) List(ctx context.Context) ([]database.FaceProfile, error) {
	return s.Profiles.List(ctx)
}

// Delete removes the profile and stored photos of a student.
// It returns false when the student had no profile.
func (s *Service) Delete(ctx context.Context, regNo string) (bool, error) {
	regNo = facematch.NormalizeIdentifier(regNo)
	deleted, err := s.Profiles.Delete(ctx, regNo)
	if err != nil {
		return false, fmt.Errorf("deleting profile: %w", err)
	}
	if err := s.Store.DeleteFaces(regNo); err != nil {
		return deleted, err
	}
	return deleted, nil
}
