// Package storage keeps proof images and enrollment photos on the local filesystem.
// Paths handed out are relative to the storage root and safe to persist in the database.
package storage

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrInvalidPath is returned for paths that escape the storage root.
	ErrInvalidPath = errors.New("invalid storage path")
	// ErrUnsupportedType is returned for leave proofs that are neither an image nor a PDF.
	ErrUnsupportedType = errors.New("unsupported file type")
)

var leaveProofExt = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"application/pdf": ".pdf",
}

// Store is a directory-backed file store.
type Store struct {
	root string
}

// New creates the root directory if needed and returns a store on it.
func New(root string) (*Store, error) {
	if root == "" {
		return nil, errors.New("storage directory is required")
	}
	if err := os.MkdirAll(root, 0750); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &Store{root: root}, nil
}

// ProofPath returns the relative location of a session's proof image.
func ProofPath(sessionID int64) string {
	return filepath.ToSlash(filepath.Join("proofs", fmt.Sprintf("session_%d.jpg", sessionID)))
}

// SaveProof writes the annotated image of a session, overwriting an earlier one.
func (s *Store) SaveProof(sessionID int64, data []byte) (string, error) {
	rel := ProofPath(sessionID)
	if err := s.write(rel, data); err != nil {
		return "", err
	}
	return rel, nil
}

// SaveFace writes an enrollment photo under faces/<regNo>/ with a random name.
func (s *Store) SaveFace(regNo string, data []byte) (string, error) {
	if !validSegment(regNo) {
		return "", fmt.Errorf("%w: registration number %q", ErrInvalidPath, regNo)
	}
	rel := filepath.ToSlash(filepath.Join("faces", regNo, uuid.New().String()+".jpg"))
	if err := s.write(rel, data); err != nil {
		return "", err
	}
	return rel, nil
}

// SaveLeaveProof writes a leave request's supporting document under leave/<regNo>/.
// The extension follows the sniffed content type.
func (s *Store) SaveLeaveProof(regNo string, data []byte) (string, error) {
	if !validSegment(regNo) {
		return "", fmt.Errorf("%w: registration number %q", ErrInvalidPath, regNo)
	}
	contentType := http.DetectContentType(data)
	ext, ok := leaveProofExt[contentType]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}
	rel := filepath.ToSlash(filepath.Join("leave", regNo, uuid.New().String()+ext))
	if err := s.write(rel, data); err != nil {
		return "", err
	}
	return rel, nil
}

// DeleteFaces removes all enrollment photos of a student.
func (s *Store) DeleteFaces(regNo string) error {
	if !validSegment(regNo) {
		return fmt.Errorf("%w: registration number %q", ErrInvalidPath, regNo)
	}
	if err := os.RemoveAll(filepath.Join(s.root, "faces", regNo)); err != nil {
		return fmt.Errorf("failed to delete face images: %w", err)
	}
	return nil
}

// Read returns the content of a stored file.
func (s *Store) Read(rel string) ([]byte, error) {
	abs, err := s.resolve(rel)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs) //nolint:gosec // path is confined to the storage root
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", rel, err)
	}
	return data, nil
}

func (s *Store) write(rel string, data []byte) error {
	abs, err := s.resolve(rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0750); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(abs, data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", rel, err)
	}
	return nil
}

func (s *Store) resolve(rel string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(rel))
	if clean == "." || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, rel)
	}
	return filepath.Join(s.root, clean), nil
}

func validSegment(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, `/\`)
}
