package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestProofPath(t *testing.T) {
	if got := ProofPath(42); got != "proofs/session_42.jpg" {
		t.Errorf("ProofPath(42) = %q", got)
	}
}

func TestStore_SaveProof(t *testing.T) {
	root := t.TempDir()
	s, err := New(root)
	if err != nil {
		t.Fatal(err)
	}

	rel, err := s.SaveProof(7, []byte("first"))
	if err != nil {
		t.Fatalf("SaveProof() error: %v", err)
	}
	if rel != "proofs/session_7.jpg" {
		t.Errorf("rel = %q", rel)
	}
	if _, err := s.SaveProof(7, []byte("second")); err != nil {
		t.Fatal(err)
	}

	data, err := s.Read(rel)
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if string(data) != "second" {
		t.Errorf("proof not overwritten: %q", data)
	}
}

func TestStore_SaveFace(t *testing.T) {
	root := t.TempDir()
	s, err := New(root)
	if err != nil {
		t.Fatal(err)
	}

	a, err := s.SaveFace("21CS001", []byte("a"))
	if err != nil {
		t.Fatalf("SaveFace() error: %v", err)
	}
	b, err := s.SaveFace("21CS001", []byte("b"))
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Error("face images must get distinct names")
	}
	if !strings.HasPrefix(a, "faces/21CS001/") || !strings.HasSuffix(a, ".jpg") {
		t.Errorf("unexpected path %q", a)
	}

	if err := s.DeleteFaces("21CS001"); err != nil {
		t.Fatalf("DeleteFaces() error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "faces", "21CS001")); !os.IsNotExist(err) {
		t.Errorf("face directory still present: %v", err)
	}
}

func TestStore_RejectsTraversal(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	for _, rel := range []string{"../etc/passwd", "/etc/passwd", "..", "", "proofs/../../x"} {
		if _, err := s.Read(rel); !errors.Is(err, ErrInvalidPath) {
			t.Errorf("Read(%q) error = %v, want ErrInvalidPath", rel, err)
		}
	}
	for _, regNo := range []string{"", "..", "a/b", `a\b`} {
		if _, err := s.SaveFace(regNo, nil); !errors.Is(err, ErrInvalidPath) {
			t.Errorf("SaveFace(%q) error = %v, want ErrInvalidPath", regNo, err)
		}
	}
}

func TestNew_RequiresDir(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("expected error for empty directory")
	}
}

func TestStore_SaveLeaveProof(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		data    []byte
		wantExt string
		wantErr error
	}{
		{"pdf", []byte("%PDF-1.7\n..."), ".pdf", nil},
		{"png", []byte("\x89PNG\r\n\x1a\n0000"), ".png", nil},
		{"jpeg", []byte("\xff\xd8\xff\xe0 JFIF"), ".jpg", nil},
		{"plain text", []byte("certificate attached"), "", ErrUnsupportedType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rel, err := s.SaveLeaveProof("21CS001", tt.data)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("SaveLeaveProof() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				return
			}
			if !strings.HasPrefix(rel, "leave/21CS001/") || filepath.Ext(rel) != tt.wantExt {
				t.Errorf("rel = %q, want leave/21CS001/*%s", rel, tt.wantExt)
			}
		})
	}

	if _, err := s.SaveLeaveProof("../x", []byte("%PDF-1.7")); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("SaveLeaveProof(../x) error = %v, want ErrInvalidPath", err)
	}
}
