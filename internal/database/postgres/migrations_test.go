package postgres

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"
	"testing/fstest"
)

func checksum(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func TestLoadMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/002_leave.sql":   {Data: []byte("CREATE TABLE b ();")},
		"migrations/001_initial.sql": {Data: []byte("CREATE TABLE a ();")},
		"migrations/README.md":       {Data: []byte("not a migration")},
	}

	got, err := loadMigrations(fsys)
	if err != nil {
		t.Fatalf("loadMigrations() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d migrations, want 2", len(got))
	}
	if got[0].Version != "001_initial.sql" || got[1].Version != "002_leave.sql" {
		t.Errorf("order = %s, %s", got[0].Version, got[1].Version)
	}
	if got[0].Checksum != checksum("CREATE TABLE a ();") {
		t.Errorf("checksum = %s", got[0].Checksum)
	}
}

func TestLoadMigrations_Embedded(t *testing.T) {
	got, err := loadMigrations(migrationsFS)
	if err != nil {
		t.Fatalf("loadMigrations() error: %v", err)
	}
	if len(got) == 0 || got[0].Version != "001_initial.sql" {
		t.Fatalf("embedded migrations = %v, want 001_initial.sql first", got)
	}
	for _, m := range got {
		if len(m.Checksum) != 64 || m.SQL == "" {
			t.Errorf("migration %s: checksum %q, %d bytes", m.Version, m.Checksum, len(m.SQL))
		}
	}
}

func TestPendingMigrations(t *testing.T) {
	migrations := []migration{
		{Version: "001_initial.sql", Checksum: checksum("a")},
		{Version: "002_leave.sql", Checksum: checksum("b")},
	}

	tests := []struct {
		name        string
		applied     map[string]string
		wantPending []string
		wantErr     error
	}{
		{"fresh database", map[string]string{}, []string{"001_initial.sql", "002_leave.sql"}, nil},
		{"one applied", map[string]string{"001_initial.sql": checksum("a")}, []string{"002_leave.sql"}, nil},
		{"up to date", map[string]string{"001_initial.sql": checksum("a"), "002_leave.sql": checksum("b")}, nil, nil},
		{"edited after apply", map[string]string{"001_initial.sql": checksum("edited")}, nil, ErrMigrationChanged},
		{"applied by a newer build", map[string]string{"001_initial.sql": checksum("a"), "003_future.sql": "x"}, nil, ErrMigrationUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pending, err := pendingMigrations(migrations, tt.applied)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("pendingMigrations() error = %v, want %v", err, tt.wantErr)
			}
			if len(pending) != len(tt.wantPending) {
				t.Fatalf("pending = %v, want %v", pending, tt.wantPending)
			}
			for i, m := range pending {
				if m.Version != tt.wantPending[i] {
					t.Errorf("pending[%d] = %s, want %s", i, m.Version, tt.wantPending[i])
				}
			}
		})
	}
}
