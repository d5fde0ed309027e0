package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/class-attendance/internal/database"
)

// ProfileRepository provides PostgreSQL-backed face profile storage with an optional
// in-memory HNSW index for similarity search.
type ProfileRepository struct {
	pool          *Pool
	hnswIndex     *database.ProfileIndex
	hnswIndexPath string
	hnswMu        sync.RWMutex
}

// NewProfileRepository creates a new PostgreSQL profile repository.
func NewProfileRepository(pool *Pool) *ProfileRepository {
	return &ProfileRepository{pool: pool}
}

const profileColumns = `id, reg_no, embedding, model, dim, created_at, updated_at`

func scanProfileRow(scanner interface{ Scan(...any) error }, extraDest ...any) (database.FaceProfile, error) {
	var p database.FaceProfile
	var vec pgvector.Vector

	dest := append([]any{&p.ID, &p.RegNo, &vec, &p.Model, &p.Dim, &p.CreatedAt, &p.UpdatedAt}, extraDest...)
	if err := scanner.Scan(dest...); err != nil {
		return p, err
	}
	p.Embedding = vec.Slice()
	return p, nil
}

func scanProfiles(rows *sql.Rows) ([]database.FaceProfile, error) {
	var profiles []database.FaceProfile
	for rows.Next() {
		p, err := scanProfileRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profiles: %w", err)
	}
	return profiles, nil
}

// Get retrieves the profile of a student, returns nil if not enrolled.
func (r *ProfileRepository) Get(ctx context.Context, regNo string) (*database.FaceProfile, error) {
	p, err := scanProfileRow(r.pool.QueryRow(ctx,
		"SELECT "+profileColumns+" FROM face_profiles WHERE reg_no = $1", regNo))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &p, nil
}

// List returns all profiles ordered by registration number.
func (r *ProfileRepository) List(ctx context.Context) ([]database.FaceProfile, error) {
	rows, err := r.pool.Query(ctx, "SELECT "+profileColumns+" FROM face_profiles ORDER BY reg_no")
	if err != nil {
		return nil, fmt.Errorf("query profiles: %w", err)
	}
	defer rows.Close()

	return scanProfiles(rows)
}

// GetEmbeddings returns regNo -> embedding for the given students.
func (r *ProfileRepository) GetEmbeddings(ctx context.Context, regNos []string) (map[string][]float32, error) {
	out := make(map[string][]float32, len(regNos))
	if len(regNos) == 0 {
		return out, nil
	}

	rows, err := r.pool.Query(ctx,
		"SELECT reg_no, embedding FROM face_profiles WHERE reg_no = ANY($1)", pq.Array(regNos))
	if err != nil {
		return nil, fmt.Errorf("query embeddings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var regNo string
		var vec pgvector.Vector
		if err := rows.Scan(&regNo, &vec); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		out[regNo] = vec.Slice()
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embeddings: %w", err)
	}
	return out, nil
}

// FindSimilarWithDistance finds profiles closer than maxDistance.
// Uses the in-memory HNSW index if enabled, otherwise falls back to PostgreSQL.
func (r *ProfileRepository) FindSimilarWithDistance(
	ctx context.Context, embedding []float32, limit int, maxDistance float64,
) ([]database.FaceProfile, []float64, error) {
	r.hnswMu.RLock()
	idx := r.hnswIndex
	r.hnswMu.RUnlock()

	if idx != nil {
		return idx.Search(embedding, limit, maxDistance)
	}
	return r.findSimilarPostgres(ctx, embedding, limit, maxDistance)
}

func (r *ProfileRepository) findSimilarPostgres(
	ctx context.Context, embedding []float32, limit int, maxDistance float64,
) ([]database.FaceProfile, []float64, error) {
	query := `
		SELECT ` + profileColumns + `, embedding <=> $1::vector AS distance
		FROM face_profiles
		WHERE vector_dims(embedding) = $4 AND embedding <=> $1::vector < $2
		ORDER BY distance
		LIMIT $3
	`

	rows, err := r.pool.Query(ctx, query, pgvector.NewVector(embedding), maxDistance, limit, len(embedding))
	if err != nil {
		return nil, nil, fmt.Errorf("query similar profiles: %w", err)
	}
	defer rows.Close()

	var profiles []database.FaceProfile
	var distances []float64
	for rows.Next() {
		var dist float64
		p, err := scanProfileRow(rows, &dist)
		if err != nil {
			return nil, nil, fmt.Errorf("scan profile: %w", err)
		}
		profiles = append(profiles, p)
		distances = append(distances, dist)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate profiles: %w", err)
	}
	return profiles, distances, nil
}

// Save stores the profile of a student, replacing any previous one.
func (r *ProfileRepository) Save(ctx context.Context, profile database.FaceProfile) (*database.FaceProfile, error) {
	query := `
		INSERT INTO face_profiles (reg_no, embedding, model, dim)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (reg_no) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			model = EXCLUDED.model,
			dim = EXCLUDED.dim,
			updated_at = NOW()
		RETURNING ` + profileColumns

	saved, err := scanProfileRow(r.pool.QueryRow(ctx, query,
		profile.RegNo, pgvector.NewVector(profile.Embedding), profile.Model, len(profile.Embedding)))
	if err != nil {
		return nil, fmt.Errorf("save profile: %w", err)
	}

	r.hnswMu.RLock()
	if r.hnswIndex != nil {
		r.hnswIndex.Add(saved)
	}
	r.hnswMu.RUnlock()

	return &saved, nil
}

// AddImage records a stored enrollment photo for a student.
func (r *ProfileRepository) AddImage(ctx context.Context, regNo, path string) error {
	_, err := r.pool.Exec(ctx, "INSERT INTO face_images (reg_no, image_path) VALUES ($1, $2)", regNo, path)
	if err != nil {
		return fmt.Errorf("add face image: %w", err)
	}
	return nil
}

// Delete removes the profile and image records of a student.
func (r *ProfileRepository) Delete(ctx context.Context, regNo string) (bool, error) {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM face_images WHERE reg_no = $1", regNo); err != nil {
		return false, fmt.Errorf("delete face images: %w", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM face_profiles WHERE reg_no = $1", regNo)
	if err != nil {
		return false, fmt.Errorf("delete profile: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit transaction: %w", err)
	}

	r.hnswMu.RLock()
	if r.hnswIndex != nil {
		r.hnswIndex.Delete(regNo)
	}
	r.hnswMu.RUnlock()

	return n > 0, nil
}

// profileStats returns the values used to detect a stale cached index.
func (r *ProfileRepository) profileStats(ctx context.Context) (count, maxID int64, lastUpdate time.Time, err error) {
	var last sql.NullTime
	err = r.pool.QueryRow(ctx,
		"SELECT COUNT(*), COALESCE(MAX(id), 0), MAX(updated_at) FROM face_profiles",
	).Scan(&count, &maxID, &last)
	if err != nil {
		return 0, 0, time.Time{}, fmt.Errorf("failed to get profile stats: %w", err)
	}
	if last.Valid {
		lastUpdate = last.Time.UTC()
	}
	return count, maxID, lastUpdate, nil
}

// EnableHNSW loads or builds the in-memory index. If indexPath is set, a fresh cached
// index is loaded from disk and a rebuilt one is saved back.
// This should be called once at startup.
func (r *ProfileRepository) EnableHNSW(ctx context.Context, indexPath string) error {
	r.hnswMu.Lock()
	defer r.hnswMu.Unlock()

	r.hnswIndexPath = indexPath

	count, maxID, lastUpdate, err := r.profileStats(ctx)
	if err != nil {
		return err
	}

	if indexPath != "" {
		if meta, err := database.LoadProfileIndexMetadata(indexPath); err != nil {
			log.Printf("Profile index: metadata unavailable: %v (will rebuild)", err)
		} else if meta.Stale(count, maxID, lastUpdate) {
			log.Printf("Profile index: stale (db: count=%d max_id=%d) (will rebuild)", count, maxID)
		} else {
			idx := database.NewProfileIndex()
			if err := idx.Load(indexPath); err != nil {
				log.Printf("Profile index: failed to load: %v (will rebuild)", err)
			} else {
				r.hnswIndex = idx
				log.Printf("Profile index: loaded %d profiles from disk", idx.Count())
				return nil
			}
		}
	}

	profiles, err := r.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to load profiles: %w", err)
	}

	idx := database.NewProfileIndex()
	idx.Build(profiles)
	r.hnswIndex = idx

	if indexPath != "" && len(profiles) > 0 {
		meta := database.ProfileIndexMetadata{ProfileCount: count, MaxProfileID: maxID, LastUpdate: lastUpdate}
		if err := idx.Save(indexPath, meta); err != nil {
			log.Printf("Warning: failed to save profile index to disk: %v", err)
		}
	}
	log.Printf("Profile index: built from %d profiles", len(profiles))
	return nil
}

// HNSWCount returns the number of profiles in the in-memory index.
func (r *ProfileRepository) HNSWCount() int {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()
	if r.hnswIndex == nil {
		return 0
	}
	return r.hnswIndex.Count()
}

// SaveHNSWIndex writes the current index to disk (if a path is configured).
func (r *ProfileRepository) SaveHNSWIndex(ctx context.Context) error {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()

	if r.hnswIndexPath == "" || r.hnswIndex == nil {
		return nil
	}

	count, maxID, lastUpdate, err := r.profileStats(ctx)
	if err != nil {
		return err
	}
	meta := database.ProfileIndexMetadata{ProfileCount: count, MaxProfileID: maxID, LastUpdate: lastUpdate}
	if err := r.hnswIndex.Save(r.hnswIndexPath, meta); err != nil {
		return fmt.Errorf("saving profile index: %w", err)
	}
	return nil
}
