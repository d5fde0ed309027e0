package database

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/coder/hnsw"
)

// ProfileIndexMetadata stores metadata for validating a cached profile index.
type ProfileIndexMetadata struct {
	ProfileCount int64     `json:"profile_count"`
	MaxProfileID int64     `json:"max_profile_id"`
	LastUpdate   time.Time `json:"last_update"`
	BuildTime    time.Time `json:"build_time"`
	Version      int       `json:"version"`
}

const profileIndexVersion = 1

// Stale reports whether the cached index no longer describes the given database state.
func (m ProfileIndexMetadata) Stale(count, maxID int64, lastUpdate time.Time) bool {
	return m.Version != profileIndexVersion ||
		m.ProfileCount != count ||
		m.MaxProfileID != maxID ||
		!m.LastUpdate.Equal(lastUpdate)
}

// ProfileIndex wraps an HNSW graph over enrolled face embeddings.
//
// Graph nodes are keyed by an internal sequence, not by profile ID. A replaced or
// deleted profile only loses its mapping; its node stays in the graph and is
// filtered out of search results.
type ProfileIndex struct {
	graph     *hnsw.Graph[int64]
	profiles  map[int64]*FaceProfile // node key -> profile
	nodeByReg map[string]int64       // regNo -> live node key
	nextKey   int64
	mu        sync.RWMutex
}

// NewProfileIndex creates a new empty index.
func NewProfileIndex() *ProfileIndex {
	return &ProfileIndex{
		profiles:  make(map[int64]*FaceProfile),
		nodeByReg: make(map[string]int64),
	}
}

func newProfileGraph() *hnsw.Graph[int64] {
	g := hnsw.NewGraph[int64]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors)
	g.EfSearch = HNSWEfSearch
	g.Distance = hnsw.CosineDistance
	return g
}

// Build replaces the index content with the given profiles.
func (x *ProfileIndex) Build(profiles []FaceProfile) {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.graph = nil
	x.profiles = make(map[int64]*FaceProfile, len(profiles))
	x.nodeByReg = make(map[string]int64, len(profiles))
	x.nextKey = 0

	for i := range profiles {
		x.addLocked(profiles[i])
	}
}

// Add inserts or replaces the profile of a student.
func (x *ProfileIndex) Add(p FaceProfile) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.addLocked(p)
}

func (x *ProfileIndex) addLocked(p FaceProfile) {
	if len(p.Embedding) == 0 {
		return
	}
	if old, ok := x.nodeByReg[p.RegNo]; ok {
		delete(x.profiles, old)
	}
	if x.graph == nil {
		x.graph = newProfileGraph()
	}

	x.nextKey++
	key := x.nextKey
	x.graph.Add(hnsw.MakeNode(key, p.Embedding))
	x.profiles[key] = &p
	x.nodeByReg[p.RegNo] = key
}

// Delete removes the profile of a student from search results.
func (x *ProfileIndex) Delete(regNo string) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if key, ok := x.nodeByReg[regNo]; ok {
		delete(x.profiles, key)
		delete(x.nodeByReg, regNo)
	}
}

// Count returns the number of live profiles.
func (x *ProfileIndex) Count() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.profiles)
}

// Search returns up to limit live profiles closer than maxDistance to query,
// ordered by ascending cosine distance.
func (x *ProfileIndex) Search(query []float32, limit int, maxDistance float64) ([]FaceProfile, []float64, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.graph == nil || len(x.profiles) == 0 {
		return nil, nil, nil
	}

	// Request more candidates to ensure we have enough after filtering.
	searchK := max(limit*HNSWSearchMultiplier, HNSWMinSearch)
	neighbors := x.graph.Search(query, searchK)

	results := make([]FaceProfile, 0, limit)
	distances := make([]float64, 0, limit)
	for _, n := range neighbors {
		p, ok := x.profiles[n.Key]
		if !ok {
			continue
		}
		d := CosineDistance(query, p.Embedding)
		if d >= maxDistance {
			continue
		}
		results = append(results, *p)
		distances = append(distances, d)
		if len(results) >= limit {
			break
		}
	}
	return results, distances, nil
}

// indexSnapshot is the gob payload stored next to the exported graph.
type indexSnapshot struct {
	Profiles map[int64]FaceProfile
	NextKey  int64
}

// Save writes the graph to path, the profile mapping to path+".profiles" and
// metadata to path+".meta".
func (x *ProfileIndex) Save(path string, metadata ProfileIndexMetadata) error {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.graph == nil {
		// Remove existing files if index is empty (best-effort cleanup).
		_ = os.Remove(path)
		_ = os.Remove(path + ".meta")
		_ = os.Remove(path + ".profiles")
		return nil
	}

	f, err := os.Create(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to create HNSW index file: %w", err)
	}
	if err := x.graph.Export(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to export HNSW graph: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close HNSW index file: %w", err)
	}

	snap := indexSnapshot{Profiles: make(map[int64]FaceProfile, len(x.profiles)), NextKey: x.nextKey}
	for k, p := range x.profiles {
		snap.Profiles[k] = *p
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return fmt.Errorf("failed to encode profiles: %w", err)
	}
	if err := os.WriteFile(path+".profiles", buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write profiles file: %w", err)
	}

	metadata.Version = profileIndexVersion
	metadata.BuildTime = time.Now()
	metaData, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(path+".meta", metaData, 0600); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}

	return nil
}

// LoadProfileIndexMetadata loads metadata from the .meta file next to path.
func LoadProfileIndexMetadata(path string) (ProfileIndexMetadata, error) {
	var metadata ProfileIndexMetadata

	data, err := os.ReadFile(path + ".meta") //nolint:gosec // path is from trusted config
	if err != nil {
		return metadata, fmt.Errorf("failed to read metadata file: %w", err)
	}
	if err := json.Unmarshal(data, &metadata); err != nil {
		return metadata, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return metadata, nil
}

// Load restores an index written by Save.
func (x *ProfileIndex) Load(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to open HNSW index: %w", err)
	}
	defer f.Close()

	g := newProfileGraph()
	if err := g.Import(f); err != nil {
		return fmt.Errorf("failed to import HNSW graph: %w", err)
	}

	data, err := os.ReadFile(path + ".profiles") //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to read profiles file: %w", err)
	}
	var snap indexSnapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return fmt.Errorf("failed to decode profiles: %w", err)
	}
	if len(snap.Profiles) == 0 {
		return errors.New("cached index has no profiles")
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	x.graph = g
	x.nextKey = snap.NextKey
	x.profiles = make(map[int64]*FaceProfile, len(snap.Profiles))
	x.nodeByReg = make(map[string]int64, len(snap.Profiles))
	for k, p := range snap.Profiles {
		x.profiles[k] = &p
		x.nodeByReg[p.RegNo] = k
	}
	return nil
}
