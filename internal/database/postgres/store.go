package postgres

import (
	"context"
	"fmt"
	"sync"

	"github.com/kozaktomas/face-sorter/internal/database"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

var log = logrus.StandardLogger()

// Store provides PostgreSQL-backed face and person storage with an optional
// in-memory HNSW index over face embeddings.
type Store struct {
	pool          *Pool
	hnswIndex     *database.HNSWIndex
	hnswEnabled   bool
	hnswIndexPath string // Path to persist HNSW index (optional)
	hnswMu        sync.RWMutex
}

// NewStore creates a new PostgreSQL store.
func NewStore(pool *Pool) *Store {
	return &Store{pool: pool}
}

// ApplyRecluster commits a complete re-clustering outcome in a single
// transaction: create plan.NewPersons, execute plan.Moves, delete
// plan.DeletePersonIDs. The faces.person_id foreign key guarantees a delete
// of a person that still owns faces rolls the whole plan back.
func (s *Store) ApplyRecluster(ctx context.Context, plan *database.ReclusterPlan) error {
	tx, err := s.pool.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	createdIDs := make([]int64, len(plan.NewPersons))
	for i := range plan.NewPersons {
		p := &plan.NewPersons[i]
		err := tx.QueryRowContext(ctx, `
			INSERT INTO persons (name, created_at, updated_at)
			VALUES ($1, NOW(), NOW())
			RETURNING id
		`, p.Name).Scan(&createdIDs[i])
		if err != nil {
			return fmt.Errorf("insert person %q: %w", p.Name, err)
		}
	}

	for _, m := range plan.Moves {
		target := m.PersonID
		if m.NewPersonIdx >= 0 {
			if m.NewPersonIdx >= len(createdIDs) {
				return fmt.Errorf("recluster move for face %d references person index %d out of range", m.FaceID, m.NewPersonIdx)
			}
			target = createdIDs[m.NewPersonIdx]
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE faces SET person_id = $1, origin = $2, assigned_at = NOW()
			WHERE id = $3
		`, target, string(m.Origin), m.FaceID)
		if err != nil {
			return fmt.Errorf("move face %d: %w", m.FaceID, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("move face %d: %w", m.FaceID, err)
		}
		if affected == 0 {
			return fmt.Errorf("recluster plan moves unknown face %d", m.FaceID)
		}
	}

	if len(plan.DeletePersonIDs) > 0 {
		if _, err := tx.ExecContext(
			ctx, "DELETE FROM persons WHERE id = ANY($1)", pq.Array(plan.DeletePersonIDs),
		); err != nil {
			return fmt.Errorf("delete superseded persons: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	// Keep the in-memory index in sync with the committed moves.
	if idx := s.activeIndex(); idx != nil {
		for _, m := range plan.Moves {
			target := m.PersonID
			if m.NewPersonIdx >= 0 {
				target = createdIDs[m.NewPersonIdx]
			}
			idx.UpdateFaceOwner(m.FaceID, target, m.Origin)
		}
	}

	return nil
}

// activeIndex returns the HNSW index if enabled, nil otherwise.
func (s *Store) activeIndex() *database.HNSWIndex {
	s.hnswMu.RLock()
	defer s.hnswMu.RUnlock()
	if !s.hnswEnabled {
		return nil
	}
	return s.hnswIndex
}

// tryLoadFaceIndex attempts to load the face HNSW index from disk.
// Returns true if the index was loaded and matches current database state.
func (s *Store) tryLoadFaceIndex(indexPath string, dbFaceCount, dbMaxFaceID int64) bool {
	metadata, err := database.LoadHNSWMetadata(indexPath)
	if err != nil {
		log.Debugf("postgres: face index metadata unavailable: %v (will rebuild)", err)
		return false
	}
	if metadata.FaceCount != dbFaceCount || metadata.MaxFaceID != dbMaxFaceID {
		log.Infof("postgres: face index stale (db count=%d max_id=%d, cached count=%d max_id=%d), rebuilding",
			dbFaceCount, dbMaxFaceID, metadata.FaceCount, metadata.MaxFaceID)
		return false
	}

	s.hnswIndex = database.NewHNSWIndex()
	if err := s.hnswIndex.LoadWithFaceMetadata(indexPath); err != nil {
		log.Warnf("postgres: failed to load face index: %v (will rebuild)", err)
		return false
	}
	if s.hnswIndex.IsEmpty() {
		log.Infof("postgres: loaded face index is empty, rebuilding")
		return false
	}

	log.Infof("postgres: face index loaded from %s (%d faces)", indexPath, s.hnswIndex.Count())
	return true
}

// EnableHNSW loads or builds an in-memory HNSW index for O(log N) similarity
// search. If indexPath is provided, it tries to load from disk first and
// saves after building. This should be called once at startup.
func (s *Store) EnableHNSW(ctx context.Context, indexPath string) error {
	s.hnswMu.Lock()
	defer s.hnswMu.Unlock()

	s.hnswIndexPath = indexPath

	var dbFaceCount, dbMaxFaceID int64
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*), COALESCE(MAX(id), 0) FROM faces").Scan(&dbFaceCount, &dbMaxFaceID)
	if err != nil {
		return fmt.Errorf("failed to get face stats: %w", err)
	}

	if indexPath != "" && s.tryLoadFaceIndex(indexPath, dbFaceCount, dbMaxFaceID) {
		s.hnswEnabled = true
		return nil
	}

	faces, err := s.ListFaces(ctx)
	if err != nil {
		return fmt.Errorf("failed to load faces: %w", err)
	}

	s.hnswIndex = database.NewHNSWIndex()
	if err := s.hnswIndex.BuildFromFaces(faces); err != nil {
		return fmt.Errorf("failed to build HNSW index: %w", err)
	}

	if indexPath != "" && len(faces) > 0 {
		metadata := database.HNSWIndexMetadata{FaceCount: dbFaceCount, MaxFaceID: dbMaxFaceID}
		if err := s.hnswIndex.SaveWithFaceMetadata(indexPath, metadata); err != nil {
			log.Warnf("postgres: failed to save face index to disk: %v", err)
		}
	}

	s.hnswEnabled = true
	return nil
}

// DisableHNSW disables the in-memory HNSW index, falling back to SQL queries.
func (s *Store) DisableHNSW() {
	s.hnswMu.Lock()
	defer s.hnswMu.Unlock()
	s.hnswEnabled = false
	s.hnswIndex = nil
}

// IsHNSWEnabled returns whether the in-memory HNSW index is enabled.
func (s *Store) IsHNSWEnabled() bool {
	return s.activeIndex() != nil
}

// HNSWCount returns the number of faces in the HNSW index.
func (s *Store) HNSWCount() int {
	s.hnswMu.RLock()
	defer s.hnswMu.RUnlock()
	if s.hnswIndex == nil {
		return 0
	}
	return s.hnswIndex.Count()
}

// RebuildHNSW rebuilds the HNSW index from PostgreSQL data.
func (s *Store) RebuildHNSW(ctx context.Context) error {
	s.hnswMu.RLock()
	indexPath := s.hnswIndexPath
	s.hnswMu.RUnlock()
	return s.EnableHNSW(ctx, indexPath)
}

// SaveHNSWIndex saves the current HNSW index to disk (if path configured).
func (s *Store) SaveHNSWIndex() error {
	s.hnswMu.RLock()
	defer s.hnswMu.RUnlock()

	if s.hnswIndexPath == "" || s.hnswIndex == nil {
		return nil
	}

	var faceCount, maxFaceID int64
	err := s.pool.QueryRow(
		context.Background(), "SELECT COUNT(*), COALESCE(MAX(id), 0) FROM faces",
	).Scan(&faceCount, &maxFaceID)
	if err != nil {
		return fmt.Errorf("failed to get face stats: %w", err)
	}

	metadata := database.HNSWIndexMetadata{
		FaceCount: faceCount,
		MaxFaceID: maxFaceID,
	}

	if err := s.hnswIndex.SaveWithFaceMetadata(s.hnswIndexPath, metadata); err != nil {
		return fmt.Errorf("saving HNSW face index: %w", err)
	}

	log.Infof("postgres: face index saved to %s (count=%d, max_id=%d)", s.hnswIndexPath, faceCount, maxFaceID)
	return nil
}

// Verify interface compliance.
var _ database.Store = (*Store)(nil)
var _ database.HNSWRebuilder = (*Store)(nil)
