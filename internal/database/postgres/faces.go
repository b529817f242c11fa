package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kozaktomas/face-sorter/internal/database"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

// GetFace retrieves a face by id, returns nil if not found.
func (s *Store) GetFace(ctx context.Context, id int64) (*database.Face, error) {
	query := `
		SELECT id, image_id, embedding, bbox, det_score, person_id, origin,
		       created_at, assigned_at, image_path, image_width, image_height
		FROM faces
		WHERE id = $1
	`

	face, err := scanFaceRow(s.pool.QueryRow(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &face, nil
}

// ListFaces retrieves every stored face including embeddings.
func (s *Store) ListFaces(ctx context.Context) ([]database.Face, error) {
	query := `
		SELECT id, image_id, embedding, bbox, det_score, person_id, origin,
		       created_at, assigned_at, image_path, image_width, image_height
		FROM faces
		ORDER BY id
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query faces: %w", err)
	}
	defer rows.Close()

	return scanFaces(rows)
}

// ListFacesByPerson retrieves all faces owned by a person, newest first.
func (s *Store) ListFacesByPerson(ctx context.Context, personID int64) ([]database.Face, error) {
	query := `
		SELECT id, image_id, embedding, bbox, det_score, person_id, origin,
		       created_at, assigned_at, image_path, image_width, image_height
		FROM faces
		WHERE person_id = $1
		ORDER BY created_at DESC, id DESC
	`

	rows, err := s.pool.Query(ctx, query, personID)
	if err != nil {
		return nil, fmt.Errorf("query faces by person: %w", err)
	}
	defer rows.Close()

	return scanFaces(rows)
}

// CountFaces returns the total number of faces stored.
func (s *Store) CountFaces(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM faces").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count faces: %w", err)
	}
	return count, nil
}

// CountFacesByOrigin returns the number of faces with the given origin.
func (s *Store) CountFacesByOrigin(ctx context.Context, origin database.FaceOrigin) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM faces WHERE origin = $1", string(origin)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count faces by origin: %w", err)
	}
	return count, nil
}

// CountImages returns the number of distinct source images with faces.
func (s *Store) CountImages(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, "SELECT COUNT(DISTINCT image_id) FROM faces").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count images: %w", err)
	}
	return count, nil
}

// FindSimilarWithDistance finds faces within maxDistance (inclusive) of the
// query embedding, ordered by ascending distance. Uses the in-memory HNSW
// index if enabled, otherwise falls back to PostgreSQL.
func (s *Store) FindSimilarWithDistance(
	ctx context.Context, embedding []float32, limit int, maxDistance float64,
) ([]database.Face, []float64, error) {
	if idx := s.activeIndex(); idx != nil {
		return findSimilarWithDistanceHNSW(idx, embedding, limit, maxDistance)
	}
	return s.findSimilarWithDistancePostgres(ctx, embedding, limit, maxDistance)
}

// findSimilarWithDistanceHNSW uses the in-memory HNSW index for similarity search.
func findSimilarWithDistanceHNSW(
	idx *database.HNSWIndex, embedding []float32, limit int, maxDistance float64,
) ([]database.Face, []float64, error) {
	// Request more candidates to ensure we have enough after distance filtering.
	searchK := limit * database.HNSWSearchMultiplier
	searchK = max(searchK, 100)

	ids, distances, err := idx.Search(embedding, searchK)
	if err != nil {
		return nil, nil, fmt.Errorf("HNSW search: %w", err)
	}

	results := make([]database.Face, 0, limit)
	distancesOut := make([]float64, 0, limit)

	for i, id := range ids {
		if distances[i] > maxDistance {
			continue
		}
		face := idx.GetFace(id)
		if face == nil {
			continue
		}
		results = append(results, *face)
		distancesOut = append(distancesOut, distances[i])
		if len(results) >= limit {
			break
		}
	}

	return results, distancesOut, nil
}

// findSimilarWithDistancePostgres uses pgvector for similarity search with
// ef_search tuned to match the in-memory index configuration.
func (s *Store) findSimilarWithDistancePostgres(
	ctx context.Context, embedding []float32, limit int, maxDistance float64,
) ([]database.Face, []float64, error) {
	tx, err := s.pool.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL hnsw.ef_search = %d", database.HNSWEfSearch)); err != nil {
		return nil, nil, fmt.Errorf("set ef_search: %w", err)
	}

	query := `
		SELECT id, image_id, embedding, bbox, det_score, person_id, origin,
		       created_at, assigned_at, image_path, image_width, image_height,
		       embedding <-> $1::vector AS distance
		FROM faces
		WHERE embedding <-> $1::vector <= $2
		ORDER BY distance
		LIMIT $3
	`

	vec := pgvector.NewVector(embedding)
	rows, err := tx.QueryContext(ctx, query, vec, maxDistance, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("query similar faces: %w", err)
	}
	defer rows.Close()

	var faces []database.Face
	var distances []float64

	for rows.Next() {
		var dist float64
		face, err := scanFaceRow(rows, &dist)
		if err != nil {
			return nil, nil, err
		}
		faces = append(faces, face)
		distances = append(distances, dist)
	}

	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate faces: %w", err)
	}

	return faces, distances, nil
}

// CreateFace stores a new face and returns its id.
func (s *Store) CreateFace(ctx context.Context, face *database.Face) (int64, error) {
	now := time.Now().UTC()
	if face.CreatedAt.IsZero() {
		face.CreatedAt = now
	}
	if face.AssignedAt.IsZero() {
		face.AssignedAt = now
	}

	var imagePath sql.NullString
	if face.ImagePath != "" {
		imagePath = sql.NullString{String: face.ImagePath, Valid: true}
	}
	var imageWidth, imageHeight sql.NullInt32
	if face.ImageWidth > 0 {
		imageWidth = sql.NullInt32{Int32: int32(face.ImageWidth), Valid: true}
	}
	if face.ImageHeight > 0 {
		imageHeight = sql.NullInt32{Int32: int32(face.ImageHeight), Valid: true}
	}

	var newID int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO faces (image_id, embedding, bbox, det_score, person_id, origin,
		                   created_at, assigned_at, image_path, image_width, image_height)
		VALUES ($1, $2::vector, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`,
		face.ImageID,
		pgvector.NewVector(face.Embedding),
		pq.Array(face.BBox),
		face.DetScore,
		face.PersonID,
		string(face.Origin),
		face.CreatedAt,
		face.AssignedAt,
		imagePath,
		imageWidth,
		imageHeight,
	).Scan(&newID)
	if err != nil {
		return 0, fmt.Errorf("insert face: %w", err)
	}

	face.ID = newID

	if idx := s.activeIndex(); idx != nil {
		indexed := *face
		if err := idx.Add(&indexed); err != nil {
			log.Warnf("postgres: failed to index face %d: %v", newID, err)
		}
	}

	return newID, nil
}

// UpdateFaceOwner moves a face to another person and records how the
// assignment happened. Updating an unknown face is a no-op.
func (s *Store) UpdateFaceOwner(ctx context.Context, faceID, personID int64, origin database.FaceOrigin) error {
	query := `
		UPDATE faces SET person_id = $1, origin = $2, assigned_at = NOW()
		WHERE id = $3
	`

	if _, err := s.pool.Exec(ctx, query, personID, string(origin), faceID); err != nil {
		return fmt.Errorf("update face owner: %w", err)
	}

	if idx := s.activeIndex(); idx != nil {
		idx.UpdateFaceOwner(faceID, personID, origin)
	}

	return nil
}

// DeleteFace removes a face by id. Deleting an unknown id is a no-op.
func (s *Store) DeleteFace(ctx context.Context, faceID int64) error {
	if _, err := s.pool.Exec(ctx, "DELETE FROM faces WHERE id = $1", faceID); err != nil {
		return fmt.Errorf("delete face: %w", err)
	}

	if idx := s.activeIndex(); idx != nil {
		idx.Delete(faceID)
	}

	return nil
}

// scanFaceRow scans a single row into a Face, with optional extra scan
// destinations appended after the standard face columns (e.g. a distance).
func scanFaceRow(scanner interface{ Scan(...any) error }, extraDest ...any) (database.Face, error) {
	var face database.Face
	var vec pgvector.Vector
	var bbox pq.Float64Array
	var origin string
	var imagePath sql.NullString
	var imageWidth, imageHeight sql.NullInt32

	dest := make([]any, 0, 12+len(extraDest))
	dest = append(dest,
		&face.ID,
		&face.ImageID,
		&vec,
		&bbox,
		&face.DetScore,
		&face.PersonID,
		&origin,
		&face.CreatedAt,
		&face.AssignedAt,
		&imagePath,
		&imageWidth,
		&imageHeight,
	)
	dest = append(dest, extraDest...)

	if err := scanner.Scan(dest...); err != nil {
		if err == sql.ErrNoRows {
			return face, err
		}
		return face, fmt.Errorf("scan face: %w", err)
	}

	face.Embedding = vec.Slice()
	face.BBox = []float64(bbox)
	face.Origin = database.FaceOrigin(origin)
	if imagePath.Valid {
		face.ImagePath = imagePath.String
	}
	if imageWidth.Valid {
		face.ImageWidth = int(imageWidth.Int32)
	}
	if imageHeight.Valid {
		face.ImageHeight = int(imageHeight.Int32)
	}

	return face, nil
}

func scanFaces(rows *sql.Rows) ([]database.Face, error) {
	var faces []database.Face
	for rows.Next() {
		face, err := scanFaceRow(rows)
		if err != nil {
			return nil, err
		}
		faces = append(faces, face)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate faces: %w", err)
	}
	return faces, nil
}
