package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kozaktomas/face-sorter/internal/database"
	"github.com/kozaktomas/face-sorter/internal/facematch"
)

// GetPerson retrieves a person by id with its face count populated,
// returns nil if not found.
func (s *Store) GetPerson(ctx context.Context, id int64) (*database.Person, error) {
	query := `
		SELECT p.id, p.name, p.created_at, p.updated_at, COUNT(f.id)
		FROM persons p
		LEFT JOIN faces f ON f.person_id = p.id
		WHERE p.id = $1
		GROUP BY p.id
	`

	var person database.Person
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&person.ID,
		&person.Name,
		&person.CreatedAt,
		&person.UpdatedAt,
		&person.FaceCount,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get person: %w", err)
	}
	return &person, nil
}

// GetPersonByName retrieves a person by name, returns nil if not found.
// Names are normalized on both sides (lowercase, no diacritics, dashes to
// spaces) so "jan-novak" matches "Jan Novák".
func (s *Store) GetPersonByName(ctx context.Context, name string) (*database.Person, error) {
	normalized := facematch.NormalizePersonName(name)

	// LOWER + unaccent + REPLACE mirrors the Go-side normalization.
	query := `
		SELECT p.id, p.name, p.created_at, p.updated_at, COUNT(f.id)
		FROM persons p
		LEFT JOIN faces f ON f.person_id = p.id
		WHERE LOWER(REPLACE(unaccent(p.name), '-', ' ')) = $1
		GROUP BY p.id
		ORDER BY p.id
		LIMIT 1
	`

	var person database.Person
	err := s.pool.QueryRow(ctx, query, normalized).Scan(
		&person.ID,
		&person.Name,
		&person.CreatedAt,
		&person.UpdatedAt,
		&person.FaceCount,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get person by name: %w", err)
	}
	return &person, nil
}

// ListPersons retrieves all persons with face counts populated,
// sorted by normalized name.
func (s *Store) ListPersons(ctx context.Context) ([]database.Person, error) {
	query := `
		SELECT p.id, p.name, p.created_at, p.updated_at, COUNT(f.id)
		FROM persons p
		LEFT JOIN faces f ON f.person_id = p.id
		GROUP BY p.id
		ORDER BY LOWER(REPLACE(unaccent(p.name), '-', ' ')), p.id
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query persons: %w", err)
	}
	defer rows.Close()

	var persons []database.Person
	for rows.Next() {
		var person database.Person
		if err := rows.Scan(
			&person.ID,
			&person.Name,
			&person.CreatedAt,
			&person.UpdatedAt,
			&person.FaceCount,
		); err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		persons = append(persons, person)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate persons: %w", err)
	}
	return persons, nil
}

// CountPersons returns the total number of persons.
func (s *Store) CountPersons(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM persons").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count persons: %w", err)
	}
	return count, nil
}

// CreatePerson stores a new person and returns its id.
func (s *Store) CreatePerson(ctx context.Context, person *database.Person) (int64, error) {
	now := time.Now().UTC()
	if person.CreatedAt.IsZero() {
		person.CreatedAt = now
	}
	if person.UpdatedAt.IsZero() {
		person.UpdatedAt = now
	}

	var newID int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO persons (name, created_at, updated_at)
		VALUES ($1, $2, $3)
		RETURNING id
	`, person.Name, person.CreatedAt, person.UpdatedAt).Scan(&newID)
	if err != nil {
		return 0, fmt.Errorf("insert person: %w", err)
	}

	person.ID = newID
	return newID, nil
}

// RenamePerson updates a person's name. Renaming an unknown id is a no-op.
func (s *Store) RenamePerson(ctx context.Context, id int64, name string) error {
	query := "UPDATE persons SET name = $1, updated_at = NOW() WHERE id = $2"
	if _, err := s.pool.Exec(ctx, query, name, id); err != nil {
		return fmt.Errorf("rename person: %w", err)
	}
	return nil
}

// DeletePerson removes a person. The foreign key on faces.person_id rejects
// the delete while the person still owns faces.
func (s *Store) DeletePerson(ctx context.Context, id int64) error {
	if _, err := s.pool.Exec(ctx, "DELETE FROM persons WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete person: %w", err)
	}
	return nil
}
