package mariadb

import (
	"context"
	"fmt"
)

// FaceMarker is a named face region from a legacy PhotoPrism library.
// X, Y, W, H are relative [0-1] coordinates of the top-left corner plus size.
type FaceMarker struct {
	MarkerUID string
	FileUID   string
	PhotoUID  string
	FileName  string
	Name      string
	SubjSrc   string // "manual" when the user confirmed the assignment
	X         float64
	Y         float64
	W         float64
	H         float64
}

// IsManual reports whether the marker's subject was confirmed by a user.
func (m *FaceMarker) IsManual() bool {
	return m.SubjSrc == "manual"
}

// ListFaceMarkers returns all named, valid face markers joined with their
// source file so they can be matched against stored faces by image reference.
func (p *Pool) ListFaceMarkers(ctx context.Context) ([]FaceMarker, error) {
	query := `
		SELECT m.marker_uid, m.file_uid, f.photo_uid, f.file_name,
		       m.marker_name, m.subj_src, m.x, m.y, m.w, m.h
		FROM markers m
		JOIN files f ON f.file_uid = m.file_uid
		WHERE m.marker_type = 'face'
		  AND m.marker_invalid = 0
		  AND m.marker_name != ''
		ORDER BY f.photo_uid, m.marker_uid
	`

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query face markers: %w", err)
	}
	defer rows.Close()

	var markers []FaceMarker
	for rows.Next() {
		var m FaceMarker
		if err := rows.Scan(
			&m.MarkerUID,
			&m.FileUID,
			&m.PhotoUID,
			&m.FileName,
			&m.Name,
			&m.SubjSrc,
			&m.X,
			&m.Y,
			&m.W,
			&m.H,
		); err != nil {
			return nil, fmt.Errorf("scan marker: %w", err)
		}
		markers = append(markers, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate markers: %w", err)
	}

	return markers, nil
}

// CountFaceMarkers returns the number of named, valid face markers.
func (p *Pool) CountFaceMarkers(ctx context.Context) (int, error) {
	var count int
	err := p.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM markers
		WHERE marker_type = 'face' AND marker_invalid = 0 AND marker_name != ''
	`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count face markers: %w", err)
	}
	return count, nil
}
