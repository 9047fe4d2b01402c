package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

var (
	// ErrNotFound is returned when a requested resource does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateName is returned when a preset name is already taken.
	ErrDuplicateName = errors.New("preset name already exists")
)

// Preset is a saved export of selected landmark indices.
type Preset struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Indices   []int     `json:"indices"`
	MeshSize  int       `json:"mesh_size"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PresetRepository provides CRUD operations for presets.
type PresetRepository struct {
	db *sql.DB
}

// Presets returns the preset repository for this store.
func (s *Store) Presets() *PresetRepository {
	return &PresetRepository{db: s.db}
}

// encodeIndices sorts indices and drops duplicates before encoding.
func encodeIndices(indices []int) (string, []int, error) {
	sorted := make([]int, len(indices))
	copy(sorted, indices)
	sort.Ints(sorted)
	sorted = slices.Compact(sorted)

	data, err := json.Marshal(sorted)
	if err != nil {
		return "", nil, err
	}
	return string(data), sorted, nil
}

func decodeIndices(raw string) ([]int, error) {
	indices := []int{}
	if err := json.Unmarshal([]byte(raw), &indices); err != nil {
		return nil, fmt.Errorf("corrupt preset indices: %w", err)
	}
	return indices, nil
}

// NormalizeName trims a preset name, collapses inner whitespace and composes
// it to NFC, so names that render the same compare equal.
func NormalizeName(name string) string {
	return norm.NFC.String(strings.Join(strings.Fields(name), " "))
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Create inserts a new preset into the database. Indices are stored sorted
// and without duplicates.
func (r *PresetRepository) Create(p *Preset) error {
	raw, sorted, err := encodeIndices(p.Indices)
	if err != nil {
		return err
	}

	p.Name = NormalizeName(p.Name)
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now
	p.Indices = sorted

	_, err = r.db.Exec(
		`INSERT INTO presets (id, name, indices, mesh_size, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, raw, p.MeshSize, p.CreatedAt, p.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateName
	}
	return err
}

// GetByID retrieves a preset by its ID.
func (r *PresetRepository) GetByID(id string) (*Preset, error) {
	return r.getOne(`SELECT id, name, indices, mesh_size, created_at, updated_at
		 FROM presets WHERE id = ?`, id)
}

// GetByName retrieves a preset by its name.
func (r *PresetRepository) GetByName(name string) (*Preset, error) {
	return r.getOne(`SELECT id, name, indices, mesh_size, created_at, updated_at
		 FROM presets WHERE name = ?`, NormalizeName(name))
}

func (r *PresetRepository) getOne(query string, arg string) (*Preset, error) {
	p := &Preset{}
	var raw string

	err := r.db.QueryRow(query, arg).
		Scan(&p.ID, &p.Name, &raw, &p.MeshSize, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if p.Indices, err = decodeIndices(raw); err != nil {
		return nil, err
	}
	return p, nil
}

// List retrieves all presets, newest first.
func (r *PresetRepository) List() ([]*Preset, error) {
	rows, err := r.db.Query(
		`SELECT id, name, indices, mesh_size, created_at, updated_at
		 FROM presets ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	presets := []*Preset{}
	for rows.Next() {
		p := &Preset{}
		var raw string

		if err := rows.Scan(&p.ID, &p.Name, &raw, &p.MeshSize, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		if p.Indices, err = decodeIndices(raw); err != nil {
			return nil, err
		}
		presets = append(presets, p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return presets, nil
}

// Update replaces a preset's name and indices.
func (r *PresetRepository) Update(p *Preset) error {
	raw, sorted, err := encodeIndices(p.Indices)
	if err != nil {
		return err
	}
	p.Indices = sorted
	p.Name = NormalizeName(p.Name)
	p.UpdatedAt = time.Now()

	result, err := r.db.Exec(
		`UPDATE presets SET name = ?, indices = ?, mesh_size = ?, updated_at = ?
		 WHERE id = ?`,
		p.Name, raw, p.MeshSize, p.UpdatedAt, p.ID,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateName
	}
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// Delete removes a preset from the database by its ID.
func (r *PresetRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM presets WHERE id = ?`, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}
