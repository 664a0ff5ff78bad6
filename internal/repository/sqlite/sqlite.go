package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"schemascope/internal/domain"

	_ "modernc.org/sqlite"
)

// Repository implements repository.MetadataStore using SQLite.
type Repository struct {
	db *sql.DB
}

// New creates a new SQLite repository at the given path.
func New(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	repo := &Repository{db: db}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return repo, nil
}

func (r *Repository) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS entity_descriptions (
		api_version TEXT NOT NULL,
		name TEXT NOT NULL,
		label TEXT NOT NULL,
		custom INTEGER NOT NULL DEFAULT 0,
		data JSON NOT NULL,
		fetched_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (api_version, name)
	);

	CREATE INDEX IF NOT EXISTS idx_entity_descriptions_version ON entity_descriptions(api_version);
	`

	_, err := r.db.Exec(schema)
	return err
}

// SaveDescription upserts one entity description under an API version.
func (r *Repository) SaveDescription(ctx context.Context, apiVersion string, desc *domain.EntityDescription) error {
	data, err := json.Marshal(desc)
	if err != nil {
		return fmt.Errorf("failed to marshal description: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO entity_descriptions (api_version, name, label, custom, data, fetched_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(api_version, name) DO UPDATE SET
			label = excluded.label,
			custom = excluded.custom,
			data = excluded.data,
			fetched_at = CURRENT_TIMESTAMP
	`, apiVersion, desc.Name, desc.Label, boolToInt(desc.Custom), data)
	if err != nil {
		return fmt.Errorf("failed to save description %s: %w", desc.Name, err)
	}
	return nil
}

// LoadDescriptions returns every description stored for an API version.
func (r *Repository) LoadDescriptions(ctx context.Context, apiVersion string) ([]*domain.EntityDescription, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT name, data FROM entity_descriptions
		WHERE api_version = ?
		ORDER BY name
	`, apiVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to query descriptions: %w", err)
	}
	defer rows.Close()

	var descs []*domain.EntityDescription
	for rows.Next() {
		var (
			name string
			data []byte
		)
		if err := rows.Scan(&name, &data); err != nil {
			return nil, fmt.Errorf("failed to scan description: %w", err)
		}

		desc := &domain.EntityDescription{}
		if err := json.Unmarshal(data, desc); err != nil {
			return nil, fmt.Errorf("failed to unmarshal description %s: %w", name, err)
		}
		// The indexed column is the source of truth for the key.
		desc.Name = name
		descs = append(descs, desc)
	}

	return descs, rows.Err()
}

// DeleteVersion drops all descriptions stored for an API version.
func (r *Repository) DeleteVersion(ctx context.Context, apiVersion string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM entity_descriptions WHERE api_version = ?
	`, apiVersion)
	if err != nil {
		return fmt.Errorf("failed to delete version %s: %w", apiVersion, err)
	}
	return nil
}

// Versions lists the API versions with stored descriptions.
func (r *Repository) Versions(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT api_version FROM entity_descriptions ORDER BY api_version
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query versions: %w", err)
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// Close releases the underlying database handle.
func (r *Repository) Close() error {
	return r.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
