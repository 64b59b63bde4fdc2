package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/cognicore/semnorm/pkg/semnorm/entity"
	"github.com/cognicore/semnorm/pkg/semnorm/internalerr"
	"github.com/cognicore/semnorm/pkg/semnorm/store"
)

// Store implements store.DimensionStore on SQLite.
type Store struct {
	db *sql.DB
}

// Open opens a SQLite database with WAL mode enabled and creates the schema
// if needed.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", internalerr.ErrStoreUnavailable, err)
	}
	// one writer at a time; SQLite rejects concurrent write transactions
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %w", internalerr.ErrStoreUnavailable, err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %w", internalerr.ErrStoreUnavailable, err)
	}
	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: init schema: %w", internalerr.ErrStoreUnavailable, err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS entities (
	id TEXT PRIMARY KEY,
	entity_type TEXT NOT NULL,
	region_id TEXT NOT NULL DEFAULT '',
	canonical_name TEXT NOT NULL,
	normalized_name TEXT NOT NULL,
	provenance TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS entity_source_ids (
	entity_id TEXT NOT NULL,
	source_id TEXT NOT NULL,
	PRIMARY KEY(entity_id, source_id),
	FOREIGN KEY(entity_id) REFERENCES entities(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_entities_region ON entities(region_id, entity_type);
CREATE INDEX IF NOT EXISTS idx_entities_name ON entities(entity_type, normalized_name);
`
	_, err := db.ExecContext(ctx, schema)
	return err
}

// InsertEntity implements store.DimensionStore.
func (s *Store) InsertEntity(ctx context.Context, r entity.Record) error {
	if err := store.Validate(r); err != nil {
		return err
	}
	r = store.Prepare(r)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM entities WHERE id=?)`, r.ID).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: entity %s", internalerr.ErrDuplicate, r.ID)
	}

	const stmt = `
INSERT INTO entities (id, entity_type, region_id, canonical_name, normalized_name, provenance)
VALUES (?, ?, ?, ?, ?, ?)
`
	if _, err := tx.ExecContext(ctx, stmt,
		r.ID, string(r.Type), r.RegionID, r.CanonicalName, r.NormalizedName, r.Provenance,
	); err != nil {
		return err
	}
	if err := insertSourceIDs(ctx, tx, r.ID, r.SourceIDs); err != nil {
		return err
	}
	return tx.Commit()
}

func insertSourceIDs(ctx context.Context, tx *sql.Tx, entityID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO entity_source_ids (entity_id, source_id) VALUES (?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, entityID, id); err != nil {
			return err
		}
	}
	return nil
}

// globalTypes lists the entity types shared by every region.
func globalTypes() []any {
	var out []any
	for _, t := range entity.Types {
		if !t.RegionScoped() {
			out = append(out, string(t))
		}
	}
	return out
}

// Snapshot implements store.DimensionStore.
func (s *Store) Snapshot(ctx context.Context, regionID string) ([]entity.Record, error) {
	globals := globalTypes()
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(globals)), ",")
	query := `
SELECT e.id, e.entity_type, e.region_id, e.canonical_name, e.normalized_name, e.provenance, s.source_id
FROM entities e
LEFT JOIN entity_source_ids s ON s.entity_id = e.id
WHERE e.region_id = ? OR e.region_id = '' OR e.entity_type IN (` + placeholders + `)
ORDER BY e.id, s.source_id
`
	args := append([]any{regionID}, globals...)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []entity.Record
	for rows.Next() {
		var (
			r        entity.Record
			typ      string
			sourceID sql.NullString
		)
		if err := rows.Scan(&r.ID, &typ, &r.RegionID, &r.CanonicalName, &r.NormalizedName, &r.Provenance, &sourceID); err != nil {
			return nil, err
		}
		r.Type = entity.Type(typ)
		if n := len(out); n > 0 && out[n-1].ID == r.ID {
			if sourceID.Valid {
				out[n-1].SourceIDs = append(out[n-1].SourceIDs, sourceID.String)
			}
			continue
		}
		if sourceID.Valid {
			r.SourceIDs = []string{sourceID.String}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if out == nil {
		out = []entity.Record{}
	}
	return out, nil
}

// Count returns the number of stored entities.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities`).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return n, err
}
