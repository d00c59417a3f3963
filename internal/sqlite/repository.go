package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pavel-fokin/media-replace/internal/media"
	_ "modernc.org/sqlite"
)

// Repository implements media.Repository using SQLite
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new SQLite repository
func NewRepository(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps writers from tripping over SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	repo := &Repository{db: db}

	if err := repo.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return repo, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

// initSchema creates and migrates the media table
func (r *Repository) initSchema() error {
	createTableQuery := `
	CREATE TABLE IF NOT EXISTS media (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		file_path TEXT NOT NULL,
		mime_type TEXT NOT NULL,
		width INTEGER NOT NULL DEFAULT 0,
		height INTEGER NOT NULL DEFAULT 0,
		renditions TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);`
	if _, err := r.db.Exec(createTableQuery); err != nil {
		return fmt.Errorf("failed to create media table: %w", err)
	}

	// original_file arrived after the first schema; add it if missing.
	alterTableQuery := `ALTER TABLE media ADD COLUMN original_file TEXT;`
	if _, err := r.db.Exec(alterTableQuery); err != nil {
		if !strings.Contains(err.Error(), "duplicate column name") {
			return fmt.Errorf("failed to add original_file column: %w", err)
		}
	}

	if _, err := r.db.Exec(`CREATE INDEX IF NOT EXISTS idx_media_file_path ON media(file_path);`); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

// Create stores a new record and assigns its id
func (r *Repository) Create(ctx context.Context, record *media.Record) error {
	renditions, err := encodeRenditions(record.Renditions)
	if err != nil {
		return err
	}

	query := `
	INSERT INTO media (file_path, mime_type, width, height, original_file, renditions, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.ExecContext(ctx, query,
		record.FilePath,
		record.MimeType,
		record.Width,
		record.Height,
		nullString(record.OriginalFile),
		renditions,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create media record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get record id: %w", err)
	}
	record.ID = id

	return nil
}

// FindByID retrieves a record by id
func (r *Repository) FindByID(ctx context.Context, id int64) (*media.Record, error) {
	query := `
	SELECT id, file_path, mime_type, width, height, original_file, renditions, created_at, updated_at
	FROM media
	WHERE id = ?
	`

	record, err := scanRecord(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("media %d: %w", id, media.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find media record: %w", err)
	}

	return record, nil
}

// FindByPath retrieves the record whose primary file is path
func (r *Repository) FindByPath(ctx context.Context, path string) (*media.Record, error) {
	query := `
	SELECT id, file_path, mime_type, width, height, original_file, renditions, created_at, updated_at
	FROM media
	WHERE file_path = ?
	ORDER BY id
	LIMIT 1
	`

	record, err := scanRecord(r.db.QueryRowContext(ctx, query, path))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("media at %s: %w", path, media.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find media record: %w", err)
	}

	return record, nil
}

// List retrieves all records, newest first
func (r *Repository) List(ctx context.Context) ([]*media.Record, error) {
	query := `
	SELECT id, file_path, mime_type, width, height, original_file, renditions, created_at, updated_at
	FROM media
	ORDER BY created_at DESC, id DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query media: %w", err)
	}
	defer rows.Close()

	var records []*media.Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan media row: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating media rows: %w", err)
	}

	return records, nil
}

// Update replaces the file path, dimensions and rendition mapping of a
// record. The id and MIME type are never written.
func (r *Repository) Update(ctx context.Context, record *media.Record) error {
	renditions, err := encodeRenditions(record.Renditions)
	if err != nil {
		return err
	}

	query := `
	UPDATE media
	SET file_path = ?, width = ?, height = ?, original_file = ?, renditions = ?, updated_at = ?
	WHERE id = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		record.FilePath,
		record.Width,
		record.Height,
		nullString(record.OriginalFile),
		renditions,
		record.UpdatedAt,
		record.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update media record: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("media %d: %w", record.ID, media.ErrNotFound)
	}

	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*media.Record, error) {
	var record media.Record
	var originalFile sql.NullString
	var renditions string
	err := row.Scan(
		&record.ID,
		&record.FilePath,
		&record.MimeType,
		&record.Width,
		&record.Height,
		&originalFile,
		&renditions,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if originalFile.Valid {
		record.OriginalFile = originalFile.String
	}

	record.Renditions = map[string]media.Rendition{}
	if err := json.Unmarshal([]byte(renditions), &record.Renditions); err != nil {
		return nil, fmt.Errorf("failed to decode renditions: %w", err)
	}

	return &record, nil
}

func encodeRenditions(renditions map[string]media.Rendition) (string, error) {
	if renditions == nil {
		return "{}", nil
	}
	data, err := json.Marshal(renditions)
	if err != nil {
		return "", fmt.Errorf("failed to encode renditions: %w", err)
	}
	return string(data), nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
