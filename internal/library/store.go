package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"harvest/internal/config"
)

// ErrDuplicateFingerprint indicates the catalog already holds content with
// the same fingerprint.
var ErrDuplicateFingerprint = errors.New("fingerprint already cataloged")

// ErrFileNotFound indicates the referenced catalog row does not exist.
var ErrFileNotFound = errors.New("library file not found")

// Store manages the library catalog backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the library database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.DataDir, "library.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the location of the library database file.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const fileColumns = "id, filename, file_path, mime_type, source_type, fingerprint, metadata_json, indexed, created_at, updated_at"

func scanFile(scanner interface{ Scan(dest ...any) error }) (*File, error) {
	var (
		id         int64
		filename   string
		filePath   sql.NullString
		mimeType   sql.NullString
		sourceType string
		fp         string
		metadata   sql.NullString
		indexed    int
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(&id, &filename, &filePath, &mimeType, &sourceType, &fp, &metadata, &indexed, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	file := &File{
		ID:           id,
		Filename:     filename,
		FilePath:     filePath.String,
		MimeType:     mimeType.String,
		SourceType:   SourceType(sourceType),
		Fingerprint:  fp,
		MetadataJSON: metadata.String,
		Indexed:      indexed != 0,
	}
	if created, err := time.Parse(time.RFC3339Nano, createdRaw); err == nil {
		file.CreatedAt = created
	}
	if updated, err := time.Parse(time.RFC3339Nano, updatedRaw); err == nil {
		file.UpdatedAt = updated
	}
	return file, nil
}

func nullable(value string) any {
	if value == "" {
		return nil
	}
	return value
}

// CreateFile inserts a catalog row. Returns ErrDuplicateFingerprint when the
// fingerprint is already present.
func (s *Store) CreateFile(ctx context.Context, file *File) (*File, error) {
	if file == nil {
		return nil, errors.New("file is nil")
	}
	if file.Filename == "" {
		return nil, errors.New("filename is empty")
	}
	if file.Fingerprint == "" {
		return nil, errors.New("fingerprint is empty")
	}
	sourceType := file.SourceType
	if sourceType == "" {
		sourceType = SourceIngest
	}

	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO library_files (
            filename, file_path, mime_type, source_type, fingerprint,
            metadata_json, indexed, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		file.Filename,
		nullable(file.FilePath),
		nullable(file.MimeType),
		string(sourceType),
		file.Fingerprint,
		nullable(file.MetadataJSON),
		boolToInt(file.Indexed),
		timestamp,
		timestamp,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, ErrDuplicateFingerprint
		}
		return nil, fmt.Errorf("insert library file: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID fetches a catalog row by identifier. Returns nil when no row matches.
func (s *Store) GetByID(ctx context.Context, id int64) (*File, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM library_files WHERE id = ?`, id)
	file, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get library file: %w", err)
	}
	return file, nil
}

// FindByFingerprint returns the catalog row matching a fingerprint, if any.
func (s *Store) FindByFingerprint(ctx context.Context, fingerprint string) (*File, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+fileColumns+` FROM library_files WHERE fingerprint = ? LIMIT 1`,
		fingerprint,
	)
	file, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by fingerprint: %w", err)
	}
	return file, nil
}

// List returns the full catalog, newest first.
func (s *Store) List(ctx context.Context) ([]*File, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+fileColumns+` FROM library_files ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list library files: %w", err)
	}
	defer rows.Close()

	var files []*File
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan library file: %w", err)
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

// ListUnindexed returns catalog rows whose content has not been indexed yet.
func (s *Store) ListUnindexed(ctx context.Context) ([]*File, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+fileColumns+` FROM library_files WHERE indexed = 0 ORDER BY id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list unindexed files: %w", err)
	}
	defer rows.Close()

	var files []*File
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan library file: %w", err)
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

// ReplaceChunks atomically swaps the stored chunks for a file. Re-indexing a
// file never leaves a mix of old and new chunks behind.
func (s *Store) ReplaceChunks(ctx context.Context, fileID int64, chunks []Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin chunk tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE file_id = ?`, fileID); err != nil {
		return fmt.Errorf("clear chunks: %w", err)
	}
	for i, chunk := range chunks {
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO chunks (file_id, chunk_index, content, embedding_json, model)
             VALUES (?, ?, ?, ?, ?)`,
			fileID,
			i,
			chunk.Content,
			nullable(chunk.EmbeddingJSON),
			nullable(chunk.Model),
		); err != nil {
			return fmt.Errorf("insert chunk %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit chunks: %w", err)
	}
	return nil
}

// Chunks returns the stored chunks for a file in index order.
func (s *Store) Chunks(ctx context.Context, fileID int64) ([]Chunk, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, file_id, chunk_index, content, embedding_json, model
         FROM chunks WHERE file_id = ? ORDER BY chunk_index ASC`,
		fileID,
	)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var (
			chunk     Chunk
			embedding sql.NullString
			model     sql.NullString
		)
		if err := rows.Scan(&chunk.ID, &chunk.FileID, &chunk.ChunkIndex, &chunk.Content, &embedding, &model); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		chunk.EmbeddingJSON = embedding.String
		chunk.Model = model.String
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

// MarkIndexed flags a file as indexed.
func (s *Store) MarkIndexed(ctx context.Context, fileID int64) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE library_files SET indexed = 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano),
		fileID,
	)
	if err != nil {
		return fmt.Errorf("mark indexed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrFileNotFound
	}
	return nil
}

// Counts returns catalog totals for status output.
func (s *Store) Counts(ctx context.Context) (Counts, error) {
	var counts Counts
	row := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1), COALESCE(SUM(indexed), 0) FROM library_files`,
	)
	if err := row.Scan(&counts.Files, &counts.Indexed); err != nil {
		return Counts{}, fmt.Errorf("count files: %w", err)
	}
	row = s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM chunks`)
	if err := row.Scan(&counts.Chunks); err != nil {
		return Counts{}, fmt.Errorf("count chunks: %w", err)
	}
	return counts, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
