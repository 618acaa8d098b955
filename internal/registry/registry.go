// Package registry is the authoritative per-project, per-file metadata
// store backing smart re-indexing, implemented on SQLite. It records
// which files were indexed when, with what checksum, and how many chunks
// each produced; it does not own embeddings.
package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver

	"github.com/falconeye/falconeye/internal/checksum"
	ferrors "github.com/falconeye/falconeye/internal/errors"
	"github.com/falconeye/falconeye/internal/projectid"
)

// ProjectMetadata is the registry's record of one indexed project.
type ProjectMetadata struct {
	ProjectID         string
	ProjectName       string
	ProjectRoot       string
	ProjectType       projectid.ProjectType
	GitRemoteURL      string
	LastIndexedCommit string
	LastFullScan      time.Time
	TotalFiles        int
	TotalChunks       int
	Languages         []string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Stats summarizes a project's file rows.
type Stats struct {
	Total   int
	Active  int
	Deleted int
	Chunks  int
}

// Registry is the SQLite-backed metadata store. Safe for concurrent use;
// writes serialize on a single connection.
type Registry struct {
	mu     sync.Mutex
	db     *sql.DB
	path   string
	closed bool
}

const schema = `
CREATE TABLE IF NOT EXISTS projects (
	project_id          TEXT PRIMARY KEY,
	project_name        TEXT NOT NULL,
	project_root        TEXT NOT NULL,
	project_type        TEXT NOT NULL,
	git_remote_url      TEXT NOT NULL DEFAULT '',
	last_indexed_commit TEXT NOT NULL DEFAULT '',
	last_full_scan      INTEGER NOT NULL DEFAULT 0,
	total_files         INTEGER NOT NULL DEFAULT 0,
	total_chunks        INTEGER NOT NULL DEFAULT 0,
	languages           TEXT NOT NULL DEFAULT '[]',
	created_at          INTEGER NOT NULL,
	updated_at          INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS files (
	project_id    TEXT NOT NULL,
	relative_path TEXT NOT NULL,
	absolute_path TEXT NOT NULL,
	language      TEXT NOT NULL DEFAULT '',
	checksum      TEXT NOT NULL DEFAULT '',
	size          INTEGER NOT NULL DEFAULT 0,
	mtime_ns      INTEGER NOT NULL DEFAULT 0,
	git_commit    TEXT NOT NULL DEFAULT '',
	git_blob_hash TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL DEFAULT 'active',
	indexed_at    INTEGER NOT NULL DEFAULT 0,
	last_scanned  INTEGER NOT NULL DEFAULT 0,
	chunk_count   INTEGER NOT NULL DEFAULT 0,
	embedding_ids TEXT NOT NULL DEFAULT '[]',
	PRIMARY KEY (project_id, relative_path)
);

CREATE INDEX IF NOT EXISTS idx_files_status ON files(project_id, status);
`

// Open opens (or creates) the registry database at path, creating parent
// directories as needed.
func Open(path string) (*Registry, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, ferrors.Wrap(ferrors.ErrCodeRegistryFailed, err)
	}

	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.ErrCodeRegistryFailed, err)
	}

	// Single writer keeps SQLite lock contention out of the picture.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, ferrors.New(ferrors.ErrCodeRegistryFailed, "failed to initialize registry schema", err)
	}

	return &Registry{db: db, path: path}, nil
}

// Close releases the database handle.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.db.Close()
}

// SaveProject upserts a project row. CreatedAt is preserved for existing
// rows; UpdatedAt is always advanced to now.
func (r *Registry) SaveProject(ctx context.Context, p *ProjectMetadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	langs, err := json.Marshal(p.Languages)
	if err != nil {
		return fmt.Errorf("marshal languages: %w", err)
	}

	now := time.Now().UTC()
	created := p.CreatedAt
	if created.IsZero() {
		created = now
	}
	p.UpdatedAt = now

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO projects (project_id, project_name, project_root, project_type,
			git_remote_url, last_indexed_commit, last_full_scan,
			total_files, total_chunks, languages, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id) DO UPDATE SET
			project_name = excluded.project_name,
			project_root = excluded.project_root,
			project_type = excluded.project_type,
			git_remote_url = excluded.git_remote_url,
			last_indexed_commit = excluded.last_indexed_commit,
			last_full_scan = excluded.last_full_scan,
			total_files = excluded.total_files,
			total_chunks = excluded.total_chunks,
			languages = excluded.languages,
			updated_at = excluded.updated_at`,
		p.ProjectID, p.ProjectName, p.ProjectRoot, string(p.ProjectType),
		p.GitRemoteURL, p.LastIndexedCommit, p.LastFullScan.UnixNano(),
		p.TotalFiles, p.TotalChunks, string(langs), created.UnixNano(), now.UnixNano())
	if err != nil {
		return ferrors.New(ferrors.ErrCodeRegistryFailed, "failed to save project", err).
			WithDetail("project_id", p.ProjectID)
	}
	return nil
}

// GetProject returns the project row, or nil when the id is unknown.
func (r *Registry) GetProject(ctx context.Context, projectID string) (*ProjectMetadata, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT project_id, project_name, project_root, project_type,
			git_remote_url, last_indexed_commit, last_full_scan,
			total_files, total_chunks, languages, created_at, updated_at
		FROM projects WHERE project_id = ?`, projectID)

	p, err := scanProject(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

// GetAllProjects returns every project row, ordered by id.
func (r *Registry) GetAllProjects(ctx context.Context) ([]*ProjectMetadata, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT project_id, project_name, project_root, project_type,
			git_remote_url, last_indexed_commit, last_full_scan,
			total_files, total_chunks, languages, created_at, updated_at
		FROM projects ORDER BY project_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []*ProjectMetadata
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// ProjectExists reports whether the project id has a row.
func (r *Registry) ProjectExists(ctx context.Context, projectID string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM projects WHERE project_id = ?`, projectID).Scan(&n)
	return n > 0, err
}

// DeleteProject removes the project row and every file row under it.
// Vector collections are the caller's responsibility.
func (r *Registry) DeleteProject(ctx context.Context, projectID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE project_id = ?`, projectID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE project_id = ?`, projectID); err != nil {
		return err
	}
	return tx.Commit()
}

// SaveFile upserts one file row.
func (r *Registry) SaveFile(ctx context.Context, f *checksum.FileMetadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return upsertFile(ctx, r.db, f)
}

// SaveFileBatch upserts all rows inside a single transaction.
func (r *Registry) SaveFileBatch(ctx context.Context, files []*checksum.FileMetadata) error {
	if len(files) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, f := range files {
		if err := upsertFile(ctx, tx, f); err != nil {
			return err
		}
	}
	return tx.Commit()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertFile(ctx context.Context, db execer, f *checksum.FileMetadata) error {
	ids, err := json.Marshal(f.EmbeddingIDs)
	if err != nil {
		return fmt.Errorf("marshal embedding ids: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO files (project_id, relative_path, absolute_path, language,
			checksum, size, mtime_ns, git_commit, git_blob_hash, status,
			indexed_at, last_scanned, chunk_count, embedding_ids)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, relative_path) DO UPDATE SET
			absolute_path = excluded.absolute_path,
			language = excluded.language,
			checksum = excluded.checksum,
			size = excluded.size,
			mtime_ns = excluded.mtime_ns,
			git_commit = excluded.git_commit,
			git_blob_hash = excluded.git_blob_hash,
			status = excluded.status,
			indexed_at = excluded.indexed_at,
			last_scanned = excluded.last_scanned,
			chunk_count = excluded.chunk_count,
			embedding_ids = excluded.embedding_ids`,
		f.ProjectID, f.RelPath, f.Path, f.Language,
		f.Checksum, f.Size, f.ModTime.UnixNano(), f.GitCommit, f.GitBlobHash, f.Status,
		f.IndexedAt.UnixNano(), f.LastCheckAt.UnixNano(), f.ChunkCount, string(ids))
	if err != nil {
		return ferrors.New(ferrors.ErrCodeRegistryFailed, "failed to save file metadata", err).
			WithDetail("project_id", f.ProjectID).
			WithDetail("file_path", f.RelPath)
	}
	return nil
}

// GetFile returns one file row by relative path, or nil when absent.
func (r *Registry) GetFile(ctx context.Context, projectID, relPath string) (*checksum.FileMetadata, error) {
	row := r.db.QueryRowContext(ctx, fileSelect+` WHERE project_id = ? AND relative_path = ?`,
		projectID, relPath)
	f, err := scanFile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return f, err
}

// GetAllFiles returns every file row for the project.
func (r *Registry) GetAllFiles(ctx context.Context, projectID string) ([]*checksum.FileMetadata, error) {
	return r.queryFiles(ctx, fileSelect+` WHERE project_id = ? ORDER BY relative_path`, projectID)
}

// GetFilesByStatus returns the project's file rows with the given status.
func (r *Registry) GetFilesByStatus(ctx context.Context, projectID, status string) ([]*checksum.FileMetadata, error) {
	return r.queryFiles(ctx, fileSelect+` WHERE project_id = ? AND status = ? ORDER BY relative_path`,
		projectID, status)
}

// DeleteFile removes one file row.
func (r *Registry) DeleteFile(ctx context.Context, projectID, relPath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM files WHERE project_id = ? AND relative_path = ?`, projectID, relPath)
	return err
}

// DeleteFileBatch removes several file rows in one transaction.
func (r *Registry) DeleteFileBatch(ctx context.Context, projectID string, relPaths []string) error {
	if len(relPaths) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, p := range relPaths {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM files WHERE project_id = ? AND relative_path = ?`, projectID, p); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// MarkFileDeleted flips the row's status to deleted without removing it,
// so the cleanup step can find its embedding ids later.
func (r *Registry) MarkFileDeleted(ctx context.Context, projectID, relPath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.db.ExecContext(ctx, `
		UPDATE files SET status = ?, last_scanned = ?
		WHERE project_id = ? AND relative_path = ?`,
		checksum.StatusDeleted, time.Now().UTC().UnixNano(), projectID, relPath)
	return err
}

// Paths returns the relative paths of every file row for the project.
func (r *Registry) Paths(ctx context.Context, projectID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT relative_path FROM files WHERE project_id = ? ORDER BY relative_path`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// MetadataMap returns the project's file rows keyed by relative path.
func (r *Registry) MetadataMap(ctx context.Context, projectID string) (map[string]*checksum.FileMetadata, error) {
	files, err := r.GetAllFiles(ctx, projectID)
	if err != nil {
		return nil, err
	}
	m := make(map[string]*checksum.FileMetadata, len(files))
	for _, f := range files {
		m[f.RelPath] = f
	}
	return m, nil
}

// GetStats aggregates the project's file rows.
func (r *Registry) GetStats(ctx context.Context, projectID string) (Stats, error) {
	var s Stats
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'active' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'deleted' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'active' THEN chunk_count ELSE 0 END), 0)
		FROM files WHERE project_id = ?`, projectID).
		Scan(&s.Total, &s.Active, &s.Deleted, &s.Chunks)
	return s, err
}

// ClearFiles removes every file row for the project but keeps the project
// row itself.
func (r *Registry) ClearFiles(ctx context.Context, projectID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.db.ExecContext(ctx, `DELETE FROM files WHERE project_id = ?`, projectID)
	return err
}

// Cleanup physically removes rows with status=deleted and returns them,
// so the caller can drop their embeddings from the vector store.
func (r *Registry) Cleanup(ctx context.Context, projectID string) ([]*checksum.FileMetadata, error) {
	removed, err := r.GetFilesByStatus(ctx, projectID, checksum.StatusDeleted)
	if err != nil {
		return nil, err
	}
	if len(removed) == 0 {
		return nil, nil
	}

	paths := make([]string, len(removed))
	for i, f := range removed {
		paths[i] = f.RelPath
	}
	if err := r.DeleteFileBatch(ctx, projectID, paths); err != nil {
		return nil, err
	}
	return removed, nil
}

const fileSelect = `
	SELECT project_id, relative_path, absolute_path, language, checksum,
		size, mtime_ns, git_commit, git_blob_hash, status,
		indexed_at, last_scanned, chunk_count, embedding_ids
	FROM files`

func (r *Registry) queryFiles(ctx context.Context, query string, args ...any) ([]*checksum.FileMetadata, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []*checksum.FileMetadata
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(row rowScanner) (*checksum.FileMetadata, error) {
	var f checksum.FileMetadata
	var mtimeNS, indexedNS, scannedNS int64
	var ids string

	err := row.Scan(&f.ProjectID, &f.RelPath, &f.Path, &f.Language, &f.Checksum,
		&f.Size, &mtimeNS, &f.GitCommit, &f.GitBlobHash, &f.Status,
		&indexedNS, &scannedNS, &f.ChunkCount, &ids)
	if err != nil {
		return nil, err
	}

	f.ModTime = time.Unix(0, mtimeNS)
	f.IndexedAt = time.Unix(0, indexedNS).UTC()
	f.LastCheckAt = time.Unix(0, scannedNS).UTC()
	if err := json.Unmarshal([]byte(ids), &f.EmbeddingIDs); err != nil {
		return nil, fmt.Errorf("unmarshal embedding ids: %w", err)
	}
	return &f, nil
}

func scanProject(row rowScanner) (*ProjectMetadata, error) {
	var p ProjectMetadata
	var ptype, langs string
	var scanNS, createdNS, updatedNS int64

	err := row.Scan(&p.ProjectID, &p.ProjectName, &p.ProjectRoot, &ptype,
		&p.GitRemoteURL, &p.LastIndexedCommit, &scanNS,
		&p.TotalFiles, &p.TotalChunks, &langs, &createdNS, &updatedNS)
	if err != nil {
		return nil, err
	}

	p.ProjectType = projectid.ProjectType(ptype)
	p.LastFullScan = time.Unix(0, scanNS).UTC()
	p.CreatedAt = time.Unix(0, createdNS).UTC()
	p.UpdatedAt = time.Unix(0, updatedNS).UTC()
	if err := json.Unmarshal([]byte(langs), &p.Languages); err != nil {
		return nil, fmt.Errorf("unmarshal languages: %w", err)
	}
	return &p, nil
}
