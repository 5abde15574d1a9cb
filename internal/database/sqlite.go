package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"docvault/internal/core"
	"docvault/internal/database/migrations"
	"docvault/internal/model"
)

// SQLiteStore implements the core.Store interface using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore creates a new SQLite store connection.
// path can be a file path or ":memory:" for an in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// NewSQLiteStoreFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is properly configured.
func NewSQLiteStoreFromDB(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// OpenConnection opens and configures a SQLite connection with appropriate
// PRAGMAs. Exported for tools and tests that need a properly configured
// connection.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign key constraints (SQLite default is OFF for backward compatibility)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Wait for writer locks instead of failing immediately; the
	// request-serving runtime hits this store from many goroutines.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// mapConflict translates SQLite uniqueness violations into core.ErrConflict
// so services can run their retry-on-conflict protocols.
func mapConflict(err error) error {
	var serr sqlite3.Error
	if errors.As(err, &serr) && serr.Code == sqlite3.ErrConstraint &&
		(serr.ExtendedCode == sqlite3.ErrConstraintUnique || serr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey) {
		return fmt.Errorf("%v: %w", err, core.ErrConflict)
	}
	return err
}

// nullable maps the empty string to SQL NULL. Nullable references
// (parent_id, subtenant_id) are empty strings in the model.
func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// Subtenant operations

const subtenantCols = "id, external_id, name, description, is_active, created_at, updated_at"

func scanSubtenant(row interface{ Scan(...any) error }) (*model.Subtenant, error) {
	var st model.Subtenant
	err := row.Scan(&st.ID, &st.ExternalID, &st.Name, &st.Description, &st.IsActive, &st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *SQLiteStore) FindSubtenantByExternalID(externalID string) (*model.Subtenant, error) {
	row := s.db.QueryRow("SELECT "+subtenantCols+" FROM subtenants WHERE external_id = ?", externalID)
	st, err := scanSubtenant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("finding subtenant by external id: %w", err)
	}
	return st, nil
}

func (s *SQLiteStore) FindSubtenantByID(id string) (*model.Subtenant, error) {
	row := s.db.QueryRow("SELECT "+subtenantCols+" FROM subtenants WHERE id = ?", id)
	st, err := scanSubtenant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("finding subtenant by id: %w", err)
	}
	return st, nil
}

func (s *SQLiteStore) InsertSubtenant(st *model.Subtenant) error {
	_, err := s.db.Exec(
		"INSERT INTO subtenants ("+subtenantCols+") VALUES (?, ?, ?, ?, ?, ?, ?)",
		st.ID, st.ExternalID, st.Name, st.Description, st.IsActive, st.CreatedAt, st.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting subtenant: %w", mapConflict(err))
	}
	return nil
}

func (s *SQLiteStore) UpdateSubtenant(st *model.Subtenant) error {
	_, err := s.db.Exec(
		"UPDATE subtenants SET name = ?, description = ?, updated_at = ? WHERE id = ?",
		st.Name, st.Description, st.UpdatedAt, st.ID,
	)
	if err != nil {
		return fmt.Errorf("updating subtenant: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeactivateSubtenant(id string) error {
	_, err := s.db.Exec("UPDATE subtenants SET is_active = 0, updated_at = ? WHERE id = ?", time.Now(), id)
	if err != nil {
		return fmt.Errorf("deactivating subtenant: %w", err)
	}
	return nil
}

// Directory operations

const directoryCols = "id, name, path, parent_id, subtenant_id, is_private, summary, created_at, updated_at"

func scanDirectory(row interface{ Scan(...any) error }) (*model.Directory, error) {
	var d model.Directory
	var parentID, subtenantID sql.NullString
	err := row.Scan(&d.ID, &d.Name, &d.Path, &parentID, &subtenantID, &d.IsPrivate, &d.Summary, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	d.ParentID = parentID.String
	d.SubtenantID = subtenantID.String
	return &d, nil
}

func (s *SQLiteStore) FindDirectoryByPath(path string) (*model.Directory, error) {
	row := s.db.QueryRow("SELECT "+directoryCols+" FROM directories WHERE path = ?", path)
	d, err := scanDirectory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("finding directory by path: %w", err)
	}
	return d, nil
}

func (s *SQLiteStore) FindDirectoryByID(id string) (*model.Directory, error) {
	row := s.db.QueryRow("SELECT "+directoryCols+" FROM directories WHERE id = ?", id)
	d, err := scanDirectory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("finding directory by id: %w", err)
	}
	return d, nil
}

func (s *SQLiteStore) InsertDirectory(d *model.Directory) error {
	_, err := s.db.Exec(
		"INSERT INTO directories ("+directoryCols+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		d.ID, d.Name, d.Path, nullable(d.ParentID), nullable(d.SubtenantID), d.IsPrivate, d.Summary, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting directory: %w", mapConflict(err))
	}
	return nil
}

func (s *SQLiteStore) ListChildDirectories(parentID string, includePrivate bool) ([]*model.Directory, error) {
	query := "SELECT " + directoryCols + " FROM directories WHERE parent_id = ?"
	if !includePrivate {
		query += " AND is_private = 0"
	}
	query += " ORDER BY name"

	rows, err := s.db.Query(query, parentID)
	if err != nil {
		return nil, fmt.Errorf("listing child directories: %w", err)
	}
	defer rows.Close()

	var dirs []*model.Directory
	for rows.Next() {
		d, err := scanDirectory(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning directory: %w", err)
		}
		dirs = append(dirs, d)
	}
	return dirs, rows.Err()
}

// Document operations

const documentCols = "id, name, original_filename, mime_type, directory_id, version, subtenant_id, is_private, summary, content_id, created_at, updated_at"

func scanDocument(row interface{ Scan(...any) error }) (*model.Document, error) {
	var d model.Document
	var subtenantID sql.NullString
	err := row.Scan(&d.ID, &d.Name, &d.OriginalFilename, &d.MimeType, &d.DirectoryID, &d.Version,
		&subtenantID, &d.IsPrivate, &d.Summary, &d.ContentID, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	d.SubtenantID = subtenantID.String
	return &d, nil
}

func (s *SQLiteStore) FindDocumentByID(id string) (*model.Document, error) {
	row := s.db.QueryRow("SELECT "+documentCols+" FROM documents WHERE id = ?", id)
	d, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("finding document by id: %w", err)
	}
	return d, nil
}

func (s *SQLiteStore) ListDocuments(directoryID string, includePrivate bool) ([]*model.Document, error) {
	query := "SELECT " + documentCols + " FROM documents WHERE directory_id = ?"
	if !includePrivate {
		query += " AND is_private = 0"
	}
	query += " ORDER BY name, version"

	rows, err := s.db.Query(query, directoryID)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var docs []*model.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (s *SQLiteStore) FindCurrentDocument(name, directoryID string) (*model.Document, error) {
	row := s.db.QueryRow(
		"SELECT "+documentCols+" FROM documents WHERE directory_id = ? AND name = ? ORDER BY version DESC LIMIT 1",
		directoryID, name,
	)
	d, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("finding current document: %w", err)
	}
	return d, nil
}

// InsertDocumentVersion allocates max+1 for (name, directory) and inserts
// in a single transaction:
//  1. Reads the current (highest) version, if any.
//  2. First version is 1, owned and flagged as the caller requested.
//  3. Later versions copy ownership and privacy from the current version,
//     so version history cannot change ownership silently.
//
// Two concurrent calls can both read the same max; the loser trips the
// (directory, name, version) unique index and gets ErrConflict to retry.
func (s *SQLiteStore) InsertDocumentVersion(doc *model.Document) (*model.Document, error) {
	ctx := context.Background()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := scanDocument(tx.QueryRow(
		"SELECT "+documentCols+" FROM documents WHERE directory_id = ? AND name = ? ORDER BY version DESC LIMIT 1",
		doc.DirectoryID, doc.Name,
	))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		doc.Version = 1
	case err != nil:
		return nil, fmt.Errorf("finding current version: %w", err)
	default:
		doc.Version = current.Version + 1
		doc.SubtenantID = current.SubtenantID
		doc.IsPrivate = current.IsPrivate
	}

	_, err = tx.Exec(
		"INSERT INTO documents ("+documentCols+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		doc.ID, doc.Name, doc.OriginalFilename, doc.MimeType, doc.DirectoryID, doc.Version,
		nullable(doc.SubtenantID), doc.IsPrivate, doc.Summary, doc.ContentID, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting document version: %w", mapConflict(err))
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", mapConflict(err))
	}

	return doc, nil
}

// Chunk operations

func (s *SQLiteStore) InsertChunk(c *model.Chunk) error {
	_, err := s.db.Exec(
		"INSERT INTO chunks (id, document_id, chunk_index, title, summary, content_id, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		c.ID, c.DocumentID, c.ChunkIndex, c.Title, c.Summary, c.ContentID, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting chunk: %w", mapConflict(err))
	}
	return nil
}

func (s *SQLiteStore) ListChunks(documentID string) ([]*model.Chunk, error) {
	rows, err := s.db.Query(
		"SELECT id, document_id, chunk_index, title, summary, content_id, created_at FROM chunks WHERE document_id = ? ORDER BY chunk_index",
		documentID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing chunks: %w", err)
	}
	defer rows.Close()

	var chunks []*model.Chunk
	for rows.Next() {
		var c model.Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.ChunkIndex, &c.Title, &c.Summary, &c.ContentID, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		chunks = append(chunks, &c)
	}
	return chunks, rows.Err()
}

// Grant operations

const grantCols = "id, granted_by, grantee_kind, grantee_id, resource_kind, resource_id, level, created_at, expires_at"

func scanGrant(row interface{ Scan(...any) error }) (*model.Grant, error) {
	var g model.Grant
	var expiresAt sql.NullTime
	err := row.Scan(&g.ID, &g.GrantedBy, &g.GranteeKind, &g.GranteeID, &g.ResourceKind, &g.ResourceID, &g.Level, &g.CreatedAt, &expiresAt)
	if err != nil {
		return nil, err
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		g.ExpiresAt = &t
	}
	return &g, nil
}

func (s *SQLiteStore) FindGrantByID(id string) (*model.Grant, error) {
	row := s.db.QueryRow("SELECT "+grantCols+" FROM permission_grants WHERE id = ?", id)
	g, err := scanGrant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("finding grant by id: %w", err)
	}
	return g, nil
}

// InsertGrantUnique checks for an identical six-tuple and inserts as one
// transaction. The unique index backstops the check under concurrency.
func (s *SQLiteStore) InsertGrantUnique(g *model.Grant) error {
	ctx := context.Background()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	var existing string
	err = tx.QueryRow(
		`SELECT id FROM permission_grants
		 WHERE granted_by = ? AND grantee_kind = ? AND grantee_id = ?
		   AND resource_kind = ? AND resource_id = ? AND level = ?`,
		g.GrantedBy, g.GranteeKind, g.GranteeID, g.ResourceKind, g.ResourceID, g.Level,
	).Scan(&existing)
	if err == nil {
		return fmt.Errorf("grant tuple already exists: %w", core.ErrConflict)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("checking for existing grant: %w", err)
	}

	_, err = tx.Exec(
		"INSERT INTO permission_grants ("+grantCols+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		g.ID, g.GrantedBy, g.GranteeKind, g.GranteeID, g.ResourceKind, g.ResourceID, g.Level, g.CreatedAt, nullableTime(g.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("inserting grant: %w", mapConflict(err))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", mapConflict(err))
	}
	return nil
}

func (s *SQLiteStore) DeleteGrant(id string) error {
	if _, err := s.db.Exec("DELETE FROM permission_grants WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting grant: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListGrantsBy(grantedBy string, resourceKind model.ResourceKind, resourceID string) ([]*model.Grant, error) {
	query := "SELECT " + grantCols + " FROM permission_grants WHERE granted_by = ?"
	args := []any{grantedBy}
	if resourceKind != "" {
		query += " AND resource_kind = ?"
		args = append(args, resourceKind)
	}
	if resourceID != "" {
		query += " AND resource_id = ?"
		args = append(args, resourceID)
	}
	query += " ORDER BY created_at, id"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing grants: %w", err)
	}
	defer rows.Close()

	var grants []*model.Grant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning grant: %w", err)
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

func (s *SQLiteStore) FindActiveGrant(granteeKind model.GranteeKind, granteeID string, resourceKind model.ResourceKind, resourceID string, level model.Level, now time.Time) (*model.Grant, error) {
	row := s.db.QueryRow(
		"SELECT "+grantCols+` FROM permission_grants
		 WHERE grantee_kind = ? AND grantee_id = ? AND resource_kind = ? AND resource_id = ? AND level = ?
		   AND (expires_at IS NULL OR expires_at > ?)
		 LIMIT 1`,
		granteeKind, granteeID, resourceKind, resourceID, level, now,
	)
	g, err := scanGrant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("finding active grant: %w", err)
	}
	return g, nil
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteStore) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteStore) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// MigrateUp brings the database schema to the latest version.
func (s *SQLiteStore) MigrateUp() error {
	return migrations.MigrateUp(s.db)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Compile-time check that SQLiteStore implements core.Store
var _ core.Store = (*SQLiteStore)(nil)
