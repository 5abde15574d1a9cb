package core

import (
	"time"

	"docvault/internal/model"
)

// Store provides an interface for metadata storage operations.
// Implementations back every lookup with a transactional database and
// map uniqueness violations to ErrConflict so services can run their
// retry-on-conflict protocols. Find* methods return (nil, nil) when the
// row does not exist; "not found" is a service-level concern.
type Store interface {
	// Subtenant operations

	// FindSubtenantByExternalID returns the subtenant mapped to the given
	// principal id.
	FindSubtenantByExternalID(externalID string) (*model.Subtenant, error)

	// FindSubtenantByID returns a subtenant by its internal id.
	FindSubtenantByID(id string) (*model.Subtenant, error)

	// InsertSubtenant creates a subtenant row. Returns ErrConflict if the
	// external id is already mapped.
	InsertSubtenant(st *model.Subtenant) error

	// UpdateSubtenant persists name/description changes.
	UpdateSubtenant(st *model.Subtenant) error

	// DeactivateSubtenant clears the active flag. Rows are never deleted.
	DeactivateSubtenant(id string) error

	// Directory operations

	// FindDirectoryByPath returns a directory with an exact path match.
	FindDirectoryByPath(path string) (*model.Directory, error)

	// FindDirectoryByID returns a directory by id.
	FindDirectoryByID(id string) (*model.Directory, error)

	// InsertDirectory creates a directory row. Returns ErrConflict if the
	// path already exists; the caller re-reads and adopts the winner.
	InsertDirectory(d *model.Directory) error

	// ListChildDirectories returns the direct children of a directory.
	// When includePrivate is false, private children are excluded before
	// any access decision runs.
	ListChildDirectories(parentID string, includePrivate bool) ([]*model.Directory, error)

	// Document operations

	// FindDocumentByID returns a document by id.
	FindDocumentByID(id string) (*model.Document, error)

	// ListDocuments returns the documents attached to a directory, every
	// version, ordered by name then version. When includePrivate is false,
	// private documents are excluded.
	ListDocuments(directoryID string, includePrivate bool) ([]*model.Document, error)

	// FindCurrentDocument returns the highest version of (name, directory),
	// or nil if no version exists.
	FindCurrentDocument(name, directoryID string) (*model.Document, error)

	// InsertDocumentVersion allocates the next version for (doc.Name,
	// doc.DirectoryID) and inserts the row in one transaction. The version
	// lookup and insert race under concurrency; the unique index on
	// (directory, name, version) turns the loser into ErrConflict for the
	// caller to retry.
	InsertDocumentVersion(doc *model.Document) (*model.Document, error)

	// Chunk operations

	// InsertChunk creates a chunk row.
	InsertChunk(c *model.Chunk) error

	// ListChunks returns a document's chunks ordered by chunk index.
	ListChunks(documentID string) ([]*model.Chunk, error)

	// Grant operations

	// FindGrantByID returns a grant by id.
	FindGrantByID(id string) (*model.Grant, error)

	// InsertGrantUnique checks the six-tuple and inserts as one atomic
	// unit. Returns ErrConflict if an identical grant (active or expired)
	// already exists.
	InsertGrantUnique(g *model.Grant) error

	// DeleteGrant removes a grant row. Grants have no soft-delete state.
	DeleteGrant(id string) error

	// ListGrantsBy returns grants issued by a subtenant, optionally
	// narrowed to one resource. Pass zero values to skip a filter.
	ListGrantsBy(grantedBy string, resourceKind model.ResourceKind, resourceID string) ([]*model.Grant, error)

	// FindActiveGrant returns a grant matching the grantee/resource/level
	// tuple that has not expired at the given instant, or nil.
	FindActiveGrant(granteeKind model.GranteeKind, granteeID string, resourceKind model.ResourceKind, resourceID string, level model.Level, now time.Time) (*model.Grant, error)

	// Close closes the database connection.
	Close() error
}
