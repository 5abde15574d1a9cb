package core

import (
	"fmt"
	"strings"

	"docvault/internal/model"
)

// TreeService is the resource tree store: it materializes the
// path-addressed directory hierarchy and manages versioned documents
// attached to it.
type TreeService struct {
	store  Store
	logger Logger
	clock  Clock
	idgen  IDGenerator
}

// NewTreeService creates a TreeService with the provided dependencies.
func NewTreeService(store Store, logger Logger, clock Clock, idgen IDGenerator) *TreeService {
	return &TreeService{
		store:  store,
		logger: logger,
		clock:  clock,
		idgen:  idgen,
	}
}

// NormalizePath canonicalizes a raw request path: leading slash, no
// trailing slash, no empty segments. An empty path means the root.
func NormalizePath(raw string) string {
	segs := splitPath(raw)
	if len(segs) == 0 {
		return "/"
	}
	return "/" + strings.Join(segs, "/")
}

func splitPath(raw string) []string {
	var segs []string
	for _, s := range strings.Split(raw, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

// ResolveOrCreatePath walks the path from the root and creates every
// missing prefix directory with its parent set to the previously
// resolved ancestor. Idempotent: an existing directory is returned
// unchanged, and ownership of an existing node is never altered by a
// later resolve, whatever owner is passed.
//
// Two callers materializing the same missing segment both observe
// "absent" and both insert; the unique index on path picks one winner
// and the loser re-reads the winner's row.
func (s *TreeService) ResolveOrCreatePath(path string, owningSubtenant string) (*model.Directory, error) {
	segs := splitPath(path)

	current, err := s.resolveOrCreateNode("/", "root", "", owningSubtenant)
	if err != nil {
		return nil, err
	}

	walked := ""
	for _, seg := range segs {
		walked += "/" + seg
		current, err = s.resolveOrCreateNode(walked, seg, current.ID, owningSubtenant)
		if err != nil {
			return nil, err
		}
	}

	return current, nil
}

// resolveOrCreateNode returns the directory at path, inserting it if
// absent. Insert conflicts are retried by re-reading: the row that beat
// us is the result.
func (s *TreeService) resolveOrCreateNode(path, name, parentID, owningSubtenant string) (*model.Directory, error) {
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		existing, err := s.store.FindDirectoryByPath(path)
		if err != nil {
			return nil, fmt.Errorf("finding directory %s: %w", path, err)
		}
		if existing != nil {
			return existing, nil
		}

		now := s.clock.Now()
		dir := &model.Directory{
			ID:          s.idgen.New(),
			Name:        name,
			Path:        path,
			ParentID:    parentID,
			SubtenantID: owningSubtenant,
			IsPrivate:   owningSubtenant != "",
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		err = s.store.InsertDirectory(dir)
		if err == nil {
			s.logger.Debug("directory created", "path", path, "id", dir.ID)
			return dir, nil
		}
		if !isConflict(err) {
			return nil, fmt.Errorf("creating directory %s: %w", path, err)
		}
		// Lost the race; loop re-reads the winner.
	}

	return nil, fmt.Errorf("creating directory %s: retries exhausted: %w", path, ErrConflict)
}

// GetByPath returns the directory at an exact path.
func (s *TreeService) GetByPath(path string) (*model.Directory, error) {
	dir, err := s.store.FindDirectoryByPath(NormalizePath(path))
	if err != nil {
		return nil, fmt.Errorf("finding directory by path: %w", err)
	}
	if dir == nil {
		return nil, fmt.Errorf("directory %s: %w", path, ErrNotFound)
	}
	return dir, nil
}

// GetByID returns a directory by id.
func (s *TreeService) GetByID(id string) (*model.Directory, error) {
	dir, err := s.store.FindDirectoryByID(id)
	if err != nil {
		return nil, fmt.Errorf("finding directory by id: %w", err)
	}
	if dir == nil {
		return nil, fmt.Errorf("directory %s: %w", id, ErrNotFound)
	}
	return dir, nil
}

// ListChildren returns the direct subdirectories of a directory. The
// privacy flag is a pre-filter, independent of and preceding any access
// decision.
func (s *TreeService) ListChildren(directoryID string, includePrivate bool) ([]*model.Directory, error) {
	dirs, err := s.store.ListChildDirectories(directoryID, includePrivate)
	if err != nil {
		return nil, fmt.Errorf("listing child directories: %w", err)
	}
	return dirs, nil
}

// ListDocuments returns the documents in a directory, privacy
// pre-filtered the same way as ListChildren.
func (s *TreeService) ListDocuments(directoryID string, includePrivate bool) ([]*model.Document, error) {
	docs, err := s.store.ListDocuments(directoryID, includePrivate)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	return docs, nil
}

// GetDocument returns a document by id.
func (s *TreeService) GetDocument(id string) (*model.Document, error) {
	doc, err := s.store.FindDocumentByID(id)
	if err != nil {
		return nil, fmt.Errorf("finding document by id: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	return doc, nil
}

// DocumentHistory returns every version of (name, directory) in version
// order.
func (s *TreeService) DocumentHistory(name, directoryID string) ([]*model.Document, error) {
	docs, err := s.store.ListDocuments(directoryID, true)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	var history []*model.Document
	for _, d := range docs {
		if d.Name == name {
			history = append(history, d)
		}
	}
	if len(history) == 0 {
		return nil, fmt.Errorf("document %s in directory %s: %w", name, directoryID, ErrNotFound)
	}
	return history, nil
}

// CreateDocumentVersion appends the next version for (name, directoryID).
// The first version is 1 and owned by the caller; later versions copy
// ownership and privacy from the prior current version, not from the
// caller, so version history cannot change ownership silently. Prior
// versions are never mutated or deleted.
//
// The store allocates max+1 inside one transaction; a concurrent upload
// computing the same next version trips the (directory, name, version)
// unique index and is retried here with a fresh recompute.
func (s *TreeService) CreateDocumentVersion(name, directoryID, owningSubtenant, contentID, originalFilename, mimeType string) (*model.Document, error) {
	dir, err := s.store.FindDirectoryByID(directoryID)
	if err != nil {
		return nil, fmt.Errorf("finding directory: %w", err)
	}
	if dir == nil {
		return nil, fmt.Errorf("directory %s: %w", directoryID, ErrNotFound)
	}

	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		now := s.clock.Now()
		doc := &model.Document{
			ID:               s.idgen.New(),
			Name:             name,
			OriginalFilename: originalFilename,
			MimeType:         mimeType,
			DirectoryID:      directoryID,
			SubtenantID:      owningSubtenant,
			IsPrivate:        owningSubtenant != "",
			ContentID:        contentID,
			CreatedAt:        now,
			UpdatedAt:        now,
		}

		created, err := s.store.InsertDocumentVersion(doc)
		if err == nil {
			s.logger.Info("document version created",
				"name", name, "directory", directoryID, "version", created.Version)
			return created, nil
		}
		if !isConflict(err) {
			return nil, fmt.Errorf("creating document version: %w", err)
		}
		// Version race; loop recomputes max+1.
	}

	return nil, fmt.Errorf("creating document version for %s: retries exhausted: %w", name, ErrConflict)
}
