package core

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"docvault/internal/model"
)

// IngestService coordinates document uploads: content goes to the
// content store first (idempotent by checksum), then the metadata row
// and chunk rows are recorded. If recording fails, the worst outcome is
// an orphaned blob in the content store, which is harmless.
type IngestService struct {
	tree     *TreeService
	access   *AccessService
	content  ContentStore
	chunkers *ChunkerRegistry
	store    Store
	logger   Logger
	clock    Clock
	idgen    IDGenerator
}

// NewIngestService creates an IngestService with the provided
// dependencies.
func NewIngestService(tree *TreeService, access *AccessService, content ContentStore, chunkers *ChunkerRegistry, store Store, logger Logger, clock Clock, idgen IDGenerator) *IngestService {
	return &IngestService{
		tree:     tree,
		access:   access,
		content:  content,
		chunkers: chunkers,
		store:    store,
		logger:   logger,
		clock:    clock,
		idgen:    idgen,
	}
}

// IngestDocument uploads a payload as a new document version under the
// given directory path, materializing the path if needed. New paths are
// owned by the uploader; uploading into a directory owned by someone
// else requires an active write grant.
func (s *IngestService) IngestDocument(identity *Identity, directoryPath, filename, mimeType string, r io.Reader) (*model.Document, error) {
	path := NormalizePath(directoryPath)

	dir, err := s.tree.ResolveOrCreatePath(path, identity.SubtenantID())
	if err != nil {
		return nil, err
	}

	// Authorization runs against the resolved row. A path the caller
	// materialized is owned by the caller; a node that already existed,
	// including one another tenant raced in between lookup and insert,
	// keeps its owner and requires a write grant.
	if dir.SubtenantID != identity.SubtenantID() {
		ok, err := s.access.Authorize(identity, model.KindDirectory, dir.ID, model.LevelWrite)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("no write access to directory %s: %w", path, ErrForbidden)
		}
	}

	payload, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading payload: %w", err)
	}

	contentID, err := s.putContent(payload)
	if err != nil {
		return nil, err
	}

	name := documentName(filename)
	doc, err := s.tree.CreateDocumentVersion(name, dir.ID, identity.SubtenantID(), contentID, filename, mimeType)
	if err != nil {
		return nil, err
	}

	if err := s.chunkDocument(doc, string(payload)); err != nil {
		return nil, err
	}

	s.logger.Info("document ingested",
		"document", doc.ID, "path", path, "name", name, "version", doc.Version)
	return doc, nil
}

// IngestDocumentVersion uploads a payload as the next version of an
// existing document. The caller must own the document or hold an active
// write grant on it.
func (s *IngestService) IngestDocumentVersion(identity *Identity, documentID, filename, mimeType string, r io.Reader) (*model.Document, error) {
	existing, err := s.tree.GetDocument(documentID)
	if err != nil {
		return nil, err
	}

	ok, err := s.access.Authorize(identity, model.KindDocument, existing.ID, model.LevelWrite)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("no write access to document %s: %w", documentID, ErrForbidden)
	}

	payload, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading payload: %w", err)
	}

	contentID, err := s.putContent(payload)
	if err != nil {
		return nil, err
	}

	// Ownership and privacy carry over from the current version in the
	// store, whoever uploads.
	doc, err := s.tree.CreateDocumentVersion(existing.Name, existing.DirectoryID, identity.SubtenantID(), contentID, filename, mimeType)
	if err != nil {
		return nil, err
	}

	if err := s.chunkDocument(doc, string(payload)); err != nil {
		return nil, err
	}

	s.logger.Info("document version ingested",
		"document", doc.ID, "name", doc.Name, "version", doc.Version)
	return doc, nil
}

// ReadContent streams a document's payload to w after a read
// authorization check.
func (s *IngestService) ReadContent(identity *Identity, documentID string, w io.Writer) error {
	doc, err := s.tree.GetDocument(documentID)
	if err != nil {
		return err
	}

	ok, err := s.access.Authorize(identity, model.KindDocument, doc.ID, model.LevelRead)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no read access to document %s: %w", documentID, ErrForbidden)
	}

	if err := s.content.Get(doc.ContentID, w); err != nil {
		return fmt.Errorf("reading content %s: %w", doc.ContentID, err)
	}
	return nil
}

// putContent stores the payload under its checksum and returns the
// content id.
func (s *IngestService) putContent(payload []byte) (string, error) {
	sum := sha256.Sum256(payload)
	contentID := hex.EncodeToString(sum[:])

	if err := s.content.Put(contentID, bytes.NewReader(payload), int64(len(payload))); err != nil {
		return "", fmt.Errorf("storing content: %w", err)
	}
	return contentID, nil
}

// chunkDocument splits the payload and records a chunk row per span,
// each span stored in the content store under its own checksum.
func (s *IngestService) chunkDocument(doc *model.Document, content string) error {
	spans := s.chunkers.Chunk(content, doc.OriginalFilename)

	for i, span := range spans {
		contentID, err := s.putContent([]byte(span))
		if err != nil {
			return err
		}

		chunk := &model.Chunk{
			ID:         s.idgen.New(),
			DocumentID: doc.ID,
			ChunkIndex: int64(i),
			Title:      ChunkTitle(span),
			ContentID:  contentID,
			CreatedAt:  s.clock.Now(),
		}
		if err := s.store.InsertChunk(chunk); err != nil {
			return fmt.Errorf("recording chunk %d: %w", i, err)
		}
	}

	s.logger.Debug("document chunked", "document", doc.ID, "chunks", len(spans))
	return nil
}

// documentName strips the extension from an uploaded filename.
func documentName(filename string) string {
	if i := strings.LastIndexByte(filename, '.'); i > 0 {
		return filename[:i]
	}
	return filename
}
