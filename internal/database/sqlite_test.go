package database

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"docvault/internal/core"
	"docvault/internal/model"
)

// newTestStore creates a new in-memory store with schema applied.
func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	if _, err := store.db.Exec(Schema); err != nil {
		store.Close()
		t.Fatalf("failed to apply schema: %v", err)
	}

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

func testTime() time.Time {
	return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
}

func insertSubtenant(t *testing.T, store *SQLiteStore, id string) *model.Subtenant {
	t.Helper()

	st := &model.Subtenant{
		ID:         id,
		ExternalID: "ext-" + id,
		Name:       "User " + id,
		IsActive:   true,
		CreatedAt:  testTime(),
		UpdatedAt:  testTime(),
	}
	if err := store.InsertSubtenant(st); err != nil {
		t.Fatalf("InsertSubtenant(%s) error = %v", id, err)
	}
	return st
}

func insertDirectory(t *testing.T, store *SQLiteStore, path, subtenantID string) *model.Directory {
	t.Helper()

	d := &model.Directory{
		ID:          "dir-" + path,
		Name:        path,
		Path:        path,
		SubtenantID: subtenantID,
		IsPrivate:   subtenantID != "",
		CreatedAt:   testTime(),
		UpdatedAt:   testTime(),
	}
	if err := store.InsertDirectory(d); err != nil {
		t.Fatalf("InsertDirectory(%s) error = %v", path, err)
	}
	return d
}

func TestSQLiteStore_Subtenants(t *testing.T) {
	t.Run("find by external id returns nil when absent", func(t *testing.T) {
		store := newTestStore(t)

		st, err := store.FindSubtenantByExternalID("ext-nobody")
		if err != nil {
			t.Fatalf("FindSubtenantByExternalID() error = %v", err)
		}
		if st != nil {
			t.Errorf("FindSubtenantByExternalID() = %v, want nil", st)
		}
	})

	t.Run("insert then find round-trips", func(t *testing.T) {
		store := newTestStore(t)
		created := insertSubtenant(t, store, "alice")

		found, err := store.FindSubtenantByExternalID("ext-alice")
		if err != nil {
			t.Fatalf("FindSubtenantByExternalID() error = %v", err)
		}
		if found == nil {
			t.Fatal("FindSubtenantByExternalID() returned nil, want subtenant")
		}
		if found.ID != created.ID {
			t.Errorf("ID = %v, want %v", found.ID, created.ID)
		}
		if !found.IsActive {
			t.Error("IsActive = false, want true")
		}
	})

	t.Run("duplicate external id is ErrConflict", func(t *testing.T) {
		store := newTestStore(t)
		insertSubtenant(t, store, "alice")

		dup := &model.Subtenant{
			ID:         "other-id",
			ExternalID: "ext-alice",
			CreatedAt:  testTime(),
			UpdatedAt:  testTime(),
		}
		if err := store.InsertSubtenant(dup); !errors.Is(err, core.ErrConflict) {
			t.Errorf("InsertSubtenant() error = %v, want ErrConflict", err)
		}
	})

	t.Run("deactivate clears the active flag only", func(t *testing.T) {
		store := newTestStore(t)
		st := insertSubtenant(t, store, "alice")

		if err := store.DeactivateSubtenant(st.ID); err != nil {
			t.Fatalf("DeactivateSubtenant() error = %v", err)
		}

		found, err := store.FindSubtenantByID(st.ID)
		if err != nil {
			t.Fatalf("FindSubtenantByID() error = %v", err)
		}
		if found == nil {
			t.Fatal("subtenant row deleted, want soft delete")
		}
		if found.IsActive {
			t.Error("IsActive = true after deactivation")
		}
	})
}

func TestSQLiteStore_Directories(t *testing.T) {
	t.Run("duplicate path is ErrConflict", func(t *testing.T) {
		store := newTestStore(t)
		insertDirectory(t, store, "/docs", "")

		dup := &model.Directory{
			ID:        "another",
			Name:      "docs",
			Path:      "/docs",
			CreatedAt: testTime(),
			UpdatedAt: testTime(),
		}
		if err := store.InsertDirectory(dup); !errors.Is(err, core.ErrConflict) {
			t.Errorf("InsertDirectory() error = %v, want ErrConflict", err)
		}
	})

	t.Run("empty parent and owner round-trip as empty strings", func(t *testing.T) {
		store := newTestStore(t)
		insertDirectory(t, store, "/", "")

		found, err := store.FindDirectoryByPath("/")
		if err != nil {
			t.Fatalf("FindDirectoryByPath() error = %v", err)
		}
		if found.ParentID != "" || found.SubtenantID != "" {
			t.Errorf("ParentID/SubtenantID = %q/%q, want empty", found.ParentID, found.SubtenantID)
		}
	})

	t.Run("list children honors the privacy pre-filter", func(t *testing.T) {
		store := newTestStore(t)
		alice := insertSubtenant(t, store, "alice")
		root := insertDirectory(t, store, "/", "")

		private := &model.Directory{
			ID: "d-private", Name: "private", Path: "/private",
			ParentID: root.ID, SubtenantID: alice.ID, IsPrivate: true,
			CreatedAt: testTime(), UpdatedAt: testTime(),
		}
		public := &model.Directory{
			ID: "d-public", Name: "public", Path: "/public",
			ParentID:  root.ID,
			CreatedAt: testTime(), UpdatedAt: testTime(),
		}
		for _, d := range []*model.Directory{private, public} {
			if err := store.InsertDirectory(d); err != nil {
				t.Fatalf("InsertDirectory(%s) error = %v", d.Path, err)
			}
		}

		visible, err := store.ListChildDirectories(root.ID, false)
		if err != nil {
			t.Fatalf("ListChildDirectories(false) error = %v", err)
		}
		if len(visible) != 1 || visible[0].ID != "d-public" {
			t.Errorf("ListChildDirectories(false) = %v, want only d-public", visible)
		}

		all, err := store.ListChildDirectories(root.ID, true)
		if err != nil {
			t.Fatalf("ListChildDirectories(true) error = %v", err)
		}
		if len(all) != 2 {
			t.Errorf("len(all) = %d, want 2", len(all))
		}
	})
}

func TestSQLiteStore_InsertDocumentVersion(t *testing.T) {
	newDoc := func(name, dirID, owner string) *model.Document {
		return &model.Document{
			ID:          "doc-" + name + "-" + owner,
			Name:        name,
			DirectoryID: dirID,
			SubtenantID: owner,
			IsPrivate:   owner != "",
			ContentID:   "content",
			CreatedAt:   testTime(),
			UpdatedAt:   testTime(),
		}
	}

	t.Run("first version is 1", func(t *testing.T) {
		store := newTestStore(t)
		alice := insertSubtenant(t, store, "alice")
		dir := insertDirectory(t, store, "/docs", alice.ID)

		doc, err := store.InsertDocumentVersion(newDoc("report", dir.ID, alice.ID))
		if err != nil {
			t.Fatalf("InsertDocumentVersion() error = %v", err)
		}
		if doc.Version != 1 {
			t.Errorf("Version = %d, want 1", doc.Version)
		}
	})

	t.Run("allocates max plus one", func(t *testing.T) {
		store := newTestStore(t)
		alice := insertSubtenant(t, store, "alice")
		dir := insertDirectory(t, store, "/docs", alice.ID)

		for want := int64(1); want <= 3; want++ {
			d := newDoc("report", dir.ID, alice.ID)
			d.ID = d.ID + "-" + string(rune('0'+want))
			doc, err := store.InsertDocumentVersion(d)
			if err != nil {
				t.Fatalf("InsertDocumentVersion() error = %v", err)
			}
			if doc.Version != want {
				t.Errorf("Version = %d, want %d", doc.Version, want)
			}
		}
	})

	t.Run("later versions copy ownership and privacy from current", func(t *testing.T) {
		store := newTestStore(t)
		alice := insertSubtenant(t, store, "alice")
		bob := insertSubtenant(t, store, "bob")
		dir := insertDirectory(t, store, "/docs", alice.ID)

		if _, err := store.InsertDocumentVersion(newDoc("report", dir.ID, alice.ID)); err != nil {
			t.Fatalf("InsertDocumentVersion(v1) error = %v", err)
		}

		second, err := store.InsertDocumentVersion(newDoc("report", dir.ID, bob.ID))
		if err != nil {
			t.Fatalf("InsertDocumentVersion(v2) error = %v", err)
		}
		if second.SubtenantID != alice.ID {
			t.Errorf("v2 owner = %q, want %q copied from v1", second.SubtenantID, alice.ID)
		}
		if !second.IsPrivate {
			t.Error("v2 IsPrivate = false, want copied true")
		}
	})

	t.Run("current document is the highest version", func(t *testing.T) {
		store := newTestStore(t)
		alice := insertSubtenant(t, store, "alice")
		dir := insertDirectory(t, store, "/docs", alice.ID)

		for i := 0; i < 2; i++ {
			d := newDoc("report", dir.ID, alice.ID)
			d.ID = d.ID + "-" + string(rune('0'+i))
			if _, err := store.InsertDocumentVersion(d); err != nil {
				t.Fatalf("InsertDocumentVersion() error = %v", err)
			}
		}

		current, err := store.FindCurrentDocument("report", dir.ID)
		if err != nil {
			t.Fatalf("FindCurrentDocument() error = %v", err)
		}
		if current == nil || current.Version != 2 {
			t.Errorf("FindCurrentDocument() = %v, want version 2", current)
		}
	})
}

// Version allocation runs against a file-backed database here: in-memory
// connections cannot collide, so this is the only place the
// read-max-then-insert race actually happens.
func TestSQLiteStore_ConcurrentDocumentVersions(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "concurrent.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if _, err := store.db.Exec(Schema); err != nil {
		t.Fatalf("applying schema: %v", err)
	}

	alice := insertSubtenant(t, store, "alice")
	dir := insertDirectory(t, store, "/docs", alice.ID)

	const writers = 4
	const perWriter = 5

	var wg sync.WaitGroup
	errs := make(chan error, writers*perWriter)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				doc := &model.Document{
					ID:          fmt.Sprintf("doc-%d-%d", w, i),
					Name:        "report",
					DirectoryID: dir.ID,
					SubtenantID: alice.ID,
					ContentID:   "content",
					CreatedAt:   testTime(),
					UpdatedAt:   testTime(),
				}
				for {
					_, err := store.InsertDocumentVersion(doc)
					if err == nil {
						break
					}
					if !errors.Is(err, core.ErrConflict) {
						errs <- fmt.Errorf("writer %d: %w", w, err)
						return
					}
					// Lost the allocation race; recompute max+1.
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}

	docs, err := store.ListDocuments(dir.ID, true)
	if err != nil {
		t.Fatalf("ListDocuments() error = %v", err)
	}
	if len(docs) != writers*perWriter {
		t.Fatalf("len(docs) = %d, want %d", len(docs), writers*perWriter)
	}
	// ListDocuments orders by name then version; a gap or duplicate in
	// the sequence means an allocation leaked through the unique index.
	for i, d := range docs {
		if d.Version != int64(i+1) {
			t.Errorf("docs[%d].Version = %d, want %d", i, d.Version, i+1)
		}
	}
}

func TestSQLiteStore_Grants(t *testing.T) {
	newGrant := func(id, grantedBy string, level model.Level, expiresAt *time.Time) *model.Grant {
		return &model.Grant{
			ID:           id,
			GrantedBy:    grantedBy,
			GranteeKind:  model.GranteeSubtenant,
			GranteeID:    "st-bob",
			ResourceKind: model.KindDirectory,
			ResourceID:   "dir-1",
			Level:        level,
			CreatedAt:    testTime(),
			ExpiresAt:    expiresAt,
		}
	}

	t.Run("duplicate six-tuple is ErrConflict", func(t *testing.T) {
		store := newTestStore(t)
		alice := insertSubtenant(t, store, "alice")

		if err := store.InsertGrantUnique(newGrant("g1", alice.ID, model.LevelRead, nil)); err != nil {
			t.Fatalf("first InsertGrantUnique() error = %v", err)
		}
		if err := store.InsertGrantUnique(newGrant("g2", alice.ID, model.LevelRead, nil)); !errors.Is(err, core.ErrConflict) {
			t.Errorf("second InsertGrantUnique() error = %v, want ErrConflict", err)
		}
	})

	t.Run("different level is a distinct tuple", func(t *testing.T) {
		store := newTestStore(t)
		alice := insertSubtenant(t, store, "alice")

		if err := store.InsertGrantUnique(newGrant("g1", alice.ID, model.LevelRead, nil)); err != nil {
			t.Fatalf("InsertGrantUnique(read) error = %v", err)
		}
		if err := store.InsertGrantUnique(newGrant("g2", alice.ID, model.LevelWrite, nil)); err != nil {
			t.Errorf("InsertGrantUnique(write) error = %v", err)
		}
	})

	t.Run("active grant honors expiry at the given instant", func(t *testing.T) {
		store := newTestStore(t)
		alice := insertSubtenant(t, store, "alice")

		expiry := testTime().Add(time.Hour)
		if err := store.InsertGrantUnique(newGrant("g1", alice.ID, model.LevelRead, &expiry)); err != nil {
			t.Fatalf("InsertGrantUnique() error = %v", err)
		}

		g, err := store.FindActiveGrant(model.GranteeSubtenant, "st-bob", model.KindDirectory, "dir-1", model.LevelRead, testTime())
		if err != nil {
			t.Fatalf("FindActiveGrant(before) error = %v", err)
		}
		if g == nil {
			t.Error("FindActiveGrant(before expiry) = nil, want grant")
		}

		g, err = store.FindActiveGrant(model.GranteeSubtenant, "st-bob", model.KindDirectory, "dir-1", model.LevelRead, testTime().Add(2*time.Hour))
		if err != nil {
			t.Fatalf("FindActiveGrant(after) error = %v", err)
		}
		if g != nil {
			t.Error("FindActiveGrant(after expiry) = grant, want nil")
		}
	})

	t.Run("nil expiry never expires", func(t *testing.T) {
		store := newTestStore(t)
		alice := insertSubtenant(t, store, "alice")

		if err := store.InsertGrantUnique(newGrant("g1", alice.ID, model.LevelRead, nil)); err != nil {
			t.Fatalf("InsertGrantUnique() error = %v", err)
		}

		g, err := store.FindActiveGrant(model.GranteeSubtenant, "st-bob", model.KindDirectory, "dir-1", model.LevelRead, testTime().AddDate(10, 0, 0))
		if err != nil {
			t.Fatalf("FindActiveGrant() error = %v", err)
		}
		if g == nil {
			t.Error("FindActiveGrant() = nil, want grant with nil expiry")
		}
		if g != nil && g.ExpiresAt != nil {
			t.Errorf("ExpiresAt = %v, want nil", g.ExpiresAt)
		}
	})

	t.Run("expired rows stay until deleted", func(t *testing.T) {
		store := newTestStore(t)
		alice := insertSubtenant(t, store, "alice")

		past := testTime().Add(-time.Hour)
		if err := store.InsertGrantUnique(newGrant("g1", alice.ID, model.LevelRead, &past)); err != nil {
			t.Fatalf("InsertGrantUnique() error = %v", err)
		}

		g, err := store.FindGrantByID("g1")
		if err != nil {
			t.Fatalf("FindGrantByID() error = %v", err)
		}
		if g == nil {
			t.Fatal("expired grant missing from ledger")
		}

		if err := store.DeleteGrant("g1"); err != nil {
			t.Fatalf("DeleteGrant() error = %v", err)
		}
		g, err = store.FindGrantByID("g1")
		if err != nil {
			t.Fatalf("FindGrantByID() after delete error = %v", err)
		}
		if g != nil {
			t.Error("grant still present after delete")
		}
	})

	t.Run("list narrows by resource", func(t *testing.T) {
		store := newTestStore(t)
		alice := insertSubtenant(t, store, "alice")

		g1 := newGrant("g1", alice.ID, model.LevelRead, nil)
		g2 := newGrant("g2", alice.ID, model.LevelRead, nil)
		g2.ResourceID = "dir-2"
		for _, g := range []*model.Grant{g1, g2} {
			if err := store.InsertGrantUnique(g); err != nil {
				t.Fatalf("InsertGrantUnique(%s) error = %v", g.ID, err)
			}
		}

		all, err := store.ListGrantsBy(alice.ID, "", "")
		if err != nil {
			t.Fatalf("ListGrantsBy() error = %v", err)
		}
		if len(all) != 2 {
			t.Errorf("len(all) = %d, want 2", len(all))
		}

		one, err := store.ListGrantsBy(alice.ID, model.KindDirectory, "dir-2")
		if err != nil {
			t.Fatalf("ListGrantsBy(narrowed) error = %v", err)
		}
		if len(one) != 1 || one[0].ID != "g2" {
			t.Errorf("ListGrantsBy(narrowed) = %v, want only g2", one)
		}
	})
}

func TestSQLiteStore_Chunks(t *testing.T) {
	store := newTestStore(t)
	alice := insertSubtenant(t, store, "alice")
	dir := insertDirectory(t, store, "/docs", alice.ID)

	doc, err := store.InsertDocumentVersion(&model.Document{
		ID: "doc-1", Name: "report", DirectoryID: dir.ID, SubtenantID: alice.ID,
		ContentID: "content", CreatedAt: testTime(), UpdatedAt: testTime(),
	})
	if err != nil {
		t.Fatalf("InsertDocumentVersion() error = %v", err)
	}

	for i := int64(0); i < 3; i++ {
		c := &model.Chunk{
			ID:         "chunk-" + string(rune('0'+i)),
			DocumentID: doc.ID,
			ChunkIndex: i,
			Title:      "section",
			ContentID:  "blob",
			CreatedAt:  testTime(),
		}
		if err := store.InsertChunk(c); err != nil {
			t.Fatalf("InsertChunk(%d) error = %v", i, err)
		}
	}

	chunks, err := store.ListChunks(doc.ID)
	if err != nil {
		t.Fatalf("ListChunks() error = %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("len(chunks) = %d, want 3", len(chunks))
	}
	for i, c := range chunks {
		if c.ChunkIndex != int64(i) {
			t.Errorf("chunks[%d].ChunkIndex = %d, want %d", i, c.ChunkIndex, i)
		}
	}

	t.Run("duplicate index is ErrConflict", func(t *testing.T) {
		dup := &model.Chunk{
			ID: "chunk-dup", DocumentID: doc.ID, ChunkIndex: 0,
			ContentID: "blob", CreatedAt: testTime(),
		}
		if err := store.InsertChunk(dup); !errors.Is(err, core.ErrConflict) {
			t.Errorf("InsertChunk() error = %v, want ErrConflict", err)
		}
	})
}
