package core_test

import (
	"fmt"
	"testing"
	"time"

	"docvault/internal/core"
	"docvault/internal/database"
	"docvault/internal/model"
	"docvault/internal/testutil"
)

// env wires the full service stack over an in-memory store with a
// deterministic clock and id generator.
type env struct {
	store      *database.SQLiteStore
	clock      *testutil.FixedClock
	groups     *testutil.StaticGroups
	tree       *core.TreeService
	ledger     *core.LedgerService
	access     *core.AccessService
	visibility *core.VisibilityService
}

func newEnv(t *testing.T) *env {
	t.Helper()

	store := testutil.NewTestStore(t)
	clock := &testutil.FixedClock{T: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	idgen := &testutil.SeqIDGenerator{}
	groups := &testutil.StaticGroups{Groups: map[string][]string{}}
	logger := core.NewNopLogger()

	access := core.NewAccessService(store, groups, logger, clock)

	return &env{
		store:      store,
		clock:      clock,
		groups:     groups,
		tree:       core.NewTreeService(store, logger, clock, idgen),
		ledger:     core.NewLedgerService(store, logger, clock, idgen),
		access:     access,
		visibility: core.NewVisibilityService(access),
	}
}

// subtenant inserts a subtenant row and returns an identity for it.
func (e *env) subtenant(t *testing.T, id, externalID string) *core.Identity {
	t.Helper()

	st := &model.Subtenant{
		ID:         id,
		ExternalID: externalID,
		Name:       "User " + id,
		IsActive:   true,
		CreatedAt:  e.clock.Now(),
		UpdatedAt:  e.clock.Now(),
	}
	if err := e.store.InsertSubtenant(st); err != nil {
		t.Fatalf("InsertSubtenant(%s) error = %v", id, err)
	}
	return &core.Identity{Subtenant: st, ExternalID: externalID}
}

// directory materializes a path owned by the given subtenant.
func (e *env) directory(t *testing.T, path, owner string) *model.Directory {
	t.Helper()

	dir, err := e.tree.ResolveOrCreatePath(path, owner)
	if err != nil {
		t.Fatalf("ResolveOrCreatePath(%s) error = %v", path, err)
	}
	return dir
}

// document creates a document version in the given directory.
func (e *env) document(t *testing.T, name, directoryID, owner string) *model.Document {
	t.Helper()

	doc, err := e.tree.CreateDocumentVersion(name, directoryID, owner, fmt.Sprintf("content-%s", name), name+".txt", "text/plain")
	if err != nil {
		t.Fatalf("CreateDocumentVersion(%s) error = %v", name, err)
	}
	return doc
}
