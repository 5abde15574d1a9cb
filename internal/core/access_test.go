package core_test

import (
	"testing"
	"time"

	"docvault/internal/core"
	"docvault/internal/model"
)

func TestAccessService_Authorize(t *testing.T) {
	t.Run("owner holds every level without a grant", func(t *testing.T) {
		e := newEnv(t)
		alice := e.subtenant(t, "st-alice", "ext-alice")
		dir := e.directory(t, "/docs", alice.SubtenantID())

		for _, level := range model.Levels {
			ok, err := e.access.Authorize(alice, model.KindDirectory, dir.ID, level)
			if err != nil {
				t.Fatalf("Authorize(%s) error = %v", level, err)
			}
			if !ok {
				t.Errorf("Authorize(%s) = false, want true for owner", level)
			}
		}
	})

	t.Run("owner is not blocked by an expired grant row", func(t *testing.T) {
		e := newEnv(t)
		alice := e.subtenant(t, "st-alice", "ext-alice")
		dir := e.directory(t, "/docs", alice.SubtenantID())

		// A stale self-referential row must be irrelevant: ownership
		// short-circuits before the ledger is consulted.
		past := e.clock.Now().Add(-time.Hour)
		if _, err := e.ledger.Grant(alice, model.GranteeSubtenant, alice.SubtenantID(), model.KindDirectory, dir.ID, model.LevelWrite, &past); err != nil {
			t.Fatalf("Grant() error = %v", err)
		}

		ok, err := e.access.Authorize(alice, model.KindDirectory, dir.ID, model.LevelWrite)
		if err != nil {
			t.Fatalf("Authorize() error = %v", err)
		}
		if !ok {
			t.Error("Authorize() = false, want true for owner despite expired grant")
		}
	})

	t.Run("non-owner without grants is denied", func(t *testing.T) {
		e := newEnv(t)
		alice := e.subtenant(t, "st-alice", "ext-alice")
		bob := e.subtenant(t, "st-bob", "ext-bob")
		dir := e.directory(t, "/docs", alice.SubtenantID())

		ok, err := e.access.Authorize(bob, model.KindDirectory, dir.ID, model.LevelRead)
		if err != nil {
			t.Fatalf("Authorize() error = %v", err)
		}
		if ok {
			t.Error("Authorize() = true, want false without grants")
		}
	})

	t.Run("direct grant allows only its level", func(t *testing.T) {
		e := newEnv(t)
		alice := e.subtenant(t, "st-alice", "ext-alice")
		bob := e.subtenant(t, "st-bob", "ext-bob")
		dir := e.directory(t, "/docs", alice.SubtenantID())

		if _, err := e.ledger.Grant(alice, model.GranteeSubtenant, bob.SubtenantID(), model.KindDirectory, dir.ID, model.LevelRead, nil); err != nil {
			t.Fatalf("Grant() error = %v", err)
		}

		ok, err := e.access.Authorize(bob, model.KindDirectory, dir.ID, model.LevelRead)
		if err != nil {
			t.Fatalf("Authorize(read) error = %v", err)
		}
		if !ok {
			t.Error("Authorize(read) = false, want true with read grant")
		}

		ok, err = e.access.Authorize(bob, model.KindDirectory, dir.ID, model.LevelWrite)
		if err != nil {
			t.Fatalf("Authorize(write) error = %v", err)
		}
		if ok {
			t.Error("Authorize(write) = true, want false with only a read grant")
		}
	})

	t.Run("expired grant denies", func(t *testing.T) {
		e := newEnv(t)
		alice := e.subtenant(t, "st-alice", "ext-alice")
		bob := e.subtenant(t, "st-bob", "ext-bob")
		dir := e.directory(t, "/docs", alice.SubtenantID())

		expiry := e.clock.Now().Add(time.Hour)
		if _, err := e.ledger.Grant(alice, model.GranteeSubtenant, bob.SubtenantID(), model.KindDirectory, dir.ID, model.LevelRead, &expiry); err != nil {
			t.Fatalf("Grant() error = %v", err)
		}

		ok, err := e.access.Authorize(bob, model.KindDirectory, dir.ID, model.LevelRead)
		if err != nil {
			t.Fatalf("Authorize() before expiry error = %v", err)
		}
		if !ok {
			t.Error("Authorize() = false before expiry, want true")
		}

		e.clock.Advance(2 * time.Hour)

		ok, err = e.access.Authorize(bob, model.KindDirectory, dir.ID, model.LevelRead)
		if err != nil {
			t.Fatalf("Authorize() after expiry error = %v", err)
		}
		if ok {
			t.Error("Authorize() = true after expiry, want false")
		}
	})

	t.Run("group grant allows members", func(t *testing.T) {
		e := newEnv(t)
		alice := e.subtenant(t, "st-alice", "ext-alice")
		bob := e.subtenant(t, "st-bob", "ext-bob")
		dir := e.directory(t, "/docs", alice.SubtenantID())

		if _, err := e.ledger.Grant(alice, model.GranteeGroup, "engineering", model.KindDirectory, dir.ID, model.LevelWrite, nil); err != nil {
			t.Fatalf("Grant() error = %v", err)
		}
		e.groups.Groups["ext-bob"] = []string{"sales", "engineering"}

		ok, err := e.access.Authorize(bob, model.KindDirectory, dir.ID, model.LevelWrite)
		if err != nil {
			t.Fatalf("Authorize() error = %v", err)
		}
		if !ok {
			t.Error("Authorize() = false, want true via group grant")
		}
	})

	t.Run("group lookup failure degrades to no memberships", func(t *testing.T) {
		e := newEnv(t)
		alice := e.subtenant(t, "st-alice", "ext-alice")
		bob := e.subtenant(t, "st-bob", "ext-bob")
		dir := e.directory(t, "/docs", alice.SubtenantID())

		if _, err := e.ledger.Grant(alice, model.GranteeGroup, "engineering", model.KindDirectory, dir.ID, model.LevelWrite, nil); err != nil {
			t.Fatalf("Grant() error = %v", err)
		}
		if _, err := e.ledger.Grant(alice, model.GranteeSubtenant, bob.SubtenantID(), model.KindDirectory, dir.ID, model.LevelRead, nil); err != nil {
			t.Fatalf("Grant() error = %v", err)
		}

		e.groups.Groups["ext-bob"] = []string{"engineering"}
		e.groups.Err = core.ErrUnavailable

		// Group-based access is lost while the lookup is down.
		ok, err := e.access.Authorize(bob, model.KindDirectory, dir.ID, model.LevelWrite)
		if err != nil {
			t.Fatalf("Authorize(write) error = %v", err)
		}
		if ok {
			t.Error("Authorize(write) = true with lookup down, want false")
		}

		// Direct grants and ownership keep working.
		ok, err = e.access.Authorize(bob, model.KindDirectory, dir.ID, model.LevelRead)
		if err != nil {
			t.Fatalf("Authorize(read) error = %v", err)
		}
		if !ok {
			t.Error("Authorize(read) = false with lookup down, want true via direct grant")
		}

		ok, err = e.access.Authorize(alice, model.KindDirectory, dir.ID, model.LevelDelete)
		if err != nil {
			t.Fatalf("Authorize(owner) error = %v", err)
		}
		if !ok {
			t.Error("Authorize(owner) = false with lookup down, want true")
		}
	})

	t.Run("grants on one resource do not leak to another", func(t *testing.T) {
		e := newEnv(t)
		alice := e.subtenant(t, "st-alice", "ext-alice")
		bob := e.subtenant(t, "st-bob", "ext-bob")
		d1 := e.directory(t, "/a", alice.SubtenantID())
		d2 := e.directory(t, "/b", alice.SubtenantID())

		if _, err := e.ledger.Grant(alice, model.GranteeSubtenant, bob.SubtenantID(), model.KindDirectory, d1.ID, model.LevelRead, nil); err != nil {
			t.Fatalf("Grant() error = %v", err)
		}

		ok, err := e.access.Authorize(bob, model.KindDirectory, d2.ID, model.LevelRead)
		if err != nil {
			t.Fatalf("Authorize() error = %v", err)
		}
		if ok {
			t.Error("Authorize() = true on ungranted resource, want false")
		}
	})
}

func TestAccessService_CanAccess(t *testing.T) {
	t.Run("any level grants visibility", func(t *testing.T) {
		e := newEnv(t)
		alice := e.subtenant(t, "st-alice", "ext-alice")
		bob := e.subtenant(t, "st-bob", "ext-bob")
		dir := e.directory(t, "/docs", alice.SubtenantID())

		if _, err := e.ledger.Grant(alice, model.GranteeSubtenant, bob.SubtenantID(), model.KindDirectory, dir.ID, model.LevelDelete, nil); err != nil {
			t.Fatalf("Grant() error = %v", err)
		}

		ok, err := e.access.CanAccess(bob, model.KindDirectory, dir.ID)
		if err != nil {
			t.Fatalf("CanAccess() error = %v", err)
		}
		if !ok {
			t.Error("CanAccess() = false, want true with a delete grant")
		}
	})

	t.Run("no grants means no visibility", func(t *testing.T) {
		e := newEnv(t)
		alice := e.subtenant(t, "st-alice", "ext-alice")
		bob := e.subtenant(t, "st-bob", "ext-bob")
		dir := e.directory(t, "/docs", alice.SubtenantID())

		ok, err := e.access.CanAccess(bob, model.KindDirectory, dir.ID)
		if err != nil {
			t.Fatalf("CanAccess() error = %v", err)
		}
		if ok {
			t.Error("CanAccess() = true, want false")
		}
	})
}
