package core

import (
	"fmt"
	"time"

	"docvault/internal/model"
)

// LedgerService manages the permission ledger: time-bounded grants from
// a resource owner to another subtenant or a group. Only the owner of a
// resource can grant on it, and only the granter can revoke or list what
// they granted.
type LedgerService struct {
	store  Store
	logger Logger
	clock  Clock
	idgen  IDGenerator
}

// NewLedgerService creates a LedgerService with the provided dependencies.
func NewLedgerService(store Store, logger Logger, clock Clock, idgen IDGenerator) *LedgerService {
	return &LedgerService{
		store:  store,
		logger: logger,
		clock:  clock,
		idgen:  idgen,
	}
}

// Grant issues a permission on a resource the caller owns. Sharing is
// owner-only: a grantee cannot re-share, whatever level they hold. The
// duplicate check and insert run as one atomic unit in the store; an
// identical six-tuple, expired or not, is rejected with ErrConflict.
func (s *LedgerService) Grant(identity *Identity, granteeKind model.GranteeKind, granteeID string, resourceKind model.ResourceKind, resourceID string, level model.Level, expiresAt *time.Time) (*model.Grant, error) {
	if !granteeKind.Valid() {
		return nil, fmt.Errorf("invalid grantee kind %q", granteeKind)
	}
	if !resourceKind.Valid() {
		return nil, fmt.Errorf("invalid resource kind %q", resourceKind)
	}
	if !level.Valid() {
		return nil, fmt.Errorf("invalid permission level %q", level)
	}

	owner, err := resourceOwner(s.store, resourceKind, resourceID)
	if err != nil {
		return nil, err
	}
	if owner != identity.SubtenantID() {
		return nil, fmt.Errorf("only the resource owner can grant: %w", ErrForbidden)
	}

	g := &model.Grant{
		ID:           s.idgen.New(),
		GrantedBy:    identity.SubtenantID(),
		GranteeKind:  granteeKind,
		GranteeID:    granteeID,
		ResourceKind: resourceKind,
		ResourceID:   resourceID,
		Level:        level,
		CreatedAt:    s.clock.Now(),
		ExpiresAt:    expiresAt,
	}

	if err := s.store.InsertGrantUnique(g); err != nil {
		if isConflict(err) {
			return nil, fmt.Errorf("grant already exists: %w", ErrConflict)
		}
		return nil, fmt.Errorf("creating grant: %w", err)
	}

	s.logger.Info("permission granted",
		"grant", g.ID, "grantee_kind", granteeKind, "grantee", granteeID,
		"resource_kind", resourceKind, "resource", resourceID, "level", level)
	return g, nil
}

// Revoke hard-deletes a grant. Only the granting subtenant may revoke.
func (s *LedgerService) Revoke(identity *Identity, grantID string) error {
	g, err := s.store.FindGrantByID(grantID)
	if err != nil {
		return fmt.Errorf("finding grant: %w", err)
	}
	if g == nil {
		return fmt.Errorf("grant %s: %w", grantID, ErrNotFound)
	}
	if g.GrantedBy != identity.SubtenantID() {
		return fmt.Errorf("only the granter can revoke: %w", ErrForbidden)
	}

	if err := s.store.DeleteGrant(grantID); err != nil {
		return fmt.Errorf("deleting grant: %w", err)
	}

	s.logger.Info("permission revoked", "grant", grantID)
	return nil
}

// ListGrantedBy returns the grants the caller has issued, optionally
// narrowed to one resource. There is no global grant listing: a caller
// only ever sees their own ledger entries.
func (s *LedgerService) ListGrantedBy(identity *Identity, resourceKind model.ResourceKind, resourceID string) ([]*model.Grant, error) {
	grants, err := s.store.ListGrantsBy(identity.SubtenantID(), resourceKind, resourceID)
	if err != nil {
		return nil, fmt.Errorf("listing grants: %w", err)
	}
	return grants, nil
}

// FindActiveGrant returns a grant for the exact tuple that is active at
// the given instant. Expiry is evaluated here at read time; expired rows
// stay in the ledger until revoked.
func (s *LedgerService) FindActiveGrant(granteeKind model.GranteeKind, granteeID string, resourceKind model.ResourceKind, resourceID string, level model.Level, now time.Time) (*model.Grant, error) {
	g, err := s.store.FindActiveGrant(granteeKind, granteeID, resourceKind, resourceID, level, now)
	if err != nil {
		return nil, fmt.Errorf("finding active grant: %w", err)
	}
	return g, nil
}

// resourceOwner loads the resource and returns its owning subtenant id
// (empty for public/system resources). A missing resource is ErrNotFound.
func resourceOwner(store Store, kind model.ResourceKind, id string) (string, error) {
	switch kind {
	case model.KindDirectory:
		dir, err := store.FindDirectoryByID(id)
		if err != nil {
			return "", fmt.Errorf("finding directory: %w", err)
		}
		if dir == nil {
			return "", fmt.Errorf("directory %s: %w", id, ErrNotFound)
		}
		return dir.SubtenantID, nil
	case model.KindDocument:
		doc, err := store.FindDocumentByID(id)
		if err != nil {
			return "", fmt.Errorf("finding document: %w", err)
		}
		if doc == nil {
			return "", fmt.Errorf("document %s: %w", id, ErrNotFound)
		}
		return doc.SubtenantID, nil
	default:
		return "", fmt.Errorf("unknown resource kind %q", kind)
	}
}
