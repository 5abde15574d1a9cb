package core

import (
	"fmt"
	"strings"

	"docvault/internal/model"
)

// Principal is a verified external identity as reported by the identity
// provider.
type Principal struct {
	ID    string
	Email string
}

// IdentityProvider verifies an opaque credential with the external
// identity service. A failed verification returns ErrUnauthenticated.
type IdentityProvider interface {
	Verify(credential string) (*Principal, error)
}

// GroupLookup resolves the group memberships of a principal. A failed
// lookup is reported as an error wrapping ErrUnavailable; callers must
// degrade to the empty set rather than denying owner or direct-grant
// access.
type GroupLookup interface {
	GroupsFor(principalID string) ([]string, error)
}

// Identity is the verified caller context threaded through every
// operation: the subtenant plus the external principal id used for
// group resolution.
type Identity struct {
	Subtenant  *model.Subtenant
	ExternalID string
}

// SubtenantID returns the caller's owning subtenant id.
func (id *Identity) SubtenantID() string { return id.Subtenant.ID }

// IdentityService maps external principals to subtenants. A subtenant is
// created lazily the first time a new principal authenticates.
type IdentityService struct {
	store    Store
	provider IdentityProvider
	logger   Logger
	clock    Clock
	idgen    IDGenerator
}

// NewIdentityService creates an IdentityService with the provided
// dependencies.
func NewIdentityService(store Store, provider IdentityProvider, logger Logger, clock Clock, idgen IDGenerator) *IdentityService {
	return &IdentityService{
		store:    store,
		provider: provider,
		logger:   logger,
		clock:    clock,
		idgen:    idgen,
	}
}

// Authenticate verifies the credential and returns the caller's identity
// context. The active flag gates authentication only: deactivated
// subtenants cannot authenticate, but resources and grants they issued
// earlier stay valid for others.
func (s *IdentityService) Authenticate(credential string) (*Identity, error) {
	p, err := s.provider.Verify(credential)
	if err != nil {
		return nil, fmt.Errorf("verifying credential: %w", err)
	}

	st, err := s.getOrCreateSubtenant(p)
	if err != nil {
		return nil, err
	}

	if !st.IsActive {
		return nil, fmt.Errorf("subtenant %s is deactivated: %w", st.ID, ErrUnauthenticated)
	}

	return &Identity{Subtenant: st, ExternalID: p.ID}, nil
}

// getOrCreateSubtenant returns the subtenant mapped to the principal,
// creating one on first sight. Two concurrent first sights race on the
// external-id unique index; the loser re-reads the winner's row.
func (s *IdentityService) getOrCreateSubtenant(p *Principal) (*model.Subtenant, error) {
	st, err := s.store.FindSubtenantByExternalID(p.ID)
	if err != nil {
		return nil, fmt.Errorf("finding subtenant: %w", err)
	}
	if st != nil {
		return st, nil
	}

	now := s.clock.Now()
	st = &model.Subtenant{
		ID:          s.idgen.New(),
		ExternalID:  p.ID,
		Name:        displayName(p),
		Description: fmt.Sprintf("Subtenant for principal %s", principalLabel(p)),
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.InsertSubtenant(st); err != nil {
		if isConflict(err) {
			existing, ferr := s.store.FindSubtenantByExternalID(p.ID)
			if ferr != nil {
				return nil, fmt.Errorf("re-reading subtenant after conflict: %w", ferr)
			}
			if existing != nil {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("creating subtenant: %w", err)
	}

	s.logger.Info("subtenant created", "subtenant", st.ID, "principal", p.ID)
	return st, nil
}

// Update changes the caller's own name and description. Empty arguments
// leave the current value in place.
func (s *IdentityService) Update(identity *Identity, name, description string) (*model.Subtenant, error) {
	st := identity.Subtenant
	if name != "" {
		st.Name = name
	}
	if description != "" {
		st.Description = description
	}
	st.UpdatedAt = s.clock.Now()

	if err := s.store.UpdateSubtenant(st); err != nil {
		return nil, fmt.Errorf("updating subtenant: %w", err)
	}
	return st, nil
}

// Deactivate soft-deletes the caller's own subtenant. Owned resources
// and previously issued grants are left untouched.
func (s *IdentityService) Deactivate(identity *Identity, subtenantID string) error {
	if identity.SubtenantID() != subtenantID {
		return fmt.Errorf("can only deactivate own subtenant: %w", ErrForbidden)
	}
	if err := s.store.DeactivateSubtenant(subtenantID); err != nil {
		return fmt.Errorf("deactivating subtenant: %w", err)
	}
	s.logger.Info("subtenant deactivated", "subtenant", subtenantID)
	return nil
}

// Get returns subtenant details. Callers may only inspect their own
// subtenant.
func (s *IdentityService) Get(identity *Identity, subtenantID string) (*model.Subtenant, error) {
	if identity.SubtenantID() != subtenantID {
		return nil, fmt.Errorf("can only view own subtenant: %w", ErrForbidden)
	}
	return identity.Subtenant, nil
}

func displayName(p *Principal) string {
	if p.Email == "" {
		return "User Unknown"
	}
	local, _, _ := strings.Cut(p.Email, "@")
	return "User " + local
}

func principalLabel(p *Principal) string {
	if p.Email != "" {
		return p.Email
	}
	return p.ID
}
