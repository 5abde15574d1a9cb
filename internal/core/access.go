package core

import (
	"fmt"

	"docvault/internal/model"
)

// AccessService is the access resolution engine: a pure decision
// function over the identity context, the resource tree, the permission
// ledger and the external group membership lookup.
type AccessService struct {
	store  Store
	groups GroupLookup
	logger Logger
	clock  Clock
}

// NewAccessService creates an AccessService with the provided
// dependencies.
func NewAccessService(store Store, groups GroupLookup, logger Logger, clock Clock) *AccessService {
	return &AccessService{
		store:  store,
		groups: groups,
		logger: logger,
		clock:  clock,
	}
}

// Authorize decides whether the identity may perform an operation at the
// given level on a resource. Evaluation short-circuits in strict
// precedence order:
//
//  1. Ownership: the owner has every level on everything they own; the
//     ledger is never consulted, so owners cannot be locked out by a
//     missing or expired grant row.
//  2. Direct grant to the subtenant, active at evaluation time.
//  3. Group grant for any group the external lookup reports.
//
// Anything else is a deny. A missing resource is ErrNotFound.
func (s *AccessService) Authorize(identity *Identity, resourceKind model.ResourceKind, resourceID string, level model.Level) (bool, error) {
	owner, err := resourceOwner(s.store, resourceKind, resourceID)
	if err != nil {
		return false, err
	}
	if owner != "" && owner == identity.SubtenantID() {
		return true, nil
	}

	now := s.clock.Now()

	direct, err := s.store.FindActiveGrant(model.GranteeSubtenant, identity.SubtenantID(), resourceKind, resourceID, level, now)
	if err != nil {
		return false, fmt.Errorf("checking direct grant: %w", err)
	}
	if direct != nil {
		return true, nil
	}

	for _, groupID := range s.memberships(identity) {
		g, err := s.store.FindActiveGrant(model.GranteeGroup, groupID, resourceKind, resourceID, level, now)
		if err != nil {
			return false, fmt.Errorf("checking group grant: %w", err)
		}
		if g != nil {
			return true, nil
		}
	}

	return false, nil
}

// CanAccess reports whether the resource is visible to the identity at
// all: an allow at any level. Distinct from "this specific operation is
// permitted".
func (s *AccessService) CanAccess(identity *Identity, resourceKind model.ResourceKind, resourceID string) (bool, error) {
	for _, level := range model.Levels {
		ok, err := s.Authorize(identity, resourceKind, resourceID, level)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// memberships resolves the caller's groups. A lookup failure degrades to
// the empty set: the external service being down must never block owner
// or direct-grant access, and must never grant extra access either.
func (s *AccessService) memberships(identity *Identity) []string {
	groups, err := s.groups.GroupsFor(identity.ExternalID)
	if err != nil {
		s.logger.Warn("group lookup failed, treating as no memberships",
			"principal", identity.ExternalID, "error", err)
		return nil
	}
	return groups
}
