package core

import (
	"fmt"

	"docvault/internal/model"
)

// VisibilityService filters listings down to what a caller may see. It
// composes the cheap local predicates (privacy flag, ownership) with the
// ledger-backed CanAccess check; the local predicates short-circuit so
// large listings do not pay a ledger lookup per row they would exclude
// anyway.
type VisibilityService struct {
	access *AccessService
}

// NewVisibilityService creates a VisibilityService over the given access
// engine.
func NewVisibilityService(access *AccessService) *VisibilityService {
	return &VisibilityService{access: access}
}

// FilterVisible returns the subset of resources the identity may see. A
// resource passes iff it is not private (or includePrivate is set) and
// the caller owns it or holds any active grant on it. includePrivate
// only widens the privacy pre-filter; it never substitutes for the
// ownership/grant check.
func (v *VisibilityService) FilterVisible(identity *Identity, resources []model.Resource, includePrivate bool) ([]model.Resource, error) {
	visible := make([]model.Resource, 0, len(resources))
	for _, r := range resources {
		ok, err := v.visible(identity, r, includePrivate)
		if err != nil {
			return nil, err
		}
		if ok {
			visible = append(visible, r)
		}
	}
	return visible, nil
}

// FilterDirectories is FilterVisible specialized for directory listings.
func (v *VisibilityService) FilterDirectories(identity *Identity, dirs []*model.Directory, includePrivate bool) ([]*model.Directory, error) {
	visible := make([]*model.Directory, 0, len(dirs))
	for _, d := range dirs {
		ok, err := v.visible(identity, d, includePrivate)
		if err != nil {
			return nil, err
		}
		if ok {
			visible = append(visible, d)
		}
	}
	return visible, nil
}

// FilterDocuments is FilterVisible specialized for document listings.
func (v *VisibilityService) FilterDocuments(identity *Identity, docs []*model.Document, includePrivate bool) ([]*model.Document, error) {
	visible := make([]*model.Document, 0, len(docs))
	for _, d := range docs {
		ok, err := v.visible(identity, d, includePrivate)
		if err != nil {
			return nil, err
		}
		if ok {
			visible = append(visible, d)
		}
	}
	return visible, nil
}

func (v *VisibilityService) visible(identity *Identity, r model.Resource, includePrivate bool) (bool, error) {
	if r.Private() && !includePrivate {
		return false, nil
	}
	if r.OwnerID() != "" && r.OwnerID() == identity.SubtenantID() {
		return true, nil
	}
	ok, err := v.access.CanAccess(identity, r.Kind(), r.ResourceID())
	if err != nil {
		return false, fmt.Errorf("checking access for %s %s: %w", r.Kind(), r.ResourceID(), err)
	}
	return ok, nil
}
