package identity

import (
	"fmt"

	"docvault/internal/config"
	"docvault/internal/core"
)

// StaticProvider resolves credentials from a fixed in-config table.
// It backs the CLI and tests, where no external identity service runs.
type StaticProvider struct {
	principals map[string]config.StaticPrincipal // credential -> principal
	groups     map[string][]string               // principal id -> groups
}

// NewStaticProvider creates a StaticProvider from the configured
// principal table.
func NewStaticProvider(principals map[string]config.StaticPrincipal) *StaticProvider {
	groups := make(map[string][]string, len(principals))
	for _, p := range principals {
		groups[p.ID] = p.Groups
	}
	return &StaticProvider{principals: principals, groups: groups}
}

// Verify looks the credential up in the static table.
func (p *StaticProvider) Verify(credential string) (*core.Principal, error) {
	sp, ok := p.principals[credential]
	if !ok {
		return nil, fmt.Errorf("unknown credential: %w", core.ErrUnauthenticated)
	}
	return &core.Principal{ID: sp.ID, Email: sp.Email}, nil
}

// GroupsFor returns the statically configured groups for a principal.
func (p *StaticProvider) GroupsFor(principalID string) ([]string, error) {
	return p.groups[principalID], nil
}

// Compile-time checks against the core contracts
var (
	_ core.IdentityProvider = (*StaticProvider)(nil)
	_ core.GroupLookup      = (*StaticProvider)(nil)
)
