package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"docvault/internal/core"
)

const defaultTimeout = 5 * time.Second

// HTTPProvider verifies credentials against the external identity
// service and resolves group memberships from it. Both calls are
// bounded by the configured timeout.
type HTTPProvider struct {
	baseURL string
	client  *http.Client
}

// NewHTTPProvider creates an HTTPProvider for the given base URL. A
// non-positive timeout falls back to the default of 5s.
func NewHTTPProvider(baseURL string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Verify resolves an opaque bearer credential into a principal. Any
// failure to verify is ErrUnauthenticated; the core never proceeds
// without an identity.
func (p *HTTPProvider) Verify(credential string) (*core.Principal, error) {
	ctx, cancel := context.WithTimeout(context.Background(), p.client.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/v1/users/me", nil)
	if err != nil {
		return nil, fmt.Errorf("building verify request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+credential)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("verifying credential: %v: %w", err, core.ErrUnauthenticated)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("identity service returned %d: %w", resp.StatusCode, core.ErrUnauthenticated)
	}

	var body struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding identity response: %v: %w", err, core.ErrUnauthenticated)
	}
	if body.ID == "" {
		return nil, fmt.Errorf("identity response missing principal id: %w", core.ErrUnauthenticated)
	}

	return &core.Principal{ID: body.ID, Email: body.Email}, nil
}

// GroupsFor returns the group ids the principal belongs to. Failures
// are reported as ErrUnavailable; callers degrade to the empty set
// rather than denying access the caller holds by ownership or direct
// grant.
func (p *HTTPProvider) GroupsFor(principalID string) ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), p.client.Timeout)
	defer cancel()

	url := fmt.Sprintf("%s/api/v1/users/%s/groups", p.baseURL, principalID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building group request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching groups: %v: %w", err, core.ErrUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("group lookup returned %d: %w", resp.StatusCode, core.ErrUnavailable)
	}

	var body []struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding group response: %v: %w", err, core.ErrUnavailable)
	}

	groups := make([]string, 0, len(body))
	for _, g := range body {
		if g.ID != "" {
			groups = append(groups, g.ID)
		}
	}
	return groups, nil
}

// Compile-time checks against the core contracts
var (
	_ core.IdentityProvider = (*HTTPProvider)(nil)
	_ core.GroupLookup      = (*HTTPProvider)(nil)
)
