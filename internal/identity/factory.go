package identity

import (
	"fmt"
	"time"

	"docvault/internal/config"
	"docvault/internal/core"
)

// Provider bundles the two identity-service capabilities the core
// consumes.
type Provider interface {
	core.IdentityProvider
	core.GroupLookup
}

// NewProviderFromConfig creates a Provider based on the identity config
// type.
func NewProviderFromConfig(cfg config.IdentityConfig) (Provider, error) {
	switch cfg.Type {
	case "http":
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("http identity provider requires base_url to be set")
		}
		return NewHTTPProvider(cfg.BaseURL, time.Duration(cfg.TimeoutSeconds)*time.Second), nil
	case "static", "":
		return NewStaticProvider(cfg.Principals), nil
	default:
		return nil, fmt.Errorf("unknown identity provider type: %s", cfg.Type)
	}
}
