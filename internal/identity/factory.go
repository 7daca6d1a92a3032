package identity

import (
	"fmt"

	"nifty-go/internal/config"
	"nifty-go/internal/registry"
)

// NewProviderFromConfig creates the IdentityProvider selected by cfg.Type.
func NewProviderFromConfig(cfg config.IdentityConfig, clock registry.Clock) (registry.IdentityProvider, error) {
	switch cfg.Type {
	case "static", "":
		return NewStaticProvider(), nil
	case "jwt":
		return NewJWTProvider(cfg, clock)
	default:
		return nil, fmt.Errorf("unknown identity type: %s", cfg.Type)
	}
}
