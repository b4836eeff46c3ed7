// Package command contains write operations (CQRS - Commands).
package command

import (
	"time"

	"github.com/skillpath/skillpath-hub/config"
	"github.com/skillpath/skillpath-hub/internal/domain/shared"
)

// FeatureGate reports whether a feature is on for an identity.
// *config.FeatureFlags implements it.
type FeatureGate interface {
	IsEnabled(feature, identity string) bool
}

// gateOrDefault falls back to the built-in flag defaults when no gate is
// configured.
func gateOrDefault(g FeatureGate) FeatureGate {
	if g == nil {
		return config.NewFeatureFlags()
	}
	if ff, ok := g.(*config.FeatureFlags); ok && ff == nil {
		return config.NewFeatureFlags()
	}
	return g
}

func publisherOrNop(p shared.EventPublisher) shared.EventPublisher {
	if p == nil {
		return shared.NopPublisher{}
	}
	return p
}

func utcNow() time.Time {
	return time.Now().UTC()
}
