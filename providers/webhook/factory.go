package webhook

import (
	"log/slog"

	"gitlab.bluewillows.net/root/zoneweaver/pkg/provider"
)

// Factory returns a provider.Factory for creating Webhook provider instances.
// This is the recommended way to register the Webhook provider with the registry.
func Factory(logger *slog.Logger) provider.Factory {
	return func(name string, config map[string]string) (provider.Provider, error) {
		p, err := NewFromMap(name, config, WithProviderLogger(logger))
		if err != nil {
			return nil, err
		}
		if logger != nil {
			logger.Debug("webhook provider configured",
				slog.String("provider", name),
				slog.String("url", config["url"]),
				slog.Bool("sorted_listing", p.caps.SortedListing),
			)
		}
		return p, nil
	}
}
