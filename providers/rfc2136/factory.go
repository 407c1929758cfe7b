package rfc2136

import (
	"log/slog"

	"gitlab.bluewillows.net/root/zoneweaver/pkg/provider"
)

// Factory returns a provider.Factory for RFC 2136 instances. See
// LoadConfigFromMap for the recognized config keys.
func Factory(logger *slog.Logger) provider.Factory {
	return func(name string, config map[string]string) (provider.Provider, error) {
		cfg, err := LoadConfigFromMap(name, config)
		if err != nil {
			return nil, err
		}

		p, err := New(name, cfg, WithLogger(logger))
		if err != nil {
			return nil, err
		}

		p.logger.Info("RFC 2136 provider created",
			slog.String("name", name),
			slog.String("server", cfg.GetServer()),
			slog.Any("zones", cfg.Zones),
			slog.Bool("tsig", cfg.HasTSIG()),
			slog.Bool("tcp", cfg.UseTCP),
		)
		return p, nil
	}
}
