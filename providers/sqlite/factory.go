package sqlite

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"gitlab.bluewillows.net/root/zoneweaver/pkg/provider"
	"gitlab.bluewillows.net/root/zoneweaver/pkg/rrset"
)

// Factory returns a provider.Factory for sqlite instances.
//
// Recognized config keys:
//   - path: database file, or ":memory:" (required)
//   - zones: comma-separated zones to create at startup
//   - page_size: records per List page (default 100)
//   - regions: geo claim space, e.g. "US=NY|CA;EU=DE" (default: any)
//   - weights: comma-separated accepted weights (default: any)
func Factory(logger *slog.Logger) provider.Factory {
	return func(name string, config map[string]string) (provider.Provider, error) {
		path := strings.TrimSpace(config["path"])
		if path == "" {
			return nil, provider.ErrConfigMissing("path")
		}

		opts := []Option{WithLogger(logger)}

		if v := config["page_size"]; v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				return nil, provider.ErrConfigInvalid("page_size", v, "must be a positive integer")
			}
			opts = append(opts, WithPageSize(n))
		}

		if v := config["regions"]; v != "" {
			regions, err := rrset.ParseRegions(v)
			if err != nil {
				return nil, provider.ErrConfigInvalid("regions", v, err.Error())
			}
			opts = append(opts, WithRegions(regions))
		}

		if v := config["weights"]; v != "" {
			var weights []int
			for _, w := range strings.Split(v, ",") {
				n, err := strconv.Atoi(strings.TrimSpace(w))
				if err != nil || n < 0 {
					return nil, provider.ErrConfigInvalid("weights", v, "must be comma-separated non-negative integers")
				}
				weights = append(weights, n)
			}
			opts = append(opts, WithWeights(weights...))
		}

		db, err := Open(path)
		if err != nil {
			return nil, err
		}
		p := New(name, db, opts...)

		for _, z := range strings.Split(config["zones"], ",") {
			if z = strings.TrimSpace(z); z == "" {
				continue
			}
			if err := p.CreateZone(context.Background(), z); err != nil {
				p.Close()
				return nil, provider.ErrConfigInvalid("zones", z, err.Error())
			}
		}
		return p, nil
	}
}
