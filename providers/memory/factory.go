package memory

import (
	"log/slog"
	"strconv"
	"strings"

	"gitlab.bluewillows.net/root/zoneweaver/pkg/provider"
)

// Factory returns a provider.Factory for in-memory instances.
//
// Recognized config keys:
//   - zones: comma-separated zones to create at startup
//   - page_size: records per List page (default 100)
//   - async_polls: when set, writes return jobs that complete after this many polls
func Factory(logger *slog.Logger) provider.Factory {
	return func(name string, config map[string]string) (provider.Provider, error) {
		opts := []Option{WithLogger(logger)}

		if zones := strings.TrimSpace(config["zones"]); zones != "" {
			var list []string
			for _, z := range strings.Split(zones, ",") {
				if z = strings.TrimSpace(z); z != "" {
					list = append(list, z)
				}
			}
			opts = append(opts, WithZones(list...))
		}

		if v := config["page_size"]; v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				return nil, provider.ErrConfigInvalid("page_size", v, "must be a positive integer")
			}
			opts = append(opts, WithPageSize(n))
		}

		if v := config["async_polls"]; v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return nil, provider.ErrConfigInvalid("async_polls", v, "must be a non-negative integer")
			}
			opts = append(opts, WithAsyncJobs(n))
		}

		return New(name, opts...), nil
	}
}
