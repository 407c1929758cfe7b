package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration error: %s", e.Errors[0])
	}
	return fmt.Sprintf("configuration errors:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// validateConfig performs cross-field validation on the complete configuration.
// Returns a list of validation errors.
func validateConfig(cfg *Config) []string {
	errs := validateGlobalConfig(cfg.Global)

	// Provider names are unique
	seen := make(map[string]bool)
	for _, inst := range cfg.ProviderInstances {
		if inst.Name == "" {
			continue
		}
		if seen[inst.Name] {
			errs = append(errs, fmt.Sprintf("duplicate provider instance name: %q", inst.Name))
		}
		seen[inst.Name] = true
	}

	return errs
}

// ValidateProviderTypes checks that every configured provider type is known.
// This is called when registering providers, not during config load.
func ValidateProviderTypes(cfg *Config, knownTypes []string) error {
	var errs []string
	for _, inst := range cfg.ProviderInstances {
		if err := validateProviderType(inst.TypeName, knownTypes); err != nil {
			errs = append(errs, fmt.Sprintf("provider %s: %v", inst.Name, err))
		}
	}
	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// validateProviderType checks that the provider type is known.
func validateProviderType(typeName string, knownTypes []string) error {
	if slices.Contains(knownTypes, typeName) {
		return nil
	}
	return fmt.Errorf("unknown provider type: %q (known types: %s)", typeName, strings.Join(knownTypes, ", "))
}
