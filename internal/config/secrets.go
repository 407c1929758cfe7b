package config

import (
	"fmt"
	"os"
	"strings"
)

// secretKeys are provider settings that may be supplied only through the
// environment, without appearing in the config file.
var secretKeys = []string{"token", "api_key", "password", "secret"}

// fileSuffix marks a setting whose value is a path to read.
const fileSuffix = "_file"

// getEnv retrieves an environment variable value.
func getEnv(key string) string {
	return os.Getenv(key)
}

// getEnvOrFile retrieves a value from either a direct environment variable
// or a file path specified by the file key (Docker secrets pattern).
//
// If both are set, the file takes precedence. This allows local development
// with direct values while production uses Docker secrets.
//
// The file contents are trimmed of leading/trailing whitespace.
func getEnvOrFile(directKey, fileKey string) string {
	if filePath := os.Getenv(fileKey); filePath != "" {
		content, err := os.ReadFile(filePath)
		if err == nil {
			return strings.TrimSpace(string(content))
		}
	}

	return os.Getenv(directKey)
}

// getEnvWithFileFallback retrieves a value supporting the _FILE suffix pattern.
// Given a base key like "TOKEN", it checks:
//  1. TOKEN_FILE - reads file contents if set
//  2. TOKEN - returns direct value if set
func getEnvWithFileFallback(prefix, key string) string {
	return getEnvOrFile(prefix+key, prefix+key+"_FILE")
}

// readSecretFile reads a secret from path, trimmed of surrounding whitespace.
func readSecretFile(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(content)), nil
}

// resolveSecrets returns the provider settings of instance name with file and
// environment indirection applied. For a key K, in increasing precedence:
//
//	K                      inline value from the config file
//	K_file                 path in the config file to a file holding the value
//	ZONEWEAVER_<NAME>_K    environment value
//	ZONEWEAVER_<NAME>_K_FILE
//
// Keys are lower-cased. Unreadable files named in the config are errors;
// unreadable files named in the environment fall back to the direct value.
func resolveSecrets(name string, settings map[string]string) (map[string]string, []string) {
	var errs []string
	out := make(map[string]string, len(settings))

	for k, v := range settings {
		k = strings.ToLower(k)
		if base, ok := strings.CutSuffix(k, fileSuffix); ok && base != "" {
			value, err := readSecretFile(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("provider %s: %s: %v", name, k, err))
				continue
			}
			out[base] = value
			continue
		}
		if _, set := out[k]; !set {
			out[k] = v
		}
	}

	keys := make(map[string]bool, len(out)+len(secretKeys))
	for k := range out {
		keys[k] = true
	}
	for _, k := range secretKeys {
		keys[k] = true
	}

	prefix := envPrefix(name)
	for k := range keys {
		if v := getEnvWithFileFallback(prefix, strings.ToUpper(k)); v != "" {
			out[k] = v
		}
	}

	return out, errs
}

// parseBool parses a boolean string, returning defaultValue on parse failure.
// Accepts: true/false, 1/0, yes/no, on/off (case-insensitive).
func parseBool(s string, defaultValue bool) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	default:
		return defaultValue
	}
}

// normalizeInstanceName converts an instance name to environment variable format.
// Example: "edge-dns" → "EDGE_DNS"
func normalizeInstanceName(name string) string {
	normalized := strings.ToUpper(name)
	normalized = strings.ReplaceAll(normalized, "-", "_")
	return normalized
}

// envPrefix creates the full environment variable prefix for a provider instance.
// Example: "edge-dns" → "ZONEWEAVER_EDGE_DNS_"
func envPrefix(instanceName string) string {
	return "ZONEWEAVER_" + normalizeInstanceName(instanceName) + "_"
}
