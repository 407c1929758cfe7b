package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestGetEnvOrFile(t *testing.T) {
	const directKey = "TEST_ZONEWEAVER_TOKEN"
	const fileKey = "TEST_ZONEWEAVER_TOKEN_FILE"

	secretFile := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(secretFile, []byte("file-value\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		direct string
		file   string
		want   string
	}{
		{name: "direct value", direct: "direct-value", want: "direct-value"},
		{name: "file value trimmed", file: secretFile, want: "file-value"},
		{name: "file takes precedence", direct: "direct-value", file: secretFile, want: "file-value"},
		{name: "unreadable file falls back", direct: "fallback", file: "/nonexistent/secret", want: "fallback"},
		{name: "nothing set", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(directKey, tt.direct)
			t.Setenv(fileKey, tt.file)

			if got := getEnvOrFile(directKey, fileKey); got != tt.want {
				t.Errorf("getEnvOrFile() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveSecrets(t *testing.T) {
	clearAllEnv(t)
	defer clearAllEnv(t)

	dir := t.TempDir()
	keyFile := filepath.Join(dir, "api_key")
	if err := os.WriteFile(keyFile, []byte("  from-config-file \n"), 0o600); err != nil {
		t.Fatal(err)
	}
	envFile := filepath.Join(dir, "password")
	if err := os.WriteFile(envFile, []byte("from-env-file"), 0o600); err != nil {
		t.Fatal(err)
	}

	os.Setenv("ZONEWEAVER_EDGE_DNS_URL", "https://override.example.net")
	os.Setenv("ZONEWEAVER_EDGE_DNS_PASSWORD_FILE", envFile)

	got, errs := resolveSecrets("edge-dns", map[string]string{
		"URL":          "https://dns.example.net",
		"zone_id":      "abc",
		"api_key":      "inline",
		"api_key_file": keyFile,
	})
	if len(errs) != 0 {
		t.Fatalf("resolveSecrets() errors: %v", errs)
	}

	want := map[string]string{
		"url":      "https://override.example.net",
		"zone_id":  "abc",
		"api_key":  "from-config-file",
		"password": "from-env-file",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("resolveSecrets() mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveSecrets_MissingFile(t *testing.T) {
	clearAllEnv(t)
	defer clearAllEnv(t)

	_, errs := resolveSecrets("edge", map[string]string{"token_file": "/nonexistent/token"})
	if len(errs) != 1 || !strings.Contains(errs[0], "provider edge: token_file") {
		t.Errorf("resolveSecrets() errors = %v, want one token_file error", errs)
	}
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		input    string
		defVal   bool
		expected bool
	}{
		{"true", false, true},
		{"TRUE", false, true},
		{"1", false, true},
		{"yes", false, true},
		{"on", false, true},
		{"false", true, false},
		{"0", true, false},
		{"no", true, false},
		{"off", true, false},
		{"", false, false},
		{"", true, true},
		{"invalid", false, false},
		{"invalid", true, true},
		{"  true  ", false, true},
	}

	for _, tc := range tests {
		got := parseBool(tc.input, tc.defVal)
		if got != tc.expected {
			t.Errorf("parseBool(%q, %v) = %v, want %v", tc.input, tc.defVal, got, tc.expected)
		}
	}
}

func TestEnvPrefix(t *testing.T) {
	tests := []struct {
		instanceName string
		expected     string
	}{
		{"edge-dns", "ZONEWEAVER_EDGE_DNS_"},
		{"my-super-dns", "ZONEWEAVER_MY_SUPER_DNS_"},
		{"already_underscore", "ZONEWEAVER_ALREADY_UNDERSCORE_"},
		{"MixedCase", "ZONEWEAVER_MIXEDCASE_"},
	}

	for _, tc := range tests {
		got := envPrefix(tc.instanceName)
		if got != tc.expected {
			t.Errorf("envPrefix(%q) = %q, want %q", tc.instanceName, got, tc.expected)
		}
	}
}
