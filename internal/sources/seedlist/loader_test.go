package seedlist

import (
	"os"
	"path/filepath"
	"testing"
)

func writeSeed(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seeds.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to create test YAML file: %v", err)
	}
	return path
}

func TestLoaderLoad(t *testing.T) {
	path := writeSeed(t, `---
whitelist:
  - url: https://intranet.example.com
    details: company portal
blacklist:
  - url: http://paypa1-login.example/verify
    threat_type: phishing
    confidence: 95
`)

	f, err := NewLoader(path).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(f.Whitelist) != 1 || len(f.Blacklist) != 1 {
		t.Fatalf("Load() = %d whitelist, %d blacklist entries, want 1 and 1", len(f.Whitelist), len(f.Blacklist))
	}
	if f.Blacklist[0].Confidence == nil || *f.Blacklist[0].Confidence != 95 {
		t.Errorf("blacklist confidence = %v, want 95", f.Blacklist[0].Confidence)
	}
}

func TestLoaderLoadEmptyFile(t *testing.T) {
	f, err := NewLoader(writeSeed(t, "")).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(f.Whitelist)+len(f.Blacklist) != 0 {
		t.Errorf("Load() of empty file returned entries")
	}
}

func TestLoaderLoadRejectsUnknownKeys(t *testing.T) {
	path := writeSeed(t, `
blacklst:
  - url: https://bad.example
`)
	if _, err := NewLoader(path).Load(); err == nil {
		t.Error("Load() with unknown key should return error")
	}
}

func TestLoaderLoadWithTemplateVariables(t *testing.T) {
	t.Setenv("SEED_INTRANET_HOST", "portal.corp.example")
	path := writeSeed(t, `
whitelist:
  - url: https://{{SEED_INTRANET_HOST}}/
  - url: https://{{ SEED_UNSET_HOST }}/
`)

	f, err := NewLoader(path).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := f.Whitelist[0].URL; got != "https://portal.corp.example/" {
		t.Errorf("expanded url = %q", got)
	}
	if got := f.Whitelist[1].URL; got != "https:///" {
		t.Errorf("unset variable url = %q, want empty host", got)
	}
}

func TestLoaderLoadFileNotFound(t *testing.T) {
	if _, err := NewLoader("/nonexistent/path/seeds.yaml").Load(); err == nil {
		t.Error("Load() with non-existent file should return error")
	}
}

func TestExpandTemplateVariables(t *testing.T) {
	t.Setenv("SEED_TEST_VAR", "value")

	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{
			name:     "set variable",
			input:    []byte("url: {{SEED_TEST_VAR}}"),
			expected: "url: value",
		},
		{
			name:     "unset variable",
			input:    []byte("url: {{SEED_TEST_MISSING}}"),
			expected: "url: ",
		},
		{
			name:     "no template variables",
			input:    []byte("plain text"),
			expected: "plain text",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := expandTemplateVariables(tt.input)
			if string(result) != tt.expected {
				t.Errorf("expandTemplateVariables() = %q, want %q", string(result), tt.expected)
			}
		})
	}
}
