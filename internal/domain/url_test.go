package domain

import (
	"errors"
	"testing"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		wantErr  bool
	}{
		{name: "bare domain gets https", input: "Example.COM", expected: "https://example.com/"},
		{name: "surrounding spaces", input: "  https://example.com/a  ", expected: "https://example.com/a"},
		{name: "default http port dropped", input: "http://example.com:80/a?b=1#top", expected: "http://example.com/a?b=1"},
		{name: "default https port dropped", input: "https://example.com:443", expected: "https://example.com/"},
		{name: "custom port kept", input: "https://example.com:8443/x", expected: "https://example.com:8443/x"},
		{name: "upper-case scheme", input: "HTTPS://Login.Example.com/Path", expected: "https://login.example.com/Path"},
		{name: "trailing dot host", input: "https://example.com./", expected: "https://example.com/"},
		{name: "ipv4 host", input: "http://192.168.0.1/login", expected: "http://192.168.0.1/login"},
		{name: "empty", input: "", wantErr: true},
		{name: "only spaces", input: "   ", wantErr: true},
		{name: "ftp scheme", input: "ftp://example.com/", wantErr: true},
		{name: "no host", input: "https:///path", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeURL(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidURL) {
					t.Errorf("NormalizeURL(%q) error = %v, want ErrInvalidURL", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizeURL(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.expected {
				t.Errorf("NormalizeURL(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNormalizeURLIdempotent(t *testing.T) {
	inputs := []string{"example.com", "http://a.b.example.com:8080/x?y=1", "https://[::1]/"}
	for _, in := range inputs {
		once, err := NormalizeURL(in)
		if err != nil {
			t.Fatalf("NormalizeURL(%q): %v", in, err)
		}
		twice, err := NormalizeURL(once)
		if err != nil {
			t.Fatalf("NormalizeURL(%q): %v", once, err)
		}
		if once != twice {
			t.Errorf("not idempotent: %q -> %q", once, twice)
		}
	}
}

func TestExtractDomain(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"https://Login.Example.com:8443/path", "login.example.com"},
		{"example.com", "example.com"},
		{"http://[::1]:80/", "::1"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := ExtractDomain(tt.input); got != tt.expected {
			t.Errorf("ExtractDomain(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestParentDomain(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"a.b.example.com", "b.example.com"},
		{"www.example.com", "example.com"},
		{"example.com", ""},
		{"localhost", ""},
	}

	for _, tt := range tests {
		if got := ParentDomain(tt.input); got != tt.expected {
			t.Errorf("ParentDomain(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
