package utils

import (
	"strings"
	"testing"
)

func TestNewTokenCounter(t *testing.T) {
	for _, model := range []string{"gpt-4", "gpt-4o", "claude-sonnet-4-5", "unknown-model", ""} {
		t.Run(model, func(t *testing.T) {
			counter, err := NewTokenCounter(model)
			if err != nil {
				t.Fatalf("NewTokenCounter(%q) failed: %v", model, err)
			}
			if counter == nil {
				t.Fatalf("NewTokenCounter(%q) returned nil counter", model)
			}
		})
	}
}

func TestCountTokens(t *testing.T) {
	counter, err := NewTokenCounter("gpt-4")
	if err != nil {
		t.Fatalf("Failed to create token counter: %v", err)
	}

	tests := []struct {
		name      string
		text      string
		minTokens int
		maxTokens int
	}{
		{"empty", "", 0, 0},
		{"one word", "Hello", 1, 2},
		{"two words", "Hello world", 2, 3},
		{"sentence", "This is a longer sentence with more words.", 8, 12},
		{"repeated", strings.Repeat("word ", 100), 90, 110},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens := counter.CountTokens(tt.text)
			if tokens < tt.minTokens || tokens > tt.maxTokens {
				t.Errorf("CountTokens(%q) = %d, want between %d and %d", tt.text, tokens, tt.minTokens, tt.maxTokens)
			}
		})
	}
}

func TestTruncateToTokenLimit(t *testing.T) {
	counter, err := NewTokenCounter("gpt-4")
	if err != nil {
		t.Fatalf("Failed to create token counter: %v", err)
	}

	short := "short text"
	if got := counter.TruncateToTokenLimit(short, 50); got != short {
		t.Errorf("short text changed: %q", got)
	}

	long := strings.Repeat("alpha beta gamma ", 200)
	got := counter.TruncateToTokenLimit(long, 20)
	if n := counter.CountTokens(got); n > 20 {
		t.Errorf("truncated text has %d tokens, want <= 20", n)
	}
	if !strings.HasPrefix(long, got) {
		t.Errorf("truncated text is not a prefix of the input")
	}

	if got := counter.TruncateToTokenLimit(long, 0); got != "" {
		t.Errorf("zero limit should yield empty string, got %q", got)
	}
}

func TestNilCounterFallsBack(t *testing.T) {
	var tc *TokenCounter
	if got := tc.CountTokens("12345678"); got != 2 {
		t.Errorf("fallback count = %d, want 2", got)
	}
}

func TestGetIntField(t *testing.T) {
	args := map[string]any{"a": float64(3), "b": 2.5, "c": "x", "d": 7}

	if n, ok, err := GetIntField(args, "a"); err != nil || !ok || n != 3 {
		t.Errorf("a: got (%d, %v, %v)", n, ok, err)
	}
	if _, ok, err := GetIntField(args, "b"); err == nil || !ok {
		t.Errorf("b: expected error for non-integral value")
	}
	if _, _, err := GetIntField(args, "c"); err == nil {
		t.Errorf("c: expected type error")
	}
	if n, ok, err := GetIntField(args, "d"); err != nil || !ok || n != 7 {
		t.Errorf("d: got (%d, %v, %v)", n, ok, err)
	}
	if _, ok, err := GetIntField(args, "missing"); err != nil || ok {
		t.Errorf("missing: got (%v, %v)", ok, err)
	}
}

func TestGetMapFieldOr(t *testing.T) {
	args := map[string]any{"path": "a.go"}
	if got := GetMapFieldOr(args, "path", ""); got != "a.go" {
		t.Errorf("path = %q", got)
	}
	if got := GetMapFieldOr(args, "prefix", "src/"); got != "src/" {
		t.Errorf("prefix default = %q", got)
	}
}
