package websocket

import (
	"net/http/httptest"
	"testing"
)

func TestOriginPolicyAllow(t *testing.T) {
	policy := NewOriginPolicy([]string{"https://docs.example.com/", " "})

	tests := []struct {
		origin string
		want   bool
	}{
		{"https://docs.example.com", true},
		{"http://localhost:3000", true},
		{"https://127.0.0.1", true},
		{"http://[::1]:8080", true},
		{"https://evil.example.com", false},
		{"ftp://localhost", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := policy.Allow(tt.origin); got != tt.want {
			t.Errorf("Allow(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}

func TestOriginPolicyWildcard(t *testing.T) {
	policy := NewOriginPolicy([]string{"*"})
	if !policy.Allow("https://anywhere.example.com") {
		t.Error("expected wildcard to allow any origin")
	}
	if cors := policy.SocketIOCors(); cors.Origin != "*" {
		t.Errorf("expected * cors origin, got %#v", cors.Origin)
	}
}

func TestOriginPolicyCheckRequest(t *testing.T) {
	policy := NewOriginPolicy(nil)

	req := httptest.NewRequest("GET", "/ws", nil)
	if !policy.CheckRequest(req) {
		t.Error("expected request without Origin to pass")
	}

	req.Header.Set("Origin", "https://evil.example.com")
	if policy.CheckRequest(req) {
		t.Error("expected foreign origin to be rejected")
	}
}

func TestOriginPolicySocketIOCors(t *testing.T) {
	cors := NewOriginPolicy([]string{"https://docs.example.com"}).SocketIOCors()
	origins, ok := cors.Origin.([]any)
	if !ok {
		t.Fatalf("expected origin list, got %#v", cors.Origin)
	}
	if len(origins) != 2 {
		t.Fatalf("expected localhost pattern plus one origin, got %#v", origins)
	}
	if origins[1] != "https://docs.example.com" {
		t.Errorf("unexpected origin %#v", origins[1])
	}
	if !cors.Credentials {
		t.Error("expected credentials to be allowed")
	}
}
