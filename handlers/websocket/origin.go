package websocket

import (
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/zishang520/engine.io/v2/types"
)

var localhostOrigin = regexp.MustCompile(`^https?://(localhost|127\.0\.0\.1|\[::1\])(:\d+)?$`)

// OriginPolicy decides which browser origins may open connections. Local
// development origins are always allowed.
type OriginPolicy struct {
	allowAll bool
	origins  map[string]struct{}
}

// NewOriginPolicy builds a policy from explicit origins; "*" allows any.
func NewOriginPolicy(origins []string) OriginPolicy {
	p := OriginPolicy{origins: make(map[string]struct{})}
	for _, o := range origins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		switch o {
		case "":
		case "*":
			p.allowAll = true
		default:
			p.origins[o] = struct{}{}
		}
	}
	return p
}

func (p OriginPolicy) Allow(origin string) bool {
	if origin == "" {
		return false
	}
	if p.allowAll {
		return true
	}
	if _, ok := p.origins[origin]; ok {
		return true
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch parsed.Scheme {
	case "http", "https":
		switch parsed.Hostname() {
		case "localhost", "127.0.0.1", "::1":
			return true
		}
	}
	return false
}

// CheckRequest is a websocket upgrader origin check. Requests without an
// Origin header come from non-browser clients and are allowed.
func (p OriginPolicy) CheckRequest(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return p.Allow(origin)
}

// SocketIOCors renders the policy in the form the engine.io server expects.
func (p OriginPolicy) SocketIOCors() *types.Cors {
	if p.allowAll {
		return &types.Cors{Origin: "*", Credentials: true}
	}
	allowed := []any{localhostOrigin}
	for o := range p.origins {
		allowed = append(allowed, o)
	}
	return &types.Cors{Origin: allowed, Credentials: true}
}
