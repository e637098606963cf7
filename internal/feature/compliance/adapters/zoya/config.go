// Package zoya provides a client for the Zoya shariah compliance GraphQL API.
package zoya

import (
	"strings"
	"time"
)

// Environments accepted by the Zoya API.
const (
	EnvSandbox = "sandbox"
	EnvLive    = "live"
)

// Default GraphQL endpoints.
const (
	DefaultSandboxURL = "https://sandbox-api.zoya.finance/graphql"
	DefaultLiveURL    = "https://api.zoya.finance/graphql"
)

// Config holds configuration for the Zoya API client.
type Config struct {
	APIKey      string        // sent verbatim in the Authorization header
	Environment string        // sandbox, live, or empty to infer from the key prefix
	SandboxURL  string        // overrides DefaultSandboxURL
	LiveURL     string        // overrides DefaultLiveURL
	Timeout     time.Duration // per-request HTTP timeout
}

// ResolveEnvironment returns the configured environment, falling back to the
// API key prefix ("sandbox-" or "live-") and finally to sandbox.
func (c Config) ResolveEnvironment() (env string, inferred bool) {
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case EnvLive:
		return EnvLive, false
	case EnvSandbox:
		return EnvSandbox, false
	}
	if strings.HasPrefix(c.APIKey, EnvLive+"-") {
		return EnvLive, true
	}
	if strings.HasPrefix(c.APIKey, EnvSandbox+"-") {
		return EnvSandbox, true
	}
	return EnvSandbox, false
}

// Endpoint returns the GraphQL URL for env.
func (c Config) Endpoint(env string) string {
	if env == EnvLive {
		if c.LiveURL != "" {
			return c.LiveURL
		}
		return DefaultLiveURL
	}
	if c.SandboxURL != "" {
		return c.SandboxURL
	}
	return DefaultSandboxURL
}

// MaskKey keeps the environment prefix and the last four characters of key.
func MaskKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	prefix := ""
	if i := strings.IndexByte(key, '-'); i > 0 && i < len(key)-4 {
		prefix = key[:i+1]
	}
	return prefix + "****" + key[len(key)-4:]
}
