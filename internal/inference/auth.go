package inference

import (
	"os"
	"strings"

	"github.com/corvid-labs/skillkernel/internal/config"
)

// AuthKind distinguishes API key auth from bearer token auth.
type AuthKind int

const (
	AuthAPIKey AuthKind = iota
	AuthBearerToken
)

// ResolvedAuth holds credentials resolved for one provider.
type ResolvedAuth struct {
	Kind  AuthKind
	Value string
}

// ResolveAuth resolves provider credentials. Resolution order: direct
// bearer token -> direct api key -> driver's default environment variable.
// Both token and api_key fields may hold a "${VAR}" template that is
// expanded against the process environment.
func ResolveAuth(cfg config.ProviderConfig) (ResolvedAuth, error) {
	if token := expand(cfg.Auth.Token); token != "" {
		return ResolvedAuth{Kind: AuthBearerToken, Value: token}, nil
	}
	if key := expand(cfg.Auth.APIKey); key != "" {
		return ResolvedAuth{Kind: AuthAPIKey, Value: key}, nil
	}

	switch strings.ToLower(cfg.Driver) {
	case "anthropic", "claude":
		if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
			return ResolvedAuth{Kind: AuthAPIKey, Value: key}, nil
		}
		return ResolvedAuth{}, errMissingEnv("ANTHROPIC_API_KEY")
	case "openai":
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			return ResolvedAuth{Kind: AuthAPIKey, Value: key}, nil
		}
		return ResolvedAuth{}, errMissingEnv("OPENAI_API_KEY")
	case "ollama":
		return ResolvedAuth{}, nil // local daemon, no credential required
	default:
		return ResolvedAuth{}, errUnknownDriver(cfg.Driver)
	}
}

func expand(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		return os.Getenv(s[2 : len(s)-1])
	}
	return s
}
