package kernel

import (
	"fmt"
	"net/http"
	"strings"

	"routecodex-hq/routecodex/pkg/config"
)

// Credential applies authentication material to an outbound request.
// Implementations carry no brand logic: which header a brand expects is
// decided by configuration and family profiles, not here.
type Credential interface {
	// Apply sets the credential on the request. It is called once per
	// attempt, so credential sources that re-read material (token files)
	// pick up rotation between retries.
	Apply(req *http.Request) error

	// Close releases any resources held by the credential source.
	Close() error
}

// NewCredential builds a credential from provider auth configuration.
func NewCredential(providerKey string, cfg config.AuthConfig) (Credential, error) {
	switch cfg.Type {
	case "apikey":
		header := cfg.HeaderName
		if header == "" {
			return &staticCredential{header: "Authorization", value: "Bearer " + cfg.APIKey}, nil
		}
		return &staticCredential{header: header, value: cfg.APIKey}, nil

	case "bearer":
		return &staticCredential{header: "Authorization", value: "Bearer " + cfg.APIKey}, nil

	case "cookie":
		return &staticCredential{header: "Cookie", value: cfg.Cookie}, nil

	case "oauth":
		return &staticCredential{header: "Authorization", value: "Bearer " + cfg.AccessToken}, nil

	case "tokenfile":
		return newTokenFileCredential(providerKey, cfg.TokenFile)

	default:
		return nil, &CredentialError{
			ProviderKey: providerKey,
			Message:     fmt.Sprintf("unknown auth type %q", cfg.Type),
		}
	}
}

// staticCredential sets a fixed header value on every request.
type staticCredential struct {
	header string
	value  string
}

func (c *staticCredential) Apply(req *http.Request) error {
	req.Header.Set(c.header, c.value)
	return nil
}

func (c *staticCredential) Close() error { return nil }

// bearerValue normalizes token material into an Authorization value.
// Tokens stored with an explicit "Bearer " prefix are passed through.
func bearerValue(token string) string {
	token = strings.TrimSpace(token)
	if strings.HasPrefix(token, "Bearer ") {
		return token
	}
	return "Bearer " + token
}
