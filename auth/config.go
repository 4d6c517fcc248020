package auth

import (
	"fmt"
	"strings"
)

// Kind selects how a backend token is obtained.
type Kind string

const (
	// KindPassthrough forwards the caller's own bearer token.
	KindPassthrough Kind = "passthrough"
	// KindStatic uses a configured token; ${VAR} references are expanded from the environment.
	KindStatic Kind = "static"
	// KindOAuth2 uses the OAuth2 client credentials grant.
	KindOAuth2 Kind = "oauth2"
)

// Config defines backend authentication for a target.
type Config struct {
	Kind  Kind   `yaml:"kind" json:"kind"`
	Token string `yaml:"token,omitempty" json:"token,omitempty"`

	// ConfigURL points to a scy OAuth2 client config; EncryptionKey decrypts it.
	ConfigURL     string `yaml:"configURL,omitempty" json:"configURL,omitempty"`
	EncryptionKey string `yaml:"encryptionKey,omitempty" json:"encryptionKey,omitempty"`

	// Inline client credentials, used when ConfigURL is empty.
	ClientID     string   `yaml:"clientID,omitempty" json:"clientID,omitempty"`
	ClientSecret string   `yaml:"clientSecret,omitempty" json:"clientSecret,omitempty"`
	TokenURL     string   `yaml:"tokenURL,omitempty" json:"tokenURL,omitempty"`
	Scopes       []string `yaml:"scopes,omitempty" json:"scopes,omitempty"`
}

// Validate checks the fields required by the configured kind.
func (c *Config) Validate() error {
	switch c.Kind {
	case KindPassthrough:
	case KindStatic:
		if c.Token == "" {
			return fmt.Errorf("static auth requires token")
		}
	case KindOAuth2:
		if c.ConfigURL == "" && (c.ClientID == "" || c.TokenURL == "") {
			return fmt.Errorf("oauth2 auth requires configURL or clientID with tokenURL")
		}
	case "":
		return fmt.Errorf("auth kind was empty")
	default:
		return fmt.Errorf("unsupported auth kind: %v", c.Kind)
	}
	return nil
}

func (c *Config) configURL() string {
	if c.EncryptionKey == "" {
		return c.ConfigURL
	}
	return c.ConfigURL + "|" + c.EncryptionKey
}

func (c *Config) cacheKey(identity Identity) string {
	return strings.Join([]string{string(c.Kind), c.ConfigURL, c.ClientID, c.TokenURL, strings.Join(c.Scopes, " "), identity.Key()}, "\x00")
}
