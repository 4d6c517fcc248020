package auth

import (
	"context"
	"fmt"
	"os"

	"cdr.dev/slog"
	"github.com/viant/scy/auth/authorizer"
	_ "github.com/viant/scy/kms/blowfish"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/viant/mcprelay/internal/collection"
)

// Source issues bearer tokens for one identity.
type Source interface {
	Token(ctx context.Context) (string, error)
}

// ConfigLoader resolves an OAuth2 client config from a config URL.
type ConfigLoader func(ctx context.Context, configURL string) (*oauth2.Config, error)

// Builder builds identity scoped token sources and caches OAuth2 ones.
type Builder struct {
	loader  ConfigLoader
	sources *collection.SyncMap[string, Source]
	logger  slog.Logger
}

// Option customises a Builder.
type Option func(b *Builder)

// WithConfigLoader overrides how OAuth2 client configs are loaded.
func WithConfigLoader(loader ConfigLoader) Option {
	return func(b *Builder) { b.loader = loader }
}

// WithLogger sets the builder logger.
func WithLogger(logger slog.Logger) Option {
	return func(b *Builder) { b.logger = logger }
}

// NewBuilder creates a Builder loading OAuth2 configs with scy.
func NewBuilder(options ...Option) *Builder {
	ret := &Builder{
		loader:  loadScyConfig,
		sources: collection.NewSyncMap[string, Source](),
		logger:  slog.Make(),
	}
	for _, opt := range options {
		opt(ret)
	}
	return ret
}

// Build returns a token source for config scoped to identity.
func (b *Builder) Build(ctx context.Context, config *Config, identity Identity) (Source, error) {
	if config == nil {
		return nil, fmt.Errorf("auth config was nil")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	switch config.Kind {
	case KindPassthrough:
		return passthroughSource(identity.Token), nil
	case KindStatic:
		return staticSource(os.ExpandEnv(config.Token)), nil
	case KindOAuth2:
		return b.sources.GetOrCreate(config.cacheKey(identity), func() (Source, error) {
			return b.oauth2Source(ctx, config, identity)
		})
	}
	return nil, fmt.Errorf("unsupported auth kind: %v", config.Kind)
}

func (b *Builder) oauth2Source(ctx context.Context, config *Config, identity Identity) (Source, error) {
	credentials := &clientcredentials.Config{
		ClientID:     config.ClientID,
		ClientSecret: os.ExpandEnv(config.ClientSecret),
		TokenURL:     config.TokenURL,
		Scopes:       config.Scopes,
	}
	if config.ConfigURL != "" {
		oauthConfig, err := b.loader(ctx, config.configURL())
		if err != nil {
			return nil, fmt.Errorf("failed to load oauth2 config %q: %w", config.ConfigURL, err)
		}
		credentials.ClientID = oauthConfig.ClientID
		credentials.ClientSecret = oauthConfig.ClientSecret
		credentials.TokenURL = oauthConfig.Endpoint.TokenURL
		if len(credentials.Scopes) == 0 {
			credentials.Scopes = oauthConfig.Scopes
		}
	}
	b.logger.Debug(ctx, "created oauth2 token source",
		slog.F("token_url", credentials.TokenURL),
		slog.F("identity", identity.Key()))
	// the token source outlives the connect call that created it
	return &tokenSource{source: oauth2.ReuseTokenSource(nil, credentials.TokenSource(context.WithoutCancel(ctx)))}, nil
}

func loadScyConfig(ctx context.Context, configURL string) (*oauth2.Config, error) {
	oauthConfig := &authorizer.OAuthConfig{ConfigURL: configURL}
	if err := authorizer.New().EnsureConfig(ctx, oauthConfig); err != nil {
		return nil, err
	}
	if oauthConfig.Config == nil {
		return nil, fmt.Errorf("oauth2 config was empty")
	}
	return oauthConfig.Config, nil
}

type passthroughSource string

func (s passthroughSource) Token(ctx context.Context) (string, error) {
	if s == "" {
		return "", fmt.Errorf("caller token was not found in context")
	}
	return string(s), nil
}

type staticSource string

func (s staticSource) Token(ctx context.Context) (string, error) {
	if s == "" {
		return "", fmt.Errorf("static token was empty")
	}
	return string(s), nil
}

type tokenSource struct {
	source oauth2.TokenSource
}

func (s *tokenSource) Token(ctx context.Context) (string, error) {
	token, err := s.source.Token()
	if err != nil {
		return "", fmt.Errorf("failed to obtain oauth2 token: %w", err)
	}
	return token.AccessToken, nil
}
