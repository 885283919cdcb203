// Package credential supplies bearer tokens for the drive API, either from a
// literal access token (typical in CI) or from a token file whose refresh
// token is used to renew the access token as it expires.
package credential

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"
)

// ErrNoToken means neither an access token nor a token file is available.
var ErrNoToken = errors.New("credential: no token available")

// scopes requested when refreshing.
var scopes = []string{"offline_access", "Files.ReadWrite.All"}

// Options selects the token origin. AccessToken wins over TokenFile.
type Options struct {
	AccessToken string
	TokenFile   string
	ClientID    string
	Tenant      string

	// endpoint overrides the Azure AD endpoint. Tests only.
	endpoint *oauth2.Endpoint
}

// Source adapts an oauth2.TokenSource to the drive client's token interface.
type Source struct {
	src    oauth2.TokenSource
	logger *slog.Logger
}

// NewSource builds a token source from opts.
//
// For a token file with a refresh token and a client ID, the returned
// source refreshes silently and persists each new token back to the file.
// ctx must outlive the Source: it is used for refresh requests.
func NewSource(ctx context.Context, opts Options, logger *slog.Logger) (*Source, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if opts.AccessToken != "" {
		logger.Debug("using access token from environment")

		return &Source{
			src:    oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.AccessToken, TokenType: "Bearer"}),
			logger: logger,
		}, nil
	}

	if opts.TokenFile == "" {
		return nil, ErrNoToken
	}

	tok, err := LoadToken(opts.TokenFile)
	if err != nil {
		return nil, err
	}

	expired := !tok.Expiry.IsZero() && tok.Expiry.Before(time.Now())
	logger.Info("loaded saved token",
		slog.String("path", opts.TokenFile),
		slog.Time("expiry", tok.Expiry),
		slog.Bool("expired", expired),
	)

	if tok.RefreshToken == "" || opts.ClientID == "" {
		if expired {
			return nil, fmt.Errorf("credential: token in %s expired and cannot be refreshed (needs refresh token and auth.client_id)",
				opts.TokenFile)
		}

		return &Source{src: oauth2.StaticTokenSource(tok), logger: logger}, nil
	}

	cfg := oauthConfig(opts, logger)

	return &Source{src: cfg.TokenSource(ctx, tok), logger: logger}, nil
}

// oauthConfig builds an oauth2.Config whose OnTokenChange persists
// refreshed tokens to the token file.
func oauthConfig(opts Options, logger *slog.Logger) *oauth2.Config {
	endpoint := microsoft.AzureADEndpoint(opts.Tenant)
	if opts.endpoint != nil {
		endpoint = *opts.endpoint
	}

	path := opts.TokenFile

	return &oauth2.Config{
		ClientID: opts.ClientID,
		Scopes:   scopes,
		Endpoint: endpoint,
		// Called by ReuseTokenSource after each silent refresh, outside its mutex.
		OnTokenChange: func(tok *oauth2.Token) {
			logger.Info("token refreshed", slog.String("path", path), slog.Time("new_expiry", tok.Expiry))

			if err := SaveToken(path, tok); err != nil {
				logger.Warn("failed to persist refreshed token",
					slog.String("path", path),
					slog.String("error", err.Error()),
				)
			}
		},
	}
}

// Token returns the current access token, refreshing it when needed.
func (s *Source) Token() (string, error) {
	t, err := s.src.Token()
	if err != nil {
		s.logger.Warn("token acquisition failed", slog.String("error", err.Error()))
		return "", fmt.Errorf("credential: obtaining token: %w", err)
	}

	s.logger.Debug("token acquired",
		slog.Time("expiry", t.Expiry),
		slog.Bool("valid", t.Valid()),
	)

	return t.AccessToken, nil
}
