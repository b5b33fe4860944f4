// Package tokenstore implements the Provider Token Store (Component D):
// persisted OAuth2 tokens keyed by (tenant, partner), refreshed on miss or
// imminent expiry, with concurrent refreshes for the same key collapsed
// into a single exchange via singleflight.
package tokenstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"

	"github.com/flightline-dev/flightline/internal/telemetry"
)

// refreshSkew is how far ahead of expiry a token is considered due for
// refresh (spec.md §4.D: "expiresAt ≤ now + 30s").
const refreshSkew = 30 * time.Second

// Token is a persisted OAuth2 credential for (tenant, partner).
type Token struct {
	Tenant      string
	Partner     string
	AccessToken string
	TokenType   string
	ExpiresAt   time.Time
}

// Exchanger performs the partner-specific OAuth2 client-credentials
// exchange. Production callers use oauth2Exchanger; tests substitute a fake.
type Exchanger interface {
	Exchange(ctx context.Context) (accessToken, tokenType string, expiresAt time.Time, err error)
}

// oauth2Exchanger wraps golang.org/x/oauth2/clientcredentials.Config.
type oauth2Exchanger struct {
	cfg *clientcredentials.Config
}

// NewOAuth2Exchanger builds an Exchanger for a partner's client-credentials
// endpoint.
func NewOAuth2Exchanger(clientID, clientSecret, tokenURL string, scopes []string) Exchanger {
	return &oauth2Exchanger{cfg: &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		Scopes:       scopes,
	}}
}

func (e *oauth2Exchanger) Exchange(ctx context.Context) (string, string, time.Time, error) {
	tok, err := e.cfg.Token(ctx)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("oauth2 client-credentials exchange: %w", err)
	}
	return tok.AccessToken, tok.TokenType, tok.Expiry, nil
}

// store is the subset of *pgxpool.Pool the Store needs.
type store interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store persists tokens in Postgres and collapses concurrent refreshes for
// the same (tenant, partner) via a keyed single-flight group.
type Store struct {
	db         store
	exchangers map[string]Exchanger // keyed by partner kind
	sf         singleflight.Group
}

// New creates a Store. exchangers maps partner kind to its OAuth2 exchanger.
func New(db store, exchangers map[string]Exchanger) *Store {
	return &Store{db: db, exchangers: exchangers}
}

func sfKey(tenant, partner string) string {
	return tenant + "\x00" + partner
}

// GetValid returns a valid token for (tenant, partner), refreshing it if
// absent or within refreshSkew of expiry. Concurrent callers for the same
// key observe exactly one exchange.
func (s *Store) GetValid(ctx context.Context, tenant, partner string) (Token, error) {
	tok, err := s.load(ctx, tenant, partner)
	if err == nil && time.Now().Add(refreshSkew).Before(tok.ExpiresAt) {
		return tok, nil
	}

	v, err, _ := s.sf.Do(sfKey(tenant, partner), func() (any, error) {
		// Re-check under the single-flight group in case another caller's
		// in-flight exchange already refreshed it.
		if tok, err := s.load(ctx, tenant, partner); err == nil && time.Now().Add(refreshSkew).Before(tok.ExpiresAt) {
			return tok, nil
		}
		return s.refresh(ctx, tenant, partner)
	})
	if err != nil {
		return Token{}, err
	}
	return v.(Token), nil
}

func (s *Store) load(ctx context.Context, tenant, partner string) (Token, error) {
	var t Token
	t.Tenant, t.Partner = tenant, partner
	err := s.db.QueryRow(ctx, `
		SELECT access_token, token_type, expires_at
		FROM provider_tokens WHERE tenant = $1 AND partner = $2
	`, tenant, partner).Scan(&t.AccessToken, &t.TokenType, &t.ExpiresAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return Token{}, fmt.Errorf("no token persisted for (%s, %s)", tenant, partner)
		}
		return Token{}, fmt.Errorf("loading provider token: %w", err)
	}
	return t, nil
}

// Invalidate deletes the persisted token for (tenant, partner), forcing
// the next GetValid to perform a fresh exchange. Used after an AuthError
// to implement the single forced refresh spec.md §4.E requires.
func (s *Store) Invalidate(ctx context.Context, tenant, partner string) {
	_, _ = s.db.Exec(ctx, `DELETE FROM provider_tokens WHERE tenant = $1 AND partner = $2`, tenant, partner)
}

// AsTokenSource adapts the Store to the narrower (accessToken string, err
// error) + Invalidate shape that pkg/partner's Client depends on, without
// forcing direct callers who want the full Token (ExpiresAt, TokenType) to
// go through a string-only interface.
func (s *Store) AsTokenSource() *TokenSourceAdapter {
	return &TokenSourceAdapter{store: s}
}

// TokenSourceAdapter implements partner.TokenSource over a *Store.
type TokenSourceAdapter struct {
	store *Store
}

func (a *TokenSourceAdapter) GetValid(ctx context.Context, tenant, partner string) (string, error) {
	tok, err := a.store.GetValid(ctx, tenant, partner)
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

func (a *TokenSourceAdapter) Invalidate(ctx context.Context, tenant, partner string) {
	a.store.Invalidate(ctx, tenant, partner)
}

func (s *Store) refresh(ctx context.Context, tenant, partner string) (Token, error) {
	exchanger, ok := s.exchangers[partner]
	if !ok {
		return Token{}, fmt.Errorf("no OAuth2 exchanger configured for partner %q", partner)
	}

	accessToken, tokenType, expiresAt, err := exchanger.Exchange(ctx)
	if err != nil {
		return Token{}, err
	}

	tok := Token{Tenant: tenant, Partner: partner, AccessToken: accessToken, TokenType: tokenType, ExpiresAt: expiresAt}

	_, err = s.db.Exec(ctx, `
		INSERT INTO provider_tokens (tenant, partner, access_token, token_type, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant, partner) DO UPDATE
		SET access_token = EXCLUDED.access_token, token_type = EXCLUDED.token_type, expires_at = EXCLUDED.expires_at
	`, tenant, partner, tok.AccessToken, tok.TokenType, tok.ExpiresAt)
	if err != nil {
		return Token{}, fmt.Errorf("persisting refreshed token: %w", err)
	}

	telemetry.TokenRefreshesTotal.WithLabelValues(partner).Inc()
	return tok, nil
}
