package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/raakeshmj/gobill/internal/auth"
	"github.com/raakeshmj/gobill/internal/cache"
	"github.com/raakeshmj/gobill/internal/repository"
)

const (
	GrantClientCredentials = "client_credentials"
	GrantRefreshToken      = "refresh_token"

	claimsCacheTTL = time.Minute
)

// dummyHash keeps the unknown-client path as slow as a secret mismatch.
var dummyHash, _ = auth.HashSecret("gobill-unknown-client")

type IssueRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	GrantType    string `json:"grant_type"`
	Scope        string `json:"scope"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
	GrantType    string `json:"grant_type"`
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	Scope        string `json:"scope"`
	ClientName   string `json:"client_name,omitempty"`
	IssuedAt     int64  `json:"issued_at"`
}

// TokenService implements the client-credentials and refresh grants.
type TokenService struct {
	clients    repository.ClientRepository
	jwtManager *auth.JWTManager
	cache      *cache.MemoryCache[*auth.AccessClaims]
}

func NewTokenService(c repository.ClientRepository, j *auth.JWTManager, cc *cache.MemoryCache[*auth.AccessClaims]) *TokenService {
	return &TokenService{
		clients:    c,
		jwtManager: j,
		cache:      cc,
	}
}

// Issue validates client credentials and requested scopes, then returns an
// access token and a refresh token.
func (s *TokenService) Issue(ctx context.Context, req IssueRequest) (*TokenPair, error) {
	if req.GrantType != GrantClientCredentials {
		return nil, fmt.Errorf("%w: only client_credentials grant type is supported", ErrUnsupportedGrantType)
	}
	if req.ClientID == "" || req.ClientSecret == "" {
		return nil, fmt.Errorf("%w: client_id and client_secret are required", ErrInvalidRequest)
	}

	client, err := s.clients.GetClient(ctx, req.ClientID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		auth.CheckSecretHash(req.ClientSecret, dummyHash)
		return nil, ErrInvalidClient
	}
	if client.SecretHash == "" || !auth.CheckSecretHash(req.ClientSecret, client.SecretHash) {
		return nil, ErrInvalidClient
	}

	scopes := auth.ParseScope(req.Scope)
	if len(scopes) == 0 {
		scopes = client.AllowedScopes
	}
	var invalid []string
	for _, sc := range scopes {
		if !client.Allows(sc) {
			invalid = append(invalid, sc)
		}
	}
	if len(invalid) > 0 {
		return nil, &ScopeError{Invalid: invalid}
	}

	scope := auth.JoinScope(scopes)
	access, claims, err := s.jwtManager.GenerateAccess(client.ID, client.DisplayName, scope)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := s.jwtManager.GenerateRefresh(client.ID)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}

	log.Info().
		Str("client_id", client.ID).
		Str("client_name", client.DisplayName).
		Strs("scopes", scopes).
		Msg("issued access token")

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(auth.AccessTokenTTL.Seconds()),
		Scope:        scope,
		ClientName:   client.DisplayName,
		IssuedAt:     claims.IssuedAt.Unix(),
	}, nil
}

// Refresh exchanges a refresh token for a new access token carrying the
// client's full scope set. Refresh tokens are not rotated.
func (s *TokenService) Refresh(ctx context.Context, req RefreshRequest) (*TokenPair, error) {
	if req.GrantType != GrantRefreshToken {
		return nil, fmt.Errorf("%w: only refresh_token grant type is supported for this endpoint", ErrUnsupportedGrantType)
	}
	if req.RefreshToken == "" {
		return nil, fmt.Errorf("%w: refresh_token is required", ErrInvalidRequest)
	}

	rc, err := s.jwtManager.VerifyRefresh(req.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid or expired refresh token", ErrInvalidGrant)
	}
	if rc.TokenType != auth.RefreshType {
		return nil, fmt.Errorf("%w: invalid token type", ErrInvalidGrant)
	}

	client, err := s.clients.GetClient(ctx, rc.ClientID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: client not found", ErrInvalidClient)
		}
		return nil, err
	}

	scope := auth.JoinScope(client.AllowedScopes)
	access, claims, err := s.jwtManager.GenerateAccess(client.ID, client.DisplayName, scope)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	log.Info().Str("client_id", client.ID).Msg("refreshed access token")

	return &TokenPair{
		AccessToken: access,
		TokenType:   "Bearer",
		ExpiresIn:   int64(auth.AccessTokenTTL.Seconds()),
		Scope:       scope,
		IssuedAt:    claims.IssuedAt.Unix(),
	}, nil
}

// Verify checks an access token and returns its claims. Results are cached
// briefly, never past the token's own expiry.
func (s *TokenService) Verify(ctx context.Context, token string) (*auth.AccessClaims, error) {
	key := auth.TokenFingerprint(token)
	if claims, ok := s.cache.Get(key); ok {
		if claims.ExpiresAt != nil && s.jwtManager.Now().Before(claims.ExpiresAt.Time) {
			return claims, nil
		}
		s.cache.Delete(key)
	}

	claims, err := s.jwtManager.VerifyAccess(token)
	if err != nil {
		return nil, err
	}

	ttl := claimsCacheTTL
	if left := claims.ExpiresAt.Sub(s.jwtManager.Now()); left < ttl {
		ttl = left
	}
	s.cache.Set(key, claims, ttl)

	return claims, nil
}

// RequireScope returns ErrInsufficientScope unless claims grant at least
// one of wants.
func RequireScope(claims *auth.AccessClaims, wants ...string) error {
	if claims == nil || !auth.HasAnyScope(claims.Scope, wants...) {
		return fmt.Errorf("%w: token does not have %s scope", ErrInsufficientScope, auth.JoinScope(wants))
	}
	return nil
}
