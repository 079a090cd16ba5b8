package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raakeshmj/gobill/internal/auth"
	"github.com/raakeshmj/gobill/internal/cache"
	"github.com/raakeshmj/gobill/internal/db"
	"github.com/raakeshmj/gobill/internal/repository"
)

// MockClientRepo
type MockClientRepo struct {
	clients  map[string]*db.Client
	getCalls int
}

func NewMockClientRepo(t *testing.T) *MockClientRepo {
	t.Helper()
	repo := &MockClientRepo{clients: make(map[string]*db.Client)}
	repo.add(t, "netflix_integration", "Netflix Integration", "netflix-secret",
		"billing:read", "billing:write", "subscriptions:manage", "analytics:read", "webhooks:receive")
	repo.add(t, "disney_integration", "Disney+ Integration", "disney-secret",
		"billing:read", "subscriptions:manage", "analytics:read")
	return repo
}

func (m *MockClientRepo) add(t *testing.T, id, name, secret string, scopes ...string) {
	hash, err := auth.HashSecret(secret)
	require.NoError(t, err)
	m.clients[id] = &db.Client{ID: id, DisplayName: name, SecretHash: hash, AllowedScopes: scopes}
}

func (m *MockClientRepo) GetClient(ctx context.Context, clientID string) (*db.Client, error) {
	m.getCalls++
	if c, ok := m.clients[clientID]; ok {
		return c, nil
	}
	return nil, repository.ErrNotFound
}

type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time { return c.t }

func newTokenService(t *testing.T) (*TokenService, *MockClientRepo, *testClock) {
	clock := &testClock{t: time.Unix(1_700_000_000, 0)}
	repo := NewMockClientRepo(t)
	jwtManager := auth.NewJWTManager("access-secret", "refresh-secret").WithClock(clock.Now)
	claimsCache := cache.NewMemoryCache[*auth.AccessClaims]().WithClock(clock.Now)
	return NewTokenService(repo, jwtManager, claimsCache), repo, clock
}

func TestTokenService_IssueDefaultsToAllowedScopes(t *testing.T) {
	svc, repo, _ := newTokenService(t)
	ctx := context.Background()

	pair, err := svc.Issue(ctx, IssueRequest{
		ClientID:     "netflix_integration",
		ClientSecret: "netflix-secret",
		GrantType:    GrantClientCredentials,
	})
	require.NoError(t, err)
	assert.Equal(t, "Bearer", pair.TokenType)
	assert.Equal(t, int64(86400), pair.ExpiresIn)
	assert.Equal(t, "Netflix Integration", pair.ClientName)
	assert.NotEmpty(t, pair.RefreshToken)

	claims, err := svc.Verify(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, strings.Join(repo.clients["netflix_integration"].AllowedScopes, " "), claims.Scope)
	assert.Equal(t, pair.Scope, claims.Scope)
}

func TestTokenService_IssueScopeSubset(t *testing.T) {
	svc, repo, _ := newTokenService(t)
	ctx := context.Background()

	pair, err := svc.Issue(ctx, IssueRequest{
		ClientID:     "disney_integration",
		ClientSecret: "disney-secret",
		GrantType:    GrantClientCredentials,
		Scope:        "billing:read analytics:read billing:read",
	})
	require.NoError(t, err)

	claims, err := svc.Verify(ctx, pair.AccessToken)
	require.NoError(t, err)
	client := repo.clients["disney_integration"]
	for _, s := range auth.ParseScope(claims.Scope) {
		assert.True(t, client.Allows(s), "scope %q must be allowed", s)
	}
	assert.Equal(t, "billing:read analytics:read", claims.Scope)
}

func TestTokenService_IssueErrors(t *testing.T) {
	svc, _, _ := newTokenService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  IssueRequest
		want error
	}{
		{
			name: "wrong grant type",
			req:  IssueRequest{ClientID: "netflix_integration", ClientSecret: "netflix-secret", GrantType: "password"},
			want: ErrUnsupportedGrantType,
		},
		{
			name: "missing secret",
			req:  IssueRequest{ClientID: "netflix_integration", GrantType: GrantClientCredentials},
			want: ErrInvalidRequest,
		},
		{
			name: "missing client id",
			req:  IssueRequest{ClientSecret: "x", GrantType: GrantClientCredentials},
			want: ErrInvalidRequest,
		},
		{
			name: "unknown client",
			req:  IssueRequest{ClientID: "hbo_integration", ClientSecret: "x", GrantType: GrantClientCredentials},
			want: ErrInvalidClient,
		},
		{
			name: "wrong secret",
			req:  IssueRequest{ClientID: "netflix_integration", ClientSecret: "disney-secret", GrantType: GrantClientCredentials},
			want: ErrInvalidClient,
		},
		{
			name: "scope outside allowed set",
			req:  IssueRequest{ClientID: "disney_integration", ClientSecret: "disney-secret", GrantType: GrantClientCredentials, Scope: "billing:write"},
			want: ErrInvalidScope,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pair, err := svc.Issue(ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, pair)
		})
	}
}

func TestTokenService_InvalidScopeNamesOffenders(t *testing.T) {
	svc, _, _ := newTokenService(t)

	_, err := svc.Issue(context.Background(), IssueRequest{
		ClientID:     "disney_integration",
		ClientSecret: "disney-secret",
		GrantType:    GrantClientCredentials,
		Scope:        "billing:read billing:write fraud:detect",
	})
	var scopeErr *ScopeError
	require.ErrorAs(t, err, &scopeErr)
	assert.Equal(t, []string{"billing:write", "fraud:detect"}, scopeErr.Invalid)
}

func TestTokenService_Refresh(t *testing.T) {
	svc, _, clock := newTokenService(t)
	ctx := context.Background()

	pair, err := svc.Issue(ctx, IssueRequest{
		ClientID:     "disney_integration",
		ClientSecret: "disney-secret",
		GrantType:    GrantClientCredentials,
		Scope:        "billing:read",
	})
	require.NoError(t, err)

	clock.t = clock.t.Add(25 * time.Hour)
	_, err = svc.Verify(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, auth.ErrExpiredToken)

	renewed, err := svc.Refresh(ctx, RefreshRequest{RefreshToken: pair.RefreshToken, GrantType: GrantRefreshToken})
	require.NoError(t, err)
	assert.Empty(t, renewed.RefreshToken)
	// Refresh always grants the full allowed set.
	assert.Equal(t, "billing:read subscriptions:manage analytics:read", renewed.Scope)

	claims, err := svc.Verify(ctx, renewed.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "disney_integration", claims.ClientID)
}

func TestTokenService_RefreshErrors(t *testing.T) {
	svc, repo, clock := newTokenService(t)
	ctx := context.Background()

	pair, err := svc.Issue(ctx, IssueRequest{ClientID: "netflix_integration", ClientSecret: "netflix-secret", GrantType: GrantClientCredentials})
	require.NoError(t, err)

	_, err = svc.Refresh(ctx, RefreshRequest{RefreshToken: pair.RefreshToken, GrantType: GrantClientCredentials})
	assert.ErrorIs(t, err, ErrUnsupportedGrantType)

	_, err = svc.Refresh(ctx, RefreshRequest{GrantType: GrantRefreshToken})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	// An access token is not a refresh token.
	_, err = svc.Refresh(ctx, RefreshRequest{RefreshToken: pair.AccessToken, GrantType: GrantRefreshToken})
	assert.ErrorIs(t, err, ErrInvalidGrant)

	// Flipping a byte in the payload breaks the signature.
	parts := strings.Split(pair.RefreshToken, ".")
	require.Len(t, parts, 3)
	tampered := parts[0] + "." + parts[1][:len(parts[1])-1] + flip(parts[1][len(parts[1])-1]) + "." + parts[2]
	_, err = svc.Refresh(ctx, RefreshRequest{RefreshToken: tampered, GrantType: GrantRefreshToken})
	assert.ErrorIs(t, err, ErrInvalidGrant)

	delete(repo.clients, "netflix_integration")
	_, err = svc.Refresh(ctx, RefreshRequest{RefreshToken: pair.RefreshToken, GrantType: GrantRefreshToken})
	assert.ErrorIs(t, err, ErrInvalidClient)

	clock.t = clock.t.Add(auth.RefreshTokenTTL + time.Second)
	_, err = svc.Refresh(ctx, RefreshRequest{RefreshToken: pair.RefreshToken, GrantType: GrantRefreshToken})
	assert.ErrorIs(t, err, ErrInvalidGrant)
}

func TestTokenService_RefreshRejectsWrongTokenType(t *testing.T) {
	svc, _, clock := newTokenService(t)

	// Correctly signed with the refresh secret but not a refresh token.
	claims := auth.RefreshClaims{
		ClientID:  "netflix_integration",
		TokenType: "access",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    auth.Issuer,
			Audience:  jwt.ClaimStrings{auth.RefreshAudience},
			IssuedAt:  jwt.NewNumericDate(clock.t),
			ExpiresAt: jwt.NewNumericDate(clock.t.Add(time.Hour)),
		},
	}
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("refresh-secret"))
	require.NoError(t, err)

	_, err = svc.Refresh(context.Background(), RefreshRequest{RefreshToken: forged, GrantType: GrantRefreshToken})
	assert.ErrorIs(t, err, ErrInvalidGrant)
}

func TestTokenService_VerifyCachesClaims(t *testing.T) {
	svc, _, clock := newTokenService(t)
	ctx := context.Background()

	pair, err := svc.Issue(ctx, IssueRequest{ClientID: "netflix_integration", ClientSecret: "netflix-secret", GrantType: GrantClientCredentials})
	require.NoError(t, err)

	first, err := svc.Verify(ctx, pair.AccessToken)
	require.NoError(t, err)
	second, err := svc.Verify(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Same(t, first, second)

	// A cached entry never outlives the token.
	clock.t = clock.t.Add(auth.AccessTokenTTL + time.Second)
	_, err = svc.Verify(ctx, pair.AccessToken)
	assert.Error(t, err)
}

func TestRequireScope(t *testing.T) {
	claims := &auth.AccessClaims{Scope: "billing:read"}
	assert.NoError(t, RequireScope(claims, auth.ScopeSubscriptionsManage, auth.ScopeBillingRead))
	assert.ErrorIs(t, RequireScope(claims, auth.ScopeSubscriptionsManage), ErrInsufficientScope)
	assert.ErrorIs(t, RequireScope(nil, auth.ScopeBillingRead), ErrInsufficientScope)
}

func flip(c byte) string {
	if c == 'A' {
		return "B"
	}
	return "A"
}
