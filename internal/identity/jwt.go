package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"dupulse.app/internal/auth"
)

const (
	// DefaultAudience is the audience the auth backend stamps on user access tokens.
	DefaultAudience = "authenticated"
	clockSkew       = 5 * time.Second
)

var _ auth.IdentityProvider = (*JWTProvider)(nil)

// Claims are the access token claims read from the auth backend's tokens.
type Claims struct {
	Email       string         `json:"email,omitempty"`
	Role        string         `json:"role,omitempty"`
	AppMetadata map[string]any `json:"app_metadata,omitempty"`
	jwt.RegisteredClaims
}

// JWTProvider verifies HS256 access tokens locally with the project's JWT
// secret instead of calling the auth backend.
type JWTProvider struct {
	secret   []byte
	issuer   string
	audience string
}

// JWTOption configures JWTProvider.
type JWTOption func(*JWTProvider)

// WithIssuer requires tokens to carry the given iss claim.
func WithIssuer(issuer string) JWTOption {
	return func(p *JWTProvider) {
		p.issuer = strings.TrimSpace(issuer)
	}
}

// WithAudience overrides the required aud claim. An empty audience disables the check.
func WithAudience(aud string) JWTOption {
	return func(p *JWTProvider) {
		p.audience = strings.TrimSpace(aud)
	}
}

// NewJWTProvider constructs a provider verifying tokens signed with secret.
func NewJWTProvider(secret string, opts ...JWTOption) (*JWTProvider, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("identity: jwt secret is required")
	}
	p := &JWTProvider{secret: []byte(secret), audience: DefaultAudience}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// ResolveIdentity implements auth.IdentityProvider.
func (p *JWTProvider) ResolveIdentity(_ context.Context, token string) (auth.Identity, error) {
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(clockSkew),
	}
	if p.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(p.issuer))
	}
	if p.audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(p.audience))
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (any, error) {
		return p.secret, nil
	}, parserOpts...)
	if err != nil {
		return auth.Identity{}, fmt.Errorf("%w: %v", auth.ErrUnauthenticated, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return auth.Identity{}, auth.ErrUnauthenticated
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return auth.Identity{}, fmt.Errorf("%w: subject missing", auth.ErrUnauthenticated)
	}
	return auth.Identity{
		ID:          subject,
		Email:       strings.TrimSpace(strings.ToLower(claims.Email)),
		AppMetadata: flattenMetadata(claims.AppMetadata),
	}, nil
}

// SignToken issues an access token in the auth backend's format. It is used
// by local tooling and tests; production tokens come from the backend.
func SignToken(secret, subject, email string, appMetadata map[string]any, ttl time.Duration, opts ...JWTOption) (string, error) {
	p, err := NewJWTProvider(secret, opts...)
	if err != nil {
		return "", err
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", errors.New("identity: subject is required")
	}
	if ttl <= 0 {
		return "", errors.New("identity: ttl must be greater than zero")
	}
	now := time.Now().UTC()
	claims := Claims{
		Email:       email,
		Role:        DefaultAudience,
		AppMetadata: appMetadata,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    p.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if p.audience != "" {
		claims.Audience = jwt.ClaimStrings{p.audience}
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
