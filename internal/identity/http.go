package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"dupulse.app/internal/auth"
)

const (
	userPath        = "/auth/v1/user"
	maxResponseBody = 1 << 20
)

var _ auth.IdentityProvider = (*HTTPProvider)(nil)

// HTTPProvider resolves tokens by asking the hosted auth backend who owns them.
type HTTPProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// HTTPOption configures HTTPProvider.
type HTTPOption func(*HTTPProvider)

// WithHTTPClient overrides the client used to reach the auth backend.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(p *HTTPProvider) {
		if c != nil {
			p.client = c
		}
	}
}

// NewHTTPProvider constructs a provider for the auth backend at baseURL.
// apiKey is the public (anon) project key sent alongside the user's token.
func NewHTTPProvider(baseURL, apiKey string, opts ...HTTPOption) (*HTTPProvider, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("identity: auth base URL is required")
	}
	p := &HTTPProvider{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(apiKey),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

type userResponse struct {
	ID          string         `json:"id"`
	Email       string         `json:"email"`
	AppMetadata map[string]any `json:"app_metadata"`
}

// ResolveIdentity implements auth.IdentityProvider.
func (p *HTTPProvider) ResolveIdentity(ctx context.Context, token string) (auth.Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+userPath, nil)
	if err != nil {
		return auth.Identity{}, fmt.Errorf("%w: build request: %v", auth.ErrProviderUnavailable, err)
	}
	req.Header.Set(auth.AuthorizationHeader, auth.BearerPrefix+token)
	req.Header.Set("Accept", "application/json")
	if p.apiKey != "" {
		req.Header.Set("apikey", p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return auth.Identity{}, fmt.Errorf("%w: %w", auth.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()
	body := io.LimitReader(resp.Body, maxResponseBody)

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		_, _ = io.Copy(io.Discard, body)
		return auth.Identity{}, fmt.Errorf("%w: auth backend status %d", auth.ErrProviderUnavailable, resp.StatusCode)
	default:
		_, _ = io.Copy(io.Discard, body)
		return auth.Identity{}, fmt.Errorf("%w: auth backend status %d", auth.ErrUnauthenticated, resp.StatusCode)
	}

	var user userResponse
	if err := json.NewDecoder(body).Decode(&user); err != nil {
		return auth.Identity{}, fmt.Errorf("%w: decode user: %v", auth.ErrProviderUnavailable, err)
	}
	if strings.TrimSpace(user.ID) == "" {
		return auth.Identity{}, fmt.Errorf("%w: auth backend returned no user", auth.ErrUnauthenticated)
	}
	return auth.Identity{
		ID:          user.ID,
		Email:       strings.TrimSpace(strings.ToLower(user.Email)),
		AppMetadata: flattenMetadata(user.AppMetadata),
	}, nil
}
