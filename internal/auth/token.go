package auth

import (
	"net/http"
	"strings"
)

const (
	AuthorizationHeader = "Authorization"
	BearerPrefix        = "Bearer "
)

// ExtractBearerToken returns the credential following the literal "Bearer "
// prefix of the Authorization header.
func ExtractBearerToken(h http.Header) (string, error) {
	if h == nil {
		return "", ErrMissingCredential
	}
	return ParseBearer(h.Get(AuthorizationHeader))
}

// ParseBearer is ExtractBearerToken for a raw header value.
func ParseBearer(value string) (string, error) {
	value = strings.TrimSpace(value)
	if !strings.HasPrefix(value, BearerPrefix) {
		return "", ErrMissingCredential
	}
	token := strings.TrimSpace(value[len(BearerPrefix):])
	if token == "" {
		return "", ErrMissingCredential
	}
	return token, nil
}
