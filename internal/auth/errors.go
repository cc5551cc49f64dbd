package auth

import "errors"

var (
	ErrMissingCredential   = errors.New("auth: missing credential")
	ErrUnauthenticated     = errors.New("auth: unauthenticated")
	ErrProviderUnavailable = errors.New("auth: identity provider unavailable")
	ErrForbidden           = errors.New("auth: forbidden")
	ErrEvaluator           = errors.New("auth: privilege evaluation failed")
)
