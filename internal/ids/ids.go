package ids

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// SessionIDBytes is the amount of randomness carried by a session id.
const SessionIDBytes = 32

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewRequestID returns a lexicographically sortable identifier for request correlation.
func NewRequestID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// NewSessionID returns an unguessable base64url session identifier.
func NewSessionID() (string, error) {
	return sessionIDFrom(rand.Reader)
}

func sessionIDFrom(r io.Reader) (string, error) {
	buf := make([]byte, SessionIDBytes)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("session id entropy: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
