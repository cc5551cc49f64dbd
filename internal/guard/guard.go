package guard

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"dupulse.app/internal/auth"
	"dupulse.app/internal/ids"
)

// CookieName carries the session id in the browser.
const CookieName = "dupulse_session"

// State of a guarded navigation. Every check starts Pending and settles on
// Allowed or Denied.
type State string

const (
	StatePending State = "pending"
	StateAllowed State = "allowed"
	StateDenied  State = "denied"
)

// Outcome is the result of checking a request against the guard.
type Outcome struct {
	State    State
	Verdict  auth.Verdict
	Session  Session
	Redirect string
}

// Guard protects browser routes with the same gate used for API calls.
type Guard struct {
	gate      *auth.Gate
	sessions  SessionStore
	loginPath string
	ttl       time.Duration
	secure    bool
	now       func() time.Time
}

type Option func(*Guard)

// WithLoginPath sets the route denied navigations are sent to.
func WithLoginPath(p string) Option {
	return func(g *Guard) {
		if p = strings.TrimSpace(p); p != "" {
			g.loginPath = p
		}
	}
}

// WithSessionTTL sets the lifetime of newly opened sessions.
func WithSessionTTL(d time.Duration) Option {
	return func(g *Guard) {
		if d > 0 {
			g.ttl = d
		}
	}
}

// WithSecureCookie controls the Secure flag of the session cookie.
func WithSecureCookie(secure bool) Option {
	return func(g *Guard) { g.secure = secure }
}

func New(gate *auth.Gate, sessions SessionStore, opts ...Option) (*Guard, error) {
	if gate == nil {
		return nil, errors.New("guard: gate is required")
	}
	if sessions == nil {
		return nil, errors.New("guard: session store is required")
	}
	g := &Guard{
		gate:      gate,
		sessions:  sessions,
		loginPath: "/login",
		ttl:       12 * time.Hour,
		secure:    true,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Check resolves the request's session and runs the gate on its token.
func (g *Guard) Check(r *http.Request) Outcome {
	out := Outcome{State: StatePending}

	sess, err := g.session(r)
	if err != nil {
		return g.deny(r, out, err)
	}
	out.Session = sess

	v := g.gate.Evaluate(r.Context(), sess.Token)
	out.Verdict = v
	if !v.Allowed() {
		out.State = StateDenied
		out.Redirect = g.LoginURL(r.URL.RequestURI())
		return out
	}
	out.State = StateAllowed
	return out
}

func (g *Guard) deny(r *http.Request, out Outcome, err error) Outcome {
	reason := auth.ReasonMissingCredential
	if !errors.Is(err, auth.ErrMissingCredential) {
		reason = auth.ReasonUnauthenticated
	}
	out.State = StateDenied
	out.Verdict = g.gate.Deny(r.Context(), reason, err)
	out.Redirect = g.LoginURL(r.URL.RequestURI())
	return out
}

func (g *Guard) session(r *http.Request) (Session, error) {
	c, err := r.Cookie(CookieName)
	if err != nil || strings.TrimSpace(c.Value) == "" {
		return Session{}, auth.ErrMissingCredential
	}
	sess, err := g.sessions.Load(r.Context(), c.Value)
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return Session{}, fmt.Errorf("%w: %w", auth.ErrMissingCredential, err)
	case err != nil:
		return Session{}, fmt.Errorf("%w: %w", auth.ErrProviderUnavailable, err)
	}
	return sess, nil
}

// LoginURL builds the login location that returns to next after sign in.
// Only same-origin paths are carried over.
func (g *Guard) LoginURL(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		next = "/"
	}
	return g.loginPath + "?next=" + url.QueryEscape(next)
}

// Middleware redirects denied navigations to the login route.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		out := g.Check(r)
		if out.State != StateAllowed {
			http.Redirect(w, r, out.Redirect, http.StatusSeeOther)
			return
		}
		ctx := auth.ContextWithIdentity(r.Context(), *out.Verdict.Identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Open verifies token and starts a session for the identity behind it.
// Admin privilege is not required here; Check enforces it per navigation.
func (g *Guard) Open(ctx context.Context, token string) (Session, auth.Identity, error) {
	identity, err := g.gate.Resolve(ctx, token)
	if err != nil {
		return Session{}, auth.Identity{}, err
	}
	id, err := ids.NewSessionID()
	if err != nil {
		return Session{}, auth.Identity{}, err
	}
	now := g.now().UTC()
	sess := Session{
		ID:        id,
		Token:     strings.TrimSpace(token),
		UserID:    identity.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(g.ttl),
	}
	if err := g.sessions.Save(ctx, sess); err != nil {
		return Session{}, auth.Identity{}, fmt.Errorf("save session: %w", err)
	}
	return sess, identity, nil
}

// Close ends the session carried by r, if any.
func (g *Guard) Close(r *http.Request) error {
	c, err := r.Cookie(CookieName)
	if err != nil || c.Value == "" {
		return nil
	}
	return g.sessions.Delete(r.Context(), c.Value)
}

// SetCookie writes the session cookie for s.
func (g *Guard) SetCookie(w http.ResponseWriter, s Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    s.ID,
		Path:     "/",
		Expires:  s.ExpiresAt,
		MaxAge:   int(s.ExpiresAt.Sub(g.now()).Seconds()),
		HttpOnly: true,
		Secure:   g.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie expires the session cookie.
func (g *Guard) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   g.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
