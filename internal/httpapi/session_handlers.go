package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"dupulse.app/internal/audit"
	"dupulse.app/internal/auth"
	"dupulse.app/internal/guard"
)

const defaultNext = "/admin"

type openSessionRequest struct {
	AccessToken string `json:"access_token"`
}

type sessionResponse struct {
	State     guard.State   `json:"state"`
	Identity  *identityView `json:"identity,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	Message   string        `json:"message,omitempty"`
	Redirect  string        `json:"redirect,omitempty"`
	ExpiresAt *time.Time    `json:"expires_at,omitempty"`
}

func (a *API) handleSession(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.sessionState(w, r)
	case http.MethodPost:
		a.openSession(w, r)
	case http.MethodDelete:
		a.closeSession(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost, http.MethodDelete)
	}
}

// sessionState reports where the browser guard should go next. The SPA shows
// its loading view until this settles on allowed or denied.
func (a *API) sessionState(w http.ResponseWriter, r *http.Request) {
	out := a.guard.Check(r)
	w.Header().Set("Cache-Control", "no-store")
	if out.State == guard.StateAllowed {
		view := viewIdentity(*out.Verdict.Identity)
		expires := out.Session.ExpiresAt
		writeJSON(w, http.StatusOK, sessionResponse{
			State:     out.State,
			Identity:  &view,
			ExpiresAt: &expires,
		})
		return
	}
	next := r.URL.Query().Get("next")
	if next == "" {
		next = defaultNext
	}
	resp := auth.Respond(out.Verdict)
	writeJSON(w, http.StatusOK, sessionResponse{
		State:    guard.StateDenied,
		Reason:   out.Verdict.Reason.String(),
		Message:  resp.Body.Message,
		Redirect: a.guard.LoginURL(next),
	})
}

func (a *API) openSession(w http.ResponseWriter, r *http.Request) {
	token, err := auth.ExtractBearerToken(r.Header)
	if err != nil {
		var req openSessionRequest
		if derr := decodeJSON(w, r, &req); derr == nil {
			token = strings.TrimSpace(req.AccessToken)
		}
	}
	if token == "" {
		writeVerdict(w, auth.Deny(auth.ReasonMissingCredential, auth.ErrMissingCredential))
		return
	}

	sess, identity, err := a.guard.Open(r.Context(), token)
	switch {
	case errors.Is(err, auth.ErrMissingCredential):
		writeVerdict(w, auth.Deny(auth.ReasonMissingCredential, err))
		return
	case errors.Is(err, auth.ErrUnauthenticated), errors.Is(err, auth.ErrProviderUnavailable):
		writeVerdict(w, auth.Deny(auth.ReasonUnauthenticated, err))
		return
	case err != nil:
		writeError(w, r, http.StatusInternalServerError, "session could not be created")
		return
	}

	ctx := auth.ContextWithIdentity(r.Context(), identity)
	_ = audit.LogEvent(ctx, "session.opened", map[string]any{
		"expires_at": sess.ExpiresAt.Format(time.RFC3339),
	})
	a.guard.SetCookie(w, sess)
	view := viewIdentity(identity)
	writeJSON(w, http.StatusCreated, sessionResponse{
		State:     guard.StatePending,
		Identity:  &view,
		ExpiresAt: &sess.ExpiresAt,
	})
}

func (a *API) closeSession(w http.ResponseWriter, r *http.Request) {
	if err := a.guard.Close(r); err != nil {
		writeError(w, r, http.StatusInternalServerError, "session could not be closed")
		return
	}
	_ = audit.LogEvent(r.Context(), "session.closed", nil)
	a.guard.ClearCookie(w)
	w.WriteHeader(http.StatusNoContent)
}
