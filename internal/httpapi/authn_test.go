package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"dupulse.app/internal/auth"
)

type stubProvider struct {
	users map[string]auth.Identity
	err   error
}

func (s stubProvider) ResolveIdentity(_ context.Context, token string) (auth.Identity, error) {
	if s.err != nil {
		return auth.Identity{}, s.err
	}
	id, ok := s.users[token]
	if !ok {
		return auth.Identity{}, auth.ErrUnauthenticated
	}
	return id, nil
}

type stubDirectory struct {
	mu      sync.Mutex
	records []auth.AdminRecord
	err     error
	listErr error
	lookups int
}

func (d *stubDirectory) HasAdminRecord(_ context.Context, uid string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lookups++
	if d.err != nil {
		return false, d.err
	}
	for _, r := range d.records {
		if r.UID == uid {
			return true, nil
		}
	}
	return false, nil
}

func (d *stubDirectory) ListAdmins(context.Context) ([]auth.AdminRecord, error) {
	if d.err != nil {
		return nil, d.err
	}
	if d.listErr != nil {
		return nil, d.listErr
	}
	return d.records, nil
}

func (d *stubDirectory) CountAdmins(context.Context) (int, error) {
	if d.err != nil {
		return 0, d.err
	}
	if d.listErr != nil {
		return 0, d.listErr
	}
	return len(d.records), nil
}

var testUsers = map[string]auth.Identity{
	"admin-token": {ID: "u-admin", Email: "admin@dupulse.app"},
	"user-token":  {ID: "u-user", Email: "user@example.com"},
}

func newTestGate(t *testing.T, provider auth.IdentityProvider, dir *stubDirectory) *auth.Gate {
	t.Helper()
	gate, err := auth.NewGate(provider, auth.MembershipPolicy{Store: dir})
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}
	return gate
}

func serveAdmin(t *testing.T, gate *auth.Gate, authorization string) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	called := false
	h := RequireAdmin(gate)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if _, ok := auth.IdentityFromContext(r.Context()); !ok {
			t.Fatalf("identity missing from context")
		}
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/v1/admin/system", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr, called
}

func messageOf(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body auth.Message
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rr.Body.String(), err)
	}
	return body.Message
}

func TestRequireAdminMissingToken(t *testing.T) {
	dir := &stubDirectory{}
	rr, called := serveAdmin(t, newTestGate(t, stubProvider{users: testUsers}, dir), "")
	if called {
		t.Fatalf("handler must not run")
	}
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if msg := messageOf(t, rr); msg != "Authentication token not provided." {
		t.Fatalf("unexpected message %q", msg)
	}
	if rr.Header().Get("WWW-Authenticate") == "" {
		t.Fatalf("expected WWW-Authenticate header")
	}
	if dir.lookups != 0 {
		t.Fatalf("membership must not be consulted")
	}
}

func TestRequireAdminWrongScheme(t *testing.T) {
	rr, _ := serveAdmin(t, newTestGate(t, stubProvider{users: testUsers}, &stubDirectory{}), "Basic Zm9vOmJhcg==")
	if rr.Code != http.StatusUnauthorized || messageOf(t, rr) != auth.MessageMissingCredential {
		t.Fatalf("unexpected response %d %s", rr.Code, rr.Body.String())
	}
}

func TestRequireAdminInvalidToken(t *testing.T) {
	rr, called := serveAdmin(t, newTestGate(t, stubProvider{users: testUsers}, &stubDirectory{}), "Bearer nope")
	if called || rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if msg := messageOf(t, rr); msg != "Invalid or expired authentication token." {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestRequireAdminProviderDown(t *testing.T) {
	provider := stubProvider{err: auth.ErrProviderUnavailable}
	rr, _ := serveAdmin(t, newTestGate(t, provider, &stubDirectory{}), "Bearer admin-token")
	if rr.Code != http.StatusUnauthorized || messageOf(t, rr) != auth.MessageUnauthenticated {
		t.Fatalf("unexpected response %d %s", rr.Code, rr.Body.String())
	}
}

func TestRequireAdminNonAdminForbidden(t *testing.T) {
	dir := &stubDirectory{records: []auth.AdminRecord{{UID: "u-admin"}}}
	rr, called := serveAdmin(t, newTestGate(t, stubProvider{users: testUsers}, dir), "Bearer user-token")
	if called {
		t.Fatalf("handler must not run")
	}
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	if msg := messageOf(t, rr); msg != "You must be an admin to access this resource." {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestRequireAdminLookupFailure(t *testing.T) {
	dir := &stubDirectory{err: errors.New("connection refused")}
	rr, called := serveAdmin(t, newTestGate(t, stubProvider{users: testUsers}, dir), "Bearer admin-token")
	if called {
		t.Fatalf("handler must not run on lookup failure")
	}
	if rr.Code != http.StatusForbidden || messageOf(t, rr) != "Unable to verify admin privileges." {
		t.Fatalf("unexpected response %d %s", rr.Code, rr.Body.String())
	}
}

func TestRequireAdminAllows(t *testing.T) {
	dir := &stubDirectory{records: []auth.AdminRecord{{UID: "u-admin"}}}
	rr, called := serveAdmin(t, newTestGate(t, stubProvider{users: testUsers}, dir), "Bearer admin-token")
	if !called || rr.Code != http.StatusOK {
		t.Fatalf("expected handler to run, got %d", rr.Code)
	}
}

func TestRequireAdminGatesPreflight(t *testing.T) {
	dir := &stubDirectory{records: []auth.AdminRecord{{UID: "u-admin"}}}
	called := false
	h := RequireAdmin(newTestGate(t, stubProvider{users: testUsers}, dir))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	req := httptest.NewRequest(http.MethodOptions, "/v1/admin/admins", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if called {
		t.Fatalf("OPTIONS without a credential must not reach the handler")
	}
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if msg := messageOf(t, rr); msg != "Authentication token not provided." {
		t.Fatalf("unexpected message %q", msg)
	}
}
