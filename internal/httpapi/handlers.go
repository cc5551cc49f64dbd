package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"dupulse.app/internal/auth"
	"dupulse.app/internal/guard"
	"dupulse.app/internal/obs"
)

const serviceName = "dupulse-admin"

// ReadyCheck is one named dependency checked by /readyz.
type ReadyCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// AdminDirectory lists admin records for the admin endpoints.
type AdminDirectory interface {
	ListAdmins(ctx context.Context) ([]auth.AdminRecord, error)
	CountAdmins(ctx context.Context) (int, error)
}

// Options wires the API's collaborators. Gate is required. Loopback CORS
// origins and X-Forwarded-For rate keys are both off unless enabled.
type Options struct {
	Gate              *auth.Gate
	Guard             *guard.Guard
	Admins            AdminDirectory
	Ready             []ReadyCheck
	AdminUI           http.Handler
	Version           string
	RateBurst         int
	RatePerSec        float64
	CORSOrigins       []string
	AllowLocalOrigins bool
	TrustProxy        bool
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	gate       *auth.Gate
	guard      *guard.Guard
	admins     AdminDirectory
	ready      []ReadyCheck
	version    string
	started    time.Time
	rateBurst  int
	ratePerSec float64
	origins    []string
	allowLocal bool
	trustProxy bool
}

func New(opts Options) (*API, error) {
	if opts.Gate == nil {
		return nil, errors.New("httpapi: gate is required")
	}
	a := &API{
		mux:        http.NewServeMux(),
		gate:       opts.Gate,
		guard:      opts.Guard,
		admins:     opts.Admins,
		ready:      opts.Ready,
		version:    opts.Version,
		started:    time.Now(),
		rateBurst:  opts.RateBurst,
		ratePerSec: opts.RatePerSec,
		origins:    opts.CORSOrigins,
		allowLocal: opts.AllowLocalOrigins,
		trustProxy: opts.TrustProxy,
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	a.mux.Handle("/metrics", obs.Handler())

	requireAdmin := RequireAdmin(a.gate)
	a.mux.Handle("/v1/admin/system", requireAdmin(http.HandlerFunc(a.handleSystem)))
	a.mux.Handle("/v1/admin/me", requireAdmin(http.HandlerFunc(a.handleMe)))
	a.mux.Handle("/v1/admin/admins", requireAdmin(http.HandlerFunc(a.handleAdmins)))

	if a.guard != nil {
		a.mux.HandleFunc("/v1/session", a.handleSession)
		if opts.AdminUI != nil {
			a.mux.Handle("/admin/", a.guard.Middleware(opts.AdminUI))
		}
	}

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})

	return a, nil
}

// Handler returns the mux wrapped in the full middleware chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = obs.Instrument(a.mux)
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, a.rateBurst, a.ratePerSec, a.trustProxy)
	h = CORS(h, a.allowLocal, a.origins...)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	return RequestID(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if failed := a.checkReady(ctx); len(failed) > 0 {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"failed": failed,
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) checkReady(ctx context.Context) map[string]string {
	failed := make(map[string]string)
	for _, c := range a.ready {
		if c.Check == nil {
			continue
		}
		if err := c.Check(ctx); err != nil {
			failed[c.Name] = err.Error()
		}
	}
	return failed
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}
