package httpapi

import (
	"net/http"
	"time"

	"dupulse.app/internal/auth"
	"dupulse.app/internal/obs"
)

type identityView struct {
	ID          string            `json:"id"`
	Email       string            `json:"email,omitempty"`
	Role        string            `json:"role,omitempty"`
	AppMetadata map[string]string `json:"app_metadata,omitempty"`
}

func viewIdentity(id auth.Identity) identityView {
	return identityView{
		ID:          id.ID,
		Email:       id.Email,
		Role:        id.Role(),
		AppMetadata: id.AppMetadata,
	}
}

type systemResponse struct {
	Service       string    `json:"service"`
	Version       string    `json:"version"`
	Time          time.Time `json:"time"`
	UptimeSeconds int64     `json:"uptime_seconds"`
	Database      string    `json:"database"`
	AdminCount    *int      `json:"admin_count,omitempty"`
}

func (a *API) handleSystem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	now := time.Now().UTC()
	resp := systemResponse{
		Service:       serviceName,
		Version:       a.version,
		Time:          now,
		UptimeSeconds: int64(now.Sub(a.started).Seconds()),
		Database:      "disabled",
	}
	if a.admins != nil {
		n, err := a.admins.CountAdmins(r.Context())
		if err != nil {
			obs.Warn("count admins failed", map[string]any{
				"request_id": RequestIDFromContext(r.Context()),
				"error":      err.Error(),
			})
			resp.Database = "unavailable"
		} else {
			resp.Database = "ok"
			resp.AdminCount = &n
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeVerdict(w, auth.Deny(auth.ReasonUnauthenticated, auth.ErrUnauthenticated))
		return
	}
	writeJSON(w, http.StatusOK, viewIdentity(identity))
}

func (a *API) handleAdmins(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if a.admins == nil {
		writeError(w, r, http.StatusNotImplemented, "admin directory not configured")
		return
	}
	records, err := a.admins.ListAdmins(r.Context())
	if err != nil {
		obs.Error("list admins failed", map[string]any{
			"request_id": RequestIDFromContext(r.Context()),
			"error":      err.Error(),
		})
		writeError(w, r, http.StatusInternalServerError, "list admins failed")
		return
	}
	if records == nil {
		records = []auth.AdminRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": records})
}
