// Package httpapi is the HTTP surface of the portal: route registration,
// the authorization guard wiring, and the middleware chain.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"hrvault.org/internal/audit"
	"hrvault.org/internal/authz"
	"hrvault.org/internal/config"
	"hrvault.org/internal/devicetrust"
	"hrvault.org/internal/directory"
	"hrvault.org/internal/notify"
	"hrvault.org/internal/obs"
	"hrvault.org/internal/ratelimit"
	"hrvault.org/internal/records"
	"hrvault.org/internal/session"
)

const serviceName = obs.Service

// ReadyProbe reports backend readiness (DB ping when configured).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Options carries everything the API needs. All stores must be the same
// instances the device-trust service mutates, or revocation visibility
// breaks.
type Options struct {
	Codec    *session.Codec
	Accounts *directory.Cache
	Records  records.Store
	Devices  *devicetrust.Service
	Limiter  *ratelimit.Limiter
	Recorder *audit.Recorder
	Hub      *notify.Hub

	ReadyProbe   ReadyProbe
	Version      string
	CookieSecure bool
	Limits       config.RateLimits
	MaxBodyBytes int64
}

// API is the HTTP layer.
type API struct {
	mux *http.ServeMux

	guard    *authz.Guard
	codec    *session.Codec
	accounts *directory.Cache
	records  records.Store
	devices  *devicetrust.Service
	limiter  *ratelimit.Limiter
	recorder *audit.Recorder
	hub      *notify.Hub

	readyProbe   ReadyProbe
	version      string
	cookieSecure bool
	limits       config.RateLimits
	maxBodyBytes int64
}

func New(opts Options) *API {
	a := &API{
		mux:          http.NewServeMux(),
		guard:        authz.NewGuard(opts.Codec, opts.Accounts, opts.Limiter, opts.Recorder),
		codec:        opts.Codec,
		accounts:     opts.Accounts,
		records:      opts.Records,
		devices:      opts.Devices,
		limiter:      opts.Limiter,
		recorder:     opts.Recorder,
		hub:          opts.Hub,
		readyProbe:   opts.ReadyProbe,
		version:      opts.Version,
		cookieSecure: opts.CookieSecure,
		limits:       opts.Limits,
		maxBodyBytes: opts.MaxBodyBytes,
	}
	if a.maxBodyBytes <= 0 {
		a.maxBodyBytes = 1 << 20
	}
	a.routes()
	return a
}

func (a *API) routes() {
	// health/ready/info/metrics are public.
	a.mux.HandleFunc("/healthz", a.handleHealthz)
	a.mux.HandleFunc("/readyz", a.handleReady)
	a.mux.HandleFunc("/v1/info", a.handleInfo)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)
	a.mux.Handle("/v1/auth/switch-role", a.guard.Protect(a.switchRolePolicy(), a.handleSwitchRole))

	a.mux.HandleFunc("/v1/records/", a.handleRecordResource)
	a.mux.Handle("/v1/exports/employees", a.guard.Protect(a.exportPolicy(), a.handleExportEmployees))
	a.mux.HandleFunc("/v1/accounts/", a.handleAccountResource)

	a.mux.HandleFunc("/v1/devices/verifications/", a.handleVerificationResource)
	a.mux.Handle("/v1/security/incidents", a.guard.Protect(a.incidentsPolicy(), a.handleIncidents))
	a.mux.Handle("/v1/security/feed", a.guard.Protect(a.feedPolicy(), a.handleFeed))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
}

// Handler returns the server handler with the full middleware chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = obs.Instrument(h)
	h = Logging(h)
	h = Throttle(h, a.limits.GlobalRPS, a.limits.GlobalBurst)
	h = MaxBodyBytes(h, a.maxBodyBytes)
	h = SecurityHeaders(h)
	h = RequestID(h)
	return h
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}
