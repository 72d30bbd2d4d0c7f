package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"hrvault.org/internal/audit"
	"hrvault.org/internal/authz"
	"hrvault.org/internal/devicetrust"
	"hrvault.org/internal/rbac"
	"hrvault.org/internal/session"
)

type denyVerificationRequest struct {
	Reason string `json:"reason"`
}

// handleVerificationResource routes
// /v1/devices/verifications/{id}/confirm and /deny. Only the notification
// recipient may decide; managers get no bypass here.
func (a *API) handleVerificationResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/devices/verifications/"), "/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	id, action := parts[0], parts[1]
	if action != "confirm" && action != "deny" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	a.guard.Protect(a.verificationPolicy(id, action), func(w http.ResponseWriter, r *http.Request, sess *session.Session) {
		a.handleVerificationDecision(w, r, sess, id, action)
	}).ServeHTTP(w, r)
}

func (a *API) verificationPolicy(id, action string) authz.Policy {
	activity := "Device Verification Confirm"
	if action == "deny" {
		activity = "Device Verification Deny"
	}
	return authz.Policy{
		Activity:  activity,
		Module:    rbac.ModuleSecurity,
		Sensitive: true,
		Owner: func(ctx context.Context, r *http.Request) (string, error) {
			n, err := a.devices.Notification(ctx, id)
			if err != nil {
				return "", err
			}
			return n.RecipientEmail, nil
		},
		// Non-nil empty slice: no role bypasses recipient ownership.
		OwnerAllowRoles: []rbac.Role{},
	}
}

func (a *API) handleVerificationDecision(w http.ResponseWriter, r *http.Request, sess *session.Session, id, action string) {
	var (
		n   *devicetrust.Notification
		inc *devicetrust.Incident
		err error
	)
	switch action {
	case "confirm":
		n, err = a.devices.Confirm(r.Context(), id)
	case "deny":
		var req denyVerificationRequest
		// The body is optional on denial.
		if decErr := json.NewDecoder(r.Body).Decode(&req); decErr != nil && !errors.Is(decErr, io.EOF) {
			writeError(w, r, http.StatusBadRequest, "invalid request body")
			return
		}
		n, inc, err = a.devices.Deny(r.Context(), id, strings.TrimSpace(req.Reason))
	}

	switch {
	case err == nil:
	case errors.Is(err, devicetrust.ErrAlreadyResolved):
		writeJSON(w, http.StatusOK, map[string]any{"status": "already resolved"})
		return
	case errors.Is(err, devicetrust.ErrDecisionConflict):
		writeError(w, r, http.StatusConflict, "verification already resolved with a different decision")
		return
	case errors.Is(err, devicetrust.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "verification not found")
		return
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	resp := map[string]any{
		"id":       n.ID,
		"decision": n.Decision,
	}
	if inc != nil {
		resp["incident"] = map[string]any{
			"id":       inc.ID,
			"code":     inc.Code,
			"severity": inc.Severity,
			"status":   inc.Status,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) incidentsPolicy() authz.Policy {
	return authz.Policy{
		Activity:    "Incident List Viewed",
		Module:      rbac.ModuleSecurity,
		Sensitive:   true,
		Permissions: []rbac.Permission{rbac.PermIncidentsManage},
	}
}

func (a *API) handleIncidents(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	limit, err := parsePositiveInt(r.URL.Query().Get("limit"), 100, 1, 1000)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	incidents, err := a.devices.Incidents(r.Context(), limit)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	a.recorder.Record(r.Context(), audit.Event{
		Activity:    "Incident List Viewed",
		Status:      audit.StatusCompleted,
		Module:      rbac.ModuleSecurity,
		PerformedBy: sess.Email,
		Sensitivity: audit.Sensitive,
		Metadata:    map[string]string{"count": strconv.Itoa(len(incidents))},
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"incidents": incidents,
		"count":     len(incidents),
	})
}

func (a *API) feedPolicy() authz.Policy {
	return authz.Policy{
		Activity:    "Security Feed Subscribed",
		Module:      rbac.ModuleSecurity,
		Sensitive:   true,
		Permissions: []rbac.Permission{rbac.PermIncidentsManage},
	}
}

// handleFeed streams security events as Server-Sent Events off the hub.
func (a *API) handleFeed(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if a.hub == nil {
		writeError(w, r, http.StatusServiceUnavailable, "feed disabled")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ch := a.hub.Subscribe(ctx)

	a.recorder.Record(r.Context(), audit.Event{
		Activity:    "Security Feed Subscribed",
		Status:      audit.StatusCompleted,
		Module:      rbac.ModuleSecurity,
		PerformedBy: sess.Email,
		Sensitivity: audit.Sensitive,
	})

	_, _ = w.Write([]byte(": stream started\n\n"))
	flusher.Flush()

	for event := range ch {
		payload, err := json.Marshal(event)
		if err != nil {
			continue
		}
		_, _ = w.Write([]byte("data: "))
		_, _ = w.Write(payload)
		_, _ = w.Write([]byte("\n\n"))
		flusher.Flush()
	}
}
