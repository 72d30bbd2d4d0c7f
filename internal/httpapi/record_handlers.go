package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"hrvault.org/internal/audit"
	"hrvault.org/internal/authz"
	"hrvault.org/internal/directory"
	"hrvault.org/internal/rbac"
	"hrvault.org/internal/records"
	"hrvault.org/internal/session"
)

// handleRecordResource routes /v1/records/{email}. The target email in the
// path is the resource owner; the guard's ownership check decides whether
// the caller may touch it.
func (a *API) handleRecordResource(w http.ResponseWriter, r *http.Request) {
	email := directory.NormalizeEmail(strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/records/"), "/"))
	if email == "" || strings.Contains(email, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		a.guard.Protect(a.recordViewPolicy(email), func(w http.ResponseWriter, r *http.Request, sess *session.Session) {
			a.handleRecordGet(w, r, sess, email)
		}).ServeHTTP(w, r)
	case http.MethodPut:
		a.guard.Protect(a.recordUpdatePolicy(email), func(w http.ResponseWriter, r *http.Request, sess *session.Session) {
			a.handleRecordPut(w, r, sess, email)
		}).ServeHTTP(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
	}
}

func pathOwner(email string) authz.OwnerResolver {
	return func(ctx context.Context, r *http.Request) (string, error) {
		return email, nil
	}
}

func (a *API) recordViewPolicy(email string) authz.Policy {
	return authz.Policy{
		Activity:    "Employee Record Viewed",
		Module:      rbac.ModuleEmployees,
		Sensitive:   true,
		Permissions: []rbac.Permission{rbac.PermRecordsOwn},
		Owner:       pathOwner(email),
	}
}

func (a *API) recordUpdatePolicy(email string) authz.Policy {
	return authz.Policy{
		Activity:    "Employee Record Updated",
		Module:      rbac.ModuleEmployees,
		Sensitive:   true,
		Permissions: []rbac.Permission{rbac.PermRecordsManage},
	}
}

func (a *API) handleRecordGet(w http.ResponseWriter, r *http.Request, sess *session.Session, email string) {
	rec, err := a.records.Get(r.Context(), email)
	if err != nil {
		if errors.Is(err, records.ErrNotFound) {
			a.recorder.Record(r.Context(), audit.Event{
				Activity:    "Employee Record Viewed",
				Status:      audit.StatusFailed,
				Module:      rbac.ModuleEmployees,
				PerformedBy: sess.Email,
				Sensitivity: audit.Sensitive,
				Metadata: map[string]string{
					"target": email,
					"reason": "record_not_found",
				},
			})
			writeError(w, r, http.StatusNotFound, "record not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	a.recorder.Record(r.Context(), audit.Event{
		Activity:    "Employee Record Viewed",
		Status:      audit.StatusCompleted,
		Module:      rbac.ModuleEmployees,
		PerformedBy: sess.Email,
		Sensitivity: audit.Sensitive,
		Metadata:    map[string]string{"target": email},
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"owner_email": rec.OwnerEmail,
		"document":    rec.Document,
		"updated_at":  rec.UpdatedAt,
	})
}

func (a *API) handleRecordPut(w http.ResponseWriter, r *http.Request, sess *session.Session, email string) {
	var document map[string]any
	if err := decodeJSON(w, r, &document); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := a.records.Put(r.Context(), email, document)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	a.recorder.Record(r.Context(), audit.Event{
		Activity:    "Employee Record Updated",
		Status:      audit.StatusCompleted,
		Module:      rbac.ModuleEmployees,
		PerformedBy: sess.Email,
		Sensitivity: audit.Sensitive,
		Metadata:    map[string]string{"target": email},
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"owner_email": rec.OwnerEmail,
		"updated_at":  rec.UpdatedAt,
	})
}

func (a *API) exportPolicy() authz.Policy {
	return authz.Policy{
		Activity:    "Employee Data Export",
		Module:      rbac.ModuleExports,
		Sensitive:   true,
		Permissions: []rbac.Permission{rbac.PermExportsManage},
		Limits: []authz.RouteLimit{
			{Scope: "export_subject", Key: authz.LimitBySubject, Limit: a.limits.ExportPerSubject, Window: a.limits.ExportWindow},
			{Scope: "export_ip", Key: authz.LimitByIP, Limit: a.limits.ExportPerIP, Window: a.limits.ExportWindow},
		},
	}
}

func (a *API) handleExportEmployees(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	limit, err := parsePositiveInt(r.URL.Query().Get("limit"), 100, 1, 1000)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	recs, err := a.records.List(r.Context(), limit)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	type exportRow struct {
		OwnerEmail  string         `json:"owner_email"`
		DisplayName string         `json:"display_name"`
		Document    map[string]any `json:"document"`
	}
	rows := make([]exportRow, 0, len(recs))
	for _, rec := range recs {
		rows = append(rows, exportRow{
			OwnerEmail:  rec.OwnerEmail,
			DisplayName: a.accounts.DisplayName(r.Context(), rec.OwnerEmail),
			Document:    rec.Document,
		})
	}

	a.recorder.Record(r.Context(), audit.Event{
		Activity:    "Employee Data Export",
		Status:      audit.StatusCompleted,
		Module:      rbac.ModuleExports,
		PerformedBy: sess.Email,
		Sensitivity: audit.Sensitive,
		Metadata:    map[string]string{"count": strconv.Itoa(len(rows))},
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"employees": rows,
		"count":     len(rows),
	})
}

type updateRoleRequest struct {
	Role string `json:"role"`
}

func (a *API) roleUpdatePolicy() authz.Policy {
	return authz.Policy{
		Activity:    "Account Role Updated",
		Module:      rbac.ModuleSettings,
		Sensitive:   true,
		Permissions: []rbac.Permission{rbac.PermRolesManage},
	}
}

// handleAccountResource routes /v1/accounts/{email}/role.
func (a *API) handleAccountResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/accounts/"), "/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[1] != "role" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	email := directory.NormalizeEmail(parts[0])
	if email == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	a.guard.Protect(a.roleUpdatePolicy(), func(w http.ResponseWriter, r *http.Request, sess *session.Session) {
		a.handleRoleUpdate(w, r, sess, email)
	}).ServeHTTP(w, r)
}

func (a *API) handleRoleUpdate(w http.ResponseWriter, r *http.Request, sess *session.Session, email string) {
	var req updateRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if !rbac.Known(req.Role) {
		writeError(w, r, http.StatusBadRequest, "unknown role")
		return
	}
	role := rbac.Normalize(req.Role)

	// An administrator may not strip their own privileges: the change would
	// take effect mid-session and lock out the last super_admin by mistake.
	if directory.NormalizeEmail(sess.Email) == email && role != rbac.RoleSuperAdmin {
		a.recorder.Record(r.Context(), audit.Event{
			Activity:    "Account Role Updated",
			Status:      audit.StatusRejected,
			Module:      rbac.ModuleSettings,
			PerformedBy: sess.Email,
			Sensitivity: audit.Sensitive,
			Metadata: map[string]string{
				"target": email,
				"reason": "self_privilege_change_blocked",
			},
		})
		writeError(w, r, http.StatusBadRequest, "self_privilege_change_blocked")
		return
	}

	acct, err := a.accounts.UpdateRole(r.Context(), email, role)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "account not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	a.recorder.Record(r.Context(), audit.Event{
		Activity:    "Account Role Updated",
		Status:      audit.StatusCompleted,
		Module:      rbac.ModuleSettings,
		PerformedBy: sess.Email,
		Sensitivity: audit.Sensitive,
		Metadata: map[string]string{
			"target": email,
			"role":   string(acct.Role),
		},
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"email":           acct.Email,
		"role":            acct.Role,
		"session_version": acct.SessionVersion,
	})
}
