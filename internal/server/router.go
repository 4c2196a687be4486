package server

import (
	"errors"
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"commentguard/internal/perspective"
)

type API struct {
	auth    *Auth
	store   Store
	checker CheckerService
	obs     *Observability
}

func NewAPI(auth *Auth, store Store, checker CheckerService, obs *Observability) *API {
	return &API{
		auth:    auth,
		store:   store,
		checker: checker,
		obs:     obs,
	}
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", a.handleHealthz)

	mux.HandleFunc("POST /api/v1/auth/login", a.auth.HandleLogin)
	mux.HandleFunc("POST /api/v1/auth/logout", a.auth.HandleLogout)
	mux.HandleFunc("GET /api/v1/auth/me", a.auth.HandleMe)

	mux.HandleFunc("POST /api/v1/check", a.handleCheck)
	mux.HandleFunc("GET /api/v1/checks/{id}", a.handleGetCheck)

	mux.Handle("GET /api/v1/admin/checks", a.auth.RequireAdmin(http.HandlerFunc(a.handleAdminListChecks)))
	mux.Handle("GET /api/v1/admin/metrics/overview", a.auth.RequireAdmin(http.HandlerFunc(a.handleAdminOverview)))
	mux.Handle("GET /api/v1/admin/audit", a.auth.RequireAdmin(http.HandlerFunc(a.handleAdminAudit)))
	mux.Handle("GET /api/v1/admin/thresholds", a.auth.RequireAdmin(http.HandlerFunc(a.handleAdminListThresholds)))
	mux.Handle("PUT /api/v1/admin/thresholds/{model}", a.auth.RequireAdmin(http.HandlerFunc(a.handleAdminSetThreshold)))
	mux.Handle("DELETE /api/v1/admin/thresholds/{model}", a.auth.RequireAdmin(http.HandlerFunc(a.handleAdminClearThreshold)))
	mux.Handle("DELETE /api/v1/admin/thresholds", a.auth.RequireAdmin(http.HandlerFunc(a.handleAdminClearAllThresholds)))

	wrapped := otelhttp.NewHandler(mux, "commentguard-http")
	return withCORS(wrapped)
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":   true,
		"time": nowRFC3339(),
	})
}

func (a *API) handleCheck(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("commentguard-api").Start(r.Context(), "check.create")
	defer span.End()

	var req CheckRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	span.SetAttributes(attribute.Int("check.models", len(req.Models)))

	actor := ""
	if principal, err := a.auth.AuthenticateRequest(r); err == nil {
		actor = principal.Subject
	}

	record, err := a.checker.Check(ctx, req, actor)
	if err != nil {
		span.RecordError(err)
		if apiErr, ok := perspective.IsAPIError(err); ok {
			writeError(w, http.StatusBadGateway, apiErr.Error())
			return
		}
		var upstream *UpstreamError
		if errors.As(err, &upstream) {
			writeError(w, http.StatusBadGateway, upstream.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (a *API) handleGetCheck(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing check id")
		return
	}
	record, ok := a.store.GetCheck(id)
	if !ok {
		writeError(w, http.StatusNotFound, "check not found")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (a *API) handleAdminListChecks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"checks": a.store.ListChecks(100),
	})
}

func (a *API) handleAdminOverview(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.store.GetMetricsOverview())
}

func (a *API) handleAdminAudit(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"audit": a.store.ListAudit(200),
	})
}

func (a *API) handleAdminListThresholds(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"thresholds": a.checker.Thresholds(),
	})
}

func (a *API) handleAdminSetThreshold(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("commentguard-api").Start(r.Context(), "threshold.set")
	defer span.End()

	model := strings.TrimSpace(r.PathValue("model"))
	var body struct {
		Value float64 `json:"value"`
	}
	if err := decodeJSONBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	principal, _ := PrincipalFromContext(ctx)
	if err := a.checker.SetThreshold(ctx, model, body.Value, principal.Subject); err != nil {
		span.RecordError(err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ThresholdUpdate{Model: model, Value: body.Value})
}

func (a *API) handleAdminClearThreshold(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("commentguard-api").Start(r.Context(), "threshold.clear")
	defer span.End()

	model := strings.TrimSpace(r.PathValue("model"))
	principal, _ := PrincipalFromContext(ctx)
	if err := a.checker.ClearThreshold(ctx, model, principal.Subject); err != nil {
		span.RecordError(err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *API) handleAdminClearAllThresholds(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, _ := PrincipalFromContext(ctx)
	if err := a.checker.ClearAllThresholds(ctx, principal.Subject); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Admin-Token")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
