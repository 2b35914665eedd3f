package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"auditgate.io/internal/obs"
	"auditgate.io/internal/portal"
)

// ReadyProbe — простая проверка готовности (например, ping БД).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API — HTTP слой.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string
	portal     *portal.Service

	rateBurst    int
	ratePerSec   int
	maxBodyBytes int64
}

func New(rp ReadyProbe, version string, svc *portal.Service) *API {
	a := &API{
		mux:          http.NewServeMux(),
		readyProbe:   rp,
		version:      version,
		portal:       svc,
		rateBurst:    20,
		ratePerSec:   10,
		maxBodyBytes: 1 << 20,
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// admin token issuance (dev helper)
	a.mux.HandleFunc("/v1/auth/token", a.handleAdminToken)

	// external portal surface
	a.mux.HandleFunc("/v1/audit-portal/auth", a.handlePortalAuth)
	// refresh re-runs the full code exchange; there is no lightweight path
	a.mux.HandleFunc("/v1/audit-portal/auth/refresh", a.handlePortalAuth)
	a.mux.HandleFunc("/v1/audit-portal/logout", a.handlePortalLogout)
	a.mux.HandleFunc("/v1/audit-portal/session", a.handlePortalSession)
	a.mux.HandleFunc("/v1/audit-portal/requests", a.handlePortalRequests)
	a.mux.HandleFunc("/v1/audit-portal/requests/", a.handlePortalRequestScoped)
	a.mux.HandleFunc("/v1/audit-portal/evidence/", a.handlePortalEvidenceScoped)

	// admin management surface
	a.mux.HandleFunc("/v1/audits/", a.handleAuditScoped)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler возвращает http.Handler для сервера (без доп. аргументов).
func (a *API) Handler() http.Handler {
	h := http.Handler(a.mux)
	h = MaxBodyBytes(h, a.maxBodyBytes)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	// оборачиваем весь стек метриками
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "auditgate-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "auditgate-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeJSON(w, code, errorResponse{
		Error:     msg,
		RequestID: RequestIDFromContext(r.Context()),
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	defer func() { _, _ = io.Copy(io.Discard, r.Body) }()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return errors.New("invalid JSON body")
	}
	return nil
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

// handlePortalError maps domain sentinels onto HTTP status codes.
func handlePortalError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, portal.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "resource not found")
	case errors.Is(err, portal.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, errMessage(err, portal.ErrInvalidInput))
	case errors.Is(err, portal.ErrUnauthorized):
		writeError(w, r, http.StatusUnauthorized, errMessage(err, portal.ErrUnauthorized))
	case errors.Is(err, portal.ErrForbidden):
		writeError(w, r, http.StatusForbidden, errMessage(err, portal.ErrForbidden))
	case errors.Is(err, portal.ErrLimitExceeded):
		obs.ObserveQuotaDenied()
		writeError(w, r, http.StatusTooManyRequests, "download limit exceeded")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

// errMessage strips the sentinel prefix, leaving only the human reason.
func errMessage(err error, sentinel error) string {
	msg := err.Error()
	if trimmed := strings.TrimPrefix(msg, sentinel.Error()+": "); trimmed != msg {
		return trimmed
	}
	return strings.TrimPrefix(msg, "portal: ")
}
