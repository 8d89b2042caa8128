package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/ericfisherdev/cookiepool/internal/application"
	"github.com/ericfisherdev/cookiepool/internal/domain/model"
)

const (
	maxUploadBytes     = 10 << 20
	maxCredentialBytes = 1 << 20
	retryAfterSeconds  = "60"
)

// HealthChecker runs a full-pool health check on demand.
type HealthChecker interface {
	RequestCheck(ctx context.Context) (model.HealthSummary, error)
}

// Handler is the HTTP driving adapter that serves the admin API.
type Handler struct {
	pool     *application.CredentialPool
	health   *application.HealthService
	checker  HealthChecker
	resolver *application.Resolver
	logger   *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(
	pool *application.CredentialPool,
	health *application.HealthService,
	checker HealthChecker,
	resolver *application.Resolver,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		pool:     pool,
		health:   health,
		checker:  checker,
		resolver: resolver,
		logger:   logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging and recovery middleware. metrics is mounted at /metrics when
// non-nil.
func NewServeMux(h *Handler, metrics http.Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", h.Health)
	mux.HandleFunc("GET /api/v1/credentials", h.ListCredentials)
	mux.HandleFunc("POST /api/v1/credentials", h.AddCredentials)
	mux.HandleFunc("DELETE /api/v1/credentials/{id}", h.DeleteCredential)
	mux.HandleFunc("POST /api/v1/credentials/{id}/probe", h.ProbeCredential)
	mux.HandleFunc("POST /api/v1/credentials/{id}/reset", h.ResetCredential)
	mux.HandleFunc("POST /api/v1/health-check", h.RunHealthCheck)
	mux.HandleFunc("GET /api/v1/pool/stats", h.PoolStats)
	mux.HandleFunc("PUT /api/v1/pool/fallback", h.SetFallback)
	mux.HandleFunc("POST /api/v1/resolve", h.Resolve)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// writeDomainError maps engine errors to HTTP responses. Unexpected errors are
// logged and hidden behind a generic 500.
func (h *Handler) writeDomainError(w http.ResponseWriter, action string, err error) {
	var fe *model.FallbackError
	switch {
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, "credential not found")
	case errors.Is(err, model.ErrEmptyCredential),
		errors.Is(err, model.ErrInvalidCredentialFormat),
		errors.Is(err, model.ErrEmptyURL):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &fe):
		status := http.StatusServiceUnavailable
		if fe.NeedsOperator() {
			status = http.StatusFailedDependency
		} else {
			w.Header().Set("Retry-After", retryAfterSeconds)
		}
		writeJSON(w, status, ErrorResponse{
			Error: fe.Kind.Error(), Code: fe.Code(), Attempts: fe.Attempts, EmptyPool: fe.EmptyPool,
		})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "request canceled")
	default:
		h.logger.Error("failed to "+action, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// Health reports liveness and the number of usable credentials.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	}

	stats, err := h.pool.Stats(r.Context())
	if err != nil {
		h.logger.Error("health check could not read pool", "error", err)
		resp.Status = "degraded"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	resp.Usable = stats.Usable()

	writeJSON(w, http.StatusOK, resp)
}

// ListCredentials returns every credential in pool order.
func (h *Handler) ListCredentials(w http.ResponseWriter, r *http.Request) {
	creds, err := h.pool.List(r.Context())
	if err != nil {
		h.writeDomainError(w, "list credentials", err)
		return
	}

	resp := make([]CredentialResponse, 0, len(creds))
	for _, c := range creds {
		resp = append(resp, toCredentialResponse(c))
	}

	writeJSON(w, http.StatusOK, resp)
}

// AddCredentials accepts one or more files in the multipart field "cookies".
// Each file is added independently; the response lists successes and failures.
func (h *Handler) AddCredentials(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart upload")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	files := r.MultipartForm.File["cookies"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, `no files in field "cookies"`)
		return
	}

	resp := UploadResponse{Added: []CredentialResponse{}, Failed: []UploadFailure{}}
	for _, fh := range files {
		c, err := h.addOne(r.Context(), fh)
		if err != nil {
			if isValidationError(err) {
				resp.Failed = append(resp.Failed, UploadFailure{Name: fh.Filename, Error: err.Error()})
				continue
			}
			h.writeDomainError(w, "add credential", err)
			return
		}
		resp.Added = append(resp.Added, toCredentialResponse(c))
	}

	if len(resp.Added) > 0 {
		h.health.PublishStats(r.Context())
	}

	status := http.StatusCreated
	if len(resp.Added) == 0 {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, resp)
}

func (h *Handler) addOne(ctx context.Context, fh *multipart.FileHeader) (model.Credential, error) {
	name := fh.Filename
	f, err := fh.Open()
	if err != nil {
		return model.Credential{}, fmt.Errorf("open upload %q: %w", name, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxCredentialBytes+1))
	if err != nil {
		return model.Credential{}, fmt.Errorf("read upload %q: %w", name, err)
	}
	if len(data) > maxCredentialBytes {
		return model.Credential{}, errCredentialTooLarge
	}

	return h.pool.Add(ctx, data, name)
}

var errCredentialTooLarge = errors.New("credential file exceeds 1 MiB")

func isValidationError(err error) bool {
	return errors.Is(err, model.ErrEmptyCredential) ||
		errors.Is(err, model.ErrInvalidCredentialFormat) ||
		errors.Is(err, errCredentialTooLarge)
}

// DeleteCredential removes a credential and its file.
func (h *Handler) DeleteCredential(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := h.pool.Delete(r.Context(), id); err != nil {
		h.writeDomainError(w, "delete credential", err)
		return
	}
	h.health.PublishStats(r.Context())

	w.WriteHeader(http.StatusNoContent)
}

// ProbeCredential runs a health probe against one credential.
func (h *Handler) ProbeCredential(w http.ResponseWriter, r *http.Request) {
	c, err := h.health.ProbeOne(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, "probe credential", err)
		return
	}

	writeJSON(w, http.StatusOK, toCredentialResponse(c))
}

// ResetCredential returns a credential to the untested state.
func (h *Handler) ResetCredential(w http.ResponseWriter, r *http.Request) {
	c, err := h.pool.Reset(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, "reset credential", err)
		return
	}
	h.health.PublishStats(r.Context())

	writeJSON(w, http.StatusOK, toCredentialResponse(c))
}

// RunHealthCheck probes every credential and returns the summary.
func (h *Handler) RunHealthCheck(w http.ResponseWriter, r *http.Request) {
	summary, err := h.checker.RequestCheck(r.Context())
	if err != nil {
		h.writeDomainError(w, "run health check", err)
		return
	}

	writeJSON(w, http.StatusOK, toHealthSummaryResponse(summary))
}

// PoolStats returns per-status counts and pool metadata.
func (h *Handler) PoolStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.pool.Stats(r.Context())
	if err != nil {
		h.writeDomainError(w, "read pool stats", err)
		return
	}

	writeJSON(w, http.StatusOK, toStatsResponse(stats))
}

// SetFallback toggles the session-warmer tier.
func (h *Handler) SetFallback(w http.ResponseWriter, r *http.Request) {
	var req FallbackToggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		writeError(w, http.StatusBadRequest, `invalid request body: expected {"enabled": true|false}`)
		return
	}

	if err := h.pool.SetFallbackEnabled(r.Context(), *req.Enabled); err != nil {
		h.writeDomainError(w, "toggle fallback", err)
		return
	}
	h.health.PublishStats(r.Context())

	h.PoolStats(w, r)
}

// Resolve fetches media metadata for a URL through the fallback chain.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !isHTTPURL(req.URL) {
		writeError(w, http.StatusBadRequest, "url must be an http(s) URL")
		return
	}

	res, err := h.resolver.Resolve(r.Context(), req.URL)
	if err != nil {
		h.writeDomainError(w, "resolve", err)
		return
	}

	resp := ResolveResponse{
		Method:       string(res.Method),
		CredentialID: res.CredentialID,
		Attempts:     res.Attempts,
	}
	if out := strings.TrimSpace(res.Output); json.Valid([]byte(out)) {
		resp.Metadata = json.RawMessage(out)
	} else {
		resp.Output = res.Output
	}

	writeJSON(w, http.StatusOK, resp)
}

func isHTTPURL(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "http://")
}
