package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ericfisherdev/cookiepool/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// ErrorResponse is the standard error response body. Code and Attempts are
// set for fallback exhaustion so clients can tell "retry later" from
// "operator action required" without parsing the message.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Attempts  int    `json:"attempts,omitempty"`
	EmptyPool bool   `json:"empty_pool,omitempty"`
}

// CredentialResponse is the JSON representation of a pooled credential.
type CredentialResponse struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Status        string  `json:"status"`
	UploadedAt    string  `json:"uploaded_at"`
	LastCheckedAt *string `json:"last_checked_at"`
	FailureCount  int     `json:"failure_count"`
	SuccessCount  int     `json:"success_count"`
	LastError     string  `json:"last_error,omitempty"`
	Priority      int     `json:"priority"`
}

// UploadFailure reports one rejected file in a multi-file upload.
type UploadFailure struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

// UploadResponse is the result of a multi-file upload.
type UploadResponse struct {
	Added  []CredentialResponse `json:"added"`
	Failed []UploadFailure      `json:"failed"`
}

// StatsResponse is the JSON representation of pool statistics.
type StatsResponse struct {
	Total              int     `json:"total"`
	Active             int     `json:"active"`
	Untested           int     `json:"untested"`
	Blocked            int     `json:"blocked"`
	Expired            int     `json:"expired"`
	Error              int     `json:"error"`
	Usable             int     `json:"usable"`
	HasUsable          bool    `json:"has_usable"`
	AllExhausted       bool    `json:"all_exhausted"`
	LastRotationAt     *string `json:"last_rotation_at"`
	LastHealthCheckAt  *string `json:"last_health_check_at"`
	FallbackEnabled    bool    `json:"fallback_enabled"`
	FallbackUsageCount int     `json:"fallback_usage_count"`
}

// HealthSummaryResponse is the result of a full-pool health check.
type HealthSummaryResponse struct {
	Tested  int `json:"tested"`
	Active  int `json:"active"`
	Blocked int `json:"blocked"`
	Expired int `json:"expired"`
	Errors  int `json:"errors"`
}

// FallbackToggleRequest is the JSON body for the fallback toggle endpoint.
type FallbackToggleRequest struct {
	Enabled *bool `json:"enabled"`
}

// ResolveRequest is the JSON body for the resolve endpoint.
type ResolveRequest struct {
	URL string `json:"url"`
}

// ResolveResponse reports which tier served the request and the tool output.
// Metadata is the tool's JSON when it produced valid JSON.
type ResolveResponse struct {
	Method       string          `json:"method"`
	CredentialID string          `json:"credential_id,omitempty"`
	Attempts     int             `json:"attempts"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	Output       string          `json:"output,omitempty"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
	Usable int    `json:"usable"`
}

func formatOptionalTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

// toCredentialResponse converts a domain Credential to its JSON representation.
func toCredentialResponse(c model.Credential) CredentialResponse {
	return CredentialResponse{
		ID:            c.ID,
		Name:          c.DisplayName,
		Status:        string(c.Status),
		UploadedAt:    c.UploadedAt.UTC().Format(time.RFC3339),
		LastCheckedAt: formatOptionalTime(c.LastCheckedAt),
		FailureCount:  c.FailureCount,
		SuccessCount:  c.SuccessCount,
		LastError:     c.LastError,
		Priority:      c.Priority,
	}
}

// toStatsResponse converts domain PoolStats to its JSON representation.
func toStatsResponse(s model.PoolStats) StatsResponse {
	return StatsResponse{
		Total:              s.Total,
		Active:             s.Active,
		Untested:           s.Untested,
		Blocked:            s.Blocked,
		Expired:            s.Expired,
		Error:              s.Error,
		Usable:             s.Usable(),
		HasUsable:          s.Usable() > 0,
		AllExhausted:       s.Usable() == 0,
		LastRotationAt:     formatOptionalTime(s.LastRotationAt),
		LastHealthCheckAt:  formatOptionalTime(s.LastHealthCheckAt),
		FallbackEnabled:    s.FallbackEnabled,
		FallbackUsageCount: s.FallbackUsageCount,
	}
}

// toHealthSummaryResponse converts a domain HealthSummary to its JSON representation.
func toHealthSummaryResponse(s model.HealthSummary) HealthSummaryResponse {
	return HealthSummaryResponse{
		Tested:  s.Tested,
		Active:  s.Active,
		Blocked: s.Blocked,
		Expired: s.Expired,
		Errors:  s.Errors,
	}
}
