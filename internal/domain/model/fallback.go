package model

import (
	"errors"
	"fmt"
)

// Validation and lookup sentinels.
var (
	ErrNotFound                = errors.New("credential not found")
	ErrEmptyCredential         = errors.New("credential file is empty")
	ErrInvalidCredentialFormat = errors.New("invalid credential format: export cookies in Netscape format")
	ErrEmptyURL                = errors.New("url is required")
)

// Fallback exhaustion taxonomy. ErrExhaustedNotAllBlocked and
// ErrExhaustedWarmerFailed mean "retry later"; ErrExhaustedDisabled and
// ErrExhaustedAllMethods need operator action.
var (
	ErrExhaustedDisabled      = errors.New("all credentials exhausted and session fallback is disabled")
	ErrExhaustedNotAllBlocked = errors.New("available credentials failed but some are still active, retry later")
	ErrExhaustedWarmerFailed  = errors.New("all credentials blocked and session warmer failed")
	ErrExhaustedAllMethods    = errors.New("all fallback methods failed, upload fresh credentials")
)

// FallbackResult describes which tier satisfied a request.
type FallbackResult struct {
	Method       FallbackMethod
	CredentialID string
	Attempts     int
}

// FallbackError is returned when every permitted tier failed. Kind is one of
// the ErrExhausted* sentinels and is matched through errors.Is. EmptyPool is
// set when the pool held no credentials, which no retry can fix.
type FallbackError struct {
	Kind      error
	Attempts  int
	Cause     error
	EmptyPool bool
}

func (e *FallbackError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%v after %d attempts: %v", e.Kind, e.Attempts, e.Cause)
	}
	return fmt.Sprintf("%v after %d attempts", e.Kind, e.Attempts)
}

// Unwrap exposes both the taxonomy kind and the underlying cause.
func (e *FallbackError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// NeedsOperator reports whether the failure requires admin action rather than
// a later retry.
func (e *FallbackError) NeedsOperator() bool {
	return e.EmptyPool || errors.Is(e.Kind, ErrExhaustedDisabled) || errors.Is(e.Kind, ErrExhaustedAllMethods)
}

// Code returns a stable identifier for the exhaustion kind, used in API
// responses and metric labels.
func (e *FallbackError) Code() string {
	switch {
	case errors.Is(e.Kind, ErrExhaustedDisabled):
		return "exhausted-disabled"
	case errors.Is(e.Kind, ErrExhaustedNotAllBlocked):
		return "exhausted-not-all-blocked"
	case errors.Is(e.Kind, ErrExhaustedWarmerFailed):
		return "exhausted-warmer-failed"
	case errors.Is(e.Kind, ErrExhaustedAllMethods):
		return "exhausted-all-methods"
	}
	return "exhausted"
}
