// Package taxonomy defines the closed set of failure kinds shared by both
// cores and their mapping to HTTP status codes and machine-readable codes.
package taxonomy

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies a member of the closed error taxonomy.
type Kind string

// The closed set of failure kinds. No other kind may be introduced without
// extending this list — callers pattern-match against these constants rather
// than treating the taxonomy as an open set of strings.
const (
	KindConfiguration        Kind = "configuration_error"
	KindInputValidation      Kind = "input_validation_error"
	KindRateLimit            Kind = "rate_limit_error"
	KindDatabaseUnavailable  Kind = "database_unavailable_error"
	KindAgentTimeout         Kind = "agent_timeout_error"
	KindElementNotFound      Kind = "element_not_found"
	KindStateDetection       Kind = "state_detection_error"
	KindTransient            Kind = "transient_error"
	KindHumanInterventionReq Kind = "human_intervention_required"
	KindUserAborted          Kind = "user_aborted"
)

// Error is the concrete error type carried through both cores. It wraps an
// underlying cause and tags it with a Kind so callers can branch on Kind
// without string-matching messages.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs a tagged taxonomy error.
func New(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind == kind
	}
	return false
}

// HTTPMapping is the (status, type, code) triple Core B's HTTP surface
// returns for a given Kind (§7).
type HTTPMapping struct {
	Status int
	Type   string
	Code   string
}

var httpMappings = map[Kind]HTTPMapping{
	KindConfiguration:       {http.StatusInternalServerError, "internal_error", "internal_error"},
	KindInputValidation:     {http.StatusBadRequest, "invalid_request_error", "input_too_long"},
	KindRateLimit:           {http.StatusTooManyRequests, "rate_limit_error", "rate_limited"},
	KindDatabaseUnavailable: {http.StatusServiceUnavailable, "service_unavailable_error", "database_unavailable"},
	KindAgentTimeout:        {http.StatusGatewayTimeout, "timeout_error", "agent_timeout"},
}

// MapHTTP translates err into the HTTP mapping for its Kind. Any error not
// carrying a recognized Kind (including bare Go errors) maps to a generic
// internal error — never leaking a stack trace or internal message to the
// client.
func MapHTTP(err error) HTTPMapping {
	var te *Error
	if errors.As(err, &te) {
		if m, ok := httpMappings[te.Kind]; ok {
			return m
		}
	}
	return HTTPMapping{http.StatusInternalServerError, "internal_error", "internal_error"}
}

// Retryable reports whether the given Kind should be retried by its owning
// layer (RateLimitError with backoff, TransientError with exponential
// backoff). DatabaseUnavailableError is retried at the orchestrator level,
// not automatically here.
func Retryable(kind Kind) bool {
	switch kind {
	case KindRateLimit, KindTransient:
		return true
	default:
		return false
	}
}
