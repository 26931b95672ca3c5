package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// Kind classifies a collaborator failure.
type Kind string

const (
	KindCollaboratorUnavailable Kind = "collaborator_unavailable"
	KindProvider                Kind = "provider"
	KindSearchGrounding         Kind = "search_grounding"
	KindURLValidation           Kind = "url_validation"
	KindResponseParse           Kind = "response_parse"
	KindUnknown                 Kind = "unknown"
)

// CollaboratorError is a failure attributed to one external collaborator
// (knowledge base, field-value provider, search engine, URL check).
type CollaboratorError struct {
	Kind         Kind
	Collaborator string
	Err          error
}

func (e *CollaboratorError) Error() string {
	if e.Err == nil {
		return e.Collaborator + ": " + string(e.Kind)
	}
	return e.Collaborator + ": " + e.Err.Error()
}

func (e *CollaboratorError) Unwrap() error {
	return e.Err
}

// NewCollaboratorError tags err with a kind and the collaborator's name.
func NewCollaboratorError(kind Kind, collaborator string, err error) *CollaboratorError {
	return &CollaboratorError{Kind: kind, Collaborator: collaborator, Err: err}
}

// KindOf returns the kind of the first CollaboratorError in err's chain.
func KindOf(err error) Kind {
	var ce *CollaboratorError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	if errors.Is(err, ErrCircuitOpen) {
		return KindCollaboratorUnavailable
	}
	return KindUnknown
}

// TransientError wraps an error that is safe to retry (e.g., 429, 5xx, network timeout).
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps an error as transient with an optional HTTP status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

var transientPatterns = []string{
	"connection reset by peer",
	"broken pipe",
	"temporary failure in name resolution",
	"tls handshake timeout",
	"i/o timeout",
	"server closed idle connection",
}

// IsTransient reports whether err is worth retrying: an explicit
// TransientError, a network timeout, a reset/refused connection, or a
// message matching a known transport failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// IsTransientHTTPStatus reports whether an HTTP status is a retryable server-side condition.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
