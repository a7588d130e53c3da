// Package velux talks to the Velux/Netatmo backend on behalf of a session:
// it issues password and refresh-token grants, sends authenticated domain
// requests, and replays a request once after recovering from an expired or
// invalid access token.
package velux

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tonimelisma/velux-go/internal/credstore"
)

// Sentinel errors for HTTP status code classification.
// Use errors.Is(err, velux.ErrForbidden) to check.
var (
	ErrBadRequest   = errors.New("velux: bad request")
	ErrUnauthorized = errors.New("velux: unauthorized")
	ErrForbidden    = errors.New("velux: forbidden")
	ErrNotFound     = errors.New("velux: not found")
	ErrThrottled    = errors.New("velux: throttled")
	ErrServerError  = errors.New("velux: server error")
	ErrUnexpected   = errors.New("velux: unexpected status")
)

// ErrConfigurationMissing is returned by warm-up when the settings record is
// absent. It is the same value as credstore.ErrConfigurationMissing.
var ErrConfigurationMissing = credstore.ErrConfigurationMissing

// ErrIncompleteSession is matched by every *IncompleteSessionError.
var ErrIncompleteSession = errors.New("velux: session incomplete")

// Backend error codes carried in the {"error":{"code":N}} envelope.
const (
	codeInvalidToken = 2
	codeExpiredToken = 3
)

// APIError is a non-2xx response from the authorization or domain
// endpoints. Code and Message come from the error envelope when the body
// carries one.
type APIError struct {
	StatusCode int
	RequestID  string
	Code       int
	Message    string
	Body       string
	Err        error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	var b strings.Builder

	fmt.Fprintf(&b, "velux: HTTP %d", e.StatusCode)

	if e.RequestID != "" {
		fmt.Fprintf(&b, " (request-id: %s)", e.RequestID)
	}

	switch {
	case e.Code != 0:
		fmt.Fprintf(&b, ": code %d: %s", e.Code, e.Message)
	case e.Message != "":
		fmt.Fprintf(&b, ": %s", e.Message)
	case e.Body != "":
		fmt.Fprintf(&b, ": %s", e.Body)
	}

	return b.String()
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status code to a sentinel error.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return ErrUnexpected
	}
}

// AuthRequestError reports a failed grant. The session token is unchanged
// when this error is returned.
type AuthRequestError struct {
	Grant GrantType
	Err   error
}

func (e *AuthRequestError) Error() string {
	return fmt.Sprintf("velux: %s grant failed: %v", e.Grant, e.Err)
}

func (e *AuthRequestError) Unwrap() error {
	return e.Err
}

// IncompleteSessionError means an operation ran before the session held
// everything it needs. It is a caller bug, not something a retry can fix.
type IncompleteSessionError struct {
	Missing []string
}

func (e *IncompleteSessionError) Error() string {
	return "velux: session incomplete: missing " + strings.Join(e.Missing, ", ")
}

func (e *IncompleteSessionError) Is(target error) bool {
	return target == ErrIncompleteSession
}

// Failure classifies a failed domain request.
type Failure int

const (
	// FailureOther is anything that is not a recoverable token failure.
	FailureOther Failure = iota
	// FailureExpired is a 403 with the expired-token code; a refresh grant
	// recovers it.
	FailureExpired
	// FailureInvalid is a 403 with the invalid-token code; only a password
	// grant recovers it.
	FailureInvalid
)

func (f Failure) String() string {
	switch f {
	case FailureExpired:
		return "expired"
	case FailureInvalid:
		return "invalid"
	default:
		return "other"
	}
}

// Grant returns the grant that recovers f, if any.
func (f Failure) Grant() (GrantType, bool) {
	switch f {
	case FailureExpired:
		return GrantRefreshToken, true
	case FailureInvalid:
		return GrantPassword, true
	default:
		return "", false
	}
}

// Classify inspects err for a 403 carrying a token error code. Only the
// status and the numeric code are consulted; the message text is ignored.
func Classify(err error) Failure {
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusForbidden {
		return FailureOther
	}

	switch apiErr.Code {
	case codeExpiredToken:
		return FailureExpired
	case codeInvalidToken:
		return FailureInvalid
	default:
		return FailureOther
	}
}
