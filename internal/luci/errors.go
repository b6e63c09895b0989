package luci

import (
	"errors"
	"fmt"
)

// Kind is the class of a failure.
type Kind int

const (
	KindUnknown Kind = iota
	// KindTransport is a network or HTTP-layer failure. Retryable by caller policy.
	KindTransport
	// KindProtocol is a malformed or unexpected device reply, or a local
	// failure that stops the handshake before anything is sent.
	KindProtocol
	// KindDecryption is a reply that did not decrypt under the session key.
	KindDecryption
	// KindWrongCredentials is a rejected password.
	KindWrongCredentials
	// KindAttemptsExhausted means the device locked logins out.
	KindAttemptsExhausted
	// KindSessionConflict means another admin holds the session slot.
	KindSessionConflict
	// KindSessionExpired means the stok is no longer accepted.
	KindSessionExpired
)

var kindNames = map[Kind]string{
	KindUnknown:           "unknown",
	KindTransport:         "transport error",
	KindProtocol:          "protocol error",
	KindDecryption:        "decryption error",
	KindWrongCredentials:  "wrong credentials",
	KindAttemptsExhausted: "attempts exhausted",
	KindSessionConflict:   "session conflict",
	KindSessionExpired:    "session expired",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Attempts mirrors the login counters the device reports. Advisory only.
type Attempts struct {
	FailureCount    int
	AttemptsAllowed int
}

// Error is the single error type returned by this package.
type Error struct {
	Kind     Kind
	Op       string
	Code     string
	Attempts Attempts
	Err      error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	switch e.Kind {
	case KindWrongCredentials:
		msg += fmt.Sprintf(" (remaining attempts %d/%d)",
			e.Attempts.AttemptsAllowed, e.Attempts.FailureCount+e.Attempts.AttemptsAllowed)
	case KindAttemptsExhausted:
		msg += fmt.Sprintf(" after %d failures", e.Attempts.FailureCount)
	}
	if e.Code != "" {
		msg += fmt.Sprintf(" [%s]", e.Code)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same Kind, so errors.Is(err, ErrSessionExpired)
// works regardless of Op or counters.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Retryable reports whether repeating the same operation may succeed.
func (e *Error) Retryable() bool {
	return e.Kind == KindTransport
}

// Sentinels for errors.Is.
var (
	ErrTransport         = &Error{Kind: KindTransport}
	ErrProtocol          = &Error{Kind: KindProtocol}
	ErrDecryption        = &Error{Kind: KindDecryption}
	ErrWrongCredentials  = &Error{Kind: KindWrongCredentials}
	ErrAttemptsExhausted = &Error{Kind: KindAttemptsExhausted}
	ErrSessionConflict   = &Error{Kind: KindSessionConflict}
	ErrSessionExpired    = &Error{Kind: KindSessionExpired}
)

var (
	// ErrHandshakeInProgress is returned by TryConnect while another
	// handshake on the same Client is running.
	ErrHandshakeInProgress = errors.New("luci: handshake already in progress")
	// ErrSessionClosed is returned when a logged-out or superseded session is used.
	ErrSessionClosed = errors.New("luci: session closed")
)

// KindOf extracts the Kind of err, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}
