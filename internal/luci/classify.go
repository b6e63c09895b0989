package luci

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/jgrimard/TPLink-APIClient/internal/envelope"
)

// Device error codes with a fixed meaning.
const (
	codeLoginFailed   = "login failed"
	codeExceeded      = "exceeded max attempts"
	codeUserConflict  = "user conflict"
	codeWrongPassword = "-5002"
)

// Reply codes that mean the stok was dropped.
var expiredCodes = map[string]bool{
	"timeout":         true,
	"session timeout": true,
	"unauthorized":    true,
}

// code accepts "errorcode" as either a JSON string or number.
type code string

func (c *code) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*c = code(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*c = code(n.String())
	return nil
}

// Response is the decrypted envelope of a feature call.
type Response struct {
	Success   bool
	ErrorCode string
	Data      json.RawMessage
}

// Decode unmarshals Data into v.
func (r *Response) Decode(v any) error {
	if len(r.Data) == 0 {
		return fmt.Errorf("response has no data")
	}
	return json.Unmarshal(r.Data, v)
}

type rawReply struct {
	Success   *bool           `json:"success"`
	ErrorCode code            `json:"errorcode"`
	Data      json.RawMessage `json:"data"`
}

// ClassifyHTTP maps an HTTP status to an error, or nil for 2xx. Before login
// a 403 means the envelope itself was refused; after login it means the stok
// is gone.
func ClassifyHTTP(status int, authenticated bool) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status >= 300 && status < 400:
		if authenticated {
			return &Error{Kind: KindSessionExpired, Code: http.StatusText(status)}
		}
		return &Error{Kind: KindProtocol, Code: fmt.Sprintf("unexpected redirect %d", status)}
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		if authenticated {
			return &Error{Kind: KindSessionExpired, Code: fmt.Sprintf("http %d", status)}
		}
		return &Error{Kind: KindProtocol, Code: fmt.Sprintf("http %d", status)}
	default:
		return &Error{Kind: KindTransport, Code: fmt.Sprintf("http %d", status)}
	}
}

// ClassifyCodecError maps an envelope error onto the taxonomy.
func ClassifyCodecError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, envelope.ErrEmptyReply), errors.Is(err, envelope.ErrNotEncrypted):
		return &Error{Kind: KindProtocol, Err: err}
	default:
		return &Error{Kind: KindDecryption, Err: err}
	}
}

// ClassifyReply parses a decrypted feature-call reply. A success=false reply
// is returned as a Response, not an error, unless it signals an expired
// session.
func ClassifyReply(plain []byte) (*Response, error) {
	var r rawReply
	if err := json.Unmarshal(plain, &r); err != nil {
		return nil, &Error{Kind: KindProtocol, Err: err}
	}
	if r.Success == nil {
		return nil, &Error{Kind: KindProtocol, Code: "missing success field"}
	}
	if !*r.Success && expiredCodes[string(r.ErrorCode)] {
		return nil, &Error{Kind: KindSessionExpired, Code: string(r.ErrorCode)}
	}
	return &Response{Success: *r.Success, ErrorCode: string(r.ErrorCode), Data: r.Data}, nil
}

// ClassifyPlain handles a reply that came back unencrypted. The firmware
// only does that for session errors; anything else is a protocol error.
func ClassifyPlain(body []byte) error {
	var r rawReply
	if err := json.Unmarshal(body, &r); err != nil {
		return &Error{Kind: KindProtocol, Err: err}
	}
	if expiredCodes[string(r.ErrorCode)] {
		return &Error{Kind: KindSessionExpired, Code: string(r.ErrorCode)}
	}
	return &Error{Kind: KindProtocol, Code: "unencrypted reply", Err: fmt.Errorf("errorcode %q", string(r.ErrorCode))}
}

// LoginOutcome is the result of one login reply. Exactly one of the
// concrete types below is returned by ClassifyLogin.
type LoginOutcome interface {
	// Err is nil for LoginGranted.
	Err() error
	isLoginOutcome()
}

// LoginGranted carries the stok.
type LoginGranted struct{ Token string }

// LoginWrongCredentials is a bad password with the device counters.
type LoginWrongCredentials struct{ Attempts Attempts }

// LoginAttemptsExhausted means no attempts remain.
type LoginAttemptsExhausted struct{ Attempts Attempts }

// LoginSessionConflict means someone else is logged in.
type LoginSessionConflict struct{}

// LoginMalformed is any reply that fits none of the above.
type LoginMalformed struct{ Reason string }

func (LoginGranted) isLoginOutcome()           {}
func (LoginWrongCredentials) isLoginOutcome()  {}
func (LoginAttemptsExhausted) isLoginOutcome() {}
func (LoginSessionConflict) isLoginOutcome()   {}
func (LoginMalformed) isLoginOutcome()         {}

func (LoginGranted) Err() error { return nil }

func (o LoginWrongCredentials) Err() error {
	return &Error{Kind: KindWrongCredentials, Op: "login", Attempts: o.Attempts}
}

func (o LoginAttemptsExhausted) Err() error {
	return &Error{Kind: KindAttemptsExhausted, Op: "login", Attempts: o.Attempts}
}

func (LoginSessionConflict) Err() error {
	return &Error{Kind: KindSessionConflict, Op: "login", Code: codeUserConflict}
}

func (o LoginMalformed) Err() error {
	return &Error{Kind: KindProtocol, Op: "login", Code: o.Reason}
}

type loginData struct {
	Stok            string `json:"stok"`
	FailureCount    *int   `json:"failureCount"`
	AttemptsAllowed *int   `json:"attemptsAllowed"`
	ErrorCode       code   `json:"errorcode"`
}

func (d loginData) attempts() Attempts {
	var a Attempts
	if d.FailureCount != nil {
		a.FailureCount = *d.FailureCount
	}
	if d.AttemptsAllowed != nil {
		a.AttemptsAllowed = *d.AttemptsAllowed
	}
	return a
}

// ClassifyLogin interprets a decrypted login reply.
func ClassifyLogin(plain []byte) LoginOutcome {
	var r rawReply
	if err := json.Unmarshal(plain, &r); err != nil {
		return LoginMalformed{Reason: "invalid json"}
	}
	if r.Success == nil {
		return LoginMalformed{Reason: "missing success field"}
	}

	var d loginData
	hasData := len(r.Data) > 0 && !bytes.Equal(r.Data, []byte("null"))
	if hasData {
		if err := json.Unmarshal(r.Data, &d); err != nil {
			return LoginMalformed{Reason: "data is not an object"}
		}
	}

	if *r.Success {
		if d.Stok == "" {
			return LoginMalformed{Reason: "success without stok"}
		}
		return LoginGranted{Token: d.Stok}
	}

	top := string(r.ErrorCode)
	switch {
	case top == codeUserConflict || (hasData && isEmptyObject(r.Data)):
		return LoginSessionConflict{}
	case top == codeExceeded || (d.AttemptsAllowed != nil && *d.AttemptsAllowed == 0):
		return LoginAttemptsExhausted{Attempts: d.attempts()}
	case top == codeLoginFailed || string(d.ErrorCode) == codeWrongPassword ||
		(d.FailureCount != nil && d.AttemptsAllowed != nil):
		return LoginWrongCredentials{Attempts: d.attempts()}
	default:
		return LoginMalformed{Reason: fmt.Sprintf("unrecognised rejection %q", top)}
	}
}

func isEmptyObject(raw json.RawMessage) bool {
	var m map[string]json.RawMessage
	return json.Unmarshal(raw, &m) == nil && len(m) == 0
}
