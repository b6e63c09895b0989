package luci

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jgrimard/TPLink-APIClient/internal/envelope"
)

func TestClassifyLogin(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  LoginOutcome
	}{
		{
			name:  "granted",
			reply: `{"success":true,"data":{"stok":"94640fd8887fb5750d6a426345581b87"}}`,
			want:  LoginGranted{Token: "94640fd8887fb5750d6a426345581b87"},
		},
		{
			name:  "wrong password with counters",
			reply: `{"errorcode":"login failed","success":false,"data":{"failureCount":1,"errorcode":"-5002","attemptsAllowed":9}}`,
			want:  LoginWrongCredentials{Attempts: Attempts{FailureCount: 1, AttemptsAllowed: 9}},
		},
		{
			name:  "wrong password by inner code only",
			reply: `{"success":false,"data":{"errorcode":-5002}}`,
			want:  LoginWrongCredentials{},
		},
		{
			name:  "counters without top level code",
			reply: `{"success":false,"data":{"failureCount":3,"attemptsAllowed":7}}`,
			want:  LoginWrongCredentials{Attempts: Attempts{FailureCount: 3, AttemptsAllowed: 7}},
		},
		{
			name:  "exhausted by code",
			reply: `{"errorcode":"exceeded max attempts","success":false,"data":{"failureCount":10,"attemptsAllowed":0}}`,
			want:  LoginAttemptsExhausted{Attempts: Attempts{FailureCount: 10}},
		},
		{
			name:  "exhausted by counter",
			reply: `{"errorcode":"login failed","success":false,"data":{"failureCount":10,"attemptsAllowed":0}}`,
			want:  LoginAttemptsExhausted{Attempts: Attempts{FailureCount: 10}},
		},
		{
			name:  "conflict by code",
			reply: `{"errorcode":"user conflict","success":false,"data":{}}`,
			want:  LoginSessionConflict{},
		},
		{
			name:  "conflict by empty data",
			reply: `{"success":false,"data":{}}`,
			want:  LoginSessionConflict{},
		},
		{
			name:  "success without stok",
			reply: `{"success":true,"data":{}}`,
			want:  LoginMalformed{Reason: "success without stok"},
		},
		{
			name:  "missing success",
			reply: `{"data":{"stok":"x"}}`,
			want:  LoginMalformed{Reason: "missing success field"},
		},
		{
			name:  "unknown rejection",
			reply: `{"success":false,"errorcode":"something new"}`,
			want:  LoginMalformed{Reason: `unrecognised rejection "something new"`},
		},
		{
			name:  "not json",
			reply: `<html>`,
			want:  LoginMalformed{Reason: "invalid json"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyLogin([]byte(tt.reply)))
		})
	}
}

func TestLoginOutcomeErr(t *testing.T) {
	assert.NoError(t, LoginGranted{Token: "t"}.Err())

	err := LoginWrongCredentials{Attempts: Attempts{FailureCount: 1, AttemptsAllowed: 9}}.Err()
	assert.ErrorIs(t, err, ErrWrongCredentials)
	var lerr *Error
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, 9, lerr.Attempts.AttemptsAllowed)
	assert.Contains(t, err.Error(), "remaining attempts 9/10")

	assert.ErrorIs(t, LoginAttemptsExhausted{}.Err(), ErrAttemptsExhausted)
	assert.ErrorIs(t, LoginSessionConflict{}.Err(), ErrSessionConflict)
	assert.ErrorIs(t, LoginMalformed{Reason: "x"}.Err(), ErrProtocol)
}

func TestClassifyHTTP(t *testing.T) {
	tests := []struct {
		status        int
		authenticated bool
		want          Kind
	}{
		{http.StatusOK, true, KindUnknown},
		{http.StatusFound, true, KindSessionExpired},
		{http.StatusFound, false, KindProtocol},
		{http.StatusForbidden, true, KindSessionExpired},
		{http.StatusForbidden, false, KindProtocol},
		{http.StatusUnauthorized, true, KindSessionExpired},
		{http.StatusInternalServerError, true, KindTransport},
		{http.StatusBadGateway, false, KindTransport},
	}
	for _, tt := range tests {
		err := ClassifyHTTP(tt.status, tt.authenticated)
		if tt.want == KindUnknown {
			assert.NoError(t, err)
			continue
		}
		assert.Equal(t, tt.want, KindOf(err), "status %d authenticated %v", tt.status, tt.authenticated)
	}
}

func TestClassifyReply(t *testing.T) {
	resp, err := ClassifyReply([]byte(`{"success":true,"data":{"enable":"on"}}`))
	require.NoError(t, err)
	assert.True(t, resp.Success)

	var led struct {
		Enable string `json:"enable"`
	}
	require.NoError(t, resp.Decode(&led))
	assert.Equal(t, "on", led.Enable)

	resp, err = ClassifyReply([]byte(`{"success":false,"errorcode":-40401}`))
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, "-40401", resp.ErrorCode)
	assert.Error(t, resp.Decode(&led))

	_, err = ClassifyReply([]byte(`{"success":false,"errorcode":"session timeout"}`))
	assert.ErrorIs(t, err, ErrSessionExpired)

	_, err = ClassifyReply([]byte(`{"data":{}}`))
	assert.ErrorIs(t, err, ErrProtocol)

	_, err = ClassifyReply([]byte(`[1,2]`))
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestClassifyPlain(t *testing.T) {
	for _, code := range []string{"timeout", "session timeout", "unauthorized"} {
		err := ClassifyPlain([]byte(`{"success":false,"errorcode":"` + code + `"}`))
		assert.ErrorIs(t, err, ErrSessionExpired, code)
	}
	assert.ErrorIs(t, ClassifyPlain([]byte(`{"success":false,"errorcode":"-1"}`)), ErrProtocol)
	assert.ErrorIs(t, ClassifyPlain([]byte(`nope`)), ErrProtocol)
}

func TestClassifyCodecError(t *testing.T) {
	assert.NoError(t, ClassifyCodecError(nil))
	assert.ErrorIs(t, ClassifyCodecError(envelope.ErrEmptyReply), ErrProtocol)
	assert.ErrorIs(t, ClassifyCodecError(envelope.ErrNotEncrypted), ErrProtocol)

	err := ClassifyCodecError(envelope.ErrDecrypt)
	assert.ErrorIs(t, err, ErrDecryption)
	assert.ErrorIs(t, err, envelope.ErrDecrypt)
}

func TestErrorSemantics(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := newError(KindTransport, "login?form=keys", cause)

	assert.True(t, err.Retryable())
	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrProtocol)
	assert.Equal(t, "login?form=keys: transport error: dial tcp: connection refused", err.Error())

	assert.False(t, (&Error{Kind: KindSessionExpired}).Retryable())
	assert.Equal(t, KindUnknown, KindOf(cause))
	assert.Equal(t, "kind(42)", Kind(42).String())

	exhausted := &Error{Kind: KindAttemptsExhausted, Op: "login", Attempts: Attempts{FailureCount: 10}}
	assert.Equal(t, "login: attempts exhausted after 10 failures", exhausted.Error())
}
