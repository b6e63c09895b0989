package testutil

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// ExpireMode selects how the fake answers a request with an unknown stok.
type ExpireMode int

const (
	// Expire403 answers with an empty 403, like a rebooted device.
	Expire403 ExpireMode = iota
	// ExpirePlain answers with an unencrypted {"errorcode":"timeout"}.
	ExpirePlain
	// ExpireRedirect redirects to the login page.
	ExpireRedirect
	// ExpirePlainNull is ExpirePlain with an explicit "data":null, as some
	// firmware sends it.
	ExpirePlainNull
)

// Handler produces the plaintext JSON reply for a feature call.
type Handler func(params url.Values) string

// Request is one authenticated call the fake accepted.
type Request struct {
	Token    string
	Endpoint string
	Form     string
	Plain    string
	Params   url.Values
}

// LoginRequest is one decrypted login attempt.
type LoginRequest struct {
	Password string
	Confirm  bool
	Key      string
	IV       string
	Hash     string
}

type fakeSession struct {
	key, iv, hash string
}

// FakeRouter speaks the Archer LuCI login and envelope protocol over
// httptest. It shares no code with the client so the two check each other.
type FakeRouter struct {
	*httptest.Server

	Username string
	Password string
	Seq      int64

	passwordKey *PrivateKey
	signKey     *PrivateKey

	mu           sync.Mutex
	sessions     map[string]*fakeSession
	active       string
	failures     int
	maxAttempts  int
	loginReplies []string
	nextTokens   []string
	handlers     map[string]Handler
	requests     []Request
	logins       []LoginRequest
	keysHits     int
	keysGate     chan struct{}
	keysHit      chan struct{}
	inflight     int
	maxInflight  int
	expireMode   ExpireMode
	corrupt      bool
}

// NewFakeRouter starts a fake device accepting admin/password.
func NewFakeRouter(t testing.TB, password string) *FakeRouter {
	t.Helper()
	f := &FakeRouter{
		Username:    "admin",
		Password:    password,
		Seq:         585322885,
		passwordKey: PasswordKey(),
		signKey:     SignKey(),
		sessions:    make(map[string]*fakeSession),
		maxAttempts: 10,
		handlers:    make(map[string]Handler),
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Close)
	return f
}

// Host returns host:port, the way a user would type a router address.
func (f *FakeRouter) Host() string {
	return strings.TrimPrefix(f.URL, "http://")
}

// Handle registers the reply for endpoint?form=form.
func (f *FakeRouter) Handle(endpoint, form string, h Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[endpoint+"?"+form] = h
}

// ScriptLogin queues raw login replies that override the password check.
// A successful reply's stok is registered as a live session.
func (f *FakeRouter) ScriptLogin(replies ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loginReplies = append(f.loginReplies, replies...)
}

// NextTokens fixes the stoks handed out by successful logins.
func (f *FakeRouter) NextTokens(tokens ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextTokens = append(f.nextTokens, tokens...)
}

// GateKeys blocks key requests until release is called. hit receives one
// value per blocked request.
func (f *FakeRouter) GateKeys() (hit <-chan struct{}, release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	gate := make(chan struct{})
	f.keysGate = gate
	f.keysHit = make(chan struct{}, 16)
	var once sync.Once
	return f.keysHit, func() { once.Do(func() { close(gate) }) }
}

// ExpireSessions forgets every stok, as a reboot would.
func (f *FakeRouter) ExpireSessions(mode ExpireMode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions = make(map[string]*fakeSession)
	f.active = ""
	f.expireMode = mode
}

// CorruptReplies makes authenticated replies come back under a foreign key.
func (f *FakeRouter) CorruptReplies(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.corrupt = on
}

// Requests returns accepted authenticated calls.
func (f *FakeRouter) Requests() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Request(nil), f.requests...)
}

// Logins returns decrypted login attempts.
func (f *FakeRouter) Logins() []LoginRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]LoginRequest(nil), f.logins...)
}

// KeyRequests counts hits on the key-exchange endpoint.
func (f *FakeRouter) KeyRequests() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.keysHits
}

// MaxInflightHandshakes is the highest number of handshakes seen between
// the key request and a final login reply at the same time.
func (f *FakeRouter) MaxInflightHandshakes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInflight
}

// ActiveToken is the stok of the logged-in admin, or "".
func (f *FakeRouter) ActiveToken() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

// Login seeds a live admin session as if another browser were logged in.
func (f *FakeRouter) Login(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[token] = &fakeSession{key: "0000000000000000", iv: "0000000000000000"}
	f.active = token
}

const luciPrefix = "/cgi-bin/luci/;stok="

func (f *FakeRouter) serve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || !strings.HasPrefix(r.URL.Path, luciPrefix) {
		http.NotFound(w, r)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, luciPrefix)
	slash := strings.IndexByte(rest, '/')
	if slash < 0 {
		http.NotFound(w, r)
		return
	}
	token, endpoint := rest[:slash], rest[slash+1:]
	form := r.URL.Query().Get("form")
	body, _ := io.ReadAll(r.Body)

	switch endpoint + "?" + form {
	case "login?keys":
		f.serveKeys(w)
	case "login?auth":
		f.serveAuth(w)
	case "login?login":
		f.serveLogin(w, string(body))
	default:
		f.serveCall(w, r, token, endpoint, form, string(body))
	}
}

func (f *FakeRouter) serveKeys(w http.ResponseWriter) {
	f.mu.Lock()
	f.keysHits++
	f.inflight++
	if f.inflight > f.maxInflight {
		f.maxInflight = f.inflight
	}
	gate, hit := f.keysGate, f.keysHit
	f.mu.Unlock()

	if hit != nil {
		select {
		case hit <- struct{}{}:
		default:
		}
	}
	if gate != nil {
		<-gate
	}
	writeRaw(w, fmt.Sprintf(`{"success":true,"data":{"password":["%s","%s"],"mode":"1024","username":""}}`,
		PasswordKeyN, PublicExponent))
}

func (f *FakeRouter) serveAuth(w http.ResponseWriter) {
	writeRaw(w, fmt.Sprintf(`{"success":true,"data":{"key":["%s","%s"],"seq":%d}}`,
		SignKeyN, PublicExponent, f.Seq))
}

// openEnvelope checks sign/data ordering and the signature, returning the
// decoded signature fields and the raw data field.
func (f *FakeRouter) openEnvelope(body string) (url.Values, string, error) {
	if !strings.HasPrefix(body, "sign=") {
		return nil, "", errors.New("sign must be the first field")
	}
	vals, err := url.ParseQuery(body)
	if err != nil {
		return nil, "", err
	}
	signPlain, err := f.signKey.DecryptHex(vals.Get("sign"))
	if err != nil {
		return nil, "", err
	}
	sv, err := url.ParseQuery(string(signPlain))
	if err != nil {
		return nil, "", err
	}
	data := vals.Get("data")
	if sv.Get("s") != strconv.FormatInt(f.Seq+int64(len(data)), 10) {
		return nil, "", fmt.Errorf("bad signature sequence %q", sv.Get("s"))
	}
	return sv, data, nil
}

func (f *FakeRouter) serveLogin(w http.ResponseWriter, body string) {
	sv, data, err := f.openEnvelope(body)
	if err != nil {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	key, iv := sv.Get("k"), sv.Get("i")
	plain, err := aesDecrypt(key, iv, data)
	if err != nil {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	pv, err := url.ParseQuery(plain)
	if err != nil || pv.Get("operation") != "login" {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	pw, err := f.passwordKey.DecryptHex(pv.Get("password"))
	if err != nil {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	req := LoginRequest{
		Password: string(pw),
		Confirm:  pv.Get("confirm") == "true",
		Key:      key,
		IV:       iv,
		Hash:     sv.Get("h"),
	}
	reply := f.decideLogin(req)
	writeEncrypted(w, key, iv, reply)
}

func (f *FakeRouter) decideLogin(req LoginRequest) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logins = append(f.logins, req)

	reply := f.evaluateLogin(req)
	if !isConflict(reply) && f.inflight > 0 {
		f.inflight--
	}
	return reply
}

func (f *FakeRouter) evaluateLogin(req LoginRequest) string {
	if len(f.loginReplies) > 0 {
		reply := f.loginReplies[0]
		f.loginReplies = f.loginReplies[1:]
		if tok := stokOf(reply); tok != "" {
			f.register(tok, req)
		}
		return reply
	}

	if req.Password != f.Password || req.Hash != md5Hex(f.Username+f.Password) {
		if f.failures >= f.maxAttempts {
			return fmt.Sprintf(`{"errorcode":"exceeded max attempts","success":false,"data":{"failureCount":%d,"attemptsAllowed":0}}`, f.failures)
		}
		f.failures++
		allowed := f.maxAttempts - f.failures
		if allowed == 0 {
			return fmt.Sprintf(`{"errorcode":"exceeded max attempts","success":false,"data":{"failureCount":%d,"attemptsAllowed":0}}`, f.failures)
		}
		return fmt.Sprintf(`{"errorcode":"login failed","success":false,"data":{"failureCount":%d,"errorcode":"-5002","attemptsAllowed":%d}}`, f.failures, allowed)
	}

	if f.active != "" && !req.Confirm {
		return `{"errorcode":"user conflict","success":false,"data":{}}`
	}

	tok := f.newToken()
	f.register(tok, req)
	f.failures = 0
	return fmt.Sprintf(`{"success":true,"data":{"stok":"%s"}}`, tok)
}

// register installs tok as the only admin session. Must hold f.mu.
func (f *FakeRouter) register(tok string, req LoginRequest) {
	if f.active != "" {
		delete(f.sessions, f.active)
	}
	f.sessions[tok] = &fakeSession{key: req.Key, iv: req.IV, hash: req.Hash}
	f.active = tok
}

// newToken must hold f.mu.
func (f *FakeRouter) newToken() string {
	if len(f.nextTokens) > 0 {
		tok := f.nextTokens[0]
		f.nextTokens = f.nextTokens[1:]
		return tok
	}
	var b [16]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

func (f *FakeRouter) serveCall(w http.ResponseWriter, r *http.Request, token, endpoint, form, body string) {
	f.mu.Lock()
	sess := f.sessions[token]
	mode := f.expireMode
	corrupt := f.corrupt
	f.mu.Unlock()

	if sess == nil {
		switch mode {
		case ExpirePlain:
			writeRaw(w, `{"success":false,"errorcode":"timeout"}`)
		case ExpirePlainNull:
			writeRaw(w, `{"success":false,"errorcode":"timeout","data":null}`)
		case ExpireRedirect:
			http.Redirect(w, r, "/webpages/login.html", http.StatusFound)
		default:
			w.WriteHeader(http.StatusForbidden)
		}
		return
	}

	sv, data, err := f.openEnvelope(body)
	if err != nil || sv.Get("h") != sess.hash || sv.Has("k") {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	plain, err := aesDecrypt(sess.key, sess.iv, data)
	if err != nil {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	params, _ := url.ParseQuery(plain)

	f.mu.Lock()
	f.requests = append(f.requests, Request{Token: token, Endpoint: endpoint, Form: form, Plain: plain, Params: params})
	h := f.handlers[endpoint+"?"+form]
	if endpoint == "admin/system" && form == "logout" {
		delete(f.sessions, token)
		if f.active == token {
			f.active = ""
		}
	}
	f.mu.Unlock()

	reply := `{"success":true,"data":{}}`
	if h != nil {
		reply = h(params)
	} else if form == "logout" {
		reply = `{"success":true}`
	}

	key, iv := sess.key, sess.iv
	if corrupt {
		key, iv = "9999999999999999", "8888888888888888"
	}
	writeEncrypted(w, key, iv, reply)
}

func writeRaw(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, body)
}

func writeEncrypted(w http.ResponseWriter, key, iv, reply string) {
	out, _ := json.Marshal(map[string]string{"data": aesEncrypt(key, iv, reply)})
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(out)
}

func isConflict(reply string) bool {
	var r struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal([]byte(reply), &r); err != nil || r.Success {
		return false
	}
	return bytes.Equal(bytes.TrimSpace(r.Data), []byte("{}"))
}

func stokOf(reply string) string {
	var r struct {
		Success bool `json:"success"`
		Data    struct {
			Stok string `json:"stok"`
		} `json:"data"`
	}
	if err := json.Unmarshal([]byte(reply), &r); err != nil || !r.Success {
		return ""
	}
	return r.Data.Stok
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func aesEncrypt(key, iv, plain string) string {
	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		panic(err)
	}
	n := aes.BlockSize - len(plain)%aes.BlockSize
	padded := append([]byte(plain), bytes.Repeat([]byte{byte(n)}, n)...)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, []byte(iv)).CryptBlocks(out, padded)
	return base64.StdEncoding.EncodeToString(out)
}

func aesDecrypt(key, iv, b64 string) (string, error) {
	if len(key) != aes.BlockSize || len(iv) != aes.BlockSize {
		return "", errors.New("bad key or iv length")
	}
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", err
	}
	if len(raw) == 0 || len(raw)%aes.BlockSize != 0 {
		return "", errors.New("bad ciphertext length")
	}
	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return "", err
	}
	out := make([]byte, len(raw))
	cipher.NewCBCDecrypter(block, []byte(iv)).CryptBlocks(out, raw)
	n := int(out[len(out)-1])
	if n == 0 || n > aes.BlockSize {
		return "", errors.New("bad padding")
	}
	return string(out[:len(out)-n]), nil
}

// AESEncrypt exposes the device-side cipher for codec tests.
func AESEncrypt(key, iv, plain string) string { return aesEncrypt(key, iv, plain) }

// AESDecrypt exposes the device-side cipher for codec tests.
func AESDecrypt(key, iv, b64 string) (string, error) { return aesDecrypt(key, iv, b64) }
