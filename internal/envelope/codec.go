package envelope

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"unicode/utf8"
)

var (
	// ErrDecrypt covers every way a reply can fail to decrypt: bad base64,
	// wrong length, bad padding, or plaintext that is not JSON.
	ErrDecrypt = errors.New("envelope: decryption failed")
	// ErrNotEncrypted is returned when the device answered with a plain JSON
	// object instead of an encrypted envelope.
	ErrNotEncrypted = errors.New("envelope: reply is not encrypted")
	// ErrEmptyReply is returned for a zero-length body.
	ErrEmptyReply = errors.New("envelope: empty reply")
)

// KeyExchange is what the device publishes before login.
type KeyExchange struct {
	// Password encrypts the login password (1024-bit on known firmware).
	Password *PublicKey
	// Sign encrypts the request signature (512-bit on known firmware).
	Sign *PublicKey
	// Seq is added to the ciphertext length in every signature.
	Seq int64
}

// Envelope is one encrypted request body.
type Envelope struct {
	Sign string
	Data string
}

// Encode renders the form body. sign must precede data or the firmware
// answers with an empty 403.
func (e Envelope) Encode() string {
	return "sign=" + url.QueryEscape(e.Sign) + "&data=" + url.QueryEscape(e.Data)
}

// PasswordHash is the md5(username+password) hex digest bound into every
// signature.
func PasswordHash(username, password string) string {
	sum := md5.Sum([]byte(username + password))
	return hex.EncodeToString(sum[:])
}

// Codec encrypts requests and decrypts replies for one session.
// After construction it is read-only, so concurrent use is safe until Zero.
type Codec struct {
	kx     *KeyExchange
	key    *SessionKey
	hash   string
	random io.Reader
}

// NewCodec binds key material from a single handshake. random feeds RSA
// padding; nil means crypto/rand.
func NewCodec(kx *KeyExchange, key *SessionKey, hash string, random io.Reader) (*Codec, error) {
	if kx == nil || kx.Password == nil || kx.Sign == nil {
		return nil, fmt.Errorf("%w: incomplete key exchange", ErrMalformedKey)
	}
	if key == nil || key.IsZero() {
		return nil, ErrKeyZeroed
	}
	return &Codec{kx: kx, key: key, hash: hash, random: random}, nil
}

// Key exposes the session key (tests and diagnostics).
func (c *Codec) Key() *SessionKey {
	return c.key
}

// EncryptPassword RSA-encrypts the password under the device password key.
func (c *Codec) EncryptPassword(password string) (string, error) {
	return c.kx.Password.EncryptHex(c.random, []byte(password))
}

// EncryptLogin builds the login envelope. evict adds confirm=true, which
// tells the device to drop whoever is currently logged in.
func (c *Codec) EncryptLogin(password string, evict bool) (Envelope, error) {
	encPw, err := c.EncryptPassword(password)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to encrypt password: %w", err)
	}
	p := NewParams("operation", "login", "password", encPw)
	if evict {
		p = p.Add("confirm", "true")
	}
	return c.encrypt(p, true)
}

// EncryptRequest builds the envelope for any post-login call.
func (c *Codec) EncryptRequest(p Params) (Envelope, error) {
	return c.encrypt(p, false)
}

func (c *Codec) encrypt(p Params, login bool) (Envelope, error) {
	if c.key.IsZero() {
		return Envelope{}, ErrKeyZeroed
	}
	data, err := c.Seal([]byte(p.Encode()))
	if err != nil {
		return Envelope{}, err
	}
	sign, err := c.sign(len(data), login)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to sign request: %w", err)
	}
	return Envelope{Sign: sign, Data: data}, nil
}

// SignaturePlaintext is the string the signature encrypts.
func (c *Codec) SignaturePlaintext(dataLen int, login bool) string {
	s := "h=" + c.hash + "&s=" + strconv.FormatInt(c.kx.Seq+int64(dataLen), 10)
	if login {
		return c.key.signPrefix() + "&" + s
	}
	return s
}

func (c *Codec) sign(dataLen int, login bool) (string, error) {
	return c.kx.Sign.EncryptChunked(c.random, []byte(c.SignaturePlaintext(dataLen, login)))
}

// Seal AES-encrypts plaintext and returns base64.
func (c *Codec) Seal(plaintext []byte) (string, error) {
	if c.key.IsZero() {
		return "", ErrKeyZeroed
	}
	block, err := aes.NewCipher(c.key.Key[:])
	if err != nil {
		return "", err
	}
	padded := pkcs7Pad(plaintext, aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, c.key.IV[:]).CryptBlocks(out, padded)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Open reverses Seal. The result is not checked for JSON.
func (c *Codec) Open(b64 string) ([]byte, error) {
	if c.key.IsZero() {
		return nil, ErrKeyZeroed
	}
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	if len(raw) == 0 || len(raw)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext length %d", ErrDecrypt, len(raw))
	}
	block, err := aes.NewCipher(c.key.Key[:])
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(raw))
	cipher.NewCBCDecrypter(block, c.key.IV[:]).CryptBlocks(out, raw)
	plain, err := pkcs7Unpad(out, aes.BlockSize)
	if err != nil {
		return nil, err
	}
	return plain, nil
}

// DecryptResponse extracts and decrypts a reply body. Both {"data":"<b64>"}
// and a bare base64 body are accepted. The plaintext must be valid JSON;
// anything else is reported as ErrDecrypt so a wrong key can never produce a
// plausible value.
func (c *Codec) DecryptResponse(body []byte) ([]byte, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, ErrEmptyReply
	}

	payload := string(body)
	if body[0] == '{' {
		var wrapped struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(body, &wrapped); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
		}
		// Only a JSON string is ciphertext. Missing, null or structured data
		// is a plain reply.
		var data *string
		if err := json.Unmarshal(wrapped.Data, &data); err != nil || data == nil {
			return nil, ErrNotEncrypted
		}
		payload = *data
	}

	plain, err := c.Open(payload)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(plain) || !json.Valid(plain) {
		return nil, fmt.Errorf("%w: plaintext is not json", ErrDecrypt)
	}
	return plain, nil
}

// Zero wipes the session key and hash.
func (c *Codec) Zero() {
	c.key.Zero()
	c.hash = ""
}

func pkcs7Pad(b []byte, size int) []byte {
	n := size - len(b)%size
	out := make([]byte, len(b)+n)
	copy(out, b)
	for i := len(b); i < len(out); i++ {
		out[i] = byte(n)
	}
	return out
}

func pkcs7Unpad(b []byte, size int) ([]byte, error) {
	if len(b) == 0 || len(b)%size != 0 {
		return nil, fmt.Errorf("%w: bad block length", ErrDecrypt)
	}
	n := int(b[len(b)-1])
	if n == 0 || n > size {
		return nil, fmt.Errorf("%w: bad padding", ErrDecrypt)
	}
	for _, v := range b[len(b)-n:] {
		if int(v) != n {
			return nil, fmt.Errorf("%w: bad padding", ErrDecrypt)
		}
	}
	return b[:len(b)-n], nil
}
