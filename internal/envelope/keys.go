// Package envelope implements the encrypted request/response format spoken by
// TP-Link Archer LuCI firmware.
//
// # Wire format
//
// Every encrypted request is posted as two form fields, in this order:
//
//	sign=<hex RSA blocks>&data=<base64 AES-128-CBC ciphertext>
//
// The AES key and IV are 16 ASCII digits each and stay fixed for the whole
// session. The login request carries them to the device inside the
// signature, RSA-encrypted under the device's 512-bit "auth" key. Responses
// come back as {"data":"<base64>"} encrypted under the same key and IV.
package envelope

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
)

// KeySize is the AES-128 key and IV length.
const KeySize = 16

// SessionKey is the symmetric key material negotiated at login.
type SessionKey struct {
	Key [KeySize]byte
	IV  [KeySize]byte
}

// GenerateSessionKey draws a fresh key and IV of ASCII decimal digits from r.
// A nil reader means crypto/rand.
func GenerateSessionKey(r io.Reader) (*SessionKey, error) {
	if r == nil {
		r = rand.Reader
	}
	sk := &SessionKey{}
	if err := randomDigits(r, sk.Key[:]); err != nil {
		return nil, fmt.Errorf("failed to generate session key: %w", err)
	}
	if err := randomDigits(r, sk.IV[:]); err != nil {
		sk.Zero()
		return nil, fmt.Errorf("failed to generate session iv: %w", err)
	}
	return sk, nil
}

// NewSessionKey builds a SessionKey from known strings, e.g. captured traffic.
func NewSessionKey(key, iv string) (*SessionKey, error) {
	if len(key) != KeySize || len(iv) != KeySize {
		return nil, fmt.Errorf("session key and iv must be %d bytes (got %d and %d)", KeySize, len(key), len(iv))
	}
	sk := &SessionKey{}
	copy(sk.Key[:], key)
	copy(sk.IV[:], iv)
	return sk, nil
}

// randomDigits fills dst with '0'..'9'. Bytes >= 250 are rejected so every
// digit is equally likely.
func randomDigits(r io.Reader, dst []byte) error {
	var buf [32]byte
	n := 0
	for n < len(dst) {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return err
		}
		for _, b := range buf {
			if b >= 250 {
				continue
			}
			dst[n] = '0' + b%10
			n++
			if n == len(dst) {
				break
			}
		}
	}
	return nil
}

// Zero overwrites the key material.
func (k *SessionKey) Zero() {
	if k == nil {
		return
	}
	for i := range k.Key {
		k.Key[i] = 0
	}
	for i := range k.IV {
		k.IV[i] = 0
	}
}

// IsZero reports whether the key has been wiped (or never set).
func (k *SessionKey) IsZero() bool {
	if k == nil {
		return true
	}
	var zero [KeySize]byte
	return subtle.ConstantTimeCompare(k.Key[:], zero[:]) == 1 &&
		subtle.ConstantTimeCompare(k.IV[:], zero[:]) == 1
}

// Equal reports whether two keys carry identical material.
func (k *SessionKey) Equal(o *SessionKey) bool {
	if k == nil || o == nil {
		return k == o
	}
	return subtle.ConstantTimeCompare(k.Key[:], o.Key[:]) == 1 &&
		subtle.ConstantTimeCompare(k.IV[:], o.IV[:]) == 1
}

// String never prints the key.
func (k *SessionKey) String() string {
	return "SessionKey(redacted)"
}

// signPrefix is the "k=<key>&i=<iv>" fragment sent once, in the login signature.
func (k *SessionKey) signPrefix() string {
	return "k=" + string(k.Key[:]) + "&i=" + string(k.IV[:])
}

// ErrKeyZeroed is returned when a codec is used after its key was wiped.
var ErrKeyZeroed = errors.New("envelope: session key has been zeroized")
