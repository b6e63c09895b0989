package envelope

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"strings"
)

// minModulusBits is the smallest modulus the device has been seen to publish
// (the auth/signature key).
const minModulusBits = 512

var (
	// ErrMalformedKey is returned for moduli/exponents that cannot be parsed.
	ErrMalformedKey = errors.New("envelope: malformed rsa public key")
	// ErrMessageTooLong is returned when a plaintext does not fit one RSA block.
	ErrMessageTooLong = errors.New("envelope: message too long for rsa key")
)

// PublicKey is an RSA public key as published by the device: hex modulus and
// hex exponent.
//
// Encryption is done on math/big rather than crypto/rsa because crypto/rsa
// rejects moduli below 1024 bits and the firmware's signing key is 512 bits.
type PublicKey struct {
	N *big.Int
	E int
}

// ParsePublicKey parses the [modulus, exponent] hex pair from a keys/auth reply.
func ParsePublicKey(nHex, eHex string) (*PublicKey, error) {
	nHex = strings.TrimSpace(nHex)
	eHex = strings.TrimSpace(eHex)
	if nHex == "" || eHex == "" {
		return nil, fmt.Errorf("%w: empty modulus or exponent", ErrMalformedKey)
	}

	n, ok := new(big.Int).SetString(nHex, 16)
	if !ok || n.Sign() <= 0 {
		return nil, fmt.Errorf("%w: bad modulus", ErrMalformedKey)
	}
	if n.BitLen() < minModulusBits {
		return nil, fmt.Errorf("%w: modulus is %d bits", ErrMalformedKey, n.BitLen())
	}

	e, err := strconv.ParseInt(eHex, 16, 32)
	if err != nil || e < 3 || e%2 == 0 {
		return nil, fmt.Errorf("%w: bad exponent %q", ErrMalformedKey, eHex)
	}

	return &PublicKey{N: n, E: int(e)}, nil
}

// Size returns the modulus length in bytes.
func (k *PublicKey) Size() int {
	return (k.N.BitLen() + 7) / 8
}

// MaxMessage is the largest plaintext one PKCS#1 v1.5 block can carry.
func (k *PublicKey) MaxMessage() int {
	return k.Size() - 11
}

// Encrypt applies PKCS#1 v1.5 type 2 padding and raw RSA.
func (k *PublicKey) Encrypt(random io.Reader, msg []byte) ([]byte, error) {
	if random == nil {
		random = rand.Reader
	}
	size := k.Size()
	if len(msg) > size-11 {
		return nil, fmt.Errorf("%w: %d > %d", ErrMessageTooLong, len(msg), size-11)
	}

	// 0x00 || 0x02 || PS (non-zero) || 0x00 || M
	em := make([]byte, size)
	em[1] = 2
	ps := em[2 : size-len(msg)-1]
	if err := nonZeroRandom(random, ps); err != nil {
		return nil, fmt.Errorf("failed to generate rsa padding: %w", err)
	}
	copy(em[size-len(msg):], msg)

	m := new(big.Int).SetBytes(em)
	c := new(big.Int).Exp(m, big.NewInt(int64(k.E)), k.N)
	return c.FillBytes(make([]byte, size)), nil
}

// EncryptHex encrypts msg and returns the lower-case hex ciphertext.
func (k *PublicKey) EncryptHex(random io.Reader, msg []byte) (string, error) {
	out, err := k.Encrypt(random, msg)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(out), nil
}

// EncryptChunked splits msg into MaxMessage-sized pieces and concatenates
// the hex ciphertext of each, as the firmware's signature field expects.
func (k *PublicKey) EncryptChunked(random io.Reader, msg []byte) (string, error) {
	step := k.MaxMessage()
	var sb strings.Builder
	for pos := 0; pos < len(msg); pos += step {
		end := pos + step
		if end > len(msg) {
			end = len(msg)
		}
		chunk, err := k.EncryptHex(random, msg[pos:end])
		if err != nil {
			return "", err
		}
		sb.WriteString(chunk)
	}
	return sb.String(), nil
}

func nonZeroRandom(r io.Reader, dst []byte) error {
	if _, err := io.ReadFull(r, dst); err != nil {
		return err
	}
	var one [1]byte
	for i := range dst {
		for dst[i] == 0 {
			if _, err := io.ReadFull(r, one[:]); err != nil {
				return err
			}
			dst[i] = one[0]
		}
	}
	return nil
}
