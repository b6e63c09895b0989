package testutil

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
)

// Fixed key pairs so tests never generate RSA keys. The sizes match what
// Archer firmware publishes: 1024 bits for the password key, 512 bits for
// the signature key.
const (
	PasswordKeyN = "EB0CF33086453BEAFF0C98B55BEAB23DBD0DC382C12DB05189B5DC9415F69808F8545E96EC4683CF1537616F1F24B6040DA2796E5F64A7C508DBC76EB31582C954BC099FF4F6AC9379F4F5B580FFC4FBE97A4C80300C468AEC66ECF1A010AEE1C90E92C363BEA590646CE853994842F443F4A95A026F41631E5C1E0DB71F10C7"
	PasswordKeyD = "9A99DFF310BDC515624084C8F4F63FDA7FD8E7B9BF1A3018D17D3EE26037DBF43A7233ED0CE7AC96AE9BC8887071930EC3711471D668BC38CB04D3FE29E882266BB11FC46BD363B4AC863D47B7ED3161F077C6B83CE21B2BD5D7DA8A154F8ABBA18AB2BC5B8D148B50EDF2D4D8A6A8C9D5EBD97F1EA9E00FAB1D0A21F70B1A21"

	SignKeyN = "DF71089F6E34E7D0E991E397BDF002623695EFB40A40D36A54ED43C51A1C2BA8476C82021D3D9EB95701118FC61FFE9C602F93A01395297A47B9D147FF495215"
	SignKeyD = "B28B0FE8D59750E58EBE14AEDC073CE05DDDD17C7BF4F0FAB68220F50EB813E914AD532784768A54DF0CB5A391E9794C8B176FE02E59327C2CB7FB050B4768D"

	// PublicExponent is the exponent as the device prints it.
	PublicExponent = "010001"
)

// PrivateKey is a textbook RSA private key for the device side of tests.
type PrivateKey struct {
	N *big.Int
	D *big.Int
}

// MustPrivateKey parses hex modulus and private exponent.
func MustPrivateKey(nHex, dHex string) *PrivateKey {
	n, ok1 := new(big.Int).SetString(nHex, 16)
	d, ok2 := new(big.Int).SetString(dHex, 16)
	if !ok1 || !ok2 {
		panic("testutil: bad rsa key constant")
	}
	return &PrivateKey{N: n, D: d}
}

// PasswordKey returns the private half of the password key.
func PasswordKey() *PrivateKey { return MustPrivateKey(PasswordKeyN, PasswordKeyD) }

// SignKey returns the private half of the signature key.
func SignKey() *PrivateKey { return MustPrivateKey(SignKeyN, SignKeyD) }

// Size is the modulus length in bytes.
func (k *PrivateKey) Size() int {
	return (k.N.BitLen() + 7) / 8
}

// Decrypt reverses one PKCS#1 v1.5 type 2 block.
func (k *PrivateKey) Decrypt(ct []byte) ([]byte, error) {
	size := k.Size()
	if len(ct) != size {
		return nil, fmt.Errorf("ciphertext is %d bytes, want %d", len(ct), size)
	}
	m := new(big.Int).Exp(new(big.Int).SetBytes(ct), k.D, k.N)
	em := m.FillBytes(make([]byte, size))
	if em[0] != 0 || em[1] != 2 {
		return nil, errors.New("bad pkcs1 header")
	}
	for i := 2; i < len(em); i++ {
		if em[i] == 0 {
			if i < 10 {
				return nil, errors.New("pkcs1 padding too short")
			}
			return em[i+1:], nil
		}
	}
	return nil, errors.New("pkcs1 separator missing")
}

// DecryptHex decrypts a hex string made of one or more concatenated blocks.
func (k *PrivateKey) DecryptHex(h string) ([]byte, error) {
	raw, err := hex.DecodeString(h)
	if err != nil {
		return nil, err
	}
	size := k.Size()
	if len(raw) == 0 || len(raw)%size != 0 {
		return nil, fmt.Errorf("ciphertext length %d is not a multiple of %d", len(raw), size)
	}
	var out []byte
	for pos := 0; pos < len(raw); pos += size {
		pt, err := k.Decrypt(raw[pos : pos+size])
		if err != nil {
			return nil, err
		}
		out = append(out, pt...)
	}
	return out, nil
}
