package tokenizer

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrEmptyKey       = errors.New("key file is empty")
	ErrUnsupportedKey = errors.New("unsupported private key")
)

// Key is the relay's signing material together with the matching
// verification key and algorithm.
type Key struct {
	Method    jwt.SigningMethod
	signKey   any
	verifyKey any
}

// LoadKey reads and parses the private key file at path.
func LoadKey(path string) (*Key, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	key, err := ParseKey(data)
	if err != nil {
		return nil, fmt.Errorf("parse private key %s: %w", path, err)
	}
	return key, nil
}

// ParseKey accepts PEM or DER encoded EC, RSA and Ed25519 private keys.
// Anything else is used as an HS256 shared secret.
func ParseKey(data []byte) (*Key, error) {
	if len(data) == 0 {
		return nil, ErrEmptyKey
	}

	if block, _ := pem.Decode(data); block != nil {
		return parsePEM(data)
	}

	if key, err := parseDER(data); err == nil {
		return key, nil
	}

	return &Key{
		Method:    jwt.SigningMethodHS256,
		signKey:   data,
		verifyKey: data,
	}, nil
}

func parsePEM(data []byte) (*Key, error) {
	if k, err := jwt.ParseECPrivateKeyFromPEM(data); err == nil {
		return ecKey(k)
	}
	if k, err := jwt.ParseRSAPrivateKeyFromPEM(data); err == nil {
		return rsaKey(k), nil
	}
	if k, err := jwt.ParseEdPrivateKeyFromPEM(data); err == nil {
		if ed, ok := k.(ed25519.PrivateKey); ok {
			return edKey(ed), nil
		}
	}
	return nil, ErrUnsupportedKey
}

func parseDER(der []byte) (*Key, error) {
	if k, err := x509.ParseECPrivateKey(der); err == nil {
		return ecKey(k)
	}
	if k, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return rsaKey(k), nil
	}
	k, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, err
	}
	switch k := k.(type) {
	case *ecdsa.PrivateKey:
		return ecKey(k)
	case *rsa.PrivateKey:
		return rsaKey(k), nil
	case ed25519.PrivateKey:
		return edKey(k), nil
	}
	return nil, ErrUnsupportedKey
}

func ecKey(k *ecdsa.PrivateKey) (*Key, error) {
	var method jwt.SigningMethod
	switch k.Curve {
	case elliptic.P256():
		method = jwt.SigningMethodES256
	case elliptic.P384():
		method = jwt.SigningMethodES384
	case elliptic.P521():
		method = jwt.SigningMethodES512
	default:
		return nil, fmt.Errorf("%w: curve %s", ErrUnsupportedKey, k.Curve.Params().Name)
	}
	return &Key{Method: method, signKey: k, verifyKey: &k.PublicKey}, nil
}

func rsaKey(k *rsa.PrivateKey) *Key {
	return &Key{Method: jwt.SigningMethodRS256, signKey: k, verifyKey: &k.PublicKey}
}

func edKey(k ed25519.PrivateKey) *Key {
	return &Key{Method: jwt.SigningMethodEdDSA, signKey: k, verifyKey: k.Public()}
}
