package token

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"os"
	"sync"
)

const rsaKeyBits = 2048

type signingKey struct {
	kid     string
	private *rsa.PrivateKey
}

// Keyring owns the issuer's signing key and every key still accepted for
// verification. Loading happens once at startup; Rotate is an explicit
// operation that publishes a new active key while tokens signed by previous
// keys keep validating until they expire.
type Keyring struct {
	mu           sync.RWMutex
	active       *signingKey
	verification map[string]*rsa.PublicKey
	order        []string
}

// LoadOrGenerateKeyring reads an RSA private key from the given PEM file, or
// generates a fresh keypair when the path is empty. A generated key lives
// only for the process lifetime; production deployments should point at a
// persistent key file.
func LoadOrGenerateKeyring(path string) (*Keyring, error) {
	var private *rsa.PrivateKey
	if path == "" {
		var err error
		private, err = rsa.GenerateKey(rand.Reader, rsaKeyBits)
		if err != nil {
			return nil, fmt.Errorf("generate signing key: %w", err)
		}
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read signing key: %w", err)
		}
		private, err = ParseRSAPrivateKeyPEM(data)
		if err != nil {
			return nil, fmt.Errorf("parse signing key: %w", err)
		}
	}
	return NewKeyring(private)
}

// NewKeyring builds a keyring with the given key as the active signer.
func NewKeyring(private *rsa.PrivateKey) (*Keyring, error) {
	if private == nil {
		return nil, errors.New("private key is required")
	}
	key := &signingKey{kid: fingerprint(&private.PublicKey), private: private}
	return &Keyring{
		active:       key,
		verification: map[string]*rsa.PublicKey{key.kid: &private.PublicKey},
		order:        []string{key.kid},
	}, nil
}

// Active returns the current signing key and its identifier.
func (k *Keyring) Active() (string, *rsa.PrivateKey) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.active.kid, k.active.private
}

// VerificationKey resolves a key id from a token header to a public key.
func (k *Keyring) VerificationKey(kid string) (*rsa.PublicKey, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	pub, ok := k.verification[kid]
	if !ok {
		return nil, fmt.Errorf("unknown key id %q", kid)
	}
	return pub, nil
}

// Rotate generates a new active signing key. The previous key stays in the
// verification set so outstanding tokens remain valid.
func (k *Keyring) Rotate() (string, error) {
	private, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return "", fmt.Errorf("generate signing key: %w", err)
	}
	key := &signingKey{kid: fingerprint(&private.PublicKey), private: private}

	k.mu.Lock()
	defer k.mu.Unlock()
	k.active = key
	k.verification[key.kid] = &private.PublicKey
	k.order = append(k.order, key.kid)
	return key.kid, nil
}

type jwk struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// JWKS marshals every verification key as a JSON Web Key Set. Resource
// servers fetch this to validate tokens without sharing the signing key.
func (k *Keyring) JWKS() ([]byte, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	keys := make([]jwk, 0, len(k.order))
	for _, kid := range k.order {
		pub := k.verification[kid]
		keys = append(keys, jwk{
			Kty: "RSA",
			Use: "sig",
			Alg: "RS256",
			Kid: kid,
			N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(bigEndianExponent(pub.E)),
		})
	}
	return json.Marshal(map[string][]jwk{"keys": keys})
}

func bigEndianExponent(e int) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(e))
	for i, b := range buf {
		if b != 0 {
			return buf[i:]
		}
	}
	return []byte{0}
}

// fingerprint derives a stable key id from the public key material so the
// same key file yields the same kid across restarts.
func fingerprint(pub *rsa.PublicKey) string {
	sum := sha256.Sum256(append(pub.N.Bytes(), big.NewInt(int64(pub.E)).Bytes()...))
	return hex.EncodeToString(sum[:8])
}

// ParseRSAPrivateKeyPEM accepts PKCS#1 and PKCS#8 encoded RSA private keys.
func ParseRSAPrivateKeyPEM(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("invalid PEM private key")
	}
	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("unsupported private key type")
		}
		return rsaKey, nil
	default:
		return nil, fmt.Errorf("unsupported private key type %s", block.Type)
	}
}

// EncodeRSAPrivateKeyPEM renders the key as PKCS#1 PEM, the format the
// keygen tool writes and the config's signing-key file uses.
func EncodeRSAPrivateKeyPEM(key *rsa.PrivateKey) []byte {
	return pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
}
