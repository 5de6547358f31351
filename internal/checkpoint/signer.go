package checkpoint

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"github.com/chibuike-kt/risk-engine/internal/canonical"
)

// Signer signs attestations with an Ed25519 private key.
type Signer struct {
	priv     ed25519.PrivateKey
	verifier *Verifier
}

// NewSigner creates a signer for priv.
func NewSigner(priv ed25519.PrivateKey) (*Signer, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, errors.New("invalid ed25519 private key size")
	}
	pub, ok := priv.Public().(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("unexpected public key type")
	}
	pubPEM, err := MarshalPublicKeyPEM(pub)
	if err != nil {
		return nil, err
	}
	return &Signer{priv: priv, verifier: &Verifier{pub: pub, pem: string(pubPEM)}}, nil
}

// LoadSigner reads a PKCS#8 private key and a PKIX public key, both PEM, and
// checks they form a pair.
func LoadSigner(privPath, pubPath string) (*Signer, error) {
	privPEM, err := os.ReadFile(privPath) // #nosec G304 -- operator-configured key path
	if err != nil {
		return nil, fmt.Errorf("failed to read signing key: %w", err)
	}
	priv, err := ParsePrivateKeyPEM(privPEM)
	if err != nil {
		return nil, err
	}
	s, err := NewSigner(priv)
	if err != nil {
		return nil, err
	}

	v, err := LoadVerifier(pubPath)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(v.pub, s.verifier.pub) {
		return nil, errors.New("public key does not match signing key")
	}
	// Keep the configured PEM text so clients see the file they were given.
	s.verifier = v
	return s, nil
}

// Sign returns the base64 signature over the canonical encoding of a.
func (s *Signer) Sign(a Attestation) (string, error) {
	msg, err := canonical.Marshal(a)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(ed25519.Sign(s.priv, msg)), nil
}

// PublicKeyPEM returns the signer's public key.
func (s *Signer) PublicKeyPEM() string {
	return s.verifier.pem
}

// Verifier returns the verifier for this signer's public key.
func (s *Signer) Verifier() *Verifier {
	return s.verifier
}

// Verifier checks attestation signatures against one public key.
type Verifier struct {
	pub ed25519.PublicKey
	pem string
}

// LoadVerifier reads a PKIX public key PEM file.
func LoadVerifier(pubPath string) (*Verifier, error) {
	pubPEM, err := os.ReadFile(pubPath) // #nosec G304 -- operator-configured key path
	if err != nil {
		return nil, fmt.Errorf("failed to read public key: %w", err)
	}
	return ParsePublicKeyPEM(string(pubPEM))
}

// ParsePublicKeyPEM parses a PKIX Ed25519 public key.
func ParsePublicKeyPEM(pemText string) (*Verifier, error) {
	block, _ := pem.Decode([]byte(pemText))
	if block == nil {
		return nil, errors.New("public key is not PEM encoded")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	pub, ok := key.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("public key is not ed25519")
	}
	return &Verifier{pub: pub, pem: pemText}, nil
}

// Verify reports whether sigB64 is a valid signature of a. Malformed
// signatures verify as false.
func (v *Verifier) Verify(a Attestation, sigB64 string) bool {
	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}
	msg, err := canonical.Marshal(a)
	if err != nil {
		return false
	}
	return ed25519.Verify(v.pub, msg, sig)
}

// ParsePrivateKeyPEM parses a PKCS#8 Ed25519 private key.
func ParsePrivateKeyPEM(pemBytes []byte) (ed25519.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("signing key is not PEM encoded")
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse signing key: %w", err)
	}
	priv, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("signing key is not ed25519")
	}
	return priv, nil
}

// MarshalPrivateKeyPEM encodes priv as a PKCS#8 PEM block.
func MarshalPrivateKeyPEM(priv ed25519.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// MarshalPublicKeyPEM encodes pub as a PKIX PEM block.
func MarshalPublicKeyPEM(pub ed25519.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// GenerateKeyPair creates a new key pair encoded as PEM.
func GenerateKeyPair() (privPEM, pubPEM []byte, err error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	if privPEM, err = MarshalPrivateKeyPEM(priv); err != nil {
		return nil, nil, err
	}
	if pubPEM, err = MarshalPublicKeyPEM(pub); err != nil {
		return nil, nil, err
	}
	return privPEM, pubPEM, nil
}
