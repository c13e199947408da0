package ed25519

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/aescanero/gasrunner/pkg/ports"
	"golang.org/x/crypto/blake2b"
)

// SchemeFlag is the signature scheme byte for Ed25519 keys
const SchemeFlag byte = 0x00

// intent prefix for transaction data: scope, version, app id
var intent = []byte{0, 0, 0}

// ErrInvalidKey is returned for secrets that do not decode to an Ed25519 seed
var ErrInvalidKey = errors.New("invalid ed25519 secret key")

// Signer signs transactions with one Ed25519 key
type Signer struct {
	key     ed25519.PrivateKey
	address string
}

var _ ports.Signer = (*Signer)(nil)

// FromBase64 loads a base64 secret: a 32-byte seed, optionally prefixed
// with the scheme flag byte
func FromBase64(secret string) (*Signer, error) {
	raw, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	switch len(raw) {
	case ed25519.SeedSize:
	case ed25519.SeedSize + 1:
		if raw[0] != SchemeFlag {
			return nil, fmt.Errorf("%w: unsupported scheme flag 0x%02x", ErrInvalidKey, raw[0])
		}
		raw = raw[1:]
	default:
		return nil, fmt.Errorf("%w: expected %d or %d bytes, got %d",
			ErrInvalidKey, ed25519.SeedSize, ed25519.SeedSize+1, len(raw))
	}

	return FromSeed(raw)
}

// FromSeed builds a signer from a raw 32-byte seed
func FromSeed(seed []byte) (*Signer, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: seed must be %d bytes", ErrInvalidKey, ed25519.SeedSize)
	}
	key := ed25519.NewKeyFromSeed(seed)
	return &Signer{key: key, address: Address(key.Public().(ed25519.PublicKey))}, nil
}

// Generate creates a signer with a random key
func Generate() (*Signer, error) {
	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return FromSeed(seed)
}

// Address derives the account address of a public key
func Address(pub ed25519.PublicKey) string {
	sum := blake2b.Sum256(append([]byte{SchemeFlag}, pub...))
	return "0x" + hex.EncodeToString(sum[:])
}

// Address returns the signer's account address
func (s *Signer) Address() string {
	return s.address
}

// PublicKey returns the signer's public key
func (s *Signer) PublicKey() ed25519.PublicKey {
	return s.key.Public().(ed25519.PublicKey)
}

// Secret returns the flagged base64 secret FromBase64 accepts
func (s *Signer) Secret() string {
	return base64.StdEncoding.EncodeToString(append([]byte{SchemeFlag}, s.key.Seed()...))
}

// Sign returns flag || signature || public key over the intent digest of data
func (s *Signer) Sign(ctx context.Context, data []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	digest := intentDigest(data)
	sig := ed25519.Sign(s.key, digest[:])

	out := make([]byte, 0, 1+len(sig)+ed25519.PublicKeySize)
	out = append(out, SchemeFlag)
	out = append(out, sig...)
	out = append(out, s.PublicKey()...)
	return out, nil
}

// Verify checks a serialized signature produced by Sign and returns the
// address of the signing key
func Verify(data, serialized []byte) (string, error) {
	if len(serialized) != 1+ed25519.SignatureSize+ed25519.PublicKeySize {
		return "", fmt.Errorf("signature must be %d bytes", 1+ed25519.SignatureSize+ed25519.PublicKeySize)
	}
	if serialized[0] != SchemeFlag {
		return "", fmt.Errorf("unsupported scheme flag 0x%02x", serialized[0])
	}

	sig := serialized[1 : 1+ed25519.SignatureSize]
	pub := ed25519.PublicKey(bytes.Clone(serialized[1+ed25519.SignatureSize:]))

	digest := intentDigest(data)
	if !ed25519.Verify(pub, digest[:], sig) {
		return "", errors.New("signature verification failed")
	}
	return Address(pub), nil
}

func intentDigest(data []byte) [32]byte {
	msg := make([]byte, 0, len(intent)+len(data))
	msg = append(msg, intent...)
	msg = append(msg, data...)
	return blake2b.Sum256(msg)
}
