package tokens

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/jrsteele09/go-security-portal/internal/errors"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	sealKeySize   = 32
	sealNonceSize = 24
)

// Sealer encrypts stored values
type Sealer interface {
	Seal(plain []byte) ([]byte, error)
	Open(sealed []byte) ([]byte, error)
}

// SecretBox seals values with NaCl secretbox; the random nonce is prepended to the box
type SecretBox struct {
	key [sealKeySize]byte
}

var _ Sealer = (*SecretBox)(nil)

// NewSecretBox builds a sealer from a base64 encoded 32 byte key
func NewSecretBox(encodedKey string) (*SecretBox, error) {
	raw, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("[tokens NewSecretBox] key is not base64: %w", err)
	}
	if len(raw) != sealKeySize {
		return nil, fmt.Errorf("[tokens NewSecretBox] key must be %d bytes, got %d", sealKeySize, len(raw))
	}
	sb := &SecretBox{}
	copy(sb.key[:], raw)
	return sb, nil
}

// GenerateSealKey returns a fresh base64 key suitable for NewSecretBox
func GenerateSealKey() (string, error) {
	key := make([]byte, sealKeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("[tokens GenerateSealKey] %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

func (s *SecretBox) Seal(plain []byte) ([]byte, error) {
	var nonce [sealNonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("[tokens Seal] nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plain, &nonce, &s.key), nil
}

func (s *SecretBox) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < sealNonceSize+secretbox.Overhead {
		return nil, errors.ErrCorruptEntry
	}
	var nonce [sealNonceSize]byte
	copy(nonce[:], sealed[:sealNonceSize])
	plain, ok := secretbox.Open(nil, sealed[sealNonceSize:], &nonce, &s.key)
	if !ok {
		return nil, errors.ErrCorruptEntry
	}
	return plain, nil
}
