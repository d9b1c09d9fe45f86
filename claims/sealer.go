package claims

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

// ErrSealedValue is returned when a sealed value cannot be opened.
var ErrSealedValue = errors.New("sealed value is corrupt or was sealed with another key")

const nonceSize = 24

// Sealer encrypts payment accounts at rest with NaCl secretbox.
type Sealer struct {
	key [32]byte
}

// NewSealer parses a 64 character hex key. An empty key generates a random
// one, which only suits development: values sealed by one process cannot be
// opened after a restart.
func NewSealer(hexKey string) (*Sealer, error) {
	s := &Sealer{}
	if hexKey == "" {
		if _, err := io.ReadFull(rand.Reader, s.key[:]); err != nil {
			return nil, fmt.Errorf("generate sealing key: %w", err)
		}
		return s, nil
	}
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decode sealing key: %w", err)
	}
	if len(raw) != len(s.key) {
		return nil, fmt.Errorf("sealing key must be %d bytes, got %d", len(s.key), len(raw))
	}
	copy(s.key[:], raw)
	return s, nil
}

// Seal encrypts plain and returns base64(nonce || box).
func (s *Sealer) Seal(plain string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	out := secretbox.Seal(nonce[:], []byte(plain), &nonce, &s.key)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Open reverses Seal.
func (s *Sealer) Open(sealed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil || len(raw) < nonceSize+secretbox.Overhead {
		return "", ErrSealedValue
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &s.key)
	if !ok {
		return "", ErrSealedValue
	}
	return string(plain), nil
}
