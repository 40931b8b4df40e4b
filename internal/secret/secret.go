// Package secret seals values stored at rest, such as the portal password in
// the config file, with the same securecookie keys the dashboard uses.
package secret

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/gorilla/securecookie"
)

// Prefix marks a sealed value.
const Prefix = "sealed:"

const name = "baybook-secret"

var ErrNoKeys = errors.New("secret: value is sealed but no keys are configured")

type Sealer struct {
	sc *securecookie.SecureCookie
}

func NewSealer(hashKey, blockKey []byte) (*Sealer, error) {
	if len(hashKey) == 0 {
		return nil, fmt.Errorf("secret: hash key is required")
	}
	switch len(blockKey) {
	case 0, 16, 24, 32:
	default:
		return nil, fmt.Errorf("secret: block key must be 16, 24 or 32 bytes, got %d", len(blockKey))
	}
	sc := securecookie.New(hashKey, blockKey)
	sc.MaxAge(0)
	sc.MaxLength(0)
	return &Sealer{sc: sc}, nil
}

// Seal returns "sealed:<token>".
func (s *Sealer) Seal(plain string) (string, error) {
	tok, err := s.sc.Encode(name, plain)
	if err != nil {
		return "", fmt.Errorf("secret: seal: %w", err)
	}
	return Prefix + tok, nil
}

// Open returns the plaintext of a sealed value. Unsealed values are returned as is.
func (s *Sealer) Open(v string) (string, error) {
	if !IsSealed(v) {
		return v, nil
	}
	var plain string
	if err := s.sc.Decode(name, strings.TrimPrefix(v, Prefix), &plain); err != nil {
		return "", fmt.Errorf("secret: open: %w", err)
	}
	return plain, nil
}

func IsSealed(v string) bool { return strings.HasPrefix(v, Prefix) }

// Open is Sealer.Open for callers that may have no keys. It fails only if v
// is sealed and s is nil.
func Open(s *Sealer, v string) (string, error) {
	if !IsSealed(v) {
		return v, nil
	}
	if s == nil {
		return "", ErrNoKeys
	}
	return s.Open(v)
}

// GenerateKey returns n random bytes.
func GenerateKey(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// DecodeKey reads a base64 key. s may also be a path to a file holding the
// key, for secret mounts.
func DecodeKey(s string) ([]byte, error) {
	if b, err := os.ReadFile(s); err == nil {
		s = string(b)
	}
	s = strings.TrimSpace(s)
	dec, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode base64 key: %w", err)
	}
	return dec, nil
}

// EncodeKey is the inverse of DecodeKey.
func EncodeKey(b []byte) string { return base64.StdEncoding.EncodeToString(b) }
