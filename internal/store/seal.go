package store

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"strings"

	"github.com/koustreak/dbconnector/internal/errs"
	"golang.org/x/crypto/nacl/secretbox"
)

const sealedPrefix = "sealed:"

// sealer encrypts passwords at rest with NaCl secretbox. A nil sealer
// stores plaintext.
type sealer struct {
	key [32]byte
}

func newSealer(secret string) *sealer {
	if secret == "" {
		return nil
	}
	return &sealer{key: sha256.Sum256([]byte(secret))}
}

func (s *sealer) seal(plain string) (string, error) {
	if s == nil || plain == "" {
		return plain, nil
	}

	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", errs.Wrap(errs.ErrKindUnknown, "failed to generate nonce", err)
	}
	box := secretbox.Seal(nonce[:], []byte(plain), &nonce, &s.key)
	return sealedPrefix + base64.StdEncoding.EncodeToString(box), nil
}

func (s *sealer) open(stored string) (string, error) {
	if !strings.HasPrefix(stored, sealedPrefix) {
		return stored, nil
	}
	if s == nil {
		return "", errs.New(errs.ErrKindPermissionDenied, "stored password is sealed but no store secret is configured")
	}

	box, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, sealedPrefix))
	if err != nil || len(box) < 24 {
		return "", errs.New(errs.ErrKindPermissionDenied, "sealed password is corrupt")
	}

	var nonce [24]byte
	copy(nonce[:], box[:24])
	plain, ok := secretbox.Open(nil, box[24:], &nonce, &s.key)
	if !ok {
		return "", errs.New(errs.ErrKindPermissionDenied, "cannot unseal password: wrong store secret")
	}
	return string(plain), nil
}
