package credential

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/zalando/go-keyring"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/maowbot/maowbot/internal/errs"
)

// keyringService/keyringUser locate the master encryption key in the OS
// credential store. The key itself never touches disk or the database;
// only ciphertext does.
const (
	keyringService = "maowbot"
	keyringUser    = "token-encryption-key"
)

// sealer encrypts and decrypts platform tokens at rest with
// ChaCha20-Poly1305, keyed by a master key bootstrapped into the OS
// keyring on first use.
type sealer struct {
	aead AEAD
}

// AEAD is the subset of cipher.AEAD sealer depends on, so tests can swap
// in a deterministic fake without touching the real OS keyring.
type AEAD interface {
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	NonceSize() int
}

func newSealer() (*sealer, error) {
	key, err := loadOrCreateMasterKey()
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, errs.Wrap(errs.Io, err, "credential: init cipher")
	}
	return &sealer{aead: aead}, nil
}

func loadOrCreateMasterKey() ([]byte, error) {
	encoded, err := keyring.Get(keyringService, keyringUser)
	if err == nil {
		key, decodeErr := base64.StdEncoding.DecodeString(encoded)
		if decodeErr != nil {
			return nil, errs.Wrap(errs.Io, decodeErr, "credential: decode master key")
		}
		return key, nil
	}
	if err != keyring.ErrNotFound {
		return nil, errs.Wrap(errs.Io, err, "credential: read master key from keyring")
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, errs.Wrap(errs.Io, err, "credential: generate master key")
	}
	encoded = base64.StdEncoding.EncodeToString(key)
	if err := keyring.Set(keyringService, keyringUser, encoded); err != nil {
		return nil, errs.Wrap(errs.Io, err, "credential: store master key in keyring")
	}
	return key, nil
}

// encrypt seals plaintext, prefixing the nonce onto the returned
// ciphertext so decrypt is self-contained.
func (s *sealer) encrypt(plaintext string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", errs.Wrap(errs.Io, err, "credential: generate nonce")
	}
	sealed := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// decrypt reverses encrypt. Returns errs.Auth if the ciphertext fails
// authentication (tampered or wrong key).
func (s *sealer) decrypt(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", errs.Wrap(errs.Parse, err, "credential: decode ciphertext")
	}
	nonceSize := s.aead.NonceSize()
	if len(raw) < nonceSize {
		return "", errs.New(errs.Parse, "credential: ciphertext shorter than nonce")
	}
	nonce, sealed := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := s.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", errs.Wrap(errs.Auth, err, "credential: decrypt token")
	}
	return string(plaintext), nil
}
