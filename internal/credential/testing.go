package credential

import (
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/maowbot/maowbot/internal/errs"
)

// testKey is a fixed, non-secret key used only by NewForTest so tests
// never touch the real OS keyring.
var testKey = []byte("0123456789abcdef0123456789abcdef")[:chacha20poly1305.KeySize]

// NewForTest builds a Store against a fixed in-memory key, bypassing the
// OS keyring. Its refresher is the ordinary OAuth2 one, so Refresh and the
// authorization-code calls still reach the configured provider. For use by other
// packages' tests that need a working credential.Store (e.g. the
// platform manager's tests), not for production use.
func NewForTest(repo Repository) (*Store, error) {
	s, err := testSealer()
	if err != nil {
		return nil, err
	}
	return newStore(repo, s, newOAuthRefresher())
}

func testSealer() (*sealer, error) {
	aead, err := chacha20poly1305.New(testKey)
	if err != nil {
		return nil, errs.Wrap(errs.Io, err, "credential: init test cipher")
	}
	return &sealer{aead: aead}, nil
}

// EncryptForTest seals plaintext under the same fixed test key
// NewForTest uses, so other packages' tests can build fake Repository
// implementations that return something Store.Get can actually decrypt.
func EncryptForTest(plaintext string) (string, error) {
	s, err := testSealer()
	if err != nil {
		return "", err
	}
	return s.encrypt(plaintext)
}
