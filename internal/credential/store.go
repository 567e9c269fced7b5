/*
Package credential is the credential store (C2): encrypted-at-rest
platform tokens, OAuth2 refresh, and a short cache of successful
validations so hot paths skip the repository read on every call.
*/
package credential

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/maowbot/maowbot/internal/domain/model"
	"github.com/maowbot/maowbot/internal/errs"
)

// Repository persists credentials and platform configs. internal/store/postgres
// provides the production implementation.
type Repository interface {
	GetCredential(ctx context.Context, credentialID string) (*model.PlatformCredential, error)
	ListCredentials(ctx context.Context, platform string) ([]*model.PlatformCredential, error)
	SaveCredential(ctx context.Context, cred *model.PlatformCredential) error
	DeleteCredential(ctx context.Context, credentialID string) error
	GetConfig(ctx context.Context, platform string) (*model.PlatformConfig, error)
}

// validationTTL is how long a successful Validate result is trusted
// before EnsureValid re-checks the provider.
const validationTTL = 5 * time.Minute

// Store is the credential store (C2).
type Store struct {
	repo      Repository
	sealer    *sealer
	refresher Refresher

	validCache *lru.Cache[string, time.Time]
}

// New constructs a Store. The master encryption key is bootstrapped into
// the OS keyring (or read back from it) on first call.
func New(repo Repository) (*Store, error) {
	sealer, err := newSealer()
	if err != nil {
		return nil, err
	}
	return newStore(repo, sealer, newOAuthRefresher())
}

// newStore builds a Store from already-constructed dependencies, letting
// tests swap in a fake sealer/refresher without touching the OS keyring
// or a real OAuth2 provider.
func newStore(repo Repository, sealer *sealer, refresher Refresher) (*Store, error) {
	cache, err := lru.New[string, time.Time](1024)
	if err != nil {
		return nil, errs.Wrap(errs.Io, err, "credential: init validation cache")
	}
	return &Store{
		repo:       repo,
		sealer:     sealer,
		refresher:  refresher,
		validCache: cache,
	}, nil
}

// Get returns the decrypted credential for credentialID.
func (s *Store) Get(ctx context.Context, credentialID string) (*model.PlatformCredential, error) {
	cred, err := s.repo.GetCredential(ctx, credentialID)
	if err != nil {
		return nil, err
	}
	return s.decrypted(cred)
}

// List returns every credential for a platform, decrypted. Pass "" for
// every platform.
func (s *Store) List(ctx context.Context, platform string) ([]*model.PlatformCredential, error) {
	creds, err := s.repo.ListCredentials(ctx, platform)
	if err != nil {
		return nil, err
	}
	out := make([]*model.PlatformCredential, 0, len(creds))
	for _, c := range creds {
		dec, err := s.decrypted(c)
		if err != nil {
			return nil, err
		}
		out = append(out, dec)
	}
	return out, nil
}

func (s *Store) decrypted(cred *model.PlatformCredential) (*model.PlatformCredential, error) {
	out := *cred
	primary, err := s.sealer.decrypt(cred.PrimaryToken)
	if err != nil {
		return nil, err
	}
	out.PrimaryToken = primary
	if cred.RefreshToken != "" {
		refresh, err := s.sealer.decrypt(cred.RefreshToken)
		if err != nil {
			return nil, err
		}
		out.RefreshToken = refresh
	}
	return &out, nil
}

// Save encrypts cred's tokens and persists it.
func (s *Store) Save(ctx context.Context, cred *model.PlatformCredential) error {
	sealed := *cred
	primary, err := s.sealer.encrypt(cred.PrimaryToken)
	if err != nil {
		return err
	}
	sealed.PrimaryToken = primary
	if cred.RefreshToken != "" {
		refresh, err := s.sealer.encrypt(cred.RefreshToken)
		if err != nil {
			return err
		}
		sealed.RefreshToken = refresh
	}
	sealed.UpdatedAt = time.Now()
	return s.repo.SaveCredential(ctx, &sealed)
}

// Revoke deletes a credential outright. There is no revocation callback
// to the provider; the spec treats this as a local, irreversible delete.
func (s *Store) Revoke(ctx context.Context, credentialID string) error {
	s.validCache.Remove(credentialID)
	return s.repo.DeleteCredential(ctx, credentialID)
}

// Refresh exchanges cred's refresh token for a new access token and
// persists the result. Returns errs.Auth if the credential has no
// refresh token or the provider rejects the refresh.
func (s *Store) Refresh(ctx context.Context, credentialID string) (*model.PlatformCredential, error) {
	cred, err := s.Get(ctx, credentialID)
	if err != nil {
		return nil, err
	}
	if !cred.HasRefreshToken() {
		return nil, errs.Newf(errs.Auth, "credential: %s has no refresh token", credentialID)
	}

	cfg, err := s.repo.GetConfig(ctx, cred.Platform)
	if err != nil {
		return nil, err
	}

	refreshed, err := s.refresher.Refresh(ctx, cfg, cred.RefreshToken)
	if err != nil {
		return nil, err
	}

	cred.PrimaryToken = refreshed.AccessToken
	if refreshed.RefreshToken != "" {
		cred.RefreshToken = refreshed.RefreshToken
	}
	cred.ExpiresAt = refreshed.ExpiresAt
	if err := s.Save(ctx, cred); err != nil {
		return nil, err
	}
	s.validCache.Add(credentialID, time.Now())
	return cred, nil
}

// Validate checks whether a credential is usable right now: it exists and
// is not expired. A success is cached for validationTTL; a failure is not
// cached. It does not make a provider round trip by itself; callers that
// need a live check should attempt a platform call and fall back to
// Refresh on auth failure.
func (s *Store) Validate(ctx context.Context, credentialID string) error {
	if checkedAt, ok := s.validCache.Get(credentialID); ok {
		if time.Since(checkedAt) < validationTTL {
			return nil
		}
	}

	cred, err := s.Get(ctx, credentialID)
	if err != nil {
		return err
	}
	if cred.ExpiresAt != nil && cred.RemainingSeconds(time.Now()) <= 0 {
		return errs.Newf(errs.Auth, "credential: %s expired", credentialID)
	}
	s.validCache.Add(credentialID, time.Now())
	return nil
}

// minRemainingSeconds is the spec §4.2/§8 floor: a credential handed to a
// platform runtime must have at least this long left before expiry, so
// EnsureValid refreshes anything closer to expiring than this.
const minRemainingSeconds = 600 * time.Second

// EnsureValid validates a credential and transparently refreshes it if
// it's expired (or within minRemainingSeconds of expiring) and a refresh
// token is available.
func (s *Store) EnsureValid(ctx context.Context, credentialID string) (*model.PlatformCredential, error) {
	cred, err := s.Get(ctx, credentialID)
	if err != nil {
		return nil, err
	}

	needsRefresh := cred.ExpiresAt != nil && time.Until(*cred.ExpiresAt) < minRemainingSeconds

	if !needsRefresh {
		if err := s.Validate(ctx, credentialID); err == nil {
			return cred, nil
		}
		if !cred.HasRefreshToken() {
			return nil, errs.Newf(errs.Auth, "credential: %s invalid and no refresh token", credentialID)
		}
	}

	return s.Refresh(ctx, credentialID)
}

// AuthCodeURL starts the authorization-code grant for platform, returning
// the URL the operator should visit.
func (s *Store) AuthCodeURL(ctx context.Context, platform, redirectURL, state string) (string, error) {
	cfg, err := s.repo.GetConfig(ctx, platform)
	if err != nil {
		return "", err
	}
	return s.refresher.AuthCodeURL(cfg, redirectURL, state)
}

// CompleteAuthCode finishes the authorization-code grant, persisting the
// resulting credential under credentialID.
func (s *Store) CompleteAuthCode(ctx context.Context, platform, redirectURL, code string, cred model.PlatformCredential) (*model.PlatformCredential, error) {
	cfg, err := s.repo.GetConfig(ctx, platform)
	if err != nil {
		return nil, err
	}
	refreshed, err := s.refresher.Exchange(ctx, cfg, redirectURL, code)
	if err != nil {
		return nil, err
	}

	cred.Platform = platform
	cred.PrimaryToken = refreshed.AccessToken
	cred.RefreshToken = refreshed.RefreshToken
	cred.ExpiresAt = refreshed.ExpiresAt
	cred.CreatedAt = time.Now()
	cred.UpdatedAt = cred.CreatedAt

	if err := s.Save(ctx, &cred); err != nil {
		return nil, err
	}
	return &cred, nil
}
