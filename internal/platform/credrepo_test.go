package platform

import (
	"context"

	"github.com/maowbot/maowbot/internal/credential"
	"github.com/maowbot/maowbot/internal/domain/model"
)

// fakeCredRepo satisfies credential.Repository with a single
// always-valid credential, for manager tests that only need Start/Send
// to resolve a credential without hitting any real provider.
type fakeCredRepo struct{}

func newFakeCredRepo() *fakeCredRepo { return &fakeCredRepo{} }

func (r *fakeCredRepo) GetCredential(ctx context.Context, credentialID string) (*model.PlatformCredential, error) {
	sealed, err := credential.EncryptForTest("token")
	if err != nil {
		return nil, err
	}
	return &model.PlatformCredential{
		CredentialID: credentialID,
		Platform:     "twitch_irc",
		PrimaryToken: sealed,
	}, nil
}

func (r *fakeCredRepo) ListCredentials(ctx context.Context, platform string) ([]*model.PlatformCredential, error) {
	cred, _ := r.GetCredential(ctx, "cred1")
	return []*model.PlatformCredential{cred}, nil
}

func (r *fakeCredRepo) SaveCredential(ctx context.Context, cred *model.PlatformCredential) error {
	return nil
}

func (r *fakeCredRepo) DeleteCredential(ctx context.Context, credentialID string) error {
	return nil
}

func (r *fakeCredRepo) GetConfig(ctx context.Context, platform string) (*model.PlatformConfig, error) {
	return &model.PlatformConfig{Platform: platform}, nil
}
