package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/lib/pq"

	"github.com/maowbot/maowbot/internal/domain/model"
	"github.com/maowbot/maowbot/internal/errs"
)

// GetCredential implements credential.Repository.
func (d *DB) GetCredential(ctx context.Context, credentialID string) (*model.PlatformCredential, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT credential_id, platform, platform_user_id, user_id, user_name,
		       primary_token, refresh_token, expires_at, created_at, updated_at,
		       is_bot, additional_data
		FROM platform_credentials WHERE credential_id = $1`, credentialID)

	cred, err := scanCredential(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.Newf(errs.NotFound, "postgres: no credential %q", credentialID)
	}
	if err != nil {
		return nil, errs.Wrap(errs.Database, err, "postgres: get credential")
	}
	return cred, nil
}

// ListCredentials implements credential.Repository. platform == "" lists
// every credential across every platform.
func (d *DB) ListCredentials(ctx context.Context, platform string) ([]*model.PlatformCredential, error) {
	query := `
		SELECT credential_id, platform, platform_user_id, user_id, user_name,
		       primary_token, refresh_token, expires_at, created_at, updated_at,
		       is_bot, additional_data
		FROM platform_credentials`
	args := []any{}
	if platform != "" {
		query += ` WHERE platform = $1`
		args = append(args, platform)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.Wrap(errs.Database, err, "postgres: list credentials")
	}
	defer rows.Close()

	var out []*model.PlatformCredential
	for rows.Next() {
		cred, err := scanCredential(rows.Scan)
		if err != nil {
			return nil, errs.Wrap(errs.Database, err, "postgres: scan credential")
		}
		out = append(out, cred)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.Database, err, "postgres: list credentials")
	}
	return out, nil
}

// SaveCredential implements credential.Repository (upsert by credential_id).
func (d *DB) SaveCredential(ctx context.Context, cred *model.PlatformCredential) error {
	additional, err := json.Marshal(cred.AdditionalData)
	if err != nil {
		return errs.Wrap(errs.Io, err, "postgres: marshal additional_data")
	}

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO platform_credentials (
			credential_id, platform, platform_user_id, user_id, user_name,
			primary_token, refresh_token, expires_at, created_at, updated_at,
			is_bot, additional_data
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (credential_id) DO UPDATE SET
			platform         = EXCLUDED.platform,
			platform_user_id = EXCLUDED.platform_user_id,
			user_id          = EXCLUDED.user_id,
			user_name        = EXCLUDED.user_name,
			primary_token    = EXCLUDED.primary_token,
			refresh_token    = EXCLUDED.refresh_token,
			expires_at       = EXCLUDED.expires_at,
			updated_at       = EXCLUDED.updated_at,
			is_bot           = EXCLUDED.is_bot,
			additional_data  = EXCLUDED.additional_data`,
		cred.CredentialID, cred.Platform, cred.PlatformUserID, cred.UserID, cred.UserName,
		cred.PrimaryToken, cred.RefreshToken, cred.ExpiresAt, cred.CreatedAt, cred.UpdatedAt,
		cred.IsBot, additional,
	)
	if err != nil {
		return errs.Wrap(errs.Database, err, "postgres: save credential")
	}
	return nil
}

// DeleteCredential implements credential.Repository.
func (d *DB) DeleteCredential(ctx context.Context, credentialID string) error {
	res, err := d.db.ExecContext(ctx, `DELETE FROM platform_credentials WHERE credential_id = $1`, credentialID)
	if err != nil {
		return errs.Wrap(errs.Database, err, "postgres: delete credential")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.Newf(errs.NotFound, "postgres: no credential %q", credentialID)
	}
	return nil
}

// GetConfig implements credential.Repository.
func (d *DB) GetConfig(ctx context.Context, platform string) (*model.PlatformConfig, error) {
	var cfg model.PlatformConfig
	err := d.db.QueryRowContext(ctx, `
		SELECT config_id, platform, client_id, client_secret, scopes
		FROM platform_configs WHERE platform = $1`, platform,
	).Scan(&cfg.ConfigID, &cfg.Platform, &cfg.ClientID, &cfg.ClientSecret, pq.Array(&cfg.Scopes))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.Newf(errs.NotFound, "postgres: no config for platform %q", platform)
	}
	if err != nil {
		return nil, errs.Wrap(errs.Database, err, "postgres: get config")
	}
	return &cfg, nil
}

// AccountForCredentialID implements dispatch.CredentialAccounts: a
// command's respond_with_credential resolves to the account name the
// platform manager keys its runtimes by.
func (d *DB) AccountForCredentialID(ctx context.Context, credentialID string) (string, error) {
	var userName string
	err := d.db.QueryRowContext(ctx,
		`SELECT user_name FROM platform_credentials WHERE credential_id = $1`, credentialID,
	).Scan(&userName)
	if errors.Is(err, sql.ErrNoRows) {
		return "", errs.Newf(errs.NotFound, "postgres: no credential %q", credentialID)
	}
	if err != nil {
		return "", errs.Wrap(errs.Database, err, "postgres: resolve credential account")
	}
	return userName, nil
}

func scanCredential(scan func(dest ...any) error) (*model.PlatformCredential, error) {
	var cred model.PlatformCredential
	var expiresAt sql.NullTime
	var additional []byte

	if err := scan(
		&cred.CredentialID, &cred.Platform, &cred.PlatformUserID, &cred.UserID, &cred.UserName,
		&cred.PrimaryToken, &cred.RefreshToken, &expiresAt, &cred.CreatedAt, &cred.UpdatedAt,
		&cred.IsBot, &additional,
	); err != nil {
		return nil, err
	}

	if expiresAt.Valid {
		t := expiresAt.Time
		cred.ExpiresAt = &t
	}
	cred.AdditionalData = map[string]string{}
	if len(additional) > 0 {
		_ = json.Unmarshal(additional, &cred.AdditionalData)
	}
	return &cred, nil
}
