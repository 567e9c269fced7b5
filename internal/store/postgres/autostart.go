package postgres

import (
	"context"

	"github.com/maowbot/maowbot/internal/domain/model"
	"github.com/maowbot/maowbot/internal/errs"
)

// List implements autostart.Repository.
func (d *DB) List(ctx context.Context) ([]model.AutostartEntry, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT platform, account, credential_id, enabled, auto_reconnect, enable_incoming
		FROM autostart_entries`)
	if err != nil {
		return nil, errs.Wrap(errs.Database, err, "postgres: list autostart entries")
	}
	defer rows.Close()

	var out []model.AutostartEntry
	for rows.Next() {
		var e model.AutostartEntry
		if err := rows.Scan(&e.Platform, &e.Account, &e.CredentialID, &e.Enabled, &e.AutoReconnect, &e.EnableIncoming); err != nil {
			return nil, errs.Wrap(errs.Database, err, "postgres: scan autostart entry")
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.Database, err, "postgres: list autostart entries")
	}
	return out, nil
}

// Set implements autostart.Repository (upsert by platform+account).
func (d *DB) Set(ctx context.Context, platform, account, credentialID string, enabled bool, opts model.RuntimeOptions) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO autostart_entries (platform, account, credential_id, enabled, auto_reconnect, enable_incoming)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (platform, account) DO UPDATE SET
			credential_id   = EXCLUDED.credential_id,
			enabled         = EXCLUDED.enabled,
			auto_reconnect  = EXCLUDED.auto_reconnect,
			enable_incoming = EXCLUDED.enable_incoming`,
		platform, account, credentialID, enabled, opts.AutoReconnect, opts.EnableIncoming,
	)
	if err != nil {
		return errs.Wrap(errs.Database, err, "postgres: set autostart entry")
	}
	return nil
}
