package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lib/pq"

	"github.com/maowbot/maowbot/internal/domain/model"
	"github.com/maowbot/maowbot/internal/errs"
)

// ListActiveCommands implements dispatch.Repository.
func (d *DB) ListActiveCommands(ctx context.Context, platform string) ([]model.Command, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, platform, name, is_active, cooldown_seconds, required_roles, metadata
		FROM commands WHERE platform = $1 AND is_active`, platform)
	if err != nil {
		return nil, errs.Wrap(errs.Database, err, "postgres: list active commands")
	}
	defer rows.Close()

	var out []model.Command
	for rows.Next() {
		var c model.Command
		var metadataRaw []byte
		if err := rows.Scan(&c.ID, &c.Platform, &c.Name, &c.IsActive, &c.CooldownSeconds,
			pq.Array(&c.RequiredRoles), &metadataRaw); err != nil {
			return nil, errs.Wrap(errs.Database, err, "postgres: scan command")
		}
		c.Metadata = decodeMetadata(metadataRaw)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.Database, err, "postgres: list active commands")
	}
	return out, nil
}

// ListActiveRedeems implements dispatch.Repository.
func (d *DB) ListActiveRedeems(ctx context.Context, platform string) ([]model.Redeem, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, platform, name, is_active, cooldown_seconds, required_roles, metadata, reward_id
		FROM redeems WHERE platform = $1 AND is_active`, platform)
	if err != nil {
		return nil, errs.Wrap(errs.Database, err, "postgres: list active redeems")
	}
	defer rows.Close()

	var out []model.Redeem
	for rows.Next() {
		var r model.Redeem
		var metadataRaw []byte
		if err := rows.Scan(&r.ID, &r.Platform, &r.Name, &r.IsActive, &r.CooldownSeconds,
			pq.Array(&r.RequiredRoles), &metadataRaw, &r.RewardID); err != nil {
			return nil, errs.Wrap(errs.Database, err, "postgres: scan redeem")
		}
		r.Metadata = decodeMetadata(metadataRaw)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.Database, err, "postgres: list active redeems")
	}
	return out, nil
}

// RecordCommandUsage implements dispatch.Repository.
func (d *DB) RecordCommandUsage(ctx context.Context, commandID, userID string, at time.Time) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO command_usage (command_id, user_id, used_at) VALUES ($1, $2, $3)`,
		commandID, userID, at)
	if err != nil {
		return errs.Wrap(errs.Database, err, "postgres: record command usage")
	}
	return nil
}

// RecordRedeemUsage implements dispatch.Repository.
func (d *DB) RecordRedeemUsage(ctx context.Context, redeemID, userID string, at time.Time) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO redeem_usage (redeem_id, user_id, used_at) VALUES ($1, $2, $3)`,
		redeemID, userID, at)
	if err != nil {
		return errs.Wrap(errs.Database, err, "postgres: record redeem usage")
	}
	return nil
}

func decodeMetadata(raw []byte) map[string]string {
	out := map[string]string{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out)
	}
	return out
}
