package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/maowbot/maowbot/internal/domain/model"
	"github.com/maowbot/maowbot/internal/errs"
)

// ArchivedUntil implements maintenance.Repository.
func (d *DB) ArchivedUntil(ctx context.Context) (string, bool, error) {
	var yearMonth sql.NullString
	err := d.db.QueryRowContext(ctx, `SELECT archived_until FROM maintenance_state WHERE id`).Scan(&yearMonth)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errs.Wrap(errs.Database, err, "postgres: read archived_until")
	}
	if !yearMonth.Valid || yearMonth.String == "" {
		return "", false, nil
	}
	return yearMonth.String, true, nil
}

// SetArchivedUntil implements maintenance.Repository.
func (d *DB) SetArchivedUntil(ctx context.Context, yearMonth string) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO maintenance_state (id, archived_until) VALUES (true, $1)
		ON CONFLICT (id) DO UPDATE SET archived_until = EXCLUDED.archived_until`, yearMonth)
	if err != nil {
		return errs.Wrap(errs.Database, err, "postgres: set archived_until")
	}
	return nil
}

// EnsurePartition implements maintenance.Repository by creating a range
// partition of chat_messages for the given calendar month, if it doesn't
// already exist.
func (d *DB) EnsurePartition(ctx context.Context, yearMonth string) error {
	year, month, err := splitYearMonth(yearMonth)
	if err != nil {
		return err
	}
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	table := partitionTableName(year, month)

	stmt := fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s PARTITION OF chat_messages FOR VALUES FROM ($1) TO ($2)`,
		pqIdent(table),
	)
	if _, err := d.db.ExecContext(ctx, stmt, start, end); err != nil {
		return errs.Wrap(errs.Database, err, "postgres: ensure partition")
	}

	_, err = d.db.ExecContext(ctx,
		`INSERT INTO chat_partitions (year_month) VALUES ($1) ON CONFLICT DO NOTHING`, yearMonth)
	if err != nil {
		return errs.Wrap(errs.Database, err, "postgres: track partition")
	}
	return nil
}

// DropPartitionsOlderThan implements maintenance.Repository.
func (d *DB) DropPartitionsOlderThan(ctx context.Context, cutoff time.Time) error {
	rows, err := d.db.QueryContext(ctx, `SELECT year_month FROM chat_partitions`)
	if err != nil {
		return errs.Wrap(errs.Database, err, "postgres: list partitions")
	}
	var stale []string
	for rows.Next() {
		var yearMonth string
		if err := rows.Scan(&yearMonth); err != nil {
			rows.Close()
			return errs.Wrap(errs.Database, err, "postgres: scan partition")
		}
		year, month, err := splitYearMonth(yearMonth)
		if err != nil {
			rows.Close()
			return err
		}
		start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
		if start.Before(cutoff) {
			stale = append(stale, yearMonth)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return errs.Wrap(errs.Database, err, "postgres: list partitions")
	}
	rows.Close()

	for _, yearMonth := range stale {
		year, month, _ := splitYearMonth(yearMonth)
		table := partitionTableName(year, month)
		if _, err := d.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, pqIdent(table))); err != nil {
			return errs.Wrap(errs.Database, err, "postgres: drop partition")
		}
		if _, err := d.db.ExecContext(ctx, `DELETE FROM chat_partitions WHERE year_month = $1`, yearMonth); err != nil {
			return errs.Wrap(errs.Database, err, "postgres: untrack partition")
		}
	}
	return nil
}

// ArchiveMessages implements maintenance.Repository: move every message in
// [start, end) from chat_messages into chat_messages_archive in one
// transaction.
func (d *DB) ArchiveMessages(ctx context.Context, start, end time.Time) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Wrap(errs.Database, err, "postgres: begin archive tx")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO chat_messages_archive
		SELECT * FROM chat_messages WHERE occurred_at >= $1 AND occurred_at < $2`, start, end)
	if err != nil {
		return errs.Wrap(errs.Database, err, "postgres: copy to archive")
	}

	_, err = tx.ExecContext(ctx,
		`DELETE FROM chat_messages WHERE occurred_at >= $1 AND occurred_at < $2`, start, end)
	if err != nil {
		return errs.Wrap(errs.Database, err, "postgres: delete archived messages")
	}

	if err := tx.Commit(); err != nil {
		return errs.Wrap(errs.Database, err, "postgres: commit archive tx")
	}
	return nil
}

// DistinctUsers implements maintenance.Repository.
func (d *DB) DistinctUsers(ctx context.Context, start, end time.Time) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT DISTINCT user_id FROM chat_messages_archive
		WHERE occurred_at >= $1 AND occurred_at < $2`, start, end)
	if err != nil {
		return nil, errs.Wrap(errs.Database, err, "postgres: distinct users")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, errs.Wrap(errs.Database, err, "postgres: scan distinct user")
		}
		out = append(out, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.Database, err, "postgres: distinct users")
	}
	return out, nil
}

// UserMessages implements maintenance.Repository.
func (d *DB) UserMessages(ctx context.Context, userID string, start, end time.Time) ([]model.ChatMessageRecord, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT message_id, platform, channel, user_id, text, occurred_at, metadata
		FROM chat_messages_archive
		WHERE user_id = $1 AND occurred_at >= $2 AND occurred_at < $3
		ORDER BY occurred_at`, userID, start, end)
	if err != nil {
		return nil, errs.Wrap(errs.Database, err, "postgres: user messages")
	}
	defer rows.Close()

	var out []model.ChatMessageRecord
	for rows.Next() {
		var rec model.ChatMessageRecord
		var occurredAt time.Time
		var metadataRaw []byte
		if err := rows.Scan(&rec.MessageID, &rec.Platform, &rec.Channel, &rec.UserID, &rec.Text,
			&occurredAt, &metadataRaw); err != nil {
			return nil, errs.Wrap(errs.Database, err, "postgres: scan user message")
		}
		rec.TimestampEpochSeconds = occurredAt.Unix()
		rec.Metadata = decodeMetadata(metadataRaw)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.Database, err, "postgres: user messages")
	}
	return out, nil
}

// GetUserAnalysis implements maintenance.Repository.
func (d *DB) GetUserAnalysis(ctx context.Context, userID string) (model.UserAnalysis, bool, error) {
	var a model.UserAnalysis
	a.UserID = userID
	err := d.db.QueryRowContext(ctx, `
		SELECT spam_score, intelligibility_score, quality_score, horni_score, ai_notes, moderator_notes
		FROM user_analysis WHERE user_id = $1`, userID,
	).Scan(&a.SpamScore, &a.IntelligibilityScore, &a.QualityScore, &a.HorniScore, &a.AINotes, &a.ModeratorNotes)
	if errors.Is(err, sql.ErrNoRows) {
		return model.UserAnalysis{}, false, nil
	}
	if err != nil {
		return model.UserAnalysis{}, false, errs.Wrap(errs.Database, err, "postgres: get user analysis")
	}
	return a, true, nil
}

// SaveUserAnalysis implements maintenance.Repository.
func (d *DB) SaveUserAnalysis(ctx context.Context, a model.UserAnalysis) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO user_analysis (
			user_id, spam_score, intelligibility_score, quality_score, horni_score, ai_notes, moderator_notes
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (user_id) DO UPDATE SET
			spam_score            = EXCLUDED.spam_score,
			intelligibility_score = EXCLUDED.intelligibility_score,
			quality_score         = EXCLUDED.quality_score,
			horni_score           = EXCLUDED.horni_score,
			ai_notes              = EXCLUDED.ai_notes,
			moderator_notes       = EXCLUDED.moderator_notes`,
		a.UserID, a.SpamScore, a.IntelligibilityScore, a.QualityScore, a.HorniScore, a.AINotes, a.ModeratorNotes,
	)
	if err != nil {
		return errs.Wrap(errs.Database, err, "postgres: save user analysis")
	}
	return nil
}

// InsertUserAnalysisSnapshot implements maintenance.Repository.
func (d *DB) InsertUserAnalysisSnapshot(ctx context.Context, snap model.UserAnalysisSnapshot) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO user_analysis_history (
			user_id, year_month, spam_score, intelligibility_score, quality_score, horni_score, ai_notes, moderator_notes
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (user_id, year_month) DO UPDATE SET
			spam_score            = EXCLUDED.spam_score,
			intelligibility_score = EXCLUDED.intelligibility_score,
			quality_score         = EXCLUDED.quality_score,
			horni_score           = EXCLUDED.horni_score,
			ai_notes              = EXCLUDED.ai_notes,
			moderator_notes       = EXCLUDED.moderator_notes`,
		snap.UserID, snap.YearMonth, snap.Analysis.SpamScore, snap.Analysis.IntelligibilityScore,
		snap.Analysis.QualityScore, snap.Analysis.HorniScore, snap.Analysis.AINotes, snap.Analysis.ModeratorNotes,
	)
	if err != nil {
		return errs.Wrap(errs.Database, err, "postgres: insert user analysis snapshot")
	}
	return nil
}

func splitYearMonth(yearMonth string) (int, int, error) {
	parts := strings.Split(yearMonth, "-")
	if len(parts) != 2 {
		return 0, 0, errs.Newf(errs.InvalidInput, "postgres: malformed year-month %q", yearMonth)
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, errs.Newf(errs.InvalidInput, "postgres: malformed year-month %q", yearMonth)
	}
	month, err := strconv.Atoi(parts[1])
	if err != nil || month < 1 || month > 12 {
		return 0, 0, errs.Newf(errs.InvalidInput, "postgres: malformed year-month %q", yearMonth)
	}
	return year, month, nil
}

func partitionTableName(year, month int) string {
	return fmt.Sprintf("chat_messages_%04d_%02d", year, month)
}

// pqIdent quotes an identifier built entirely from partitionTableName's
// fixed charset ([a-z0-9_]); no external input reaches it unescaped.
func pqIdent(name string) string {
	return `"` + name + `"`
}
