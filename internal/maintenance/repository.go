/*
Package maintenance is the maintenance task (C8): scheduled partition
upkeep plus the archive + per-user analysis pass, run idempotently over
whatever calendar months have accumulated since the last run.
*/
package maintenance

import (
	"context"
	"time"

	"github.com/maowbot/maowbot/internal/domain/model"
)

// Repository is the storage surface the task needs. A concrete
// implementation lives in internal/store/postgres; tests substitute an
// in-memory fake.
type Repository interface {
	// ArchivedUntil returns the last fully-processed "YYYY-MM" month, or
	// ok=false if maintenance has never run.
	ArchivedUntil(ctx context.Context) (yearMonth string, ok bool, err error)
	// SetArchivedUntil persists the high-water mark after a month is
	// fully processed.
	SetArchivedUntil(ctx context.Context, yearMonth string) error

	// EnsurePartition makes sure a storage partition exists for the
	// given calendar month (idempotent).
	EnsurePartition(ctx context.Context, yearMonth string) error
	// DropPartitionsOlderThan removes partitions whose month is older
	// than cutoff.
	DropPartitionsOlderThan(ctx context.Context, cutoff time.Time) error

	// ArchiveMessages copies every chat_messages row with
	// start <= timestamp < end into chat_messages_archive, then deletes
	// them from chat_messages. A duplicate-key collision on the archive
	// insert is surfaced to the operator as an error, not silently
	// ignored.
	ArchiveMessages(ctx context.Context, start, end time.Time) error
	// DistinctUsers returns every user_id with at least one archived
	// message in [start, end).
	DistinctUsers(ctx context.Context, start, end time.Time) ([]string, error)
	// UserMessages returns a user's archived messages in [start, end).
	UserMessages(ctx context.Context, userID string, start, end time.Time) ([]model.ChatMessageRecord, error)

	// GetUserAnalysis returns a user's current scores, or ok=false if
	// none exist yet.
	GetUserAnalysis(ctx context.Context, userID string) (analysis model.UserAnalysis, ok bool, err error)
	// SaveUserAnalysis upserts a user's merged scores.
	SaveUserAnalysis(ctx context.Context, analysis model.UserAnalysis) error
	// InsertUserAnalysisSnapshot records one month's scores in
	// user_analysis_history, keyed by (user_id, year_month).
	InsertUserAnalysisSnapshot(ctx context.Context, snapshot model.UserAnalysisSnapshot) error
}
