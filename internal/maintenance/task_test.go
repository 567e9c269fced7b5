package maintenance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maowbot/maowbot/internal/domain/model"
)

func TestCollectMissingMonths(t *testing.T) {
	last := "2024-11"
	months, err := collectMissingMonths(&last, "2025-01")
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-12", "2025-01"}, months)

	months, err = collectMissingMonths(nil, "2025-04")
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-04"}, months)
}

func TestParseYearMonth(t *testing.T) {
	year, month, err := parseYearMonth("2025-01")
	require.NoError(t, err)
	assert.Equal(t, 2025, year)
	assert.Equal(t, 1, month)

	_, _, err = parseYearMonth("2025-1")
	require.Error(t, err)
}

func TestMonthRange(t *testing.T) {
	start, end, err := monthRange("2025-12")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), end)
}

// fakeRepo is an in-memory Repository for exercising Task.RunOnce without
// a database.
type fakeRepo struct {
	archivedUntil string
	hasArchived   bool

	partitions      map[string]bool
	droppedBefore   time.Time
	archivedRanges  [][2]time.Time
	users           map[string][]model.ChatMessageRecord // userID -> all messages, regardless of month
	analysis        map[string]model.UserAnalysis
	snapshots       []model.UserAnalysisSnapshot
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		partitions: map[string]bool{},
		users:      map[string][]model.ChatMessageRecord{},
		analysis:   map[string]model.UserAnalysis{},
	}
}

func (f *fakeRepo) ArchivedUntil(ctx context.Context) (string, bool, error) {
	return f.archivedUntil, f.hasArchived, nil
}

func (f *fakeRepo) SetArchivedUntil(ctx context.Context, yearMonth string) error {
	f.archivedUntil = yearMonth
	f.hasArchived = true
	return nil
}

func (f *fakeRepo) EnsurePartition(ctx context.Context, yearMonth string) error {
	f.partitions[yearMonth] = true
	return nil
}

func (f *fakeRepo) DropPartitionsOlderThan(ctx context.Context, cutoff time.Time) error {
	f.droppedBefore = cutoff
	return nil
}

func (f *fakeRepo) ArchiveMessages(ctx context.Context, start, end time.Time) error {
	f.archivedRanges = append(f.archivedRanges, [2]time.Time{start, end})
	return nil
}

func (f *fakeRepo) DistinctUsers(ctx context.Context, start, end time.Time) ([]string, error) {
	set := map[string]struct{}{}
	for userID, msgs := range f.users {
		for _, m := range msgs {
			ts := time.Unix(m.TimestampEpochSeconds, 0).UTC()
			if !ts.Before(start) && ts.Before(end) {
				set[userID] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(set))
	for u := range set {
		out = append(out, u)
	}
	return out, nil
}

func (f *fakeRepo) UserMessages(ctx context.Context, userID string, start, end time.Time) ([]model.ChatMessageRecord, error) {
	var out []model.ChatMessageRecord
	for _, m := range f.users[userID] {
		ts := time.Unix(m.TimestampEpochSeconds, 0).UTC()
		if !ts.Before(start) && ts.Before(end) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeRepo) GetUserAnalysis(ctx context.Context, userID string) (model.UserAnalysis, bool, error) {
	a, ok := f.analysis[userID]
	return a, ok, nil
}

func (f *fakeRepo) SaveUserAnalysis(ctx context.Context, analysis model.UserAnalysis) error {
	f.analysis[analysis.UserID] = analysis
	return nil
}

func (f *fakeRepo) InsertUserAnalysisSnapshot(ctx context.Context, snapshot model.UserAnalysisSnapshot) error {
	f.snapshots = append(f.snapshots, snapshot)
	return nil
}

func TestTask_RunOnce_ProcessesMissingMonthsAndMergesScores(t *testing.T) {
	repo := newFakeRepo()

	cutoffMonth := yearMonthOf(time.Now().Add(-archiveWindow))
	start, _, err := monthRange(cutoffMonth)
	require.NoError(t, err)
	msgTime := start.Add(time.Hour)

	repo.users["u1"] = []model.ChatMessageRecord{
		{MessageID: "m1", UserID: "u1", Text: "hi", TimestampEpochSeconds: msgTime.Unix()},
		{MessageID: "m2", UserID: "u1", Text: "there", TimestampEpochSeconds: msgTime.Unix()},
	}
	repo.analysis["u1"] = model.UserAnalysis{UserID: "u1", SpamScore: 1.0}

	task := New(repo, nil)
	require.NoError(t, task.RunOnce(context.Background()))

	assert.True(t, repo.hasArchived)
	assert.Equal(t, cutoffMonth, repo.archivedUntil)
	require.Len(t, repo.archivedRanges, 1)
	require.Len(t, repo.snapshots, 1)
	assert.Equal(t, "u1", repo.snapshots[0].UserID)

	merged := repo.analysis["u1"]
	assert.InDelta(t, model.WeightedMerge(1.0, 0.2), merged.SpamScore, 0.001)
	assert.Contains(t, merged.AINotes, cutoffMonth)
}

func TestTask_RunOnce_IsIdempotentOnceCaughtUp(t *testing.T) {
	repo := newFakeRepo()
	task := New(repo, nil)

	require.NoError(t, task.RunOnce(context.Background()))
	firstArchiveCount := len(repo.archivedRanges)

	require.NoError(t, task.RunOnce(context.Background()))
	assert.Equal(t, firstArchiveCount, len(repo.archivedRanges), "second run in the same month should process nothing new")
}
