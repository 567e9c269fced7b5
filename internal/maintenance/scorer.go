package maintenance

import (
	"context"
	"fmt"

	"github.com/maowbot/maowbot/internal/domain/model"
)

// ScoreResult is one user's freshly computed scores plus a human-readable
// summary, to be merged into their running model.UserAnalysis.
type ScoreResult struct {
	SpamScore             float32
	IntelligibilityScore float32
	QualityScore          float32
	HorniScore             float32
	Summary                string
}

// Scorer computes a user's behavioral scores from one month's archived
// messages. The production default is a placeholder heuristic, not an
// actual model call — swapping in a real classifier only requires a new
// Scorer implementation.
type Scorer interface {
	Score(ctx context.Context, messages []model.ChatMessageRecord) (ScoreResult, error)
}

// heuristicScorer is a direct port of the original core's placeholder
// "AI" scoring: spam grows with message volume (capped), the rest are
// fixed constants pending a real classifier.
type heuristicScorer struct{}

// NewHeuristicScorer returns the default Scorer.
func NewHeuristicScorer() Scorer {
	return heuristicScorer{}
}

func (heuristicScorer) Score(_ context.Context, messages []model.ChatMessageRecord) (ScoreResult, error) {
	count := float32(len(messages))
	spamCount := count
	if spamCount > 5 {
		spamCount = 5
	}
	return ScoreResult{
		SpamScore:             0.1 * spamCount,
		IntelligibilityScore: 0.5,
		QualityScore:          0.6,
		HorniScore:             0.2,
		Summary:                fmt.Sprintf("User posted %d messages. Spam est: %.2f", len(messages), 0.1*spamCount),
	}, nil
}
