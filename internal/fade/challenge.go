package fade

import (
	"fmt"
	"strings"
)

// PassingScore is the fraction of correct answers needed to pass a recall challenge.
const PassingScore = 0.5

// ChallengeResult is the outcome of a recall challenge.
type ChallengeResult struct {
	Correct int
	Total   int
	Score   float64
	Passed  bool
}

// ScoreChallenge compares answers to the stored answers, position by position.
// Comparison ignores case and surrounding whitespace; missing answers count as
// wrong. An entry without questions always passes.
func ScoreChallenge(questions []ChallengeQuestion, answers []string) ChallengeResult {
	if len(questions) == 0 {
		return ChallengeResult{Score: 1, Passed: true}
	}

	correct := 0
	for i, q := range questions {
		if i >= len(answers) {
			break
		}
		if strings.EqualFold(strings.TrimSpace(answers[i]), strings.TrimSpace(q.Answer)) {
			correct++
		}
	}
	score := float64(correct) / float64(len(questions))
	return ChallengeResult{
		Correct: correct,
		Total:   len(questions),
		Score:   score,
		Passed:  score >= PassingScore,
	}
}

// Restorer gates restoration behind an entry's recall challenge.
type Restorer struct {
	store  *Store
	logger Logger
}

func NewRestorer(store *Store, logger Logger) *Restorer {
	return &Restorer{store: store, logger: logger}
}

// Questions returns the questions to present before restoring the entry.
func (r *Restorer) Questions(id string) ([]string, error) {
	entry, err := r.store.Get(id)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(entry.ChallengeQuestions))
	for i, q := range entry.ChallengeQuestions {
		out[i] = q.Question
	}
	return out, nil
}

// Attempt scores answers against the entry's challenge and restores the entry
// on a pass. A failed attempt leaves the entry untouched and returns a nil entry.
func (r *Restorer) Attempt(id string, answers []string) (ChallengeResult, *Entry, error) {
	entry, err := r.store.Get(id)
	if err != nil {
		return ChallengeResult{}, nil, err
	}

	result := ScoreChallenge(entry.ChallengeQuestions, answers)
	if !result.Passed {
		r.logger.Info("restoration challenge failed", "entry", id, "correct", result.Correct, "total", result.Total)
		return result, nil, nil
	}

	restored, err := r.store.Restore(id)
	if err != nil {
		return result, nil, fmt.Errorf("restoring entry: %w", err)
	}
	return result, restored, nil
}
