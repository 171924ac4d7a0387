package app

import (
	"elearning-quiz-service/internal/domain"
	"github.com/shopspring/decimal"
)

// DefaultPassThreshold is the percentage a submission needs to pass.
const DefaultPassThreshold = 70.0

// PassGate decides pass/fail from a percentage. A passed quiz can never be retried.
type PassGate struct {
	threshold float64
}

func NewPassGate(threshold float64) PassGate {
	return PassGate{threshold: threshold}
}

func (g PassGate) Threshold() float64 {
	return g.threshold
}

// Evaluate returns (passed, canRetry).
func (g PassGate) Evaluate(percentage float64) (bool, bool) {
	passed := percentage >= g.threshold
	return passed, !passed
}

// validateAnswers keeps submissions whose option belongs to the submitted question of this quiz.
// Unknown or mismatched options are dropped; the first pick per question wins.
func validateAnswers(quiz domain.Quiz, answers []domain.AnswerSubmission) map[int64]domain.Option {
	options := make(map[int64]domain.Option)
	for _, q := range quiz.Questions {
		for _, opt := range q.Options {
			opt.QuestionID = q.ID
			options[opt.ID] = opt
		}
	}

	chosen := make(map[int64]domain.Option, len(answers))
	for _, a := range answers {
		opt, ok := options[a.OptionID]
		if !ok || opt.QuestionID != a.QuestionID {
			continue
		}
		if _, seen := chosen[a.QuestionID]; seen {
			continue
		}
		chosen[a.QuestionID] = opt
	}
	return chosen
}

// scoreAnswers counts correct picks against total and rounds the percentage to 2 decimals,
// half to even (3.125 becomes 3.12).
func scoreAnswers(chosen map[int64]domain.Option, total int) (int, float64, error) {
	if total <= 0 {
		return 0, 0, domain.ErrQuizHasNoQuestions
	}

	score := 0
	for _, opt := range chosen {
		if opt.Correct {
			score++
		}
	}

	percentage, _ := decimal.NewFromInt(int64(score)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(total))).
		RoundBank(2).
		Float64()
	return score, percentage, nil
}
