package domain

// LevelPolicy maps a mean attempt percentage onto a proficiency level.
type LevelPolicy struct {
	AdvancedFrom     float64
	IntermediateFrom float64
}

// DefaultLevelPolicy: mean >= 80 advanced, 50 <= mean < 80 intermediate, otherwise beginner.
var DefaultLevelPolicy = LevelPolicy{AdvancedFrom: 80, IntermediateFrom: 50}

func (p LevelPolicy) LevelFor(mean float64) Level {
	switch {
	case mean >= p.AdvancedFrom:
		return LevelAdvanced
	case mean >= p.IntermediateFrom:
		return LevelIntermediate
	default:
		return LevelBeginner
	}
}

// MeanPercentage averages the percentage of every attempt, retries included.
// The second return value is false when there are no attempts.
func MeanPercentage(results []AttemptResult) (float64, bool) {
	if len(results) == 0 {
		return 0, false
	}
	var sum float64
	for _, r := range results {
		sum += r.Percentage
	}
	return sum / float64(len(results)), true
}
