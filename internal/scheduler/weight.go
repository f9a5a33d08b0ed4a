package scheduler

// ─── Selection Weight ───────────────────────────────────────────────────────
// Per-exercise sampling weight for the candidate batch: higher need (low
// mastery) and higher accumulated lesson-level negative reward both push
// the weight up, as a clamped weighted sum of bounded signals.

// WeightConfig controls how mastery and reward contribute to selection
// weight.
type WeightConfig struct {
	MasteryFactor float64 // weight given to (5 - masteryScore)
	RewardFactor  float64 // weight given to max(0, -lessonReward)
	MinWeight     float64
	MaxWeight     float64
}

// DefaultWeightConfig returns sane defaults: mastery need dominates, a
// struggling lesson's negative reward adds a smaller boost, and the
// result is clamped to a sampling-friendly range.
func DefaultWeightConfig() WeightConfig {
	return WeightConfig{
		MasteryFactor: 1.0,
		RewardFactor:  0.5,
		MinWeight:     0.05,
		MaxWeight:     5.0,
	}
}

// SelectionWeight computes the sampling weight for an exercise whose
// mastery score is masteryScore (in [1,5]) and whose parent lesson's most
// recent accumulated reward is lessonReward (signed; only the negative
// part contributes).
func SelectionWeight(cfg WeightConfig, masteryScore, lessonReward float64) float64 {
	negativeReward := 0.0
	if lessonReward < 0 {
		negativeReward = -lessonReward
	}
	score := cfg.MasteryFactor*(5-masteryScore) + cfg.RewardFactor*negativeReward
	return clampF64(score, cfg.MinWeight, cfg.MaxWeight)
}

func clampF64(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
