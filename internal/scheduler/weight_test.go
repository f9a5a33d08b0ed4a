package scheduler

import "testing"

func TestSelectionWeight_HigherNeedHigherWeight(t *testing.T) {
	cfg := DefaultWeightConfig()
	lowNeed := SelectionWeight(cfg, 5.0, 0)  // fully mastered, no reward
	highNeed := SelectionWeight(cfg, 1.0, 0) // unscored, no reward

	if highNeed <= lowNeed {
		t.Fatalf("highNeed weight (%v) should exceed lowNeed weight (%v)", highNeed, lowNeed)
	}
}

func TestSelectionWeight_NegativeRewardIncreasesWeight(t *testing.T) {
	cfg := DefaultWeightConfig()
	noReward := SelectionWeight(cfg, 3.0, 0)
	struggling := SelectionWeight(cfg, 3.0, -0.5)

	if struggling <= noReward {
		t.Fatalf("negative lesson reward should increase weight: struggling=%v, noReward=%v", struggling, noReward)
	}
}

func TestSelectionWeight_PositiveRewardIgnored(t *testing.T) {
	cfg := DefaultWeightConfig()
	withPositive := SelectionWeight(cfg, 3.0, 0.5)
	withoutReward := SelectionWeight(cfg, 3.0, 0)

	if withPositive != withoutReward {
		t.Fatalf("positive reward should not contribute: withPositive=%v, withoutReward=%v", withPositive, withoutReward)
	}
}

func TestSelectionWeight_ClampedToRange(t *testing.T) {
	cfg := WeightConfig{MasteryFactor: 10, RewardFactor: 10, MinWeight: 0.1, MaxWeight: 1.0}
	got := SelectionWeight(cfg, 1.0, -10)
	if got != 1.0 {
		t.Fatalf("SelectionWeight() = %v, want clamped to MaxWeight 1.0", got)
	}

	cfg2 := WeightConfig{MasteryFactor: 0, RewardFactor: 0, MinWeight: 0.2, MaxWeight: 5.0}
	got2 := SelectionWeight(cfg2, 5.0, 0)
	if got2 != 0.2 {
		t.Fatalf("SelectionWeight() = %v, want clamped to MinWeight 0.2", got2)
	}
}
