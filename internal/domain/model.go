// Package domain contains pure business types with ZERO infrastructure imports.
// This is the innermost ring — it depends on nothing, and nothing in it
// depends on SQLite, chi, or prometheus.
package domain

import "time"

// ─── Unit Identity ──────────────────────────────────────────────────────────

// UnitId is an opaque, interned unit identifier. Equality is by content.
type UnitId string

// UnitType classifies a unit's place in the course/lesson/exercise hierarchy.
type UnitType int

const (
	UnitCourse UnitType = iota
	UnitLesson
	UnitExercise
)

func (t UnitType) String() string {
	switch t {
	case UnitCourse:
		return "course"
	case UnitLesson:
		return "lesson"
	case UnitExercise:
		return "exercise"
	default:
		return "unknown"
	}
}

// ─── Mastery ────────────────────────────────────────────────────────────────

// MasteryScore is one of five enumerated trial scores a student can report
// for an exercise.
type MasteryScore float32

const (
	MasteryOne   MasteryScore = 1.0
	MasteryTwo   MasteryScore = 2.0
	MasteryThree MasteryScore = 3.0
	MasteryFour  MasteryScore = 4.0
	MasteryFive  MasteryScore = 5.0
)

// Valid reports whether s is one of the five enumerated levels.
func (s MasteryScore) Valid() bool {
	switch s {
	case MasteryOne, MasteryTwo, MasteryThree, MasteryFour, MasteryFive:
		return true
	default:
		return false
	}
}

// UnscoredSentinel is returned by the cache when a unit has no trials yet.
// It is the lowest mastery value, which drives early exposure.
const UnscoredSentinel float32 = 1.0

// ─── Trials & Rewards ───────────────────────────────────────────────────────

// ExerciseTrial is one reported score for one exercise, append-only.
type ExerciseTrial struct {
	Score     MasteryScore `json:"score"`
	Timestamp int64        `json:"timestamp"` // unix seconds
}

// UnitReward is a signed scalar applied to a lesson or course as a side
// effect of grading an exercise elsewhere in the graph.
type UnitReward struct {
	Value     float32 `json:"value"`
	Weight    float32 `json:"weight"` // [0,1]
	Timestamp int64   `json:"timestamp"`
}

// ─── Edges ──────────────────────────────────────────────────────────────────

// WeightedUnit pairs a unit id with an edge weight, used for Encompasses /
// EncompassedBy query results.
type WeightedUnit struct {
	Unit   UnitId
	Weight float32
}

// UnitRewardEntry pairs a unit id with the reward to persist for it, the
// flattened output of a single propagation run.
type UnitRewardEntry struct {
	Unit   UnitId
	Reward UnitReward
}

// ─── Scheduler configuration ────────────────────────────────────────────────

// SchedulerOptions holds every tunable scheduling constant. All
// fields have sane defaults via DefaultSchedulerOptions.
type SchedulerOptions struct {
	BatchSize           int `json:"batch_size"`
	BatchSampleSize     int `json:"batch_sample_size"`
	MaxCandidates       int `json:"max_candidates"`
	NumTrials           int `json:"num_trials"`
	NumRewards          int `json:"num_rewards"`
	MinLessonsPerCourse int `json:"min_lessons_per_course"`
	MaxLessonsPerCourse int `json:"max_lessons_per_course"`

	ScoreMasteryThreshold float32 `json:"score_mastery_threshold"`
	SupersedingWindow     int     `json:"superseding_window"`

	// RandSeed, when non-zero, pins the PRNG used for weighted sampling so
	// tests can get deterministic batches. Zero means "seed from time".
	RandSeed int64 `json:"rand_seed,omitempty"`
}

// DefaultSchedulerOptions returns sane production defaults.
func DefaultSchedulerOptions() SchedulerOptions {
	return SchedulerOptions{
		BatchSize:             10,
		BatchSampleSize:       20,
		MaxCandidates:         500,
		NumTrials:             5,
		NumRewards:            5,
		MinLessonsPerCourse:   1,
		MaxLessonsPerCourse:   10,
		ScoreMasteryThreshold: 3.5,
		SupersedingWindow:     3,
	}
}

// PropagationConstants is the single immutable configuration for the reward
// propagator. Unlike SchedulerOptions this is not meant
// to be tuned per caller — it is the algorithm's numeric contract.
type PropagationConstants struct {
	MinAbsReward float32
	MinWeight    float32
	WeightFactor float32
	RewardFactor float32
}

// DefaultPropagationConstants returns the fixed attenuation/pruning constants.
func DefaultPropagationConstants() PropagationConstants {
	return PropagationConstants{
		MinAbsReward: 0.2,
		MinWeight:    0.2,
		WeightFactor: 0.8,
		RewardFactor: 0.9,
	}
}

// InitialReward returns r0 = initial_reward(score).
func InitialReward(s MasteryScore) float32 {
	switch s {
	case MasteryFive:
		return 0.8
	case MasteryFour:
		return 0.4
	case MasteryThree:
		return -0.3
	case MasteryTwo:
		return -0.5
	case MasteryOne:
		return -1.0
	default:
		return 0
	}
}

// ─── Manifests ───────────────────────────────────────────────────────────────

// Metadata is an ordered map of string keys to string-sequence values, as
// course/lesson manifest metadata is defined.
type Metadata map[string][]string

// CourseManifest is the subset of a course manifest the scheduler reads.
type CourseManifest struct {
	ID           UnitId
	Name         string
	Dependencies []UnitId
	Supersedes   []UnitId
	Metadata     Metadata
}

// LessonManifest is the subset of a lesson manifest the scheduler reads.
type LessonManifest struct {
	ID           UnitId
	CourseID     UnitId
	Dependencies []UnitId
	Supersedes   []UnitId
	Metadata     Metadata
}

// ExerciseManifest is the subset of an exercise manifest the scheduler reads.
// AssetRef is opaque — the scheduler never interprets it.
type ExerciseManifest struct {
	ID       UnitId
	LessonID UnitId
	CourseID UnitId
	AssetRef string
	Type     string
}

// BatchEntry is one exercise in a get_exercise_batch result.
type BatchEntry struct {
	ExerciseID UnitId
	Manifest   ExerciseManifest
}

// Clock is an injectable time source, used throughout so tests can pin
// "now" instead of depending on the wall clock.
type Clock func() time.Time
