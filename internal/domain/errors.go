package domain

import (
	"errors"
	"fmt"
)

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure — no infrastructure dependency.

var (
	// Graph errors (fatal during load)
	ErrDuplicateUnit = errors.New("unit already exists with a different type")
	ErrMissingParent = errors.New("parent unit is missing")
	ErrUnknownUnit   = errors.New("unknown unit")

	// Store errors
	ErrStoreIO            = errors.New("store I/O error")
	ErrStoreSerialization = errors.New("store serialization error")
	ErrStoreTimeout       = errors.New("store connection pool timeout")
	ErrStoreCorruption    = errors.New("store corruption detected")

	// Scheduler errors
	ErrEmptyCandidates = errors.New("no candidates satisfy the active filter")
	ErrInvalidFilter   = errors.New("filter could not be compiled")
	ErrInvalidScore    = errors.New("score is not one of the five enumerated mastery levels")
)

// ─── Graph Errors ───────────────────────────────────────────────────────────

// GraphError wraps a structural error raised while loading the unit graph.
// Structural errors are fatal to the loading phase and are not recoverable
// at runtime.
type GraphError struct {
	Unit UnitId
	Path []UnitId // populated for CycleDetected
	Err  error
}

func (e *GraphError) Error() string {
	if len(e.Path) > 0 {
		return fmt.Sprintf("graph error for %q: %v (cycle: %v)", e.Unit, e.Err, e.Path)
	}
	return fmt.Sprintf("graph error for %q: %v", e.Unit, e.Err)
}

func (e *GraphError) Unwrap() error { return e.Err }

// NewCycleDetected builds a GraphError carrying the offending cycle path.
func NewCycleDetected(path []UnitId) *GraphError {
	return &GraphError{Path: path, Err: errors.New("cycle detected")}
}

// ─── Store Errors ───────────────────────────────────────────────────────────

// StoreError wraps any failure surfaced by ScoreStore, RewardStore,
// Blacklist, or ReviewList. Store errors propagate unchanged to callers —
// the scheduler never catches them except to annotate the failing unit id.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// ─── Scheduler Errors ───────────────────────────────────────────────────────

// SchedulerError wraps a failure from CandidateSelector/Scheduler. An empty
// Unit means the error is not attributable to a single unit.
type SchedulerError struct {
	Unit UnitId
	Err  error
}

func (e *SchedulerError) Error() string {
	if e.Unit != "" {
		return fmt.Sprintf("scheduler: %q: %v", e.Unit, e.Err)
	}
	return fmt.Sprintf("scheduler: %v", e.Err)
}

func (e *SchedulerError) Unwrap() error { return e.Err }

// ─── Per-subsystem wrappers ─────────────────────────────────────────────────
// Each subsystem wrapper preserves the inner store error and exposes it
// through Unwrap, so errors.Is and errors.As see through it.

type BlacklistError struct{ Err error }

func (e *BlacklistError) Error() string { return fmt.Sprintf("blacklist: %v", e.Err) }
func (e *BlacklistError) Unwrap() error { return e.Err }

type ReviewListError struct{ Err error }

func (e *ReviewListError) Error() string { return fmt.Sprintf("review list: %v", e.Err) }
func (e *ReviewListError) Unwrap() error { return e.Err }

type PracticeStatsError struct{ Err error }

func (e *PracticeStatsError) Error() string { return fmt.Sprintf("practice stats: %v", e.Err) }
func (e *PracticeStatsError) Unwrap() error { return e.Err }

type PracticeRewardsError struct{ Err error }

func (e *PracticeRewardsError) Error() string { return fmt.Sprintf("practice rewards: %v", e.Err) }
func (e *PracticeRewardsError) Unwrap() error { return e.Err }

type PreferencesManagerError struct{ Err error }

func (e *PreferencesManagerError) Error() string { return fmt.Sprintf("preferences: %v", e.Err) }
func (e *PreferencesManagerError) Unwrap() error { return e.Err }
