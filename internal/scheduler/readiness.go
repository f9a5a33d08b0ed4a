package scheduler

import (
	"context"

	"github.com/trane-project/scheduler-core/internal/domain"
)

// LessonState is the readiness state machine evaluated per call (never
// persisted) for a lesson during traversal.
type LessonState int

const (
	NotReady LessonState = iota
	Ready
	Mastered
	Superseded
)

func (s LessonState) String() string {
	switch s {
	case NotReady:
		return "not_ready"
	case Ready:
		return "ready"
	case Mastered:
		return "mastered"
	case Superseded:
		return "superseded"
	default:
		return "unknown"
	}
}

// lessonState computes id's readiness: NotReady if any in-course
// prerequisite lesson is unmastered; Superseded if a superseding unit is
// reliably mastered; Mastered if id's own blended score clears the
// threshold; Ready otherwise.
func (s *CandidateSelector) lessonState(ctx context.Context, id domain.UnitId) (LessonState, error) {
	superseded, err := s.isSuperseded(ctx, id)
	if err != nil {
		return 0, err
	}
	if superseded {
		return Superseded, nil
	}

	for _, prereq := range s.graph.Dependencies(id) {
		if t, ok := s.graph.UnitType(prereq); !ok || t != domain.UnitLesson {
			continue
		}
		prereqState, err := s.lessonState(ctx, prereq)
		if err != nil {
			return 0, err
		}
		if prereqState != Mastered && prereqState != Superseded {
			return NotReady, nil
		}
	}

	mastered, err := s.isMastered(ctx, id)
	if err != nil {
		return 0, err
	}
	if mastered {
		return Mastered, nil
	}
	return Ready, nil
}

// isMastered reports whether id's blended cache score clears the
// configured mastery threshold.
func (s *CandidateSelector) isMastered(ctx context.Context, id domain.UnitId) (bool, error) {
	score, err := s.cache.Get(ctx, id)
	if err != nil {
		return false, &domain.SchedulerError{Unit: id, Err: err}
	}
	return score >= s.opts.ScoreMasteryThreshold, nil
}

// isSuperseded reports whether any unit superseding id is reliably
// mastered.
func (s *CandidateSelector) isSuperseded(ctx context.Context, id domain.UnitId) (bool, error) {
	for _, superseder := range s.graph.SupersededBy(id) {
		reliable, err := s.reliablyMastered(ctx, superseder)
		if err != nil {
			return false, err
		}
		if reliable {
			return true, nil
		}
	}
	return false, nil
}

// reliablyMastered reports whether every exercise under unit has at least
// SupersedingWindow recent trials, all scoring at or above
// ScoreMasteryThreshold — the "A is reliably mastered" test that lets A's
// Supersedes edge exclude B from candidacy.
func (s *CandidateSelector) reliablyMastered(ctx context.Context, unit domain.UnitId) (bool, error) {
	exercises, err := s.descendantExercises(unit)
	if err != nil {
		return false, err
	}
	if len(exercises) == 0 {
		return false, nil
	}
	for _, ex := range exercises {
		trials, err := s.scores.GetScores(ctx, ex, s.opts.SupersedingWindow)
		if err != nil {
			return false, &domain.SchedulerError{Unit: ex, Err: err}
		}
		if len(trials) < s.opts.SupersedingWindow {
			return false, nil
		}
		for _, trial := range trials {
			if float32(trial.Score) < s.opts.ScoreMasteryThreshold {
				return false, nil
			}
		}
	}
	return true, nil
}

// descendantExercises returns every exercise under unit: itself if an
// exercise, its exercises if a lesson, or every exercise of every lesson
// if a course.
func (s *CandidateSelector) descendantExercises(unit domain.UnitId) ([]domain.UnitId, error) {
	t, ok := s.graph.UnitType(unit)
	if !ok {
		return nil, &domain.SchedulerError{Unit: unit, Err: domain.ErrUnknownUnit}
	}
	switch t {
	case domain.UnitExercise:
		return []domain.UnitId{unit}, nil
	case domain.UnitLesson:
		return s.graph.Exercises(unit), nil
	default: // course
		var out []domain.UnitId
		for _, lesson := range s.graph.Lessons(unit) {
			out = append(out, s.graph.Exercises(lesson)...)
		}
		return out, nil
	}
}
