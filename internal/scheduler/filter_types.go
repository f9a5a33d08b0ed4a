package scheduler

import (
	"github.com/trane-project/scheduler-core/internal/domain"
	"github.com/trane-project/scheduler-core/internal/filter"
)

// ExerciseFilter restricts get_exercise_batch traversal. It is the sum
// type UnitFilter | SessionFilter described for CandidateSelector.
type ExerciseFilter interface {
	isExerciseFilter()
}

// UnitCourseFilter restricts the search to the given courses (and their
// descendants).
type UnitCourseFilter struct{ CourseIDs []domain.UnitId }

// UnitLessonFilter restricts the search to the given lessons (and their
// descendants).
type UnitLessonFilter struct{ LessonIDs []domain.UnitId }

// MetadataFilter restricts the search to units whose metadata satisfies a
// compiled KeyValueFilter expression.
type MetadataFilter struct{ Filter filter.KeyValueFilter }

// ReviewListFilter restricts the search to units on the review list (or
// their descendants).
type ReviewListFilter struct{}

// SessionSlot pairs a UnitFilter with a sampling weight inside a saved
// study session.
type SessionSlot struct {
	Filter ExerciseFilter
	Weight float64
}

// SessionFilter is a saved sequence of UnitFilters with per-slot weights.
type SessionFilter struct{ Slots []SessionSlot }

func (UnitCourseFilter) isExerciseFilter() {}
func (UnitLessonFilter) isExerciseFilter() {}
func (MetadataFilter) isExerciseFilter()   {}
func (ReviewListFilter) isExerciseFilter() {}
func (SessionFilter) isExerciseFilter()    {}
