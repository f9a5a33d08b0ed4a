// Package filter implements FilterEngine: compiling a KeyValueFilter tree
// into a predicate over units, tested through the course → lesson →
// exercise containment chain.
package filter

import "github.com/trane-project/scheduler-core/internal/domain"

// CombineOp selects how CombinedFilter aggregates its children.
type CombineOp int

const (
	All CombineOp = iota // short-circuits on first failure
	Any                  // short-circuits on first success
)

// KeyValueFilter is one node of a compiled metadata filter tree.
type KeyValueFilter interface {
	// matches tests id against this node, using graph to resolve the
	// course/lesson/exercise containment chain and metadata lookups.
	matches(id domain.UnitId, graph domain.Graph) bool
}

// CourseFilter tests whether id's course has (Include) or lacks
// (!Include) metadata key=value.
type CourseFilter struct {
	Include bool
	Key     string
	Value   string
}

// LessonFilter tests whether id's lesson has (Include) or lacks
// (!Include) metadata key=value.
type LessonFilter struct {
	Include bool
	Key     string
	Value   string
}

// CombinedFilter aggregates child filters with All (AND, short-circuit on
// first failure) or Any (OR, short-circuit on first success).
type CombinedFilter struct {
	Op      CombineOp
	Filters []KeyValueFilter
}

func (f CourseFilter) matches(id domain.UnitId, graph domain.Graph) bool {
	courseID, ok := courseOf(id, graph)
	if !ok {
		return !f.Include
	}
	return hasMetadata(graph, courseID, f.Key, f.Value) == f.Include
}

func (f LessonFilter) matches(id domain.UnitId, graph domain.Graph) bool {
	lessonID, ok := lessonOf(id, graph)
	if !ok {
		return !f.Include
	}
	return hasMetadata(graph, lessonID, f.Key, f.Value) == f.Include
}

func (f CombinedFilter) matches(id domain.UnitId, graph domain.Graph) bool {
	switch f.Op {
	case Any:
		for _, child := range f.Filters {
			if child.matches(id, graph) {
				return true
			}
		}
		return false
	default: // All
		for _, child := range f.Filters {
			if !child.matches(id, graph) {
				return false
			}
		}
		return true
	}
}

// hasMetadata reports whether unit's metadata contains value under key.
func hasMetadata(graph domain.Graph, id domain.UnitId, key, value string) bool {
	meta, ok := graph.Metadata(id)
	if !ok {
		return false
	}
	for _, v := range meta[key] {
		if v == value {
			return true
		}
	}
	return false
}

// courseOf resolves the course ancestor of any unit type.
func courseOf(id domain.UnitId, graph domain.Graph) (domain.UnitId, bool) {
	switch t, ok := graph.UnitType(id); {
	case !ok:
		return "", false
	case t == domain.UnitCourse:
		return id, true
	case t == domain.UnitLesson:
		return graph.ParentCourse(id)
	default: // exercise
		lesson, ok := graph.ParentLesson(id)
		if !ok {
			return "", false
		}
		return graph.ParentCourse(lesson)
	}
}

// lessonOf resolves the lesson ancestor of a lesson or exercise. Courses
// have no lesson ancestor.
func lessonOf(id domain.UnitId, graph domain.Graph) (domain.UnitId, bool) {
	switch t, ok := graph.UnitType(id); {
	case !ok:
		return "", false
	case t == domain.UnitLesson:
		return id, true
	case t == domain.UnitExercise:
		return graph.ParentLesson(id)
	default: // course
		return "", false
	}
}

// Compile turns a KeyValueFilter tree into a reusable predicate.
func Compile(kv KeyValueFilter, graph domain.Graph) func(domain.UnitId) bool {
	return func(id domain.UnitId) bool {
		return kv.matches(id, graph)
	}
}
