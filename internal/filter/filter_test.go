package filter

import (
	"testing"

	"github.com/trane-project/scheduler-core/internal/domain"
)

type metaGraph struct {
	types    map[domain.UnitId]domain.UnitType
	parent   map[domain.UnitId]domain.UnitId
	metadata map[domain.UnitId]domain.Metadata
}

func newMetaGraph() *metaGraph {
	return &metaGraph{
		types:    make(map[domain.UnitId]domain.UnitType),
		parent:   make(map[domain.UnitId]domain.UnitId),
		metadata: make(map[domain.UnitId]domain.Metadata),
	}
}

func (g *metaGraph) add(id domain.UnitId, t domain.UnitType, parent domain.UnitId, meta domain.Metadata) {
	g.types[id] = t
	if parent != "" {
		g.parent[id] = parent
	}
	if meta != nil {
		g.metadata[id] = meta
	}
}

func (g *metaGraph) UnitType(id domain.UnitId) (domain.UnitType, bool) { t, ok := g.types[id]; return t, ok }
func (g *metaGraph) ParentLesson(id domain.UnitId) (domain.UnitId, bool) {
	p, ok := g.parent[id]
	return p, ok
}
func (g *metaGraph) ParentCourse(id domain.UnitId) (domain.UnitId, bool) {
	p, ok := g.parent[id]
	return p, ok
}
func (g *metaGraph) Dependencies(domain.UnitId) []domain.UnitId         { return nil }
func (g *metaGraph) Dependents(domain.UnitId) []domain.UnitId           { return nil }
func (g *metaGraph) Encompasses(domain.UnitId) []domain.WeightedUnit   { return nil }
func (g *metaGraph) EncompassedBy(domain.UnitId) []domain.WeightedUnit { return nil }
func (g *metaGraph) Supersedes(domain.UnitId) []domain.UnitId          { return nil }
func (g *metaGraph) SupersededBy(domain.UnitId) []domain.UnitId       { return nil }
func (g *metaGraph) Lessons(domain.UnitId) []domain.UnitId            { return nil }
func (g *metaGraph) Exercises(domain.UnitId) []domain.UnitId          { return nil }
func (g *metaGraph) StartingLessons(domain.UnitId) []domain.UnitId    { return nil }
func (g *metaGraph) DependencySinks() []domain.UnitId                 { return nil }
func (g *metaGraph) Metadata(id domain.UnitId) (domain.Metadata, bool) {
	m, ok := g.metadata[id]
	return m, ok
}
func (g *metaGraph) ExerciseManifest(domain.UnitId) (domain.ExerciseManifest, bool) {
	return domain.ExerciseManifest{}, false
}

func buildLibrary() *metaGraph {
	g := newMetaGraph()
	g.add("course::algebra", domain.UnitCourse, "", domain.Metadata{"difficulty": {"easy"}})
	g.add("course::calculus", domain.UnitCourse, "", domain.Metadata{"difficulty": {"hard"}})
	g.add("lesson::algebra::basics", domain.UnitLesson, "course::algebra", domain.Metadata{"topic": {"linear"}})
	g.add("lesson::calculus::limits", domain.UnitLesson, "course::calculus", domain.Metadata{"topic": {"limits"}})
	g.add("ex::algebra::1", domain.UnitExercise, "lesson::algebra::basics", nil)
	g.add("ex::calculus::1", domain.UnitExercise, "lesson::calculus::limits", nil)
	return g
}

func TestCourseFilter_IncludeExclude(t *testing.T) {
	g := buildLibrary()

	include := CourseFilter{Include: true, Key: "difficulty", Value: "easy"}
	pred := Compile(include, g)
	if !pred("ex::algebra::1") {
		t.Error("expected algebra exercise to match difficulty=easy include filter")
	}
	if pred("ex::calculus::1") {
		t.Error("expected calculus exercise to fail difficulty=easy include filter")
	}

	exclude := CourseFilter{Include: false, Key: "difficulty", Value: "hard"}
	pred = Compile(exclude, g)
	if !pred("ex::algebra::1") {
		t.Error("expected algebra exercise to match difficulty=hard exclude filter")
	}
	if pred("ex::calculus::1") {
		t.Error("expected calculus exercise to fail difficulty=hard exclude filter")
	}
}

func TestLessonFilter(t *testing.T) {
	g := buildLibrary()
	pred := Compile(LessonFilter{Include: true, Key: "topic", Value: "limits"}, g)

	if pred("ex::algebra::1") {
		t.Error("expected algebra exercise not to match topic=limits")
	}
	if !pred("ex::calculus::1") {
		t.Error("expected calculus exercise to match topic=limits")
	}
}

func TestCombinedFilter_AllShortCircuits(t *testing.T) {
	g := buildLibrary()
	combined := CombinedFilter{
		Op: All,
		Filters: []KeyValueFilter{
			CourseFilter{Include: true, Key: "difficulty", Value: "easy"},
			LessonFilter{Include: true, Key: "topic", Value: "linear"},
		},
	}
	pred := Compile(combined, g)
	if !pred("ex::algebra::1") {
		t.Error("expected algebra exercise to satisfy both All filters")
	}
	if pred("ex::calculus::1") {
		t.Error("expected calculus exercise to fail the All filter")
	}
}

func TestCombinedFilter_AnyMatchesOnFirstSuccess(t *testing.T) {
	g := buildLibrary()
	combined := CombinedFilter{
		Op: Any,
		Filters: []KeyValueFilter{
			CourseFilter{Include: true, Key: "difficulty", Value: "hard"},
			LessonFilter{Include: true, Key: "topic", Value: "linear"},
		},
	}
	pred := Compile(combined, g)
	if !pred("ex::algebra::1") {
		t.Error("expected algebra exercise to match via the second Any branch")
	}
	if !pred("ex::calculus::1") {
		t.Error("expected calculus exercise to match via the first Any branch")
	}
}

func TestCourseFilter_MissingMetadataFailsInclude(t *testing.T) {
	g := newMetaGraph()
	g.add("course::orphan", domain.UnitCourse, "", nil)
	pred := Compile(CourseFilter{Include: true, Key: "k", Value: "v"}, g)
	if pred("course::orphan") {
		t.Error("expected include filter to fail when metadata key is absent")
	}
}
