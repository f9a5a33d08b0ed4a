// Package graph implements UnitGraph, the in-memory DAG of courses, lessons
// and exercises that the scheduler traverses.
//
// The adjacency maps are sparse and maintained bidirectionally: a forward
// map owns the edge data (weights, dependency lists), a reverse map holds
// only ids for lookup — relations maintained during insertion, not
// ownership.
//
// Loading (Add*, UpdateStartingLessons) acquires the write side of the
// lock once; CheckCycles and runtime queries acquire the read side, matching
// a read-mostly structure guarded by a reader/writer lock.
package graph

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/trane-project/scheduler-core/internal/domain"
)

type unitRecord struct {
	utype  domain.UnitType
	parent domain.UnitId // zero value for courses
}

// Graph is a thread-safe in-memory DAG of units with typed edges.
type Graph struct {
	mu sync.RWMutex

	units map[domain.UnitId]unitRecord

	lessonsOf   map[domain.UnitId][]domain.UnitId // course -> lessons, insertion order
	exercisesOf map[domain.UnitId][]domain.UnitId // lesson -> exercises, insertion order

	dependencies map[domain.UnitId][]domain.UnitId // id -> prerequisites
	dependents   map[domain.UnitId][]domain.UnitId // id -> dependents

	encompasses   map[domain.UnitId]map[domain.UnitId]float32 // source -> target -> weight
	encompassedBy map[domain.UnitId]map[domain.UnitId]float32 // target -> source -> weight

	supersedes   map[domain.UnitId][]domain.UnitId // A supersedes B: supersedes[A] = [B...]
	supersededBy map[domain.UnitId][]domain.UnitId

	startingLessons map[domain.UnitId][]domain.UnitId // course -> starting lessons

	metadata  map[domain.UnitId]domain.Metadata
	manifests map[domain.UnitId]domain.ExerciseManifest
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		units:           make(map[domain.UnitId]unitRecord),
		lessonsOf:       make(map[domain.UnitId][]domain.UnitId),
		exercisesOf:     make(map[domain.UnitId][]domain.UnitId),
		dependencies:    make(map[domain.UnitId][]domain.UnitId),
		dependents:      make(map[domain.UnitId][]domain.UnitId),
		encompasses:     make(map[domain.UnitId]map[domain.UnitId]float32),
		encompassedBy:   make(map[domain.UnitId]map[domain.UnitId]float32),
		supersedes:      make(map[domain.UnitId][]domain.UnitId),
		supersededBy:    make(map[domain.UnitId][]domain.UnitId),
		startingLessons: make(map[domain.UnitId][]domain.UnitId),
		metadata:        make(map[domain.UnitId]domain.Metadata),
		manifests:       make(map[domain.UnitId]domain.ExerciseManifest),
	}
}

// ─── Mutation ────────────────────────────────────────────────────────────

// AddCourse registers a course. Fails if id already exists with a
// different type.
func (g *Graph) AddCourse(id domain.UnitId, meta domain.Metadata) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if rec, ok := g.units[id]; ok {
		if rec.utype != domain.UnitCourse {
			return &domain.GraphError{Unit: id, Err: domain.ErrDuplicateUnit}
		}
		return nil
	}
	g.units[id] = unitRecord{utype: domain.UnitCourse}
	if meta != nil {
		g.metadata[id] = meta
	}
	return nil
}

// AddLesson registers a lesson under courseID. Fails if the course is
// missing or id already exists with a different type.
func (g *Graph) AddLesson(id, courseID domain.UnitId, meta domain.Metadata) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.units[courseID]; !ok {
		return &domain.GraphError{Unit: id, Err: domain.ErrMissingParent}
	}
	if rec, ok := g.units[id]; ok {
		if rec.utype != domain.UnitLesson || rec.parent != courseID {
			return &domain.GraphError{Unit: id, Err: domain.ErrDuplicateUnit}
		}
		return nil
	}
	g.units[id] = unitRecord{utype: domain.UnitLesson, parent: courseID}
	g.lessonsOf[courseID] = append(g.lessonsOf[courseID], id)
	if meta != nil {
		g.metadata[id] = meta
	}
	return nil
}

// AddExercise registers an exercise under lessonID. Fails if the lesson is
// missing or id already exists with a different type.
func (g *Graph) AddExercise(id, lessonID domain.UnitId, manifest domain.ExerciseManifest) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.units[lessonID]; !ok {
		return &domain.GraphError{Unit: id, Err: domain.ErrMissingParent}
	}
	if rec, ok := g.units[id]; ok {
		if rec.utype != domain.UnitExercise || rec.parent != lessonID {
			return &domain.GraphError{Unit: id, Err: domain.ErrDuplicateUnit}
		}
		return nil
	}
	g.units[id] = unitRecord{utype: domain.UnitExercise, parent: lessonID}
	g.exercisesOf[lessonID] = append(g.exercisesOf[lessonID], id)
	g.manifests[id] = manifest
	return nil
}

// AddDependencies records DependsOn(id -> dep) for each dep in deps. Each
// new edge implicitly adds Encompasses(id -> dep, 1.0) unless an
// overriding weight has already been (or is later) registered via
// AddEncompassed.
func (g *Graph) AddDependencies(id domain.UnitId, deps []domain.UnitId) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.units[id]; !ok {
		return &domain.GraphError{Unit: id, Err: domain.ErrUnknownUnit}
	}
	for _, dep := range deps {
		if _, ok := g.units[dep]; !ok {
			return &domain.GraphError{Unit: dep, Err: domain.ErrUnknownUnit}
		}
		g.dependencies[id] = append(g.dependencies[id], dep)
		g.dependents[dep] = append(g.dependents[dep], id)

		if _, overridden := g.encompasses[id][dep]; !overridden {
			g.setEncompassLocked(id, dep, 1.0)
		}
	}
	return nil
}

// AddEncompassed registers author-provided Encompasses(id -> dep, weight)
// overrides, including weight 0.0 to disable propagation along that edge.
func (g *Graph) AddEncompassed(id domain.UnitId, edges []domain.WeightedUnit) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.units[id]; !ok {
		return &domain.GraphError{Unit: id, Err: domain.ErrUnknownUnit}
	}
	for _, e := range edges {
		if _, ok := g.units[e.Unit]; !ok {
			return &domain.GraphError{Unit: e.Unit, Err: domain.ErrUnknownUnit}
		}
		g.setEncompassLocked(id, e.Unit, e.Weight)
	}
	return nil
}

// setEncompassLocked must be called with mu held for writing.
func (g *Graph) setEncompassLocked(from, to domain.UnitId, weight float32) {
	if g.encompasses[from] == nil {
		g.encompasses[from] = make(map[domain.UnitId]float32)
	}
	g.encompasses[from][to] = weight
	if g.encompassedBy[to] == nil {
		g.encompassedBy[to] = make(map[domain.UnitId]float32)
	}
	g.encompassedBy[to][from] = weight
}

// AddSupersedes records that `a` supersedes `b`.
func (g *Graph) AddSupersedes(a, b domain.UnitId) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.units[a]; !ok {
		return &domain.GraphError{Unit: a, Err: domain.ErrUnknownUnit}
	}
	if _, ok := g.units[b]; !ok {
		return &domain.GraphError{Unit: b, Err: domain.ErrUnknownUnit}
	}
	g.supersedes[a] = append(g.supersedes[a], b)
	g.supersededBy[b] = append(g.supersededBy[b], a)
	return nil
}

// UpdateStartingLessons recomputes, for every course, the set of lessons
// with no in-course DependsOn predecessor. Must be called after bulk
// additions before scheduling.
func (g *Graph) UpdateStartingLessons() {
	g.mu.Lock()
	defer g.mu.Unlock()

	for course, lessons := range g.lessonsOf {
		inCourse := make(map[domain.UnitId]bool, len(lessons))
		for _, l := range lessons {
			inCourse[l] = true
		}
		var starting []domain.UnitId
		for _, l := range lessons {
			hasInCoursePrereq := false
			for _, dep := range g.dependencies[l] {
				if inCourse[dep] {
					hasInCoursePrereq = true
					break
				}
			}
			if !hasInCoursePrereq {
				starting = append(starting, l)
			}
		}
		g.startingLessons[course] = starting
	}
}

// ─── Cycle detection ────────────────────────────────────────────────────

// CheckCycles reports whether any of DependsOn, Encompasses, or Supersedes
// is cyclic. Must be run once after loading.
func (g *Graph) CheckCycles() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if path := detectCycle(g.dependencies); path != nil {
		return domain.NewCycleDetected(path)
	}
	encAdj := make(map[domain.UnitId][]domain.UnitId, len(g.encompasses))
	for from, targets := range g.encompasses {
		for to := range targets {
			encAdj[from] = append(encAdj[from], to)
		}
	}
	if path := detectCycle(encAdj); path != nil {
		return domain.NewCycleDetected(path)
	}
	if path := detectCycle(g.supersedes); path != nil {
		return domain.NewCycleDetected(path)
	}
	return nil
}

// detectCycle runs a recursive three-color DFS over adj, returning the
// cycle path if one exists: a visit/parent walk turned into a
// white/gray/black cycle detector.
func detectCycle(adj map[domain.UnitId][]domain.UnitId) []domain.UnitId {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[domain.UnitId]int)
	parent := make(map[domain.UnitId]domain.UnitId)

	nodes := make([]domain.UnitId, 0, len(adj))
	for n := range adj {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })

	var cyclePath []domain.UnitId

	var visit func(domain.UnitId) bool
	visit = func(u domain.UnitId) bool {
		color[u] = gray
		for _, v := range adj[u] {
			switch color[v] {
			case white:
				parent[v] = u
				if visit(v) {
					return true
				}
			case gray:
				// Found a cycle; reconstruct u -> ... -> v -> u.
				cyclePath = []domain.UnitId{v}
				cur := u
				for cur != v {
					cyclePath = append(cyclePath, cur)
					p, ok := parent[cur]
					if !ok {
						break
					}
					cur = p
				}
				cyclePath = append(cyclePath, v)
				reverse(cyclePath)
				return true
			}
		}
		color[u] = black
		return false
	}

	for _, n := range nodes {
		if color[n] == white {
			if visit(n) {
				return cyclePath
			}
		}
	}
	return nil
}

func reverse(ids []domain.UnitId) {
	for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
		ids[i], ids[j] = ids[j], ids[i]
	}
}

// ─── Queries ─────────────────────────────────────────────────────────────

func (g *Graph) UnitType(id domain.UnitId) (domain.UnitType, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	rec, ok := g.units[id]
	return rec.utype, ok
}

func (g *Graph) ParentLesson(exerciseID domain.UnitId) (domain.UnitId, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	rec, ok := g.units[exerciseID]
	if !ok || rec.utype != domain.UnitExercise {
		return "", false
	}
	return rec.parent, true
}

func (g *Graph) ParentCourse(lessonID domain.UnitId) (domain.UnitId, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	rec, ok := g.units[lessonID]
	if !ok || rec.utype != domain.UnitLesson {
		return "", false
	}
	return rec.parent, true
}

func (g *Graph) Dependencies(id domain.UnitId) []domain.UnitId {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]domain.UnitId(nil), g.dependencies[id]...)
}

func (g *Graph) Dependents(id domain.UnitId) []domain.UnitId {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]domain.UnitId(nil), g.dependents[id]...)
}

func (g *Graph) Encompasses(id domain.UnitId) []domain.WeightedUnit {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return weightedSlice(g.encompasses[id])
}

func (g *Graph) EncompassedBy(id domain.UnitId) []domain.WeightedUnit {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return weightedSlice(g.encompassedBy[id])
}

func weightedSlice(m map[domain.UnitId]float32) []domain.WeightedUnit {
	if len(m) == 0 {
		return nil
	}
	out := make([]domain.WeightedUnit, 0, len(m))
	for id, w := range m {
		out = append(out, domain.WeightedUnit{Unit: id, Weight: w})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Unit < out[j].Unit })
	return out
}

func (g *Graph) Supersedes(id domain.UnitId) []domain.UnitId {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]domain.UnitId(nil), g.supersedes[id]...)
}

func (g *Graph) SupersededBy(id domain.UnitId) []domain.UnitId {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]domain.UnitId(nil), g.supersededBy[id]...)
}

func (g *Graph) Lessons(courseID domain.UnitId) []domain.UnitId {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]domain.UnitId(nil), g.lessonsOf[courseID]...)
}

func (g *Graph) Exercises(lessonID domain.UnitId) []domain.UnitId {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]domain.UnitId(nil), g.exercisesOf[lessonID]...)
}

func (g *Graph) StartingLessons(courseID domain.UnitId) []domain.UnitId {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]domain.UnitId(nil), g.startingLessons[courseID]...)
}

// DependencySinks returns courses with no DependsOn predecessors of their
// own: foundational courses with no outstanding prerequisite course, the
// course-level analogue of a course's starting lessons. These are the
// traversal roots the BFS begins from and walks forward into dependents
// from — a course with unmet dependencies of its own could never be
// reached by walking forward along reverse-DependsOn edges.
func (g *Graph) DependencySinks() []domain.UnitId {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var sinks []domain.UnitId
	for id, rec := range g.units {
		if rec.utype == domain.UnitCourse && len(g.dependencies[id]) == 0 {
			sinks = append(sinks, id)
		}
	}
	sort.Slice(sinks, func(i, j int) bool { return sinks[i] < sinks[j] })
	return sinks
}

func (g *Graph) Metadata(id domain.UnitId) (domain.Metadata, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	m, ok := g.metadata[id]
	return m, ok
}

func (g *Graph) ExerciseManifest(id domain.UnitId) (domain.ExerciseManifest, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	m, ok := g.manifests[id]
	return m, ok
}

// ─── Debug export ───────────────────────────────────────────────────────

// GenerateDotGraph returns a DOT-compatible textual representation of the
// graph for debugging. highlight, if non-empty, renders the listed units
// with a distinct fill color.
func (g *Graph) GenerateDotGraph(highlight []domain.UnitId) string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	hl := make(map[domain.UnitId]bool, len(highlight))
	for _, id := range highlight {
		hl[id] = true
	}

	var b strings.Builder
	b.WriteString("digraph units {\n")
	ids := make([]domain.UnitId, 0, len(g.units))
	for id := range g.units {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		shape := "box"
		switch g.units[id].utype {
		case domain.UnitCourse:
			shape = "doublebox"
		case domain.UnitLesson:
			shape = "box"
		case domain.UnitExercise:
			shape = "ellipse"
		}
		if hl[id] {
			fmt.Fprintf(&b, "  %q [shape=%s, style=filled, fillcolor=lightblue];\n", id, shape)
		} else {
			fmt.Fprintf(&b, "  %q [shape=%s];\n", id, shape)
		}
	}
	for _, id := range ids {
		for _, dep := range g.dependencies[id] {
			fmt.Fprintf(&b, "  %q -> %q [label=\"depends_on\"];\n", id, dep)
		}
		for _, b2 := range g.supersedes[id] {
			fmt.Fprintf(&b, "  %q -> %q [label=\"supersedes\", style=dashed];\n", id, b2)
		}
	}
	b.WriteString("}\n")
	return b.String()
}
