package scheduler

import (
	"context"
	"testing"

	"github.com/trane-project/scheduler-core/internal/domain"
	"github.com/trane-project/scheduler-core/internal/filter"
)

// fakeGraph is a minimal in-memory domain.Graph double built for scheduler
// tests: courses contain lessons in declaration order, lessons contain
// exercises, and DependsOn/Encompasses/Supersedes are stored as plain
// adjacency maps.
type fakeGraph struct {
	types      map[domain.UnitId]domain.UnitType
	lessons    map[domain.UnitId][]domain.UnitId // course -> lessons
	exercises  map[domain.UnitId][]domain.UnitId // lesson -> exercises
	parentL    map[domain.UnitId]domain.UnitId   // exercise -> lesson
	parentC    map[domain.UnitId]domain.UnitId   // lesson -> course
	deps       map[domain.UnitId][]domain.UnitId
	dependents map[domain.UnitId][]domain.UnitId
	supersedes map[domain.UnitId][]domain.UnitId
	supersBy   map[domain.UnitId][]domain.UnitId
	starting   map[domain.UnitId][]domain.UnitId
	meta       map[domain.UnitId]domain.Metadata
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{
		types:      map[domain.UnitId]domain.UnitType{},
		lessons:    map[domain.UnitId][]domain.UnitId{},
		exercises:  map[domain.UnitId][]domain.UnitId{},
		parentL:    map[domain.UnitId]domain.UnitId{},
		parentC:    map[domain.UnitId]domain.UnitId{},
		deps:       map[domain.UnitId][]domain.UnitId{},
		dependents: map[domain.UnitId][]domain.UnitId{},
		supersedes: map[domain.UnitId][]domain.UnitId{},
		supersBy:   map[domain.UnitId][]domain.UnitId{},
		starting:   map[domain.UnitId][]domain.UnitId{},
		meta:       map[domain.UnitId]domain.Metadata{},
	}
}

func (g *fakeGraph) addCourse(id domain.UnitId) {
	g.types[id] = domain.UnitCourse
}

func (g *fakeGraph) addLesson(id, course domain.UnitId) {
	g.types[id] = domain.UnitLesson
	g.parentC[id] = course
	g.lessons[course] = append(g.lessons[course], id)
	if len(g.lessons[course]) == 1 {
		g.starting[course] = append(g.starting[course], id)
	}
}

func (g *fakeGraph) addExercise(id, lesson domain.UnitId) {
	g.types[id] = domain.UnitExercise
	g.parentL[id] = lesson
	g.exercises[lesson] = append(g.exercises[lesson], id)
}

func (g *fakeGraph) link(from, to domain.UnitId) { // from depends on to
	g.deps[from] = append(g.deps[from], to)
	g.dependents[to] = append(g.dependents[to], from)
}

func (g *fakeGraph) supersede(newer, older domain.UnitId) {
	g.supersedes[newer] = append(g.supersedes[newer], older)
	g.supersBy[older] = append(g.supersBy[older], newer)
}

func (g *fakeGraph) setMeta(id domain.UnitId, key string, values ...string) {
	if g.meta[id] == nil {
		g.meta[id] = domain.Metadata{}
	}
	g.meta[id][key] = values
}

func (g *fakeGraph) UnitType(id domain.UnitId) (domain.UnitType, bool) {
	t, ok := g.types[id]
	return t, ok
}
func (g *fakeGraph) ParentLesson(id domain.UnitId) (domain.UnitId, bool) {
	l, ok := g.parentL[id]
	return l, ok
}
func (g *fakeGraph) ParentCourse(id domain.UnitId) (domain.UnitId, bool) {
	c, ok := g.parentC[id]
	return c, ok
}
func (g *fakeGraph) Dependencies(id domain.UnitId) []domain.UnitId { return g.deps[id] }
func (g *fakeGraph) Dependents(id domain.UnitId) []domain.UnitId   { return g.dependents[id] }
func (g *fakeGraph) Encompasses(id domain.UnitId) []domain.WeightedUnit {
	return nil
}
func (g *fakeGraph) EncompassedBy(id domain.UnitId) []domain.WeightedUnit {
	return nil
}
func (g *fakeGraph) Supersedes(id domain.UnitId) []domain.UnitId    { return g.supersedes[id] }
func (g *fakeGraph) SupersededBy(id domain.UnitId) []domain.UnitId  { return g.supersBy[id] }
func (g *fakeGraph) Lessons(id domain.UnitId) []domain.UnitId       { return g.lessons[id] }
func (g *fakeGraph) Exercises(id domain.UnitId) []domain.UnitId     { return g.exercises[id] }
func (g *fakeGraph) StartingLessons(id domain.UnitId) []domain.UnitId {
	return g.starting[id]
}
func (g *fakeGraph) DependencySinks() []domain.UnitId {
	var out []domain.UnitId
	for id, t := range g.types {
		if t == domain.UnitCourse && len(g.deps[id]) == 0 {
			out = append(out, id)
		}
	}
	return out
}
func (g *fakeGraph) Metadata(id domain.UnitId) (domain.Metadata, bool) {
	m, ok := g.meta[id]
	return m, ok
}
func (g *fakeGraph) ExerciseManifest(id domain.UnitId) (domain.ExerciseManifest, bool) {
	return domain.ExerciseManifest{ID: id}, true
}

// fakeCache returns a fixed score per unit, defaulting to UnscoredSentinel,
// and records the exercises passed to InvalidateForTrial.
type fakeCache struct {
	scores         map[domain.UnitId]float32
	invalidatedFor []domain.UnitId
}

func newFakeCache() *fakeCache { return &fakeCache{scores: map[domain.UnitId]float32{}} }

func (c *fakeCache) Get(ctx context.Context, id domain.UnitId) (float32, error) {
	if s, ok := c.scores[id]; ok {
		return s, nil
	}
	return domain.UnscoredSentinel, nil
}
func (c *fakeCache) Invalidate(id domain.UnitId)        {}
func (c *fakeCache) InvalidateWithPrefix(prefix string) {}
func (c *fakeCache) InvalidateForTrial(id domain.UnitId) {
	c.invalidatedFor = append(c.invalidatedFor, id)
}
func (c *fakeCache) NotePresence(id domain.UnitId) {}

// fakeScoreStore and fakeRewardStore record nothing interesting beyond
// what the tests inspect directly.
type fakeScoreStore struct {
	trials map[domain.UnitId][]domain.ExerciseTrial
}

func newFakeScoreStore() *fakeScoreStore {
	return &fakeScoreStore{trials: map[domain.UnitId][]domain.ExerciseTrial{}}
}
func (s *fakeScoreStore) GetScores(ctx context.Context, id domain.UnitId, n int) ([]domain.ExerciseTrial, error) {
	all := s.trials[id]
	if n > 0 && n < len(all) {
		return all[len(all)-n:], nil
	}
	return all, nil
}
func (s *fakeScoreStore) RecordExerciseScore(ctx context.Context, id domain.UnitId, score domain.MasteryScore, ts int64) error {
	s.trials[id] = append(s.trials[id], domain.ExerciseTrial{Score: score, Timestamp: ts})
	return nil
}
func (s *fakeScoreStore) TrimScores(ctx context.Context, n int) error          { return nil }
func (s *fakeScoreStore) RemoveWithPrefix(ctx context.Context, p string) error { return nil }

type fakeRewardStore struct {
	rewards map[domain.UnitId][]domain.UnitReward
}

func newFakeRewardStore() *fakeRewardStore {
	return &fakeRewardStore{rewards: map[domain.UnitId][]domain.UnitReward{}}
}
func (r *fakeRewardStore) GetRewards(ctx context.Context, id domain.UnitId, n int) ([]domain.UnitReward, error) {
	all := r.rewards[id]
	if n > 0 && n < len(all) {
		return all[len(all)-n:], nil
	}
	return all, nil
}
func (r *fakeRewardStore) RecordUnitReward(ctx context.Context, id domain.UnitId, reward domain.UnitReward) error {
	r.rewards[id] = append(r.rewards[id], reward)
	return nil
}
func (r *fakeRewardStore) TrimRewards(ctx context.Context, n int) error         { return nil }
func (r *fakeRewardStore) RemoveWithPrefix(ctx context.Context, p string) error { return nil }

type fakeSet struct {
	ids map[domain.UnitId]struct{}
}

func newFakeSet() *fakeSet { return &fakeSet{ids: map[domain.UnitId]struct{}{}} }

func (s *fakeSet) Add(ctx context.Context, id domain.UnitId) error {
	s.ids[id] = struct{}{}
	return nil
}
func (s *fakeSet) Remove(ctx context.Context, id domain.UnitId) error {
	delete(s.ids, id)
	return nil
}
func (s *fakeSet) RemovePrefix(ctx context.Context, prefix string) error {
	for id := range s.ids {
		if len(id) >= len(prefix) && id[:len(prefix)] == domain.UnitId(prefix) {
			delete(s.ids, id)
		}
	}
	return nil
}
func (s *fakeSet) Contains(ctx context.Context, id domain.UnitId) (bool, error) {
	_, ok := s.ids[id]
	return ok, nil
}
func (s *fakeSet) Entries(ctx context.Context) ([]domain.UnitId, error) {
	var out []domain.UnitId
	for id := range s.ids {
		out = append(out, id)
	}
	return out, nil
}

type fakePropagator struct{ calls int }

func (p *fakePropagator) Propagate(exerciseID domain.UnitId, score domain.MasteryScore) []domain.UnitRewardEntry {
	p.calls++
	return nil
}

// buildBasicGraph builds course C1 with two lessons L1, L2 (L2 depends on
// L1), each with two exercises.
func buildBasicGraph() *fakeGraph {
	g := newFakeGraph()
	g.addCourse("C1")
	g.addLesson("L1", "C1")
	g.addLesson("L2", "C1")
	g.link("L2", "L1")
	g.addExercise("L1E1", "L1")
	g.addExercise("L1E2", "L1")
	g.addExercise("L2E1", "L2")
	g.addExercise("L2E2", "L2")
	return g
}

// buildTwoCourseGraph builds two independent single-lesson courses, C0/L0
// and C1/L1, neither depending on the other — both are dependency sinks.
func buildTwoCourseGraph() *fakeGraph {
	g := newFakeGraph()
	g.addCourse("C0")
	g.addLesson("L0", "C0")
	g.addExercise("L0E1", "L0")
	g.addExercise("L0E2", "L0")
	g.addCourse("C1")
	g.addLesson("L1", "C1")
	g.addExercise("L1E1", "L1")
	g.addExercise("L1E2", "L1")
	return g
}

func newTestSelector(g *fakeGraph, cache *fakeCache, scores *fakeScoreStore, rewards *fakeRewardStore, bl, rl *fakeSet) *CandidateSelector {
	opts := domain.DefaultSchedulerOptions()
	opts.RandSeed = 42
	return New(g, cache, scores, rewards, bl, rl, &fakePropagator{}, opts, nil)
}

func TestGetExerciseBatch_OnlyFirstLessonReadyInitially(t *testing.T) {
	g := buildBasicGraph()
	cache := newFakeCache()
	scores := newFakeScoreStore()
	rewards := newFakeRewardStore()
	sel := newTestSelector(g, cache, scores, rewards, newFakeSet(), newFakeSet())

	batch, err := sel.GetExerciseBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("GetExerciseBatch() error = %v", err)
	}
	for _, entry := range batch {
		if entry.ExerciseID == "L2E1" || entry.ExerciseID == "L2E2" {
			t.Fatalf("L2 should be NotReady (L1 unmastered), got candidate %s", entry.ExerciseID)
		}
	}
	if len(batch) == 0 {
		t.Fatal("expected candidates from L1")
	}
}

func TestGetExerciseBatch_MasteredLessonUnlocksDependent(t *testing.T) {
	g := buildBasicGraph()
	cache := newFakeCache()
	cache.scores["L1"] = 5.0 // mastered
	scores := newFakeScoreStore()
	rewards := newFakeRewardStore()
	sel := newTestSelector(g, cache, scores, rewards, newFakeSet(), newFakeSet())

	batch, err := sel.GetExerciseBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("GetExerciseBatch() error = %v", err)
	}
	found := false
	for _, entry := range batch {
		if entry.ExerciseID == "L2E1" || entry.ExerciseID == "L2E2" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected L2 exercises once L1 is mastered")
	}
}

func TestGetExerciseBatch_BlacklistedLessonExcluded(t *testing.T) {
	g := buildBasicGraph()
	cache := newFakeCache()
	scores := newFakeScoreStore()
	rewards := newFakeRewardStore()
	bl := newFakeSet()
	bl.Add(context.Background(), "L1")
	sel := newTestSelector(g, cache, scores, rewards, bl, newFakeSet())

	_, err := sel.GetExerciseBatch(context.Background(), nil)
	if err == nil {
		t.Fatal("expected ErrEmptyCandidates since L1 blacklisted and L2 is NotReady")
	}
}

func TestGetExerciseBatch_SupersededLessonSkippedButExpands(t *testing.T) {
	g := buildBasicGraph()
	g.supersede("L2", "L1") // L2 supersedes L1
	cache := newFakeCache()
	scores := newFakeScoreStore()
	// Make L2's exercises reliably mastered so L2 counts as superseding.
	for i := 0; i < 3; i++ {
		scores.RecordExerciseScore(context.Background(), "L2E1", domain.MasteryFive, int64(i))
		scores.RecordExerciseScore(context.Background(), "L2E2", domain.MasteryFive, int64(i))
	}
	rewards := newFakeRewardStore()
	sel := newTestSelector(g, cache, scores, rewards, newFakeSet(), newFakeSet())

	batch, err := sel.GetExerciseBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("GetExerciseBatch() error = %v", err)
	}
	for _, entry := range batch {
		if entry.ExerciseID == "L1E1" || entry.ExerciseID == "L1E2" {
			t.Fatalf("L1 should be superseded and contribute no exercises, got %s", entry.ExerciseID)
		}
	}
}

func TestGetExerciseBatch_CourseLevelSupersedeExcludesWholeCourse(t *testing.T) {
	g := buildTwoCourseGraph()
	g.supersede("C1", "C0") // C1 supersedes C0 at the course level
	cache := newFakeCache()
	scores := newFakeScoreStore()
	// Make every exercise under C1 reliably mastered so C1 counts as superseding.
	for i := 0; i < 3; i++ {
		scores.RecordExerciseScore(context.Background(), "L1E1", domain.MasteryFive, int64(i))
		scores.RecordExerciseScore(context.Background(), "L1E2", domain.MasteryFive, int64(i))
	}
	rewards := newFakeRewardStore()
	sel := newTestSelector(g, cache, scores, rewards, newFakeSet(), newFakeSet())

	batch, err := sel.GetExerciseBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("GetExerciseBatch() error = %v", err)
	}
	for _, entry := range batch {
		if entry.ExerciseID == "L0E1" || entry.ExerciseID == "L0E2" {
			t.Fatalf("C0 should be superseded at the course level and contribute no exercises, got %s", entry.ExerciseID)
		}
	}
	if len(batch) == 0 {
		t.Fatal("expected C1 to still contribute exercises")
	}
}

func TestGetExerciseBatch_CourseBlacklistExcludesDescendantLessonsAndExercises(t *testing.T) {
	g := buildTwoCourseGraph()
	cache := newFakeCache()
	scores := newFakeScoreStore()
	rewards := newFakeRewardStore()
	bl := newFakeSet()
	bl.Add(context.Background(), "C0")
	sel := newTestSelector(g, cache, scores, rewards, bl, newFakeSet())

	batch, err := sel.GetExerciseBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("GetExerciseBatch() error = %v", err)
	}
	for _, entry := range batch {
		if entry.ExerciseID == "L0E1" || entry.ExerciseID == "L0E2" {
			t.Fatalf("blacklisting C0 should exclude its lesson's exercises ancestrally, got %s", entry.ExerciseID)
		}
	}
	if len(batch) == 0 {
		t.Fatal("expected C1 exercises to still be returned")
	}
}

func TestGetExerciseBatch_MetadataFilterRestrictsCandidates(t *testing.T) {
	g := buildBasicGraph()
	g.setMeta("L1", "topic", "algebra")
	cache := newFakeCache()
	scores := newFakeScoreStore()
	rewards := newFakeRewardStore()
	sel := newTestSelector(g, cache, scores, rewards, newFakeSet(), newFakeSet())

	ef := MetadataFilter{Filter: filter.LessonFilter{Include: true, Key: "topic", Value: "algebra"}}
	batch, err := sel.GetExerciseBatch(context.Background(), ef)
	if err != nil {
		t.Fatalf("GetExerciseBatch() error = %v", err)
	}
	if len(batch) == 0 {
		t.Fatal("expected L1 exercises to pass the topic=algebra filter")
	}
}

func TestScoreExercise_RecordsTrialAndInvalidatesCache(t *testing.T) {
	g := buildBasicGraph()
	cache := newFakeCache()
	scores := newFakeScoreStore()
	rewards := newFakeRewardStore()
	sel := newTestSelector(g, cache, scores, rewards, newFakeSet(), newFakeSet())

	if err := sel.ScoreExercise(context.Background(), "L1E1", domain.MasteryFour, 100); err != nil {
		t.Fatalf("ScoreExercise() error = %v", err)
	}
	got := scores.trials["L1E1"]
	if len(got) != 1 || got[0].Score != domain.MasteryFour {
		t.Fatalf("trials = %+v, want one MasteryFour trial", got)
	}
	if len(cache.invalidatedFor) != 1 || cache.invalidatedFor[0] != "L1E1" {
		t.Fatalf("InvalidateForTrial calls = %v, want [L1E1]", cache.invalidatedFor)
	}
}

func TestScoreExercise_RejectsInvalidScore(t *testing.T) {
	g := buildBasicGraph()
	sel := newTestSelector(g, newFakeCache(), newFakeScoreStore(), newFakeRewardStore(), newFakeSet(), newFakeSet())
	err := sel.ScoreExercise(context.Background(), "L1E1", domain.MasteryScore(2.5), 100)
	if err == nil {
		t.Fatal("expected error for an invalid mastery score")
	}
}
