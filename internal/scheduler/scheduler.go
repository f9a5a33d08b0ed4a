// Package scheduler implements CandidateSelector, the traversal that turns
// a unit graph plus its durable stores into a weighted, filtered batch of
// exercises ready for practice.
package scheduler

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/trane-project/scheduler-core/internal/domain"
	"github.com/trane-project/scheduler-core/internal/filter"
	"github.com/trane-project/scheduler-core/internal/observability"
)

// CandidateSelector is the entry point for get_exercise_batch and
// score_exercise. It owns no state of its own beyond an RNG; all durable
// state lives in the injected stores.
type CandidateSelector struct {
	graph      domain.Graph
	cache      domain.ScoreCache
	scores     domain.ScoreStore
	rewards    domain.RewardStore
	blacklist  domain.BlacklistStore
	reviewList domain.ReviewListStore
	prop       propagator
	opts       domain.SchedulerOptions
	weightCfg  WeightConfig
	pqCfg      PriorityQueueConfig
	rng        *rand.Rand
	now        domain.Clock
}

// propagator is the subset of propagate.Propagator's surface CandidateSelector
// depends on, kept narrow so tests can substitute a fake.
type propagator interface {
	Propagate(exerciseID domain.UnitId, score domain.MasteryScore) []domain.UnitRewardEntry
}

// New constructs a CandidateSelector. now defaults to time.Now if nil; a
// zero opts.RandSeed seeds the RNG from the current time, otherwise the
// seed is pinned for deterministic batches.
func New(
	graph domain.Graph,
	cache domain.ScoreCache,
	scores domain.ScoreStore,
	rewards domain.RewardStore,
	blacklist domain.BlacklistStore,
	reviewList domain.ReviewListStore,
	prop propagator,
	opts domain.SchedulerOptions,
	now domain.Clock,
) *CandidateSelector {
	if now == nil {
		now = time.Now
	}
	seed := opts.RandSeed
	if seed == 0 {
		seed = now().UnixNano()
	}
	return &CandidateSelector{
		graph:      graph,
		cache:      cache,
		scores:     scores,
		rewards:    rewards,
		blacklist:  blacklist,
		reviewList: reviewList,
		prop:       prop,
		opts:       opts,
		weightCfg:  DefaultWeightConfig(),
		pqCfg:      DefaultPriorityQueueConfig(),
		rng:        rand.New(rand.NewSource(seed)),
		now:        now,
	}
}

// ScoreExercise records a trial, propagates its reward to encompassing
// units, and invalidates the affected cache entries — in that order, so a
// reader that observes the new score already sees the new reward.
func (s *CandidateSelector) ScoreExercise(ctx context.Context, exerciseID domain.UnitId, score domain.MasteryScore, timestamp int64) error {
	if !score.Valid() {
		return &domain.SchedulerError{Unit: exerciseID, Err: domain.ErrInvalidScore}
	}
	if err := s.scores.RecordExerciseScore(ctx, exerciseID, score, timestamp); err != nil {
		return &domain.SchedulerError{Unit: exerciseID, Err: err}
	}
	s.cache.NotePresence(exerciseID)

	for _, entry := range s.prop.Propagate(exerciseID, score) {
		if err := s.rewards.RecordUnitReward(ctx, entry.Unit, entry.Reward); err != nil {
			return &domain.SchedulerError{Unit: entry.Unit, Err: err}
		}
		s.cache.NotePresence(entry.Unit)
		s.cache.Invalidate(entry.Unit)
	}

	s.cache.InvalidateForTrial(exerciseID)
	return nil
}

// candidate is one exercise surviving traversal, carrying the inputs
// needed to compute its sampling weight.
type candidate struct {
	exercise     domain.UnitId
	masteryScore float64
	lessonReward float64
}

// GetExerciseBatch runs the full selection procedure: frontier traversal
// from dependency sinks (or filter-restricted roots), blacklist/review-list
// pruning, supersedes handling, the active filter predicate, candidate
// capping, and weighted sampling without replacement.
func (s *CandidateSelector) GetExerciseBatch(ctx context.Context, ef ExerciseFilter) ([]domain.BatchEntry, error) {
	start := time.Now()
	defer func() { observability.BatchDuration.Observe(time.Since(start).Seconds()) }()

	predicate, roots, err := s.compileFilter(ctx, ef)
	if err != nil {
		return nil, err
	}

	candidates, err := s.collectCandidates(ctx, roots, predicate)
	if err != nil {
		return nil, err
	}
	observability.CandidatesFound.Observe(float64(len(candidates)))
	if len(candidates) == 0 {
		return nil, &domain.SchedulerError{Err: domain.ErrEmptyCandidates}
	}

	sampleSize := s.opts.BatchSampleSize
	if sampleSize <= 0 || sampleSize > len(candidates) {
		sampleSize = len(candidates)
	}
	sampled := weightedSampleWithoutReplacement(s.rng, s.weightCfg, candidates, sampleSize)

	batchSize := s.opts.BatchSize
	if batchSize > 0 && batchSize < len(sampled) {
		sampled = sampled[:batchSize]
	}

	out := make([]domain.BatchEntry, 0, len(sampled))
	for _, c := range sampled {
		manifest, _ := s.graph.ExerciseManifest(c.exercise)
		out = append(out, domain.BatchEntry{ExerciseID: c.exercise, Manifest: manifest})
	}
	return out, nil
}

// compileFilter resolves an ExerciseFilter into a unit predicate and the
// set of lessons to start the frontier traversal from. A nil roots slice
// means "start from the graph's dependency sinks."
func (s *CandidateSelector) compileFilter(ctx context.Context, ef ExerciseFilter) (func(domain.UnitId) bool, []domain.UnitId, error) {
	switch f := ef.(type) {
	case nil:
		return func(domain.UnitId) bool { return true }, nil, nil
	case UnitCourseFilter:
		var roots []domain.UnitId
		for _, c := range f.CourseIDs {
			starting, err := s.courseStartingLessons(ctx, c)
			if err != nil {
				return nil, nil, err
			}
			roots = append(roots, starting...)
		}
		return func(domain.UnitId) bool { return true }, roots, nil
	case UnitLessonFilter:
		return func(domain.UnitId) bool { return true }, f.LessonIDs, nil
	case MetadataFilter:
		return filter.Compile(f.Filter, s.graph), nil, nil
	case ReviewListFilter:
		return s.reviewListPredicate(), nil, nil
	case SessionFilter:
		// A session filter is resolved per-slot by the caller; treated as
		// pass-through here since GetExerciseBatch samples one filter at a
		// time. Session playback lives one layer above CandidateSelector.
		return func(domain.UnitId) bool { return true }, nil, nil
	default:
		return nil, nil, &domain.SchedulerError{Err: domain.ErrInvalidFilter}
	}
}

func (s *CandidateSelector) reviewListPredicate() func(domain.UnitId) bool {
	entries, err := s.reviewList.Entries(context.Background())
	if err != nil {
		return func(domain.UnitId) bool { return false }
	}
	set := make(map[domain.UnitId]struct{}, len(entries))
	for _, e := range entries {
		set[e] = struct{}{}
	}
	return func(id domain.UnitId) bool {
		if _, ok := set[id]; ok {
			return true
		}
		lesson, ok := s.graph.ParentLesson(id)
		if !ok {
			return false
		}
		if _, ok := set[lesson]; ok {
			return true
		}
		course, ok := s.graph.ParentCourse(lesson)
		if !ok {
			return false
		}
		_, ok = set[course]
		return ok
	}
}

// collectCandidates traverses the lesson graph starting from roots (or the
// starting lessons of the graph's dependency sinks when roots is nil).
// Roots enter the frontier with their index as priority and unlocked
// dependents with priority 0; the frontier pops the lowest priority first,
// oldest first among equals. It skips blacklisted lessons and NotReady
// lessons, expands past
// Mastered and Superseded lessons without taking their exercises, and
// returns every exercise under a Ready lesson that passes predicate.
func (s *CandidateSelector) collectCandidates(ctx context.Context, roots []domain.UnitId, predicate func(domain.UnitId) bool) ([]candidate, error) {
	if roots == nil {
		for _, course := range s.graph.DependencySinks() {
			starting, err := s.courseStartingLessons(ctx, course)
			if err != nil {
				return nil, err
			}
			roots = append(roots, starting...)
		}
	}

	pq := NewPriorityQueue(s.pqCfg)
	visited := make(map[domain.UnitId]struct{})
	for i, r := range roots {
		pq.Push(HeapItem{Key: string(r), Priority: i})
		visited[r] = struct{}{}
	}

	var out []candidate
	for pq.Len() > 0 && len(out) < s.opts.MaxCandidates {
		item, ok := pq.Pop()
		if !ok {
			break
		}
		lessonID := domain.UnitId(item.Key)

		blacklisted, err := s.isBlacklisted(ctx, lessonID)
		if err != nil {
			return nil, &domain.SchedulerError{Unit: lessonID, Err: err}
		}
		if blacklisted {
			continue
		}

		state, err := s.lessonState(ctx, lessonID)
		if err != nil {
			return nil, err
		}

		switch state {
		case NotReady:
			continue
		case Superseded:
			s.expandDependents(ctx, lessonID, pq, visited)
			continue
		case Ready, Mastered:
			if state == Ready {
				cs, err := s.lessonCandidates(ctx, lessonID, predicate)
				if err != nil {
					return nil, err
				}
				out = append(out, cs...)
			}
			s.expandDependents(ctx, lessonID, pq, visited)
		}
	}
	if pq.Len() > 0 && len(out) >= s.opts.MaxCandidates {
		observability.CandidatesCapped.Inc()
	}
	return out, nil
}

// expandDependents pushes lessonID's in-course lesson dependents, and —
// when lessonID's parent course is now fully mastered or superseded —
// unlocks the starting lessons of every course that depends on it.
func (s *CandidateSelector) expandDependents(ctx context.Context, lessonID domain.UnitId, pq *PriorityQueue, visited map[domain.UnitId]struct{}) {
	push := func(id domain.UnitId) {
		if _, seen := visited[id]; seen {
			return
		}
		visited[id] = struct{}{}
		pq.Push(HeapItem{Key: string(id)})
	}

	for _, dep := range s.graph.Dependents(lessonID) {
		if t, ok := s.graph.UnitType(dep); ok && t == domain.UnitLesson {
			push(dep)
		}
	}

	course, ok := s.graph.ParentCourse(lessonID)
	if !ok {
		return
	}
	courseDone, err := s.courseComplete(ctx, course)
	if err != nil || !courseDone {
		return
	}
	for _, dep := range s.graph.Dependents(course) {
		if t, ok := s.graph.UnitType(dep); ok && t == domain.UnitCourse {
			starting, err := s.courseStartingLessons(ctx, dep)
			if err != nil {
				continue
			}
			for _, start := range starting {
				push(start)
			}
		}
	}
}

// courseStartingLessons returns courseID's starting lessons, or none if
// courseID itself is blacklisted or superseded — the course-level analogue
// of the per-lesson readiness check, since a course id never reaches
// lessonState otherwise (the traversal's priority queue only ever holds
// lesson ids).
func (s *CandidateSelector) courseStartingLessons(ctx context.Context, courseID domain.UnitId) ([]domain.UnitId, error) {
	blacklisted, err := s.isBlacklisted(ctx, courseID)
	if err != nil {
		return nil, &domain.SchedulerError{Unit: courseID, Err: err}
	}
	if blacklisted {
		return nil, nil
	}
	superseded, err := s.isSuperseded(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if superseded {
		return nil, nil
	}
	return s.graph.StartingLessons(courseID), nil
}

// isBlacklisted reports whether id is excluded from traversal: either
// directly blacklisted, or a descendant of a blacklisted lesson or course.
// Membership is tested ancestrally, since a unit may itself be clean while
// its own parent (or grandparent) is blacklisted.
func (s *CandidateSelector) isBlacklisted(ctx context.Context, id domain.UnitId) (bool, error) {
	ok, err := s.blacklist.Contains(ctx, id)
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}
	if lesson, isExercise := s.graph.ParentLesson(id); isExercise {
		ok, err := s.blacklist.Contains(ctx, lesson)
		if err != nil || ok {
			return ok, err
		}
		if course, ok := s.graph.ParentCourse(lesson); ok {
			return s.blacklist.Contains(ctx, course)
		}
		return false, nil
	}
	if course, isLesson := s.graph.ParentCourse(id); isLesson {
		return s.blacklist.Contains(ctx, course)
	}
	return false, nil
}

// courseComplete reports whether every lesson in courseID is Mastered or
// Superseded, meaning courses depending on it may begin.
func (s *CandidateSelector) courseComplete(ctx context.Context, courseID domain.UnitId) (bool, error) {
	for _, lesson := range s.graph.Lessons(courseID) {
		state, err := s.lessonState(ctx, lesson)
		if err != nil {
			return false, err
		}
		if state != Mastered && state != Superseded {
			return false, nil
		}
	}
	return true, nil
}

// lessonCandidates builds the candidate list for every non-blacklisted
// exercise under lessonID that passes predicate.
func (s *CandidateSelector) lessonCandidates(ctx context.Context, lessonID domain.UnitId, predicate func(domain.UnitId) bool) ([]candidate, error) {
	recentRewards, err := s.rewards.GetRewards(ctx, lessonID, 1)
	if err != nil {
		return nil, &domain.SchedulerError{Unit: lessonID, Err: err}
	}
	lessonReward := 0.0
	if len(recentRewards) > 0 {
		lessonReward = float64(recentRewards[0].Value * recentRewards[0].Weight)
	}

	var out []candidate
	for _, ex := range s.graph.Exercises(lessonID) {
		if !predicate(ex) {
			continue
		}
		blacklisted, err := s.isBlacklisted(ctx, ex)
		if err != nil {
			return nil, &domain.SchedulerError{Unit: ex, Err: err}
		}
		if blacklisted {
			continue
		}
		score, err := s.cache.Get(ctx, ex)
		if err != nil {
			return nil, &domain.SchedulerError{Unit: ex, Err: err}
		}
		out = append(out, candidate{exercise: ex, masteryScore: float64(score), lessonReward: lessonReward})
	}
	return out, nil
}

// weightedSampleWithoutReplacement draws k items from candidates using
// keyed weighted sampling (Efraimidis–Spirakis A-Res): each item gets a key
// u^(1/weight) for u ~ Uniform(0,1), and the k largest keys win.
func weightedSampleWithoutReplacement(rng *rand.Rand, cfg WeightConfig, candidates []candidate, k int) []candidate {
	type keyed struct {
		c   candidate
		key float64
	}
	items := make([]keyed, len(candidates))
	for i, c := range candidates {
		w := SelectionWeight(cfg, c.masteryScore, c.lessonReward)
		u := rng.Float64()
		if u <= 0 {
			u = 1e-12
		}
		items[i] = keyed{c: c, key: math.Pow(u, 1.0/w)}
	}
	for i := 1; i < len(items); i++ {
		j := i
		for j > 0 && items[j].key > items[j-1].key {
			items[j], items[j-1] = items[j-1], items[j]
			j--
		}
	}
	if k > len(items) {
		k = len(items)
	}
	out := make([]candidate, k)
	for i := 0; i < k; i++ {
		out[i] = items[i].c
	}
	return out
}
