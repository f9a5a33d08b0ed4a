package cache

import (
	"context"
	"math"
	"strings"
	"sync"

	"github.com/trane-project/scheduler-core/internal/domain"
	"github.com/trane-project/scheduler-core/internal/observability"
)

// ScoreCache memoizes the derived per-unit mastery score, backed by a
// ScoreStore/RewardStore pair and a Graph for hierarchy traversal. It
// implements domain.ScoreCache.
//
// Interior mutability follows a lockless-read-on-hit, short-critical-
// section-on-fill discipline: Get takes the read lock first, and only
// escalates to the write lock while actually inserting a freshly derived
// value.
type ScoreCache struct {
	graph     domain.Graph
	scores    domain.ScoreStore
	rewards   domain.RewardStore
	blacklist domain.BlacklistStore
	opts      domain.SchedulerOptions

	existence *BloomFilter // advisory: "has this unit ever recorded a trial or reward"

	mu      sync.RWMutex
	entries map[domain.UnitId]float32
}

// NewScoreCache wires a ScoreCache over the given graph, stores, and
// blacklist — the blacklist handle lets container derivation exclude
// blacklisted children from the mean, ancestrally.
func NewScoreCache(graph domain.Graph, scores domain.ScoreStore, rewards domain.RewardStore, blacklist domain.BlacklistStore, opts domain.SchedulerOptions) *ScoreCache {
	return &ScoreCache{
		graph:     graph,
		scores:    scores,
		rewards:   rewards,
		blacklist: blacklist,
		opts:      opts,
		existence: NewBloomFilter(DefaultBloomConfig()),
		entries:   make(map[domain.UnitId]float32),
	}
}

// NotePresence records that unitID now has at least one trial or reward,
// so future Get calls can't be short-circuited by the existence filter.
// Called by the wiring layer right after RecordExerciseScore / RecordUnitReward.
func (c *ScoreCache) NotePresence(unitID domain.UnitId) {
	c.existence.Add(string(unitID))
}

// Get returns the cached derived mastery score for id, computing and
// storing it first if absent.
func (c *ScoreCache) Get(ctx context.Context, id domain.UnitId) (float32, error) {
	c.mu.RLock()
	if v, ok := c.entries[id]; ok {
		c.mu.RUnlock()
		observability.CacheHits.Inc()
		return v, nil
	}
	c.mu.RUnlock()
	observability.CacheMisses.Inc()

	v, err := c.derive(ctx, id)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	c.entries[id] = v
	c.mu.Unlock()

	return v, nil
}

// Invalidate drops id's cached entry.
func (c *ScoreCache) Invalidate(id domain.UnitId) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
}

// InvalidateWithPrefix drops every cached entry whose id begins with prefix.
func (c *ScoreCache) InvalidateWithPrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id := range c.entries {
		if strings.HasPrefix(string(id), prefix) {
			delete(c.entries, id)
		}
	}
}

// InvalidateForTrial invalidates the exercise, its parent lesson, and its
// grandparent course after a new trial is recorded for exerciseID.
func (c *ScoreCache) InvalidateForTrial(exerciseID domain.UnitId) {
	c.Invalidate(exerciseID)
	lesson, ok := c.graph.ParentLesson(exerciseID)
	if !ok {
		return
	}
	c.Invalidate(lesson)
	if course, ok := c.graph.ParentCourse(lesson); ok {
		c.Invalidate(course)
	}
}

// derive computes the mastery score for id from scratch, following the
// per-unit-type rules: exercises from their own trial history, lessons
// from the mean of their non-blacklisted exercises, courses from the mean
// of their non-blacklisted lessons; all blended with recent rewards.
func (c *ScoreCache) derive(ctx context.Context, id domain.UnitId) (float32, error) {
	utype, ok := c.graph.UnitType(id)
	if !ok {
		return 0, &domain.SchedulerError{Unit: id, Err: domain.ErrUnknownUnit}
	}

	var base float32
	var err error
	switch utype {
	case domain.UnitExercise:
		if !c.existence.Contains(string(id)) {
			base = domain.UnscoredSentinel
		} else {
			base, err = c.deriveExercise(ctx, id)
		}
	case domain.UnitLesson:
		base, err = c.deriveContainer(ctx, c.graph.Exercises(id))
	case domain.UnitCourse:
		base, err = c.deriveContainer(ctx, c.graph.Lessons(id))
	}
	if err != nil {
		return 0, err
	}
	return c.blendReward(ctx, id, base)
}

// deriveExercise computes the weighted average of up to NumTrials most
// recent trials, weights w_i = 2^(-i) with i=0 newest, clamped to [1,5].
func (c *ScoreCache) deriveExercise(ctx context.Context, exerciseID domain.UnitId) (float32, error) {
	trials, err := c.scores.GetScores(ctx, exerciseID, c.opts.NumTrials)
	if err != nil {
		return 0, &domain.SchedulerError{Unit: exerciseID, Err: err}
	}
	if len(trials) == 0 {
		return domain.UnscoredSentinel, nil
	}

	var weightedSum, weightTotal float64
	for i, trial := range trials {
		w := math.Pow(2, -float64(i))
		weightedSum += w * float64(trial.Score)
		weightTotal += w
	}
	return clamp(float32(weightedSum/weightTotal), 1.0, 5.0), nil
}

// deriveContainer computes the mean mastery across non-blacklisted
// children, recursing through Get so intermediate results are cached too.
// Blacklist membership is tested ancestrally via blacklisted, since a
// child may itself be clean while its own parent (or grandparent) is
// blacklisted.
func (c *ScoreCache) deriveContainer(ctx context.Context, children []domain.UnitId) (float32, error) {
	if len(children) == 0 {
		return domain.UnscoredSentinel, nil
	}
	var sum float32
	var n int
	for _, child := range children {
		excluded, err := c.blacklisted(ctx, child)
		if err != nil {
			return 0, err
		}
		if excluded {
			continue
		}
		score, err := c.Get(ctx, child)
		if err != nil {
			return 0, err
		}
		sum += score
		n++
	}
	if n == 0 {
		return domain.UnscoredSentinel, nil
	}
	return sum / float32(n), nil
}

// blacklisted reports whether id is excluded from aggregation: either
// directly blacklisted, or a descendant of a blacklisted lesson or course.
func (c *ScoreCache) blacklisted(ctx context.Context, id domain.UnitId) (bool, error) {
	ok, err := c.blacklist.Contains(ctx, id)
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}
	if lesson, isExercise := c.graph.ParentLesson(id); isExercise {
		ok, err := c.blacklist.Contains(ctx, lesson)
		if err != nil || ok {
			return ok, err
		}
		if course, ok := c.graph.ParentCourse(lesson); ok {
			return c.blacklist.Contains(ctx, course)
		}
		return false, nil
	}
	if course, isLesson := c.graph.ParentCourse(id); isLesson {
		return c.blacklist.Contains(ctx, course)
	}
	return false, nil
}

// blendReward folds in up to NumRewards recent UnitRewards, each weighted
// by its own stored weight, then clamps to [1,5].
func (c *ScoreCache) blendReward(ctx context.Context, id domain.UnitId, base float32) (float32, error) {
	rewards, err := c.rewards.GetRewards(ctx, id, c.opts.NumRewards)
	if err != nil {
		return 0, &domain.SchedulerError{Unit: id, Err: err}
	}
	var r float32
	for _, reward := range rewards {
		r += reward.Value * reward.Weight
	}
	return clamp(base+r, 1.0, 5.0), nil
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

var _ domain.ScoreCache = (*ScoreCache)(nil)
