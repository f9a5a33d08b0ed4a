// Package propagate implements RewardPropagator: given a scored exercise,
// it walks the unit graph along encompassing edges and produces the set of
// (unit, UnitReward) pairs to persist.
package propagate

import (
	"time"

	"github.com/trane-project/scheduler-core/internal/domain"
	"github.com/trane-project/scheduler-core/internal/observability"
)

// seed is one pending worklist item: reward flowing into `unit` with the
// given signed value and attenuated edge weight.
type seed struct {
	unit  domain.UnitId
	value float32
	edge  float32
}

// Propagator computes reward propagation for a single graded exercise.
type Propagator struct {
	graph domain.Graph
	c     domain.PropagationConstants
	now   domain.Clock
}

// New constructs a Propagator over graph using the given constants. now
// defaults to time.Now if nil.
func New(graph domain.Graph, constants domain.PropagationConstants, now domain.Clock) *Propagator {
	if now == nil {
		now = time.Now
	}
	return &Propagator{graph: graph, c: constants, now: now}
}

// Propagate resolves exerciseID's lesson/course ancestors and returns the
// flattened (unit, UnitReward) pairs to append to the reward store. An
// exercise missing either ancestor yields nothing — propagation requires a
// complete containment chain.
func (p *Propagator) Propagate(exerciseID domain.UnitId, score domain.MasteryScore) []domain.UnitRewardEntry {
	lesson, ok := p.graph.ParentLesson(exerciseID)
	if !ok {
		return nil
	}
	course, ok := p.graph.ParentCourse(lesson)
	if !ok {
		return nil
	}

	r0 := domain.InitialReward(score)
	if r0 == 0 {
		return nil
	}

	best := make(map[domain.UnitId]seed)
	var worklist []seed

	for _, root := range []domain.UnitId{lesson, course} {
		for _, edge := range p.neighbors(root, r0) {
			worklist = append(worklist, seed{unit: edge.Unit, value: r0 * edge.Weight, edge: edge.Weight})
		}
	}

	for len(worklist) > 0 {
		item := worklist[0]
		worklist = worklist[1:]

		if abs32(item.value) < p.c.MinAbsReward || item.edge < p.c.MinWeight {
			continue
		}
		if prior, ok := best[item.unit]; ok && abs32(prior.value) >= abs32(item.value) {
			continue
		}
		best[item.unit] = item

		for _, edge := range p.neighbors(item.unit, item.value) {
			worklist = append(worklist, seed{
				unit:  edge.Unit,
				value: edge.Weight * p.c.RewardFactor * item.value,
				edge:  edge.Weight * p.c.WeightFactor * item.edge,
			})
		}
	}

	ts := p.now().Unix()
	out := make([]domain.UnitRewardEntry, 0, len(best))
	for unit, item := range best {
		observability.PropagationMagnitude.Observe(float64(abs32(item.value)))
		out = append(out, domain.UnitRewardEntry{
			Unit: unit,
			Reward: domain.UnitReward{
				Value:     item.value,
				Weight:    item.edge,
				Timestamp: ts,
			},
		})
	}
	return out
}

// neighbors returns the directional edges to follow next given the
// current signed reward value: positive values flow to the units the
// source encompasses (easier prerequisites, de-emphasized by a good
// trial); negative values flow to the units that encompass the source
// (harder units whose practice is undermined by a poor trial).
func (p *Propagator) neighbors(unit domain.UnitId, value float32) []domain.WeightedUnit {
	if value > 0 {
		return p.graph.Encompasses(unit)
	}
	return p.graph.EncompassedBy(unit)
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
