// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"math/rand/v2"
)

// CellActivity counts, per cell, the synapses whose source bit is set in input
// and whose permanence exceeds connectedPermanence. Counts below activeThreshold
// become 0. The result is Int32 with the leading shape of connections.
func CellActivity(input, connections, permanences *Tensor, connectedPermanence float32, activeThreshold int) (*Tensor, error) {
	b, err := owner("cellActivity", connections, permanences, input)
	if err != nil {
		return nil, err
	}
	defer keepAlive(input, connections, permanences)
	return wrapResult(b.CellActivity(viewOf(input), viewOf(connections), viewOf(permanences),
		connectedPermanence, activeThreshold))
}

// LearnCorrelation adjusts the permanences of the cells selected by learn:
// synapses whose source bit is set grow by incStep, the others shrink by decStep.
// Results are clamped to [0, 1].
func LearnCorrelation(input, learn, connections, permanences *Tensor, incStep, decStep float32) error {
	b, err := owner("learnCorrelation", connections, permanences, input, learn)
	if err != nil {
		return err
	}
	defer keepAlive(input, learn, connections, permanences)
	return b.LearnCorrelation(viewOf(input), viewOf(learn), viewOf(connections), viewOf(permanences), incStep, decStep)
}

// GlobalInhibition selects the round(N*fraction) most active cells with
// activity above zero. Ties go to the lower index. The result is Bool.
func GlobalInhibition(activity *Tensor, fraction float32) (*Tensor, error) {
	b, err := owner("globalInhibition", activity)
	if err != nil {
		return nil, err
	}
	defer keepAlive(activity)
	return wrapResult(b.GlobalInhibition(viewOf(activity), fraction))
}

// SortSynapse sorts every row of the table by source index, unused slots last.
func SortSynapse(connections, permanences *Tensor) error {
	b, err := owner("sortSynapse", connections, permanences)
	if err != nil {
		return err
	}
	defer keepAlive(connections, permanences)
	return b.SortSynapse(viewOf(connections), viewOf(permanences))
}

// Burst computes the active cells of a <columns> x cellsPerColumn layer from the
// column input and the prior predictive state.
func Burst(input, prior *Tensor) (*Tensor, error) {
	b, err := owner("burst", prior, input)
	if err != nil {
		return nil, err
	}
	defer keepAlive(input, prior)
	return wrapResult(b.Burst(viewOf(input), viewOf(prior)))
}

// ReverseBurst replaces every fully active column with one randomly chosen
// active cell. rng may be nil to use the backend's seeded source.
func ReverseBurst(active *Tensor, rng *rand.Rand) (*Tensor, error) {
	b, err := owner("reverseBurst", active)
	if err != nil {
		return nil, err
	}
	defer keepAlive(active)
	return wrapResult(b.ReverseBurst(viewOf(active), rng))
}

// GrowSynapses connects each cell marked in target to the on-bits of input it
// is not yet connected to, filling free slots with initialPermanence.
func GrowSynapses(input, target, connections, permanences *Tensor, initialPermanence float32) error {
	b, err := owner("growSynapses", connections, permanences, input, target)
	if err != nil {
		return err
	}
	defer keepAlive(input, target, connections, permanences)
	return b.GrowSynapses(viewOf(input), viewOf(target), viewOf(connections), viewOf(permanences), initialPermanence)
}

// DecaySynapses removes synapses with permanence below threshold, keeping the
// survivors sorted at the front of each row.
func DecaySynapses(connections, permanences *Tensor, threshold float32) error {
	b, err := owner("decaySynapses", connections, permanences)
	if err != nil {
		return err
	}
	defer keepAlive(connections, permanences)
	return b.DecaySynapses(viewOf(connections), viewOf(permanences), threshold)
}
