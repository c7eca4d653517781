package neural

import "github.com/evolvatron/evolvatron/evolerr"

// Evaluator runs the row-synchronous forward pass described in spec.md
// §4.6 over a Topology, reusing a single scratch value buffer across calls
// to avoid per-evaluation allocation.
type Evaluator struct {
	topology *Topology
	values   []float32
}

// NewEvaluator returns an Evaluator bound to topology.
func NewEvaluator(t *Topology) *Evaluator {
	return &Evaluator{topology: t, values: make([]float32, t.NodeCount())}
}

// Forward evaluates ind against inputs (which must have length equal to
// row 1's node count) and returns the last row's node values — the
// evaluator's own scratch slice, valid until the next Forward call.
// Evaluation is deterministic: identical inputs and individual always
// produce identical outputs.
func (e *Evaluator) Forward(ind *Individual, inputs []float32) ([]float32, error) {
	t := e.topology
	_, inputCount := t.NodeRange(1)
	if len(inputs) != inputCount {
		return nil, evolerr.New(evolerr.InvalidIndex, "input length does not match topology row 1 size")
	}

	values := e.values
	values[0] = 1.0 // row 0: constant bias node
	inStart, _ := t.NodeRange(1)
	copy(values[inStart:inStart+inputCount], inputs)

	for row := 2; row < t.NumRows(); row++ {
		plan := t.RowPlans[row]
		for n := plan.NodeStart; n < plan.NodeStart+plan.NodeCount; n++ {
			values[n] = 0
		}
		for ei := plan.EdgeStart; ei < plan.EdgeStart+plan.EdgeCount; ei++ {
			edge := t.Edges[ei]
			values[edge.Dst] += ind.Weights[ei] * values[edge.Src]
		}
		for n := plan.NodeStart; n < plan.NodeStart+plan.NodeCount; n++ {
			values[n] += ind.Biases[n]
			values[n] = Apply(ind.Activations[n], values[n], ind.NodeParams[n])
		}
	}

	outRow := t.NumRows() - 1
	outPlan := t.RowPlans[outRow]
	return values[outPlan.NodeStart : outPlan.NodeStart+outPlan.NodeCount], nil
}

// InputCount returns the evaluator's expected input length (row 1's size).
func (e *Evaluator) InputCount() int {
	_, c := e.topology.NodeRange(1)
	return c
}

// OutputCount returns the evaluator's output length (the last row's size).
func (e *Evaluator) OutputCount() int {
	_, c := e.topology.NodeRange(e.topology.NumRows() - 1)
	return c
}
