// Package simplify rewrites an ONNX graph into a leaner equivalent: Constant
// nodes become initializers, Identity and inference-mode Dropout nodes are
// removed, statically-known subgraphs are folded into constants, optional
// Conv+BatchNormalization fusion bakes normalization into the convolution
// weights, and everything unreachable from the graph outputs is dropped.
//
// The input model is never mutated. Passes run in rounds until either nothing
// changes or the configured round cap is hit, since one pass routinely exposes
// work for another (a folded Shape chain leaves dead nodes behind, removing an
// Identity can make a Dropout's consumer pattern visible, and so on).
package simplify

import (
	"errors"
	"strconv"

	"github.com/onnxweb/onnxweb/internal/onnx"
	"github.com/onnxweb/onnxweb/pkg/checker"
)

// DefaultRounds is the pass-loop cap used when Options.Rounds is zero.
const DefaultRounds = 3

// Options selects which rewrites run and how long they iterate.
type Options struct {
	Rounds int  // fixpoint round cap; 0 means DefaultRounds
	FuseBN bool // fold BatchNormalization into preceding Conv weights
}

// Result carries the simplified model and what happened to it.
type Result struct {
	Model       *onnx.ModelProto
	NodesBefore int
	NodesAfter  int
	Rounds      int // rounds actually run

	// Check reports whether the simplified graph still produces every
	// declared output and passes structural validation. Callers keep the
	// original model when it is false.
	Check bool
}

type pass struct {
	name     string
	fn       func(st *state, g *onnx.GraphProto) (int, error)
	needFuse bool
}

var passes = []pass{
	{name: "constants-to-initializers", fn: constantsToInitializers},
	{name: "eliminate-identity", fn: eliminateIdentity},
	{name: "eliminate-dropout", fn: eliminateDropout},
	{name: "fold-constants", fn: foldConstants},
	{name: "fuse-conv-bn", fn: fuseConvBN, needFuse: true},
	{name: "eliminate-dead", fn: eliminateDead},
}

// state is shared by all passes of one Simplify run.
type state struct {
	model *onnx.ModelProto
	names map[string]bool // every name in use anywhere in the model
}

// Simplify returns a simplified copy of m. The returned error means the
// rewrite machinery itself failed (cyclic graph, undecodable tensor data);
// callers treat that the same as Check being false and keep the original.
func Simplify(m *onnx.ModelProto, opts Options) (*Result, error) {
	if m.Graph == nil {
		return nil, errors.New("model has no graph")
	}
	work, err := m.Clone()
	if err != nil {
		return nil, err
	}
	rounds := opts.Rounds
	if rounds <= 0 {
		rounds = DefaultRounds
	}
	st := &state{model: work, names: collectNames(work)}
	res := &Result{NodesBefore: work.Graph.NodeCount()}

	for r := 0; r < rounds; r++ {
		// Folding wants producers ahead of consumers so results cascade
		// through a whole chain in a single sweep.
		if err := work.Graph.TopologicalSort(); err != nil {
			return nil, err
		}
		res.Rounds = r + 1
		changed := 0
		for _, p := range passes {
			if p.needFuse && !opts.FuseBN {
				continue
			}
			n, err := p.fn(st, work.Graph)
			if err != nil {
				return nil, err
			}
			changed += n
		}
		if changed == 0 {
			break
		}
	}
	if err := work.Graph.TopologicalSort(); err != nil {
		return nil, err
	}
	res.NodesAfter = work.Graph.NodeCount()
	res.Model = work
	res.Check = outputsProduced(work.Graph) && checker.Check(work) == nil
	return res, nil
}

// outputsProduced reports whether every graph output is still backed by a
// node, an initializer or a graph input.
func outputsProduced(g *onnx.GraphProto) bool {
	have := make(map[string]bool)
	for i := range g.Inputs {
		have[g.Inputs[i].Name] = true
	}
	for i := range g.Initializers {
		have[g.Initializers[i].Name] = true
	}
	for i := range g.Nodes {
		for _, out := range g.Nodes[i].Outputs {
			if out != "" {
				have[out] = true
			}
		}
	}
	for i := range g.Outputs {
		if !have[g.Outputs[i].Name] {
			return false
		}
	}
	return true
}

func collectNames(m *onnx.ModelProto) map[string]bool {
	names := make(map[string]bool)
	var walk func(g *onnx.GraphProto)
	walk = func(g *onnx.GraphProto) {
		for i := range g.Initializers {
			names[g.Initializers[i].Name] = true
		}
		for _, list := range [][]onnx.ValueInfoProto{g.Inputs, g.Outputs, g.ValueInfos} {
			for i := range list {
				names[list[i].Name] = true
			}
		}
		for i := range g.Nodes {
			nd := &g.Nodes[i]
			names[nd.Name] = true
			for _, x := range nd.Inputs {
				names[x] = true
			}
			for _, x := range nd.Outputs {
				names[x] = true
			}
			for _, sg := range nd.Subgraphs() {
				walk(sg)
			}
		}
	}
	if m.Graph != nil {
		walk(m.Graph)
	}
	return names
}

// freshName reserves a name no other value in the model uses.
func (st *state) freshName(prefix string) string {
	name := prefix
	for i := 1; st.names[name]; i++ {
		name = prefix + "_" + strconv.Itoa(i)
	}
	st.names[name] = true
	return name
}
