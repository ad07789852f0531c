// Package opset rewrites a model's default-domain operators so the model
// conforms to an older operator set version, the way browser runtimes such as
// onnxruntime-web require.
//
// Operators whose encoding changed between the target and the model's declared
// opset are adapted mechanically (moving axes inputs back into attributes,
// dropping attributes that still hold their default). Operators the target
// opset predates are expanded into equivalent primitive ops where a known
// decomposition exists, and reported as errors otherwise. Operators from
// custom domains are never touched.
package opset

import (
	"errors"
	"fmt"

	"github.com/onnxweb/onnxweb/internal/onnx"
)

// Result describes what a downgrade did to the model.
type Result struct {
	From     int64    // opset the model declared before the rewrite
	To       int64    // opset the model declares now
	Adapted  []string // one entry per rewritten node
	Warnings []string // non-fatal findings, such as unknown ops left as-is
}

// Downgrade rewrites m in place so its default-domain operators conform to
// the target opset and updates the declared version. The model is left in an
// unspecified state when an error is returned; callers abandon it.
//
// Models already at or below target are returned untouched. A model with no
// declared opset is treated as newer than target and gets one declared.
func Downgrade(m *onnx.ModelProto, target int64) (*Result, error) {
	if target < 1 {
		return nil, fmt.Errorf("invalid target opset %d", target)
	}
	if m.Graph == nil {
		return nil, errors.New("model has no graph")
	}
	from := m.Opset()
	res := &Result{From: from, To: target}
	if from != 0 && from <= target {
		res.To = from
		return res, nil
	}
	root := newScope(m.Graph, nil, target, newNamer(m), res)
	if err := root.apply(); err != nil {
		return nil, err
	}
	m.SetOpset(target)
	return res, nil
}

// scope is one graph being rewritten, chained to its enclosing scopes so
// adapters can resolve values an If or Loop body captures from outside.
type scope struct {
	graph  *onnx.GraphProto
	outer  *scope
	target int64
	names  *namer
	result *Result
	inits  map[string]*onnx.TensorProto
	types  map[string]*onnx.TypeProto
}

func newScope(g *onnx.GraphProto, outer *scope, target int64, names *namer, res *Result) *scope {
	s := &scope{graph: g, outer: outer, target: target, names: names, result: res}
	s.inits = make(map[string]*onnx.TensorProto, len(g.Initializers))
	for i := range g.Initializers {
		s.inits[g.Initializers[i].Name] = &g.Initializers[i]
	}
	for i := range g.Nodes {
		if tp := onnx.ConstantValue(&g.Nodes[i]); tp != nil {
			s.inits[tp.Name] = tp
		}
	}
	s.types = make(map[string]*onnx.TypeProto)
	for _, list := range [][]onnx.ValueInfoProto{g.Inputs, g.Outputs, g.ValueInfos} {
		for i := range list {
			if list[i].Type != nil {
				s.types[list[i].Name] = list[i].Type
			}
		}
	}
	return s
}

func (s *scope) apply() error {
	out := make([]onnx.NodeProto, 0, len(s.graph.Nodes))
	for i := range s.graph.Nodes {
		nd := s.graph.Nodes[i]
		for _, sg := range nd.Subgraphs() {
			child := newScope(sg, s, s.target, s.names, s.result)
			if err := child.apply(); err != nil {
				return err
			}
		}
		repl, err := s.adaptNode(&nd)
		if err != nil {
			return err
		}
		if repl == nil {
			out = append(out, nd)
		} else {
			out = append(out, repl...)
		}
	}
	s.graph.Nodes = out
	return nil
}

// adaptNode runs the registered adapter for the node's op, or falls back to
// the operator introduction table: ops the target predates are fatal, known
// compatible ops pass through, unknown default-domain ops pass with a warning.
func (s *scope) adaptNode(nd *onnx.NodeProto) ([]onnx.NodeProto, error) {
	if nd.Domain != "" && nd.Domain != "ai.onnx" {
		return nil, nil
	}
	if fn, ok := adapters[nd.OpType]; ok {
		return fn(s, nd)
	}
	if since, ok := onnx.IntroducedAt(nd.OpType); ok {
		if since > s.target {
			return nil, fmt.Errorf("operator %s requires opset %d and cannot be expressed at opset %d (node %q)",
				nd.OpType, since, s.target, nd.Label())
		}
		return nil, nil
	}
	s.warnf("unknown operator %q (node %q) left unchanged", nd.OpType, nd.Label())
	return nil, nil
}

func (s *scope) adapted(nd *onnx.NodeProto, format string, args ...any) {
	s.result.Adapted = append(s.result.Adapted,
		fmt.Sprintf("node %q: %s", nd.Label(), fmt.Sprintf(format, args...)))
}

func (s *scope) warnf(format string, args ...any) {
	s.result.Warnings = append(s.result.Warnings, fmt.Sprintf(format, args...))
}

// lookupTensor resolves a value name to a constant tensor declared in this
// scope or any enclosing one.
func (s *scope) lookupTensor(name string) *onnx.TensorProto {
	for sc := s; sc != nil; sc = sc.outer {
		if tp, ok := sc.inits[name]; ok {
			return tp
		}
	}
	return nil
}

// lookupElemType resolves a value's element type from constants or declared
// value types, returning 0 when nothing declares it.
func (s *scope) lookupElemType(name string) int32 {
	for sc := s; sc != nil; sc = sc.outer {
		if tp, ok := sc.inits[name]; ok {
			return tp.DataType
		}
		if ty, ok := sc.types[name]; ok && ty.TensorType != nil {
			return ty.TensorType.ElemType
		}
	}
	return 0
}

// rankOf resolves a value's tensor rank from constants or declared shapes.
func (s *scope) rankOf(name string) (int, bool) {
	for sc := s; sc != nil; sc = sc.outer {
		if tp, ok := sc.inits[name]; ok {
			return len(tp.Dims), true
		}
		if ty, ok := sc.types[name]; ok && ty.TensorType != nil && ty.TensorType.Shape != nil {
			return len(ty.TensorType.Shape.Dims), true
		}
	}
	return 0, false
}

// intsInput resolves node input idx to constant int64 values, reporting
// whether the input slot is present at all.
func (s *scope) intsInput(nd *onnx.NodeProto, idx int) ([]int64, bool, error) {
	if idx >= len(nd.Inputs) || nd.Inputs[idx] == "" {
		return nil, false, nil
	}
	tp := s.lookupTensor(nd.Inputs[idx])
	if tp == nil {
		return nil, true, fmt.Errorf("node %q: input %q is not a constant", nd.Label(), nd.Inputs[idx])
	}
	vals, err := tp.Int64Values()
	if err != nil {
		return nil, true, fmt.Errorf("node %q: %w", nd.Label(), err)
	}
	return vals, true, nil
}

// namer hands out value and node names that collide with nothing else in the
// model. Names are reserved as they are issued.
type namer struct {
	used map[string]bool
	n    int
}

func newNamer(m *onnx.ModelProto) *namer {
	nr := &namer{used: make(map[string]bool)}
	if m.Graph != nil {
		nr.collect(m.Graph)
	}
	return nr
}

func (nr *namer) collect(g *onnx.GraphProto) {
	for i := range g.Initializers {
		nr.used[g.Initializers[i].Name] = true
	}
	for _, list := range [][]onnx.ValueInfoProto{g.Inputs, g.Outputs, g.ValueInfos} {
		for i := range list {
			nr.used[list[i].Name] = true
		}
	}
	for i := range g.Nodes {
		nd := &g.Nodes[i]
		nr.used[nd.Name] = true
		for _, x := range nd.Inputs {
			nr.used[x] = true
		}
		for _, x := range nd.Outputs {
			nr.used[x] = true
		}
		for _, sg := range nd.Subgraphs() {
			nr.collect(sg)
		}
	}
}

func (nr *namer) fresh(prefix string) string {
	for {
		nr.n++
		name := fmt.Sprintf("%s_%d", prefix, nr.n)
		if !nr.used[name] {
			nr.used[name] = true
			return name
		}
	}
}

// addInitializer appends a tensor to the scope's graph and indexes a copy of
// it, so the index never dangles when the initializer slice reallocates.
func (s *scope) addInitializer(tp onnx.TensorProto) {
	s.graph.Initializers = append(s.graph.Initializers, tp)
	cp := tp
	s.inits[tp.Name] = &cp
}
