// Package checker validates the structural invariants a runtime relies on
// before it will load an ONNX model: declared versions, typed graph
// boundaries, single-assignment value names, resolvable references and
// operator availability under the imported opset. It deliberately stops short
// of shape inference; the goal is catching converter damage, not re-running
// the full ONNX checker.
package checker

import (
	"errors"
	"fmt"

	"github.com/onnxweb/onnxweb/internal/onnx"
)

// Check walks the model and returns the first structural problem found, or
// nil when the model looks loadable.
func Check(m *onnx.ModelProto) error {
	if m.IRVersion == 0 {
		return errors.New("model declares no ir_version")
	}
	if m.Graph == nil {
		return errors.New("model has no graph")
	}
	opset := m.Opset()
	if opset == 0 {
		return errors.New("model imports no default-domain opset")
	}
	return checkGraph(m.Graph, nil, opset)
}

// scope tracks the value names visible at a point in the walk. Nested graphs
// chain to their enclosing scope, since subgraph nodes may read values
// captured from any outer graph.
type scope struct {
	local map[string]bool
	outer *scope
}

func (s *scope) resolves(name string) bool {
	for ; s != nil; s = s.outer {
		if s.local[name] {
			return true
		}
	}
	return false
}

func checkGraph(g *onnx.GraphProto, outer *scope, opset int64) error {
	sc := &scope{local: make(map[string]bool), outer: outer}

	for i := range g.Inputs {
		in := &g.Inputs[i]
		if in.Name == "" {
			return fmt.Errorf("graph %q has an unnamed input", g.Name)
		}
		if sc.local[in.Name] {
			return fmt.Errorf("graph %q declares input %q twice", g.Name, in.Name)
		}
		if err := checkValueType(in); err != nil {
			return fmt.Errorf("graph %q: %w", g.Name, err)
		}
		sc.local[in.Name] = true
	}

	// Initializer names may repeat graph inputs; that is the standard way
	// to give an input a default value.
	initSeen := make(map[string]bool)
	for i := range g.Initializers {
		t := &g.Initializers[i]
		if t.Name == "" {
			return fmt.Errorf("graph %q has an unnamed initializer", g.Name)
		}
		if initSeen[t.Name] {
			return fmt.Errorf("graph %q declares initializer %q twice", g.Name, t.Name)
		}
		initSeen[t.Name] = true
		if err := checkInitializer(t); err != nil {
			return fmt.Errorf("graph %q: %w", g.Name, err)
		}
		sc.local[t.Name] = true
	}

	for i := range g.Nodes {
		nd := &g.Nodes[i]
		if nd.OpType == "" {
			return fmt.Errorf("graph %q: node %q has no op type", g.Name, nd.Name)
		}
		if nd.Domain == "" || nd.Domain == "ai.onnx" {
			iv, known := onnx.IntroducedAt(nd.OpType)
			if !known {
				return fmt.Errorf("graph %q: unknown operator %s (node %q)", g.Name, nd.OpType, nd.Name)
			}
			if iv > opset {
				return fmt.Errorf("graph %q: operator %s requires opset %d but the model imports opset %d (node %q)",
					g.Name, nd.OpType, iv, opset, nd.Name)
			}
		}
		for _, in := range nd.Inputs {
			if in == "" {
				continue
			}
			if !sc.resolves(in) {
				return fmt.Errorf("graph %q: node %q reads undefined value %q", g.Name, nd.Label(), in)
			}
		}
		// Subgraphs run inside the node, so they see everything defined so
		// far but not the node's own outputs.
		for _, sg := range nd.Subgraphs() {
			if err := checkGraph(sg, sc, opset); err != nil {
				return err
			}
		}
		for _, out := range nd.Outputs {
			if out == "" {
				continue
			}
			if sc.local[out] {
				return fmt.Errorf("graph %q: value %q produced more than once", g.Name, out)
			}
			sc.local[out] = true
		}
	}

	for i := range g.Outputs {
		out := &g.Outputs[i]
		if out.Name == "" {
			return fmt.Errorf("graph %q has an unnamed output", g.Name)
		}
		if !sc.resolves(out.Name) {
			return fmt.Errorf("graph %q: output %q is never produced", g.Name, out.Name)
		}
		if err := checkValueType(out); err != nil {
			return fmt.Errorf("graph %q: %w", g.Name, err)
		}
	}
	return nil
}

func checkValueType(v *onnx.ValueInfoProto) error {
	if v.Type == nil {
		return fmt.Errorf("value %q has no type", v.Name)
	}
	if tt := v.Type.TensorType; tt != nil && tt.ElemType == onnx.TensorProtoUndefined {
		return fmt.Errorf("value %q has no element type", v.Name)
	}
	return nil
}

func checkInitializer(t *onnx.TensorProto) error {
	if t.DataType == onnx.TensorProtoUndefined {
		return fmt.Errorf("initializer %q has undefined data type", t.Name)
	}
	for _, d := range t.Dims {
		if d < 0 {
			return fmt.Errorf("initializer %q has negative dimension %d", t.Name, d)
		}
	}
	if t.IsExternal() || t.RawData == nil {
		return nil
	}
	want := t.ByteSize()
	if want < 0 {
		// Strings and other non-fixed-width types carry their payload in
		// typed fields, not raw_data.
		return nil
	}
	if int64(len(t.RawData)) != want {
		return fmt.Errorf("initializer %q has %d bytes of raw data, want %d", t.Name, len(t.RawData), want)
	}
	return nil
}
