package opset

import (
	"fmt"
	"math"
	"strings"

	"github.com/onnxweb/onnxweb/internal/onnx"
)

// nodeBase picks a readable prefix for the names a decomposition introduces.
func nodeBase(nd *onnx.NodeProto) string {
	if nd.Name != "" {
		return nd.Name
	}
	if len(nd.Outputs) > 0 && nd.Outputs[0] != "" {
		return nd.Outputs[0]
	}
	return strings.ToLower(nd.OpType)
}

// adaptShape handles the start/end slicing attributes Shape gained at opset
// 15 by expanding the node into Shape followed by Slice.
func adaptShape(s *scope, nd *onnx.NodeProto) ([]onnx.NodeProto, error) {
	if s.target >= 15 {
		return nil, nil
	}
	start := nd.Attr("start")
	end := nd.Attr("end")
	if start == nil && end == nil {
		return nil, nil
	}
	if s.target < 10 {
		return nil, fmt.Errorf("node %q: Shape slicing needs Slice inputs, unavailable below opset 10", nd.Label())
	}
	if len(nd.Inputs) < 1 || len(nd.Outputs) < 1 {
		return nil, fmt.Errorf("node %q: malformed Shape", nd.Label())
	}
	startV := nd.AttrInt("start", 0)
	endV := int64(math.MaxInt64)
	if end != nil && end.Type == onnx.AttributeProtoInt {
		endV = end.I
	}
	base := nodeBase(nd)
	full := s.names.fresh(base + "_full")
	starts := onnx.MakeInt64Tensor(s.names.fresh(base+"_starts"), []int64{1}, []int64{startV})
	ends := onnx.MakeInt64Tensor(s.names.fresh(base+"_ends"), []int64{1}, []int64{endV})
	axes := onnx.MakeInt64Tensor(s.names.fresh(base+"_axes"), []int64{1}, []int64{0})
	s.addInitializer(starts)
	s.addInitializer(ends)
	s.addInitializer(axes)
	s.adapted(nd, "expanded Shape start/end into Shape and Slice")
	return []onnx.NodeProto{
		{Name: nd.Name, OpType: "Shape", Inputs: nd.Inputs[:1], Outputs: []string{full}},
		{
			Name:    s.names.fresh(base + "_slice"),
			OpType:  "Slice",
			Inputs:  []string{full, starts.Name, ends.Name, axes.Name},
			Outputs: nd.Outputs,
		},
	}, nil
}

// adaptCastLike rewrites CastLike as a plain Cast when the reference input's
// element type can be resolved. CastLike only exists from opset 15 on.
func adaptCastLike(s *scope, nd *onnx.NodeProto) ([]onnx.NodeProto, error) {
	if s.target >= 15 {
		// Same saturate handling as Cast applies from 19 down.
		return adaptCast(s, nd)
	}
	if len(nd.Inputs) < 2 || len(nd.Outputs) < 1 {
		return nil, fmt.Errorf("node %q: malformed CastLike", nd.Label())
	}
	dt := s.lookupElemType(nd.Inputs[1])
	if dt == 0 {
		return nil, fmt.Errorf("node %q: element type of %q is unknown, cannot rewrite CastLike as Cast",
			nd.Label(), nd.Inputs[1])
	}
	s.adapted(nd, "rewrote CastLike as Cast to %s", onnx.DataTypeName(dt))
	return []onnx.NodeProto{{
		Name:       nd.Name,
		OpType:     "Cast",
		Inputs:     nd.Inputs[:1],
		Outputs:    nd.Outputs,
		Attributes: []onnx.AttributeProto{onnx.MakeAttrInt("to", int64(dt))},
	}}, nil
}

// decomposeLayerNorm expands LayerNormalization (opset 17) into the reduce
// and elementwise primitives every earlier opset has:
//
//	y = (x - mean) / sqrt(var + epsilon) * scale + bias
//
// The optional Mean and InvStdDev outputs are wired to the matching
// intermediate values when the node requests them.
func decomposeLayerNorm(s *scope, nd *onnx.NodeProto) ([]onnx.NodeProto, error) {
	if s.target >= 17 {
		return nil, nil
	}
	if len(nd.Inputs) < 2 || len(nd.Outputs) < 1 {
		return nil, fmt.Errorf("node %q: LayerNormalization needs data and scale inputs", nd.Label())
	}
	x, scale := nd.Inputs[0], nd.Inputs[1]
	bias := ""
	if len(nd.Inputs) > 2 {
		bias = nd.Inputs[2]
	}
	axis := nd.AttrInt("axis", -1)
	eps := nd.AttrFloat("epsilon", 1e-5)

	// Normalization runs over [axis, rank). A negative axis names the span
	// directly; a non-negative one needs the input's rank.
	var axes []int64
	if axis < 0 {
		for a := axis; a < 0; a++ {
			axes = append(axes, a)
		}
	} else {
		rank, ok := s.rankOf(x)
		if !ok {
			return nil, fmt.Errorf("node %q: cannot expand LayerNormalization, rank of %q unknown", nd.Label(), x)
		}
		if axis >= int64(rank) {
			return nil, fmt.Errorf("node %q: axis %d out of range for rank %d", nd.Label(), axis, rank)
		}
		for a := axis; a < int64(rank); a++ {
			axes = append(axes, a)
		}
	}
	reduceAttrs := func() []onnx.AttributeProto {
		return []onnx.AttributeProto{
			onnx.MakeAttrInts("axes", append([]int64(nil), axes...)),
			onnx.MakeAttrInt("keepdims", 1),
		}
	}

	base := nodeBase(nd)
	epsT := onnx.MakeFloat32Tensor(s.names.fresh(base+"_eps"), nil, []float32{eps})
	s.addInitializer(epsT)

	meanOut := s.names.fresh(base + "_mean")
	if len(nd.Outputs) > 1 && nd.Outputs[1] != "" {
		meanOut = nd.Outputs[1]
	}
	invOut := ""
	if len(nd.Outputs) > 2 && nd.Outputs[2] != "" {
		invOut = nd.Outputs[2]
	}

	centered := s.names.fresh(base + "_centered")
	sq := s.names.fresh(base + "_sq")
	variance := s.names.fresh(base + "_var")
	veps := s.names.fresh(base + "_vareps")
	std := s.names.fresh(base + "_std")
	norm := s.names.fresh(base + "_norm")

	nodes := []onnx.NodeProto{
		{Name: s.names.fresh(base + "_reducemean"), OpType: "ReduceMean", Inputs: []string{x}, Outputs: []string{meanOut}, Attributes: reduceAttrs()},
		{Name: s.names.fresh(base + "_sub"), OpType: "Sub", Inputs: []string{x, meanOut}, Outputs: []string{centered}},
		{Name: s.names.fresh(base + "_sqr"), OpType: "Mul", Inputs: []string{centered, centered}, Outputs: []string{sq}},
		{Name: s.names.fresh(base + "_reducevar"), OpType: "ReduceMean", Inputs: []string{sq}, Outputs: []string{variance}, Attributes: reduceAttrs()},
		{Name: s.names.fresh(base + "_addeps"), OpType: "Add", Inputs: []string{variance, epsT.Name}, Outputs: []string{veps}},
		{Name: s.names.fresh(base + "_sqrt"), OpType: "Sqrt", Inputs: []string{veps}, Outputs: []string{std}},
	}
	if invOut != "" {
		nodes = append(nodes,
			onnx.NodeProto{Name: s.names.fresh(base + "_recip"), OpType: "Reciprocal", Inputs: []string{std}, Outputs: []string{invOut}},
			onnx.NodeProto{Name: s.names.fresh(base + "_normalize"), OpType: "Mul", Inputs: []string{centered, invOut}, Outputs: []string{norm}},
		)
	} else {
		nodes = append(nodes,
			onnx.NodeProto{Name: s.names.fresh(base + "_normalize"), OpType: "Div", Inputs: []string{centered, std}, Outputs: []string{norm}},
		)
	}
	if bias != "" {
		scaled := s.names.fresh(base + "_scaled")
		nodes = append(nodes,
			onnx.NodeProto{Name: s.names.fresh(base + "_scale"), OpType: "Mul", Inputs: []string{norm, scale}, Outputs: []string{scaled}},
			onnx.NodeProto{Name: s.names.fresh(base + "_bias"), OpType: "Add", Inputs: []string{scaled, bias}, Outputs: []string{nd.Outputs[0]}},
		)
	} else {
		nodes = append(nodes,
			onnx.NodeProto{Name: s.names.fresh(base + "_scale"), OpType: "Mul", Inputs: []string{norm, scale}, Outputs: []string{nd.Outputs[0]}},
		)
	}
	s.adapted(nd, "expanded LayerNormalization into primitive ops")
	return nodes, nil
}

// decomposeGelu expands Gelu (opset 20) into either the exact erf form or the
// tanh approximation, whichever the node's approximate attribute selects.
func decomposeGelu(s *scope, nd *onnx.NodeProto) ([]onnx.NodeProto, error) {
	if s.target >= 20 {
		return nil, nil
	}
	if len(nd.Inputs) < 1 || len(nd.Outputs) < 1 {
		return nil, fmt.Errorf("node %q: malformed Gelu", nd.Label())
	}
	x, y := nd.Inputs[0], nd.Outputs[0]
	base := nodeBase(nd)
	half := onnx.MakeFloat32Tensor(s.names.fresh(base+"_half"), nil, []float32{0.5})
	one := onnx.MakeFloat32Tensor(s.names.fresh(base+"_one"), nil, []float32{1})
	s.addInitializer(half)
	s.addInitializer(one)

	switch approx := nd.AttrString("approximate", "none"); approx {
	case "none":
		if s.target < 9 {
			return nil, fmt.Errorf("node %q: Gelu expansion needs Erf, unavailable below opset 9", nd.Label())
		}
		sqrt2 := onnx.MakeFloat32Tensor(s.names.fresh(base+"_sqrt2"), nil, []float32{math.Sqrt2})
		s.addInitializer(sqrt2)
		xdiv := s.names.fresh(base + "_xdiv")
		erf := s.names.fresh(base + "_erf")
		erf1 := s.names.fresh(base + "_erfp1")
		xhalf := s.names.fresh(base + "_xhalf")
		s.adapted(nd, "expanded Gelu into erf form")
		return []onnx.NodeProto{
			{Name: s.names.fresh(base + "_div"), OpType: "Div", Inputs: []string{x, sqrt2.Name}, Outputs: []string{xdiv}},
			{Name: s.names.fresh(base + "_erfn"), OpType: "Erf", Inputs: []string{xdiv}, Outputs: []string{erf}},
			{Name: s.names.fresh(base + "_addone"), OpType: "Add", Inputs: []string{erf, one.Name}, Outputs: []string{erf1}},
			{Name: s.names.fresh(base + "_halfx"), OpType: "Mul", Inputs: []string{x, half.Name}, Outputs: []string{xhalf}},
			{Name: s.names.fresh(base + "_mul"), OpType: "Mul", Inputs: []string{xhalf, erf1}, Outputs: []string{y}},
		}, nil
	case "tanh":
		c0 := onnx.MakeFloat32Tensor(s.names.fresh(base+"_c0"), nil, []float32{0.044715})
		c1 := onnx.MakeFloat32Tensor(s.names.fresh(base+"_c1"), nil, []float32{0.7978845608028654})
		s.addInitializer(c0)
		s.addInitializer(c1)
		x2 := s.names.fresh(base + "_x2")
		x3 := s.names.fresh(base + "_x3")
		t0 := s.names.fresh(base + "_c0x3")
		t1 := s.names.fresh(base + "_inner")
		t2 := s.names.fresh(base + "_scaledinner")
		th := s.names.fresh(base + "_tanh")
		t3 := s.names.fresh(base + "_tanhp1")
		xhalf := s.names.fresh(base + "_xhalf")
		s.adapted(nd, "expanded Gelu into tanh form")
		return []onnx.NodeProto{
			{Name: s.names.fresh(base + "_sq"), OpType: "Mul", Inputs: []string{x, x}, Outputs: []string{x2}},
			{Name: s.names.fresh(base + "_cube"), OpType: "Mul", Inputs: []string{x2, x}, Outputs: []string{x3}},
			{Name: s.names.fresh(base + "_mulc0"), OpType: "Mul", Inputs: []string{x3, c0.Name}, Outputs: []string{t0}},
			{Name: s.names.fresh(base + "_addx"), OpType: "Add", Inputs: []string{x, t0}, Outputs: []string{t1}},
			{Name: s.names.fresh(base + "_mulc1"), OpType: "Mul", Inputs: []string{t1, c1.Name}, Outputs: []string{t2}},
			{Name: s.names.fresh(base + "_tanhn"), OpType: "Tanh", Inputs: []string{t2}, Outputs: []string{th}},
			{Name: s.names.fresh(base + "_addone"), OpType: "Add", Inputs: []string{th, one.Name}, Outputs: []string{t3}},
			{Name: s.names.fresh(base + "_halfx"), OpType: "Mul", Inputs: []string{x, half.Name}, Outputs: []string{xhalf}},
			{Name: s.names.fresh(base + "_mul"), OpType: "Mul", Inputs: []string{xhalf, t3}, Outputs: []string{y}},
		}, nil
	default:
		return nil, fmt.Errorf("node %q: unknown Gelu approximate %q", nd.Label(), approx)
	}
}

// decomposeMish expands Mish (opset 18) as x * tanh(softplus(x)), which is
// its definition and needs only opset 1 ops.
func decomposeMish(s *scope, nd *onnx.NodeProto) ([]onnx.NodeProto, error) {
	if s.target >= 18 {
		return nil, nil
	}
	if len(nd.Inputs) < 1 || len(nd.Outputs) < 1 {
		return nil, fmt.Errorf("node %q: malformed Mish", nd.Label())
	}
	x, y := nd.Inputs[0], nd.Outputs[0]
	base := nodeBase(nd)
	sp := s.names.fresh(base + "_softplus")
	th := s.names.fresh(base + "_tanh")
	s.adapted(nd, "expanded Mish into x*tanh(softplus(x))")
	return []onnx.NodeProto{
		{Name: s.names.fresh(base + "_sp"), OpType: "Softplus", Inputs: []string{x}, Outputs: []string{sp}},
		{Name: s.names.fresh(base + "_th"), OpType: "Tanh", Inputs: []string{sp}, Outputs: []string{th}},
		{Name: s.names.fresh(base + "_mul"), OpType: "Mul", Inputs: []string{x, th}, Outputs: []string{y}},
	}, nil
}
