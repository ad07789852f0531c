package simplify

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/onnxweb/onnxweb/internal/onnx"
)

func typed(name string, elem int32, dims ...int64) onnx.ValueInfoProto {
	shape := &onnx.TensorShapeProto{}
	for _, d := range dims {
		shape.Dims = append(shape.Dims, onnx.DimensionProto{HasValue: true, Value: d})
	}
	return onnx.ValueInfoProto{
		Name: name,
		Type: &onnx.TypeProto{TensorType: &onnx.TensorTypeProto{ElemType: elem, Shape: shape}},
	}
}

func newModel(g *onnx.GraphProto) *onnx.ModelProto {
	if g.Name == "" {
		g.Name = "main"
	}
	return &onnx.ModelProto{
		IRVersion:   8,
		Graph:       g,
		OpsetImport: []onnx.OperatorSetID{{Version: 14}},
	}
}

func opTypes(g *onnx.GraphProto) []string {
	ops := make([]string, 0, len(g.Nodes))
	for i := range g.Nodes {
		ops = append(ops, g.Nodes[i].OpType)
	}
	return ops
}

func boolTensor(name string, v bool) onnx.TensorProto {
	raw := []byte{0}
	if v {
		raw[0] = 1
	}
	return onnx.TensorProto{Name: name, DataType: onnx.TensorProtoBool, RawData: raw}
}

func TestIdentityChainRemoved(t *testing.T) {
	m := newModel(&onnx.GraphProto{
		Inputs:  []onnx.ValueInfoProto{typed("x", onnx.TensorProtoFloat, 2)},
		Outputs: []onnx.ValueInfoProto{typed("y", onnx.TensorProtoFloat, 2)},
		Nodes: []onnx.NodeProto{
			{OpType: "Identity", Inputs: []string{"x"}, Outputs: []string{"a"}},
			{OpType: "Identity", Inputs: []string{"a"}, Outputs: []string{"b"}},
			{OpType: "Relu", Inputs: []string{"b"}, Outputs: []string{"y"}},
		},
	})
	res, err := Simplify(m, Options{})
	require.NoError(t, err)
	require.True(t, res.Check)
	require.Equal(t, 3, res.NodesBefore)
	require.Equal(t, 1, res.NodesAfter)
	require.Equal(t, []string{"Relu"}, opTypes(res.Model.Graph))
	require.Equal(t, []string{"x"}, res.Model.Graph.Nodes[0].Inputs)
}

func TestIdentityProducingGraphOutputKept(t *testing.T) {
	m := newModel(&onnx.GraphProto{
		Inputs:  []onnx.ValueInfoProto{typed("x", onnx.TensorProtoFloat, 2)},
		Outputs: []onnx.ValueInfoProto{typed("y", onnx.TensorProtoFloat, 2)},
		Nodes: []onnx.NodeProto{
			{OpType: "Relu", Inputs: []string{"x"}, Outputs: []string{"r"}},
			{OpType: "Identity", Inputs: []string{"r"}, Outputs: []string{"y"}},
		},
	})
	res, err := Simplify(m, Options{})
	require.NoError(t, err)
	require.True(t, res.Check)
	require.Equal(t, []string{"Relu", "Identity"}, opTypes(res.Model.Graph))
}

func TestIdentityKeptWhenSubgraphShadowsSource(t *testing.T) {
	branch := func(name string) *onnx.GraphProto {
		return &onnx.GraphProto{
			Name:         name,
			Outputs:      []onnx.ValueInfoProto{typed(name+"_out", onnx.TensorProtoFloat, 2)},
			Initializers: []onnx.TensorProto{onnx.MakeFloat32Tensor("x", []int64{2}, []float32{1, 2})},
			Nodes: []onnx.NodeProto{
				{OpType: "Add", Inputs: []string{"t", "x"}, Outputs: []string{name + "_out"}},
			},
		}
	}
	m := newModel(&onnx.GraphProto{
		Inputs:       []onnx.ValueInfoProto{typed("x", onnx.TensorProtoFloat, 2)},
		Outputs:      []onnx.ValueInfoProto{typed("y", onnx.TensorProtoFloat, 2)},
		Initializers: []onnx.TensorProto{boolTensor("cond", true)},
		Nodes: []onnx.NodeProto{
			{OpType: "Identity", Inputs: []string{"x"}, Outputs: []string{"t"}},
			{
				OpType: "If", Inputs: []string{"cond"}, Outputs: []string{"y"},
				Attributes: []onnx.AttributeProto{
					{Name: "then_branch", Type: onnx.AttributeProtoGraph, G: branch("then")},
					{Name: "else_branch", Type: onnx.AttributeProtoGraph, G: branch("else")},
				},
			},
		},
	})
	res, err := Simplify(m, Options{})
	require.NoError(t, err)
	require.True(t, res.Check)

	// Rewiring t to x inside the branches would be captured by their local
	// x, so the Identity has to stay.
	require.Equal(t, []string{"Identity", "If"}, opTypes(res.Model.Graph))
}

func TestConstantNodeBecomesInitializer(t *testing.T) {
	value := onnx.MakeInt64Tensor("", []int64{2}, []int64{4, 5})
	m := newModel(&onnx.GraphProto{
		Inputs:  []onnx.ValueInfoProto{typed("x", onnx.TensorProtoInt64, 2)},
		Outputs: []onnx.ValueInfoProto{typed("y", onnx.TensorProtoInt64, 2)},
		Nodes: []onnx.NodeProto{
			{
				OpType: "Constant", Outputs: []string{"c"},
				Attributes: []onnx.AttributeProto{{Name: "value", Type: onnx.AttributeProtoTensor, T: &value}},
			},
			{OpType: "Add", Inputs: []string{"x", "c"}, Outputs: []string{"y"}},
		},
	})
	res, err := Simplify(m, Options{})
	require.NoError(t, err)
	require.True(t, res.Check)
	require.Equal(t, []string{"Add"}, opTypes(res.Model.Graph))

	c := res.Model.Graph.InitializerMap()["c"]
	require.NotNil(t, c)
	vals, err := c.Int64Values()
	require.NoError(t, err)
	require.Equal(t, []int64{4, 5}, vals)
}

func TestConstantFeedingGraphOutputKept(t *testing.T) {
	value := onnx.MakeInt64Tensor("", []int64{1}, []int64{7})
	m := newModel(&onnx.GraphProto{
		Outputs: []onnx.ValueInfoProto{typed("y", onnx.TensorProtoInt64, 1)},
		Nodes: []onnx.NodeProto{
			{
				OpType: "Constant", Outputs: []string{"y"},
				Attributes: []onnx.AttributeProto{{Name: "value", Type: onnx.AttributeProtoTensor, T: &value}},
			},
		},
	})
	res, err := Simplify(m, Options{})
	require.NoError(t, err)
	require.True(t, res.Check)
	require.Equal(t, []string{"Constant"}, opTypes(res.Model.Graph))
}

func TestDropoutRemoved(t *testing.T) {
	m := newModel(&onnx.GraphProto{
		Inputs:  []onnx.ValueInfoProto{typed("x", onnx.TensorProtoFloat, 2)},
		Outputs: []onnx.ValueInfoProto{typed("y", onnx.TensorProtoFloat, 2)},
		Nodes: []onnx.NodeProto{
			{OpType: "Dropout", Inputs: []string{"x"}, Outputs: []string{"d", "mask"}},
			{OpType: "Relu", Inputs: []string{"d"}, Outputs: []string{"y"}},
		},
	})
	res, err := Simplify(m, Options{})
	require.NoError(t, err)
	require.True(t, res.Check)
	require.Equal(t, []string{"Relu"}, opTypes(res.Model.Graph))
	require.Equal(t, []string{"x"}, res.Model.Graph.Nodes[0].Inputs)
}

func TestDropoutTrainingModeGatesRemoval(t *testing.T) {
	build := func(training bool) *onnx.ModelProto {
		return newModel(&onnx.GraphProto{
			Inputs:       []onnx.ValueInfoProto{typed("x", onnx.TensorProtoFloat, 2)},
			Outputs:      []onnx.ValueInfoProto{typed("y", onnx.TensorProtoFloat, 2)},
			Initializers: []onnx.TensorProto{boolTensor("tm", training)},
			Nodes: []onnx.NodeProto{
				{OpType: "Dropout", Inputs: []string{"x", "", "tm"}, Outputs: []string{"d"}},
				{OpType: "Relu", Inputs: []string{"d"}, Outputs: []string{"y"}},
			},
		})
	}

	res, err := Simplify(build(false), Options{})
	require.NoError(t, err)
	require.Equal(t, []string{"Relu"}, opTypes(res.Model.Graph))

	res, err = Simplify(build(true), Options{})
	require.NoError(t, err)
	require.Equal(t, []string{"Dropout", "Relu"}, opTypes(res.Model.Graph))
}

func TestDropoutFeedingGraphOutputBecomesIdentity(t *testing.T) {
	m := newModel(&onnx.GraphProto{
		Inputs:  []onnx.ValueInfoProto{typed("x", onnx.TensorProtoFloat, 2)},
		Outputs: []onnx.ValueInfoProto{typed("y", onnx.TensorProtoFloat, 2)},
		Nodes: []onnx.NodeProto{
			{OpType: "Dropout", Inputs: []string{"x"}, Outputs: []string{"y", "mask"}},
		},
	})
	res, err := Simplify(m, Options{})
	require.NoError(t, err)
	require.True(t, res.Check)
	require.Equal(t, []string{"Identity"}, opTypes(res.Model.Graph))
	require.Equal(t, []string{"y"}, res.Model.Graph.Nodes[0].Outputs)
}

func TestDeadNodesAndInitializersPruned(t *testing.T) {
	m := newModel(&onnx.GraphProto{
		Inputs:  []onnx.ValueInfoProto{typed("x", onnx.TensorProtoFloat, 2)},
		Outputs: []onnx.ValueInfoProto{typed("y", onnx.TensorProtoFloat, 2)},
		Initializers: []onnx.TensorProto{
			onnx.MakeFloat32Tensor("junk", []int64{2}, []float32{0, 0}),
		},
		Nodes: []onnx.NodeProto{
			{OpType: "Relu", Inputs: []string{"x"}, Outputs: []string{"unused"}},
			{OpType: "Sigmoid", Inputs: []string{"x"}, Outputs: []string{"y"}},
		},
	})
	res, err := Simplify(m, Options{})
	require.NoError(t, err)
	require.True(t, res.Check)
	require.Equal(t, []string{"Sigmoid"}, opTypes(res.Model.Graph))
	require.Empty(t, res.Model.Graph.Initializers)
	require.Len(t, res.Model.Graph.Inputs, 1)
}

func TestSimplifyDoesNotMutateInput(t *testing.T) {
	m := newModel(&onnx.GraphProto{
		Inputs:  []onnx.ValueInfoProto{typed("x", onnx.TensorProtoFloat, 2)},
		Outputs: []onnx.ValueInfoProto{typed("y", onnx.TensorProtoFloat, 2)},
		Nodes: []onnx.NodeProto{
			{OpType: "Identity", Inputs: []string{"x"}, Outputs: []string{"a"}},
			{OpType: "Relu", Inputs: []string{"a"}, Outputs: []string{"y"}},
		},
	})
	before := onnx.Marshal(m)

	res, err := Simplify(m, Options{})
	require.NoError(t, err)
	require.NotSame(t, m, res.Model)
	require.Len(t, res.Model.Graph.Nodes, 1)
	require.Equal(t, before, onnx.Marshal(m))
}

func TestRoundsCapLimitsCascadedCleanup(t *testing.T) {
	// The Abs keeps the dropout mask alive until dead-node elimination runs,
	// so removing the Dropout itself needs a second round.
	build := func() *onnx.ModelProto {
		return newModel(&onnx.GraphProto{
			Inputs:  []onnx.ValueInfoProto{typed("x", onnx.TensorProtoFloat, 2)},
			Outputs: []onnx.ValueInfoProto{typed("y", onnx.TensorProtoFloat, 2)},
			Nodes: []onnx.NodeProto{
				{OpType: "Dropout", Inputs: []string{"x"}, Outputs: []string{"d", "mask"}},
				{OpType: "Abs", Inputs: []string{"mask"}, Outputs: []string{"deadend"}},
				{OpType: "Relu", Inputs: []string{"d"}, Outputs: []string{"y"}},
			},
		})
	}

	res, err := Simplify(build(), Options{Rounds: 1})
	require.NoError(t, err)
	require.Equal(t, 1, res.Rounds)
	require.Equal(t, []string{"Dropout", "Relu"}, opTypes(res.Model.Graph))

	res, err = Simplify(build(), Options{})
	require.NoError(t, err)
	require.True(t, res.Check)
	require.Equal(t, []string{"Relu"}, opTypes(res.Model.Graph))
}

func TestSimplifyRejectsCyclicGraph(t *testing.T) {
	m := newModel(&onnx.GraphProto{
		Inputs:  []onnx.ValueInfoProto{typed("x", onnx.TensorProtoFloat, 2)},
		Outputs: []onnx.ValueInfoProto{typed("y", onnx.TensorProtoFloat, 2)},
		Nodes: []onnx.NodeProto{
			{OpType: "Add", Inputs: []string{"x", "b"}, Outputs: []string{"a"}},
			{OpType: "Relu", Inputs: []string{"a"}, Outputs: []string{"b"}},
			{OpType: "Relu", Inputs: []string{"b"}, Outputs: []string{"y"}},
		},
	})
	_, err := Simplify(m, Options{})
	require.ErrorContains(t, err, "cycle")
}

func TestSimplifyInsideSubgraph(t *testing.T) {
	branch := func(name string) *onnx.GraphProto {
		return &onnx.GraphProto{
			Name:    name,
			Outputs: []onnx.ValueInfoProto{typed(name+"_out", onnx.TensorProtoFloat, 2)},
			Nodes: []onnx.NodeProto{
				{OpType: "Identity", Inputs: []string{"x"}, Outputs: []string{name + "_t"}},
				{OpType: "Relu", Inputs: []string{name + "_t"}, Outputs: []string{name + "_out"}},
			},
		}
	}
	m := newModel(&onnx.GraphProto{
		Inputs:       []onnx.ValueInfoProto{typed("x", onnx.TensorProtoFloat, 2)},
		Outputs:      []onnx.ValueInfoProto{typed("y", onnx.TensorProtoFloat, 2)},
		Initializers: []onnx.TensorProto{boolTensor("cond", true)},
		Nodes: []onnx.NodeProto{
			{
				OpType: "If", Inputs: []string{"cond"}, Outputs: []string{"y"},
				Attributes: []onnx.AttributeProto{
					{Name: "then_branch", Type: onnx.AttributeProtoGraph, G: branch("then")},
					{Name: "else_branch", Type: onnx.AttributeProtoGraph, G: branch("else")},
				},
			},
		},
	})
	res, err := Simplify(m, Options{})
	require.NoError(t, err)
	require.True(t, res.Check)
	for _, sg := range res.Model.Graph.Nodes[0].Subgraphs() {
		require.Equal(t, []string{"Relu"}, opTypes(sg))
		require.Equal(t, []string{"x"}, sg.Nodes[0].Inputs)
	}
}
