package simplify

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/onnxweb/onnxweb/internal/onnx"
)

func constsOf(tensors ...onnx.TensorProto) map[string]*onnx.TensorProto {
	m := make(map[string]*onnx.TensorProto, len(tensors))
	for i := range tensors {
		m[tensors[i].Name] = &tensors[i]
	}
	return m
}

func i64(name string, dims []int64, vals ...int64) onnx.TensorProto {
	return onnx.MakeInt64Tensor(name, dims, vals)
}

func nd(op string, inputs []string, attrs ...onnx.AttributeProto) *onnx.NodeProto {
	return &onnx.NodeProto{OpType: op, Inputs: inputs, Outputs: []string{"out"}, Attributes: attrs}
}

func requireInts(t *testing.T, tp *onnx.TensorProto, dims, vals []int64) {
	t.Helper()
	require.NotNil(t, tp)
	require.Equal(t, dims, tp.Dims)
	got, err := tp.Int64Values()
	require.NoError(t, err)
	require.Equal(t, vals, got)
}

func TestEvalShape(t *testing.T) {
	fc := &foldCtx{
		// Shape only reads the dims of a constant, never its payload.
		consts: constsOf(onnx.TensorProto{Name: "c", DataType: onnx.TensorProtoFloat, Dims: []int64{5, 6}}),
		types: map[string]*onnx.TypeProto{
			"x": typed("x", onnx.TensorProtoFloat, 2, 3, 4).Type,
		},
	}

	tp, ok := evalShape(fc, nd("Shape", []string{"x"}))
	require.True(t, ok)
	requireInts(t, tp, []int64{3}, []int64{2, 3, 4})

	tp, ok = evalShape(fc, nd("Shape", []string{"x"}, onnx.MakeAttrInt("start", 1)))
	require.True(t, ok)
	requireInts(t, tp, []int64{2}, []int64{3, 4})

	tp, ok = evalShape(fc, nd("Shape", []string{"x"}, onnx.MakeAttrInt("end", -1)))
	require.True(t, ok)
	requireInts(t, tp, []int64{2}, []int64{2, 3})

	tp, ok = evalShape(fc, nd("Shape", []string{"c"}))
	require.True(t, ok)
	requireInts(t, tp, []int64{2}, []int64{5, 6})

	_, ok = evalShape(fc, nd("Shape", []string{"missing"}))
	require.False(t, ok)
}

func TestEvalShapeUnknownDimFails(t *testing.T) {
	shape := &onnx.TensorShapeProto{Dims: []onnx.DimensionProto{
		{Param: "batch"},
		{HasValue: true, Value: 3},
	}}
	fc := &foldCtx{types: map[string]*onnx.TypeProto{
		"x": {TensorType: &onnx.TensorTypeProto{ElemType: onnx.TensorProtoFloat, Shape: shape}},
	}}
	_, ok := evalShape(fc, nd("Shape", []string{"x"}))
	require.False(t, ok)
}

func TestEvalSize(t *testing.T) {
	fc := &foldCtx{types: map[string]*onnx.TypeProto{
		"x": typed("x", onnx.TensorProtoFloat, 2, 3, 4).Type,
	}}
	tp, ok := evalSize(fc, nd("Size", []string{"x"}))
	require.True(t, ok)
	requireInts(t, tp, nil, []int64{24})
}

func TestEvalGather(t *testing.T) {
	fc := &foldCtx{consts: constsOf(
		i64("data", []int64{3, 2}, 1, 2, 3, 4, 5, 6),
		i64("last", nil, -1),
		i64("first", nil, 0),
		i64("big", nil, 3),
	)}

	tp, ok := evalGather(fc, nd("Gather", []string{"data", "last"}))
	require.True(t, ok)
	requireInts(t, tp, []int64{2}, []int64{5, 6})

	tp, ok = evalGather(fc, nd("Gather", []string{"data", "first"}, onnx.MakeAttrInt("axis", 1)))
	require.True(t, ok)
	requireInts(t, tp, []int64{3}, []int64{1, 3, 5})

	_, ok = evalGather(fc, nd("Gather", []string{"data", "big"}))
	require.False(t, ok)
}

func TestEvalSlice(t *testing.T) {
	fc := &foldCtx{consts: constsOf(
		i64("d", []int64{4}, 10, 20, 30, 40),
		i64("s1", []int64{1}, 1),
		i64("e3", []int64{1}, 3),
		i64("sLast", []int64{1}, -1),
		i64("eMin", []int64{1}, math.MinInt64),
		i64("eMax", []int64{1}, math.MaxInt64),
		i64("s0", []int64{1}, 0),
		i64("back", []int64{1}, -1),
	)}

	tp, ok := evalSlice(fc, nd("Slice", []string{"d", "s1", "e3"}))
	require.True(t, ok)
	requireInts(t, tp, []int64{2}, []int64{20, 30})

	tp, ok = evalSlice(fc, nd("Slice", []string{"d", "s0", "eMax"}))
	require.True(t, ok)
	requireInts(t, tp, []int64{4}, []int64{10, 20, 30, 40})

	tp, ok = evalSlice(fc, nd("Slice", []string{"d", "sLast", "eMin", "", "back"}))
	require.True(t, ok)
	requireInts(t, tp, []int64{4}, []int64{40, 30, 20, 10})

	tp, ok = evalSlice(fc, nd("Slice", []string{"d"},
		onnx.MakeAttrInts("starts", []int64{2}), onnx.MakeAttrInts("ends", []int64{4})))
	require.True(t, ok)
	requireInts(t, tp, []int64{2}, []int64{30, 40})
}

func TestEvalConcat(t *testing.T) {
	fc := &foldCtx{consts: constsOf(
		i64("a", []int64{2}, 1, 2),
		i64("b", []int64{1}, 3),
	)}

	tp, ok := evalConcat(fc, nd("Concat", []string{"a", "b"}, onnx.MakeAttrInt("axis", 0)))
	require.True(t, ok)
	requireInts(t, tp, []int64{3}, []int64{1, 2, 3})

	_, ok = evalConcat(fc, nd("Concat", []string{"a", "b"}, onnx.MakeAttrInt("axis", 1)))
	require.False(t, ok)
}

func TestEvalSqueeze(t *testing.T) {
	fc := &foldCtx{consts: constsOf(
		i64("d", []int64{1, 3, 1}, 7, 8, 9),
		i64("axes", []int64{2}, 0, -1),
		i64("mid", []int64{1}, 1),
	)}

	tp, ok := evalSqueeze(fc, nd("Squeeze", []string{"d", "axes"}))
	require.True(t, ok)
	requireInts(t, tp, []int64{3}, []int64{7, 8, 9})

	tp, ok = evalSqueeze(fc, nd("Squeeze", []string{"d"}))
	require.True(t, ok)
	requireInts(t, tp, []int64{3}, []int64{7, 8, 9})

	// Axis 1 spans three elements, so it cannot be squeezed.
	_, ok = evalSqueeze(fc, nd("Squeeze", []string{"d", "mid"}))
	require.False(t, ok)
}

func TestEvalUnsqueeze(t *testing.T) {
	fc := &foldCtx{consts: constsOf(
		i64("d", []int64{3}, 7, 8, 9),
		i64("axes", []int64{2}, 0, 2),
	)}

	tp, ok := evalUnsqueeze(fc, nd("Unsqueeze", []string{"d", "axes"}))
	require.True(t, ok)
	requireInts(t, tp, []int64{1, 3, 1}, []int64{7, 8, 9})

	tp, ok = evalUnsqueeze(fc, nd("Unsqueeze", []string{"d"}, onnx.MakeAttrInts("axes", []int64{0})))
	require.True(t, ok)
	requireInts(t, tp, []int64{1, 3}, []int64{7, 8, 9})
}

func TestEvalCast(t *testing.T) {
	fc := &foldCtx{consts: constsOf(
		i64("ints", []int64{2}, 1, 2),
		onnx.MakeFloat32Tensor("floats", []int64{2}, []float32{1.9, -1.9}),
	)}

	tp, ok := evalCast(fc, nd("Cast", []string{"ints"}, onnx.MakeAttrInt("to", onnx.TensorProtoFloat)))
	require.True(t, ok)
	require.Equal(t, int32(onnx.TensorProtoFloat), tp.DataType)
	fs, err := tp.Float32Values()
	require.NoError(t, err)
	require.Equal(t, []float32{1, 2}, fs)

	tp, ok = evalCast(fc, nd("Cast", []string{"floats"}, onnx.MakeAttrInt("to", onnx.TensorProtoInt64)))
	require.True(t, ok)
	requireInts(t, tp, []int64{2}, []int64{1, -1})

	tp, ok = evalCast(fc, nd("Cast", []string{"ints"}, onnx.MakeAttrInt("to", onnx.TensorProtoInt32)))
	require.True(t, ok)
	require.Equal(t, int32(onnx.TensorProtoInt32), tp.DataType)
	requireInts(t, tp, []int64{2}, []int64{1, 2})

	_, ok = evalCast(fc, nd("Cast", []string{"ints"}, onnx.MakeAttrInt("to", onnx.TensorProtoString)))
	require.False(t, ok)
}

func TestEvalCastUnrepresentableFloats(t *testing.T) {
	fc := &foldCtx{consts: constsOf(
		onnx.MakeFloat32Tensor("nan", []int64{1}, []float32{float32(math.NaN())}),
		onnx.MakeFloat32Tensor("inf", []int64{2}, []float32{float32(math.Inf(1)), float32(math.Inf(-1))}),
		onnx.MakeFloat32Tensor("huge", []int64{1}, []float32{1e19}),
		onnx.MakeFloat32Tensor("wide", []int64{1}, []float32{3e9}),
	)}

	for _, name := range []string{"nan", "inf", "huge"} {
		_, ok := evalCast(fc, nd("Cast", []string{name}, onnx.MakeAttrInt("to", onnx.TensorProtoInt64)))
		require.False(t, ok, name)
	}

	// 3e9 overflows int32 but fits int64.
	_, ok := evalCast(fc, nd("Cast", []string{"wide"}, onnx.MakeAttrInt("to", onnx.TensorProtoInt32)))
	require.False(t, ok)
	tp, ok := evalCast(fc, nd("Cast", []string{"wide"}, onnx.MakeAttrInt("to", onnx.TensorProtoInt64)))
	require.True(t, ok)
	requireInts(t, tp, []int64{1}, []int64{3000000000})
}

func TestEvalTranspose(t *testing.T) {
	fc := &foldCtx{consts: constsOf(i64("d", []int64{2, 3}, 1, 2, 3, 4, 5, 6))}

	tp, ok := evalTranspose(fc, nd("Transpose", []string{"d"}, onnx.MakeAttrInts("perm", []int64{1, 0})))
	require.True(t, ok)
	requireInts(t, tp, []int64{3, 2}, []int64{1, 4, 2, 5, 3, 6})

	tp, ok = evalTranspose(fc, nd("Transpose", []string{"d"}))
	require.True(t, ok)
	requireInts(t, tp, []int64{3, 2}, []int64{1, 4, 2, 5, 3, 6})
}

func TestEvalReshape(t *testing.T) {
	fc := &foldCtx{consts: constsOf(
		i64("d", []int64{2, 3}, 1, 2, 3, 4, 5, 6),
		i64("infer", []int64{2}, 3, -1),
		i64("copy", []int64{2}, 0, 3),
		i64("bad", []int64{2}, 4, 2),
	)}

	tp, ok := evalReshape(fc, nd("Reshape", []string{"d", "infer"}))
	require.True(t, ok)
	requireInts(t, tp, []int64{3, 2}, []int64{1, 2, 3, 4, 5, 6})

	tp, ok = evalReshape(fc, nd("Reshape", []string{"d", "copy"}))
	require.True(t, ok)
	requireInts(t, tp, []int64{2, 3}, []int64{1, 2, 3, 4, 5, 6})

	_, ok = evalReshape(fc, nd("Reshape", []string{"d", "bad"}))
	require.False(t, ok)
}

func TestEvalRange(t *testing.T) {
	fc := &foldCtx{consts: constsOf(
		i64("zero", nil, 0), i64("five", nil, 5), i64("two", nil, 2),
		i64("minusTwo", nil, -2), i64("nil0", nil, 0),
	)}

	tp, ok := evalRange(fc, nd("Range", []string{"zero", "five", "two"}))
	require.True(t, ok)
	requireInts(t, tp, []int64{3}, []int64{0, 2, 4})

	tp, ok = evalRange(fc, nd("Range", []string{"five", "zero", "minusTwo"}))
	require.True(t, ok)
	requireInts(t, tp, []int64{3}, []int64{5, 3, 1})

	_, ok = evalRange(fc, nd("Range", []string{"zero", "five", "nil0"}))
	require.False(t, ok)
}

func TestEvalArith(t *testing.T) {
	fc := &foldCtx{consts: constsOf(
		i64("a", []int64{2}, 1, 2),
		i64("b", []int64{2}, 10, 20),
		i64("three", nil, 3),
		i64("ten", nil, 10),
		i64("zero", nil, 0),
	)}

	tp, ok := evalArith(fc, nd("Add", []string{"a", "b"}))
	require.True(t, ok)
	requireInts(t, tp, []int64{2}, []int64{11, 22})

	tp, ok = evalArith(fc, nd("Mul", []string{"a", "three"}))
	require.True(t, ok)
	requireInts(t, tp, []int64{2}, []int64{3, 6})

	tp, ok = evalArith(fc, nd("Sub", []string{"ten", "a"}))
	require.True(t, ok)
	requireInts(t, tp, []int64{2}, []int64{9, 8})

	tp, ok = evalArith(fc, nd("Div", []string{"b", "three"}))
	require.True(t, ok)
	requireInts(t, tp, []int64{2}, []int64{3, 6})

	_, ok = evalArith(fc, nd("Div", []string{"a", "zero"}))
	require.False(t, ok)
}

func TestEvalConstantOfShape(t *testing.T) {
	seven := i64("", nil, 7)
	fc := &foldCtx{consts: constsOf(i64("shape", []int64{2}, 2, 2))}

	tp, ok := evalConstantOfShape(fc, nd("ConstantOfShape", []string{"shape"}))
	require.True(t, ok)
	require.Equal(t, int32(onnx.TensorProtoFloat), tp.DataType)
	require.Equal(t, []int64{2, 2}, tp.Dims)
	fs, err := tp.Float32Values()
	require.NoError(t, err)
	require.Equal(t, []float32{0, 0, 0, 0}, fs)

	tp, ok = evalConstantOfShape(fc, nd("ConstantOfShape", []string{"shape"},
		onnx.AttributeProto{Name: "value", Type: onnx.AttributeProtoTensor, T: &seven}))
	require.True(t, ok)
	requireInts(t, tp, []int64{2, 2}, []int64{7, 7, 7, 7})
}

func TestShapeChainFoldsThroughPipeline(t *testing.T) {
	m := newModel(&onnx.GraphProto{
		Inputs:  []onnx.ValueInfoProto{typed("x", onnx.TensorProtoFloat, 2, 3, 4)},
		Outputs: []onnx.ValueInfoProto{typed("y", onnx.TensorProtoFloat, 3, 4, 8)},
		Initializers: []onnx.TensorProto{
			i64("starts", []int64{1}, 1),
			i64("ends", []int64{1}, 3),
			i64("eight", []int64{1}, 8),
		},
		Nodes: []onnx.NodeProto{
			{OpType: "Shape", Inputs: []string{"x"}, Outputs: []string{"s"}},
			{OpType: "Slice", Inputs: []string{"s", "starts", "ends"}, Outputs: []string{"tail"}},
			{OpType: "Concat", Inputs: []string{"tail", "eight"}, Outputs: []string{"shape2"},
				Attributes: []onnx.AttributeProto{onnx.MakeAttrInt("axis", 0)}},
			{OpType: "Reshape", Inputs: []string{"x", "shape2"}, Outputs: []string{"y"}},
		},
	})
	res, err := Simplify(m, Options{})
	require.NoError(t, err)
	require.True(t, res.Check)
	require.Equal(t, []string{"Reshape"}, opTypes(res.Model.Graph))

	shape2 := res.Model.Graph.InitializerMap()["shape2"]
	requireInts(t, shape2, []int64{3}, []int64{3, 4, 8})

	// Everything the folded chain consumed is gone.
	require.Len(t, res.Model.Graph.Initializers, 1)
}

func TestFoldSkipsGraphOutputProducers(t *testing.T) {
	m := newModel(&onnx.GraphProto{
		Outputs: []onnx.ValueInfoProto{typed("y", onnx.TensorProtoInt64, 2)},
		Initializers: []onnx.TensorProto{
			i64("a", []int64{2}, 1, 2),
			i64("b", []int64{2}, 10, 20),
		},
		Nodes: []onnx.NodeProto{
			{OpType: "Add", Inputs: []string{"a", "b"}, Outputs: []string{"y"}},
		},
	})
	res, err := Simplify(m, Options{})
	require.NoError(t, err)
	require.True(t, res.Check)
	require.Equal(t, []string{"Add"}, opTypes(res.Model.Graph))
	require.Len(t, res.Model.Graph.Initializers, 2)
}
