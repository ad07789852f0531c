package simplify

import (
	"encoding/binary"
	"math"
	"sort"

	"github.com/onnxweb/onnxweb/internal/onnx"
)

// maxFoldElements bounds the size of any tensor the folder will materialize.
// Folding exists for shape plumbing, not for precomputing weight-sized data.
const maxFoldElements = 64 * 1024

// foldCtx is the view of one graph the evaluators work against.
type foldCtx struct {
	consts map[string]*onnx.TensorProto
	types  map[string]*onnx.TypeProto
}

// evalFunc computes a node's output from constant inputs. Returning false
// means the node cannot be folded, which is never an error.
type evalFunc func(fc *foldCtx, nd *onnx.NodeProto) (*onnx.TensorProto, bool)

var evaluators = map[string]evalFunc{
	"Shape":           evalShape,
	"Size":            evalSize,
	"Gather":          evalGather,
	"Slice":           evalSlice,
	"Concat":          evalConcat,
	"Squeeze":         evalSqueeze,
	"Unsqueeze":       evalUnsqueeze,
	"Cast":            evalCast,
	"Transpose":       evalTranspose,
	"Reshape":         evalReshape,
	"Range":           evalRange,
	"Add":             evalArith,
	"Sub":             evalArith,
	"Mul":             evalArith,
	"Div":             evalArith,
	"ConstantOfShape": evalConstantOfShape,
}

// foldConstants replaces nodes whose inputs are all statically known with
// initializers holding the computed result. The orchestrator topo-sorts the
// graph first, so one sweep propagates constants through whole chains.
func foldConstants(st *state, g *onnx.GraphProto) (int, error) {
	changed := 0
	for i := range g.Nodes {
		for _, sg := range g.Nodes[i].Subgraphs() {
			n, err := foldConstants(st, sg)
			if err != nil {
				return changed, err
			}
			changed += n
		}
	}
	fc := &foldCtx{consts: constTensors(g), types: valueTypes(g)}
	outs := outputSet(g)
	kept := g.Nodes[:0]
	for i := range g.Nodes {
		nd := &g.Nodes[i]
		eval, ok := evaluators[nd.OpType]
		if !ok || nd.Domain != "" || len(nd.Outputs) != 1 || outs[nd.Outputs[0]] || len(nd.Subgraphs()) > 0 {
			kept = append(kept, *nd)
			continue
		}
		tp, ok := eval(fc, nd)
		if !ok || tp.ElementCount() > maxFoldElements {
			kept = append(kept, *nd)
			continue
		}
		tp.Name = nd.Outputs[0]
		g.Initializers = append(g.Initializers, *tp)
		cp := *tp
		fc.consts[tp.Name] = &cp
		changed++
	}
	g.Nodes = kept
	return changed, nil
}

// valueTypes indexes declared value types so Shape can fold even when its
// input is not a constant, as long as every dimension is fixed.
func valueTypes(g *onnx.GraphProto) map[string]*onnx.TypeProto {
	types := make(map[string]*onnx.TypeProto)
	for _, list := range [][]onnx.ValueInfoProto{g.Inputs, g.Outputs, g.ValueInfos} {
		for i := range list {
			if list[i].Type != nil {
				types[list[i].Name] = list[i].Type
			}
		}
	}
	return types
}

func (fc *foldCtx) tensor(name string) *onnx.TensorProto {
	if name == "" {
		return nil
	}
	return fc.consts[name]
}

// ints reads a constant integer tensor (int64 or int32).
func (fc *foldCtx) ints(name string) ([]int64, bool) {
	t := fc.tensor(name)
	if t == nil {
		return nil, false
	}
	vals, err := t.Int64Values()
	if err != nil {
		return nil, false
	}
	return vals, true
}

func (fc *foldCtx) scalarInt(name string) (int64, bool) {
	vals, ok := fc.ints(name)
	if !ok || len(vals) != 1 {
		return 0, false
	}
	return vals[0], true
}

// shapeOf resolves the static shape of a value, from its constant payload or
// from a fully-specified declared type.
func (fc *foldCtx) shapeOf(name string) ([]int64, bool) {
	if t := fc.tensor(name); t != nil {
		return t.Dims, true
	}
	tp, ok := fc.types[name]
	if !ok || tp.TensorType == nil || tp.TensorType.Shape == nil {
		return nil, false
	}
	dims := make([]int64, 0, len(tp.TensorType.Shape.Dims))
	for _, d := range tp.TensorType.Shape.Dims {
		if !d.HasValue {
			return nil, false
		}
		dims = append(dims, d.Value)
	}
	return dims, true
}

func evalShape(fc *foldCtx, nd *onnx.NodeProto) (*onnx.TensorProto, bool) {
	if len(nd.Inputs) != 1 || nd.Inputs[0] == "" {
		return nil, false
	}
	dims, ok := fc.shapeOf(nd.Inputs[0])
	if !ok {
		return nil, false
	}
	rank := int64(len(dims))
	start := clampShapeIndex(nd.AttrInt("start", 0), rank)
	end := clampShapeIndex(nd.AttrInt("end", rank), rank)
	if end < start {
		end = start
	}
	vals := append([]int64(nil), dims[start:end]...)
	t := onnx.MakeInt64Tensor("", []int64{int64(len(vals))}, vals)
	return &t, true
}

func clampShapeIndex(v, rank int64) int64 {
	if v < 0 {
		v += rank
	}
	if v < 0 {
		return 0
	}
	if v > rank {
		return rank
	}
	return v
}

func evalSize(fc *foldCtx, nd *onnx.NodeProto) (*onnx.TensorProto, bool) {
	if len(nd.Inputs) != 1 || nd.Inputs[0] == "" {
		return nil, false
	}
	dims, ok := fc.shapeOf(nd.Inputs[0])
	if !ok {
		return nil, false
	}
	n := int64(1)
	for _, d := range dims {
		n *= d
	}
	t := onnx.MakeInt64Tensor("", nil, []int64{n})
	return &t, true
}

func evalGather(fc *foldCtx, nd *onnx.NodeProto) (*onnx.TensorProto, bool) {
	if len(nd.Inputs) != 2 {
		return nil, false
	}
	data := fc.tensor(nd.Inputs[0])
	idxT := fc.tensor(nd.Inputs[1])
	if data == nil || idxT == nil || data.ElementCount() > maxFoldElements {
		return nil, false
	}
	vals, err := data.Int64Values()
	if err != nil {
		return nil, false
	}
	indices, err := idxT.Int64Values()
	if err != nil {
		return nil, false
	}
	rank := int64(len(data.Dims))
	if rank == 0 {
		return nil, false
	}
	axis := nd.AttrInt("axis", 0)
	if axis < 0 {
		axis += rank
	}
	if axis < 0 || axis >= rank {
		return nil, false
	}
	outer, inner := int64(1), int64(1)
	for _, d := range data.Dims[:axis] {
		outer *= d
	}
	for _, d := range data.Dims[axis+1:] {
		inner *= d
	}
	axisLen := data.Dims[axis]
	total := outer * int64(len(indices)) * inner
	if total > maxFoldElements {
		return nil, false
	}
	out := make([]int64, 0, total)
	for o := int64(0); o < outer; o++ {
		for _, ix := range indices {
			if ix < 0 {
				ix += axisLen
			}
			if ix < 0 || ix >= axisLen {
				return nil, false
			}
			base := (o*axisLen + ix) * inner
			out = append(out, vals[base:base+inner]...)
		}
	}
	outDims := append([]int64(nil), data.Dims[:axis]...)
	outDims = append(outDims, idxT.Dims...)
	outDims = append(outDims, data.Dims[axis+1:]...)
	t := onnx.MakeInt64Tensor("", outDims, out)
	return &t, true
}

// evalSlice folds 1-D integer slices, the form shape pipelines produce. Both
// the input form (opset 10+) and the older attribute form are understood.
func evalSlice(fc *foldCtx, nd *onnx.NodeProto) (*onnx.TensorProto, bool) {
	if len(nd.Inputs) == 0 {
		return nil, false
	}
	data := fc.tensor(nd.Inputs[0])
	if data == nil || len(data.Dims) != 1 {
		return nil, false
	}
	vals, err := data.Int64Values()
	if err != nil {
		return nil, false
	}
	var starts, ends, axes, steps []int64
	if len(nd.Inputs) >= 3 {
		var ok bool
		if starts, ok = fc.ints(nd.Inputs[1]); !ok {
			return nil, false
		}
		if ends, ok = fc.ints(nd.Inputs[2]); !ok {
			return nil, false
		}
		if len(nd.Inputs) > 3 && nd.Inputs[3] != "" {
			if axes, ok = fc.ints(nd.Inputs[3]); !ok {
				return nil, false
			}
		}
		if len(nd.Inputs) > 4 && nd.Inputs[4] != "" {
			if steps, ok = fc.ints(nd.Inputs[4]); !ok {
				return nil, false
			}
		}
	} else {
		starts = nd.AttrInts("starts")
		ends = nd.AttrInts("ends")
		axes = nd.AttrInts("axes")
	}
	if len(starts) != 1 || len(ends) != 1 {
		return nil, false
	}
	if len(axes) == 1 && axes[0] != 0 && axes[0] != -1 {
		return nil, false
	}
	step := int64(1)
	if len(steps) == 1 {
		step = steps[0]
	}
	if step == 0 {
		return nil, false
	}
	dim := int64(len(vals))
	start := clampSliceIndex(starts[0], dim, step)
	end := clampSliceIndex(ends[0], dim, step)
	var out []int64
	if step > 0 {
		for i := start; i < end; i += step {
			out = append(out, vals[i])
		}
	} else {
		for i := start; i > end; i += step {
			out = append(out, vals[i])
		}
	}
	t := onnx.MakeInt64Tensor("", []int64{int64(len(out))}, out)
	return &t, true
}

// clampSliceIndex normalizes a slice bound the way the Slice operator does,
// including the INT_MIN/INT_MAX sentinels exporters emit for open ranges.
func clampSliceIndex(v, dim, step int64) int64 {
	if v < 0 {
		if v < -dim {
			if step > 0 {
				return 0
			}
			return -1
		}
		v += dim
	}
	if step > 0 {
		if v > dim {
			return dim
		}
		return v
	}
	if v > dim-1 {
		return dim - 1
	}
	return v
}

func evalConcat(fc *foldCtx, nd *onnx.NodeProto) (*onnx.TensorProto, bool) {
	if len(nd.Inputs) == 0 {
		return nil, false
	}
	axis := nd.AttrInt("axis", 0)
	if axis != 0 && axis != -1 {
		return nil, false
	}
	var out []int64
	for _, in := range nd.Inputs {
		t := fc.tensor(in)
		if t == nil || len(t.Dims) != 1 || t.ElementCount() > maxFoldElements {
			return nil, false
		}
		vals, err := t.Int64Values()
		if err != nil {
			return nil, false
		}
		out = append(out, vals...)
	}
	t := onnx.MakeInt64Tensor("", []int64{int64(len(out))}, out)
	return &t, true
}

// squeezeAxes resolves the axes of a Squeeze or Unsqueeze from the attribute
// form or the input form, whichever the node carries.
func squeezeAxes(fc *foldCtx, nd *onnx.NodeProto) ([]int64, bool, bool) {
	if a := nd.Attr("axes"); a != nil {
		return append([]int64(nil), a.Ints...), true, true
	}
	if len(nd.Inputs) > 1 && nd.Inputs[1] != "" {
		axes, ok := fc.ints(nd.Inputs[1])
		return axes, true, ok
	}
	return nil, false, true
}

func evalSqueeze(fc *foldCtx, nd *onnx.NodeProto) (*onnx.TensorProto, bool) {
	if len(nd.Inputs) == 0 {
		return nil, false
	}
	data := fc.tensor(nd.Inputs[0])
	if data == nil {
		return nil, false
	}
	axes, have, ok := squeezeAxes(fc, nd)
	if !ok {
		return nil, false
	}
	rank := int64(len(data.Dims))
	drop := make(map[int64]bool)
	if have {
		for _, a := range axes {
			if a < 0 {
				a += rank
			}
			if a < 0 || a >= rank || data.Dims[a] != 1 {
				return nil, false
			}
			drop[a] = true
		}
	} else {
		for i, d := range data.Dims {
			if d == 1 {
				drop[int64(i)] = true
			}
		}
	}
	var dims []int64
	for i, d := range data.Dims {
		if !drop[int64(i)] {
			dims = append(dims, d)
		}
	}
	out := *data
	out.Name = ""
	out.Dims = dims
	return &out, true
}

func evalUnsqueeze(fc *foldCtx, nd *onnx.NodeProto) (*onnx.TensorProto, bool) {
	if len(nd.Inputs) == 0 {
		return nil, false
	}
	data := fc.tensor(nd.Inputs[0])
	if data == nil {
		return nil, false
	}
	axes, have, ok := squeezeAxes(fc, nd)
	if !ok || !have || len(axes) == 0 {
		return nil, false
	}
	outRank := int64(len(data.Dims) + len(axes))
	norm := make([]int64, 0, len(axes))
	seen := make(map[int64]bool)
	for _, a := range axes {
		if a < 0 {
			a += outRank
		}
		if a < 0 || a >= outRank || seen[a] {
			return nil, false
		}
		seen[a] = true
		norm = append(norm, a)
	}
	sort.Slice(norm, func(i, j int) bool { return norm[i] < norm[j] })
	dims := make([]int64, 0, outRank)
	src := 0
	for i := int64(0); i < outRank; i++ {
		if seen[i] {
			dims = append(dims, 1)
			continue
		}
		dims = append(dims, data.Dims[src])
		src++
	}
	out := *data
	out.Name = ""
	out.Dims = dims
	return &out, true
}

func evalCast(fc *foldCtx, nd *onnx.NodeProto) (*onnx.TensorProto, bool) {
	if len(nd.Inputs) == 0 {
		return nil, false
	}
	data := fc.tensor(nd.Inputs[0])
	if data == nil || data.ElementCount() > maxFoldElements {
		return nil, false
	}
	to := int32(nd.AttrInt("to", 0))
	dims := append([]int64(nil), data.Dims...)
	switch data.DataType {
	case onnx.TensorProtoInt64, onnx.TensorProtoInt32:
		vals, err := data.Int64Values()
		if err != nil {
			return nil, false
		}
		return castFromInts(vals, dims, to)
	case onnx.TensorProtoFloat, onnx.TensorProtoDouble:
		vals, ok := floatValues(data)
		if !ok {
			return nil, false
		}
		return castFromFloats(vals, dims, to)
	}
	return nil, false
}

func castFromInts(vals []int64, dims []int64, to int32) (*onnx.TensorProto, bool) {
	switch to {
	case onnx.TensorProtoInt64:
		t := onnx.MakeInt64Tensor("", dims, vals)
		return &t, true
	case onnx.TensorProtoInt32:
		return rawInt32Tensor(dims, vals), true
	case onnx.TensorProtoFloat:
		fs := make([]float32, len(vals))
		for i, v := range vals {
			fs[i] = float32(v)
		}
		t := onnx.MakeFloat32Tensor("", dims, fs)
		return &t, true
	case onnx.TensorProtoDouble:
		ds := make([]float64, len(vals))
		for i, v := range vals {
			ds[i] = float64(v)
		}
		return rawFloat64Tensor(dims, ds), true
	}
	return nil, false
}

func castFromFloats(vals []float64, dims []int64, to int32) (*onnx.TensorProto, bool) {
	switch to {
	case onnx.TensorProtoInt64:
		is := make([]int64, len(vals))
		for i, v := range vals {
			if !castableToInt(v, to) {
				return nil, false
			}
			is[i] = int64(v)
		}
		t := onnx.MakeInt64Tensor("", dims, is)
		return &t, true
	case onnx.TensorProtoInt32:
		is := make([]int64, len(vals))
		for i, v := range vals {
			if !castableToInt(v, to) {
				return nil, false
			}
			is[i] = int64(v)
		}
		return rawInt32Tensor(dims, is), true
	case onnx.TensorProtoFloat:
		fs := make([]float32, len(vals))
		for i, v := range vals {
			fs[i] = float32(v)
		}
		t := onnx.MakeFloat32Tensor("", dims, fs)
		return &t, true
	case onnx.TensorProtoDouble:
		return rawFloat64Tensor(dims, vals), true
	}
	return nil, false
}

// castableToInt reports whether int64(v) lands inside the target type. Go
// does not define the conversion when v is NaN or out of the target's range,
// so such Casts stay in the graph for the runtime to evaluate.
func castableToInt(v float64, to int32) bool {
	if math.IsNaN(v) {
		return false
	}
	if to == onnx.TensorProtoInt32 {
		return v >= math.MinInt32 && v <= math.MaxInt32
	}
	// float64(math.MaxInt64) rounds up to 2^63, one past the largest
	// int64, so the upper bound is exclusive.
	return v >= math.MinInt64 && v < math.MaxInt64
}

func evalTranspose(fc *foldCtx, nd *onnx.NodeProto) (*onnx.TensorProto, bool) {
	if len(nd.Inputs) == 0 {
		return nil, false
	}
	data := fc.tensor(nd.Inputs[0])
	if data == nil || data.ElementCount() > maxFoldElements {
		return nil, false
	}
	vals, err := data.Int64Values()
	if err != nil {
		return nil, false
	}
	rank := len(data.Dims)
	perm := nd.AttrInts("perm")
	if perm == nil {
		perm = make([]int64, rank)
		for i := range perm {
			perm[i] = int64(rank - 1 - i)
		}
	}
	if len(perm) != rank {
		return nil, false
	}
	seen := make(map[int64]bool)
	for _, p := range perm {
		if p < 0 || p >= int64(rank) || seen[p] {
			return nil, false
		}
		seen[p] = true
	}
	inStrides := make([]int64, rank)
	stride := int64(1)
	for i := rank - 1; i >= 0; i-- {
		inStrides[i] = stride
		stride *= data.Dims[i]
	}
	outDims := make([]int64, rank)
	for i, p := range perm {
		outDims[i] = data.Dims[p]
	}
	out := make([]int64, len(vals))
	coord := make([]int64, rank)
	for i := range out {
		src := int64(0)
		for j := 0; j < rank; j++ {
			src += coord[j] * inStrides[perm[j]]
		}
		out[i] = vals[src]
		for j := rank - 1; j >= 0; j-- {
			coord[j]++
			if coord[j] < outDims[j] {
				break
			}
			coord[j] = 0
		}
	}
	t := onnx.MakeInt64Tensor("", outDims, out)
	return &t, true
}

func evalReshape(fc *foldCtx, nd *onnx.NodeProto) (*onnx.TensorProto, bool) {
	if len(nd.Inputs) < 2 {
		return nil, false
	}
	data := fc.tensor(nd.Inputs[0])
	if data == nil {
		return nil, false
	}
	shape, ok := fc.ints(nd.Inputs[1])
	if !ok {
		return nil, false
	}
	allowZero := nd.AttrInt("allowzero", 0) != 0
	count := data.ElementCount()
	dims := make([]int64, len(shape))
	infer := -1
	known := int64(1)
	for i, d := range shape {
		switch {
		case d == 0 && !allowZero:
			if i >= len(data.Dims) {
				return nil, false
			}
			dims[i] = data.Dims[i]
			known *= dims[i]
		case d == -1:
			if infer >= 0 {
				return nil, false
			}
			infer = i
		case d < 0:
			return nil, false
		default:
			dims[i] = d
			known *= d
		}
	}
	if infer >= 0 {
		if known == 0 || count%known != 0 {
			return nil, false
		}
		dims[infer] = count / known
		known *= dims[infer]
	}
	if known != count {
		return nil, false
	}
	out := *data
	out.Name = ""
	out.Dims = dims
	return &out, true
}

func evalRange(fc *foldCtx, nd *onnx.NodeProto) (*onnx.TensorProto, bool) {
	if len(nd.Inputs) != 3 {
		return nil, false
	}
	start, ok1 := fc.scalarInt(nd.Inputs[0])
	limit, ok2 := fc.scalarInt(nd.Inputs[1])
	delta, ok3 := fc.scalarInt(nd.Inputs[2])
	if !ok1 || !ok2 || !ok3 || delta == 0 {
		return nil, false
	}
	var out []int64
	if delta > 0 {
		for v := start; v < limit && len(out) <= maxFoldElements; v += delta {
			out = append(out, v)
		}
	} else {
		for v := start; v > limit && len(out) <= maxFoldElements; v += delta {
			out = append(out, v)
		}
	}
	if len(out) > maxFoldElements {
		return nil, false
	}
	t := onnx.MakeInt64Tensor("", []int64{int64(len(out))}, out)
	return &t, true
}

// evalArith folds integer Add/Sub/Mul/Div, either elementwise on matching
// shapes or with a scalar on one side.
func evalArith(fc *foldCtx, nd *onnx.NodeProto) (*onnx.TensorProto, bool) {
	if len(nd.Inputs) != 2 {
		return nil, false
	}
	a := fc.tensor(nd.Inputs[0])
	b := fc.tensor(nd.Inputs[1])
	if a == nil || b == nil || a.ElementCount() > maxFoldElements || b.ElementCount() > maxFoldElements {
		return nil, false
	}
	if a.DataType != onnx.TensorProtoInt64 && a.DataType != onnx.TensorProtoInt32 {
		return nil, false
	}
	if b.DataType != onnx.TensorProtoInt64 && b.DataType != onnx.TensorProtoInt32 {
		return nil, false
	}
	av, err := a.Int64Values()
	if err != nil {
		return nil, false
	}
	bv, err := b.Int64Values()
	if err != nil {
		return nil, false
	}
	dims := a.Dims
	switch {
	case sameDims(a.Dims, b.Dims):
	case len(bv) == 1:
		bs := bv[0]
		bv = make([]int64, len(av))
		for i := range bv {
			bv[i] = bs
		}
	case len(av) == 1:
		as := av[0]
		av = make([]int64, len(bv))
		for i := range av {
			av[i] = as
		}
		dims = b.Dims
	default:
		return nil, false
	}
	out := make([]int64, len(av))
	for i := range av {
		switch nd.OpType {
		case "Add":
			out[i] = av[i] + bv[i]
		case "Sub":
			out[i] = av[i] - bv[i]
		case "Mul":
			out[i] = av[i] * bv[i]
		case "Div":
			if bv[i] == 0 {
				return nil, false
			}
			out[i] = av[i] / bv[i]
		}
	}
	t := onnx.MakeInt64Tensor("", append([]int64(nil), dims...), out)
	return &t, true
}

func evalConstantOfShape(fc *foldCtx, nd *onnx.NodeProto) (*onnx.TensorProto, bool) {
	if len(nd.Inputs) != 1 {
		return nil, false
	}
	shape, ok := fc.ints(nd.Inputs[0])
	if !ok {
		return nil, false
	}
	count := int64(1)
	for _, d := range shape {
		if d < 0 {
			return nil, false
		}
		count *= d
	}
	if count > maxFoldElements {
		return nil, false
	}
	dims := append([]int64(nil), shape...)
	value := nd.Attr("value")
	if value == nil || value.T == nil {
		t := onnx.MakeFloat32Tensor("", dims, make([]float32, count))
		return &t, true
	}
	fill := value.T
	if fill.ElementCount() != 1 {
		return nil, false
	}
	switch fill.DataType {
	case onnx.TensorProtoInt64, onnx.TensorProtoInt32:
		vals, err := fill.Int64Values()
		if err != nil {
			return nil, false
		}
		out := make([]int64, count)
		for i := range out {
			out[i] = vals[0]
		}
		if fill.DataType == onnx.TensorProtoInt32 {
			return rawInt32Tensor(dims, out), true
		}
		t := onnx.MakeInt64Tensor("", dims, out)
		return &t, true
	case onnx.TensorProtoFloat:
		vals, err := fill.Float32Values()
		if err != nil {
			return nil, false
		}
		out := make([]float32, count)
		for i := range out {
			out[i] = vals[0]
		}
		t := onnx.MakeFloat32Tensor("", dims, out)
		return &t, true
	}
	return nil, false
}

func sameDims(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// floatValues reads a float or double tensor as float64s.
func floatValues(t *onnx.TensorProto) ([]float64, bool) {
	switch t.DataType {
	case onnx.TensorProtoFloat:
		fs, err := t.Float32Values()
		if err != nil {
			return nil, false
		}
		out := make([]float64, len(fs))
		for i, f := range fs {
			out[i] = float64(f)
		}
		return out, true
	case onnx.TensorProtoDouble:
		if t.IsExternal() {
			return nil, false
		}
		n := t.ElementCount()
		if len(t.DoubleData) > 0 {
			if int64(len(t.DoubleData)) != n {
				return nil, false
			}
			return append([]float64(nil), t.DoubleData...), true
		}
		if int64(len(t.RawData)) != n*8 {
			return nil, false
		}
		out := make([]float64, n)
		for i := range out {
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(t.RawData[i*8:]))
		}
		return out, true
	}
	return nil, false
}

func rawInt32Tensor(dims []int64, vals []int64) *onnx.TensorProto {
	raw := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(raw[i*4:], uint32(int32(v)))
	}
	return &onnx.TensorProto{DataType: onnx.TensorProtoInt32, Dims: dims, RawData: raw}
}

func rawFloat64Tensor(dims []int64, vals []float64) *onnx.TensorProto {
	raw := make([]byte, 8*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint64(raw[i*8:], math.Float64bits(v))
	}
	return &onnx.TensorProto{DataType: onnx.TensorProtoDouble, Dims: dims, RawData: raw}
}
