package simplify

import (
	"math"

	"github.com/onnxweb/onnxweb/internal/onnx"
)

// fuseConvBN folds inference-mode BatchNormalization nodes into the weights
// and bias of the Conv feeding them. With k = scale/sqrt(var+eps) the fused
// convolution uses W' = W*k per output channel and b' = (b-mean)*k + bias, so
// the BN node disappears entirely.
func fuseConvBN(st *state, g *onnx.GraphProto) (int, error) {
	changed := 0
	for i := range g.Nodes {
		for _, sg := range g.Nodes[i].Subgraphs() {
			n, err := fuseConvBN(st, sg)
			if err != nil {
				return changed, err
			}
			changed += n
		}
	}
	for fuseOneConvBN(st, g) {
		changed++
	}
	return changed, nil
}

func fuseOneConvBN(st *state, g *onnx.GraphProto) bool {
	producers := g.Producers()
	inits := g.InitializerMap()
	outs := outputSet(g)
	for j := range g.Nodes {
		bn := &g.Nodes[j]
		if bn.OpType != "BatchNormalization" || bn.Domain != "" {
			continue
		}
		if len(bn.Inputs) != 5 || len(bn.Outputs) == 0 || bn.Inputs[0] == "" {
			continue
		}
		if bn.AttrInt("training_mode", 0) != 0 || bn.AttrInt("spatial", 1) != 1 {
			continue
		}
		extraUsed := false
		for _, out := range bn.Outputs[1:] {
			if out != "" && countUses(g, out) > 0 {
				extraUsed = true
				break
			}
		}
		if extraUsed {
			continue
		}
		x := bn.Inputs[0]
		ci, ok := producers[x]
		if !ok {
			continue
		}
		conv := &g.Nodes[ci]
		if conv.OpType != "Conv" || conv.Domain != "" || len(conv.Inputs) < 2 {
			continue
		}
		// The Conv output must feed only this BN, or fusing would change
		// what the other consumers see.
		if outs[x] || countUses(g, x) != 1 {
			continue
		}
		w := floatInit(inits, conv.Inputs[1])
		scale := floatInit(inits, bn.Inputs[1])
		shift := floatInit(inits, bn.Inputs[2])
		mean := floatInit(inits, bn.Inputs[3])
		variance := floatInit(inits, bn.Inputs[4])
		if w == nil || scale == nil || shift == nil || mean == nil || variance == nil {
			continue
		}
		if len(w.Dims) < 2 {
			continue
		}
		var bias *onnx.TensorProto
		hasBias := len(conv.Inputs) > 2 && conv.Inputs[2] != ""
		if hasBias {
			if bias = floatInit(inits, conv.Inputs[2]); bias == nil {
				continue
			}
		}
		channels := w.Dims[0]
		if scale.ElementCount() != channels || shift.ElementCount() != channels ||
			mean.ElementCount() != channels || variance.ElementCount() != channels {
			continue
		}
		if hasBias && bias.ElementCount() != channels {
			continue
		}
		wv, err := w.Float32Values()
		if err != nil {
			continue
		}
		sv, err := scale.Float32Values()
		if err != nil {
			continue
		}
		bv, err := shift.Float32Values()
		if err != nil {
			continue
		}
		mv, err := mean.Float32Values()
		if err != nil {
			continue
		}
		vv, err := variance.Float32Values()
		if err != nil {
			continue
		}
		var cv []float32
		if hasBias {
			if cv, err = bias.Float32Values(); err != nil {
				continue
			}
		}
		eps := float64(bn.AttrFloat("epsilon", 1e-5))
		block := int64(1)
		for _, d := range w.Dims[1:] {
			block *= d
		}
		newW := make([]float32, len(wv))
		newB := make([]float32, channels)
		for m := int64(0); m < channels; m++ {
			k := float64(sv[m]) / math.Sqrt(float64(vv[m])+eps)
			for i := m * block; i < (m+1)*block; i++ {
				newW[i] = float32(float64(wv[i]) * k)
			}
			cb := float64(0)
			if hasBias {
				cb = float64(cv[m])
			}
			newB[m] = float32((cb-float64(mv[m]))*k + float64(bv[m]))
		}
		wName := st.freshName(conv.Inputs[1] + "_fused")
		bName := st.freshName(conv.Inputs[1] + "_fused_bias")
		g.Initializers = append(g.Initializers,
			onnx.MakeFloat32Tensor(wName, append([]int64(nil), w.Dims...), newW),
			onnx.MakeFloat32Tensor(bName, []int64{channels}, newB))
		conv.Inputs[1] = wName
		if len(conv.Inputs) > 2 {
			conv.Inputs[2] = bName
		} else {
			conv.Inputs = append(conv.Inputs, bName)
		}
		conv.Outputs[0] = bn.Outputs[0]
		g.Nodes = append(g.Nodes[:j], g.Nodes[j+1:]...)
		return true
	}
	return false
}

// floatInit looks up an initializer and insists it is plain float32 data.
func floatInit(inits map[string]*onnx.TensorProto, name string) *onnx.TensorProto {
	t, ok := inits[name]
	if !ok || t.DataType != onnx.TensorProtoFloat || t.IsExternal() {
		return nil
	}
	return t
}
