package opset

import (
	"fmt"

	"github.com/onnxweb/onnxweb/internal/onnx"
)

// adapterFunc inspects one node against the scope's target opset. It may
// mutate the node in place, or return replacement nodes that substitute it.
// Returning (nil, nil) keeps the node unchanged.
type adapterFunc func(s *scope, nd *onnx.NodeProto) ([]onnx.NodeProto, error)

// adapters maps default-domain op types to their downgrade rewrites. Each
// adapter is target-aware and does nothing when the target opset already
// supports the node's encoding.
var adapters = map[string]adapterFunc{
	// Axes moved from an attribute to an input at opset 18 for the reduce
	// family, except ReduceSum which moved at 13.
	"ReduceL1":        reduceAxesToAttr(18),
	"ReduceL2":        reduceAxesToAttr(18),
	"ReduceLogSum":    reduceAxesToAttr(18),
	"ReduceLogSumExp": reduceAxesToAttr(18),
	"ReduceMax":       reduceAxesToAttr(18),
	"ReduceMean":      reduceAxesToAttr(18),
	"ReduceMin":       reduceAxesToAttr(18),
	"ReduceProd":      reduceAxesToAttr(18),
	"ReduceSumSquare": reduceAxesToAttr(18),
	"ReduceSum":       reduceAxesToAttr(13),

	"Squeeze":   foldInputToIntsAttr(13, 1, "axes", false),
	"Unsqueeze": foldInputToIntsAttr(13, 1, "axes", true),

	"Split":  adaptSplit,
	"Pad":    adaptPad,
	"Resize": adaptResize,
	"Clip":   adaptClip,

	"Cast":     adaptCast,
	"CastLike": adaptCastLike,

	// reduction attribute appeared at 16 and grew min/max at 18
	"ScatterElements": dropStringAttrIfDefault(16, "reduction", "none"),
	"ScatterND":       dropStringAttrIfDefault(16, "reduction", "none"),

	"BatchNormalization": adaptBatchNorm,
	"Shape":              adaptShape,

	"LayerNormalization": decomposeLayerNorm,
	"Gelu":               decomposeGelu,
	"Mish":               decomposeMish,

	// The axis attribute changed meaning at 13: it selected a flattening
	// point before, a single softmax axis after. Not mechanically fixable.
	"Softmax":    warnAxisSemantics(13),
	"LogSoftmax": warnAxisSemantics(13),
	"Hardmax":    warnAxisSemantics(13),
}

// reduceAxesToAttr folds a reduce op's axes input back into the axes
// attribute for targets before since, honoring noop_with_empty_axes.
func reduceAxesToAttr(since int64) adapterFunc {
	return func(s *scope, nd *onnx.NodeProto) ([]onnx.NodeProto, error) {
		if s.target >= since {
			return nil, nil
		}
		noop := nd.AttrInt("noop_with_empty_axes", 0)
		hadNoop := nd.DeleteAttr("noop_with_empty_axes")
		axes, present, err := s.intsInput(nd, 1)
		if err != nil {
			return nil, err
		}
		if present {
			nd.Inputs = nd.Inputs[:1]
		}
		if len(axes) > 0 {
			nd.SetAttr(onnx.MakeAttrInts("axes", axes))
			s.adapted(nd, "folded axes input into attribute")
			return nil, nil
		}
		if noop == 1 {
			// Empty axes with noop semantics makes the reduction an identity.
			id := onnx.NodeProto{
				Name:    nd.Name,
				OpType:  "Identity",
				Inputs:  nd.Inputs[:1],
				Outputs: nd.Outputs,
			}
			s.adapted(nd, "rewrote no-op reduction as Identity")
			return []onnx.NodeProto{id}, nil
		}
		if present || hadNoop {
			s.adapted(nd, "dropped empty axes input")
		}
		return nil, nil
	}
}

// foldInputToIntsAttr moves constant input idx into an ints attribute for
// targets before since. With required set, a missing input is an error.
func foldInputToIntsAttr(since int64, idx int, attr string, required bool) adapterFunc {
	return func(s *scope, nd *onnx.NodeProto) ([]onnx.NodeProto, error) {
		if s.target >= since {
			return nil, nil
		}
		vals, present, err := s.intsInput(nd, idx)
		if err != nil {
			return nil, err
		}
		if !present {
			if required {
				return nil, fmt.Errorf("node %q: %s requires the %s input below opset %d",
					nd.Label(), nd.OpType, attr, since)
			}
			return nil, nil
		}
		nd.Inputs = nd.Inputs[:idx]
		nd.SetAttr(onnx.MakeAttrInts(attr, vals))
		s.adapted(nd, "folded %s input into attribute", attr)
		return nil, nil
	}
}

// dropStringAttrIfDefault removes an attribute newer than the target when it
// still holds its default value, and fails when it does not.
func dropStringAttrIfDefault(since int64, name, def string) adapterFunc {
	return func(s *scope, nd *onnx.NodeProto) ([]onnx.NodeProto, error) {
		if s.target >= since {
			return nil, nil
		}
		a := nd.Attr(name)
		if a == nil {
			return nil, nil
		}
		if a.Type != onnx.AttributeProtoString || string(a.S) != def {
			return nil, fmt.Errorf("node %q: attribute %s=%q has no equivalent below opset %d",
				nd.Label(), name, a.S, since)
		}
		nd.DeleteAttr(name)
		s.adapted(nd, "dropped default %s attribute", name)
		return nil, nil
	}
}

func adaptSplit(s *scope, nd *onnx.NodeProto) ([]onnx.NodeProto, error) {
	if s.target < 18 && nd.DeleteAttr("num_outputs") {
		// Pre-18 Split infers the even split from the output count.
		s.adapted(nd, "dropped num_outputs attribute")
	}
	if s.target < 13 {
		return foldInputToIntsAttr(13, 1, "split", false)(s, nd)
	}
	return nil, nil
}

func adaptPad(s *scope, nd *onnx.NodeProto) ([]onnx.NodeProto, error) {
	if s.target < 19 && nd.AttrString("mode", "constant") == "wrap" {
		return nil, fmt.Errorf("node %q: Pad mode \"wrap\" requires opset 19", nd.Label())
	}
	if s.target < 18 {
		if len(nd.Inputs) > 3 && nd.Inputs[3] != "" {
			return nil, fmt.Errorf("node %q: Pad axes input has no equivalent below opset 18", nd.Label())
		}
		if len(nd.Inputs) > 3 {
			nd.Inputs = nd.Inputs[:3]
			s.adapted(nd, "trimmed empty axes input")
		}
	}
	if s.target < 11 {
		pads, present, err := s.intsInput(nd, 1)
		if err != nil {
			return nil, err
		}
		if !present {
			return nil, fmt.Errorf("node %q: Pad requires the pads input below opset 11", nd.Label())
		}
		nd.SetAttr(onnx.MakeAttrInts("pads", pads))
		if len(nd.Inputs) > 2 && nd.Inputs[2] != "" {
			tp := s.lookupTensor(nd.Inputs[2])
			if tp == nil {
				return nil, fmt.Errorf("node %q: constant_value input %q is not a constant", nd.Label(), nd.Inputs[2])
			}
			vals, err := tp.Float32Values()
			if err != nil || len(vals) != 1 {
				return nil, fmt.Errorf("node %q: constant_value must be a float scalar below opset 11", nd.Label())
			}
			nd.SetAttr(onnx.MakeAttrFloat("value", vals[0]))
		}
		nd.Inputs = nd.Inputs[:1]
		s.adapted(nd, "folded pads input into attributes")
	}
	return nil, nil
}

func adaptResize(s *scope, nd *onnx.NodeProto) ([]onnx.NodeProto, error) {
	if s.target < 13 {
		return nil, fmt.Errorf("node %q: Resize cannot be downgraded below opset 13", nd.Label())
	}
	if s.target >= 18 {
		return nil, nil
	}
	if a := nd.Attr("antialias"); a != nil {
		if a.I != 0 {
			return nil, fmt.Errorf("node %q: Resize antialias has no equivalent below opset 18", nd.Label())
		}
		nd.DeleteAttr("antialias")
		s.adapted(nd, "dropped default antialias attribute")
	}
	if nd.Attr("axes") != nil {
		return nil, fmt.Errorf("node %q: Resize axes attribute has no equivalent below opset 18", nd.Label())
	}
	if a := nd.Attr("keep_aspect_ratio_policy"); a != nil {
		if string(a.S) != "stretch" {
			return nil, fmt.Errorf("node %q: Resize keep_aspect_ratio_policy=%q has no equivalent below opset 18",
				nd.Label(), a.S)
		}
		nd.DeleteAttr("keep_aspect_ratio_policy")
		s.adapted(nd, "dropped default keep_aspect_ratio_policy attribute")
	}
	return nil, nil
}

func adaptClip(s *scope, nd *onnx.NodeProto) ([]onnx.NodeProto, error) {
	if s.target >= 11 {
		return nil, nil
	}
	// min and max became inputs at 11; fold whichever are present.
	scalar := func(idx int, attr string) error {
		if idx >= len(nd.Inputs) || nd.Inputs[idx] == "" {
			return nil
		}
		tp := s.lookupTensor(nd.Inputs[idx])
		if tp == nil {
			return fmt.Errorf("node %q: %s input %q is not a constant", nd.Label(), attr, nd.Inputs[idx])
		}
		vals, err := tp.Float32Values()
		if err != nil || len(vals) != 1 {
			return fmt.Errorf("node %q: %s must be a float scalar below opset 11", nd.Label(), attr)
		}
		nd.SetAttr(onnx.MakeAttrFloat(attr, vals[0]))
		return nil
	}
	if err := scalar(1, "min"); err != nil {
		return nil, err
	}
	if err := scalar(2, "max"); err != nil {
		return nil, err
	}
	if len(nd.Inputs) > 1 {
		nd.Inputs = nd.Inputs[:1]
		s.adapted(nd, "folded min/max inputs into attributes")
	}
	return nil, nil
}

func adaptCast(s *scope, nd *onnx.NodeProto) ([]onnx.NodeProto, error) {
	if s.target >= 19 {
		return nil, nil
	}
	if a := nd.Attr("saturate"); a != nil {
		if a.I == 0 {
			// Only affects float8 conversions, which older opsets reject
			// on their own; flag it rather than fail.
			s.warnf("node %q: dropped saturate=0, not expressible below opset 19", nd.Label())
		}
		nd.DeleteAttr("saturate")
		s.adapted(nd, "dropped saturate attribute")
	}
	return nil, nil
}

func adaptBatchNorm(s *scope, nd *onnx.NodeProto) ([]onnx.NodeProto, error) {
	if s.target >= 14 {
		return nil, nil
	}
	if nd.AttrInt("training_mode", 0) != 0 {
		return nil, fmt.Errorf("node %q: BatchNormalization training_mode=1 has no equivalent below opset 14", nd.Label())
	}
	if nd.DeleteAttr("training_mode") {
		s.adapted(nd, "dropped training_mode attribute")
	}
	return nil, nil
}

// warnAxisSemantics flags softmax-family nodes when crossing the opset 13
// axis redefinition. The encoding is unchanged, so the node passes through.
func warnAxisSemantics(since int64) adapterFunc {
	return func(s *scope, nd *onnx.NodeProto) ([]onnx.NodeProto, error) {
		if s.target >= since {
			return nil, nil
		}
		s.warnf("node %q: %s axis semantics differ before opset %d; node left unchanged",
			nd.Label(), nd.OpType, since)
		return nil, nil
	}
}
