package onnx

// ConstantValue returns the tensor a Constant node produces, synthesizing one
// from the scalar and list attribute forms the op accepts. Returns nil for
// sparse constants and for nodes that are not default-domain Constants.
func ConstantValue(nd *NodeProto) *TensorProto {
	if nd.OpType != "Constant" || (nd.Domain != "" && nd.Domain != "ai.onnx") || len(nd.Outputs) != 1 {
		return nil
	}
	out := nd.Outputs[0]
	for i := range nd.Attributes {
		a := &nd.Attributes[i]
		switch a.Name {
		case "value":
			if a.Type == AttributeProtoTensor && a.T != nil {
				t := *a.T
				t.Name = out
				return &t
			}
		case "value_int":
			if a.Type == AttributeProtoInt {
				t := MakeInt64Tensor(out, nil, []int64{a.I})
				return &t
			}
		case "value_ints":
			if a.Type == AttributeProtoInts {
				t := MakeInt64Tensor(out, []int64{int64(len(a.Ints))}, append([]int64(nil), a.Ints...))
				return &t
			}
		case "value_float":
			if a.Type == AttributeProtoFloat {
				t := MakeFloat32Tensor(out, nil, []float32{a.F})
				return &t
			}
		case "value_floats":
			if a.Type == AttributeProtoFloats {
				t := MakeFloat32Tensor(out, []int64{int64(len(a.Floats))}, append([]float32(nil), a.Floats...))
				return &t
			}
		case "value_string":
			if a.Type == AttributeProtoString {
				return &TensorProto{Name: out, DataType: TensorProtoString, StringData: [][]byte{a.S}}
			}
		case "value_strings":
			if a.Type == AttributeProtoStrings {
				return &TensorProto{
					Name:       out,
					DataType:   TensorProtoString,
					Dims:       []int64{int64(len(a.Strings))},
					StringData: a.Strings,
				}
			}
		}
	}
	return nil
}
