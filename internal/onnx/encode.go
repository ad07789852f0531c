package onnx

import (
	"fmt"
	"math"
	"os"

	"google.golang.org/protobuf/encoding/protowire"
)

// Marshal serializes the model to ONNX protobuf bytes. Fields are written in
// field-number order with each message's preserved unknown bytes last; numeric
// data arrays use the packed encoding the reference serializer emits.
func Marshal(m *ModelProto) []byte {
	return m.append(nil)
}

// WriteFile serializes the model and writes it to path.
func WriteFile(m *ModelProto, path string) error {
	if err := os.WriteFile(path, Marshal(m), 0o644); err != nil {
		return fmt.Errorf("writing model: %w", err)
	}
	return nil
}

func (m *ModelProto) append(b []byte) []byte {
	if m.IRVersion != 0 {
		b = appendVarintField(b, 1, uint64(m.IRVersion))
	}
	if m.ProducerName != "" {
		b = appendStringField(b, 2, m.ProducerName)
	}
	if m.ProducerVersion != "" {
		b = appendStringField(b, 3, m.ProducerVersion)
	}
	if m.Domain != "" {
		b = appendStringField(b, 4, m.Domain)
	}
	if m.ModelVersion != 0 {
		b = appendVarintField(b, 5, uint64(m.ModelVersion))
	}
	if m.DocString != "" {
		b = appendStringField(b, 6, m.DocString)
	}
	if m.Graph != nil {
		b = appendMessageField(b, 7, m.Graph.append(nil))
	}
	for i := range m.OpsetImport {
		b = appendMessageField(b, 8, m.OpsetImport[i].append(nil))
	}
	for i := range m.MetadataProps {
		b = appendMessageField(b, 14, m.MetadataProps[i].append(nil))
	}
	return append(b, m.unknown...)
}

func (g *GraphProto) append(b []byte) []byte {
	for i := range g.Nodes {
		b = appendMessageField(b, 1, g.Nodes[i].append(nil))
	}
	if g.Name != "" {
		b = appendStringField(b, 2, g.Name)
	}
	for i := range g.Initializers {
		b = appendMessageField(b, 5, g.Initializers[i].append(nil))
	}
	if g.DocString != "" {
		b = appendStringField(b, 10, g.DocString)
	}
	for i := range g.Inputs {
		b = appendMessageField(b, 11, g.Inputs[i].append(nil))
	}
	for i := range g.Outputs {
		b = appendMessageField(b, 12, g.Outputs[i].append(nil))
	}
	for i := range g.ValueInfos {
		b = appendMessageField(b, 13, g.ValueInfos[i].append(nil))
	}
	return append(b, g.unknown...)
}

func (nd *NodeProto) append(b []byte) []byte {
	// Empty names in Inputs mark omitted optional inputs and must be kept.
	for _, s := range nd.Inputs {
		b = appendStringField(b, 1, s)
	}
	for _, s := range nd.Outputs {
		b = appendStringField(b, 2, s)
	}
	if nd.Name != "" {
		b = appendStringField(b, 3, nd.Name)
	}
	if nd.OpType != "" {
		b = appendStringField(b, 4, nd.OpType)
	}
	for i := range nd.Attributes {
		b = appendMessageField(b, 5, nd.Attributes[i].append(nil))
	}
	if nd.DocString != "" {
		b = appendStringField(b, 6, nd.DocString)
	}
	if nd.Domain != "" {
		b = appendStringField(b, 7, nd.Domain)
	}
	return append(b, nd.unknown...)
}

func (a *AttributeProto) append(b []byte) []byte {
	if a.Name != "" {
		b = appendStringField(b, 1, a.Name)
	}
	// The value field selected by Type is emitted even when zero, so an
	// attribute like axis=0 survives round-trips with its type intact.
	switch a.Type {
	case AttributeProtoFloat:
		b = protowire.AppendTag(b, 2, protowire.Fixed32Type)
		b = protowire.AppendFixed32(b, math.Float32bits(a.F))
	case AttributeProtoInt:
		b = appendVarintField(b, 3, uint64(a.I))
	case AttributeProtoString:
		b = protowire.AppendTag(b, 4, protowire.BytesType)
		b = protowire.AppendBytes(b, a.S)
	case AttributeProtoTensor:
		if a.T != nil {
			b = appendMessageField(b, 5, a.T.append(nil))
		}
	case AttributeProtoGraph:
		if a.G != nil {
			b = appendMessageField(b, 6, a.G.append(nil))
		}
	case AttributeProtoFloats:
		for _, f := range a.Floats {
			b = protowire.AppendTag(b, 7, protowire.Fixed32Type)
			b = protowire.AppendFixed32(b, math.Float32bits(f))
		}
	case AttributeProtoInts:
		for _, v := range a.Ints {
			b = appendVarintField(b, 8, uint64(v))
		}
	case AttributeProtoStrings:
		for _, s := range a.Strings {
			b = protowire.AppendTag(b, 9, protowire.BytesType)
			b = protowire.AppendBytes(b, s)
		}
	case AttributeProtoTensors:
		for i := range a.Tensors {
			b = appendMessageField(b, 10, a.Tensors[i].append(nil))
		}
	case AttributeProtoGraphs:
		for i := range a.Graphs {
			b = appendMessageField(b, 11, a.Graphs[i].append(nil))
		}
	}
	if a.DocString != "" {
		b = appendStringField(b, 13, a.DocString)
	}
	if a.Type != AttributeProtoUndefined {
		b = appendVarintField(b, 20, uint64(a.Type))
	}
	return append(b, a.unknown...)
}

func (t *TensorProto) append(b []byte) []byte {
	for _, d := range t.Dims {
		b = appendVarintField(b, 1, uint64(d))
	}
	if t.DataType != 0 {
		b = appendVarintField(b, 2, uint64(t.DataType))
	}
	if len(t.FloatData) > 0 {
		b = appendPackedFloat32s(b, 4, t.FloatData)
	}
	if len(t.Int32Data) > 0 {
		b = appendPackedInt32s(b, 5, t.Int32Data)
	}
	for _, s := range t.StringData {
		b = protowire.AppendTag(b, 6, protowire.BytesType)
		b = protowire.AppendBytes(b, s)
	}
	if len(t.Int64Data) > 0 {
		b = appendPackedInt64s(b, 7, t.Int64Data)
	}
	if t.Name != "" {
		b = appendStringField(b, 8, t.Name)
	}
	// nil means absent; a present-but-empty raw_data still gets emitted so a
	// zero-element tensor keeps its encoding.
	if t.RawData != nil {
		b = protowire.AppendTag(b, 9, protowire.BytesType)
		b = protowire.AppendBytes(b, t.RawData)
	}
	if len(t.DoubleData) > 0 {
		b = appendPackedFloat64s(b, 10, t.DoubleData)
	}
	if len(t.Uint64Data) > 0 {
		b = appendPackedUint64s(b, 11, t.Uint64Data)
	}
	if t.DocString != "" {
		b = appendStringField(b, 12, t.DocString)
	}
	for i := range t.ExternalData {
		b = appendMessageField(b, 13, t.ExternalData[i].append(nil))
	}
	if t.DataLocation != 0 {
		b = appendVarintField(b, 14, uint64(t.DataLocation))
	}
	return append(b, t.unknown...)
}

func (v *ValueInfoProto) append(b []byte) []byte {
	if v.Name != "" {
		b = appendStringField(b, 1, v.Name)
	}
	if v.Type != nil {
		b = appendMessageField(b, 2, v.Type.append(nil))
	}
	if v.DocString != "" {
		b = appendStringField(b, 3, v.DocString)
	}
	return append(b, v.unknown...)
}

func (t *TypeProto) append(b []byte) []byte {
	if t.TensorType != nil {
		b = appendMessageField(b, 1, t.TensorType.append(nil))
	}
	if t.Denotation != "" {
		b = appendStringField(b, 6, t.Denotation)
	}
	return append(b, t.unknown...)
}

func (t *TensorTypeProto) append(b []byte) []byte {
	if t.ElemType != 0 {
		b = appendVarintField(b, 1, uint64(t.ElemType))
	}
	if t.Shape != nil {
		b = appendMessageField(b, 2, t.Shape.append(nil))
	}
	return append(b, t.unknown...)
}

func (s *TensorShapeProto) append(b []byte) []byte {
	for i := range s.Dims {
		b = appendMessageField(b, 1, s.Dims[i].append(nil))
	}
	return append(b, s.unknown...)
}

func (d *DimensionProto) append(b []byte) []byte {
	switch {
	case d.HasValue:
		b = appendVarintField(b, 1, uint64(d.Value))
	case d.Param != "":
		b = appendStringField(b, 2, d.Param)
	}
	return append(b, d.unknown...)
}

func (o *OperatorSetID) append(b []byte) []byte {
	if o.Domain != "" {
		b = appendStringField(b, 1, o.Domain)
	}
	if o.Version != 0 {
		b = appendVarintField(b, 2, uint64(o.Version))
	}
	return append(b, o.unknown...)
}

func (e *StringStringEntry) append(b []byte) []byte {
	if e.Key != "" {
		b = appendStringField(b, 1, e.Key)
	}
	if e.Value != "" {
		b = appendStringField(b, 2, e.Value)
	}
	return append(b, e.unknown...)
}

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendStringField(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendMessageField(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

func appendPackedInt64s(b []byte, num protowire.Number, vs []int64) []byte {
	var pack []byte
	for _, v := range vs {
		pack = protowire.AppendVarint(pack, uint64(v))
	}
	return appendMessageField(b, num, pack)
}

func appendPackedInt32s(b []byte, num protowire.Number, vs []int32) []byte {
	var pack []byte
	for _, v := range vs {
		// Negative int32s are sign-extended to 64 bits on the wire.
		pack = protowire.AppendVarint(pack, uint64(int64(v)))
	}
	return appendMessageField(b, num, pack)
}

func appendPackedFloat32s(b []byte, num protowire.Number, vs []float32) []byte {
	var pack []byte
	for _, v := range vs {
		pack = protowire.AppendFixed32(pack, math.Float32bits(v))
	}
	return appendMessageField(b, num, pack)
}

func appendPackedFloat64s(b []byte, num protowire.Number, vs []float64) []byte {
	var pack []byte
	for _, v := range vs {
		pack = protowire.AppendFixed64(pack, math.Float64bits(v))
	}
	return appendMessageField(b, num, pack)
}

func appendPackedUint64s(b []byte, num protowire.Number, vs []uint64) []byte {
	var pack []byte
	for _, v := range vs {
		pack = protowire.AppendVarint(pack, v)
	}
	return appendMessageField(b, num, pack)
}
