package onnx

import (
	"fmt"
	"math"
	"os"

	"google.golang.org/protobuf/encoding/protowire"
)

// ParseFile reads path and decodes it as a serialized ModelProto.
func ParseFile(path string) (*ModelProto, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading model: %w", err)
	}
	return Parse(data)
}

// Parse decodes a serialized ModelProto. Decoded byte slices alias data, so
// the caller must not mutate it afterwards.
func Parse(data []byte) (*ModelProto, error) {
	m := &ModelProto{}
	if err := m.unmarshal(data); err != nil {
		return nil, fmt.Errorf("parsing model: %w", err)
	}
	return m, nil
}

func (m *ModelProto) unmarshal(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		tag := b[:n]
		b = b[n:]
		var err error
		switch num {
		case 1:
			m.IRVersion, b, err = consumeInt64(b, typ)
		case 2:
			m.ProducerName, b, err = consumeString(b, typ)
		case 3:
			m.ProducerVersion, b, err = consumeString(b, typ)
		case 4:
			m.Domain, b, err = consumeString(b, typ)
		case 5:
			m.ModelVersion, b, err = consumeInt64(b, typ)
		case 6:
			m.DocString, b, err = consumeString(b, typ)
		case 7:
			var sub []byte
			if sub, b, err = consumeBytes(b, typ); err == nil {
				m.Graph = &GraphProto{}
				if err = m.Graph.unmarshal(sub); err != nil {
					err = fmt.Errorf("graph: %w", err)
				}
			}
		case 8:
			var sub []byte
			if sub, b, err = consumeBytes(b, typ); err == nil {
				var op OperatorSetID
				if err = op.unmarshal(sub); err == nil {
					m.OpsetImport = append(m.OpsetImport, op)
				}
			}
		case 14:
			var sub []byte
			if sub, b, err = consumeBytes(b, typ); err == nil {
				var kv StringStringEntry
				if err = kv.unmarshal(sub); err == nil {
					m.MetadataProps = append(m.MetadataProps, kv)
				}
			}
		default:
			m.unknown, b, err = consumeUnknown(m.unknown, tag, b, num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (g *GraphProto) unmarshal(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		tag := b[:n]
		b = b[n:]
		var err error
		switch num {
		case 1:
			var sub []byte
			if sub, b, err = consumeBytes(b, typ); err == nil {
				var node NodeProto
				if err = node.unmarshal(sub); err == nil {
					g.Nodes = append(g.Nodes, node)
				}
			}
		case 2:
			g.Name, b, err = consumeString(b, typ)
		case 5:
			var sub []byte
			if sub, b, err = consumeBytes(b, typ); err == nil {
				var t TensorProto
				if err = t.unmarshal(sub); err == nil {
					g.Initializers = append(g.Initializers, t)
				}
			}
		case 10:
			g.DocString, b, err = consumeString(b, typ)
		case 11:
			g.Inputs, b, err = consumeValueInfo(g.Inputs, b, typ)
		case 12:
			g.Outputs, b, err = consumeValueInfo(g.Outputs, b, typ)
		case 13:
			g.ValueInfos, b, err = consumeValueInfo(g.ValueInfos, b, typ)
		default:
			g.unknown, b, err = consumeUnknown(g.unknown, tag, b, num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (nd *NodeProto) unmarshal(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		tag := b[:n]
		b = b[n:]
		var err error
		switch num {
		case 1:
			var s string
			if s, b, err = consumeString(b, typ); err == nil {
				nd.Inputs = append(nd.Inputs, s)
			}
		case 2:
			var s string
			if s, b, err = consumeString(b, typ); err == nil {
				nd.Outputs = append(nd.Outputs, s)
			}
		case 3:
			nd.Name, b, err = consumeString(b, typ)
		case 4:
			nd.OpType, b, err = consumeString(b, typ)
		case 5:
			var sub []byte
			if sub, b, err = consumeBytes(b, typ); err == nil {
				var a AttributeProto
				if err = a.unmarshal(sub); err == nil {
					nd.Attributes = append(nd.Attributes, a)
				}
			}
		case 6:
			nd.DocString, b, err = consumeString(b, typ)
		case 7:
			nd.Domain, b, err = consumeString(b, typ)
		default:
			nd.unknown, b, err = consumeUnknown(nd.unknown, tag, b, num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (a *AttributeProto) unmarshal(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		tag := b[:n]
		b = b[n:]
		var err error
		switch num {
		case 1:
			a.Name, b, err = consumeString(b, typ)
		case 2:
			a.F, b, err = consumeFloat32(b, typ)
		case 3:
			a.I, b, err = consumeInt64(b, typ)
		case 4:
			a.S, b, err = consumeBytes(b, typ)
		case 5:
			var sub []byte
			if sub, b, err = consumeBytes(b, typ); err == nil {
				a.T = &TensorProto{}
				err = a.T.unmarshal(sub)
			}
		case 6:
			var sub []byte
			if sub, b, err = consumeBytes(b, typ); err == nil {
				a.G = &GraphProto{}
				if err = a.G.unmarshal(sub); err != nil {
					err = fmt.Errorf("attribute %q subgraph: %w", a.Name, err)
				}
			}
		case 7:
			a.Floats, b, err = consumeFloat32s(a.Floats, b, typ)
		case 8:
			a.Ints, b, err = consumeInt64s(a.Ints, b, typ)
		case 9:
			var s []byte
			if s, b, err = consumeBytes(b, typ); err == nil {
				a.Strings = append(a.Strings, s)
			}
		case 10:
			var sub []byte
			if sub, b, err = consumeBytes(b, typ); err == nil {
				var t TensorProto
				if err = t.unmarshal(sub); err == nil {
					a.Tensors = append(a.Tensors, t)
				}
			}
		case 11:
			var sub []byte
			if sub, b, err = consumeBytes(b, typ); err == nil {
				var g GraphProto
				if err = g.unmarshal(sub); err == nil {
					a.Graphs = append(a.Graphs, g)
				}
			}
		case 13:
			a.DocString, b, err = consumeString(b, typ)
		case 20:
			a.Type, b, err = consumeInt32(b, typ)
		default:
			a.unknown, b, err = consumeUnknown(a.unknown, tag, b, num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *TensorProto) unmarshal(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		tag := b[:n]
		b = b[n:]
		var err error
		switch num {
		case 1:
			t.Dims, b, err = consumeInt64s(t.Dims, b, typ)
		case 2:
			t.DataType, b, err = consumeInt32(b, typ)
		case 4:
			t.FloatData, b, err = consumeFloat32s(t.FloatData, b, typ)
		case 5:
			t.Int32Data, b, err = consumeInt32s(t.Int32Data, b, typ)
		case 6:
			var s []byte
			if s, b, err = consumeBytes(b, typ); err == nil {
				t.StringData = append(t.StringData, s)
			}
		case 7:
			t.Int64Data, b, err = consumeInt64s(t.Int64Data, b, typ)
		case 8:
			t.Name, b, err = consumeString(b, typ)
		case 9:
			t.RawData, b, err = consumeBytes(b, typ)
		case 10:
			t.DoubleData, b, err = consumeFloat64s(t.DoubleData, b, typ)
		case 11:
			t.Uint64Data, b, err = consumeUint64s(t.Uint64Data, b, typ)
		case 12:
			t.DocString, b, err = consumeString(b, typ)
		case 13:
			var sub []byte
			if sub, b, err = consumeBytes(b, typ); err == nil {
				var kv StringStringEntry
				if err = kv.unmarshal(sub); err == nil {
					t.ExternalData = append(t.ExternalData, kv)
				}
			}
		case 14:
			t.DataLocation, b, err = consumeInt32(b, typ)
		default:
			t.unknown, b, err = consumeUnknown(t.unknown, tag, b, num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (v *ValueInfoProto) unmarshal(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		tag := b[:n]
		b = b[n:]
		var err error
		switch num {
		case 1:
			v.Name, b, err = consumeString(b, typ)
		case 2:
			var sub []byte
			if sub, b, err = consumeBytes(b, typ); err == nil {
				v.Type = &TypeProto{}
				err = v.Type.unmarshal(sub)
			}
		case 3:
			v.DocString, b, err = consumeString(b, typ)
		default:
			v.unknown, b, err = consumeUnknown(v.unknown, tag, b, num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *TypeProto) unmarshal(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		tag := b[:n]
		b = b[n:]
		var err error
		switch num {
		case 1:
			var sub []byte
			if sub, b, err = consumeBytes(b, typ); err == nil {
				t.TensorType = &TensorTypeProto{}
				err = t.TensorType.unmarshal(sub)
			}
		case 6:
			t.Denotation, b, err = consumeString(b, typ)
		default:
			t.unknown, b, err = consumeUnknown(t.unknown, tag, b, num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *TensorTypeProto) unmarshal(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		tag := b[:n]
		b = b[n:]
		var err error
		switch num {
		case 1:
			t.ElemType, b, err = consumeInt32(b, typ)
		case 2:
			var sub []byte
			if sub, b, err = consumeBytes(b, typ); err == nil {
				t.Shape = &TensorShapeProto{}
				err = t.Shape.unmarshal(sub)
			}
		default:
			t.unknown, b, err = consumeUnknown(t.unknown, tag, b, num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *TensorShapeProto) unmarshal(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		tag := b[:n]
		b = b[n:]
		var err error
		switch num {
		case 1:
			var sub []byte
			if sub, b, err = consumeBytes(b, typ); err == nil {
				var d DimensionProto
				if err = d.unmarshal(sub); err == nil {
					s.Dims = append(s.Dims, d)
				}
			}
		default:
			s.unknown, b, err = consumeUnknown(s.unknown, tag, b, num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (d *DimensionProto) unmarshal(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		tag := b[:n]
		b = b[n:]
		var err error
		switch num {
		case 1:
			if d.Value, b, err = consumeInt64(b, typ); err == nil {
				d.HasValue = true
				d.Param = ""
			}
		case 2:
			if d.Param, b, err = consumeString(b, typ); err == nil {
				d.HasValue = false
				d.Value = 0
			}
		default:
			d.unknown, b, err = consumeUnknown(d.unknown, tag, b, num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (o *OperatorSetID) unmarshal(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		tag := b[:n]
		b = b[n:]
		var err error
		switch num {
		case 1:
			o.Domain, b, err = consumeString(b, typ)
		case 2:
			o.Version, b, err = consumeInt64(b, typ)
		default:
			o.unknown, b, err = consumeUnknown(o.unknown, tag, b, num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *StringStringEntry) unmarshal(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		tag := b[:n]
		b = b[n:]
		var err error
		switch num {
		case 1:
			e.Key, b, err = consumeString(b, typ)
		case 2:
			e.Value, b, err = consumeString(b, typ)
		default:
			e.unknown, b, err = consumeUnknown(e.unknown, tag, b, num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func consumeValueInfo(dst []ValueInfoProto, b []byte, typ protowire.Type) ([]ValueInfoProto, []byte, error) {
	sub, rest, err := consumeBytes(b, typ)
	if err != nil {
		return dst, b, err
	}
	var v ValueInfoProto
	if err := v.unmarshal(sub); err != nil {
		return dst, b, err
	}
	return append(dst, v), rest, nil
}

// consumeUnknown skips one unmodeled field and appends its tag plus value
// bytes to dst, so the field survives a decode/encode round-trip.
func consumeUnknown(dst, tag, b []byte, num protowire.Number, typ protowire.Type) ([]byte, []byte, error) {
	n := protowire.ConsumeFieldValue(num, typ, b)
	if n < 0 {
		return dst, b, protowire.ParseError(n)
	}
	dst = append(dst, tag...)
	dst = append(dst, b[:n]...)
	return dst, b[n:], nil
}

func consumeInt64(b []byte, typ protowire.Type) (int64, []byte, error) {
	if typ != protowire.VarintType {
		return 0, b, fmt.Errorf("unexpected wire type %d for varint field", typ)
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, b, protowire.ParseError(n)
	}
	return int64(v), b[n:], nil
}

func consumeInt32(b []byte, typ protowire.Type) (int32, []byte, error) {
	v, rest, err := consumeInt64(b, typ)
	return int32(v), rest, err
}

func consumeFloat32(b []byte, typ protowire.Type) (float32, []byte, error) {
	if typ != protowire.Fixed32Type {
		return 0, b, fmt.Errorf("unexpected wire type %d for fixed32 field", typ)
	}
	v, n := protowire.ConsumeFixed32(b)
	if n < 0 {
		return 0, b, protowire.ParseError(n)
	}
	return math.Float32frombits(v), b[n:], nil
}

func consumeBytes(b []byte, typ protowire.Type) ([]byte, []byte, error) {
	if typ != protowire.BytesType {
		return nil, b, fmt.Errorf("unexpected wire type %d for length-delimited field", typ)
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, b, protowire.ParseError(n)
	}
	return v, b[n:], nil
}

func consumeString(b []byte, typ protowire.Type) (string, []byte, error) {
	v, rest, err := consumeBytes(b, typ)
	return string(v), rest, err
}

// consumeInt64s accepts a repeated varint field in either packed or unpacked
// form. Serializers differ on which form they emit, so the decoder takes both.
func consumeInt64s(dst []int64, b []byte, typ protowire.Type) ([]int64, []byte, error) {
	switch typ {
	case protowire.VarintType:
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return dst, b, protowire.ParseError(n)
		}
		return append(dst, int64(v)), b[n:], nil
	case protowire.BytesType:
		pack, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return dst, b, protowire.ParseError(n)
		}
		for len(pack) > 0 {
			v, m := protowire.ConsumeVarint(pack)
			if m < 0 {
				return dst, b, protowire.ParseError(m)
			}
			dst = append(dst, int64(v))
			pack = pack[m:]
		}
		return dst, b[n:], nil
	default:
		return dst, b, fmt.Errorf("unexpected wire type %d for repeated varint field", typ)
	}
}

func consumeInt32s(dst []int32, b []byte, typ protowire.Type) ([]int32, []byte, error) {
	switch typ {
	case protowire.VarintType:
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return dst, b, protowire.ParseError(n)
		}
		return append(dst, int32(v)), b[n:], nil
	case protowire.BytesType:
		pack, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return dst, b, protowire.ParseError(n)
		}
		for len(pack) > 0 {
			v, m := protowire.ConsumeVarint(pack)
			if m < 0 {
				return dst, b, protowire.ParseError(m)
			}
			dst = append(dst, int32(v))
			pack = pack[m:]
		}
		return dst, b[n:], nil
	default:
		return dst, b, fmt.Errorf("unexpected wire type %d for repeated varint field", typ)
	}
}

func consumeFloat32s(dst []float32, b []byte, typ protowire.Type) ([]float32, []byte, error) {
	switch typ {
	case protowire.Fixed32Type:
		v, n := protowire.ConsumeFixed32(b)
		if n < 0 {
			return dst, b, protowire.ParseError(n)
		}
		return append(dst, math.Float32frombits(v)), b[n:], nil
	case protowire.BytesType:
		pack, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return dst, b, protowire.ParseError(n)
		}
		for len(pack) > 0 {
			v, m := protowire.ConsumeFixed32(pack)
			if m < 0 {
				return dst, b, protowire.ParseError(m)
			}
			dst = append(dst, math.Float32frombits(v))
			pack = pack[m:]
		}
		return dst, b[n:], nil
	default:
		return dst, b, fmt.Errorf("unexpected wire type %d for repeated fixed32 field", typ)
	}
}

func consumeFloat64s(dst []float64, b []byte, typ protowire.Type) ([]float64, []byte, error) {
	switch typ {
	case protowire.Fixed64Type:
		v, n := protowire.ConsumeFixed64(b)
		if n < 0 {
			return dst, b, protowire.ParseError(n)
		}
		return append(dst, math.Float64frombits(v)), b[n:], nil
	case protowire.BytesType:
		pack, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return dst, b, protowire.ParseError(n)
		}
		for len(pack) > 0 {
			v, m := protowire.ConsumeFixed64(pack)
			if m < 0 {
				return dst, b, protowire.ParseError(m)
			}
			dst = append(dst, math.Float64frombits(v))
			pack = pack[m:]
		}
		return dst, b[n:], nil
	default:
		return dst, b, fmt.Errorf("unexpected wire type %d for repeated fixed64 field", typ)
	}
}

func consumeUint64s(dst []uint64, b []byte, typ protowire.Type) ([]uint64, []byte, error) {
	switch typ {
	case protowire.VarintType:
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return dst, b, protowire.ParseError(n)
		}
		return append(dst, v), b[n:], nil
	case protowire.BytesType:
		pack, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return dst, b, protowire.ParseError(n)
		}
		for len(pack) > 0 {
			v, m := protowire.ConsumeVarint(pack)
			if m < 0 {
				return dst, b, protowire.ParseError(m)
			}
			dst = append(dst, v)
			pack = pack[m:]
		}
		return dst, b[n:], nil
	default:
		return dst, b, fmt.Errorf("unexpected wire type %d for repeated varint field", typ)
	}
}
