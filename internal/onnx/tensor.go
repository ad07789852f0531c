package onnx

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ElementCount returns the number of elements the tensor's dims describe. An
// empty dims list means a scalar, which holds one element.
func (t *TensorProto) ElementCount() int64 {
	n := int64(1)
	for _, d := range t.Dims {
		n *= d
	}
	return n
}

// ByteSize returns the raw_data size the dims and element type imply, or -1
// when the element type has no fixed per-element width.
func (t *TensorProto) ByteSize() int64 {
	sz := DataTypeSize(t.DataType)
	if sz == 0 {
		return -1
	}
	return sz * t.ElementCount()
}

// IsExternal reports whether the tensor's data lives outside the model file.
func (t *TensorProto) IsExternal() bool {
	return t.DataLocation == DataLocationExternal
}

// Int64Values decodes an int64 or int32 tensor's contents, widening int32
// elements. Data may live in raw_data (little-endian) or in the typed field.
func (t *TensorProto) Int64Values() ([]int64, error) {
	if t.IsExternal() {
		return nil, fmt.Errorf("tensor %q: data is external", t.Name)
	}
	switch t.DataType {
	case TensorProtoInt64:
		if t.RawData != nil {
			if len(t.RawData)%8 != 0 {
				return nil, fmt.Errorf("tensor %q: raw_data length %d is not a multiple of 8", t.Name, len(t.RawData))
			}
			vals := make([]int64, len(t.RawData)/8)
			for i := range vals {
				vals[i] = int64(binary.LittleEndian.Uint64(t.RawData[i*8:]))
			}
			return vals, nil
		}
		return append([]int64(nil), t.Int64Data...), nil
	case TensorProtoInt32:
		if t.RawData != nil {
			if len(t.RawData)%4 != 0 {
				return nil, fmt.Errorf("tensor %q: raw_data length %d is not a multiple of 4", t.Name, len(t.RawData))
			}
			vals := make([]int64, len(t.RawData)/4)
			for i := range vals {
				vals[i] = int64(int32(binary.LittleEndian.Uint32(t.RawData[i*4:])))
			}
			return vals, nil
		}
		vals := make([]int64, len(t.Int32Data))
		for i, v := range t.Int32Data {
			vals[i] = int64(v)
		}
		return vals, nil
	default:
		return nil, fmt.Errorf("tensor %q: %s is not an integer type", t.Name, DataTypeName(t.DataType))
	}
}

// Float32Values decodes a float32 tensor's contents from raw_data
// (little-endian) or float_data.
func (t *TensorProto) Float32Values() ([]float32, error) {
	if t.IsExternal() {
		return nil, fmt.Errorf("tensor %q: data is external", t.Name)
	}
	if t.DataType != TensorProtoFloat {
		return nil, fmt.Errorf("tensor %q: %s is not float32", t.Name, DataTypeName(t.DataType))
	}
	if t.RawData != nil {
		if len(t.RawData)%4 != 0 {
			return nil, fmt.Errorf("tensor %q: raw_data length %d is not a multiple of 4", t.Name, len(t.RawData))
		}
		vals := make([]float32, len(t.RawData)/4)
		for i := range vals {
			vals[i] = math.Float32frombits(binary.LittleEndian.Uint32(t.RawData[i*4:]))
		}
		return vals, nil
	}
	return append([]float32(nil), t.FloatData...), nil
}

// MakeInt64Tensor builds an int64 tensor with little-endian raw data.
func MakeInt64Tensor(name string, dims, vals []int64) TensorProto {
	raw := make([]byte, 8*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint64(raw[i*8:], uint64(v))
	}
	return TensorProto{Name: name, DataType: TensorProtoInt64, Dims: dims, RawData: raw}
}

// MakeFloat32Tensor builds a float32 tensor with little-endian raw data.
func MakeFloat32Tensor(name string, dims []int64, vals []float32) TensorProto {
	raw := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(v))
	}
	return TensorProto{Name: name, DataType: TensorProtoFloat, Dims: dims, RawData: raw}
}
