package onnx

// ONNX protobuf message structures, modeled by hand against the onnx.proto
// schema. Every message keeps the wire bytes of fields it does not model in an
// unexported unknown buffer and re-emits them on marshal, so containers round-
// trip without loss even when they carry fields this tool never touches
// (training info, functions, quantization annotations, sparse tensors).

// ModelProto is the top-level ONNX model container.
type ModelProto struct {
	IRVersion       int64               // IR version (e.g. 7, 8, 9)
	ProducerName    string              // exporting framework (e.g. "pytorch")
	ProducerVersion string              // exporting framework version
	Domain          string              // reverse-DNS model namespace
	ModelVersion    int64               // model version number
	DocString       string              // human-readable description
	Graph           *GraphProto         // the computation graph
	OpsetImport     []OperatorSetID     // declared operator set versions
	MetadataProps   []StringStringEntry // free-form key/value metadata

	unknown []byte
}

// GraphProto is a computation graph: a set of nodes plus its interface.
type GraphProto struct {
	Name         string
	Nodes        []NodeProto      // operation nodes, in serialization order
	Initializers []TensorProto    // weight/constant tensors
	DocString    string
	Inputs       []ValueInfoProto // graph inputs (may overlap initializers)
	Outputs      []ValueInfoProto // graph outputs
	ValueInfos   []ValueInfoProto // optional intermediate tensor info

	unknown []byte
}

// NodeProto is a single operation in the graph.
type NodeProto struct {
	Name       string           // optional node name
	OpType     string           // operator (e.g. "Conv", "MatMul", "Relu")
	Domain     string           // operator domain ("" for the default ai.onnx)
	Inputs     []string         // input value names ("" marks an omitted optional)
	Outputs    []string         // output value names
	Attributes []AttributeProto
	DocString  string

	unknown []byte
}

// TensorProto holds a constant tensor: initializers, Constant values and
// attribute tensors.
type TensorProto struct {
	Name         string
	DataType     int32   // element type, one of the TensorProto* constants
	Dims         []int64 // shape; empty means scalar
	RawData      []byte  // little-endian packed data (most common)
	FloatData    []float32
	Int32Data    []int32
	StringData   [][]byte
	Int64Data    []int64
	DoubleData   []float64
	Uint64Data   []uint64
	DocString    string
	ExternalData []StringStringEntry // location/offset/length entries
	DataLocation int32               // DataLocationDefault or DataLocationExternal

	unknown []byte
}

// ValueInfoProto names and types a graph input, output or intermediate value.
type ValueInfoProto struct {
	Name      string
	Type      *TypeProto
	DocString string

	unknown []byte
}

// TypeProto describes a value's type. Only tensor types are modeled; sequence,
// map and optional types survive round-trips through the unknown buffer.
type TypeProto struct {
	TensorType *TensorTypeProto
	Denotation string

	unknown []byte
}

// TensorTypeProto is the element type and shape of a tensor value.
type TensorTypeProto struct {
	ElemType int32
	Shape    *TensorShapeProto

	unknown []byte
}

// TensorShapeProto is an ordered list of dimensions.
type TensorShapeProto struct {
	Dims []DimensionProto

	unknown []byte
}

// DimensionProto is one dimension: a fixed value, a symbolic parameter, or
// unknown when neither is set. HasValue distinguishes a genuine zero-sized
// dimension from an absent dim_value.
type DimensionProto struct {
	HasValue bool
	Value    int64
	Param    string

	unknown []byte
}

// AttributeProto is a named node attribute. Type selects which value field is
// meaningful; the encoder only emits the selected field so attributes
// round-trip exactly.
type AttributeProto struct {
	Name      string
	Type      int32 // one of the AttributeProto* constants
	F         float32
	I         int64
	S         []byte
	T         *TensorProto
	G         *GraphProto
	Floats    []float32
	Ints      []int64
	Strings   [][]byte
	Tensors   []TensorProto
	Graphs    []GraphProto
	DocString string

	unknown []byte
}

// OperatorSetID declares conformance to one operator set version.
type OperatorSetID struct {
	Domain  string // "" or "ai.onnx" is the default operator set
	Version int64

	unknown []byte
}

// StringStringEntry is a key/value metadata pair.
type StringStringEntry struct {
	Key   string
	Value string

	unknown []byte
}

// ONNX element data types (TensorProto.DataType).
const (
	TensorProtoUndefined      = 0
	TensorProtoFloat          = 1 // float32
	TensorProtoUint8          = 2
	TensorProtoInt8           = 3
	TensorProtoUint16         = 4
	TensorProtoInt16          = 5
	TensorProtoInt32          = 6
	TensorProtoInt64          = 7
	TensorProtoString         = 8
	TensorProtoBool           = 9
	TensorProtoFloat16        = 10
	TensorProtoDouble         = 11 // float64
	TensorProtoUint32         = 12
	TensorProtoUint64         = 13
	TensorProtoComplex64      = 14
	TensorProtoComplex128     = 15
	TensorProtoBfloat16       = 16
	TensorProtoFloat8E4M3FN   = 17
	TensorProtoFloat8E4M3FNUZ = 18
	TensorProtoFloat8E5M2     = 19
	TensorProtoFloat8E5M2FNUZ = 20
	TensorProtoUint4          = 21
	TensorProtoInt4           = 22
)

// ONNX attribute types (AttributeProto.Type).
const (
	AttributeProtoUndefined = 0
	AttributeProtoFloat     = 1
	AttributeProtoInt       = 2
	AttributeProtoString    = 3
	AttributeProtoTensor    = 4
	AttributeProtoGraph     = 5
	AttributeProtoFloats    = 6
	AttributeProtoInts      = 7
	AttributeProtoStrings   = 8
	AttributeProtoTensors   = 9
	AttributeProtoGraphs    = 10
)

// Tensor data locations (TensorProto.DataLocation).
const (
	DataLocationDefault  = 0
	DataLocationExternal = 1
)

// dataTypeNames maps element types to their conventional lowercase names.
var dataTypeNames = map[int32]string{
	TensorProtoUndefined:      "undefined",
	TensorProtoFloat:          "float32",
	TensorProtoUint8:          "uint8",
	TensorProtoInt8:           "int8",
	TensorProtoUint16:         "uint16",
	TensorProtoInt16:          "int16",
	TensorProtoInt32:          "int32",
	TensorProtoInt64:          "int64",
	TensorProtoString:         "string",
	TensorProtoBool:           "bool",
	TensorProtoFloat16:        "float16",
	TensorProtoDouble:         "float64",
	TensorProtoUint32:         "uint32",
	TensorProtoUint64:         "uint64",
	TensorProtoComplex64:      "complex64",
	TensorProtoComplex128:     "complex128",
	TensorProtoBfloat16:       "bfloat16",
	TensorProtoFloat8E4M3FN:   "float8e4m3fn",
	TensorProtoFloat8E4M3FNUZ: "float8e4m3fnuz",
	TensorProtoFloat8E5M2:     "float8e5m2",
	TensorProtoFloat8E5M2FNUZ: "float8e5m2fnuz",
	TensorProtoUint4:          "uint4",
	TensorProtoInt4:           "int4",
}

// dataTypeSizes maps fixed-width element types to their byte size. Types with
// no fixed per-element width (string, 4-bit packed) are absent.
var dataTypeSizes = map[int32]int64{
	TensorProtoFloat:          4,
	TensorProtoUint8:          1,
	TensorProtoInt8:           1,
	TensorProtoUint16:         2,
	TensorProtoInt16:          2,
	TensorProtoInt32:          4,
	TensorProtoInt64:          8,
	TensorProtoBool:           1,
	TensorProtoFloat16:        2,
	TensorProtoDouble:         8,
	TensorProtoUint32:         4,
	TensorProtoUint64:         8,
	TensorProtoComplex64:      8,
	TensorProtoComplex128:     16,
	TensorProtoBfloat16:       2,
	TensorProtoFloat8E4M3FN:   1,
	TensorProtoFloat8E4M3FNUZ: 1,
	TensorProtoFloat8E5M2:     1,
	TensorProtoFloat8E5M2FNUZ: 1,
}

// DataTypeName returns the conventional name of an element type, or "unknown".
func DataTypeName(dt int32) string {
	if name, ok := dataTypeNames[dt]; ok {
		return name
	}
	return "unknown"
}

// DataTypeSize returns the byte size of one element of the given type, or 0
// when the type has no fixed per-element width.
func DataTypeSize(dt int32) int64 {
	return dataTypeSizes[dt]
}
