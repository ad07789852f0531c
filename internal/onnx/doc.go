// Package onnx reads, manipulates and writes ONNX model files without a
// generated protobuf binding. Messages are modeled as plain structs over the
// fields this tool works with, and every message preserves the raw bytes of
// fields it does not model, so models round-trip through parse and marshal
// without losing training info, functions, sparse tensors or other extensions.
//
// The package also carries the graph utilities the conversion pipeline shares:
// opset lookup, topological ordering, attribute access and tensor data codecs.
package onnx
