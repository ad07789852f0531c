// Package inspector summarizes ONNX model files: versions, graph interface,
// operator histogram and parameter totals. The inspect command prints the
// summary either as text or as JSON.
package inspector

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/onnxweb/onnxweb/internal/onnx"
)

// Summary is everything the inspect command reports about a model.
type Summary struct {
	Path             string    `json:"path"`
	FileBytes        int64     `json:"file_bytes,omitempty"`
	IRVersion        int64     `json:"ir_version"`
	Producer         string    `json:"producer,omitempty"`
	Opsets           []Opset   `json:"opsets,omitempty"`
	GraphName        string    `json:"graph_name,omitempty"`
	Inputs           []Value   `json:"inputs,omitempty"`
	Outputs          []Value   `json:"outputs,omitempty"`
	NodeCount        int       `json:"node_count"`
	Ops              []OpCount `json:"ops,omitempty"`
	InitializerCount int       `json:"initializer_count"`
	ParamCount       int64     `json:"param_count"`
	ParamBytes       int64     `json:"param_bytes"`
}

// Opset is one declared operator-set import. An empty domain is the default
// ai.onnx domain.
type Opset struct {
	Domain  string `json:"domain,omitempty"`
	Version int64  `json:"version"`
}

// Value is a graph input or output with its declared tensor type.
type Value struct {
	Name  string `json:"name"`
	DType string `json:"dtype,omitempty"`
	Shape string `json:"shape,omitempty"`
}

// OpCount is one entry of the per-operator histogram, most frequent first.
type OpCount struct {
	OpType string `json:"op_type"`
	Count  int    `json:"count"`
}

// Inspect loads the model at path and summarizes it.
func Inspect(path string) (*Summary, error) {
	model, err := onnx.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	s := Summarize(model, path)
	if st, err := os.Stat(path); err == nil {
		s.FileBytes = st.Size()
	}
	return s, nil
}

// Summarize builds a Summary for an already-loaded model. FileBytes is left
// zero; Inspect fills it from the file.
func Summarize(m *onnx.ModelProto, path string) *Summary {
	s := &Summary{
		Path:      path,
		IRVersion: m.IRVersion,
		Producer:  strings.TrimSpace(m.ProducerName + " " + m.ProducerVersion),
	}
	for _, op := range m.OpsetImport {
		s.Opsets = append(s.Opsets, Opset{Domain: op.Domain, Version: op.Version})
	}
	if m.Graph == nil {
		return s
	}
	g := m.Graph
	s.GraphName = g.Name
	s.NodeCount = g.NodeCount()

	// Old IR versions declare every initializer as a graph input; those are
	// weights, not feeds.
	inits := g.InitializerMap()
	for i := range g.Inputs {
		if _, ok := inits[g.Inputs[i].Name]; ok {
			continue
		}
		s.Inputs = append(s.Inputs, valueSummary(&g.Inputs[i]))
	}
	for i := range g.Outputs {
		s.Outputs = append(s.Outputs, valueSummary(&g.Outputs[i]))
	}

	ops := make(map[string]int)
	addGraph(s, g, ops)
	for op, n := range ops {
		s.Ops = append(s.Ops, OpCount{OpType: op, Count: n})
	}
	sort.Slice(s.Ops, func(i, j int) bool {
		if s.Ops[i].Count != s.Ops[j].Count {
			return s.Ops[i].Count > s.Ops[j].Count
		}
		return s.Ops[i].OpType < s.Ops[j].OpType
	})
	return s
}

// addGraph accumulates node and initializer statistics from g and every
// subgraph below it.
func addGraph(s *Summary, g *onnx.GraphProto, ops map[string]int) {
	for i := range g.Initializers {
		tp := &g.Initializers[i]
		s.InitializerCount++
		if n := tp.ElementCount(); n > 0 {
			s.ParamCount += n
		}
		if bs := tp.ByteSize(); bs >= 0 {
			s.ParamBytes += bs
		} else {
			s.ParamBytes += int64(len(tp.RawData))
		}
	}
	for i := range g.Nodes {
		nd := &g.Nodes[i]
		name := nd.OpType
		if nd.Domain != "" {
			name = nd.Domain + "." + nd.OpType
		}
		ops[name]++
		for _, sg := range nd.Subgraphs() {
			addGraph(s, sg, ops)
		}
	}
}

func valueSummary(vi *onnx.ValueInfoProto) Value {
	v := Value{Name: vi.Name}
	if vi.Type != nil && vi.Type.TensorType != nil {
		tt := vi.Type.TensorType
		v.DType = onnx.DataTypeName(tt.ElemType)
		v.Shape = shapeString(tt.Shape)
	}
	return v
}

func shapeString(sh *onnx.TensorShapeProto) string {
	if sh == nil {
		return ""
	}
	parts := make([]string, len(sh.Dims))
	for i, d := range sh.Dims {
		switch {
		case d.HasValue:
			parts[i] = strconv.FormatInt(d.Value, 10)
		case d.Param != "":
			parts[i] = d.Param
		default:
			parts[i] = "?"
		}
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// Print writes the human-readable form of the summary to w.
func (s *Summary) Print(w io.Writer) {
	fmt.Fprintf(w, "Model: %s", s.Path)
	if s.FileBytes > 0 {
		fmt.Fprintf(w, " (%s)", humanize.IBytes(uint64(s.FileBytes)))
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "IR version: %d\n", s.IRVersion)
	if s.Producer != "" {
		fmt.Fprintf(w, "Producer: %s\n", s.Producer)
	}
	for _, op := range s.Opsets {
		if op.Domain == "" {
			fmt.Fprintf(w, "Opset: %d\n", op.Version)
		} else {
			fmt.Fprintf(w, "Opset: %s %d\n", op.Domain, op.Version)
		}
	}
	if s.GraphName != "" {
		fmt.Fprintf(w, "Graph: %s\n", s.GraphName)
	}

	if len(s.Inputs) > 0 {
		fmt.Fprintln(w, "\nInputs:")
		printValues(w, s.Inputs)
	}
	if len(s.Outputs) > 0 {
		fmt.Fprintln(w, "\nOutputs:")
		printValues(w, s.Outputs)
	}

	fmt.Fprintf(w, "\nNodes: %d\n", s.NodeCount)
	for _, oc := range s.Ops {
		fmt.Fprintf(w, "  %-24s %d\n", oc.OpType, oc.Count)
	}

	fmt.Fprintf(w, "\nInitializers: %d (%s params, %s)\n",
		s.InitializerCount, humanize.Comma(s.ParamCount), humanize.IBytes(uint64(s.ParamBytes)))
}

func printValues(w io.Writer, vals []Value) {
	for _, v := range vals {
		if v.DType == "" {
			fmt.Fprintf(w, "  %s\n", v.Name)
			continue
		}
		fmt.Fprintf(w, "  %s: %s%s\n", v.Name, v.DType, v.Shape)
	}
}

// JSON renders the summary as indented JSON.
func (s *Summary) JSON() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}
