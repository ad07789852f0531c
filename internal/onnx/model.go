package onnx

import "fmt"

// Opset returns the version the model declares for the default operator set
// (domain "" or "ai.onnx"). When no default-domain entry exists the first
// declared entry is used, and 0 means the model declares no opset at all.
func (m *ModelProto) Opset() int64 {
	for _, op := range m.OpsetImport {
		if op.Domain == "" || op.Domain == "ai.onnx" {
			return op.Version
		}
	}
	if len(m.OpsetImport) > 0 {
		return m.OpsetImport[0].Version
	}
	return 0
}

// SetOpset rewrites the default-domain opset entry to version, adding one when
// the model declares none.
func (m *ModelProto) SetOpset(version int64) {
	for i := range m.OpsetImport {
		op := &m.OpsetImport[i]
		if op.Domain == "" || op.Domain == "ai.onnx" {
			op.Version = version
			return
		}
	}
	m.OpsetImport = append(m.OpsetImport, OperatorSetID{Version: version})
}

// Clone deep-copies the model through a marshal/parse round-trip.
func (m *ModelProto) Clone() (*ModelProto, error) {
	return Parse(Marshal(m))
}

// InitializerMap indexes the graph's initializers by name. The pointers stay
// valid until g.Initializers is reallocated.
func (g *GraphProto) InitializerMap() map[string]*TensorProto {
	idx := make(map[string]*TensorProto, len(g.Initializers))
	for i := range g.Initializers {
		idx[g.Initializers[i].Name] = &g.Initializers[i]
	}
	return idx
}

// Producers maps each value name to the index of the node producing it.
func (g *GraphProto) Producers() map[string]int {
	idx := make(map[string]int)
	for i := range g.Nodes {
		for _, out := range g.Nodes[i].Outputs {
			if out != "" {
				idx[out] = i
			}
		}
	}
	return idx
}

// OutputNames returns the graph's output value names.
func (g *GraphProto) OutputNames() []string {
	names := make([]string, len(g.Outputs))
	for i := range g.Outputs {
		names[i] = g.Outputs[i].Name
	}
	return names
}

// NodeCount counts the graph's nodes including those in attribute subgraphs.
func (g *GraphProto) NodeCount() int {
	n := len(g.Nodes)
	for i := range g.Nodes {
		for _, sg := range g.Nodes[i].Subgraphs() {
			n += sg.NodeCount()
		}
	}
	return n
}

// FreeInputs returns the value names the graph reads from enclosing scopes:
// names referenced by its nodes or their subgraphs that are not produced
// locally, declared as graph inputs, or backed by initializers.
func (g *GraphProto) FreeInputs() []string {
	local := make(map[string]bool)
	for i := range g.Inputs {
		local[g.Inputs[i].Name] = true
	}
	for i := range g.Initializers {
		local[g.Initializers[i].Name] = true
	}
	for i := range g.Nodes {
		for _, out := range g.Nodes[i].Outputs {
			if out != "" {
				local[out] = true
			}
		}
	}
	var free []string
	seen := make(map[string]bool)
	add := func(name string) {
		if name != "" && !local[name] && !seen[name] {
			seen[name] = true
			free = append(free, name)
		}
	}
	for i := range g.Nodes {
		for _, in := range g.Nodes[i].Inputs {
			add(in)
		}
		for _, sg := range g.Nodes[i].Subgraphs() {
			for _, name := range sg.FreeInputs() {
				add(name)
			}
		}
	}
	return free
}

// TopologicalSort reorders g.Nodes so every node comes after the producers of
// its inputs, including values its subgraphs capture from this scope. Node
// order is otherwise preserved as much as the dependencies allow. Returns an
// error when the graph contains a cycle.
func (g *GraphProto) TopologicalSort() error {
	producer := g.Producers()
	const (
		unvisited = iota
		visiting
		done
	)
	state := make([]int, len(g.Nodes))
	order := make([]int, 0, len(g.Nodes))
	var visit func(i int) error
	visit = func(i int) error {
		switch state[i] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("graph cycle through node %q", g.Nodes[i].Label())
		}
		state[i] = visiting
		for _, in := range g.Nodes[i].Inputs {
			if j, ok := producer[in]; ok {
				if err := visit(j); err != nil {
					return err
				}
			}
		}
		for _, sg := range g.Nodes[i].Subgraphs() {
			for _, in := range sg.FreeInputs() {
				if j, ok := producer[in]; ok {
					if err := visit(j); err != nil {
						return err
					}
				}
			}
		}
		state[i] = done
		order = append(order, i)
		return nil
	}
	for i := range g.Nodes {
		if err := visit(i); err != nil {
			return err
		}
	}
	sorted := make([]NodeProto, 0, len(g.Nodes))
	for _, i := range order {
		sorted = append(sorted, g.Nodes[i])
	}
	g.Nodes = sorted
	return nil
}

// Label identifies the node in error and log messages: its name when set,
// otherwise its op type and first output.
func (nd *NodeProto) Label() string {
	if nd.Name != "" {
		return nd.Name
	}
	if len(nd.Outputs) > 0 {
		return nd.OpType + "(" + nd.Outputs[0] + ")"
	}
	return nd.OpType
}

// Subgraphs returns pointers to the node's attribute subgraphs, such as If
// branches and Loop or Scan bodies.
func (nd *NodeProto) Subgraphs() []*GraphProto {
	var gs []*GraphProto
	for i := range nd.Attributes {
		a := &nd.Attributes[i]
		switch a.Type {
		case AttributeProtoGraph:
			if a.G != nil {
				gs = append(gs, a.G)
			}
		case AttributeProtoGraphs:
			for j := range a.Graphs {
				gs = append(gs, &a.Graphs[j])
			}
		}
	}
	return gs
}

// Attr returns the named attribute, or nil when the node has none.
func (nd *NodeProto) Attr(name string) *AttributeProto {
	for i := range nd.Attributes {
		if nd.Attributes[i].Name == name {
			return &nd.Attributes[i]
		}
	}
	return nil
}

// AttrInt returns the named int attribute's value, or def when absent.
func (nd *NodeProto) AttrInt(name string, def int64) int64 {
	if a := nd.Attr(name); a != nil && a.Type == AttributeProtoInt {
		return a.I
	}
	return def
}

// AttrFloat returns the named float attribute's value, or def when absent.
func (nd *NodeProto) AttrFloat(name string, def float32) float32 {
	if a := nd.Attr(name); a != nil && a.Type == AttributeProtoFloat {
		return a.F
	}
	return def
}

// AttrString returns the named string attribute's value, or def when absent.
func (nd *NodeProto) AttrString(name, def string) string {
	if a := nd.Attr(name); a != nil && a.Type == AttributeProtoString {
		return string(a.S)
	}
	return def
}

// AttrInts returns the named ints attribute's values, or nil when absent.
func (nd *NodeProto) AttrInts(name string) []int64 {
	if a := nd.Attr(name); a != nil && a.Type == AttributeProtoInts {
		return a.Ints
	}
	return nil
}

// SetAttr replaces the attribute with a's name, or appends it.
func (nd *NodeProto) SetAttr(a AttributeProto) {
	for i := range nd.Attributes {
		if nd.Attributes[i].Name == a.Name {
			nd.Attributes[i] = a
			return
		}
	}
	nd.Attributes = append(nd.Attributes, a)
}

// DeleteAttr removes the named attribute, reporting whether it was present.
func (nd *NodeProto) DeleteAttr(name string) bool {
	for i := range nd.Attributes {
		if nd.Attributes[i].Name == name {
			nd.Attributes = append(nd.Attributes[:i], nd.Attributes[i+1:]...)
			return true
		}
	}
	return false
}

// MakeAttrInt builds an int attribute.
func MakeAttrInt(name string, v int64) AttributeProto {
	return AttributeProto{Name: name, Type: AttributeProtoInt, I: v}
}

// MakeAttrInts builds an ints attribute.
func MakeAttrInts(name string, vs []int64) AttributeProto {
	return AttributeProto{Name: name, Type: AttributeProtoInts, Ints: vs}
}

// MakeAttrFloat builds a float attribute.
func MakeAttrFloat(name string, v float32) AttributeProto {
	return AttributeProto{Name: name, Type: AttributeProtoFloat, F: v}
}

// MakeAttrString builds a string attribute.
func MakeAttrString(name, v string) AttributeProto {
	return AttributeProto{Name: name, Type: AttributeProtoString, S: []byte(v)}
}
