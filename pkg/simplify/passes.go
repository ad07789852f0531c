package simplify

import "github.com/onnxweb/onnxweb/internal/onnx"

// constantsToInitializers turns Constant nodes into plain initializers so the
// folding and fusion passes see them as static data. Constants feeding a graph
// output stay, since an output must be produced by a node.
func constantsToInitializers(st *state, g *onnx.GraphProto) (int, error) {
	changed := 0
	outs := outputSet(g)
	kept := g.Nodes[:0]
	for i := range g.Nodes {
		nd := &g.Nodes[i]
		for _, sg := range nd.Subgraphs() {
			n, err := constantsToInitializers(st, sg)
			if err != nil {
				return changed, err
			}
			changed += n
		}
		if nd.OpType != "Constant" || nd.Domain != "" || len(nd.Outputs) != 1 || outs[nd.Outputs[0]] {
			kept = append(kept, *nd)
			continue
		}
		tp := onnx.ConstantValue(nd)
		if tp == nil {
			// Sparse or otherwise unsupported payload.
			kept = append(kept, *nd)
			continue
		}
		g.Initializers = append(g.Initializers, *tp)
		changed++
	}
	g.Nodes = kept
	return changed, nil
}

// eliminateIdentity rewires consumers of each Identity node straight to its
// input and drops the node. Identities that produce a graph output keep the
// graph's interface alive and are left in place, as are ones whose removal
// would let an inner graph's local name capture the rewritten reference.
func eliminateIdentity(st *state, g *onnx.GraphProto) (int, error) {
	changed := 0
	for i := range g.Nodes {
		for _, sg := range g.Nodes[i].Subgraphs() {
			n, err := eliminateIdentity(st, sg)
			if err != nil {
				return changed, err
			}
			changed += n
		}
	}
	outs := outputSet(g)
	for {
		idx := -1
		for i := range g.Nodes {
			nd := &g.Nodes[i]
			if nd.OpType != "Identity" || nd.Domain != "" {
				continue
			}
			if len(nd.Inputs) != 1 || len(nd.Outputs) != 1 || nd.Inputs[0] == "" {
				continue
			}
			if outs[nd.Outputs[0]] {
				continue
			}
			if !canRename(g, nd.Outputs[0], nd.Inputs[0]) {
				continue
			}
			idx = i
			break
		}
		if idx < 0 {
			return changed, nil
		}
		nd := g.Nodes[idx]
		renameRefs(g, nd.Outputs[0], nd.Inputs[0])
		g.Nodes = append(g.Nodes[:idx], g.Nodes[idx+1:]...)
		changed++
	}
}

// eliminateDropout removes Dropout nodes that are inference-time no-ops: the
// mask output is unused and training_mode is absent or statically false. A
// Dropout producing a graph output is downgraded to an Identity instead so the
// output name survives.
func eliminateDropout(st *state, g *onnx.GraphProto) (int, error) {
	changed := 0
	for i := range g.Nodes {
		for _, sg := range g.Nodes[i].Subgraphs() {
			n, err := eliminateDropout(st, sg)
			if err != nil {
				return changed, err
			}
			changed += n
		}
	}
	consts := constTensors(g)
	outs := outputSet(g)
	for {
		idx := -1
		for i := range g.Nodes {
			nd := &g.Nodes[i]
			if nd.OpType != "Dropout" || nd.Domain != "" {
				continue
			}
			if len(nd.Inputs) == 0 || len(nd.Outputs) == 0 || nd.Inputs[0] == "" {
				continue
			}
			if len(nd.Outputs) > 1 && nd.Outputs[1] != "" && countUses(g, nd.Outputs[1]) > 0 {
				continue
			}
			if outs[nd.Outputs[0]] {
				continue
			}
			if len(nd.Inputs) > 2 && nd.Inputs[2] != "" {
				mode, ok := boolScalar(consts[nd.Inputs[2]])
				if !ok || mode {
					continue
				}
			}
			if !canRename(g, nd.Outputs[0], nd.Inputs[0]) {
				continue
			}
			idx = i
			break
		}
		if idx < 0 {
			break
		}
		nd := g.Nodes[idx]
		renameRefs(g, nd.Outputs[0], nd.Inputs[0])
		g.Nodes = append(g.Nodes[:idx], g.Nodes[idx+1:]...)
		changed++
	}
	for i := range g.Nodes {
		nd := &g.Nodes[i]
		if nd.OpType != "Dropout" || nd.Domain != "" || len(nd.Inputs) == 0 || len(nd.Outputs) == 0 {
			continue
		}
		if !outs[nd.Outputs[0]] {
			continue
		}
		if len(nd.Outputs) > 1 && nd.Outputs[1] != "" && countUses(g, nd.Outputs[1]) > 0 {
			continue
		}
		if len(nd.Inputs) > 2 && nd.Inputs[2] != "" {
			mode, ok := boolScalar(consts[nd.Inputs[2]])
			if !ok || mode {
				continue
			}
		}
		*nd = onnx.NodeProto{
			Name:    nd.Name,
			OpType:  "Identity",
			Inputs:  []string{nd.Inputs[0]},
			Outputs: []string{nd.Outputs[0]},
		}
		changed++
	}
	return changed, nil
}

// eliminateDead drops nodes whose outputs cannot reach a graph output, then
// prunes initializers and value_info entries nothing refers to anymore. Graph
// inputs are part of the model's interface and are never touched.
func eliminateDead(st *state, g *onnx.GraphProto) (int, error) {
	changed := 0

	// A node feeding only values nobody reads is dead. Subgraph free inputs
	// count as reads of this graph's values.
	producers := g.Producers()
	live := make([]bool, len(g.Nodes))
	var mark func(name string)
	var markNode func(i int)
	mark = func(name string) {
		if name == "" {
			return
		}
		if i, ok := producers[name]; ok && !live[i] {
			markNode(i)
		}
	}
	markNode = func(i int) {
		live[i] = true
		nd := &g.Nodes[i]
		for _, in := range nd.Inputs {
			mark(in)
		}
		for _, sg := range nd.Subgraphs() {
			for _, free := range sg.FreeInputs() {
				mark(free)
			}
		}
	}
	for i := range g.Outputs {
		mark(g.Outputs[i].Name)
	}
	kept := g.Nodes[:0]
	for i := range g.Nodes {
		if live[i] || len(g.Nodes[i].Outputs) == 0 {
			kept = append(kept, g.Nodes[i])
			continue
		}
		changed++
	}
	g.Nodes = kept

	used := make(map[string]bool)
	for i := range g.Outputs {
		used[g.Outputs[i].Name] = true
	}
	for i := range g.Nodes {
		nd := &g.Nodes[i]
		for _, in := range nd.Inputs {
			used[in] = true
		}
		for _, sg := range nd.Subgraphs() {
			for _, free := range sg.FreeInputs() {
				used[free] = true
			}
		}
	}
	keptInits := g.Initializers[:0]
	for i := range g.Initializers {
		if used[g.Initializers[i].Name] {
			keptInits = append(keptInits, g.Initializers[i])
			continue
		}
		changed++
	}
	g.Initializers = keptInits

	defined := make(map[string]bool)
	for i := range g.Inputs {
		defined[g.Inputs[i].Name] = true
	}
	for i := range g.Initializers {
		defined[g.Initializers[i].Name] = true
	}
	for i := range g.Nodes {
		for _, out := range g.Nodes[i].Outputs {
			defined[out] = true
		}
	}
	keptInfos := g.ValueInfos[:0]
	for i := range g.ValueInfos {
		if defined[g.ValueInfos[i].Name] {
			keptInfos = append(keptInfos, g.ValueInfos[i])
		}
	}
	g.ValueInfos = keptInfos

	for i := range g.Nodes {
		for _, sg := range g.Nodes[i].Subgraphs() {
			n, err := eliminateDead(st, sg)
			if err != nil {
				return changed, err
			}
			changed += n
		}
	}
	return changed, nil
}

// outputSet returns the names a graph declares as outputs.
func outputSet(g *onnx.GraphProto) map[string]bool {
	outs := make(map[string]bool, len(g.Outputs))
	for i := range g.Outputs {
		outs[g.Outputs[i].Name] = true
	}
	return outs
}

// constTensors indexes the graph's static values: initializers plus the
// payloads of any Constant nodes still present.
func constTensors(g *onnx.GraphProto) map[string]*onnx.TensorProto {
	consts := make(map[string]*onnx.TensorProto, len(g.Initializers))
	for i := range g.Initializers {
		consts[g.Initializers[i].Name] = &g.Initializers[i]
	}
	for i := range g.Nodes {
		nd := &g.Nodes[i]
		if nd.OpType != "Constant" || nd.Domain != "" || len(nd.Outputs) != 1 {
			continue
		}
		if tp := onnx.ConstantValue(nd); tp != nil {
			consts[nd.Outputs[0]] = tp
		}
	}
	return consts
}

// countUses counts reference sites of name: node inputs in this graph plus
// free references from nested subgraphs plus graph outputs.
func countUses(g *onnx.GraphProto, name string) int {
	n := 0
	for i := range g.Nodes {
		nd := &g.Nodes[i]
		for _, in := range nd.Inputs {
			if in == name {
				n++
			}
		}
		for _, sg := range nd.Subgraphs() {
			n += subgraphUses(sg, name)
		}
	}
	for i := range g.Outputs {
		if g.Outputs[i].Name == name {
			n++
		}
	}
	return n
}

func subgraphUses(g *onnx.GraphProto, name string) int {
	if localDefines(g, name) {
		return 0
	}
	n := 0
	for i := range g.Nodes {
		nd := &g.Nodes[i]
		for _, in := range nd.Inputs {
			if in == name {
				n++
			}
		}
		for _, sg := range nd.Subgraphs() {
			n += subgraphUses(sg, name)
		}
	}
	return n
}

// localDefines reports whether g itself binds name, shadowing any outer value.
func localDefines(g *onnx.GraphProto, name string) bool {
	for i := range g.Inputs {
		if g.Inputs[i].Name == name {
			return true
		}
	}
	for i := range g.Initializers {
		if g.Initializers[i].Name == name {
			return true
		}
	}
	for i := range g.Nodes {
		for _, out := range g.Nodes[i].Outputs {
			if out == name {
				return true
			}
		}
	}
	return false
}

// refersTo reports whether name is referenced anywhere in g or a nested
// subgraph where it is not shadowed.
func refersTo(g *onnx.GraphProto, name string) bool {
	for i := range g.Nodes {
		nd := &g.Nodes[i]
		for _, in := range nd.Inputs {
			if in == name {
				return true
			}
		}
		for _, sg := range nd.Subgraphs() {
			if !localDefines(sg, name) && refersTo(sg, name) {
				return true
			}
		}
	}
	return false
}

// canRename reports whether every reference to from that resolves to this
// scope can become a reference to to without a nested graph's local definition
// of to capturing it.
func canRename(g *onnx.GraphProto, from, to string) bool {
	for i := range g.Nodes {
		for _, sg := range g.Nodes[i].Subgraphs() {
			if localDefines(sg, from) {
				continue
			}
			if localDefines(sg, to) {
				if refersTo(sg, from) {
					return false
				}
				continue
			}
			if !canRename(sg, from, to) {
				return false
			}
		}
	}
	return true
}

// renameRefs rewrites references to from into references to to, descending
// into subgraphs until from is shadowed. Callers check canRename first.
func renameRefs(g *onnx.GraphProto, from, to string) {
	for i := range g.Nodes {
		nd := &g.Nodes[i]
		for j, in := range nd.Inputs {
			if in == from {
				nd.Inputs[j] = to
			}
		}
		for _, sg := range nd.Subgraphs() {
			if !localDefines(sg, from) {
				renameRefs(sg, from, to)
			}
		}
	}
}

// boolScalar decodes a scalar boolean tensor.
func boolScalar(tp *onnx.TensorProto) (bool, bool) {
	if tp == nil || tp.DataType != onnx.TensorProtoBool || tp.ElementCount() != 1 {
		return false, false
	}
	if len(tp.RawData) == 1 {
		return tp.RawData[0] != 0, true
	}
	if len(tp.Int32Data) == 1 {
		return tp.Int32Data[0] != 0, true
	}
	return false, false
}
