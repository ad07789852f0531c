package converter

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/onnxweb/onnxweb/internal/onnx"
	"github.com/onnxweb/onnxweb/pkg/opset"
	"github.com/onnxweb/onnxweb/pkg/simplify"
)

// testModel is an Identity feeding a Relu, so the simplifier always has one
// node to remove.
func testModel(opsetVersion int64) *onnx.ModelProto {
	vi := func(name string) onnx.ValueInfoProto {
		return onnx.ValueInfoProto{Name: name, Type: &onnx.TypeProto{TensorType: &onnx.TensorTypeProto{
			ElemType: onnx.TensorProtoFloat,
			Shape:    &onnx.TensorShapeProto{Dims: []onnx.DimensionProto{{HasValue: true, Value: 2}}},
		}}}
	}
	return &onnx.ModelProto{
		IRVersion:    8,
		ProducerName: "converter-test",
		Graph: &onnx.GraphProto{
			Name:    "main",
			Inputs:  []onnx.ValueInfoProto{vi("x")},
			Outputs: []onnx.ValueInfoProto{vi("y")},
			Nodes: []onnx.NodeProto{
				{OpType: "Identity", Inputs: []string{"x"}, Outputs: []string{"t"}},
				{OpType: "Relu", Inputs: []string{"t"}, Outputs: []string{"y"}},
			},
		},
		OpsetImport: []onnx.OperatorSetID{{Version: opsetVersion}},
	}
}

func writeTestModel(t *testing.T, m *onnx.ModelProto) (inPath, outPath string) {
	t.Helper()
	dir := t.TempDir()
	inPath = filepath.Join(dir, "model.onnx")
	outPath = filepath.Join(dir, "model-web.onnx")
	require.NoError(t, onnx.WriteFile(m, inPath))
	return inPath, outPath
}

func quiet(t *testing.T, c *Converter) *Converter {
	t.Helper()
	c.logf = t.Logf
	return c
}

func TestDowngradeSkippedAtOrBelowTarget(t *testing.T) {
	in, out := writeTestModel(t, testModel(14))
	c := quiet(t, New(Options{}))
	called := false
	c.downgrade = func(m *onnx.ModelProto, target int64) (*opset.Result, error) {
		called = true
		return opset.Downgrade(m, target)
	}

	rep, err := c.Convert(in, out)
	require.NoError(t, err)
	require.False(t, called)
	require.False(t, rep.Downgraded)
	require.Equal(t, int64(14), rep.SourceOpset)

	saved, err := onnx.ParseFile(out)
	require.NoError(t, err)
	require.Equal(t, int64(14), saved.Opset())
}

func TestDowngradeInvokedWithTarget(t *testing.T) {
	in, out := writeTestModel(t, testModel(21))
	c := quiet(t, New(Options{}))
	var got int64
	c.downgrade = func(m *onnx.ModelProto, target int64) (*opset.Result, error) {
		got = target
		return opset.Downgrade(m, target)
	}

	rep, err := c.Convert(in, out)
	require.NoError(t, err)
	require.Equal(t, int64(14), got)
	require.True(t, rep.Downgraded)
	require.Equal(t, int64(21), rep.SourceOpset)

	saved, err := onnx.ParseFile(out)
	require.NoError(t, err)
	require.Equal(t, int64(14), saved.Opset())
}

func TestDowngradeFailureIsFatal(t *testing.T) {
	in, out := writeTestModel(t, testModel(21))
	c := quiet(t, New(Options{}))
	c.downgrade = func(*onnx.ModelProto, int64) (*opset.Result, error) {
		return nil, errors.New("cannot express operator")
	}

	_, err := c.Convert(in, out)
	require.ErrorContains(t, err, "converting to opset 14")
	require.NoFileExists(t, out)
}

func TestSimplifyErrorFallsBackToUnsimplified(t *testing.T) {
	in, out := writeTestModel(t, testModel(14))
	c := quiet(t, New(Options{}))
	c.simplify = func(*onnx.ModelProto, simplify.Options) (*simplify.Result, error) {
		return nil, errors.New("boom")
	}
	checked := false
	c.check = func(m *onnx.ModelProto) error {
		checked = true
		return nil
	}

	rep, err := c.Convert(in, out)
	require.NoError(t, err)
	require.False(t, rep.Simplified)
	require.True(t, checked)
	require.Contains(t, rep.Warnings, "simplify: boom")

	// The unsimplified graph was saved, Identity and all.
	saved, err := onnx.ParseFile(out)
	require.NoError(t, err)
	require.Len(t, saved.Graph.Nodes, 2)
}

func TestSimplifyCheckFalseStillUsesSimplifiedModel(t *testing.T) {
	in, out := writeTestModel(t, testModel(14))
	c := quiet(t, New(Options{}))
	c.simplify = func(*onnx.ModelProto, simplify.Options) (*simplify.Result, error) {
		marked := testModel(14)
		marked.ProducerName = "marked"
		return &simplify.Result{Model: marked, Check: false}, nil
	}

	rep, err := c.Convert(in, out)
	require.NoError(t, err)
	require.True(t, rep.Simplified)
	require.False(t, rep.SimplifyOK)
	require.NotEmpty(t, rep.Warnings)

	saved, err := onnx.ParseFile(out)
	require.NoError(t, err)
	require.Equal(t, "marked", saved.ProducerName)
}

func TestValidationFailureStillSaves(t *testing.T) {
	in, out := writeTestModel(t, testModel(14))
	c := quiet(t, New(Options{}))
	c.check = func(*onnx.ModelProto) error { return errors.New("structurally odd") }

	rep, err := c.Convert(in, out)
	require.NoError(t, err)
	require.False(t, rep.Valid)
	require.Contains(t, rep.Warnings, "validation: structurally odd")
	require.FileExists(t, out)
}

func TestLoadFailureIsFatal(t *testing.T) {
	dir := t.TempDir()
	c := quiet(t, New(Options{}))

	_, err := c.Convert(filepath.Join(dir, "missing.onnx"), filepath.Join(dir, "out.onnx"))
	require.Error(t, err)
	require.NoFileExists(t, filepath.Join(dir, "out.onnx"))
}

func TestSaveFailureIsFatal(t *testing.T) {
	in, _ := writeTestModel(t, testModel(14))
	c := quiet(t, New(Options{}))

	_, err := c.Convert(in, filepath.Join(t.TempDir(), "no-such-dir", "out.onnx"))
	require.Error(t, err)
}

func TestConvertEndToEnd(t *testing.T) {
	in, out := writeTestModel(t, testModel(21))

	rep, err := quiet(t, New(Options{})).Convert(in, out)
	require.NoError(t, err)
	require.True(t, rep.Downgraded)
	require.True(t, rep.Simplified)
	require.True(t, rep.SimplifyOK)
	require.True(t, rep.Valid)
	require.Equal(t, 2, rep.NodesBefore)
	require.Equal(t, 1, rep.NodesAfter)
	require.Positive(t, rep.InputBytes)
	require.Positive(t, rep.OutputBytes)

	saved, err := onnx.ParseFile(out)
	require.NoError(t, err)
	require.Equal(t, int64(14), saved.Opset())
	require.Len(t, saved.Graph.Nodes, 1)
	require.Equal(t, "Relu", saved.Graph.Nodes[0].OpType)
}

func TestSkipSimplifyLeavesGraphAlone(t *testing.T) {
	in, out := writeTestModel(t, testModel(14))

	rep, err := quiet(t, New(Options{SkipSimplify: true})).Convert(in, out)
	require.NoError(t, err)
	require.False(t, rep.Simplified)
	require.Equal(t, rep.NodesBefore, rep.NodesAfter)

	saved, err := onnx.ParseFile(out)
	require.NoError(t, err)
	require.Len(t, saved.Graph.Nodes, 2)
}
