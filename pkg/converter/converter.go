// Package converter drives the end-to-end preparation of an ONNX model for
// browser runtimes: load, downgrade the declared opset, simplify the graph,
// validate, save, and report what happened.
//
// Failures are tiered. Loading, opset downgrade and saving are fatal; a
// simplifier failure falls back to the unsimplified graph; a validation
// failure is reported but never blocks the save, since the downstream runtime
// is the real arbiter of what loads.
package converter

import (
	"fmt"
	"os"

	"github.com/onnxweb/onnxweb/internal/onnx"
	"github.com/onnxweb/onnxweb/pkg/checker"
	"github.com/onnxweb/onnxweb/pkg/opset"
	"github.com/onnxweb/onnxweb/pkg/simplify"
)

// DefaultTargetOpset is the newest opset the supported browser runtimes
// handle reliably.
const DefaultTargetOpset = 14

// Options configure a conversion. Zero values mean the defaults: target opset
// 14, simplification on, BN fusion on, the simplifier's own round cap.
type Options struct {
	TargetOpset  int64
	SkipSimplify bool
	SkipFuseBN   bool
	Rounds       int
}

// Report summarizes one conversion run.
type Report struct {
	InputPath   string
	OutputPath  string
	InputBytes  int64
	OutputBytes int64

	SourceOpset int64
	TargetOpset int64
	Downgraded  bool
	AdaptedOps  []string

	Simplified  bool // the simplified graph was kept
	SimplifyOK  bool // the simplifier's own validation passed
	Valid       bool // structural validation passed
	NodesBefore int
	NodesAfter  int

	Warnings []string
}

// Converter runs the conversion pipeline. The step functions default to the
// real implementations; tests swap them out to probe the control flow.
type Converter struct {
	opts Options
	logf func(format string, args ...any)

	downgrade func(*onnx.ModelProto, int64) (*opset.Result, error)
	simplify  func(*onnx.ModelProto, simplify.Options) (*simplify.Result, error)
	check     func(*onnx.ModelProto) error
}

// New returns a Converter with opts normalized and the real pipeline wired in.
func New(opts Options) *Converter {
	if opts.TargetOpset <= 0 {
		opts.TargetOpset = DefaultTargetOpset
	}
	if opts.Rounds <= 0 {
		opts.Rounds = simplify.DefaultRounds
	}
	return &Converter{
		opts:      opts,
		logf:      func(format string, args ...any) { fmt.Printf(format+"\n", args...) },
		downgrade: opset.Downgrade,
		simplify:  simplify.Simplify,
		check:     checker.Check,
	}
}

// Convert runs the full pipeline on inputPath and writes the result to
// outputPath.
func Convert(inputPath, outputPath string, opts Options) (*Report, error) {
	return New(opts).Convert(inputPath, outputPath)
}

func (c *Converter) Convert(inputPath, outputPath string) (*Report, error) {
	rep := &Report{
		InputPath:   inputPath,
		OutputPath:  outputPath,
		TargetOpset: c.opts.TargetOpset,
	}

	c.logf("Loading model from %s...", inputPath)
	model, err := onnx.ParseFile(inputPath)
	if err != nil {
		return nil, err
	}
	if fi, err := os.Stat(inputPath); err == nil {
		rep.InputBytes = fi.Size()
	}
	rep.SourceOpset = model.Opset()
	rep.NodesBefore = countNodes(model)
	c.logf("Current opset version: %d", rep.SourceOpset)

	// An undeclared opset is treated as unknown-new and normalized down to
	// the target.
	if rep.SourceOpset > c.opts.TargetOpset || rep.SourceOpset == 0 {
		c.logf("Converting to opset %d...", c.opts.TargetOpset)
		res, err := c.downgrade(model, c.opts.TargetOpset)
		if err != nil {
			return nil, fmt.Errorf("converting to opset %d: %w", c.opts.TargetOpset, err)
		}
		rep.Downgraded = true
		rep.AdaptedOps = res.Adapted
		for _, w := range res.Warnings {
			c.logf("⚠️  %s", w)
			rep.Warnings = append(rep.Warnings, w)
		}
	}

	if !c.opts.SkipSimplify {
		c.logf("Simplifying model...")
		sres, err := c.simplify(model, simplify.Options{
			Rounds: c.opts.Rounds,
			FuseBN: !c.opts.SkipFuseBN,
		})
		switch {
		case err != nil:
			c.logf("⚠️  Could not simplify model: %v", err)
			c.logf("Continuing with non-simplified model...")
			rep.Warnings = append(rep.Warnings, fmt.Sprintf("simplify: %v", err))
		case sres.Check:
			model = sres.Model
			rep.Simplified = true
			rep.SimplifyOK = true
			c.logf("✅ Model simplified successfully")
		default:
			model = sres.Model
			rep.Simplified = true
			c.logf("⚠️  Simplification may have issues, but continuing...")
			rep.Warnings = append(rep.Warnings, "simplified model failed its own validation")
		}
	}

	c.logf("Validating model...")
	if err := c.check(model); err != nil {
		c.logf("⚠️  Model validation warning: %v", err)
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("validation: %v", err))
	} else {
		rep.Valid = true
		c.logf("✅ Model is valid")
	}

	c.logf("Saving converted model to %s...", outputPath)
	if err := onnx.WriteFile(model, outputPath); err != nil {
		return nil, err
	}
	if fi, err := os.Stat(outputPath); err == nil {
		rep.OutputBytes = fi.Size()
	}
	rep.NodesAfter = countNodes(model)
	return rep, nil
}

func countNodes(m *onnx.ModelProto) int {
	if m.Graph == nil {
		return 0
	}
	return m.Graph.NodeCount()
}
