package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/onnxweb/onnxweb/pkg/converter"
	"github.com/onnxweb/onnxweb/pkg/downloader"
	"github.com/onnxweb/onnxweb/pkg/inspector"
)

func main() {
	logFile := &lazyLogFile{path: "onnxweb.log"}
	defer func() {
		if cerr := logFile.Close(); cerr != nil {
			fmt.Fprintf(os.Stderr, "Error closing log file: %v\n", cerr)
		}
	}()
	log.SetOutput(logFile)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "convert":
		handleConvert()
	case "inspect":
		handleInspect()
	case "download":
		handleDownload()
	default:
		printUsage()
		os.Exit(1)
	}
}

func handleConvert() {
	convertCmd := flag.NewFlagSet("convert", flag.ExitOnError)
	skipSimplify := convertCmd.Bool("skip-simplify", false, "Skip the graph simplification step")
	noFuseBN := convertCmd.Bool("no-fuse-bn", false, "Keep BatchNormalization nodes instead of folding them into Conv weights")

	if err := convertCmd.Parse(os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags for convert command: %v\n", err)
		os.Exit(1)
	}

	inputFile := convertCmd.Arg(0)
	outputFile := convertCmd.Arg(1)
	if inputFile == "" || outputFile == "" {
		fmt.Println("Usage: onnxweb convert [-skip-simplify] [-no-fuse-bn] <input.onnx> <output.onnx> [opset]")
		fmt.Println("\nExample:")
		fmt.Println("  onnxweb convert detection-v1.0.0.onnx detection-v1.0.0-web.onnx 14")
		os.Exit(1)
	}

	opts := converter.Options{SkipSimplify: *skipSimplify, SkipFuseBN: *noFuseBN}
	if arg := convertCmd.Arg(2); arg != "" {
		n, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || n < 1 {
			handleErr(fmt.Errorf("invalid opset version %q", arg))
		}
		opts.TargetOpset = n
	}

	rep, err := converter.Convert(inputFile, outputFile, opts)
	handleErr(err)

	log.Printf("converted %s to %s (opset %d -> %d)", rep.InputPath, rep.OutputPath, rep.SourceOpset, rep.TargetOpset)
	for _, warning := range rep.Warnings {
		log.Printf("warning: %s", warning)
	}

	printConvertReport(os.Stdout, rep)
}

// printConvertReport writes the closing summary in the tool's original
// console format.
func printConvertReport(w io.Writer, rep *converter.Report) {
	banner := strings.Repeat("=", 50)

	fmt.Fprintf(w, "\n%s\n", banner)
	fmt.Fprintln(w, "✅ Conversion complete!")
	fmt.Fprintf(w, "Input size:  %.2f MB\n", toMB(rep.InputBytes))
	fmt.Fprintf(w, "Output size: %.2f MB\n", toMB(rep.OutputBytes))
	fmt.Fprintf(w, "Target opset: %d\n", rep.TargetOpset)
	fmt.Fprintf(w, "%s\n\n", banner)

	fmt.Fprintln(w, "Next steps:")
	fmt.Fprintf(w, "1. Test the converted model: %s\n", rep.OutputPath)
	fmt.Fprintln(w, "2. Upload to your repository")
	fmt.Fprintln(w, "3. Update the model URL in your app")
}

func toMB(n int64) float64 {
	return float64(n) / 1024 / 1024
}

func handleInspect() {
	inspectCmd := flag.NewFlagSet("inspect", flag.ExitOnError)
	jsonOut := inspectCmd.Bool("json", false, "Emit the summary as JSON")

	if err := inspectCmd.Parse(os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags for inspect command: %v\n", err)
		os.Exit(1)
	}
	inputFile := inspectCmd.Arg(0)
	if inputFile == "" {
		fmt.Println("Error: Input file is required for 'inspect' command.")
		inspectCmd.Usage()
		os.Exit(1)
	}

	sum, err := inspector.Inspect(inputFile)
	handleErr(err)

	if *jsonOut {
		data, err := sum.JSON()
		handleErr(err)
		fmt.Println(string(data))
		return
	}
	sum.Print(os.Stdout)
}

func handleDownload() {
	downloadCmd := flag.NewFlagSet("download", flag.ExitOnError)
	modelID := downloadCmd.String("model", "", "HuggingFace model ID (e.g., 'openai/whisper-tiny.en')")
	outputPath := downloadCmd.String("output", ".", "Output directory for downloaded files")
	apiKeyFlag := downloadCmd.String("api-key", "", "Optional HuggingFace API key for authenticated downloads")

	if err := downloadCmd.Parse(os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags for download command: %v\n", err)
		os.Exit(1)
	}

	if *modelID == "" {
		fmt.Println("Error: -model flag is required for 'download' command.")
		downloadCmd.Usage()
		os.Exit(1)
	}

	d := downloader.NewDownloader(downloader.NewHuggingFaceSource(resolveAPIKey(*apiKeyFlag)))

	fmt.Printf("Downloading model '%s' to '%s'...\n", *modelID, *outputPath)

	result, err := d.Download(*modelID, *outputPath)
	handleErr(err)

	log.Printf("downloaded %s: model %s, %d sidecar files", *modelID, result.ModelPath, len(result.TokenizerPaths))

	fmt.Printf("Successfully downloaded model to: %s\n", result.ModelPath)
	if len(result.TokenizerPaths) > 0 {
		fmt.Println("Downloaded tokenizer files:")
		for _, p := range result.TokenizerPaths {
			fmt.Printf("  - %s\n", p)
		}
	}
}

// resolveAPIKey prefers the flag value and falls back to the HF_API_KEY
// environment variable.
func resolveAPIKey(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv("HF_API_KEY")
}

func printUsage() {
	fmt.Println("Usage: onnxweb <command> [arguments]")
	fmt.Println("\nCommands:")
	fmt.Println("  convert [-skip-simplify] [-no-fuse-bn] <input.onnx> <output.onnx> [opset]")
	fmt.Println("  inspect <input-file.onnx> [-json]")
	fmt.Println("  download -model <huggingface-model-id> [-output <output-directory>] [-api-key <your-api-key> | HF_API_KEY=<your-api-key>]")
}

func handleErr(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Error: %v\n", err)
		os.Exit(1)
	}
}

// lazyLogFile defers creating the log file until the first write. Runs that
// fail argument validation exit without logging and leave no file behind.
type lazyLogFile struct {
	path string
	f    *os.File
	err  error
}

func (l *lazyLogFile) Write(p []byte) (int, error) {
	if l.f == nil && l.err == nil {
		l.f, l.err = os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if l.err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", l.err)
		}
	}
	if l.err != nil {
		return 0, l.err
	}
	return l.f.Write(p)
}

func (l *lazyLogFile) Close() error {
	if l.f == nil {
		return nil
	}
	return l.f.Close()
}
