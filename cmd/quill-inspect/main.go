// quill-inspect loads a model and prints its compiled signatures: every
// input and output tensor with its shape and element type.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/quillml/quill/internal/config"
	"github.com/quillml/quill/internal/logger"
	"github.com/quillml/quill/internal/runtime"
	"github.com/quillml/quill/internal/runtime/gomlxrt"
)

var (
	modelPath   = flag.String("model", "", "Path to ONNX decoder model")
	backendName = flag.String("backend", "go", "Execution backend: auto, go or xla")
	prefillLen  = flag.Int("prefill-len", gomlxrt.DefaultPrefillLen, "Static prompt window of the prefill signature")
	logLevel    = flag.String("log-level", "warn", "Log level")
)

func main() {
	flag.Parse()
	logger.Setup(*logLevel, "console")

	if *modelPath == "" {
		fmt.Fprintln(os.Stderr, "Error: -model flag is required")
		flag.Usage()
		os.Exit(2)
	}
	backend, err := config.ParseBackend(*backendName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	eng, err := gomlxrt.Open(*modelPath, gomlxrt.Options{Backend: backend, PrefillLen: *prefillLen})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer eng.Close()

	for _, name := range eng.Signatures() {
		sig, err := eng.Signature(name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("signature %s\n", sig.Name)
		fmt.Println("  inputs:")
		for _, t := range sig.Inputs {
			printTensor(t)
		}
		fmt.Println("  outputs:")
		for _, t := range sig.Outputs {
			printTensor(t)
		}
	}
}

func printTensor(t *runtime.Tensor) {
	dims := make([]string, 0, len(t.Dims()))
	for _, d := range t.Dims() {
		dims = append(dims, fmt.Sprintf("%d", d))
	}
	fmt.Printf("    %-24s %-8s [%s] (%d elements)\n",
		t.Name(), t.DType(), strings.Join(dims, ", "), t.NumElements())
}
