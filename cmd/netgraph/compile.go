package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/rendis/netgraph/internal/diagram"
	"github.com/rendis/netgraph/pkg/schema"
)

// errGraphIssues marks output that was written despite errors in the graph.
var errGraphIssues = errors.New("graph has errors")

func runCompile(args []string) {
	fs := flag.NewFlagSet("compile", flag.ExitOnError)
	style := fs.String("style", "auto", "code style: auto, sequential, functional")
	format := fs.String("format", "code", "output: code, json, mermaid")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "Usage: netgraph compile [-style auto|sequential|functional] [-format code|json|mermaid] <file|->")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(2)
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	in := io.Reader(os.Stdin)
	if path := fs.Arg(0); path != "-" {
		f, err := os.Open(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		in = f
	}

	level, _ := parseLevel(cfg.LogLevel)
	err = compileDocument(context.Background(), cfg, newLogger(os.Stderr, level), in, *style, *format, os.Stdout, os.Stderr)
	switch {
	case errors.Is(err, errGraphIssues):
		os.Exit(1)
	case err != nil:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// compileDocument analyses one document and writes the requested output.
// Issues go to diag; errGraphIssues is returned when any were found.
func compileDocument(ctx context.Context, cfg Config, logger *slog.Logger, in io.Reader, styleName, format string, out, diag io.Writer) error {
	style, err := schema.ParseCodeStyle(styleName)
	if err != nil {
		return err
	}
	switch format {
	case "code", "json", "mermaid":
	default:
		return fmt.Errorf("unknown format %q (want code, json or mermaid)", format)
	}

	raw, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	decoder, err := newDecoder(cfg)
	if err != nil {
		return err
	}
	doc, err := decoder.Decode(ctx, raw)
	if err != nil {
		return err
	}
	pipeline, err := newPipeline(cfg, logger)
	if err != nil {
		return err
	}
	report, err := pipeline.Run(ctx, doc, style)
	if err != nil {
		return err
	}

	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	case "mermaid":
		if report.DAG.IsValid {
			model, err := diagram.Build(report.DAG, report, diagram.WithRegistry(pipeline.Registry()))
			if err != nil {
				return err
			}
			fmt.Fprint(out, diagram.RenderMermaid(model))
		}
	default:
		if report.Code != "" {
			fmt.Fprint(out, report.Code)
		}
	}

	if n := writeIssues(diag, report); n > 0 {
		return errGraphIssues
	}
	return nil
}

// writeIssues prints graph errors, shape errors, code errors and warnings.
// It returns the number of errors.
func writeIssues(w io.Writer, report *schema.AnalysisReport) int {
	errs := 0
	for _, msg := range report.DAG.Errors {
		fmt.Fprintf(w, "error: %s\n", msg)
		errs++
	}
	if report.Shapes != nil {
		for _, e := range report.Shapes.Errors {
			if e.Scope == schema.ScopeGraph {
				continue // already listed above
			}
			fmt.Fprintf(w, "error: %s: %s\n", e.NodeID, e.Message)
			errs++
		}
		for _, warn := range report.Shapes.Warnings {
			fmt.Fprintf(w, "warning: %s: %s\n", warn.NodeID, warn.Message)
		}
	}
	if report.CodeError != "" {
		fmt.Fprintf(w, "error: %s\n", strings.TrimSpace(report.CodeError))
		errs++
	}
	for _, warn := range report.CodeWarnings {
		fmt.Fprintf(w, "warning: %s\n", warn)
	}
	return errs
}
