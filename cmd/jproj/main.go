// Command jproj projects JSON input against a selection query,
// keeping only the selected fields. Input is a single document by
// default, or one document per line with --ndjson.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/arnodel/jsonproj/config"
	"github.com/arnodel/jsonproj/dispatch"
	"github.com/arnodel/jsonproj/engine"
	"github.com/arnodel/jsonproj/ndjson"
	"github.com/arnodel/jsonproj/selection"
	"github.com/arnodel/jsonproj/sink"
	"github.com/arnodel/jsonproj/subscribe"
)

const version = "0.1.0"

var log = commonlog.GetLogger("jsonproj.cmd")

type options struct {
	ndjsonMode    bool
	skipErrors    bool
	maxLineLength int
	pretty        bool
	compact       bool
	workers       int
	ordering      string
	raw           bool
	gzip          bool
	configPath    string
	verbose       int
}

func main() {
	// SIGPIPE is turned into an EPIPE write error and handled below.
	signal.Ignore(syscall.SIGPIPE)

	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		if errors.Is(err, syscall.EPIPE) {
			// stdout is a pipe and something closed it (e.g. 'head').
			os.Exit(0)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "jproj [flags] [file] \"<query>\"",
		Short: "Project streaming JSON against a selection query",
		Long: `jproj reads JSON from a file or stdin and keeps only the fields
named by the query, streaming the projection to stdout.

A query lists the keys to keep, with optional nesting, aliases and
directives:

  jproj users.json "{ id, name, address { city } }"
  jproj users.ndjson --ndjson '{ id, contact: email @coerce(type:"string") }'`,
		Args:          cobra.RangeArgs(1, 2),
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			commonlog.Configure(opts.verbose, nil)
			return run(cmd, args, &opts)
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&opts.ndjsonMode, "ndjson", false, "treat input as one JSON document per line")
	flags.BoolVar(&opts.ndjsonMode, "jsonl", false, "alias for --ndjson")
	flags.BoolVar(&opts.skipErrors, "skip-errors", false, "with --ndjson, skip failing lines instead of stopping")
	flags.IntVar(&opts.maxLineLength, "max-line-length", 0, "with --ndjson, cap on the byte length of a line")
	flags.BoolVar(&opts.pretty, "pretty", false, "indent output over multiple lines")
	flags.BoolVar(&opts.compact, "compact", false, "one line per match (default)")
	flags.IntVar(&opts.workers, "workers", 1, "with --ndjson, number of parallel workers")
	flags.StringVar(&opts.ordering, "ordering", config.OrderingPreserve, "with --workers, result ordering: preserve or relaxed")
	flags.BoolVar(&opts.raw, "raw", false, "emit the source bytes of each match instead of re-encoding")
	flags.BoolVar(&opts.gzip, "gzip", false, "gzip-compress the output")
	flags.StringVar(&opts.configPath, "config", "", "YAML config file with budgets and limits")
	flags.CountVarP(&opts.verbose, "verbose", "v", "log more (repeat for more detail)")

	return cmd
}

func run(cmd *cobra.Command, args []string, opts *options) error {
	if opts.pretty && opts.compact {
		return fmt.Errorf("--pretty and --compact are mutually exclusive")
	}
	switch opts.ordering {
	case config.OrderingPreserve, config.OrderingRelaxed:
	default:
		return fmt.Errorf("invalid ordering %q: must be %q or %q", opts.ordering, config.OrderingPreserve, config.OrderingRelaxed)
	}

	cfg := &config.Config{}
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	applyConfig(cmd, opts, cfg)

	query := args[len(args)-1]
	tree, err := selection.ParseQuery(query)
	if err != nil {
		return fmt.Errorf("invalid query: %w", err)
	}

	input, inputName, err := openInput(args)
	if err != nil {
		return err
	}
	defer input.Close()

	out, colorized := stdout(opts)
	buffered := bufio.NewWriter(out)
	ws, drainer := newSink(opts, buffered, colorized)

	engineOpts := engineOptions(opts, cfg)
	log.Debugf("projecting %s with query %s", inputName, query)

	runErr := runFlow(cmd, opts, tree, drainer, engineOpts, input)

	if err := buffered.Flush(); err != nil && runErr == nil {
		runErr = err
	}
	if err := ws.Err(); err != nil && runErr == nil {
		runErr = err
	}
	if runErr != nil {
		return runErr
	}
	if stats, ok := ws.LastStats(); ok {
		log.Infof("%d matches, %d bytes in %s (%.1f MB/s, %.0f%% skipped)",
			stats.MatchedCount, stats.ProcessedBytes, stats.Duration,
			stats.ThroughputMBps, stats.SkipRatio*100)
	}
	return nil
}

// applyConfig fills option values the user did not set on the command
// line from the config file.
func applyConfig(cmd *cobra.Command, opts *options, cfg *config.Config) {
	flags := cmd.Flags()
	if !flags.Changed("workers") && cfg.Workers > 0 {
		opts.workers = cfg.Workers
	}
	if !flags.Changed("ordering") && cfg.Ordering != "" {
		opts.ordering = cfg.Ordering
	}
	if !flags.Changed("max-line-length") && cfg.NDJSON.MaxLineLength > 0 {
		opts.maxLineLength = cfg.NDJSON.MaxLineLength
	}
	if !flags.Changed("skip-errors") && cfg.NDJSON.SkipErrors {
		opts.skipErrors = true
	}
}

func openInput(args []string) (io.ReadCloser, string, error) {
	if len(args) < 2 {
		return io.NopCloser(os.Stdin), "stdin", nil
	}
	f, err := os.Open(args[0])
	if err != nil {
		return nil, "", fmt.Errorf("open input: %w", err)
	}
	return f, args[0], nil
}

// stdout picks the output writer, enabling ANSI color handling when
// stdout is a terminal.
func stdout(opts *options) (io.Writer, bool) {
	if opts.gzip || !isatty.IsTerminal(os.Stdout.Fd()) {
		return os.Stdout, false
	}
	return colorable.NewColorableStdout(), true
}

// newSink builds the output sink. The returned WriterSink gives access
// to errors and stats; the returned Sink is what the run drains, which
// matters for gzip where draining closes the compressor.
func newSink(opts *options, w io.Writer, colorized bool) (*sink.WriterSink, engine.Sink) {
	var sinkOpts []sink.Option
	if opts.pretty {
		sinkOpts = append(sinkOpts, sink.WithIndent(2))
	}
	if colorized {
		sinkOpts = append(sinkOpts, sink.WithColor(&sink.DefaultColorizer))
	}
	if opts.gzip {
		gs := sink.NewGzip(w, sinkOpts...)
		return gs.WriterSink, gs
	}
	ws := sink.NewWriter(w, sinkOpts...)
	return ws, ws
}

func engineOptions(opts *options, cfg *config.Config) []engine.Option {
	var engineOpts []engine.Option
	if opts.raw {
		engineOpts = append(engineOpts, engine.WithMode(engine.ModeRaw))
	}
	if budget := cfg.EngineBudget(); budget != nil {
		engineOpts = append(engineOpts, engine.WithBudget(*budget))
	}
	if guard := cfg.EngineGuard(); guard != nil {
		engineOpts = append(engineOpts, engine.WithGuard(*guard))
	}
	return engineOpts
}

func runFlow(cmd *cobra.Command, opts *options, tree *selection.Tree, out engine.Sink, engineOpts []engine.Option, input io.Reader) error {
	ctx := cmd.Context()
	if !opts.ndjsonMode {
		sub, err := subscribe.New(tree, out, subscribe.WithEngineOptions(engineOpts...))
		if err != nil {
			return err
		}
		if _, err := io.Copy(sub, input); err != nil {
			return err
		}
		return sub.Close()
	}

	var onError func(*ndjson.LineError)
	if opts.skipErrors {
		onError = func(lerr *ndjson.LineError) {
			fmt.Fprintf(os.Stderr, "jproj: %s\n", lerr)
		}
	}

	if opts.workers > 1 {
		ordering := dispatch.OrderingPreserve
		if opts.ordering == config.OrderingRelaxed {
			ordering = dispatch.OrderingRelaxed
		}
		poolOpts := []dispatch.Option{
			dispatch.WithWorkers(opts.workers),
			dispatch.WithOrdering(ordering),
			dispatch.WithSink(out),
			dispatch.WithEngineOptions(engineOpts...),
			dispatch.WithMaxLineLength(opts.maxLineLength),
		}
		if opts.skipErrors {
			poolOpts = append(poolOpts, dispatch.WithSkipErrors(onError))
		}
		return dispatch.NewPool(tree, poolOpts...).Run(ctx, input)
	}

	driverOpts := []ndjson.Option{
		ndjson.WithSink(out),
		ndjson.WithEngineOptions(engineOpts...),
		ndjson.WithMaxLineLength(opts.maxLineLength),
	}
	if opts.skipErrors {
		driverOpts = append(driverOpts, ndjson.WithSkipErrors(onError))
	}
	return ndjson.NewDriver(tree, driverOpts...).Run(ctx, input)
}
