// Command maw concatenates CSV and parquet tables into one or more output
// files under bounded memory, unifying divergent schemas and checkpointing
// progress so interrupted runs can resume.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/sempervent/streaming-parquet/internal/checkpoint"
	"github.com/sempervent/streaming-parquet/internal/config"
	"github.com/sempervent/streaming-parquet/internal/metrics"
	"github.com/sempervent/streaming-parquet/internal/metrics/datadog"
	"github.com/sempervent/streaming-parquet/internal/metrics/prompush"
	"github.com/sempervent/streaming-parquet/internal/pipeline"
	"github.com/sempervent/streaming-parquet/internal/plan"
	"github.com/sempervent/streaming-parquet/internal/tabular"
)

// Exit codes, stable for scripting.
const (
	exitOK          = 0
	exitFailure     = 1 // generic I/O or encode failure
	exitResolve     = 2 // an input matched nothing
	exitSchema      = 3 // unresolvable type conflict between inputs
	exitResume      = 4 // checkpoint mismatch or corruption
	exitInterrupted = 5 // stopped by signal, checkpoint saved
)

// stringList is a repeatable string flag.
type stringList []string

func (s *stringList) String() string     { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error { *s = append(*s, v); return nil }

// cliOptions carries flags that configure the process rather than the run.
type cliOptions struct {
	metricsBackend string
	pushGatewayURL string
	dogstatsdAddr  string
	verbose        bool
}

func main() {
	fs := flag.NewFlagSet("maw", flag.ContinueOnError)
	cfg, opts, err := parseFlags(fs, os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(exitOK)
		}
		fatalf("%v", err)
	}

	issues := config.Validate(cfg)
	for _, iss := range issues {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasError(issues) {
		os.Exit(exitFailure)
	}

	setupMetrics(opts.metricsBackend, opts.pushGatewayURL, opts.dogstatsdAddr, opts.verbose)

	// os.Exit skips deferred calls, so flush explicitly before exiting.
	code := run(cfg, opts.verbose)
	if err := metrics.Flush(); err != nil {
		log.Printf("metrics: flush error: %v", err)
	}
	os.Exit(code)
}

// parseFlags reads the CLI surface into a run configuration. Positional
// arguments are the input paths and globs.
func parseFlags(fs *flag.FlagSet, args []string) (config.Config, cliOptions, error) {
	cfg := config.Default()
	var opts cliOptions

	var output string
	fs.StringVar(&output, "output", "", "output path, optionally with a rolling index placeholder ({} or %04d)")
	fs.StringVar(&output, "o", "", "shorthand for -output")

	var (
		outFormat = fs.String("out-format", config.FormatAuto, "output format: auto, csv, or parquet")
		comp      = fs.String("compression", config.CompressionNone, "output compression: none, gzip, snappy (parquet only), or zstd")
		zstdLevel = fs.Int("zstd-level", cfg.ZstdLevel, "zstd compression level (1-19)")

		rollBytes = fs.String("roll-by-bytes", "", "start a new output file after this many bytes (suffixes K, M, G allowed)")
		rollRows  = fs.Int64("roll-by-rows", 0, "start a new output file after this many rows")

		columns  = fs.String("columns", "", "comma-separated output column selection and order")
		renames  stringList
		naSpec   = fs.String("na", "NA,null,\\N", "comma-separated values decoded as null (empty string is always null)")
		delim    = fs.String("delimiter", ",", "CSV field delimiter (use '\\t' for tabs)")
		noHeader = fs.Bool("no-header", false, "inputs have no header row; columns are named col_1..col_N")
		encoding = fs.String("encoding", "utf8", "CSV input text encoding: utf8 or latin1")

		statePath = fs.String("state", "", "checkpoint state file path")
		resume    = fs.Bool("resume", false, "resume from the state file")
		planOnly  = fs.Bool("plan", false, "resolve and probe inputs, print the plan as JSON, and exit")

		concurrency = fs.Int("concurrency", cfg.Concurrency, "parallel input readers")
		batchRows   = fs.Int("batch-rows", cfg.BatchRows, "rows per in-flight batch")
		inferRows   = fs.Int("infer-rows", cfg.InferRows, "CSV rows sampled for schema inference")

		stringify   = fs.Bool("stringify-conflicts", false, "widen unresolvable type conflicts to string instead of failing")
		decodePol   = fs.String("on-decode-error", config.DecodeAbort, "decode error policy: abort, skip-row, or skip-file")
		noRecursive = fs.Bool("no-recursive", false, "do not descend into subdirectories of input directories")
	)
	fs.Var(&renames, "rename", "rename a column, old=new (repeatable)")
	fs.StringVar(&opts.metricsBackend, "metrics-backend", "", "metrics backend: pushgateway, dogstatsd, or none")
	fs.StringVar(&opts.pushGatewayURL, "pushgateway-url", "", "Pushgateway base URL (overrides env PUSHGATEWAY_URL)")
	fs.StringVar(&opts.dogstatsdAddr, "dogstatsd-addr", "", "DogStatsD address (overrides env DOGSTATSD_ADDR)")
	fs.BoolVar(&opts.verbose, "v", false, "enable verbose logs")

	if err := fs.Parse(args); err != nil {
		return cfg, opts, err
	}

	cfg.Inputs = fs.Args()
	cfg.Output = output
	cfg.OutFormat = *outFormat
	cfg.Compression = *comp
	cfg.ZstdLevel = *zstdLevel
	cfg.RollRows = *rollRows
	cfg.Columns = splitList(*columns)
	cfg.Renames = config.ParseRenames(renames)
	cfg.NAValues = config.ParseNAList(*naSpec)
	cfg.NoHeader = *noHeader
	cfg.Encoding = *encoding
	cfg.StatePath = *statePath
	cfg.Resume = *resume
	cfg.Plan = *planOnly
	cfg.Concurrency = *concurrency
	cfg.BatchRows = *batchRows
	cfg.InferRows = *inferRows
	cfg.StringifyConflicts = *stringify
	cfg.DecodePolicy = *decodePol
	cfg.NoRecursive = *noRecursive

	if *rollBytes != "" {
		n, err := parseSize(*rollBytes)
		if err != nil {
			return cfg, opts, fmt.Errorf("invalid -roll-by-bytes: %w", err)
		}
		cfg.RollBytes = n
	}
	d, err := parseDelimiter(*delim)
	if err != nil {
		return cfg, opts, fmt.Errorf("invalid -delimiter: %w", err)
	}
	cfg.Delimiter = d

	return cfg, opts, nil
}

func run(cfg config.Config, verbose bool) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	p, err := plan.Build(cfg)
	metrics.RecordStage("plan", err, time.Since(start))
	if err != nil {
		return fail(err)
	}

	if verbose {
		log.Printf("plan: %d inputs, unified schema [%s], fingerprint %s",
			len(p.Inputs), p.Unified, p.Fingerprint)
	}

	if cfg.Plan {
		if err := p.Render(os.Stdout); err != nil {
			return fail(err)
		}
		return exitOK
	}

	var (
		store *checkpoint.Store
		cp    *checkpoint.Checkpoint
	)
	if cfg.StatePath != "" {
		store = checkpoint.NewStore(cfg.StatePath)
	}
	if cfg.Resume {
		cp, err = store.Load()
		if err != nil {
			return fail(err)
		}
		// Silently restarting from scratch could duplicate output rows, so a
		// requested resume with nothing to resume from is fatal.
		if cp == nil {
			return fail(&checkpoint.CorruptError{Path: cfg.StatePath,
				Err: errors.New("state file does not exist")})
		}
		if err := store.Validate(cp, p.Fingerprint); err != nil {
			return fail(err)
		}
		log.Printf("resuming: input %d row %d, output file %d",
			cp.Seq, cp.RowsDone, cp.OutIndex)
	}

	sum, err := pipeline.Run(ctx, cfg, p, cp, store)
	metrics.RecordStage("run", err, time.Since(start))
	if err != nil {
		if errors.Is(err, pipeline.ErrInterrupted) {
			log.Printf("%v (%s so far)", err, sum)
			return exitInterrupted
		}
		return fail(err)
	}

	log.Printf("done in %s: %s", time.Since(start).Truncate(time.Millisecond), sum)
	return exitOK
}

// fail logs the error and maps it onto the exit code taxonomy.
func fail(err error) int {
	log.Printf("%v", err)

	var (
		resolve  *plan.InputResolutionError
		conflict *tabular.SchemaConflictError
		mismatch *checkpoint.MismatchError
		corrupt  *checkpoint.CorruptError
	)
	switch {
	case errors.As(err, &resolve):
		return exitResolve
	case errors.As(err, &conflict):
		return exitSchema
	case errors.As(err, &mismatch), errors.As(err, &corrupt):
		return exitResume
	default:
		return exitFailure
	}
}

// setupMetrics picks the metrics backend: flag, then env, then disabled.
func setupMetrics(name, gatewayURL, statsdAddr string, verbose bool) {
	if name == "" {
		name = os.Getenv("METRICS_BACKEND")
	}
	switch name {
	case "pushgateway":
		if gatewayURL == "" {
			gatewayURL = os.Getenv("PUSHGATEWAY_URL")
		}
		if gatewayURL == "" {
			gatewayURL = "http://localhost:9091"
		}
		b, err := prompush.NewBackend("maw", gatewayURL)
		if err != nil {
			log.Printf("metrics: failed to init pushgateway backend: %v; using nop", err)
			return
		}
		if verbose {
			log.Printf("metrics: backend=pushgateway url=%s", gatewayURL)
		}
		metrics.SetBackend(b)

	case "dogstatsd":
		if statsdAddr == "" {
			statsdAddr = os.Getenv("DOGSTATSD_ADDR")
		}
		if statsdAddr == "" {
			statsdAddr = "127.0.0.1:8125"
		}
		b, err := datadog.NewBackend(datadog.Config{Addr: statsdAddr, Namespace: "maw."})
		if err != nil {
			log.Printf("metrics: failed to init dogstatsd backend: %v; using nop", err)
			return
		}
		if verbose {
			log.Printf("metrics: backend=dogstatsd addr=%s", statsdAddr)
		}
		metrics.SetBackend(b)

	case "", "none":
		// metrics disabled; nop backend remains

	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", name)
	}
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// parseSize parses "268435456", "256M", "1G", etc.
func parseSize(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	mult := int64(1)
	switch {
	case strings.HasSuffix(s, "K"):
		mult, s = 1<<10, s[:len(s)-1]
	case strings.HasSuffix(s, "M"):
		mult, s = 1<<20, s[:len(s)-1]
	case strings.HasSuffix(s, "G"):
		mult, s = 1<<30, s[:len(s)-1]
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", s, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("size must be positive")
	}
	return n * mult, nil
}

func parseDelimiter(s string) (rune, error) {
	switch s {
	case `\t`, "tab":
		return '\t', nil
	}
	rs := []rune(s)
	if len(rs) != 1 {
		return 0, fmt.Errorf("want a single character, got %q", s)
	}
	return rs[0], nil
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(exitFailure)
}
