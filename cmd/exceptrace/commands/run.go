package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/exceptrace/internal/config"
	"github.com/Sumatoshi-tech/exceptrace/internal/extract"
	"github.com/Sumatoshi-tech/exceptrace/internal/fragment"
	"github.com/Sumatoshi-tech/exceptrace/internal/graph"
	"github.com/Sumatoshi-tech/exceptrace/internal/observability"
	"github.com/Sumatoshi-tech/exceptrace/internal/sink"
	"github.com/Sumatoshi-tech/exceptrace/pkg/compdb"
)

// ErrRunFailed marks a run that completed with phase failures in strict mode.
var ErrRunFailed = errors.New("run failed")

// RunCommand holds the flags for the run command.
type RunCommand struct {
	configPath          string
	outputDir           string
	jobs                int
	strict              bool
	expandVirtualCalls  bool
	includeSystemHeader bool
	timeout             time.Duration
	skipExtract         bool
	metricsAddr         string
	noColor             bool
}

// NewRunCommand creates and configures the run command.
func NewRunCommand() *cobra.Command {
	rc := &RunCommand{}

	cobraCmd := &cobra.Command{
		Use:   "run <compile_commands.json>",
		Short: "Extract, assemble, and propagate the exception call graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rc.Run(cmd, args[0])
		},
	}

	flags := cobraCmd.Flags()
	flags.StringVar(&rc.configPath, "config", "", "Config file (default: .exceptrace.yaml in CWD or $HOME)")
	flags.StringVarP(&rc.outputDir, "output-dir", "o", config.DefaultOutputDir, "Output directory")
	flags.IntVarP(&rc.jobs, "jobs", "j", config.DefaultJobs, "Parallel extraction and ingest workers")
	flags.BoolVar(&rc.strict, "strict", false, "Treat any extraction failure as fatal")
	flags.BoolVar(&rc.expandVirtualCalls, "expand-virtual-calls", true, "Expand virtual calls through the polymorph table")
	flags.BoolVar(&rc.includeSystemHeader, "include-system-header", false, "Keep system-header functions in the fragments")
	flags.DurationVar(&rc.timeout, "timeout", config.DefaultTimeout, "Per-TU extraction wall clock")
	flags.BoolVar(&rc.skipExtract, "skip-extract", false, "Reuse cached fragments without running the extractors")
	flags.StringVar(&rc.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address during the run")
	flags.BoolVar(&rc.noColor, "no-color", false, "Disable colored output")

	return cobraCmd
}

// loadConfig merges the config file with explicitly set flags; flags win.
func (rc *RunCommand) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig(rc.configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()

	if flags.Changed("output-dir") {
		cfg.OutputDir = rc.outputDir
	}

	if flags.Changed("jobs") {
		cfg.Jobs = rc.jobs
	}

	if flags.Changed("strict") {
		cfg.Strict = rc.strict
	}

	if flags.Changed("expand-virtual-calls") {
		cfg.ExpandVirtualCalls = rc.expandVirtualCalls
	}

	if flags.Changed("include-system-header") {
		cfg.IncludeSystemHeader = rc.includeSystemHeader
	}

	if flags.Changed("timeout") {
		cfg.Extract.Timeout = rc.timeout
	}

	return cfg, cfg.Validate()
}

// Run executes the full pipeline.
func (rc *RunCommand) Run(cmd *cobra.Command, compdbPath string) error {
	cfg, err := rc.loadConfig(cmd)
	if err != nil {
		return err
	}

	providers, err := observability.Init(observability.Config{
		ServiceName:        "exceptrace",
		OTLPEndpoint:       cfg.Observability.OTLPEndpoint,
		OTLPInsecure:       cfg.Observability.OTLPInsecure,
		LogLevel:           observability.ParseLevel(cfg.Observability.LogLevel),
		LogJSON:            cfg.Observability.LogJSON,
		ShutdownTimeoutSec: 5,
	})
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	defer func() {
		if shutdownErr := providers.Shutdown(context.WithoutCancel(ctx)); shutdownErr != nil {
			providers.Logger.Warn("telemetry shutdown", "err", shutdownErr)
		}
	}()

	if rc.metricsAddr != "" {
		rc.serveMetrics(providers)
	}

	metrics, err := observability.NewPipelineMetrics(providers.Meter)
	if err != nil {
		return err
	}

	pipeline := &runPipeline{
		cfg:         cfg,
		providers:   providers,
		metrics:     metrics,
		overview:    sink.NewOverview(),
		started:     time.Now(),
		skipExtract: rc.skipExtract,
	}

	runErr := pipeline.execute(ctx, compdbPath)

	pipeline.overview.Render(os.Stdout, rc.noColor)

	if runErr != nil {
		return runErr
	}

	if cfg.Strict && pipeline.overview.Failed() {
		return ErrRunFailed
	}

	return nil
}

// serveMetrics exposes the Prometheus endpoint for the lifetime of the run.
func (rc *RunCommand) serveMetrics(providers observability.Providers) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", providers.MetricsHandler)

	go func() {
		server := &http.Server{
			Addr:              rc.metricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			providers.Logger.Warn("metrics server stopped", "err", err)
		}
	}()
}

// runPipeline threads the analysis context through the phases.
type runPipeline struct {
	cfg         *config.Config
	providers   observability.Providers
	metrics     *observability.PipelineMetrics
	overview    *sink.Overview
	started     time.Time
	skipExtract bool

	cache     *extract.Cache
	poly      graph.PolyTable
	callGraph *graph.Graph
	failedTUs int
	shardsCG  int
	shardsPM  int
}

// phase wraps one pipeline step with a span, overview row, and duration
// metric.
func (p *runPipeline) phase(ctx context.Context, name string, fn func(context.Context) (int, error)) error {
	ctx, span := p.providers.Tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	record := p.overview.StartPhase(name)
	began := time.Now()

	count, err := fn(ctx)

	record(count, err)
	p.metrics.RecordPhase(ctx, name, time.Since(began))

	return err
}

func (p *runPipeline) execute(ctx context.Context, compdbPath string) error {
	cfg := p.cfg
	log := p.providers.Logger

	p.cache = extract.NewCache(cfg.OutputDir)

	var entries []compdb.Entry

	err := p.phase(ctx, "compdb", func(_ context.Context) (int, error) {
		var loadErr error

		entries, loadErr = compdb.Load(compdbPath)

		return len(entries), loadErr
	})
	if err != nil {
		return err
	}

	if err := p.extractPhase(ctx, entries); err != nil {
		return err
	}

	if err := p.assemblePhase(ctx); err != nil {
		return err
	}

	err = p.phase(ctx, "backedges", func(_ context.Context) (int, error) {
		p.callGraph.ComputeBackEdges()

		return p.callGraph.Len(), nil
	})
	if err != nil {
		return err
	}

	err = p.phase(ctx, "propagate", func(phaseCtx context.Context) (int, error) {
		propagator := graph.NewPropagator(p.callGraph, log)
		runErr := propagator.Run(phaseCtx)
		p.metrics.RecordIterations(phaseCtx, propagator.Iterations)

		return propagator.Iterations, runErr
	})
	if err != nil {
		return err
	}

	return p.dumpPhase(ctx, compdbPath)
}

func (p *runPipeline) extractPhase(ctx context.Context, entries []compdb.Entry) error {
	if p.skipExtract || len(entries) == 0 {
		p.overview.Skip("extract")

		return nil
	}

	return p.phase(ctx, "extract", func(phaseCtx context.Context) (int, error) {
		runner := &extract.Runner{
			IPMTool:             p.cfg.Extract.IPMTool,
			ICGTool:             p.cfg.Extract.ICGTool,
			Timeout:             p.cfg.Extract.Timeout,
			Jobs:                p.cfg.Jobs,
			Strict:              p.cfg.Strict,
			IncludeSystemHeader: p.cfg.IncludeSystemHeader,
			Cache:               p.cache,
			OutputDir:           p.cfg.OutputDir,
			Log:                 p.providers.Logger,
		}

		stats, failures, err := runner.Run(phaseCtx, entries)

		p.failedTUs = stats.Failed

		for _, failure := range failures {
			p.metrics.RecordTUFailure(phaseCtx, string(failure.Kind))
		}

		return stats.Extracted + stats.Cached, err
	})
}

func (p *runPipeline) assemblePhase(ctx context.Context) error {
	loader := &fragment.DirLoader{
		Jobs:   p.cfg.Jobs,
		Strict: p.cfg.Strict,
		Log:    p.providers.Logger,
	}

	p.poly = graph.NewPolyTable()

	err := p.phase(ctx, "polymorph", func(phaseCtx context.Context) (int, error) {
		batches, failed, loadErr := loader.LoadClasses(phaseCtx, p.cache.IPMRoot())
		if loadErr != nil {
			return 0, loadErr
		}

		p.failedTUs += len(failed)
		p.metrics.RecordFragments(phaseCtx, len(batches))

		for _, classes := range batches {
			p.poly.Merge(classes)
		}

		return len(p.poly), nil
	})
	if err != nil {
		return err
	}

	p.callGraph = graph.NewGraph(p.poly, p.cfg.ExpandVirtualCalls, p.providers.Logger)

	return p.phase(ctx, "assemble", func(phaseCtx context.Context) (int, error) {
		batches, failed, loadErr := loader.LoadFunctions(phaseCtx, p.cache.ICGRoot())
		if loadErr != nil {
			return 0, loadErr
		}

		p.failedTUs += len(failed)
		p.metrics.RecordFragments(phaseCtx, len(batches))

		for _, fns := range batches {
			p.callGraph.AddFunctions(fns)
		}

		return p.callGraph.Len(), nil
	})
}

func (p *runPipeline) dumpPhase(ctx context.Context, compdbPath string) error {
	return p.phase(ctx, "dump", func(_ context.Context) (int, error) {
		var err error

		p.shardsPM, err = sink.WritePolymorph(p.cfg.OutputDir, p.poly)
		if err != nil {
			return 0, err
		}

		p.shardsCG, err = sink.WriteCallGraph(p.cfg.OutputDir, p.callGraph)
		if err != nil {
			return p.shardsPM, err
		}

		if err := sink.WriteSnapshot(p.cfg.OutputDir, p.callGraph, p.poly); err != nil {
			return p.shardsPM + p.shardsCG, err
		}

		manifest := sink.Manifest{
			StartedAt:           p.started,
			Elapsed:             time.Since(p.started),
			CompilationDatabase: compdbPath,
			ExpandVirtualCalls:  p.cfg.ExpandVirtualCalls,
			IncludeSystemHeader: p.cfg.IncludeSystemHeader,
			Strict:              p.cfg.Strict,
			Jobs:                p.cfg.Jobs,
			Functions:           p.callGraph.Len(),
			PolymorphEntries:    len(p.poly),
			CallGraphShards:     p.shardsCG,
			PolymorphShards:     p.shardsPM,
			FailedTUs:           p.failedTUs,
			Phases:              sink.PhasesFromOverview(p.overview),
		}

		if err := sink.WriteManifest(p.cfg.OutputDir, manifest); err != nil {
			return p.shardsPM + p.shardsCG, err
		}

		return p.shardsPM + p.shardsCG, nil
	})
}
