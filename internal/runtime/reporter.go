package runtime

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/drblury/stagestats/internal/runtime/clock"
	configpkg "github.com/drblury/stagestats/internal/runtime/config"
	errspkg "github.com/drblury/stagestats/internal/runtime/errors"
	idspkg "github.com/drblury/stagestats/internal/runtime/ids"
	"github.com/drblury/stagestats/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/stagestats/internal/runtime/logging"
	"github.com/drblury/stagestats/internal/runtime/stream"
)

const tracerName = "github.com/drblury/stagestats"

// ReporterDependencies holds the optional collaborators of a Reporter.
// Leave fields nil to use the defaults.
type ReporterDependencies struct {
	// Clock overrides the clock picked from the configuration.
	Clock clock.Clock
	// Hooks run after the built-in logging and metrics hooks.
	Hooks StageHooks
	// Registerer receives the stage collectors when metrics are enabled.
	// Defaults to prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
	// TracerProvider is used when tracing is enabled. Defaults to the global
	// OpenTelemetry provider.
	TracerProvider trace.TracerProvider
}

// Report is the JSON document written by WriteJSON.
type Report struct {
	RunID      string           `json:"run_id"`
	StartedAt  time.Time        `json:"started_at"`
	Resolution clock.Resolution `json:"resolution"`
	Stages     []ResultSnapshot `json:"stages"`
}

// Reporter instruments one pipeline graph and collects a Result per stage.
// A Reporter serves a single run: Register succeeds at most once.
type Reporter struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	clock   clock.Clock
	hooks   StageHooks
	metrics *StageMetrics
	tracer  trace.Tracer
	runID   string

	mu         sync.RWMutex
	registered bool
	results    []*Result
}

// NewReporter constructs a Reporter and panics when the configuration is
// invalid or the metrics collectors cannot be registered. Use TryNewReporter
// to handle these errors.
func NewReporter(conf *configpkg.Config, log loggingpkg.ServiceLogger, deps ReporterDependencies) *Reporter {
	r, err := TryNewReporter(conf, log, deps)
	if err != nil {
		panic(err)
	}
	return r
}

// TryNewReporter constructs a Reporter. A nil conf uses the zero Config and a
// nil log discards everything.
func TryNewReporter(conf *configpkg.Config, log loggingpkg.ServiceLogger, deps ReporterDependencies) (*Reporter, error) {
	if conf == nil {
		conf = &configpkg.Config{}
	}
	if err := conf.Validate(); err != nil {
		return nil, errspkg.NewConfigValidationError(err)
	}
	log = loggingpkg.OrNop(log)

	r := &Reporter{
		Conf:   conf,
		Logger: log,
		clock:  resolveClock(conf, log, deps.Clock),
		runID:  idspkg.NewRunID(),
	}
	r.Logger = log.With(loggingpkg.LogFields{"run_id": r.runID})

	hooks := LoggingHooks(r.Logger, conf.LogSamples)
	if conf.MetricsEnabled {
		r.metrics = NewStageMetrics(deps.Registerer, conf.Namespace(), conf.MetricsBuckets)
		if err := r.metrics.Register(); err != nil {
			return nil, err
		}
		hooks = hooks.Merge(MetricsHooks(r.metrics))
	}
	r.hooks = hooks.Merge(deps.Hooks)

	switch {
	case !conf.TracingEnabled:
		r.tracer = noop.NewTracerProvider().Tracer(tracerName)
	case deps.TracerProvider != nil:
		r.tracer = deps.TracerProvider.Tracer(tracerName)
	default:
		r.tracer = otel.Tracer(tracerName)
	}

	r.Logger.Debug("Creating stage reporter", loggingpkg.LogFields{
		"resolution": string(r.clock.Resolution()),
		"config":     conf,
	})
	return r, nil
}

func resolveClock(conf *configpkg.Config, log loggingpkg.ServiceLogger, override clock.Clock) clock.Clock {
	if override != nil {
		return override
	}
	if conf.Resolution == "" {
		return clock.Default()
	}
	if _, ok := clock.Parse(conf.Resolution); !ok {
		log.Info("Unknown clock resolution, using default", loggingpkg.LogFields{
			"resolution": conf.Resolution,
			"default":    string(clock.Default().Resolution()),
		})
	}
	return clock.ForName(conf.Resolution)
}

// Register walks the graph rooted at root and instruments every stage.
func (r *Reporter) Register(root *stream.Node) error {
	return r.RegisterContext(context.Background(), root)
}

// RegisterContext is Register with a parent context for the registration span.
func (r *Reporter) RegisterContext(ctx context.Context, root *stream.Node) error {
	if root == nil {
		return errspkg.ErrRootRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.registered {
		return errspkg.ErrAlreadyRegistered
	}

	_, span := r.tracer.Start(ctx, "stagestats.Register",
		trace.WithAttributes(
			attribute.String("stagestats.run_id", r.runID),
			attribute.String("stagestats.root", root.Name()),
		),
	)
	defer span.End()

	g := newRegistrar()
	if err := g.walk(root, 0, 0, nil); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.Logger.Error("Pipeline registration failed", err, loggingpkg.LogFields{"root": root.Name()})
		return err
	}

	for _, n := range g.nodes {
		rec := &recorder{
			clock: r.clock,
			stats: g.accs[n],
			hooks: r.hooks,
			ctx: StageContext{
				RunID: r.runID,
				Stage: n.Name(),
				Kind:  n.Kind(),
				Path:  g.firstPath[n],
				Unit:  r.clock.Resolution(),
			},
		}
		if !instrument(n, rec) {
			unknown := &errspkg.UnknownStageError{Name: n.Name(), Path: g.firstPath[n]}
			fields := loggingpkg.StageFields(n.Name(), g.firstPath[n])
			fields["reason"] = unknown.Error()
			r.Logger.Debug("Stage left uninstrumented", fields)
		}
	}

	for _, res := range g.results {
		span.AddEvent("stage", trace.WithAttributes(
			attribute.String("stage.name", res.Name),
			attribute.String("stage.kind", res.Kind.String()),
			attribute.String("stage.path", res.PathString()),
			attribute.Int("stage.layer", res.Layer),
			attribute.Bool("stage.shared", res.Shared),
		))
	}
	span.SetAttributes(attribute.Int("stagestats.stage_count", len(g.results)))

	r.results = g.results
	r.registered = true

	r.Logger.Info("Pipeline registered", loggingpkg.LogFields{
		"root":       root.Name(),
		"stages":     len(g.results),
		"resolution": string(r.clock.Resolution()),
	})
	return nil
}

// Results returns the discovered stages in pre-order. The slice is a copy;
// the Stats of each entry keep updating while the pipeline runs.
func (r *Reporter) Results() []*Result {
	r.mu.RLock()
	defer r.mu.RUnlock()

	results := make([]*Result, len(r.results))
	copy(results, r.results)
	return results
}

// Snapshot copies every Result with its current statistics.
func (r *Reporter) Snapshot() []ResultSnapshot {
	results := r.Results()
	snapshots := make([]ResultSnapshot, len(results))
	for i, res := range results {
		snapshots[i] = res.Snapshot()
	}
	return snapshots
}

// Report bundles the snapshot with the run identity.
func (r *Reporter) Report() Report {
	// The run ID is generated by NewRunID and always parses.
	started, _ := idspkg.RunStartedAt(r.runID)
	return Report{
		RunID:      r.runID,
		StartedAt:  started,
		Resolution: r.clock.Resolution(),
		Stages:     r.Snapshot(),
	}
}

// WriteJSON writes the current Report to w.
func (r *Reporter) WriteJSON(w io.Writer) error {
	return jsoncodec.Encode(w, r.Report())
}

// RunID identifies this reporter's run in logs, spans and reports.
func (r *Reporter) RunID() string {
	return r.runID
}

// RunOptions returns stream run options that log through the reporter's
// logger, so runtime lines carry the run ID.
func (r *Reporter) RunOptions() stream.Options {
	return stream.Options{Logger: loggingpkg.NewWatermillAdapter(r.Logger)}
}

// Clock returns the clock durations are measured with.
func (r *Reporter) Clock() clock.Clock {
	return r.clock
}

// Metrics returns the Prometheus collectors, or nil when metrics are disabled.
func (r *Reporter) Metrics() *StageMetrics {
	return r.metrics
}
