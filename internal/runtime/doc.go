/*
Package runtime instruments pipeline graphs with per-stage latency statistics.

# Architecture Overview

A pipeline is a graph of stream.Node values rooted at a producer. The Reporter
walks that graph once, decorates every stage with a timing wrapper and keeps
one Result per discovered stage. Running the pipeline with stream.Run then
feeds each stage's accumulator; the stage's completion event finalises it.

# Package Structure

## Reporter (reporter.go)

The Reporter is the entry point. It owns the clock, the run ID, the hook chain
and the optional Prometheus collectors and OpenTelemetry tracer.

## Graph discovery (registrar.go)

Pre-order depth-first traversal. Each Result is addressed by its layer
(1-based depth), its index among its siblings and the full index path from
the root. A stage reached through several paths is instrumented once; every
further path lists it again with Shared set. Cycles are rejected before any
stage is touched.

## Interception (interceptor.go)

Timing wrappers with the same capability as the wrapped stage:
  - transformers are timed from Transform until its done callback
  - consumers are timed from Write until its done callback
  - producers are timed from each Read until every item pushed for it

## Hooks and metrics (hooks.go, stage_metrics.go)

StageHooks observe samples and completions. LoggingHooks and MetricsHooks
are wired by the Reporter according to its configuration.

# Sub-packages

  - clock/: clock resolution selection
  - config/: reporter configuration with validation
  - errors/: sentinel errors and error types
  - ids/: ULID run identifiers
  - jsoncodec/: JSON marshaling for reports
  - logging/: logger interface and adapters
  - stages/: ready-made stages bridging watermill publishers and subscribers
  - stats/: the per-stage accumulator
  - stream/: the host runtime that runs pipeline graphs

# Usage Example

	root := stream.New(stages.NewSliceProducer(msgs...))
	root.Pipe(stream.New(enrich)).Pipe(stream.New(stages.NewPublisherConsumer(pub, "out")))

	reporter := runtime.NewReporter(&config.Config{MetricsEnabled: true}, logger, runtime.ReporterDependencies{})
	if err := reporter.Register(root); err != nil {
		return err
	}
	if err := stream.Run(ctx, root); err != nil {
		return err
	}
	_ = reporter.WriteJSON(os.Stdout)
*/
package runtime
