// Package stagestats measures per-stage latency of item pipelines.
//
// A pipeline is a graph of stages rooted at a producer: producers emit items,
// transformers turn each input into zero or more outputs and consumers accept
// items without emitting any. Stages are connected with Node.Pipe; a node may
// pipe into several downstream nodes (fan-out) and the items are copied to
// each of them. Items are Watermill messages, so existing publishers,
// subscribers and handler functions plug straight in through the bridge
// stages.
//
// Reporter.Register walks the graph depth first and wraps every stage in a
// timing decorator of the same capability. While the pipeline runs, each
// processed item adds one duration sample to its stage's Stats; when a stage
// completes its statistics are finalised (mean, population standard
// deviation and percentiles). Results lists the stages in pre-order, each
// addressed by its layer, its index among its siblings and the path of
// indices from the root.
//
// # Quick start
//
//	root := stagestats.New(stagestats.NewSliceProducer(msgs...))
//	root.Pipe(stagestats.New(stagestats.TransformFunc(enrich))).
//		Pipe(stagestats.New(stagestats.ConsumeFunc(store)))
//
//	reporter := stagestats.NewReporter(&stagestats.Config{}, logger, stagestats.ReporterDependencies{})
//	if err := reporter.Register(root); err != nil {
//		return err
//	}
//	if err := stagestats.Run(ctx, root); err != nil {
//		return err
//	}
//	for _, res := range reporter.Results() {
//		fmt.Println(res.Name, res.Path, res.Stats.Snapshot().Mean)
//	}
//
// # Clock
//
// Durations are integers in the unit of the reporter's clock. The process-wide
// default uses nanoseconds when the platform timer resolves sub-millisecond
// steps and milliseconds otherwise. Config.Resolution overrides it per
// reporter; unknown values fall back to the default.
//
// # Exports
//
// With Config.MetricsEnabled the reporter registers Prometheus collectors for
// per-stage durations, item counts and finalised mean, stddev and p99. With
// Config.TracingEnabled registration is recorded as an OpenTelemetry span with
// one event per stage. WriteJSON writes the current results as a JSON report.
//
// # Hooks
//
// ReporterDependencies.Hooks receives every sample and every stage completion
// after the accumulator has been updated.
package stagestats
