package runtime

import (
	"github.com/drblury/stagestats/internal/runtime/clock"
	loggingpkg "github.com/drblury/stagestats/internal/runtime/logging"
	"github.com/drblury/stagestats/internal/runtime/stats"
	"github.com/drblury/stagestats/internal/runtime/stream"
)

// StageContext identifies the stage a hook fires for. Path is the address of
// the first Result listed for the stage.
type StageContext struct {
	// RunID is the reporter's run identifier.
	RunID string
	// Stage is the declared type name of the stage.
	Stage string
	Kind  stream.Kind
	Path  []int
	// Unit is the resolution of every duration reported for this run.
	Unit clock.Resolution
}

// StageHooks defines callbacks for instrumentation events.
// All hooks are optional - nil hooks are simply not called.
type StageHooks struct {
	// OnSample is called after a duration has been added to the stage's
	// accumulator.
	OnSample func(ctx StageContext, value int64)

	// OnComplete is called after the stage's accumulator has been finalised.
	OnComplete func(ctx StageContext, snapshot stats.Snapshot)
}

// Merge combines two StageHooks, creating a new StageHooks that calls both.
// The hooks from 'other' are called after the hooks from 'h'.
func (h StageHooks) Merge(other StageHooks) StageHooks {
	return StageHooks{
		OnSample:   chainSampleHooks(h.OnSample, other.OnSample),
		OnComplete: chainCompleteHooks(h.OnComplete, other.OnComplete),
	}
}

func chainSampleHooks(a, b func(StageContext, int64)) func(StageContext, int64) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx StageContext, value int64) {
		a(ctx, value)
		b(ctx, value)
	}
}

func chainCompleteHooks(a, b func(StageContext, stats.Snapshot)) func(StageContext, stats.Snapshot) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx StageContext, snapshot stats.Snapshot) {
		a(ctx, snapshot)
		b(ctx, snapshot)
	}
}

// LoggingHooks returns pre-built hooks that log a summary whenever a stage
// completes. With logSamples set every sample is logged at trace level too.
func LoggingHooks(logger loggingpkg.ServiceLogger, logSamples bool) StageHooks {
	hooks := StageHooks{
		OnComplete: func(ctx StageContext, snapshot stats.Snapshot) {
			fields := stageLogFields(ctx)
			fields["count"] = snapshot.Count
			fields["min"] = snapshot.Min
			fields["max"] = snapshot.Max
			fields["mean"] = snapshot.Mean
			fields["stddev"] = snapshot.Stddev
			logger.Info("Stage completed", fields)
		},
	}
	if logSamples {
		hooks.OnSample = func(ctx StageContext, value int64) {
			fields := stageLogFields(ctx)
			fields["value"] = value
			logger.Trace("Stage sample recorded", fields)
		}
	}
	return hooks
}

// MetricsHooks returns pre-built hooks that feed the Prometheus collectors.
func MetricsHooks(metrics *StageMetrics) StageHooks {
	return StageHooks{
		OnSample: func(ctx StageContext, value int64) {
			metrics.ObserveSample(ctx.Stage, loggingpkg.FormatPath(ctx.Path), value)
		},
		OnComplete: func(ctx StageContext, snapshot stats.Snapshot) {
			metrics.RecordCompletion(ctx.Stage, loggingpkg.FormatPath(ctx.Path), snapshot)
		},
	}
}

func stageLogFields(ctx StageContext) loggingpkg.LogFields {
	fields := loggingpkg.StageFields(ctx.Stage, ctx.Path)
	fields["kind"] = ctx.Kind.String()
	fields["unit"] = string(ctx.Unit)
	fields["run_id"] = ctx.RunID
	return fields
}
