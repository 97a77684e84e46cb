package config

import (
	"errors"
	"fmt"
	"regexp"
)

// DefaultMetricsNamespace prefixes every exported collector when
// MetricsNamespace is empty.
const DefaultMetricsNamespace = "stagestats"

var metricNamePattern = regexp.MustCompile(`^[a-zA-Z_:][a-zA-Z0-9_:]*$`)

// Config groups the settings of a Reporter. The zero value is valid and
// measures with the process-wide clock without exporting anything.
type Config struct {
	// Resolution overrides the clock resolution for this reporter. Supported
	// values: "nanoseconds" ("ns") and "milliseconds" ("ms"). Empty or unknown
	// values fall back to the process-wide default.
	Resolution string

	// Metrics configuration.
	MetricsEnabled bool
	// MetricsNamespace prefixes the Prometheus collectors. Defaults to "stagestats".
	MetricsNamespace string
	// MetricsBuckets overrides the duration histogram buckets, expressed in the
	// reporter's clock unit. Must be strictly increasing.
	MetricsBuckets []float64

	// TracingEnabled wraps registration in an OpenTelemetry span.
	TracingEnabled bool

	// LogSamples logs every recorded sample at trace level.
	LogSamples bool
}

// Namespace returns the metrics namespace with the default applied.
func (c *Config) Namespace() string {
	if c.MetricsNamespace == "" {
		return DefaultMetricsNamespace
	}
	return c.MetricsNamespace
}

func (c Config) String() string {
	type configAlias Config
	return fmt.Sprintf("%+v", configAlias(c))
}

// Validate checks the configuration and returns every problem found.
// Unknown resolutions are accepted since they fall back to the default clock.
func (c *Config) Validate() error {
	var errs []error

	errs = append(errs, c.validateMetrics()...)

	return errors.Join(errs...)
}

func (c *Config) validateMetrics() []error {
	var errs []error
	if c.MetricsNamespace != "" && !metricNamePattern.MatchString(c.MetricsNamespace) {
		errs = append(errs, fmt.Errorf("metrics: invalid namespace %q", c.MetricsNamespace))
	}
	for i := 1; i < len(c.MetricsBuckets); i++ {
		if c.MetricsBuckets[i] <= c.MetricsBuckets[i-1] {
			errs = append(errs, errors.New("metrics: buckets must be strictly increasing"))
			break
		}
	}
	for _, b := range c.MetricsBuckets {
		if b < 0 {
			errs = append(errs, errors.New("metrics: buckets cannot be negative"))
			break
		}
	}
	return errs
}

// ValidateConfig is a convenience function to validate a config pointer.
// Returns nil if the config is valid.
func ValidateConfig(c *Config) error {
	if c == nil {
		return errors.New("config is nil")
	}
	return c.Validate()
}
