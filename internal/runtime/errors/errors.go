package errors

import (
	sterrors "errors"
	"fmt"
)

var (
	ErrRootRequired        = sterrors.New("stagestats: root stage is required")
	ErrStageRequired       = sterrors.New("stagestats: stage is required")
	ErrAlreadyRegistered   = sterrors.New("stagestats: reporter already registered a pipeline")
	ErrCycleDetected       = sterrors.New("stagestats: pipeline graph contains a cycle")
	ErrRootNotProducer     = sterrors.New("stagestats: root stage must be a producer")
	ErrProducerHasUpstream = sterrors.New("stagestats: producer cannot receive piped input")
	ErrConsumerHasPipes    = sterrors.New("stagestats: consumer cannot pipe downstream")
	ErrPublisherRequired   = sterrors.New("stagestats: publisher is required")
	ErrSubscriberRequired  = sterrors.New("stagestats: subscriber is required")
	ErrTopicRequired       = sterrors.New("stagestats: topic is required")
	ErrHandlerRequired     = sterrors.New("stagestats: handler function is required")
)

// ConfigValidationError reports an invalid reporter configuration.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return "stagestats: invalid configuration: " + e.Err.Error()
}

func (e ConfigValidationError) Unwrap() error { return e.Err }

// NewConfigValidationError wraps err, or returns nil when err is nil.
func NewConfigValidationError(err error) error {
	if err == nil {
		return nil
	}
	return ConfigValidationError{Err: err}
}

// UnknownStageError describes a stage that implements none of the producer,
// transformer or consumer capabilities. It is informational: such stages are
// listed but left uninstrumented.
type UnknownStageError struct {
	Name string
	Path []int
}

func (e *UnknownStageError) Error() string {
	return fmt.Sprintf("stagestats: stage %s at %v has no known capability", e.Name, e.Path)
}
