package stagestats

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"google.golang.org/protobuf/proto"

	runtimepkg "github.com/drblury/stagestats/internal/runtime"
	clockpkg "github.com/drblury/stagestats/internal/runtime/clock"
	configpkg "github.com/drblury/stagestats/internal/runtime/config"
	errspkg "github.com/drblury/stagestats/internal/runtime/errors"
	jsoncodec "github.com/drblury/stagestats/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/stagestats/internal/runtime/logging"
	stagespkg "github.com/drblury/stagestats/internal/runtime/stages"
	statspkg "github.com/drblury/stagestats/internal/runtime/stats"
	streampkg "github.com/drblury/stagestats/internal/runtime/stream"
)

type (
	Config               = configpkg.Config
	Reporter             = runtimepkg.Reporter
	ReporterDependencies = runtimepkg.ReporterDependencies
	Result               = runtimepkg.Result
	ResultSnapshot       = runtimepkg.ResultSnapshot
	Report               = runtimepkg.Report

	// Stage lifecycle hooks
	StageHooks   = runtimepkg.StageHooks
	StageContext = runtimepkg.StageContext
	StageMetrics = runtimepkg.StageMetrics

	Stats         = statspkg.Stats
	StatsSnapshot = statspkg.Snapshot

	Clock      = clockpkg.Clock
	Resolution = clockpkg.Resolution

	// Pipeline graph
	Node              = streampkg.Node
	Stage             = streampkg.Stage
	Kind              = streampkg.Kind
	Event             = streampkg.Event
	Producer          = streampkg.Producer
	Transformer       = streampkg.Transformer
	Consumer          = streampkg.Consumer
	PushFunc          = streampkg.PushFunc
	TransformDoneFunc = streampkg.TransformDoneFunc
	WriteDoneFunc     = streampkg.WriteDoneFunc
	RunOptions        = streampkg.Options
	StageError        = streampkg.StageError

	// Bridge stages
	SliceProducer      = stagespkg.SliceProducer
	SubscriberProducer = stagespkg.SubscriberProducer
	PublisherConsumer  = stagespkg.PublisherConsumer
	TransformFunc      = stagespkg.TransformFunc
	ConsumeFunc        = stagespkg.ConsumeFunc

	ProtoHandler[In proto.Message, Out proto.Message]     = stagespkg.ProtoHandler[In, Out]
	ProtoTransformer[In proto.Message, Out proto.Message] = stagespkg.ProtoTransformer[In, Out]

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	ConfigValidationError = errspkg.ConfigValidationError
	UnknownStageError     = errspkg.UnknownStageError
)

const (
	Nanoseconds  = clockpkg.Nanoseconds
	Milliseconds = clockpkg.Milliseconds

	KindUnknown     = streampkg.KindUnknown
	KindProducer    = streampkg.KindProducer
	KindTransformer = streampkg.KindTransformer
	KindConsumer    = streampkg.KindConsumer

	EventEnd    = streampkg.EventEnd
	EventFinish = streampkg.EventFinish

	MetadataKeyEventSchema = stagespkg.MetadataKeyEventSchema
)

var (
	NewReporter    = runtimepkg.NewReporter
	TryNewReporter = runtimepkg.TryNewReporter
	ValidateConfig = configpkg.ValidateConfig

	// Stage lifecycle hooks
	LoggingHooks    = runtimepkg.LoggingHooks
	MetricsHooks    = runtimepkg.MetricsHooks
	NewStageMetrics = runtimepkg.NewStageMetrics

	NewStats = statspkg.New

	DefaultClock = clockpkg.Default
	ClockForName = clockpkg.ForName
	NewClock     = clockpkg.New

	// Pipeline graph
	New            = streampkg.New
	Run            = streampkg.Run
	RunWithOptions = streampkg.RunWithOptions
	KindOf         = streampkg.KindOf
	TypeName       = streampkg.TypeName

	// Bridge stages
	NewSliceProducer     = stagespkg.NewSliceProducer
	NewPublisherConsumer = stagespkg.NewPublisherConsumer
	FromHandler          = stagespkg.FromHandler
	FromNoPublishHandler = stagespkg.FromNoPublishHandler

	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent
	Unmarshal     = jsoncodec.Unmarshal
	Encode        = jsoncodec.Encode

	ErrRootRequired        = errspkg.ErrRootRequired
	ErrStageRequired       = errspkg.ErrStageRequired
	ErrAlreadyRegistered   = errspkg.ErrAlreadyRegistered
	ErrCycleDetected       = errspkg.ErrCycleDetected
	ErrRootNotProducer     = errspkg.ErrRootNotProducer
	ErrProducerHasUpstream = errspkg.ErrProducerHasUpstream
	ErrConsumerHasPipes    = errspkg.ErrConsumerHasPipes
	ErrPublisherRequired   = errspkg.ErrPublisherRequired
	ErrSubscriberRequired  = errspkg.ErrSubscriberRequired
	ErrTopicRequired       = errspkg.ErrTopicRequired
	ErrHandlerRequired     = errspkg.ErrHandlerRequired
)

// NewSubscriberProducer emits the messages of a watermill subscription.
func NewSubscriberProducer(ctx context.Context, sub message.Subscriber, topic string, limit int) (*SubscriberProducer, error) {
	return stagespkg.NewSubscriberProducer(ctx, sub, topic, limit)
}

// NewProtoTransformer builds a transformer that decodes protojson payloads into
// In and encodes the handler's outputs.
func NewProtoTransformer[In proto.Message, Out proto.Message](handler ProtoHandler[In, Out]) (*ProtoTransformer[In, Out], error) {
	return stagespkg.NewProtoTransformer(handler)
}

// NewSlogServiceLogger wraps a slog.Logger.
var NewSlogServiceLogger = loggingpkg.NewSlogServiceLogger

// NewWatermillServiceLogger wraps a Watermill LoggerAdapter.
var NewWatermillServiceLogger = loggingpkg.NewWatermillServiceLogger

// NewWatermillAdapter exposes a ServiceLogger as a Watermill LoggerAdapter for
// the stream runtime and Watermill pub/subs.
var NewWatermillAdapter = loggingpkg.NewWatermillAdapter

// NewNopServiceLogger returns a logger discarding everything.
var NewNopServiceLogger = loggingpkg.NewNopServiceLogger
