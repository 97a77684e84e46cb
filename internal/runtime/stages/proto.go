package stages

import (
	"context"
	"fmt"
	"reflect"

	"github.com/ThreeDotsLabs/watermill/message"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	errspkg "github.com/drblury/stagestats/internal/runtime/errors"
	idspkg "github.com/drblury/stagestats/internal/runtime/ids"
	"github.com/drblury/stagestats/internal/runtime/stream"
)

// MetadataKeyEventSchema identifies the proto message type of a payload.
const MetadataKeyEventSchema = "event_message_schema"

var protoJSONMarshalOptions = protojson.MarshalOptions{
	EmitUnpopulated: true,
}

var protoJSONUnmarshalOptions = protojson.UnmarshalOptions{
	DiscardUnknown: true,
}

// ProtoHandler processes one typed payload and returns the payloads to emit.
type ProtoHandler[In proto.Message, Out proto.Message] func(ctx context.Context, in In) ([]Out, error)

// ProtoTransformer decodes protojson payloads into In, runs the handler and
// encodes each Out as a new message carrying the input's metadata.
type ProtoTransformer[In proto.Message, Out proto.Message] struct {
	prototype In
	handler   ProtoHandler[In, Out]
}

// NewProtoTransformer builds a transformer for handler. In must be a pointer
// to a generated message type.
func NewProtoTransformer[In proto.Message, Out proto.Message](handler ProtoHandler[In, Out]) (*ProtoTransformer[In, Out], error) {
	if handler == nil {
		return nil, errspkg.ErrHandlerRequired
	}
	var zero In
	prototype, err := newPrototype(zero)
	if err != nil {
		return nil, err
	}
	return &ProtoTransformer[In, Out]{prototype: prototype, handler: handler}, nil
}

func (t *ProtoTransformer[In, Out]) Transform(msg *message.Message, done stream.TransformDoneFunc) {
	out, err := t.transform(msg)
	done(err, out...)
}

func (t *ProtoTransformer[In, Out]) transform(msg *message.Message) ([]*message.Message, error) {
	typed := proto.Clone(t.prototype).(In)
	if err := protoJSONUnmarshalOptions.Unmarshal(msg.Payload, typed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %T payload: %w", t.prototype, err)
	}

	outputs, err := t.handler(msg.Context(), typed)
	if err != nil {
		return nil, err
	}

	result := make([]*message.Message, 0, len(outputs))
	for _, out := range outputs {
		if isNilProto(out) {
			return nil, fmt.Errorf("proto handler emitted nil %T", out)
		}
		payload, err := protoJSONMarshalOptions.Marshal(out)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %T payload: %w", out, err)
		}
		next := message.NewMessage(idspkg.NewMessageID(), payload)
		for k, v := range msg.Metadata {
			next.Metadata.Set(k, v)
		}
		next.Metadata.Set(MetadataKeyEventSchema, fmt.Sprintf("%T", out))
		next.SetContext(msg.Context())
		result = append(result, next)
	}
	return result, nil
}

// newPrototype allocates an empty message of the concrete type behind T.
func newPrototype[T proto.Message](candidate T) (T, error) {
	var zero T
	typ := reflect.TypeOf(&candidate).Elem()
	if typ.Kind() != reflect.Pointer {
		return zero, fmt.Errorf("stagestats: proto type %s must be a pointer", typ)
	}
	typed, ok := reflect.New(typ.Elem()).Interface().(T)
	if !ok {
		return zero, fmt.Errorf("stagestats: unexpected prototype type %s", typ)
	}
	return typed, nil
}

func isNilProto[T proto.Message](msg T) bool {
	val := reflect.ValueOf(msg)
	if !val.IsValid() {
		return true
	}
	switch val.Kind() {
	case reflect.Interface, reflect.Pointer, reflect.Slice, reflect.Map, reflect.Func:
		return val.IsNil()
	default:
		return false
	}
}
