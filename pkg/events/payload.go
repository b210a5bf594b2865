package events

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// EncodePayload marshals an event body as a protobuf Struct.
// Supported values are those accepted by structpb.NewValue plus time.Time,
// which is written as RFC3339Nano.
func EncodePayload(fields map[string]any) ([]byte, error) {
	normalized := make(map[string]any, len(fields))
	for k, v := range fields {
		switch val := v.(type) {
		case time.Time:
			normalized[k] = val.UTC().Format(time.RFC3339Nano)
		case fmt.Stringer:
			normalized[k] = val.String()
		default:
			normalized[k] = v
		}
	}

	st, err := structpb.NewStruct(normalized)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(st)
}

// Payload is a decoded event body
type Payload struct {
	st *structpb.Struct
}

// DecodePayload parses a body produced by EncodePayload
func DecodePayload(body []byte) (*Payload, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(body, &st); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return &Payload{st: &st}, nil
}

// String returns the string field or "" when absent
func (p *Payload) String(key string) string {
	return p.st.GetFields()[key].GetStringValue()
}

// Time parses an RFC3339 string field
func (p *Payload) Time(key string) (time.Time, error) {
	raw := p.String(key)
	if raw == "" {
		return time.Time{}, fmt.Errorf("missing field %q", key)
	}
	return time.Parse(time.RFC3339Nano, raw)
}

// StringMap returns the string entries of a nested struct field
func (p *Payload) StringMap(key string) map[string]string {
	fields := p.st.GetFields()[key].GetStructValue().GetFields()
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		if s, ok := v.GetKind().(*structpb.Value_StringValue); ok {
			out[k] = s.StringValue
		}
	}
	return out
}

// Has reports whether the field is present
func (p *Payload) Has(key string) bool {
	_, ok := p.st.GetFields()[key]
	return ok
}
