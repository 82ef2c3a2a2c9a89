package grpcapi

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Wire layout (meeting/v1/meeting.proto):
//
//	message ScheduleMeetingRequest {
//	  repeated int64 user_ids = 1;
//	  string start_time = 2;
//	  string end_time = 3;
//	  string meeting_name = 4;
//	}
//	message ScheduleMeetingResponse {
//	  string result = 1;
//	}

type ScheduleMeetingRequest struct {
	UserIDs     []int64
	StartTime   string
	EndTime     string
	MeetingName string
}

type ScheduleMeetingResponse struct {
	Result string
}

var errMalformed = errors.New("malformed protobuf message")

func (m *ScheduleMeetingRequest) MarshalProto() []byte {
	var out []byte
	if len(m.UserIDs) > 0 {
		var packed []byte
		for _, id := range m.UserIDs {
			packed = protowire.AppendVarint(packed, uint64(id))
		}
		out = protowire.AppendTag(out, 1, protowire.BytesType)
		out = protowire.AppendBytes(out, packed)
	}
	out = appendString(out, 2, m.StartTime)
	out = appendString(out, 3, m.EndTime)
	out = appendString(out, 4, m.MeetingName)
	return out
}

func (m *ScheduleMeetingRequest) UnmarshalProto(b []byte) error {
	*m = ScheduleMeetingRequest{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errMalformed
		}
		b = b[n:]

		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return errMalformed
			}
			m.UserIDs = append(m.UserIDs, int64(v))
			b = b[n:]
		case num == 1 && typ == protowire.BytesType:
			packed, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return errMalformed
			}
			for len(packed) > 0 {
				v, k := protowire.ConsumeVarint(packed)
				if k < 0 {
					return errMalformed
				}
				m.UserIDs = append(m.UserIDs, int64(v))
				packed = packed[k:]
			}
			b = b[n:]
		case num >= 2 && num <= 4 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return errMalformed
			}
			switch num {
			case 2:
				m.StartTime = string(v)
			case 3:
				m.EndTime = string(v)
			case 4:
				m.MeetingName = string(v)
			}
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return errMalformed
			}
			b = b[n:]
		}
	}
	return nil
}

func (m *ScheduleMeetingResponse) MarshalProto() []byte {
	return appendString(nil, 1, m.Result)
}

func (m *ScheduleMeetingResponse) UnmarshalProto(b []byte) error {
	*m = ScheduleMeetingResponse{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errMalformed
		}
		b = b[n:]
		if num == 1 && typ == protowire.BytesType {
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return errMalformed
			}
			m.Result = string(v)
			b = b[n:]
			continue
		}
		n = protowire.ConsumeFieldValue(num, typ, b)
		if n < 0 {
			return errMalformed
		}
		b = b[n:]
	}
	return nil
}

func appendString(out []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return out
	}
	out = protowire.AppendTag(out, num, protowire.BytesType)
	return protowire.AppendString(out, s)
}

// wireMessage is implemented by every message this package sends or receives.
type wireMessage interface {
	MarshalProto() []byte
	UnmarshalProto([]byte) error
}

// Codec encodes wireMessages. It registers under the name "proto" so peers
// using generated protobuf stubs interoperate.
type Codec struct{}

func (Codec) Marshal(v any) ([]byte, error) {
	m, ok := v.(wireMessage)
	if !ok {
		return nil, fmt.Errorf("grpcapi codec: cannot marshal %T", v)
	}
	return m.MarshalProto(), nil
}

func (Codec) Unmarshal(data []byte, v any) error {
	m, ok := v.(wireMessage)
	if !ok {
		return fmt.Errorf("grpcapi codec: cannot unmarshal into %T", v)
	}
	return m.UnmarshalProto(data)
}

func (Codec) Name() string { return "proto" }
