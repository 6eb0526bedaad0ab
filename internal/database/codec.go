package database

import (
	"fmt"
	"strings"
	"time"

	cbor "github.com/fxamacker/cbor/v2"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Codec encodes snapshots for publishing.
type Codec interface {
	ContentType() string
	Encode(s Snapshot) ([]byte, error)
	Decode(data []byte) (Snapshot, error)
}

// NewCodec returns the codec registered under name: cbor or proto.
func NewCodec(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case "cbor":
		return CBOR()
	case "proto", "protobuf":
		return Proto(), nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}

type cborCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// CBOR returns a deterministic CBOR codec.
func CBOR() (Codec, error) {
	opts := cbor.CanonicalEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	em, err := opts.EncMode()
	if err != nil {
		return nil, err
	}
	dm, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		return nil, err
	}
	return cborCodec{enc: em, dec: dm}, nil
}

func (c cborCodec) ContentType() string { return "application/cbor" }

func (c cborCodec) Encode(s Snapshot) ([]byte, error) {
	return c.enc.Marshal(s)
}

func (c cborCodec) Decode(data []byte) (Snapshot, error) {
	var s Snapshot
	err := c.dec.Unmarshal(data, &s)
	return s, err
}

type protoCodec struct {
	mo proto.MarshalOptions
	uo proto.UnmarshalOptions
}

// Proto returns a Protocol Buffers codec carrying the snapshot as a
// google.protobuf.Struct.
func Proto() Codec {
	return protoCodec{
		mo: proto.MarshalOptions{Deterministic: true},
	}
}

func (p protoCodec) ContentType() string { return "application/x-protobuf" }

func (p protoCodec) Encode(s Snapshot) ([]byte, error) {
	st, err := structpb.NewStruct(map[string]any{
		"device": map[string]any{
			"instance":      s.Device.Instance,
			"object_name":   s.Device.ObjectName,
			"system_status": s.Device.SystemStatus,
		},
		"analog_input": map[string]any{
			"instance":      s.AnalogInput.Instance,
			"object_name":   s.AnalogInput.ObjectName,
			"present_value": s.AnalogInput.PresentValue,
			"cov_increment": s.AnalogInput.COVIncrement,
			"reliability":   s.AnalogInput.Reliability,
		},
		"timestamp": s.Timestamp.Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, fmt.Errorf("protobuf: %w", err)
	}
	return p.mo.Marshal(st)
}

func (p protoCodec) Decode(data []byte) (Snapshot, error) {
	var st structpb.Struct
	if err := p.uo.Unmarshal(data, &st); err != nil {
		return Snapshot{}, fmt.Errorf("protobuf: %w", err)
	}

	fields := st.GetFields()
	device := fields["device"].GetStructValue().GetFields()
	ai := fields["analog_input"].GetStructValue().GetFields()

	var s Snapshot
	s.Device = Device{
		Instance:     uint32(device["instance"].GetNumberValue()),
		ObjectName:   device["object_name"].GetStringValue(),
		SystemStatus: uint32(device["system_status"].GetNumberValue()),
	}
	s.AnalogInput = AnalogInput{
		Instance:     uint32(ai["instance"].GetNumberValue()),
		ObjectName:   ai["object_name"].GetStringValue(),
		PresentValue: float32(ai["present_value"].GetNumberValue()),
		COVIncrement: float32(ai["cov_increment"].GetNumberValue()),
		Reliability:  uint32(ai["reliability"].GetNumberValue()),
	}
	if ts := fields["timestamp"].GetStringValue(); ts != "" {
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return Snapshot{}, fmt.Errorf("protobuf: %w", err)
		}
		s.Timestamp = t
	}
	return s, nil
}
