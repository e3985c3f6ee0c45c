package networking

import (
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"rdpso/simulator/internal/goal"
	"rdpso/simulator/internal/pso"
)

// Snapshot is the observable state of a run after one iteration.
type Snapshot struct {
	RunID        string                 `json:"run_id"`
	Iteration    uint64                 `json:"iteration"`
	CapturedAt   time.Time              `json:"captured_at"`
	Goal         goal.Goal              `json:"goal"`
	Strategy     goal.Strategy          `json:"strategy"`
	Best         goal.Performance       `json:"best"`
	HistoricBest goal.Performance       `json:"historic_best"`
	Stats        pso.Stats              `json:"stats"`
	Particles    []pso.ParticleSnapshot `json:"particles"`
}

// SnapshotEncoder converts snapshots into protobuf Struct messages so every
// transport shares one wire schema.
type SnapshotEncoder struct {
	json protojson.MarshalOptions
	bin  proto.MarshalOptions
}

// NewSnapshotEncoder returns an encoder emitting compact JSON and deterministic binary.
func NewSnapshotEncoder() *SnapshotEncoder {
	return &SnapshotEncoder{
		json: protojson.MarshalOptions{EmitUnpopulated: false},
		bin:  proto.MarshalOptions{Deterministic: true},
	}
}

// Struct renders the snapshot as a structpb.Struct.
func (e *SnapshotEncoder) Struct(s Snapshot) (*structpb.Struct, error) {
	//1.- Round-trip through JSON so the Struct mirrors the viewer field names.
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)

	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("flatten snapshot: %w", err)
	}
	return structpb.NewStruct(fields)
}

// JSON encodes the snapshot as protojson, the format websocket viewers consume.
func (e *SnapshotEncoder) JSON(s Snapshot) ([]byte, error) {
	msg, err := e.Struct(s)
	if err != nil {
		return nil, err
	}
	return e.json.Marshal(msg)
}

// Binary encodes the snapshot as protobuf wire bytes for replay frames.
func (e *SnapshotEncoder) Binary(s Snapshot) ([]byte, error) {
	msg, err := e.Struct(s)
	if err != nil {
		return nil, err
	}
	return e.bin.Marshal(msg)
}

// DecodeBinary parses a replay frame payload back into a Struct.
func DecodeBinary(payload []byte) (*structpb.Struct, error) {
	msg := &structpb.Struct{}
	if err := proto.Unmarshal(payload, msg); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return msg, nil
}

// DecodeSnapshot converts a Struct back into a typed Snapshot.
func DecodeSnapshot(msg *structpb.Struct) (Snapshot, error) {
	raw, err := protojson.Marshal(msg)
	if err != nil {
		return Snapshot{}, err
	}
	var s Snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return s, nil
}
