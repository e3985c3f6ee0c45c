package networking

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"rdpso/simulator/internal/goal"
	"rdpso/simulator/internal/pso"
	"rdpso/simulator/internal/space"
)

func sampleSnapshot() Snapshot {
	best := goal.NewPerformance(space.NewVector(1.5, 75, -2.25), 0.125)
	return Snapshot{
		RunID:        "run-1",
		Iteration:    12,
		CapturedAt:   time.Date(2026, 5, 1, 8, 30, 0, 0, time.UTC),
		Goal:         goal.Ackley,
		Strategy:     goal.Minimize,
		Best:         best,
		HistoricBest: best,
		Stats:        pso.Stats{Iteration: 12, MeanScore: 1.5, BestScore: 0.125, HistoricBestScore: 0.125, TotalCollisions: 3},
		Particles: []pso.ParticleSnapshot{{
			Position:        best.Position,
			Velocity:        space.NewVector(0.5, 0, -0.5),
			Score:           0.125,
			BestPerformance: best,
			Collisions:      3,
			History:         []space.Vector{{X: 1}, best.Position},
		}},
	}
}

func TestSnapshotBinaryRoundTrip(t *testing.T) {
	encoder := NewSnapshotEncoder()
	snapshot := sampleSnapshot()
	payload, err := encoder.Binary(snapshot)
	if err != nil {
		t.Fatalf("Binary returned error: %v", err)
	}
	msg, err := DecodeBinary(payload)
	if err != nil {
		t.Fatalf("DecodeBinary returned error: %v", err)
	}
	decoded, err := DecodeSnapshot(msg)
	if err != nil {
		t.Fatalf("DecodeSnapshot returned error: %v", err)
	}
	if diff := cmp.Diff(snapshot, decoded); diff != "" {
		t.Fatalf("snapshot changed (-want +got):\n%s", diff)
	}
}

func TestSnapshotBinaryIsDeterministic(t *testing.T) {
	encoder := NewSnapshotEncoder()
	first, err := encoder.Binary(sampleSnapshot())
	if err != nil {
		t.Fatalf("Binary returned error: %v", err)
	}
	second, err := encoder.Binary(sampleSnapshot())
	if err != nil {
		t.Fatalf("Binary returned error: %v", err)
	}
	if !cmp.Equal(first, second) {
		t.Fatalf("expected identical encodings")
	}
}

func TestSnapshotJSONUsesTextEnums(t *testing.T) {
	payload, err := NewSnapshotEncoder().JSON(sampleSnapshot())
	if err != nil {
		t.Fatalf("JSON returned error: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("invalid JSON %s: %v", payload, err)
	}
	if decoded["goal"] != "Ackley" || decoded["strategy"] != "Minimize" || decoded["iteration"] != float64(12) {
		t.Fatalf("unexpected payload %s", payload)
	}
	if _, err := DecodeBinary([]byte{0xff, 0xff}); err == nil {
		t.Fatalf("expected decode error for garbage")
	}
}
