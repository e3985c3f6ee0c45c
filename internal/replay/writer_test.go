package replay

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/zstd"
)

func testClock(start time.Time) (func() time.Time, func(time.Duration)) {
	now := start
	return func() time.Time { return now }, func(d time.Duration) { now = now.Add(d) }
}

func TestWriterRoundTripsThroughOpen(t *testing.T) {
	tmp := t.TempDir()
	clock, advance := testClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	header := Header{RunID: "run/42 final", Seed: 42, Goal: "Ackley", Strategy: "Minimize", SwarmSize: 5, TerrainParams: TerrainParameters{"size": 1000}}
	writer, manifest, err := NewWriter(tmp, header, clock)
	if err != nil {
		t.Fatalf("create writer: %v", err)
	}
	if filepath.Base(writer.Directory()) != "run42final-20260301T120000Z" {
		t.Fatalf("unexpected bundle directory %q", writer.Directory())
	}
	if manifest.RunID != "run/42 final" || manifest.FramesPath != "frames.bin.zst" {
		t.Fatalf("unexpected manifest %+v", manifest)
	}

	if err := writer.AppendEvent(0, EventReset, map[string]any{"seed": 42}); err != nil {
		t.Fatalf("append event: %v", err)
	}
	//1.- Cross the flush threshold so frames land in more than one batch.
	for tick := uint64(1); tick <= framesPerFlush+3; tick++ {
		advance(10 * time.Millisecond)
		if err := writer.AppendFrame(tick, []byte{byte(tick), 0xAB}); err != nil {
			t.Fatalf("append frame %d: %v", tick, err)
		}
	}
	if err := writer.AppendEvent(7, EventImprovement, map[string]float64{"score": 0.5}); err != nil {
		t.Fatalf("append event: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("second close should be a no-op: %v", err)
	}
	if err := writer.AppendFrame(99, nil); err == nil {
		t.Fatalf("expected append after close to fail")
	}

	bundle, err := Open(writer.Directory())
	if err != nil {
		t.Fatalf("open bundle: %v", err)
	}
	if len(bundle.Frames) != framesPerFlush+3 {
		t.Fatalf("expected %d frames, got %d", framesPerFlush+3, len(bundle.Frames))
	}
	last := bundle.Frames[len(bundle.Frames)-1]
	if last.Tick != framesPerFlush+3 || !bytes.Equal(last.Payload, []byte{byte(framesPerFlush + 3), 0xAB}) {
		t.Fatalf("unexpected last frame %+v", last)
	}
	if !last.CapturedAt.Equal(time.Date(2026, 3, 1, 12, 0, 0, int(time.Duration(framesPerFlush+3)*10*time.Millisecond), time.UTC)) {
		t.Fatalf("unexpected capture time %v", last.CapturedAt)
	}

	if got := []string{bundle.Events[0].Type, bundle.Events[1].Type}; !cmp.Equal(got, []string{EventReset, EventImprovement}) {
		t.Fatalf("unexpected event types %v", got)
	}
	var improvement map[string]float64
	if err := json.Unmarshal(bundle.EventsOfType(EventImprovement)[0].Payload, &improvement); err != nil || improvement["score"] != 0.5 {
		t.Fatalf("unexpected improvement payload %s (%v)", bundle.EventsOfType(EventImprovement)[0].Payload, err)
	}

	want := header
	want.SchemaVersion = HeaderSchemaVersion
	want.CreatedAt = manifest.CreatedAt
	want.FilePointer = "manifest.json"
	want.Frames = framesPerFlush + 3
	want.Iterations = framesPerFlush + 3
	if diff := cmp.Diff(want, bundle.Header); diff != "" {
		t.Fatalf("unexpected header (-want +got):\n%s", diff)
	}
}

func TestOpenRejectsTruncatedFrames(t *testing.T) {
	tmp := t.TempDir()
	writer, _, err := NewWriter(tmp, Header{RunID: "cut"}, nil)
	if err != nil {
		t.Fatalf("create writer: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	//1.- Replace the frame stream with a header that promises more bytes than exist.
	var buf bytes.Buffer
	encoder, err := zstd.NewWriter(&buf)
	if err != nil {
		t.Fatalf("zstd writer: %v", err)
	}
	frame := make([]byte, frameHeaderSize)
	frame[16] = 10
	if _, err := encoder.Write(append(frame, 1, 2, 3)); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	if err := encoder.Close(); err != nil {
		t.Fatalf("close encoder: %v", err)
	}
	if err := os.WriteFile(filepath.Join(writer.Directory(), framesFile), buf.Bytes(), 0o644); err != nil {
		t.Fatalf("overwrite frames: %v", err)
	}

	if _, err := Open(writer.Directory()); !errors.Is(err, ErrTruncatedFrame) {
		t.Fatalf("expected ErrTruncatedFrame, got %v", err)
	}
}

func TestOpenToleratesMissingHeader(t *testing.T) {
	tmp := t.TempDir()
	writer, _, err := NewWriter(tmp, Header{RunID: "live"}, nil)
	if err != nil {
		t.Fatalf("create writer: %v", err)
	}
	defer writer.Close()
	if err := writer.AppendFrame(1, []byte("x")); err != nil {
		t.Fatalf("append frame: %v", err)
	}

	bundle, err := Open(filepath.Join(writer.Directory(), "manifest.json"))
	if err != nil {
		t.Fatalf("open live bundle: %v", err)
	}
	if bundle.Header.SchemaVersion != 0 || len(bundle.Frames) != 0 {
		t.Fatalf("expected empty header and no flushed frames, got %+v", bundle)
	}
}

func TestHeaderValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "header.json")
	if err := WriteHeader(path, Header{SchemaVersion: 1}); err == nil || !strings.Contains(err.Error(), "file_pointer") {
		t.Fatalf("expected file_pointer error, got %v", err)
	}
	header := Header{SchemaVersion: 1, RunID: "a", Seed: 9, FilePointer: "manifest.json", TerrainParams: TerrainParameters{"octave_count": 5}}
	if err := WriteHeader(path, header); err != nil {
		t.Fatalf("write header: %v", err)
	}
	got, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("read header: %v", err)
	}
	if diff := cmp.Diff(header, got); diff != "" {
		t.Fatalf("header changed (-want +got):\n%s", diff)
	}
}

func TestListOrdersByCreation(t *testing.T) {
	tmp := t.TempDir()
	clock, advance := testClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	for _, id := range []string{"first", "second"} {
		writer, _, err := NewWriter(tmp, Header{RunID: id, Seed: 1}, clock)
		if err != nil {
			t.Fatalf("create writer: %v", err)
		}
		if err := writer.Close(); err != nil {
			t.Fatalf("close writer: %v", err)
		}
		advance(time.Hour)
	}

	entries, err := List(tmp)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 || entries[0].Header.RunID != "first" || entries[1].Header.RunID != "second" {
		t.Fatalf("unexpected entries %+v", entries)
	}
	if _, err := os.Stat(entries[0].ManifestPath); err != nil {
		t.Fatalf("manifest path not resolved: %v", err)
	}
	if _, err := List(filepath.Join(tmp, "missing")); err == nil {
		t.Fatalf("expected error for missing root")
	}
}
