package replay

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

var runIDCleaner = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

const (
	// ManifestVersion is the bundle layout version written to manifest.json.
	ManifestVersion = 1

	manifestFile = "manifest.json"
	eventsFile   = "events.jsonl.sz"
	framesFile   = "frames.bin.zst"
	headerFile   = "header.json"

	// frameHeaderSize is tick (8) + captured unix nanos (8) + payload length (4).
	frameHeaderSize = 8 + 8 + 4
	// framesPerFlush bounds how many frames wait in memory before hitting zstd.
	framesPerFlush = 32
)

// Event types recorded in the event log.
const (
	EventReset       = "reset"
	EventConfig      = "config"
	EventParams      = "params"
	EventImprovement = "improvement"
)

type frameBlob struct {
	Tick       uint64
	CapturedAt time.Time
	Payload    []byte
}

// Writer streams a run to disk: events as snappy JSONL, frames as zstd
// length-prefixed blobs, and a header once the run closes.
type Writer struct {
	mu          sync.Mutex
	dir         string
	now         func() time.Time
	eventFile   *os.File
	eventStream *snappy.Writer
	frameFile   *os.File
	frameStream *zstd.Encoder
	pending     []frameBlob
	header      Header
	closed      bool
}

// Manifest describes the replay bundle layout so tooling can locate artefacts.
type Manifest struct {
	Version    int    `json:"version"`
	RunID      string `json:"run_id"`
	CreatedAt  string `json:"created_at"`
	EventsPath string `json:"events_path"`
	FramesPath string `json:"frames_path"`
	HeaderPath string `json:"header_path"`
}

// NewWriter creates <root>/<run>-<timestamp>/ and opens the compressed sinks.
// The header is completed with frame and iteration counts on Close.
func NewWriter(root string, header Header, clock func() time.Time) (*Writer, Manifest, error) {
	if root == "" {
		return nil, Manifest{}, errors.New("replay root must be provided")
	}
	if clock == nil {
		clock = time.Now
	}

	//1.- Derive a filesystem safe bundle directory from the run id and creation time.
	cleaned := runIDCleaner.ReplaceAllString(header.RunID, "")
	if cleaned == "" {
		cleaned = "run"
	}
	created := clock().UTC()
	path := filepath.Join(root, fmt.Sprintf("%s-%s", cleaned, created.Format("20060102T150405Z")))
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, Manifest{}, err
	}

	var closers []func() error
	fail := func(err error) (*Writer, Manifest, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
		return nil, Manifest{}, err
	}

	//2.- Open both compressed sinks, unwinding whatever was opened if a later step fails.
	eventFile, err := os.Create(filepath.Join(path, eventsFile))
	if err != nil {
		return fail(err)
	}
	closers = append(closers, eventFile.Close)
	eventStream := snappy.NewBufferedWriter(eventFile)
	closers = append(closers, eventStream.Close)

	frameFile, err := os.Create(filepath.Join(path, framesFile))
	if err != nil {
		return fail(err)
	}
	closers = append(closers, frameFile.Close)
	frameStream, err := zstd.NewWriter(frameFile)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, frameStream.Close)

	//3.- Publish the manifest first so tooling can locate a bundle that is still recording.
	manifest := Manifest{
		Version:    ManifestVersion,
		RunID:      header.RunID,
		CreatedAt:  created.Format(time.RFC3339Nano),
		EventsPath: eventsFile,
		FramesPath: framesFile,
		HeaderPath: headerFile,
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fail(err)
	}
	if err := os.WriteFile(filepath.Join(path, manifestFile), append(data, '\n'), 0o644); err != nil {
		return fail(err)
	}

	//4.- Stamp the header now; counters are filled in as frames arrive.
	header.SchemaVersion = HeaderSchemaVersion
	header.CreatedAt = manifest.CreatedAt
	header.FilePointer = manifestFile
	header.TerrainParams = header.TerrainParams.Clone()

	return &Writer{
		dir:         path,
		now:         clock,
		eventFile:   eventFile,
		eventStream: eventStream,
		frameFile:   frameFile,
		frameStream: frameStream,
		header:      header,
	}, manifest, nil
}

// Directory exposes the directory backing the replay bundle.
func (w *Writer) Directory() string {
	if w == nil {
		return ""
	}
	return w.dir
}

// Frames reports how many frames were appended so far.
func (w *Writer) Frames() uint64 {
	if w == nil {
		return 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.header.Frames
}

// AppendEvent writes one JSON line to the event log and flushes the snappy block.
func (w *Writer) AppendEvent(tick uint64, eventType string, payload any) error {
	if w == nil {
		return errors.New("writer not initialised")
	}
	//1.- Encode the payload inside a tick stamped record so JSONL readers can stream it.
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", eventType, err)
	}
	record := EventRecord{
		Tick:       tick,
		CapturedAt: w.now().UTC().Format(time.RFC3339Nano),
		Type:       eventType,
		Payload:    body,
	}
	line, err := json.Marshal(record)
	if err != nil {
		return err
	}

	//2.- Flush each event so a crashed run still leaves a readable log.
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errors.New("writer closed")
	}
	if _, err := w.eventStream.Write(append(line, '\n')); err != nil {
		return err
	}
	return w.eventStream.Flush()
}

// AppendFrame stages an encoded snapshot for the given iteration.
func (w *Writer) AppendFrame(tick uint64, payload []byte) error {
	if w == nil {
		return errors.New("writer not initialised")
	}
	frame := frameBlob{Tick: tick, CapturedAt: w.now().UTC(), Payload: append([]byte(nil), payload...)}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errors.New("writer closed")
	}
	//1.- Stage the frame so batches reach zstd together.
	w.pending = append(w.pending, frame)
	w.header.Frames++
	if tick > w.header.Iterations {
		w.header.Iterations = tick
	}
	if len(w.pending) >= framesPerFlush {
		return w.flushLocked()
	}
	return nil
}

// Flush forces pending frames into the zstd stream.
func (w *Writer) Flush() error {
	if w == nil {
		return errors.New("writer not initialised")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked()
}

// Close writes the header, flushes every buffer and releases file handles.
func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	//1.- Persist the header before dismantling the streaming sinks.
	var errs error
	if err := WriteHeader(filepath.Join(w.dir, headerFile), w.header); err != nil {
		errs = errors.Join(errs, err)
	}
	//2.- Attempt every flush and close, joining the failures.
	errs = errors.Join(errs,
		w.flushLocked(),
		w.eventStream.Close(),
		w.eventFile.Close(),
		w.frameStream.Close(),
		w.frameFile.Close(),
	)
	return errs
}

// flushLocked writes buffered frames to the zstd stream; callers hold the mutex.
func (w *Writer) flushLocked() error {
	if len(w.pending) == 0 {
		return nil
	}
	//1.- Write length-prefixed frames so readers can step through them.
	header := make([]byte, frameHeaderSize)

	for _, frame := range w.pending {
		binary.LittleEndian.PutUint64(header[0:8], frame.Tick)
		binary.LittleEndian.PutUint64(header[8:16], uint64(frame.CapturedAt.UnixNano()))
		binary.LittleEndian.PutUint32(header[16:20], uint32(len(frame.Payload)))
		if _, err := w.frameStream.Write(header); err != nil {
			return err
		}
		if _, err := w.frameStream.Write(frame.Payload); err != nil {
			return err
		}
	}
	w.pending = w.pending[:0]
	return nil
}
