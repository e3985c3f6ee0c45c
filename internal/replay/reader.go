package replay

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

// ErrTruncatedFrame reports a frame stream that ends inside a frame.
var ErrTruncatedFrame = errors.New("frame payload truncated")

// EventRecord is one line of the event log.
type EventRecord struct {
	Tick       uint64          `json:"tick"`
	CapturedAt string          `json:"captured_at"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
}

// Frame is one decoded snapshot from the frame stream.
type Frame struct {
	Tick       uint64
	CapturedAt time.Time
	Payload    []byte
}

// Bundle is a fully loaded replay directory.
type Bundle struct {
	Dir      string
	Manifest Manifest
	// Header is zero when the run never closed cleanly.
	Header Header
	Events []EventRecord
	Frames []Frame
}

// Open loads the bundle at path, which may be the bundle directory or its manifest.
func Open(path string) (*Bundle, error) {
	if path == "" {
		return nil, errors.New("replay path is required")
	}
	//1.- Accept either the bundle directory or its manifest file.
	manifestPath := path
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		manifestPath = filepath.Join(path, manifestFile)
	}
	dir := filepath.Dir(manifestPath)

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, err
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if manifest.Version != ManifestVersion {
		return nil, fmt.Errorf("unsupported manifest version %d", manifest.Version)
	}

	//2.- A missing header only means the run never closed; other failures are fatal.
	bundle := &Bundle{Dir: dir, Manifest: manifest}
	if manifest.HeaderPath != "" {
		header, err := ReadHeader(filepath.Join(dir, manifest.HeaderPath))
		switch {
		case err == nil:
			bundle.Header = header
		case !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("read header: %w", err)
		}
	}
	//3.- Decompress the event log and frame stream into memory.
	if bundle.Events, err = loadEvents(filepath.Join(dir, manifest.EventsPath)); err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	if bundle.Frames, err = loadFrames(filepath.Join(dir, manifest.FramesPath)); err != nil {
		return nil, fmt.Errorf("read frames: %w", err)
	}
	return bundle, nil
}

// EventsOfType filters the event log.
func (b *Bundle) EventsOfType(eventType string) []EventRecord {
	var out []EventRecord
	for _, event := range b.Events {
		if event.Type == eventType {
			out = append(out, event)
		}
	}
	return out
}

func loadEvents(path string) ([]EventRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(snappy.NewReader(file))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var events []EventRecord
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var record EventRecord
		if err := json.Unmarshal(line, &record); err != nil {
			return nil, err
		}
		events = append(events, record)
	}
	return events, scanner.Err()
}

func loadFrames(path string) ([]Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	decoder, err := zstd.NewReader(file)
	if err != nil {
		return nil, err
	}
	defer decoder.Close()

	var frames []Frame
	header := make([]byte, frameHeaderSize)
	for {
		if _, err := io.ReadFull(decoder, header); err != nil {
			if errors.Is(err, io.EOF) {
				return frames, nil
			}
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, ErrTruncatedFrame
			}
			return nil, err
		}
		//1.- A clean EOF lands on a frame boundary; anything shorter is truncation.
		size := binary.LittleEndian.Uint32(header[16:20])

		payload := make([]byte, size)
		if _, err := io.ReadFull(decoder, payload); err != nil {
			return nil, ErrTruncatedFrame
		}
		frames = append(frames, Frame{
			Tick:       binary.LittleEndian.Uint64(header[0:8]),
			CapturedAt: time.Unix(0, int64(binary.LittleEndian.Uint64(header[8:16]))).UTC(),
			Payload:    payload,
		})
	}
}
