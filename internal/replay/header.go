package replay

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// HeaderSchemaVersion tracks the schema version for replay header documents.
const HeaderSchemaVersion = 1

// TerrainParameters captures the terrain tuning a run was generated with.
type TerrainParameters map[string]float64

// Clone returns a copy of the terrain parameters map.
func (p TerrainParameters) Clone() TerrainParameters {
	if len(p) == 0 {
		return nil
	}
	//1.- Copy into a new map so run metadata never aliases live terrain config.
	clone := make(TerrainParameters, len(p))
	for key, value := range p {
		clone[key] = value
	}
	return clone
}

// Header is the metadata persisted alongside a replay bundle.
type Header struct {
	SchemaVersion int               `json:"schema_version"`
	RunID         string            `json:"run_id"`
	Seed          uint64            `json:"seed"`
	Goal          string            `json:"goal,omitempty"`
	Strategy      string            `json:"strategy,omitempty"`
	SwarmSize     int               `json:"swarm_size,omitempty"`
	TerrainParams TerrainParameters `json:"terrain_params,omitempty"`
	CreatedAt     string            `json:"created_at,omitempty"`
	Iterations    uint64            `json:"iterations"`
	Frames        uint64            `json:"frames"`
	FilePointer   string            `json:"file_pointer"`
}

// Validate ensures the header contains enough information for catalogue tooling.
func (h Header) Validate() error {
	//1.- Catalogue listing needs a known schema and a bundle to point at.
	if h.SchemaVersion <= 0 {
		return errors.New("schema_version must be positive")
	}
	if strings.TrimSpace(h.FilePointer) == "" {
		return errors.New("file_pointer must not be empty")
	}
	return nil
}

// WriteHeader persists the supplied header to path.
func WriteHeader(path string, header Header) error {
	if err := header.Validate(); err != nil {
		return err
	}
	//1.- Indent the document so a run can be inspected by hand.
	payload, err := json.MarshalIndent(header, "", "  ")
	if err != nil {
		return err
	}
	//2.- Create the run directory on first write.
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	//3.- End with a newline.
	return os.WriteFile(path, append(payload, '\n'), 0o644)
}

// ReadHeader loads and validates a replay header from disk.
func ReadHeader(path string) (Header, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Header{}, err
	}
	//1.- Decode, then apply the same checks WriteHeader enforces.
	var header Header
	if err := json.Unmarshal(data, &header); err != nil {
		return Header{}, err
	}
	if err := header.Validate(); err != nil {
		return Header{}, err
	}
	return header, nil
}
