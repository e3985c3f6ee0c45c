package simulator

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"rdpso/simulator/internal/goal"
	"rdpso/simulator/internal/pso"
	"rdpso/simulator/internal/space"
	"rdpso/simulator/internal/terrain"
)

// ErrInvalidConfig wraps every validation failure of a SimConfig.
var ErrInvalidConfig = errors.New("invalid simulation config")

// SimConfig bundles every parameter needed to build a run.
type SimConfig struct {
	Params     pso.ParameterSet     `json:"params" toml:"params"`
	Terrain    terrain.Config       `json:"terrain" toml:"terrain"`
	Controller pso.ControllerConfig `json:"controller" toml:"controller"`
	Swarm      pso.SwarmConfig      `json:"swarm" toml:"swarm"`
	Ctx        pso.Ctx              `json:"ctx" toml:"ctx"`
	Particle   pso.ParticleConfig   `json:"particle" toml:"particle"`
	// Seed drives swarm deployment and the PSO random draws.
	Seed uint64 `json:"seed" toml:"seed"`
}

// DefaultSimConfig returns the values the browser demo ships with.
func DefaultSimConfig() SimConfig {
	return SimConfig{
		Params:  pso.NewParameterSet(0.5, 2, 1, 1, 5),
		Terrain: terrain.NewConfig(1000, 5, 0.01, 0.012),
		Controller: pso.ControllerConfig{
			Collision: pso.NewSensorConfig(17, 0.5, math.Pi/6, math.Pi/180),
		},
		Swarm: pso.SwarmConfig{
			Size:                 5,
			DeployPosition:       space.NewVector(450, 75, 450),
			DeploySpreadRadius:   10,
			InitialSwarmVelocity: 0.1,
		},
		Ctx:      pso.NewCtx(goal.Griewank, goal.Minimize),
		Particle: pso.ParticleConfig{PositionLogSize: 20},
	}
}

// Validate reports every invalid field at once.
func (c SimConfig) Validate() error {
	var problems []string
	for _, err := range []error{
		c.Params.Validate(),
		c.Terrain.Validate(),
		c.Controller.Collision.Validate(),
		c.Swarm.Validate(),
		c.Particle.Validate(),
	} {
		if err != nil {
			problems = append(problems, err.Error())
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// ParseJSON decodes a JSON document over the defaults and validates the result.
func ParseJSON(data []byte) (SimConfig, error) {
	cfg := DefaultSimConfig()
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&cfg); err != nil {
		return SimConfig{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return SimConfig{}, err
	}
	return cfg, nil
}

// ParseTOML decodes a TOML document over the defaults and validates the result.
func ParseTOML(data []byte) (SimConfig, error) {
	cfg := DefaultSimConfig()
	//1.- Decode over the defaults so omitted sections keep their values.
	meta, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return SimConfig{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	//2.- Refuse keys the schema does not know, like the JSON decoder does.
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return SimConfig{}, fmt.Errorf("%w: unknown keys %s", ErrInvalidConfig, strings.Join(keys, ", "))
	}
	//3.- Validate the merged result.
	if err := cfg.Validate(); err != nil {
		return SimConfig{}, err
	}
	return cfg, nil
}

// LoadFile reads a configuration file, choosing the decoder by extension.
func LoadFile(path string) (SimConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SimConfig{}, fmt.Errorf("read sim config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return ParseTOML(data)
	case ".json", "":
		return ParseJSON(data)
	default:
		return SimConfig{}, fmt.Errorf("%w: unsupported config extension %q", ErrInvalidConfig, filepath.Ext(path))
	}
}

// MarshalIndentJSON renders the configuration as pretty JSON.
func (c SimConfig) MarshalIndentJSON() (string, error) {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// MarshalTOML renders the configuration as TOML.
func (c SimConfig) MarshalTOML() (string, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return "", err
	}
	return buf.String(), nil
}
