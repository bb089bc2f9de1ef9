package forecast

import (
	"encoding/json"
	"fmt"
	"io"
)

const (
	artifactFormat  = "pricecast-lstm"
	artifactVersion = 1
)

type artifact struct {
	Format       string       `json:"format"`
	Version      int          `json:"version"`
	Architecture Architecture `json:"architecture"`
	Params       []float64    `json:"params"`
}

// Save writes the architecture and weights as JSON. Optimizer state is not kept.
func (m *Model) Save(w io.Writer) error {
	return json.NewEncoder(w).Encode(artifact{
		Format:       artifactFormat,
		Version:      artifactVersion,
		Architecture: m.arch,
		Params:       m.params,
	})
}

// Load decodes an artifact written by Save.
func Load(r io.Reader, opts ...Option) (*Model, error) {
	var a artifact
	if err := json.NewDecoder(r).Decode(&a); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	if a.Format != artifactFormat {
		return nil, fmt.Errorf("unsupported artifact format %q", a.Format)
	}
	if a.Version != artifactVersion {
		return nil, fmt.Errorf("unsupported artifact version %d", a.Version)
	}

	m, err := newModel(a.Architecture, opts)
	if err != nil {
		return nil, err
	}
	if len(a.Params) != len(m.params) {
		return nil, fmt.Errorf("%w: artifact has %d params, architecture needs %d", ErrShape, len(a.Params), len(m.params))
	}
	copy(m.params, a.Params)
	return m, nil
}
