package forecast

import (
	"io"

	"PriceCast/internal/domain/repository"
)

// Factory builds models sharing one architecture and option set.
type Factory struct {
	arch Architecture
	opts []Option
}

func NewFactory(arch Architecture, opts ...Option) *Factory {
	return &Factory{arch: arch, opts: opts}
}

func (f *Factory) New() (repository.Forecaster, error) {
	return New(f.arch, f.opts...)
}

// Load keeps the architecture stored in the artifact, not the factory's.
func (f *Factory) Load(r io.Reader) (repository.Forecaster, error) {
	return Load(r, f.opts...)
}

var _ repository.ForecasterFactory = (*Factory)(nil)
