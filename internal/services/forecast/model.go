package forecast

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"strings"

	"PriceCast/internal/domain/models"
)

var ErrShape = errors.New("forecast: shape mismatch")

// Architecture describes input window -> stacked LSTMs -> dense layers -> Dense(1).
// Only the last LSTM collapses the sequence; dense layers are linear.
type Architecture struct {
	WindowSize int   `json:"window_size"`
	LSTMUnits  []int `json:"lstm_units"`
	DenseUnits []int `json:"dense_units"`
}

func DefaultArchitecture() Architecture {
	return Architecture{
		WindowSize: 100,
		LSTMUnits:  []int{128, 64, 32},
		DenseUnits: []int{25},
	}
}

func (a Architecture) Validate() error {
	if a.WindowSize <= 0 {
		return fmt.Errorf("%w: window size must be positive", ErrShape)
	}
	if len(a.LSTMUnits) == 0 {
		return fmt.Errorf("%w: at least one LSTM layer is required", ErrShape)
	}
	for _, u := range append(append([]int{}, a.LSTMUnits...), a.DenseUnits...) {
		if u <= 0 {
			return fmt.Errorf("%w: layer widths must be positive", ErrShape)
		}
	}
	return nil
}

// Offsets into the flat parameter vector. Gradients share the layout.
type lstmLayer struct {
	in, units  int
	wx, wh, b  int
	returnsSeq bool
}

func (l lstmLayer) size() int { return 4 * l.units * (l.in + l.units + 1) }

type denseLayer struct {
	in, out int
	w, b    int
}

func (d denseLayer) size() int { return d.out*d.in + d.out }

func layout(a Architecture) ([]lstmLayer, []denseLayer, int) {
	var (
		lstm  []lstmLayer
		dense []denseLayer
		off   int
		in    = 1
	)
	for i, h := range a.LSTMUnits {
		l := lstmLayer{in: in, units: h, wx: off, returnsSeq: i < len(a.LSTMUnits)-1}
		l.wh = l.wx + 4*h*in
		l.b = l.wh + 4*h*h
		off = l.b + 4*h
		lstm = append(lstm, l)
		in = h
	}
	for _, o := range append(append([]int{}, a.DenseUnits...), 1) {
		d := denseLayer{in: in, out: o, w: off}
		d.b = d.w + o*in
		off = d.b + o
		dense = append(dense, d)
		in = o
	}
	return lstm, dense, off
}

// Model is an LSTM regressor trained with Adam on mean squared error.
type Model struct {
	arch    Architecture
	lstm    []lstmLayer
	dense   []denseLayer
	params  []float64
	opt     *adam
	seed    int64
	workers int
	scratch [][]float64
}

type Option func(*Model)

// WithLearningRate sets the Adam step size.
func WithLearningRate(lr float64) Option {
	return func(m *Model) {
		if lr > 0 {
			m.opt.lr = lr
		}
	}
}

// WithSeed fixes weight init and per-epoch shuffling.
func WithSeed(seed int64) Option {
	return func(m *Model) {
		m.seed = seed
	}
}

// WithWorkers bounds the goroutines used per batch. Defaults to GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(m *Model) {
		if n > 0 {
			m.workers = n
		}
	}
}

func newModel(arch Architecture, opts []Option) (*Model, error) {
	if err := arch.Validate(); err != nil {
		return nil, err
	}
	lstm, dense, n := layout(arch)
	m := &Model{
		arch:    arch,
		lstm:    lstm,
		dense:   dense,
		params:  make([]float64, n),
		opt:     newAdam(n),
		seed:    42,
		workers: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// New returns a freshly initialised model.
func New(arch Architecture, opts ...Option) (*Model, error) {
	m, err := newModel(arch, opts)
	if err != nil {
		return nil, err
	}
	m.initWeights(rand.New(rand.NewSource(m.seed)))
	return m, nil
}

// Glorot-uniform kernels, zero biases, forget-gate bias 1.
func (m *Model) initWeights(rng *rand.Rand) {
	glorot := func(dst []float64, fanIn, fanOut int) {
		limit := math.Sqrt(6 / float64(fanIn+fanOut))
		for i := range dst {
			dst[i] = (rng.Float64()*2 - 1) * limit
		}
	}
	for _, l := range m.lstm {
		h := l.units
		glorot(m.params[l.wx:l.wh], l.in, 4*h)
		glorot(m.params[l.wh:l.b], h, 4*h)
		for j := 0; j < h; j++ {
			m.params[l.b+h+j] = 1
		}
	}
	for _, d := range m.dense {
		glorot(m.params[d.w:d.b], d.in, d.out)
	}
}

func (m *Model) Architecture() Architecture { return m.arch }

// ParamCount returns the number of trainable scalars.
func (m *Model) ParamCount() int { return len(m.params) }

// Summary renders a layer table in the familiar Keras layout.
func (m *Model) Summary() models.ModelSummary {
	const line = "_________________________________________________________________"
	const dbl = "================================================================="

	var b strings.Builder
	b.WriteString("Model: \"sequential\"\n")
	b.WriteString(line + "\n")
	fmt.Fprintf(&b, " %-28s%-26s%s\n", "Layer (type)", "Output Shape", "Param #")
	b.WriteString(dbl + "\n")
	for i, l := range m.lstm {
		shape := fmt.Sprintf("(None, %d)", l.units)
		if l.returnsSeq {
			shape = fmt.Sprintf("(None, %d, %d)", m.arch.WindowSize, l.units)
		}
		fmt.Fprintf(&b, " %-28s%-26s%d\n", layerName("lstm", i)+" (LSTM)", shape, l.size())
	}
	for i, d := range m.dense {
		fmt.Fprintf(&b, " %-28s%-26s%d\n", layerName("dense", i)+" (Dense)", fmt.Sprintf("(None, %d)", d.out), d.size())
	}
	total := len(m.params)
	b.WriteString(dbl + "\n")
	fmt.Fprintf(&b, "Total params: %d\n", total)
	fmt.Fprintf(&b, "Trainable params: %d\n", total)
	b.WriteString("Non-trainable params: 0\n")
	b.WriteString(line)

	return models.ModelSummary{
		RawSummary:      b.String(),
		TotalParams:     total,
		TrainableParams: total,
	}
}

func layerName(kind string, i int) string {
	if i == 0 {
		return kind
	}
	return fmt.Sprintf("%s_%d", kind, i)
}
