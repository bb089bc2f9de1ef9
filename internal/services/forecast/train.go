package forecast

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"PriceCast/internal/domain/models"
)

type adam struct {
	lr, beta1, beta2, eps float64
	m, v                  []float64
	t                     int
}

func newAdam(n int) *adam {
	return &adam{
		lr:    0.001,
		beta1: 0.9,
		beta2: 0.999,
		eps:   1e-7,
		m:     make([]float64, n),
		v:     make([]float64, n),
	}
}

func (a *adam) update(p, g []float64) {
	a.t++
	t := float64(a.t)
	lrT := a.lr * math.Sqrt(1-math.Pow(a.beta2, t)) / (1 - math.Pow(a.beta1, t))
	for i := range p {
		a.m[i] = a.beta1*a.m[i] + (1-a.beta1)*g[i]
		a.v[i] = a.beta2*a.v[i] + (1-a.beta2)*g[i]*g[i]
		p[i] -= lrT * a.m[i] / (math.Sqrt(a.v[i]) + a.eps)
	}
}

func (m *Model) checkWindows(windows [][]float64) error {
	for i, w := range windows {
		if len(w) != m.arch.WindowSize {
			return fmt.Errorf("%w: window %d has length %d, want %d", ErrShape, i, len(w), m.arch.WindowSize)
		}
	}
	return nil
}

// Fit runs mini-batch Adam over shuffled samples. OnEpochEnd fires after every
// epoch. Cancellation is checked between batches.
func (m *Model) Fit(ctx context.Context, windows [][]float64, targets []float64, opts models.TrainOptions) error {
	if len(windows) == 0 {
		return fmt.Errorf("%w: no training windows", ErrShape)
	}
	if len(windows) != len(targets) {
		return fmt.Errorf("%w: %d windows but %d targets", ErrShape, len(windows), len(targets))
	}
	if err := m.checkWindows(windows); err != nil {
		return err
	}
	if opts.Epochs <= 0 {
		return fmt.Errorf("epochs must be positive")
	}
	batch := opts.BatchSize
	if batch <= 0 {
		batch = 32
	}

	rng := rand.New(rand.NewSource(m.seed))
	grad := make([]float64, len(m.params))
	n := len(windows)

	for epoch := 1; epoch <= opts.Epochs; epoch++ {
		perm := rng.Perm(n)
		var total float64
		for start := 0; start < n; start += batch {
			if err := ctx.Err(); err != nil {
				return err
			}
			end := min(start+batch, n)
			idx := perm[start:end]

			clear(grad)
			loss := m.gradients(windows, targets, idx, grad)
			m.opt.update(m.params, grad)
			total += loss * float64(len(idx))
		}
		if opts.OnEpochEnd != nil {
			opts.OnEpochEnd(models.EpochEvent{
				Epoch:       epoch,
				TotalEpochs: opts.Epochs,
				Loss:        total / float64(n),
			})
		}
	}
	return nil
}

// gradients accumulates d(MSE)/d(params) for the batch into grad and returns the batch loss.
func (m *Model) gradients(windows [][]float64, targets []float64, idx []int, grad []float64) float64 {
	workers := min(m.workers, len(idx))
	for len(m.scratch) < workers {
		m.scratch = append(m.scratch, make([]float64, len(m.params)))
	}

	scale := 2 / float64(len(idx))
	losses := make([]float64, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			g := m.scratch[w]
			clear(g)
			for k := w; k < len(idx); k += workers {
				i := idx[k]
				tr := m.forward(m.params, windows[i])
				diff := tr.out - targets[i]
				losses[w] += diff * diff
				m.backward(m.params, g, tr, scale*diff)
			}
		}(w)
	}
	wg.Wait()

	var loss float64
	for w := 0; w < workers; w++ {
		loss += losses[w]
		for i, v := range m.scratch[w] {
			grad[i] += v
		}
	}
	return loss / float64(len(idx))
}

// Predict returns one value per window.
func (m *Model) Predict(windows [][]float64) ([]float64, error) {
	if err := m.checkWindows(windows); err != nil {
		return nil, err
	}
	out := make([]float64, len(windows))
	if len(windows) == 0 {
		return out, nil
	}

	workers := min(m.workers, len(windows))
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := w; i < len(windows); i += workers {
				out[i] = m.forward(m.params, windows[i]).out
			}
		}(w)
	}
	wg.Wait()
	return out, nil
}

// loss evaluates MSE without updating weights.
func (m *Model) loss(windows [][]float64, targets []float64) float64 {
	pred, err := m.Predict(windows)
	if err != nil {
		return math.NaN()
	}
	var s float64
	for i, p := range pred {
		d := p - targets[i]
		s += d * d
	}
	return s / float64(len(pred))
}
