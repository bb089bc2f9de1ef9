package forecast

import "math"

func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

// layerTrace keeps what backpropagation through time needs for one LSTM layer.
type layerTrace struct {
	xs    [][]float64
	hs    [][]float64
	cs    [][]float64
	gates [][]float64 // activated i, f, g, o
}

func lstmForward(l lstmLayer, p []float64, xs [][]float64) *layerTrace {
	h, in := l.units, l.in
	steps := len(xs)
	wx := p[l.wx:l.wh]
	wh := p[l.wh:l.b]
	bias := p[l.b : l.b+4*h]

	tr := &layerTrace{
		xs:    xs,
		hs:    make([][]float64, steps),
		cs:    make([][]float64, steps),
		gates: make([][]float64, steps),
	}
	hPrev := make([]float64, h)
	cPrev := make([]float64, h)

	for t, x := range xs {
		z := make([]float64, 4*h)
		for r := range z {
			s := bias[r]
			row := wx[r*in : (r+1)*in]
			for k, v := range x {
				s += row[k] * v
			}
			rrow := wh[r*h : (r+1)*h]
			for k, v := range hPrev {
				s += rrow[k] * v
			}
			z[r] = s
		}

		c := make([]float64, h)
		hc := make([]float64, h)
		for j := 0; j < h; j++ {
			ig := sigmoid(z[j])
			fg := sigmoid(z[h+j])
			gg := math.Tanh(z[2*h+j])
			og := sigmoid(z[3*h+j])
			z[j], z[h+j], z[2*h+j], z[3*h+j] = ig, fg, gg, og
			c[j] = fg*cPrev[j] + ig*gg
			hc[j] = og * math.Tanh(c[j])
		}
		tr.gates[t], tr.cs[t], tr.hs[t] = z, c, hc
		hPrev, cPrev = hc, c
	}
	return tr
}

// lstmBackward accumulates parameter gradients into g. dhs[t] is the upstream
// gradient on h_t (nil when none). It returns per-step input gradients when needDx.
func lstmBackward(l lstmLayer, p, g []float64, tr *layerTrace, dhs [][]float64, needDx bool) [][]float64 {
	h, in := l.units, l.in
	steps := len(tr.xs)
	wx := p[l.wx:l.wh]
	wh := p[l.wh:l.b]
	gwx := g[l.wx:l.wh]
	gwh := g[l.wh:l.b]
	gb := g[l.b : l.b+4*h]

	var dxs [][]float64
	if needDx {
		dxs = make([][]float64, steps)
	}
	zeros := make([]float64, h)
	dhNext := make([]float64, h)
	dcNext := make([]float64, h)
	da := make([]float64, 4*h)

	for t := steps - 1; t >= 0; t-- {
		gates, c := tr.gates[t], tr.cs[t]
		hPrev, cPrev := zeros, zeros
		if t > 0 {
			hPrev, cPrev = tr.hs[t-1], tr.cs[t-1]
		}

		for j := 0; j < h; j++ {
			dh := dhNext[j]
			if dhs[t] != nil {
				dh += dhs[t][j]
			}
			ig, fg, gg, og := gates[j], gates[h+j], gates[2*h+j], gates[3*h+j]
			tc := math.Tanh(c[j])
			dc := dh*og*(1-tc*tc) + dcNext[j]

			da[j] = dc * gg * ig * (1 - ig)
			da[h+j] = dc * cPrev[j] * fg * (1 - fg)
			da[2*h+j] = dc * ig * (1 - gg*gg)
			da[3*h+j] = dh * tc * og * (1 - og)
			dcNext[j] = dc * fg
		}

		x := tr.xs[t]
		var dx []float64
		if needDx {
			dx = make([]float64, in)
		}
		dhPrev := make([]float64, h)
		for r, d := range da {
			if d == 0 {
				continue
			}
			gb[r] += d
			row := wx[r*in : (r+1)*in]
			grow := gwx[r*in : (r+1)*in]
			for k := 0; k < in; k++ {
				grow[k] += d * x[k]
				if needDx {
					dx[k] += d * row[k]
				}
			}
			rrow := wh[r*h : (r+1)*h]
			grrow := gwh[r*h : (r+1)*h]
			for k := 0; k < h; k++ {
				grrow[k] += d * hPrev[k]
				dhPrev[k] += d * rrow[k]
			}
		}
		if needDx {
			dxs[t] = dx
		}
		dhNext = dhPrev
	}
	return dxs
}

func denseForward(d denseLayer, p, x []float64) []float64 {
	w := p[d.w:d.b]
	out := make([]float64, d.out)
	for r := range out {
		s := p[d.b+r]
		row := w[r*d.in : (r+1)*d.in]
		for k, v := range x {
			s += row[k] * v
		}
		out[r] = s
	}
	return out
}

func denseBackward(d denseLayer, p, g, x, dy []float64) []float64 {
	w := p[d.w:d.b]
	gw := g[d.w:d.b]
	dx := make([]float64, d.in)
	for r, dv := range dy {
		g[d.b+r] += dv
		row := w[r*d.in : (r+1)*d.in]
		grow := gw[r*d.in : (r+1)*d.in]
		for k := 0; k < d.in; k++ {
			grow[k] += dv * x[k]
			dx[k] += dv * row[k]
		}
	}
	return dx
}

type trace struct {
	lstm    []*layerTrace
	denseIn [][]float64
	out     float64
}

func (m *Model) forward(p, window []float64) *trace {
	xs := make([][]float64, len(window))
	for t, v := range window {
		xs[t] = []float64{v}
	}

	tr := &trace{lstm: make([]*layerTrace, 0, len(m.lstm))}
	for _, l := range m.lstm {
		lt := lstmForward(l, p, xs)
		tr.lstm = append(tr.lstm, lt)
		xs = lt.hs
	}

	a := xs[len(xs)-1]
	for _, d := range m.dense {
		tr.denseIn = append(tr.denseIn, a)
		a = denseForward(d, p, a)
	}
	tr.out = a[0]
	return tr
}

func (m *Model) backward(p, g []float64, tr *trace, dOut float64) {
	da := []float64{dOut}
	for i := len(m.dense) - 1; i >= 0; i-- {
		da = denseBackward(m.dense[i], p, g, tr.denseIn[i], da)
	}

	steps := len(tr.lstm[0].xs)
	dhs := make([][]float64, steps)
	dhs[steps-1] = da
	for i := len(m.lstm) - 1; i >= 0; i-- {
		dhs = lstmBackward(m.lstm[i], p, g, tr.lstm[i], dhs, i > 0)
	}
}
