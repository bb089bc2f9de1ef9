package plot

import (
	"context"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	drepo "PriceCast/internal/domain/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderWritesFileAndReturnsURL(t *testing.T) {
	dir := t.TempDir()
	r := NewSVGRenderer(dir, "/media")

	url, err := r.Render(context.Background(), "AAPL_plot", "AAPL <Closing>", []drepo.Series{
		{Label: "Close", Color: "blue", Values: []float64{1, 2, 3, 2}},
	})
	require.NoError(t, err)
	assert.Equal(t, "/media/AAPL_plot.svg", url)

	b, err := os.ReadFile(filepath.Join(dir, "AAPL_plot.svg"))
	require.NoError(t, err)
	body := string(b)
	assert.Contains(t, body, "<svg")
	assert.Contains(t, body, "</svg>")
	assert.Contains(t, body, "Closing")
	assert.NotContains(t, body, "<Closing>")
}

func TestSegmentsSplitOnNonFinite(t *testing.T) {
	nan := math.NaN()
	segs := segments([]float64{nan, nan, 1, 2, nan, 3, math.Inf(1), 4})
	require.Len(t, segs, 3)
	assert.Equal(t, 2.0, segs[0][0].X)
	assert.Equal(t, 2, segs[0].Len())
	assert.Equal(t, 5.0, segs[1][0].X)
	assert.Equal(t, 7.0, segs[2][0].X)
	assert.Empty(t, segments([]float64{nan}))
}

func TestRenderAcceptsGapsFlatAndEmptySeries(t *testing.T) {
	r := NewSVGRenderer(t.TempDir(), "/media")
	nan := math.NaN()
	cases := map[string][]drepo.Series{
		"gaps":  {{Label: "MA", Color: "red", Values: []float64{nan, nan, 1, 2, nan, 3, 4}}},
		"flat":  {{Values: []float64{5, 5, 5}}},
		"empty": nil,
		"nan":   {{Label: "all gaps", Values: []float64{nan, nan}}},
	}
	for name, series := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := r.Render(context.Background(), name, name, series)
			assert.NoError(t, err)
		})
	}
}

func TestParseColor(t *testing.T) {
	assert.Equal(t, color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}, parseColor("#1f77b4", 0))
	assert.Equal(t, color.RGBA{R: 0xff, A: 0xff}, parseColor("Red", 0))
	assert.NotNil(t, parseColor("not-a-colour", 2))
	assert.NotNil(t, parseColor("", 0))
}

func TestConcurrentRendersOfOneName(t *testing.T) {
	dir := t.TempDir()
	r := NewSVGRenderer(dir, "/media")
	series := []drepo.Series{{Label: "Close", Values: []float64{1, 3, 2, 4}}}

	var wg sync.WaitGroup
	errs := make(chan error, 8*20)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				if _, err := r.Render(context.Background(), "MSFT_plot", "MSFT", series); err != nil {
					errs <- err
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temp files left behind")
	b, err := os.ReadFile(filepath.Join(dir, "MSFT_plot.svg"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(strings.TrimSpace(string(b)), "</svg>"))
}

func TestRenderHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewSVGRenderer(t.TempDir(), "/media").Render(ctx, "x", "x", nil)
	assert.ErrorIs(t, err, context.Canceled)
}
