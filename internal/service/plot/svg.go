package plot

import (
	"context"
	"fmt"
	"image/color"
	"math"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	drepo "PriceCast/internal/domain/repository"

	"golang.org/x/image/colornames"
	gplot "gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgsvg"
)

const (
	width  = 12 * vg.Inch
	height = 5 * vg.Inch
)

// SVGRenderer draws line charts as SVG files under dir and returns them as
// urlPrefix/name.svg. NaN values are gaps.
type SVGRenderer struct {
	dir       string
	urlPrefix string
}

func NewSVGRenderer(dir, urlPrefix string) *SVGRenderer {
	return &SVGRenderer{dir: dir, urlPrefix: urlPrefix}
}

// Render writes to a private temp file and renames it into place, so
// concurrent renders of one name never expose a partial file.
func (r *SVGRenderer) Render(ctx context.Context, name, title string, series []drepo.Series) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p, err := newChart(title, series)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("create media dir: %w", err)
	}

	file := name + ".svg"
	f, err := os.CreateTemp(r.dir, "."+file+"-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create plot file: %w", err)
	}
	tmp := f.Name()

	c := vgsvg.New(width, height)
	p.Draw(draw.New(c))
	if _, err := c.WriteTo(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return "", fmt.Errorf("write plot: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("write plot: %w", err)
	}
	if err := os.Chmod(tmp, 0o644); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("write plot: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(r.dir, file)); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("publish plot: %w", err)
	}
	return path.Join(r.urlPrefix, file), nil
}

func newChart(title string, series []drepo.Series) (*gplot.Plot, error) {
	p := gplot.New()
	p.Title.Text = title
	p.X.Label.Text = "Time"
	p.Y.Label.Text = "Price"
	p.Legend.Top = true
	p.Legend.Left = true
	p.Add(plotter.NewGrid())

	for i, s := range series {
		col := parseColor(s.Color, i)
		for j, seg := range segments(s.Values) {
			line, err := plotter.NewLine(seg)
			if err != nil {
				return nil, fmt.Errorf("plot %q: %w", s.Label, err)
			}
			line.LineStyle.Width = vg.Points(1.5)
			line.LineStyle.Color = col
			p.Add(line)
			if j == 0 && s.Label != "" {
				p.Legend.Add(s.Label, line)
			}
		}
	}
	return p, nil
}

// segments splits values into runs of finite points keyed by index.
func segments(values []float64) []plotter.XYs {
	var out []plotter.XYs
	var cur plotter.XYs
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			if len(cur) > 0 {
				out = append(out, cur)
				cur = nil
			}
			continue
		}
		cur = append(cur, plotter.XY{X: float64(i), Y: v})
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out
}

// parseColor accepts #rrggbb or an SVG colour name; anything else falls
// back to the i-th palette colour.
func parseColor(s string, i int) color.Color {
	s = strings.TrimSpace(strings.ToLower(s))
	if c, ok := colornames.Map[s]; ok {
		return c
	}
	if hex, ok := strings.CutPrefix(s, "#"); ok && len(hex) == 6 {
		if v, err := strconv.ParseUint(hex, 16, 32); err == nil {
			return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}
		}
	}
	return plotutil.Color(i)
}

var _ drepo.PlotRenderer = (*SVGRenderer)(nil)
