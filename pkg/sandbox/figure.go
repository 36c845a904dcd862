// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

const (
	figureWidth  = 8 * vg.Inch
	figureHeight = 5 * vg.Inch
)

type seriesKind int

const (
	seriesBar seriesKind = iota
	seriesLine
)

type series struct {
	kind   seriesKind
	labels []string
	xs     []float64
	ys     []float64
}

// figure collects plotting calls from a script. savefig renders it to PNG
// bytes in memory; nothing reaches disk until the script has finished.
type figure struct {
	title     string
	xlabel    string
	ylabel    string
	series    []series
	maxPoints int
	maxSeries int

	defaultName string
	savedName   string
	saved       []byte
}

func newFigure(defaultName string, maxPoints, maxSeries int) *figure {
	return &figure{defaultName: defaultName, maxPoints: maxPoints, maxSeries: maxSeries}
}

func (f *figure) reset() {
	f.title, f.xlabel, f.ylabel = "", "", ""
	f.series = nil
}

// module returns the plt namespace bound to f.
func (f *figure) module() *starlarkstruct.Module {
	return &starlarkstruct.Module{
		Name: "plt",
		Members: starlark.StringDict{
			"figure":  starlark.NewBuiltin("figure", f.builtinReset),
			"close":   starlark.NewBuiltin("close", f.builtinReset),
			"bar":     starlark.NewBuiltin("bar", f.bar),
			"pie":     starlark.NewBuiltin("pie", f.bar),
			"line":    starlark.NewBuiltin("line", f.line),
			"plot":    starlark.NewBuiltin("plot", f.line),
			"title":   starlark.NewBuiltin("title", f.setText(&f.title)),
			"xlabel":  starlark.NewBuiltin("xlabel", f.setText(&f.xlabel)),
			"ylabel":  starlark.NewBuiltin("ylabel", f.setText(&f.ylabel)),
			"savefig": starlark.NewBuiltin("savefig", f.savefig),
		},
	}
}

func (f *figure) builtinReset(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	f.reset()
	return starlark.None, nil
}

func (f *figure) setText(dst *string) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var text string
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &text); err != nil {
			return nil, err
		}
		*dst = text
		return starlark.None, nil
	}
}

// bar draws one bar per label. pie uses the same drawing.
func (f *figure) bar(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var labels, values starlark.Iterable
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "labels", &labels, "values", &values); err != nil {
		return nil, err
	}
	ls, err := f.strings(b.Name(), labels)
	if err != nil {
		return nil, err
	}
	vs, err := f.floats(b.Name(), values)
	if err != nil {
		return nil, err
	}
	if len(ls) != len(vs) {
		return nil, fmt.Errorf("%s: %d labels but %d values", b.Name(), len(ls), len(vs))
	}
	return starlark.None, f.add(b.Name(), series{kind: seriesBar, labels: ls, ys: vs})
}

// line accepts numeric or string x values; strings become category ticks.
func (f *figure) line(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var xs, ys starlark.Iterable
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "xs", &xs, "ys", &ys); err != nil {
		return nil, err
	}
	yv, err := f.floats(b.Name(), ys)
	if err != nil {
		return nil, err
	}
	s := series{kind: seriesLine, ys: yv}
	if xv, err := f.floats(b.Name(), xs); err == nil {
		s.xs = xv
	} else {
		labels, lerr := f.strings(b.Name(), xs)
		if lerr != nil {
			return nil, err
		}
		s.labels = labels
		s.xs = make([]float64, len(labels))
		for i := range labels {
			s.xs[i] = float64(i)
		}
	}
	if len(s.xs) != len(s.ys) {
		return nil, fmt.Errorf("%s: %d x values but %d y values", b.Name(), len(s.xs), len(s.ys))
	}
	return starlark.None, f.add(b.Name(), s)
}

func (f *figure) add(name string, s series) error {
	if f.maxSeries > 0 && len(f.series) >= f.maxSeries {
		return fmt.Errorf("%s: figure already has %d series", name, len(f.series))
	}
	f.series = append(f.series, s)
	return nil
}

func (f *figure) savefig(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	name := f.defaultName
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "name?", &name); err != nil {
		return nil, err
	}
	if f.saved != nil {
		return nil, fmt.Errorf("%s: a figure was already saved", b.Name())
	}
	data, err := f.render()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	f.savedName = pngName(name, f.defaultName)
	f.saved = data
	return starlark.String(f.savedName), nil
}

func (f *figure) strings(fn string, it starlark.Iterable) ([]string, error) {
	var out []string
	iter := it.Iterate()
	defer iter.Done()
	var v starlark.Value
	for iter.Next(&v) {
		if f.maxPoints > 0 && len(out) >= f.maxPoints {
			return nil, fmt.Errorf("%s: more than %d points", fn, f.maxPoints)
		}
		if s, ok := starlark.AsString(v); ok {
			out = append(out, s)
		} else {
			out = append(out, v.String())
		}
	}
	return out, nil
}

func (f *figure) floats(fn string, it starlark.Iterable) ([]float64, error) {
	var out []float64
	iter := it.Iterate()
	defer iter.Done()
	var v starlark.Value
	for iter.Next(&v) {
		if f.maxPoints > 0 && len(out) >= f.maxPoints {
			return nil, fmt.Errorf("%s: more than %d points", fn, f.maxPoints)
		}
		n, ok := starlark.AsFloat(v)
		if !ok {
			return nil, fmt.Errorf("%s: %s is not a number", fn, v.Type())
		}
		out = append(out, n)
	}
	return out, nil
}

// render draws the collected series with gonum/plot.
func (f *figure) render() ([]byte, error) {
	if len(f.series) == 0 {
		return nil, fmt.Errorf("figure is empty")
	}
	p := plot.New()
	p.Title.Text = f.title
	p.X.Label.Text = f.xlabel
	p.Y.Label.Text = f.ylabel

	var nominal []string
	for i, s := range f.series {
		switch s.kind {
		case seriesBar:
			bars, err := plotter.NewBarChart(plotter.Values(s.ys), vg.Points(18))
			if err != nil {
				return nil, err
			}
			bars.Color = plotutil.Color(i)
			bars.LineStyle.Width = 0
			p.Add(bars)
			nominal = s.labels
		case seriesLine:
			xys := make(plotter.XYs, len(s.xs))
			for j := range s.xs {
				xys[j] = plotter.XY{X: s.xs[j], Y: s.ys[j]}
			}
			line, err := plotter.NewLine(xys)
			if err != nil {
				return nil, err
			}
			line.Color = plotutil.Color(i)
			line.Width = vg.Points(2)
			p.Add(line)
			if s.labels != nil {
				nominal = s.labels
			}
		}
	}
	if nominal != nil {
		p.NominalX(nominal...)
		p.X.Tick.Label.Rotation = 0.6
		p.X.Tick.Label.XAlign = draw.XRight
	}
	return encodePNG(p)
}

func encodePNG(p *plot.Plot) ([]byte, error) {
	c := vgimg.New(figureWidth, figureHeight)
	p.Draw(draw.New(c))
	var buf bytes.Buffer
	if _, err := (vgimg.PngCanvas{Canvas: c}).WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// pngName reduces name to a base file name ending in .png.
func pngName(name, fallback string) string {
	name = strings.TrimSpace(filepath.Base(filepath.ToSlash(name)))
	if name == "" || name == "." || name == "/" {
		name = fallback
	}
	if !strings.EqualFold(filepath.Ext(name), ".png") {
		name = strings.TrimSuffix(name, filepath.Ext(name)) + ".png"
	}
	return name
}
