// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"bytes"
	"image"
	"image/color"
	"image/png"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// Placeholder captions.
const (
	MessageNoData = "No data"
	MessageFailed = "Chart generation failed"
)

// placeholderPNG draws an axis-less figure carrying message. If plotting
// fails a plain gray image is returned instead.
func placeholderPNG(message string) []byte {
	if data, err := labelledPlaceholder(message); err == nil {
		return data
	}
	return plainPlaceholder()
}

func labelledPlaceholder(message string) ([]byte, error) {
	p := plot.New()
	p.Title.Text = message
	p.Title.TextStyle.Font.Size = vg.Points(20)
	p.X.Min, p.X.Max = 0, 1
	p.Y.Min, p.Y.Max = 0, 1
	p.HideAxes()

	labels, err := plotter.NewLabels(plotter.XYLabels{
		XYs:    plotter.XYs{{X: 0.5, Y: 0.5}},
		Labels: []string{message},
	})
	if err != nil {
		return nil, err
	}
	for i := range labels.TextStyle {
		labels.TextStyle[i].Font.Size = vg.Points(28)
		labels.TextStyle[i].XAlign = draw.XCenter
		labels.TextStyle[i].Color = color.Gray{Y: 96}
	}
	p.Add(labels)
	return encodePNG(p)
}

func plainPlaceholder() []byte {
	img := image.NewGray(image.Rect(0, 0, 400, 240))
	for y := 0; y < 240; y++ {
		for x := 0; x < 400; x++ {
			shade := uint8(230)
			if x < 4 || y < 4 || x >= 396 || y >= 236 {
				shade = 120
			}
			img.SetGray(x, y, color.Gray{Y: shade})
		}
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}
