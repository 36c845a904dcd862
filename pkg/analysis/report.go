// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

package analysis

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/jllopis/spendlens/pkg/errors"
	"github.com/jllopis/spendlens/pkg/finance"
	"github.com/jllopis/spendlens/pkg/tools"
)

// NoAnalysis stands in for a missing analysis result.
const NoAnalysis = "No analysis result available."

// Chart is one image referenced by a report.
type Chart struct {
	Label string
	Path  string
}

// Report is the content of a generated report.
type Report struct {
	UserID      string
	Start, End  string
	GeneratedAt time.Time
	Analysis    string
	Charts      []Chart
	Summary     *finance.Summary
}

// ReportPaths are the stored report files.
type ReportPaths struct {
	Markdown string
	PDF      string
}

func generateReport(d Deps) tools.Capability {
	return tools.Sync(
		spec(GenerateReport, "Write the Markdown and PDF report and return their paths."),
		func(ctx context.Context, p tools.Params) (any, error) {
			if d.Store == nil {
				return nil, errors.New(errors.CodeInternal, "no artifact store configured", nil)
			}
			r := Report{
				UserID:      p.String("user_id", ""),
				Start:       dateParam(p, "start_date"),
				End:         dateParam(p, "end_date"),
				GeneratedAt: d.Now(),
				Analysis:    strings.TrimSpace(p.String("analysis_result", "")),
				Charts:      chartList(p),
			}
			if txs, err := transactions(p, "transactions"); err == nil && len(txs) > 0 {
				s := finance.Summarize(txs)
				r.Summary = &s
			}
			paths, err := d.writeReport(ctx, r)
			if err != nil {
				return nil, err
			}
			return map[string]string{"markdown": paths.Markdown, "pdf": paths.PDF}, nil
		},
	)
}

func (d Deps) writeReport(ctx context.Context, r Report) (ReportPaths, error) {
	base := fmt.Sprintf("spending_analysis_%s_%s_%s_%d", r.UserID, r.Start, r.End, r.GeneratedAt.UnixMilli())

	var paths ReportPaths
	md, err := d.Store.Write(ctx, []byte(r.Markdown()), d.ReportDir, base+".md")
	if err != nil {
		return paths, err
	}
	paths.Markdown = md

	pdfData, err := r.PDF()
	if err != nil {
		return paths, errors.New(errors.CodeInternal, "render pdf report", err).
			WithContext("markdown", md)
	}
	pdfPath, err := d.Store.Write(ctx, pdfData, d.ReportDir, base+".pdf")
	if err != nil {
		return paths, err
	}
	paths.PDF = pdfPath
	return paths, nil
}

// chartList reads chart_paths, which may be a single path, a list of paths or
// a map of label to path.
func chartList(p tools.Params) []Chart {
	v, ok := p.Value("chart_paths")
	if !ok {
		return nil
	}
	var out []Chart
	add := func(label string, path any) {
		s, ok := path.(string)
		if !ok || strings.TrimSpace(s) == "" {
			return
		}
		if label == "" {
			label = chartLabel(s)
		}
		out = append(out, Chart{Label: label, Path: s})
	}
	switch t := v.(type) {
	case string:
		add("", t)
	case []string:
		for _, s := range t {
			add("", s)
		}
	case []any:
		for _, s := range t {
			add("", s)
		}
	case map[string]string:
		for _, k := range sortedKeys(t) {
			add(k, t[k])
		}
	case map[string]any:
		for _, k := range sortedKeys(t) {
			add(k, t[k])
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func chartLabel(path string) string {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return strings.ReplaceAll(name, "_", " ")
}

// Markdown renders the report as Markdown.
func (r Report) Markdown() string {
	var b strings.Builder
	b.WriteString("# Spending Analysis Report\n\n")
	b.WriteString("## Overview\n\n")
	fmt.Fprintf(&b, "- User: %s\n", r.UserID)
	fmt.Fprintf(&b, "- Period: %s to %s\n", r.Start, r.End)
	fmt.Fprintf(&b, "- Generated: %s\n\n", r.GeneratedAt.Format("2006-01-02 15:04:05"))

	if r.Summary != nil {
		b.WriteString("## Summary\n\n")
		fmt.Fprintf(&b, "Records: %d. Spent: %.2f. Received: %.2f.\n\n", r.Summary.Count, r.Summary.Expense, r.Summary.Income)
		if len(r.Summary.Categories) > 0 {
			b.WriteString("| Category | Amount | Records |\n|---|---:|---:|\n")
			for _, c := range r.Summary.Categories {
				fmt.Fprintf(&b, "| %s | %.2f | %d |\n", c.Category, c.Amount, c.Count)
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("## Charts\n\n")
	if len(r.Charts) == 0 {
		b.WriteString("No charts were generated.\n\n")
	}
	for _, c := range r.Charts {
		fmt.Fprintf(&b, "### %s\n\n![%s](%s)\n\n", c.Label, c.Label, filepath.ToSlash(c.Path))
	}

	b.WriteString("## Detailed Analysis\n\n")
	analysis := r.Analysis
	if analysis == "" {
		analysis = NoAnalysis
	}
	b.WriteString(analysis)
	b.WriteString("\n")
	return b.String()
}

// PDF renders the report with the core fonts. Charts that cannot be read are
// listed by path instead of embedded.
func (r Report) PDF() ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Spending Analysis Report", true)
	pdf.SetCreationDate(r.GeneratedAt)
	pdf.SetModificationDate(r.GeneratedAt)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.AddPage()
	left, _, right, _ := pdf.GetMargins()
	pageW, _ := pdf.GetPageSize()
	width := pageW - left - right

	heading := func(text string, size float64) {
		pdf.SetFont("Helvetica", "B", size)
		pdf.MultiCell(width, size/2, tr(text), "", "L", false)
		pdf.Ln(2)
	}
	body := func(text string) {
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(width, 6, tr(text), "", "L", false)
		pdf.Ln(2)
	}

	heading("Spending Analysis Report", 18)
	body(fmt.Sprintf("User: %s\nPeriod: %s to %s\nGenerated: %s",
		r.UserID, r.Start, r.End, r.GeneratedAt.Format("2006-01-02 15:04:05")))

	if r.Summary != nil {
		heading("Summary", 14)
		lines := []string{fmt.Sprintf("Records: %d. Spent: %.2f. Received: %.2f.", r.Summary.Count, r.Summary.Expense, r.Summary.Income)}
		for _, c := range r.Summary.Categories {
			lines = append(lines, fmt.Sprintf("%s: %.2f (%d records)", c.Category, c.Amount, c.Count))
		}
		body(strings.Join(lines, "\n"))
	}

	heading("Charts", 14)
	if len(r.Charts) == 0 {
		body("No charts were generated.")
	}
	for i, c := range r.Charts {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.MultiCell(width, 6, tr(c.Label), "", "L", false)
		if !embedImage(pdf, fmt.Sprintf("chart%d", i), c.Path, left, width) {
			body("Chart unavailable: " + c.Path)
		}
		pdf.Ln(4)
	}

	heading("Detailed Analysis", 14)
	analysis := r.Analysis
	if analysis == "" {
		analysis = NoAnalysis
	}
	body(analysis)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// embedImage places the PNG at path at full content width. A rejected image
// leaves the document error-free.
func embedImage(pdf *fpdf.Fpdf, name, path string, x, width float64) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	opts := fpdf.ImageOptions{ImageType: "PNG"}
	info := pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(data))
	if !pdf.Ok() || info == nil {
		pdf.ClearError()
		return false
	}
	w := width
	if iw := info.Width(); iw > 0 && iw < w {
		w = iw
	}
	pdf.ImageOptions(name, x, pdf.GetY(), w, 0, true, opts, 0, "")
	return pdf.Ok()
}
