// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"fmt"
	"sort"
	"strings"

	"go.starlark.net/starlark"

	"github.com/jllopis/spendlens/pkg/finance"
)

// Columns of a transaction dataset, in display order.
var transactionColumns = []string{
	"id", "date", "timestamp", "amount", "category",
	"counterparty", "kind", "description", "payment_method",
}

// Dataset is the tabular input of a render. Cells hold strings, float64,
// int, bool or nil.
type Dataset struct {
	Columns []string
	Rows    []map[string]any
}

// Len returns the number of rows.
func (d Dataset) Len() int {
	return len(d.Rows)
}

// FromTransactions builds a dataset with one row per transaction.
func FromTransactions(txs []finance.Transaction) Dataset {
	ds := Dataset{
		Columns: append([]string(nil), transactionColumns...),
		Rows:    make([]map[string]any, 0, len(txs)),
	}
	for _, tx := range txs {
		ds.Rows = append(ds.Rows, map[string]any{
			"id":             tx.ID,
			"date":           tx.Timestamp.Format("2006-01-02"),
			"timestamp":      tx.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
			"amount":         tx.Amount,
			"category":       tx.Category,
			"counterparty":   tx.Counterparty,
			"kind":           string(tx.Kind),
			"description":    tx.Description,
			"payment_method": tx.PaymentMethod,
		})
	}
	return ds
}

// Sample returns up to n rows rendered one per line.
func (d Dataset) Sample(n int) string {
	if n > len(d.Rows) {
		n = len(d.Rows)
	}
	var b strings.Builder
	for _, row := range d.Rows[:n] {
		parts := make([]string, 0, len(d.Columns))
		for _, col := range d.Columns {
			parts = append(parts, fmt.Sprintf("%s=%v", col, row[col]))
		}
		b.WriteString(strings.Join(parts, ", "))
		b.WriteByte('\n')
	}
	return b.String()
}

// frame is the Starlark view of a Dataset, predeclared as df.
type frame struct {
	columns []string
	rows    []map[string]any
	frozen  bool
}

var (
	_ starlark.HasAttrs = (*frame)(nil)
	_ starlark.Sequence = (*frame)(nil)
)

func newFrame(ds Dataset, maxRows int) *frame {
	rows := ds.Rows
	if maxRows > 0 && len(rows) > maxRows {
		rows = rows[:maxRows]
	}
	return &frame{columns: ds.Columns, rows: rows}
}

func (f *frame) String() string        { return fmt.Sprintf("<dataframe rows=%d>", len(f.rows)) }
func (f *frame) Type() string          { return "dataframe" }
func (f *frame) Freeze()               { f.frozen = true }
func (f *frame) Truth() starlark.Bool  { return len(f.rows) > 0 }
func (f *frame) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: dataframe") }
func (f *frame) Len() int              { return len(f.rows) }

func (f *frame) Iterate() starlark.Iterator {
	return starlark.NewList(f.rowValues()).Iterate()
}

var frameMethods = []string{"column", "daily_totals", "filter", "group_sum", "total"}

func (f *frame) AttrNames() []string {
	return append([]string{"columns", "rows"}, frameMethods...)
}

func (f *frame) Attr(name string) (starlark.Value, error) {
	switch name {
	case "rows":
		l := starlark.NewList(f.rowValues())
		l.Freeze()
		return l, nil
	case "columns":
		vals := make([]starlark.Value, len(f.columns))
		for i, c := range f.columns {
			vals[i] = starlark.String(c)
		}
		return starlark.Tuple(vals), nil
	case "column":
		return starlark.NewBuiltin("column", f.column), nil
	case "daily_totals":
		return starlark.NewBuiltin("daily_totals", f.dailyTotals), nil
	case "filter":
		return starlark.NewBuiltin("filter", f.filter), nil
	case "group_sum":
		return starlark.NewBuiltin("group_sum", f.groupSum), nil
	case "total":
		return starlark.NewBuiltin("total", f.total), nil
	}
	return nil, nil
}

func (f *frame) rowValues() []starlark.Value {
	out := make([]starlark.Value, 0, len(f.rows))
	for _, row := range f.rows {
		d := starlark.NewDict(len(f.columns))
		for _, col := range f.columns {
			_ = d.SetKey(starlark.String(col), toStarlark(row[col]))
		}
		d.Freeze()
		out = append(out, d)
	}
	return out
}

func (f *frame) hasColumn(name string) bool {
	for _, c := range f.columns {
		if c == name {
			return true
		}
	}
	return false
}

func (f *frame) column(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "name", &name); err != nil {
		return nil, err
	}
	if !f.hasColumn(name) {
		return nil, fmt.Errorf("%s: unknown column %q", b.Name(), name)
	}
	vals := make([]starlark.Value, len(f.rows))
	for i, row := range f.rows {
		vals[i] = toStarlark(row[name])
	}
	return starlark.NewList(vals), nil
}

// groupSum returns (key, total) tuples sorted by total descending.
func (f *frame) groupSum(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	by, value := "", "amount"
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "by", &by, "value?", &value); err != nil {
		return nil, err
	}
	if !f.hasColumn(by) || !f.hasColumn(value) {
		return nil, fmt.Errorf("%s: unknown column", b.Name())
	}
	groups := aggregate(f.rows, by, value)
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].total > groups[j].total })
	return groupsValue(groups), nil
}

// dailyTotals returns (date, total) tuples sorted by date.
func (f *frame) dailyTotals(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
		return nil, err
	}
	if !f.hasColumn("date") {
		return nil, fmt.Errorf("%s: dataset has no date column", b.Name())
	}
	groups := aggregate(f.rows, "date", "amount")
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].key < groups[j].key })
	return groupsValue(groups), nil
}

func (f *frame) filter(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		name  string
		value starlark.Value
	)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "column", &name, "value", &value); err != nil {
		return nil, err
	}
	if !f.hasColumn(name) {
		return nil, fmt.Errorf("%s: unknown column %q", b.Name(), name)
	}
	out := &frame{columns: f.columns}
	for _, row := range f.rows {
		eq, err := starlark.Equal(toStarlark(row[name]), value)
		if err != nil {
			return nil, err
		}
		if eq {
			out.rows = append(out.rows, row)
		}
	}
	return out, nil
}

func (f *frame) total(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	column := "amount"
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "column?", &column); err != nil {
		return nil, err
	}
	sum := 0.0
	for _, row := range f.rows {
		sum += number(row[column])
	}
	return starlark.Float(sum), nil
}

type group struct {
	key   string
	total float64
}

func aggregate(rows []map[string]any, by, value string) []group {
	index := make(map[string]int)
	var groups []group
	for _, row := range rows {
		key := fmt.Sprint(row[by])
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, group{key: key})
		}
		groups[i].total += number(row[value])
	}
	return groups
}

func groupsValue(groups []group) starlark.Value {
	vals := make([]starlark.Value, len(groups))
	for i, g := range groups {
		vals[i] = starlark.Tuple{starlark.String(g.key), starlark.Float(g.total)}
	}
	return starlark.NewList(vals)
}

func number(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}

func toStarlark(v any) starlark.Value {
	switch t := v.(type) {
	case nil:
		return starlark.None
	case string:
		return starlark.String(t)
	case bool:
		return starlark.Bool(t)
	case int:
		return starlark.MakeInt(t)
	case int64:
		return starlark.MakeInt64(t)
	case float64:
		return starlark.Float(t)
	case float32:
		return starlark.Float(t)
	default:
		return starlark.String(fmt.Sprint(t))
	}
}
