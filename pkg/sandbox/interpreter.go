// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"context"
	"fmt"
	gomath "math"
	"strings"
	"sync"
	"time"

	starmath "go.starlark.net/lib/math"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// allowedBuiltins are the universe names scripts may use. Every other
// universe name is shadowed by a builtin that fails.
var allowedBuiltins = map[string]bool{
	"None": true, "True": true, "False": true,
	"abs": true, "all": true, "any": true, "bool": true, "dict": true,
	"enumerate": true, "fail": true, "float": true, "getattr": true,
	"hasattr": true, "int": true, "len": true, "list": true, "max": true,
	"min": true, "print": true, "range": true, "reversed": true,
	"sorted": true, "str": true, "tuple": true, "type": true, "zip": true,
}

var fileOptions = &syntax.FileOptions{
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
}

// run is one script execution.
type run struct {
	code      string
	filename  string
	outputDir string
	dataset   Dataset
	limits    Limits
	now       time.Time
}

// output is what a script left behind.
type output struct {
	name   string
	png    []byte
	stdout string
}

// execute runs the script under the step budget and wall-clock limit. The
// figure is only returned when the script finished and called savefig.
func execute(ctx context.Context, r run) (output, error) {
	fig := newFigure(r.filename, r.limits.MaxPoints, r.limits.MaxSeries)

	var (
		mu     sync.Mutex
		stdout strings.Builder
	)
	thread := &starlark.Thread{
		Name: "sandbox",
		Print: func(_ *starlark.Thread, msg string) {
			mu.Lock()
			defer mu.Unlock()
			if stdout.Len() < r.limits.MaxStdout {
				stdout.WriteString(msg)
				stdout.WriteByte('\n')
			}
		},
		Load: func(*starlark.Thread, string) (starlark.StringDict, error) {
			return nil, fmt.Errorf("load is not available in the sandbox")
		},
	}
	if r.limits.MaxSteps > 0 {
		thread.SetMaxExecutionSteps(r.limits.MaxSteps)
	}

	if r.limits.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.limits.Timeout)
		defer cancel()
	}
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			thread.Cancel(ctx.Err().Error())
		case <-stop:
		}
	}()

	_, err := execProtected(thread, r, fig)

	mu.Lock()
	out := output{stdout: stdout.String()}
	mu.Unlock()
	if err != nil {
		return out, err
	}
	if fig.saved == nil {
		return out, fmt.Errorf("script finished without calling plt.savefig")
	}
	out.name = fig.savedName
	out.png = fig.saved
	return out, nil
}

func execProtected(thread *starlark.Thread, r run, fig *figure) (globals starlark.StringDict, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("interpreter panic: %v", rec)
		}
	}()
	return starlark.ExecFileOptions(fileOptions, thread, "chart.star", r.code, predeclared(r, fig))
}

func predeclared(r run, fig *figure) starlark.StringDict {
	env := starlark.StringDict{}
	for name := range starlark.Universe {
		if !allowedBuiltins[name] {
			env[name] = blocked(name)
		}
	}
	env["round"] = starlark.NewBuiltin("round", builtinRound)
	env["sum"] = starlark.NewBuiltin("sum", builtinSum)
	env["math"] = starmath.Module
	env["df"] = newFrame(r.dataset, r.limits.MaxRows)
	env["plt"] = fig.module()
	env["output_dir"] = starlark.String(r.outputDir)
	env["chart_filename"] = starlark.String(r.filename)
	stamp := r.now.Format("20060102_150405")
	env["now"] = starlark.NewBuiltin("now", func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
		return starlark.String(stamp), nil
	})
	return env
}

func blocked(name string) *starlark.Builtin {
	return starlark.NewBuiltin(name, func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
		return nil, fmt.Errorf("%s is not available in the sandbox", name)
	})
}

func builtinRound(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		x      starlark.Value
		digits = 0
	)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "x", &x, "ndigits?", &digits); err != nil {
		return nil, err
	}
	f, ok := starlark.AsFloat(x)
	if !ok {
		return nil, fmt.Errorf("%s: got %s, want number", b.Name(), x.Type())
	}
	if digits == 0 {
		return starlark.MakeInt64(int64(gomath.Round(f))), nil
	}
	scale := gomath.Pow(10, float64(digits))
	return starlark.Float(gomath.Round(f*scale) / scale), nil
}

func builtinSum(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		items starlark.Iterable
		start starlark.Value = starlark.MakeInt(0)
	)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "iterable", &items, "start?", &start); err != nil {
		return nil, err
	}
	total := start
	iter := items.Iterate()
	defer iter.Done()
	var v starlark.Value
	for iter.Next(&v) {
		next, err := starlark.Binary(syntax.PLUS, total, v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
		total = next
	}
	return total, nil
}
