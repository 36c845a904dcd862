// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime/debug"
	"strings"
	"time"
)

// WorkerCommand is the argument that makes the spendlens binary serve one
// script execution on stdin and stdout.
const WorkerCommand = "sandbox-worker"

const (
	// workerOverhead is added to Limits.MaxMemory for the runtime, thread
	// stacks and the decoded request.
	workerOverhead = 256 << 20
	// workerGrace covers process start before the script deadline applies.
	workerGrace     = 2 * time.Second
	maxWorkerStderr = 4 << 10
)

// Worker runs scripts in a child process so that the memory and CPU limits
// are enforced by the operating system. A child that runs out of memory or
// time dies alone and the render moves on to the next layer.
type Worker struct {
	// Path is the executable, usually os.Executable().
	Path string
	// Args select the worker mode, usually []string{WorkerCommand}.
	Args []string
	// Env is appended to the parent's environment.
	Env []string
}

type workerRequest struct {
	Code      string           `json:"code"`
	Filename  string           `json:"filename"`
	OutputDir string           `json:"output_dir"`
	Columns   []string         `json:"columns"`
	Rows      []map[string]any `json:"rows"`
	Limits    Limits           `json:"limits"`
	Now       time.Time        `json:"now"`
}

type workerResponse struct {
	Name   string `json:"name,omitempty"`
	PNG    []byte `json:"png,omitempty"`
	Stdout string `json:"stdout,omitempty"`
	Error  string `json:"error,omitempty"`
}

// execute sends r to a fresh child and waits for its answer. The child is
// killed when ctx ends or the script deadline plus a start-up grace passes.
func (w Worker) execute(ctx context.Context, r run) (output, error) {
	payload, err := json.Marshal(workerRequest{
		Code:      r.code,
		Filename:  r.filename,
		OutputDir: r.outputDir,
		Columns:   r.dataset.Columns,
		Rows:      r.dataset.Rows,
		Limits:    r.limits,
		Now:       r.now,
	})
	if err != nil {
		return output{}, fmt.Errorf("encode worker request: %w", err)
	}

	if r.limits.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.limits.Timeout+workerGrace)
		defer cancel()
	}
	var (
		stdout bytes.Buffer
		stderr = &cappedBuffer{max: maxWorkerStderr}
	)
	cmd := exec.CommandContext(ctx, w.Path, w.Args...)
	cmd.Env = append(os.Environ(), w.Env...)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = &stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = time.Second

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return output{}, fmt.Errorf("sandbox worker killed: %w", ctxErr)
		}
		if msg := stderr.summary(); msg != "" {
			return output{}, fmt.Errorf("sandbox worker exited: %w: %s", err, msg)
		}
		return output{}, fmt.Errorf("sandbox worker exited: %w", err)
	}

	var resp workerResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return output{}, fmt.Errorf("decode worker response: %w", err)
	}
	out := output{name: resp.Name, png: resp.PNG, stdout: resp.Stdout}
	if resp.Error != "" {
		return out, stderrors.New(resp.Error)
	}
	return out, nil
}

// ServeWorker is the child side of Worker: it applies the process limits
// carried by the request, runs the script and writes the outcome to out.
// Script failures travel in the response; the returned error covers only a
// broken exchange with the parent.
func ServeWorker(ctx context.Context, in io.Reader, out io.Writer) error {
	var req workerRequest
	if err := json.NewDecoder(in).Decode(&req); err != nil {
		return fmt.Errorf("decode worker request: %w", err)
	}
	if req.Limits.MaxMemory > 0 {
		debug.SetMemoryLimit(req.Limits.MaxMemory)
	}
	if err := applyProcessLimits(req.Limits); err != nil {
		return fmt.Errorf("apply process limits: %w", err)
	}

	res, err := execute(ctx, run{
		code:      req.Code,
		filename:  req.Filename,
		outputDir: req.OutputDir,
		dataset:   Dataset{Columns: req.Columns, Rows: req.Rows},
		limits:    req.Limits,
		now:       req.Now,
	})
	resp := workerResponse{Name: res.name, PNG: res.png, Stdout: res.stdout}
	if err != nil {
		resp.Error = err.Error()
	}
	return json.NewEncoder(out).Encode(resp)
}

// cappedBuffer keeps the first max bytes written to it.
type cappedBuffer struct {
	buf bytes.Buffer
	max int
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if room := b.max - b.buf.Len(); room > 0 {
		b.buf.Write(p[:min(len(p), room)])
	}
	return len(p), nil
}

// summary returns the first two non-empty lines, which is where the runtime
// puts the reason for a fatal error.
func (b *cappedBuffer) summary() string {
	var lines []string
	for _, line := range strings.Split(b.buf.String(), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
		if len(lines) == 2 {
			break
		}
	}
	return strings.Join(lines, "; ")
}
