// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Watcher polls a config file and its profile overlay and reloads on change.
type Watcher struct {
	mu          sync.RWMutex
	path        string
	profile     string
	sets        []string
	overrides   []override
	paths       []string
	interval    time.Duration
	lastModTime map[string]time.Time
	config      *Config
	listeners   []func(*Config)
	stopOnce    sync.Once
	stopCh      chan struct{}
	doneCh      chan struct{}
	logger      *slog.Logger
}

// WatcherOption configures the watcher.
type WatcherOption func(*Watcher)

// WithWatchInterval sets the polling interval for file changes.
func WithWatchInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithWatchLogger sets the logger for the watcher.
func WithWatchLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// WithWatchOverrides re-applies --set style key=value pairs on every
// reload, so command line overrides survive file edits.
func WithWatchOverrides(sets ...string) WatcherOption {
	return func(w *Watcher) {
		w.sets = append(w.sets, sets...)
	}
}

// NewWatcher loads path with profile and prepares to watch both files.
func NewWatcher(path, profile string, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:        path,
		profile:     profile,
		interval:    time.Second,
		lastModTime: make(map[string]time.Time),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}

	for _, set := range w.sets {
		o, err := parseOverride(set)
		if err != nil {
			return nil, err
		}
		w.overrides = append(w.overrides, o)
	}

	if path != "" {
		w.paths = append(w.paths, path)
		if overlay := profileConfigPath(path, profile); overlay != "" {
			w.paths = append(w.paths, overlay)
		}
	}
	for _, p := range w.paths {
		if info, err := os.Stat(p); err == nil {
			w.lastModTime[p] = info.ModTime()
		}
	}

	cfg, err := load(path, profile, w.overrides)
	if err != nil {
		return nil, err
	}
	w.config = cfg
	return w, nil
}

// OnChange registers a callback to be called when config changes.
func (w *Watcher) OnChange(fn func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, fn)
}

// Config returns the current configuration.
func (w *Watcher) Config() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.config
}

// Start begins watching for configuration changes.
func (w *Watcher) Start(ctx context.Context) {
	go w.watch(ctx)
}

// Stop stops the watcher and waits for the poll loop to exit. It must only be
// called after Start.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	<-w.doneCh
}

func (w *Watcher) watch(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			if w.checkForChanges() {
				w.reload()
			}
		}
	}
}

func (w *Watcher) checkForChanges() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	changed := false
	for _, path := range w.paths {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		lastMod, exists := w.lastModTime[path]
		if !exists || info.ModTime().After(lastMod) {
			w.lastModTime[path] = info.ModTime()
			changed = true
		}
	}
	return changed
}

// reload keeps the previous config when the new one does not load.
func (w *Watcher) reload() {
	cfg, err := load(w.path, w.profile, w.overrides)
	if err != nil {
		w.logger.Error("config.reload.failed", slog.String("path", w.path), slog.String("error", err.Error()))
		return
	}

	w.mu.Lock()
	w.config = cfg
	listeners := make([]func(*Config), len(w.listeners))
	copy(listeners, w.listeners)
	w.mu.Unlock()

	w.logger.Info("config.reloaded", slog.String("path", w.path))
	for _, fn := range listeners {
		fn(cfg)
	}
}

// WatchConfig creates a watcher for path and profile and starts it.
func WatchConfig(ctx context.Context, path, profile string, opts ...WatcherOption) (*Watcher, *Config, error) {
	watcher, err := NewWatcher(path, profile, opts...)
	if err != nil {
		return nil, nil, err
	}
	watcher.Start(ctx)
	return watcher, watcher.Config(), nil
}
