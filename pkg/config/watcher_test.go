// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
}

// replaceConfig swaps in new content with a later mtime in one rename, so
// coarse filesystem clocks still register exactly one change.
func replaceConfig(t *testing.T, path, content string) {
	t.Helper()
	tmp := path + ".next"
	writeConfig(t, tmp, content)
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(tmp, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatalf("rename: %v", err)
	}
}

func TestWatcherDetectsChanges(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, configPath, "llm:\n  model: test-model\n")

	watcher, err := NewWatcher(configPath, "", WithWatchInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	changes := make(chan *Config, 1)
	watcher.OnChange(func(cfg *Config) {
		select {
		case changes <- cfg:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watcher.Start(ctx)
	defer watcher.Stop()

	if cfg := watcher.Config(); cfg.LLM.Model != "test-model" {
		t.Fatalf("expected model 'test-model', got %q", cfg.LLM.Model)
	}

	replaceConfig(t, configPath, "llm:\n  model: updated-model\nlog:\n  level: debug\n")

	select {
	case cfg := <-changes:
		if cfg.LLM.Model != "updated-model" || cfg.Log.Level != "debug" {
			t.Fatalf("unexpected reloaded config %+v", cfg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for config change notification")
	}
	if watcher.Config().LLM.Model != "updated-model" {
		t.Fatalf("Config() not updated")
	}
}

func TestWatcherMultipleListeners(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, configPath, "llm:\n  model: v1\n")

	watcher, err := NewWatcher(configPath, "", WithWatchInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	var count1, count2 atomic.Int32
	watcher.OnChange(func(*Config) { count1.Add(1) })
	watcher.OnChange(func(*Config) { count2.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watcher.Start(ctx)
	defer watcher.Stop()

	replaceConfig(t, configPath, "llm:\n  model: v2\n")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && (count1.Load() == 0 || count2.Load() == 0) {
		time.Sleep(10 * time.Millisecond)
	}
	if count1.Load() != 1 || count2.Load() != 1 {
		t.Fatalf("expected both listeners called once, got %d and %d", count1.Load(), count2.Load())
	}
}

func TestWatcherKeepsConfigOnInvalidReload(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, configPath, "llm:\n  model: good\n")

	watcher, err := NewWatcher(configPath, "", WithWatchInterval(time.Hour))
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	replaceConfig(t, configPath, "llm:\n  provider: carrier-pigeon\n")

	if !watcher.checkForChanges() {
		t.Fatalf("expected change to be detected")
	}
	watcher.reload()
	if watcher.Config().LLM.Model != "good" {
		t.Fatalf("invalid reload replaced the config: %+v", watcher.Config().LLM)
	}
}

func TestWatcherStops(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, configPath, "llm: {}\n")

	watcher, err := NewWatcher(configPath, "", WithWatchInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	watcher.Start(context.Background())

	done := make(chan struct{})
	go func() {
		watcher.Stop()
		watcher.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watcher.Stop() did not complete in time")
	}
}

func TestWatchConfigWithProfile(t *testing.T) {
	tmpDir := t.TempDir()
	basePath := filepath.Join(tmpDir, "config.yaml")
	writeConfig(t, basePath, "llm:\n  model: base\n")
	devPath := filepath.Join(tmpDir, "config.dev.yaml")
	writeConfig(t, devPath, "llm:\n  model: dev\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watcher, cfg, err := WatchConfig(ctx, basePath, "", WithWatchInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("failed to watch config: %v", err)
	}
	defer watcher.Stop()
	if cfg.LLM.Model != "base" {
		t.Fatalf("expected model 'base', got %q", cfg.LLM.Model)
	}

	devWatcher, cfg, err := WatchConfig(ctx, basePath, "dev", WithWatchInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("failed to watch config: %v", err)
	}
	defer devWatcher.Stop()
	if cfg.LLM.Model != "dev" {
		t.Fatalf("expected model 'dev', got %q", cfg.LLM.Model)
	}
	if len(devWatcher.paths) != 2 || devWatcher.paths[1] != devPath {
		t.Fatalf("expected the overlay to be watched, got %v", devWatcher.paths)
	}
}

func TestWatcherKeepsOverrides(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, configPath, "log:\n  level: info\nllm:\n  model: a\n")

	watcher, err := NewWatcher(configPath, "",
		WithWatchInterval(20*time.Millisecond),
		WithWatchOverrides("llm.provider=mock"),
	)
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	if cfg := watcher.Config(); cfg.LLM.Provider != "mock" {
		t.Fatalf("expected the override at startup, got %q", cfg.LLM.Provider)
	}
	changes := make(chan *Config, 1)
	watcher.OnChange(func(cfg *Config) {
		select {
		case changes <- cfg:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watcher.Start(ctx)
	defer watcher.Stop()

	replaceConfig(t, configPath, "log:\n  level: debug\nllm:\n  model: b\n")
	select {
	case cfg := <-changes:
		if cfg.Log.Level != "debug" || cfg.LLM.Provider != "mock" {
			t.Fatalf("unexpected reloaded config %+v %+v", cfg.Log, cfg.LLM)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reload")
	}

	if _, err := NewWatcher(configPath, "", WithWatchOverrides("no-equals")); err == nil {
		t.Fatalf("expected an invalid override to fail")
	}
}
