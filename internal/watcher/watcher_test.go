package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestWatcher_ImportsSettledTextFiles(t *testing.T) {
	dir := t.TempDir()
	var imported []string
	var mu sync.Mutex
	onImport := func(path string) {
		mu.Lock()
		imported = append(imported, path)
		mu.Unlock()
	}

	w := NewWatcher(dir, onImport, WithDebounce(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	txt := filepath.Join(dir, "note.txt")
	if err := os.WriteFile(txt, []byte("Line one\n"), 0644); err != nil {
		t.Fatal(err)
	}
	// Not a text file: must be ignored.
	if err := os.WriteFile(filepath.Join(dir, "image.png"), []byte{0x89}, 0644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		mu.Lock()
		n := len(imported)
		mu.Unlock()
		if n > 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(imported) == 0 {
		t.Fatal("expected the text file to be imported")
	}
	for _, p := range imported {
		if filepath.Clean(p) != filepath.Clean(txt) {
			t.Errorf("unexpected import: %s", p)
		}
	}
}

func TestWatcher_SyncExistingFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "old.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "skip.md"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	var imported []string
	var mu sync.Mutex
	w := NewWatcher(dir, func(path string) {
		mu.Lock()
		imported = append(imported, path)
		mu.Unlock()
	})
	w.SyncExistingFiles()

	mu.Lock()
	defer mu.Unlock()
	if len(imported) != 1 || filepath.Base(imported[0]) != "old.txt" {
		t.Errorf("imported: %v", imported)
	}
}

func TestWatcher_CreatesMissingDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "inbox")
	w := NewWatcher(dir, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("directory should exist: %v", err)
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	w := NewWatcher(t.TempDir(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	w.Stop()
	w.Stop()
}
