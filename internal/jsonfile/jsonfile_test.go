package jsonfile

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestWriteAtomic_WritesIndentedJSON(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "doc.json")
	if err := WriteAtomic(path, map[string]string{"note": "<b>&"}); err != nil {
		t.Fatalf("WriteAtomic: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	got := string(b)
	if !strings.Contains(got, "\n  \"note\": \"<b>&\"") {
		t.Errorf("file = %q, want indented unescaped field", got)
	}
}

func TestWriteAtomic_ReplacesAndLeavesNoTemp(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "doc.json")
	for i := range 3 {
		if err := WriteAtomic(path, map[string]int{"n": i}); err != nil {
			t.Fatalf("WriteAtomic %d: %v", i, err)
		}
	}

	var got map[string]int
	b, _ := os.ReadFile(path)
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["n"] != 2 {
		t.Errorf("n = %d, want 2", got["n"])
	}

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp_") {
			t.Errorf("leftover temp file %s", e.Name())
		}
	}
}

func TestWriteAtomic_UnencodableValue(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "doc.json")
	if err := WriteAtomic(path, map[string]any{"ch": make(chan int)}); err == nil {
		t.Fatal("expected encode error")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("target should not exist after failed write, stat err = %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("dir has %d entries, want 0", len(entries))
	}
}

func TestLock_SerializesHolders(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "doc.json")

	var (
		mu      sync.Mutex
		holders int
		maxSeen int
		wg      sync.WaitGroup
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := Lock(path)
			if err != nil {
				t.Errorf("Lock: %v", err)
				return
			}
			mu.Lock()
			holders++
			if holders > maxSeen {
				maxSeen = holders
			}
			mu.Unlock()

			mu.Lock()
			holders--
			mu.Unlock()
			if err := unlock(); err != nil {
				t.Errorf("unlock: %v", err)
			}
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxSeen)
	}
}
