package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/khaaliswooden-max/qal/internal/model"
)

type mockReconstructor struct {
	failOn string
}

func (m *mockReconstructor) ReconstructFile(ctx context.Context, path string) (*model.Report, error) {
	time.Sleep(5 * time.Millisecond)
	if m.failOn != "" && strings.HasSuffix(path, m.failOn) {
		return nil, errors.New("malformed request")
	}
	return &model.Report{Subject: filepath.Base(path)}, nil
}

func writeList(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "requests.txt")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBatchProcessor_ProcessPaths(t *testing.T) {
	processor := NewBatchProcessor(&mockReconstructor{}, 2)

	paths := []string{"/r/a.yaml", "/r/b.yaml", "/r/c.json"}
	results := processor.ProcessPaths(context.Background(), paths)

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, res := range results {
		if res.Error != nil {
			t.Errorf("unexpected error for %s: %v", res.Path, res.Error)
		}
		if res.Path != paths[i] {
			t.Errorf("expected result %d for %s, got %s", i, paths[i], res.Path)
		}
		if res.Report == nil || res.Report.Subject != filepath.Base(paths[i]) {
			t.Errorf("unexpected report for %s: %+v", res.Path, res.Report)
		}
	}
}

func TestBatchProcessor_FailureIsolated(t *testing.T) {
	processor := NewBatchProcessor(&mockReconstructor{failOn: "b.yaml"}, 2)

	results := processor.ProcessPaths(context.Background(), []string{"a.yaml", "b.yaml", "c.yaml"})

	if results[1].Error == nil || results[1].Report != nil {
		t.Errorf("expected b.yaml to fail without a report, got %+v", results[1])
	}
	if results[0].Error != nil || results[2].Error != nil {
		t.Error("expected the other sessions to succeed")
	}
}

func TestBatchProcessor_ProcessPaths_Empty(t *testing.T) {
	processor := NewBatchProcessor(&mockReconstructor{}, 2)

	if results := processor.ProcessPaths(context.Background(), nil); len(results) != 0 {
		t.Errorf("expected 0 results, got %d", len(results))
	}
}

func TestReadRequestListFromFile(t *testing.T) {
	list := writeList(t, "a.yaml\n# comment\n/abs/b.json\n   \n./a.yaml\nsub/c.yaml  ")

	paths, err := ReadRequestListFromFile(list)
	if err != nil {
		t.Fatalf("ReadRequestListFromFile failed: %v", err)
	}

	dir := filepath.Dir(list)
	expected := []string{
		filepath.Join(dir, "a.yaml"),
		"/abs/b.json",
		filepath.Join(dir, "sub", "c.yaml"),
	}
	if len(paths) != len(expected) {
		t.Fatalf("expected %d paths, got %d: %v", len(expected), len(paths), paths)
	}
	for i := range expected {
		if paths[i] != expected[i] {
			t.Errorf("expected %s at index %d, got %s", expected[i], i, paths[i])
		}
	}
}

func TestReadRequestListFromFile_NonExistent(t *testing.T) {
	if _, err := ReadRequestListFromFile("non_existent_file.txt"); err == nil {
		t.Error("expected error for non-existent file, got nil")
	}
}

func TestBatchResult_GetError(t *testing.T) {
	r1 := &BatchResult{Path: "a.yaml"}
	if r1.GetError() != nil {
		t.Errorf("expected nil error, got %v", r1.GetError())
	}

	expected := errors.New("session failed")
	r2 := &BatchResult{Path: "a.yaml", Error: expected}
	if r2.GetError() != expected {
		t.Errorf("expected %v, got %v", expected, r2.GetError())
	}
}

func TestBatchProcessor_ProcessFile(t *testing.T) {
	list := writeList(t, "a.yaml\nb.yaml\n# comment\n\nc.yaml\n")
	processor := NewBatchProcessor(&mockReconstructor{}, 2)

	results, err := processor.ProcessFile(context.Background(), list)
	if err != nil {
		t.Fatalf("ProcessFile failed: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("expected 3 results, got %d", len(results))
	}
}

func TestBatchProcessor_ProcessFile_Empty(t *testing.T) {
	list := writeList(t, "")
	processor := NewBatchProcessor(&mockReconstructor{}, 2)

	results, err := processor.ProcessFile(context.Background(), list)
	if err != nil {
		t.Fatalf("ProcessFile failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected 0 results for empty file, got %d", len(results))
	}
}

func TestBatchProcessor_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	processor := NewBatchProcessor(&mockReconstructor{}, 1)
	results := processor.ProcessPaths(ctx, []string{"a.yaml", "b.yaml"})

	if len(results) != 2 {
		t.Fatalf("expected a result slot per path, got %d", len(results))
	}
	for _, res := range results {
		if res.Error == nil {
			t.Errorf("expected cancellation error for %s", res.Path)
		}
	}
}
