package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/khaaliswooden-max/qal/internal/model"
)

// Reconstructor runs one reconstruction session from a request file
type Reconstructor interface {
	ReconstructFile(ctx context.Context, path string) (*model.Report, error)
}

// ReconstructJob reconstructs a single request file
type ReconstructJob struct {
	Path          string
	Reconstructor Reconstructor
}

// Execute runs the job
func (j *ReconstructJob) Execute(ctx context.Context) Result {
	report, err := j.Reconstructor.ReconstructFile(ctx, j.Path)
	return &BatchResult{
		Path:   j.Path,
		Report: report,
		Error:  err,
	}
}

// BatchResult is the outcome of one request in a batch
type BatchResult struct {
	Path   string
	Report *model.Report
	Error  error
}

// GetError returns the session error, if any
func (r *BatchResult) GetError() error {
	return r.Error
}

// BatchProcessor runs many independent sessions concurrently
type BatchProcessor struct {
	reconstructor Reconstructor
	concurrency   int
}

// NewBatchProcessor creates a batch processor
func NewBatchProcessor(reconstructor Reconstructor, concurrency int) *BatchProcessor {
	return &BatchProcessor{
		reconstructor: reconstructor,
		concurrency:   concurrency,
	}
}

// ProcessPaths reconstructs every request file and returns results in input
// order. One failing session never affects the others.
func (b *BatchProcessor) ProcessPaths(ctx context.Context, paths []string) []*BatchResult {
	if len(paths) == 0 {
		return []*BatchResult{}
	}

	pool := NewPool(ctx, b.concurrency)
	pool.Start()

	for _, path := range paths {
		pool.Submit(&ReconstructJob{
			Path:          path,
			Reconstructor: b.reconstructor,
		})
	}

	results := pool.Wait()

	out := make([]*BatchResult, len(results))
	for i, result := range results {
		if br, ok := result.(*BatchResult); ok {
			out[i] = br
			continue
		}
		err := ctx.Err()
		if err == nil {
			err = fmt.Errorf("job was not executed")
		}
		out[i] = &BatchResult{Path: paths[i], Error: err}
	}
	return out
}

// ProcessFile reads a list of request files and processes them
func (b *BatchProcessor) ProcessFile(ctx context.Context, listPath string) ([]*BatchResult, error) {
	paths, err := ReadRequestListFromFile(listPath)
	if err != nil {
		return nil, fmt.Errorf("read request list: %w", err)
	}

	return b.ProcessPaths(ctx, paths), nil
}

// ReadRequestListFromFile reads request file paths, one per line. Blank lines
// and # comments are skipped, duplicates dropped, and relative paths resolved
// against the list file's directory.
func ReadRequestListFromFile(listPath string) ([]string, error) {
	file, err := os.Open(listPath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	base := filepath.Dir(listPath)
	var paths []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if !filepath.IsAbs(line) {
			line = filepath.Join(base, line)
		}
		line = filepath.Clean(line)

		if !seen[line] {
			seen[line] = true
			paths = append(paths, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return paths, nil
}
