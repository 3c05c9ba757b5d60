package pipeline

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/khaaliswooden-max/qal/internal/cache"
	"github.com/khaaliswooden-max/qal/internal/model"
)

// ErrUnsupportedFormat is returned for request files that are neither JSON nor YAML
var ErrUnsupportedFormat = errors.New("unsupported request format")

// Loader reads request and trace catalog files. Raw bytes are cached so a
// catalog shared by many requests in a batch is read once per modification.
type Loader struct {
	cache cache.Cache
	ttl   time.Duration
}

// NewLoader creates a loader. A nil cache reads every file from disk.
func NewLoader(c cache.Cache, ttl time.Duration) *Loader {
	return &Loader{cache: c, ttl: ttl}
}

// LoadRequest decodes a request file and appends the traces of every catalog
// it references. Catalog paths are resolved against the request's directory.
func (l *Loader) LoadRequest(path string) (*model.Request, error) {
	data, err := l.readFile(path)
	if err != nil {
		return nil, err
	}

	req, err := DecodeRequest(data, formatOf(path))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	base := filepath.Dir(path)
	for _, ref := range req.TraceCatalogs {
		catPath := ref
		if !filepath.IsAbs(catPath) {
			catPath = filepath.Join(base, catPath)
		}
		traces, err := l.LoadCatalog(catPath)
		if err != nil {
			return nil, fmt.Errorf("trace catalog %s: %w", ref, err)
		}
		req.Traces = append(req.Traces, traces...)
	}
	return req, nil
}

// LoadCatalog decodes a standalone trace catalog
func (l *Loader) LoadCatalog(path string) ([]model.Trace, error) {
	data, err := l.readFile(path)
	if err != nil {
		return nil, err
	}

	var cat model.TraceCatalog
	if err := decode(data, formatOf(path), &cat); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return cat.Traces, nil
}

// DecodeRequest parses a request in the given format ("json" or "yaml")
func DecodeRequest(data []byte, format string) (*model.Request, error) {
	var req model.Request
	if err := decode(data, format, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

func decode(data []byte, format string, v any) error {
	switch format {
	case "json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		return dec.Decode(v)
	case "yaml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// formatOf picks the decoder from the file extension; unknown extensions are
// read as YAML, which also accepts JSON documents
func formatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json"
	default:
		return "yaml"
	}
}

func (l *Loader) readFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	var key string
	if l.cache != nil {
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		key = cache.CacheKey(abs, strconv.FormatInt(info.ModTime().UnixNano(), 10), strconv.FormatInt(info.Size(), 10))
		if data, ok := l.cache.Get(key); ok {
			return data, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if l.cache != nil {
		_ = l.cache.Set(key, data, l.ttl)
	}
	return data, nil
}
