package pipeline

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khaaliswooden-max/qal/internal/cache"
	"github.com/khaaliswooden-max/qal/internal/model"
)

func TestLoader_JSONRequest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "req.json")
	writeFile(t, path, `{
  "subject": "Ur III",
  "events": [
    {"id": "e1", "kind": "founding", "layer": "L2_CULTURAL",
     "timestamp": {"magnitude": 2112, "unit": "BC", "uncertainty": 10},
     "evidence_refs": ["tab-1"]}
  ],
  "claims": [{"id": "c1", "label": "plausible", "evidence_refs": ["tab-1"]}],
  "traces": [{"id": "tab-1", "type": "Cuneiform", "confidence": 0.8}]
}`)

	req, err := NewLoader(nil, 0).LoadRequest(path)
	require.NoError(t, err)

	assert.Equal(t, "Ur III", req.Subject)
	require.Len(t, req.Events, 1)
	assert.Equal(t, model.LayerCultural, req.Events[0].Layer)
	assert.Equal(t, model.UnitBCE, req.Events[0].Timestamp.Unit)
	assert.Equal(t, model.LabelPlausible, req.Claims[0].Label)
	require.Len(t, req.Traces, 1)
}

func TestLoader_RejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "req.json")
	writeFile(t, jsonPath, `{"subject": "x", "evnts": []}`)
	_, err := NewLoader(nil, 0).LoadRequest(jsonPath)
	assert.Error(t, err)

	yamlPath := filepath.Join(dir, "req.yaml")
	writeFile(t, yamlPath, "subject: x\nevnts: []\n")
	_, err = NewLoader(nil, 0).LoadRequest(yamlPath)
	assert.Error(t, err)
}

func TestLoader_InvalidEnumValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "req.yaml")
	writeFile(t, path, `
relations:
  - {source_id: a, target_id: b, kind: PREVENTS, weight: 0.5}
`)
	_, err := NewLoader(nil, 0).LoadRequest(path)
	assert.ErrorIs(t, err, model.ErrUnknownRelationKind)
}

func TestLoader_EmptyYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.yaml")
	writeFile(t, path, "")

	req, err := NewLoader(nil, 0).LoadRequest(path)
	require.NoError(t, err)
	assert.Empty(t, req.Events)
}

func TestLoader_CatalogsResolvedRelativeToRequest(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "shared"), 0755))
	writeFile(t, filepath.Join(dir, "shared", "c14.json"), `{"traces": [{"id": "c14-a", "type": "C14", "confidence": 0.9}]}`)
	writeFile(t, filepath.Join(dir, "req.yaml"), `
trace_catalogs: [shared/c14.json]
traces:
  - {id: local, type: textual, confidence: 0.5}
`)

	req, err := NewLoader(nil, 0).LoadRequest(filepath.Join(dir, "req.yaml"))
	require.NoError(t, err)

	require.Len(t, req.Traces, 2)
	assert.Equal(t, "local", req.Traces[0].ID)
	assert.Equal(t, "c14-a", req.Traces[1].ID)
}

func TestLoader_MissingCatalog(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "req.yaml"), "trace_catalogs: [missing.yaml]\n")

	_, err := NewLoader(nil, 0).LoadRequest(filepath.Join(dir, "req.yaml"))
	assert.Error(t, err)
}

func TestLoader_CachesByModification(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	writeFile(t, path, "traces: [{id: a, type: textual, confidence: 0.5}]\n")

	mc := cache.NewMemoryCache(time.Minute, time.Minute)
	loader := NewLoader(mc, time.Minute)

	traces, err := loader.LoadCatalog(path)
	require.NoError(t, err)
	require.Len(t, traces, 1)
	assert.Equal(t, 1, mc.Len())

	_, err = loader.LoadCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, 1, mc.Len(), "second read should hit the cache")

	writeFile(t, path, "traces: [{id: a, type: textual, confidence: 0.5}, {id: b, type: genetic, confidence: 0.7}]\n")
	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, later, later))

	traces, err = loader.LoadCatalog(path)
	require.NoError(t, err)
	assert.Len(t, traces, 2)
	assert.Equal(t, 2, mc.Len())
}

func TestDecodeRequest_UnsupportedFormat(t *testing.T) {
	_, err := DecodeRequest([]byte("subject = 'x'"), "toml")
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
}
