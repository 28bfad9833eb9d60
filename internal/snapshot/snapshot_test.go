package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"navtree/api/internal/store"
	"navtree/api/internal/tree"
)

type memoryUploader struct {
	objects map[string][]byte
	types   map[string]string
	err     error
}

func (m *memoryUploader) Upload(_ context.Context, key string, body []byte, contentType string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	if m.objects == nil {
		m.objects = map[string][]byte{}
		m.types = map[string]string{}
	}
	m.objects[key] = body
	m.types[key] = contentType
	return "mem://" + key, nil
}

func TestKey(t *testing.T) {
	at := time.Date(2025, 2, 11, 9, 30, 0, 0, time.UTC)
	assert.Equal(t, "menus/default/20250211T093000Z-abc.json", Key("", at, "abc"))
	assert.Equal(t, "menus/acme/20250211T093000Z-abc.json", Key("acme", at, "abc"))
	assert.Equal(t, "menus/a%2Fb/20250211T093000Z-abc.json", Key("a/b", at, "abc"))
}

func TestExportUploadsTree(t *testing.T) {
	parent := int64(1)
	forest := tree.Assemble([]store.MenuItem{
		{ID: 1, Name: "Home", IsActive: true},
		{ID: 2, Name: "Docs", ParentID: &parent, IsActive: true},
	})

	up := &memoryUploader{}
	e := NewExporter(up)
	e.now = func() time.Time { return time.Date(2025, 2, 11, 9, 30, 0, 0, time.UTC) }
	e.newID = func() string { return "fixed" }

	res, err := e.Export(context.Background(), "acme", forest)
	require.NoError(t, err)
	assert.Equal(t, "menus/acme/20250211T093000Z-fixed.json", res.Key)
	assert.Equal(t, "mem://"+res.Key, res.Location)
	assert.Equal(t, 2, res.Count)
	assert.Equal(t, "application/json", up.types[res.Key])

	var doc Document
	require.NoError(t, json.Unmarshal(up.objects[res.Key], &doc))
	assert.Equal(t, "acme", doc.Tenant)
	assert.Equal(t, 2, doc.Count)
	require.Len(t, doc.Tree, 1)
	require.Len(t, doc.Tree[0].Children, 1)
	assert.Equal(t, "Docs", doc.Tree[0].Children[0].Name)
}

func TestExportPropagatesUploadError(t *testing.T) {
	e := NewExporter(&memoryUploader{err: errors.New("bucket gone")})
	_, err := e.Export(context.Background(), "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket gone")
}

func TestNewMinioUploaderNeedsBucket(t *testing.T) {
	_, err := NewMinioUploader(context.Background(), Config{Endpoint: "localhost:9000"})
	assert.Error(t, err)
}
