package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/fyrsmithlabs/schemadoc/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
}

func TestDirSource(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "user-events-value.json"), `{
  // emitted by the profile service
  "type": "object",
  "properties": {"id": {"type": "string"},},
}`)
	writeFile(t, filepath.Join(dir, "orders", "created.avsc"), `{"type":"record","name":"OrderCreated","fields":[]}`)
	writeFile(t, filepath.Join(dir, "legacy.json"), `{"type":"record","name":"Legacy","fields":[]}`)
	writeFile(t, filepath.Join(dir, "payments.proto"), `syntax = "proto3"; message Payment {}`)
	writeFile(t, filepath.Join(dir, "README.md"), "# schemas")
	writeFile(t, filepath.Join(dir, ".git", "config.json"), "{}")

	src, err := NewDirSource(dir)
	require.NoError(t, err)
	ctx := context.Background()

	subjects, err := src.ListSubjects(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"legacy", "orders-created", "payments", "user-events-value"}, subjects)

	js, err := src.GetSchema(ctx, "user-events-value")
	require.NoError(t, err)
	assert.Equal(t, schema.FormatJSONSchema, js.Format)
	assert.True(t, gjson.Valid(js.Definition), "comments and trailing commas are stripped")
	assert.Equal(t, "user-events-value.json", js.Path)
	assert.Equal(t, "string", gjson.Get(js.Definition, "properties.id.type").String())

	avro, err := src.GetSchema(ctx, "orders-created")
	require.NoError(t, err)
	assert.Equal(t, schema.FormatAvro, avro.Format)
	assert.Equal(t, "orders/created.avsc", avro.Path)

	legacy, err := src.GetSchema(ctx, "legacy")
	require.NoError(t, err)
	assert.Equal(t, schema.FormatAvro, legacy.Format)

	proto, err := src.GetSchema(ctx, "payments")
	require.NoError(t, err)
	assert.Equal(t, schema.FormatProtobuf, proto.Format)

	_, err = src.GetSchema(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	p, ok := src.Path("orders-created")
	assert.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "orders", "created.avsc"), p)
}

func TestDirSource_Errors(t *testing.T) {
	_, err := NewDirSource(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.avsc"), "{}")
	writeFile(t, filepath.Join(dir, "a.json"), "{}")
	_, err = NewDirSource(dir)
	assert.ErrorContains(t, err, "defined by both")

	file := filepath.Join(t.TempDir(), "f.avsc")
	writeFile(t, file, "{}")
	_, err = NewDirSource(file)
	assert.ErrorContains(t, err, "not a directory")
}

func TestDirSource_Cancelled(t *testing.T) {
	src, err := NewDirSource(t.TempDir())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src.ListSubjects(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDirSource_IgnoreFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".schemadocignore"), "drafts/\n*.tmp.avsc\n")
	writeFile(t, filepath.Join(dir, "user.avsc"), `{"type":"record","name":"User","fields":[]}`)
	writeFile(t, filepath.Join(dir, "user.tmp.avsc"), `{"type":"record","name":"UserTmp","fields":[]}`)
	writeFile(t, filepath.Join(dir, "drafts", "order.avsc"), `{"type":"record","name":"Order","fields":[]}`)

	src, err := NewDirSource(dir)
	require.NoError(t, err)
	subjects, err := src.ListSubjects(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"user"}, subjects)
}
