package registry

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/schemadoc/internal/ignore"
	"github.com/fyrsmithlabs/schemadoc/internal/schema"
	"github.com/tidwall/gjson"
	"github.com/tidwall/jsonc"
)

const maxSchemaFileSize = 4 << 20

// DirSource serves schemas from .avsc, .json and .proto files under a
// directory. The subject of a file is its path relative to the root without
// extension, with directory separators replaced by '-'. JSON files may
// contain comments and trailing commas. Paths listed in a .schemadocignore
// file at the root are skipped.
type DirSource struct {
	root  string
	files map[string]string
}

// NewDirSource indexes the schema files under dir.
func NewDirSource(dir string) (*DirSource, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("schemas dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("schemas dir %s is not a directory", dir)
	}

	ignored, err := ignore.Load(dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ignore.FileName, err)
	}

	files := make(map[string]string)
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == dir {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") || ignored.Match(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}
		subject, ok := subjectFor(filepath.ToSlash(rel))
		if !ok || ignored.Match(rel, false) {
			return nil
		}
		if prev, ok := files[subject]; ok {
			return fmt.Errorf("subject %s defined by both %s and %s", subject, prev, p)
		}
		files[subject] = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &DirSource{root: dir, files: files}, nil
}

// ListSubjects returns the subjects found under the root, sorted.
func (d *DirSource) ListSubjects(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(d.files))
	for s := range d.files {
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}

// GetSchema reads the file behind subject.
func (d *DirSource) GetSchema(ctx context.Context, subject string) (*Schema, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, ok := d.files[subject]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, subject)
	}
	info, err := os.Stat(p)
	if err != nil {
		return nil, err
	}
	if info.Size() > maxSchemaFileSize {
		return nil, fmt.Errorf("schema file %s too large: %d bytes", p, info.Size())
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}

	rel, err := filepath.Rel(d.root, p)
	if err != nil {
		return nil, err
	}
	return decodeFile(subject, filepath.ToSlash(rel), data), nil
}

// Path returns the file backing subject.
func (d *DirSource) Path(subject string) (string, bool) {
	p, ok := d.files[subject]
	return p, ok
}

// subjectFor maps a slash-separated schema file path onto its subject. ok
// is false for files that are not schemas.
func subjectFor(rel string) (subject string, ok bool) {
	ext := path.Ext(rel)
	if ext != ".avsc" && ext != ".json" && ext != ".proto" {
		return "", false
	}
	return strings.ReplaceAll(strings.TrimSuffix(rel, ext), "/", "-"), true
}

// decodeFile turns the content of a schema file into a Schema, picking the
// format from the extension and, for .json, from the content.
func decodeFile(subject, rel string, data []byte) *Schema {
	s := &Schema{Subject: subject, Version: 1, Path: rel}
	switch path.Ext(rel) {
	case ".proto":
		s.Format = schema.FormatProtobuf
		s.Definition = string(data)
	case ".avsc":
		s.Format = schema.FormatAvro
		s.Definition = string(jsonc.ToJSON(data))
	default:
		clean := jsonc.ToJSON(data)
		s.Format = detectJSONFormat(clean)
		s.Definition = string(clean)
	}
	return s
}

// detectJSONFormat tells Avro schemas saved as .json apart from JSON Schema.
func detectJSONFormat(data []byte) schema.Format {
	switch gjson.GetBytes(data, "type").String() {
	case "record", "enum", "error", "fixed":
		return schema.FormatAvro
	}
	return schema.FormatJSONSchema
}
