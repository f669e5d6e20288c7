package publish

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/schemadoc/internal/config"
	"github.com/fyrsmithlabs/schemadoc/internal/logging"
	"github.com/fyrsmithlabs/schemadoc/internal/orchestrator"
)

// Directory writes updated schemas under an output directory. Files are
// staged in a sibling temporary directory first and only renamed into
// place once every file was written.
type Directory struct {
	dir string
}

var _ orchestrator.Publisher = (*Directory)(nil)

// NewDirectory creates a Directory publisher rooted at dir.
func NewDirectory(dir string) (*Directory, error) {
	if dir == "" {
		return nil, &config.ConfigurationError{Field: "output.output_dir", Reason: "directory is required"}
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, &config.ConfigurationError{Field: "output.output_dir", Reason: "invalid path", Err: err}
	}
	return &Directory{dir: abs}, nil
}

// Name implements orchestrator.Publisher.
func (d *Directory) Name() string {
	return config.PublisherDirectory
}

// Publish implements orchestrator.Publisher.
func (d *Directory) Publish(ctx context.Context, _ *orchestrator.RunSummary, docs map[string]orchestrator.Document) (orchestrator.ChangeSet, error) {
	if len(docs) == 0 {
		return orchestrator.ChangeSet{}, errors.New("no documents to publish")
	}
	ordered := sortedDocs(docs)
	files := make([]string, 0, len(ordered))
	for _, doc := range ordered {
		p, err := repoPath("", doc.Path)
		if err != nil {
			return orchestrator.ChangeSet{}, err
		}
		files = append(files, p)
	}

	parent := filepath.Dir(d.dir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return orchestrator.ChangeSet{}, fmt.Errorf("create %s: %w", parent, err)
	}
	staging, err := os.MkdirTemp(parent, ".schemadoc-*")
	if err != nil {
		return orchestrator.ChangeSet{}, fmt.Errorf("create staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	for i, doc := range ordered {
		if err := ctx.Err(); err != nil {
			return orchestrator.ChangeSet{}, err
		}
		if err := writeFile(filepath.Join(staging, filepath.FromSlash(files[i])), doc.Content); err != nil {
			return orchestrator.ChangeSet{}, fmt.Errorf("stage %s: %w", files[i], err)
		}
	}

	// Check every target before the first rename so a conflict leaves
	// the output directory untouched.
	for _, f := range files {
		target := filepath.Join(d.dir, filepath.FromSlash(f))
		if info, err := os.Stat(target); err == nil && info.IsDir() {
			return orchestrator.ChangeSet{}, fmt.Errorf("%s is a directory", target)
		}
	}
	for _, f := range files {
		src := filepath.Join(staging, filepath.FromSlash(f))
		target := filepath.Join(d.dir, filepath.FromSlash(f))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return orchestrator.ChangeSet{}, fmt.Errorf("create %s: %w", filepath.Dir(target), err)
		}
		if err := os.Rename(src, target); err != nil {
			return orchestrator.ChangeSet{}, fmt.Errorf("move %s into place: %w", f, err)
		}
	}

	logging.FromContext(ctx).Info(ctx, "wrote change set",
		zap.String("dir", d.dir),
		zap.Int("files", len(files)),
	)
	return orchestrator.ChangeSet{Reference: d.dir, Files: files}, nil
}
