package registry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/fyrsmithlabs/schemadoc/internal/ignore"
	"github.com/fyrsmithlabs/schemadoc/internal/logging"
	"github.com/fyrsmithlabs/schemadoc/internal/retry"
)

// RepoConfig configures a RepoSource.
type RepoConfig struct {
	Token      string
	Owner      string
	Repo       string
	Ref        string
	SchemaPath string
	Retry      retry.Config

	// Client replaces the token-authenticated client.
	Client *github.Client
}

// RepoSource serves schema files stored in a GitHub repository under a
// schema path, named the same way as DirSource names files on disk. The
// tree is listed once, on the first ListSubjects call.
type RepoSource struct {
	client *github.Client
	cfg    RepoConfig

	mu    sync.Mutex
	files map[string]string // subject -> repository path
}

// NewRepoSource creates a source reading cfg.Owner/cfg.Repo at cfg.Ref.
func NewRepoSource(ctx context.Context, cfg RepoConfig) (*RepoSource, error) {
	if cfg.Owner == "" || cfg.Repo == "" {
		return nil, errors.New("repository must be owner/name")
	}
	cfg.SchemaPath = strings.Trim(path.Clean("/"+cfg.SchemaPath), "/")
	client := cfg.Client
	if client == nil {
		if cfg.Token == "" {
			return nil, errors.New("GitHub token required")
		}
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
		client = github.NewClient(oauth2.NewClient(ctx, ts))
	}
	return &RepoSource{client: client, cfg: cfg}, nil
}

// Ping checks that the repository is visible with the configured token.
func (r *RepoSource) Ping(ctx context.Context) error {
	err := r.call(ctx, "github.get_repository", func(ctx context.Context) (*github.Response, error) {
		_, resp, err := r.client.Repositories.Get(ctx, r.cfg.Owner, r.cfg.Repo)
		return resp, err
	})
	if err != nil {
		return fmt.Errorf("repository %s/%s unreachable: %w", r.cfg.Owner, r.cfg.Repo, err)
	}
	return nil
}

// ListSubjects walks the schema path and returns the subjects found,
// sorted. Paths matched by a .schemadocignore file at the schema path are
// skipped.
func (r *RepoSource) ListSubjects(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.files == nil {
		files, err := r.index(ctx)
		if err != nil {
			return nil, err
		}
		r.files = files
	}
	out := make([]string, 0, len(r.files))
	for s := range r.files {
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}

// GetSchema downloads the file behind subject.
func (r *RepoSource) GetSchema(ctx context.Context, subject string) (*Schema, error) {
	r.mu.Lock()
	p, ok := r.files[subject]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, subject)
	}

	file, _, err := r.contents(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("failed to get schema for %s: %w", subject, err)
	}
	if file == nil {
		return nil, fmt.Errorf("%s is not a file", p)
	}
	if file.GetSize() > maxSchemaFileSize {
		return nil, fmt.Errorf("schema file %s too large: %d bytes", p, file.GetSize())
	}
	content, err := file.GetContent()
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", p, err)
	}
	return decodeFile(subject, r.rel(p), []byte(content)), nil
}

func (r *RepoSource) index(ctx context.Context) (map[string]string, error) {
	ignored, err := r.loadIgnore(ctx)
	if err != nil {
		return nil, err
	}

	files := make(map[string]string)
	var walk func(dir string) error
	walk = func(dir string) error {
		_, entries, err := r.contents(ctx, dir)
		if err != nil {
			return fmt.Errorf("list %s: %w", dir, err)
		}
		for _, e := range entries {
			p := e.GetPath()
			rel := r.rel(p)
			switch e.GetType() {
			case "dir":
				if strings.HasPrefix(e.GetName(), ".") || ignored.Match(rel, true) {
					continue
				}
				if err := walk(p); err != nil {
					return err
				}
			case "file":
				subject, ok := subjectFor(rel)
				if !ok || ignored.Match(rel, false) {
					continue
				}
				if prev, dup := files[subject]; dup {
					return fmt.Errorf("subject %s defined by both %s and %s", subject, prev, p)
				}
				files[subject] = p
			}
		}
		return nil
	}
	if err := walk(r.cfg.SchemaPath); err != nil {
		return nil, err
	}

	logging.FromContext(ctx).Debug(ctx, "indexed repository schemas",
		zap.String("repo", r.cfg.Owner+"/"+r.cfg.Repo),
		zap.String("ref", r.cfg.Ref),
		zap.String("path", r.cfg.SchemaPath),
		zap.Int("files", len(files)),
	)
	return files, nil
}

// loadIgnore reads the ignore file at the schema path. A missing file
// ignores nothing.
func (r *RepoSource) loadIgnore(ctx context.Context) (*ignore.Matcher, error) {
	file, _, err := r.contents(ctx, path.Join(r.cfg.SchemaPath, ignore.FileName))
	if errors.Is(err, ErrNotFound) {
		return &ignore.Matcher{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ignore.FileName, err)
	}
	content, err := file.GetContent()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ignore.FileName, err)
	}
	return ignore.Parse(strings.NewReader(content))
}

func (r *RepoSource) contents(ctx context.Context, p string) (file *github.RepositoryContent, dir []*github.RepositoryContent, err error) {
	var opts *github.RepositoryContentGetOptions
	if r.cfg.Ref != "" {
		opts = &github.RepositoryContentGetOptions{Ref: r.cfg.Ref}
	}
	err = r.call(ctx, "github.get_contents", func(ctx context.Context) (*github.Response, error) {
		var resp *github.Response
		var err error
		file, dir, resp, err = r.client.Repositories.GetContents(ctx, r.cfg.Owner, r.cfg.Repo, p, opts)
		return resp, err
	})
	return file, dir, err
}

// call runs one API operation under the retry policy and maps 404 and
// authentication failures onto ErrNotFound and ErrUnauthorized.
func (r *RepoSource) call(ctx context.Context, op string, fn func(ctx context.Context) (*github.Response, error)) error {
	var status int
	err := retry.Do(ctx, r.cfg.Retry, op, func(ctx context.Context) error {
		resp, err := fn(ctx)
		if resp != nil && resp.Response != nil {
			status = resp.Response.StatusCode
		}
		return retry.FromGitHub(resp, err)
	})
	if err == nil {
		return nil
	}
	switch status {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case http.StatusUnauthorized, http.StatusForbidden:
		if !retry.IsRetryable(err) {
			return fmt.Errorf("%w: %w", ErrUnauthorized, err)
		}
	}
	return err
}

// rel returns p relative to the schema path.
func (r *RepoSource) rel(p string) string {
	if r.cfg.SchemaPath == "" {
		return p
	}
	return strings.TrimPrefix(p, r.cfg.SchemaPath+"/")
}
