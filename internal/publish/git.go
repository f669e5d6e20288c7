package publish

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/schemadoc/internal/config"
	"github.com/fyrsmithlabs/schemadoc/internal/logging"
	"github.com/fyrsmithlabs/schemadoc/internal/orchestrator"
)

// ErrDirtyWorktree is returned when the clone has uncommitted changes.
var ErrDirtyWorktree = errors.New("working tree has uncommitted changes")

// GitOptions configures the local clone publisher.
type GitOptions struct {
	RepoPath     string
	BaseBranch   string
	SchemaPath   string
	BranchPrefix string
	AuthorName   string
	AuthorEmail  string
}

// Git publishes a run as a single commit on a new branch of a local clone.
// The clone is returned to its original branch afterwards.
type Git struct {
	opts GitOptions
	now  func() time.Time
}

var _ orchestrator.Publisher = (*Git)(nil)

// NewGit creates a Git publisher.
func NewGit(opts GitOptions) (*Git, error) {
	if opts.RepoPath == "" {
		return nil, &config.ConfigurationError{Field: "git.repo_path", Reason: "path to a local clone is required"}
	}
	if opts.BaseBranch == "" {
		opts.BaseBranch = "main"
	}
	if opts.AuthorName == "" {
		opts.AuthorName = "schemadoc"
	}
	return &Git{opts: opts, now: time.Now}, nil
}

// Name implements orchestrator.Publisher.
func (g *Git) Name() string {
	return config.PublisherGit
}

// Publish implements orchestrator.Publisher. Any failure after the branch
// was created rolls the clone back: written files are removed, the branch
// is deleted and the original HEAD is checked out again.
func (g *Git) Publish(ctx context.Context, summary *orchestrator.RunSummary, docs map[string]orchestrator.Document) (orchestrator.ChangeSet, error) {
	if len(docs) == 0 {
		return orchestrator.ChangeSet{}, errors.New("no documents to publish")
	}
	log := logging.FromContext(ctx)
	ordered := sortedDocs(docs)

	files := make([]string, 0, len(ordered))
	for _, d := range ordered {
		p, err := repoPath(g.opts.SchemaPath, d.Path)
		if err != nil {
			return orchestrator.ChangeSet{}, err
		}
		files = append(files, p)
	}

	repo, err := git.PlainOpenWithOptions(g.opts.RepoPath, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return orchestrator.ChangeSet{}, fmt.Errorf("open repository %s: %w", g.opts.RepoPath, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return orchestrator.ChangeSet{}, fmt.Errorf("open worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return orchestrator.ChangeSet{}, fmt.Errorf("worktree status: %w", err)
	}
	if !status.IsClean() {
		return orchestrator.ChangeSet{}, ErrDirtyWorktree
	}

	head, err := repo.Head()
	if err != nil {
		return orchestrator.ChangeSet{}, fmt.Errorf("resolve HEAD: %w", err)
	}
	base, err := repo.Reference(plumbing.NewBranchReferenceName(g.opts.BaseBranch), true)
	if err != nil {
		return orchestrator.ChangeSet{}, fmt.Errorf("resolve base branch %s: %w", g.opts.BaseBranch, err)
	}

	runID := ""
	if summary != nil {
		runID = summary.RunID
	}
	branch := branchName(g.opts.BranchPrefix, runID)
	branchRef := plumbing.NewBranchReferenceName(branch)
	if _, err := repo.Reference(branchRef, false); err == nil {
		return orchestrator.ChangeSet{}, fmt.Errorf("branch %s already exists", branch)
	}

	if err := wt.Checkout(&git.CheckoutOptions{Branch: branchRef, Hash: base.Hash(), Create: true}); err != nil {
		return orchestrator.ChangeSet{}, fmt.Errorf("create branch %s: %w", branch, err)
	}

	root := wt.Filesystem.Root()
	var created []string
	rollback := func(cause error) (orchestrator.ChangeSet, error) {
		var errs []error
		if err := wt.Reset(&git.ResetOptions{Commit: base.Hash(), Mode: git.HardReset}); err != nil {
			errs = append(errs, fmt.Errorf("reset: %w", err))
		}
		for _, p := range created {
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				errs = append(errs, err)
			}
		}
		if err := wt.Checkout(restoreOptions(head)); err != nil {
			errs = append(errs, fmt.Errorf("restore HEAD: %w", err))
		}
		if err := repo.Storer.RemoveReference(branchRef); err != nil {
			errs = append(errs, fmt.Errorf("delete branch: %w", err))
		}
		if rerr := errors.Join(errs...); rerr != nil {
			log.Warn(ctx, "git rollback incomplete", zap.String("branch", branch), zap.Error(rerr))
		}
		return orchestrator.ChangeSet{}, cause
	}

	for i, d := range ordered {
		if err := ctx.Err(); err != nil {
			return rollback(err)
		}
		abs := filepath.Join(root, filepath.FromSlash(files[i]))
		if _, err := os.Stat(abs); os.IsNotExist(err) {
			created = append(created, abs)
		}
		if err := writeFile(abs, d.Content); err != nil {
			return rollback(fmt.Errorf("write %s: %w", files[i], err))
		}
		if _, err := wt.Add(files[i]); err != nil {
			return rollback(fmt.Errorf("stage %s: %w", files[i], err))
		}
	}

	hash, err := wt.Commit(commitMessage(summary, ordered), &git.CommitOptions{
		Author: &object.Signature{
			Name:  g.opts.AuthorName,
			Email: g.opts.AuthorEmail,
			When:  g.now(),
		},
	})
	if err != nil {
		return rollback(fmt.Errorf("commit: %w", err))
	}

	if err := wt.Checkout(restoreOptions(head)); err != nil {
		log.Warn(ctx, "could not return to the original branch", zap.String("branch", head.Name().Short()), zap.Error(err))
	}

	log.Info(ctx, "committed change set",
		zap.String("branch", branch),
		zap.String("commit", hash.String()),
		zap.Int("files", len(files)),
	)
	return orchestrator.ChangeSet{
		Reference: hash.String(),
		Branch:    branch,
		Commit:    hash.String(),
		Files:     files,
	}, nil
}

func restoreOptions(head *plumbing.Reference) *git.CheckoutOptions {
	if head.Name().IsBranch() {
		return &git.CheckoutOptions{Branch: head.Name(), Force: true}
	}
	return &git.CheckoutOptions{Hash: head.Hash(), Force: true}
}

func writeFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
