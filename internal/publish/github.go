package publish

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/fyrsmithlabs/schemadoc/internal/config"
	"github.com/fyrsmithlabs/schemadoc/internal/logging"
	"github.com/fyrsmithlabs/schemadoc/internal/orchestrator"
	"github.com/fyrsmithlabs/schemadoc/internal/retry"
)

// GitHubOptions configures the pull request publisher.
type GitHubOptions struct {
	Token        config.Secret
	Owner        string
	Repo         string
	BaseBranch   string
	SchemaPath   string
	BranchPrefix string

	// Timeout bounds the whole publication. Zero means no extra deadline.
	Timeout time.Duration
	Retry   retry.Config

	// Client replaces the token-authenticated client, mainly in tests.
	Client *github.Client
}

// GitHub publishes a run as a single pull request built with the Git Data
// API: one tree, one commit, one branch, one pull request.
type GitHub struct {
	client *github.Client
	opts   GitHubOptions
}

var _ orchestrator.Publisher = (*GitHub)(nil)

// NewGitHub creates a GitHub publisher.
func NewGitHub(ctx context.Context, opts GitHubOptions) (*GitHub, error) {
	if opts.Owner == "" || opts.Repo == "" {
		return nil, &config.ConfigurationError{Field: "github.repo", Reason: "must be owner/name"}
	}
	if opts.BaseBranch == "" {
		opts.BaseBranch = "main"
	}
	client := opts.Client
	if client == nil {
		if !opts.Token.IsSet() {
			return nil, &config.ConfigurationError{Field: "github.token", Reason: "GitHub token not set"}
		}
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token.Value()})
		client = github.NewClient(oauth2.NewClient(ctx, ts))
	}
	return &GitHub{client: client, opts: opts}, nil
}

// Name implements orchestrator.Publisher.
func (g *GitHub) Name() string {
	return config.PublisherGitHub
}

// Publish implements orchestrator.Publisher. When the pull request cannot
// be opened the new branch is deleted again.
func (g *GitHub) Publish(ctx context.Context, summary *orchestrator.RunSummary, docs map[string]orchestrator.Document) (orchestrator.ChangeSet, error) {
	if len(docs) == 0 {
		return orchestrator.ChangeSet{}, errors.New("no documents to publish")
	}
	if g.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.opts.Timeout)
		defer cancel()
	}
	log := logging.FromContext(ctx)
	ordered := sortedDocs(docs)

	entries := make([]*github.TreeEntry, 0, len(ordered))
	files := make([]string, 0, len(ordered))
	for _, d := range ordered {
		p, err := repoPath(g.opts.SchemaPath, d.Path)
		if err != nil {
			return orchestrator.ChangeSet{}, err
		}
		entries = append(entries, &github.TreeEntry{
			Path:    github.String(p),
			Mode:    github.String("100644"),
			Type:    github.String("blob"),
			Content: github.String(d.Content),
		})
		files = append(files, p)
	}

	runID := ""
	if summary != nil {
		runID = summary.RunID
	}
	branch := branchName(g.opts.BranchPrefix, runID)

	var base *github.Reference
	err := g.call(ctx, "get base branch", func(ctx context.Context) (*github.Response, error) {
		var resp *github.Response
		var err error
		base, resp, err = g.client.Git.GetRef(ctx, g.opts.Owner, g.opts.Repo, "refs/heads/"+g.opts.BaseBranch)
		return resp, err
	})
	if err != nil {
		return orchestrator.ChangeSet{}, err
	}
	parentSHA := base.GetObject().GetSHA()

	var parent *github.Commit
	err = g.call(ctx, "get base commit", func(ctx context.Context) (*github.Response, error) {
		var resp *github.Response
		var err error
		parent, resp, err = g.client.Git.GetCommit(ctx, g.opts.Owner, g.opts.Repo, parentSHA)
		return resp, err
	})
	if err != nil {
		return orchestrator.ChangeSet{}, err
	}

	var tree *github.Tree
	err = g.call(ctx, "create tree", func(ctx context.Context) (*github.Response, error) {
		var resp *github.Response
		var err error
		tree, resp, err = g.client.Git.CreateTree(ctx, g.opts.Owner, g.opts.Repo, parent.GetTree().GetSHA(), entries)
		return resp, err
	})
	if err != nil {
		return orchestrator.ChangeSet{}, err
	}

	var commit *github.Commit
	err = g.call(ctx, "create commit", func(ctx context.Context) (*github.Response, error) {
		var resp *github.Response
		var err error
		commit, resp, err = g.client.Git.CreateCommit(ctx, g.opts.Owner, g.opts.Repo, &github.Commit{
			Message: github.String(commitMessage(summary, ordered)),
			Tree:    &github.Tree{SHA: tree.SHA},
			Parents: []*github.Commit{{SHA: github.String(parentSHA)}},
		}, nil)
		return resp, err
	})
	if err != nil {
		return orchestrator.ChangeSet{}, err
	}

	err = g.call(ctx, "create branch", func(ctx context.Context) (*github.Response, error) {
		_, resp, err := g.client.Git.CreateRef(ctx, g.opts.Owner, g.opts.Repo, &github.Reference{
			Ref:    github.String("refs/heads/" + branch),
			Object: &github.GitObject{SHA: commit.SHA},
		})
		return resp, err
	})
	if err != nil {
		return orchestrator.ChangeSet{}, err
	}

	var pr *github.PullRequest
	err = g.call(ctx, "create pull request", func(ctx context.Context) (*github.Response, error) {
		var resp *github.Response
		var err error
		pr, resp, err = g.client.PullRequests.Create(ctx, g.opts.Owner, g.opts.Repo, &github.NewPullRequest{
			Title: github.String(commitTitle(ordered)),
			Head:  github.String(branch),
			Base:  github.String(g.opts.BaseBranch),
			Body:  github.String(pullRequestBody(summary, ordered)),
		})
		return resp, err
	})
	if err != nil {
		cleanupCtx := context.WithoutCancel(ctx)
		if _, derr := g.client.Git.DeleteRef(cleanupCtx, g.opts.Owner, g.opts.Repo, "refs/heads/"+branch); derr != nil {
			log.Warn(ctx, "failed to delete branch after pull request failure",
				zap.String("branch", branch),
				zap.Error(derr),
			)
		}
		return orchestrator.ChangeSet{}, err
	}

	log.Info(ctx, "opened pull request",
		zap.String("url", pr.GetHTMLURL()),
		zap.String("branch", branch),
		zap.Int("files", len(files)),
	)
	return orchestrator.ChangeSet{
		Reference: pr.GetHTMLURL(),
		Branch:    branch,
		Commit:    commit.GetSHA(),
		Files:     files,
	}, nil
}

// call runs one GitHub API operation under the retry policy.
func (g *GitHub) call(ctx context.Context, op string, fn func(ctx context.Context) (*github.Response, error)) error {
	err := retry.Do(ctx, g.opts.Retry, "github "+op, func(ctx context.Context) error {
		resp, err := fn(ctx)
		if err != nil {
			return retry.FromGitHub(resp, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
