// Package publish turns the updated schema documents of a run into one
// change set: a GitHub pull request, a commit on a new branch of a local
// clone, or files staged into an output directory.
//
// Every publisher is all or nothing. A failure leaves no partial branch,
// commit or file behind.
package publish

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/schemadoc/internal/config"
	"github.com/fyrsmithlabs/schemadoc/internal/orchestrator"
	"github.com/fyrsmithlabs/schemadoc/internal/retry"
)

// New creates the publisher selected by output.publisher.
func New(ctx context.Context, cfg *config.Config) (orchestrator.Publisher, error) {
	switch cfg.Output.Publisher {
	case config.PublisherGitHub:
		return NewGitHub(ctx, GitHubOptions{
			Token:        cfg.GitHub.Token,
			Owner:        cfg.GitHub.Owner(),
			Repo:         cfg.GitHub.Name(),
			BaseBranch:   cfg.GitHub.BaseBranch,
			SchemaPath:   cfg.GitHub.SchemaPath,
			BranchPrefix: cfg.GitHub.BranchPrefix,
			Timeout:      cfg.GitHub.Timeout.Duration(),
			Retry:        retry.Config{MaxRetries: cfg.GitHub.MaxRetries},
		})
	case config.PublisherGit:
		return NewGit(GitOptions{
			RepoPath:     cfg.Git.RepoPath,
			BaseBranch:   cfg.Git.BaseBranch,
			SchemaPath:   cfg.Git.SchemaPath,
			BranchPrefix: cfg.Git.BranchPrefix,
			AuthorName:   cfg.Git.AuthorName,
			AuthorEmail:  cfg.Git.AuthorEmail,
		})
	case config.PublisherDirectory:
		return NewDirectory(cfg.Output.OutputDir)
	}
	return nil, &config.ConfigurationError{
		Field:  "output.publisher",
		Reason: fmt.Sprintf("unknown publisher %q", cfg.Output.Publisher),
	}
}

// sortedDocs returns docs ordered by path so every publisher writes and
// reports files deterministically.
func sortedDocs(docs map[string]orchestrator.Document) []orchestrator.Document {
	out := make([]orchestrator.Document, 0, len(docs))
	for _, d := range docs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// repoPath joins a document path under the schema root, using forward
// slashes. Paths that escape the root are rejected.
func repoPath(root, docPath string) (string, error) {
	if docPath == "" || !filepath.IsLocal(filepath.FromSlash(docPath)) {
		return "", fmt.Errorf("document path %q escapes the schema root", docPath)
	}
	return path.Join(root, docPath), nil
}

// branchName derives the change-set branch from the run id.
func branchName(prefix, runID string) string {
	id := runID
	if len(id) > 8 {
		id = id[:8]
	}
	return prefix + "docs-" + id
}

func countChanges(docs []orchestrator.Document) int {
	n := 0
	for _, d := range docs {
		n += len(d.Changes)
	}
	return n
}

func commitTitle(docs []orchestrator.Document) string {
	n := countChanges(docs)
	return fmt.Sprintf("docs(schemas): document %d %s across %d %s",
		n, plural(n, "field", "fields"), len(docs), plural(len(docs), "schema", "schemas"))
}

// commitMessage is the title followed by one line per file.
func commitMessage(summary *orchestrator.RunSummary, docs []orchestrator.Document) string {
	var b strings.Builder
	b.WriteString(commitTitle(docs))
	b.WriteString("\n\n")
	for _, d := range docs {
		fmt.Fprintf(&b, "- %s: %d %s\n", d.Subject, len(d.Changes), plural(len(d.Changes), "field", "fields"))
	}
	if summary != nil {
		fmt.Fprintf(&b, "\nRun: %s\n", summary.RunID)
	}
	return b.String()
}

// pullRequestBody renders a markdown overview of every change.
func pullRequestBody(summary *orchestrator.RunSummary, docs []orchestrator.Document) string {
	var b strings.Builder
	b.WriteString("## Schema documentation\n\n")
	if summary != nil {
		fmt.Fprintf(&b, "Generated by run `%s`", summary.RunID)
		if summary.Provider != "" {
			fmt.Fprintf(&b, " with %s", summary.Provider)
			if summary.Model != "" {
				fmt.Fprintf(&b, " (%s)", summary.Model)
			}
		}
		b.WriteString(".\n\n")
	}

	b.WriteString("| Subject | File | Fields |\n|---|---|---|\n")
	for _, d := range docs {
		fmt.Fprintf(&b, "| `%s` | `%s` | %d |\n", d.Subject, d.Path, len(d.Changes))
	}

	for _, d := range docs {
		fmt.Fprintf(&b, "\n### %s\n\n", d.Subject)
		for _, c := range d.Changes {
			fmt.Fprintf(&b, "- `%s` (%s): %s\n", c.Path, c.Confidence, c.After)
		}
	}

	if summary != nil && summary.ElementsFailed > 0 {
		fmt.Fprintf(&b, "\n%d %s could not be documented and need a manual description.\n",
			summary.ElementsFailed, plural(summary.ElementsFailed, "field", "fields"))
	}
	return b.String()
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
