package publish

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/schemadoc/internal/orchestrator"
)

// initRepo creates a clone with one commit on main holding files.
func initRepo(t *testing.T, files map[string]string) (string, *git.Repository) {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInitWithOptions(dir, &git.PlainInitOptions{
		InitOptions: git.InitOptions{DefaultBranch: plumbing.NewBranchReferenceName("main")},
	})
	require.NoError(t, err)

	wt, err := repo.Worktree()
	require.NoError(t, err)
	for name, content := range files {
		require.NoError(t, writeFile(filepath.Join(dir, filepath.FromSlash(name)), content))
		_, err := wt.Add(name)
		require.NoError(t, err)
	}
	_, err = wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)
	return dir, repo
}

func newTestGit(t *testing.T, dir string) *Git {
	t.Helper()
	g, err := NewGit(GitOptions{
		RepoPath:     dir,
		BaseBranch:   "main",
		SchemaPath:   "schemas",
		BranchPrefix: "schemadoc/",
		AuthorName:   "schemadoc",
		AuthorEmail:  "schemadoc@example.com",
	})
	require.NoError(t, err)
	return g
}

func fileAt(t *testing.T, repo *git.Repository, branch, path string) string {
	t.Helper()
	ref, err := repo.Reference(plumbing.NewBranchReferenceName(branch), true)
	require.NoError(t, err)
	commit, err := repo.CommitObject(ref.Hash())
	require.NoError(t, err)
	f, err := commit.File(path)
	require.NoError(t, err)
	content, err := f.Contents()
	require.NoError(t, err)
	return content
}

func TestGit_PublishCommitsOnNewBranch(t *testing.T) {
	dir, repo := initRepo(t, map[string]string{
		"README.md":                      "schemas\n",
		"schemas/user/events/value.json": `{"type":"object"}`,
	})
	g := newTestGit(t, dir)

	cs, err := g.Publish(context.Background(), testSummary(), testDocs())
	require.NoError(t, err)

	assert.Equal(t, "schemadoc/docs-run-1", cs.Branch)
	assert.Equal(t, cs.Commit, cs.Reference)
	assert.Len(t, cs.Commit, 40)
	assert.Equal(t, []string{"schemas/order/created/value.avsc", "schemas/user/events/value.json"}, cs.Files)

	assert.Equal(t, userEventsDoc, fileAt(t, repo, cs.Branch, "schemas/user/events/value.json"))
	assert.Equal(t, orderCreatedDoc, fileAt(t, repo, cs.Branch, "schemas/order/created/value.avsc"))

	commit, err := repo.CommitObject(plumbing.NewHash(cs.Commit))
	require.NoError(t, err)
	assert.Equal(t, "schemadoc", commit.Author.Name)
	assert.Contains(t, commit.Message, "document 3 fields across 2 schemas")

	head, err := repo.Head()
	require.NoError(t, err)
	assert.Equal(t, "main", head.Name().Short(), "clone is returned to its original branch")
	assert.Equal(t, `{"type":"object"}`, fileAt(t, repo, "main", "schemas/user/events/value.json"))
}

func TestGit_RollsBackOnFailure(t *testing.T) {
	// schemas/user is a file, so writing schemas/user/events/value.json
	// fails after order/created/value.avsc was already written.
	dir, repo := initRepo(t, map[string]string{
		"schemas/user": "not a directory\n",
	})
	g := newTestGit(t, dir)

	_, err := g.Publish(context.Background(), testSummary(), testDocs())
	require.Error(t, err)

	_, err = repo.Reference(plumbing.NewBranchReferenceName("schemadoc/docs-run-1"), false)
	assert.ErrorIs(t, err, plumbing.ErrReferenceNotFound)

	head, err := repo.Head()
	require.NoError(t, err)
	assert.Equal(t, "main", head.Name().Short())

	_, err = os.Stat(filepath.Join(dir, "schemas", "order", "created", "value.avsc"))
	assert.True(t, os.IsNotExist(err), "written files are removed")

	wt, err := repo.Worktree()
	require.NoError(t, err)
	status, err := wt.Status()
	require.NoError(t, err)
	assert.True(t, status.IsClean())
}

func TestGit_RejectsDirtyWorktree(t *testing.T) {
	dir, _ := initRepo(t, map[string]string{"README.md": "x\n"})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("changed\n"), 0o644))

	_, err := newTestGit(t, dir).Publish(context.Background(), testSummary(), testDocs())
	assert.ErrorIs(t, err, ErrDirtyWorktree)
}

func TestGit_RejectsExistingBranch(t *testing.T) {
	dir, repo := initRepo(t, map[string]string{"README.md": "x\n"})
	head, err := repo.Head()
	require.NoError(t, err)
	require.NoError(t, repo.Storer.SetReference(
		plumbing.NewHashReference(plumbing.NewBranchReferenceName("schemadoc/docs-run-1"), head.Hash())))

	_, err = newTestGit(t, dir).Publish(context.Background(), testSummary(), testDocs())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestGit_MissingBaseBranch(t *testing.T) {
	dir, _ := initRepo(t, map[string]string{"README.md": "x\n"})
	g := newTestGit(t, dir)
	g.opts.BaseBranch = "develop"

	_, err := g.Publish(context.Background(), testSummary(), testDocs())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolve base branch develop")
}

func TestGit_EmptyDocuments(t *testing.T) {
	dir, _ := initRepo(t, map[string]string{"README.md": "x\n"})
	_, err := newTestGit(t, dir).Publish(context.Background(), testSummary(), map[string]orchestrator.Document{})
	assert.Error(t, err)
}
