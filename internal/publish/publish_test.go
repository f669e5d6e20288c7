package publish

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/schemadoc/internal/config"
	"github.com/fyrsmithlabs/schemadoc/internal/orchestrator"
	"github.com/fyrsmithlabs/schemadoc/internal/schema"
)

const userEventsDoc = `{
  "type": "object",
  "properties": {
    "user_id": {"type": "string", "description": "Unique identifier of the user who triggered the event."},
    "event_type": {"type": "string", "description": "Kind of interaction recorded for the user."}
  }
}
`

const orderCreatedDoc = `{"type":"record","name":"OrderCreated","fields":[{"name":"order_id","type":"string","doc":"Identifier assigned to the order at checkout."}]}
`

func testSummary() *orchestrator.RunSummary {
	s := orchestrator.NewRunSummary("run-1", false)
	s.Provider = "openai"
	s.Model = "gpt-4o-mini"
	return s
}

func testDocs() map[string]orchestrator.Document {
	return map[string]orchestrator.Document{
		"user-events-value": {
			Subject: "user-events-value",
			Format:  schema.FormatJSONSchema,
			Path:    "user/events/value.json",
			Content: userEventsDoc,
			Changes: []schema.Change{
				{Path: "user_id", After: "Unique identifier of the user who triggered the event.", Confidence: schema.ConfidenceHigh},
				{Path: "event_type", After: "Kind of interaction recorded for the user.", Confidence: schema.ConfidenceMedium},
			},
		},
		"order-created-value": {
			Subject: "order-created-value",
			Format:  schema.FormatAvro,
			Path:    "order/created/value.avsc",
			Content: orderCreatedDoc,
			Changes: []schema.Change{
				{Path: "OrderCreated.order_id", After: "Identifier assigned to the order at checkout.", Confidence: schema.ConfidenceHigh},
			},
		},
	}
}

func TestNew_SelectsPublisher(t *testing.T) {
	cfg, err := config.Defaults()
	require.NoError(t, err)

	cfg.Output.Publisher = config.PublisherDirectory
	cfg.Output.OutputDir = t.TempDir()
	p, err := New(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &Directory{}, p)

	cfg.Output.Publisher = config.PublisherGit
	cfg.Git.RepoPath = t.TempDir()
	p, err = New(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &Git{}, p)

	cfg.Output.Publisher = config.PublisherGitHub
	cfg.GitHub.Token = "ghp_x"
	cfg.GitHub.Repo = "acme/schemas"
	p, err = New(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &GitHub{}, p)

	cfg.Output.Publisher = "s3"
	_, err = New(context.Background(), cfg)
	var cfgErr *config.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "output.publisher", cfgErr.Field)
}

func TestSortedDocs(t *testing.T) {
	docs := sortedDocs(testDocs())
	require.Len(t, docs, 2)
	assert.Equal(t, "order/created/value.avsc", docs[0].Path)
	assert.Equal(t, "user/events/value.json", docs[1].Path)
}

func TestRepoPath(t *testing.T) {
	tests := []struct {
		root, doc string
		want      string
		wantErr   bool
	}{
		{"schemas", "user/events/value.json", "schemas/user/events/value.json", false},
		{"", "user/events/value.json", "user/events/value.json", false},
		{"schemas/", "a.avsc", "schemas/a.avsc", false},
		{"schemas", "../outside.json", "", true},
		{"schemas", "/etc/passwd", "", true},
		{"schemas", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.doc, func(t *testing.T) {
			got, err := repoPath(tt.root, tt.doc)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBranchName(t *testing.T) {
	assert.Equal(t, "schemadoc/docs-run-1", branchName("schemadoc/", "run-1"))
	assert.Equal(t, "schemadoc/docs-0f8fad5b", branchName("schemadoc/", "0f8fad5b-d9cb-469f-a165-70867728950e"))
}

func TestCommitMessage(t *testing.T) {
	docs := sortedDocs(testDocs())
	msg := commitMessage(testSummary(), docs)
	assert.Equal(t, "docs(schemas): document 3 fields across 2 schemas\n\n"+
		"- order-created-value: 1 field\n"+
		"- user-events-value: 2 fields\n"+
		"\nRun: run-1\n", msg)

	assert.Equal(t, "docs(schemas): document 1 field across 1 schema", commitTitle(docs[:1]))
}

func TestPullRequestBody(t *testing.T) {
	summary := testSummary()
	summary.ElementsFailed = 1
	body := pullRequestBody(summary, sortedDocs(testDocs()))

	assert.Contains(t, body, "Generated by run `run-1` with openai (gpt-4o-mini).")
	assert.Contains(t, body, "| `order-created-value` | `order/created/value.avsc` | 1 |")
	assert.Contains(t, body, "- `user_id` (high): Unique identifier of the user who triggered the event.")
	assert.Contains(t, body, "1 field could not be documented")
}
