package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/schemadoc/internal/config"
)

var repoFlags struct {
	repo          string
	schemaPath    string
	baseBranch    string
	include       []string
	exclude       []string
	provider      string
	model         string
	minConfidence string
	dryRun        bool
}

// runFromRepoCmd documents the schema files kept in a GitHub repository
var runFromRepoCmd = &cobra.Command{
	Use:   "run-from-repo",
	Short: "Document the schema files of a GitHub repository and open a pull request",
	Long: `Read .avsc, .json and .proto files under the schema path of a GitHub
repository, document their undocumented fields and open a single pull
request that updates the files in place. No schema registry is needed.

Examples:
  # Preview the changes for the order schemas
  schemadoc run-from-repo --github-repo acme/schemas --schema-path schemas -i 'orders-*' --dry-run

  # Open a pull request against the develop branch
  GITHUB_TOKEN=... schemadoc run-from-repo --github-repo acme/schemas --base-branch develop`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return executeRun(cmd, repoOverrides(cmd))
	},
}

func init() {
	f := runFromRepoCmd.Flags()
	f.StringVar(&repoFlags.repo, "github-repo", "", "repository holding the schemas, as owner/name")
	f.StringVar(&repoFlags.schemaPath, "schema-path", "", "directory of the schema files within the repository")
	f.StringVar(&repoFlags.baseBranch, "base-branch", "", "branch to read from and open the pull request against")
	f.StringArrayVarP(&repoFlags.include, "include", "i", nil, "subject glob to include (repeatable)")
	f.StringArrayVarP(&repoFlags.exclude, "exclude", "e", nil, "subject glob to exclude (repeatable)")
	f.StringVarP(&repoFlags.provider, "provider", "p", "", "language model provider")
	f.StringVarP(&repoFlags.model, "model", "m", "", "model name (default: provider default)")
	f.StringVar(&repoFlags.minConfidence, "min-confidence", "", "lowest accepted confidence: low, medium or high")
	f.BoolVar(&repoFlags.dryRun, "dry-run", false, "generate and review but do not open a pull request")
}

// repoOverrides reads schemas from the repository and publishes back to it,
// then applies the flags the user set.
func repoOverrides(cmd *cobra.Command) func(*config.Config) {
	changed := cmd.Flags().Changed
	return func(c *config.Config) {
		c.Source.GitHub = true
		c.Source.SchemasDir = ""
		c.Output.Publisher = config.PublisherGitHub

		if changed("github-repo") {
			c.GitHub.Repo = strings.TrimSpace(repoFlags.repo)
		}
		if changed("schema-path") {
			c.GitHub.SchemaPath = repoFlags.schemaPath
		}
		if changed("base-branch") {
			c.GitHub.BaseBranch = repoFlags.baseBranch
		}
		if changed("include") {
			c.Registry.IncludeSubjects = repoFlags.include
		}
		if changed("exclude") {
			c.Registry.ExcludeSubjects = repoFlags.exclude
		}
		if changed("dry-run") {
			c.Output.DryRun = repoFlags.dryRun
		}
		if changed("provider") {
			c.LLM.DefaultProvider = strings.ToLower(strings.TrimSpace(repoFlags.provider))
		}
		if changed("model") {
			p := c.LLM.Provider(c.LLM.DefaultProvider)
			p.Model = repoFlags.model
			c.LLM.Providers[c.LLM.DefaultProvider] = p
		}
		if changed("min-confidence") {
			c.LLM.MinConfidence = strings.ToLower(strings.TrimSpace(repoFlags.minConfidence))
		}
	}
}
