package main

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/schemadoc/internal/llm"
)

// providerEnv names the environment variable holding each provider's
// credential or endpoint.
var providerEnv = map[string]string{
	llm.ProviderOpenAI:    "OPENAI_API_KEY",
	llm.ProviderAnthropic: "ANTHROPIC_API_KEY",
	llm.ProviderGoogle:    "GOOGLE_API_KEY",
	llm.ProviderMistral:   "MISTRAL_API_KEY",
	llm.ProviderOllama:    "OLLAMA_BASE_URL",
	llm.ProviderAzure:     "AZURE_OPENAI_API_KEY",
}

// providersCmd lists the supported language model providers
var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List supported language model providers",
	Long: `List every supported language model provider with its default model
and the environment variable it reads. The last column shows whether that
variable is set in the current environment.`,
	Args: cobra.NoArgs,
	RunE: runProviders,
}

func runProviders(cmd *cobra.Command, args []string) error {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		Headers("Provider", "Default model", "Environment", "Set")
	for _, p := range llm.Providers() {
		env := providerEnv[p]
		set := "no"
		if os.Getenv(env) != "" {
			set = "yes"
		} else if !llm.RequiresAPIKey(p) {
			set = "optional"
		}
		t.Row(p, llm.DefaultModels[p], env, set)
	}
	cmd.Println(t.Render())
	return nil
}
