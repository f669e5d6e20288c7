package orchestrator

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/schemadoc/internal/llm"
	"github.com/fyrsmithlabs/schemadoc/internal/schema"
	"github.com/fyrsmithlabs/schemadoc/internal/secrets"
)

const systemPrompt = `You are a technical writer who documents %s schemas.
Write concise, accurate documentation for schema elements.

Guidelines:
- One or two sentences per element
- Explain what the element means and why it exists, not just its data type
- Give formats for strings where they apply (for example ISO 8601 timestamps)
- Mention units, constraints or valid values when you can infer them
- Be direct: never open with "This field" or similar filler

Rate each description:
HIGH when the meaning is obvious, MEDIUM for a reasonable inference, LOW when guessing.`

const refineAddendum = `

Earlier descriptions for the elements below were rejected. Follow the
correction listed under each element. Prefer specific, detailed text: the
business purpose, formats, valid values or constraints.`

const strictInstruction = `

Your previous reply could not be used (%s).
Reply with a single JSON object only: no prose, no code fences.
Include every path listed above exactly once and nothing else.`

// corrections is the instruction added to a refinement prompt per flag.
var corrections = map[string]string{
	FlagGeneric:          `Avoid boilerplate openings such as "Represents the" or "Contains the" and do not just restate the name or type.`,
	FlagTooShort:         "Write at least %d words; include format, units or valid values.",
	FlagLowConfidence:    "Use the parent, sibling and type context to make a confident, specific statement.",
	FlagDuplicateSibling: "The text duplicated a sibling's description; make it specific to this element.",
	FlagPlaceholder:      "Do not use placeholder text such as TODO or TBD.",
}

// formatNames are the human names of each format used in prompts.
var formatNames = map[schema.Format]string{
	schema.FormatAvro:       "Apache Avro",
	schema.FormatJSONSchema: "JSON Schema",
	schema.FormatProtobuf:   "Protocol Buffers",
}

// PromptBuilder renders batch prompts. Free text taken from schemas passes
// through the scrubber before it reaches a model.
type PromptBuilder struct {
	opts     *Options
	scrubber *secrets.Scrubber
}

// NewPromptBuilder creates a PromptBuilder. A nil scrubber disables
// scrubbing.
func NewPromptBuilder(opts *Options, scrubber *secrets.Scrubber) *PromptBuilder {
	return &PromptBuilder{opts: opts, scrubber: scrubber}
}

// Build renders the prompt for b. A non-empty retryReason adds the stricter
// instruction used after an unusable reply.
func (p *PromptBuilder) Build(b *Batch, retryReason string) llm.Prompt {
	job := b.Job
	name, doc := b.schemaName, b.schemaDoc
	if name == "" {
		name = job.Subject
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Schema: %s\n", name)
	fmt.Fprintf(&sb, "Subject: %s\n", job.Subject)
	fmt.Fprintf(&sb, "Format: %s\n", formatName(job.Format))
	if doc == "" {
		doc = "No description available"
	}
	fmt.Fprintf(&sb, "Schema Description: %s\n", p.scrub(doc))
	sb.WriteString("\nGenerate documentation for these undocumented elements:\n")

	for i, e := range b.Elements {
		fmt.Fprintf(&sb, "\nElement #%d:\n", i+1)
		fmt.Fprintf(&sb, "- Path: %s\n", e.Key())
		fmt.Fprintf(&sb, "- Kind: %s\n", e.Kind)
		fmt.Fprintf(&sb, "- Name: %s\n", e.Name)
		if e.Type != "" {
			fmt.Fprintf(&sb, "- Data Type: %s\n", e.Type)
		}
		if e.Parent != "" {
			fmt.Fprintf(&sb, "- Parent: %s\n", e.Parent)
		}
		if len(e.Siblings) > 0 {
			fmt.Fprintf(&sb, "- Siblings: %s\n", strings.Join(e.Siblings, ", "))
		}
		if e.Default != "" {
			fmt.Fprintf(&sb, "- Default Value: %s\n", p.scrub(e.Default))
		}
		if len(e.Symbols) > 0 {
			fmt.Fprintf(&sb, "- Enum Values: %s\n", strings.Join(e.Symbols, ", "))
		}
		if e.ExistingDoc != "" {
			fmt.Fprintf(&sb, "- Current Doc (too generic): %s\n", p.scrub(e.ExistingDoc))
		}
		if b.Round > 0 && e.CandidateDoc != "" {
			fmt.Fprintf(&sb, "- Previous Attempt: %s\n", e.CandidateDoc)
			fmt.Fprintf(&sb, "- Rejected Because: %s\n", strings.Join(e.FlagReasons, ", "))
			for _, reason := range e.FlagReasons {
				fmt.Fprintf(&sb, "- Correction: %s\n", p.correction(reason))
			}
		}
	}

	sb.WriteString("\nRespond with a JSON object matching this JSON Schema:\n")
	sb.WriteString(ResponseSchema())
	sb.WriteString("\nUse each element's path verbatim and answer every element exactly once.")
	if retryReason != "" {
		fmt.Fprintf(&sb, strictInstruction, retryReason)
	}

	system := fmt.Sprintf(systemPrompt, formatName(job.Format))
	if b.Round > 0 {
		system += refineAddendum
	}
	return llm.Prompt{System: system, User: sb.String(), JSON: true}
}

func (p *PromptBuilder) correction(reason string) string {
	c, ok := corrections[reason]
	if !ok {
		return reason
	}
	if reason == FlagTooShort {
		return fmt.Sprintf(c, p.opts.MinWords)
	}
	return c
}

func (p *PromptBuilder) scrub(s string) string {
	return p.scrubber.String(s)
}

func formatName(f schema.Format) string {
	if n, ok := formatNames[f]; ok {
		return n
	}
	return string(f)
}

// schemaIdentity returns the schema's display name and top-level doc: the
// first container element, or the subject when there is none.
func schemaIdentity(job *schema.Job) (name, doc string) {
	for _, e := range job.Catalog {
		if e.Kind.Container() {
			doc = e.ExistingDoc
			if e.Status != schema.StatusDocumented {
				doc = ""
			}
			return e.Name, doc
		}
	}
	return job.Subject, ""
}
