package pipeline

import (
	"fmt"
	"strings"

	"bloomgraph/pkg/common"

	"github.com/pkoukk/tiktoken-go"
)

const promptEncoding = "cl100k_base"

const GenerationSystemPrompt = `You are an education expert experienced in deriving learning objectives from domain knowledge.`

const GenerationPrompt = `
# Task Context
You will derive knowledge units (UCs) for the concept below. A knowledge unit is a single, self-contained learning-objective statement a learner can be assessed on.

# Concept
Title: {{CONCEPT_TITLE}}

Context:
{{CONTEXT}}

# Detailed Task Description & Rules
- Produce exactly one knowledge unit per Bloom's taxonomy level, in this order: Remember, Understand, Apply, Analyze, Evaluate, Create.
- Each unit must be grounded in the concept context above. Do not invent facts.
- Each unit is one sentence, starting with an action verb appropriate for its level.
- Write in the same language as the context.

# Output Formatting
Return a JSON object with this structure:
{
  "generated_units": [
    {
      "bloom_level": "<Remember|Understand|Apply|Analyze|Evaluate|Create>",
      "uc_text": "<the knowledge unit statement>"
    }
  ]
}
`

const DifficultySystemPrompt = `You are an education expert experienced in assessing the intrinsic difficulty of knowledge units (UCs) for general learners.`

const DifficultyPrompt = `
# Task Context
You will compare the knowledge units below, which all target the same Bloom's taxonomy level, and estimate the intrinsic difficulty of each one relative to the others.

# Knowledge Units
{{BATCH_OF_UCS}}

# Detailed Task Description & Rules
- Assign every unit an integer difficulty score from 0 (trivial) to 100 (extremely difficult).
- Score relative to the other units in this batch; use the full range when the units genuinely differ.
- Justify each score in one or two sentences.
- Include every uc_id exactly once.

# Output Formatting
Return a JSON object with this structure:
{
  "difficulty_assessments": [
    {
      "uc_id": "<the unit id>",
      "difficulty_score": <0-100>,
      "justification": "<why this score>"
    }
  ]
}
`

// FormatGenerationPrompt fills the generation template for one origin,
// truncating the context to the token budget when one is configured.
func FormatGenerationPrompt(origin common.Origin, tokenBudget int) (string, error) {
	context := origin.Context
	if context == "" {
		context = "N/A"
	}
	if tokenBudget > 0 {
		truncated, err := truncateTokens(context, tokenBudget)
		if err != nil {
			return "", err
		}
		context = truncated
	}

	prompt := strings.ReplaceAll(GenerationPrompt, "{{CONCEPT_TITLE}}", origin.Title)
	return strings.ReplaceAll(prompt, "{{CONTEXT}}", context), nil
}

// FormatDifficultyPrompt fills the difficulty template with the units of one
// comparison group at one Bloom level.
func FormatDifficultyPrompt(units []common.KnowledgeUnit) string {
	var b strings.Builder
	for _, u := range units {
		fmt.Fprintf(&b, "- ID: %s\n  Text: %s\n", u.UCID, u.Text)
	}
	return strings.ReplaceAll(DifficultyPrompt, "{{BATCH_OF_UCS}}", strings.TrimSpace(b.String()))
}

// truncateTokens cuts text down to at most maxTokens tokens.
func truncateTokens(text string, maxTokens int) (string, error) {
	enc, err := tiktoken.GetEncoding(promptEncoding)
	if err != nil {
		return "", fmt.Errorf("failed to load token encoding: %w", err)
	}

	tokens := enc.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text, nil
	}
	return enc.Decode(tokens[:maxTokens]), nil
}
