package langchain

import (
	"fmt"
	"strings"

	"github.com/poiesic/enrich/ai"
	"github.com/poiesic/enrich/core"
)

const tagResponseSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "tags": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "tag_name": {"type": "string"},
          "confidence_score": {"type": "number", "minimum": 0, "maximum": 1},
          "tag_category": {"type": "string"},
          "tag_description": {"type": "string"},
          "entities": {"type": "array", "items": {"type": "string"}}
        },
        "required": ["tag_name", "confidence_score", "tag_category", "tag_description", "entities"],
        "additionalProperties": false
      }
    }
  },
  "required": ["tags"],
  "additionalProperties": false
}`

const tagPromptTemplate = `You label documents for a search index. Generate between %d and %d descriptive tags for the
content the user sends and return them as JSON.

Output ONLY valid JSON which complies with the schema given below. Do not include any preamble, explanation,
greeting, or acknowledgment. Start your response directly with the opening brace { and end with the closing
brace }. Your output must exactly follow this schema:

%s

Rules:
- tag_name is 1-3 words.
- tag_category must be exactly one of: %s.
- confidence_score is a number from 0 to 1 reflecting how well the tag fits the content.
- tag_description is one short sentence.
- entities lists named people, organizations, products or places the tag refers to; use [] when there are none.
- Only tag what the content actually covers. Do not hallucinate.
- The JSON must parse without errors; no trailing commas, no extra keys, and no extraneous text outside the object.

Example:
Input: "Kubernetes 1.30 ships sidecar containers as a stable feature."
Output:
{
  "tags": [
    {"tag_name":"kubernetes","confidence_score":0.95,"tag_category":"topic","tag_description":"Container orchestration platform","entities":["Kubernetes"]},
    {"tag_name":"cloud infrastructure","confidence_score":0.8,"tag_category":"industry","tag_description":"Cloud and infrastructure software","entities":[]},
    {"tag_name":"release notes","confidence_score":0.85,"tag_category":"content_type","tag_description":"Announcement of a software release","entities":[]}
  ]
}`

func buildSystemPrompt(minTags, maxTags int) string {
	categories := make([]string, len(core.TagCategories))
	for i, c := range core.TagCategories {
		categories[i] = string(c)
	}
	return fmt.Sprintf(tagPromptTemplate, minTags, maxTags, tagResponseSchema, strings.Join(categories, ", "))
}

// buildUserPrompt renders the request with content cut to maxChars runes.
func buildUserPrompt(req ai.TagRequest, maxChars int) string {
	var b strings.Builder
	if req.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", req.Title)
	}
	if req.Locator != "" {
		fmt.Fprintf(&b, "Source: %s\n", req.Locator)
	}
	if b.Len() > 0 {
		b.WriteString("\n")
	}
	b.WriteString(truncateRunes(collapseWhitespace(req.Content), maxChars))
	return b.String()
}
