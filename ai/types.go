package ai

// TagRequest is the input to Tagger.GenerateTags.
type TagRequest struct {
	// Content is the text to describe. Implementations truncate it to their configured limit.
	Content string

	// Title and Locator give the model context about the source.
	Title   string
	Locator string
}

// GeneratedTag is a tag as returned by the model, before validation.
// JSON names match the schema the model is asked to produce.
type GeneratedTag struct {
	Name        string   `json:"tag_name"`
	Confidence  float64  `json:"confidence_score"`
	Category    string   `json:"tag_category"`
	Description string   `json:"tag_description"`
	Entities    []string `json:"entities"`
}
