package extract

import (
	"bytes"
	"encoding/json"

	"github.com/poiesic/enrich/core"
)

// extractJSON re-indents a JSON payload. Unparseable input falls back to text
// annotated with core.FormatErrorInvalid.
func extractJSON(data []byte, name string) Result {
	text := decodeText(data)

	var value any
	decoder := json.NewDecoder(bytes.NewReader([]byte(text)))
	decoder.UseNumber()
	if err := decoder.Decode(&value); err != nil || decoder.More() {
		result := textResult(text, name)
		result.Content.FormatError = core.FormatErrorInvalid
		return result
	}

	pretty, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		result := textResult(text, name)
		result.Content.FormatError = core.FormatErrorInvalid
		return result
	}

	return Result{
		Content: core.ExtractedContent{
			Kind:     core.ContentKindJSON,
			KeyCount: keyCount(value),
			Size:     int64(len(data)),
		},
		Text: string(pretty),
	}
}

// keyCount is the number of top-level keys, the length for arrays, and 0 for scalars.
func keyCount(value any) int {
	switch v := value.(type) {
	case map[string]any:
		return len(v)
	case []any:
		return len(v)
	}
	return 0
}
