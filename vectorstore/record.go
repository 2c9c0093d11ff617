package vectorstore

import "github.com/poiesic/enrich/core"

// RecordObject builds the object uploaded for a processed record.
func RecordObject(record *core.IngestionRecord, vector []float32) Object {
	props := Properties{
		Title:   record.Title,
		Content: record.ContentText,
		Source:  record.SourceKind.String(),
	}
	if props.Title == "" {
		props.Title = record.DeclaredName
	}
	if record.SourceKind == core.SourceKindCrawl {
		props.URL = record.SourceLocator
	}
	return Object{
		ID:         ObjectID(record.Id),
		Vector:     vector,
		Properties: props,
	}
}
