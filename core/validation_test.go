package core

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateRecord(t *testing.T) {
	tests := []struct {
		name    string
		record  *IngestionRecord
		wantErr error
	}{
		{
			name: "valid upload",
			record: &IngestionRecord{
				SourceKind:    SourceKindUpload,
				SourceLocator: "uploads/abc",
				DeclaredName:  "notes.txt",
				ByteSize:      11,
			},
			wantErr: nil,
		},
		{
			name: "valid crawl with ID 0",
			record: &IngestionRecord{
				Id:            0,
				SourceKind:    SourceKindCrawl,
				SourceLocator: "https://example.com",
				DeclaredName:  "Example",
			},
			wantErr: nil,
		},
		{
			name:    "nil record",
			record:  nil,
			wantErr: ErrInvalidRecord,
		},
		{
			name: "unknown source kind",
			record: &IngestionRecord{
				SourceKind:    SourceKind(9),
				SourceLocator: "x",
				DeclaredName:  "x",
			},
			wantErr: ErrInvalidRecord,
		},
		{
			name: "empty locator",
			record: &IngestionRecord{
				SourceKind:   SourceKindUpload,
				DeclaredName: "x",
			},
			wantErr: ErrEmptyContent,
		},
		{
			name: "empty name",
			record: &IngestionRecord{
				SourceKind:    SourceKindUpload,
				SourceLocator: "x",
			},
			wantErr: ErrEmptyContent,
		},
		{
			name: "negative size",
			record: &IngestionRecord{
				SourceKind:    SourceKindUpload,
				SourceLocator: "x",
				DeclaredName:  "x",
				ByteSize:      -1,
			},
			wantErr: ErrInvalidRecord,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRecord(tt.record)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateRecord() unexpected error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateRecord() error = %v, want %v", err, tt.wantErr)
			}
			if !errors.Is(err, ErrValidation) {
				t.Errorf("ValidateRecord() error = %v should match ErrValidation", err)
			}
		})
	}
}

func TestValidateSmartTag(t *testing.T) {
	tests := []struct {
		name    string
		tag     *SmartTag
		wantErr bool
	}{
		{"valid", &SmartTag{Name: "go", Category: TagCategoryTopic, Confidence: 0.8}, false},
		{"three words", &SmartTag{Name: "big data tools", Category: TagCategoryTopic, Confidence: 1}, false},
		{"fallback", func() *SmartTag { t := FallbackTag(); return &t }(), false},
		{"nil", nil, true},
		{"empty name", &SmartTag{Name: "  ", Category: TagCategoryTopic, Confidence: 0.5}, true},
		{"four words", &SmartTag{Name: "a b c d", Category: TagCategoryTopic, Confidence: 0.5}, true},
		{"unknown category", &SmartTag{Name: "go", Category: "language", Confidence: 0.5}, true},
		{"confidence above one", &SmartTag{Name: "go", Category: TagCategoryTopic, Confidence: 1.2}, true},
		{"negative confidence", &SmartTag{Name: "go", Category: TagCategoryTopic, Confidence: -0.1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSmartTag(tt.tag)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSmartTag() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidTag) {
				t.Errorf("ValidateSmartTag() error = %v should wrap ErrInvalidTag", err)
			}
		})
	}
}

func TestValidateText(t *testing.T) {
	if err := ValidateText("hello", 10); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateText("", 10); !errors.Is(err, ErrEmptyContent) {
		t.Errorf("expected ErrEmptyContent, got %v", err)
	}
	err := ValidateText(strings.Repeat("x", 11), 10)
	if !errors.Is(err, ErrTextTooLong) || !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrTextTooLong validation error, got %v", err)
	}
	if err := ValidateText(strings.Repeat("x", 11), 0); err != nil {
		t.Errorf("maxLen 0 should disable length check, got %v", err)
	}
	// Length is measured in characters, not bytes.
	if err := ValidateText("ééééé", 5); err != nil {
		t.Errorf("unexpected error for multibyte text: %v", err)
	}
}
