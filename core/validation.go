// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package core

import (
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"
)

// ValidateRecord validates a new IngestionRecord according to domain rules.
//
// Validation rules:
//   - SourceKind must be upload or crawl
//   - SourceLocator must not be empty
//   - DeclaredName must not be empty
//   - ByteSize must not be negative
//
// NOT validated (populated by the pipeline):
//   - ContentText, ExtractedContent, Embedding, SmartTags
//   - ID (0 is valid before the store assigns one)
func ValidateRecord(record *IngestionRecord) error {
	if record == nil {
		return fmt.Errorf("%w: record is nil", ErrInvalidRecord)
	}

	if record.SourceKind != SourceKindUpload && record.SourceKind != SourceKindCrawl {
		return fmt.Errorf("%w: invalid source kind %d", ErrInvalidRecord, record.SourceKind)
	}

	if record.SourceLocator == "" {
		return fmt.Errorf("%w: source locator: %w", ErrInvalidRecord, ErrEmptyContent)
	}

	if record.DeclaredName == "" {
		return fmt.Errorf("%w: declared name: %w", ErrInvalidRecord, ErrEmptyContent)
	}

	if record.ByteSize < 0 {
		return fmt.Errorf("%w: negative byte size %d", ErrInvalidRecord, record.ByteSize)
	}

	return nil
}

// ValidateSmartTag validates a SmartTag according to domain rules.
//
// Validation rules:
//   - Name must not be empty and must be at most 3 words
//   - Category must be one of TagCategories
//   - Confidence must be within [0, 1]
func ValidateSmartTag(tag *SmartTag) error {
	if tag == nil {
		return fmt.Errorf("%w: tag is nil", ErrInvalidTag)
	}

	name := strings.TrimSpace(tag.Name)
	if name == "" {
		return fmt.Errorf("%w: %w", ErrInvalidTag, ErrEmptyContent)
	}
	if len(strings.Fields(name)) > 3 {
		return fmt.Errorf("%w: name %q has more than 3 words", ErrInvalidTag, name)
	}

	if !slices.Contains(TagCategories, tag.Category) {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidTag, tag.Category)
	}

	if tag.Confidence < 0 || tag.Confidence > 1 {
		return fmt.Errorf("%w: confidence %v outside [0,1]", ErrInvalidTag, tag.Confidence)
	}

	return nil
}

// ValidateTransition checks that a record may move from its current status to next.
func ValidateTransition(from, next Status) error {
	if !from.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, next)
	}
	return nil
}

// ValidateText checks that text is non-empty and at most maxLen characters.
// maxLen <= 0 disables the length check.
func ValidateText(text string, maxLen int) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: %w", ErrValidation, ErrEmptyContent)
	}
	if maxLen > 0 {
		if n := utf8.RuneCountInString(text); n > maxLen {
			return fmt.Errorf("%w: %w (%d > %d)", ErrValidation, ErrTextTooLong, n, maxLen)
		}
	}
	return nil
}
