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
	"context"
	"errors"
	"fmt"
)

// Error taxonomy. Match with errors.Is.
var (
	// ErrValidation indicates bad input shape or size. Never retried.
	ErrValidation = errors.New("validation error")

	// ErrExternalService indicates a crawler, embedding, tagging or vector store call failed.
	// Retryable by re-running the failed stage.
	ErrExternalService = errors.New("external service error")

	// ErrNotFound indicates a record or collection is absent.
	ErrNotFound = errors.New("not found")

	// ErrConfiguration indicates missing or invalid configuration. Fatal at process start.
	ErrConfiguration = errors.New("configuration error")
)

// Domain validation errors
var (
	// ErrInvalidRecord indicates an IngestionRecord failed validation.
	ErrInvalidRecord = fmt.Errorf("%w: invalid ingestion record", ErrValidation)

	// ErrInvalidTag indicates a SmartTag failed validation.
	ErrInvalidTag = fmt.Errorf("%w: invalid smart tag", ErrValidation)

	// ErrInvalidTransition indicates a status change the state machine does not allow.
	ErrInvalidTransition = fmt.Errorf("%w: invalid status transition", ErrValidation)

	// ErrNotRetryable indicates a retry was requested for a record that is not failed.
	ErrNotRetryable = fmt.Errorf("%w: only failed records can be retried", ErrValidation)

	// ErrRetryLimitExceeded indicates a record has used all of its retries.
	ErrRetryLimitExceeded = fmt.Errorf("%w: retry limit exceeded", ErrValidation)

	// ErrEmptyContent indicates a required text field is empty.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrTextTooLong indicates a text exceeds the configured maximum length.
	ErrTextTooLong = errors.New("text exceeds maximum length")
)

// ValidationError returns an error matching ErrValidation.
func ValidationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// ConfigurationError returns an error matching ErrConfiguration.
func ConfigurationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// ExternalServiceError wraps err from the named service so it matches ErrExternalService.
// Context cancellation is returned unchanged.
func ExternalServiceError(service string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrExternalService) || errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrExternalService, service, err)
}

// NotFoundError returns an error matching ErrNotFound.
func NotFoundError(kind string, id any) error {
	return fmt.Errorf("%w: %s %v", ErrNotFound, kind, id)
}
