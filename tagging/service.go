// Package tagging attaches smart tags to ingestion records.
//
// Tagging is best-effort: whenever the model fails or returns nothing usable
// the record gets the single fallback tag instead. Only persistence errors
// are reported to the caller.
package tagging

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/poiesic/enrich/ai"
	"github.com/poiesic/enrich/core"
)

// DefaultMaxTags caps how many generated tags are kept per record.
const DefaultMaxTags = 8

var (
	// ErrNoUsableTags indicates every generated tag failed validation.
	ErrNoUsableTags = errors.New("model returned no usable tags")

	// ErrTaggerRequired indicates the service was built without a tagger.
	ErrTaggerRequired = errors.New("tagger is required")

	// ErrStoreRequired indicates the service was built without a tag store.
	ErrStoreRequired = errors.New("tag store is required")
)

// TagStore persists the tags of a record.
type TagStore interface {
	ReplaceSmartTags(ctx context.Context, id core.ID, tags []core.SmartTag) error
}

// Input is the content to tag.
type Input struct {
	Content string
	Title   string
	Locator string
}

// Outcome describes how tagging ended.
type Outcome struct {
	Tags   []core.SmartTag
	Result core.TaggingOutcome
	// Cause is why the fallback tag was used, nil when tagged normally.
	Cause error
}

// Service generates, validates and stores smart tags.
type Service struct {
	tagger  ai.Tagger
	store   TagStore
	maxTags int
	logger  *slog.Logger
}

// Option configures a Service.
type Option func(*Service) error

// WithMaxTags caps the number of tags kept per record.
func WithMaxTags(n int) Option {
	return func(s *Service) error {
		if n < 1 {
			return core.ConfigurationError("max tags must be at least 1, got %d", n)
		}
		s.maxTags = n
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) error {
		s.logger = logger
		return nil
	}
}

// NewService creates a tagging service.
func NewService(tagger ai.Tagger, store TagStore, opts ...Option) (*Service, error) {
	if tagger == nil {
		return nil, ErrTaggerRequired
	}
	if store == nil {
		return nil, ErrStoreRequired
	}
	s := &Service{
		tagger:  tagger,
		store:   store,
		maxTags: DefaultMaxTags,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "tagging")
	return s, nil
}

// Tag generates tags for in and replaces the stored tags of record id.
// The returned Outcome always carries at least one tag. An error is returned
// only when the tags could not be persisted; Outcome.Result is then failed.
func (s *Service) Tag(ctx context.Context, id core.ID, in Input) (Outcome, error) {
	return s.Store(ctx, id, s.Generate(ctx, in))
}

// Store replaces the stored tags of record id with the tags of outcome.
func (s *Service) Store(ctx context.Context, id core.ID, outcome Outcome) (Outcome, error) {
	if outcome.Cause != nil {
		s.logger.Warn("using fallback tag", "record", id, "err", outcome.Cause)
	}

	if err := s.store.ReplaceSmartTags(ctx, id, outcome.Tags); err != nil {
		s.logger.Error("failed to store tags", "record", id, "err", err)
		outcome.Result = core.TaggingOutcomeFailed
		return outcome, err
	}

	s.logger.Debug("tagged record", "record", id, "count", len(outcome.Tags), "outcome", outcome.Result)
	return outcome, nil
}

// Generate asks the model for tags without storing them.
func (s *Service) Generate(ctx context.Context, in Input) Outcome {
	if strings.TrimSpace(in.Content) == "" {
		return fallback(core.ValidationError("no content to tag"))
	}

	generated, err := s.tagger.GenerateTags(ctx, ai.TagRequest{
		Content: in.Content,
		Title:   in.Title,
		Locator: in.Locator,
	})
	if err != nil {
		return fallback(err)
	}

	tags := s.convert(generated)
	if len(tags) == 0 {
		return fallback(ErrNoUsableTags)
	}
	return Outcome{Tags: tags, Result: core.TaggingOutcomeTagged}
}

// convert normalizes generated tags and keeps the valid ones, up to maxTags.
func (s *Service) convert(generated []ai.GeneratedTag) []core.SmartTag {
	tags := make([]core.SmartTag, 0, min(len(generated), s.maxTags))
	seen := make(map[string]bool, len(generated))
	for _, g := range generated {
		tag := core.SmartTag{
			Name:              strings.Join(strings.Fields(g.Name), " "),
			Category:          core.TagCategory(strings.ToLower(strings.TrimSpace(g.Category))),
			Confidence:        g.Confidence,
			Description:       strings.TrimSpace(g.Description),
			ExtractedEntities: cleanEntities(g.Entities),
		}
		if err := core.ValidateSmartTag(&tag); err != nil {
			s.logger.Debug("dropping invalid tag", "tag", g.Name, "err", err)
			continue
		}
		key := strings.ToLower(tag.Name)
		if seen[key] {
			continue
		}
		seen[key] = true
		tags = append(tags, tag)
		if len(tags) == s.maxTags {
			break
		}
	}
	return tags
}

func cleanEntities(entities []string) []string {
	var out []string
	for _, e := range entities {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	return out
}

func fallback(cause error) Outcome {
	return Outcome{
		Tags:   []core.SmartTag{core.FallbackTag()},
		Result: core.TaggingOutcomeFallback,
		Cause:  cause,
	}
}
