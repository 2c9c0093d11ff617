package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/enrich/ai"
	"github.com/poiesic/enrich/core"
)

const (
	// DefaultMaxTextLength is the longest text, in characters, accepted for embedding.
	DefaultMaxTextLength = 32000

	// DefaultSubBatchSize is how many items run between pool drains.
	DefaultSubBatchSize = 10

	// DefaultPaceDelay separates consecutive item starts.
	DefaultPaceDelay = 100 * time.Millisecond

	// DefaultMaxBatchTexts is the largest batch EmbedBatch accepts.
	DefaultMaxBatchTexts = 100

	// DefaultConcurrency runs items of a sub-batch sequentially.
	DefaultConcurrency = 1
)

var (
	// ErrEmbedderRequired is returned when no embedder is provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrDimensionMismatch indicates a vector whose length differs from the expected dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrEmptyVector indicates the embedder returned no values.
	ErrEmptyVector = errors.New("embedder returned an empty vector")
)

// Pauser blocks callers while processing is paused.
type Pauser interface {
	// Wait returns once processing may continue, or with ctx's error.
	Wait(ctx context.Context) error
}

// ItemResult is the outcome for one text of a batch, at its input position.
type ItemResult struct {
	Index  int
	Vector []float32
	Err    error
}

// BatchResult tallies a batch. Items are in input order.
type BatchResult struct {
	Total      int
	Successful int
	Failed     int
	Items      []ItemResult
}

// Err joins the per-item errors, or returns nil if every item succeeded.
func (r BatchResult) Err() error {
	var errs []error
	for _, item := range r.Items {
		if item.Err != nil {
			errs = append(errs, fmt.Errorf("item %d: %w", item.Index, item.Err))
		}
	}
	return errors.Join(errs...)
}

// Service validates, embeds and paces embedding requests.
type Service struct {
	embedder      ai.Embedder
	dimension     int
	maxTextLength int
	subBatchSize  int
	concurrency   int
	maxBatchTexts int
	paceDelay     time.Duration
	normalize     bool
	pauser        Pauser
	logger        *slog.Logger

	mu          sync.Mutex
	observedDim int
}

// Option configures a Service.
type Option func(*Service) error

// WithDimension sets the expected vector length. 0 accepts the first length seen.
func WithDimension(dimension int) Option {
	return func(s *Service) error {
		if dimension < 0 {
			return core.ConfigurationError("dimension must not be negative, got %d", dimension)
		}
		s.dimension = dimension
		return nil
	}
}

// WithMaxTextLength sets the longest accepted text in characters.
func WithMaxTextLength(n int) Option {
	return func(s *Service) error {
		if n < 1 {
			return core.ConfigurationError("max text length must be at least 1, got %d", n)
		}
		s.maxTextLength = n
		return nil
	}
}

// WithSubBatchSize sets how many items are dispatched before waiting for the pool to drain.
func WithSubBatchSize(n int) Option {
	return func(s *Service) error {
		if n < 1 {
			return core.ConfigurationError("sub-batch size must be at least 1, got %d", n)
		}
		s.subBatchSize = n
		return nil
	}
}

// WithConcurrency sets how many items of a sub-batch may run at once.
// It is capped at the sub-batch size.
func WithConcurrency(n int) Option {
	return func(s *Service) error {
		if n < 1 {
			return core.ConfigurationError("concurrency must be at least 1, got %d", n)
		}
		s.concurrency = n
		return nil
	}
}

// WithMaxBatchTexts sets the largest batch EmbedBatch accepts.
func WithMaxBatchTexts(n int) Option {
	return func(s *Service) error {
		if n < 1 {
			return core.ConfigurationError("max batch texts must be at least 1, got %d", n)
		}
		s.maxBatchTexts = n
		return nil
	}
}

// WithPaceDelay sets the minimum delay between item starts.
func WithPaceDelay(d time.Duration) Option {
	return func(s *Service) error {
		if d < 0 {
			return core.ConfigurationError("pace delay must not be negative, got %s", d)
		}
		s.paceDelay = d
		return nil
	}
}

// WithNormalize scales returned vectors to unit length.
func WithNormalize(normalize bool) Option {
	return func(s *Service) error {
		s.normalize = normalize
		return nil
	}
}

// WithPauser makes batches wait on p between items.
func WithPauser(p Pauser) Option {
	return func(s *Service) error {
		s.pauser = p
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewService creates an embedding service.
func NewService(embedder ai.Embedder, opts ...Option) (*Service, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	s := &Service{
		embedder:      embedder,
		maxTextLength: DefaultMaxTextLength,
		subBatchSize:  DefaultSubBatchSize,
		concurrency:   DefaultConcurrency,
		maxBatchTexts: DefaultMaxBatchTexts,
		paceDelay:     DefaultPaceDelay,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "embedding")
	return s, nil
}

// Dimension returns the configured dimension, or the first one observed when unset.
func (s *Service) Dimension() int {
	if s.dimension > 0 {
		return s.dimension
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.observedDim
}

// MaxTextLength returns the longest text, in characters, Embed accepts.
func (s *Service) MaxTextLength() int {
	return s.maxTextLength
}

// Truncate cuts text to MaxTextLength characters.
func (s *Service) Truncate(text string) string {
	if s.maxTextLength <= 0 || utf8.RuneCountInString(text) <= s.maxTextLength {
		return text
	}
	return string([]rune(text)[:s.maxTextLength])
}

// Embed embeds a single text.
// Empty or overlong text is a validation error; embedder failures and
// dimension mismatches are external service errors.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := core.ValidateText(text, s.maxTextLength); err != nil {
		return nil, err
	}

	vector, err := s.embedder.EmbedText(ctx, text)
	if err != nil {
		return nil, core.ExternalServiceError("embedding", err)
	}
	if len(vector) == 0 {
		return nil, core.ExternalServiceError("embedding", ErrEmptyVector)
	}
	if err := s.checkDimension(len(vector)); err != nil {
		return nil, core.ExternalServiceError("embedding", err)
	}

	if s.normalize {
		vector = Normalize(vector)
	}
	return vector, nil
}

func (s *Service) checkDimension(n int) error {
	want := s.dimension
	if want == 0 {
		s.mu.Lock()
		if s.observedDim == 0 {
			s.observedDim = n
		}
		want = s.observedDim
		s.mu.Unlock()
	}
	if n != want {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, n, want)
	}
	return nil
}

// EmbedBatch embeds texts in sub-batches. Item failures do not stop the batch.
// The error return covers only invalid batch shape and pool setup; a
// cancelled context marks every item not yet started as failed.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) (BatchResult, error) {
	if len(texts) == 0 {
		return BatchResult{}, core.ValidationError("batch has no texts")
	}
	if len(texts) > s.maxBatchTexts {
		return BatchResult{}, core.ValidationError("batch has %d texts, at most %d allowed", len(texts), s.maxBatchTexts)
	}

	pool, err := ants.NewPool(min(s.concurrency, s.subBatchSize))
	if err != nil {
		return BatchResult{}, err
	}
	defer pool.Release()

	result := BatchResult{Total: len(texts), Items: make([]ItemResult, len(texts))}
	for i := range result.Items {
		result.Items[i].Index = i
	}

	s.logger.Info("embedding batch", "texts", len(texts), "sub_batch", s.subBatchSize)

	started := 0
	for start := 0; start < len(texts); start += s.subBatchSize {
		end := min(start+s.subBatchSize, len(texts))

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			if err := s.beforeItem(ctx, i); err != nil {
				break
			}
			item := &result.Items[i]
			text := texts[i]
			wg.Add(1)
			err := pool.Submit(func() {
				defer wg.Done()
				item.Vector, item.Err = s.Embed(ctx, text)
			})
			if err != nil {
				wg.Done()
				item.Err = err
			}
			started = i + 1
		}
		wg.Wait()

		if started < end {
			break
		}
		s.logger.Debug("sub-batch complete", "start", start, "end", end)
	}

	if started < len(texts) {
		cause := context.Cause(ctx)
		if cause == nil {
			cause = context.Canceled
		}
		for i := started; i < len(texts); i++ {
			result.Items[i].Err = cause
		}
	}

	for _, item := range result.Items {
		if item.Err != nil {
			result.Failed++
		} else {
			result.Successful++
		}
	}

	s.logger.Info("batch embedded", "successful", result.Successful, "failed", result.Failed)
	return result, nil
}

// beforeItem paces item starts and honours pause and cancellation.
func (s *Service) beforeItem(ctx context.Context, index int) error {
	if index > 0 && s.paceDelay > 0 {
		timer := time.NewTimer(s.paceDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	if s.pauser != nil {
		if err := s.pauser.Wait(ctx); err != nil {
			return err
		}
	}
	return ctx.Err()
}

// Normalize returns v scaled to unit length. A zero vector is returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := 1 / math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out
}
