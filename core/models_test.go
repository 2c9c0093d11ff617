package core

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDFromContent(t *testing.T) {
	a := IDFromContent("hello world")
	b := IDFromContent("hello world")
	c := IDFromContent("hello worlds")

	assert.Equal(t, a, b, "identical content should produce identical IDs")
	assert.NotEqual(t, a, c)
	assert.NotZero(t, a)
}

func TestContentDigest(t *testing.T) {
	d := ContentDigest([]byte("abc"))
	assert.Len(t, d, 64)
	assert.Equal(t, d, ContentDigest([]byte("abc")))
	assert.NotEqual(t, d, ContentDigest([]byte("abd")))
}

func TestStatusTransitions(t *testing.T) {
	allowed := map[Status][]Status{
		StatusPending:    {StatusExtracting, StatusFailed},
		StatusExtracting: {StatusTagging, StatusEmbedding, StatusFailed},
		StatusTagging:    {StatusEmbedding, StatusFailed},
		StatusEmbedding:  {StatusUploading, StatusFailed},
		StatusUploading:  {StatusCompleted, StatusFailed},
		StatusCompleted:  {},
		StatusFailed:     {StatusPending},
	}

	for _, from := range Statuses {
		for _, to := range Statuses {
			want := false
			for _, a := range allowed[from] {
				if a == to {
					want = true
				}
			}
			t.Run(fmt.Sprintf("%s->%s", from, to), func(t *testing.T) {
				assert.Equal(t, want, from.CanTransition(to))
				err := ValidateTransition(from, to)
				if want {
					assert.NoError(t, err)
				} else {
					assert.ErrorIs(t, err, ErrInvalidTransition)
				}
			})
		}
	}
}

func TestFailedReachableFromEveryNonTerminalState(t *testing.T) {
	for _, s := range Statuses {
		if s.IsTerminal() {
			continue
		}
		assert.True(t, s.CanTransition(StatusFailed), "%s should be able to fail", s)
	}
}

func TestParseStatus(t *testing.T) {
	for _, s := range Statuses {
		parsed, err := ParseStatus(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}

	_, err := ParseStatus("bogus")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestActor(t *testing.T) {
	assert.True(t, IsAnonymous(nil))
	assert.True(t, IsAnonymous(Anonymous{}))
	assert.False(t, IsAnonymous(User{ID: "u1"}))

	assert.Equal(t, Anonymous{}, ActorFromID(""))
	assert.Equal(t, User{ID: "u1"}, ActorFromID("u1"))

	assert.True(t, SameActor(Anonymous{}, nil))
	assert.True(t, SameActor(User{ID: "u1"}, User{ID: "u1"}))
	assert.False(t, SameActor(User{ID: "u1"}, User{ID: "u2"}))
	assert.False(t, SameActor(User{ID: "u1"}, Anonymous{}))
}

func TestErrorTaxonomy(t *testing.T) {
	assert.ErrorIs(t, ValidationError("bad %d", 1), ErrValidation)
	assert.ErrorIs(t, ConfigurationError("missing key"), ErrConfiguration)
	assert.ErrorIs(t, NotFoundError("record", 7), ErrNotFound)

	cause := errors.New("boom")
	err := ExternalServiceError("embedding", cause)
	assert.ErrorIs(t, err, ErrExternalService)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "embedding")

	// Wrapping twice does not nest the sentinel.
	assert.Equal(t, err, ExternalServiceError("embedding", err))
	assert.Nil(t, ExternalServiceError("x", nil))
	assert.Equal(t, context.Canceled, ExternalServiceError("x", context.Canceled))

	assert.ErrorIs(t, ErrNotRetryable, ErrValidation)
	assert.ErrorIs(t, ErrRetryLimitExceeded, ErrValidation)
}
