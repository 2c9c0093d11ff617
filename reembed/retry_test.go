package reembed

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/poiesic/enrich/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryWithBackoff(t *testing.T) {
	unavailable := errors.New("embedding host unavailable")

	tests := []struct {
		name        string
		failures    int
		err         error
		maxAttempts int
		wantCalls   int
		wantErr     error
	}{
		{"first try", 0, unavailable, 3, 1, nil},
		{"recovers after transient failures", 2, unavailable, 3, 3, nil},
		{"gives up with the last error", 5, unavailable, 3, 3, unavailable},
		{"external service errors are retried", 1, core.ExternalServiceError("embedder", unavailable), 2, 2, nil},
		{"oversized text is final", 5, core.ValidationError("text exceeds %d characters", 32000), 3, 1, core.ErrValidation},
		{"wrapped validation is final", 5, fmt.Errorf("batch 4: %w", core.ValidationError("empty text")), 3, 1, core.ErrValidation},
		{"zero attempts", 0, nil, 0, 0, ErrInvalidMaxAttempts},
		{"negative attempts", 0, nil, -1, 0, ErrInvalidMaxAttempts},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := RetryWithBackoff(context.Background(), func() error {
				calls++
				if calls <= tt.failures {
					return tt.err
				}
				return nil
			}, tt.maxAttempts, time.Millisecond)

			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRetryWithBackoff_DoublesDelay(t *testing.T) {
	const base = 5 * time.Millisecond
	calls := 0
	start := time.Now()
	err := RetryWithBackoff(context.Background(), func() error {
		calls++
		return errors.New("busy")
	}, 3, base)

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.GreaterOrEqual(t, time.Since(start), base+2*base, "waits base then 2*base, none after the last attempt")
}

func TestRetryWithBackoff_CancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- RetryWithBackoff(ctx, func() error {
			calls++
			return errors.New("busy")
		}, 5, time.Hour)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	case <-time.After(time.Second):
		t.Fatal("retry did not stop on cancellation")
	}
}

func TestRetryWithBackoff_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := RetryWithBackoff(ctx, func() error {
		calls++
		return nil
	}, 3, time.Millisecond)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}
