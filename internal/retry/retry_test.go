package retry

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragengine/internal/engerr"
)

func fastConfig() Config {
	return Config{
		Base:       time.Millisecond,
		Max:        5 * time.Millisecond,
		Factor:     2.0,
		MaxRetries: 3,
		JitterMin:  0.5,
		JitterMax:  1.5,
	}
}

func TestDoReturnsFirstSuccess(t *testing.T) {
	calls := 0
	v, err := Do(context.Background(), fastConfig(), "op", func(ctx context.Context) (int, error) {
		calls++
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesTransientErrorsThenSucceeds(t *testing.T) {
	calls := 0
	v, err := Do(context.Background(), fastConfig(), "op", func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 3, calls)
}

func TestDoExhaustsAfterMaxRetries(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastConfig(), "op", func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("still down")
	})
	require.Error(t, err)
	// Initial attempt plus MaxRetries retries.
	assert.Equal(t, 4, calls)
	assert.Equal(t, engerr.Timeout, Classify(err))
}

func TestDoDoesNotRetryValidationErrors(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastConfig(), "op", func(ctx context.Context) (int, error) {
		calls++
		return 0, engerr.New(engerr.InvalidInput, "op", errors.New("bad input"))
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, engerr.Is(err, engerr.InvalidInput))
}

func TestDoStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	done := make(chan error, 1)
	go func() {
		_, err := Do(ctx, Config{Base: time.Hour, Max: time.Hour, Factor: 2, MaxRetries: 3, JitterMin: 0.5, JitterMax: 1.5}, "op", func(ctx context.Context) (int, error) {
			calls++
			return 0, errors.New("down")
		})
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not return after context cancel")
	}
}

func TestJitterFractionStaysInWindow(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		f := jitterFraction(0.5, 1.5, r)
		assert.GreaterOrEqual(t, f, 0.5)
		assert.Less(t, f, 1.5)
	}
}

func TestClassifyDefaultsToInternal(t *testing.T) {
	assert.Equal(t, engerr.Internal, Classify(errors.New("plain")))
}
