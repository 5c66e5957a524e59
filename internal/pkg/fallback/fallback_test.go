package fallback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSettleAllPreservesOrderAndPartialFailure(t *testing.T) {
	attempts := []Attempt[int]{
		{Name: "a", Run: func(ctx context.Context) (int, error) { return 1, nil }},
		{Name: "b", Run: func(ctx context.Context) (int, error) { return 0, errors.New("boom") }},
		{Name: "c", Run: func(ctx context.Context) (int, error) { return 3, nil }},
	}
	outcomes := SettleAll(context.Background(), time.Second, attempts)
	require.Len(t, outcomes, 3)
	require.Equal(t, "a", outcomes[0].Name)
	require.Equal(t, "b", outcomes[1].Name)
	require.Equal(t, "c", outcomes[2].Name)
	require.NoError(t, outcomes[0].Err)
	require.Error(t, outcomes[1].Err)
	require.Equal(t, 3, outcomes[2].Value)
}

func TestSettleAllTimesOutSlowAttempt(t *testing.T) {
	attempts := []Attempt[string]{
		{Name: "fast", Run: func(ctx context.Context) (string, error) { return "ok", nil }},
		{Name: "slow", Run: func(ctx context.Context) (string, error) {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(5 * time.Second):
				return "late", nil
			}
		}},
	}
	start := time.Now()
	outcomes := SettleAll(context.Background(), 50*time.Millisecond, attempts)
	require.Less(t, time.Since(start), time.Second)
	require.NoError(t, outcomes[0].Err)
	require.ErrorIs(t, outcomes[1].Err, context.DeadlineExceeded)
}

func TestSucceededAndFailedFilters(t *testing.T) {
	outcomes := []Outcome[int]{
		{Name: "a", Value: 1},
		{Name: "b", Err: errors.New("boom")},
		{Name: "c", Value: 3},
	}
	ok := Succeeded(outcomes)
	require.Len(t, ok, 2)
	require.Equal(t, "a", ok[0].Name)

	failed := Failed(outcomes)
	require.Len(t, failed, 1)
	require.Equal(t, "b", failed[0].Name)
}
