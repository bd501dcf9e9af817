package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contesthub/resultengine/internal/domain"
	"github.com/contesthub/resultengine/internal/testutils"
)

func conflict() error {
	return domain.NewConflictError("c1",
		domain.Guard{Status: domain.ContestJudging, Version: 1},
		domain.Guard{Status: domain.ContestJudging, Version: 2})
}

// TestRetryOnConflict covers which errors are retried and how often.
func TestRetryOnConflict(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

	tests := []struct {
		name      string
		errs      []error
		wantCalls int
		wantIs    error
		wantErr   string
	}{
		{name: "first attempt succeeds", errs: []error{nil}, wantCalls: 1},
		{name: "conflict then success", errs: []error{conflict(), nil}, wantCalls: 2},
		{
			name:      "persistent conflict",
			errs:      []error{conflict(), conflict(), conflict()},
			wantCalls: 3,
			wantIs:    domain.ErrConflict,
			wantErr:   "after 3 attempts",
		},
		{
			name: "status gate is not retried",
			errs: []error{domain.NewConflictError("c1",
				domain.Guard{Status: domain.ContestJudging, Version: 4},
				domain.Guard{Status: domain.ContestOpen, Version: 4})},
			wantCalls: 1,
			wantIs:    domain.ErrConflict,
		},
		{
			name:      "configuration errors are not retried",
			errs:      []error{domain.NewConfigurationError("c1", "bad")},
			wantCalls: 1,
			wantIs:    domain.ErrInvalidConfiguration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := RetryOnConflict(context.Background(), policy, func(context.Context) error {
				err := tt.errs[calls]
				calls++
				return err
			})

			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantIs == nil {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantIs)
			if tt.wantErr != "" {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

// TestRetryOnConflict_CanceledContext stops retrying once the context ends.
func TestRetryOnConflict_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{MaxRetries: 5, BaseDelay: time.Hour}

	calls := 0
	err := RetryOnConflict(ctx, policy, func(context.Context) error {
		calls++
		cancel()
		return conflict()
	})

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

// TestRetryPolicy_Delay keeps backoff within bounds.
func TestRetryPolicy_Delay(t *testing.T) {
	p := RetryPolicy{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}

	for attempt := 0; attempt < 6; attempt++ {
		d := p.delay(attempt)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, time.Second)
	}
	d := p.delay(0)
	assert.GreaterOrEqual(t, d, 75*time.Millisecond)
	assert.LessOrEqual(t, d, 125*time.Millisecond)

	assert.Zero(t, RetryPolicy{}.delay(3))
}

// TestRetryOnConflict_WithEngine recomputes after a concurrent edit and
// writes results computed from the new state.
func TestRetryOnConflict_WithEngine(t *testing.T) {
	store := testutils.NewInMemoryStore()
	store.Put(engineFixture())
	engine, _ := newTestEngine(t, store, nil)

	bumped := false
	store.BeforeReplace = func(id string) {
		if !bumped {
			bumped = true
			store.SetStatus(id, domain.ContestJudging)
		}
	}

	var outcome *domain.ContestOutcome
	err := RetryOnConflict(context.Background(), RetryPolicy{MaxRetries: 1}, func(ctx context.Context) error {
		var err error
		outcome, err = engine.ComputeContestResults(ctx, "contest-1")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, outcome.Awarded, store.Results("contest-1"))
	assert.EqualValues(t, 2, store.ReplaceCalls())
}
