package application

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/contesthub/resultengine/internal/domain"
)

// RetryPolicy bounds how often a computation refused with a conflict is
// rerun from a fresh read.
type RetryPolicy struct {
	// MaxRetries is the number of reruns after the first attempt.
	MaxRetries int `yaml:"max_retries" validate:"min=0,max=10"`
	// BaseDelay is the wait before the first rerun. It doubles per rerun.
	BaseDelay time.Duration `yaml:"base_delay" validate:"min=0"`
	// MaxDelay caps the wait between reruns.
	MaxDelay time.Duration `yaml:"max_delay" validate:"min=0"`
}

// RetryOnConflict runs fn and reruns it with exponential backoff while it
// fails because the contest changed during the run. A conflict whose
// version did not move is a status gate and is returned at once, as is any
// other error or a done context.
func RetryOnConflict(ctx context.Context, policy RetryPolicy, fn func(context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !contestChanged(err) || ctx.Err() != nil {
			return err
		}
		if attempt == policy.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(policy.delay(attempt)):
		}
	}

	return fmt.Errorf("contest still changing after %d attempts: %w", policy.MaxRetries+1, lastErr)
}

func contestChanged(err error) bool {
	var conflict *domain.ConflictError
	return errors.As(err, &conflict) && conflict.Expected.Version != conflict.Actual.Version
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	attempt = min(max(attempt, 0), 30)
	delay := p.BaseDelay << attempt

	// ±25% jitter.
	jitter := time.Duration(rand.Float64() * float64(delay) * 0.5) // #nosec G404
	delay = delay + jitter - delay/4

	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}
