package ports

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/contesthub/resultengine/internal/domain"
)

// TestStoreError tests the functionality of the StoreError error type.
func TestStoreError(t *testing.T) {
	t.Run("basic error", func(t *testing.T) {
		err := NewStoreError("LoadSnapshot", "contest-1", ErrStoreUnavailable)

		assert.Equal(t, "store error: operation=LoadSnapshot, contest=contest-1, err=store unavailable", err.Error())
		assert.Equal(t, "LoadSnapshot", err.Operation)
		assert.Equal(t, "contest-1", err.ContestID)
		assert.True(t, errors.Is(err, ErrStoreUnavailable))
	})

	t.Run("domain errors stay matchable through the wrapper", func(t *testing.T) {
		conflict := domain.NewConflictError("contest-1",
			domain.Guard{Status: domain.ContestJudging, Version: 1},
			domain.Guard{Status: domain.ContestJudging, Version: 2})
		err := fmt.Errorf("compute: %w", NewStoreError("ReplaceResults", "contest-1", conflict))

		assert.True(t, errors.Is(err, domain.ErrConflict))

		var storeErr *StoreError
		assert.True(t, errors.As(err, &storeErr))
		assert.Equal(t, "ReplaceResults", storeErr.Operation)
	})
}

// TestMetricsError tests the functionality of the MetricsError error type.
func TestMetricsError(t *testing.T) {
	baseErr := errors.New("registry conflict")
	err := NewMetricsError("contest_runs_total", "RecordCounter", baseErr)

	assert.Equal(t, "metrics error: operation=RecordCounter, metric=contest_runs_total, err=registry conflict", err.Error())
	assert.True(t, errors.Is(err, baseErr))
}

// TestConfigError tests the functionality of the ConfigError error type.
func TestConfigError(t *testing.T) {
	err := NewConfigError("database.dsn", ErrConfigNotFound)

	assert.Equal(t, "config error: key=database.dsn, err=configuration not found", err.Error())
	assert.Equal(t, "database.dsn", err.ConfigKey)
	assert.True(t, errors.Is(err, ErrConfigNotFound))
}
