package ports

import (
	"errors"
	"fmt"
)

// Common infrastructure errors that can occur during store interactions.
var (
	// ErrStoreUnavailable indicates that the backing database could not be
	// reached.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrTemplateNotFound indicates that a judging template does not exist.
	ErrTemplateNotFound = errors.New("judging template not found")

	// ErrSubmissionNotFound indicates that a submission does not exist in the
	// given contest.
	ErrSubmissionNotFound = errors.New("submission not found")

	// ErrConfigNotFound indicates that required configuration is missing.
	ErrConfigNotFound = errors.New("configuration not found")
)

// StoreError represents an error from a persistence operation.
// It includes the contest and operation that failed.
type StoreError struct {
	// Operation is the name of the store operation that failed.
	Operation string

	// ContestID is the contest the operation was scoped to.
	ContestID string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface for StoreError.
func (e *StoreError) Error() string {
	return fmt.Sprintf("store error: operation=%s, contest=%s, err=%v", e.Operation, e.ContestID, e.Err)
}

// Unwrap returns the underlying error.
func (e *StoreError) Unwrap() error { return e.Err }

// NewStoreError creates a new StoreError with the given details.
func NewStoreError(operation, contestID string, err error) *StoreError {
	return &StoreError{
		Operation: operation,
		ContestID: contestID,
		Err:       err,
	}
}

// MetricsError represents an error from metrics collection operations.
type MetricsError struct {
	// Metric is the name of the metric that was being collected when the
	// error occurred.
	Metric string

	// Operation is the name of the metrics operation that failed.
	Operation string

	// Err is the underlying error that caused the metrics operation to fail.
	Err error
}

// Error implements the error interface for MetricsError.
func (e *MetricsError) Error() string {
	return fmt.Sprintf("metrics error: operation=%s, metric=%s, err=%v", e.Operation, e.Metric, e.Err)
}

// Unwrap returns the underlying error.
func (e *MetricsError) Unwrap() error { return e.Err }

// NewMetricsError creates a new MetricsError with the given details.
func NewMetricsError(metric, operation string, err error) *MetricsError {
	return &MetricsError{
		Metric:    metric,
		Operation: operation,
		Err:       err,
	}
}

// ConfigError represents an error from configuration operations.
type ConfigError struct {
	// ConfigKey is the configuration key that was involved in the failed
	// operation.
	ConfigKey string

	// Err is the underlying error that caused the configuration operation
	// to fail.
	Err error
}

// Error implements the error interface for ConfigError.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: key=%s, err=%v", e.ConfigKey, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error { return e.Err }

// NewConfigError creates a new ConfigError with the given details.
func NewConfigError(key string, err error) *ConfigError {
	return &ConfigError{
		ConfigKey: key,
		Err:       err,
	}
}
