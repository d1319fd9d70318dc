package schema

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Validator checks canonical events before they are persisted.
type Validator struct {
	validate  *validator.Validate
	maxAge    time.Duration
	maxFuture time.Duration
}

// ValidatorConfig holds configuration for the validator.
type ValidatorConfig struct {
	MaxAge    time.Duration `yaml:"max_age"`
	MaxFuture time.Duration `yaml:"max_future"`
}

// DefaultValidatorConfig returns the default validator configuration.
func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		MaxAge:    30 * 24 * time.Hour,
		MaxFuture: 5 * time.Minute,
	}
}

// NewValidator creates a new Validator with default configuration.
func NewValidator() *Validator {
	return NewValidatorWithConfig(DefaultValidatorConfig())
}

// NewValidatorWithConfig creates a new Validator with the given configuration.
func NewValidatorWithConfig(cfg ValidatorConfig) *Validator {
	return &Validator{
		validate:  validator.New(),
		maxAge:    cfg.MaxAge,
		maxFuture: cfg.MaxFuture,
	}
}

// Validate validates an event against the canonical schema and its
// timestamp against the configured bounds.
func (v *Validator) Validate(event *Event) error {
	if err := v.validate.Struct(event); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now().UTC()
	observed := time.Unix(event.Timestamp, 0).UTC()

	if observed.Before(now.Add(-v.maxAge)) {
		return fmt.Errorf("timestamp too old: %v (max age: %v)", observed, v.maxAge)
	}

	if observed.After(now.Add(v.maxFuture)) {
		return fmt.Errorf("timestamp in future: %v (max future: %v)", observed, v.maxFuture)
	}

	return nil
}
