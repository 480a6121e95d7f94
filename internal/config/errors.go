package config

import (
	"errors"
	"fmt"

	"github.com/okian/bidsify/internal/domain/model"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s: %w", ErrInvalidConfig, fmt.Sprintf(format, args...), model.ErrConfig)
}

func loadErr(path string, err error) error {
	return fmt.Errorf("%w: %s: %w: %w", ErrLoadConfig, path, err, model.ErrConfig)
}
