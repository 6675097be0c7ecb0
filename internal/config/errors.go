package config

import (
	"errors"
	"strings"
)

// ErrMissingConfig is wrapped by MissingConfigError.
var ErrMissingConfig = errors.New("missing required configuration")

// MissingConfigError lists every environment variable that must be set
// before the requested command can run.
type MissingConfigError struct {
	Vars []string
}

func (e *MissingConfigError) Error() string {
	return "missing required environment variables: " + strings.Join(e.Vars, ", ")
}

func (e *MissingConfigError) Unwrap() error { return ErrMissingConfig }
