package loader

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownLoader   = errors.New("unknown loader")
	ErrMalformedUse    = errors.New("malformed use entry")
	ErrMissingCompiler = errors.New("missing compiler")
	ErrNotRegistered   = errors.New("loader is not registered")
)

// ConfigError is fatal configuration problem detected when pipeline is built.
type ConfigError struct {
	Loader string
	Err    error
}

func (e *ConfigError) Error() string {
	if len(e.Loader) == 0 {
		return fmt.Sprintf("configuration error: %v", e.Err)
	}
	return fmt.Sprintf("configuration error, loader %q: %v", e.Loader, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// TransformError is file scoped failure of one pipeline stage.
type TransformError struct {
	ID     string
	Loader string
	Err    error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("unable to transform %s with %s loader: %v", e.ID, e.Loader, e.Err)
}

func (e *TransformError) Unwrap() error {
	return e.Err
}

// MissingCompilerError names the package which has to be installed for loader
// to work.
type MissingCompilerError struct {
	Loader  string
	Package string
	Err     error
}

func (e *MissingCompilerError) Error() string {
	msg := fmt.Sprintf("loader %q requires %q to be installed", e.Loader, e.Package)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MissingCompilerError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrMissingCompiler}
	}
	return []error{ErrMissingCompiler, e.Err}
}
