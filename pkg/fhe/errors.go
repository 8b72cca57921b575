package fhe

import (
	"errors"
	"fmt"
)

// Common errors returned by the engine and its backends
var (
	ErrMissingCapability = errors.New("backend lacks a required operation")
	ErrNoiseBudget       = errors.New("noise budget cannot accommodate the circuit")
	ErrPlaintextSpace    = errors.New("plaintext space too small for the limb layout")
	ErrDegreeOverflow    = errors.New("limb degree exceeds the plaintext modulus")
	ErrInvalidParameters = errors.New("invalid parameters")
	ErrForeignCiphertext = errors.New("ciphertext does not belong to this backend")
	ErrOutOfRange        = errors.New("value out of range")
)

// ConfigurationError reports domain parameters or engine settings that are
// inconsistent. It is fatal and surfaces before any ciphertext work starts.
type ConfigurationError struct {
	Param  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration %s: %s: %v", e.Param, e.Reason, e.Err)
	}
	return fmt.Sprintf("configuration %s: %s", e.Param, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// NewConfigurationError creates a new ConfigurationError.
func NewConfigurationError(param, reason string, err error) *ConfigurationError {
	if err == nil {
		err = ErrInvalidParameters
	}
	return &ConfigurationError{
		Param:  param,
		Reason: reason,
		Err:    err,
	}
}

// BackendCapabilityError reports a backend that cannot carry the engine's
// circuits: a missing operation, a plaintext space too small for any limb
// layout, or a noise budget smaller than one operation.
type BackendCapabilityError struct {
	Backend string
	Reason  string
	Err     error
}

func (e *BackendCapabilityError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("backend %s: %s: %v", e.Backend, e.Reason, e.Err)
	}
	return fmt.Sprintf("backend %s: %s", e.Backend, e.Reason)
}

func (e *BackendCapabilityError) Unwrap() error {
	return e.Err
}

// NewCapabilityError creates a new BackendCapabilityError.
func NewCapabilityError(backend, reason string, err error) *BackendCapabilityError {
	return &BackendCapabilityError{
		Backend: backend,
		Reason:  reason,
		Err:     err,
	}
}
