// Package errors provides the computed-attribute engine's unified error
// taxonomy: a stable Kind, a machine-checkable Code, and a human Message,
// crossing every component boundary the same way.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies an error by the condition that produced it. Kind is not an
// implementation type: it is the dimension callers branch on to decide
// whether a failure is worth retrying.
type Kind string

const (
	KindValidation          Kind = "Validation"
	KindAttributeNotFound   Kind = "AttributeNotFound"
	KindCircularDependency  Kind = "CircularDependency"
	KindMaxDepthExceeded    Kind = "MaxDepthExceeded"
	KindComputationTimeout  Kind = "ComputationTimeout"
	KindComputationFailed   Kind = "ComputationFailed"
	KindMemoryLimitExceeded Kind = "MemoryLimitExceeded"
	KindCacheError          Kind = "CacheError"
	KindConfigurationError  Kind = "ConfigurationError"
	KindExternalRequestFailed Kind = "ExternalRequestFailed"
)

// Code is a stable, machine-checkable identifier for an error, independent
// of the human-readable Message.
type Code string

const (
	CodeValidation          Code = "VALIDATION"
	CodeAttributeNotFound   Code = "ATTRIBUTE_NOT_FOUND"
	CodeCircularDependency  Code = "CIRCULAR_DEPENDENCY"
	CodeMaxDepthExceeded    Code = "MAX_DEPTH_EXCEEDED"
	CodeComputationTimeout  Code = "COMPUTATION_TIMEOUT"
	CodeComputationFailed   Code = "COMPUTATION_FAILED"
	CodeMemoryLimitExceeded Code = "MEMORY_LIMIT_EXCEEDED"
	CodeCacheError          Code = "CACHE_ERROR"
	CodeConfigurationError  Code = "CONFIGURATION_ERROR"
	CodeExternalRequestFailed Code = "EXTERNAL_REQUEST_FAILED"
)

// EngineError is a structured error carried across every public API boundary
// of the engine.
type EngineError struct {
	Kind        Kind
	Code        Code
	Message     string
	AttributeID string
	TargetID    string
	Details     map[string]interface{}
	Err         error
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the wrapped cause, if any, so errors.Is/errors.As compose
// across a compute body's own errors.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// WithDetails attaches an additional diagnostic key/value pair.
func (e *EngineError) WithDetails(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithAttribute sets the offending attribute ID.
func (e *EngineError) WithAttribute(id string) *EngineError {
	e.AttributeID = id
	return e
}

// WithTarget sets the offending target ID.
func (e *EngineError) WithTarget(id string) *EngineError {
	e.TargetID = id
	return e
}

// New creates a new EngineError with no wrapped cause.
func New(kind Kind, code Code, message string) *EngineError {
	return &EngineError{Kind: kind, Code: code, Message: message}
}

// Wrap creates a new EngineError wrapping an existing error.
func Wrap(kind Kind, code Code, message string, err error) *EngineError {
	return &EngineError{Kind: kind, Code: code, Message: message, Err: err}
}

// Recoverable reports whether the kind of error is worth retrying, per the
// engine's documented error taxonomy.
func (k Kind) Recoverable() bool {
	switch k {
	case KindComputationTimeout, KindComputationFailed, KindMemoryLimitExceeded,
		KindCacheError, KindExternalRequestFailed:
		return true
	default:
		return false
	}
}

// Validation errors.

func Empty(field string) *EngineError {
	return New(KindValidation, CodeValidation, "missing required field").WithDetails("field", field)
}

func InvalidTargetKind(kind interface{}) *EngineError {
	return New(KindValidation, CodeValidation, "invalid target kind").WithDetails("targetKind", kind)
}

func DuplicateAttribute(id string) *EngineError {
	return New(KindValidation, CodeValidation, "attribute already registered").WithAttribute(id)
}

// Registry/graph errors.

func AttributeNotFound(id string) *EngineError {
	return New(KindAttributeNotFound, CodeAttributeNotFound, "attribute not registered").WithAttribute(id)
}

func CircularDependency(from, to string) *EngineError {
	return New(KindCircularDependency, CodeCircularDependency, "adding this edge would close a cycle").
		WithDetails("from", from).WithDetails("to", to)
}

func MaxDepthExceeded(from string, max int) *EngineError {
	return New(KindMaxDepthExceeded, CodeMaxDepthExceeded, "dependency chain exceeds configured maximum depth").
		WithAttribute(from).WithDetails("maxDepth", max)
}

// Computation errors.

func ComputationTimeout(attributeID, targetID string, d interface{}) *EngineError {
	return New(KindComputationTimeout, CodeComputationTimeout, "computation did not finish before its deadline").
		WithAttribute(attributeID).WithTarget(targetID).WithDetails("timeout", d)
}

func ComputationFailed(attributeID, targetID string, err error) *EngineError {
	return Wrap(KindComputationFailed, CodeComputationFailed, "compute body returned an error", err).
		WithAttribute(attributeID).WithTarget(targetID)
}

func MemoryLimitExceeded(scope string, bytes int64) *EngineError {
	return New(KindMemoryLimitExceeded, CodeMemoryLimitExceeded, "memory limit exceeded").
		WithDetails("scope", scope).WithDetails("bytes", bytes)
}

// Infrastructure errors.

func CacheErr(operation string, err error) *EngineError {
	return Wrap(KindCacheError, CodeCacheError, "cache operation failed", err).WithDetails("operation", operation)
}

func ConfigurationError(message string) *EngineError {
	return New(KindConfigurationError, CodeConfigurationError, message)
}

func ExternalRequestFailed(service string, err error) *EngineError {
	return Wrap(KindExternalRequestFailed, CodeExternalRequestFailed, "external request failed", err).
		WithDetails("service", service)
}

// Is reports whether err is an *EngineError of the given kind.
func Is(err error, kind Kind) bool {
	var ee *EngineError
	if stderrors.As(err, &ee) {
		return ee.Kind == kind
	}
	return false
}

// As extracts an *EngineError from an error chain, mirroring errors.As.
func As(err error) (*EngineError, bool) {
	var ee *EngineError
	ok := stderrors.As(err, &ee)
	return ee, ok
}
