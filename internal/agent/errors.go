// internal/agent/errors.go
package agent

import "errors"

// ErrAgentBusy is returned by Start and Run while a task is already running.
var ErrAgentBusy = errors.New("agent is already running a task")

// ErrPermissionDenied is returned by Start and Run when the process may not
// read or drive the UI.
var ErrPermissionDenied = errors.New("accessibility permission not granted")

// ErrorCode is a string type used for structured error reporting from action executors.
// Using a custom type ensures that only predefined constants can be used where an
// ErrorCode is expected.
type ErrorCode string

const (
	// -- General Execution Errors --
	ErrCodeExecutionFailure  ErrorCode = "EXECUTION_FAILURE"
	ErrCodeNotImplemented    ErrorCode = "NOT_IMPLEMENTED"
	ErrCodeInvalidParameters ErrorCode = "INVALID_PARAMETERS"
	ErrCodeUnknownAction     ErrorCode = "UNKNOWN_ACTION_TYPE"

	// -- Perception Errors --
	// ErrCodeElementNotFound means the tapped index is not in the current
	// analysis. Indices from an earlier cycle always land here.
	ErrCodeElementNotFound ErrorCode = "ELEMENT_NOT_FOUND"
	// ErrCodeGeometryUnavailable means the element exists but has no usable
	// position or size.
	ErrCodeGeometryUnavailable ErrorCode = "GEOMETRY_UNAVAILABLE"

	// -- Collaborator Errors --
	ErrCodeFileStoreFailure ErrorCode = "FILE_STORE_FAILURE"
	ErrCodeAppLaunchFailed  ErrorCode = "APP_LAUNCH_FAILED"
	ErrCodeSpeechFailure    ErrorCode = "SPEECH_FAILURE"

	// -- Internal System Errors --
	ErrCodeExecutorPanic ErrorCode = "EXECUTOR_PANIC"
)
