// Package errors provides structured, coded errors shared by crawler services.
package errors

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// CodeInvalidArgument marks a caller contract violation.
	CodeInvalidArgument Code = "INVALID_ARGUMENT"

	// CodeNotFound marks a missing record in a collaborator store.
	CodeNotFound Code = "NOT_FOUND"

	// Pipeline errors
	CodeRenderFailure Code = "RENDER_FAILURE"
	CodeLookupFailure Code = "LOOKUP_FAILURE"
	CodeIndexError    Code = "INDEX_ERROR"
	CodeNetworkError  Code = "NETWORK_ERROR"
	CodeStoreError    Code = "STORE_ERROR"
)

// Recoverable reports whether the pipeline downgrades this code to an isolated,
// logged failure instead of aborting work.
func (c Code) Recoverable() bool {
	switch c {
	case CodeLookupFailure, CodeIndexError, CodeNetworkError, CodeStoreError, CodeNotFound:
		return true
	default:
		return false
	}
}
