// Package mcp implements the Model Context Protocol server exposing
// rehydration tools to AI clients.
package mcp

import (
	"errors"
	"fmt"

	rerr "github.com/TheMonk2121/rehydrate/internal/errors"
)

// MCP protocol error codes.
const (
	// ErrCodeIndexNotFound indicates no index exists for the project.
	ErrCodeIndexNotFound = -32001

	// ErrCodeRetrievalFailed indicates both retrieval channels failed.
	ErrCodeRetrievalFailed = -32002

	// ErrCodeTimeout indicates the request timed out.
	ErrCodeTimeout = -32003

	// ErrCodeResourceExhausted indicates the request limiter rejected the call.
	ErrCodeResourceExhausted = -32004

	// Standard JSON-RPC error codes.
	ErrCodeInvalidParams = -32602
	ErrCodeInternalError = -32603
)

// MCPError represents an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// NewInvalidParamsError creates an invalid-params error.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// MapError converts internal errors to MCP protocol errors.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var re *rerr.RehydrateError
	if errors.As(err, &re) {
		return mapRehydrateError(re)
	}

	return &MCPError{
		Code:    ErrCodeInternalError,
		Message: err.Error(),
	}
}

// mapRehydrateError maps structured error codes onto protocol codes.
func mapRehydrateError(re *rerr.RehydrateError) *MCPError {
	msg := re.Message
	if re.Suggestion != "" {
		msg = fmt.Sprintf("%s (%s)", msg, re.Suggestion)
	}

	switch re.Code {
	case rerr.ErrCodeIndexNotFound, rerr.ErrCodeCorruptIndex:
		return &MCPError{Code: ErrCodeIndexNotFound, Message: "Index not found. Run 'rehydrate index' first."}
	case rerr.ErrCodeRetrievalUnavailable, rerr.ErrCodeEmbeddingUnavailable:
		return &MCPError{Code: ErrCodeRetrievalFailed, Message: msg}
	case rerr.ErrCodeTimeout:
		return &MCPError{Code: ErrCodeTimeout, Message: msg}
	case rerr.ErrCodeResourceExhausted:
		return &MCPError{Code: ErrCodeResourceExhausted, Message: msg}
	case rerr.ErrCodeInvalidInput, rerr.ErrCodeUnknownRole, rerr.ErrCodeQueryEmpty:
		return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: msg}
	}
}
