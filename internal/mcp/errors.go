// Package mcp implements the Model Context Protocol (MCP) server for unifind.
package mcp

import (
	"context"
	"errors"
	"fmt"

	uferrors "github.com/Aman-CERP/unifind/internal/errors"
)

// Custom MCP error codes for unifind.
const (
	// ErrCodeBackendUnavailable indicates the search backend is unreachable.
	ErrCodeBackendUnavailable = -32001

	// ErrCodeSyncFailed indicates a provider call failed.
	ErrCodeSyncFailed = -32002

	// ErrCodeTimeout indicates the request timed out.
	ErrCodeTimeout = -32003

	// ErrCodeNotFound indicates an unknown entry, account or a file that no
	// longer exists on disk.
	ErrCodeNotFound = -32004

	// ErrCodeAccessDenied indicates the entry or account belongs to another user.
	ErrCodeAccessDenied = -32005

	// Standard JSON-RPC error codes.
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// ErrToolNotFound indicates the requested tool does not exist.
var ErrToolNotFound = errors.New("tool not found")

// MCPError represents an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts internal errors to MCP errors.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}

	if ue, ok := uferrors.As(err); ok {
		return mapUnifindError(ue)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	case errors.Is(err, ErrToolNotFound):
		return &MCPError{Code: ErrCodeMethodNotFound, Message: "Tool not found."}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
	}
}

// NewInvalidParamsError creates an error for invalid parameters with a custom message.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{
		Code:    ErrCodeInvalidParams,
		Message: msg,
	}
}

// NewMethodNotFoundError creates an error for unknown methods/tools.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{
		Code:    ErrCodeMethodNotFound,
		Message: fmt.Sprintf("Tool '%s' not found.", name),
	}
}

// mapUnifindError converts a coded error to an MCPError by category.
func mapUnifindError(ue *uferrors.UnifindError) *MCPError {
	message := ue.Message
	if ue.Suggestion != "" {
		message = fmt.Sprintf("%s. %s", ue.Message, ue.Suggestion)
	}

	if uferrors.IsNotFound(ue) {
		return &MCPError{Code: ErrCodeNotFound, Message: message}
	}

	switch ue.Category {
	case uferrors.CategoryValidation:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	case uferrors.CategoryAuthorization:
		return &MCPError{Code: ErrCodeAccessDenied, Message: message}
	case uferrors.CategorySync:
		return &MCPError{Code: ErrCodeSyncFailed, Message: message}
	case uferrors.CategoryNetwork:
		if ue.Code == uferrors.ErrCodeBackendUnavailable {
			return &MCPError{Code: ErrCodeBackendUnavailable, Message: message}
		}
		return &MCPError{Code: ErrCodeTimeout, Message: message}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	}
}
