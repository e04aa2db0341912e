package a2a

import (
	"errors"
	"fmt"
)

// JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// RPCError is a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitzero"`
}

func (e *RPCError) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("rpc error: code = %d, message = %s, data = %v", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("rpc error: code = %d, message = %s", e.Code, e.Message)
}

// NewRPCError creates an RPCError.
func NewRPCError(code int, message string, data any) *RPCError {
	return &RPCError{Code: code, Message: message, Data: data}
}

// IsRPCError reports whether err is an RPCError with the given code.
func IsRPCError(err error, code int) bool {
	var rpcErr *RPCError
	return errors.As(err, &rpcErr) && rpcErr.Code == code
}

// TaskFailedError reports a peer task that ended failed or rejected.
type TaskFailedError struct {
	State   TaskState
	Message string
}

func (e *TaskFailedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("peer task %s", e.State)
	}
	return fmt.Sprintf("peer task %s: %s", e.State, e.Message)
}
