package chain

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rpc"
)

// RPCError is a JSON-RPC error object returned by the node.
type RPCError struct {
	Method  string
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("%s: rpc error %d: %s", e.Method, e.Code, e.Message)
}

// HTTPError is a non-2xx response from the node's HTTP endpoint.
type HTTPError struct {
	Method     string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s: http %d: %s", e.Method, e.StatusCode, e.Body)
}

func wrapError(method string, err error) error {
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return &HTTPError{Method: method, StatusCode: httpErr.StatusCode, Body: string(httpErr.Body)}
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return &RPCError{Method: method, Code: rpcErr.ErrorCode(), Message: rpcErr.Error()}
	}
	return fmt.Errorf("%s: %w", method, err)
}
