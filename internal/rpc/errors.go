package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Generic error kinds surfaced by the client. The aggregation layer logs and
// drops them; other call sites may wrap or propagate them.
var (
	// ErrNodeUnreachable means the peer could not be dialed within the
	// connect timeout.
	ErrNodeUnreachable = errors.New("search node unreachable")

	// ErrQuerierNode means the peer answered with an error that carried no
	// structured code.
	ErrQuerierNode = errors.New("querier node error")
)

// ErrorCode identifies a structured application error raised on the serving
// side of a node-to-node call.
type ErrorCode int32

const (
	CodeServerInternal  ErrorCode = 10001
	CodeSearchTimeout   ErrorCode = 10002
	CodeSearchCancelled ErrorCode = 10003
	CodeInvalidToken    ErrorCode = 10004
)

// CodedError is the tagged cross-boundary error variant: a remote
// application error with a diagnosable code. It travels as the JSON message
// of a gRPC Internal status and is parsed back on the calling side, so
// callers can distinguish it from generic transport failures.
type CodedError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func (e *CodedError) Error() string {
	return fmt.Sprintf("error code %d: %s", e.Code, e.Message)
}

// JSON renders the error in the form ParseCodedError accepts.
func (e *CodedError) JSON() string {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf(`{"code":%d,"message":"marshal error"}`, e.Code)
	}
	return string(data)
}

// ParseCodedError decodes a CodedError from a remote status message. It
// fails when the message is not such a document, in which case the caller
// falls back to the generic classification.
func ParseCodedError(msg string) (*CodedError, error) {
	var ce CodedError
	if err := json.Unmarshal([]byte(msg), &ce); err != nil {
		return nil, fmt.Errorf("parse coded error: %w", err)
	}
	if ce.Code == 0 {
		return nil, errors.New("parse coded error: missing code")
	}
	return &ce, nil
}
