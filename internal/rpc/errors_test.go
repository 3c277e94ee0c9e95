package rpc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestCodedError_JSONRoundtrip(t *testing.T) {
	ce := &CodedError{Code: CodeSearchTimeout, Message: "search timed out after 30s"}

	parsed, err := ParseCodedError(ce.JSON())
	require.NoError(t, err)
	assert.Equal(t, ce.Code, parsed.Code)
	assert.Equal(t, ce.Message, parsed.Message)
}

func TestParseCodedError_Garbage(t *testing.T) {
	_, err := ParseCodedError("connection reset by peer")
	assert.Error(t, err)

	_, err = ParseCodedError(`{"message":"no code"}`)
	assert.Error(t, err)
}

func TestClassifyRemoteError_StructuredInternal(t *testing.T) {
	ce := &CodedError{Code: CodeServerInternal, Message: "boom"}
	err := classifyRemoteError(status.Error(codes.Internal, ce.JSON()))

	var got *CodedError
	require.ErrorAs(t, err, &got)
	assert.Equal(t, CodeServerInternal, got.Code)
}

func TestClassifyRemoteError_PlainInternal(t *testing.T) {
	err := classifyRemoteError(status.Error(codes.Internal, "something broke"))
	assert.ErrorIs(t, err, ErrQuerierNode)
}

func TestClassifyRemoteError_OtherCodes(t *testing.T) {
	for _, code := range []codes.Code{codes.Unavailable, codes.Unauthenticated, codes.DeadlineExceeded} {
		err := classifyRemoteError(status.Error(code, "nope"))
		assert.ErrorIs(t, err, ErrQuerierNode, code.String())
	}

	err := classifyRemoteError(errors.New("not a status error"))
	assert.ErrorIs(t, err, ErrQuerierNode)
}
