package lnd

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLNDConnectionError_ErrorAndUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := &LNDConnectionError{Tries: 200, Cause: cause}

	assert.Contains(t, err.Error(), "200 tries")
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, cause, errors.Unwrap(err))
	assert.True(t, errors.Is(err, cause))
}

func TestLNDSubscriptionError_ErrorAndUnwrap(t *testing.T) {
	cause := errors.New("stream closed")
	err := &LNDSubscriptionError{Stream: "invoices", Cause: cause}

	assert.Contains(t, err.Error(), "invoices")
	assert.Contains(t, err.Error(), "stream closed")
	assert.Equal(t, cause, errors.Unwrap(err))
	assert.True(t, errors.Is(err, cause))
}
