package netengine

import (
	stderrors "github.com/corvidnet/netengine/internal/errors"
)

// ReceiveStatus reports the outcome of a receive operation, synchronous or
// delivered to OnReceived.
type ReceiveStatus int

const (
	ReceiveSuccess ReceiveStatus = iota
	ReceiveTimeOut
	ReceiveNotConnected
	ReceiveConnectionClosing
	ReceiveSocketError
	ReceiveFailed
	ReceiveNotSupported
)

func (s ReceiveStatus) String() string {
	switch s {
	case ReceiveSuccess:
		return "SUCCESS"
	case ReceiveTimeOut:
		return "TIME_OUT"
	case ReceiveNotConnected:
		return "NOT_CONNECTED"
	case ReceiveConnectionClosing:
		return "CONNECTION_CLOSING"
	case ReceiveSocketError:
		return "SOCKET_ERROR"
	case ReceiveFailed:
		return "RECEIVE_FAILED"
	case ReceiveNotSupported:
		return "NOT_SUPPORTED"
	default:
		return "UNKNOWN"
	}
}

// SendStatus reports the outcome of a Send call.
type SendStatus int

const (
	SendSuccess SendStatus = iota
	SendTimeOut
	SendSocketError
	SendFailed
	SendNotConnected
)

func (s SendStatus) String() string {
	switch s {
	case SendSuccess:
		return "SUCCESS"
	case SendTimeOut:
		return "TIME_OUT"
	case SendSocketError:
		return "SOCKET_ERROR"
	case SendFailed:
		return "SEND_FAILED"
	case SendNotConnected:
		return "NOT_CONNECTED"
	default:
		return "UNKNOWN"
	}
}

// statusCategory extends internal/errors.ErrorCategory with the connection
// engine's own failure domains, rather than reusing its memory/bounds/
// security categories, which don't fit a network protocol error.
type statusCategory = stderrors.ErrorCategory

const (
	categoryConn  statusCategory = "CONNECTION"
	categoryFrame statusCategory = "FRAME"
	categoryConf  statusCategory = "CONFIG"
)

// StatusError is the error type this package returns for configuration and
// framing failures; ReceiveStatus and SendStatus values are returned as
// plain statuses, not wrapped in it. It is a
// thin alias over internal/errors.StandardError, the category+code+message
// shape used elsewhere in the runtime tree, so netengine's errors carry the
// same caller-attribution and Context map as the rest of the runtime.
type StatusError = stderrors.StandardError

func newStatusError(cat statusCategory, code, msg string) *StatusError {
	return stderrors.NewStandardError(cat, code, msg, nil)
}
