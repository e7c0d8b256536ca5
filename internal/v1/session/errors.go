package session

import (
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/pmms-project/pmms-server/pkg/wire"
)

// ClientErrorCode classifies a request that is semantically wrong for the
// client that sent it.
type ClientErrorCode uint8

const (
	ClientErrorOperationInvalid ClientErrorCode = iota
	ClientErrorRequestParameterWrong
	ClientErrorRoomNotFound
	ClientErrorRoomPasswordWrong
	ClientErrorRoomFull
	ClientErrorRoomPermissionDenied
	ClientErrorRoomCountExceedsLimit
	ClientErrorRoomConnectionEstablishModeMismatch
	ClientErrorClientAlreadyHostingRoom
)

func (c ClientErrorCode) String() string {
	switch c {
	case ClientErrorOperationInvalid:
		return "operation_invalid"
	case ClientErrorRequestParameterWrong:
		return "request_parameter_wrong"
	case ClientErrorRoomNotFound:
		return "room_not_found"
	case ClientErrorRoomPasswordWrong:
		return "room_password_wrong"
	case ClientErrorRoomFull:
		return "room_full"
	case ClientErrorRoomPermissionDenied:
		return "room_permission_denied"
	case ClientErrorRoomCountExceedsLimit:
		return "room_count_exceeds_limit"
	case ClientErrorRoomConnectionEstablishModeMismatch:
		return "room_connection_establish_mode_mismatch"
	case ClientErrorClientAlreadyHostingRoom:
		return "client_already_hosting_room"
	default:
		return "invalid"
	}
}

// WireCode maps the taxonomy onto the reply header's error code, which is
// coarser than the internal classification.
func (c ClientErrorCode) WireCode() wire.ErrorCode {
	switch c {
	case ClientErrorRoomNotFound:
		return wire.ErrorCodeRoomNotExist
	case ClientErrorRoomPasswordWrong, ClientErrorRoomConnectionEstablishModeMismatch:
		return wire.ErrorCodeJoinRejected
	case ClientErrorRoomFull:
		return wire.ErrorCodePlayerCountReachesLimit
	case ClientErrorRoomPermissionDenied:
		return wire.ErrorCodePermissionDenied
	case ClientErrorRoomCountExceedsLimit:
		return wire.ErrorCodeRoomCountReachesLimit
	case ClientErrorClientAlreadyHostingRoom:
		return wire.ErrorCodeRoomNameDuplicated
	default:
		return wire.ErrorCodeDenied
	}
}

// DisconnectRequired reports whether the session must end after the error
// reply is written. Only protocol-misuse errors force a disconnect;
// room-level rejections leave the session alive so the client can retry.
func (c ClientErrorCode) DisconnectRequired() bool {
	return c == ClientErrorOperationInvalid || c == ClientErrorRequestParameterWrong
}

// ClientError is reported to the client through the reply header.
type ClientError struct {
	Code   ClientErrorCode
	Detail string
}

func (e *ClientError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("client error: %s", e.Code)
	}
	return fmt.Sprintf("client error: %s: %s", e.Code, e.Detail)
}

// NewClientError builds a taxonomy error with a formatted detail string.
func NewClientError(code ClientErrorCode, format string, args ...any) *ClientError {
	return &ClientError{Code: code, Detail: fmt.Sprintf(format, args...)}
}

// SessionErrorKind classifies I/O failures and protocol framing faults.
type SessionErrorKind uint8

const (
	// ExpectedDisconnection covers a clean close while waiting for the
	// next request, and server-initiated closes after an error reply.
	ExpectedDisconnection SessionErrorKind = iota
	// UnexpectedDisconnection is a connection dropped mid-message.
	UnexpectedDisconnection
	// Continuable faults are logged and the session keeps running.
	Continuable
	// NotContinuable faults tear the session down; the acceptor slot
	// restarts afterwards.
	NotContinuable
)

func (k SessionErrorKind) String() string {
	switch k {
	case ExpectedDisconnection:
		return "expected_disconnection"
	case UnexpectedDisconnection:
		return "unexpected_disconnection"
	case Continuable:
		return "continuable_error"
	case NotContinuable:
		return "not_continuable_error"
	default:
		return "invalid"
	}
}

// SessionError wraps an underlying fault with its severity.
type SessionError struct {
	Kind SessionErrorKind
	Err  error
}

func (e *SessionError) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }

func newSessionError(kind SessionErrorKind, format string, args ...any) *SessionError {
	return &SessionError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// classifyReadError grades a failed read. A deadline expiry means the
// scoped timeout fired and the session cannot be trusted to be in sync;
// anything else mid-message is the peer vanishing.
func classifyReadError(err error, idle bool) *SessionError {
	if idle && errors.Is(err, io.EOF) {
		return &SessionError{Kind: ExpectedDisconnection, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &SessionError{Kind: NotContinuable, Err: fmt.Errorf("read canceled by timeout: %w", err)}
	}
	return &SessionError{Kind: UnexpectedDisconnection, Err: err}
}

func classifyWriteError(err error) *SessionError {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &SessionError{Kind: NotContinuable, Err: fmt.Errorf("write canceled by timeout: %w", err)}
	}
	return &SessionError{Kind: UnexpectedDisconnection, Err: err}
}
