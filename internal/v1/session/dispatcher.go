// Package session drives one accepted connection through its lifecycle:
// a mandatory authentication handshake, a strictly serial request loop,
// and a teardown that releases everything the session owns (its hosted
// room and its player full name).
//
// Framing is length-implicit: each request is one message-type byte whose
// value fixes the body size, each reply is a two-byte header followed by a
// fixed body. Body reads and reply writes are bounded by the configured
// timeout; the wait for the next request is not, because clients may idle
// between messages.
package session

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/pmms-project/pmms-server/internal/v1/auth"
	"github.com/pmms-project/pmms-server/internal/v1/logging"
	"github.com/pmms-project/pmms-server/internal/v1/metrics"
	"github.com/pmms-project/pmms-server/internal/v1/names"
	"github.com/pmms-project/pmms-server/internal/v1/store"
	"github.com/pmms-project/pmms-server/internal/v1/types"
	"github.com/pmms-project/pmms-server/pkg/wire"
)

// Deps bundles everything a session needs beyond its socket. All fields
// are shared across sessions and must be safe for concurrent use.
type Deps struct {
	Store  *store.Store
	Names  *names.Registry
	Policy *auth.Policy
	Prober types.ConnectionProber

	// Timeout bounds each body read and each reply write.
	Timeout time.Duration
	// MaxRoomCount caps the live room set.
	MaxRoomCount int
	// MaxPlayerPerRoom caps what a host may declare.
	MaxPlayerPerRoom uint8
}

// response is what a request handler produces on the success path. code
// may still carry a protocol-level error (an authentication mismatch
// replies with a populated body and a non-ok header).
type response struct {
	code       wire.ErrorCode
	reply      wire.Reply
	disconnect bool
}

// handlerFunc decodes one request body and acts on it. Notice handlers
// return a nil response. Errors are graded by type: *ClientError is
// reported to the peer, *SessionError steers the loop, anything else is
// an internal fault.
type handlerFunc func(ctx context.Context, body []byte) (*response, error)

// Session owns one connection. It is driven by exactly one goroutine;
// only the shared stores inside Deps need locking.
type Session struct {
	conn     net.Conn
	state    *State
	deps     Deps
	handlers map[wire.MessageType]handlerFunc
}

// New wires a session for an accepted connection.
func New(conn net.Conn, state *State, deps Deps) *Session {
	s := &Session{conn: conn, state: state, deps: deps}
	s.handlers = map[wire.MessageType]handlerFunc{
		wire.MessageTypeAuthenticationRequest:  s.handleAuthentication,
		wire.MessageTypeCreateRoomRequest:      s.handleCreateRoom,
		wire.MessageTypeListRoomRequest:        s.handleListRoom,
		wire.MessageTypeJoinRoomRequest:        s.handleJoinRoom,
		wire.MessageTypeUpdateRoomStatusNotice: s.handleUpdateRoomStatus,
		wire.MessageTypeConnectionTestRequest:  s.handleConnectionTest,
		wire.MessageTypeKeepAliveNotice:        s.handleKeepAlive,
	}
	return s
}

// State exposes the per-connection facts, mainly for teardown logging.
func (s *Session) State() *State { return s.state }

// Run drives the message loop until the session ends and reports how it
// ended. The first request must be an authentication_request; afterwards
// any cataloged type is accepted. Run always releases the session's owned
// state before returning.
func (s *Session) Run(ctx context.Context) *SessionError {
	defer s.releaseOwnedState(ctx)

	expect := wire.MessageTypeAuthenticationRequest
	for {
		serr := s.dispatchOne(ctx, expect)
		if serr != nil {
			return serr
		}
		expect = 0
	}
}

// dispatchOne reads, handles, and answers a single request. A nil return
// means the loop should continue. expect, when non-zero, pins the only
// acceptable message type (specific-type mode).
func (s *Session) dispatchOne(ctx context.Context, expect wire.MessageType) *SessionError {
	lctx := s.logContext(ctx)

	msgType, serr := s.readHeader()
	if serr != nil {
		return serr
	}

	size, known := wire.RequestBodySize(msgType)
	if !known {
		return newSessionError(NotContinuable, "unknown message type 0x%02x", uint8(msgType))
	}
	if expect != 0 && msgType != expect {
		return newSessionError(NotContinuable, "expected %s, got %s", expect, msgType)
	}

	body := make([]byte, size)
	if size > 0 {
		if err := s.conn.SetReadDeadline(time.Now().Add(s.deps.Timeout)); err != nil {
			return &SessionError{Kind: NotContinuable, Err: err}
		}
		if _, err := io.ReadFull(s.conn, body); err != nil {
			return classifyReadError(err, false)
		}
	}

	handler := s.handlers[msgType]
	start := time.Now()
	resp, err := handler(lctx, body)
	metrics.RequestDuration.WithLabelValues(msgType.String()).Observe(time.Since(start).Seconds())

	if err != nil {
		return s.dispatchError(lctx, msgType, err)
	}
	metrics.RequestsHandled.WithLabelValues(msgType.String(), "ok").Inc()

	if resp == nil {
		return nil
	}
	if serr := s.writeReply(resp.code, resp.reply); serr != nil {
		return serr
	}
	if resp.disconnect {
		return newSessionError(ExpectedDisconnection, "closing after %s reply", msgType)
	}
	return nil
}

// readHeader waits for the next message-type byte. The wait is unbounded:
// an idle client is not an error, and a clean close here is the expected
// way for a session to end.
func (s *Session) readHeader() (wire.MessageType, *SessionError) {
	if err := s.conn.SetReadDeadline(time.Time{}); err != nil {
		return 0, &SessionError{Kind: NotContinuable, Err: err}
	}
	var header [1]byte
	if _, err := io.ReadFull(s.conn, header[:]); err != nil {
		return 0, classifyReadError(err, true)
	}
	return wire.MessageType(header[0]), nil
}

// writeReply frames and sends a reply under the write deadline.
func (s *Session) writeReply(code wire.ErrorCode, reply wire.Reply) *SessionError {
	frame, err := wire.EncodeReply(code, reply)
	if err != nil {
		return &SessionError{Kind: NotContinuable, Err: err}
	}
	return s.writeFrame(frame)
}

func (s *Session) writeFrame(frame []byte) *SessionError {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.deps.Timeout)); err != nil {
		return &SessionError{Kind: NotContinuable, Err: err}
	}
	if _, err := s.conn.Write(frame); err != nil {
		return classifyWriteError(err)
	}
	return nil
}

// dispatchError grades a handler failure. Client errors are answered on
// the wire (unless the request was a notice), continuable session errors
// keep the loop alive, everything else tears the session down.
func (s *Session) dispatchError(ctx context.Context, msgType wire.MessageType, err error) *SessionError {
	var cerr *ClientError
	if errors.As(err, &cerr) {
		metrics.RequestsHandled.WithLabelValues(msgType.String(), cerr.Code.String()).Inc()
		logging.Info(ctx, "Request rejected",
			zap.Stringer("message_type", msgType),
			zap.Stringer("client_error", cerr.Code),
			zap.String("detail", cerr.Detail),
		)
		if !msgType.IsNotice() {
			if serr := s.writeErrorReply(msgType, cerr.Code.WireCode()); serr != nil {
				return serr
			}
		}
		if cerr.Code.DisconnectRequired() {
			return newSessionError(ExpectedDisconnection, "closing after %s: %s", msgType, cerr.Code)
		}
		return nil
	}

	var serr *SessionError
	if errors.As(err, &serr) {
		metrics.RequestsHandled.WithLabelValues(msgType.String(), serr.Kind.String()).Inc()
		if serr.Kind == Continuable {
			logging.Warn(ctx, "Request failed, session continues",
				zap.Stringer("message_type", msgType),
				zap.Error(serr.Err),
			)
			return nil
		}
		return serr
	}

	// Anything else is a broken internal invariant. Answer with a generic
	// failure when the type is answerable, then tear down.
	metrics.RequestsHandled.WithLabelValues(msgType.String(), "server_error").Inc()
	logging.Error(ctx, "Internal error while handling request",
		zap.Stringer("message_type", msgType),
		zap.Error(err),
	)
	if !msgType.IsNotice() {
		if werr := s.writeErrorReply(msgType, wire.ErrorCodeUnknown); werr != nil {
			return werr
		}
	}
	return &SessionError{Kind: NotContinuable, Err: err}
}

func (s *Session) writeErrorReply(msgType wire.MessageType, code wire.ErrorCode) *SessionError {
	frame, err := wire.EncodeErrorReply(msgType, code)
	if err != nil {
		return &SessionError{Kind: NotContinuable, Err: err}
	}
	return s.writeFrame(frame)
}

// releaseOwnedState removes the hosted room and frees the player full
// name. Safe to call once per session, on any exit path.
func (s *Session) releaseOwnedState(ctx context.Context) {
	lctx := s.logContext(ctx)

	if id, hosting := s.state.HostingRoomID(); hosting {
		if s.deps.Store.TryRemove(id) {
			metrics.ActiveRooms.Dec()
			logging.Info(lctx, "Removed room on session teardown", zap.Uint32("room_id", id))
		}
		_ = s.state.ClearHostingRoomID(id)
	}

	if s.state.Authenticated() {
		if err := s.deps.Names.Release(s.state.PlayerFullName()); err != nil {
			logging.Error(lctx, "Releasing player full name failed", zap.Error(err))
		}
	}
}

// logContext attaches the session facts every log line should carry.
func (s *Session) logContext(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, logging.CorrelationIDKey, s.state.CorrelationID())
	ctx = context.WithValue(ctx, logging.RemoteAddrKey, s.state.RemoteEndpoint().String())
	if s.state.Authenticated() {
		ctx = context.WithValue(ctx, logging.PlayerNameKey, s.state.PlayerFullName().String())
	}
	return ctx
}
