package session

import (
	"errors"

	"github.com/pmms-project/pmms-server/internal/v1/types"
	"github.com/pmms-project/pmms-server/pkg/wire"
)

var (
	// ErrAlreadyHostingRoom means a second room id was about to overwrite
	// the one the session already owns.
	ErrAlreadyHostingRoom = errors.New("session: already hosting a room")
	// ErrHostingRoomMismatch means a clear named a room the session does
	// not own. Both conditions are server-side invariant breaks.
	ErrHostingRoomMismatch = errors.New("session: hosting room id mismatch")
)

// State holds the per-connection mutable facts. Every access happens on
// the session's own goroutine, so there is no lock.
type State struct {
	correlationID  string
	remoteEndpoint wire.Endpoint

	authenticated  bool
	playerFullName types.PlayerFullName

	hostingRoomID uint32
	isHostingRoom bool
}

// NewState seeds the state for a freshly accepted connection.
func NewState(correlationID string, remote wire.Endpoint) *State {
	return &State{correlationID: correlationID, remoteEndpoint: remote}
}

// CorrelationID ties every log line of this connection together.
func (s *State) CorrelationID() string { return s.correlationID }

// RemoteEndpoint is the peer's normalized TCP endpoint.
func (s *State) RemoteEndpoint() wire.Endpoint { return s.remoteEndpoint }

// Authenticated reports whether the handshake has completed.
func (s *State) Authenticated() bool { return s.authenticated }

// PlayerFullName is valid only after authentication.
func (s *State) PlayerFullName() types.PlayerFullName { return s.playerFullName }

// MarkAuthenticated records the allocated full name.
func (s *State) MarkAuthenticated(fullName types.PlayerFullName) {
	s.authenticated = true
	s.playerFullName = fullName
}

// HostingRoomID returns the owned room id and whether one is set.
func (s *State) HostingRoomID() (uint32, bool) {
	return s.hostingRoomID, s.isHostingRoom
}

// SetHostingRoomID records room ownership. A session owns at most one
// room at a time.
func (s *State) SetHostingRoomID(id uint32) error {
	if s.isHostingRoom {
		return ErrAlreadyHostingRoom
	}
	s.hostingRoomID = id
	s.isHostingRoom = true
	return nil
}

// ClearHostingRoomID releases ownership. The id must match the one set.
func (s *State) ClearHostingRoomID(id uint32) error {
	if !s.isHostingRoom || s.hostingRoomID != id {
		return ErrHostingRoomMismatch
	}
	s.hostingRoomID = 0
	s.isHostingRoom = false
	return nil
}
