package session

import (
	"context"
	"encoding"
	"net/netip"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pmms-project/pmms-server/internal/v1/auth"
	"github.com/pmms-project/pmms-server/internal/v1/names"
	"github.com/pmms-project/pmms-server/internal/v1/store"
	"github.com/pmms-project/pmms-server/internal/v1/types"
	"github.com/pmms-project/pmms-server/pkg/wire"
)

const (
	testGameID      = "test-game"
	testGameVersion = "1.2.3"
)

// testRemote is the canonical peer endpoint used across handler tests.
var testRemote = wire.EndpointFrom(netip.MustParseAddr("203.0.113.9"), 52000)

// probeCall records one Probe invocation.
type probeCall struct {
	Protocol wire.ConnectionTestProtocol
	Target   wire.Endpoint
}

// MockProber implements types.ConnectionProber with a canned result.
type MockProber struct {
	Result bool

	mu    sync.Mutex
	Calls []probeCall
}

func (m *MockProber) Probe(_ context.Context, protocol wire.ConnectionTestProtocol, target wire.Endpoint) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, probeCall{Protocol: protocol, Target: target})
	return m.Result
}

var _ types.ConnectionProber = (*MockProber)(nil)

// newTestSession builds a session over fresh shared stores. The connection
// is nil: handler tests never touch the socket.
func newTestSession(t *testing.T) (*Session, *MockProber) {
	t.Helper()
	prober := &MockProber{Result: true}
	deps := Deps{
		Store:            store.New(store.HostFullNameIndex()),
		Names:            names.NewRegistry(),
		Policy:           auth.NewPolicy(testGameID, false, testGameVersion),
		Prober:           prober,
		MaxRoomCount:     4,
		MaxPlayerPerRoom: 8,
	}
	state := NewState("test-correlation", testRemote)
	return New(nil, state, deps), prober
}

// authenticate runs the handshake for name so the session owns a real
// registry entry, exactly as it would after a live authentication_request.
func authenticate(t *testing.T, s *Session, name string) types.PlayerFullName {
	t.Helper()
	resp, err := s.handleAuthentication(context.Background(), mustBody(t, wire.AuthenticationRequest{
		APIVersion:  wire.APIVersion,
		GameID:      testGameID,
		GameVersion: testGameVersion,
		PlayerName:  name,
	}))
	require.NoError(t, err)
	require.Equal(t, wire.ErrorCodeOK, resp.code)
	return s.state.PlayerFullName()
}

// mustBody marshals a request record for feeding a handler directly.
func mustBody(t *testing.T, m encoding.BinaryMarshaler) []byte {
	t.Helper()
	b, err := m.MarshalBinary()
	require.NoError(t, err)
	return b
}

// createRoom registers the session as a host and returns the room id.
func createRoom(t *testing.T, s *Session, req wire.CreateRoomRequest) uint32 {
	t.Helper()
	resp, err := s.handleCreateRoom(context.Background(), mustBody(t, req))
	require.NoError(t, err)
	require.Equal(t, wire.ErrorCodeOK, resp.code)
	return resp.reply.(wire.CreateRoomReply).RoomID
}

// requireClientError asserts err carries the wanted taxonomy code.
func requireClientError(t *testing.T, err error, code ClientErrorCode) *ClientError {
	t.Helper()
	require.Error(t, err)
	cerr, ok := err.(*ClientError)
	require.True(t, ok, "expected *ClientError, got %T: %v", err, err)
	require.Equal(t, code, cerr.Code, "unexpected client error code: %v", cerr)
	return cerr
}

// requireContinuable asserts err is a session error that keeps the loop
// alive.
func requireContinuable(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	serr, ok := err.(*SessionError)
	require.True(t, ok, "expected *SessionError, got %T: %v", err, err)
	require.Equal(t, Continuable, serr.Kind, "unexpected kind: %v", serr)
}
