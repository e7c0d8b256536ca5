package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pmms-project/pmms-server/internal/v1/auth"
	"github.com/pmms-project/pmms-server/internal/v1/logging"
	"github.com/pmms-project/pmms-server/internal/v1/metrics"
	"github.com/pmms-project/pmms-server/internal/v1/types"
	"github.com/pmms-project/pmms-server/pkg/wire"
)

// handleAuthentication runs the handshake. Mismatches still produce a
// populated reply so the client can tell the user what to fix, but the
// session is closed right after.
func (s *Session) handleAuthentication(ctx context.Context, body []byte) (*response, error) {
	if s.state.Authenticated() {
		return nil, NewClientError(ClientErrorOperationInvalid, "session is already authenticated")
	}

	var req wire.AuthenticationRequest
	if err := req.UnmarshalBinary(body); err != nil {
		return nil, NewClientError(ClientErrorRequestParameterWrong, "decoding authentication_request: %v", err)
	}
	if req.PlayerName == "" {
		return nil, NewClientError(ClientErrorRequestParameterWrong, "player_name is empty")
	}

	result := s.deps.Policy.Check(req.APIVersion, req.GameID, req.GameVersion)
	if result != wire.AuthenticationResultSuccess {
		logging.Info(ctx, "Authentication rejected",
			zap.Uint8("result", uint8(result)),
			zap.Uint16("client_api_version", req.APIVersion),
		)
		return &response{
			code: auth.HeaderCode(result),
			reply: wire.AuthenticationReply{
				Result:      result,
				APIVersion:  wire.APIVersion,
				GameVersion: s.deps.Policy.GameVersion(),
			},
			disconnect: true,
		}, nil
	}

	fullName, err := s.deps.Names.Assign(req.PlayerName)
	if err != nil {
		return nil, fmt.Errorf("assigning player full name: %w", err)
	}
	s.state.MarkAuthenticated(fullName)
	logging.Info(ctx, "Session authenticated", zap.Stringer("player", fullName))

	return &response{
		code: wire.ErrorCodeOK,
		reply: wire.AuthenticationReply{
			Result:      wire.AuthenticationResultSuccess,
			APIVersion:  wire.APIVersion,
			GameVersion: s.deps.Policy.GameVersion(),
			PlayerTag:   fullName.Tag,
		},
	}, nil
}

// handleCreateRoom registers the session as a host and assigns a room id.
func (s *Session) handleCreateRoom(ctx context.Context, body []byte) (*response, error) {
	if !s.state.Authenticated() {
		return nil, NewClientError(ClientErrorOperationInvalid, "session is not authenticated")
	}
	if id, hosting := s.state.HostingRoomID(); hosting {
		return nil, NewClientError(ClientErrorClientAlreadyHostingRoom, "already hosting room %d", id)
	}

	var req wire.CreateRoomRequest
	if err := req.UnmarshalBinary(body); err != nil {
		return nil, NewClientError(ClientErrorRequestParameterWrong, "decoding create_room_request: %v", err)
	}
	if req.ConnectionEstablishMode == wire.ConnectionEstablishModeBuiltin && req.PortNumber == 0 {
		return nil, NewClientError(ClientErrorRequestParameterWrong, "port_number must be non-zero in builtin mode")
	}
	if req.MaxPlayerCount < 1 || req.MaxPlayerCount > s.deps.MaxPlayerPerRoom {
		return nil, NewClientError(ClientErrorRequestParameterWrong,
			"max_player_count %d out of range 1..%d", req.MaxPlayerCount, s.deps.MaxPlayerPerRoom)
	}
	if s.deps.Store.Size() >= s.deps.MaxRoomCount {
		return nil, NewClientError(ClientErrorRoomCountExceedsLimit, "room count is at the limit %d", s.deps.MaxRoomCount)
	}

	flags := wire.RoomSettingOpenRoom
	if req.Password == [wire.PasswordLength]byte{} {
		flags |= wire.RoomSettingPublicRoom
	}
	remote := s.state.RemoteEndpoint()
	room := types.Room{
		HostPlayerFullName:      s.state.PlayerFullName(),
		SettingFlags:            flags,
		Password:                req.Password,
		MaxPlayerCount:          req.MaxPlayerCount,
		CreateDatetime:          time.Now().UTC().Truncate(time.Second),
		ConnectionEstablishMode: req.ConnectionEstablishMode,
		HostEndpoint:            remote,
		GameHostEndpoint:        remote.WithPort(req.PortNumber),
		CurrentPlayerCount:      1,
	}

	// A full-name collision here means another live room already claims
	// this session's player, which the registry is supposed to make
	// impossible. Let it surface as an internal fault.
	id, err := s.deps.Store.AssignIDAndAdd(room)
	if err != nil {
		return nil, fmt.Errorf("adding room for %s: %w", s.state.PlayerFullName(), err)
	}
	if err := s.state.SetHostingRoomID(id); err != nil {
		s.deps.Store.TryRemove(id)
		return nil, fmt.Errorf("recording hosted room: %w", err)
	}
	metrics.ActiveRooms.Inc()
	logging.Info(ctx, "Room created",
		zap.Uint32("room_id", id),
		zap.Bool("public", room.IsPublic()),
		zap.Uint8("max_player_count", room.MaxPlayerCount),
	)

	return &response{code: wire.ErrorCodeOK, reply: wire.CreateRoomReply{RoomID: id}}, nil
}

// handleListRoom snapshots the directory, filters, sorts, and returns one
// window of it.
func (s *Session) handleListRoom(ctx context.Context, body []byte) (*response, error) {
	if !s.state.Authenticated() {
		return nil, NewClientError(ClientErrorOperationInvalid, "session is not authenticated")
	}

	var req wire.ListRoomRequest
	if err := req.UnmarshalBinary(body); err != nil {
		return nil, NewClientError(ClientErrorRequestParameterWrong, "decoding list_room_request: %v", err)
	}

	count := int(req.Count)
	if count > wire.ListRoomInfoCount {
		count = wire.ListRoomInfoCount
	}
	window, matched := s.deps.Store.SearchRange(
		int(req.StartIndex), count,
		listOrder(req.SortKind, req.SearchName),
		listFilter(req.TargetFlags, req.SearchName),
	)

	reply := wire.ListRoomReply{
		TotalRoomCount:    saturateUint8(s.deps.Store.Size()),
		MatchedRoomCount:  saturateUint8(matched),
		ReturnedRoomCount: uint8(len(window)),
	}
	for i, room := range window {
		reply.Rooms[i] = room.Info()
	}
	return &response{code: wire.ErrorCodeOK, reply: reply}, nil
}

// handleJoinRoom resolves a room id to the endpoint the joiner should
// dial. The server does not count the joiner in; the host reports the new
// player count itself once the game-side connection lands.
func (s *Session) handleJoinRoom(ctx context.Context, body []byte) (*response, error) {
	if !s.state.Authenticated() {
		return nil, NewClientError(ClientErrorOperationInvalid, "session is not authenticated")
	}

	var req wire.JoinRoomRequest
	if err := req.UnmarshalBinary(body); err != nil {
		return nil, NewClientError(ClientErrorRequestParameterWrong, "decoding join_room_request: %v", err)
	}

	room, err := s.deps.Store.Get(req.RoomID)
	if err != nil {
		return nil, NewClientError(ClientErrorRoomNotFound, "room %d does not exist", req.RoomID)
	}
	if room.ConnectionEstablishMode != wire.ConnectionEstablishModeBuiltin {
		return nil, NewClientError(ClientErrorRoomConnectionEstablishModeMismatch,
			"room %d does not use builtin connection establishment", req.RoomID)
	}
	if !room.IsOpen() {
		return nil, NewClientError(ClientErrorRoomPermissionDenied, "room %d is closed", req.RoomID)
	}
	if !room.IsPublic() && !room.PasswordMatches(req.Password) {
		return nil, NewClientError(ClientErrorRoomPasswordWrong, "wrong password for room %d", req.RoomID)
	}
	if room.IsFull() {
		return nil, NewClientError(ClientErrorRoomFull, "room %d is full", req.RoomID)
	}

	logging.Info(ctx, "Join resolved",
		zap.Uint32("room_id", room.RoomID),
		zap.String("game_host_endpoint", room.GameHostEndpoint.String()),
	)
	return &response{code: wire.ErrorCodeOK, reply: wire.JoinRoomReply{GameHostEndpoint: room.GameHostEndpoint}}, nil
}

// handleUpdateRoomStatus mutates the session's own room. Notices get no
// reply, so failures are logged server-side and the session lives on.
func (s *Session) handleUpdateRoomStatus(ctx context.Context, body []byte) (*response, error) {
	if !s.state.Authenticated() {
		return nil, NewClientError(ClientErrorOperationInvalid, "session is not authenticated")
	}

	var req wire.UpdateRoomStatusNotice
	if err := req.UnmarshalBinary(body); err != nil {
		return nil, newSessionError(Continuable, "decoding update_room_status_notice: %v", err)
	}

	room, err := s.deps.Store.Get(req.RoomID)
	if err != nil {
		return nil, newSessionError(Continuable, "update for unknown room %d", req.RoomID)
	}
	if room.HostEndpoint != s.state.RemoteEndpoint() {
		return nil, newSessionError(Continuable, "room %d is not hosted by this session", req.RoomID)
	}

	if req.IsCurrentPlayerCountChanged {
		// A live room always holds at least its host.
		if req.CurrentPlayerCount < 1 || req.CurrentPlayerCount > room.MaxPlayerCount {
			return nil, newSessionError(Continuable,
				"current_player_count %d out of range 1..%d", req.CurrentPlayerCount, room.MaxPlayerCount)
		}
		room.CurrentPlayerCount = req.CurrentPlayerCount
	}

	switch req.Status {
	case wire.RoomStatusOpen:
		room.SettingFlags |= wire.RoomSettingOpenRoom
	case wire.RoomStatusClose:
		room.SettingFlags &^= wire.RoomSettingOpenRoom
	case wire.RoomStatusRemove:
		if s.deps.Store.TryRemove(req.RoomID) {
			metrics.ActiveRooms.Dec()
		}
		if err := s.state.ClearHostingRoomID(req.RoomID); err != nil {
			return nil, fmt.Errorf("clearing hosted room %d: %w", req.RoomID, err)
		}
		logging.Info(ctx, "Room removed by host", zap.Uint32("room_id", req.RoomID))
		return nil, nil
	}

	if err := s.deps.Store.AddOrUpdate(room); err != nil {
		return nil, fmt.Errorf("updating room %d: %w", req.RoomID, err)
	}
	logging.Debug(ctx, "Room status updated",
		zap.Uint32("room_id", req.RoomID),
		zap.Uint8("status", uint8(req.Status)),
		zap.Uint8("current_player_count", room.CurrentPlayerCount),
	)
	return nil, nil
}

// handleConnectionTest probes the client's own declared listener and
// reports whether the payload round-tripped.
func (s *Session) handleConnectionTest(ctx context.Context, body []byte) (*response, error) {
	if !s.state.Authenticated() {
		return nil, NewClientError(ClientErrorOperationInvalid, "session is not authenticated")
	}

	var req wire.ConnectionTestRequest
	if err := req.UnmarshalBinary(body); err != nil {
		return nil, NewClientError(ClientErrorRequestParameterWrong, "decoding connection_test_request: %v", err)
	}
	if req.PortNumber == 0 {
		return nil, NewClientError(ClientErrorRequestParameterWrong, "port_number must be non-zero")
	}

	target := s.state.RemoteEndpoint().WithPort(req.PortNumber)
	succeed := s.deps.Prober.Probe(ctx, req.Protocol, target)
	logging.Info(ctx, "Connection test finished",
		zap.Stringer("protocol", req.Protocol),
		zap.String("target", target.String()),
		zap.Bool("succeed", succeed),
	)
	return &response{code: wire.ErrorCodeOK, reply: wire.ConnectionTestReply{Succeed: succeed}}, nil
}

// handleKeepAlive only exists so clients behind aggressive NATs can keep
// their connection warm.
func (s *Session) handleKeepAlive(ctx context.Context, body []byte) (*response, error) {
	logging.Debug(ctx, "Keep-alive received")
	return nil, nil
}

// listFilter keeps rooms whose visibility and admission state are both
// requested, and applies the substring search when one is given.
func listFilter(flags wire.TargetFlags, searchName string) func(types.Room) bool {
	return func(r types.Room) bool {
		if r.IsPublic() {
			if !flags.Has(wire.TargetFlagPublicRoom) {
				return false
			}
		} else if !flags.Has(wire.TargetFlagPrivateRoom) {
			return false
		}
		if r.IsOpen() {
			if !flags.Has(wire.TargetFlagOpenRoom) {
				return false
			}
		} else if !flags.Has(wire.TargetFlagClosedRoom) {
			return false
		}
		if searchName != "" && !strings.Contains(r.HostPlayerFullName.Name, searchName) {
			return false
		}
		return true
	}
}

// listOrder builds the comparator for a sort kind. With a search name,
// exact matches are hoisted above everything else; the picked order then
// settles each group.
func listOrder(kind wire.SortKind, searchName string) func(a, b types.Room) bool {
	var base func(a, b types.Room) bool
	switch kind {
	case wire.SortKindHostNameDescending:
		base = func(a, b types.Room) bool { return lessByHostName(b, a) }
	case wire.SortKindCreateDatetimeAscending:
		base = lessByCreateTime
	case wire.SortKindCreateDatetimeDescending:
		base = func(a, b types.Room) bool { return lessByCreateTime(b, a) }
	default:
		base = lessByHostName
	}
	if searchName == "" {
		return base
	}
	return func(a, b types.Room) bool {
		aExact := a.HostPlayerFullName.Name == searchName
		bExact := b.HostPlayerFullName.Name == searchName
		if aExact != bExact {
			return aExact
		}
		return base(a, b)
	}
}

func lessByHostName(a, b types.Room) bool {
	if a.HostPlayerFullName.Name != b.HostPlayerFullName.Name {
		return a.HostPlayerFullName.Name < b.HostPlayerFullName.Name
	}
	return a.HostPlayerFullName.Tag < b.HostPlayerFullName.Tag
}

func lessByCreateTime(a, b types.Room) bool {
	if !a.CreateDatetime.Equal(b.CreateDatetime) {
		return a.CreateDatetime.Before(b.CreateDatetime)
	}
	return a.RoomID < b.RoomID
}

func saturateUint8(n int) uint8 {
	if n > 255 {
		return 255
	}
	return uint8(n)
}
