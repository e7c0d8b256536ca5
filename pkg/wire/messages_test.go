package wire

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBigEndianLayout(t *testing.T) {
	b, err := CreateRoomReply{RoomID: 0x01020304}.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, b)
}

func TestAuthenticationRequestRoundTrip(t *testing.T) {
	in := AuthenticationRequest{
		APIVersion:  APIVersion,
		GameID:      "starfall",
		GameVersion: "1.0.3",
		PlayerName:  "alice",
	}
	b, err := in.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, b, AuthenticationRequestSize)

	var out AuthenticationRequest
	require.NoError(t, out.UnmarshalBinary(b))
	assert.Equal(t, in, out)
}

func TestAuthenticationRequestMultibyteNames(t *testing.T) {
	// 24 bytes is a byte budget, not a rune budget.
	in := AuthenticationRequest{APIVersion: 1, GameID: "g", GameVersion: "v", PlayerName: "プレイヤー一号"}
	b, err := in.MarshalBinary()
	require.NoError(t, err)

	var out AuthenticationRequest
	require.NoError(t, out.UnmarshalBinary(b))
	assert.Equal(t, "プレイヤー一号", out.PlayerName)
}

func TestPaddedStringRejectsOversize(t *testing.T) {
	in := AuthenticationRequest{PlayerName: "this name is far longer than twenty-four bytes"}
	_, err := in.MarshalBinary()
	assert.ErrorIs(t, err, ErrStringTooLong)
}

func TestPaddedStringRejectsInvalidUTF8(t *testing.T) {
	b := make([]byte, AuthenticationRequestSize)
	b[50] = 0xff // first player_name byte
	b[51] = 0xfe

	var out AuthenticationRequest
	assert.ErrorIs(t, out.UnmarshalBinary(b), ErrInvalidString)
}

func TestPaddedStringIgnoresBytesPastNull(t *testing.T) {
	b := make([]byte, AuthenticationRequestSize)
	copy(b[50:], "bob\x00garbage")

	var out AuthenticationRequest
	require.NoError(t, out.UnmarshalBinary(b))
	assert.Equal(t, "bob", out.PlayerName)
}

func TestAuthenticationReplyRoundTrip(t *testing.T) {
	in := AuthenticationReply{
		Result:      AuthenticationResultGameVersionMismatch,
		APIVersion:  APIVersion,
		GameVersion: "1.0.0",
		PlayerTag:   0,
	}
	b, err := in.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, b, AuthenticationReplySize)

	var out AuthenticationReply
	require.NoError(t, out.UnmarshalBinary(b))
	assert.Equal(t, in, out)
}

func TestCreateRoomRequestRoundTrip(t *testing.T) {
	in := CreateRoomRequest{
		MaxPlayerCount:          16,
		ConnectionEstablishMode: ConnectionEstablishModeBuiltin,
		PortNumber:              27015,
	}
	copy(in.Password[:], "secret")

	b, err := in.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, b, CreateRoomRequestSize)

	var out CreateRoomRequest
	require.NoError(t, out.UnmarshalBinary(b))
	assert.Equal(t, in, out)
}

func TestCreateRoomRequestRejectsBadMode(t *testing.T) {
	b := make([]byte, CreateRoomRequestSize)
	b[1] = 0x07

	var out CreateRoomRequest
	assert.ErrorIs(t, out.UnmarshalBinary(b), ErrInvalidEnum)
}

func TestListRoomRequestRoundTrip(t *testing.T) {
	in := ListRoomRequest{
		StartIndex:  5,
		Count:       10,
		SortKind:    SortKindCreateDatetimeDescending,
		TargetFlags: TargetFlagPublicRoom | TargetFlagOpenRoom,
		SearchName:  "alice",
	}
	b, err := in.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, b, ListRoomRequestSize)

	var out ListRoomRequest
	require.NoError(t, out.UnmarshalBinary(b))
	assert.Equal(t, in, out)
}

func TestListRoomRequestRejectsBadSortKind(t *testing.T) {
	b := make([]byte, ListRoomRequestSize)
	b[2] = 0x09

	var out ListRoomRequest
	assert.ErrorIs(t, out.UnmarshalBinary(b), ErrInvalidEnum)
}

func TestListRoomReplyRoundTrip(t *testing.T) {
	in := ListRoomReply{
		TotalRoomCount:    3,
		MatchedRoomCount:  2,
		ReturnedRoomCount: 2,
	}
	in.Rooms[0] = RoomInfo{
		RoomID:             0xdeadbeef,
		HostPlayerName:     "alice",
		HostPlayerTag:      1,
		SettingFlags:       RoomSettingPublicRoom | RoomSettingOpenRoom,
		MaxPlayerCount:     4,
		CurrentPlayerCount: 1,
		CreateDatetime:     1724544000,
	}
	in.Rooms[1] = RoomInfo{RoomID: 7, HostPlayerName: "bob", HostPlayerTag: 2, MaxPlayerCount: 2, CurrentPlayerCount: 2}

	b, err := in.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, b, ListRoomReplySize)

	var out ListRoomReply
	require.NoError(t, out.UnmarshalBinary(b))
	assert.Equal(t, in, out)
}

func TestJoinRoomRequestRoundTrip(t *testing.T) {
	in := JoinRoomRequest{RoomID: 42}
	copy(in.Password[:], "hunter2")

	b, err := in.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, b, JoinRoomRequestSize)

	var out JoinRoomRequest
	require.NoError(t, out.UnmarshalBinary(b))
	assert.Equal(t, in, out)
}

func TestJoinRoomReplyRoundTrip(t *testing.T) {
	in := JoinRoomReply{GameHostEndpoint: EndpointFrom(netip.MustParseAddr("198.51.100.7"), 27015)}
	b, err := in.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, b, JoinRoomReplySize)

	var out JoinRoomReply
	require.NoError(t, out.UnmarshalBinary(b))
	assert.Equal(t, in, out)
}

func TestUpdateRoomStatusNoticeRoundTrip(t *testing.T) {
	in := UpdateRoomStatusNotice{
		RoomID:                      42,
		Status:                      RoomStatusClose,
		IsCurrentPlayerCountChanged: true,
		CurrentPlayerCount:          3,
	}
	b, err := in.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, b, UpdateRoomStatusNoticeSize)

	var out UpdateRoomStatusNotice
	require.NoError(t, out.UnmarshalBinary(b))
	assert.Equal(t, in, out)
}

func TestUpdateRoomStatusNoticeRejectsBadBool(t *testing.T) {
	b := make([]byte, UpdateRoomStatusNoticeSize)
	b[5] = 0x02

	var out UpdateRoomStatusNotice
	assert.ErrorIs(t, out.UnmarshalBinary(b), ErrInvalidBool)
}

func TestUpdateRoomStatusNoticeRejectsBadStatus(t *testing.T) {
	b := make([]byte, UpdateRoomStatusNoticeSize)
	b[4] = 0x03

	var out UpdateRoomStatusNotice
	assert.ErrorIs(t, out.UnmarshalBinary(b), ErrInvalidEnum)
}

func TestConnectionTestRoundTrip(t *testing.T) {
	in := ConnectionTestRequest{Protocol: ConnectionTestProtocolUDP, PortNumber: 27016}
	b, err := in.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, b, ConnectionTestRequestSize)

	var out ConnectionTestRequest
	require.NoError(t, out.UnmarshalBinary(b))
	assert.Equal(t, in, out)

	rb, err := ConnectionTestReply{Succeed: true}.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01}, rb)
}

func TestRequestBodySizes(t *testing.T) {
	tests := []struct {
		msgType MessageType
		size    int
	}{
		{MessageTypeAuthenticationRequest, 74},
		{MessageTypeCreateRoomRequest, 20},
		{MessageTypeListRoomRequest, 30},
		{MessageTypeJoinRoomRequest, 20},
		{MessageTypeUpdateRoomStatusNotice, 7},
		{MessageTypeConnectionTestRequest, 3},
		{MessageTypeKeepAliveNotice, 0},
	}
	for _, tt := range tests {
		t.Run(tt.msgType.String(), func(t *testing.T) {
			got, ok := RequestBodySize(tt.msgType)
			require.True(t, ok)
			assert.Equal(t, tt.size, got)
		})
	}

	_, ok := RequestBodySize(MessageType(0x7f))
	assert.False(t, ok)
}

func TestEncodeReplyFraming(t *testing.T) {
	out, err := EncodeReply(ErrorCodeOK, CreateRoomReply{RoomID: 0x01020304})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x02, 0x00, 0x01, 0x02, 0x03, 0x04}, out)

	hdr, err := DecodeReplyHeader(out[:ReplyHeaderSize])
	require.NoError(t, err)
	assert.Equal(t, MessageTypeCreateRoomRequest, hdr.Type)
	assert.Equal(t, ErrorCodeOK, hdr.Code)
}

func TestEncodeErrorReplyZeroesBody(t *testing.T) {
	out, err := EncodeErrorReply(MessageTypeJoinRoomRequest, ErrorCodeJoinRejected)
	require.NoError(t, err)
	require.Len(t, out, ReplyHeaderSize+JoinRoomReplySize)

	assert.Equal(t, byte(MessageTypeJoinRoomRequest), out[0])
	assert.Equal(t, byte(ErrorCodeJoinRejected), out[1])
	for _, b := range out[2:] {
		assert.Zero(t, b)
	}
}

func TestEncodeErrorReplyRejectsNotices(t *testing.T) {
	_, err := EncodeErrorReply(MessageTypeKeepAliveNotice, ErrorCodeUnknown)
	assert.ErrorIs(t, err, ErrUnknownMessage)
}
