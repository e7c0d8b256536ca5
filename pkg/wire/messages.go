package wire

import (
	"encoding/binary"
	"fmt"
)

// Record sizes, in bytes. Bodies only; the request type byte and the reply
// header are not included.
const (
	ReplyHeaderSize = 2

	AuthenticationRequestSize  = 74
	AuthenticationReplySize    = 29
	CreateRoomRequestSize      = 20
	CreateRoomReplySize        = 4
	ListRoomRequestSize        = 30
	RoomInfoSize               = 41
	ListRoomReplySize          = 3 + ListRoomInfoCount*RoomInfoSize
	JoinRoomRequestSize        = 20
	JoinRoomReplySize          = EndpointSize
	UpdateRoomStatusNoticeSize = 7
	ConnectionTestRequestSize  = 3
	ConnectionTestReplySize    = 1
	KeepAliveNoticeSize        = 0
)

// Reply is a server-to-client record. Its type mirrors the request that
// produced it.
type Reply interface {
	Type() MessageType
	MarshalBinary() ([]byte, error)
}

// ReplyHeader precedes every reply body.
type ReplyHeader struct {
	Type MessageType
	Code ErrorCode
}

// DecodeReplyHeader reads the two header bytes.
func DecodeReplyHeader(b []byte) (ReplyHeader, error) {
	if len(b) != ReplyHeaderSize {
		return ReplyHeader{}, ErrBufferSize
	}
	return ReplyHeader{Type: MessageType(b[0]), Code: ErrorCode(b[1])}, nil
}

// ReplyBodySize returns the fixed reply body size for a request type, or
// false for notices, which are never replied to.
func ReplyBodySize(t MessageType) (int, bool) {
	switch t {
	case MessageTypeAuthenticationRequest:
		return AuthenticationReplySize, true
	case MessageTypeCreateRoomRequest:
		return CreateRoomReplySize, true
	case MessageTypeListRoomRequest:
		return ListRoomReplySize, true
	case MessageTypeJoinRoomRequest:
		return JoinRoomReplySize, true
	case MessageTypeConnectionTestRequest:
		return ConnectionTestReplySize, true
	default:
		return 0, false
	}
}

// EncodeReply frames a reply: header bytes followed by the record body.
func EncodeReply(code ErrorCode, r Reply) ([]byte, error) {
	body, err := r.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encoding %s reply: %w", r.Type(), err)
	}
	out := make([]byte, 0, ReplyHeaderSize+len(body))
	out = append(out, byte(r.Type()), byte(code))
	return append(out, body...), nil
}

// EncodeErrorReply frames a reply whose body is all zeroes. Used when a
// request fails and only the header's error code carries information.
func EncodeErrorReply(t MessageType, code ErrorCode) ([]byte, error) {
	size, ok := ReplyBodySize(t)
	if !ok {
		return nil, ErrUnknownMessage
	}
	out := make([]byte, ReplyHeaderSize+size)
	out[0] = byte(t)
	out[1] = byte(code)
	return out, nil
}

// --- authentication ---

// AuthenticationRequest must be the first record a client sends.
type AuthenticationRequest struct {
	APIVersion  uint16
	GameID      string
	GameVersion string
	PlayerName  string
}

func (AuthenticationRequest) Type() MessageType { return MessageTypeAuthenticationRequest }

func (m AuthenticationRequest) MarshalBinary() ([]byte, error) {
	b := make([]byte, AuthenticationRequestSize)
	binary.BigEndian.PutUint16(b[0:2], m.APIVersion)
	if err := putPaddedString(b[2:26], m.GameID); err != nil {
		return nil, err
	}
	if err := putPaddedString(b[26:50], m.GameVersion); err != nil {
		return nil, err
	}
	if err := putPaddedString(b[50:74], m.PlayerName); err != nil {
		return nil, err
	}
	return b, nil
}

func (m *AuthenticationRequest) UnmarshalBinary(b []byte) error {
	if len(b) != AuthenticationRequestSize {
		return ErrBufferSize
	}
	var err error
	m.APIVersion = binary.BigEndian.Uint16(b[0:2])
	if m.GameID, err = paddedString(b[2:26]); err != nil {
		return err
	}
	if m.GameVersion, err = paddedString(b[26:50]); err != nil {
		return err
	}
	if m.PlayerName, err = paddedString(b[50:74]); err != nil {
		return err
	}
	return nil
}

// AuthenticationReply reports the handshake outcome. GameVersion always
// carries the server's own version so a mismatched client can tell the
// user what to install.
type AuthenticationReply struct {
	Result      AuthenticationResult
	APIVersion  uint16
	GameVersion string
	PlayerTag   uint16
}

func (AuthenticationReply) Type() MessageType { return MessageTypeAuthenticationRequest }

func (m AuthenticationReply) MarshalBinary() ([]byte, error) {
	b := make([]byte, AuthenticationReplySize)
	b[0] = byte(m.Result)
	binary.BigEndian.PutUint16(b[1:3], m.APIVersion)
	if err := putPaddedString(b[3:27], m.GameVersion); err != nil {
		return nil, err
	}
	binary.BigEndian.PutUint16(b[27:29], m.PlayerTag)
	return b, nil
}

func (m *AuthenticationReply) UnmarshalBinary(b []byte) error {
	if len(b) != AuthenticationReplySize {
		return ErrBufferSize
	}
	m.Result = AuthenticationResult(b[0])
	if !m.Result.valid() {
		return ErrInvalidEnum
	}
	m.APIVersion = binary.BigEndian.Uint16(b[1:3])
	var err error
	if m.GameVersion, err = paddedString(b[3:27]); err != nil {
		return err
	}
	m.PlayerTag = binary.BigEndian.Uint16(b[27:29])
	return nil
}

// --- create_room ---

// CreateRoomRequest asks the server to register the sender as a host.
// Password is raw ASCII bytes; all zeroes means the room is public.
type CreateRoomRequest struct {
	MaxPlayerCount          uint8
	ConnectionEstablishMode ConnectionEstablishMode
	PortNumber              uint16
	Password                [PasswordLength]byte
}

func (CreateRoomRequest) Type() MessageType { return MessageTypeCreateRoomRequest }

func (m CreateRoomRequest) MarshalBinary() ([]byte, error) {
	b := make([]byte, CreateRoomRequestSize)
	b[0] = m.MaxPlayerCount
	b[1] = byte(m.ConnectionEstablishMode)
	binary.BigEndian.PutUint16(b[2:4], m.PortNumber)
	copy(b[4:20], m.Password[:])
	return b, nil
}

func (m *CreateRoomRequest) UnmarshalBinary(b []byte) error {
	if len(b) != CreateRoomRequestSize {
		return ErrBufferSize
	}
	m.MaxPlayerCount = b[0]
	m.ConnectionEstablishMode = ConnectionEstablishMode(b[1])
	if !m.ConnectionEstablishMode.valid() {
		return ErrInvalidEnum
	}
	m.PortNumber = binary.BigEndian.Uint16(b[2:4])
	copy(m.Password[:], b[4:20])
	return nil
}

// CreateRoomReply carries the server-assigned room id.
type CreateRoomReply struct {
	RoomID uint32
}

func (CreateRoomReply) Type() MessageType { return MessageTypeCreateRoomRequest }

func (m CreateRoomReply) MarshalBinary() ([]byte, error) {
	b := make([]byte, CreateRoomReplySize)
	binary.BigEndian.PutUint32(b, m.RoomID)
	return b, nil
}

func (m *CreateRoomReply) UnmarshalBinary(b []byte) error {
	if len(b) != CreateRoomReplySize {
		return ErrBufferSize
	}
	m.RoomID = binary.BigEndian.Uint32(b)
	return nil
}

// --- list_room ---

// ListRoomRequest pages through the room directory.
type ListRoomRequest struct {
	StartIndex  uint8
	Count       uint8
	SortKind    SortKind
	TargetFlags TargetFlags
	SearchName  string
}

func (ListRoomRequest) Type() MessageType { return MessageTypeListRoomRequest }

func (m ListRoomRequest) MarshalBinary() ([]byte, error) {
	b := make([]byte, ListRoomRequestSize)
	b[0] = m.StartIndex
	b[1] = m.Count
	b[2] = byte(m.SortKind)
	b[3] = byte(m.TargetFlags)
	if err := putPaddedString(b[4:30], m.SearchName); err != nil {
		return nil, err
	}
	return b, nil
}

func (m *ListRoomRequest) UnmarshalBinary(b []byte) error {
	if len(b) != ListRoomRequestSize {
		return ErrBufferSize
	}
	m.StartIndex = b[0]
	m.Count = b[1]
	m.SortKind = SortKind(b[2])
	if !m.SortKind.valid() {
		return ErrInvalidEnum
	}
	m.TargetFlags = TargetFlags(b[3])
	var err error
	if m.SearchName, err = paddedString(b[4:30]); err != nil {
		return err
	}
	return nil
}

// RoomInfo is one directory entry inside a list reply.
type RoomInfo struct {
	RoomID             uint32
	HostPlayerName     string
	HostPlayerTag      uint16
	SettingFlags       RoomSettingFlags
	MaxPlayerCount     uint8
	CurrentPlayerCount uint8
	CreateDatetime     int64
}

func (m RoomInfo) put(dst []byte) error {
	binary.BigEndian.PutUint32(dst[0:4], m.RoomID)
	if err := putPaddedString(dst[4:28], m.HostPlayerName); err != nil {
		return err
	}
	binary.BigEndian.PutUint16(dst[28:30], m.HostPlayerTag)
	dst[30] = byte(m.SettingFlags)
	dst[31] = m.MaxPlayerCount
	dst[32] = m.CurrentPlayerCount
	binary.BigEndian.PutUint64(dst[33:41], uint64(m.CreateDatetime))
	return nil
}

func (m *RoomInfo) read(src []byte) error {
	m.RoomID = binary.BigEndian.Uint32(src[0:4])
	var err error
	if m.HostPlayerName, err = paddedString(src[4:28]); err != nil {
		return err
	}
	m.HostPlayerTag = binary.BigEndian.Uint16(src[28:30])
	m.SettingFlags = RoomSettingFlags(src[30])
	m.MaxPlayerCount = src[31]
	m.CurrentPlayerCount = src[32]
	m.CreateDatetime = int64(binary.BigEndian.Uint64(src[33:41]))
	return nil
}

// ListRoomReply returns one window of the directory. Totals saturate at
// 255; slots past ReturnedRoomCount are zeroed.
type ListRoomReply struct {
	TotalRoomCount    uint8
	MatchedRoomCount  uint8
	ReturnedRoomCount uint8
	Rooms             [ListRoomInfoCount]RoomInfo
}

func (ListRoomReply) Type() MessageType { return MessageTypeListRoomRequest }

func (m ListRoomReply) MarshalBinary() ([]byte, error) {
	b := make([]byte, ListRoomReplySize)
	b[0] = m.TotalRoomCount
	b[1] = m.MatchedRoomCount
	b[2] = m.ReturnedRoomCount
	for i := range m.Rooms {
		if err := m.Rooms[i].put(b[3+i*RoomInfoSize:]); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (m *ListRoomReply) UnmarshalBinary(b []byte) error {
	if len(b) != ListRoomReplySize {
		return ErrBufferSize
	}
	m.TotalRoomCount = b[0]
	m.MatchedRoomCount = b[1]
	m.ReturnedRoomCount = b[2]
	for i := range m.Rooms {
		if err := m.Rooms[i].read(b[3+i*RoomInfoSize : 3+(i+1)*RoomInfoSize]); err != nil {
			return err
		}
	}
	return nil
}

// --- join_room ---

// JoinRoomRequest asks for the endpoint of a room's host.
type JoinRoomRequest struct {
	RoomID   uint32
	Password [PasswordLength]byte
}

func (JoinRoomRequest) Type() MessageType { return MessageTypeJoinRoomRequest }

func (m JoinRoomRequest) MarshalBinary() ([]byte, error) {
	b := make([]byte, JoinRoomRequestSize)
	binary.BigEndian.PutUint32(b[0:4], m.RoomID)
	copy(b[4:20], m.Password[:])
	return b, nil
}

func (m *JoinRoomRequest) UnmarshalBinary(b []byte) error {
	if len(b) != JoinRoomRequestSize {
		return ErrBufferSize
	}
	m.RoomID = binary.BigEndian.Uint32(b[0:4])
	copy(m.Password[:], b[4:20])
	return nil
}

// JoinRoomReply carries the game host endpoint the joiner should dial.
type JoinRoomReply struct {
	GameHostEndpoint Endpoint
}

func (JoinRoomReply) Type() MessageType { return MessageTypeJoinRoomRequest }

func (m JoinRoomReply) MarshalBinary() ([]byte, error) {
	b := make([]byte, JoinRoomReplySize)
	m.GameHostEndpoint.put(b)
	return b, nil
}

func (m *JoinRoomReply) UnmarshalBinary(b []byte) error {
	if len(b) != JoinRoomReplySize {
		return ErrBufferSize
	}
	return m.GameHostEndpoint.UnmarshalBinary(b)
}

// --- update_room_status ---

// UpdateRoomStatusNotice mutates a hosted room. Notices are never replied
// to, so a failed update is only visible in the server log.
type UpdateRoomStatusNotice struct {
	RoomID                      uint32
	Status                      RoomStatus
	IsCurrentPlayerCountChanged bool
	CurrentPlayerCount          uint8
}

func (UpdateRoomStatusNotice) Type() MessageType { return MessageTypeUpdateRoomStatusNotice }

func (m UpdateRoomStatusNotice) MarshalBinary() ([]byte, error) {
	b := make([]byte, UpdateRoomStatusNoticeSize)
	binary.BigEndian.PutUint32(b[0:4], m.RoomID)
	b[4] = byte(m.Status)
	putBool(b, 5, m.IsCurrentPlayerCountChanged)
	b[6] = m.CurrentPlayerCount
	return b, nil
}

func (m *UpdateRoomStatusNotice) UnmarshalBinary(b []byte) error {
	if len(b) != UpdateRoomStatusNoticeSize {
		return ErrBufferSize
	}
	m.RoomID = binary.BigEndian.Uint32(b[0:4])
	m.Status = RoomStatus(b[4])
	if !m.Status.valid() {
		return ErrInvalidEnum
	}
	var err error
	if m.IsCurrentPlayerCountChanged, err = readBool(b[5]); err != nil {
		return err
	}
	m.CurrentPlayerCount = b[6]
	return nil
}

// --- connection_test ---

// ConnectionTestRequest asks the server to probe the sender's own listener
// before the sender advertises a room.
type ConnectionTestRequest struct {
	Protocol   ConnectionTestProtocol
	PortNumber uint16
}

func (ConnectionTestRequest) Type() MessageType { return MessageTypeConnectionTestRequest }

func (m ConnectionTestRequest) MarshalBinary() ([]byte, error) {
	b := make([]byte, ConnectionTestRequestSize)
	b[0] = byte(m.Protocol)
	binary.BigEndian.PutUint16(b[1:3], m.PortNumber)
	return b, nil
}

func (m *ConnectionTestRequest) UnmarshalBinary(b []byte) error {
	if len(b) != ConnectionTestRequestSize {
		return ErrBufferSize
	}
	m.Protocol = ConnectionTestProtocol(b[0])
	if !m.Protocol.valid() {
		return ErrInvalidEnum
	}
	m.PortNumber = binary.BigEndian.Uint16(b[1:3])
	return nil
}

// ConnectionTestReply reports whether the probe round-tripped.
type ConnectionTestReply struct {
	Succeed bool
}

func (ConnectionTestReply) Type() MessageType { return MessageTypeConnectionTestRequest }

func (m ConnectionTestReply) MarshalBinary() ([]byte, error) {
	b := make([]byte, ConnectionTestReplySize)
	putBool(b, 0, m.Succeed)
	return b, nil
}

func (m *ConnectionTestReply) UnmarshalBinary(b []byte) error {
	if len(b) != ConnectionTestReplySize {
		return ErrBufferSize
	}
	var err error
	m.Succeed, err = readBool(b[0])
	return err
}
