// Package wire implements the PMMS binary protocol: fixed-size records of
// trivially encodable fields, written big-endian with no padding or framing
// bytes. Every request starts with a single message-type byte whose value
// determines the body size; every reply starts with a two-byte header
// carrying the mirrored message type and an error code.
//
// The package is importable by game clients as well as the server.
package wire

import (
	"errors"
	"unicode/utf8"
)

// APIVersion is the protocol revision this package speaks. The server
// rejects clients reporting any other value.
const APIVersion uint16 = 1

// ConnectionTestPayload is the literal exchanged during connectivity probes.
// The probed host must echo it back unchanged.
const ConnectionTestPayload = "Hello. This is PMMS."

// MessageType identifies a wire record. Requests carry it as their first
// byte; replies mirror the request's value inside the reply header.
type MessageType uint8

const (
	MessageTypeAuthenticationRequest  MessageType = 0x01
	MessageTypeCreateRoomRequest      MessageType = 0x02
	MessageTypeListRoomRequest        MessageType = 0x03
	MessageTypeJoinRoomRequest        MessageType = 0x04
	MessageTypeUpdateRoomStatusNotice MessageType = 0x05
	MessageTypeConnectionTestRequest  MessageType = 0x06
	MessageTypeKeepAliveNotice        MessageType = 0x07
)

// String returns the catalog name of the message type.
func (t MessageType) String() string {
	switch t {
	case MessageTypeAuthenticationRequest:
		return "authentication_request"
	case MessageTypeCreateRoomRequest:
		return "create_room_request"
	case MessageTypeListRoomRequest:
		return "list_room_request"
	case MessageTypeJoinRoomRequest:
		return "join_room_request"
	case MessageTypeUpdateRoomStatusNotice:
		return "update_room_status_notice"
	case MessageTypeConnectionTestRequest:
		return "connection_test_request"
	case MessageTypeKeepAliveNotice:
		return "keep_alive_notice"
	default:
		return "unknown"
	}
}

// RequestBodySize returns the fixed body size of an inbound record, or
// false when the type byte is not part of the request catalog.
func RequestBodySize(t MessageType) (int, bool) {
	switch t {
	case MessageTypeAuthenticationRequest:
		return AuthenticationRequestSize, true
	case MessageTypeCreateRoomRequest:
		return CreateRoomRequestSize, true
	case MessageTypeListRoomRequest:
		return ListRoomRequestSize, true
	case MessageTypeJoinRoomRequest:
		return JoinRoomRequestSize, true
	case MessageTypeUpdateRoomStatusNotice:
		return UpdateRoomStatusNoticeSize, true
	case MessageTypeConnectionTestRequest:
		return ConnectionTestRequestSize, true
	case MessageTypeKeepAliveNotice:
		return KeepAliveNoticeSize, true
	default:
		return 0, false
	}
}

// IsNotice reports whether the type is a notice, i.e. a request the server
// never replies to.
func (t MessageType) IsNotice() bool {
	return t == MessageTypeUpdateRoomStatusNotice || t == MessageTypeKeepAliveNotice
}

// ErrorCode is the second byte of every reply header.
type ErrorCode uint8

const (
	ErrorCodeOK ErrorCode = iota
	ErrorCodeUnknown
	ErrorCodeVersionMismatch
	ErrorCodeAuthenticationError
	ErrorCodeDenied
	ErrorCodeRoomNameDuplicated
	ErrorCodeRoomCountReachesLimit
	ErrorCodeRoomNotExist
	ErrorCodePermissionDenied
	ErrorCodeJoinRejected
	ErrorCodePlayerCountReachesLimit
)

func (c ErrorCode) String() string {
	switch c {
	case ErrorCodeOK:
		return "ok"
	case ErrorCodeUnknown:
		return "unknown"
	case ErrorCodeVersionMismatch:
		return "version_mismatch"
	case ErrorCodeAuthenticationError:
		return "authentication_error"
	case ErrorCodeDenied:
		return "denied"
	case ErrorCodeRoomNameDuplicated:
		return "room_name_duplicated"
	case ErrorCodeRoomCountReachesLimit:
		return "room_count_reaches_limit"
	case ErrorCodeRoomNotExist:
		return "room_not_exist"
	case ErrorCodePermissionDenied:
		return "permission_denied"
	case ErrorCodeJoinRejected:
		return "join_rejected"
	case ErrorCodePlayerCountReachesLimit:
		return "player_count_reaches_limit"
	default:
		return "invalid"
	}
}

// AuthenticationResult is the first field of an authentication reply. It is
// more precise than the header error code: the header only distinguishes
// version problems from identity problems.
type AuthenticationResult uint8

const (
	AuthenticationResultSuccess AuthenticationResult = iota
	AuthenticationResultAPIVersionMismatch
	AuthenticationResultGameIDMismatch
	AuthenticationResultGameVersionMismatch
)

func (r AuthenticationResult) valid() bool {
	return r <= AuthenticationResultGameVersionMismatch
}

// ConnectionEstablishMode states how peers reach a room's host. Builtin
// means the host listens on the port it declared at creation; custom means
// the game negotiates connectivity out of band and the declared endpoint is
// meaningless.
type ConnectionEstablishMode uint8

const (
	ConnectionEstablishModeBuiltin ConnectionEstablishMode = iota
	ConnectionEstablishModeCustom
)

func (m ConnectionEstablishMode) valid() bool {
	return m <= ConnectionEstablishModeCustom
}

// ConnectionTestProtocol selects which listener a connectivity probe
// exercises.
type ConnectionTestProtocol uint8

const (
	ConnectionTestProtocolTCP ConnectionTestProtocol = iota
	ConnectionTestProtocolUDP
)

func (p ConnectionTestProtocol) valid() bool {
	return p <= ConnectionTestProtocolUDP
}

func (p ConnectionTestProtocol) String() string {
	switch p {
	case ConnectionTestProtocolTCP:
		return "tcp"
	case ConnectionTestProtocolUDP:
		return "udp"
	default:
		return "invalid"
	}
}

// RoomStatus is the transition requested by an update_room_status_notice.
type RoomStatus uint8

const (
	RoomStatusOpen RoomStatus = iota
	RoomStatusClose
	RoomStatusRemove
)

func (s RoomStatus) valid() bool {
	return s <= RoomStatusRemove
}

// SortKind orders a room listing.
type SortKind uint8

const (
	SortKindHostNameAscending SortKind = iota
	SortKindHostNameDescending
	SortKindCreateDatetimeAscending
	SortKindCreateDatetimeDescending
)

func (k SortKind) valid() bool {
	return k <= SortKindCreateDatetimeDescending
}

// TargetFlags filter a room listing by visibility and admission state. A
// room is kept when its public/private status and its open/closed status
// both appear in the flags.
type TargetFlags uint8

const (
	TargetFlagPublicRoom TargetFlags = 1 << iota
	TargetFlagPrivateRoom
	TargetFlagOpenRoom
	TargetFlagClosedRoom
)

// Has reports whether every bit of flag is set.
func (f TargetFlags) Has(flag TargetFlags) bool { return f&flag == flag }

// RoomSettingFlags is the bitset stored on a room and echoed in listings.
type RoomSettingFlags uint8

const (
	RoomSettingPublicRoom RoomSettingFlags = 1 << iota
	RoomSettingOpenRoom
)

// Has reports whether every bit of flag is set.
func (f RoomSettingFlags) Has(flag RoomSettingFlags) bool { return f&flag == flag }

// Fixed field widths, in bytes.
const (
	GameIDLength      = 24
	GameVersionLength = 24
	PlayerNameLength  = 24
	PasswordLength    = 16
	SearchNameLength  = 26
)

// ListRoomInfoCount is the number of room_info slots a list reply always
// carries. Slots past the returned count are zeroed.
const ListRoomInfoCount = 10

// Decode faults. Handlers treat them as malformed client input; they never
// indicate a framing problem because body sizes are fixed per type.
var (
	ErrBufferSize     = errors.New("wire: buffer size mismatch")
	ErrInvalidEnum    = errors.New("wire: enum value out of range")
	ErrInvalidBool    = errors.New("wire: boolean byte is neither 0x00 nor 0x01")
	ErrInvalidString  = errors.New("wire: string is not valid UTF-8")
	ErrStringTooLong  = errors.New("wire: string exceeds field width")
	ErrUnknownMessage = errors.New("wire: unknown message type")
)

// putPaddedString writes s into dst null-padded to len(dst).
func putPaddedString(dst []byte, s string) error {
	if len(s) > len(dst) {
		return ErrStringTooLong
	}
	copy(dst, s)
	for i := len(s); i < len(dst); i++ {
		dst[i] = 0
	}
	return nil
}

// paddedString reads a null-padded UTF-8 string. Content past the first
// null byte is ignored.
func paddedString(src []byte) (string, error) {
	end := len(src)
	for i, b := range src {
		if b == 0 {
			end = i
			break
		}
	}
	if !utf8.Valid(src[:end]) {
		return "", ErrInvalidString
	}
	return string(src[:end]), nil
}

func putBool(dst []byte, i int, v bool) {
	if v {
		dst[i] = 0x01
	} else {
		dst[i] = 0x00
	}
}

func readBool(b byte) (bool, error) {
	switch b {
	case 0x00:
		return false, nil
	case 0x01:
		return true, nil
	default:
		return false, ErrInvalidBool
	}
}
