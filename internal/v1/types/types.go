package types

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/pmms-project/pmms-server/pkg/wire"
)

// --- Core Domain Types ---

// UnassignedTag is the reserved tag value meaning "no tag allocated yet".
// The name registry never hands it out.
const UnassignedTag uint16 = 0

// PlayerFullName identifies an authenticated player: the display name the
// client chose plus the server-assigned discriminator tag. Two full names
// are equal iff both fields match.
type PlayerFullName struct {
	Name string
	Tag  uint16
}

// IsAssigned reports whether the registry has assigned a tag.
func (n PlayerFullName) IsAssigned() bool { return n.Tag != UnassignedTag }

func (n PlayerFullName) String() string {
	return fmt.Sprintf("%s#%d", n.Name, n.Tag)
}

// Room is the server-side record of one hosted game room.
type Room struct {
	// RoomID is server-assigned, uniformly random, unique across the live set.
	RoomID uint32
	// HostPlayerFullName is unique across the live set of rooms.
	HostPlayerFullName PlayerFullName
	SettingFlags       wire.RoomSettingFlags
	// Password is raw ASCII bytes, all zeroes for public rooms.
	Password                [wire.PasswordLength]byte
	MaxPlayerCount          uint8
	CreateDatetime          time.Time
	ConnectionEstablishMode wire.ConnectionEstablishMode
	// HostEndpoint is the host session's remote TCP endpoint.
	HostEndpoint wire.Endpoint
	// GameHostEndpoint is where joiners actually connect: the host's
	// address paired with the port it declared at creation.
	GameHostEndpoint   wire.Endpoint
	CurrentPlayerCount uint8
}

// IsPublic reports whether the room is listed without a password.
func (r Room) IsPublic() bool { return r.SettingFlags.Has(wire.RoomSettingPublicRoom) }

// IsOpen reports whether the room currently admits joiners.
func (r Room) IsOpen() bool { return r.SettingFlags.Has(wire.RoomSettingOpenRoom) }

// PasswordMatches compares a join attempt byte-for-byte in constant time.
func (r Room) PasswordMatches(password [wire.PasswordLength]byte) bool {
	return subtle.ConstantTimeCompare(r.Password[:], password[:]) == 1
}

// IsFull reports whether another player fits.
func (r Room) IsFull() bool { return r.CurrentPlayerCount >= r.MaxPlayerCount }

// Info renders the room as a directory entry.
func (r Room) Info() wire.RoomInfo {
	return wire.RoomInfo{
		RoomID:             r.RoomID,
		HostPlayerName:     r.HostPlayerFullName.Name,
		HostPlayerTag:      r.HostPlayerFullName.Tag,
		SettingFlags:       r.SettingFlags,
		MaxPlayerCount:     r.MaxPlayerCount,
		CurrentPlayerCount: r.CurrentPlayerCount,
		CreateDatetime:     r.CreateDatetime.Unix(),
	}
}

// --- Shared Interfaces ---

// ConnectionProber verifies that a host's self-declared listener is
// reachable. Implementations perform real network I/O; message handlers
// depend on this interface so tests can substitute a fake.
type ConnectionProber interface {
	Probe(ctx context.Context, protocol wire.ConnectionTestProtocol, target wire.Endpoint) bool
}
