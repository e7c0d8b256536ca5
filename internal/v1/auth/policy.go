// Package auth decides whether a handshake may proceed. The protocol has
// no tokens: a client is admitted when its api version, game id, and
// (optionally) game version match what the server was configured with.
package auth

import (
	"crypto/subtle"

	"github.com/pmms-project/pmms-server/pkg/wire"
)

// Policy holds the server-side identity facts a client must match.
type Policy struct {
	gameID                 string
	enableGameVersionCheck bool
	gameVersion            string
}

// NewPolicy creates a Policy. gameVersion is only consulted when
// enableGameVersionCheck is set, but it is always echoed in replies so a
// rejected client can tell the user which version to install.
func NewPolicy(gameID string, enableGameVersionCheck bool, gameVersion string) *Policy {
	return &Policy{
		gameID:                 gameID,
		enableGameVersionCheck: enableGameVersionCheck,
		gameVersion:            gameVersion,
	}
}

// Check grades a handshake. Precedence is fixed: api version before game
// id before game version; the first mismatch wins.
func (p *Policy) Check(apiVersion uint16, gameID, gameVersion string) wire.AuthenticationResult {
	if apiVersion != wire.APIVersion {
		return wire.AuthenticationResultAPIVersionMismatch
	}
	if subtle.ConstantTimeCompare([]byte(gameID), []byte(p.gameID)) != 1 {
		return wire.AuthenticationResultGameIDMismatch
	}
	if p.enableGameVersionCheck && gameVersion != p.gameVersion {
		return wire.AuthenticationResultGameVersionMismatch
	}
	return wire.AuthenticationResultSuccess
}

// GameVersion is what authentication replies advertise.
func (p *Policy) GameVersion() string { return p.gameVersion }

// HeaderCode maps a handshake result onto the reply header's coarser
// error code: version problems and identity problems are distinguished,
// nothing more.
func HeaderCode(result wire.AuthenticationResult) wire.ErrorCode {
	switch result {
	case wire.AuthenticationResultSuccess:
		return wire.ErrorCodeOK
	case wire.AuthenticationResultGameIDMismatch:
		return wire.ErrorCodeAuthenticationError
	default:
		return wire.ErrorCodeVersionMismatch
	}
}
