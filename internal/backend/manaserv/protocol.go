package manaserv

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"github.com/manago/client/internal/net/packet"
)

// Message ids. PA/AP: client and account server, PG/GP: game server,
// PC/CP: chat server.
const (
	pamsgRegister               uint16 = 0x0000
	apmsgRegisterResponse       uint16 = 0x0002
	pamsgLogin                  uint16 = 0x0010
	apmsgLoginResponse          uint16 = 0x0012
	pamsgLogout                 uint16 = 0x0013
	apmsgLogoutResponse         uint16 = 0x0014
	pamsgCharCreate             uint16 = 0x0020
	apmsgCharCreateResponse     uint16 = 0x0021
	pamsgCharDelete             uint16 = 0x0022
	apmsgCharDeleteResponse     uint16 = 0x0023
	apmsgCharInfo               uint16 = 0x0024
	pamsgCharSelect             uint16 = 0x0026
	apmsgCharSelectResponse     uint16 = 0x0027
	pamsgPasswordChange         uint16 = 0x0034
	apmsgPasswordChangeResponse uint16 = 0x0035
	pgmsgConnect                uint16 = 0x0050
	gpmsgConnectResponse        uint16 = 0x0051
	pcmsgConnect                uint16 = 0x0053
	cpmsgConnectResponse        uint16 = 0x0054
	pgmsgDisconnect             uint16 = 0x0060
	gpmsgDisconnectResponse     uint16 = 0x0061
	pamsgReconnect              uint16 = 0x0065
	apmsgReconnectResponse      uint16 = 0x0066
	gpmsgPlayerMapChange        uint16 = 0x0100
	gpmsgPlayerServerChange     uint16 = 0x0101
	gpmsgBeingEnter             uint16 = 0x0200
	gpmsgBeingLeave             uint16 = 0x0201
	pgmsgWalk                   uint16 = 0x0260
	gpmsgBeingsMove             uint16 = 0x0280
	pgmsgSay                    uint16 = 0x02a0
	gpmsgSay                    uint16 = 0x02a1
	pgmsgTradeRequest           uint16 = 0x02c0
	gpmsgTradeRequest           uint16 = 0x02c1
	gpmsgTradeStart             uint16 = 0x02c2
	gpmsgTradeComplete          uint16 = 0x02c3
	pgmsgTradeCancel            uint16 = 0x02c4
	gpmsgTradeCancel            uint16 = 0x02c5
	cpmsgAnnouncement           uint16 = 0x0402
	cpmsgPrivMsg                uint16 = 0x0403
	pcmsgPrivMsg                uint16 = 0x0412
)

// Generic error codes carried in the first byte of every response.
const (
	errOK                   = 0x00
	errFailure              = 0x01
	errNoLogin              = 0x02
	errNoCharacterSelected  = 0x03
	errInsufficientRights   = 0x04
	errInvalidArgument      = 0x05
	errEmailExists          = 0x06
	errAlreadyTaken         = 0x07
	errServerFull           = 0x08
	errTimeOut              = 0x09
	errLimitReached         = 0x0a
	errAdministrativeLogoff = 0x0b

	loginInvalidVersion = 0x40
	loginInvalidTime    = 0x50
	loginBanned         = 0x51

	registerInvalidVersion = 0x40
	registerExistsUsername = 0x41
	registerExistsEmail    = 0x42

	createInvalidHairStyle  = 0x40
	createInvalidHairColor  = 0x41
	createInvalidGender     = 0x42
	createAttributesTooHigh = 0x43
	createAttributesTooLow  = 0x44
	createAttributesZero    = 0x45
	createExistsName        = 0x46
	createTooManyCharacters = 0x47
)

// clientVersion is sent with login and registration.
const clientVersion = 0

// tokenSize is the length of the opaque server handover token.
const tokenSize = 32

// tileSize converts the game server's pixel positions to tiles.
const tileSize = 32

// GPMSG_BEINGS_MOVE flags.
const (
	movingPosition    = 1
	movingDestination = 2
)

// Being types of GPMSG_BEING_ENTER.
const (
	objectNPC       = 2
	objectMonster   = 3
	objectCharacter = 4
)

var names = map[uint16]string{
	apmsgRegisterResponse:       "APMSG_REGISTER_RESPONSE",
	apmsgLoginResponse:          "APMSG_LOGIN_RESPONSE",
	apmsgLogoutResponse:         "APMSG_LOGOUT_RESPONSE",
	apmsgCharCreateResponse:     "APMSG_CHAR_CREATE_RESPONSE",
	apmsgCharDeleteResponse:     "APMSG_CHAR_DELETE_RESPONSE",
	apmsgCharInfo:               "APMSG_CHAR_INFO",
	apmsgCharSelectResponse:     "APMSG_CHAR_SELECT_RESPONSE",
	apmsgPasswordChangeResponse: "APMSG_PASSWORD_CHANGE_RESPONSE",
	apmsgReconnectResponse:      "APMSG_RECONNECT_RESPONSE",
	gpmsgConnectResponse:        "GPMSG_CONNECT_RESPONSE",
	cpmsgConnectResponse:        "CPMSG_CONNECT_RESPONSE",
	gpmsgDisconnectResponse:     "GPMSG_DISCONNECT_RESPONSE",
	gpmsgPlayerMapChange:        "GPMSG_PLAYER_MAP_CHANGE",
	gpmsgPlayerServerChange:     "GPMSG_PLAYER_SERVER_CHANGE",
	gpmsgBeingEnter:             "GPMSG_BEING_ENTER",
	gpmsgBeingLeave:             "GPMSG_BEING_LEAVE",
	gpmsgBeingsMove:             "GPMSG_BEINGS_MOVE",
	gpmsgSay:                    "GPMSG_SAY",
	gpmsgTradeRequest:           "GPMSG_TRADE_REQUEST",
	gpmsgTradeStart:             "GPMSG_TRADE_START",
	gpmsgTradeComplete:          "GPMSG_TRADE_COMPLETE",
	gpmsgTradeCancel:            "GPMSG_TRADE_CANCEL",
	cpmsgAnnouncement:           "CPMSG_ANNOUNCEMENT",
	cpmsgPrivMsg:                "CPMSG_PRIVMSG",
}

// Table names the messages for diagnostics. Datagrams need no framing, so
// every entry is variable-length.
func Table() *packet.Table {
	descs := make([]packet.Descriptor, 0, len(names))
	for id, name := range names {
		descs = append(descs, packet.Descriptor{ID: id, Length: packet.VarLength, Name: name})
	}
	return packet.NewTable(descs...)
}

// Codec is big endian with length-prefixed strings.
func Codec() packet.Codec {
	return packet.Codec{Order: binary.BigEndian}
}

// passwordDigest is what the account server stores for a password: the hex
// SHA-256 of the username followed by the password.
func passwordDigest(username, password string) string {
	sum := sha256.Sum256([]byte(username + password))
	return hex.EncodeToString(sum[:])
}

// errorText returns the message for the generic error codes.
func errorText(code uint8) string {
	switch code {
	case errFailure:
		return "The action failed."
	case errNoLogin:
		return "Account not connected. Please login first."
	case errNoCharacterSelected:
		return "No character selected."
	case errInsufficientRights:
		return "Insufficient rights."
	case errInvalidArgument:
		return "Invalid argument."
	case errServerFull:
		return "Server is full."
	case errTimeOut:
		return "Request timed out."
	case errLimitReached:
		return "Limit reached."
	case errAdministrativeLogoff:
		return "You have been logged off by an administrator."
	default:
		return "Unknown error."
	}
}
