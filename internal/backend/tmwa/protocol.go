package tmwa

import (
	"encoding/binary"
	"net/netip"

	"github.com/manago/client/internal/net/packet"
)

// Message ids. SMSG come from the server, CMSG from the client.
const (
	cmsgCharPasswordChange  uint16 = 0x0061
	smsgCharPasswordResult  uint16 = 0x0062
	smsgUpdateHost          uint16 = 0x0063
	cmsgLoginRegister       uint16 = 0x0064
	cmsgCharServerConnect   uint16 = 0x0065
	cmsgCharSelect          uint16 = 0x0066
	cmsgCharCreate          uint16 = 0x0067
	cmsgCharDelete          uint16 = 0x0068
	smsgLoginData           uint16 = 0x0069
	smsgLoginError          uint16 = 0x006a
	smsgCharLogin           uint16 = 0x006b
	smsgCharLoginError      uint16 = 0x006c
	smsgCharCreateSucceeded uint16 = 0x006d
	smsgCharCreateFailed    uint16 = 0x006e
	smsgCharDeleteSucceeded uint16 = 0x006f
	smsgCharDeleteFailed    uint16 = 0x0070
	smsgCharMapInfo         uint16 = 0x0071
	cmsgMapServerConnect    uint16 = 0x0072
	smsgMapLoginSuccess     uint16 = 0x0073
	smsgBeingVisible        uint16 = 0x0078
	smsgBeingMove           uint16 = 0x007b
	cmsgMapLoaded           uint16 = 0x007d
	cmsgMapPing             uint16 = 0x007e
	smsgServerPing          uint16 = 0x007f
	smsgBeingRemove         uint16 = 0x0080
	smsgConnectionProblem   uint16 = 0x0081
	cmsgPlayerChangeDest    uint16 = 0x0085
	smsgWalkResponse        uint16 = 0x0087
	smsgPlayerStop          uint16 = 0x0088
	cmsgChatMessage         uint16 = 0x008c
	smsgBeingChat           uint16 = 0x008d
	smsgPlayerChat          uint16 = 0x008e
	smsgPlayerWarp          uint16 = 0x0091
	smsgChangeMapServer     uint16 = 0x0092
	cmsgNameRequest         uint16 = 0x0094
	smsgBeingNameResponse   uint16 = 0x0095
	cmsgChatWhisper         uint16 = 0x0096
	smsgWhisper             uint16 = 0x0097
	smsgWhisperResponse     uint16 = 0x0098
	smsgGMChat              uint16 = 0x009a
	smsgBeingChangeDir      uint16 = 0x009c
	cmsgPlayerReboot        uint16 = 0x00b2
	smsgCharSwitchResponse  uint16 = 0x00b3
	smsgWhoAnswer           uint16 = 0x00c2
	cmsgTradeRequest        uint16 = 0x00e4
	smsgTradeRequest        uint16 = 0x00e5
	cmsgTradeResponse       uint16 = 0x00e6
	smsgTradeResponse       uint16 = 0x00e7
	cmsgTradeCancelRequest  uint16 = 0x00ed
	smsgTradeCancel         uint16 = 0x00ee
	smsgTradeComplete       uint16 = 0x00f0
	cmsgClientQuit          uint16 = 0x018a
	smsgMapQuitResponse     uint16 = 0x018b
	cmsgServerVersion       uint16 = 0x7530
	smsgServerVersion       uint16 = 0x7531
)

// clientVersion is sent in the login request; protocolVersion in the char
// server connect, where old servers ignore it.
const (
	clientVersion   = 8
	protocolVersion = 1
	// loginFlags: bit 0 handles the update host packet, bit 1 prefers the
	// first char server.
	loginFlags = 0x03
	// flagRegistration is bit 0 of the version response options.
	flagRegistration = 1
	// charInfoSize is one character record in the char list.
	charInfoSize = 106
)

const _v = packet.VarLength

// lengths is the eAthena length table indexed by message id; 0 is unused.
var lengths = [...]int{
	// 0x0000
	10, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	// 0x0040
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 50, 3, _v, 55, 17, 3, 37, 46, _v, 23, _v, 3, 108, 3, 2,
	3, 28, 19, 11, 3, _v, 9, 5, 54, 53, 58, 60, 41, 2, 6, 6,
	// 0x0080
	7, 3, 2, 2, 2, 5, 16, 12, 10, 7, 29, 23, _v, _v, _v, 0,
	7, 22, 28, 2, 6, 30, _v, _v, 3, _v, _v, 5, 9, 17, 17, 6,
	23, 6, 6, _v, _v, _v, _v, 8, 7, 6, 7, 4, 7, 0, _v, 6,
	8, 8, 3, 3, _v, 6, 6, _v, 7, 6, 2, 5, 6, 44, 5, 3,
	// 0x00C0
	7, 2, 6, 8, 6, 7, _v, _v, _v, _v, 3, 3, 6, 6, 2, 27,
	3, 4, 4, 2, _v, _v, 3, _v, 6, 14, 3, _v, 28, 29, _v, _v,
	30, 30, 26, 2, 6, 26, 3, 3, 8, 19, 5, 2, 3, 2, 2, 2,
	3, 2, 6, 8, 21, 8, 8, 2, 2, 26, 3, _v, 6, 27, 30, 10,
	// 0x0100
	2, 6, 6, 30, 79, 31, 10, 10, _v, _v, 4, 6, 6, 2, 11, _v,
	10, 39, 4, 10, 31, 35, 10, 18, 2, 13, 15, 20, 68, 2, 3, 16,
	6, 14, _v, _v, 21, 8, 8, 8, 8, 8, 2, 2, 3, 4, 2, _v,
	6, 86, 6, _v, _v, 7, _v, 6, 3, 16, 4, 4, 4, 6, 24, 26,
	// 0x0140
	22, 14, 6, 10, 23, 19, 6, 39, 8, 9, 6, 27, _v, 2, 6, 6,
	110, 6, _v, _v, _v, _v, _v, 6, _v, 54, 66, 54, 90, 42, 6, 42,
	_v, _v, _v, _v, _v, 30, _v, 3, 14, 3, 30, 10, 43, 14, 186, 182,
	14, 30, 10, 3, _v, 6, 106, _v, 4, 5, 4, _v, 6, 7, _v, _v,
	// 0x0180
	6, 3, 106, 10, 10, 34, 0, 6, 8, 4, 4, 4, 29, _v, 10, 6,
	90, 86, 24, 6, 30, 102, 9, 4, 8, 4, 14, 10, 4, 6, 2, 6,
	3, 3, 35, 5, 11, 26, _v, 4, 4, 6, 10, 12, 6, _v, 4, 4,
	11, 7, _v, 67, 12, 18, 114, 6, 3, 6, 26, 26, 26, 26, 2, 3,
	// 0x01C0
	2, 14, 10, _v, 22, 22, 4, 2, 13, 97, 0, 9, 9, 29, 6, 28,
	8, 14, 10, 35, 6, _v, 4, 11, 54, 53, 60, 2, _v, 47, 33, 6,
	30, 8, 34, 14, 2, 6, 26, 2, 28, 81, 6, 10, 26, 2, _v, _v,
	_v, _v, 20, 10, 32, 9, 34, 14, 2, 6, 48, 56, _v, 4, 5, 10,
	// 0x0200
	26, 0, 0, 0, 18, 0, 0, 0, 0, 0, 0, 19, 10, 0, 0, 0,
	2, _v, 16, 0, 8, _v, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	_v, 122, _v, _v, _v, _v, 10, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

var names = map[uint16]string{
	smsgCharPasswordResult:  "SMSG_CHAR_PASSWORD_RESPONSE",
	smsgUpdateHost:          "SMSG_UPDATE_HOST",
	smsgLoginData:           "SMSG_LOGIN_DATA",
	smsgLoginError:          "SMSG_LOGIN_ERROR",
	smsgCharLogin:           "SMSG_CHAR_LOGIN",
	smsgCharLoginError:      "SMSG_CHAR_LOGIN_ERROR",
	smsgCharCreateSucceeded: "SMSG_CHAR_CREATE_SUCCEEDED",
	smsgCharCreateFailed:    "SMSG_CHAR_CREATE_FAILED",
	smsgCharDeleteSucceeded: "SMSG_CHAR_DELETE_SUCCEEDED",
	smsgCharDeleteFailed:    "SMSG_CHAR_DELETE_FAILED",
	smsgCharMapInfo:         "SMSG_CHAR_MAP_INFO",
	smsgMapLoginSuccess:     "SMSG_MAP_LOGIN_SUCCESS",
	smsgBeingVisible:        "SMSG_BEING_VISIBLE",
	smsgBeingMove:           "SMSG_BEING_MOVE",
	smsgServerPing:          "SMSG_SERVER_PING",
	smsgBeingRemove:         "SMSG_BEING_REMOVE",
	smsgConnectionProblem:   "SMSG_CONNECTION_PROBLEM",
	smsgWalkResponse:        "SMSG_WALK_RESPONSE",
	smsgPlayerStop:          "SMSG_PLAYER_STOP",
	smsgBeingChat:           "SMSG_BEING_CHAT",
	smsgPlayerChat:          "SMSG_PLAYER_CHAT",
	smsgPlayerWarp:          "SMSG_PLAYER_WARP",
	smsgChangeMapServer:     "SMSG_CHANGE_MAP_SERVER",
	smsgBeingNameResponse:   "SMSG_BEING_NAME_RESPONSE",
	smsgWhisper:             "SMSG_WHISPER",
	smsgWhisperResponse:     "SMSG_WHISPER_RESPONSE",
	smsgGMChat:              "SMSG_GM_CHAT",
	smsgBeingChangeDir:      "SMSG_BEING_CHANGE_DIRECTION",
	smsgCharSwitchResponse:  "SMSG_CHAR_SWITCH_RESPONSE",
	smsgWhoAnswer:           "SMSG_WHO_ANSWER",
	smsgTradeRequest:        "SMSG_TRADE_REQUEST",
	smsgTradeResponse:       "SMSG_TRADE_RESPONSE",
	smsgTradeCancel:         "SMSG_TRADE_CANCEL",
	smsgTradeComplete:       "SMSG_TRADE_COMPLETE",
	smsgMapQuitResponse:     "SMSG_MAP_QUIT_RESPONSE",
	smsgServerVersion:       "SMSG_SERVER_VERSION_RESPONSE",
}

// Table returns the descriptor table of the protocol. The version response
// sits outside the dense range and is added explicitly.
func Table() *packet.Table {
	return packet.TableFromLengths(lengths[:], names,
		packet.Descriptor{ID: smsgServerVersion, Length: 10, Name: names[smsgServerVersion]})
}

// Framer splits the little-endian stream.
func Framer() packet.Framer {
	return packet.Framer{Order: binary.LittleEndian, Table: Table()}
}

// ipToString renders an address read as a little-endian int32.
func ipToString(ip uint32) string {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], ip)
	return netip.AddrFrom4(b).String()
}
