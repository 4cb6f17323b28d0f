package packet

import (
	"encoding/binary"
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/traditionalchinese"
)

// Codec fixes the integer byte order and the string charset of one wire
// protocol. A nil Charset passes string bytes through unchanged (UTF-8).
type Codec struct {
	Order   binary.ByteOrder
	Charset encoding.Encoding
}

// CharsetByName maps a config value to a text encoding.
func CharsetByName(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return nil, nil
	case "latin1", "iso-8859-1":
		return charmap.ISO8859_1, nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252, nil
	case "big5", "ms950":
		return traditionalchinese.Big5, nil
	default:
		return nil, fmt.Errorf("unknown charset %q", name)
	}
}

// decode converts wire bytes to a UTF-8 string.
// Pure ASCII passes through unchanged; only non-ASCII input is decoded.
func (c Codec) decode(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	if c.Charset == nil || isASCII(raw) {
		return string(raw)
	}
	decoded, err := c.Charset.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw)
	}
	return string(decoded)
}

func (c Codec) encode(s string) []byte {
	if c.Charset == nil || isASCII([]byte(s)) {
		return []byte(s)
	}
	encoded, err := c.Charset.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return []byte(s)
	}
	return encoded
}

func isASCII(b []byte) bool {
	for _, c := range b {
		if c >= 0x80 {
			return false
		}
	}
	return true
}

// Client direction bits.
const (
	DirDown  uint8 = 1
	DirLeft  uint8 = 2
	DirUp    uint8 = 4
	DirRight uint8 = 8
)

// wireDirections maps the eAthena direction nibble (0..7, clockwise from
// south) to client direction bits.
var wireDirections = [8]uint8{
	DirDown,
	DirDown | DirLeft,
	DirLeft,
	DirUp | DirLeft,
	DirUp,
	DirUp | DirRight,
	DirRight,
	DirDown | DirRight,
}

// DirectionFromWire translates an eAthena direction nibble. Unknown values
// yield 0.
func DirectionFromWire(n uint8) uint8 {
	if int(n) < len(wireDirections) {
		return wireDirections[n]
	}
	return 0
}

// DirectionToWire is the inverse of DirectionFromWire. Unknown direction
// bits map to 0 (south).
func DirectionToWire(dir uint8) uint8 {
	for i, d := range wireDirections {
		if d == dir {
			return uint8(i)
		}
	}
	return 0
}
