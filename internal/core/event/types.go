package event

// Client-side events. Field types stay primitive so this package has no
// dependencies on session or world.

// StateChanged fires once per session state transition.
type StateChanged struct {
	Old, New string
}

// MapChanged fires when the player arrives on a map.
type MapChanged struct {
	Map  string
	X, Y uint16
}

// BeingMoved fires when a being appears or changes position.
type BeingMoved struct {
	ID   int32
	Name string
	X, Y uint16
	Dir  uint8
}

// BeingRemoved fires when a being leaves sight or dies.
type BeingRemoved struct {
	ID   int32
	Dead bool
}

// Chat channels.
const (
	ChatPublic  = "public"
	ChatWhisper = "whisper"
	ChatGM      = "gm"
	ChatSelf    = "self"
)

// ChatReceived carries one line of chat.
type ChatReceived struct {
	Channel string
	From    string
	Text    string
}

// Notice is a server or client message for the user.
type Notice struct {
	Text string
}

// TradeRequested fires when another player asks to trade.
type TradeRequested struct {
	From string
}

// TradeEnded reports how a trade finished: "complete", "cancelled" or
// "rejected".
type TradeEnded struct {
	Outcome string
}

// CharactersChanged fires when a character is created or deleted while the
// list is on screen.
type CharactersChanged struct {
	Count int
}
