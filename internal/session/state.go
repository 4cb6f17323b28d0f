package session

import "fmt"

// State is the session's position in the connect/login/play flow.
type State int

const (
	StateError State = iota - 1
	StateStart
	StateChooseServer
	StateConnectServer
	StateLogin
	StateLoginAttempt
	StateWorldSelect
	StateUpdate
	StateLoadData
	StateGetCharacters
	StateCharSelect
	StateConnectGame
	StateGame
	StateChangeMap
	StateLoginError
	StateAccountChangeError
	StateRegisterPrep
	StateRegister
	StateRegisterAttempt
	StateChangePasswordAttempt
	StateChangePasswordSuccess
	StateSwitchServer
	StateSwitchLogin
	StateSwitchCharacter
	StateLogoutAttempt
	StateExit
	StateForceQuit
)

var stateNames = map[State]string{
	StateError:                 "Error",
	StateStart:                 "Start",
	StateChooseServer:          "ChooseServer",
	StateConnectServer:         "ConnectServer",
	StateLogin:                 "Login",
	StateLoginAttempt:          "LoginAttempt",
	StateWorldSelect:           "WorldSelect",
	StateUpdate:                "Update",
	StateLoadData:              "LoadData",
	StateGetCharacters:         "GetCharacters",
	StateCharSelect:            "CharSelect",
	StateConnectGame:           "ConnectGame",
	StateGame:                  "Game",
	StateChangeMap:             "ChangeMap",
	StateLoginError:            "LoginError",
	StateAccountChangeError:    "AccountChangeError",
	StateRegisterPrep:          "RegisterPrep",
	StateRegister:              "Register",
	StateRegisterAttempt:       "RegisterAttempt",
	StateChangePasswordAttempt: "ChangePasswordAttempt",
	StateChangePasswordSuccess: "ChangePasswordSuccess",
	StateSwitchServer:          "SwitchServer",
	StateSwitchLogin:           "SwitchLogin",
	StateSwitchCharacter:       "SwitchCharacter",
	StateLogoutAttempt:         "LogoutAttempt",
	StateExit:                  "Exit",
	StateForceQuit:             "ForceQuit",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("Unknown(%d)", int(s))
}

// ParseState is the inverse of String.
func ParseState(name string) (State, bool) {
	for s, n := range stateNames {
		if n == name {
			return s, true
		}
	}
	return 0, false
}

// waiting reports whether the state has a request in flight whose reply
// drives the next transition. Such states are subject to the request
// timeout.
func (s State) waiting() bool {
	switch s {
	case StateConnectServer, StateLoginAttempt, StateRegisterAttempt,
		StateGetCharacters, StateConnectGame, StateChangeMap,
		StateChangePasswordAttempt, StateLogoutAttempt:
		return true
	}
	return false
}

// needsLink reports whether a transport failure in this state is fatal.
func (s State) needsLink() bool {
	switch s {
	case StateConnectServer, StateLoginAttempt, StateWorldSelect,
		StateRegisterAttempt, StateGetCharacters, StateCharSelect,
		StateConnectGame, StateGame, StateChangeMap,
		StateChangePasswordAttempt:
		return true
	}
	return false
}
