package scripting

import (
	"fmt"

	"github.com/manago/client/internal/session"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// registerAPI installs the client table. Functions that can fail return
// true, or nil and an error message.
func (e *Engine) registerAPI() {
	api := e.vm.NewTable()
	fns := map[string]lua.LGFunction{
		"state":            e.luaState,
		"credentials":      e.luaCredentials,
		"log":              e.luaLog,
		"select_server":    e.indexAction(func(i int) error { return e.actions.SelectServer(i - 1) }),
		"select_world":     e.indexAction(func(i int) error { return e.actions.SelectWorld(i - 1) }),
		"select_character": e.indexAction(func(slot int) error { return e.actions.SelectCharacter(slot) }),
		"login":            e.luaLogin,
		"switch_character": e.action(func() error { return e.actions.SwitchCharacter() }),
		"acknowledge":      e.action(func() error { return e.actions.AcknowledgeError() }),
		"quit":             e.action(func() error { e.actions.Quit(); return nil }),
		"talk":             e.luaTalk,
		"whisper":          e.luaWhisper,
		"walk":             e.luaWalk,
		"trade_respond":    e.luaTradeRespond,
	}
	for name, fn := range fns {
		api.RawSetString(name, e.vm.NewFunction(fn))
	}
	e.vm.SetGlobal("client", api)
}

// result pushes the Lua convention for an action's outcome.
func result(L *lua.LState, err error) int {
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LTrue)
	return 1
}

func (e *Engine) action(fn func() error) lua.LGFunction {
	return func(L *lua.LState) int { return result(L, fn()) }
}

func (e *Engine) indexAction(fn func(int) error) lua.LGFunction {
	return func(L *lua.LState) int { return result(L, fn(L.CheckInt(1))) }
}

func (e *Engine) luaState(L *lua.LState) int {
	L.Push(lua.LString(e.actions.State().String()))
	return 1
}

func (e *Engine) luaCredentials(L *lua.LState) int {
	L.Push(lua.LString(e.creds.Username))
	L.Push(lua.LString(e.creds.Password))
	return 2
}

func (e *Engine) luaLog(L *lua.LState) int {
	e.log.Info(L.CheckString(1))
	return 0
}

func (e *Engine) luaLogin(L *lua.LState) int {
	user := L.CheckString(1)
	pass := L.CheckString(2)
	remember := L.OptBool(3, false)
	return result(L, e.actions.SubmitLogin(user, pass, remember))
}

// inGame returns the backend when the player is in the world.
func (e *Engine) inGame() (session.Backend, error) {
	if s := e.actions.State(); s != session.StateGame {
		return nil, fmt.Errorf("%w: %s", session.ErrInvalidAction, s)
	}
	return e.actions.Backend(), nil
}

func (e *Engine) luaTalk(L *lua.LState) int {
	text := L.CheckString(1)
	b, err := e.inGame()
	if err == nil {
		err = b.Chat().Talk(text)
	}
	if err != nil {
		e.log.Warn("talk failed", zap.Error(err))
	}
	return result(L, err)
}

func (e *Engine) luaWhisper(L *lua.LState) int {
	to, text := L.CheckString(1), L.CheckString(2)
	b, err := e.inGame()
	if err == nil {
		err = b.Chat().PrivateMessage(to, text)
	}
	return result(L, err)
}

func (e *Engine) luaWalk(L *lua.LState) int {
	x, y := L.CheckInt(1), L.CheckInt(2)
	b, err := e.inGame()
	if err == nil {
		err = b.Game().Walk(uint16(x), uint16(y), 0)
	}
	return result(L, err)
}

func (e *Engine) luaTradeRespond(L *lua.LState) int {
	accept := L.CheckBool(1)
	b, err := e.inGame()
	if err == nil {
		err = b.Trade().Respond(accept)
	}
	return result(L, err)
}
