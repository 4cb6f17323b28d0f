package scripting

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/manago/client/internal/core/event"
	"github.com/manago/client/internal/session"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

//go:embed default.lua
var defaultScript string

// Actions is the part of the session machine a script drives.
type Actions interface {
	State() session.State
	Backend() session.Backend
	SelectServer(index int) error
	SubmitLogin(username, password string, remember bool) error
	SelectWorld(index int) error
	SelectCharacter(slot int) error
	SwitchCharacter() error
	AcknowledgeError() error
	Quit()
}

// Credentials are handed to the script's login hook.
type Credentials struct {
	Username string
	Password string
}

// Engine wraps a single gopher-lua VM running the autopilot script. It
// implements session.UI: requests from the machine are queued and passed
// to the script's hooks on the next Tick. Game loop only.
type Engine struct {
	vm      *lua.LState
	actions Actions
	creds   Credentials
	pending []call
	log     *zap.Logger
}

// call is one queued hook invocation.
type call struct {
	hook string
	args []lua.LValue
}

// NewEngine loads the script at path, or the built-in script when path is
// empty.
func NewEngine(path string, creds Credentials, log *zap.Logger) (*Engine, error) {
	src, name := defaultScript, "default.lua"
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read script %s: %w", path, err)
		}
		src, name = string(raw), path
	}
	return newEngine(src, name, creds, log)
}

func newEngine(src, name string, creds Credentials, log *zap.Logger) (*Engine, error) {
	vm := lua.NewState()
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, creds: creds, log: log.With(zap.String("component", "script"))}
	e.registerAPI()

	fn, err := vm.LoadString(src)
	if err != nil {
		vm.Close()
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	vm.Push(fn)
	if err := vm.PCall(0, lua.MultRet, nil); err != nil {
		vm.Close()
		return nil, fmt.Errorf("run %s: %w", name, err)
	}
	e.log.Debug("loaded lua script", zap.String("file", name))
	return e, nil
}

// Bind attaches the machine. It must be called before the first Tick.
func (e *Engine) Bind(a Actions) { e.actions = a }

// Subscribe forwards chat, notices, map changes and trade requests to the
// script.
func (e *Engine) Subscribe(bus *event.Bus) {
	event.Subscribe(bus, func(ev event.ChatReceived) {
		e.queue("on_chat", lua.LString(ev.Channel), lua.LString(ev.From), lua.LString(ev.Text))
	})
	event.Subscribe(bus, func(ev event.MapChanged) {
		e.queue("on_map", lua.LString(ev.Map), lua.LNumber(ev.X), lua.LNumber(ev.Y))
	})
	event.Subscribe(bus, func(ev event.Notice) {
		e.ShowNotice(ev.Text)
	})
	event.Subscribe(bus, func(ev event.TradeRequested) {
		e.queue("on_trade_request", lua.LString(ev.From))
	})
}

func (e *Engine) queue(hook string, args ...lua.LValue) {
	e.pending = append(e.pending, call{hook: hook, args: args})
}

// Tick runs the queued hooks in order, then on_tick.
func (e *Engine) Tick() {
	calls := e.pending
	e.pending = nil
	for _, c := range calls {
		e.callHook(c.hook, c.args...)
	}
	e.callHook("on_tick")
}

// callHook calls a global function if the script defines it.
func (e *Engine) callHook(name string, args ...lua.LValue) {
	fn := e.vm.GetGlobal(name)
	if fn == lua.LNil {
		return
	}
	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    0,
		Protect: true,
	}, args...); err != nil {
		e.log.Error("lua hook error", zap.String("hook", name), zap.Error(err))
	}
}

// Close shuts down the Lua VM.
func (e *Engine) Close() {
	e.vm.Close()
}
