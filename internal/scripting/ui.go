package scripting

import (
	"github.com/manago/client/internal/session"
	lua "github.com/yuin/gopher-lua"
)

func (e *Engine) StateChanged(old, cur session.State) {
	e.queue("on_state", lua.LString(old.String()), lua.LString(cur.String()))
}

func (e *Engine) ShowConnecting(msg string) { e.queue("on_connecting", lua.LString(msg)) }
func (e *Engine) ShowError(msg string)      { e.queue("on_error", lua.LString(msg)) }
func (e *Engine) ShowNotice(msg string)     { e.queue("on_notice", lua.LString(msg)) }

// Lists are passed 1-based; the script answers with the same index.

func (e *Engine) RequestServer(servers []session.ServerDescriptor) {
	t := e.vm.NewTable()
	for _, s := range servers {
		st := e.vm.NewTable()
		st.RawSetString("host", lua.LString(s.Host))
		st.RawSetString("port", lua.LNumber(s.Port))
		st.RawSetString("type", lua.LString(s.Kind.String()))
		st.RawSetString("name", lua.LString(s.Name))
		st.RawSetString("description", lua.LString(s.Description))
		t.Append(st)
	}
	e.queue("request_server", t)
}

func (e *Engine) RequestLogin(c session.Credentials, registering bool) {
	t := e.vm.NewTable()
	t.RawSetString("username", lua.LString(c.Username))
	t.RawSetString("remember", lua.LBool(c.Remember))
	e.queue("request_login", t, lua.LBool(registering))
}

func (e *Engine) RequestWorld(worlds []session.WorldInfo) {
	t := e.vm.NewTable()
	for _, w := range worlds {
		wt := e.vm.NewTable()
		wt.RawSetString("name", lua.LString(w.Name))
		wt.RawSetString("online", lua.LNumber(w.Online))
		wt.RawSetString("maintenance", lua.LBool(w.Maintenance))
		t.Append(wt)
	}
	e.queue("request_world", t)
}

func (e *Engine) RequestCharacter(chars []session.Character) {
	t := e.vm.NewTable()
	for _, c := range chars {
		ct := e.vm.NewTable()
		ct.RawSetString("slot", lua.LNumber(c.Slot))
		ct.RawSetString("name", lua.LString(c.Name))
		ct.RawSetString("level", lua.LNumber(c.Level))
		ct.RawSetString("map", lua.LString(c.Map))
		t.Append(ct)
	}
	e.queue("request_character", t)
}
