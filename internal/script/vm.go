package script

import (
	"fmt"

	"github.com/Shopify/go-lua"
)

// vm is a Lua state without file, process or debug access.
type vm struct {
	state *lua.State
}

func newVM() *vm {
	state := lua.NewState()
	openSafeLibraries(state)
	return &vm{state: state}
}

func openSafeLibraries(state *lua.State) {
	lua.OpenLibraries(state)
	for _, name := range []string{"io", "os", "debug", "dofile", "loadfile", "require", "package"} {
		state.PushNil()
		state.SetGlobal(name)
	}
}

func (v *vm) loadFile(path string) error {
	if err := lua.DoFile(v.state, path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func (v *vm) hasFunction(name string) bool {
	v.state.Global(name)
	isFunc := v.state.IsFunction(-1)
	v.state.Pop(1)
	return isFunc
}

func (v *vm) call(name string, args ...string) error {
	v.state.Global(name)
	if !v.state.IsFunction(-1) {
		v.state.Pop(1)
		return fmt.Errorf("global %s is not a function", name)
	}
	for _, a := range args {
		v.state.PushString(a)
	}
	if err := v.state.ProtectedCall(len(args), 0, 0); err != nil {
		return fmt.Errorf("call %s: %w", name, err)
	}
	return nil
}

func (v *vm) register(name string, fn lua.Function) {
	v.state.Register(name, fn)
}
