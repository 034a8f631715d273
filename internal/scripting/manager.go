package scripting

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/cory-johannsen/bancho/internal/game/command"
)

// Manager owns one sandboxed LState holding every loaded script and the
// commands those scripts registered.
//
// The LState is single-threaded; mu serializes loads and command calls.
type Manager struct {
	mu       sync.Mutex
	state    *lua.LState
	limit    int
	commands []command.Command
	logger   *zap.Logger
}

// NewManager creates a Manager with no scripts loaded.
//
// Precondition: logger must be non-nil.
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{logger: logger}
}

// Load creates a fresh sandboxed VM, registers the bancho module and runs
// every *.lua file in scriptDir in lexicographic order. Scripts register
// commands with bancho.command(name, help, fn). A failed load leaves the
// previous scripts in place.
//
// Precondition: scriptDir must be a readable directory.
// Postcondition: Commands returns what the new scripts registered.
func (m *Manager) Load(scriptDir string, instLimit int) error {
	entries, err := os.ReadDir(scriptDir)
	if err != nil {
		return fmt.Errorf("scripting: reading script dir %q: %w", scriptDir, err)
	}
	var luaFiles []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".lua" {
			luaFiles = append(luaFiles, filepath.Join(scriptDir, e.Name()))
		}
	}
	sort.Strings(luaFiles)

	m.mu.Lock()
	defer m.mu.Unlock()

	L := NewSandboxedState(instLimit)
	var registered []command.Command
	m.registerModule(L, instLimit, &registered)

	for _, path := range luaFiles {
		done := withBudget(L, instLimit)
		err := L.DoFile(path)
		done()
		if err != nil {
			L.Close()
			return fmt.Errorf("scripting: loading %q: %w", path, err)
		}
	}

	if m.state != nil {
		m.state.Close()
	}
	m.state = L
	m.limit = instLimit
	m.commands = registered
	m.logger.Info("scripts loaded",
		zap.String("dir", scriptDir),
		zap.Int("files", len(luaFiles)),
		zap.Int("commands", len(registered)))
	return nil
}

// Commands returns the commands registered by the loaded scripts.
func (m *Manager) Commands() []command.Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]command.Command, len(m.commands))
	copy(out, m.commands)
	return out
}

// Close releases the VM.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != nil {
		m.state.Close()
		m.state = nil
	}
}

// registerModule defines the bancho global in L. Commands registered while
// loading are appended to out.
func (m *Manager) registerModule(L *lua.LState, limit int, out *[]command.Command) {
	mod := L.NewTable()
	L.SetField(mod, "command", L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)
		help := L.CheckString(2)
		fn := L.CheckFunction(3)
		*out = append(*out, command.Command{
			Name:     name,
			Help:     help,
			Category: command.CategoryScript,
			Run:      m.runner(L, name, fn, limit),
		})
		return 0
	}))
	L.SetField(mod, "log", L.NewFunction(func(L *lua.LState) int {
		m.logger.Info("script", zap.String("message", L.CheckString(1)))
		return 0
	}))
	L.SetGlobal("bancho", mod)
}

// runner adapts a Lua function to a command.Func. The function receives a
// context table and returns the reply, or nil for none.
func (m *Manager) runner(L *lua.LState, name string, fn *lua.LFunction, limit int) command.Func {
	return func(ctx *command.Context) (string, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.state != L {
			return "", fmt.Errorf("scripting: command %q was unloaded", name)
		}

		arg := L.NewTable()
		L.SetField(arg, "caller", lua.LString(ctx.Caller.Name))
		L.SetField(arg, "caller_id", lua.LNumber(ctx.Caller.AccountID))
		L.SetField(arg, "target", lua.LString(ctx.Target))
		L.SetField(arg, "raw", lua.LString(ctx.RawArgs))
		args := L.NewTable()
		for _, a := range ctx.Args {
			args.Append(lua.LString(a))
		}
		L.SetField(arg, "args", args)
		if ctx.Env != nil {
			L.SetField(arg, "online", lua.LNumber(len(ctx.Env.Online())))
		}

		done := withBudget(L, limit)
		defer done()
		if err := L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, arg); err != nil {
			m.logger.Warn("scripting: Lua runtime error", zap.String("command", name), zap.Error(err))
			return "", fmt.Errorf("scripting: command %q: %w", name, err)
		}
		ret := L.Get(-1)
		L.Pop(1)
		if ret == lua.LNil {
			return "", nil
		}
		return lua.LVAsString(ret), nil
	}
}
