package command

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/cory-johannsen/bancho/internal/game/session"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrForbidden      = errors.New("not allowed to use this command")
	ErrUsage          = errors.New("bad arguments")
)

// Registry maps command names and aliases to Command definitions.
type Registry struct {
	prefix string
	rand   Source

	mu       sync.RWMutex
	commands map[string]*Command // canonical name → command
	aliases  map[string]string   // alias → canonical name
}

// NewRegistry creates a Registry with the given commands. Chat lines must
// start with prefix to be treated as commands.
//
// Precondition: No two commands may share a canonical name or alias; rand
// must be non-nil.
// Postcondition: Returns a Registry or an error on name/alias collisions.
func NewRegistry(prefix string, rand Source, cmds []Command) (*Registry, error) {
	r := &Registry{
		prefix:   prefix,
		rand:     rand,
		commands: make(map[string]*Command, len(cmds)),
		aliases:  make(map[string]string),
	}
	for _, cmd := range cmds {
		if err := r.Register(cmd); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// DefaultRegistry creates a Registry with all built-in commands.
//
// Postcondition: Returns a Registry with all built-in commands registered.
func DefaultRegistry(prefix string) *Registry {
	r, err := NewRegistry(prefix, NewCryptoSource(), BuiltinCommands())
	if err != nil {
		panic(fmt.Sprintf("building default registry: %v", err))
	}
	return r
}

// Register adds cmd.
//
// Postcondition: Returns an error if its name or an alias is taken.
func (r *Registry) Register(cmd Command) error {
	if cmd.Name == "" || cmd.Run == nil {
		return fmt.Errorf("command needs a name and a function")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.commands[cmd.Name]; exists {
		return fmt.Errorf("duplicate command name: %q", cmd.Name)
	}
	if _, exists := r.aliases[cmd.Name]; exists {
		return fmt.Errorf("command name %q conflicts with an existing alias", cmd.Name)
	}
	for _, alias := range cmd.Aliases {
		if _, exists := r.commands[alias]; exists || alias == cmd.Name {
			return fmt.Errorf("alias %q conflicts with command name %q", alias, alias)
		}
		if existing, exists := r.aliases[alias]; exists {
			return fmt.Errorf("duplicate alias %q: used by %q and %q", alias, existing, cmd.Name)
		}
	}
	c := cmd
	r.commands[c.Name] = &c
	for _, alias := range c.Aliases {
		r.aliases[alias] = c.Name
	}
	return nil
}

// Prefix returns the command prefix.
func (r *Registry) Prefix() string {
	return r.prefix
}

// Resolve looks up a command by name or alias.
//
// Postcondition: Returns (command, true) if found, or (nil, false).
func (r *Registry) Resolve(input string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if cmd, ok := r.commands[input]; ok {
		return cmd, true
	}
	if canonical, ok := r.aliases[input]; ok {
		return r.commands[canonical], true
	}
	return nil, false
}

// Commands returns all registered commands sorted by name.
func (r *Registry) Commands() []*Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		result = append(result, cmd)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// CommandsByCategory returns commands grouped by category.
func (r *Registry) CommandsByCategory() map[string][]*Command {
	categories := make(map[string][]*Command)
	for _, cmd := range r.Commands() {
		categories[cmd.Category] = append(categories[cmd.Category], cmd)
	}
	return categories
}

// Execute runs the command in line if it carries the prefix.
//
// Postcondition: handled is false when line is ordinary chat. Otherwise the
// reply is returned, or ErrUnknownCommand, ErrForbidden or the command's
// own error.
func (r *Registry) Execute(line string, caller session.Session, target string, env Env) (reply string, handled bool, err error) {
	parsed, ok := Parse(r.prefix, line)
	if !ok {
		return "", false, nil
	}
	cmd, ok := r.Resolve(parsed.Command)
	if !ok {
		return "", true, fmt.Errorf("%w: %s%s", ErrUnknownCommand, r.prefix, parsed.Command)
	}
	if !cmd.Allowed(caller.Privileges) {
		return "", true, fmt.Errorf("%w: %s%s", ErrForbidden, r.prefix, cmd.Name)
	}
	reply, err = cmd.Run(&Context{
		Caller:   caller,
		Target:   target,
		Args:     parsed.Args,
		RawArgs:  parsed.RawArgs,
		Env:      env,
		Rand:     r.rand,
		Registry: r,
	})
	return reply, true, err
}
