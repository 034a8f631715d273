// Package command provides the bot's chat command registry, parser and
// built-in commands.
package command

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cory-johannsen/bancho/internal/game/ruleset"
	"github.com/cory-johannsen/bancho/internal/game/session"
)

// Categories for organizing commands.
const (
	CategoryGeneral = "general"
	CategoryFun     = "fun"
	CategoryScript  = "script"
	CategoryMatch   = "match"
	CategoryAdmin   = "admin"
)

// Env is the read-only view of the server that commands may consult.
type Env interface {
	// Online returns every connected session.
	Online() []session.Session
	// MatchCount returns the number of open multiplayer matches.
	MatchCount() int
	// AbortMatch stops the game running in the match hosted by token.
	AbortMatch(token string) error
	// CloseMatch disbands the match hosted by token.
	CloseMatch(token string) error
}

// Context is passed to a running command.
type Context struct {
	// Caller is the session that issued the command.
	Caller session.Session
	// Target is the channel the command was sent to, or the bot's name for
	// private messages.
	Target  string
	Args    []string
	RawArgs string
	Env     Env
	Rand    Source
	// Registry is the registry running the command.
	Registry *Registry
}

// Func runs a command and returns the bot's reply. An empty reply sends
// nothing.
type Func func(ctx *Context) (string, error)

// Command defines a chat command.
type Command struct {
	// Name is the canonical command name.
	Name string
	// Aliases are alternate names for this command.
	Aliases []string
	// Help is the short help text listed by the help command.
	Help string
	// Category groups the command.
	Category string
	// Privileges, when not PrivNone, restricts the command to callers
	// holding any of the bits.
	Privileges ruleset.Privileges
	Run        Func
}

// Allowed reports whether a caller with priv may run c.
func (c *Command) Allowed(priv ruleset.Privileges) bool {
	return c.Privileges == ruleset.PrivNone || priv.Any(c.Privileges)
}

// BuiltinCommands returns the built-in commands.
func BuiltinCommands() []Command {
	return []Command{
		{Name: "help", Aliases: []string{"h"}, Help: "List the commands you can use", Category: CategoryGeneral, Run: runHelp},
		{Name: "roll", Help: "Roll a number between 1 and max (default 100)", Category: CategoryFun, Run: runRoll},
		{Name: "online", Aliases: []string{"who"}, Help: "Show who is online", Category: CategoryGeneral, Run: runOnline},
		{Name: "matches", Aliases: []string{"mp"}, Help: "Show how many multiplayer matches are open", Category: CategoryGeneral, Run: runMatches},
		{Name: "abort", Help: "Abort the game in your match (host only)", Category: CategoryMatch, Run: runAbort},
		{Name: "close", Help: "Close your match (host only)", Category: CategoryMatch, Run: runClose},
		{Name: "privileges", Aliases: []string{"privs"}, Help: "Show your privilege mask", Category: CategoryAdmin, Privileges: ruleset.PrivStaff, Run: runPrivileges},
	}
}

func runHelp(ctx *Context) (string, error) {
	lines := make([]string, 0, 8)
	for _, cmd := range ctx.Registry.Commands() {
		if !cmd.Allowed(ctx.Caller.Privileges) {
			continue
		}
		line := ctx.Registry.Prefix() + cmd.Name
		if len(cmd.Aliases) > 0 {
			line += " [" + ctx.Registry.Prefix() + strings.Join(cmd.Aliases, " "+ctx.Registry.Prefix()) + "]"
		}
		lines = append(lines, line+" - "+cmd.Help)
	}
	return strings.Join(lines, "\n"), nil
}

// DefaultRollMax is the upper bound of a roll with no argument.
const DefaultRollMax = 100

func runRoll(ctx *Context) (string, error) {
	limit := DefaultRollMax
	if len(ctx.Args) > 0 {
		n, err := strconv.Atoi(ctx.Args[0])
		if err != nil || n < 1 {
			return "", fmt.Errorf("%w: roll takes a positive number", ErrUsage)
		}
		limit = n
	}
	return fmt.Sprintf("%s rolls %d points!", ctx.Caller.Name, ctx.Rand.Intn(limit)+1), nil
}

func runOnline(ctx *Context) (string, error) {
	online := ctx.Env.Online()
	names := make([]string, 0, len(online))
	for _, s := range online {
		names = append(names, s.Name)
	}
	sort.Strings(names)
	noun := "users"
	if len(names) == 1 {
		noun = "user"
	}
	return fmt.Sprintf("%d %s online: %s", len(names), noun, strings.Join(names, ", ")), nil
}

func runMatches(ctx *Context) (string, error) {
	return fmt.Sprintf("%d multiplayer matches open", ctx.Env.MatchCount()), nil
}

func runPrivileges(ctx *Context) (string, error) {
	return fmt.Sprintf("%s has privileges %d", ctx.Caller.Name, uint32(ctx.Caller.Privileges)), nil
}

func runAbort(ctx *Context) (string, error) {
	if err := ctx.Env.AbortMatch(ctx.Caller.Token); err != nil {
		return "", err
	}
	return "Match aborted.", nil
}

func runClose(ctx *Context) (string, error) {
	if err := ctx.Env.CloseMatch(ctx.Caller.Token); err != nil {
		return "", err
	}
	return "Match closed.", nil
}
