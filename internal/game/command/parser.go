package command

import "strings"

// ParseResult holds the parsed command name and arguments from a chat line.
type ParseResult struct {
	// Command is the first word after the prefix, lowercased.
	Command string
	// Args are the remaining words after the command.
	Args []string
	// RawArgs is the raw text after the command.
	RawArgs string
}

// Parse splits a chat line that starts with prefix into a command and
// arguments.
//
// Postcondition: ok is false when line does not start with prefix or names
// no command.
func Parse(prefix, line string) (ParseResult, bool) {
	line = strings.TrimSpace(line)
	if prefix == "" || !strings.HasPrefix(line, prefix) {
		return ParseResult{}, false
	}
	line = strings.TrimPrefix(line, prefix)
	if line == "" || line[0] == ' ' {
		return ParseResult{}, false
	}

	spaceIdx := strings.IndexByte(line, ' ')
	if spaceIdx < 0 {
		return ParseResult{Command: strings.ToLower(line)}, true
	}

	rest := strings.TrimSpace(line[spaceIdx+1:])
	var args []string
	if rest != "" {
		args = strings.Fields(rest)
	}
	return ParseResult{
		Command: strings.ToLower(line[:spaceIdx]),
		Args:    args,
		RawArgs: rest,
	}, true
}
