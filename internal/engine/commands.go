package engine

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Command is one registered command definition.
type Command struct {
	Name    string
	Owner   string
	Summary string
	Handler func(screenID int, name string, args []string)
}

// QueuedCommand is a parsed entry routed to one screen. Queued once, executed
// once during that screen's pass, then discarded.
type QueuedCommand struct {
	Command  *Command
	Name     string
	Args     []string
	ScreenID int
}

// CommandQueue accepts raw command text from any goroutine and holds the
// command registry. Parsing and routing happen on the tick goroutine only.
type CommandQueue struct {
	mu   sync.Mutex
	raw  []string
	defs map[string]*Command
}

func NewCommandQueue() *CommandQueue {
	return &CommandQueue{defs: map[string]*Command{}}
}

// RegisterCommand adds a definition. Names are case-insensitive and unique.
func (q *CommandQueue) RegisterCommand(cmd *Command) error {
	if cmd == nil || strings.TrimSpace(cmd.Name) == "" {
		return fmt.Errorf("command name is required")
	}
	if cmd.Handler == nil {
		return fmt.Errorf("command %q has no handler", cmd.Name)
	}
	name := strings.ToLower(cmd.Name)
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.defs[name]; ok {
		return fmt.Errorf("command %q is already registered", cmd.Name)
	}
	q.defs[name] = cmd
	return nil
}

// Commands returns the registered definitions keyed by lower-cased name.
func (q *CommandQueue) Commands() map[string]*Command {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make(map[string]*Command, len(q.defs))
	for k, v := range q.defs {
		out[k] = v
	}
	return out
}

// Enqueue appends raw text to the FIFO. Safe from any goroutine.
func (q *CommandQueue) Enqueue(rawText string) {
	q.mu.Lock()
	q.raw = append(q.raw, rawText)
	q.mu.Unlock()
}

// PendingRaw returns a copy of the raw lines awaiting the next tick.
func (q *CommandQueue) PendingRaw() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, len(q.raw))
	copy(out, q.raw)
	return out
}

func (q *CommandQueue) drainRaw() []string {
	q.mu.Lock()
	out := q.raw
	q.raw = nil
	q.mu.Unlock()
	return out
}

func (q *CommandQueue) lookup(name string) *Command {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.defs[strings.ToLower(name)]
}

// parseLine splits one raw entry into a routed command. Format:
//
//	[@<screen>] <name> [args...]
//
// Arguments may be double-quoted to include spaces. An empty line yields
// (nil, nil) and is skipped silently.
func (q *CommandQueue) parseLine(line string) (*QueuedCommand, error) {
	tokens, err := tokenize(line)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, nil
	}

	screenID := 0
	if strings.HasPrefix(tokens[0], "@") {
		id, err := strconv.Atoi(tokens[0][1:])
		if err != nil || id < 0 {
			return nil, fmt.Errorf("invalid screen target %q", tokens[0])
		}
		screenID = id
		tokens = tokens[1:]
		if len(tokens) == 0 {
			return nil, fmt.Errorf("screen target without command name")
		}
	}

	name := tokens[0]
	def := q.lookup(name)
	if def == nil {
		return nil, fmt.Errorf("unknown command %q", name)
	}
	return &QueuedCommand{Command: def, Name: name, Args: tokens[1:], ScreenID: screenID}, nil
}

func tokenize(line string) ([]string, error) {
	var tokens []string
	var cur strings.Builder
	inQuote := false
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for _, r := range line {
		switch {
		case r == '"':
			if inQuote {
				tokens = append(tokens, cur.String())
				cur.Reset()
			}
			inQuote = !inQuote
		case !inQuote && (r == ' ' || r == '\t'):
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	if inQuote {
		return nil, fmt.Errorf("unterminated quote")
	}
	flush()
	return tokens, nil
}
