// Package logging provides the engine's logging collaborator: severity-tagged,
// actor-attributed lines over a stdlib logger, plus a deferred queue for
// diagnostics raised before the tick pipeline is ready to emit them.
package logging

import (
	"fmt"
	"io"
	"log"
	"sync"
)

type Level int

const (
	Trace Level = iota
	Debug
	Info
	Warn
	Error
	Fatal
)

func (l Level) String() string {
	switch l {
	case Trace:
		return "TRACE"
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	case Fatal:
		return "FATAL"
	default:
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
}

type deferredLine struct {
	actor string
	level Level
	text  string
}

// Monitor writes attributed log lines. Log is safe for concurrent use;
// auxiliary goroutines report results solely through it.
type Monitor struct {
	out *log.Logger
	min Level

	mu       sync.Mutex
	deferred []deferredLine
}

func New(w io.Writer, prefix string, min Level) *Monitor {
	return &Monitor{
		out: log.New(w, prefix, log.LstdFlags|log.Lmicroseconds),
		min: min,
	}
}

// Log emits one line attributed to the owning actor. An empty actor is
// attributed to the host itself.
func (m *Monitor) Log(actor string, level Level, format string, args ...any) {
	if level < m.min {
		return
	}
	if actor == "" {
		actor = "host"
	}
	m.out.Printf("%s %s: %s", level, actor, fmt.Sprintf(format, args...))
}

// Defer queues a line for the next Flush. Used for diagnostics raised while
// the pipeline is mid-tick or before the first tick.
func (m *Monitor) Defer(actor string, level Level, format string, args ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deferred = append(m.deferred, deferredLine{actor: actor, level: level, text: fmt.Sprintf(format, args...)})
}

// Flush emits every queued deferred line in order and empties the queue.
func (m *Monitor) Flush() {
	m.mu.Lock()
	queued := m.deferred
	m.deferred = nil
	m.mu.Unlock()
	for _, d := range queued {
		m.Log(d.actor, d.level, "%s", d.text)
	}
}
