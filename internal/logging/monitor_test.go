package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestMonitor_AttributionAndLevelFloor(t *testing.T) {
	var buf bytes.Buffer
	m := New(&buf, "", Info)

	m.Log("modA", Debug, "hidden")
	m.Log("modA", Warn, "shown %d", 7)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line below floor must be dropped: %q", out)
	}
	if !strings.Contains(out, "WARN modA: shown 7") {
		t.Fatalf("missing attributed warn line: %q", out)
	}
}

func TestMonitor_DeferredFlushOrder(t *testing.T) {
	var buf bytes.Buffer
	m := New(&buf, "", Trace)

	m.Defer("a", Info, "first")
	m.Defer("b", Info, "second")
	if buf.Len() != 0 {
		t.Fatalf("deferred lines must not emit before flush: %q", buf.String())
	}

	m.Flush()
	out := buf.String()
	i, j := strings.Index(out, "first"), strings.Index(out, "second")
	if i < 0 || j < 0 || i > j {
		t.Fatalf("flush must emit in defer order: %q", out)
	}

	buf.Reset()
	m.Flush()
	if buf.Len() != 0 {
		t.Fatalf("second flush must be empty: %q", buf.String())
	}
}
