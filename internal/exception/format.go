package exception

import (
	"strings"

	"batchrpc/internal/wire"
)

// TracebackHeader is the first line of a formatted traceback
const TracebackHeader = "Traceback (most recent call last):"

// Format renders a failure descriptor as a human readable traceback.
// Without a trace it is just "type: message".
func Format(f *wire.Failure) string {
	if f == nil {
		return ""
	}
	if !f.HasTrace() {
		return f.Type + ": " + f.Message
	}

	var b strings.Builder
	b.WriteString(TracebackHeader)
	b.WriteByte('\n')
	for _, frame := range f.Trace {
		b.WriteString(`  File "`)
		b.WriteString(frame.Source)
		b.WriteString(`", line `)
		b.WriteString(frame.Line)
		b.WriteString(", in ")
		b.WriteString(frame.Routine)
		b.WriteByte('\n')
		b.WriteString("    ")
		b.WriteString(frame.Text)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	b.WriteString(f.Type)
	b.WriteString(": ")
	b.WriteString(f.Message)
	return b.String()
}
