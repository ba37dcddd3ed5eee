package detectors

import (
	"strings"

	"github.com/poi-trace/core/pkg/trace"
)

// concatenatePayloadText pulls every string-valued payload field out of the
// given events, in event order, and joins them with newlines. Empty strings
// contribute nothing, so events with no text yield "". The text detectors
// operate on the result.
func concatenatePayloadText(events []trace.Event) string {
	var b strings.Builder
	for _, e := range events {
		for _, v := range e.Payload {
			if s, ok := v.(string); ok && s != "" {
				b.WriteString(s)
				b.WriteByte('\n')
			}
		}
	}
	return b.String()
}

// commandTexts returns the string payload fields of command-kind events
// only, used by the action detector.
func commandTexts(events []trace.Event) []string {
	var out []string
	for _, e := range events {
		if e.Kind != trace.KindCommand {
			continue
		}
		for _, v := range e.Payload {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
	}
	return out
}
