package detectors

import (
	"context"
	"testing"
	"time"

	"github.com/poi-trace/core/pkg/safety"
	"github.com/poi-trace/core/pkg/trace"
)

func commandContext(commands ...string) safety.Context {
	events := make([]trace.Event, 0, len(commands))
	for _, cmd := range commands {
		events = append(events, trace.Event{
			ID:        "evt",
			Kind:      trace.KindCommand,
			Timestamp: time.Now().UTC(),
			Payload:   map[string]interface{}{"command": cmd},
		})
	}
	return safety.Context{Events: events}
}

func TestActionDetector_NoCommands(t *testing.T) {
	d := NewActionDetector(0.5)
	result, err := d.Analyze(context.Background(), safety.Context{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Exceeded {
		t.Fatalf("expected no commands not to exceed threshold")
	}
}

func TestActionDetector_BenignCommandsNotFlagged(t *testing.T) {
	d := NewActionDetector(0.5)
	result, err := d.Analyze(context.Background(), commandContext("ls -la", "git status", "cat README.md"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Exceeded {
		t.Fatalf("expected benign commands not to exceed threshold, score=%f", result.Score)
	}
}

func TestActionDetector_PrivilegeEscalationFlaggedAuthoritative(t *testing.T) {
	d := NewActionDetector(0.5)
	result, err := d.Analyze(context.Background(), commandContext("sudo chmod 777 /etc/passwd"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Exceeded {
		t.Fatalf("expected privilege escalation command to exceed threshold, score=%f", result.Score)
	}
	if result.TrustLevel != safety.Authoritative {
		t.Fatalf("expected authoritative trust level, got %s", result.TrustLevel)
	}
}

func TestActionDetector_MonitorDisableFlagged(t *testing.T) {
	d := NewActionDetector(0.5)
	result, err := d.Analyze(context.Background(), commandContext("export POI_TRACE_DISABLE=1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Exceeded {
		t.Fatalf("expected monitor-disable attempt to exceed threshold, score=%f", result.Score)
	}
}
