// Package trace implements the in-memory trace run: event/span append,
// invariant enforcement, and finalization into a frozen, hashed run (spec
// §3, §4.4). Grounded in the teacher's pkg/ledger.LedgerStore single-writer
// discipline (same "one producer mutates, readers are free once frozen"
// model) generalized from a block-commit KV store to an append-only event
// log with a builder API.
package trace

import (
	"sync"
	"time"
)

// Visibility is the disclosure class of an event or span.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
	VisibilitySecret  Visibility = "secret"
)

// EventKind identifies the shape of an event's payload.
type EventKind string

const (
	KindCommand     EventKind = "command"
	KindOutput      EventKind = "output"
	KindDecision    EventKind = "decision"
	KindObservation EventKind = "observation"
	KindError       EventKind = "error"
	KindCustom      EventKind = "custom"
)

// SpanStatus is the lifecycle state of a span.
type SpanStatus string

const (
	SpanRunning   SpanStatus = "running"
	SpanCompleted SpanStatus = "completed"
	SpanFailed    SpanStatus = "failed"
	SpanCancelled SpanStatus = "cancelled"
)

// RunStatus is the lifecycle state of a TraceRun.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// Event is one recorded step of a process. Hash is populated only after
// the enclosing run is finalized.
type Event struct {
	ID         string                 `json:"id"`
	Seq        int                    `json:"seq"`
	Timestamp  time.Time              `json:"timestamp"`
	Visibility Visibility             `json:"visibility"`
	Kind       EventKind              `json:"kind"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
	Hash       string                 `json:"hash,omitempty"`
}

// Span is a named grouping of consecutive events, possibly nested.
type Span struct {
	ID            string                 `json:"id"`
	SpanSeq       int                    `json:"spanSeq"`
	Name          string                 `json:"name"`
	Status        SpanStatus             `json:"status"`
	Visibility    Visibility             `json:"visibility"`
	StartedAt     time.Time              `json:"startedAt"`
	EndedAt       *time.Time             `json:"endedAt,omitempty"`
	DurationMs    *int64                 `json:"durationMs,omitempty"`
	EventIDs      []string               `json:"eventIds"`
	ChildSpanIDs  []string               `json:"childSpanIds"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	Hash          string                 `json:"hash,omitempty"`
}

// Run is the root container for a recorded process: an append-only,
// sequence-numbered event log plus the spans grouping those events.
type Run struct {
	ID             string                 `json:"id"`
	AgentID        string                 `json:"agentId"`
	SchemaVersion  string                 `json:"schemaVersion"`
	StartedAt      time.Time              `json:"startedAt"`
	EndedAt        *time.Time             `json:"endedAt,omitempty"`
	DurationMs     *int64                 `json:"durationMs,omitempty"`
	Status         RunStatus              `json:"status"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	Events         []Event                `json:"events"`
	Spans          []Span                 `json:"spans"`
	RollingHash    string                 `json:"rollingHash,omitempty"`
	RootHash       string                 `json:"rootHash,omitempty"`

	// Bookkeeping below is never marshaled (unexported) and exists only to
	// enforce the single-writer discipline documented above: one producer
	// goroutine drives AddSpan/AddEvent/CloseSpan/Finalize, guarded by mu so
	// that concurrent status reads of a not-yet-finalized run stay safe.
	mu        sync.Mutex
	finalized bool
	maxEvents int            // 0 means unbounded
	spanIndex map[string]int // span ID -> index into Spans
	recorder  EventRejectionRecorder
}

// CurrentSchemaVersion is stamped onto every run created by this module.
const CurrentSchemaVersion = "poi-trace/1"
