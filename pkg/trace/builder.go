package trace

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/poi-trace/core/pkg/codec"
	"github.com/poi-trace/core/pkg/logging"
	"github.com/poi-trace/core/pkg/merkle"
	"github.com/poi-trace/core/pkg/poierrors"
	"github.com/poi-trace/core/pkg/rollinghash"
)

// EventRejectionRecorder receives a reason string whenever AddEvent rejects
// an event, e.g. for a metrics collector to increment a counter. Defined
// here rather than imported from pkg/metrics so pkg/trace never depends on
// prometheus directly; pkg/metrics.Collectors satisfies this structurally,
// the same pattern pkg/anchor.Store uses to avoid a reverse dependency.
type EventRejectionRecorder interface {
	RecordEventRejected(reason string)
}

// CreateOptions configures a new run.
type CreateOptions struct {
	AgentID   string
	Metadata  map[string]interface{}
	MaxEvents int // 0 means unbounded
	Recorder  EventRejectionRecorder
}

// SpanOptions configures a new span.
type SpanOptions struct {
	Name         string
	Visibility   Visibility // defaults to VisibilityPublic when empty
	ParentSpanID string
	Metadata     map[string]interface{}
}

// EventInput configures a new event. Visibility defaults per Kind when
// empty: command/observation default public, everything else private.
type EventInput struct {
	Kind       EventKind
	Visibility Visibility
	Timestamp  time.Time // defaults to time.Now() when zero
	Payload    map[string]interface{}
}

// CreateTrace starts a new, empty, running Run. Exactly like the teacher's
// LedgerStore constructors, the returned Run assumes a single producer
// goroutine drives AddSpan/AddEvent/CloseSpan/Finalize; the embedded mutex
// exists only to let concurrent *readers* (e.g. a status endpoint polling
// event counts) observe a consistent snapshot, not to make concurrent
// writers safe.
func CreateTrace(opts CreateOptions) *Run {
	return &Run{
		ID:            uuid.NewString(),
		AgentID:       opts.AgentID,
		SchemaVersion: CurrentSchemaVersion,
		StartedAt:     time.Now().UTC(),
		Status:        RunRunning,
		Metadata:      opts.Metadata,
		Events:        []Event{},
		Spans:         []Span{},
		maxEvents:     opts.MaxEvents,
		spanIndex:     make(map[string]int),
		recorder:      opts.Recorder,
	}
}

func defaultEventVisibility(kind EventKind) Visibility {
	switch kind {
	case KindCommand, KindObservation:
		return VisibilityPublic
	default:
		return VisibilityPrivate
	}
}

// AddSpan opens a new span on the run. A non-empty ParentSpanID must name an
// existing, still-open span; closed or unknown parents are rejected.
func (r *Run) AddSpan(opts SpanOptions) (*Span, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finalized {
		return nil, poierrors.RunFinalized(r.ID)
	}

	if opts.ParentSpanID != "" {
		idx, ok := r.spanIndex[opts.ParentSpanID]
		if !ok {
			return nil, poierrors.SpanNotFound(opts.ParentSpanID)
		}
		if r.Spans[idx].Status != SpanRunning {
			return nil, poierrors.SpanClosed(opts.ParentSpanID)
		}
	}

	visibility := opts.Visibility
	if visibility == "" {
		visibility = VisibilityPublic
	}

	span := Span{
		ID:           uuid.NewString(),
		SpanSeq:      len(r.Spans),
		Name:         opts.Name,
		Status:       SpanRunning,
		Visibility:   visibility,
		StartedAt:    time.Now().UTC(),
		EventIDs:     []string{},
		ChildSpanIDs: []string{},
		Metadata:     opts.Metadata,
	}

	r.Spans = append(r.Spans, span)
	r.spanIndex[span.ID] = len(r.Spans) - 1

	if opts.ParentSpanID != "" {
		parentIdx := r.spanIndex[opts.ParentSpanID]
		r.Spans[parentIdx].ChildSpanIDs = append(r.Spans[parentIdx].ChildSpanIDs, span.ID)
	}

	// Return a copy so callers can't mutate run state through the pointer.
	out := r.Spans[len(r.Spans)-1]
	return &out, nil
}

// AddEvent appends an event to the named span. The span must exist and be
// open. A non-zero MaxEvents cap on the run rejects further events with a
// backpressure error once the total event count reaches it.
func (r *Run) AddEvent(spanID string, input EventInput) (*Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finalized {
		if r.recorder != nil {
			r.recorder.RecordEventRejected("run-finalized")
		}
		return nil, poierrors.RunFinalized(r.ID)
	}

	idx, ok := r.spanIndex[spanID]
	if !ok {
		if r.recorder != nil {
			r.recorder.RecordEventRejected("span-not-found")
		}
		return nil, poierrors.SpanNotFound(spanID)
	}
	if r.Spans[idx].Status != SpanRunning {
		if r.recorder != nil {
			r.recorder.RecordEventRejected("span-closed")
		}
		return nil, poierrors.SpanClosed(spanID)
	}

	if r.maxEvents > 0 && len(r.Events) >= r.maxEvents {
		if r.recorder != nil {
			r.recorder.RecordEventRejected("backpressure")
		}
		return nil, poierrors.Backpressure(r.ID, r.maxEvents)
	}

	ts := input.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	visibility := input.Visibility
	if visibility == "" {
		visibility = defaultEventVisibility(input.Kind)
	}

	event := Event{
		ID:         uuid.NewString(),
		Seq:        len(r.Events),
		Timestamp:  ts,
		Visibility: visibility,
		Kind:       input.Kind,
		Payload:    input.Payload,
	}

	r.Events = append(r.Events, event)
	r.Spans[idx].EventIDs = append(r.Spans[idx].EventIDs, event.ID)

	out := event
	return &out, nil
}

// CloseSpan transitions an open span to a terminal status (SpanCompleted by
// default). Closing an already-closed span with the same status is a no-op;
// closing it with a different terminal status is rejected as a logic error
// by returning poierrors.SpanClosed.
func (r *Run) CloseSpan(spanID string, status ...SpanStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finalized {
		return poierrors.RunFinalized(r.ID)
	}

	idx, ok := r.spanIndex[spanID]
	if !ok {
		return poierrors.SpanNotFound(spanID)
	}

	final := SpanCompleted
	if len(status) > 0 {
		final = status[0]
	}

	span := &r.Spans[idx]
	if span.Status != SpanRunning {
		if span.Status == final {
			return nil
		}
		return poierrors.SpanClosed(spanID)
	}

	now := time.Now().UTC()
	span.Status = final
	span.EndedAt = &now
	durationMs := now.Sub(span.StartedAt).Milliseconds()
	span.DurationMs = &durationMs
	return nil
}

// Finalize closes any still-open spans as cancelled, computes every event
// and span hash, folds the rolling hash, builds the span Merkle tree, and
// freezes the run. A finalized run rejects further AddSpan/AddEvent/
// CloseSpan calls. If ctx is cancelled mid-computation, Finalize returns the
// context error and leaves the run exactly as it was before the call: all
// hashing happens on a scratch copy of the events/spans that is only
// swapped into the run after every step succeeds.
func (r *Run) Finalize(ctx context.Context) (*Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finalized {
		return nil, poierrors.RunFinalized(r.ID)
	}

	events := make([]Event, len(r.Events))
	copy(events, r.Events)
	spans := make([]Span, len(r.Spans))
	copy(spans, r.Spans)

	now := time.Now().UTC()
	for i := range spans {
		if spans[i].Status == SpanRunning {
			spans[i].Status = SpanCancelled
			spans[i].EndedAt = &now
			durationMs := now.Sub(spans[i].StartedAt).Milliseconds()
			spans[i].DurationMs = &durationMs
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hashedEvents, err := hashEvents(events)
	if err != nil {
		return nil, err
	}
	for i, he := range hashedEvents {
		events[i].Hash = he.Hash
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	eventHashBySpan := make(map[string][]rollinghash.HashedEvent)
	eventsByID := make(map[string]Event, len(events))
	for _, e := range events {
		eventsByID[e.ID] = e
	}
	for _, s := range spans {
		list := make([]rollinghash.HashedEvent, 0, len(s.EventIDs))
		for _, eid := range s.EventIDs {
			e := eventsByID[eid]
			list = append(list, rollinghash.HashedEvent{Seq: e.Seq, Hash: e.Hash})
		}
		eventHashBySpan[s.ID] = list
	}

	for i := range spans {
		spanHash, err := ComputeSpanHash(spans[i], eventHashBySpan[spans[i].ID])
		if err != nil {
			return nil, err
		}
		spans[i].Hash = spanHash
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rollingHash := rollinghash.Compute(hashedEvents)

	hashedSpans := make([]rollinghash.HashedSpan, len(spans))
	for i, s := range spans {
		hashedSpans[i] = rollinghash.HashedSpan{SpanSeq: s.SpanSeq, Hash: s.Hash}
	}
	rootHash, err := rollinghash.ComputeRoot(rollingHash, hashedSpans)
	if err != nil {
		return nil, err
	}

	merkleInputs := make([]merkle.SpanInput, len(spans))
	for i, s := range spans {
		merkleInputs[i] = merkle.SpanInput{SpanSeq: s.SpanSeq, Hash: s.Hash}
	}
	tree := merkle.Build(merkleInputs)
	if tree.RootHash() != "" && tree.RootHash() != rootHash {
		// The two root formulas are independent derivations over the same
		// span hashes (spec §4.3 vs §3); divergence means a bug in one of
		// them, not bad input, so this is reported via logging rather than
		// surfaced as caller-facing error taxonomy.
		logging.Default().Warn("merkle root and rolling root diverged", logging.F("runId", r.ID))
	}

	r.Events = events
	r.Spans = spans
	r.RollingHash = rollingHash
	r.RootHash = rootHash
	r.EndedAt = &now
	durationMs := now.Sub(r.StartedAt).Milliseconds()
	r.DurationMs = &durationMs
	r.Status = RunCompleted
	r.finalized = true

	out := *r
	return &out, nil
}

func hashEvents(events []Event) ([]rollinghash.HashedEvent, error) {
	out := make([]rollinghash.HashedEvent, len(events))
	for i, e := range events {
		hash, err := ComputeEventHash(e)
		if err != nil {
			return nil, err
		}
		out[i] = rollinghash.HashedEvent{Seq: e.Seq, Hash: hash}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

// ComputeEventHash recomputes an event's content hash per spec §3:
// SHA256("poi-trace:event:v1|" + canonical(event \ {hash})). Exported so
// callers outside this package (bundle verification) can recompute the
// hash from the event's current field values instead of trusting the
// stored Hash field.
func ComputeEventHash(e Event) (string, error) {
	bare := e
	bare.Hash = ""
	payload, err := codec.Canonical(bare)
	if err != nil {
		return "", poierrors.Encoding("failed to canonicalize event: " + err.Error())
	}
	return rollinghash.EventHash(payload), nil
}

const domainSpan = "poi-trace:span:v1|"

// ComputeSpanHash recomputes a span's content hash per spec §3:
// SHA256("poi-trace:span:v1|" + canonical(span \ {hash}) + "|" +
// join("|", eventHashes sorted by seq)). events should carry the
// recomputed (not necessarily stored) hash of every event referenced by
// span.EventIDs, so that tampering with an event's content and its stored
// Hash field together still changes the span's recomputed hash.
func ComputeSpanHash(span Span, events []rollinghash.HashedEvent) (string, error) {
	bare := span
	bare.Hash = ""
	payload, err := codec.Canonical(bare)
	if err != nil {
		return "", poierrors.Encoding("failed to canonicalize span: " + err.Error())
	}
	sorted := make([]rollinghash.HashedEvent, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Seq < sorted[j].Seq })
	eventHashes := make([]string, len(sorted))
	for i, he := range sorted {
		eventHashes[i] = he.Hash
	}
	return codec.SHA256Hex(domainSpan + string(payload) + "|" + strings.Join(eventHashes, "|")), nil
}
