package simtfl

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"
)

// TraceKind classifies a trace record.
type TraceKind int

const (
	TraceStart TraceKind = iota
	TraceSend
	TraceBroadcast
	TraceDrop
	TraceReceive
	TraceHandle
	TraceProduce
	TraceAdopt
	TraceVote
	TraceFinalize
	TraceSupersede
)

func (k TraceKind) String() string {
	switch k {
	case TraceStart:
		return "start"
	case TraceSend:
		return "send"
	case TraceBroadcast:
		return "broadcast"
	case TraceDrop:
		return "drop"
	case TraceReceive:
		return "receive"
	case TraceHandle:
		return "handle"
	case TraceProduce:
		return "produce"
	case TraceAdopt:
		return "adopt"
	case TraceVote:
		return "vote"
	case TraceFinalize:
		return "finalize"
	case TraceSupersede:
		return "supersede"
	default:
		return "unknown"
	}
}

// TraceRecord is one entry of the in-process simulation log. There is no wire
// format; records are consumed by reporting tooling outside the core.
type TraceRecord struct {
	Time   Time
	Node   NodeID
	Kind   TraceKind
	Detail string
}

// Trace accumulates records for a single simulation run and mirrors them to a
// structured logger. Records are appended only from within the scheduler's
// event loop, so no locking is needed.
type Trace struct {
	records []TraceRecord
	logger  zerolog.Logger
}

func NewTrace(logger zerolog.Logger) *Trace {
	return &Trace{logger: logger}
}

func (t *Trace) Add(now Time, node NodeID, kind TraceKind, detail string) {
	t.records = append(t.records, TraceRecord{Time: now, Node: node, Kind: kind, Detail: detail})
	t.logger.Info().
		Int64("sim_time", int64(now)).
		Int("node", int(node)).
		Str("kind", kind.String()).
		Msg(detail)
}

// Records returns the accumulated records in append order. The returned slice
// is shared; callers must not modify it.
func (t *Trace) Records() []TraceRecord {
	return t.records
}

// WriteTable writes the trace as an aligned table.
func (t *Trace) WriteTable(out io.Writer) error {
	if _, err := fmt.Fprintf(out, " Time | Node | Event      | Detail\n"); err != nil {
		return err
	}
	for _, r := range t.records {
		if _, err := fmt.Fprintf(out, "%5d | %4d | %-10s | %s\n", r.Time, r.Node, r.Kind, r.Detail); err != nil {
			return err
		}
	}
	return nil
}
