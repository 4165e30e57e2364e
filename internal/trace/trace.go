// Package trace records language-model call spans as structured log lines.
// Inputs and outputs are redacted before they reach the log sink.
package trace

import (
	"encoding/json"
	"log"
	"time"

	"oracle/internal/redact"

	"github.com/google/uuid"
)

// Span captures one traced operation. Create it with Start and finish it with
// a deferred Finish so the completion record is emitted on every exit path.
type Span struct {
	ID        string
	Operation string
	Node      string
	StartedAt time.Time

	input  map[string]any
	output map[string]any
	errMsg string
	logf   func(format string, args ...any)
}

func Start(node, operation string) *Span {
	return &Span{
		ID:        uuid.NewString(),
		Operation: operation,
		Node:      node,
		StartedAt: time.Now().UTC(),
		logf:      log.Printf,
	}
}

func (s *Span) SetInput(data map[string]any) {
	s.input = redact.Map(data)
}

func (s *Span) SetOutput(data map[string]any) {
	s.output = redact.Map(data)
}

func (s *Span) SetError(err error) {
	if err == nil {
		return
	}
	s.errMsg = redact.String(err.Error())
}

// Finish emits the span record. Safe to call via defer; a span is emitted at
// most once.
func (s *Span) Finish() {
	if s.logf == nil {
		return
	}
	record := map[string]any{
		"span_id":    s.ID,
		"operation":  s.Operation,
		"node":       s.Node,
		"elapsed_ms": time.Since(s.StartedAt).Milliseconds(),
		"input":      s.input,
		"output":     s.output,
	}
	if s.errMsg != "" {
		record["error"] = s.errMsg
	}

	payload, err := json.Marshal(record)
	if err != nil {
		s.logf("trace marshal failed: span_id=%s operation=%s err=%v", s.ID, s.Operation, err)
		s.logf = nil
		return
	}

	if s.errMsg != "" {
		s.logf("trace error: %s", payload)
	} else {
		s.logf("trace: %s", payload)
	}
	s.logf = nil
}
