package trace

import (
	"fmt"
	"strings"
	"testing"
)

func TestSpanFinishEmitsRecordOnce(t *testing.T) {
	var lines []string
	span := Start("planner", "generate_research_plan")
	span.logf = func(format string, args ...any) {
		lines = append(lines, fmt.Sprintf(format, args...))
	}

	span.SetInput(map[string]any{"query": "test query"})
	span.SetOutput(map[string]any{"sub_queries": 3})
	span.Finish()
	span.Finish()

	if len(lines) != 1 {
		t.Fatalf("expected exactly one trace line, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "generate_research_plan") {
		t.Fatalf("expected operation in trace line: %s", lines[0])
	}
	if !strings.Contains(lines[0], "planner") {
		t.Fatalf("expected node in trace line: %s", lines[0])
	}
}

func TestSpanRedactsInputAndError(t *testing.T) {
	var lines []string
	span := Start("critic", "evaluate_research_quality")
	span.logf = func(format string, args ...any) {
		lines = append(lines, fmt.Sprintf(format, args...))
	}

	span.SetInput(map[string]any{"query": "reach me at alice@example.com"})
	span.SetError(fmt.Errorf("api key sk-ant-REDACTED rejected"))
	span.Finish()

	if len(lines) != 1 {
		t.Fatalf("expected one trace line, got %d", len(lines))
	}
	if strings.Contains(lines[0], "alice@example.com") {
		t.Fatalf("expected email redacted: %s", lines[0])
	}
	if strings.Contains(lines[0], "sk-ant-api03") {
		t.Fatalf("expected api key redacted: %s", lines[0])
	}
	if !strings.Contains(lines[0], "trace error") {
		t.Fatalf("expected error trace line: %s", lines[0])
	}
}
