package research

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"oracle/internal/anthropic"
	"oracle/internal/observability"
	"oracle/internal/trace"
)

// Completer is the language-model surface the pipeline depends on.
type Completer interface {
	Complete(ctx context.Context, req anthropic.Request) (string, error)
}

// Call describes one structured generation request. Fallback supplies a
// deterministic value when the model cannot be reached or parsed; RawFallback
// lets the caller salvage a value from the free-text response instead.
type Call[T any] struct {
	Node        string
	Operation   string
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int

	RawFallback func(raw string) (T, bool)
	Fallback    func() (T, bool)
}

const strictJSONInstruction = "Respond with a single JSON object and nothing else. No prose, no code fences."

// Generate resolves a structured call through up to three tiers: a strict
// JSON completion, a free-text completion with embedded-JSON extraction, and
// finally the caller's fallbacks. The whole exchange is recorded as a
// redacted trace span.
func Generate[T any](ctx context.Context, llm Completer, call Call[T]) (T, error) {
	var zero T

	span := trace.Start(call.Node, call.Operation)
	defer span.Finish()
	span.SetInput(map[string]any{
		"system": call.System,
		"prompt": call.Prompt,
	})

	strict, strictErr := llm.Complete(ctx, anthropic.Request{
		System:      strings.TrimSpace(call.System + "\n\n" + strictJSONInstruction),
		Prompt:      call.Prompt,
		Temperature: call.Temperature,
		MaxTokens:   call.MaxTokens,
	})
	if strictErr == nil {
		var value T
		if err := decodeStrict(strict, &value); err == nil {
			span.SetOutput(map[string]any{"tier": "structured", "raw": strict})
			observability.RecordGenerationTier(call.Node, "structured")
			return value, nil
		}
	}

	free, freeErr := llm.Complete(ctx, anthropic.Request{
		System:      call.System,
		Prompt:      call.Prompt,
		Temperature: call.Temperature,
		MaxTokens:   call.MaxTokens,
	})
	if freeErr == nil {
		if block := extractJSONBlock(free); block != "" {
			var value T
			if err := json.Unmarshal([]byte(block), &value); err == nil {
				span.SetOutput(map[string]any{"tier": "freetext", "raw": free})
				observability.RecordGenerationTier(call.Node, "freetext")
				return value, nil
			}
		}
		if call.RawFallback != nil {
			if value, ok := call.RawFallback(free); ok {
				span.SetOutput(map[string]any{"tier": "raw_fallback", "raw": free})
				observability.RecordGenerationTier(call.Node, "fallback")
				return value, nil
			}
		}
	}

	if call.Fallback != nil {
		if value, ok := call.Fallback(); ok {
			span.SetOutput(map[string]any{"tier": "fallback"})
			observability.RecordGenerationTier(call.Node, "fallback")
			return value, nil
		}
	}

	err := firstError(freeErr, strictErr)
	if err == nil {
		err = fmt.Errorf("%s response contained no usable JSON", call.Node)
	}
	span.SetError(err)
	observability.RecordGenerationTier(call.Node, "error")
	return zero, fmt.Errorf("%s generation failed: %w", call.Node, err)
}

// decodeStrict accepts only a bare JSON object with known fields.
func decodeStrict(raw string, target any) error {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "{") {
		return fmt.Errorf("response is not a JSON object")
	}
	decoder := json.NewDecoder(bytes.NewReader([]byte(trimmed)))
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

// extractJSONBlock pulls the first balanced JSON object out of free text,
// tolerating markdown code fences around it.
func extractJSONBlock(raw string) string {
	cleaned := strings.TrimSpace(raw)
	if start := strings.Index(cleaned, "```"); start >= 0 {
		rest := cleaned[start+3:]
		rest = strings.TrimPrefix(rest, "json")
		if end := strings.Index(rest, "```"); end >= 0 {
			cleaned = strings.TrimSpace(rest[:end])
		}
	}

	start := strings.Index(cleaned, "{")
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(cleaned); i++ {
		ch := cleaned[i]
		switch {
		case escaped:
			escaped = false
		case ch == '\\' && inString:
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == '{':
			depth++
		case ch == '}':
			depth--
			if depth == 0 {
				return cleaned[start : i+1]
			}
		}
	}
	return ""
}

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
