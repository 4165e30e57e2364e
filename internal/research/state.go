// Package research implements the multi-step research pipeline: a planner
// decomposes the query, a searcher gathers evidence, a critic scores it, and
// a writer synthesizes the final report. The engine drives the stages as a
// small state machine with a bounded refinement loop.
package research

import (
	"errors"
	"fmt"
	"strings"
)

// Stage is the engine's current position in the pipeline.
type Stage string

const (
	StagePlanning    Stage = "planning"
	StageResearching Stage = "researching"
	StageCritiquing  Stage = "critiquing"
	StageWriting     Stage = "writing"
	StageDone        Stage = "done"
	StageFailed      Stage = "failed"
)

// ResearchPlan is the planner's decomposition of the user query.
type ResearchPlan struct {
	Query           string   `json:"query"`
	SubQueries      []string `json:"sub_queries"`
	SearchTerms     []string `json:"search_terms"`
	Domains         []string `json:"domains,omitempty"`
	RequiredDomains []string `json:"required_domains,omitempty"`
}

func (p ResearchPlan) Validate() error {
	if strings.TrimSpace(p.Query) == "" {
		return errors.New("plan query must not be empty")
	}
	if len(p.SubQueries) == 0 {
		return errors.New("plan must contain at least one sub-query")
	}
	for _, sub := range p.SubQueries {
		if strings.TrimSpace(sub) == "" {
			return errors.New("plan sub-queries must not be blank")
		}
	}
	return nil
}

// CombinedDomains merges required and preferred domains, required first,
// dropping duplicates while preserving order.
func (p ResearchPlan) CombinedDomains() []string {
	seen := make(map[string]struct{}, len(p.RequiredDomains)+len(p.Domains))
	out := make([]string, 0, len(p.RequiredDomains)+len(p.Domains))
	for _, domain := range append(append([]string{}, p.RequiredDomains...), p.Domains...) {
		normalized := strings.ToLower(strings.TrimSpace(domain))
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return out
}

// SearchResult is one vetted evidence item. Construct it with NewSearchResult
// so the score bound holds everywhere downstream.
type SearchResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

func NewSearchResult(title, url, content string, score float64) (SearchResult, error) {
	if score < 0 || score > 1 {
		return SearchResult{}, fmt.Errorf("relevance score %v outside [0, 1] for %s", score, url)
	}
	if strings.TrimSpace(title) == "" {
		title = "Untitled"
	}
	return SearchResult{
		Title:   title,
		URL:     url,
		Content: content,
		Score:   score,
	}, nil
}

// ResearchResults is the full evidence set for one research pass. Each pass
// replaces the previous set wholesale.
type ResearchResults struct {
	Results    []SearchResult `json:"results"`
	TotalCount int            `json:"total_count"`
}

// Critique is the critic's verdict on the current evidence. IsSufficient is
// recomputed by the engine from the quality score and threshold; the model's
// own claim is not trusted.
type Critique struct {
	QualityScore    float64  `json:"quality_score"`
	IsSufficient    bool     `json:"is_sufficient"`
	Issues          []string `json:"issues,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// FinalReport is the writer's synthesis.
type FinalReport struct {
	Content    string   `json:"content"`
	Sources    []string `json:"sources"`
	Confidence float64  `json:"confidence"`
}

// AgentState is the single mutable record threaded through the pipeline.
type AgentState struct {
	Query          string
	Stage          Stage
	Plan           *ResearchPlan
	Results        *ResearchResults
	Critique       *Critique
	Report         *FinalReport
	IterationCount int
	Error          string
}

// fail records the first error and halts the pipeline. Later failures do not
// overwrite the original cause.
func (s *AgentState) fail(msg string) {
	if s.Error == "" {
		s.Error = msg
	}
	s.Stage = StageFailed
}

// Result is the external shape of a finished run.
type Result struct {
	Query          string   `json:"query"`
	Report         string   `json:"report"`
	Sources        []string `json:"sources"`
	Confidence     float64  `json:"confidence"`
	IterationCount int      `json:"iteration_count"`
	QualityScore   *float64 `json:"quality_score,omitempty"`
	Error          string   `json:"error,omitempty"`
}

// Result flattens the final state into the response payload.
func (s AgentState) Result() Result {
	out := Result{
		Query:          s.Query,
		Sources:        []string{},
		IterationCount: s.IterationCount,
		Error:          s.Error,
	}
	if s.Report != nil {
		out.Report = s.Report.Content
		out.Confidence = s.Report.Confidence
		if len(s.Report.Sources) > 0 {
			out.Sources = s.Report.Sources
		}
	}
	if s.Critique != nil {
		score := s.Critique.QualityScore
		out.QualityScore = &score
	}
	return out
}

// EventType tags one streamed pipeline event.
type EventType string

const (
	EventLog    EventType = "log"
	EventResult EventType = "result"
	EventError  EventType = "error"
	EventDone   EventType = "done"
)

// Event is one line of the streamed run protocol.
type Event struct {
	Type    EventType `json:"type"`
	Content string    `json:"content,omitempty"`
	Node    string    `json:"node,omitempty"`
	Report  *Result   `json:"report,omitempty"`
	Error   string    `json:"error,omitempty"`
}
