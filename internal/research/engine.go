package research

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
	"time"

	"oracle/internal/observability"
)

// Searcher runs one hardened sub-query search. The gateway implements it;
// tests substitute stubs.
type Searcher interface {
	Search(ctx context.Context, query string, includeDomains []string) ([]SearchResult, error)
}

// PlanCache stores plans keyed by normalized query. It is advisory: lookup
// and store failures degrade to cache misses, never to pipeline failures.
type PlanCache interface {
	Get(ctx context.Context, query string) (*ResearchPlan, error)
	Put(ctx context.Context, query string, plan ResearchPlan) error
}

// ReportSink persists finished reports and their evidence. Also advisory.
type ReportSink interface {
	SaveReport(ctx context.Context, query string, report FinalReport, qualityScore *float64, iterations int) (int64, error)
	SaveSearchResults(ctx context.Context, reportID int64, results []SearchResult) error
}

type EngineConfig struct {
	MaxIterations    int
	QualityThreshold float64
}

// Engine drives the pipeline stages over a shared AgentState. Cache and
// reports may be nil when persistence is not configured.
type Engine struct {
	llm      Completer
	searcher Searcher
	cache    PlanCache
	reports  ReportSink

	maxIterations    int
	qualityThreshold float64
}

func NewEngine(llm Completer, searcher Searcher, cache PlanCache, reports ReportSink, cfg EngineConfig) *Engine {
	maxIterations := cfg.MaxIterations
	if maxIterations < 1 {
		maxIterations = 3
	}
	threshold := cfg.QualityThreshold
	if threshold <= 0 || threshold > 1 {
		threshold = 0.7
	}
	return &Engine{
		llm:              llm,
		searcher:         searcher,
		cache:            cache,
		reports:          reports,
		maxIterations:    maxIterations,
		qualityThreshold: threshold,
	}
}

// Run executes the pipeline to a terminal stage and returns the final state.
// emit receives a log event after each completed node; it may be nil.
func (e *Engine) Run(ctx context.Context, query string, emit func(Event)) AgentState {
	started := time.Now()
	state := AgentState{
		Query: strings.TrimSpace(query),
		Stage: StagePlanning,
	}
	if state.Query == "" {
		state.fail("query must not be empty")
		return state
	}

	for state.Stage != StageDone && state.Stage != StageFailed {
		if err := ctx.Err(); err != nil {
			state.fail(fmt.Sprintf("research cancelled: %v", err))
			break
		}

		node := nodeForStage(state.Stage)
		switch state.Stage {
		case StagePlanning:
			e.planNode(ctx, &state)
		case StageResearching:
			e.researchNode(ctx, &state)
		case StageCritiquing:
			e.critiqueNode(ctx, &state)
		case StageWriting:
			e.writeNode(ctx, &state)
		default:
			state.fail(fmt.Sprintf("unknown stage %q", state.Stage))
		}

		// A node that failed the run did not complete; the terminal error
		// event carries the cause instead.
		if emit != nil && node != "" && state.Stage != StageFailed {
			emit(Event{
				Type:    EventLog,
				Content: fmt.Sprintf("Step completed: %s", node),
				Node:    node,
			})
		}
	}

	status := string(state.Stage)
	observability.RecordResearchRun(status, time.Since(started).Milliseconds(), state.IterationCount)
	log.Printf("research run finished: status=%s iterations=%d results=%d err_present=%t elapsed_ms=%d",
		status, state.IterationCount, state.resultCount(), state.Error != "", time.Since(started).Milliseconds())
	return state
}

func nodeForStage(stage Stage) string {
	switch stage {
	case StagePlanning:
		return "planner"
	case StageResearching:
		return "researcher"
	case StageCritiquing:
		return "critic"
	case StageWriting:
		return "writer"
	}
	return ""
}

func (s *AgentState) resultCount() int {
	if s.Results == nil {
		return 0
	}
	return s.Results.TotalCount
}

func (e *Engine) planNode(ctx context.Context, state *AgentState) {
	if e.cache != nil {
		cached, err := e.cache.Get(ctx, state.Query)
		switch {
		case err != nil:
			observability.RecordPlanCacheLookup("error")
			log.Printf("plan cache lookup failed: err=%v", err)
		case cached != nil:
			observability.RecordPlanCacheLookup("hit")
			log.Printf("plan cache hit: query_chars=%d sub_queries=%d", len(state.Query), len(cached.SubQueries))
			state.Plan = cached
			state.Stage = StageResearching
			return
		default:
			observability.RecordPlanCacheLookup("miss")
		}
	}

	plan, err := Generate(ctx, e.llm, Call[ResearchPlan]{
		Node:        "planner",
		Operation:   "plan_research",
		System:      plannerSystemPrompt,
		Prompt:      plannerUserPrompt(state.Query),
		Temperature: 0.3,
		Fallback: func() (ResearchPlan, bool) {
			return fallbackPlan(state.Query), true
		},
	})
	if err != nil {
		state.fail(fmt.Sprintf("planner failed: %v", err))
		return
	}

	plan.Query = state.Query
	if plan.Validate() != nil {
		plan = fallbackPlan(state.Query)
	}

	if e.cache != nil {
		if err := e.cache.Put(ctx, state.Query, plan); err != nil {
			log.Printf("plan cache store failed: err=%v", err)
		}
	}

	state.Plan = &plan
	state.Stage = StageResearching
}

// fallbackPlan is the deterministic plan used when generation cannot produce
// a valid one.
func fallbackPlan(query string) ResearchPlan {
	return ResearchPlan{
		Query: query,
		SubQueries: []string{
			fmt.Sprintf("What is %s?", query),
			fmt.Sprintf("Recent developments in %s", query),
			fmt.Sprintf("Expert analysis of %s", query),
		},
		SearchTerms: strings.Fields(query),
	}
}

func (e *Engine) researchNode(ctx context.Context, state *AgentState) {
	if state.Plan == nil {
		state.fail("research plan not found")
		return
	}

	domains := state.Plan.CombinedDomains()
	var gathered []SearchResult
	for _, subQuery := range state.Plan.SubQueries {
		results, err := e.searcher.Search(ctx, subQuery, domains)
		if err != nil {
			state.fail(fmt.Sprintf("search failed for %q: %v", subQuery, err))
			return
		}
		gathered = append(gathered, results...)
	}

	state.Results = &ResearchResults{
		Results:    gathered,
		TotalCount: len(gathered),
	}
	state.Stage = StageCritiquing
}

func (e *Engine) critiqueNode(ctx context.Context, state *AgentState) {
	if state.Results == nil {
		state.fail("research results not found")
		return
	}

	critique, err := Generate(ctx, e.llm, Call[Critique]{
		Node:      "critic",
		Operation: "critique_results",
		System:    criticSystemPrompt,
		Prompt:    criticUserPrompt(state.Query, state.Results),
		Fallback: func() (Critique, bool) {
			return Critique{QualityScore: 0.7, IsSufficient: true}, true
		},
	})
	if err != nil {
		state.fail(fmt.Sprintf("critic failed: %v", err))
		return
	}

	critique.QualityScore = clampUnit(critique.QualityScore)
	// Sufficiency is derived from the score, not taken from the model.
	critique.IsSufficient = critique.QualityScore >= e.qualityThreshold
	state.Critique = &critique

	if critique.IsSufficient {
		state.Stage = StageWriting
		return
	}
	if state.IterationCount+1 >= e.maxIterations {
		log.Printf("research iteration budget reached: iterations=%d max=%d quality=%.2f",
			state.IterationCount, e.maxIterations, critique.QualityScore)
		state.Stage = StageWriting
		return
	}

	state.IterationCount++
	state.Stage = StageResearching
}

func (e *Engine) writeNode(ctx context.Context, state *AgentState) {
	if state.Plan == nil || state.Results == nil {
		state.fail("cannot write report without plan and results")
		return
	}

	report, err := Generate(ctx, e.llm, Call[FinalReport]{
		Node:        "writer",
		Operation:   "write_report",
		System:      writerSystemPrompt,
		Prompt:      writerUserPrompt(state.Query, state.Plan, state.Results),
		Temperature: 0.5,
		MaxTokens:   8192,
		RawFallback: func(raw string) (FinalReport, bool) {
			content := strings.TrimSpace(raw)
			if content == "" {
				return FinalReport{}, false
			}
			return FinalReport{
				Content:    content,
				Sources:    uniqueSourceURLs(state.Results),
				Confidence: extractConfidence(content),
			}, true
		},
	})
	if err != nil {
		state.fail(fmt.Sprintf("writer failed: %v", err))
		return
	}

	report.Confidence = clampUnit(report.Confidence)
	if len(report.Sources) == 0 {
		report.Sources = uniqueSourceURLs(state.Results)
	}

	e.persistReport(ctx, state, report)

	state.Report = &report
	state.Stage = StageDone
}

func (e *Engine) persistReport(ctx context.Context, state *AgentState, report FinalReport) {
	if e.reports == nil {
		return
	}

	var qualityScore *float64
	if state.Critique != nil {
		score := state.Critique.QualityScore
		qualityScore = &score
	}

	reportID, err := e.reports.SaveReport(ctx, state.Query, report, qualityScore, state.IterationCount)
	if err != nil {
		log.Printf("report save failed: err=%v", err)
		return
	}
	if state.Results != nil {
		if err := e.reports.SaveSearchResults(ctx, reportID, state.Results.Results); err != nil {
			log.Printf("search result save failed: report_id=%d err=%v", reportID, err)
		}
	}
}

func uniqueSourceURLs(results *ResearchResults) []string {
	if results == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(results.Results))
	out := make([]string, 0, len(results.Results))
	for _, result := range results.Results {
		if result.URL == "" {
			continue
		}
		if _, ok := seen[result.URL]; ok {
			continue
		}
		seen[result.URL] = struct{}{}
		out = append(out, result.URL)
	}
	return out
}

var confidencePattern = regexp.MustCompile(`(?i)confidence[:\s]+([01](?:\.\d+)?)`)

// extractConfidence pulls a self-reported confidence out of free text,
// defaulting to 0.8 when none is stated.
func extractConfidence(content string) float64 {
	match := confidencePattern.FindStringSubmatch(content)
	if len(match) == 2 {
		if value, err := strconv.ParseFloat(match[1], 64); err == nil {
			return clampUnit(value)
		}
	}
	return 0.8
}

func clampUnit(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}
