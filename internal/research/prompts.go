package research

import (
	"fmt"
	"strings"
)

const plannerSystemPrompt = `You are a research planner. Decompose the user's question into a focused research plan.

Return a JSON object with these fields:
  "query": the original question, unchanged
  "sub_queries": 2 to 5 specific questions that together answer the original
  "search_terms": short keyword phrases suited to a web search engine
  "domains": preferred source domains, may be empty
  "required_domains": domains that must be searched, may be empty

Prefer primary sources, technical documentation, and peer-reviewed material.`

const criticSystemPrompt = `You are a research critic. Judge whether the gathered evidence is enough to answer the question well.

Return a JSON object with these fields:
  "quality_score": a number between 0.0 and 1.0
  "is_sufficient": whether the evidence supports a complete answer
  "issues": concrete gaps or weaknesses in the evidence
  "recommendations": what further searching should target

Score harshly when sources are thin, one-sided, or off-topic.`

const writerSystemPrompt = `You are a research writer. Synthesize the evidence into a clear, well-organized report.

Return a JSON object with these fields:
  "content": the report in markdown, with sections and citations by source URL
  "sources": the URLs actually cited
  "confidence": a number between 0.0 and 1.0 reflecting how well the evidence supports the report

Never invent facts that the evidence does not contain.`

func plannerUserPrompt(query string) string {
	return fmt.Sprintf("Research question:\n%s", query)
}

func criticUserPrompt(query string, results *ResearchResults) string {
	var builder strings.Builder
	builder.WriteString("Research question:\n")
	builder.WriteString(query)
	builder.WriteString("\n\nGathered evidence:\n")
	writeEvidence(&builder, results)
	return builder.String()
}

func writerUserPrompt(query string, plan *ResearchPlan, results *ResearchResults) string {
	var builder strings.Builder
	builder.WriteString("Research question:\n")
	builder.WriteString(query)

	if plan != nil && len(plan.SubQueries) > 0 {
		builder.WriteString("\n\nAngles covered:\n")
		for _, sub := range plan.SubQueries {
			builder.WriteString("- ")
			builder.WriteString(sub)
			builder.WriteString("\n")
		}
	}

	builder.WriteString("\nEvidence:\n")
	writeEvidence(&builder, results)
	return builder.String()
}

func writeEvidence(builder *strings.Builder, results *ResearchResults) {
	if results == nil || len(results.Results) == 0 {
		builder.WriteString("(no results)\n")
		return
	}
	for i, result := range results.Results {
		fmt.Fprintf(builder, "[%d] %s\n%s\nrelevance=%.2f\n%s\n\n", i+1, result.Title, result.URL, result.Score, result.Content)
	}
}
