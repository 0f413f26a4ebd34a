package service

// defaultPrompts are the built-in templates; files with the same name in
// the prompts directory override them at startup.
var defaultPrompts = map[string]string{
	"section_v1.tmpl": `You are writing the "{{.SectionName}}" section of a business opportunity report.

Idea: {{.Title}}
Target market: {{.TargetMarket}}
Problem: {{.ProblemStatement}}
Proposed solution: {{.ProposedSolution}}
Business model: {{.BusinessModel}}
{{if .Language}}Write the section in language: {{.Language}}.{{end}}

{{.Context}}

Write a focused, evidence-backed section. Cite concrete figures from the
research context where available, name competitors explicitly, and end
with actionable conclusions. Respond with a JSON object:
{"heading": string, "content": string, "completeness": number 0-1, "confidence": number 0-1}`,

	"revise_v1.tmpl": `You are revising the "{{.SectionName}}" section of a business opportunity report about "{{.Title}}".
{{if .Language}}Write the section in language: {{.Language}}.{{end}}

Previous version:
{{.PreviousContent}}

Reviewer notes:
{{.Notes}}

{{.Context}}

Rewrite the section addressing every note. Keep what already works,
add concrete figures from the research context, and sharpen the
conclusions. Respond with a JSON object:
{"heading": string, "content": string, "completeness": number 0-1, "confidence": number 0-1}`,
}
