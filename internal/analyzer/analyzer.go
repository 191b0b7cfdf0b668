// Package analyzer classifies prompts into a task category and complexity
// tier using keyword heuristics. No model call, fully deterministic.
package analyzer

import "strings"

type TaskCategory string

const (
	TaskCoding    TaskCategory = "coding"
	TaskReasoning TaskCategory = "reasoning"
	TaskMath      TaskCategory = "math"
	TaskCreative  TaskCategory = "creative"
	TaskResearch  TaskCategory = "research"
	TaskGeneral   TaskCategory = "general"
)

type Complexity string

const (
	ComplexityTrivial  Complexity = "trivial"
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
	ComplexityExpert   Complexity = "expert"
)

type Analysis struct {
	Category   TaskCategory
	Complexity Complexity
}

// Ordered: first matching category wins.
var categoryKeywords = []struct {
	category TaskCategory
	keywords []string
}{
	{TaskCoding, []string{
		"code", "function", "bug", "debug", "implement", "compile",
		"refactor", "api", "script", "program", "class", "method",
		"stack trace", "exception", "syntax", "regex", "sql query",
	}},
	{TaskMath, []string{
		"calculate", "equation", "integral", "derivative", "solve for",
		"probability", "theorem", "matrix", "algebra", "geometry",
		"statistics", "compute",
	}},
	{TaskReasoning, []string{
		"why", "explain", "reason", "analyze", "compare", "evaluate",
		"pros and cons", "trade-off", "tradeoff", "implication", "argue",
		"logic", "deduce",
	}},
	{TaskCreative, []string{
		"write a story", "poem", "fiction", "imagine", "compose",
		"creative", "brainstorm", "slogan", "lyrics", "tell me a story",
	}},
	{TaskResearch, []string{
		"research", "summarize", "overview", "history of", "state of the art",
		"literature", "survey", "sources", "citations", "background on",
	}},
}

// Presence of any of these escalates complexity to complex regardless of
// prompt length.
var advancedKeywords = []string{
	"distributed", "concurrency", "optimization", "architecture",
	"asymptotic", "cryptographic", "formal proof", "quantum",
	"differential", "scalability", "byzantine", "np-hard",
}

func Analyze(prompt string) Analysis {
	return Analysis{
		Category:   Categorize(prompt),
		Complexity: Classify(prompt),
	}
}

// Categorize returns the first matching task category, falling back to
// general when nothing matches.
func Categorize(prompt string) TaskCategory {
	lower := strings.ToLower(prompt)
	for _, entry := range categoryKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				return entry.category
			}
		}
	}
	return TaskGeneral
}

// Classify derives a complexity tier from word count alone, escalated to
// complex when advanced vocabulary is present.
func Classify(prompt string) Complexity {
	lower := strings.ToLower(prompt)
	wordCount := len(strings.Fields(lower))

	tier := tierForWordCount(wordCount)

	if tier != ComplexityExpert {
		for _, kw := range advancedKeywords {
			if strings.Contains(lower, kw) {
				return ComplexityComplex
			}
		}
	}

	return tier
}

func tierForWordCount(wordCount int) Complexity {
	switch {
	case wordCount <= 5:
		return ComplexityTrivial
	case wordCount <= 15:
		return ComplexitySimple
	case wordCount <= 50:
		return ComplexityModerate
	case wordCount <= 120:
		return ComplexityComplex
	default:
		return ComplexityExpert
	}
}

// DefaultStrategy suggests a strategy for requests that do not name one.
// The engine treats an empty suggestion as best_of_n.
func DefaultStrategy(a Analysis) string {
	switch a.Complexity {
	case ComplexityTrivial, ComplexitySimple:
		return "cascade"
	}

	switch a.Category {
	case TaskReasoning, TaskMath:
		if a.Complexity == ComplexityComplex || a.Complexity == ComplexityExpert {
			return "debate"
		}
	case TaskCreative:
		return "synthesis"
	case TaskCoding:
		if a.Complexity == ComplexityExpert {
			return "iterative_refinement"
		}
	}

	return "best_of_n"
}
