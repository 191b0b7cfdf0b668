package analyzer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategorize(t *testing.T) {
	tests := []struct {
		name     string
		prompt   string
		expected TaskCategory
	}{
		{"coding keyword", "Please debug this function for me", TaskCoding},
		{"math keyword", "Calculate the integral of x squared", TaskMath},
		{"reasoning keyword", "Explain why the sky is blue", TaskReasoning},
		{"creative keyword", "Write a story about a lighthouse keeper", TaskCreative},
		{"research keyword", "Summarize the history of the printing press", TaskResearch},
		{"no keyword falls back to general", "Hello there", TaskGeneral},
		{"case insensitive", "DEBUG my CODE", TaskCoding},
		{"first category wins on overlap", "Explain this code to me", TaskCoding},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Categorize(tt.prompt))
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		prompt   string
		expected Complexity
	}{
		{"five words is trivial", "what is a monad exactly", ComplexityTrivial},
		{"fifteen words is simple", strings.Repeat("word ", 15), ComplexitySimple},
		{"fifty words is moderate", strings.Repeat("word ", 50), ComplexityModerate},
		{"hundred twenty words is complex", strings.Repeat("word ", 120), ComplexityComplex},
		{"beyond budget is expert", strings.Repeat("word ", 121), ComplexityExpert},
		{"advanced keyword escalates short prompt", "explain byzantine consensus", ComplexityComplex},
		{"advanced keyword does not demote expert", strings.Repeat("distributed ", 121), ComplexityExpert},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.prompt))
		})
	}
}

func TestDefaultStrategy(t *testing.T) {
	tests := []struct {
		name     string
		analysis Analysis
		expected string
	}{
		{"trivial prompts cascade", Analysis{TaskGeneral, ComplexityTrivial}, "cascade"},
		{"simple prompts cascade even for coding", Analysis{TaskCoding, ComplexitySimple}, "cascade"},
		{"complex reasoning debates", Analysis{TaskReasoning, ComplexityComplex}, "debate"},
		{"expert math debates", Analysis{TaskMath, ComplexityExpert}, "debate"},
		{"moderate reasoning defaults", Analysis{TaskReasoning, ComplexityModerate}, "best_of_n"},
		{"creative synthesizes", Analysis{TaskCreative, ComplexityModerate}, "synthesis"},
		{"expert coding refines", Analysis{TaskCoding, ComplexityExpert}, "iterative_refinement"},
		{"moderate coding defaults", Analysis{TaskCoding, ComplexityModerate}, "best_of_n"},
		{"general defaults", Analysis{TaskGeneral, ComplexityModerate}, "best_of_n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DefaultStrategy(tt.analysis))
		})
	}
}

func TestAnalyze(t *testing.T) {
	a := Analyze("Compare the trade-offs of eventual consistency versus strong consistency in a distributed key-value store")
	assert.Equal(t, TaskReasoning, a.Category)
	assert.Equal(t, ComplexityComplex, a.Complexity)
}
