package querylang

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tcredex/knowledge-api/internal/knowledge"
)

func TestAnalyzeCategories(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		categories []knowledge.Category
	}{
		{
			name:       "nmtc jargon",
			query:      "What is a QALICB under the NMTC program?",
			categories: []knowledge.Category{knowledge.CategoryNMTC},
		},
		{
			name:       "htc keywords",
			query:      "How does the Part 2 application work for a building on the National Register?",
			categories: []knowledge.Category{knowledge.CategoryHTC},
		},
		{
			name:       "lihtc keywords",
			query:      "What are the income averaging set-aside rules?",
			categories: []knowledge.Category{knowledge.CategoryLIHTC},
		},
		{
			name:       "oz keywords",
			query:      "When does the 180-day window start for a QOF investment?",
			categories: []knowledge.Category{knowledge.CategoryOZ},
		},
		{
			name:       "platform over program",
			query:      "How do I upload a document in the intake form?",
			categories: []knowledge.Category{knowledge.CategoryPlatform},
		},
		{
			name:       "compliance keywords",
			query:      "What are the recapture rules if a violation occurs?",
			categories: []knowledge.Category{knowledge.CategoryCompliance},
		},
		{
			name:       "state keywords",
			query:      "Which state tax incentives can be combined?",
			categories: []knowledge.Category{knowledge.CategoryState},
		},
		{
			name:  "multiple categories",
			query: "NMTC compliance deadlines for a QALICB",
			categories: []knowledge.Category{
				knowledge.CategoryNMTC,
				knowledge.CategoryCompliance,
			},
		},
		{
			name:       "case insensitive",
			query:      "what is a qalicb?",
			categories: []knowledge.Category{knowledge.CategoryNMTC},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analysis := Analyze(tt.query)
			assert.Equal(t, tt.categories, analysis.Categories)
			assert.False(t, analysis.IsGeneral)
		})
	}
}

func TestAnalyzeGeneralQuery(t *testing.T) {
	analysis := Analyze("What is the weather like today?")

	assert.Empty(t, analysis.Categories)
	assert.True(t, analysis.IsGeneral)
}

func TestAnalyzePrograms(t *testing.T) {
	tests := []struct {
		query    string
		programs []string
	}{
		{"Tell me about NMTC allocations", []string{"NMTC"}},
		{"new markets tax credit basics", []string{"NMTC"}},
		{"historic rehabilitation overview", []string{"HTC"}},
		{"historical preservation requirements", []string{"HTC"}},
		{"housing credit allocations by state", []string{"LIHTC"}},
		{"opportunity zone fund rules", []string{"OZ"}},
		{"What are opportunity zones?", []string{"OZ"}},
		{"is my building in an OZ?", []string{"OZ"}},
		{"general question with no programs", nil},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			analysis := Analyze(tt.query)
			assert.Equal(t, tt.programs, analysis.Programs)
		})
	}
}

func TestAnalyzeWordBoundaries(t *testing.T) {
	// "oz" must not fire inside larger words.
	analysis := Analyze("a dozen frozen bulldozers")
	assert.NotContains(t, analysis.Programs, "OZ")
	assert.NotContains(t, analysis.Categories, knowledge.CategoryOZ)
}
