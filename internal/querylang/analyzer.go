// Package querylang classifies free-text queries into knowledge categories
// and program tags using keyword rules, so retrieval can pre-filter the
// vector search instead of scanning the whole corpus.
package querylang

import (
	"regexp"

	"github.com/tcredex/knowledge-api/internal/knowledge"
)

// categoryRule matches a category when any of its patterns hit.
type categoryRule struct {
	category knowledge.Category
	patterns []*regexp.Regexp
}

// Rule order fixes the category order in the result; matching is a union,
// not first-wins.
var categoryRules = []categoryRule{
	{
		category: knowledge.CategoryPlatform,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(tcredex|platform|intake|form|submit|deal|marketplace|closing room|readiness|match)\b`),
		},
	},
	{
		category: knowledge.CategoryNMTC,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(nmtc|new markets?|qalicb|qlici|qei|cde|low.?income community|qualified active)\b`),
			regexp.MustCompile(`(?i)\b(allocation|39%|7.year)\b`),
		},
	},
	{
		category: knowledge.CategoryHTC,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(htc|historic|rehabilitation|qre|part.?[123]|national register|shpo|preservation)\b`),
			regexp.MustCompile(`(?i)\b(20% credit|substantial rehab)\b`),
		},
	},
	{
		category: knowledge.CategoryLIHTC,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(lihtc|low.?income housing|affordable|ami|area median|9%|4%|housing credit)\b`),
			regexp.MustCompile(`(?i)\b(set.?aside|income averaging|qap|housing finance)\b`),
		},
	},
	{
		category: knowledge.CategoryOZ,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(oz|opportunity zone|qof|qozb|capital gains?|180.?day|substantial improvement)\b`),
			regexp.MustCompile(`(?i)\b(deferral|exclusion|10.?year)\b`),
		},
	},
	{
		category: knowledge.CategoryCompliance,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(compliance|audit|report|deadline|timeline|recapture|violation)\b`),
		},
	},
	{
		category: knowledge.CategoryState,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(state credit|state tax|state incentive)\b`),
		},
	},
}

// Program patterns anchor on the left word boundary only, so "historical"
// tags HTC and "opportunity zones" tags OZ. The acronyms stay fully bounded:
// "oz" must not fire inside "dozen".
var programRules = []struct {
	pattern *regexp.Regexp
	program string
}{
	{regexp.MustCompile(`(?i)\bnmtc\b`), "NMTC"},
	{regexp.MustCompile(`(?i)\bnew markets`), "NMTC"},
	{regexp.MustCompile(`(?i)\bhtc\b`), "HTC"},
	{regexp.MustCompile(`(?i)\bhistoric`), "HTC"},
	{regexp.MustCompile(`(?i)\blihtc\b`), "LIHTC"},
	{regexp.MustCompile(`(?i)\bhousing credit`), "LIHTC"},
	{regexp.MustCompile(`(?i)\boz\b`), "OZ"},
	{regexp.MustCompile(`(?i)\bopportunity zone`), "OZ"},
}

// Analyze classifies a query. A query matching no category rule is general
// and retrieval should search without a category filter.
func Analyze(query string) knowledge.QueryAnalysis {
	var categories []knowledge.Category
	for _, rule := range categoryRules {
		for _, pattern := range rule.patterns {
			if pattern.MatchString(query) {
				categories = append(categories, rule.category)
				break
			}
		}
	}

	var programs []string
	seen := make(map[string]bool)
	for _, rule := range programRules {
		if seen[rule.program] {
			continue
		}
		if rule.pattern.MatchString(query) {
			programs = append(programs, rule.program)
			seen[rule.program] = true
		}
	}

	return knowledge.QueryAnalysis{
		Categories: categories,
		Programs:   programs,
		IsGeneral:  len(categories) == 0,
	}
}
