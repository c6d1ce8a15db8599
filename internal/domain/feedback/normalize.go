package feedback

import (
	"strings"
	"unicode/utf8"

	"github.com/okian/bandscore/internal/domain/model"
)

// DefaultMaxItems caps strengths and improvements per criterion.
const DefaultMaxItems = 3

// Normalize tidies scorer feedback: whitespace is trimmed, empty and
// duplicate items dropped, lists capped at maxItems and sentences closed
// with a period. Final bands are copied into every criterion and every
// criterion is present.
func Normalize(fb model.Feedback, b model.BandScores, maxItems int) model.Feedback {
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	out := model.Feedback{
		Overall:  sentence(fb.Overall),
		Criteria: make(map[model.Criterion]model.CriterionFeedback, len(model.Criteria)),
	}
	for _, c := range model.Criteria {
		cf := fb.Criteria[c]
		out.Criteria[c] = model.CriterionFeedback{
			Band:         b.Get(c),
			Summary:      sentence(cf.Summary),
			Strengths:    items(cf.Strengths, maxItems),
			Improvements: items(cf.Improvements, maxItems),
		}
	}
	return out
}

func items(in []string, limit int) []string {
	out := make([]string, 0, limit)
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = sentence(s)
		if s == "" {
			continue
		}
		key := strings.ToLower(strings.TrimSuffix(s, "."))
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
		if len(out) == limit {
			break
		}
	}
	return out
}

// sentence collapses inner whitespace and ensures terminal punctuation.
func sentence(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return ""
	}
	last, _ := utf8.DecodeLastRuneInString(s)
	switch last {
	case '.', '!', '?':
		return s
	}
	return s + "."
}
