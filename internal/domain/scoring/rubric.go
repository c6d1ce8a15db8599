package scoring

import (
	_ "embed"
	"fmt"
	"math"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/okian/bandscore/internal/domain/model"
)

//go:embed rubric.yaml
var defaultRubric []byte

// CriterionRubric holds the band descriptors of one criterion.
type CriterionRubric struct {
	Name        string         `yaml:"name"`
	Descriptors map[int]string `yaml:"descriptors"`
}

// Rubric holds descriptors for every criterion.
type Rubric struct {
	Criteria map[model.Criterion]CriterionRubric `yaml:"criteria"`
}

// ParseRubric decodes and validates a YAML rubric.
func ParseRubric(data []byte) (*Rubric, error) {
	var r Rubric
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRubric, err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// DefaultRubric returns the embedded rubric.
func DefaultRubric() *Rubric {
	r, err := ParseRubric(defaultRubric)
	if err != nil {
		panic(err)
	}
	return r
}

// Validate checks that every criterion has a name and at least one descriptor.
func (r *Rubric) Validate() error {
	for _, c := range model.Criteria {
		cr, ok := r.Criteria[c]
		if !ok {
			return fmt.Errorf("%w: missing criterion %s", ErrInvalidRubric, c)
		}
		if cr.Name == "" || len(cr.Descriptors) == 0 {
			return fmt.Errorf("%w: criterion %s has no descriptors", ErrInvalidRubric, c)
		}
	}
	return nil
}

// Name returns the display name of c.
func (r *Rubric) Name(c model.Criterion) string {
	if cr, ok := r.Criteria[c]; ok && cr.Name != "" {
		return cr.Name
	}
	return string(c)
}

// Descriptor returns the descriptor for the whole band at or below band,
// falling back to the closest band available.
func (r *Rubric) Descriptor(c model.Criterion, band float64) string {
	cr := r.Criteria[c]
	if len(cr.Descriptors) == 0 {
		return ""
	}
	want := int(math.Floor(band))
	if d, ok := cr.Descriptors[want]; ok {
		return d
	}
	best, bestDist := 0, math.MaxInt
	for b := range cr.Descriptors {
		dist := b - want
		if dist < 0 {
			dist = -dist
		}
		if dist < bestDist || (dist == bestDist && b < best) {
			best, bestDist = b, dist
		}
	}
	return cr.Descriptors[best]
}

// Prompt renders the rubric as plain text for an LLM system prompt.
func (r *Rubric) Prompt() string {
	var sb strings.Builder
	for _, c := range model.Criteria {
		cr := r.Criteria[c]
		fmt.Fprintf(&sb, "%s (%s):\n", cr.Name, c)
		bandsDesc := make([]int, 0, len(cr.Descriptors))
		for b := range cr.Descriptors {
			bandsDesc = append(bandsDesc, b)
		}
		sort.Sort(sort.Reverse(sort.IntSlice(bandsDesc)))
		for _, b := range bandsDesc {
			fmt.Fprintf(&sb, "  Band %d: %s\n", b, cr.Descriptors[b])
		}
	}
	return sb.String()
}
