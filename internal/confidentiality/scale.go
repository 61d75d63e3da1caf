// Package confidentiality implements the total order over confidentiality
// labels used to gate object visibility. The ordering is derived from the
// configured level list, never from hand-maintained integers.
package confidentiality

import (
	"errors"
	"fmt"
	"strings"
)

// Default five-level scale, least to most restricted.
var DefaultLevels = []string{
	"public",
	"internal",
	"confidential",
	"secret",
	"top-secret",
}

// Scale is an immutable total order over a fixed set of confidentiality
// labels. Ranks are derived from list position at construction time.
type Scale struct {
	order []string
	ranks map[string]int
}

// NewScale builds a Scale from an ordered list of level names, least
// restricted first. Names are trimmed and compared case-insensitively.
func NewScale(levels []string) (*Scale, error) {
	if len(levels) == 0 {
		return nil, errors.New("confidentiality: at least one level is required")
	}

	scale := &Scale{
		order: make([]string, 0, len(levels)),
		ranks: make(map[string]int, len(levels)),
	}
	for _, level := range levels {
		name := normalise(level)
		if name == "" {
			return nil, errors.New("confidentiality: empty level name")
		}
		if _, exists := scale.ranks[name]; exists {
			return nil, fmt.Errorf("confidentiality: duplicate level %q", name)
		}
		scale.ranks[name] = len(scale.order)
		scale.order = append(scale.order, name)
	}
	return scale, nil
}

// MustDefault returns the default five-level scale.
func MustDefault() *Scale {
	scale, err := NewScale(DefaultLevels)
	if err != nil {
		panic(err)
	}
	return scale
}

// Rank returns the position of the level within the scale. Unknown levels
// report ok=false.
func (s *Scale) Rank(level string) (int, bool) {
	rank, ok := s.ranks[normalise(level)]
	return rank, ok
}

// Known reports whether the level belongs to the scale.
func (s *Scale) Known(level string) bool {
	_, ok := s.ranks[normalise(level)]
	return ok
}

// AtLeast reports whether ceiling is an equal-or-more-permissive ceiling than
// requirement, i.e. rank(ceiling) >= rank(requirement). Unknown levels on
// either side yield false: an unclassifiable object exceeds every ceiling.
func (s *Scale) AtLeast(ceiling, requirement string) bool {
	ceilingRank, ok := s.Rank(ceiling)
	if !ok {
		return false
	}
	requirementRank, ok := s.Rank(requirement)
	if !ok {
		return false
	}
	return ceilingRank >= requirementRank
}

// Levels returns the level names from least to most restricted.
func (s *Scale) Levels() []string {
	return append([]string(nil), s.order...)
}

// Max returns the more restricted of two known levels. When exactly one side
// is unknown the known level wins; two unknown levels yield the first input.
func (s *Scale) Max(a, b string) string {
	rankA, okA := s.Rank(a)
	rankB, okB := s.Rank(b)
	switch {
	case !okA && !okB:
		return a
	case !okA:
		return b
	case !okB:
		return a
	case rankB > rankA:
		return b
	default:
		return a
	}
}

func normalise(level string) string {
	return strings.ToLower(strings.TrimSpace(level))
}
