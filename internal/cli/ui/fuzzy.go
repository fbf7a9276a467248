package ui

import (
	"sort"
	"strings"
)

const (
	// DefaultMaxDistance is the largest edit distance still offered as a
	// suggestion.
	DefaultMaxDistance = 3
	// DefaultMaxSuggestions caps how many suggestions a message carries.
	DefaultMaxSuggestions = 3
)

// FuzzyMatchOptions configures FindSimilar.
type FuzzyMatchOptions struct {
	MaxDistance    int
	MaxSuggestions int
	CaseSensitive  bool
}

type suggestion struct {
	value    string
	distance int
}

// FindSimilar returns candidates within edit distance of target, closest
// first. Used to suggest table names for typos in --table values.
//
//	FindSimilar("pots", []string{"posts", "users"}, nil) // ["posts"]
func FindSimilar(target string, candidates []string, opts *FuzzyMatchOptions) []string {
	if opts == nil {
		opts = &FuzzyMatchOptions{}
	}
	maxDistance := opts.MaxDistance
	if maxDistance == 0 {
		maxDistance = DefaultMaxDistance
	}
	maxSuggestions := opts.MaxSuggestions
	if maxSuggestions == 0 {
		maxSuggestions = DefaultMaxSuggestions
	}

	var suggestions []suggestion
	for _, candidate := range candidates {
		targetCmp, candidateCmp := target, candidate
		if !opts.CaseSensitive {
			targetCmp = strings.ToLower(target)
			candidateCmp = strings.ToLower(candidate)
		}

		dist := LevenshteinDistance(targetCmp, candidateCmp)
		if dist <= maxDistance {
			suggestions = append(suggestions, suggestion{value: candidate, distance: dist})
		}
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		return suggestions[i].distance < suggestions[j].distance
	})

	result := make([]string, 0, maxSuggestions)
	for i := 0; i < len(suggestions) && i < maxSuggestions; i++ {
		result = append(result, suggestions[i].value)
	}
	return result
}

// LevenshteinDistance is the minimum number of single-character edits
// (insert, delete, substitute) turning s1 into s2.
func LevenshteinDistance(s1, s2 string) int {
	if len(s1) == 0 {
		return len(s2)
	}
	if len(s2) == 0 {
		return len(s1)
	}

	matrix := make([][]int, len(s1)+1)
	for i := range matrix {
		matrix[i] = make([]int, len(s2)+1)
	}
	for i := 0; i <= len(s1); i++ {
		matrix[i][0] = i
	}
	for j := 0; j <= len(s2); j++ {
		matrix[0][j] = j
	}

	for i := 1; i <= len(s1); i++ {
		for j := 1; j <= len(s2); j++ {
			cost := 1
			if s1[i-1] == s2[j-1] {
				cost = 0
			}
			matrix[i][j] = min(
				matrix[i-1][j]+1,
				matrix[i][j-1]+1,
				matrix[i-1][j-1]+cost,
			)
		}
	}

	return matrix[len(s1)][len(s2)]
}

// FindBestMatch returns the closest candidate, or "" when nothing is within
// the max distance.
func FindBestMatch(target string, candidates []string, opts *FuzzyMatchOptions) string {
	matches := FindSimilar(target, candidates, opts)
	if len(matches) == 0 {
		return ""
	}
	return matches[0]
}
