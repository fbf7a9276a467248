package ui

import (
	"reflect"
	"testing"
)

func TestLevenshteinDistance(t *testing.T) {
	tests := []struct {
		s1   string
		s2   string
		want int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"abc", "", 3},
		{"posts", "posts", 0},
		{"kitten", "sitting", 3},
		{"pots", "posts", 1},
		{"user", "users", 1},
		{"commnets", "comments", 2},
	}

	for _, tt := range tests {
		if got := LevenshteinDistance(tt.s1, tt.s2); got != tt.want {
			t.Errorf("LevenshteinDistance(%q, %q) = %d, want %d", tt.s1, tt.s2, got, tt.want)
		}
	}
}

func TestFindSimilar(t *testing.T) {
	tables := []string{"posts", "users", "comments", "categories", "audit_log_entries"}

	tests := []struct {
		name   string
		target string
		opts   *FuzzyMatchOptions
		want   []string
	}{
		{
			name:   "close typo",
			target: "pots",
			want:   []string{"posts"},
		},
		{
			name:   "case insensitive by default",
			target: "USERS",
			want:   []string{"users"},
		},
		{
			name:   "nothing within distance",
			target: "subscriptions",
			want:   []string{},
		},
		{
			name:   "respects max suggestions",
			target: "poss",
			opts:   &FuzzyMatchOptions{MaxDistance: 3, MaxSuggestions: 1},
			want:   []string{"posts"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FindSimilar(tt.target, tables, tt.opts)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("FindSimilar(%q) = %v, want %v", tt.target, got, tt.want)
			}
		})
	}
}

func TestFindSimilarOrdersByDistance(t *testing.T) {
	got := FindSimilar("post", []string{"ports", "posts", "post"}, nil)
	want := []string{"post", "posts", "ports"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("FindSimilar = %v, want closest first %v", got, want)
	}
}

func TestFindBestMatch(t *testing.T) {
	tables := []string{"posts", "users"}

	if got := FindBestMatch("pots", tables, nil); got != "posts" {
		t.Errorf("FindBestMatch = %q, want posts", got)
	}
	if got := FindBestMatch("completely_unrelated", tables, nil); got != "" {
		t.Errorf("FindBestMatch = %q, want empty for no match", got)
	}
}
