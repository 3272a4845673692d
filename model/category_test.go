package model

import "testing"

func TestCategoryIsValid(t *testing.T) {
	tests := []struct {
		cat      Category
		expected bool
	}{
		{CategoryStructure, true},
		{CategoryText, true},
		{CategoryImage, true},
		{CategoryVideo, true},
		{CategoryQA, true},
		{Category("audio"), false},
		{Category(""), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.cat), func(t *testing.T) {
			got := tt.cat.IsValid()
			if got != tt.expected {
				t.Errorf("Category(%q).IsValid() = %v, want %v", tt.cat, got, tt.expected)
			}
		})
	}
}

func TestParseCategory(t *testing.T) {
	tests := []struct {
		input    string
		expected Category
	}{
		{"structure", CategoryStructure},
		{"text", CategoryText},
		{"lesson-text", CategoryText},
		{"image", CategoryImage},
		{"video", CategoryVideo},
		{"qa", CategoryQA},
		{"QA", ""},
		{"invalid", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ParseCategory(tt.input)
			if got != tt.expected {
				t.Errorf("ParseCategory(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestAllCategoriesValid(t *testing.T) {
	if len(AllCategories) != 5 {
		t.Fatalf("expected 5 categories, got %d", len(AllCategories))
	}
	for _, c := range AllCategories {
		if !c.IsValid() {
			t.Errorf("category %q should be valid", c)
		}
	}
}
