// Package model provides credential selection for generation tasks.
// Instead of every feature carrying its own list of keys, requests name a task
// category (structure, text, image, video, qa) and the pool resolves it to an
// ordered list of credentials to try.
package model

// Category partitions upstream work. It drives both credential preference and
// admission control: two requests in different categories are independent, two
// in the same category are serialized.
type Category string

const (
	// CategoryStructure is for course outlines (modules and lesson titles).
	CategoryStructure Category = "structure"

	// CategoryText is for lesson bodies.
	CategoryText Category = "text"

	// CategoryImage is for lesson illustrations.
	CategoryImage Category = "image"

	// CategoryVideo is for lesson video clips.
	CategoryVideo Category = "video"

	// CategoryQA is for question/answer sets.
	CategoryQA Category = "qa"
)

// AllCategories lists every category in a stable order.
var AllCategories = []Category{
	CategoryStructure,
	CategoryText,
	CategoryImage,
	CategoryVideo,
	CategoryQA,
}

// IsValid checks if a category string is a known category.
func (c Category) IsValid() bool {
	switch c {
	case CategoryStructure, CategoryText, CategoryImage, CategoryVideo, CategoryQA:
		return true
	}
	return false
}

// String returns the string representation of the category.
func (c Category) String() string {
	return string(c)
}

// ParseCategory converts a string to a Category, returning empty for invalid values.
// "lesson-text" is accepted as an alias for text.
func ParseCategory(s string) Category {
	if s == "lesson-text" {
		return CategoryText
	}
	c := Category(s)
	if c.IsValid() {
		return c
	}
	return ""
}
