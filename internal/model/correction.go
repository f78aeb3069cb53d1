package model

// Category is one bucket of the fixed correction taxonomy
type Category string

const (
	CategoryTerminology Category = "terminology" // Malformed term replaced by its canonical form
	CategoryClarity     Category = "clarity"     // Punctuation, capitalization or whitespace only
	CategoryCompletion  Category = "completion"  // New section or paragraph added
	CategoryAccuracy    Category = "accuracy"    // Numeric or measurement phrasing changed
)

// Categories lists the taxonomy in its canonical order
func Categories() []Category {
	return []Category{CategoryTerminology, CategoryClarity, CategoryCompletion, CategoryAccuracy}
}

// Valid reports whether c belongs to the taxonomy
func (c Category) Valid() bool {
	switch c {
	case CategoryTerminology, CategoryClarity, CategoryCompletion, CategoryAccuracy:
		return true
	default:
		return false
	}
}

// Correction is one classified change between original and corrected text
type Correction struct {
	Category        Category `json:"category"`
	OriginalSpan    string   `json:"original_span"`
	ReplacementSpan string   `json:"replacement_span"`
	Position        int      `json:"position"` // Byte offset of the change in the corrected text
}
