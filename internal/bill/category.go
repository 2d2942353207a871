package bill

import "strings"

// Category is the closed set of bill categories
type Category string

const (
	CategoryUtility Category = "Utility"
	CategoryVendor  Category = "Vendor"
	CategoryFood    Category = "Food"
	CategoryTravel  Category = "Travel"
	CategoryOther   Category = "Other"
)

var allCategories = []Category{
	CategoryUtility,
	CategoryVendor,
	CategoryFood,
	CategoryTravel,
	CategoryOther,
}

// synonyms maps recognizer wording onto a category
var synonyms = map[string]Category{
	"utilities":   CategoryUtility,
	"electric":    CategoryUtility,
	"electricity": CategoryUtility,
	"water":       CategoryUtility,
	"gas":         CategoryUtility,
	"internet":    CategoryUtility,
	"phone":       CategoryUtility,
	"supplier":    CategoryVendor,
	"supplies":    CategoryVendor,
	"services":    CategoryVendor,
	"meals":       CategoryFood,
	"restaurant":  CategoryFood,
	"catering":    CategoryFood,
	"groceries":   CategoryFood,
	"airline":     CategoryTravel,
	"hotel":       CategoryTravel,
	"taxi":        CategoryTravel,
	"transport":   CategoryTravel,
}

// Categories returns the known categories in display order
func Categories() []Category {
	return append([]Category(nil), allCategories...)
}

// CategoryNames returns the known categories as plain strings
func CategoryNames() []string {
	names := make([]string, len(allCategories))
	for i, c := range allCategories {
		names[i] = string(c)
	}
	return names
}

// Valid reports whether c belongs to the closed category set
func (c Category) Valid() bool {
	for _, known := range allCategories {
		if c == known {
			return true
		}
	}
	return false
}

// ParseCategory canonicalizes free text into a category.
// The boolean is false when the input matched nothing and Other was chosen.
func ParseCategory(input string) (Category, bool) {
	normalized := strings.ToLower(strings.TrimSpace(input))
	if normalized == "" {
		return CategoryOther, false
	}
	for _, c := range allCategories {
		if normalized == strings.ToLower(string(c)) {
			return c, true
		}
	}
	if c, ok := synonyms[normalized]; ok {
		return c, true
	}
	return CategoryOther, false
}
