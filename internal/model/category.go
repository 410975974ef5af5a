package model

import "strings"

// Category is the label assigned to an email by classification.
type Category string

const (
	CategorySupport Category = "support"
	CategorySales   Category = "sales"
	CategoryInquiry Category = "inquiry"
	CategorySpam    Category = "spam"
	CategoryOther   Category = "other"
)

// localeAliases maps the operator-locale labels onto the canonical set.
var localeAliases = map[string]Category{
	"soporte":  CategorySupport,
	"ventas":   CategorySales,
	"consulta": CategoryInquiry,
	"otro":     CategoryOther,
}

// Categories returns every category in a stable order.
func Categories() []Category {
	return []Category{CategorySupport, CategorySales, CategoryInquiry, CategorySpam, CategoryOther}
}

// IsValid reports whether c is a member of the closed category set.
func (c Category) IsValid() bool {
	switch c {
	case CategorySupport, CategorySales, CategoryInquiry, CategorySpam, CategoryOther:
		return true
	}
	return false
}

func (c Category) String() string {
	return string(c)
}

// ParseCategory normalizes a free-form label. The label is trimmed and
// lower-cased and must then match a category (or a locale alias) exactly;
// anything else resolves to CategoryOther.
func ParseCategory(label string) Category {
	normalized := strings.ToLower(strings.TrimSpace(label))

	if c := Category(normalized); c.IsValid() {
		return c
	}
	if c, ok := localeAliases[normalized]; ok {
		return c
	}
	return CategoryOther
}

// CategoryCounts holds per-category totals for a batch.
type CategoryCounts map[Category]int

// NewCategoryCounts returns counts with every category present at zero.
func NewCategoryCounts() CategoryCounts {
	counts := make(CategoryCounts, len(Categories()))
	for _, c := range Categories() {
		counts[c] = 0
	}
	return counts
}

// Inc increments the counter for c, collapsing unknown values to other.
func (cc CategoryCounts) Inc(c Category) {
	if !c.IsValid() {
		c = CategoryOther
	}
	cc[c]++
}
