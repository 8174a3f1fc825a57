package domain

import "strings"

// FallbackCategory is assigned when no tier of the classifier can produce
// an answer.
const FallbackCategory = "Other"

// DefaultCategories is the seeded category set. User-defined categories are
// appended on top of these.
var DefaultCategories = []string{
	"Groceries",
	"Dining",
	"Transport",
	"Utilities",
	"Shopping",
	"Entertainment",
	"Health",
	"Subscriptions",
	"Income",
	"Savings",
	FallbackCategory,
}

// Vocabulary is the fixed set of valid category labels. Every classification
// result must resolve to a member.
type Vocabulary struct {
	names  []string
	lookup map[string]string // normalized -> canonical
}

// NewVocabulary builds a vocabulary from the seeded defaults plus any
// user-defined categories. Duplicates (case/space-insensitive) collapse to
// the first occurrence.
func NewVocabulary(userCategories ...string) *Vocabulary {
	v := &Vocabulary{lookup: make(map[string]string)}
	for _, name := range DefaultCategories {
		v.add(name)
	}
	for _, name := range userCategories {
		v.add(name)
	}
	return v
}

func (v *Vocabulary) add(name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	key := normalizeCategory(name)
	if _, exists := v.lookup[key]; exists {
		return
	}
	v.lookup[key] = name
	v.names = append(v.names, name)
}

// Names returns the canonical category labels in insertion order.
func (v *Vocabulary) Names() []string {
	out := make([]string, len(v.names))
	copy(out, v.names)
	return out
}

// Contains reports whether name is a member, ignoring case and surrounding
// whitespace.
func (v *Vocabulary) Contains(name string) bool {
	_, ok := v.lookup[normalizeCategory(name)]
	return ok
}

// Canonical maps a loosely-spelled category to its canonical label. The
// second return is false when the name is not in the vocabulary.
func (v *Vocabulary) Canonical(name string) (string, bool) {
	canonical, ok := v.lookup[normalizeCategory(name)]
	return canonical, ok
}

func normalizeCategory(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}
