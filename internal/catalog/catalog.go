package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
)

// ErrInvalidCatalog is returned when a category table cannot be used.
// The wrapped errors describe every problem found.
var ErrInvalidCatalog = errors.New("invalid category catalog")

type entry struct {
	category   Category
	patterns   []*regexp.Regexp
	exceptions map[Exception]bool
}

// Catalog is an ordered, immutable table of categories.
// Declaration order is the classification tie-break: the first category
// with a matching pattern wins, so narrow categories must precede broad ones.
type Catalog struct {
	entries []entry
	index   map[string]int
	hash    string
}

// New validates categories and builds a catalog preserving their order.
func New(categories []Category) (*Catalog, error) {
	data, err := Marshal(categories)
	if err != nil {
		return nil, fmt.Errorf("catalog: encode: %w", err)
	}
	return build(categories, hashBytes(data))
}

func build(categories []Category, hash string) (*Catalog, error) {
	c := &Catalog{
		entries: make([]entry, 0, len(categories)),
		index:   make(map[string]int, len(categories)),
		hash:    hash,
	}

	var problems []error
	for i, cat := range categories {
		e, errs := compile(cat)
		for _, err := range errs {
			problems = append(problems, fmt.Errorf("categories[%d] %q: %w", i, cat.Name, err))
		}
		if cat.Name != "" {
			if prev, dup := c.index[cat.Name]; dup {
				problems = append(problems, fmt.Errorf("categories[%d] %q: duplicate name (first declared at categories[%d])", i, cat.Name, prev))
				continue
			}
			c.index[cat.Name] = len(c.entries)
		}
		c.entries = append(c.entries, e)
	}

	if len(categories) == 0 {
		problems = append(problems, errors.New("no categories declared"))
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCatalog, errors.Join(problems...))
	}
	return c, nil
}

func compile(cat Category) (entry, []error) {
	var errs []error
	if cat.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if !cat.Tier.Valid() {
		errs = append(errs, fmt.Errorf("invalid tier %s", cat.Tier))
	}
	if cat.RequiresInteraction && !cat.Interaction.Valid() {
		errs = append(errs, fmt.Errorf("interaction kind %q is not selection or confirmation", cat.Interaction))
	}
	if !cat.RequiresInteraction && cat.Interaction != "" {
		errs = append(errs, fmt.Errorf("interaction kind %q set without requires_interaction", cat.Interaction))
	}
	if len(cat.Patterns) == 0 && len(cat.Exceptions) == 0 {
		errs = append(errs, errors.New("at least one pattern or exception is required"))
	}

	e := entry{category: cat, exceptions: make(map[Exception]bool, len(cat.Exceptions))}
	for _, p := range cat.Patterns {
		re, err := compileGlob(p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		e.patterns = append(e.patterns, re)
	}
	for _, ex := range cat.Exceptions {
		if ex.Service == "" || ex.Method == "" {
			errs = append(errs, fmt.Errorf("exception %+v: service and method are required", ex))
			continue
		}
		e.exceptions[ex] = true
	}
	return e, errs
}

// Classify returns the first category whose patterns match the method name.
// ok is false when the name is uncategorized.
func (c *Catalog) Classify(method string) (Category, bool) {
	for _, e := range c.entries {
		if e.matches(method) {
			return e.category, true
		}
	}
	return Category{}, false
}

// ClassifyCall is Classify with knowledge of the destination service:
// a category's literal (service, method) exceptions match at the
// category's own position in declaration order.
func (c *Catalog) ClassifyCall(service, method string) (Category, bool) {
	key := Exception{Service: service, Method: method}
	for _, e := range c.entries {
		if e.exceptions[key] || e.matches(method) {
			return e.category, true
		}
	}
	return Category{}, false
}

func (e entry) matches(name string) bool {
	for _, re := range e.patterns {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

// Lookup returns the category with the given name.
func (c *Catalog) Lookup(name string) (Category, bool) {
	i, ok := c.index[name]
	if !ok {
		return Category{}, false
	}
	return c.entries[i].category, true
}

// Categories returns the categories in declaration order.
func (c *Catalog) Categories() []Category {
	out := make([]Category, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.category
	}
	return out
}

// AllowedAt returns the non-forbidden categories permitted at level, in
// declaration order.
func (c *Catalog) AllowedAt(level Level) []Category {
	var out []Category
	for _, e := range c.entries {
		if !e.category.Forbidden && level.Permits(e.category.Tier) {
			out = append(out, e.category)
		}
	}
	return out
}

// Hash identifies the catalog source as "sha256:<hex>".
func (c *Catalog) Hash() string {
	return c.hash
}

func hashBytes(data []byte) string {
	h := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(h[:])
}
