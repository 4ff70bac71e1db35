// Package taxonomy provides the fixed, versioned set of valid categories.
// The set is embedded at build time and read-only at runtime: every
// category identifier persisted anywhere in the system must be a member.
package taxonomy

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
)

//go:embed categories.json
var seedJSON []byte

// Bucket groups categories by their budgeting role.
type Bucket string

const (
	BucketIncome   Bucket = "income"
	BucketFixed    Bucket = "fixed_expenses"
	BucketVariable Bucket = "variable_expenses"
	BucketOther    Bucket = "other"
)

// bucketOrder fixes the row order of the seeded budget sheet.
var bucketOrder = []Bucket{BucketIncome, BucketFixed, BucketVariable, BucketOther}

// FallbackID is the stable identifier every unresolvable categorization
// collapses to. It must exist in the embedded set.
const FallbackID = "OTH001"

// Category is one read-only category definition.
type Category struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Bucket Bucket `json:"-"`
}

// Taxonomy is the loaded category set.
type Taxonomy struct {
	ordered  []Category
	byID     map[string]Category
	byName   map[string]Category
	fallback Category
}

// Load parses the embedded category set.
func Load() (*Taxonomy, error) {
	var raw map[Bucket][]Category
	if err := json.Unmarshal(seedJSON, &raw); err != nil {
		return nil, fmt.Errorf("parse embedded categories: %w", err)
	}

	t := &Taxonomy{
		byID:   make(map[string]Category),
		byName: make(map[string]Category),
	}
	for _, bucket := range bucketOrder {
		for _, c := range raw[bucket] {
			c.Bucket = bucket
			if c.ID == "" || c.Name == "" {
				return nil, fmt.Errorf("category with empty id or name in bucket %q", bucket)
			}
			if _, dup := t.byID[c.ID]; dup {
				return nil, fmt.Errorf("duplicate category id %q", c.ID)
			}
			t.ordered = append(t.ordered, c)
			t.byID[c.ID] = c
			t.byName[strings.ToLower(c.Name)] = c
		}
	}

	fb, ok := t.byID[FallbackID]
	if !ok {
		return nil, fmt.Errorf("fallback category %q missing from embedded set", FallbackID)
	}
	t.fallback = fb
	return t, nil
}

// Resolve returns the category for a stable identifier.
func (t *Taxonomy) Resolve(id string) (Category, bool) {
	c, ok := t.byID[id]
	return c, ok
}

// ResolveProposal maps a category proposed by the extractor to a member of
// the set. It accepts a stable identifier or, as a grace for models that
// answer with the display name, an exact case-insensitive name match.
// Anything else resolves to the fallback category, so classification is
// total; the second return value reports whether the proposal actually
// matched or fell back.
func (t *Taxonomy) ResolveProposal(proposal string) (Category, bool) {
	p := strings.TrimSpace(proposal)
	if c, ok := t.byID[p]; ok {
		return c, true
	}
	if c, ok := t.byName[strings.ToLower(p)]; ok {
		return c, true
	}
	return t.fallback, false
}

// Fallback returns the designated fallback category.
func (t *Taxonomy) Fallback() Category {
	return t.fallback
}

// Categories returns all definitions in seed order.
func (t *Taxonomy) Categories() []Category {
	out := make([]Category, len(t.ordered))
	copy(out, t.ordered)
	return out
}

// PromptList renders the set as "ID: Name" lines for the inference prompt.
func (t *Taxonomy) PromptList() []string {
	out := make([]string, 0, len(t.ordered))
	for _, c := range t.ordered {
		out = append(out, c.ID+": "+c.Name)
	}
	return out
}
