// Package codebook defines the shared data model every consolidation stage
// reads and writes: Codes (labeled concepts backed by example quotes),
// Categories grouping them, and the Codebook container that is the
// interchange format between coding, consolidation, and evaluation.
package codebook

import (
	"sort"

	"github.com/quiltlab/quilt/errors"
)

// Example is a single supporting quote for a Code.
type Example struct {
	Text   string `json:"text"`
	Source string `json:"source,omitempty"` // chunk id the quote was taken from
}

// Code is the atomic unit of a codebook: one labeled concept with its
// supporting quotes. Definitions are ordered most recent first. Owners is
// the set of source-chunk ids the Code was derived from; merges union
// owners and never drop provenance.
type Code struct {
	ID          string    `json:"id"`
	Label       string    `json:"label"`
	Definitions []string  `json:"definitions,omitempty"`
	Examples    []Example `json:"examples,omitempty"`
	Category    string    `json:"category,omitempty"` // category id, empty = uncategorized
	Embedding   []float32 `json:"embedding,omitempty"`
	Owners      []string  `json:"owners,omitempty"` // sorted set
}

// Definition returns the most recent definition, or "" if none exists.
func (c *Code) Definition() string {
	if len(c.Definitions) == 0 {
		return ""
	}
	return c.Definitions[0]
}

// PushDefinition prepends a definition so it becomes the current one.
func (c *Code) PushDefinition(def string) {
	c.Definitions = append([]string{def}, c.Definitions...)
}

// AddOwners unions the given chunk ids into the Code's owner set,
// keeping it sorted and duplicate-free.
func (c *Code) AddOwners(ids ...string) {
	seen := make(map[string]bool, len(c.Owners)+len(ids))
	for _, o := range c.Owners {
		seen[o] = true
	}
	for _, id := range ids {
		if id != "" {
			seen[id] = true
		}
	}
	owners := make([]string, 0, len(seen))
	for o := range seen {
		owners = append(owners, o)
	}
	sort.Strings(owners)
	c.Owners = owners
}

// Clone returns a deep copy of the Code.
func (c *Code) Clone() *Code {
	dup := *c
	dup.Definitions = append([]string(nil), c.Definitions...)
	dup.Examples = append([]Example(nil), c.Examples...)
	dup.Embedding = append([]float32(nil), c.Embedding...)
	dup.Owners = append([]string(nil), c.Owners...)
	return &dup
}

// Validate checks the Code's own invariants.
func (c *Code) Validate() error {
	if c.ID == "" {
		return errors.New("code has empty id")
	}
	if c.Label == "" {
		return errors.Newf("code %s has empty label", c.ID)
	}
	return nil
}

// Category is a higher-level grouping of related Codes.
type Category struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Definition    string   `json:"definition,omitempty"`
	MemberCodeIDs []string `json:"member_code_ids,omitempty"` // sorted set
}

// AddMembers unions code ids into the category's member set.
func (cat *Category) AddMembers(ids ...string) {
	seen := make(map[string]bool, len(cat.MemberCodeIDs)+len(ids))
	for _, m := range cat.MemberCodeIDs {
		seen[m] = true
	}
	for _, id := range ids {
		if id != "" {
			seen[id] = true
		}
	}
	members := make([]string, 0, len(seen))
	for m := range seen {
		members = append(members, m)
	}
	sort.Strings(members)
	cat.MemberCodeIDs = members
}

// RemoveMember drops a code id from the member set if present.
func (cat *Category) RemoveMember(id string) {
	for i, m := range cat.MemberCodeIDs {
		if m == id {
			cat.MemberCodeIDs = append(cat.MemberCodeIDs[:i], cat.MemberCodeIDs[i+1:]...)
			return
		}
	}
}

// Clone returns a deep copy of the Category.
func (cat *Category) Clone() *Category {
	dup := *cat
	dup.MemberCodeIDs = append([]string(nil), cat.MemberCodeIDs...)
	return &dup
}
