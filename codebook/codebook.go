package codebook

import (
	"fmt"
	"sort"

	"github.com/quiltlab/quilt/errors"
)

// Codebook is a set of Codes keyed by id, plus the Categories they may
// belong to. Insertion order carries no meaning: iterate via SortedIDs for
// deterministic behavior.
type Codebook struct {
	Codes      map[string]*Code     `json:"codes"`
	Categories map[string]*Category `json:"categories,omitempty"`
}

// New returns an empty codebook.
func New() *Codebook {
	return &Codebook{
		Codes:      make(map[string]*Code),
		Categories: make(map[string]*Category),
	}
}

// Add inserts a code, rejecting duplicates and invalid codes.
func (cb *Codebook) Add(c *Code) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if _, exists := cb.Codes[c.ID]; exists {
		return errors.Newf("duplicate code id %s", c.ID)
	}
	cb.Codes[c.ID] = c
	return nil
}

// AddCategory inserts a category, rejecting duplicates.
func (cb *Codebook) AddCategory(cat *Category) error {
	if cat.ID == "" {
		return errors.New("category has empty id")
	}
	if cb.Categories == nil {
		cb.Categories = make(map[string]*Category)
	}
	if _, exists := cb.Categories[cat.ID]; exists {
		return errors.Newf("duplicate category id %s", cat.ID)
	}
	cb.Categories[cat.ID] = cat
	return nil
}

// SortedIDs returns all code ids in lexicographic order. Merge passes
// iterate in this order so tie-breaks are stable and reproducible.
func (cb *Codebook) SortedIDs() []string {
	ids := make([]string, 0, len(cb.Codes))
	for id := range cb.Codes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SortedCategoryIDs returns all category ids in lexicographic order.
func (cb *Codebook) SortedCategoryIDs() []string {
	ids := make([]string, 0, len(cb.Categories))
	for id := range cb.Categories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Clone returns a deep copy. Stages treat their input as immutable and
// mutate a clone, so each stage's output is an independent snapshot.
func (cb *Codebook) Clone() *Codebook {
	dup := New()
	for id, c := range cb.Codes {
		dup.Codes[id] = c.Clone()
	}
	for id, cat := range cb.Categories {
		dup.Categories[id] = cat.Clone()
	}
	return dup
}

// Fold merges the code srcID into dstID: owners are unioned, examples and
// definitions are appended, and srcID is removed from the codebook and from
// its category's member set. Fold never drops provenance.
func (cb *Codebook) Fold(dstID, srcID string) error {
	if dstID == srcID {
		return errors.Newf("cannot fold code %s into itself", dstID)
	}
	dst, ok := cb.Codes[dstID]
	if !ok {
		return errors.Wrapf(errors.ErrNotFound, "fold destination %s", dstID)
	}
	src, ok := cb.Codes[srcID]
	if !ok {
		return errors.Wrapf(errors.ErrNotFound, "fold source %s", srcID)
	}

	dst.AddOwners(src.Owners...)
	dst.Examples = append(dst.Examples, src.Examples...)
	dst.Definitions = append(dst.Definitions, src.Definitions...)

	// Surviving code keeps its own embedding; the absorbed one is stale.
	if src.Category != "" {
		if cat, ok := cb.Categories[src.Category]; ok {
			cat.RemoveMember(srcID)
		}
	}
	if dst.Category != "" {
		if cat, ok := cb.Categories[dst.Category]; ok {
			cat.AddMembers(dstID)
		}
	}
	delete(cb.Codes, srcID)
	return nil
}

// Concat copies all codes from the given codebooks into a new one,
// relabeling ids with a per-source prefix so they cannot collide.
// Categories are carried over under the same prefixed ids.
func Concat(books ...*Codebook) *Codebook {
	out := New()
	for i, src := range books {
		prefix := fmt.Sprintf("s%d:", i)
		for _, id := range src.SortedCategoryIDs() {
			cat := src.Categories[id].Clone()
			cat.ID = prefix + cat.ID
			remapped := make([]string, len(cat.MemberCodeIDs))
			for j, m := range cat.MemberCodeIDs {
				remapped[j] = prefix + m
			}
			cat.MemberCodeIDs = remapped
			out.Categories[cat.ID] = cat
		}
		for _, id := range src.SortedIDs() {
			c := src.Codes[id].Clone()
			c.ID = prefix + c.ID
			if c.Category != "" {
				c.Category = prefix + c.Category
			}
			out.Codes[c.ID] = c
		}
	}
	return out
}

// Owners returns the union of all owner ids across the codebook.
func (cb *Codebook) Owners() []string {
	seen := make(map[string]bool)
	for _, c := range cb.Codes {
		for _, o := range c.Owners {
			seen[o] = true
		}
	}
	owners := make([]string, 0, len(seen))
	for o := range seen {
		owners = append(owners, o)
	}
	sort.Strings(owners)
	return owners
}

// Validate checks codebook-wide invariants: codes are individually valid,
// every code's category references an existing category, and category
// member lists point at existing codes.
func (cb *Codebook) Validate() error {
	for _, id := range cb.SortedIDs() {
		c := cb.Codes[id]
		if err := c.Validate(); err != nil {
			return err
		}
		if c.ID != id {
			return errors.Newf("code %s stored under key %s", c.ID, id)
		}
		if c.Category != "" {
			if _, ok := cb.Categories[c.Category]; !ok {
				return errors.Newf("code %s references missing category %s", id, c.Category)
			}
		}
	}
	for _, catID := range cb.SortedCategoryIDs() {
		for _, m := range cb.Categories[catID].MemberCodeIDs {
			if _, ok := cb.Codes[m]; !ok {
				return errors.Newf("category %s lists missing code %s", catID, m)
			}
		}
	}
	return nil
}
