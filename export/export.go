// Package export writes pipeline artifacts (codebooks, evaluation reports)
// as JSON or Markdown.
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/quiltlab/quilt/codebook"
	"github.com/quiltlab/quilt/errors"
)

// WriteJSON writes value as indented JSON to path.
func WriteJSON(path string, value interface{}) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "failed to marshal %s", path)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return nil
}

// WriteMarkdown renders a codebook as a human-readable Markdown document,
// grouped by category with uncategorized codes last.
func WriteMarkdown(path string, cb *codebook.Codebook) error {
	var sb strings.Builder
	sb.WriteString("# Codebook\n\n")
	fmt.Fprintf(&sb, "%d codes, %d categories\n", len(cb.Codes), len(cb.Categories))

	writeCode := func(c *codebook.Code) {
		fmt.Fprintf(&sb, "### %s\n\n", c.Label)
		if def := c.Definition(); def != "" {
			fmt.Fprintf(&sb, "%s\n\n", def)
		}
		for _, ex := range c.Examples {
			fmt.Fprintf(&sb, "> %s\n", ex.Text)
			if ex.Source != "" {
				fmt.Fprintf(&sb, "> — %s\n", ex.Source)
			}
			sb.WriteString("\n")
		}
	}

	for _, catID := range cb.SortedCategoryIDs() {
		cat := cb.Categories[catID]
		fmt.Fprintf(&sb, "\n## %s\n\n", cat.Name)
		if cat.Definition != "" {
			fmt.Fprintf(&sb, "%s\n\n", cat.Definition)
		}
		for _, id := range cb.SortedIDs() {
			if cb.Codes[id].Category == catID {
				writeCode(cb.Codes[id])
			}
		}
	}

	var uncategorized []string
	for _, id := range cb.SortedIDs() {
		if cb.Codes[id].Category == "" {
			uncategorized = append(uncategorized, id)
		}
	}
	if len(uncategorized) > 0 {
		sb.WriteString("\n## Uncategorized\n\n")
		for _, id := range uncategorized {
			writeCode(cb.Codes[id])
		}
	}

	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return nil
}
