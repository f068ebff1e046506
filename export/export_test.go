package export_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quiltlab/quilt/codebook"
	"github.com/quiltlab/quilt/export"
)

func TestWriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, export.WriteJSON(path, map[string]int{"covered": 2}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"covered": 2}`, string(data))
}

func TestWriteMarkdown_GroupsByCategory(t *testing.T) {
	cb := codebook.New()
	require.NoError(t, cb.AddCategory(&codebook.Category{
		ID:         "cat1",
		Name:       "Collaboration",
		Definition: "Codes about working together.",
	}))

	teamwork := &codebook.Code{
		ID:       "a",
		Label:    "teamwork",
		Category: "cat1",
		Examples: []codebook.Example{{Text: "we worked together", Source: "chunk1"}},
	}
	teamwork.PushDefinition("Working jointly toward a shared goal.")
	require.NoError(t, cb.Add(teamwork))
	require.NoError(t, cb.Add(&codebook.Code{ID: "b", Label: "weather"}))
	cb.Categories["cat1"].AddMembers("a")

	path := filepath.Join(t.TempDir(), "codebook.md")
	require.NoError(t, export.WriteMarkdown(path, cb))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	md := string(data)

	assert.Contains(t, md, "## Collaboration")
	assert.Contains(t, md, "### teamwork")
	assert.Contains(t, md, "Working jointly toward a shared goal.")
	assert.Contains(t, md, "> we worked together")
	assert.Contains(t, md, "## Uncategorized")
	assert.Contains(t, md, "### weather")
	assert.Less(t, strings.Index(md, "## Collaboration"), strings.Index(md, "## Uncategorized"),
		"uncategorized codes come last")
}
