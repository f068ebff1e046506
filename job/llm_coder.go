package job

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/quiltlab/quilt/cache"
	"github.com/quiltlab/quilt/codebook"
	"github.com/quiltlab/quilt/errors"
	"github.com/quiltlab/quilt/llm"
	"github.com/quiltlab/quilt/loader"
)

const (
	defaultChunkSize  = 20
	codingTemperature = 0.2
)

// LLMCoder codes a dataset with a language model, one chunk of messages
// at a time, producing one small codebook per chunk. Chunk results are
// cached by content, so re-running a partially coded dataset only sends
// the remaining chunks to the model.
type LLMCoder struct {
	Model llm.Model
	Store cache.Store
	// ChunkSize is the number of messages coded per model call.
	// Zero means 20.
	ChunkSize int
	Logger    *zap.SugaredLogger
}

// codedEntry is the shape the model is asked to return, one per code.
type codedEntry struct {
	Label    string   `json:"label"`
	Quotes   []string `json:"quotes"`
	Category string   `json:"category,omitempty"`
}

// Code implements Coder.
func (c *LLMCoder) Code(ctx context.Context, dataset *loader.Dataset, run codebook.RunContext) ([]*codebook.Codebook, error) {
	if c.Model == nil {
		return nil, errors.NewConfigurationError("coder requires a language model")
	}
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	size := c.ChunkSize
	if size <= 0 {
		size = defaultChunkSize
	}

	var books []*codebook.Codebook
	for start := 0; start < len(dataset.Messages); start += size {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := start + size
		if end > len(dataset.Messages) {
			end = len(dataset.Messages)
		}
		chunk := dataset.Messages[start:end]

		cb, err := c.codeChunk(ctx, dataset.Name, chunk, run)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to code messages %d-%d of %s", start, end-1, dataset.Name)
		}
		logger.Debugw("chunk coded",
			"dataset", dataset.Name,
			"messages", len(chunk),
			"codes", len(cb.Codes))
		books = append(books, cb)
	}
	return books, nil
}

func (c *LLMCoder) codeChunk(ctx context.Context, source string, chunk []loader.Message, run codebook.RunContext) (*codebook.Codebook, error) {
	produce := func() ([]codedEntry, error) {
		response, err := c.Model.Complete(ctx, codingPrompt(chunk), codingTemperature)
		if err != nil {
			return nil, err
		}
		entries, err := parseCodedEntries(response)
		if err != nil {
			return nil, errors.Wrap(err, "model returned unparsable codes")
		}
		return entries, nil
	}

	var entries []codedEntry
	var err error
	if c.Store != nil {
		texts := make([]string, len(chunk))
		for i, m := range chunk {
			texts[i] = m.Text
		}
		key := run.CacheKey("coding", cache.Hash(source, texts)[:16])
		hash := cache.Hash(texts, c.Model.Name())
		entries, err = cache.WithCache(c.Store, key, hash, produce)
	} else {
		entries, err = produce()
	}
	if err != nil {
		return nil, err
	}

	cb := codebook.New()
	for i, entry := range entries {
		if strings.TrimSpace(entry.Label) == "" {
			continue
		}
		code := &codebook.Code{
			ID:     "c" + strconv.Itoa(i),
			Label:  strings.TrimSpace(entry.Label),
			Owners: []string{source},
		}
		for _, quote := range entry.Quotes {
			code.Examples = append(code.Examples, codebook.Example{Text: quote, Source: source})
		}
		if err := cb.Add(code); err != nil {
			return nil, err
		}
		if name := strings.TrimSpace(entry.Category); name != "" {
			catID := "cat:" + strings.ToLower(name)
			if _, ok := cb.Categories[catID]; !ok {
				if err := cb.AddCategory(&codebook.Category{ID: catID, Name: name}); err != nil {
					return nil, err
				}
			}
			code.Category = catID
			cb.Categories[catID].AddMembers(code.ID)
		}
	}
	return cb, nil
}

func codingPrompt(chunk []loader.Message) string {
	var sb strings.Builder
	sb.WriteString("You are performing qualitative coding. Read the messages below and ")
	sb.WriteString("identify the distinct concepts they express. Respond with a JSON array ")
	sb.WriteString("only, one object per concept: ")
	sb.WriteString(`{"label": "short code label", "quotes": ["supporting quote", ...], "category": "optional broader theme"}`)
	sb.WriteString("\n\nMessages:\n")
	for _, m := range chunk {
		fmt.Fprintf(&sb, "- %s\n", m.Text)
	}
	return sb.String()
}

// parseCodedEntries tolerates models that wrap the JSON array in prose or
// a markdown fence.
func parseCodedEntries(response string) ([]codedEntry, error) {
	start := strings.Index(response, "[")
	end := strings.LastIndex(response, "]")
	if start < 0 || end <= start {
		return nil, errors.Newf("no JSON array in response %q", truncate(response, 120))
	}
	var entries []codedEntry
	if err := json.Unmarshal([]byte(response[start:end+1]), &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
