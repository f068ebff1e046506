// Package loader reads codebooks and datasets from disk. Format
// converters for proprietary exports live outside this repository; the
// loader handles the JSON interchange format and plain text.
package loader

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/quiltlab/quilt/codebook"
	"github.com/quiltlab/quilt/errors"
)

// LoadCodebooks loads one codebook per JSON file. path may be a single
// file or a directory, in which case every *.json inside is loaded in
// name order. Names are the file base names without extension.
func LoadCodebooks(path string) ([]*codebook.Codebook, []string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to stat %s", path)
	}

	var files []string
	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "failed to read directory %s", path)
		}
		for _, entry := range entries {
			if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".json") {
				files = append(files, filepath.Join(path, entry.Name()))
			}
		}
		sort.Strings(files)
		if len(files) == 0 {
			return nil, nil, errors.Wrapf(errors.ErrNotFound, "no codebook files in %s", path)
		}
	} else {
		files = []string{path}
	}

	books := make([]*codebook.Codebook, 0, len(files))
	names := make([]string, 0, len(files))
	for _, file := range files {
		cb, err := codebook.Load(file)
		if err != nil {
			return nil, nil, err
		}
		books = append(books, cb)
		names = append(names, strings.TrimSuffix(filepath.Base(file), ".json"))
	}
	return books, names, nil
}

// Message is one unit of raw text to be coded.
type Message struct {
	ID     string `json:"id"`
	Author string `json:"author,omitempty"`
	Text   string `json:"text"`
}

// Dataset is a named sequence of messages.
type Dataset struct {
	Name     string    `json:"name"`
	Messages []Message `json:"messages"`
}

// LoadDataset reads a dataset from path. A *.json file must hold either a
// Dataset object or a bare message array; anything else is treated as
// plain text, one message per non-empty line.
func LoadDataset(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read dataset %s", path)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	if strings.HasSuffix(path, ".json") {
		var ds Dataset
		if err := json.Unmarshal(data, &ds); err == nil && len(ds.Messages) > 0 {
			if ds.Name == "" {
				ds.Name = name
			}
			return &ds, nil
		}
		var messages []Message
		if err := json.Unmarshal(data, &messages); err != nil {
			return nil, errors.Wrapf(err, "failed to parse dataset %s", path)
		}
		return &Dataset{Name: name, Messages: messages}, nil
	}

	ds := &Dataset{Name: name}
	for i, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		ds.Messages = append(ds.Messages, Message{
			ID:   name + ":" + strconv.Itoa(i),
			Text: line,
		})
	}
	if len(ds.Messages) == 0 {
		return nil, errors.Wrapf(errors.ErrNotFound, "dataset %s is empty", path)
	}
	return ds, nil
}
