package job_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quiltlab/quilt/cache"
	"github.com/quiltlab/quilt/codebook"
	"github.com/quiltlab/quilt/consolidate"
	"github.com/quiltlab/quilt/errors"
	"github.com/quiltlab/quilt/internal/testutil"
	"github.com/quiltlab/quilt/job"
	"github.com/quiltlab/quilt/loader"
)

var testRun = codebook.RunContext{RunID: "test", LLMModel: "stub-model", EmbeddingModel: "stub-embedding"}

// scriptedCoder returns fixed per-chunk codebooks, or fails on demand.
type scriptedCoder struct {
	mu       sync.Mutex
	labels   []string
	failFor  string
	datasets []string
}

func (c *scriptedCoder) Code(ctx context.Context, dataset *loader.Dataset, run codebook.RunContext) ([]*codebook.Codebook, error) {
	c.mu.Lock()
	c.datasets = append(c.datasets, dataset.Name)
	c.mu.Unlock()

	if dataset.Name == c.failFor {
		return nil, errors.New("scripted failure")
	}
	var books []*codebook.Codebook
	for _, label := range c.labels {
		cb := codebook.New()
		if err := cb.Add(&codebook.Code{ID: "c", Label: label, Owners: []string{dataset.Name}}); err != nil {
			return nil, err
		}
		books = append(books, cb)
	}
	return books, nil
}

func writeDataset(t *testing.T, dir, name string, lines string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(lines), 0o644))
	return path
}

func simplePipeline() *consolidate.Pipeline {
	return consolidate.NewPipeline(nil, &consolidate.SimpleMerger{})
}

func TestRunner_ExecutesJobsAndPersists(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out")
	dataset := writeDataset(t, dir, "interviews.txt", "we worked together\nhomework was hard\n")

	coder := &scriptedCoder{labels: []string{"teamwork", "Teamwork", "homework"}}
	jobs := []*job.Job{{
		Name:        "interviews",
		DatasetPath: dataset,
		Coder:       coder,
		Pipeline:    simplePipeline(),
		Run:         testRun,
		OutputDir:   out,
	}}

	runner := job.NewRunner(job.RunnerConfig{Workers: 2}, nil)
	results := runner.Run(context.Background(), jobs)

	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	assert.Len(t, results[0].Codebook.Codes, 2, "near-identical chunk codes merge")

	saved, err := codebook.Load(filepath.Join(out, "interviews.json"))
	require.NoError(t, err)
	assert.Len(t, saved.Codes, 2)
	_, err = os.Stat(filepath.Join(out, "interviews.md"))
	require.NoError(t, err)
}

func TestRunner_FailureIsolation(t *testing.T) {
	dir := t.TempDir()
	good := writeDataset(t, dir, "good.txt", "line one\n")
	bad := writeDataset(t, dir, "bad.txt", "line one\n")

	coder := &scriptedCoder{labels: []string{"teamwork"}, failFor: "bad"}
	jobs := []*job.Job{
		{Name: "good", DatasetPath: good, Coder: coder, Pipeline: simplePipeline(), Run: testRun},
		{Name: "bad", DatasetPath: bad, Coder: coder, Pipeline: simplePipeline(), Run: testRun},
		{Name: "missing", DatasetPath: filepath.Join(dir, "absent.txt"), Coder: coder, Pipeline: simplePipeline(), Run: testRun},
	}

	runner := job.NewRunner(job.RunnerConfig{Workers: 2}, nil)
	results := runner.Run(context.Background(), jobs)

	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err, "healthy jobs are unaffected by failing ones")
	assert.NotNil(t, results[0].Codebook)
	assert.Error(t, results[1].Err)
	assert.Error(t, results[2].Err)
	assert.Equal(t, "good", results[0].Name)
}

func TestRunner_BoundedConcurrency(t *testing.T) {
	dir := t.TempDir()

	var active, peak int32
	coder := coderFunc(func(ctx context.Context, dataset *loader.Dataset, run codebook.RunContext) ([]*codebook.Codebook, error) {
		now := atomic.AddInt32(&active, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if now <= old || atomic.CompareAndSwapInt32(&peak, old, now) {
				break
			}
		}
		defer atomic.AddInt32(&active, -1)
		cb := codebook.New()
		if err := cb.Add(&codebook.Code{ID: "c", Label: "x"}); err != nil {
			return nil, err
		}
		return []*codebook.Codebook{cb}, nil
	})

	var jobs []*job.Job
	for i := 0; i < 6; i++ {
		name := string(rune('a' + i))
		jobs = append(jobs, &job.Job{
			Name:        name,
			DatasetPath: writeDataset(t, dir, name+".txt", "line\n"),
			Coder:       coder,
			Pipeline:    simplePipeline(),
			Run:         testRun,
		})
	}

	runner := job.NewRunner(job.RunnerConfig{Workers: 2}, nil)
	results := runner.Run(context.Background(), jobs)

	for _, res := range results {
		require.NoError(t, res.Err)
	}
	assert.LessOrEqual(t, peak, int32(2), "no more than Workers jobs run at once")
}

func TestRunner_Cancellation(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	coder := &scriptedCoder{labels: []string{"teamwork"}}
	jobs := []*job.Job{{
		Name:        "a",
		DatasetPath: writeDataset(t, dir, "a.txt", "line\n"),
		Coder:       coder,
		Pipeline:    simplePipeline(),
		Run:         testRun,
	}}

	results := job.NewRunner(job.RunnerConfig{Workers: 1}, nil).Run(ctx, jobs)
	require.Len(t, results, 1)
	assert.Error(t, results[0].Err)
}

// coderFunc adapts a function to the Coder interface.
type coderFunc func(ctx context.Context, dataset *loader.Dataset, run codebook.RunContext) ([]*codebook.Codebook, error)

func (f coderFunc) Code(ctx context.Context, dataset *loader.Dataset, run codebook.RunContext) ([]*codebook.Codebook, error) {
	return f(ctx, dataset, run)
}

func TestLLMCoder_ParsesAndChunks(t *testing.T) {
	model := &testutil.StubModel{
		Default: "Here you go:\n" +
			`[{"label": "teamwork", "quotes": ["we worked together"], "category": "Collaboration"},` +
			`{"label": "", "quotes": []}]`,
	}
	coder := &job.LLMCoder{Model: model, ChunkSize: 2}

	dataset := &loader.Dataset{Name: "interviews", Messages: []loader.Message{
		{ID: "1", Text: "we worked together"},
		{ID: "2", Text: "homework was hard"},
		{ID: "3", Text: "great collaboration"},
	}}

	books, err := coder.Code(context.Background(), dataset, testRun)
	require.NoError(t, err)

	require.Len(t, books, 2, "three messages at chunk size two is two chunks")
	assert.Len(t, model.Calls, 2)
	require.Len(t, books[0].Codes, 1, "blank labels are dropped")
	for _, cb := range books {
		require.NoError(t, cb.Validate())
		for _, code := range cb.Codes {
			assert.Equal(t, "teamwork", code.Label)
			assert.Equal(t, "cat:collaboration", code.Category)
			assert.Equal(t, "Collaboration", cb.Categories[code.Category].Name)
			assert.Equal(t, []string{"interviews"}, code.Owners)
			require.Len(t, code.Examples, 1)
			assert.Equal(t, "interviews", code.Examples[0].Source)
		}
	}
}

func TestLLMCoder_CachesChunks(t *testing.T) {
	store, err := cache.NewFileStore(t.TempDir())
	require.NoError(t, err)
	model := &testutil.StubModel{
		Default: `[{"label": "teamwork", "quotes": ["q"]}]`,
	}
	coder := &job.LLMCoder{Model: model, Store: store, ChunkSize: 2}

	dataset := &loader.Dataset{Name: "interviews", Messages: []loader.Message{
		{ID: "1", Text: "we worked together"},
		{ID: "2", Text: "homework was hard"},
	}}

	_, err = coder.Code(context.Background(), dataset, testRun)
	require.NoError(t, err)
	require.Len(t, model.Calls, 1)

	_, err = coder.Code(context.Background(), dataset, testRun)
	require.NoError(t, err)
	assert.Len(t, model.Calls, 1, "unchanged chunks are served from cache")
}

func TestLLMCoder_UnparsableResponse(t *testing.T) {
	model := &testutil.StubModel{Default: "I cannot answer that."}
	coder := &job.LLMCoder{Model: model}

	dataset := &loader.Dataset{Name: "x", Messages: []loader.Message{{ID: "1", Text: "line"}}}
	_, err := coder.Code(context.Background(), dataset, testRun)
	assert.Error(t, err)
}
