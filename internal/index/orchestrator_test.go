package index

import (
	"context"
	"crypto/sha256"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/falconeye/falconeye/internal/checksum"
	"github.com/falconeye/falconeye/internal/config"
	"github.com/falconeye/falconeye/internal/registry"
	"github.com/falconeye/falconeye/internal/vectorstore"
)

// hashGateway embeds deterministically from content and counts embedded
// texts, so re-index tests can assert zero new embeddings.
type hashGateway struct {
	embedded atomic.Int64
}

func (g *hashGateway) embed(text string) []float32 {
	sum := sha256.Sum256([]byte(text))
	v := make([]float32, 8)
	for i := range v {
		v[i] = float32(sum[i]) / 255.0
	}
	return v
}

func (g *hashGateway) Embed(ctx context.Context, text string) ([]float32, error) {
	g.embedded.Add(1)
	return g.embed(text), nil
}

func (g *hashGateway) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	g.embedded.Add(int64(len(texts)))
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = g.embed(t)
	}
	return out, nil
}

func (g *hashGateway) AnalyzeCodeSecurity(ctx context.Context, contextText, systemPrompt string) (string, error) {
	return `{"reviews": []}`, nil
}

func (g *hashGateway) ValidateFindings(ctx context.Context, code, findingsJSON, contextText string) (string, error) {
	return `{"reviews": []}`, nil
}

func (g *hashGateway) CountTokens(text string) int          { return len(text) / 4 }
func (g *hashGateway) HealthCheck(ctx context.Context) bool { return true }
func (g *hashGateway) Dimensions() int                      { return 8 }
func (g *hashGateway) Close() error                         { return nil }

type testEnv struct {
	orch    *Orchestrator
	reg     *registry.Registry
	vectors *vectorstore.Store
	gateway *hashGateway
	root    string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	stateDir := t.TempDir()

	cfg := config.NewConfig()
	cfg.Chunking.DefaultSize = 10
	cfg.Chunking.DefaultOverlap = 3

	reg, err := registry.Open(filepath.Join(stateDir, "registry", "index_registry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })

	vectors := vectorstore.New(filepath.Join(stateDir, "vectors"), "falconeye", true)
	metadata := vectorstore.NewMetadataStore(filepath.Join(stateDir, "metadata"), "falconeye_metadata", true)
	gw := &hashGateway{}

	return &testEnv{
		orch:    NewOrchestrator(cfg, reg, vectors, metadata, gw),
		reg:     reg,
		vectors: vectors,
		gateway: gw,
		root:    t.TempDir(),
	}
}

func (e *testEnv) write(t *testing.T, rel, content string) {
	t.Helper()
	path := filepath.Join(e.root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestFirstTimeIndexing(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "a.py", "def f():\n    pass\n")
	env.write(t, "b.py", "import os\n")
	ctx := context.Background()

	result, err := env.orch.Run(ctx, Options{RootPath: env.root})
	require.NoError(t, err)

	assert.True(t, result.FirstTime)
	assert.Equal(t, "python", result.Language)
	assert.Equal(t, 2, result.TotalFiles)
	assert.Equal(t, 2, result.FilesProcessed)
	assert.Equal(t, 0, result.FilesSkipped)

	project, err := env.reg.GetProject(ctx, result.ProjectID)
	require.NoError(t, err)
	require.NotNil(t, project)
	assert.Equal(t, 2, project.TotalFiles)

	files, err := env.reg.GetFilesByStatus(ctx, result.ProjectID, checksum.StatusActive)
	require.NoError(t, err)
	assert.Len(t, files, 2)

	count, err := env.vectors.Count(env.vectors.CollectionName(result.ProjectID, vectorstore.KindCode))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, count, 2)
}

func TestUnchangedReindexEmbedsNothing(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "a.py", "def f():\n    pass\n")
	env.write(t, "b.py", "import os\n")
	ctx := context.Background()

	first, err := env.orch.Run(ctx, Options{RootPath: env.root})
	require.NoError(t, err)

	firstProject, err := env.reg.GetProject(ctx, first.ProjectID)
	require.NoError(t, err)

	embedsAfterFirst := env.gateway.embedded.Load()
	countBefore, err := env.vectors.Count(env.vectors.CollectionName(first.ProjectID, vectorstore.KindCode))
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	second, err := env.orch.Run(ctx, Options{RootPath: env.root})
	require.NoError(t, err)

	assert.False(t, second.FirstTime)
	assert.Equal(t, 0, second.FilesProcessed)
	assert.Equal(t, 2, second.FilesSkipped)
	assert.Equal(t, embedsAfterFirst, env.gateway.embedded.Load(), "no new embeddings on unchanged re-index")

	countAfter, err := env.vectors.Count(env.vectors.CollectionName(first.ProjectID, vectorstore.KindCode))
	require.NoError(t, err)
	assert.Equal(t, countBefore, countAfter)

	secondProject, err := env.reg.GetProject(ctx, second.ProjectID)
	require.NoError(t, err)
	assert.True(t, secondProject.UpdatedAt.After(firstProject.UpdatedAt) ||
		secondProject.UpdatedAt.Equal(firstProject.UpdatedAt))
	assert.False(t, secondProject.UpdatedAt.Before(firstProject.UpdatedAt))
}

func TestModifiedFileReprocessedAlone(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "a.py", "def f():\n    pass\n")
	env.write(t, "b.py", "import os\n")
	ctx := context.Background()

	_, err := env.orch.Run(ctx, Options{RootPath: env.root})
	require.NoError(t, err)

	// Rewrite a.py with a future mtime so the quick check notices.
	env.write(t, "a.py", "def f():\n    return 1\n")
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(filepath.Join(env.root, "a.py"), future, future))

	second, err := env.orch.Run(ctx, Options{RootPath: env.root})
	require.NoError(t, err)
	assert.Equal(t, 1, second.FilesProcessed)
	assert.Equal(t, 1, second.FilesSkipped)
}

func TestDeletedFileMarkedThenCleaned(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "a.py", "def f():\n    pass\n")
	env.write(t, "b.py", "import os\n")
	ctx := context.Background()

	first, err := env.orch.Run(ctx, Options{RootPath: env.root})
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(env.root, "b.py")))

	second, err := env.orch.Run(ctx, Options{RootPath: env.root})
	require.NoError(t, err)
	assert.Equal(t, 1, second.FilesDeleted)

	meta, err := env.reg.GetFile(ctx, first.ProjectID, "b.py")
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, checksum.StatusDeleted, meta.Status)

	removed, err := env.orch.Cleanup(ctx, first.ProjectID)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	stats, err := env.reg.GetStats(ctx, first.ProjectID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 0, stats.Deleted)
}

func TestForceReindexProcessesEverything(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "a.py", "def f():\n    pass\n")
	ctx := context.Background()

	_, err := env.orch.Run(ctx, Options{RootPath: env.root})
	require.NoError(t, err)

	second, err := env.orch.Run(ctx, Options{RootPath: env.root, ForceReindex: true})
	require.NoError(t, err)
	assert.Equal(t, 1, second.FilesProcessed)
	assert.Equal(t, 0, second.FilesSkipped)
}

func TestDocumentsIndexedWhenEnabled(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "a.py", "def f():\n    pass\n")
	env.write(t, "README.md", "# Project\n\nThis project handles authentication.\n")
	ctx := context.Background()

	result, err := env.orch.Run(ctx, Options{RootPath: env.root, IncludeDocuments: true})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Documents)

	count, err := env.vectors.Count(env.vectors.CollectionName(result.ProjectID, vectorstore.KindDocuments))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, count, 1)
}

func TestProjectIsolationAcrossProjects(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "a.py", "def alpha():\n    pass\n")
	ctx := context.Background()

	otherRoot := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(otherRoot, "b.py"), []byte("def beta():\n    pass\n"), 0o644))

	ra, err := env.orch.Run(ctx, Options{RootPath: env.root})
	require.NoError(t, err)
	rb, err := env.orch.Run(ctx, Options{RootPath: otherRoot})
	require.NoError(t, err)
	require.NotEqual(t, ra.ProjectID, rb.ProjectID)

	query, err := env.gateway.Embed(ctx, "def beta():\n    pass\n")
	require.NoError(t, err)
	results, err := env.vectors.Search(ctx, env.vectors.CollectionName(ra.ProjectID, vectorstore.KindCode), query, 10, false)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "b.py", r.Metadata["file_path"],
			"project A's collection must not contain project B's chunks")
	}
}

func TestSkippedUndecodableFile(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "a.py", "def f():\n    pass\n")
	env.write(t, "bad.py", string([]byte{0xff, 0xfe, 0x00, 0x41}))
	ctx := context.Background()

	result, err := env.orch.Run(ctx, Options{RootPath: env.root})
	require.NoError(t, err)
	assert.Equal(t, 1, result.FilesProcessed)
	assert.Equal(t, 1, result.FilesFailed)
}

func TestInvalidRootRejected(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.orch.Run(context.Background(), Options{RootPath: "/does/not/exist"})
	require.Error(t, err)
}

func TestDeleteProjectCascades(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "a.py", "def f():\n    pass\n")
	ctx := context.Background()

	result, err := env.orch.Run(ctx, Options{RootPath: env.root})
	require.NoError(t, err)

	require.NoError(t, env.orch.DeleteProject(ctx, result.ProjectID))

	project, err := env.reg.GetProject(ctx, result.ProjectID)
	require.NoError(t, err)
	assert.Nil(t, project)
	assert.False(t, env.vectors.Exists(env.vectors.CollectionName(result.ProjectID, vectorstore.KindCode)))
}

func TestAnnotateChunksFromStructuralMetadata(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "a.py", "import os\n\ndef handler(request):\n    return os.system(request)\n")
	ctx := context.Background()

	result, err := env.orch.Run(ctx, Options{RootPath: env.root})
	require.NoError(t, err)

	query, err := env.gateway.Embed(ctx, "import os\n\ndef handler(request):\n    return os.system(request)\n")
	require.NoError(t, err)
	results, err := env.vectors.Search(ctx, env.vectors.CollectionName(result.ProjectID, vectorstore.KindCode), query, 1, false)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "true", results[0].Metadata["has_functions"])
	assert.Equal(t, "true", results[0].Metadata["has_imports"])
	assert.Contains(t, results[0].Metadata["function_names"], "handler")
}
