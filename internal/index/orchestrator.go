// Package index drives the full indexing pipeline for a codebase:
// identify the project, detect its language, diff the tree against the
// registry, and push changed files through AST analysis, chunking,
// embedding, and vector storage.
package index

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/falconeye/falconeye/internal/ast"
	"github.com/falconeye/falconeye/internal/checksum"
	"github.com/falconeye/falconeye/internal/chunk"
	"github.com/falconeye/falconeye/internal/config"
	ferrors "github.com/falconeye/falconeye/internal/errors"
	"github.com/falconeye/falconeye/internal/llmgateway"
	"github.com/falconeye/falconeye/internal/logging"
	"github.com/falconeye/falconeye/internal/projectid"
	"github.com/falconeye/falconeye/internal/registry"
	"github.com/falconeye/falconeye/internal/vectorstore"
)

// Options configures one indexing run.
type Options struct {
	RootPath string
	// Language skips detection when set.
	Language string
	// ProjectID overrides derived project identity (for monorepos).
	ProjectID        string
	ExcludedPatterns []string
	ForceReindex     bool
	IncludeDocuments bool
	// UseChecksum routes quick-check mismatches through the exact
	// SHA-256 comparison before re-processing.
	UseChecksum bool
	// Workers bounds per-file parallelism; 0 uses the configured default.
	Workers int
}

// Result summarizes a completed run.
type Result struct {
	ProjectID      string
	ProjectName    string
	Language       string
	FirstTime      bool
	TotalFiles     int
	FilesProcessed int
	FilesSkipped   int
	FilesFailed    int
	FilesDeleted   int
	Documents      int
	TotalChunks    int
}

// Orchestrator owns the indexing pipeline's collaborators.
type Orchestrator struct {
	cfg      *config.Config
	registry *registry.Registry
	vectors  *vectorstore.Store
	metadata *vectorstore.MetadataStore
	gateway  llmgateway.Gateway
	analyzer *ast.Analyzer
	logger   *slog.Logger
}

// NewOrchestrator wires the pipeline.
func NewOrchestrator(cfg *config.Config, reg *registry.Registry, vectors *vectorstore.Store, metadata *vectorstore.MetadataStore, gateway llmgateway.Gateway) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		registry: reg,
		vectors:  vectors,
		metadata: metadata,
		gateway:  gateway,
		analyzer: ast.NewAnalyzer(),
		logger:   slog.Default(),
	}
}

// Run executes one indexing pass over opts.RootPath.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*Result, error) {
	root, err := filepath.Abs(opts.RootPath)
	if err != nil {
		return nil, ferrors.New(ferrors.ErrCodeInvalidPath, "cannot resolve root path", err)
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return nil, ferrors.New(ferrors.ErrCodeInvalidPath, "root path is not a directory", err).
			WithDetail("path", root)
	}

	identity, err := projectid.Identify(root, opts.ProjectID)
	if err != nil {
		return nil, err
	}

	logger := logging.FromCtx(ctx, o.logger).With(
		slog.String("project_id", identity.ProjectID))

	language := opts.Language
	if language == "" {
		language, err = DetectLanguage(root, o.cfg.Languages.Enabled)
		if err != nil {
			return nil, err
		}
	}
	logger.Info("indexing started",
		slog.String("root", root),
		slog.String("language", language))

	prior, err := o.registry.GetProject(ctx, identity.ProjectID)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.ErrCodeRegistryFailed, err)
	}
	firstTime := prior == nil

	excluded := append([]string{}, o.cfg.FileDiscovery.DefaultExclusions...)
	excluded = append(excluded, opts.ExcludedPatterns...)
	files, err := DiscoverFiles(root, language, excluded)
	if err != nil {
		return nil, err
	}

	plan, err := o.plan(ctx, identity.ProjectID, root, files, firstTime, opts)
	if err != nil {
		return nil, err
	}
	logger.Info("plan computed",
		slog.Int("total", len(files)),
		slog.Int("to_process", len(plan.process)),
		slog.Int("unchanged", len(plan.unchanged)),
		slog.Int("deleted", len(plan.deleted)))

	result := &Result{
		ProjectID:    identity.ProjectID,
		ProjectName:  identity.ProjectName,
		Language:     language,
		FirstTime:    firstTime,
		TotalFiles:   len(files),
		FilesSkipped: len(plan.unchanged),
	}

	commit := ""
	if identity.ProjectType == projectid.ProjectTypeGit {
		commit = projectid.CurrentCommit(root)
	}

	codebase := &chunk.Codebase{RootPath: root, Language: language, ExcludedPatterns: excluded}
	processed, failed, err := o.processFiles(ctx, processInput{
		projectID: identity.ProjectID,
		root:      root,
		language:  language,
		commit:    commit,
		files:     plan.process,
		workers:   opts.Workers,
		codebase:  codebase,
		logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result.FilesProcessed = len(processed)
	result.FilesFailed = failed
	for _, meta := range processed {
		result.TotalChunks += meta.ChunkCount
	}

	if opts.IncludeDocuments {
		result.Documents = o.processDocuments(ctx, identity.ProjectID, root, excluded, logger)
	}

	if !firstTime && !opts.ForceReindex {
		for _, relPath := range plan.deleted {
			if err := o.registry.MarkFileDeleted(ctx, identity.ProjectID, relPath); err != nil {
				return nil, ferrors.Wrap(ferrors.ErrCodeRegistryFailed, err)
			}
		}
		result.FilesDeleted = len(plan.deleted)
	}

	project := &registry.ProjectMetadata{
		ProjectID:         identity.ProjectID,
		ProjectName:       identity.ProjectName,
		ProjectRoot:       root,
		ProjectType:       identity.ProjectType,
		GitRemoteURL:      identity.RemoteURL,
		LastIndexedCommit: commit,
		TotalFiles:        len(files),
		TotalChunks:       result.TotalChunks,
		Languages:         []string{language},
	}
	if prior != nil {
		project.CreatedAt = prior.CreatedAt
		project.LastFullScan = prior.LastFullScan
	}
	if firstTime || opts.ForceReindex {
		project.LastFullScan = time.Now().UTC()
	}
	if err := o.registry.SaveProject(ctx, project); err != nil {
		return nil, err
	}

	logger.Info("indexing complete",
		slog.Int("processed", result.FilesProcessed),
		slog.Int("skipped", result.FilesSkipped),
		slog.Int("failed", result.FilesFailed),
		slog.Int("documents", result.Documents),
		slog.Int("chunks", result.TotalChunks),
		slog.Int("total_lines", codebase.TotalLines()))
	return result, nil
}

// runPlan partitions the current tree against the registry.
type runPlan struct {
	process   []string // absolute paths to (re)process
	unchanged []string
	deleted   []string // relative paths gone from the tree
}

func (o *Orchestrator) plan(ctx context.Context, projectID, root string, files []string, firstTime bool, opts Options) (*runPlan, error) {
	if opts.ForceReindex || firstTime {
		return &runPlan{process: files}, nil
	}

	cachedByRel, err := o.registry.MetadataMap(ctx, projectID)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.ErrCodeRegistryFailed, err)
	}

	// Key the cache by each file's absolute location under the current
	// root, so a relocated project diffs by content rather than path.
	cached := make(map[string]*checksum.FileMetadata, len(cachedByRel))
	currentSet := make(map[string]bool, len(files))
	for rel, meta := range cachedByRel {
		if meta.Status == checksum.StatusDeleted {
			continue
		}
		cached[filepath.Join(root, rel)] = meta
	}

	changed, unchanged := checksum.Partition(files, cached, opts.UseChecksum)
	for _, f := range files {
		currentSet[f] = true
	}

	var deleted []string
	for rel, meta := range cachedByRel {
		if meta.Status == checksum.StatusDeleted {
			continue
		}
		if !currentSet[filepath.Join(root, rel)] {
			deleted = append(deleted, rel)
		}
	}

	return &runPlan{process: changed, unchanged: unchanged, deleted: deleted}, nil
}

type processInput struct {
	projectID string
	root      string
	language  string
	commit    string
	files     []string
	workers   int
	codebase  *chunk.Codebase
	logger    *slog.Logger
}

// processFiles runs the per-file pipeline with bounded parallelism.
// Individual file failures are isolated; registry and vector-store
// failures abort the run via the group error.
func (o *Orchestrator) processFiles(ctx context.Context, in processInput) ([]*fileResult, int, error) {
	workers := in.workers
	if workers <= 0 {
		workers = config.DefaultIndexWorkers()
	}

	chunker, err := chunk.NewCodeChunker(
		o.cfg.Chunking.DefaultSize, o.cfg.Chunking.DefaultOverlap, o.gateway.CountTokens)
	if err != nil {
		return nil, 0, err
	}

	g, gctx := errgroup.WithContext(ctx)
	processed := make([]*fileResult, 0, len(in.files))
	failed := 0
	var mu sync.Mutex
	g.SetLimit(workers)

	collection := o.vectors.CollectionName(in.projectID, vectorstore.KindCode)

	for _, path := range in.files {
		path := path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			meta, err := o.processFile(gctx, in, chunker, collection, path)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if ferrors.IsFatal(err) {
					return err
				}
				failed++
				in.logger.Warn("file processing failed",
					slog.String("file_path", path),
					slog.String("error", err.Error()))
				return nil
			}
			processed = append(processed, meta)
			if cf, ok := meta.codeFile(); ok {
				in.codebase.AddFile(cf)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		in.logger.Error("indexing aborted", slog.String("error", err.Error()))
		return nil, 0, err
	}
	return processed, failed, nil
}

// fileResult couples the persisted metadata with the in-memory CodeFile.
type fileResult struct {
	*checksum.FileMetadata
	file *chunk.CodeFile
}

func (r *fileResult) codeFile() (chunk.CodeFile, bool) {
	if r.file == nil {
		return chunk.CodeFile{}, false
	}
	return *r.file, true
}

// processFile runs the pipeline for a single file: read, analyze, chunk,
// embed, store, snapshot.
func (o *Orchestrator) processFile(ctx context.Context, in processInput, chunker *chunk.CodeChunker, collection, path string) (*fileResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ferrors.IOError("failed to read file", err)
	}
	if !utf8.Valid(data) {
		return nil, ferrors.New(ferrors.ErrCodeFileNotUTF8, "file is not valid UTF-8", nil)
	}
	content := string(data)

	relPath, err := filepath.Rel(in.root, path)
	if err != nil {
		relPath = path
	}
	relPath = filepath.ToSlash(relPath)

	codeFile := &chunk.CodeFile{
		Path:      path,
		RelPath:   relPath,
		Content:   content,
		Language:  in.language,
		Size:      int64(len(data)),
		LineCount: len(chunk.SplitLines(content)),
	}

	// Structural metadata; a parse failure degrades to an empty result.
	structural, err := o.analyzer.AnalyzeFile(ctx, filepath.Ext(path), data)
	if err != nil {
		in.logger.Warn("structural analysis failed",
			slog.String("file_path", relPath),
			slog.String("error", err.Error()))
		structural = &ast.StructuralMetadata{Language: ast.UnknownLanguage}
	}
	if err := o.metadata.Put(in.projectID, relPath, structural); err != nil {
		return nil, ferrors.IOError("failed to persist structural metadata", err)
	}

	chunks := chunker.Chunk(content, relPath, in.language)
	annotateChunks(chunks, structural)

	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, ch := range chunks {
			texts[i] = ch.Content
		}
		embeddings, err := o.gateway.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, ferrors.New(ferrors.ErrCodeEmbeddingFailed, "batch embedding failed", err)
		}
		if len(embeddings) != len(chunks) {
			return nil, ferrors.New(ferrors.ErrCodeEmbeddingFailed, "embedding count mismatch", nil)
		}
		for i, ch := range chunks {
			ch.Embedding = embeddings[i]
		}
		if err := o.vectors.StoreCodeChunks(ctx, collection, chunks); err != nil {
			if ferrors.IsValidation(err) {
				return nil, err
			}
			return nil, ferrors.New(ferrors.ErrCodeIndexFailed, "failed to store chunks", err)
		}
	}

	meta, err := checksum.Snapshot(in.projectID, path, relPath, in.language, in.commit)
	if err != nil {
		return nil, ferrors.IOError("failed to snapshot file metadata", err)
	}
	meta.ChunkCount = len(chunks)
	meta.EmbeddingIDs = make([]string, len(chunks))
	for i, ch := range chunks {
		meta.EmbeddingIDs[i] = ch.ID
	}

	if err := o.registry.SaveFile(ctx, meta); err != nil {
		return nil, err
	}
	return &fileResult{FileMetadata: meta, file: codeFile}, nil
}

// annotateChunks marks each chunk with the functions and imports whose
// lines fall inside its span.
func annotateChunks(chunks []*chunk.CodeChunk, structural *ast.StructuralMetadata) {
	if structural == nil {
		return
	}
	for _, ch := range chunks {
		start, end := ch.Metadata.StartLine, ch.Metadata.EndLine
		for _, fn := range structural.Functions {
			if fn.Line >= start && fn.Line <= end {
				ch.Metadata.HasFunctions = true
				ch.Metadata.FunctionNames = append(ch.Metadata.FunctionNames, fn.Name)
			}
		}
		for _, imp := range structural.Imports {
			if imp.Line >= start && imp.Line <= end {
				ch.Metadata.HasImports = true
				break
			}
		}
	}
}

// processDocuments chunks, embeds, and stores the tree's documentation
// files. Per-document failures are logged and skipped.
func (o *Orchestrator) processDocuments(ctx context.Context, projectID, root string, excluded []string, logger *slog.Logger) int {
	docFiles, err := DiscoverDocuments(root, excluded)
	if err != nil {
		logger.Warn("document discovery failed", slog.String("error", err.Error()))
		return 0
	}

	chunker := chunk.NewDocumentChunker(o.cfg.Chunking.DocChunkSize)
	collection := o.vectors.CollectionName(projectID, vectorstore.KindDocuments)

	count := 0
	for _, path := range docFiles {
		if ctx.Err() != nil {
			return count
		}
		if err := o.processDocument(ctx, chunker, collection, root, path); err != nil {
			logger.Warn("document processing failed",
				slog.String("file_path", path),
				slog.String("error", err.Error()))
			continue
		}
		count++
	}
	return count
}

func (o *Orchestrator) processDocument(ctx context.Context, chunker *chunk.DocumentChunker, collection, root, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if !utf8.Valid(data) {
		return nil // binary masquerading as text; skip silently
	}
	content := string(data)
	if strings.TrimSpace(content) == "" {
		return nil
	}

	relPath, err := filepath.Rel(root, path)
	if err != nil {
		relPath = path
	}
	relPath = filepath.ToSlash(relPath)

	docType := chunk.ClassifyDocument(filepath.Base(path), relPath)
	meta := chunk.ExtractDocumentMetadata(relPath, content, docType)
	chunks := chunker.Chunk(content, meta)
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Content
	}
	embeddings, err := o.gateway.EmbedBatch(ctx, texts)
	if err != nil {
		return err
	}
	if len(embeddings) != len(chunks) {
		return ferrors.New(ferrors.ErrCodeEmbeddingFailed, "embedding count mismatch", nil)
	}
	for i, ch := range chunks {
		ch.Embedding = embeddings[i]
	}
	return o.vectors.StoreDocumentChunks(ctx, collection, chunks)
}

// Cleanup physically removes rows marked deleted, and their embeddings
// from the code collection.
func (o *Orchestrator) Cleanup(ctx context.Context, projectID string) (int, error) {
	removed, err := o.registry.Cleanup(ctx, projectID)
	if err != nil {
		return 0, err
	}
	if len(removed) == 0 {
		return 0, nil
	}

	collection := o.vectors.CollectionName(projectID, vectorstore.KindCode)
	var ids []string
	for _, meta := range removed {
		ids = append(ids, meta.EmbeddingIDs...)
		if err := o.metadata.Delete(projectID, meta.RelPath); err != nil {
			o.logger.Warn("failed to remove structural metadata",
				slog.String("file_path", meta.RelPath),
				slog.String("error", err.Error()))
		}
	}
	if err := o.vectors.DeleteIDs(ctx, collection, ids); err != nil {
		return 0, err
	}
	return len(removed), nil
}

// DeleteProject removes the project from the registry and drops every
// associated collection.
func (o *Orchestrator) DeleteProject(ctx context.Context, projectID string) error {
	if err := o.registry.DeleteProject(ctx, projectID); err != nil {
		return err
	}
	if err := o.metadata.DeleteAll(projectID); err != nil {
		return err
	}
	return o.vectors.DeleteAllForProject(projectID)
}
