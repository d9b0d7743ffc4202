package github

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/go-github/v81/github"

	"github.com/bull/telecom-rag/internal/corpus"
)

// FetchMetadataFile records where the raw corpus came from. It lives next
// to the index, not in the raw directory, so preprocessing never sees it.
const FetchMetadataFile = "fetch_metadata.json"

// FetchedDoc is a raw document downloaded from GitHub.
type FetchedDoc struct {
	Path    string // Relative path within the base directory
	Content []byte
	SHA     string // Git blob SHA
}

// FetchResult summarizes a FetchAll run.
type FetchResult struct {
	Repository string      `json:"repository"`
	BasePath   string      `json:"base_path"`
	Ref        string      `json:"ref"`
	CommitSHA  string      `json:"commit_sha"`
	FetchedAt  time.Time   `json:"fetched_at"`
	Files      []string    `json:"files"`
	Failed     []FailedDoc `json:"failed,omitempty"`
}

// FailedDoc is a document that could not be downloaded or written.
type FailedDoc struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Fetcher lists and downloads documents below a repository directory.
type Fetcher struct {
	client    *Client
	owner     string
	repo      string
	basePath  string
	ref       string
	supported func(name string) bool
	logger    *slog.Logger
}

// NewFetcher creates a fetcher. supported filters file names; nil accepts
// every file. An empty ref uses the default branch.
func NewFetcher(client *Client, owner, repo, basePath, ref string, supported func(string) bool, logger *slog.Logger) *Fetcher {
	if supported == nil {
		supported = func(string) bool { return true }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		client:    client,
		owner:     owner,
		repo:      repo,
		basePath:  basePath,
		ref:       ref,
		supported: supported,
		logger:    logger,
	}
}

func (f *Fetcher) getOptions() *github.RepositoryContentGetOptions {
	if f.ref == "" {
		return nil
	}
	return &github.RepositoryContentGetOptions{Ref: f.ref}
}

// ListDocs recursively lists supported files below the base path, sorted.
func (f *Fetcher) ListDocs(ctx context.Context) ([]string, error) {
	docs, err := f.listDocsRecursive(ctx, f.basePath, "")
	if err != nil {
		return nil, err
	}
	sort.Strings(docs)
	return docs, nil
}

func (f *Fetcher) listDocsRecursive(ctx context.Context, fullPath, relativePath string) ([]string, error) {
	var docs []string

	_, dirContents, _, err := f.client.Repositories.GetContents(ctx, f.owner, f.repo, fullPath, f.getOptions())
	if err != nil {
		return nil, fmt.Errorf("get contents of %s: %w", fullPath, err)
	}

	for _, item := range dirContents {
		name := item.GetName()
		if name == "" {
			continue
		}
		itemRelPath := path.Join(relativePath, name)

		switch item.GetType() {
		case "file":
			if f.supported(name) {
				docs = append(docs, itemRelPath)
			}
		case "dir":
			subDocs, err := f.listDocsRecursive(ctx, path.Join(fullPath, name), itemRelPath)
			if err != nil {
				return nil, err
			}
			docs = append(docs, subDocs...)
		}
	}

	return docs, nil
}

// FetchDoc downloads one file by its path relative to the base path. Files
// the contents API returns without a body (over 1 MB) are fetched through
// their download URL.
func (f *Fetcher) FetchDoc(ctx context.Context, relativePath string) (*FetchedDoc, error) {
	fullPath := path.Join(f.basePath, relativePath)

	body, meta, _, err := f.client.Repositories.DownloadContentsWithMeta(ctx, f.owner, f.repo, fullPath, f.getOptions())
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", fullPath, err)
	}
	defer body.Close()

	content, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read content of %s: %w", fullPath, err)
	}

	return &FetchedDoc{
		Path:    relativePath,
		Content: content,
		SHA:     meta.GetSHA(),
	}, nil
}

// GetLatestCommitSHA returns the most recent commit touching the base path.
func (f *Fetcher) GetLatestCommitSHA(ctx context.Context) (string, error) {
	opts := &github.CommitsListOptions{
		Path:        f.basePath,
		SHA:         f.ref,
		ListOptions: github.ListOptions{PerPage: 1},
	}
	commits, _, err := f.client.Repositories.ListCommits(ctx, f.owner, f.repo, opts)
	if err != nil {
		return "", fmt.Errorf("get latest commit: %w", err)
	}
	if len(commits) == 0 || commits[0].GetSHA() == "" {
		return "", fmt.Errorf("no commits found for path %s", f.basePath)
	}
	return commits[0].GetSHA(), nil
}

// FetchAll downloads every supported document into destDir, flattening
// directories to base names since the raw directory is read flat.
// Per-file failures are recorded and do not stop the run.
func (f *Fetcher) FetchAll(ctx context.Context, destDir string) (*FetchResult, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("create raw dir: %w", err)
	}

	result := &FetchResult{
		Repository: f.owner + "/" + f.repo,
		BasePath:   f.basePath,
		Ref:        f.ref,
		FetchedAt:  time.Now().UTC(),
	}

	sha, err := f.GetLatestCommitSHA(ctx)
	if err != nil {
		return nil, err
	}
	result.CommitSHA = sha

	paths, err := f.ListDocs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list docs: %w", err)
	}
	f.logger.Info("Found documents", "count", len(paths), "commit", sha)

	written := make(map[string]string, len(paths))
	for _, p := range paths {
		name := path.Base(p)
		if first, dup := written[name]; dup {
			f.logger.Warn("Skipping document with duplicate name", "path", p, "kept", first)
			result.Failed = append(result.Failed, FailedDoc{Path: p, Reason: "duplicate file name, kept " + first})
			continue
		}

		doc, err := f.FetchDoc(ctx, p)
		if err != nil {
			f.logger.Warn("Failed to fetch document", "path", p, "error", err)
			result.Failed = append(result.Failed, FailedDoc{Path: p, Reason: err.Error()})
			continue
		}
		if err := os.WriteFile(filepath.Join(destDir, name), doc.Content, 0o644); err != nil {
			f.logger.Warn("Failed to write document", "path", p, "error", err)
			result.Failed = append(result.Failed, FailedDoc{Path: p, Reason: err.Error()})
			continue
		}

		written[name] = p
		result.Files = append(result.Files, name)
		f.logger.Debug("Fetched document", "path", p, "bytes", len(doc.Content))
	}

	return result, nil
}

// WriteFetchMetadata saves r as FetchMetadataFile in dir.
func WriteFetchMetadata(dir string, r *FetchResult) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create metadata dir: %w", err)
	}
	return corpus.WriteJSON(filepath.Join(dir, FetchMetadataFile), r)
}

// ReadFetchMetadata loads FetchMetadataFile from dir.
func ReadFetchMetadata(dir string) (*FetchResult, error) {
	var r FetchResult
	if err := corpus.ReadJSON(filepath.Join(dir, FetchMetadataFile), &r); err != nil {
		return nil, err
	}
	return &r, nil
}
