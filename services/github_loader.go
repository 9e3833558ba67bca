package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v66/github"
	"github.com/hashicorp/go-hclog"

	"github.com/ragpipe/docqa/logging"
	"github.com/ragpipe/docqa/models"
)

// GitHubLoaderConfig describes which files of which repository to load.
type GitHubLoaderConfig struct {
	Repo       string // owner/name
	Branch     string // defaults to "master"
	Token      string
	APIURL     string // defaults to https://api.github.com/
	FileFilter func(path string) bool
	HTTPClient *http.Client
}

// GitHubLoader loads the matching files of one branch of a GitHub repository.
type GitHubLoader struct {
	owner  string
	repo   string
	branch string
	filter func(string) bool
	client *github.Client
	logger hclog.Logger
}

// NewGitHubLoader validates cfg and prepares an authenticated client. It makes
// no network call.
func NewGitHubLoader(cfg GitHubLoaderConfig, logger hclog.Logger) (*GitHubLoader, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("%w: GITHUB_TOKEN is required to load %s", ErrMissingCredential, cfg.Repo)
	}
	owner, repo, ok := strings.Cut(cfg.Repo, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return nil, fmt.Errorf("%w: repo must be owner/name, got %q", ErrInvalidConfig, cfg.Repo)
	}
	if cfg.Branch == "" {
		cfg.Branch = "master"
	}
	if cfg.FileFilter == nil {
		cfg.FileFilter = DefaultFileFilter
	}

	client := github.NewClient(cfg.HTTPClient).WithAuthToken(cfg.Token)
	if cfg.APIURL != "" {
		base := cfg.APIURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("%w: github api url: %v", ErrInvalidConfig, err)
		}
		client.BaseURL = u
	}

	return &GitHubLoader{
		owner:  owner,
		repo:   repo,
		branch: cfg.Branch,
		filter: cfg.FileFilter,
		client: client,
		logger: logging.OrNull(logger),
	}, nil
}

// Name returns "github:owner/name@branch".
func (l *GitHubLoader) Name() string {
	return fmt.Sprintf("github:%s/%s@%s", l.owner, l.repo, l.branch)
}

// Load lists the branch tree and fetches every blob accepted by the filter.
func (l *GitHubLoader) Load(ctx context.Context) ([]models.Document, error) {
	tree, _, err := l.client.Git.GetTree(ctx, l.owner, l.repo, l.branch, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list files of %s: %w", l.Name(), err)
	}
	if tree.GetTruncated() {
		l.logger.Warn("repository tree truncated by the API, some files are skipped", "source", l.Name())
	}

	var docs []models.Document
	for _, entry := range tree.Entries {
		path := entry.GetPath()
		if entry.GetType() != "blob" || !l.filter(path) {
			continue
		}

		file, _, _, err := l.client.Repositories.GetContents(ctx, l.owner, l.repo, path,
			&github.RepositoryContentGetOptions{Ref: l.branch})
		if err != nil {
			return nil, fmt.Errorf("failed to fetch %s: %w", path, err)
		}
		if file == nil {
			continue
		}
		content, ok, err := l.fileContent(ctx, file, entry.GetSHA())
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", path, err)
		}
		if !ok {
			continue
		}

		l.logger.Debug("fetched file", "path", path, "bytes", len(content))
		docs = append(docs, models.Document{
			Content: content,
			Metadata: map[string]any{
				"source": l.sourceURL(path),
				"path":   path,
				"sha":    entry.GetSHA(),
				"repo":   l.owner + "/" + l.repo,
				"branch": l.branch,
			},
		})
	}
	return docs, nil
}

// fileContent decodes an inlined file. Files over 1 MB come back with
// encoding "none" and are read from the blob API instead; ok is false when
// that fails too and the file is skipped.
func (l *GitHubLoader) fileContent(ctx context.Context, file *github.RepositoryContent, sha string) (string, bool, error) {
	if file.GetEncoding() != "none" {
		content, err := file.GetContent()
		return content, err == nil, err
	}

	if file.GetSHA() != "" {
		sha = file.GetSHA()
	}
	raw, _, err := l.client.Git.GetBlobRaw(ctx, l.owner, l.repo, sha)
	if err != nil {
		l.logger.Warn("skipping large file", "path", file.GetPath(), "size", file.GetSize(), "error", err)
		return "", false, nil
	}
	l.logger.Debug("fetched large file from blob api", "path", file.GetPath(), "bytes", len(raw))
	return string(raw), true, nil
}

func (l *GitHubLoader) sourceURL(path string) string {
	return fmt.Sprintf("https://github.com/%s/%s/blob/%s/%s", l.owner, l.repo, l.branch, path)
}
