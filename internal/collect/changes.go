// File: internal/collect/changes.go
package collect

import (
	"context"
	"strings"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/google/go-github/v58/github"
	"go.uber.org/zap"

	"github.com/xkilldash9x/suture-cli/internal/config"
)

// ChangeLister discovers which source files changed in the triggering event,
// to narrow the code samples sent for analysis. Every failure path degrades
// to an empty list: changed-file discovery is an optimization, never a
// reason to abort the run.
type ChangeLister struct {
	logger *zap.Logger
	cfg    config.CIConfig
	ext    string
	// github is swappable for tests.
	github prFilesLister
}

type prFilesLister interface {
	ListFiles(ctx context.Context, owner, repo string, number int, opts *github.ListOptions) ([]*github.CommitFile, *github.Response, error)
}

// NewChangeLister creates a change lister for the given CI context. ext
// filters the results to one source extension.
func NewChangeLister(logger *zap.Logger, cfg config.CIConfig, ext string) *ChangeLister {
	l := &ChangeLister{
		logger: logger.Named("change_lister"),
		cfg:    cfg,
		ext:    ext,
	}
	if cfg.Token != "" {
		l.github = github.NewClient(nil).WithAuthToken(cfg.Token).PullRequests
	}
	return l
}

// ChangedFiles lists the changed source files for the current event. Pull
// requests go through the hosting API; pushes diff the local repository's
// last commit against its parent.
func (l *ChangeLister) ChangedFiles(ctx context.Context) []string {
	if l.cfg.EventName == "pull_request" {
		return l.pullRequestFiles(ctx)
	}
	return l.headDiffFiles()
}

// pullRequestFiles asks the hosting API which files the PR touches.
func (l *ChangeLister) pullRequestFiles(ctx context.Context) []string {
	if l.github == nil || l.cfg.PRNumber == 0 || l.cfg.RepoOwner == "" || l.cfg.RepoName == "" {
		l.logger.Warn("Incomplete pull-request context, skipping changed-file discovery",
			zap.Int("pr_number", l.cfg.PRNumber),
			zap.String("repo_owner", l.cfg.RepoOwner),
			zap.String("repo_name", l.cfg.RepoName))
		return nil
	}

	var files []string
	opts := &github.ListOptions{PerPage: 100}
	for {
		page, resp, err := l.github.ListFiles(ctx, l.cfg.RepoOwner, l.cfg.RepoName, l.cfg.PRNumber, opts)
		if err != nil {
			l.logger.Warn("Failed to list pull-request files", zap.Error(err))
			return nil
		}
		for _, f := range page {
			if name := f.GetFilename(); strings.HasSuffix(name, l.ext) {
				files = append(files, name)
			}
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	l.logger.Info("Discovered changed files via pull request",
		zap.Int("count", len(files)))
	return files
}

// headDiffFiles diffs HEAD against its first parent in the local repository.
func (l *ChangeLister) headDiffFiles() []string {
	repo, err := git.PlainOpen(l.cfg.RepoPath)
	if err != nil {
		l.logger.Warn("Could not open local repository", zap.String("path", l.cfg.RepoPath), zap.Error(err))
		return nil
	}

	head, err := repo.Head()
	if err != nil {
		l.logger.Warn("Could not resolve HEAD", zap.Error(err))
		return nil
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		l.logger.Warn("Could not load HEAD commit", zap.Error(err))
		return nil
	}
	parent, err := commit.Parent(0)
	if err != nil {
		// Root commit: nothing to diff against.
		l.logger.Warn("HEAD has no parent, skipping diff", zap.Error(err))
		return nil
	}

	headTree, err := commit.Tree()
	if err != nil {
		l.logger.Warn("Could not load HEAD tree", zap.Error(err))
		return nil
	}
	parentTree, err := parent.Tree()
	if err != nil {
		l.logger.Warn("Could not load parent tree", zap.Error(err))
		return nil
	}

	changes, err := object.DiffTree(parentTree, headTree)
	if err != nil {
		l.logger.Warn("Tree diff failed", zap.Error(err))
		return nil
	}

	var files []string
	for _, change := range changes {
		name := change.To.Name
		if name == "" {
			// Deleted in HEAD; nothing to patch there.
			continue
		}
		if strings.HasSuffix(name, l.ext) {
			files = append(files, name)
		}
	}

	l.logger.Info("Discovered changed files via local diff",
		zap.Int("count", len(files)))
	return files
}
