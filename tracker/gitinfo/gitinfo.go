// Package gitinfo reads commit metadata for benchmark runs from a local
// git checkout.
package gitinfo

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/bench-history/tracker/types"
)

// Reader resolves commits of one repository
type Reader struct {
	repo *git.Repository
}

// Open opens the repository containing path
func Open(path string) (*Reader, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open git repository at %s: %w", path, err)
	}
	return &Reader{repo: repo}, nil
}

// Commit describes revision (HEAD when empty). repoURL is used to build the
// commit link; when empty it is derived from the origin remote.
func (r *Reader) Commit(revision, repoURL string) (*types.Commit, error) {
	if revision == "" {
		revision = "HEAD"
	}
	hash, err := r.repo.ResolveRevision(plumbing.Revision(revision))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", revision, err)
	}
	c, err := r.repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("failed to read commit %s: %w", hash, err)
	}

	if repoURL == "" {
		repoURL, _ = r.RepoURL()
	}

	commit := &types.Commit{
		Author:    user(c.Author),
		Committer: user(c.Committer),
		ID:        c.Hash.String(),
		Message:   strings.TrimRight(c.Message, "\n"),
		Timestamp: c.Committer.When.Format(time.RFC3339),
		TreeID:    c.TreeHash.String(),
	}
	if repoURL != "" {
		commit.URL = strings.TrimSuffix(repoURL, "/") + "/commit/" + commit.ID
	}
	return commit, nil
}

// RepoURL returns the web URL of the origin remote
func (r *Reader) RepoURL() (string, error) {
	remote, err := r.repo.Remote(git.DefaultRemoteName)
	if err != nil {
		return "", err
	}
	urls := remote.Config().URLs
	if len(urls) == 0 {
		return "", errors.New("origin remote has no URL")
	}
	return WebURL(urls[0]), nil
}

// WebURL turns a clone URL into the browsable repository URL
func WebURL(remote string) string {
	u := strings.TrimSuffix(strings.TrimSpace(remote), ".git")
	switch {
	case strings.HasPrefix(u, "git@"):
		// git@github.com:owner/repo
		u = "https://" + strings.Replace(strings.TrimPrefix(u, "git@"), ":", "/", 1)
	case strings.HasPrefix(u, "ssh://git@"):
		u = "https://" + strings.TrimPrefix(u, "ssh://git@")
	case strings.HasPrefix(u, "git://"):
		u = "https://" + strings.TrimPrefix(u, "git://")
	}
	return u
}

func user(sig object.Signature) types.CommitUser {
	return types.CommitUser{Name: sig.Name, Email: sig.Email}
}
