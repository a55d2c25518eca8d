// Package repo reads and writes the YAML config tree from a backing git
// checkout (SPEC_FULL.md §4.K, ported from config_api/network_config.py).
package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// EnvRepoTarget names the local checkout path (or future remote project
// id) a Repo is built from.
const EnvRepoTarget = "ANANKE_REPO_TARGET"

// Repo is the minimal surface NetworkConfig needs from a backing store.
type Repo interface {
	// ListObjects returns every tracked file's repo-relative path.
	ListObjects() ([]string, error)
	GetFile(path string) ([]byte, error)
	UpdateFile(path string, content []byte, authorName, authorEmail, commitMessage string) error
}

// LocalRepo reads and writes files directly against a local git
// checkout, optionally committing each write.
type LocalRepo struct {
	root   string
	branch string
	repo   *git.Repository
}

// NewLocalRepo opens root as a git repository. branch selects (and
// creates, if missing) the working branch; an empty branch leaves
// whatever is currently checked out.
func NewLocalRepo(root, branch string) (*LocalRepo, error) {
	repo, err := git.PlainOpen(root)
	if err != nil {
		return nil, fmt.Errorf("opening local repo %s: %w", root, err)
	}
	lr := &LocalRepo{root: root, branch: branch, repo: repo}
	if branch != "" {
		if err := lr.checkoutBranch(branch); err != nil {
			return nil, err
		}
	}
	return lr, nil
}

func (r *LocalRepo) checkoutBranch(branch string) error {
	wt, err := r.repo.Worktree()
	if err != nil {
		return fmt.Errorf("getting worktree for %s: %w", r.root, err)
	}
	ref := plumbing.NewBranchReferenceName(branch)
	err = wt.Checkout(&git.CheckoutOptions{Branch: ref, Create: false})
	if err == nil {
		return nil
	}
	return wt.Checkout(&git.CheckoutOptions{Branch: ref, Create: true})
}

// ListObjects walks the checkout and returns every regular file's path
// relative to the repo root, skipping the .git directory.
func (r *LocalRepo) ListObjects() ([]string, error) {
	var paths []string
	err := filepath.Walk(r.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if info.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(r.root, path)
		if err != nil {
			return err
		}
		paths = append(paths, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing objects under %s: %w", r.root, err)
	}
	return paths, nil
}

// GetFile returns the raw content of path, relative to the repo root.
func (r *LocalRepo) GetFile(path string) ([]byte, error) {
	content, err := os.ReadFile(filepath.Join(r.root, path))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return content, nil
}

// UpdateFile writes content to path and commits the change.
func (r *LocalRepo) UpdateFile(path string, content []byte, authorName, authorEmail, commitMessage string) error {
	full := filepath.Join(r.root, path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, err)
	}
	if err := os.WriteFile(full, content, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	wt, err := r.repo.Worktree()
	if err != nil {
		return fmt.Errorf("getting worktree for %s: %w", r.root, err)
	}
	if _, err := wt.Add(path); err != nil {
		return fmt.Errorf("staging %s: %w", path, err)
	}
	_, err = wt.Commit(commitMessage, &git.CommitOptions{
		Author: &object.Signature{
			Name:  authorName,
			Email: authorEmail,
			When:  time.Now(),
		},
	})
	if err != nil {
		return fmt.Errorf("committing %s: %w", path, err)
	}
	return nil
}

// DeviceVarsPath builds the repo-relative path for a device's variable
// document, the convention devices/<id>/vars.yaml.
func DeviceVarsPath(deviceID string) string {
	return fmt.Sprintf("devices/%s/vars.yaml", strings.TrimSuffix(deviceID, "/"))
}
