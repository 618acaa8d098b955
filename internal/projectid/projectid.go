// Package projectid derives a deterministic, relocation-stable
// (project_id, project_name, project_type, remote_url) tuple for a
// directory, plus the git plumbing operations (commit hash, dirty state,
// diff, untracked files) incremental indexing needs.
//
// All git access goes through go-git against the local .git directory —
// no subprocess, no network fetch.
package projectid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// ProjectType classifies how a project's identity was derived.
type ProjectType string

const (
	ProjectTypeGit    ProjectType = "git"
	ProjectTypeNonGit ProjectType = "non_git"
)

// Identity is the result of Identify.
type Identity struct {
	ProjectID   string
	ProjectName string
	ProjectType ProjectType
	RemoteURL   string // empty when not a git repo, or a git repo with no origin remote
}

var nonAlnumUnderscoreDash = regexp.MustCompile(`[^a-zA-Z0-9_-]`)
var repeatedUnderscore = regexp.MustCompile(`_+`)
var sshURLPattern = regexp.MustCompile(`^git@([^:]+):(.+)$`)
var httpSchemePattern = regexp.MustCompile(`^https?://`)

// Identify derives a project's identity from its root directory. explicitID,
// when non-empty, overrides the derived id (still sanitized) but the
// project's git-ness and remote URL are still resolved for the caller's
// benefit.
//
// Priority: explicit override > git remote (hashed) > git-repo-without-
// remote (name only) > path hash for non-git directories.
func Identify(path, explicitID string) (Identity, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return Identity{}, err
	}

	gitRoot, repo := findGitRoot(absPath)

	if explicitID != "" {
		sanitized := sanitize(explicitID)
		if repo != nil {
			remote := remoteURL(repo)
			return Identity{ProjectID: sanitized, ProjectName: explicitID, ProjectType: ProjectTypeGit, RemoteURL: remote}, nil
		}
		return Identity{ProjectID: sanitized, ProjectName: explicitID, ProjectType: ProjectTypeNonGit}, nil
	}

	if repo != nil {
		repoName := filepath.Base(gitRoot)
		remote := remoteURL(repo)

		if remote != "" {
			hash := hashString(remote)[:8]
			return Identity{
				ProjectID:   sanitize(repoName) + "_" + hash,
				ProjectName: repoName,
				ProjectType: ProjectTypeGit,
				RemoteURL:   remote,
			}, nil
		}

		return Identity{
			ProjectID:   sanitize(repoName),
			ProjectName: repoName,
			ProjectType: ProjectTypeGit,
		}, nil
	}

	dirName := filepath.Base(absPath)
	hash := hashString(absPath)[:8]
	return Identity{
		ProjectID:   sanitize(dirName) + "_" + hash,
		ProjectName: dirName,
		ProjectType: ProjectTypeNonGit,
	}, nil
}

// findGitRoot walks up from path looking for a .git directory, opening the
// repository at that root. Returns ("", nil) when no repository is found.
func findGitRoot(path string) (string, *git.Repository) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return "", nil
	}
	wt, err := repo.Worktree()
	if err != nil {
		return "", nil
	}
	return wt.Filesystem.Root(), repo
}

// remoteURL reads the "origin" remote's first URL from the repository's
// local config, normalizing it to "host/path" form. Returns "" if there
// is no origin remote configured — this never touches the network.
func remoteURL(repo *git.Repository) string {
	remote, err := repo.Remote("origin")
	if err != nil {
		return ""
	}
	cfg := remote.Config()
	if len(cfg.URLs) == 0 {
		return ""
	}
	return normalizeURL(cfg.URLs[0])
}

// normalizeURL converts SSH and HTTPS git remote URLs to a host/path form,
// stripping the optional ".git" suffix, so the same remote always hashes
// to the same identity regardless of clone protocol.
func normalizeURL(url string) string {
	url = strings.TrimSuffix(url, ".git")

	if m := sshURLPattern.FindStringSubmatch(url); m != nil {
		return m[1] + "/" + m[2]
	}

	return httpSchemePattern.ReplaceAllString(url, "")
}

// sanitize makes s safe for use as a file system path segment and a
// vector-store collection name fragment: only [A-Za-z0-9_-], collapsed
// underscores, trimmed, non-empty, not digit-led, lowercase.
func sanitize(s string) string {
	sanitized := nonAlnumUnderscoreDash.ReplaceAllString(s, "_")
	sanitized = repeatedUnderscore.ReplaceAllString(sanitized, "_")
	sanitized = strings.Trim(sanitized, "_")

	if sanitized == "" {
		sanitized = "project"
	}
	if sanitized[0] >= '0' && sanitized[0] <= '9' {
		sanitized = "p" + sanitized
	}

	return strings.ToLower(sanitized)
}

func hashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// CurrentCommit returns the HEAD commit hash for the repository rooted at
// path, or "" if path is not a git repository or has no commits yet.
func CurrentCommit(path string) string {
	_, repo := findGitRoot(path)
	if repo == nil {
		return ""
	}
	head, err := repo.Head()
	if err != nil {
		return ""
	}
	return head.Hash().String()
}

// HasUncommittedChanges reports whether the repository rooted at path has
// staged or unstaged changes. A non-git path, or one whose status can't
// be read, is conservatively reported as dirty.
func HasUncommittedChanges(path string) bool {
	_, repo := findGitRoot(path)
	if repo == nil {
		return true
	}
	wt, err := repo.Worktree()
	if err != nil {
		return true
	}
	status, err := wt.Status()
	if err != nil {
		return true
	}
	return !status.IsClean()
}

// ChangedFiles returns paths (relative to the repository root) modified
// in the working tree relative to HEAD, or since fromCommit when
// non-empty. An unavailable repository yields an empty slice.
func ChangedFiles(path, fromCommit string) []string {
	_, repo := findGitRoot(path)
	if repo == nil {
		return nil
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil
	}
	status, err := wt.Status()
	if err != nil {
		return nil
	}

	if fromCommit == "" {
		var files []string
		for file, s := range status {
			if s.Worktree != git.Unmodified || s.Staging != git.Unmodified {
				files = append(files, file)
			}
		}
		return files
	}

	return changedFilesBetween(repo, fromCommit)
}

func changedFilesBetween(repo *git.Repository, fromCommit string) []string {
	from, err := repo.CommitObject(plumbing.NewHash(fromCommit))
	if err != nil {
		return nil
	}
	head, err := repo.Head()
	if err != nil {
		return nil
	}
	to, err := repo.CommitObject(head.Hash())
	if err != nil {
		return nil
	}

	fromTree, err := from.Tree()
	if err != nil {
		return nil
	}
	toTree, err := to.Tree()
	if err != nil {
		return nil
	}

	changes, err := fromTree.Diff(toTree)
	if err != nil {
		return nil
	}

	var files []string
	for _, c := range changes {
		action, err := c.Action()
		if err != nil {
			continue
		}
		_ = action
		from, to, err := c.Files()
		if err != nil {
			continue
		}
		if to != nil {
			files = append(files, to.Name)
		} else if from != nil {
			files = append(files, from.Name)
		}
	}
	return files
}

// UntrackedFiles returns paths (relative to the repository root) that are
// present in the working tree but not tracked by git.
func UntrackedFiles(path string) []string {
	_, repo := findGitRoot(path)
	if repo == nil {
		return nil
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil
	}
	status, err := wt.Status()
	if err != nil {
		return nil
	}

	var files []string
	for file, s := range status {
		if s.Worktree == git.Untracked {
			files = append(files, file)
		}
	}
	return files
}
